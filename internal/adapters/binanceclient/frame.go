package binanceclient

import (
	"errors"
	"fmt"
	"strconv"

	binance "github.com/adshao/go-binance/v2"
	"github.com/bytedance/sonic"

	"signalRelay/internal/domain"
	"signalRelay/internal/ports"
)

// ParseKlineFrame decodes one raw kline stream frame. Frames without a kline
// payload (subscription acks, other event types) yield nil, nil.
func ParseKlineFrame(frame []byte) (*domain.Candle, error) {
	var event binance.WsKlineEvent
	if err := sonic.ConfigStd.Unmarshal(frame, &event); err != nil {
		return nil, fmt.Errorf("%w: %w", ports.ErrParse, err)
	}
	if event.Event != "" && event.Event != "kline" {
		return nil, nil
	}
	if event.Kline.StartTime == 0 && event.Kline.Open == "" {
		return nil, nil
	}
	candle, err := translateWsKline(&event)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ports.ErrParse, err)
	}
	return candle, nil
}

func translateWsKline(event *binance.WsKlineEvent) (*domain.Candle, error) {
	if event == nil {
		return nil, errors.New("received nil WebSocket kline event")
	}
	k := event.Kline
	open, err := strconv.ParseFloat(k.Open, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing open price '%s': %w", k.Open, err)
	}
	high, err := strconv.ParseFloat(k.High, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing high price '%s': %w", k.High, err)
	}
	low, err := strconv.ParseFloat(k.Low, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing low price '%s': %w", k.Low, err)
	}
	cls, err := strconv.ParseFloat(k.Close, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing close price '%s': %w", k.Close, err)
	}
	vol, err := strconv.ParseFloat(k.Volume, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing volume '%s': %w", k.Volume, err)
	}

	symbol := k.Symbol
	if symbol == "" {
		symbol = event.Symbol
	}
	return &domain.Candle{
		OpenTime:  k.StartTime,
		CloseTime: k.EndTime,
		Symbol:    symbol,
		Interval:  domain.Interval(k.Interval),
		Open:      open,
		High:      high,
		Low:       low,
		Close:     cls,
		Volume:    vol,
		IsClosed:  k.IsFinal,
	}, nil
}
