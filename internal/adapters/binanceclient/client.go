package binanceclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	binance "github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"

	"signalRelay/internal/domain"
	"signalRelay/internal/ports"
)

const (
	DefaultRESTURL     = "https://api.binance.com"
	defaultHTTPTimeout = 30 * time.Second
	maxKlineLimit      = 1000
)

// Client implements ports.HistoricalFetcher using the go-binance spot client.
type Client struct {
	spot   *binance.Client
	logger ports.Logger
	now    func() time.Time
}

// Config holds configuration specific to the Binance client adapter.
type Config struct {
	BaseURL     string        // REST endpoint, defaults to DefaultRESTURL
	HTTPTimeout time.Duration // Whole-request timeout, defaults to 30s
	Logger      ports.Logger
}

// New creates a new Binance client adapter. Only public market data endpoints
// are used, so no API keys are involved.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Binance client")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultRESTURL
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = defaultHTTPTimeout
	}

	spot := binance.NewClient("", "")
	spot.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	spot.HTTPClient = &http.Client{
		Timeout:   cfg.HTTPTimeout,
		Transport: &regionGuard{next: http.DefaultTransport},
	}
	cfg.Logger.Info(context.Background(), "Binance client configured", map[string]interface{}{
		"baseURL": spot.BaseURL,
		"timeout": cfg.HTTPTimeout.String(),
	})

	return &Client{spot: spot, logger: cfg.Logger, now: time.Now}, nil
}

// regionGuard turns HTTP 451 into ports.ErrRegionBlocked before the body
// reaches the go-binance decoder, which does not expose status codes.
type regionGuard struct {
	next http.RoundTripper
}

func (g *regionGuard) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := g.next.RoundTrip(req)
	if err != nil || resp.StatusCode != http.StatusUnavailableForLegalReasons {
		return resp, err
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	_ = resp.Body.Close()
	return nil, fmt.Errorf("%w: status %d: %s", ports.ErrRegionBlocked, resp.StatusCode, strings.TrimSpace(string(body)))
}

// handleError translates common Binance API errors into standardized ports errors.
func (c *Client) handleError(ctx context.Context, err error, operation string) error {
	if err == nil {
		return nil
	}

	fields := map[string]interface{}{"operation": operation, "originalError": err.Error()}

	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		fields["apiErrorCode"] = apiErr.Code
		fields["apiErrorMessage"] = apiErr.Message

		var finalErr error
		switch {
		case apiErr.Code == -1003: // Too many requests
			finalErr = fmt.Errorf("%s failed: %w: %w: %w", operation, ports.ErrUpstreamUnavailable, ports.ErrRateLimited, err)
		case strings.Contains(strings.ToLower(apiErr.Message), "restricted location"):
			finalErr = fmt.Errorf("%s failed: %w: %w: %w", operation, ports.ErrUpstreamUnavailable, ports.ErrRegionBlocked, err)
		case apiErr.Code <= -1100 && apiErr.Code >= -1199: // Parameter/Request format errors
			finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrInvalidRequest, err)
		default:
			finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrUnknown, err)
		}
		c.logger.Error(ctx, err, fmt.Sprintf("%s failed with API error", operation), fields)
		return finalErr
	}

	// Handle non-API errors (network, context cancellation, region block, etc.)
	var finalErr error
	var netErr net.Error
	switch {
	case errors.Is(err, ports.ErrRegionBlocked):
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrUpstreamUnavailable, err)
	case errors.Is(err, context.Canceled):
		finalErr = fmt.Errorf("%s operation canceled: %w: %w", operation, ports.ErrContextCanceled, err)
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr) && netErr.Timeout():
		finalErr = fmt.Errorf("%s failed: %w: %w: %w", operation, ports.ErrUpstreamUnavailable, ports.ErrTimeout, err)
	case errors.As(err, &netErr),
		strings.Contains(err.Error(), "connection refused"),
		strings.Contains(err.Error(), "connection reset by peer"):
		finalErr = fmt.Errorf("%s failed: %w: %w: %w", operation, ports.ErrUpstreamUnavailable, ports.ErrConnectionFailed, err)
	default:
		// Default for other errors (e.g., parsing errors within the adapter)
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrUnknown, err)
	}

	c.logger.Error(ctx, err, fmt.Sprintf("%s failed", operation), fields)
	return finalErr
}

// GetKlines fetches the most recent klines for a symbol and interval, oldest first.
// Candles whose close time has not passed yet are returned with IsClosed false.
func (c *Client) GetKlines(ctx context.Context, symbol string, interval domain.Interval, limit int) ([]*domain.Candle, error) {
	op := "GetKlines"
	if !interval.Valid() {
		return nil, fmt.Errorf("%s failed: %w: %w", op, ports.ErrInvalidRequest, fmt.Errorf("%w: %q", domain.ErrUnsupportedInterval, interval))
	}
	if limit <= 0 || limit > maxKlineLimit {
		return nil, fmt.Errorf("%s failed: %w: limit %d outside 1..%d", op, ports.ErrInvalidRequest, limit, maxKlineLimit)
	}
	symbol = strings.ToUpper(symbol)

	binanceKlines, err := c.spot.NewKlinesService().Symbol(symbol).Interval(string(interval)).Limit(limit).Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	now := c.now().UnixMilli()
	candles := make([]*domain.Candle, 0, len(binanceKlines))
	for _, bk := range binanceKlines {
		dk, err := translateBinanceKline(bk, symbol, interval, now)
		if err != nil {
			return nil, c.handleError(ctx, fmt.Errorf("failed to translate historical kline: %w", err), op)
		}
		candles = append(candles, dk)
	}
	c.logger.Debug(ctx, op+" successful", map[string]interface{}{"symbol": symbol, "interval": string(interval), "count": len(candles)})
	return candles, nil
}

func translateBinanceKline(bk *binance.Kline, symbol string, interval domain.Interval, nowMillis int64) (*domain.Candle, error) {
	if bk == nil {
		return nil, errors.New("received nil historical kline")
	}
	open, err := strconv.ParseFloat(bk.Open, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing open price '%s': %w", bk.Open, err)
	}
	high, err := strconv.ParseFloat(bk.High, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing high price '%s': %w", bk.High, err)
	}
	low, err := strconv.ParseFloat(bk.Low, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing low price '%s': %w", bk.Low, err)
	}
	cls, err := strconv.ParseFloat(bk.Close, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing close price '%s': %w", bk.Close, err)
	}
	vol, err := strconv.ParseFloat(bk.Volume, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing volume '%s': %w", bk.Volume, err)
	}

	return &domain.Candle{
		OpenTime:  bk.OpenTime,
		CloseTime: bk.CloseTime,
		Symbol:    symbol,   // Use passed symbol as it's not in binance.Kline
		Interval:  interval, // Use passed interval
		Open:      open,
		High:      high,
		Low:       low,
		Close:     cls,
		Volume:    vol,
		IsClosed:  bk.CloseTime < nowMillis,
	}, nil
}
