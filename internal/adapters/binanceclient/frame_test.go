package binanceclient

import (
	"testing"

	"signalRelay/internal/domain"
	"signalRelay/internal/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const closedFrame = `{"e":"kline","E":1700000060001,"s":"BTCUSDT","k":{"t":1700000000000,"T":1700000059999,"s":"BTCUSDT","i":"1m","f":100,"L":200,"o":"100.00","c":"105.00","h":"106.00","l":"99.50","v":"12.5","n":100,"x":true,"q":"1250.0","V":"6.0","Q":"600.0","B":"0"}}`

func TestParseKlineFrame(t *testing.T) {
	c, err := ParseKlineFrame([]byte(closedFrame))
	require.NoError(t, err)
	require.NotNil(t, c)

	assert.Equal(t, domain.Candle{
		OpenTime:  1700000000000,
		CloseTime: 1700000059999,
		Symbol:    "BTCUSDT",
		Interval:  domain.Interval1m,
		Open:      100,
		High:      106,
		Low:       99.5,
		Close:     105,
		Volume:    12.5,
		IsClosed:  true,
	}, *c)
}

func TestParseKlineFrameFormingCandle(t *testing.T) {
	frame := `{"e":"kline","E":1,"s":"ETHUSDT","k":{"t":1,"T":2,"s":"ETHUSDT","i":"5m","o":"1","c":"2","h":"2","l":"1","v":"0","x":false}}`
	c, err := ParseKlineFrame([]byte(frame))
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.False(t, c.IsClosed)
	assert.Equal(t, domain.Interval5m, c.Interval)
}

func TestParseKlineFrameIgnoresOtherFrames(t *testing.T) {
	for _, frame := range []string{
		`{"result":null,"id":1}`,
		`{"e":"trade","E":1,"s":"BTCUSDT","p":"1.0"}`,
		`{}`,
	} {
		c, err := ParseKlineFrame([]byte(frame))
		assert.NoError(t, err, frame)
		assert.Nil(t, c, frame)
	}
}

func TestParseKlineFrameMalformed(t *testing.T) {
	for _, frame := range []string{
		`{"e":"kline","k":`,
		`not json`,
		`{"e":"kline","k":{"t":1,"T":2,"o":"x","c":"1","h":"1","l":"1","v":"1","x":true}}`,
		`{"e":"kline","k":{"t":1,"T":2,"o":"1","c":"1","h":"1","l":"1","v":"","x":true}}`,
	} {
		c, err := ParseKlineFrame([]byte(frame))
		assert.ErrorIs(t, err, ports.ErrParse, frame)
		assert.Nil(t, c)
	}
}
