package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnsupportedInterval = errors.New("unsupported interval")
	ErrInvalidInstrument   = errors.New("invalid instrument")
)

// Interval is the candle bucket width in exchange notation (e.g. "1m", "4h").
type Interval string

const (
	Interval1s  Interval = "1s"
	Interval1m  Interval = "1m"
	Interval3m  Interval = "3m"
	Interval5m  Interval = "5m"
	Interval15m Interval = "15m"
	Interval30m Interval = "30m"
	Interval1h  Interval = "1h"
	Interval2h  Interval = "2h"
	Interval4h  Interval = "4h"
	Interval6h  Interval = "6h"
	Interval8h  Interval = "8h"
	Interval12h Interval = "12h"
	Interval1d  Interval = "1d"
	Interval3d  Interval = "3d"
	Interval1w  Interval = "1w"
	Interval1M  Interval = "1M"
)

var supportedIntervals = map[Interval]struct{}{
	Interval1s: {}, Interval1m: {}, Interval3m: {}, Interval5m: {}, Interval15m: {}, Interval30m: {},
	Interval1h: {}, Interval2h: {}, Interval4h: {}, Interval6h: {}, Interval8h: {}, Interval12h: {},
	Interval1d: {}, Interval3d: {}, Interval1w: {}, Interval1M: {},
}

// ParseInterval validates s against the supported interval set.
// Interval notation is case sensitive ("1m" is a minute, "1M" a month).
func ParseInterval(s string) (Interval, error) {
	i := Interval(strings.TrimSpace(s))
	if !i.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedInterval, s)
	}
	return i, nil
}

// Valid reports whether the interval is one the venue streams.
func (i Interval) Valid() bool {
	_, ok := supportedIntervals[i]
	return ok
}

func (i Interval) String() string {
	return string(i)
}

// StreamConfig identifies one live candle stream.
type StreamConfig struct {
	Symbol   string
	Interval Interval
}

// NewStreamConfig normalises and validates a symbol/interval pair.
func NewStreamConfig(symbol, interval string) (StreamConfig, error) {
	i, err := ParseInterval(interval)
	if err != nil {
		return StreamConfig{}, err
	}
	cfg := StreamConfig{Symbol: strings.ToUpper(strings.TrimSpace(symbol)), Interval: i}
	if err := cfg.Validate(); err != nil {
		return StreamConfig{}, err
	}
	return cfg, nil
}

// Validate checks the instrument is a non-empty alphanumeric ticker and the
// interval is supported.
func (c StreamConfig) Validate() error {
	if c.Symbol == "" {
		return fmt.Errorf("%w: empty symbol", ErrInvalidInstrument)
	}
	for _, r := range c.Symbol {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return fmt.Errorf("%w: %q", ErrInvalidInstrument, c.Symbol)
		}
	}
	if !c.Interval.Valid() {
		return fmt.Errorf("%w: %q", ErrUnsupportedInterval, c.Interval)
	}
	return nil
}

// WithInterval returns a copy of the config observing a different interval.
func (c StreamConfig) WithInterval(i Interval) StreamConfig {
	c.Interval = i
	return c
}

// StreamName is the venue stream identifier, e.g. "btcusdt@kline_1m".
func (c StreamConfig) StreamName() string {
	return strings.ToLower(c.Symbol) + "@kline_" + string(c.Interval)
}

func (c StreamConfig) String() string {
	return c.Symbol + "@" + string(c.Interval)
}
