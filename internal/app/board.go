package app

import (
	"context"
	"fmt"

	"signalRelay/internal/domain"
	"signalRelay/internal/ports"
	"signalRelay/internal/strategy"
	"signalRelay/internal/strategy/analytics"
)

// MaxBoardLimit is the largest history window the venue serves in one request.
const MaxBoardLimit = 1000

// Query selects a history window. Empty fields fall back to the board defaults.
type Query struct {
	Symbol   string
	Interval string
	Limit    int
}

// BoardResult is the outcome of a batch query. Any failure yields
// Success=false, no events and Err set.
type BoardResult struct {
	Success bool
	Stream  domain.StreamConfig
	Events  []domain.DerivedEvent
	Count   int
	Stats   analytics.Summary
	Err     error
}

// Board derives signals from recent history on demand. It holds no state
// between calls.
type Board struct {
	fetcher  ports.HistoricalFetcher
	logger   ports.Logger
	defaults Query
}

// NewBoard creates a batch query service.
func NewBoard(fetcher ports.HistoricalFetcher, logger ports.Logger, defaults Query) (*Board, error) {
	if fetcher == nil {
		return nil, fmt.Errorf("%w: historical fetcher is required", ports.ErrConfiguration)
	}
	if logger == nil {
		return nil, fmt.Errorf("%w: logger is required for board", ports.ErrConfiguration)
	}
	if defaults.Symbol == "" {
		defaults.Symbol = "BTCUSDT"
	}
	if defaults.Interval == "" {
		defaults.Interval = string(domain.Interval1m)
	}
	if defaults.Limit <= 0 {
		defaults.Limit = 100
	}
	return &Board{fetcher: fetcher, logger: logger, defaults: defaults}, nil
}

// Recent fetches the latest candles for q and classifies the closed ones.
func (b *Board) Recent(ctx context.Context, q Query) BoardResult {
	if q.Symbol == "" {
		q.Symbol = b.defaults.Symbol
	}
	if q.Interval == "" {
		q.Interval = b.defaults.Interval
	}
	if q.Limit == 0 {
		q.Limit = b.defaults.Limit
	}

	cfg, err := domain.NewStreamConfig(q.Symbol, q.Interval)
	if err != nil {
		return failedBoard(fmt.Errorf("%w: %w", ports.ErrConfiguration, err))
	}
	if q.Limit < 1 || q.Limit > MaxBoardLimit {
		return failedBoard(fmt.Errorf("%w: limit %d outside 1..%d", ports.ErrConfiguration, q.Limit, MaxBoardLimit))
	}

	candles, err := b.fetcher.GetKlines(ctx, cfg.Symbol, cfg.Interval, q.Limit)
	if err != nil {
		b.logger.Warn(ctx, "Board query degraded to empty result", map[string]interface{}{
			"stream": cfg.String(),
			"limit":  q.Limit,
			"error":  err.Error(),
		})
		res := failedBoard(err)
		res.Stream = cfg
		return res
	}

	events := strategy.DeriveSeries(candles)
	return BoardResult{
		Success: true,
		Stream:  cfg,
		Events:  events,
		Count:   len(events),
		Stats:   analytics.Summarize(events),
	}
}

func failedBoard(err error) BoardResult {
	return BoardResult{Events: []domain.DerivedEvent{}, Err: err}
}
