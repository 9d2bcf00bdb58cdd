package ports

import (
	"context"

	"signalRelay/internal/domain"
)

// HistoricalFetcher returns the most recent candles for a stream, oldest first.
// The last element may still be forming (IsClosed == false) when the venue includes it.
type HistoricalFetcher interface {
	GetKlines(ctx context.Context, symbol string, interval domain.Interval, limit int) ([]*domain.Candle, error)
}

// StreamDialer opens one live candle stream connection.
// Implementations must return an error wrapping ErrTransport when the dial fails.
type StreamDialer interface {
	Dial(ctx context.Context, cfg domain.StreamConfig) (StreamConn, error)
}

// StreamConn is a single open stream transport.
// ReadMessage blocks until the next raw frame arrives or the transport fails.
// Close must be safe to call concurrently with a blocked ReadMessage.
type StreamConn interface {
	ReadMessage() ([]byte, error)
	Close() error
}

// FrameParser turns one raw frame into a candle.
// A nil candle with a nil error means the frame carries no candle (e.g. a control ack).
type FrameParser func(frame []byte) (*domain.Candle, error)
