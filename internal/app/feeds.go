package app

import (
	"signalRelay/internal/domain"
	"signalRelay/internal/feed"
	"signalRelay/internal/ports"
	"signalRelay/internal/relay"
)

// NewFeedFactory returns the hub's feed constructor. Each feed gets a fresh
// backoff from newBackoff so reconnect state never leaks across generations.
func NewFeedFactory(dialer ports.StreamDialer, parser ports.FrameParser, newBackoff func() feed.Backoff, logger ports.Logger) relay.FeedFactory {
	return func(cfg domain.StreamConfig, deliver feed.DeliverFunc) (relay.Feed, error) {
		var b feed.Backoff
		if newBackoff != nil {
			b = newBackoff()
		}
		conn, err := feed.New(feed.Config{
			Stream:  cfg,
			Dialer:  dialer,
			Parser:  parser,
			Deliver: deliver,
			Logger:  logger,
			Backoff: b,
		})
		if err != nil {
			return nil, err
		}
		return conn, nil
	}
}
