package relay

import (
	"context"

	"signalRelay/internal/metrics"
	"signalRelay/internal/ports"
)

// Source hands out subscriptions; *Hub implements it.
type Source interface {
	Subscribe() (*Subscription, error)
	Unsubscribe(sub *Subscription)
}

// Forward subscribes sink to src and pumps events into it until ctx is done
// or the subscription ends. Delivery failures are logged and counted, never
// returned.
func Forward(ctx context.Context, src Source, sink ports.EventSink, logger ports.Logger) error {
	sub, err := src.Subscribe()
	if err != nil {
		return err
	}
	defer src.Unsubscribe(sub)

	logger.Info(ctx, "Sink attached to relay", map[string]interface{}{"sink": sink.Name(), "subscription": sub.ID})
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-sub.Done():
			return nil
		case ev := <-sub.C():
			if err := sink.Deliver(ctx, ev); err != nil {
				metrics.SinkErrorsTotal.WithLabelValues(sink.Name()).Inc()
				logger.Error(ctx, err, "Sink delivery failed", map[string]interface{}{
					"sink":      sink.Name(),
					"timestamp": ev.Timestamp,
				})
			}
		}
	}
}
