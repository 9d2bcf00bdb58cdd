package ports

import (
	"context"

	"signalRelay/internal/domain"
)

// EventSink is a downstream consumer of derived events that lives outside the
// process (a message broker, a pub/sub channel).
type EventSink interface {
	// Name identifies the sink in logs and metrics.
	Name() string
	// Deliver publishes one event. Errors are reported but never stop the relay.
	Deliver(ctx context.Context, event domain.DerivedEvent) error
	// Close releases the sink's connection.
	Close() error
}
