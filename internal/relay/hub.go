package relay

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"signalRelay/internal/domain"
	"signalRelay/internal/feed"
	"signalRelay/internal/metrics"
	"signalRelay/internal/ports"
)

// Feed is the hub's view of a live feed connection.
type Feed interface {
	Start() error
	Stop()
	State() feed.State
}

// FeedFactory builds an unstarted feed for cfg that hands its events to deliver.
type FeedFactory func(cfg domain.StreamConfig, deliver feed.DeliverFunc) (Feed, error)

// Config holds hub settings.
type Config struct {
	NewFeed   FeedFactory
	Logger    ports.Logger
	QueueSize int // Per-subscriber buffer, defaults to DefaultQueueSize
}

// Status is a point-in-time view of the hub.
type Status struct {
	Stream      domain.StreamConfig
	Generation  uint64
	Subscribers int
	FeedState   feed.State
	Running     bool
}

// envelope tags an event with the feed generation that produced it.
type envelope struct {
	generation uint64
	event      domain.DerivedEvent
}

// Hub owns the active feed and the subscriber set and fans every derived event
// out to all subscribers. Events reach the fan-out goroutine over a channel;
// events from a replaced feed generation are discarded there.
type Hub struct {
	newFeed   FeedFactory
	logger    ports.Logger
	queueSize int

	reconfigureMu sync.Mutex // serialises Start/Reconfigure/Stop

	mu          sync.Mutex // guards everything below
	subscribers map[string]*Subscription
	snapshot    []*Subscription
	active      Feed
	stream      domain.StreamConfig
	generation  uint64
	running     bool
	stopped     bool

	intake chan envelope
	done   chan struct{}
	wg     sync.WaitGroup
}

// NewHub creates an idle hub.
func NewHub(cfg Config) (*Hub, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("%w: logger is required for relay hub", ports.ErrConfiguration)
	}
	if cfg.NewFeed == nil {
		return nil, fmt.Errorf("%w: feed factory is required for relay hub", ports.ErrConfiguration)
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	return &Hub{
		newFeed:     cfg.NewFeed,
		logger:      cfg.Logger,
		queueSize:   cfg.QueueSize,
		subscribers: make(map[string]*Subscription),
		intake:      make(chan envelope, cfg.QueueSize),
		done:        make(chan struct{}),
	}, nil
}

// Start launches the fan-out goroutine and the first feed.
func (h *Hub) Start(cfg domain.StreamConfig) error {
	h.reconfigureMu.Lock()
	defer h.reconfigureMu.Unlock()

	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return ports.ErrHubStopped
	}
	if h.running {
		h.mu.Unlock()
		return errors.New("relay hub already started")
	}
	h.mu.Unlock()

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ports.ErrConfiguration, err)
	}

	h.wg.Add(1)
	go h.fanOut()

	if err := h.activate(cfg); err != nil {
		close(h.done)
		h.wg.Wait()
		h.mu.Lock()
		h.stopped = true
		h.mu.Unlock()
		return err
	}

	h.mu.Lock()
	h.running = true
	h.mu.Unlock()
	h.logger.Info(context.Background(), "Relay hub started", map[string]interface{}{"stream": cfg.String()})
	return nil
}

// Reconfigure replaces the active feed with one observing cfg. The old feed is
// fully stopped, and its generation retired, before the new one starts, so no
// old event can follow a new one. Subscribers are untouched. An invalid cfg is
// rejected and the current feed keeps running.
func (h *Hub) Reconfigure(cfg domain.StreamConfig) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ports.ErrConfiguration, err)
	}

	h.reconfigureMu.Lock()
	defer h.reconfigureMu.Unlock()

	h.mu.Lock()
	if h.stopped || !h.running {
		h.mu.Unlock()
		return ports.ErrHubStopped
	}
	previous := h.stream
	h.mu.Unlock()

	if err := h.activate(cfg); err != nil {
		return err
	}
	metrics.ReconfiguresTotal.Inc()
	h.logger.Info(context.Background(), "Relay hub reconfigured", map[string]interface{}{
		"from":        previous.String(),
		"to":          cfg.String(),
		"subscribers": h.SubscriberCount(),
	})
	return nil
}

// activate retires the current generation, stops its feed and starts a new
// one. Callers hold reconfigureMu.
func (h *Hub) activate(cfg domain.StreamConfig) error {
	h.mu.Lock()
	old := h.active
	h.active = nil
	h.generation++
	gen := h.generation
	h.mu.Unlock()

	if old != nil {
		old.Stop()
	}

	next, err := h.newFeed(cfg, h.deliverFunc(gen))
	if err != nil {
		return fmt.Errorf("building feed for %s: %w", cfg, err)
	}

	h.mu.Lock()
	h.active = next
	h.stream = cfg
	h.mu.Unlock()

	return next.Start()
}

func (h *Hub) deliverFunc(gen uint64) feed.DeliverFunc {
	return func(ctx context.Context, event domain.DerivedEvent) {
		select {
		case h.intake <- envelope{generation: gen, event: event}:
		case <-ctx.Done():
		case <-h.done:
		}
	}
}

// Subscribe registers a consumer. It receives only events published after
// this call returns.
func (h *Hub) Subscribe() (*Subscription, error) {
	sub := newSubscription(h.queueSize)

	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return nil, ports.ErrHubStopped
	}
	h.subscribers[sub.ID] = sub
	h.rebuildSnapshotLocked()
	count := len(h.subscribers)
	h.mu.Unlock()

	metrics.Subscribers.Set(float64(count))
	h.logger.Debug(context.Background(), "Subscriber added", map[string]interface{}{"id": sub.ID, "subscribers": count})
	return sub, nil
}

// Unsubscribe removes a consumer. Safe to call more than once and concurrently
// with fan-out; at most one event already being fanned out may still land.
func (h *Hub) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	h.mu.Lock()
	_, ok := h.subscribers[sub.ID]
	if ok {
		delete(h.subscribers, sub.ID)
		h.rebuildSnapshotLocked()
	}
	count := len(h.subscribers)
	h.mu.Unlock()

	sub.close()
	if ok {
		metrics.Subscribers.Set(float64(count))
		h.logger.Debug(context.Background(), "Subscriber removed", map[string]interface{}{
			"id":          sub.ID,
			"subscribers": count,
			"dropped":     sub.Dropped(),
		})
	}
}

// rebuildSnapshotLocked replaces the fan-out snapshot. Published snapshots are
// never mutated, so fan-out iterates them without holding h.mu.
func (h *Hub) rebuildSnapshotLocked() {
	snap := make([]*Subscription, 0, len(h.subscribers))
	for _, s := range h.subscribers {
		snap = append(snap, s)
	}
	h.snapshot = snap
}

// SubscriberCount returns the current number of subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}

// Status reports the active stream, generation and feed state.
func (h *Hub) Status() Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	st := Status{
		Stream:      h.stream,
		Generation:  h.generation,
		Subscribers: len(h.subscribers),
		FeedState:   feed.StateStopped,
		Running:     h.running && !h.stopped,
	}
	if h.active != nil {
		st.FeedState = h.active.State()
	}
	return st
}

func (h *Hub) fanOut() {
	defer h.wg.Done()
	for {
		select {
		case <-h.done:
			return
		case env := <-h.intake:
			h.publish(env)
		}
	}
}

// publish delivers one event to every current subscriber without blocking.
func (h *Hub) publish(env envelope) {
	h.mu.Lock()
	if env.generation != h.generation {
		h.mu.Unlock()
		metrics.StaleEventsTotal.Inc()
		return
	}
	snap := h.snapshot
	h.mu.Unlock()

	for _, sub := range snap {
		sub.offer(env.event)
	}
}

// Stop halts the active feed and the fan-out goroutine and ends every
// subscription. It is idempotent.
func (h *Hub) Stop() {
	h.reconfigureMu.Lock()
	defer h.reconfigureMu.Unlock()

	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return
	}
	wasRunning := h.running
	h.stopped = true
	h.running = false
	old := h.active
	h.active = nil
	h.generation++
	subs := h.snapshot
	h.subscribers = make(map[string]*Subscription)
	h.snapshot = nil
	h.mu.Unlock()

	if old != nil {
		old.Stop()
	}
	if wasRunning {
		close(h.done)
		h.wg.Wait()
	}
	for _, sub := range subs {
		sub.close()
	}
	metrics.Subscribers.Set(0)
	h.logger.Info(context.Background(), "Relay hub stopped", map[string]interface{}{"subscribers": len(subs)})
}
