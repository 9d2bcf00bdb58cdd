package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"signalRelay/internal/domain"
	"signalRelay/internal/feed"
	"signalRelay/internal/metrics"
	"signalRelay/internal/ports"
	"signalRelay/internal/relay"
)

const defaultStatusInterval = 5 * time.Second

// HealthReporter receives the relay's serving status.
type HealthReporter interface {
	SetServing(serving bool)
}

// Config holds the collaborators of the relay service.
type Config struct {
	Stream         domain.StreamConfig // Initial stream
	Hub            *relay.Hub
	Board          *Board
	Sinks          []ports.EventSink
	Health         HealthReporter // Optional
	Logger         ports.Logger
	StatusInterval time.Duration
}

// RelayService orchestrates the relay process: it starts the hub on the
// configured stream, attaches external sinks, keeps health in step with the
// feed and serves batch queries.
type RelayService struct {
	stream         domain.StreamConfig
	hub            *relay.Hub
	board          *Board
	sinks          []ports.EventSink
	health         HealthReporter
	logger         ports.Logger
	statusInterval time.Duration

	mu      sync.Mutex // Protects cancel/started
	cancel  context.CancelFunc
	started bool
	wg      sync.WaitGroup
}

// NewRelayService creates a new application service instance.
func NewRelayService(cfg Config) (*RelayService, error) {
	if cfg.Hub == nil || cfg.Board == nil || cfg.Logger == nil {
		return nil, fmt.Errorf("%w: missing required dependencies for RelayService", ports.ErrConfiguration)
	}
	if err := cfg.Stream.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ports.ErrConfiguration, err)
	}
	if cfg.StatusInterval <= 0 {
		cfg.StatusInterval = defaultStatusInterval
	}
	return &RelayService{
		stream:         cfg.Stream,
		hub:            cfg.Hub,
		board:          cfg.Board,
		sinks:          cfg.Sinks,
		health:         cfg.Health,
		logger:         cfg.Logger,
		statusInterval: cfg.StatusInterval,
	}, nil
}

// Start begins streaming. It returns once the hub is running; the feed
// connects in the background.
func (s *RelayService) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return errors.New("relay service already started")
	}

	s.logger.Info(ctx, "Starting relay service...", map[string]interface{}{"stream": s.stream.String(), "sinks": len(s.sinks)})
	if err := s.hub.Start(s.stream); err != nil {
		return fmt.Errorf("failed to start relay hub: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.started = true

	for _, sink := range s.sinks {
		s.wg.Add(1)
		go func(sink ports.EventSink) {
			defer s.wg.Done()
			if err := relay.Forward(runCtx, s.hub, sink, s.logger); err != nil {
				s.logger.Error(runCtx, err, "Sink forwarding ended", map[string]interface{}{"sink": sink.Name()})
			}
		}(sink)
	}

	s.wg.Add(1)
	go s.watchStatus(runCtx)
	return nil
}

// Stop halts the hub and detaches every sink. ctx bounds the wait for the
// background goroutines.
func (s *RelayService) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	cancel := s.cancel
	s.mu.Unlock()

	s.logger.Info(ctx, "Stopping relay service...")
	cancel()
	s.hub.Stop()

	waitDone := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(waitDone)
	}()
	var errs []error
	select {
	case <-waitDone:
	case <-ctx.Done():
		errs = append(errs, fmt.Errorf("waiting for relay goroutines: %w", ctx.Err()))
	}

	for _, sink := range s.sinks {
		if err := sink.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing sink %s: %w", sink.Name(), err))
		}
	}
	if s.health != nil {
		s.health.SetServing(false)
	}
	metrics.FeedConnected.Set(0)

	s.logger.Info(ctx, "Relay service stopped.")
	return errors.Join(errs...)
}

// Reconfigure switches the live stream to interval and, when symbol is not
// empty, to another instrument. The returned config is the one now active.
func (s *RelayService) Reconfigure(ctx context.Context, symbol, interval string) (domain.StreamConfig, error) {
	if symbol == "" {
		symbol = s.hub.Status().Stream.Symbol
	}
	cfg, err := domain.NewStreamConfig(symbol, interval)
	if err != nil {
		return domain.StreamConfig{}, fmt.Errorf("%w: %w", ports.ErrConfiguration, err)
	}
	if err := s.hub.Reconfigure(cfg); err != nil {
		s.logger.Warn(ctx, "Reconfigure rejected", map[string]interface{}{"requested": cfg.String(), "error": err.Error()})
		return domain.StreamConfig{}, err
	}
	return cfg, nil
}

// Subscribe registers an in-process consumer with the hub.
func (s *RelayService) Subscribe() (*relay.Subscription, error) {
	return s.hub.Subscribe()
}

// Unsubscribe removes a consumer registered with Subscribe.
func (s *RelayService) Unsubscribe(sub *relay.Subscription) {
	s.hub.Unsubscribe(sub)
}

// Status reports the hub's current state.
func (s *RelayService) Status() relay.Status {
	return s.hub.Status()
}

// Board runs a batch query against recent history.
func (s *RelayService) Board(ctx context.Context, q Query) BoardResult {
	return s.board.Recent(ctx, q)
}

func (s *RelayService) watchStatus(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.statusInterval)
	defer ticker.Stop()

	s.reportStatus()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.reportStatus()
		}
	}
}

func (s *RelayService) reportStatus() {
	st := s.hub.Status()
	connected := st.Running && st.FeedState == feed.StateConnected
	if connected {
		metrics.FeedConnected.Set(1)
	} else {
		metrics.FeedConnected.Set(0)
	}
	if s.health != nil {
		s.health.SetServing(connected)
	}
}
