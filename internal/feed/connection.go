package feed

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"signalRelay/internal/domain"
	"signalRelay/internal/metrics"
	"signalRelay/internal/ports"
	"signalRelay/internal/strategy"
)

// State is the lifecycle position of a Connection.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateStopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}

var (
	ErrAlreadyStarted = errors.New("feed connection already started")
	ErrStopped        = errors.New("feed connection stopped")
)

// DeliverFunc receives one event per closed candle. ctx is canceled as soon as
// Stop is requested, so a delivery blocked on a full channel can give up.
type DeliverFunc func(ctx context.Context, event domain.DerivedEvent)

// Config holds the collaborators of a single feed connection.
type Config struct {
	Stream  domain.StreamConfig
	Dialer  ports.StreamDialer
	Parser  ports.FrameParser
	Deliver DeliverFunc
	Logger  ports.Logger
	Backoff Backoff // Defaults to FixedDelay(DefaultReconnectDelay)
}

// Connection keeps one logical subscription to a live candle stream, turning
// closed-candle frames into derived events and re-dialing after transport
// failures until stopped.
type Connection struct {
	cfg    Config
	stream string
	logger ports.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.RWMutex
	state   State
	started bool
	conn    ports.StreamConn
	timer   *time.Timer
	tracker *strategy.Tracker
}

// New validates the configuration and returns an idle connection.
func New(cfg Config) (*Connection, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("%w: logger is required for feed connection", ports.ErrConfiguration)
	}
	if cfg.Dialer == nil || cfg.Parser == nil || cfg.Deliver == nil {
		return nil, fmt.Errorf("%w: dialer, parser and deliver callback are required", ports.ErrConfiguration)
	}
	if err := cfg.Stream.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ports.ErrConfiguration, err)
	}
	if cfg.Backoff == nil {
		cfg.Backoff = FixedDelay(DefaultReconnectDelay)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Connection{
		cfg:     cfg,
		stream:  cfg.Stream.StreamName(),
		logger:  cfg.Logger,
		ctx:     ctx,
		cancel:  cancel,
		state:   StateDisconnected,
		tracker: strategy.NewTracker(),
	}, nil
}

// Start begins connecting in the background and returns immediately.
func (c *Connection) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateStopped {
		return ErrStopped
	}
	if c.started {
		return ErrAlreadyStarted
	}
	c.started = true
	c.state = StateConnecting
	go c.connect()
	return nil
}

// Stop moves the connection to STOPPED from any state. It is idempotent,
// cancels a pending reconnect and closes an open transport. Once Stop returns
// the deliver callback is never invoked again.
func (c *Connection) Stop() {
	// Unblock an in-flight delivery before waiting for the write lock.
	c.cancel()

	c.mu.Lock()
	if c.state == StateStopped {
		c.mu.Unlock()
		return
	}
	prev := c.state
	c.state = StateStopped
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	c.logger.Info(context.Background(), "Feed connection stopped", map[string]interface{}{
		"stream":        c.stream,
		"previousState": prev.String(),
	})
}

// State returns the current lifecycle state.
func (c *Connection) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Stream returns the configuration this connection observes.
func (c *Connection) Stream() domain.StreamConfig {
	return c.cfg.Stream
}

// connect runs one dial attempt and, on success, owns the read loop until the
// transport fails.
func (c *Connection) connect() {
	conn, err := c.cfg.Dialer.Dial(c.ctx, c.cfg.Stream)

	c.mu.Lock()
	if c.state == StateStopped {
		c.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
		return
	}
	if err != nil {
		c.state = StateDisconnected
		c.scheduleReconnectLocked(err)
		c.mu.Unlock()
		return
	}
	c.conn = conn
	c.state = StateConnected
	c.tracker.Reset()
	c.cfg.Backoff.Reset()
	c.mu.Unlock()

	c.logger.Info(context.Background(), "Feed connected", map[string]interface{}{"stream": c.stream})

	err = c.readLoop(conn)

	c.mu.Lock()
	if c.state == StateStopped {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.state = StateDisconnected
	c.scheduleReconnectLocked(err)
	c.mu.Unlock()
	_ = conn.Close()
}

func (c *Connection) readLoop(conn ports.StreamConn) error {
	for {
		frame, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("%w: %w", ports.ErrTransport, err)
		}
		metrics.FramesTotal.WithLabelValues(c.stream).Inc()
		c.handleFrame(frame)
	}
}

func (c *Connection) handleFrame(frame []byte) {
	candle, err := c.cfg.Parser(frame)
	if err != nil {
		metrics.ParseErrorsTotal.WithLabelValues(c.stream).Inc()
		c.logger.Warn(context.Background(), "Discarding malformed frame", map[string]interface{}{
			"stream": c.stream,
			"error":  err.Error(),
		})
		return
	}
	if candle == nil || !candle.IsClosed {
		return
	}

	// The read lock is held across delivery so Stop cannot return mid-callback.
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.state != StateConnected {
		return
	}
	signal := c.tracker.Next(*candle)
	event := strategy.NewEvent(*candle, signal, candle.ClosedAt())
	metrics.EventsDerivedTotal.WithLabelValues(c.stream, signal.String()).Inc()
	c.cfg.Deliver(c.ctx, event)
}

// scheduleReconnectLocked arms the reconnect timer. c.mu must be held.
func (c *Connection) scheduleReconnectLocked(cause error) {
	delay := c.cfg.Backoff.Duration()
	metrics.ReconnectsTotal.WithLabelValues(c.stream).Inc()
	fields := map[string]interface{}{
		"stream":  c.stream,
		"delay":   delay.String(),
		"attempt": int(c.cfg.Backoff.Attempt()),
	}
	if cause != nil {
		fields["error"] = cause.Error()
	}
	c.logger.Warn(context.Background(), "Feed disconnected, reconnect scheduled", fields)
	c.timer = time.AfterFunc(delay, c.reconnect)
}

func (c *Connection) reconnect() {
	c.mu.Lock()
	if c.state != StateDisconnected {
		c.mu.Unlock()
		return
	}
	c.timer = nil
	c.state = StateConnecting
	c.mu.Unlock()
	c.connect()
}
