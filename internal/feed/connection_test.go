package feed

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"signalRelay/internal/domain"
	"signalRelay/internal/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockLogger implements ports.Logger for testing
type mockLogger struct {
	mu       sync.Mutex
	warnMsgs []string
}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}

func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{}) {}

func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.warnMsgs = append(m.warnMsgs, msg)
}

func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

func (m *mockLogger) warnings() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.warnMsgs...)
}

// fakeConn serves frames pushed by the test; closing frames simulates a remote close.
type fakeConn struct {
	frames    chan []byte
	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{frames: make(chan []byte, 16), closed: make(chan struct{})}
}

func (c *fakeConn) ReadMessage() ([]byte, error) {
	select {
	case f, ok := <-c.frames:
		if !ok {
			return nil, io.EOF
		}
		return f, nil
	case <-c.closed:
		return nil, errors.New("use of closed network connection")
	}
}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

// fakeDialer hands out queued errors first, then fresh fakeConns.
type fakeDialer struct {
	mu       sync.Mutex
	dialErrs []error
	dials    int32
	opened   chan *fakeConn
	newConn  func() ports.StreamConn
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{opened: make(chan *fakeConn, 8)}
}

func (d *fakeDialer) Dial(ctx context.Context, cfg domain.StreamConfig) (ports.StreamConn, error) {
	atomic.AddInt32(&d.dials, 1)
	d.mu.Lock()
	if len(d.dialErrs) > 0 {
		err := d.dialErrs[0]
		d.dialErrs = d.dialErrs[1:]
		d.mu.Unlock()
		return nil, err
	}
	d.mu.Unlock()
	if d.newConn != nil {
		return d.newConn(), nil
	}
	conn := newFakeConn()
	d.opened <- conn
	return conn, nil
}

func (d *fakeDialer) dialCount() int {
	return int(atomic.LoadInt32(&d.dials))
}

type testFrame struct {
	Open   float64 `json:"o"`
	Close  float64 `json:"c"`
	Closed bool    `json:"x"`
}

func frame(open, close float64, closed bool) []byte {
	b, _ := json.Marshal(testFrame{Open: open, Close: close, Closed: closed})
	return b
}

func testParser(raw []byte) (*domain.Candle, error) {
	var f testFrame
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, errors.Join(ports.ErrParse, err)
	}
	return &domain.Candle{
		OpenTime:  1_000,
		CloseTime: 60_999,
		Symbol:    "BTCUSDT",
		Interval:  domain.Interval1m,
		Open:      f.Open,
		Close:     f.Close,
		IsClosed:  f.Closed,
	}, nil
}

type recorder struct {
	mu     sync.Mutex
	events []domain.DerivedEvent
}

func (r *recorder) deliver(ctx context.Context, e domain.DerivedEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) signals() []domain.Signal {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Signal, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Signal)
	}
	return out
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func newTestConnection(t *testing.T, d ports.StreamDialer, rec *recorder, b Backoff) (*Connection, *mockLogger) {
	t.Helper()
	log := &mockLogger{}
	c, err := New(Config{
		Stream:  domain.StreamConfig{Symbol: "BTCUSDT", Interval: domain.Interval1m},
		Dialer:  d,
		Parser:  testParser,
		Deliver: rec.deliver,
		Logger:  log,
		Backoff: b,
	})
	require.NoError(t, err)
	t.Cleanup(c.Stop)
	return c, log
}

func awaitConn(t *testing.T, d *fakeDialer) *fakeConn {
	t.Helper()
	select {
	case c := <-d.opened:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("dialer was never called")
		return nil
	}
}

func TestNewValidation(t *testing.T) {
	rec := &recorder{}
	valid := Config{
		Stream:  domain.StreamConfig{Symbol: "BTCUSDT", Interval: domain.Interval1m},
		Dialer:  newFakeDialer(),
		Parser:  testParser,
		Deliver: rec.deliver,
		Logger:  &mockLogger{},
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "missing logger", mutate: func(c *Config) { c.Logger = nil }},
		{name: "missing dialer", mutate: func(c *Config) { c.Dialer = nil }},
		{name: "missing parser", mutate: func(c *Config) { c.Parser = nil }},
		{name: "missing deliver", mutate: func(c *Config) { c.Deliver = nil }},
		{name: "unsupported interval", mutate: func(c *Config) { c.Stream.Interval = "7m" }},
		{name: "empty symbol", mutate: func(c *Config) { c.Stream.Symbol = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			_, err := New(cfg)
			assert.ErrorIs(t, err, ports.ErrConfiguration)
		})
	}

	c, err := New(valid)
	require.NoError(t, err)
	assert.Equal(t, StateDisconnected, c.State())
	assert.Equal(t, valid.Stream, c.Stream())
}

func TestClosedCandlesOnly(t *testing.T) {
	d := newFakeDialer()
	rec := &recorder{}
	c, _ := newTestConnection(t, d, rec, FixedDelay(time.Hour))

	require.NoError(t, c.Start())
	conn := awaitConn(t, d)
	require.Eventually(t, func() bool { return c.State() == StateConnected }, time.Second, 5*time.Millisecond)

	conn.frames <- frame(100, 101, false)
	conn.frames <- frame(100, 105, true)
	conn.frames <- frame(105, 104, false)
	conn.frames <- frame(105, 105, true)
	conn.frames <- frame(105, 106, false)
	conn.frames <- frame(105, 95, true)

	require.Eventually(t, func() bool { return rec.count() == 3 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []domain.Signal{domain.Rising, domain.Rising, domain.Falling}, rec.signals())

	rec.mu.Lock()
	first := rec.events[0]
	rec.mu.Unlock()
	assert.Equal(t, int64(60_999), first.Time.UnixMilli(), "live events are stamped with the close time")
	assert.True(t, first.IsUp)
	assert.Equal(t, 105.0, first.Price)
}

func TestMalformedFrameIsNotFatal(t *testing.T) {
	d := newFakeDialer()
	rec := &recorder{}
	c, log := newTestConnection(t, d, rec, FixedDelay(time.Hour))

	require.NoError(t, c.Start())
	conn := awaitConn(t, d)

	conn.frames <- []byte("{not json")
	conn.frames <- frame(10, 12, true)

	require.Eventually(t, func() bool { return rec.count() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, StateConnected, c.State())
	assert.Equal(t, 1, d.dialCount())
	assert.Contains(t, log.warnings(), "Discarding malformed frame")
}

func TestReconnectResetsCarryOver(t *testing.T) {
	d := newFakeDialer()
	rec := &recorder{}
	c, _ := newTestConnection(t, d, rec, FixedDelay(10*time.Millisecond))

	require.NoError(t, c.Start())
	first := awaitConn(t, d)
	first.frames <- frame(1, 2, true)
	require.Eventually(t, func() bool { return rec.count() == 1 }, time.Second, 5*time.Millisecond)

	close(first.frames)
	second := awaitConn(t, d)
	require.Eventually(t, func() bool { return c.State() == StateConnected }, time.Second, 5*time.Millisecond)

	// A tie right after reconnect resolves to the default, not the pre-drop RISING.
	second.frames <- frame(3, 3, true)
	require.Eventually(t, func() bool { return rec.count() == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []domain.Signal{domain.Rising, domain.Falling}, rec.signals())
	assert.Equal(t, 2, d.dialCount())
}

func TestDialFailuresAreRetried(t *testing.T) {
	d := newFakeDialer()
	d.dialErrs = []error{errors.New("dns failure"), errors.New("tls handshake failure")}
	rec := &recorder{}
	c, log := newTestConnection(t, d, rec, FixedDelay(5*time.Millisecond))

	require.NoError(t, c.Start())
	awaitConn(t, d)
	require.Eventually(t, func() bool { return c.State() == StateConnected }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 3, d.dialCount())
	assert.Len(t, log.warnings(), 2)
}

func TestStopBeforeReconnectTimerFires(t *testing.T) {
	d := newFakeDialer()
	rec := &recorder{}
	c, _ := newTestConnection(t, d, rec, FixedDelay(150*time.Millisecond))

	require.NoError(t, c.Start())
	conn := awaitConn(t, d)
	close(conn.frames)
	require.Eventually(t, func() bool { return c.State() == StateDisconnected }, time.Second, 5*time.Millisecond)

	c.Stop()
	assert.Equal(t, StateStopped, c.State())

	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, 1, d.dialCount(), "no reconnection after stop")
	assert.Equal(t, StateStopped, c.State())
}

// streamingConn produces a closed candle on every read until closed.
type streamingConn struct {
	n      int64
	closed chan struct{}
	once   sync.Once
}

func (s *streamingConn) ReadMessage() ([]byte, error) {
	select {
	case <-s.closed:
		return nil, io.ErrClosedPipe
	default:
	}
	n := atomic.AddInt64(&s.n, 1)
	return frame(float64(n), float64(n+1), true), nil
}

func (s *streamingConn) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}

func TestNoDeliveryAfterStop(t *testing.T) {
	d := newFakeDialer()
	d.newConn = func() ports.StreamConn { return &streamingConn{closed: make(chan struct{})} }
	rec := &recorder{}
	c, _ := newTestConnection(t, d, rec, FixedDelay(time.Millisecond))

	require.NoError(t, c.Start())
	require.Eventually(t, func() bool { return rec.count() > 50 }, time.Second, time.Millisecond)

	c.Stop()
	c.Stop()
	after := rec.count()

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, after, rec.count())
	assert.Equal(t, StateStopped, c.State())
}

func TestStopUnblocksPendingDelivery(t *testing.T) {
	d := newFakeDialer()
	blocked := make(chan struct{})
	log := &mockLogger{}
	c, err := New(Config{
		Stream: domain.StreamConfig{Symbol: "BTCUSDT", Interval: domain.Interval1m},
		Dialer: d,
		Parser: testParser,
		Deliver: func(ctx context.Context, e domain.DerivedEvent) {
			close(blocked)
			<-ctx.Done()
		},
		Logger:  log,
		Backoff: FixedDelay(time.Hour),
	})
	require.NoError(t, err)

	require.NoError(t, c.Start())
	conn := awaitConn(t, d)
	conn.frames <- frame(1, 2, true)
	<-blocked

	done := make(chan struct{})
	go func() {
		c.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop blocked behind an in-flight delivery")
	}
}

func TestStartTwiceAndAfterStop(t *testing.T) {
	d := newFakeDialer()
	rec := &recorder{}
	c, _ := newTestConnection(t, d, rec, FixedDelay(time.Hour))

	require.NoError(t, c.Start())
	assert.ErrorIs(t, c.Start(), ErrAlreadyStarted)

	stopped, _ := newTestConnection(t, newFakeDialer(), rec, nil)
	stopped.Stop()
	assert.ErrorIs(t, stopped.Start(), ErrStopped)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "DISCONNECTED", StateDisconnected.String())
	assert.Equal(t, "CONNECTING", StateConnecting.String())
	assert.Equal(t, "CONNECTED", StateConnected.String())
	assert.Equal(t, "STOPPED", StateStopped.String())
	assert.Equal(t, "UNKNOWN", State(9).String())
}
