package app

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"signalRelay/internal/adapters/binanceclient"
	"signalRelay/internal/domain"
	"signalRelay/internal/feed"
	"signalRelay/internal/relay"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func klineFrame(symbol, interval string, openTime int64, open, close string, closed bool) string {
	return fmt.Sprintf(`{"e":"kline","E":%d,"s":"%s","k":{"t":%d,"T":%d,"s":"%s","i":"%s","o":"%s","c":"%s","h":"%s","l":"%s","v":"1.0","x":%t}}`,
		openTime+60_000, symbol, openTime, openTime+59_999, symbol, interval, open, close, open, close, closed)
}

// exchangeStub serves every stream path with the frames registered for it and
// then keeps the socket open.
func exchangeStub(t *testing.T, frames map[string][]string) string {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for _, f := range frames[strings.TrimPrefix(r.URL.Path, "/ws/")] {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(f)); err != nil {
				return
			}
		}
		_, _, _ = conn.ReadMessage()
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func TestLivePipelineEndToEnd(t *testing.T) {
	base := exchangeStub(t, map[string][]string{
		"btcusdt@kline_1m": {
			klineFrame("BTCUSDT", "1m", 0, "100.0", "101.0", false),
			klineFrame("BTCUSDT", "1m", 0, "100.0", "105.0", true),
			`{"result":null,"id":1}`,
			klineFrame("BTCUSDT", "1m", 60_000, "105.0", "105.0", true),
			`{"e":"kline","k":`,
			klineFrame("BTCUSDT", "1m", 120_000, "105.0", "95.0", true),
		},
		"btcusdt@kline_5m": {
			klineFrame("BTCUSDT", "5m", 300_000, "95.0", "97.0", true),
		},
	})

	log := &mockLogger{}
	dialer, err := binanceclient.NewDialer(binanceclient.DialerConfig{BaseURL: base, ReadTimeout: 5 * time.Second, Logger: log})
	require.NoError(t, err)

	newBackoff := func() feed.Backoff { return feed.FixedDelay(20 * time.Millisecond) }
	hub, err := relay.NewHub(relay.Config{
		NewFeed:   NewFeedFactory(dialer, binanceclient.ParseKlineFrame, newBackoff, log),
		Logger:    log,
		QueueSize: 16,
	})
	require.NoError(t, err)
	board, err := NewBoard(&mockFetcher{}, log, Query{})
	require.NoError(t, err)

	svc, err := NewRelayService(Config{Stream: btc1m, Hub: hub, Board: board, Logger: log})
	require.NoError(t, err)

	// Subscribing before Start guarantees nothing is missed.
	sub, err := svc.Subscribe()
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, svc.Start(ctx))
	defer svc.Stop(ctx)

	next := func() domain.DerivedEvent {
		t.Helper()
		select {
		case ev := <-sub.C():
			return ev
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for live event")
			return domain.DerivedEvent{}
		}
	}

	first, second, third := next(), next(), next()
	assert.Equal(t, []domain.Signal{domain.Rising, domain.Rising, domain.Falling},
		[]domain.Signal{first.Signal, second.Signal, third.Signal})
	assert.True(t, first.IsUp)
	assert.False(t, second.IsUp)
	assert.Equal(t, int64(59_999), first.Timestamp)
	assert.Equal(t, time.UnixMilli(59_999), first.Time)
	assert.Equal(t, 105.0, first.Price)

	_, err = svc.Reconfigure(ctx, "", "5m")
	require.NoError(t, err)

	ev := next()
	assert.Equal(t, domain.Interval5m, ev.Interval)
	assert.Equal(t, domain.Rising, ev.Signal)
	assert.Equal(t, int64(359_999), ev.Timestamp)
}
