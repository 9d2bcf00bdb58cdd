package binanceclient

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"signalRelay/internal/domain"
	"signalRelay/internal/ports"
)

const (
	DefaultStreamURL   = "wss://stream.binance.com:9443/ws"
	defaultReadTimeout = 90 * time.Second
	maxFrameBytes      = 1 << 20
	controlWriteWait   = time.Second
)

// DialerConfig configures the websocket stream dialer.
type DialerConfig struct {
	BaseURL          string        // Raw stream endpoint, defaults to DefaultStreamURL
	ReadTimeout      time.Duration // Max silence before a read fails, defaults to 90s
	HandshakeTimeout time.Duration
	Logger           ports.Logger
}

// Dialer implements ports.StreamDialer over gorilla/websocket.
type Dialer struct {
	baseURL     string
	readTimeout time.Duration
	ws          *websocket.Dialer
	logger      ports.Logger
}

// NewDialer creates a stream dialer.
func NewDialer(cfg DialerConfig) (*Dialer, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Binance stream dialer")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultStreamURL
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = defaultReadTimeout
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}
	return &Dialer{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		readTimeout: cfg.ReadTimeout,
		ws: &websocket.Dialer{
			Proxy:            websocket.DefaultDialer.Proxy,
			HandshakeTimeout: cfg.HandshakeTimeout,
		},
		logger: cfg.Logger,
	}, nil
}

// StreamURL returns the endpoint for a stream config.
func (d *Dialer) StreamURL(cfg domain.StreamConfig) string {
	return d.baseURL + "/" + cfg.StreamName()
}

// Dial opens the kline stream for cfg.
func (d *Dialer) Dial(ctx context.Context, cfg domain.StreamConfig) (ports.StreamConn, error) {
	url := d.StreamURL(cfg)
	conn, resp, err := d.ws.DialContext(ctx, url, nil)
	if err != nil {
		fields := map[string]interface{}{"url": url}
		if resp != nil {
			fields["status"] = resp.StatusCode
		}
		d.logger.Debug(ctx, "Stream dial failed", fields)
		return nil, fmt.Errorf("dial %s failed: %w: %w", url, ports.ErrTransport, err)
	}
	conn.SetReadLimit(maxFrameBytes)

	wc := &wsConn{conn: conn, readTimeout: d.readTimeout}
	conn.SetPingHandler(func(data string) error {
		_ = conn.SetReadDeadline(time.Now().Add(wc.readTimeout))
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(controlWriteWait))
	})
	return wc, nil
}

type wsConn struct {
	conn        *websocket.Conn
	readTimeout time.Duration
	closeOnce   sync.Once
	closeErr    error
}

func (c *wsConn) ReadMessage() ([]byte, error) {
	_ = c.conn.SetReadDeadline(time.Now().Add(c.readTimeout))
	_, data, err := c.conn.ReadMessage()
	return data, err
}

func (c *wsConn) Close() error {
	c.closeOnce.Do(func() {
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(controlWriteWait))
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}
