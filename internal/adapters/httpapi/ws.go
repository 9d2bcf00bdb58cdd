package httpapi

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"signalRelay/internal/adapters/codec"
	"signalRelay/internal/relay"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 4096
	controlBuffer  = 8
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// session is one websocket consumer. Only writeLoop writes to conn.
type session struct {
	conn    *websocket.Conn
	sub     *relay.Subscription
	control chan controlMessage

	closeOnce sync.Once
	closed    chan struct{}
}

func (sess *session) close() {
	sess.closeOnce.Do(func() {
		close(sess.closed)
		_ = sess.conn.Close()
	})
}

// reply queues a control message for the writer; it gives up once the
// session is closing.
func (sess *session) reply(msg controlMessage) {
	select {
	case sess.control <- msg:
	case <-sess.closed:
	}
}

func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		s.logger.Warn(r.Context(), "Websocket upgrade failed", map[string]interface{}{"error": err.Error()})
		return
	}

	sub, err := s.relay.Subscribe()
	if err != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, err.Error()), time.Now().Add(writeWait))
		_ = conn.Close()
		return
	}

	sess := &session{
		conn:    conn,
		sub:     sub,
		control: make(chan controlMessage, controlBuffer),
		closed:  make(chan struct{}),
	}
	s.track(sess)
	s.wg.Add(2)
	s.logger.Info(r.Context(), "Websocket consumer connected", map[string]interface{}{
		"subscription": sub.ID,
		"remote":       r.RemoteAddr,
	})

	go s.writeLoop(sess)
	go s.readLoop(sess)
}

// readLoop handles client control messages until the socket fails, then tears
// the session down.
func (s *Server) readLoop(sess *session) {
	defer s.wg.Done()
	defer func() {
		sess.close()
		s.relay.Unsubscribe(sess.sub)
		s.untrack(sess)
		s.logger.Info(context.Background(), "Websocket consumer disconnected", map[string]interface{}{
			"subscription": sess.sub.ID,
			"dropped":      sess.sub.Dropped(),
		})
	}()

	sess.conn.SetReadLimit(maxMessageSize)
	_ = sess.conn.SetReadDeadline(time.Now().Add(pongWait))
	sess.conn.SetPongHandler(func(string) error {
		return sess.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := sess.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				s.logger.Warn(context.Background(), "Websocket read failed", map[string]interface{}{"error": err.Error()})
			}
			return
		}
		_ = sess.conn.SetReadDeadline(time.Now().Add(pongWait))
		sess.reply(s.handleClientMessage(data))
	}
}

func (s *Server) handleClientMessage(data []byte) controlMessage {
	var msg clientMessage
	if err := codec.Unmarshal(data, &msg); err != nil {
		return controlMessage{Type: messageTypeError, Message: "message must be JSON"}
	}
	switch msg.Action {
	case actionReconfigure:
		cfg, err := s.relay.Reconfigure(context.Background(), msg.Symbol, msg.Interval)
		if err != nil {
			return controlMessage{Type: messageTypeError, Message: err.Error()}
		}
		return controlMessage{Type: messageTypeReconfigured, Symbol: cfg.Symbol, Interval: cfg.Interval.String()}
	default:
		return controlMessage{Type: messageTypeError, Message: "unknown action " + msg.Action}
	}
}

// writeLoop is the only writer on the socket: live events, control replies and
// keepalive pings.
func (s *Server) writeLoop(sess *session) {
	defer s.wg.Done()
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	defer sess.close()

	for {
		select {
		case <-sess.closed:
			return
		case <-sess.sub.Done():
			_ = sess.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "relay stopped"), time.Now().Add(writeWait))
			return
		case ev := <-sess.sub.C():
			data, err := codec.EncodeEvent(ev)
			if err != nil {
				s.logger.Error(context.Background(), err, "Failed to encode live event")
				continue
			}
			if !s.write(sess, websocket.TextMessage, data) {
				return
			}
		case msg := <-sess.control:
			data, err := codec.Marshal(msg)
			if err != nil {
				s.logger.Error(context.Background(), err, "Failed to encode control message")
				continue
			}
			if !s.write(sess, websocket.TextMessage, data) {
				return
			}
		case <-ticker.C:
			if !s.write(sess, websocket.PingMessage, nil) {
				return
			}
		}
	}
}

func (s *Server) write(sess *session, messageType int, data []byte) bool {
	_ = sess.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := sess.conn.WriteMessage(messageType, data); err != nil {
		s.logger.Debug(context.Background(), "Websocket write failed", map[string]interface{}{
			"subscription": sess.sub.ID,
			"error":        err.Error(),
		})
		return false
	}
	return true
}
