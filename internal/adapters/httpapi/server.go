// Package httpapi is the consumer surface of the relay: batch signal queries,
// stream control, the live websocket and health/metrics endpoints.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"signalRelay/internal/adapters/codec"
	"signalRelay/internal/app"
	"signalRelay/internal/domain"
	"signalRelay/internal/metrics"
	"signalRelay/internal/ports"
	"signalRelay/internal/relay"
)

// Relay is what the HTTP layer needs from the application service.
type Relay interface {
	Board(ctx context.Context, q app.Query) app.BoardResult
	Status() relay.Status
	Reconfigure(ctx context.Context, symbol, interval string) (domain.StreamConfig, error)
	Subscribe() (*relay.Subscription, error)
	Unsubscribe(sub *relay.Subscription)
}

// Config holds HTTP server settings.
type Config struct {
	Addr   string // e.g. ":9000"
	Relay  Relay
	Logger ports.Logger
}

// Server serves the REST and websocket endpoints.
type Server struct {
	relay  Relay
	logger ports.Logger
	router *mux.Router
	http   *http.Server

	mu       sync.Mutex
	sessions map[*session]struct{}
	wg       sync.WaitGroup
}

// NewServer builds the router; call Start to listen.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Relay == nil || cfg.Logger == nil {
		return nil, fmt.Errorf("%w: relay and logger are required for HTTP server", ports.ErrConfiguration)
	}
	s := &Server{
		relay:    cfg.Relay,
		logger:   cfg.Logger,
		sessions: make(map[*session]struct{}),
	}
	s.router = s.routes()
	s.http = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/signals", s.handleSignals).Methods(http.MethodGet)
	api.HandleFunc("/baccarat", s.handleSignals).Methods(http.MethodGet)
	api.HandleFunc("/stream", s.handleStreamStatus).Methods(http.MethodGet)
	api.HandleFunc("/stream", s.handleReconfigure).Methods(http.MethodPost)

	r.HandleFunc("/ws", s.handleWebsocket).Methods(http.MethodGet)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	return r
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens on the configured address and serves in the background.
func (s *Server) Start() error {
	lis, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.http.Addr, err)
	}
	s.logger.Info(context.Background(), "HTTP server started", map[string]interface{}{"addr": lis.Addr().String()})
	go func() {
		if err := s.http.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error(context.Background(), err, "HTTP server failed")
		}
	}()
	return nil
}

// Shutdown stops accepting requests, closes live websocket sessions and waits
// for them within ctx.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.http.Shutdown(ctx)

	s.mu.Lock()
	for sess := range s.sessions {
		sess.close()
	}
	s.mu.Unlock()

	waitDone := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(waitDone)
	}()
	select {
	case <-waitDone:
	case <-ctx.Done():
		err = errors.Join(err, fmt.Errorf("waiting for websocket sessions: %w", ctx.Err()))
	}
	s.logger.Info(ctx, "HTTP server stopped")
	return err
}

func (s *Server) handleSignals(w http.ResponseWriter, r *http.Request) {
	q := app.Query{
		Symbol:   r.URL.Query().Get("symbol"),
		Interval: r.URL.Query().Get("interval"),
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: fmt.Sprintf("invalid limit %q", raw)})
			return
		}
		q.Limit = limit
	}

	res := s.relay.Board(r.Context(), q)
	status := http.StatusOK
	if errors.Is(res.Err, ports.ErrConfiguration) {
		status = http.StatusBadRequest
	}
	s.writeJSON(w, status, newSignalsResponse(res))
}

func (s *Server) handleStreamStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, newStreamStatus(s.relay.Status()))
}

func (s *Server) handleReconfigure(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 4096))
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, reconfigureResponse{Error: "failed to read request body"})
		return
	}
	var req reconfigureRequest
	if err := codec.Unmarshal(body, &req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, reconfigureResponse{Error: "request body must be JSON"})
		return
	}

	cfg, err := s.relay.Reconfigure(r.Context(), req.Symbol, req.Interval)
	if err != nil {
		s.writeJSON(w, statusFor(err), reconfigureResponse{Error: err.Error()})
		return
	}
	s.writeJSON(w, http.StatusOK, reconfigureResponse{
		Success:  true,
		Symbol:   cfg.Symbol,
		Interval: cfg.Interval.String(),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ports.ErrConfiguration):
		return http.StatusBadRequest
	case errors.Is(err, ports.ErrHubStopped):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	data, err := codec.Marshal(v)
	if err != nil {
		s.logger.Error(context.Background(), err, "Failed to encode response")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func (s *Server) track(sess *session) {
	s.mu.Lock()
	s.sessions[sess] = struct{}{}
	s.mu.Unlock()
}

func (s *Server) untrack(sess *session) {
	s.mu.Lock()
	delete(s.sessions, sess)
	s.mu.Unlock()
}
