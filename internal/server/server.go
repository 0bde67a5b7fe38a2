package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/zauberware/smshog/internal/attributes"
	"github.com/zauberware/smshog/internal/feed"
	"github.com/zauberware/smshog/internal/jsoncodec"
	"github.com/zauberware/smshog/internal/sns"
	"github.com/zauberware/smshog/internal/store"
)

const (
	// sseWriteTimeout is the maximum time allowed for a single SSE write operation.
	// This prevents goroutine leaks when clients are slow or disconnected.
	// Must be <= shutdown timeout to ensure clean shutdown.
	sseWriteTimeout = 5 * time.Second

	// sseKeepAlive is how often an idle event stream sends a comment line.
	sseKeepAlive = 15 * time.Second

	shutdownTimeout = 5 * time.Second
)

// Protocol serves the emulated SNS endpoint.
type Protocol interface {
	http.Handler
	DefaultAction(action string) http.Handler
}

// EventSource delivers store change events to the event stream.
type EventSource interface {
	Subscribe(ctx context.Context) (<-chan feed.Event, error)
}

// Config holds the server settings that are not collaborators.
type Config struct {
	// Port is the TCP port to listen on. Zero picks a free port.
	Port int

	// CORSOrigins lists the origins allowed to call the server. "*" allows
	// any origin. An empty list disables CORS headers.
	CORSOrigins []string

	// Metrics serves /metrics when set.
	Metrics http.Handler
}

// Server handles HTTP requests for the SMSHog protocol endpoint and API.
//
// The server is designed for graceful shutdown via context cancellation.
type Server struct {
	store    store.Store
	registry *attributes.Registry
	protocol Protocol
	events   EventSource
	cfg      Config
	logger   *slog.Logger

	mu         sync.Mutex
	httpServer *http.Server
	addr       net.Addr
	done       chan struct{}
}

// apiResponse is the envelope of every /api/v1 response.
type apiResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// NewServer creates a new HTTP [Server].
//
// The server is not started until [Server.Start] is called. A nil events
// source disables the event stream.
func NewServer(st store.Store, reg *attributes.Registry, protocol Protocol, events EventSource, cfg Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		store:    st,
		registry: reg,
		protocol: protocol,
		events:   events,
		cfg:      cfg,
		logger:   logger,
		done:     make(chan struct{}),
	}
}

// Handler returns the server's routes wrapped in the CORS middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// emulated SNS protocol
	mux.Handle("POST /{$}", s.protocol)
	mux.Handle("GET /{$}", s.protocol)
	mux.Handle("POST /sms", s.protocol.DefaultAction(sns.ActionPublish))

	// REST API
	mux.HandleFunc("GET /api/v1/sms", s.handleListSMS)
	mux.HandleFunc("DELETE /api/v1/sms", s.handleClearSMS)
	mux.HandleFunc("GET /api/v1/sms/{id}", s.handleGetSMS)
	mux.HandleFunc("DELETE /api/v1/sms/{id}", s.handleDeleteSMS)
	mux.HandleFunc("GET /api/v1/attributes", s.handleAttributes)
	if s.events != nil {
		mux.HandleFunc("GET /api/v1/events", s.handleSSE)
	}

	mux.HandleFunc("GET /health", s.handleHealth)
	if s.cfg.Metrics != nil {
		mux.Handle("GET /metrics", s.cfg.Metrics)
	}

	return s.cors(mux)
}

// Start begins serving HTTP requests in a background goroutine.
//
// Start is non-blocking and returns immediately after confirming the server
// is listening. The server will continue running until the context is
// cancelled, at which point it initiates a graceful shutdown with a 5-second
// timeout.
//
// Returns an error if the server fails to bind to the configured port.
func (s *Server) Start(ctx context.Context) error {
	// create listener first to verify port availability synchronously
	addr := fmt.Sprintf(":%d", s.cfg.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to bind to port %d: %w", s.cfg.Port, err)
	}

	httpServer := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		// BaseContext derives all request contexts from the server context.
		// When ctx is cancelled, all request contexts are also cancelled,
		// enabling graceful shutdown of long-running handlers like SSE.
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	s.mu.Lock()
	s.httpServer = httpServer
	s.addr = ln.Addr()
	s.mu.Unlock()

	s.logger.Info("http server listening", "addr", ln.Addr().String())

	go func() {
		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server error", "error", err)
		}
	}()

	// shutdown on context cancellation
	go func() {
		defer close(s.done)
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("http server shutdown error", "error", err)
		}
	}()

	return nil
}

// Addr returns the address the server is listening on, or nil before
// [Server.Start] succeeds.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Done is closed once a started server has finished shutting down. It is
// never closed if [Server.Start] failed.
func (s *Server) Done() <-chan struct{} {
	return s.done
}

// cors sets the CORS headers for allowed origins and answers preflight
// requests.
func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if allowed := s.allowedOrigin(r.Header.Get("Origin")); allowed != "" {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", allowed)
			h.Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Content-Type, Accept, Authorization, X-Amz-Date, X-Amz-Target")
			if allowed != "*" {
				h.Add("Vary", "Origin")
			}
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// allowedOrigin returns the Access-Control-Allow-Origin value for the
// request origin, or "" if it is not allowed.
func (s *Server) allowedOrigin(origin string) string {
	for _, allowed := range s.cfg.CORSOrigins {
		if allowed == "*" {
			return "*"
		}
		if origin != "" && strings.EqualFold(allowed, origin) {
			return origin
		}
	}
	return ""
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(status)
	if err := jsoncodec.Encode(w, v); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

func (s *Server) handleListSMS(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, apiResponse{Success: true, Data: s.store.List()})
}

func (s *Server) handleGetSMS(w http.ResponseWriter, r *http.Request) {
	msg, ok := s.store.Get(r.PathValue("id"))
	if !ok {
		s.writeJSON(w, http.StatusNotFound, apiResponse{Error: "SMS not found"})
		return
	}
	s.writeJSON(w, http.StatusOK, apiResponse{Success: true, Data: msg})
}

func (s *Server) handleDeleteSMS(w http.ResponseWriter, r *http.Request) {
	if !s.store.Remove(r.PathValue("id")) {
		s.writeJSON(w, http.StatusNotFound, apiResponse{Error: "SMS not found"})
		return
	}
	s.writeJSON(w, http.StatusOK, apiResponse{Success: true})
}

func (s *Server) handleClearSMS(w http.ResponseWriter, _ *http.Request) {
	s.store.Clear()
	s.writeJSON(w, http.StatusOK, apiResponse{Success: true})
}

func (s *Server) handleAttributes(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, apiResponse{Success: true, Data: s.registry.Snapshot()})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleSSE streams store changes via Server-Sent Events.
//
// The handler uses write deadlines to prevent goroutine leaks when clients are
// slow or disconnected. Without deadlines, a blocked Fprintf call would prevent
// the handler from detecting context cancellation or channel closure.
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	// check if flushing is supported
	if _, ok := w.(http.Flusher); !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	events, err := s.events.Subscribe(r.Context())
	if err != nil {
		s.logger.Error("failed to subscribe to events", "error", err)
		http.Error(w, "event stream unavailable", http.StatusServiceUnavailable)
		return
	}

	rc := http.NewResponseController(w)

	// track if write deadlines are supported (may not be for some ResponseWriter impls)
	deadlinesSupported := true

	// write sends one frame with a deadline so a stalled client cannot block
	// the handler past shutdown.
	write := func(frame string) error {
		if deadlinesSupported {
			if err := rc.SetWriteDeadline(time.Now().Add(sseWriteTimeout)); err != nil {
				// deadline not supported by underlying connection, continue without
				s.logger.Debug("sse write deadlines not supported", "error", err)
				deadlinesSupported = false
			}
		}

		if _, err := fmt.Fprint(w, frame); err != nil {
			return err
		}
		return rc.Flush()
	}

	// set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	// the comment line commits the headers so clients see the stream open
	if err := write(": connected\n\n"); err != nil {
		return
	}

	keepAlive := time.NewTicker(sseKeepAlive)
	defer keepAlive.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			data, err := jsoncodec.Marshal(ev)
			if err != nil {
				s.logger.Error("failed to encode event", "type", ev.Type, "error", err)
				continue
			}
			if err := write("data: " + string(data) + "\n\n"); err != nil {
				return
			}

		case <-keepAlive.C:
			if err := write(": keep-alive\n\n"); err != nil {
				return
			}

		case <-r.Context().Done():
			// request context is derived from server context via BaseContext,
			// so this fires on both client disconnect AND server shutdown
			return
		}
	}
}
