package smshog

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/zauberware/smshog/internal/attributes"
	"github.com/zauberware/smshog/internal/feed"
	"github.com/zauberware/smshog/internal/ids"
	"github.com/zauberware/smshog/internal/metrics"
	"github.com/zauberware/smshog/internal/server"
	"github.com/zauberware/smshog/internal/sns"
	"github.com/zauberware/smshog/internal/store"
)

const defaultPort = 3000

// Message is an SMS accepted by the emulator.
type Message = store.Message

// SMSHog runs the emulated SNS endpoint, the message API and the event
// stream on one HTTP port.
//
// It is created using [New] with functional options and started with
// [SMSHog.Start]:
//
//	hog, err := smshog.New(smshog.WithPort(3000))
//	if err != nil {
//	    slog.Error("failed to create smshog", "error", err)
//	    os.Exit(1)
//	}
//
//	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer cancel()
//
//	hog.Start(ctx) // blocks until context cancelled
type SMSHog struct {
	port             int
	logger           *slog.Logger
	persistPath      string
	flushInterval    time.Duration
	corsOrigins      []string
	admitted         []string
	uniqueRequestIDs bool
	registry         *prometheus.Registry
	metrics          *metrics.Metrics
	callbacks        []func(Message)

	mu   sync.Mutex
	addr net.Addr
}

// New creates a new [SMSHog] instance with the given options.
//
// Defaults:
//   - Port: 3000 (0 binds a free port, see [SMSHog.Addr])
//   - Persistence: off
//   - CORS origins: "*"
//   - Request ids: the fixed placeholder
//   - Metrics: on
func New(opts ...Option) (*SMSHog, error) {
	cfg := &hogConfig{
		port:        defaultPort,
		corsOrigins: []string{"*"},
		metrics:     true,
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}

	var registry *prometheus.Registry
	var m *metrics.Metrics
	if cfg.metrics {
		registry = cfg.registry
		if registry == nil {
			registry = prometheus.NewRegistry()
			registry.MustRegister(
				collectors.NewGoCollector(),
				collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			)
		}
		m = metrics.New(registry)
		if err := m.Register(); err != nil {
			return nil, fmt.Errorf("failed to register metrics: %w", err)
		}
	}

	return &SMSHog{
		port:             cfg.port,
		logger:           logger,
		persistPath:      cfg.persistPath,
		flushInterval:    cfg.flushInterval,
		corsOrigins:      cfg.corsOrigins,
		admitted:         cfg.admitted,
		uniqueRequestIDs: cfg.uniqueRequestIDs,
		registry:         registry,
		metrics:          m,
		callbacks:        cfg.callbacks,
	}, nil
}

// Start serves until the provided context is cancelled.
//
// Start loads the snapshot file when persistence is configured, binds the
// HTTP port and blocks. On cancellation the HTTP server drains for up to 5
// seconds, then the store writes its final snapshot.
//
// Returns nil on graceful shutdown. Returns an error if the HTTP server fails
// to start.
func (h *SMSHog) Start(ctx context.Context) error {
	h.logger.Info("smshog starting", "port", h.port, "persistence", h.persistPath != "")

	// check if context already cancelled
	if ctx.Err() != nil {
		return nil
	}

	events := feed.New(h.logger)
	defer func() {
		if err := events.Close(); err != nil {
			h.logger.Error("failed to close event feed", "error", err)
		}
	}()

	m := h.metrics
	st := store.NewMemoryStore(h.storeOptions(events, m)...)
	if m != nil {
		m.SetStoredCount(st.Len)
	}
	closeStore := func() {
		if m != nil {
			m.SetStoredCount(nil)
		}
		if err := st.Close(); err != nil {
			h.logger.Error("final snapshot failed", "error", err)
		}
	}

	reg := attributes.NewRegistry(h.admitted...)
	dispatcher := sns.NewDispatcher(st, reg, h.dispatcherOptions(m)...)

	var metricsHandler http.Handler
	if m != nil {
		metricsHandler = metrics.Handler(h.registry)
	}

	httpServer := server.NewServer(st, reg, dispatcher, events, server.Config{
		Port:        h.port,
		CORSOrigins: h.corsOrigins,
		Metrics:     metricsHandler,
	}, h.logger)
	if err := httpServer.Start(ctx); err != nil {
		closeStore()
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	addr := httpServer.Addr()
	h.setAddr(addr)
	defer h.setAddr(nil)

	h.logger.Info("smshog ready", "url", fmt.Sprintf("http://localhost:%d", addr.(*net.TCPAddr).Port))

	<-ctx.Done()
	<-httpServer.Done()
	closeStore()
	h.logger.Info("smshog stopped")
	return nil
}

func (h *SMSHog) storeOptions(events *feed.Feed, m *metrics.Metrics) []store.Option {
	opts := []store.Option{
		store.WithLogger(h.logger),
		store.WithObserver(events.Observe),
	}
	if len(h.callbacks) > 0 {
		opts = append(opts, store.WithObserver(h.notify))
	}
	if h.persistPath != "" {
		opts = append(opts, store.WithSnapshot(h.persistPath, h.flushInterval))
		if m != nil {
			opts = append(opts, store.WithFlushHook(m.ObserveFlush))
		}
	}
	return opts
}

func (h *SMSHog) dispatcherOptions(m *metrics.Metrics) []sns.Option {
	opts := []sns.Option{sns.WithLogger(h.logger)}
	if h.uniqueRequestIDs {
		opts = append(opts, sns.WithRequestIDs(ids.NewRequestID))
	}
	if m != nil {
		opts = append(opts, sns.WithRecorder(m))
	}
	return opts
}

// notify runs the message callbacks for accepted messages.
func (h *SMSHog) notify(c store.Change) {
	if c.Kind != store.ChangeAccepted || c.Message == nil {
		return
	}
	for _, cb := range h.callbacks {
		invokeCallbackSafe(cb, *c.Message, h.logger)
	}
}

// Port returns the configured HTTP port.
func (h *SMSHog) Port() int {
	return h.port
}

// Addr returns the address the running instance is bound to, or nil when it
// is not serving. With port 0 this is how callers learn the chosen port.
func (h *SMSHog) Addr() net.Addr {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.addr
}

func (h *SMSHog) setAddr(addr net.Addr) {
	h.mu.Lock()
	h.addr = addr
	h.mu.Unlock()
}

// PersistencePath returns the snapshot file path, or "" when persistence is
// off.
func (h *SMSHog) PersistencePath() string {
	return h.persistPath
}

// invokeCallbackSafe calls a message callback with panic recovery.
// Panics are logged but do not propagate.
func invokeCallbackSafe(cb func(Message), msg Message, logger *slog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("message callback panicked",
				"panic", r,
				"id", msg.ID,
			)
		}
	}()
	cb(msg)
}
