package smshog

import (
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// hogConfig holds mutable state during SMSHog construction.
type hogConfig struct {
	port             int
	logger           *slog.Logger
	persistPath      string
	flushInterval    time.Duration
	corsOrigins      []string
	admitted         []string
	uniqueRequestIDs bool
	metrics          bool
	registry         *prometheus.Registry
	callbacks        []func(Message)
}

// Option is a function that configures an [SMSHog] instance during construction.
//
// Options return an error if validation fails.
type Option func(*hogConfig) error

// WithPort sets the HTTP port for the emulated SNS endpoint and the API.
// Defaults to 3000. Port 0 binds a free port, reported by [SMSHog.Addr].
//
// Returns an error if the port is outside the valid range (0-65535).
func WithPort(port int) Option {
	return func(cfg *hogConfig) error {
		if port < 0 || port > 65535 {
			return errors.New("port must be between 0 and 65535")
		}
		cfg.port = port
		return nil
	}
}

// WithLogger sets a custom [slog.Logger] for the SMSHog instance.
// If not specified, [slog.Default] is used.
//
// Returns an error if the logger is nil.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *hogConfig) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		cfg.logger = logger
		return nil
	}
}

// WithPersistence keeps accepted messages in a JSON snapshot file at path.
//
// The file is loaded on start and rewritten after every change and every
// interval. A zero interval selects the store default of 30 seconds.
// Without this option messages live in memory only.
//
// Example:
//
//	hog, err := smshog.New(
//	    smshog.WithPersistence("smshog-data.json", time.Minute),
//	)
//
// Returns an error if path is empty or interval is negative.
func WithPersistence(path string, interval time.Duration) Option {
	return func(cfg *hogConfig) error {
		if strings.TrimSpace(path) == "" {
			return errors.New("persistence path cannot be empty")
		}
		if interval < 0 {
			return errors.New("flush interval cannot be negative")
		}
		cfg.persistPath = path
		cfg.flushInterval = interval
		return nil
	}
}

// WithCORSOrigins replaces the origins allowed to call the server from a
// browser. Defaults to "*". Calling it with no origins disables CORS headers.
func WithCORSOrigins(origins ...string) Option {
	return func(cfg *hogConfig) error {
		cfg.corsOrigins = append([]string(nil), origins...)
		return nil
	}
}

// WithAdmittedAttributes lets SetSMSAttributes store the named attributes in
// addition to DefaultSenderID, DefaultSMSType and UsageReportS3Bucket.
//
// Returns an error if a name is empty.
func WithAdmittedAttributes(names ...string) Option {
	return func(cfg *hogConfig) error {
		for _, name := range names {
			if strings.TrimSpace(name) == "" {
				return errors.New("admitted attribute name cannot be empty")
			}
		}
		cfg.admitted = append(cfg.admitted, names...)
		return nil
	}
}

// WithUniqueRequestIDs makes every response carry a fresh request id instead
// of the fixed placeholder.
func WithUniqueRequestIDs() Option {
	return func(cfg *hogConfig) error {
		cfg.uniqueRequestIDs = true
		return nil
	}
}

// WithMetrics enables or disables the Prometheus collectors and the /metrics
// route. Metrics are enabled by default.
func WithMetrics(enabled bool) Option {
	return func(cfg *hogConfig) error {
		cfg.metrics = enabled
		return nil
	}
}

// WithMetricsRegistry registers the collectors on reg and serves reg at
// /metrics. By default each instance uses its own registry with the Go
// runtime and process collectors.
//
// Returns an error if reg is nil.
func WithMetricsRegistry(reg *prometheus.Registry) Option {
	return func(cfg *hogConfig) error {
		if reg == nil {
			return errors.New("metrics registry cannot be nil")
		}
		cfg.registry = reg
		return nil
	}
}

// WithMessageCallback registers a function called for every accepted message.
//
// Callbacks run synchronously on the request goroutine, after the message is
// stored and before the response is written, so they must be non-blocking.
// Panics are recovered and logged. Nil callbacks are ignored.
//
// Example:
//
//	hog, err := smshog.New(
//	    smshog.WithMessageCallback(func(m smshog.Message) {
//	        log.Printf("SMS to %s: %s", m.PhoneNumber, m.Message)
//	    }),
//	)
func WithMessageCallback(cb func(Message)) Option {
	return func(cfg *hogConfig) error {
		if cb == nil {
			return nil
		}
		cfg.callbacks = append(cfg.callbacks, cb)
		return nil
	}
}
