package config

import (
	"log/slog"

	"github.com/zauberware/smshog"
)

// BuildOptions converts parsed configuration into SDK options.
//
// The logger is passed through unchanged; a nil logger leaves the SDK
// default in place.
func BuildOptions(cfg *Config, logger *slog.Logger) []smshog.Option {
	opts := []smshog.Option{
		smshog.WithPort(cfg.Port),
		smshog.WithCORSOrigins(cfg.CORSOrigins...),
		smshog.WithMetrics(cfg.Metrics.Enabled),
	}

	if logger != nil {
		opts = append(opts, smshog.WithLogger(logger))
	}

	if cfg.Persistence.Enabled {
		opts = append(opts, smshog.WithPersistence(cfg.Persistence.Path, cfg.Persistence.FlushInterval.Duration()))
	}

	if len(cfg.AdmittedAttributes) > 0 {
		opts = append(opts, smshog.WithAdmittedAttributes(cfg.AdmittedAttributes...))
	}

	if cfg.UniqueRequestIDs {
		opts = append(opts, smshog.WithUniqueRequestIDs())
	}

	return opts
}
