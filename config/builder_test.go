package config

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/zauberware/smshog"
)

func TestBuildOptions_Defaults(t *testing.T) {
	hog, err := smshog.New(BuildOptions(Default(), nil)...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if hog.Port() != DefaultPort {
		t.Errorf("Port() = %d, want %d", hog.Port(), DefaultPort)
	}
	if hog.PersistencePath() != "" {
		t.Errorf("PersistencePath() = %q, persistence should be off by default", hog.PersistencePath())
	}
}

func TestBuildOptions_AllSettings(t *testing.T) {
	cfg := &Config{
		Port:     9090,
		LogLevel: "debug",
		Persistence: PersistenceConfig{
			Enabled:       true,
			Path:          "/tmp/smshog.json",
			FlushInterval: Duration(time.Minute),
		},
		CORSOrigins:        []string{"http://localhost:5173"},
		AdmittedAttributes: []string{"MonthlySpendLimit"},
		UniqueRequestIDs:   true,
		Metrics:            MetricsConfig{Enabled: false},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	hog, err := smshog.New(BuildOptions(cfg, logger)...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if hog.Port() != 9090 {
		t.Errorf("Port() = %d, want 9090", hog.Port())
	}
	if hog.PersistencePath() != "/tmp/smshog.json" {
		t.Errorf("PersistencePath() = %q", hog.PersistencePath())
	}
}

func TestBuildOptions_PersistenceDisabledIgnoresPath(t *testing.T) {
	cfg := Default()
	cfg.Persistence.Path = "/tmp/ignored.json"

	hog, err := smshog.New(BuildOptions(cfg, nil)...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if hog.PersistencePath() != "" {
		t.Errorf("PersistencePath() = %q, want empty", hog.PersistencePath())
	}
}

func TestBuildOptions_InvalidConfigFailsInNew(t *testing.T) {
	cfg := Default()
	cfg.Port = 0

	if _, err := smshog.New(BuildOptions(cfg, nil)...); err == nil {
		t.Error("New() expected error for port 0, got nil")
	}
}
