// Package config reads edge server configuration from flags and
// environment variables. Environment variables win over flags so
// containerized deployments can override baked-in defaults.
package config

import (
	"flag"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds every runtime knob for the edge order server.
type Config struct {
	Addr            string        `env:"EDGE_ADDR"`
	DBPath          string        `env:"EDGE_DB_PATH"`
	CloudURL        string        `env:"EDGE_CLOUD_URL"`
	DeviceID        string        `env:"EDGE_DEVICE_ID"`
	TaxRate         float64       `env:"EDGE_TAX_RATE"`
	SyncCeiling     int           `env:"EDGE_SYNC_CEILING"`
	HubBuffer       int           `env:"EDGE_HUB_BUFFER"`
	PushDebounce    time.Duration `env:"EDGE_PUSH_DEBOUNCE"`
	PushMaxAttempts uint64        `env:"EDGE_PUSH_MAX_ATTEMPTS"`
}

// Parse reads configuration from the given command line arguments and
// the environment.
func Parse(args []string) (*Config, error) {
	cfg := &Config{}

	fs := flag.NewFlagSet("pos-edge", flag.ContinueOnError)
	fs.StringVar(&cfg.Addr, "a", ":8080", "address and port for the HTTP server")
	fs.StringVar(&cfg.DBPath, "d", "./data/edge.db", "path to the SQLite database")
	fs.StringVar(&cfg.CloudURL, "c", "", "cloud sync endpoint (empty disables pushing)")
	fs.StringVar(&cfg.DeviceID, "device", "edge-1", "device identifier sent with pushed events")
	fs.Float64Var(&cfg.TaxRate, "tax", 0, "tax rate applied to new orders (e.g. 0.06)")
	fs.IntVar(&cfg.SyncCeiling, "sync-ceiling", 500, "max events per incremental sync response")
	fs.IntVar(&cfg.HubBuffer, "hub-buffer", 256, "per-subscriber event buffer size")
	fs.DurationVar(&cfg.PushDebounce, "push-debounce", 2*time.Second, "batching window for cloud pushes")
	fs.Uint64Var(&cfg.PushMaxAttempts, "push-attempts", 5, "backoff attempts per cloud push batch")
	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("parse flags: %w", err)
	}

	// Environment overrides flags.
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Addr == "" {
		return fmt.Errorf("config: address must not be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("config: database path must not be empty")
	}
	if c.TaxRate < 0 || c.TaxRate >= 1 {
		return fmt.Errorf("config: tax rate %v out of range [0, 1)", c.TaxRate)
	}
	if c.SyncCeiling <= 0 {
		return fmt.Errorf("config: sync ceiling must be positive")
	}
	return nil
}
