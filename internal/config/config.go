package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Config holds all configuration for graphauthd.
type Config struct {
	Listen   string `mapstructure:"listen"`
	DataDir  string `mapstructure:"data_dir"`
	LogLevel string `mapstructure:"log_level"`

	// TLS configuration for the peer-to-peer surface.
	EnableTLS bool   `mapstructure:"enable_tls"`
	CertFile  string `mapstructure:"cert_file"`
	KeyFile   string `mapstructure:"key_file"`

	Store   StoreConfig   `mapstructure:"store"`
	Peer    PeerConfig    `mapstructure:"peer"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// StoreConfig selects and configures the row-store backend.
type StoreConfig struct {
	Backend string `mapstructure:"backend"` // "badger" or "pebble"
	SyncWrites bool `mapstructure:"sync_writes"`

	WriterBatchSize  int `mapstructure:"writer_batch_size"`
	WriterIntervalMS int `mapstructure:"writer_interval_ms"`
}

// PeerConfig configures the bearer-token-authenticated peer HTTP surface.
type PeerConfig struct {
	JWTSecret    string `mapstructure:"jwt_secret"`
	KeypairSeed  string `mapstructure:"keypair_seed_file"`
}

// MetricsConfig defines the metrics endpoint.
type MetricsConfig struct {
	Enable bool   `mapstructure:"enable"`
	Path   string `mapstructure:"path"`
}

// Load reads configuration from flags, GRAPHAUTHD_-prefixed environment
// variables, an optional config file and built-in defaults, in that
// order of decreasing precedence.
func Load(cmd *cobra.Command) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if err := bindFlags(cmd, v); err != nil {
		return nil, fmt.Errorf("failed to bind flags: %w", err)
	}

	if configFile, _ := cmd.Flags().GetString("config"); configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix("GRAPHAUTHD")
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("listen", ":8443")
	v.SetDefault("log_level", "info")

	v.SetDefault("enable_tls", false)

	v.SetDefault("store.backend", "badger")
	v.SetDefault("store.sync_writes", true)
	v.SetDefault("store.writer_batch_size", 64)
	v.SetDefault("store.writer_interval_ms", 20)

	v.SetDefault("peer.keypair_seed_file", "")

	v.SetDefault("metrics.enable", true)
	v.SetDefault("metrics.path", "/metrics")
}

func bindFlags(cmd *cobra.Command, v *viper.Viper) error {
	flags := map[string]string{
		"listen":        "listen",
		"data-dir":      "data_dir",
		"log-level":     "log_level",
		"tls-cert":      "cert_file",
		"tls-key":       "key_file",
		"store-backend": "store.backend",
	}

	for flag, key := range flags {
		if f := cmd.Flags().Lookup(flag); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return err
			}
		}
	}

	return nil
}

func validate(cfg *Config) error {
	if cfg.DataDir == "" {
		return fmt.Errorf("data_dir is required: specify via --data-dir flag, config file, or GRAPHAUTHD_DATA_DIR environment variable")
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	if !filepath.IsAbs(cfg.DataDir) {
		abs, err := filepath.Abs(cfg.DataDir)
		if err == nil {
			cfg.DataDir = abs
		}
	}

	switch cfg.Store.Backend {
	case "badger", "pebble":
	default:
		return fmt.Errorf("store.backend must be \"badger\" or \"pebble\", got %q", cfg.Store.Backend)
	}

	if cfg.EnableTLS && (cfg.CertFile == "" || cfg.KeyFile == "") {
		return fmt.Errorf("TLS enabled but cert-file or key-file not specified")
	}

	return nil
}
