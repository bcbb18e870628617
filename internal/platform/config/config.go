// Package config centralizes runtime configuration so main stays lean.
// Values come from an optional TOML file overridden by environment
// variables; components receive plain structs, never ambient globals.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
)

// Duration wraps time.Duration so TOML files can use "10s" notation.
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler for toml decoding.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config captures everything the server needs at startup.
type Config struct {
	Addr          string        `toml:"addr"`
	JWTSigningKey string        `toml:"jwt_signing_key"`
	SpecDir       string        `toml:"spec_dir"`
	PolicyFile    string        `toml:"policy_file"`
	Workers       int           `toml:"workers"`
	DefaultSeed   int64         `toml:"default_seed"`

	Storage StorageConfig `toml:"storage"`
	Ledger  LedgerConfig  `toml:"ledger"`
}

// StorageConfig selects and parameterizes the document store backend.
type StorageConfig struct {
	// Backend is one of "memory", "redis", or "badger".
	Backend    string        `toml:"backend"`
	RedisAddr  string        `toml:"redis_addr"`
	BadgerPath string        `toml:"badger_path"`
	// Timeout bounds each adapter call; a timeout is a storage failure,
	// not a policy decision.
	Timeout Duration `toml:"timeout"`
}

// LedgerConfig selects the audit ledger backing store and optional
// Kafka mirroring of appended entries.
type LedgerConfig struct {
	// Backend is one of "memory" or "postgres".
	Backend     string   `toml:"backend"`
	PostgresDSN string   `toml:"postgres_dsn"`
	KafkaBrokers []string `toml:"kafka_brokers"`
	KafkaTopic   string   `toml:"kafka_topic"`
}

func defaults() Config {
	return Config{
		Addr:        ":8080",
		SpecDir:     "specs",
		PolicyFile:  "specs/policies.yaml",
		Workers:     4,
		DefaultSeed: 1,
		Storage: StorageConfig{
			Backend: "memory",
			Timeout: Duration(10 * time.Second),
		},
		Ledger: LedgerConfig{
			Backend:    "memory",
			KafkaTopic: "ista.audit",
		},
	}
}

// Load reads the TOML file at path when it exists, then applies
// environment overrides. A missing file is not an error so the server
// can run from env alone.
func Load(path string) (Config, error) {
	cfg := defaults()
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if _, err := toml.DecodeFile(path, &cfg); err != nil {
				return Config{}, fmt.Errorf("decode config file %s: %w", path, err)
			}
		}
	}
	applyEnv(&cfg)
	return cfg, nil
}

// FromEnv builds a Config from environment variables only.
func FromEnv() Config {
	cfg := defaults()
	applyEnv(&cfg)
	return cfg
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("ISTA_ADDR"); v != "" {
		cfg.Addr = v
	}
	if v := os.Getenv("ISTA_JWT_SIGNING_KEY"); v != "" {
		cfg.JWTSigningKey = v
	}
	if v := os.Getenv("ISTA_SPEC_DIR"); v != "" {
		cfg.SpecDir = v
	}
	if v := os.Getenv("ISTA_POLICY_FILE"); v != "" {
		cfg.PolicyFile = v
	}
	if v := os.Getenv("ISTA_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Workers = n
		}
	}
	if v := os.Getenv("ISTA_DEFAULT_SEED"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.DefaultSeed = n
		}
	}
	if v := os.Getenv("ISTA_STORAGE_BACKEND"); v != "" {
		cfg.Storage.Backend = v
	}
	if v := os.Getenv("ISTA_REDIS_ADDR"); v != "" {
		cfg.Storage.RedisAddr = v
	}
	if v := os.Getenv("ISTA_BADGER_PATH"); v != "" {
		cfg.Storage.BadgerPath = v
	}
	if v := os.Getenv("ISTA_STORAGE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Storage.Timeout = Duration(d)
		}
	}
	if v := os.Getenv("ISTA_LEDGER_BACKEND"); v != "" {
		cfg.Ledger.Backend = v
	}
	if v := os.Getenv("ISTA_LEDGER_POSTGRES_DSN"); v != "" {
		cfg.Ledger.PostgresDSN = v
	}
}
