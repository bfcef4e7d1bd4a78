package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/FairForge/stevedore/internal/transfer"
)

// Config is the full service configuration, loaded once at startup and
// validated before any transfer begins.
type Config struct {
	LogLevel    string `yaml:"log_level"`
	MetricsPort int    `yaml:"metrics_port"`

	Transfer TransferConfig `yaml:"transfer"`

	Source      BackendConfig `yaml:"source"`
	Destination BackendConfig `yaml:"destination"`

	// JournalPath enables cross-run idempotency bookkeeping when set.
	JournalPath string `yaml:"journal_path"`

	// BandwidthLimit caps staged download/upload bytes per second.
	// Zero means unlimited.
	BandwidthLimit int `yaml:"bandwidth_limit"`
}

// TransferConfig holds the engine parameters.
type TransferConfig struct {
	Mode                    string `yaml:"mode"`
	MaxConcurrentBatches    int    `yaml:"max_concurrent_batches"`
	MaxBatchCount           int    `yaml:"max_batch_count"`
	MaxBatchBytes           int64  `yaml:"max_batch_bytes"`
	SubConcurrency          int    `yaml:"sub_concurrency"`
	RetryMaxAttempts        int    `yaml:"retry_max_attempts"`
	RetryBaseDelayMs        int    `yaml:"retry_base_delay_ms"`
	RetryMaxDelayMs         int    `yaml:"retry_max_delay_ms"`
	CircuitFailureThreshold int    `yaml:"circuit_failure_threshold"`
	CircuitCooldownMs       int    `yaml:"circuit_cooldown_ms"`
	OperationTimeoutMs      int    `yaml:"operation_timeout_ms"`
	TempDir                 string `yaml:"temp_dir"`
}

// BackendConfig describes one object-store endpoint.
type BackendConfig struct {
	Type      string `yaml:"type"` // "s3" or "local"
	Endpoint  string `yaml:"endpoint"`
	Region    string `yaml:"region"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	// Root is the directory backing a local store.
	Root string `yaml:"root"`
}

// Default returns the baseline configuration.
func Default() *Config {
	return &Config{
		LogLevel:    "info",
		MetricsPort: 9090,
		Transfer: TransferConfig{
			Mode:                    string(transfer.ModeAuto),
			MaxConcurrentBatches:    4,
			MaxBatchCount:           100,
			MaxBatchBytes:           5 << 30, // 5 GiB
			SubConcurrency:          8,
			RetryMaxAttempts:        3,
			RetryBaseDelayMs:        100,
			RetryMaxDelayMs:         30000,
			CircuitFailureThreshold: 5,
			CircuitCooldownMs:       60000,
			OperationTimeoutMs:      300000,
		},
	}
}

// Load reads a YAML config file over the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path) // #nosec G304 - operator-supplied path
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	return cfg, nil
}

// Validate fails fast with a ConfigurationError on invalid values.
func (c *Config) Validate() error {
	if err := c.Options().Validate(); err != nil {
		return err
	}

	for name, b := range map[string]BackendConfig{
		"source":      c.Source,
		"destination": c.Destination,
	} {
		switch b.Type {
		case "s3", "local":
		default:
			return &transfer.ConfigurationError{
				Field:  name + ".type",
				Reason: "must be s3 or local",
			}
		}
	}

	if c.BandwidthLimit < 0 {
		return &transfer.ConfigurationError{
			Field:  "bandwidth_limit",
			Reason: "must not be negative",
		}
	}

	return nil
}

// Options converts the transfer section into engine options.
func (c *Config) Options() transfer.Options {
	t := c.Transfer
	return transfer.Options{
		Mode:                    transfer.Mode(t.Mode),
		MaxConcurrentBatches:    t.MaxConcurrentBatches,
		MaxBatchCount:           t.MaxBatchCount,
		MaxBatchBytes:           t.MaxBatchBytes,
		SubConcurrency:          t.SubConcurrency,
		RetryMaxAttempts:        t.RetryMaxAttempts,
		RetryBaseDelay:          time.Duration(t.RetryBaseDelayMs) * time.Millisecond,
		RetryMaxDelay:           time.Duration(t.RetryMaxDelayMs) * time.Millisecond,
		CircuitFailureThreshold: t.CircuitFailureThreshold,
		CircuitCooldown:         time.Duration(t.CircuitCooldownMs) * time.Millisecond,
		OperationTimeout:        time.Duration(t.OperationTimeoutMs) * time.Millisecond,
		TempDir:                 t.TempDir,
	}
}
