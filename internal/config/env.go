package config

import (
	"os"
	"strconv"
)

// LoadFromEnv applies STEVEDORE_* environment overrides.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("STEVEDORE_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}

	if v := os.Getenv("STEVEDORE_MODE"); v != "" {
		cfg.Transfer.Mode = v
	}

	if v := os.Getenv("STEVEDORE_METRICS_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.MetricsPort = p
		}
	}

	if v := os.Getenv("STEVEDORE_MAX_CONCURRENT_BATCHES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Transfer.MaxConcurrentBatches = n
		}
	}

	if v := os.Getenv("STEVEDORE_BANDWIDTH_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.BandwidthLimit = n
		}
	}

	// Credentials come from the environment in container deployments.
	if v := os.Getenv("STEVEDORE_SOURCE_ACCESS_KEY"); v != "" {
		cfg.Source.AccessKey = v
	}
	if v := os.Getenv("STEVEDORE_SOURCE_SECRET_KEY"); v != "" {
		cfg.Source.SecretKey = v
	}
	if v := os.Getenv("STEVEDORE_DEST_ACCESS_KEY"); v != "" {
		cfg.Destination.AccessKey = v
	}
	if v := os.Getenv("STEVEDORE_DEST_SECRET_KEY"); v != "" {
		cfg.Destination.SecretKey = v
	}
}
