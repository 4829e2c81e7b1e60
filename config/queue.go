package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// QueueConfig tunes the processing queue: stuck threshold, retry policy,
// sweep schedules and worker concurrency. Loaded from a yaml file so ops
// can adjust without rebuilding.
type QueueConfig struct {
	DefaultMaxRetries int           `yaml:"defaultMaxRetries"`
	StuckThreshold    time.Duration `yaml:"stuckThreshold"`
	RetryWindow       time.Duration `yaml:"retryWindow"`
	ReaperSpec        string        `yaml:"reaperSpec"`
	RetrySweepSpec    string        `yaml:"retrySweepSpec"`
	HealthLogSpec     string        `yaml:"healthLogSpec"`
	WorkerConcurrency int           `yaml:"workerConcurrency"`
	SweepLockTTL      time.Duration `yaml:"sweepLockTTL"`
}

func DefaultQueueConfig() *QueueConfig {
	return &QueueConfig{
		DefaultMaxRetries: 3,
		StuckThreshold:    30 * time.Minute,
		RetryWindow:       24 * time.Hour,
		ReaperSpec:        "@every 5m",
		RetrySweepSpec:    "@every 5m",
		HealthLogSpec:     "@every 15m",
		WorkerConcurrency: 10,
		SweepLockTTL:      5 * time.Minute,
	}
}

// LoadQueueConfig reads a yaml file over the defaults. A missing path (or
// empty string) yields the defaults.
func LoadQueueConfig(path string) (*QueueConfig, error) {
	cfg := DefaultQueueConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read queue config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse queue config: %w", err)
	}
	return cfg, nil
}
