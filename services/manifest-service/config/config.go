package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/oinam-labs/tac-portal-sub002/shared/config"
)

// ManifestConfig is the manifest service configuration. Precedence is
// environment, then the YAML file named by MANIFEST_CONFIG_FILE, then defaults.
type ManifestConfig struct {
	CommonConfig *config.CommonConfig `yaml:"-"`

	HTTPAddr string `yaml:"http_addr"`
	GRPCAddr string `yaml:"grpc_addr"`

	ManifestTopic string `yaml:"manifest_topic"`
	ConsumerGroup string `yaml:"consumer_group"`

	Scan      ScanConfig      `yaml:"scan"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`

	TrackingTaskQueue string `yaml:"tracking_task_queue"`
}

type ScanConfig struct {
	Debounce            time.Duration `yaml:"debounce"`
	ValidateDestination bool          `yaml:"validate_destination"`
	ValidateStatus      bool          `yaml:"validate_status"`
}

// RateLimitConfig sizes the per-station token bucket on the scan endpoint.
// A zero capacity disables the limiter.
type RateLimitConfig struct {
	Capacity float64 `yaml:"capacity"`
	Refill   float64 `yaml:"refill_per_second"`
}

func defaults() ManifestConfig {
	return ManifestConfig{
		HTTPAddr:      ":8080",
		GRPCAddr:      ":50052",
		ManifestTopic: "manifest-events",
		ConsumerGroup: "manifest-hub-notify",
		Scan: ScanConfig{
			Debounce:            100 * time.Millisecond,
			ValidateDestination: true,
			ValidateStatus:      true,
		},
		RateLimit:         RateLimitConfig{Capacity: 20, Refill: 10},
		TrackingTaskQueue: "manifest-tracking",
	}
}

// LoadConfig builds the manifest service configuration.
func LoadConfig() (*ManifestConfig, error) {
	cfg := defaults()

	if path := os.Getenv("MANIFEST_CONFIG_FILE"); path != "" {
		if err := loadYAML(path, &cfg); err != nil {
			return nil, err
		}
	}

	cfg.CommonConfig = config.LoadCommonConfig()
	cfg.HTTPAddr = config.GetEnv("HTTP_ADDR", cfg.HTTPAddr)
	cfg.GRPCAddr = config.GetEnv("GRPC_ADDR", cfg.GRPCAddr)
	if t := cfg.CommonConfig.KAFKA_TOPIC; t != "" {
		cfg.ManifestTopic = t
	}
	cfg.ConsumerGroup = config.GetEnv("KAFKA_GROUP_ID", cfg.ConsumerGroup)
	cfg.Scan.Debounce = config.GetEnvDuration("SCAN_DEBOUNCE", cfg.Scan.Debounce)
	cfg.Scan.ValidateDestination = config.GetEnvBool("SCAN_VALIDATE_DESTINATION", cfg.Scan.ValidateDestination)
	cfg.Scan.ValidateStatus = config.GetEnvBool("SCAN_VALIDATE_STATUS", cfg.Scan.ValidateStatus)
	cfg.RateLimit.Capacity = config.GetEnvFloat("SCAN_RATE_CAPACITY", cfg.RateLimit.Capacity)
	cfg.RateLimit.Refill = config.GetEnvFloat("SCAN_RATE_REFILL", cfg.RateLimit.Refill)
	cfg.TrackingTaskQueue = config.GetEnv("TRACKING_TASK_QUEUE", cfg.TrackingTaskQueue)

	if cfg.Scan.Debounce < 0 {
		return nil, fmt.Errorf("scan debounce must not be negative, got %s", cfg.Scan.Debounce)
	}
	if cfg.RateLimit.Capacity > 0 && cfg.RateLimit.Refill <= 0 {
		return nil, fmt.Errorf("rate limit refill must be positive when capacity is set")
	}
	return &cfg, nil
}

func loadYAML(path string, cfg *ManifestConfig) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("config file %s not found", path)
		}
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}
