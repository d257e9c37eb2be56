package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Cryptonorm CryptonormConfig  `yaml:"cryptonorm"`
	Channels   ChannelsConfig    `yaml:"channels"`
	Reconnect  ReconnectConfig   `yaml:"reconnect"`
	Transport  TransportConfig   `yaml:"transport"`
	Logging    LoggingConfig     `yaml:"logging"`
	Metrics    MetricsConfig     `yaml:"metrics"`
	Catalog    CatalogConfig     `yaml:"catalog"`
	Dashboard  DashboardConfig   `yaml:"dashboard"`
	Endpoints  map[string]string `yaml:"endpoints"`
	Batches    []BatchConfig     `yaml:"batches"`
	// BatchesFile names a standalone batches file, relative to the config
	// file. Its batches are appended to Batches.
	BatchesFile string `yaml:"batches_file"`
}

type CryptonormConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

// ChannelsConfig sizes the bounded buffers between connection groups and
// consumers.
type ChannelsConfig struct {
	GroupBuffer    int `yaml:"group_buffer"`
	ExchangeBuffer int `yaml:"exchange_buffer"`
	JoinBuffer     int `yaml:"join_buffer"`
}

type ReconnectConfig struct {
	Enabled     bool          `yaml:"enabled"`
	MaxAttempts int           `yaml:"max_attempts"`
	MinDelay    time.Duration `yaml:"min_delay"`
	MaxDelay    time.Duration `yaml:"max_delay"`
	Factor      float64       `yaml:"factor"`
}

type TransportConfig struct {
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	PingInterval     time.Duration `yaml:"ping_interval"`
	ReadTimeout      time.Duration `yaml:"read_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	ReadBufferBytes  int           `yaml:"read_buffer_bytes"`
	UserAgent        string        `yaml:"user_agent"`
}

type MetricsConfig struct {
	ChannelSize         bool             `yaml:"channel_size"`
	ChannelSizeInterval time.Duration    `yaml:"channel_size_interval"`
	ReportInterval      time.Duration    `yaml:"report_interval"`
	Prometheus          PrometheusConfig `yaml:"prometheus"`
	CloudWatch          CloudWatchConfig `yaml:"cloudwatch"`
}

type PrometheusConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

type CloudWatchConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Region          string        `yaml:"region"`
	Namespace       string        `yaml:"namespace"`
	Dashboard       string        `yaml:"dashboard"`
	PublishInterval time.Duration `yaml:"publish_interval"`
	AccessKeyID     string        `yaml:"access_key_id"`
	SecretAccessKey string        `yaml:"secret_access_key"`
}

// CatalogConfig controls the optional listing check run before connecting.
type CatalogConfig struct {
	Verify  bool              `yaml:"verify"`
	Timeout time.Duration     `yaml:"timeout"`
	URLs    map[string]string `yaml:"urls"`
}

// DashboardConfig controls the read-only JSON status server.
type DashboardConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Address         string        `yaml:"address"`
	RefreshInterval time.Duration `yaml:"refresh_interval"`
	LogHistory      int           `yaml:"log_history"`
	MetricsHistory  int           `yaml:"metrics_history"`
	DiskPath        string        `yaml:"disk_path"`
}

type LoggingConfig struct {
	Level  string                 `yaml:"level"`
	Format string                 `yaml:"format"`
	Output string                 `yaml:"output"`
	MaxAge int                    `yaml:"max_age"`
	Fields map[string]interface{} `yaml:"fields"`
}

func defaultConfig() Config {
	return Config{
		Channels: ChannelsConfig{
			GroupBuffer:    1024,
			ExchangeBuffer: 4096,
			JoinBuffer:     8192,
		},
		Reconnect: ReconnectConfig{
			Enabled:     true,
			MaxAttempts: 0,
			MinDelay:    500 * time.Millisecond,
			MaxDelay:    30 * time.Second,
			Factor:      2,
		},
		Transport: TransportConfig{
			HandshakeTimeout: 10 * time.Second,
			PingInterval:     20 * time.Second,
			ReadTimeout:      60 * time.Second,
			WriteTimeout:     5 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Metrics: MetricsConfig{
			ChannelSize:         true,
			ChannelSizeInterval: 10 * time.Second,
			Prometheus:          PrometheusConfig{Addr: "0.0.0.0:2112"},
			CloudWatch: CloudWatchConfig{
				Namespace:       "Cryptonorm",
				Dashboard:       "Cryptonorm",
				PublishInterval: time.Minute,
			},
		},
		Catalog: CatalogConfig{Timeout: 10 * time.Second},
		Dashboard: DashboardConfig{
			Address:         "0.0.0.0:8080",
			RefreshInterval: 5 * time.Second,
			LogHistory:      200,
			MetricsHistory:  200,
		},
	}
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return parseConfig(data, filepath.Dir(path))
}

// ParseConfig decodes YAML on top of the defaults, applies environment
// overrides and validates the result. A relative batches_file is resolved
// against the working directory.
func ParseConfig(data []byte) (*Config, error) {
	return parseConfig(data, ".")
}

func parseConfig(data []byte, dir string) (*Config, error) {
	config := defaultConfig()
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if config.BatchesFile != "" {
		path := config.BatchesFile
		if !filepath.IsAbs(path) {
			path = filepath.Join(dir, path)
		}
		extra, err := LoadBatches(path)
		if err != nil {
			return nil, err
		}
		config.Batches = append(config.Batches, extra.Batches...)
	}

	// CloudWatch credentials and region from the environment win over the file.
	if config.Metrics.CloudWatch.Enabled {
		if v := os.Getenv("AWS_ACCESS_KEY_ID"); v != "" {
			config.Metrics.CloudWatch.AccessKeyID = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_SECRET_ACCESS_KEY"); v != "" {
			config.Metrics.CloudWatch.SecretAccessKey = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_REGION"); v != "" {
			config.Metrics.CloudWatch.Region = strings.TrimSpace(v)
		}
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

func validateConfig(cfg *Config) error {
	if cfg.Cryptonorm.Name == "" {
		return fmt.Errorf("cryptonorm.name is required")
	}

	if cfg.Cryptonorm.Version == "" {
		return fmt.Errorf("cryptonorm.version is required")
	}

	if cfg.Channels.GroupBuffer <= 0 {
		return fmt.Errorf("channels.group_buffer must be greater than 0")
	}
	if cfg.Channels.ExchangeBuffer <= 0 {
		return fmt.Errorf("channels.exchange_buffer must be greater than 0")
	}
	if cfg.Channels.JoinBuffer <= 0 {
		return fmt.Errorf("channels.join_buffer must be greater than 0")
	}

	if cfg.Reconnect.Enabled {
		if cfg.Reconnect.MinDelay <= 0 {
			return fmt.Errorf("reconnect.min_delay must be greater than 0")
		}
		if cfg.Reconnect.MaxDelay < cfg.Reconnect.MinDelay {
			return fmt.Errorf("reconnect.max_delay must not be less than reconnect.min_delay")
		}
		if cfg.Reconnect.Factor < 1 {
			return fmt.Errorf("reconnect.factor must be at least 1")
		}
		if cfg.Reconnect.MaxAttempts < 0 {
			return fmt.Errorf("reconnect.max_attempts must not be negative")
		}
	}

	if cfg.Metrics.Prometheus.Enabled && cfg.Metrics.Prometheus.Addr == "" {
		return fmt.Errorf("metrics.prometheus.addr is required when prometheus is enabled")
	}
	if cfg.Metrics.CloudWatch.Enabled && cfg.Metrics.CloudWatch.Region == "" {
		return fmt.Errorf("metrics.cloudwatch.region is required when cloudwatch is enabled")
	}

	if len(cfg.Batches) == 0 {
		return fmt.Errorf("at least one batch is required")
	}
	var errs []error
	for i, batch := range cfg.Batches {
		if _, err := batch.Subscriptions(); err != nil {
			errs = append(errs, fmt.Errorf("batches[%d]: %w", i, err))
		}
	}
	return errors.Join(errs...)
}
