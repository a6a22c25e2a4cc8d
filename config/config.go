package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Orderflow OrderflowConfig `yaml:"orderflow"`
	Channels  ChannelsConfig  `yaml:"channels"`
	Book      BookConfig      `yaml:"book"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Feed      FeedConfig      `yaml:"feed"`
	Events    EventsConfig    `yaml:"events"`
	Server    ServerConfig    `yaml:"server"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type OrderflowConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

// ChannelsConfig sizes the two inter-stage rings. Capacities must be powers
// of two.
type ChannelsConfig struct {
	QuoteBuffer int `yaml:"quote_buffer"`
	OrderBuffer int `yaml:"order_buffer"`
}

type BookConfig struct {
	Depth            int     `yaml:"depth"`
	CrossedTolerance float64 `yaml:"crossed_tolerance"`
}

type PipelineConfig struct {
	// PollBackoffMin/Max bound the sleep between empty polls of a stage's
	// ring.
	PollBackoffMin time.Duration `yaml:"poll_backoff_min"`
	PollBackoffMax time.Duration `yaml:"poll_backoff_max"`
	// EnqueueRetries bounds how often a triggered order is re-offered to a
	// full dispatch ring before it is surfaced as cancelled.
	EnqueueRetries  int           `yaml:"enqueue_retries"`
	MetricsInterval time.Duration `yaml:"metrics_interval"`
}

type FeedConfig struct {
	Enabled         bool    `yaml:"enabled"`
	QuotesPerSecond float64 `yaml:"quotes_per_second"`
	Burst           int     `yaml:"burst"`
}

type EventsConfig struct {
	Kafka KafkaConfig `yaml:"kafka"`
}

type KafkaConfig struct {
	Enabled bool     `yaml:"enabled"`
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
	Buffer  int      `yaml:"buffer"`
}

type ServerConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

type MetricsConfig struct {
	CloudWatch CloudWatchConfig `yaml:"cloudwatch"`
}

type CloudWatchConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Region    string `yaml:"region"`
	Namespace string `yaml:"namespace"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
	MaxAge int    `yaml:"max_age"`
}

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnvVars substitutes ${VAR} references in the raw yaml with values
// from the environment.
func expandEnvVars(data []byte) []byte {
	return envVarPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		name := envVarPattern.FindSubmatch(match)[1]
		return []byte(os.Getenv(string(name)))
	})
}

// LoadConfig reads, expands and validates the pipeline configuration. All
// validation happens here, before any stage thread starts; a bad capacity is
// fatal by design.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(expandEnvVars(data), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Orderflow.Name == "" {
		c.Orderflow.Name = "orderflow"
	}
	if c.Book.Depth == 0 {
		c.Book.Depth = 10
	}
	if c.Pipeline.PollBackoffMin == 0 {
		c.Pipeline.PollBackoffMin = 5 * time.Microsecond
	}
	if c.Pipeline.PollBackoffMax == 0 {
		c.Pipeline.PollBackoffMax = time.Millisecond
	}
	if c.Pipeline.EnqueueRetries == 0 {
		c.Pipeline.EnqueueRetries = 64
	}
	if c.Pipeline.MetricsInterval == 0 {
		c.Pipeline.MetricsInterval = 30 * time.Second
	}
	if c.Feed.QuotesPerSecond == 0 {
		c.Feed.QuotesPerSecond = 1000
	}
	if c.Feed.Burst == 0 {
		c.Feed.Burst = 100
	}
	if c.Events.Kafka.Buffer == 0 {
		c.Events.Kafka.Buffer = 256
	}
	if c.Server.Listen == "" {
		c.Server.Listen = ":8090"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
}

func isPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}

func (c *Config) validate() error {
	if !isPowerOfTwo(c.Channels.QuoteBuffer) {
		return fmt.Errorf("channels.quote_buffer must be a power of two, got %d", c.Channels.QuoteBuffer)
	}
	if !isPowerOfTwo(c.Channels.OrderBuffer) {
		return fmt.Errorf("channels.order_buffer must be a power of two, got %d", c.Channels.OrderBuffer)
	}
	if c.Book.Depth <= 0 {
		return fmt.Errorf("book.depth must be positive, got %d", c.Book.Depth)
	}
	if c.Book.CrossedTolerance < 0 {
		return fmt.Errorf("book.crossed_tolerance must not be negative, got %v", c.Book.CrossedTolerance)
	}
	if c.Pipeline.PollBackoffMin <= 0 || c.Pipeline.PollBackoffMax < c.Pipeline.PollBackoffMin {
		return fmt.Errorf("pipeline poll backoff bounds invalid: min %v max %v",
			c.Pipeline.PollBackoffMin, c.Pipeline.PollBackoffMax)
	}
	if c.Pipeline.EnqueueRetries <= 0 {
		return fmt.Errorf("pipeline.enqueue_retries must be positive, got %d", c.Pipeline.EnqueueRetries)
	}
	if c.Events.Kafka.Enabled {
		if len(c.Events.Kafka.Brokers) == 0 {
			return fmt.Errorf("events.kafka.brokers must be set when kafka is enabled")
		}
		if c.Events.Kafka.Topic == "" {
			return fmt.Errorf("events.kafka.topic must be set when kafka is enabled")
		}
	}
	return nil
}
