package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds runtime configuration for the facilitywatch service.
type Config struct {
	LogLevel   string           `mapstructure:"log_level"`
	HTTP       HTTPConfig       `mapstructure:"http"`
	Simulation SimulationConfig `mapstructure:"simulation"`
	History    HistoryConfig    `mapstructure:"history"`
	Kafka      KafkaConfig      `mapstructure:"kafka"`
	Storage    StorageConfig    `mapstructure:"storage"`
}

type HTTPConfig struct {
	Addr         string        `mapstructure:"addr"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// SimulationConfig drives the scheduler and the alert generator
type SimulationConfig struct {
	DriftInterval           time.Duration `mapstructure:"drift_interval"`
	AlertInterval           time.Duration `mapstructure:"alert_interval"`
	DriftStep               float64       `mapstructure:"drift_step"`
	AlertProbability        float64       `mapstructure:"alert_probability"`
	HighSeverityProbability float64       `mapstructure:"high_severity_probability"`
	HistoryProbability      float64       `mapstructure:"history_probability"`
	DeriveStatus            bool          `mapstructure:"derive_status"`
	// Seed of 0 seeds from the clock
	Seed      uint64 `mapstructure:"seed"`
	FleetFile string `mapstructure:"fleet_file"`
}

// HistoryConfig sets the default window for synthesized sensor history
type HistoryConfig struct {
	WindowHours int `mapstructure:"window_hours"`
	Points      int `mapstructure:"points"`
}

// Window returns the history window as a duration
func (h HistoryConfig) Window() time.Duration {
	return time.Duration(h.WindowHours) * time.Hour
}

type KafkaConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Brokers  []string       `mapstructure:"brokers"`
	Topic    string         `mapstructure:"topic"`
	Producer ProducerConfig `mapstructure:"producer"`
	// QueueSize bounds the alert envelopes waiting for the worker pool
	QueueSize int `mapstructure:"queue_size"`
}

// ProducerConfig holds Kafka producer tuning
type ProducerConfig struct {
	PoolSize     int           `mapstructure:"pool_size"`
	BatchSize    int           `mapstructure:"batch_size"`
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	RequiredAcks int           `mapstructure:"required_acks"`
	MaxRetries   int           `mapstructure:"max_retries"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
	Compression  string        `mapstructure:"compression"`
}

type StorageConfig struct {
	// SnapshotPath of "" disables persistence
	SnapshotPath string `mapstructure:"snapshot_path"`
	// SnapshotInterval of 0 saves only on shutdown
	SnapshotInterval time.Duration `mapstructure:"snapshot_interval"`
}

// Default returns a sensible default config for local dev.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		HTTP: HTTPConfig{
			Addr:         ":8080",
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Simulation: SimulationConfig{
			DriftInterval:           5 * time.Second,
			AlertInterval:           30 * time.Second,
			DriftStep:               2.5,
			AlertProbability:        0.15,
			HighSeverityProbability: 0.3,
			HistoryProbability:      0.5,
		},
		History: HistoryConfig{
			WindowHours: 24,
			Points:      96,
		},
		Kafka: KafkaConfig{
			Brokers:   []string{"localhost:9092"},
			Topic:     "facility-alerts",
			QueueSize: 1000,
			Producer: ProducerConfig{
				PoolSize:     4,
				BatchSize:    100,
				BatchTimeout: 100 * time.Millisecond,
				WriteTimeout: 10 * time.Second,
				RequiredAcks: 1,
				MaxRetries:   3,
				RetryBackoff: 100 * time.Millisecond,
				Compression:  "snappy",
			},
		},
		Storage: StorageConfig{
			SnapshotInterval: time.Minute,
		},
	}
}

// Load reads an optional YAML file at path and FACILITYWATCH_* environment
// overrides on top of Default.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	v.SetEnvPrefix("FACILITYWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// AutomaticEnv only resolves keys viper already knows, so every key gets an
// explicit default.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("log_level", d.LogLevel)

	v.SetDefault("http.addr", d.HTTP.Addr)
	v.SetDefault("http.read_timeout", d.HTTP.ReadTimeout)
	v.SetDefault("http.write_timeout", d.HTTP.WriteTimeout)
	v.SetDefault("http.idle_timeout", d.HTTP.IdleTimeout)

	v.SetDefault("simulation.drift_interval", d.Simulation.DriftInterval)
	v.SetDefault("simulation.alert_interval", d.Simulation.AlertInterval)
	v.SetDefault("simulation.drift_step", d.Simulation.DriftStep)
	v.SetDefault("simulation.alert_probability", d.Simulation.AlertProbability)
	v.SetDefault("simulation.high_severity_probability", d.Simulation.HighSeverityProbability)
	v.SetDefault("simulation.history_probability", d.Simulation.HistoryProbability)
	v.SetDefault("simulation.derive_status", d.Simulation.DeriveStatus)
	v.SetDefault("simulation.seed", d.Simulation.Seed)
	v.SetDefault("simulation.fleet_file", d.Simulation.FleetFile)

	v.SetDefault("history.window_hours", d.History.WindowHours)
	v.SetDefault("history.points", d.History.Points)

	v.SetDefault("kafka.enabled", d.Kafka.Enabled)
	v.SetDefault("kafka.brokers", d.Kafka.Brokers)
	v.SetDefault("kafka.topic", d.Kafka.Topic)
	v.SetDefault("kafka.queue_size", d.Kafka.QueueSize)
	v.SetDefault("kafka.producer.pool_size", d.Kafka.Producer.PoolSize)
	v.SetDefault("kafka.producer.batch_size", d.Kafka.Producer.BatchSize)
	v.SetDefault("kafka.producer.batch_timeout", d.Kafka.Producer.BatchTimeout)
	v.SetDefault("kafka.producer.write_timeout", d.Kafka.Producer.WriteTimeout)
	v.SetDefault("kafka.producer.required_acks", d.Kafka.Producer.RequiredAcks)
	v.SetDefault("kafka.producer.max_retries", d.Kafka.Producer.MaxRetries)
	v.SetDefault("kafka.producer.retry_backoff", d.Kafka.Producer.RetryBackoff)
	v.SetDefault("kafka.producer.compression", d.Kafka.Producer.Compression)

	v.SetDefault("storage.snapshot_path", d.Storage.SnapshotPath)
	v.SetDefault("storage.snapshot_interval", d.Storage.SnapshotInterval)
}

// Validate checks the values the simulation cannot run without
func (c *Config) Validate() error {
	var errs []error

	if c.Simulation.DriftInterval <= 0 {
		errs = append(errs, errors.New("simulation.drift_interval must be positive"))
	}
	if c.Simulation.AlertInterval <= 0 {
		errs = append(errs, errors.New("simulation.alert_interval must be positive"))
	}
	if c.Simulation.DriftStep <= 0 {
		errs = append(errs, errors.New("simulation.drift_step must be positive"))
	}
	for name, p := range map[string]float64{
		"simulation.alert_probability":         c.Simulation.AlertProbability,
		"simulation.high_severity_probability": c.Simulation.HighSeverityProbability,
		"simulation.history_probability":       c.Simulation.HistoryProbability,
	} {
		if p < 0 || p > 1 {
			errs = append(errs, fmt.Errorf("%s must be within [0,1], got %v", name, p))
		}
	}
	if c.History.WindowHours <= 0 {
		errs = append(errs, errors.New("history.window_hours must be positive"))
	}
	if c.History.Points <= 0 {
		errs = append(errs, errors.New("history.points must be positive"))
	}
	if c.Storage.SnapshotInterval < 0 {
		errs = append(errs, errors.New("storage.snapshot_interval must not be negative"))
	}
	if c.Kafka.Enabled {
		if len(c.Kafka.Brokers) == 0 {
			errs = append(errs, errors.New("kafka.brokers is required when kafka is enabled"))
		}
		if c.Kafka.Topic == "" {
			errs = append(errs, errors.New("kafka.topic is required when kafka is enabled"))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
