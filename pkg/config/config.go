package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment"`
	Logging     struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
		Output string `yaml:"output"`
	} `yaml:"logging"`
	Server struct {
		Port            int           `yaml:"port"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
		RateLimit       float64       `yaml:"rate_limit"` // requests/sec per client, 0 disables
		RateBurst       int           `yaml:"rate_burst"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`
	} `yaml:"metrics"`
	Storage struct {
		DataDir      string `yaml:"data_dir"`
		RawDir       string `yaml:"raw_dir"`
		ProcessedDir string `yaml:"processed_dir"`
		ModelDir     string `yaml:"model_dir"`
	} `yaml:"storage"`
	Queue struct {
		Backend    string        `yaml:"backend"` // memory or redis
		Workers    int           `yaml:"workers"`
		QueueSize  int           `yaml:"queue_size"`
		RetryLimit int           `yaml:"retry_limit"`
		RetryDelay time.Duration `yaml:"retry_delay"`
		Redis      struct {
			Addr      string `yaml:"addr"`
			Password  string `yaml:"password"`
			DB        int    `yaml:"db"`
			KeyPrefix string `yaml:"key_prefix"`
		} `yaml:"redis"`
	} `yaml:"queue"`
	Training struct {
		TestFraction       float64 `yaml:"test_fraction"`
		ValidationFraction float64 `yaml:"validation_fraction"`
		SearchTrials       int     `yaml:"search_trials"`
		ModelNamePrefix    string  `yaml:"model_name_prefix"`
		ARIMA              struct {
			P int `yaml:"p"`
			D int `yaml:"d"`
			Q int `yaml:"q"`
		} `yaml:"arima"`
	} `yaml:"training"`
	Serving struct {
		Stage string `yaml:"stage"`
	} `yaml:"serving"`
	Monitoring struct {
		Enabled        bool          `yaml:"enabled"`
		CheckInterval  time.Duration `yaml:"check_interval"`
		DriftThreshold float64       `yaml:"drift_threshold"`
		MAPEThreshold  float64       `yaml:"mape_threshold"`
		HealthURL      string        `yaml:"health_url"`
		HealthTimeout  time.Duration `yaml:"health_timeout"`
		StopGrace      time.Duration `yaml:"stop_grace"`
	} `yaml:"monitoring"`
	Alerting struct {
		Kafka struct {
			Enabled bool     `yaml:"enabled"`
			Brokers []string `yaml:"brokers"`
			Topic   string   `yaml:"topic"`
		} `yaml:"kafka"`
	} `yaml:"alerting"`
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	c.applyDefaults()

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("DATA_DIR"); v != "" {
		c.Storage.DataDir = v
	}
	if v := os.Getenv("QUEUE_BACKEND"); v != "" {
		c.Queue.Backend = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Queue.Redis.Addr = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Alerting.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("KAFKA_ALERT_TOPIC"); v != "" {
		c.Alerting.Kafka.Topic = v
	}

	return c, nil
}

func (c *Config) applyDefaults() {
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Storage.DataDir == "" {
		c.Storage.DataDir = "data"
	}
	if c.Storage.RawDir == "" {
		c.Storage.RawDir = c.Storage.DataDir + "/raw"
	}
	if c.Storage.ProcessedDir == "" {
		c.Storage.ProcessedDir = c.Storage.DataDir + "/processed"
	}
	if c.Storage.ModelDir == "" {
		c.Storage.ModelDir = c.Storage.DataDir + "/models"
	}
	if c.Queue.Backend == "" {
		c.Queue.Backend = "memory"
	}
	if c.Queue.Workers <= 0 {
		c.Queue.Workers = 2
	}
	if c.Queue.QueueSize <= 0 {
		c.Queue.QueueSize = 64
	}
	if c.Training.TestFraction == 0 {
		c.Training.TestFraction = 0.2
	}
	if c.Training.ValidationFraction == 0 {
		c.Training.ValidationFraction = 0.1
	}
	if c.Training.SearchTrials == 0 {
		c.Training.SearchTrials = 10
	}
	if c.Training.ARIMA.P == 0 && c.Training.ARIMA.D == 0 && c.Training.ARIMA.Q == 0 {
		c.Training.ARIMA.P, c.Training.ARIMA.D, c.Training.ARIMA.Q = 5, 1, 0
	}
	if c.Serving.Stage == "" {
		c.Serving.Stage = "None"
	}
	if c.Monitoring.CheckInterval == 0 {
		c.Monitoring.CheckInterval = time.Hour
	}
	if c.Monitoring.DriftThreshold == 0 {
		c.Monitoring.DriftThreshold = 0.05
	}
	if c.Monitoring.MAPEThreshold == 0 {
		c.Monitoring.MAPEThreshold = 0.15
	}
	if c.Monitoring.HealthTimeout == 0 {
		c.Monitoring.HealthTimeout = 5 * time.Second
	}
	if c.Monitoring.StopGrace == 0 {
		c.Monitoring.StopGrace = 5 * time.Second
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if c.Queue.Backend != "memory" && c.Queue.Backend != "redis" {
		return fmt.Errorf("queue.backend must be 'memory' or 'redis', got '%s'", c.Queue.Backend)
	}
	if c.Queue.Backend == "redis" && c.Queue.Redis.Addr == "" {
		return fmt.Errorf("queue.redis.addr is required for the redis backend")
	}
	if c.Training.TestFraction <= 0 || c.Training.TestFraction >= 1 {
		return fmt.Errorf("training.test_fraction must be in (0,1)")
	}
	if c.Training.ValidationFraction < 0 || c.Training.TestFraction+c.Training.ValidationFraction >= 1 {
		return fmt.Errorf("training.test_fraction + validation_fraction must be < 1")
	}
	if c.Alerting.Kafka.Enabled && len(c.Alerting.Kafka.Brokers) == 0 {
		return fmt.Errorf("alerting.kafka.brokers cannot be empty when the kafka sink is enabled")
	}
	return nil
}
