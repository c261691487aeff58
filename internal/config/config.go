// Package config loads coordinator configuration from a YAML file with an
// optional .env overlay. Environment variables referenced in the YAML are
// expanded before parsing, so secrets like a NATS URL stay out of the file.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"git.home.luguber.info/inful/agentcoord/internal/errors"
	"git.home.luguber.info/inful/agentcoord/internal/lock"
	"git.home.luguber.info/inful/agentcoord/internal/retry"
)

// Config is the full coordinator configuration.
type Config struct {
	StateDir  string        `yaml:"state_dir"`
	RulesFile string        `yaml:"rules_file,omitempty"` // empty means the built-in pipeline
	Lock      LockConfig    `yaml:"lock"`
	Watch     WatchConfig   `yaml:"watch"`
	Janitor   JanitorConfig `yaml:"janitor"`
	Metrics   MetricsConfig `yaml:"metrics"`
}

// LockConfig sets lease defaults.
type LockConfig struct {
	TTL        time.Duration `yaml:"ttl"`
	MaxRetries int           `yaml:"max_retries"`
	Backoff    string        `yaml:"backoff"` // fixed, linear, exponential
	Initial    time.Duration `yaml:"initial_delay"`
	MaxDelay   time.Duration `yaml:"max_delay"`
}

// WatchConfig controls the cross-process watcher and the optional NATS fanout.
type WatchConfig struct {
	Enabled       bool   `yaml:"enabled"`
	NATSURL       string `yaml:"nats_url,omitempty"`
	SubjectPrefix string `yaml:"subject_prefix,omitempty"`
}

// JanitorConfig controls the periodic lock sweep.
type JanitorConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
}

// MetricsConfig controls the Prometheus recorder.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen,omitempty"`
}

// Load reads the config file, applying the .env overlay, env expansion,
// defaults, and validation.
func Load(configPath string) (*Config, error) {
	// Existing process environment wins over .env values.
	for _, envPath := range []string{".env", ".env.local"} {
		if _, err := os.Stat(envPath); err == nil {
			if err := godotenv.Load(envPath); err == nil {
				break
			}
		}
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, errors.ConfigNotFound(configPath)
	}
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, errors.FileReadError(configPath, err)
	}

	expanded := os.ExpandEnv(string(data))
	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, errors.Wrap(err, errors.CategoryConfig, errors.SeverityError, "failed to unmarshal config")
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.StateDir == "" {
		c.StateDir = "./state"
	}
	if c.Lock.TTL == 0 {
		c.Lock.TTL = lock.DefaultTTL
	}
	if c.Lock.Backoff == "" {
		c.Lock.Backoff = string(retry.BackoffExponential)
	}
	if c.Lock.Initial == 0 {
		c.Lock.Initial = 50 * time.Millisecond
	}
	if c.Lock.MaxDelay == 0 {
		c.Lock.MaxDelay = 2 * time.Second
	}
	if c.Lock.MaxRetries == 0 {
		c.Lock.MaxRetries = 10
	}
	if c.Watch.SubjectPrefix == "" {
		c.Watch.SubjectPrefix = "agentcoord.state"
	}
	if c.Janitor.Interval == 0 {
		c.Janitor.Interval = 5 * time.Minute
	}
	if c.Metrics.Listen == "" {
		c.Metrics.Listen = ":9464"
	}
}

// Validate rejects configurations the coordinator cannot run with.
func (c *Config) Validate() error {
	if c.StateDir == "" {
		return errors.ConfigRequired("state_dir")
	}
	if c.Lock.TTL <= 0 {
		return errors.ValidationFailed("lock.ttl", "must be positive")
	}
	if c.Lock.MaxRetries < 0 {
		return errors.ValidationFailed("lock.max_retries", "must not be negative")
	}
	switch retry.BackoffMode(c.Lock.Backoff) {
	case retry.BackoffFixed, retry.BackoffLinear, retry.BackoffExponential:
	default:
		return errors.ValidationFailed("lock.backoff", fmt.Sprintf("unknown mode %q", c.Lock.Backoff))
	}
	if c.Watch.Enabled && c.Watch.NATSURL == "" {
		return errors.ConfigRequired("watch.nats_url")
	}
	if c.Janitor.Enabled && c.Janitor.Interval <= 0 {
		return errors.ValidationFailed("janitor.interval", "must be positive")
	}
	return nil
}

// LockOptions converts the lock section into lease options.
func (c *Config) LockOptions() lock.Options {
	return lock.Options{
		TTL:    c.Lock.TTL,
		Policy: retry.NewPolicy(retry.BackoffMode(c.Lock.Backoff), c.Lock.Initial, c.Lock.MaxDelay, c.Lock.MaxRetries),
	}
}
