// Package config loads the service configuration from a YAML file and
// applies defaults for anything left unset.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/chalkline/tabletpool/reserve"
)

// Config represents the overall application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Pool     PoolConfig     `yaml:"pool"`
	Blocks   []string       `yaml:"blocks"`
	Policy   PolicyConfig   `yaml:"policy"`
	LogLevel string         `yaml:"log_level"`
}

// ServerConfig holds the HTTP server configuration.
type ServerConfig struct {
	Port               int           `yaml:"port"`
	CORSAllowedOrigins []string      `yaml:"cors_allowed_origins"`
	RateLimitPerSec    float64       `yaml:"rate_limit_per_sec"`
	RateLimitBurst     int           `yaml:"rate_limit_burst"`
	CacheTTLSeconds    int           `yaml:"cache_ttl_seconds"`
	CacheTTL           time.Duration `yaml:"-"` // Ignored by YAML parser
}

// DatabaseConfig holds the SQLite configuration.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// PoolConfig sizes the fixed device pool.
type PoolConfig struct {
	Size int `yaml:"size"`
}

// PolicyConfig holds the booking policy knobs.
// AllowWeekends is phrased so the zero value keeps the school-days-only
// rule switched on.
type PolicyConfig struct {
	AllowWeekends bool `yaml:"allow_weekends"`
	MaxBatchSize  int  `yaml:"max_batch_size"`
}

// Default returns the stock configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads the configuration from the given path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port <= 0 {
		c.Server.Port = 8080
	}
	if c.Server.RateLimitPerSec <= 0 {
		c.Server.RateLimitPerSec = 10
	}
	if c.Server.RateLimitBurst <= 0 {
		c.Server.RateLimitBurst = 20
	}
	if c.Server.CacheTTLSeconds <= 0 {
		c.Server.CacheTTLSeconds = 30
	}
	c.Server.CacheTTL = time.Duration(c.Server.CacheTTLSeconds) * time.Second

	if c.Database.Path == "" {
		c.Database.Path = "./data/tabletpool.db"
	}
	if c.Pool.Size <= 0 {
		c.Pool.Size = 60
	}
	if len(c.Blocks) == 0 {
		c.Blocks = reserve.DefaultBlockNames()
	}
	if c.Policy.MaxBatchSize <= 0 {
		c.Policy.MaxBatchSize = reserve.DefaultMaxBatch
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

func (c *Config) validate() error {
	if c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if _, err := reserve.NewBlockSet(c.Blocks); err != nil {
		return fmt.Errorf("blocks: %w", err)
	}
	return nil
}

// BlockSet builds the block schedule from the configured names.
func (c *Config) BlockSet() (reserve.BlockSet, error) {
	return reserve.NewBlockSet(c.Blocks)
}

// ReservePolicy converts the config knobs into the engine policy.
func (c *Config) ReservePolicy() reserve.Policy {
	return reserve.Policy{
		WeekdaysOnly: !c.Policy.AllowWeekends,
		MaxBatch:     c.Policy.MaxBatchSize,
	}
}
