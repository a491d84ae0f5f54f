// Package config loads the command configuration from built in defaults, an optional yaml file
// and GHG_ prefixed environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/aouyang1/ghg-forecaster"
	"github.com/aouyang1/ghg-forecaster/cache"
	"github.com/aouyang1/ghg-forecaster/etl"
	"github.com/aouyang1/ghg-forecaster/eurostat"
	"github.com/aouyang1/ghg-forecaster/logging"
	"github.com/aouyang1/ghg-forecaster/store/sqlstore"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

const EnvPrefix = "GHG"

type Config struct {
	Database DatabaseConfig     `yaml:"database" envconfig:"DATABASE"`
	Forecast forecaster.Options `yaml:"forecast" envconfig:"FORECAST"`
	ETL      etl.Options        `yaml:"etl" envconfig:"ETL"`
	Server   ServerConfig       `yaml:"server" envconfig:"SERVER"`
	Logging  logging.Config     `yaml:"logging" envconfig:"LOGGING"`
	Redis    RedisConfig        `yaml:"redis" envconfig:"REDIS"`
	Eurostat eurostat.Config    `yaml:"eurostat" envconfig:"EUROSTAT"`
}

type DatabaseConfig struct {
	Dialect string `yaml:"dialect" envconfig:"DIALECT" validate:"required,oneof=sqlite postgres"`
	DSN     string `yaml:"dsn" envconfig:"DSN" validate:"required"`

	// WaitInterval and WaitAttempts bound the retries of serve -wait
	WaitInterval time.Duration `yaml:"wait_interval" envconfig:"WAIT_INTERVAL" validate:"gte=0"`
	WaitAttempts int           `yaml:"wait_attempts" envconfig:"WAIT_ATTEMPTS" validate:"gte=1"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr" envconfig:"ADDR" validate:"required"`
	RequestTimeout  time.Duration `yaml:"request_timeout" envconfig:"REQUEST_TIMEOUT" validate:"gte=0"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT" validate:"gte=0"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT" validate:"gte=0"`
}

// RedisConfig enables the response cache when URL is set
type RedisConfig struct {
	URL     string        `yaml:"url" envconfig:"URL" validate:"omitempty,url"`
	Prefix  string        `yaml:"prefix" envconfig:"PREFIX"`
	Channel string        `yaml:"channel" envconfig:"CHANNEL"`
	TTL     time.Duration `yaml:"ttl" envconfig:"TTL" validate:"gte=0"`
}

func (r RedisConfig) CacheOptions() *cache.Options {
	return &cache.Options{
		Prefix:  r.Prefix,
		Channel: r.Channel,
		TTL:     r.TTL,
	}
}

func Default() *Config {
	cacheOpt := cache.NewDefaultOptions()
	return &Config{
		Database: DatabaseConfig{
			Dialect:      string(sqlstore.DialectSQLite),
			DSN:          "emissions.db",
			WaitInterval: 2 * time.Second,
			WaitAttempts: 30,
		},
		Forecast: *forecaster.NewDefaultOptions(),
		ETL:      *etl.NewDefaultOptions(),
		Server: ServerConfig{
			Addr:            ":8000",
			RequestTimeout:  30 * time.Second,
			ReadTimeout:     15 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Logging: logging.NewDefaultConfig(),
		Redis: RedisConfig{
			Prefix:  cacheOpt.Prefix,
			Channel: cacheOpt.Channel,
			TTL:     cacheOpt.TTL,
		},
		Eurostat: eurostat.NewDefaultConfig(),
	}
}

// Load applies the yaml file at path, when not empty, and then the environment over the defaults
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("unable to read config file, %w", err)
		}
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, fmt.Errorf("unable to parse config file %s, %w", path, err)
		}
	}
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("unable to load config from env, %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the struct tags and normalizes the forecast and etl options
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config, %w", err)
	}
	forecast, err := c.Forecast.Validate()
	if err != nil {
		return fmt.Errorf("invalid forecast config, %w", err)
	}
	c.Forecast = *forecast

	etlOpt, err := c.ETL.Validate()
	if err != nil {
		return fmt.Errorf("invalid etl config, %w", err)
	}
	c.ETL = *etlOpt
	return nil
}

// LoadEnvFiles sets variables from the dotenv files that exist, leaving variables already set
func LoadEnvFiles(files ...string) error {
	for _, f := range files {
		err := godotenv.Load(f)
		if err == nil || errors.Is(err, fs.ErrNotExist) {
			continue
		}
		return fmt.Errorf("unable to load %s, %w", f, err)
	}
	return nil
}
