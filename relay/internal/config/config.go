package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/bloomwatch/bloomwatch-stack/common/database"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Scorer   ScorerConfig   `mapstructure:"scorer"`
	Web      WebConfig      `mapstructure:"web"`
	CORS     CORSConfig     `mapstructure:"cors"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Database DatabaseConfig `mapstructure:"database"`
	NATS     NATSConfig     `mapstructure:"nats"`
	Stats    StatsConfig    `mapstructure:"stats"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxBodyBytes    int64         `mapstructure:"max_body_bytes"`
}

// ScorerConfig describes the external prediction script.
type ScorerConfig struct {
	Executable     string        `mapstructure:"executable"`
	Script         string        `mapstructure:"script"`
	WorkDir        string        `mapstructure:"workdir"`
	Timeout        time.Duration `mapstructure:"timeout"`
	MaxOutputBytes int           `mapstructure:"max_output_bytes"`
	MaxConcurrent  int           `mapstructure:"max_concurrent"`
}

type WebConfig struct {
	StaticDir string `mapstructure:"static_dir"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type RedisConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
}

type DatabaseConfig struct {
	Enabled  bool                    `mapstructure:"enabled"`
	Postgres database.PostgresConfig `mapstructure:"postgres"`
}

type NATSConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	URL           string        `mapstructure:"url"`
	Username      string        `mapstructure:"username"`
	Password      string        `mapstructure:"password"`
	Token         string        `mapstructure:"token"`
	MaxReconnects int           `mapstructure:"max_reconnects"`
	ReconnectWait time.Duration `mapstructure:"reconnect_wait"`
}

// StatsConfig tunes the Redis outcome counters.
type StatsConfig struct {
	Prefix        string        `mapstructure:"prefix"`
	InstanceID    string        `mapstructure:"instance_id"`
	FlushInterval time.Duration `mapstructure:"flush_interval"`
}

func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("server.port", 4000)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "45s")
	v.SetDefault("server.idle_timeout", "60s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.max_body_bytes", 100*1024)
	v.SetDefault("scorer.executable", "python3")
	v.SetDefault("scorer.script", "Models/predict_crop_health.py")
	v.SetDefault("scorer.workdir", "")
	v.SetDefault("scorer.timeout", "30s")
	v.SetDefault("scorer.max_output_bytes", 1<<20)
	v.SetDefault("scorer.max_concurrent", 0)
	v.SetDefault("web.static_dir", "")
	v.SetDefault("cors.allowed_origins", []string{"*"})
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("database.enabled", false)
	v.SetDefault("database.postgres.host", "localhost")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.database", "bloomwatch")
	v.SetDefault("database.postgres.user", "bloomwatch")
	v.SetDefault("database.postgres.password", "")
	v.SetDefault("database.postgres.sslmode", "disable")
	v.SetDefault("database.postgres.max_conns", 10)
	v.SetDefault("database.postgres.min_conns", 1)
	v.SetDefault("nats.enabled", false)
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.username", "")
	v.SetDefault("nats.password", "")
	v.SetDefault("nats.token", "")
	v.SetDefault("nats.max_reconnects", -1)
	v.SetDefault("nats.reconnect_wait", "2s")
	v.SetDefault("stats.prefix", "bloomwatch")
	v.SetDefault("stats.instance_id", "")
	v.SetDefault("stats.flush_interval", "10s")

	// Read config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/bloomwatch/relay")
	}

	// Environment variables override (RELAY_SCORER_TIMEOUT, etc.)
	v.SetEnvPrefix("RELAY")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks the settings the relay cannot start without.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port))
	}
	if c.Server.MaxBodyBytes <= 0 {
		errs = append(errs, errors.New("server.max_body_bytes must be positive"))
	}
	if strings.TrimSpace(c.Scorer.Executable) == "" {
		errs = append(errs, errors.New("scorer.executable is required"))
	}
	if strings.TrimSpace(c.Scorer.Script) == "" {
		errs = append(errs, errors.New("scorer.script is required"))
	}
	if c.Scorer.Timeout <= 0 {
		errs = append(errs, errors.New("scorer.timeout must be positive"))
	}
	if c.Scorer.MaxOutputBytes <= 0 {
		errs = append(errs, errors.New("scorer.max_output_bytes must be positive"))
	}
	if c.Scorer.MaxConcurrent < 0 {
		errs = append(errs, errors.New("scorer.max_concurrent cannot be negative"))
	}
	if c.Redis.Enabled && c.Redis.URL == "" {
		errs = append(errs, errors.New("redis.url is required when redis is enabled"))
	}
	if c.NATS.Enabled && c.NATS.URL == "" {
		errs = append(errs, errors.New("nats.url is required when nats is enabled"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// Addr is the listen address for the HTTP server.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf(":%d", s.Port)
}
