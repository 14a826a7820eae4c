package seeder

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/bloomwatch/bloomwatch-stack/cli/internal/features"
)

// Config controls a seeding run.
type Config struct {
	// Count is the number of requests to send.
	Count int `mapstructure:"count" yaml:"count"`
	// Concurrency caps in-flight requests.
	Concurrency int `mapstructure:"concurrency" yaml:"concurrency"`
	// Interval is the pause between starting two requests.
	Interval time.Duration `mapstructure:"interval" yaml:"interval"`
	// DateSpread is how far back request dates reach from now.
	DateSpread time.Duration `mapstructure:"date_spread" yaml:"date_spread"`
	// Regions restricts generated regions. Empty means all of them.
	Regions []string `mapstructure:"regions" yaml:"regions"`
	// MalformedRatio is the share of requests sent with a broken JSON body.
	MalformedRatio float64 `mapstructure:"malformed_ratio" yaml:"malformed_ratio"`
	// Seed makes a run reproducible. Zero picks a time-based seed.
	Seed int64 `mapstructure:"seed" yaml:"seed"`
}

// LoadConfig loads configuration with cascade: flags > ./seed.yaml > ~/.bloomwatch/seed.yaml > defaults.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("seed")
	v.SetConfigType("yaml")
	v.SetEnvPrefix("BLOOMWATCH_SEED")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".bloomwatch"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("count", 20)
	v.SetDefault("concurrency", 4)
	v.SetDefault("interval", 0)
	v.SetDefault("date_spread", 365*24*time.Hour)
	v.SetDefault("regions", []string{})
	v.SetDefault("malformed_ratio", 0.0)
	v.SetDefault("seed", 0)
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	var errs []error

	if c.Count < 1 {
		errs = append(errs, fmt.Errorf("count must be at least 1, got %d", c.Count))
	}
	if c.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("concurrency must be at least 1, got %d", c.Concurrency))
	}
	if c.Interval < 0 {
		errs = append(errs, errors.New("interval must not be negative"))
	}
	if c.DateSpread < 0 {
		errs = append(errs, errors.New("date_spread must not be negative"))
	}
	if c.MalformedRatio < 0 || c.MalformedRatio > 1 {
		errs = append(errs, fmt.Errorf("malformed_ratio must be between 0 and 1, got %g", c.MalformedRatio))
	}
	for _, r := range c.Regions {
		if _, err := features.ParseRegion(r); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// ParsedRegions returns Regions as feature regions, or every region when empty.
func (c *Config) ParsedRegions() []features.Region {
	if len(c.Regions) == 0 {
		return features.Regions
	}
	out := make([]features.Region, 0, len(c.Regions))
	for _, r := range c.Regions {
		if region, err := features.ParseRegion(r); err == nil {
			out = append(out, region)
		}
	}
	return out
}
