package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	DefaultRelayURL = "http://localhost:4000"
	DefaultNATSURL  = "nats://localhost:4222"
)

type Config struct {
	CurrentProfile string              `mapstructure:"current_profile" yaml:"current_profile"`
	Profiles       map[string]*Profile `mapstructure:"profiles" yaml:"profiles"`
	Defaults       Defaults            `mapstructure:"defaults" yaml:"defaults"`
	path           string
}

// Profile points the CLI at one relay deployment.
type Profile struct {
	RelayURL string `mapstructure:"relay_url" yaml:"relay_url"`
	NATSURL  string `mapstructure:"nats_url" yaml:"nats_url,omitempty"`
}

// Defaults apply when the active profile leaves a value unset.
type Defaults struct {
	RelayURL string        `mapstructure:"relay_url" yaml:"relay_url"`
	NATSURL  string        `mapstructure:"nats_url" yaml:"nats_url"`
	Output   string        `mapstructure:"output" yaml:"output"`
	Timeout  time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

func Default() *Config {
	return &Config{
		CurrentProfile: "default",
		Profiles:       make(map[string]*Profile),
		Defaults: Defaults{
			RelayURL: DefaultRelayURL,
			NATSURL:  DefaultNATSURL,
			Output:   "table",
			Timeout:  60 * time.Second,
		},
	}
}

// DefaultPath is ~/.bloomwatch/config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".bloomwatch", "config.yaml"), nil
}

// Load reads cfgFile (or the default path). A missing file yields defaults.
// BLOOMWATCH_RELAY_URL, BLOOMWATCH_NATS_URL, BLOOMWATCH_OUTPUT and
// BLOOMWATCH_TIMEOUT override the defaults section.
func Load(cfgFile string) (*Config, error) {
	if cfgFile == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		cfgFile = p
	}

	def := Default()
	v := viper.New()
	v.SetDefault("current_profile", def.CurrentProfile)
	v.SetDefault("defaults.relay_url", def.Defaults.RelayURL)
	v.SetDefault("defaults.nats_url", def.Defaults.NATSURL)
	v.SetDefault("defaults.output", def.Defaults.Output)
	v.SetDefault("defaults.timeout", def.Defaults.Timeout)

	v.SetEnvPrefix("BLOOMWATCH")
	for _, key := range []string{"relay_url", "nats_url", "output", "timeout"} {
		if err := v.BindEnv("defaults."+key, "BLOOMWATCH_"+strings.ToUpper(key)); err != nil {
			return nil, err
		}
	}

	v.SetConfigFile(cfgFile)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read config %s: %w", cfgFile, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", cfgFile, err)
	}
	if cfg.Profiles == nil {
		cfg.Profiles = make(map[string]*Profile)
	}
	cfg.path = cfgFile

	return cfg, nil
}

func (c *Config) Save() error {
	if c.path == "" {
		p, err := DefaultPath()
		if err != nil {
			return err
		}
		c.path = p
	}

	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(c.path, data, 0600)
}

// SaveProfile stores a profile and makes it current.
func (c *Config) SaveProfile(name, relayURL, natsURL string) error {
	if c.Profiles == nil {
		c.Profiles = make(map[string]*Profile)
	}

	c.Profiles[name] = &Profile{
		RelayURL: relayURL,
		NATSURL:  natsURL,
	}

	c.CurrentProfile = name
	return c.Save()
}

// Resolve returns the named profile (or the current one) with defaults
// filled in. An unknown name is an error; a missing current profile is not.
func (c *Config) Resolve(name string) (*Profile, error) {
	explicit := name != ""
	if !explicit {
		name = c.CurrentProfile
	}

	resolved := Profile{RelayURL: c.Defaults.RelayURL, NATSURL: c.Defaults.NATSURL}
	p, ok := c.Profiles[name]
	if !ok {
		if explicit && name != "default" {
			return nil, fmt.Errorf("profile '%s' not found", name)
		}
		return &resolved, nil
	}

	if p.RelayURL != "" {
		resolved.RelayURL = p.RelayURL
	}
	if p.NATSURL != "" {
		resolved.NATSURL = p.NATSURL
	}
	return &resolved, nil
}
