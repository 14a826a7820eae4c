package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "default", cfg.CurrentProfile)
	assert.NotNil(t, cfg.Profiles)
	assert.Empty(t, cfg.Profiles)
	assert.Equal(t, "http://localhost:4000", cfg.Defaults.RelayURL)
	assert.Equal(t, "nats://localhost:4222", cfg.Defaults.NATSURL)
	assert.Equal(t, "table", cfg.Defaults.Output)
	assert.Equal(t, 60*time.Second, cfg.Defaults.Timeout)
}

func TestLoad_NoConfigFile(t *testing.T) {
	cfg, err := Load("/nonexistent/path/config.yaml")
	require.NoError(t, err)

	assert.Equal(t, "default", cfg.CurrentProfile)
	assert.Equal(t, DefaultRelayURL, cfg.Defaults.RelayURL)
	assert.NotNil(t, cfg.Profiles)
}

func TestLoad_WithConfigFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `current_profile: field
profiles:
  field:
    relay_url: https://relay.bloomwatch.example
    nats_url: nats://bus.bloomwatch.example:4222
defaults:
  output: json
  timeout: 2m
`
	require.NoError(t, os.WriteFile(configPath, []byte(configContent), 0600))

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, "field", cfg.CurrentProfile)
	require.Contains(t, cfg.Profiles, "field")
	assert.Equal(t, "https://relay.bloomwatch.example", cfg.Profiles["field"].RelayURL)
	assert.Equal(t, "json", cfg.Defaults.Output)
	assert.Equal(t, 2*time.Minute, cfg.Defaults.Timeout)
	// Untouched defaults survive a partial file
	assert.Equal(t, DefaultRelayURL, cfg.Defaults.RelayURL)
}

func TestLoad_InvalidYAML(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("profiles: [[[\n"), 0600))

	_, err := Load(configPath)
	assert.Error(t, err)
}

func TestLoad_WithEnvironmentOverrides(t *testing.T) {
	t.Setenv("BLOOMWATCH_RELAY_URL", "http://env-relay:9000")
	t.Setenv("BLOOMWATCH_NATS_URL", "nats://env-bus:4333")
	t.Setenv("BLOOMWATCH_OUTPUT", "yaml")
	t.Setenv("BLOOMWATCH_TIMEOUT", "5s")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "http://env-relay:9000", cfg.Defaults.RelayURL)
	assert.Equal(t, "nats://env-bus:4333", cfg.Defaults.NATSURL)
	assert.Equal(t, "yaml", cfg.Defaults.Output)
	assert.Equal(t, 5*time.Second, cfg.Defaults.Timeout)
}

func TestSave(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, ".bloomwatch", "config.yaml")

	cfg := Default()
	cfg.path = configPath
	cfg.CurrentProfile = "test-profile"
	cfg.Defaults.Timeout = 90 * time.Second

	require.NoError(t, cfg.Save())
	assert.FileExists(t, configPath)

	dirInfo, err := os.Stat(filepath.Dir(configPath))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0700), dirInfo.Mode().Perm())

	fileInfo, err := os.Stat(configPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), fileInfo.Mode().Perm())

	loadedCfg, err := Load(configPath)
	require.NoError(t, err)
	assert.Equal(t, "test-profile", loadedCfg.CurrentProfile)
	assert.Equal(t, 90*time.Second, loadedCfg.Defaults.Timeout)
}

func TestSaveProfile(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")

	cfg := Default()
	cfg.path = configPath

	require.NoError(t, cfg.SaveProfile("staging", "https://staging-relay.example.com", ""))
	require.NoError(t, cfg.SaveProfile("prod", "https://relay.example.com", "nats://bus.example.com:4222"))

	assert.Contains(t, cfg.Profiles, "staging")
	assert.Equal(t, "prod", cfg.CurrentProfile)

	loadedCfg, err := Load(configPath)
	require.NoError(t, err)
	assert.Contains(t, loadedCfg.Profiles, "staging")
	assert.Contains(t, loadedCfg.Profiles, "prod")
	assert.Equal(t, "prod", loadedCfg.CurrentProfile)
}

func TestResolve(t *testing.T) {
	cfg := Default()
	cfg.Profiles["field"] = &Profile{RelayURL: "https://field-relay.example.com"}
	cfg.Profiles["bus"] = &Profile{RelayURL: "https://bus-relay.example.com", NATSURL: "nats://bus:4222"}
	cfg.CurrentProfile = "field"

	tests := []struct {
		name         string
		profileName  string
		wantErr      bool
		wantRelayURL string
		wantNATSURL  string
	}{
		{
			name:         "current profile with empty name",
			profileName:  "",
			wantRelayURL: "https://field-relay.example.com",
			wantNATSURL:  DefaultNATSURL,
		},
		{
			name:         "explicit profile",
			profileName:  "bus",
			wantRelayURL: "https://bus-relay.example.com",
			wantNATSURL:  "nats://bus:4222",
		},
		{
			name:         "implicit default profile falls back to defaults",
			profileName:  "default",
			wantRelayURL: DefaultRelayURL,
			wantNATSURL:  DefaultNATSURL,
		},
		{
			name:        "non-existent profile",
			profileName: "nonexistent",
			wantErr:     true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			profile, err := cfg.Resolve(tt.profileName)
			if tt.wantErr {
				assert.Error(t, err)
				assert.Nil(t, profile)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantRelayURL, profile.RelayURL)
			assert.Equal(t, tt.wantNATSURL, profile.NATSURL)
		})
	}
}
