package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/bloomwatch/bloomwatch-stack/cli/internal/client"
	"github.com/bloomwatch/bloomwatch-stack/cli/internal/config"
	"github.com/bloomwatch/bloomwatch-stack/cli/pkg/output"
)

var (
	cfgFile string
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "bloomwatch",
	Short: "BloomWatch crop health CLI",
	Long: `bloomwatch is the command-line interface for the BloomWatch prediction relay.

Build crop health requests from field measurements, send them to the relay,
inspect prediction history and statistics, and follow outcomes live.`,
	Version:       "0.1.0",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		output.Error("%v", err)
		return err
	}
	return nil
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.bloomwatch/config.yaml)")
	rootCmd.PersistentFlags().String("profile", "", "profile to use (default: current profile)")
	rootCmd.PersistentFlags().StringP("output", "o", "", "output format: table, json, yaml (default from config)")
	rootCmd.PersistentFlags().String("relay-url", "", "relay base URL (overrides the profile)")
	rootCmd.PersistentFlags().Duration("timeout", 0, "request timeout (default from config)")
}

func initConfig() {
	var err error
	cfg, err = config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Could not load config: %v\n", err)
		cfg = config.Default()
	}
}

// activeProfile resolves --profile against the config and applies --relay-url.
func activeProfile(cmd *cobra.Command) (*config.Profile, error) {
	name, _ := cmd.Flags().GetString("profile")
	p, err := cfg.Resolve(name)
	if err != nil {
		return nil, err
	}
	if url, _ := cmd.Flags().GetString("relay-url"); url != "" {
		p.RelayURL = url
	}
	return p, nil
}

func relayClient(cmd *cobra.Command) (*client.RelayClient, error) {
	p, err := activeProfile(cmd)
	if err != nil {
		return nil, err
	}
	timeout, _ := cmd.Flags().GetDuration("timeout")
	if timeout <= 0 {
		timeout = cfg.Defaults.Timeout
	}
	return client.NewRelayClient(p.RelayURL, timeout), nil
}

func outputFormat(cmd *cobra.Command) string {
	if f, _ := cmd.Flags().GetString("output"); f != "" {
		return f
	}
	return cfg.Defaults.Output
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}
