package cmd

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/bloomwatch/bloomwatch-stack/cli/internal/seeder"
	"github.com/bloomwatch/bloomwatch-stack/cli/pkg/output"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Send randomized prediction requests",
	Long: `Generate plausible field measurements, send them to the relay and report
how the responses were classified.

Configuration cascade (priority order):
  1. Command-line flags
  2. ./seed.yaml (project directory)
  3. ~/.bloomwatch/seed.yaml (user directory)
  4. Built-in defaults

Examples:
  # 20 requests, 4 at a time
  bloomwatch seed

  # A reproducible run that also exercises the invalid-body path
  bloomwatch seed --count 200 --concurrency 8 --malformed-ratio 0.05 --seed 42`,
	RunE: runSeed,
}

func init() {
	rootCmd.AddCommand(seedCmd)

	seedCmd.Flags().String("seed-config", "", "seed config file (default: ./seed.yaml or ~/.bloomwatch/seed.yaml)")
	seedCmd.Flags().IntP("count", "c", 0, "number of requests to send")
	seedCmd.Flags().Int("concurrency", 0, "requests in flight at once")
	seedCmd.Flags().Duration("interval", 0, "pause between requests")
	seedCmd.Flags().Duration("date-spread", 0, "how far back observation dates reach")
	seedCmd.Flags().StringSlice("regions", nil, "restrict generated regions")
	seedCmd.Flags().Float64("malformed-ratio", 0, "share of requests sent with a broken JSON body")
	seedCmd.Flags().Int64("seed", 0, "random seed for a reproducible run")
}

func runSeed(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("seed-config")
	config, err := seeder.LoadConfig(path)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	flags := cmd.Flags()
	if flags.Changed("count") {
		config.Count, _ = flags.GetInt("count")
	}
	if flags.Changed("concurrency") {
		config.Concurrency, _ = flags.GetInt("concurrency")
	}
	if flags.Changed("interval") {
		config.Interval, _ = flags.GetDuration("interval")
	}
	if flags.Changed("date-spread") {
		config.DateSpread, _ = flags.GetDuration("date-spread")
	}
	if flags.Changed("regions") {
		config.Regions, _ = flags.GetStringSlice("regions")
	}
	if flags.Changed("malformed-ratio") {
		config.MalformedRatio, _ = flags.GetFloat64("malformed-ratio")
	}
	if flags.Changed("seed") {
		config.Seed, _ = flags.GetInt64("seed")
	}
	if err := config.Validate(); err != nil {
		return err
	}

	relay, err := relayClient(cmd)
	if err != nil {
		return err
	}

	format := outputFormat(cmd)
	runner := seeder.NewRunner(config, relay)
	if format == "table" || format == "" {
		step := max(config.Count/10, 1)
		runner.Progress = func(done, total int) {
			if done%step == 0 || done == total {
				output.Info("Progress: %d/%d", done, total)
			}
		}
	}

	report, runErr := runner.Run(cmd.Context())
	if report == nil {
		return runErr
	}

	summary := map[string]any{
		"sent":        report.Sent,
		"succeeded":   report.Succeeded(),
		"malformed":   report.Malformed,
		"transport":   report.Transport,
		"by_outcome":  report.ByOutcome,
		"duration_ms": report.Duration.Milliseconds(),
	}
	if err := output.Print(format, summary, func() { renderReport(report) }); err != nil {
		return err
	}
	return runErr
}

func renderReport(report *seeder.Report) {
	output.Success("Sent %d requests in %s", report.Sent, report.Duration.Round(time.Millisecond))
	if report.Malformed > 0 {
		output.Info("%d were deliberately malformed", report.Malformed)
	}
	if report.Transport > 0 {
		output.Warn("%d never got a response", report.Transport)
	}

	table := output.NewTable([]string{"Result", "Count"})
	for _, key := range report.Keys() {
		label := key
		if key == seeder.OutcomeSuccess {
			label = output.Outcome(key)
		}
		table.AddRow([]string{label, strconv.Itoa(report.ByOutcome[key])})
	}
	table.Render()
}
