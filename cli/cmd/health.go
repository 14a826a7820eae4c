package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/bloomwatch/bloomwatch-stack/cli/internal/client"
	"github.com/bloomwatch/bloomwatch-stack/cli/pkg/output"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check relay liveness and readiness",
	Long: `Call /healthz and /readyz on the relay and report each readiness check
(scorer, redis, postgres, nats). Exits non-zero when the relay is not ready.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		relay, err := relayClient(cmd)
		if err != nil {
			return err
		}

		if _, err := relay.Health(cmd.Context()); err != nil {
			return fmt.Errorf("relay is not responding: %w", err)
		}

		ready, err := relay.Ready(cmd.Context())
		if err != nil {
			return fmt.Errorf("readiness check failed: %w", err)
		}

		if err := output.Print(outputFormat(cmd), ready, func() { renderReadiness(ready) }); err != nil {
			return err
		}
		if ready.Status != "ready" {
			return fmt.Errorf("relay is %s", ready.Status)
		}
		return nil
	},
}

func renderReadiness(ready *client.Readiness) {
	if ready.Status == "ready" {
		output.Success("Relay is ready")
	} else {
		output.Warn("Relay is %s", ready.Status)
	}

	names := make([]string, 0, len(ready.Checks))
	for name := range ready.Checks {
		names = append(names, name)
	}
	sort.Strings(names)

	table := output.NewTable([]string{"Check", "Result"})
	for _, name := range names {
		result := ready.Checks[name]
		if result == "ok" {
			result = output.Outcome("success")
		}
		table.AddRow([]string{name, result})
	}
	table.Render()
}

func init() {
	rootCmd.AddCommand(healthCmd)
}
