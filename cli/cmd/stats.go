package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bloomwatch/bloomwatch-stack/cli/internal/client"
	"github.com/bloomwatch/bloomwatch-stack/cli/pkg/output"
)

// outcomeOrder is the relay's reporting order.
var outcomeOrder = []string{
	"success", "runtime_error", "no_output", "parse_error",
	"reported_error", "launch_error", "timeout", "canceled",
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show prediction outcome statistics",
	Long:  "Show outcome counters the relay keeps in Redis",
	RunE: func(cmd *cobra.Command, args []string) error {
		relay, err := relayClient(cmd)
		if err != nil {
			return err
		}

		stats, err := relay.Stats(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to get stats: %w", err)
		}

		return output.Print(outputFormat(cmd), stats, func() { renderStats(stats) })
	},
}

func renderStats(stats *client.Stats) {
	output.Info("Total predictions: %d (success rate %.1f%%)", stats.Total, stats.SuccessRate*100)
	output.Info("Last hour: %d  Last 24h: %d  Unique clients today: %d", stats.LastHour, stats.Last24h, stats.UniqueClientsToday)
	output.Info("Average duration: %.0f ms", stats.AvgDurationMS)
	if stats.LastPredictionAt != nil {
		output.Info("Last prediction: %s (%s)", formatTime(stats.LastPredictionAt), stats.LastOutcome)
	}

	table := output.NewTable([]string{"Outcome", "Total", "Today"})
	for _, outcome := range outcomeOrder {
		total, today := stats.ByOutcome[outcome], stats.Today[outcome]
		if total == 0 && today == 0 {
			continue
		}
		table.AddRow([]string{output.Outcome(outcome), fmt.Sprintf("%d", total), fmt.Sprintf("%d", today)})
	}
	table.Render()
}

func init() {
	rootCmd.AddCommand(statsCmd)
}
