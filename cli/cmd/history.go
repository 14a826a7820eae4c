package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/bloomwatch/bloomwatch-stack/cli/internal/client"
	"github.com/bloomwatch/bloomwatch-stack/cli/pkg/output"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Browse prediction history",
	Long:  "List and inspect predictions the relay recorded in Postgres",
}

var historyListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List recorded predictions",
	RunE: func(cmd *cobra.Command, args []string) error {
		relay, err := relayClient(cmd)
		if err != nil {
			return err
		}

		page, _ := cmd.Flags().GetInt("page")
		limit, _ := cmd.Flags().GetInt("limit")
		outcome, _ := cmd.Flags().GetString("outcome")
		source, _ := cmd.Flags().GetString("source")

		resp, err := relay.ListPredictions(cmd.Context(), client.ListOptions{
			Page:    page,
			Limit:   limit,
			Outcome: outcome,
			Source:  source,
		})
		if err != nil {
			return fmt.Errorf("failed to list predictions: %w", err)
		}

		return output.Print(outputFormat(cmd), resp, func() {
			if len(resp.Data) == 0 {
				output.Info("No predictions found")
				return
			}

			table := output.NewTable([]string{"ID", "Created", "Source", "Outcome", "Status", "Duration"})
			for _, rec := range resp.Data {
				table.AddRow([]string{
					rec.ID,
					formatTime(&rec.CreatedAt),
					rec.Source,
					output.Outcome(rec.Outcome),
					strconv.Itoa(rec.StatusCode),
					fmt.Sprintf("%dms", rec.DurationMS),
				})
			}
			table.Render()

			p := resp.Pagination
			output.Info("\nPage %d, showing %d of %d", p.Page, len(resp.Data), p.Total)
		})
	},
}

var historyGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show one recorded prediction",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		relay, err := relayClient(cmd)
		if err != nil {
			return err
		}

		rec, err := relay.GetPrediction(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("failed to get prediction: %w", err)
		}

		return output.Print(outputFormat(cmd), rec, func() { renderRecord(rec) })
	},
}

func renderRecord(rec *client.PredictionRecord) {
	table := output.NewTable([]string{"Field", "Value"})
	table.AddRow([]string{"id", rec.ID})
	table.AddRow([]string{"request_id", rec.RequestID})
	table.AddRow([]string{"created_at", formatTime(&rec.CreatedAt)})
	table.AddRow([]string{"source", rec.Source})
	table.AddRow([]string{"client_ip", rec.ClientIP})
	table.AddRow([]string{"outcome", output.Outcome(rec.Outcome)})
	table.AddRow([]string{"status_code", strconv.Itoa(rec.StatusCode)})
	table.AddRow([]string{"exit_code", strconv.Itoa(rec.ExitCode)})
	table.AddRow([]string{"duration", fmt.Sprintf("%dms", rec.DurationMS)})
	if rec.Error != "" {
		table.AddRow([]string{"error", rec.Error})
	}
	if rec.Details != "" {
		table.AddRow([]string{"details", rec.Details})
	}
	if len(rec.Response) > 0 {
		table.AddRow([]string{"response", string(rec.Response)})
	}
	if len(rec.Request) > 0 {
		table.AddRow([]string{"request", string(rec.Request)})
	}
	table.Render()
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historyGetCmd)

	historyListCmd.Flags().Int("page", 1, "page number")
	historyListCmd.Flags().Int("limit", 20, "results per page")
	historyListCmd.Flags().String("outcome", "", "filter by outcome (success, runtime_error, no_output, ...)")
	historyListCmd.Flags().String("source", "", "filter by source (web, cli, api, unknown)")
}
