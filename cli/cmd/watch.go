package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bloomwatch/bloomwatch-stack/cli/internal/client"
	"github.com/bloomwatch/bloomwatch-stack/cli/pkg/output"
	"github.com/bloomwatch/bloomwatch-stack/common/messaging"
	natsclient "github.com/bloomwatch/bloomwatch-stack/common/messaging/nats"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow prediction outcomes live",
	Long: `Subscribe to the relay's prediction events on NATS and print each outcome
as it happens. Stops on Ctrl-C or after --count events.`,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().String("nats-url", "", "NATS server URL (overrides the profile)")
	watchCmd.Flags().Bool("failed-only", false, "only show failed predictions")
	watchCmd.Flags().Int("count", 0, "exit after this many events (0 means run until interrupted)")
}

func runWatch(cmd *cobra.Command, args []string) error {
	p, err := activeProfile(cmd)
	if err != nil {
		return err
	}
	if url, _ := cmd.Flags().GetString("nats-url"); url != "" {
		p.NATSURL = url
	}

	natsCfg := natsclient.DefaultConfig()
	natsCfg.URL = p.NATSURL
	natsCfg.Name = "bloomwatch-cli"
	nc, err := natsclient.NewClient(natsCfg)
	if err != nil {
		return err
	}
	defer nc.Close()

	subject := messaging.SubjectPredictionsAll
	if failedOnly, _ := cmd.Flags().GetBool("failed-only"); failedOnly {
		subject = messaging.SubjectPredictionsFailed
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	limit, _ := cmd.Flags().GetInt("count")
	handler := newEventPrinter(outputFormat(cmd), limit, stop)

	if _, err := nc.Subscribe(subject, handler); err != nil {
		return err
	}
	output.Info("Watching %s on %s (Ctrl-C to stop)", subject, p.NATSURL)

	<-ctx.Done()
	return nil
}

// newEventPrinter prints each prediction event and calls done once limit
// events have been printed. A limit of 0 never calls done.
func newEventPrinter(format string, limit int, done context.CancelFunc) messaging.MessageHandler {
	var seen atomic.Int64

	return func(_ context.Context, msg *messaging.Message) error {
		rec, err := decodeEvent(msg)
		if err != nil {
			return err
		}

		switch strings.ToLower(format) {
		case "json":
			data, err := json.Marshal(rec)
			if err != nil {
				return err
			}
			fmt.Fprintln(output.Stdout, string(data))
		case "yaml":
			fmt.Fprintln(output.Stdout, "---")
			if err := output.YAML(rec); err != nil {
				return err
			}
		default:
			line := fmt.Sprintf("%s  %-14s  %d  %5dms  %s",
				formatTime(&rec.CreatedAt), output.Outcome(rec.Outcome), rec.StatusCode, rec.DurationMS, rec.ID)
			if rec.Error != "" {
				line += "  " + rec.Error
			}
			fmt.Fprintln(output.Stdout, line)
		}

		if limit > 0 && seen.Add(1) >= int64(limit) {
			done()
		}
		return nil
	}
}

func decodeEvent(msg *messaging.Message) (*client.PredictionRecord, error) {
	var rec client.PredictionRecord
	if err := json.Unmarshal(msg.Data, &rec); err != nil {
		return nil, fmt.Errorf("decode event on %s: %w", msg.Subject, err)
	}
	if rec.RequestID == "" {
		rec.RequestID = msg.Metadata[messaging.HeaderRequestID]
	}
	return &rec, nil
}
