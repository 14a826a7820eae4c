package cmd

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/bloomwatch/bloomwatch-stack/cli/internal/features"
	"github.com/bloomwatch/bloomwatch-stack/cli/pkg/output"
)

var predictCmd = &cobra.Command{
	Use:   "predict",
	Short: "Request a crop health prediction",
	Long: `Send a crop health request to the relay and print the scorer's answer.

The request body comes from --file (JSON or YAML, "-" for stdin) or, without
--file, from the measurement flags. --set key=value overrides single fields
in either case.

Examples:
  # Sample values for South Africa in spring
  bloomwatch predict

  # Measured values
  bloomwatch predict --date 2026-03-14 --region west-africa --season summer --ndvi 0.31 --rainfall 0

  # A saved request with one field changed
  bloomwatch predict --file field-7.yaml --set NDVI=0.42`,
	RunE: runPredict,
}

func init() {
	rootCmd.AddCommand(predictCmd)

	predictCmd.Flags().StringP("file", "f", "", "JSON or YAML request file, - for stdin")
	predictCmd.Flags().StringArray("set", nil, "override a request field, key=value (repeatable)")
	predictCmd.Flags().Bool("dry-run", false, "print the request body without sending it")
	addFormFlags(predictCmd.Flags())
}

func runPredict(cmd *cobra.Command, args []string) error {
	body, err := buildPredictBody(cmd, time.Now())
	if err != nil {
		return err
	}

	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	if dryRun, _ := cmd.Flags().GetBool("dry-run"); dryRun {
		return output.Print(outputFormat(cmd), json.RawMessage(data), func() {
			renderObject(body)
		})
	}

	relay, err := relayClient(cmd)
	if err != nil {
		return err
	}

	resp, err := relay.Predict(cmd.Context(), data)
	if err != nil {
		return fmt.Errorf("prediction failed: %w", err)
	}

	return output.Print(outputFormat(cmd), resp, func() {
		var obj map[string]any
		if err := json.Unmarshal(resp, &obj); err != nil {
			output.Info("%s", string(resp))
			return
		}
		renderObject(obj)
	})
}

func buildPredictBody(cmd *cobra.Command, now time.Time) (map[string]any, error) {
	var body map[string]any

	if file, _ := cmd.Flags().GetString("file"); file != "" {
		var err error
		if body, err = readRequestFile(file, cmd.InOrStdin()); err != nil {
			return nil, err
		}
	} else {
		form, err := formFromFlags(cmd.Flags(), now)
		if err != nil {
			return nil, err
		}
		m, err := features.Build(form)
		if err != nil {
			return nil, err
		}
		body = featureMapToBody(m)
	}

	sets, _ := cmd.Flags().GetStringArray("set")
	if err := applySets(body, sets); err != nil {
		return nil, err
	}
	return body, nil
}

// renderObject prints a flat key/value table, nested values as compact JSON.
func renderObject(obj map[string]any) {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	table := output.NewTable([]string{"Field", "Value"})
	for _, k := range keys {
		table.AddRow([]string{k, formatValue(obj[k])})
	}
	table.Render()
}

func formatValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return fmt.Sprintf("%g", val)
	case nil:
		return "null"
	default:
		data, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(data)
	}
}
