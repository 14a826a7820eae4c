package cmd

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/bloomwatch/bloomwatch-stack/cli/internal/features"
	"github.com/bloomwatch/bloomwatch-stack/cli/pkg/output"
)

var featuresCmd = &cobra.Command{
	Use:   "features",
	Short: "Show the feature map built from measurements",
	Long: `Print the model features the measurement flags produce, in the scorer's
column order, without contacting the relay.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		form, err := formFromFlags(cmd.Flags(), time.Now())
		if err != nil {
			return err
		}
		m, err := features.Build(form)
		if err != nil {
			return err
		}

		return output.Print(outputFormat(cmd), m, func() {
			table := output.NewTable([]string{"Feature", "Value"})
			for _, col := range features.Columns {
				table.AddRow([]string{col, formatValue(m[col])})
			}
			table.Render()
		})
	},
}

func init() {
	rootCmd.AddCommand(featuresCmd)
	addFormFlags(featuresCmd.Flags())
}
