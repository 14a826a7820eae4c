package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/bloomwatch/bloomwatch-stack/cli/pkg/output"
)

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Manage relay profiles",
	Long:  "Save, list and switch between relay deployments in ~/.bloomwatch/config.yaml",
}

var profileSetCmd = &cobra.Command{
	Use:   "set <name>",
	Short: "Create or update a profile and make it current",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		relayURL, _ := cmd.Flags().GetString("relay-url")
		natsURL, _ := cmd.Flags().GetString("nats-url")

		if existing, ok := cfg.Profiles[name]; ok {
			if relayURL == "" {
				relayURL = existing.RelayURL
			}
			if natsURL == "" {
				natsURL = existing.NATSURL
			}
		}
		if relayURL == "" {
			return fmt.Errorf("--relay-url is required for a new profile")
		}

		if err := cfg.SaveProfile(name, relayURL, natsURL); err != nil {
			return fmt.Errorf("failed to save profile: %w", err)
		}
		output.Success("Profile '%s' saved and selected", name)
		return nil
	},
}

var profileUseCmd = &cobra.Command{
	Use:   "use <name>",
	Short: "Switch the current profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, ok := cfg.Profiles[args[0]]; !ok {
			return fmt.Errorf("profile '%s' not found", args[0])
		}
		cfg.CurrentProfile = args[0]
		if err := cfg.Save(); err != nil {
			return fmt.Errorf("failed to save config: %w", err)
		}
		output.Success("Now using profile '%s'", args[0])
		return nil
	},
}

var profileListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List profiles",
	RunE: func(cmd *cobra.Command, args []string) error {
		names := make([]string, 0, len(cfg.Profiles))
		for name := range cfg.Profiles {
			names = append(names, name)
		}
		sort.Strings(names)

		return output.Print(outputFormat(cmd), cfg.Profiles, func() {
			if len(names) == 0 {
				output.Info("No profiles saved; using %s", cfg.Defaults.RelayURL)
				return
			}
			table := output.NewTable([]string{"", "Name", "Relay URL", "NATS URL"})
			for _, name := range names {
				resolved, err := cfg.Resolve(name)
				if err != nil {
					continue
				}
				marker := ""
				if name == cfg.CurrentProfile {
					marker = "*"
				}
				table.AddRow([]string{marker, name, resolved.RelayURL, resolved.NATSURL})
			}
			table.Render()
		})
	},
}

func init() {
	rootCmd.AddCommand(profileCmd)
	profileCmd.AddCommand(profileSetCmd)
	profileCmd.AddCommand(profileUseCmd)
	profileCmd.AddCommand(profileListCmd)

	profileSetCmd.Flags().String("nats-url", "", "NATS server URL for this profile")
}
