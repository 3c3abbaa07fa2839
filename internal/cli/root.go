// Package cli implements quotectl, an offline front end to the quote engine.
package cli

import (
	"os"

	"github.com/spf13/cobra"
)

func Execute() {
	cmd := NewRootCmd()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

type globalFlags struct {
	logLevel string
	timezone string
	leadDays int
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	g := &globalFlags{}
	cmd := &cobra.Command{
		Use:          "quotectl",
		Short:        "Price flyer distribution orders and browse postal code areas",
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&g.logLevel, "log-level", "warn", "Log level written to stderr")
	cmd.PersistentFlags().StringVar(&g.timezone, "timezone", "Europe/Zurich", "Timezone that defines today for scheduling")
	cmd.PersistentFlags().IntVar(&g.leadDays, "lead-days", 10, "Days from today to the standard distribution date")

	cmd.AddCommand(priceCmd(g))
	cmd.AddCommand(areasCmd(g))
	return cmd
}
