package cmd

import (
	"os"
	"strings"

	"landmash/services/store"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func init() {
	marketCmd.AddCommand(marketAddCmd)
	marketCmd.AddCommand(marketListCmd)
	rootCmd.AddCommand(marketCmd)
}

var marketCmd = &cobra.Command{
	Use:   "market",
	Short: "Manages the markets listings can be requested for.",
}

var marketAddCmd = &cobra.Command{
	Use:   "add <name>...",
	Short: "Adds markets, existing markets are left as is.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, name := range args {
			name = strings.TrimSpace(name)
			if name == "" {
				continue
			}
			err := current.store.UpsertMarket(cmd.Context(), store.Market{Name: name})
			if err != nil {
				return err
			}
		}
		return nil
	},
}

var marketListCmd = &cobra.Command{
	Use:   "list",
	Short: "Prints the known markets.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		markets, err := current.store.ListMarkets(cmd.Context())
		if err != nil {
			return err
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"Market"})
		for _, m := range markets {
			t.AppendRow(table.Row{m.Name})
		}
		t.SetStyle(table.StyleRounded)
		t.Render()
		return nil
	},
}
