package main

import (
	"fmt"
	"sort"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(usageCmd)
}

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Show this month's metered spend",
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := loadRegistry()
		if err != nil {
			return err
		}
		ledger, err := reg.Ledger()
		if err != nil {
			return err
		}
		stats, err := ledger.Stats()
		if err != nil {
			return err
		}

		color.Cyan("Usage for %s", stats.Month)
		fmt.Printf("  Spent:     $%.4f\n", stats.TotalCost)
		fmt.Printf("  Limit:     $%.2f\n", stats.Limit)
		if stats.Remaining > 0 {
			color.Green("  Remaining: $%.4f", stats.Remaining)
		} else {
			color.Red("  Remaining: $0.00")
		}

		if len(stats.Breakdown) > 0 {
			keys := make([]string, 0, len(stats.Breakdown))
			for k := range stats.Breakdown {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			fmt.Println("\n  Breakdown:")
			for _, k := range keys {
				fmt.Printf("    %-28s $%.6f\n", k, stats.Breakdown[k])
			}
		}
		return nil
	},
}
