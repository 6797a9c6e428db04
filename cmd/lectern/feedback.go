package main

import (
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(feedbackCmd)
}

var feedbackCmd = &cobra.Command{
	Use:   "feedback <message>",
	Short: "Send feedback to the maintainers",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := loadRegistry()
		if err != nil {
			return err
		}
		if err := reg.Feedback().Submit(cmd.Context(), strings.Join(args, " ")); err != nil {
			return err
		}
		color.Green("Thanks, your feedback was sent.")
		return nil
	},
}
