package main

import (
	"github.com/spf13/cobra"

	"github.com/xhad/lectern/server"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP and websocket API",
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := loadRegistry()
		if err != nil {
			return err
		}
		defer reg.Close()

		pipeline, err := reg.Pipeline(cmd.Context())
		if err != nil {
			return err
		}
		ledger, err := reg.Ledger()
		if err != nil {
			return err
		}

		srv := server.NewWithConfig(server.Config{
			Addr:     reg.Config().Addr(),
			Pipeline: pipeline,
			Feedback: reg.Feedback(),
			Usage:    ledger,
		})
		return srv.ListenAndServe(cmd.Context())
	},
}
