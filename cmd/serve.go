package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/casedesk/intel-cli/internal/bridge"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the localhost bridge for the desktop shell",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		e, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		srv := bridge.New(e.Client, e.Gate, e.Exporter, e.Catalog, cfg.Bridge.AllowedOrigins)

		port := servePort
		if port == 0 {
			port = cfg.Bridge.Port
		}
		return srv.ListenAndServe(ctx, port)
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "override bridge port")
	rootCmd.AddCommand(serveCmd)
}
