package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/casedesk/intel-cli/internal/history"
)

var exportFormat string

var exportCmd = &cobra.Command{
	Use:   "export <job-id>",
	Short: "Download the generated artifact for a completed job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		e, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		job, err := e.Client.GetJob(ctx, args[0])
		if err != nil {
			return err
		}

		path, err := e.Exporter.Export(ctx, job, exportFormat)
		if err != nil {
			return err
		}

		fmt.Printf("Artifact saved to %s\n", path)
		_, _ = e.History.Record(ctx, history.Entry{
			Action: history.ActionExport,
			JobID:  job.ID,
			Detail: exportFormat + " -> " + path,
		})
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportFormat, "format", "pdf", "artifact format: pdf or excel")
	rootCmd.AddCommand(exportCmd)
}
