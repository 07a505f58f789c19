package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/casedesk/intel-cli/internal/batch"
	"github.com/casedesk/intel-cli/internal/history"
	"github.com/casedesk/intel-cli/internal/model"
)

var (
	bulkCase     string
	bulkEncoding string
)

var bulkCmd = &cobra.Command{
	Use:   "bulk <file.csv|file.xlsx>",
	Short: "Scrape messaging profiles for every number in a CSV/XLSX file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		e, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		inputs, err := batch.LoadInputs(args[0], batch.LoadOptions{Encoding: bulkEncoding})
		if err != nil {
			return err
		}
		if bulkCase == "" {
			return &model.ValidationError{Field: "case", Reason: "a destination case is required"}
		}
		fmt.Printf("Loaded %d inputs from %s\n", len(inputs), args[0])

		exec := batch.New(e.Client).Run(ctx, batch.Request{
			Inputs: inputs,
			Kind:   model.KindSingleProfileScrape,
			CaseID: bulkCase,
		})

		i := 0
		for outcome := range exec.Outcomes() {
			i++
			switch {
			case outcome.Err != nil:
				fmt.Printf("[%d/%d] %-16s FAILED: %v\n", i, len(inputs), outcome.Input, outcome.Err)
			case outcome.Job != nil:
				fmt.Printf("[%d/%d] %-16s %s (job %s)\n", i, len(inputs), outcome.Input, outcome.Job.Status, outcome.Job.ID)
			}
		}

		summary, err := exec.Wait()
		fmt.Println(summary.Line())

		_, _ = e.History.Record(ctx, history.Entry{
			Action: history.ActionBatch,
			CaseID: bulkCase,
			Detail: summary.Line(),
		})
		return err
	},
}

func init() {
	bulkCmd.Flags().StringVar(&bulkCase, "case", "", "destination case ID (required)")
	bulkCmd.Flags().StringVar(&bulkEncoding, "encoding", "", "input file character set (e.g. windows-1252)")
	rootCmd.AddCommand(bulkCmd)
}
