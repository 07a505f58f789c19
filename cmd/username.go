package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/casedesk/intel-cli/internal/gate"
	"github.com/casedesk/intel-cli/internal/history"
	"github.com/casedesk/intel-cli/internal/model"
)

var usernameCase string

var usernameCmd = &cobra.Command{
	Use:   "username <name>",
	Short: "Sweep a username across social platforms",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		e, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		result, err := e.Gate.Submit(ctx, gate.Request{
			Kind:     model.KindUsernameSweep,
			CaseID:   usernameCase,
			Term:     args[0],
			TermType: "username",
		})
		if err != nil {
			return err
		}

		fmt.Printf("Job %s accepted (%s).\n", result.Job.ID, result.Job.Status)
		_, _ = e.History.Record(ctx, history.Entry{
			Action: history.ActionSubmit,
			JobID:  result.Job.ID,
			CaseID: usernameCase,
			Detail: "username sweep: " + args[0],
		})

		job, err := followJob(ctx, e, result.Job)
		if err != nil {
			return err
		}
		printJobOutcome(job)
		return nil
	},
}

func init() {
	usernameCmd.Flags().StringVar(&usernameCase, "case", "", "destination case ID (required)")
	rootCmd.AddCommand(usernameCmd)
}
