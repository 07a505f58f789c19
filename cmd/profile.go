package main

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/casedesk/intel-cli/internal/gate"
	"github.com/casedesk/intel-cli/internal/history"
	"github.com/casedesk/intel-cli/internal/model"
	"github.com/casedesk/intel-cli/internal/track"
)

var (
	profileCase string
	profileWait int
)

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Messaging-app profile scraping",
}

var profileLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Confirm the backend's messaging session (scan the pairing code, then wait)",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		e, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		status, err := e.Client.LoginStatus(ctx)
		if err != nil {
			return err
		}
		if status.LoggedIn {
			fmt.Println("Messaging session already active.")
			return nil
		}
		fmt.Println(status.Message)

		// The backend holds the wait open; a timeout is not a failure and
		// the wait can simply be issued again.
		outcome, err := e.Client.WaitJob(ctx, "session-login", time.Duration(profileWait)*time.Second)
		if err != nil {
			return err
		}
		if outcome.TimedOut {
			fmt.Println("Timed out waiting for login confirmation. Run 'profile login' again to keep waiting.")
			return nil
		}
		fmt.Println("Login confirmed.")
		return nil
	},
}

var profileScrapeCmd = &cobra.Command{
	Use:   "scrape <phone>",
	Short: "Scrape a single messaging profile",
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
			Kind:     model.KindSingleProfileScrape,
			CaseID:   profileCase,
			Term:     args[0],
			TermType: "phone",
		})
		if err != nil {
			return err
		}
		_, _ = e.History.Record(ctx, history.Entry{
			Action: history.ActionSubmit,
			JobID:  result.Job.ID,
			CaseID: profileCase,
			Detail: "profile scrape: " + args[0],
		})

		// Single-item interactive flow: use the backend's blocking wait
		// instead of the polling loop.
		wr, err := track.Wait(ctx, e.Client, result.Job.ID, time.Duration(profileWait)*time.Second)
		if err != nil {
			return err
		}
		if wr.TimedOut {
			fmt.Printf("Job %s is still running after %ds; re-run with --wait to keep waiting or check later with 'export'.\n",
				result.Job.ID, profileWait)
			return nil
		}
		printJobOutcome(wr.Job)
		return nil
	},
}

var profileLogoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Close the backend's messaging session",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		e, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		if err := e.Client.CloseSession(ctx); err != nil {
			return err
		}
		fmt.Println("Session closed.")
		return nil
	},
}

func init() {
	profileCmd.PersistentFlags().StringVar(&profileCase, "case", "", "destination case ID")
	profileCmd.PersistentFlags().IntVar(&profileWait, "wait", 120, "maximum seconds to wait for completion")
	profileCmd.AddCommand(profileLoginCmd, profileScrapeCmd, profileLogoutCmd)
	rootCmd.AddCommand(profileCmd)
}
