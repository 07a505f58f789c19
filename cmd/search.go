package main

import (
	"bufio"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/casedesk/intel-cli/internal/gate"
	"github.com/casedesk/intel-cli/internal/history"
	"github.com/casedesk/intel-cli/internal/model"
)

var (
	searchCase      string
	searchType      string
	searchProviders []string
	searchYes       bool
	searchExport    string
)

var searchCmd = &cobra.Command{
	Use:   "search <term>",
	Short: "Run a credit-gated multi-provider search for a phone number or email",
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
			Kind:      model.KindMultiProviderSearch,
			CaseID:    searchCase,
			Term:      args[0],
			TermType:  searchType,
			Providers: searchProviders,
			Consent:   promptConsent,
		})
		if err != nil {
			return err
		}

		fmt.Printf("Job %s accepted (%s). Cost: %d credits, balance: %d.\n",
			result.Job.ID, result.Job.Status, result.Cost, result.BalanceAfter)

		_, _ = e.History.Record(ctx, history.Entry{
			Action: history.ActionSubmit,
			JobID:  result.Job.ID,
			CaseID: searchCase,
			Detail: fmt.Sprintf("search %s via %s", searchType, strings.Join(searchProviders, ",")),
		})

		job, err := followJob(ctx, e, result.Job)
		if err != nil {
			return err
		}
		printJobOutcome(job)

		if searchExport != "" && job.Completed() {
			path, err := e.Exporter.Export(ctx, job, searchExport)
			if err != nil {
				return err
			}
			fmt.Printf("Artifact saved to %s\n", path)
		}
		return nil
	},
}

func init() {
	searchCmd.Flags().StringVar(&searchCase, "case", "", "destination case ID (required)")
	searchCmd.Flags().StringVar(&searchType, "type", "phone", "term type: phone or email")
	searchCmd.Flags().StringSliceVar(&searchProviders, "providers", nil, "provider keys to query (see 'catalog')")
	searchCmd.Flags().BoolVar(&searchYes, "yes", false, "accept the consent disclaimer without prompting")
	searchCmd.Flags().StringVar(&searchExport, "export", "", "export artifact on completion: pdf or excel")
	rootCmd.AddCommand(searchCmd)
}

// promptConsent shows the disclaimer and asks for explicit acceptance.
// Declining aborts the submission with no side effects.
func promptConsent(disclaimer string) bool {
	if searchYes {
		return true
	}
	fmt.Println()
	fmt.Println(disclaimer)
	fmt.Print("\nAccept and continue? [y/N]: ")

	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}
