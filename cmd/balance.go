package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var balanceCmd = &cobra.Command{
	Use:   "balance",
	Short: "Show the current credit balance",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		e, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		credits, err := e.Client.Balance(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("Balance: %d credits\n", credits)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(balanceCmd)
}
