package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var cacheFilter string

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage cached prior results",
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Clear cached prior results, optionally scoped by filter",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		e, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		if err := e.Client.ClearCache(ctx, cacheFilter); err != nil {
			return err
		}

		// Cache clears can affect charging; re-fetch rather than assume.
		credits, err := e.Client.Balance(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("Cache cleared. Balance: %d credits\n", credits)
		return nil
	},
}

func init() {
	cacheClearCmd.Flags().StringVar(&cacheFilter, "filter", "", "optional scope filter")
	cacheCmd.AddCommand(cacheClearCmd)
	rootCmd.AddCommand(cacheCmd)
}
