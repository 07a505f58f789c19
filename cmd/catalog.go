package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/casedesk/intel-cli/internal/catalog"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "List available search providers and their credit costs",
	RunE: func(cmd *cobra.Command, args []string) error {
		cat, err := catalog.Load(cfg.Catalog.Path)
		if err != nil {
			return err
		}

		fmt.Printf("%-18s %-28s %7s  %s\n", "KEY", "NAME", "CREDITS", "FLAGS")
		for _, p := range cat.Providers() {
			flags := ""
			if p.Sensitive {
				flags = "sensitive"
			}
			if p.ConsentRequired {
				if flags != "" {
					flags += ", "
				}
				flags += "consent required"
			}
			fmt.Printf("%-18s %-28s %7d  %s\n", p.Key, p.Name, p.Cost, flags)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(catalogCmd)
}
