package main

import (
	"context"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/casedesk/intel-cli/internal/backend"
	"github.com/casedesk/intel-cli/internal/catalog"
	"github.com/casedesk/intel-cli/internal/config"
	"github.com/casedesk/intel-cli/internal/export"
	"github.com/casedesk/intel-cli/internal/gate"
	"github.com/casedesk/intel-cli/internal/history"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "intel-cli",
	Short: "Client-side orchestration for the investigations backend",
	Long:  "Submits credit-gated investigative jobs (multi-provider searches, profile scrapes, username sweeps), tracks their lifecycle, aggregates results, and exports artifacts.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return eris.Wrap(err, "load config")
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return eris.Wrap(err, "init logger")
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

// env bundles the engine components a command needs.
type env struct {
	Client   *backend.Client
	Catalog  *catalog.Catalog
	Gate     *gate.Gate
	Exporter *export.Adapter
	History  *history.Store
}

// initEngine wires the engine from config. Caller must Close.
func initEngine(ctx context.Context) (*env, error) {
	client, err := backend.New(backend.Options{
		BaseURL:     cfg.Backend.BaseURL,
		Credentials: backend.StaticToken(cfg.Backend.Token),
		Timeout:     cfg.Backend.Timeout(),
		MaxRetries:  cfg.Backend.MaxRetries,
		RatePerSec:  cfg.Backend.RatePerSec,
	})
	if err != nil {
		return nil, err
	}

	cat, err := catalog.Load(cfg.Catalog.Path)
	if err != nil {
		return nil, err
	}

	hist, err := history.Open(cfg.History.Path)
	if err != nil {
		return nil, err
	}
	if err := hist.Migrate(ctx); err != nil {
		hist.Close() //nolint:errcheck
		return nil, eris.Wrap(err, "init history")
	}

	return &env{
		Client:   client,
		Catalog:  cat,
		Gate:     gate.New(client, cat),
		Exporter: export.New(client, cfg.Export.Dir),
		History:  hist,
	}, nil
}

// Close releases engine resources.
func (e *env) Close() {
	if e.History != nil {
		_ = e.History.Close()
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
