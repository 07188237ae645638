// Command scriptura is the operator CLI: catalog seeding, bulk PDF
// conversion, full index rebuilds, index/catalog audits and manual status
// changes.
//
// Usage:
//
//	scriptura [--config configs/development.yaml] <command>
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/scriptura/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/scriptura/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/scriptura/pkg/database"
	"github.com/Adithya-Monish-Kumar-K/scriptura/pkg/logger"
)

var (
	configPath string
	cfg        *config.Config
)

var rootCmd = &cobra.Command{
	Use:           "scriptura",
	Short:         "Operate the Scriptura literary search service",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
		logger.SetupWriter(os.Stderr, cfg.Logging.Level, "text")
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "configs/development.yaml", "path to config file")
}

// openCatalog connects to the configured catalog and makes sure the works
// table exists.
func openCatalog(ctx context.Context) (*catalog.Store, func(), error) {
	db, err := database.New(cfg.Catalog)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to catalog: %w", err)
	}
	store := catalog.NewStore(db)
	if err := store.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, nil, err
	}
	return store, func() { db.Close() }, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}
