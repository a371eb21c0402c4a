// Package cli is the seatctl operator command set
package cli

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"seatnext/internal/app"
	"seatnext/internal/shared/config"
	"seatnext/internal/shared/database"
	"seatnext/pkg/logger"
)

var (
	Version   = "dev"
	CommitSHA = "none"
)

func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "seatctl",
		Short:         "Operator tooling for the seatnext queue service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			_ = godotenv.Load()
		},
	}

	root.AddCommand(newVersionCmd())
	root.AddCommand(newMigrateCmd())
	root.AddCommand(newSeedCmd())
	root.AddCommand(newSweepCmd())
	root.AddCommand(newQueueCmd())
	root.AddCommand(newTokenCmd())

	return root
}

func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "seatctl %s (%s)\n", Version, CommitSHA)
		},
	}
}

// openApp connects the stores and wires the application without starting
// any background worker
func openApp() (*app.App, func(), error) {
	cfg := config.Load()
	log := logger.GetDefault()

	db, err := database.InitDB(cfg, log)
	if err != nil {
		return nil, nil, err
	}

	a, err := app.Build(cfg, db, log)
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return a, func() { _ = db.Close() }, nil
}
