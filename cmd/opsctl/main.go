// Command opsctl is the admin CLI for opsdash: schema migration, catalog
// seeding, team setup, minting access tokens for scripts and requeueing
// dead-lettered search events.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/sakif/opsdash/internal/config"
	"github.com/sakif/opsdash/internal/repository"
	"github.com/sakif/opsdash/internal/server"
)

var (
	configPath string
	verbose    bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:           "opsctl",
	Short:         "Administer an opsdash deployment",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yml", "path to the YAML config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log at debug level")

	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(seedSkillsCmd)
	rootCmd.AddCommand(teamCmd)
	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(outboxCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newLogger(w io.Writer) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// openStore loads the config and opens the store. Opening migrates.
func openStore() (config.Config, repository.Store, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, nil, err
	}
	store, err := server.OpenStore(cfg)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("opening %s store: %w", cfg.StoreDriver, err)
	}
	return cfg, store, nil
}

// migrateCmd applies the schema
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()
		fmt.Fprintf(cmd.OutOrStdout(), "schema is up to date (%s)\n", cfg.StoreDriver)
		return nil
	},
}
