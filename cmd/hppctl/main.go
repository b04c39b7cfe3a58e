// Command hppctl runs engine operations against the database without the
// HTTP server.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/Simplici0/hppengine/internal/config"
	"github.com/Simplici0/hppengine/internal/db"
	"github.com/Simplici0/hppengine/internal/logger"
	"github.com/Simplici0/hppengine/internal/migrations"
)

var (
	dbPath  string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "hppctl",
	Short: "Operate the HPP cost tracking engine",
	Long: `hppctl manages the HPP database and runs recalculations, comparisons
and exports from the command line.

Examples:
  hppctl migrate
  hppctl seed
  hppctl recalc brownies --force
  hppctl recalc --all
  hppctl compare brownies --period 30d
  hppctl export --format json --include snapshots,alerts --out hpp.json`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "SQLite database path (defaults to DB_PATH)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(recalcCmd)
	rootCmd.AddCommand(compareCmd)
	rootCmd.AddCommand(exportCmd)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

// env is what every command needs: configuration, a logger writing to
// stderr and a migrated database.
type env struct {
	cfg config.Config
	log zerolog.Logger
	db  *sql.DB
}

func openEnv() (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if dbPath != "" {
		cfg.DBPath = dbPath
	}
	level := cfg.LogLevel
	if verbose {
		level = "debug"
	}
	log := logger.NewWithWriter(logger.Config{Level: level, Pretty: true}, os.Stderr)

	database, err := db.Open(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	if err := migrations.Up(database, log); err != nil {
		database.Close()
		return nil, err
	}
	return &env{cfg: cfg, log: log, db: database}, nil
}

func (e *env) Close() error {
	return e.db.Close()
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
