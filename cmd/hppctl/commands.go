package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Simplici0/hppengine/internal/app"
	"github.com/Simplici0/hppengine/internal/automation"
	"github.com/Simplici0/hppengine/internal/comparison"
	"github.com/Simplici0/hppengine/internal/export"
	"github.com/Simplici0/hppengine/internal/hpp"
	"github.com/Simplici0/hppengine/internal/seed"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv()
		if err != nil {
			return err
		}
		defer e.Close()
		fmt.Fprintf(cmd.OutOrStdout(), "database %s is up to date\n", e.cfg.DBPath)
		return nil
	},
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Insert the demo catalog (idempotent)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv()
		if err != nil {
			return err
		}
		defer e.Close()

		stats, err := seed.Run(e.db)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "seed complete: %d inserted\n", stats.Inserts)
		return nil
	},
}

var (
	recalcAll    bool
	recalcForce  bool
	recalcReason string
)

var recalcCmd = &cobra.Command{
	Use:   "recalc [recipe-id...]",
	Short: "Recalculate HPP for recipes and store today's snapshots",
	Long: `Recalculate one or more recipes, or every active recipe with --all.

A recipe that already has a snapshot for today is reported as a conflict
unless --force is given, which replaces it. Ctrl-C stops scheduling new
recipes; the ones already running finish.`,
	RunE: runRecalc,
}

func init() {
	recalcCmd.Flags().BoolVar(&recalcAll, "all", false, "recalculate every active recipe")
	recalcCmd.Flags().BoolVar(&recalcForce, "force", false, "replace snapshots already taken today")
	recalcCmd.Flags().StringVar(&recalcReason, "reason", "manual recalculation (cli)", "reason recorded with the batch")
}

func runRecalc(cmd *cobra.Command, args []string) error {
	if recalcAll == (len(args) > 0) {
		return fmt.Errorf("pass recipe ids or --all, not both or neither")
	}

	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.Close()
	a := app.New(e.db, e.cfg, e.log)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var ev automation.Event = automation.BatchRecalculate{Reason: recalcReason, RecipeIDs: args, Force: recalcForce}
	if len(args) == 1 {
		ev = automation.RecipeCalculate{RecipeID: args[0], Force: recalcForce}
	}

	res, err := a.Coordinator.Handle(ctx, ev)
	if res != nil {
		if perr := printJSON(cmd.OutOrStdout(), a.Coordinator.Report(res)); perr != nil {
			return perr
		}
	}
	if err != nil {
		return fmt.Errorf("%s: %s", hpp.KindOf(err), hpp.MessageOf(err))
	}
	if res.ErrorCount > 0 {
		return fmt.Errorf("%d of %d recipes failed", res.ErrorCount, res.Total)
	}
	return nil
}

var (
	comparePeriod     string
	comparePeriodsAgo int
)

var compareCmd = &cobra.Command{
	Use:   "compare <recipe-id>",
	Short: "Compare a recipe's cost per serving with the previous period",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		period, err := comparison.ParsePeriod(comparePeriod)
		if err != nil {
			return err
		}

		e, err := openEnv()
		if err != nil {
			return err
		}
		defer e.Close()
		a := app.New(e.db, e.cfg, e.log)

		cmp, err := a.Comparisons.Compare(cmd.Context(), args[0], period, comparePeriodsAgo)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), cmp)
	},
}

func init() {
	compareCmd.Flags().StringVar(&comparePeriod, "period", "30d", "window length: 7d, 30d, 90d or 1y")
	compareCmd.Flags().IntVar(&comparePeriodsAgo, "periods-ago", 0, "shift both windows back by this many periods")
}

var (
	exportFormat    string
	exportRecipeIDs []string
	exportFrom      string
	exportTo        string
	exportInclude   []string
	exportOwner     string
	exportOut       string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export stored snapshots, alerts and recommendations",
	Args:  cobra.NoArgs,
	RunE:  runExport,
}

func init() {
	exportCmd.Flags().StringVar(&exportFormat, "format", "csv", "csv or json")
	exportCmd.Flags().StringSliceVar(&exportRecipeIDs, "recipe-ids", nil, "limit to these recipes")
	exportCmd.Flags().StringVar(&exportFrom, "from", "", "first snapshot date (YYYY-MM-DD)")
	exportCmd.Flags().StringVar(&exportTo, "to", "", "last snapshot date (YYYY-MM-DD)")
	exportCmd.Flags().StringSliceVar(&exportInclude, "include", nil, "json sections: snapshots, alerts, recommendations")
	exportCmd.Flags().StringVar(&exportOwner, "owner", "", "user whose recommendations are exported")
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "output file; '-' for stdout, default is the generated file name")
}

func runExport(cmd *cobra.Command, args []string) error {
	format, err := export.ParseFormat(exportFormat)
	if err != nil {
		return err
	}
	from, err := parseDay(exportFrom, "from")
	if err != nil {
		return err
	}
	to, err := parseDay(exportTo, "to")
	if err != nil {
		return err
	}

	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.Close()
	a := app.New(e.db, e.cfg, e.log)

	doc, err := a.Exports.Export(cmd.Context(), format, export.Filter{
		RecipeIDs: exportRecipeIDs,
		From:      from,
		To:        to,
		OwnerID:   exportOwner,
		Include:   exportInclude,
	})
	if err != nil {
		return err
	}

	if exportOut == "-" {
		_, err := cmd.OutOrStdout().Write(doc.Data)
		return err
	}
	path := exportOut
	if path == "" {
		path = doc.Filename
	}
	if err := os.WriteFile(path, doc.Data, 0o644); err != nil {
		return fmt.Errorf("write export: %w", err)
	}
	e.log.Info().Str("file", path).Int("bytes", len(doc.Data)).Msg("export written")
	return nil
}

func parseDay(raw, field string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(hpp.DateLayout, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("--%s must be YYYY-MM-DD: %w", field, err)
	}
	return t, nil
}
