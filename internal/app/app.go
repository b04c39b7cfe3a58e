// Package app wires the engine's stores and services for the binaries.
package app

import (
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/Simplici0/hppengine/internal/alerts"
	"github.com/Simplici0/hppengine/internal/automation"
	"github.com/Simplici0/hppengine/internal/catalog"
	"github.com/Simplici0/hppengine/internal/comparison"
	"github.com/Simplici0/hppengine/internal/config"
	"github.com/Simplici0/hppengine/internal/export"
	"github.com/Simplici0/hppengine/internal/pricing"
	"github.com/Simplici0/hppengine/internal/recommendations"
	"github.com/Simplici0/hppengine/internal/snapshot"
)

// App holds one instance of every component, sharing a database.
type App struct {
	Recipes         *catalog.Recipes
	Ingredients     *catalog.Ingredients
	Costs           *catalog.OperationalCosts
	Snapshots       *snapshot.Store
	Alerts          *alerts.Log
	Recommendations *recommendations.Store
	Coordinator     *automation.Coordinator
	Comparisons     *comparison.Engine
	Exports         *export.Service
}

// New builds the components from cfg. Urgent alerts are sent to the log.
func New(database *sql.DB, cfg config.Config, log zerolog.Logger) *App {
	a := &App{
		Recipes:         catalog.NewRecipes(database),
		Ingredients:     catalog.NewIngredients(database),
		Costs:           catalog.NewOperationalCosts(database),
		Snapshots:       snapshot.NewStore(database),
		Alerts:          alerts.NewLog(database),
		Recommendations: recommendations.NewStore(database),
	}

	a.Coordinator = automation.New(automation.Deps{
		Recipes:     a.Recipes,
		Ingredients: a.Ingredients,
		Costs:       a.Costs,
		Snapshots:   a.Snapshots,
		Calculator:  pricing.NewCalculator(Fallback(cfg), pricing.DefaultPricePolicy),
		Generator:   alerts.NewGenerator(),
		Alerts:      a.Alerts,
		Notifier:    alerts.NewDispatcher(alerts.NewLogSink(log), cfg.ExternalTimeout),
	}, automation.Options{
		Workers:            cfg.Workers,
		ExternalTimeout:    cfg.ExternalTimeout,
		RetryBackoff:       cfg.RetryBackoff,
		FailureSample:      cfg.FailureSampleSize,
		MaxReportedResults: cfg.MaxReportedResults,
	}, log)
	a.Comparisons = comparison.NewEngine(a.Recipes, a.Snapshots)
	a.Exports = export.NewService(a.Snapshots, a.Alerts, a.Recommendations, a.Recipes)
	return a
}

// Fallback returns the overhead fallback policy configured by cfg. The
// canonical policy is kept, name included, unless cfg overrides it.
func Fallback(cfg config.Config) pricing.FallbackPolicy {
	fb := pricing.DefaultFallback
	if cfg.OverheadFallbackPercent == fb.OverheadPercent && cfg.OverheadFallbackMinimum == fb.OverheadMinimum {
		return fb
	}
	fb.Name = fmt.Sprintf("overhead-%gpct-min-%g", cfg.OverheadFallbackPercent, cfg.OverheadFallbackMinimum)
	fb.OverheadPercent = cfg.OverheadFallbackPercent
	fb.OverheadMinimum = cfg.OverheadFallbackMinimum
	return fb
}
