// Package automation reacts to cost-changing events by recalculating the
// affected recipes, recording snapshots and raising alerts.
package automation

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/errgroup"

	"github.com/Simplici0/hppengine/internal/alerts"
	"github.com/Simplici0/hppengine/internal/hpp"
	"github.com/Simplici0/hppengine/internal/pricing"
	"github.com/Simplici0/hppengine/internal/snapshot"
)

type RecipeStore interface {
	GetRecipe(ctx context.Context, id string) (hpp.Recipe, error)
	ListActiveRecipeIDs(ctx context.Context) ([]string, error)
	RecipesUsingIngredient(ctx context.Context, ingredientID string) ([]string, error)
}

type IngredientStore interface {
	GetPrice(ctx context.Context, id string) (hpp.IngredientPrice, error)
	UpdatePrice(ctx context.Context, id string, price float64) error
}

type OperationalCostStore interface {
	GetAllocation(ctx context.Context, category string) (pricing.Allocation, error)
	UpdateAmount(ctx context.Context, id string, amount float64) error
}

type SnapshotStore interface {
	Append(ctx context.Context, snap hpp.Snapshot, mode snapshot.Mode) (hpp.Snapshot, error)
	Latest(ctx context.Context, recipeID string) (hpp.Snapshot, bool, error)
}

// AlertRecorder keeps every generated alert queryable.
type AlertRecorder interface {
	Record(ctx context.Context, alerts []hpp.Alert) error
}

// Notifier pushes the alerts that warrant it.
type Notifier interface {
	Dispatch(ctx context.Context, alerts []hpp.Alert) (int, error)
}

// Deps are the collaborators of a Coordinator. Alerts and Notifier may be
// nil.
type Deps struct {
	Recipes     RecipeStore
	Ingredients IngredientStore
	Costs       OperationalCostStore
	Snapshots   SnapshotStore
	Calculator  *pricing.Calculator
	Generator   *alerts.Generator
	Alerts      AlertRecorder
	Notifier    Notifier
}

// Options tune a Coordinator. Zero values take the defaults.
type Options struct {
	Workers            int
	ExternalTimeout    time.Duration
	RetryBackoff       time.Duration
	FailureSample      int
	MaxReportedResults int
	Now                func() time.Time
}

func (o Options) withDefaults() Options {
	if o.Workers <= 0 {
		o.Workers = 4
	}
	if o.ExternalTimeout <= 0 {
		o.ExternalTimeout = 3 * time.Second
	}
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = 200 * time.Millisecond
	}
	if o.FailureSample <= 0 {
		o.FailureSample = 10
	}
	if o.MaxReportedResults <= 0 {
		o.MaxReportedResults = 50
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// Coordinator runs the per-recipe pipeline for every event. Construct it
// once and share it; it is safe for concurrent use.
type Coordinator struct {
	deps Deps
	opts Options
	log  zerolog.Logger

	mu      sync.Mutex
	lastRun *Report
}

func New(deps Deps, opts Options, log zerolog.Logger) *Coordinator {
	if deps.Calculator == nil {
		deps.Calculator = pricing.NewCalculator(pricing.DefaultFallback, pricing.DefaultPricePolicy)
	}
	if deps.Generator == nil {
		deps.Generator = alerts.NewGenerator()
	}
	return &Coordinator{
		deps: deps,
		opts: opts.withDefaults(),
		log:  log.With().Str("component", "automation").Logger(),
	}
}

// Handle processes ev. Single-recipe events return that recipe's error
// directly. Multi-recipe events only fail for bad input, an upstream update
// that could not be applied, or an unusable snapshot store; per-recipe
// failures are counted in the result.
func (c *Coordinator) Handle(ctx context.Context, ev Event) (*BatchResult, error) {
	if ev == nil {
		return nil, hpp.Validationf("event is required")
	}
	if err := ev.validate(); err != nil {
		return nil, err
	}

	switch e := ev.(type) {
	case IngredientPriceChanged:
		if err := c.external(ctx, func(ctx context.Context) error {
			return c.deps.Ingredients.UpdatePrice(ctx, e.IngredientID, e.NewPrice)
		}); err != nil {
			return nil, err
		}
		c.log.Info().Str("ingredient_id", e.IngredientID).
			Float64("old_price", e.OldPrice).Float64("new_price", e.NewPrice).
			Msg("ingredient price changed")
		var ids []string
		err := c.external(ctx, func(ctx context.Context) (err error) {
			ids, err = c.deps.Recipes.RecipesUsingIngredient(ctx, e.IngredientID)
			return err
		})
		if err != nil {
			return nil, err
		}
		return c.runBatch(ctx, ev.Kind(), "ingredient "+e.IngredientID+" price changed", ids, snapshot.Overwrite)

	case OperationalCostChanged:
		if err := c.external(ctx, func(ctx context.Context) error {
			return c.deps.Costs.UpdateAmount(ctx, e.CostID, e.NewAmount)
		}); err != nil {
			return nil, err
		}
		c.log.Info().Str("cost_id", e.CostID).
			Float64("old_amount", e.OldAmount).Float64("new_amount", e.NewAmount).
			Msg("operational cost changed")
		ids, err := c.activeRecipes(ctx)
		if err != nil {
			return nil, err
		}
		return c.runBatch(ctx, ev.Kind(), "operational cost "+e.CostID+" changed", ids, snapshot.Overwrite)

	case RecipeCalculate:
		started := c.opts.Now()
		out := c.process(ctx, e.RecipeID, modeFor(e.Force))
		res := newResult(ev.Kind(), "manual recalculation", started, c.opts.Now(), []Outcome{out})
		c.remember(res)
		return res, out.Err()

	case BatchRecalculate:
		ids := e.RecipeIDs
		if len(ids) == 0 {
			var err error
			if ids, err = c.activeRecipes(ctx); err != nil {
				return nil, err
			}
		}
		reason := e.Reason
		if reason == "" {
			reason = "batch recalculation"
		}
		return c.runBatch(ctx, ev.Kind(), reason, ids, modeFor(e.Force))
	}
	return nil, hpp.Validationf("unsupported event %T", ev)
}

// Recalculate is shorthand for a RecipeCalculate event.
func (c *Coordinator) Recalculate(ctx context.Context, recipeID string, force bool) (Outcome, error) {
	res, err := c.Handle(ctx, RecipeCalculate{RecipeID: recipeID, Force: force})
	if res == nil || len(res.Outcomes) == 0 {
		return Outcome{RecipeID: recipeID}, err
	}
	out := res.Outcomes[0]
	return out, out.Err()
}

// Status describes the coordinator's configuration and last run.
type Status struct {
	Workers         int     `json:"workers"`
	ExternalTimeout string  `json:"external_timeout"`
	LastRun         *Report `json:"last_run"`
}

func (c *Coordinator) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Status{
		Workers:         c.opts.Workers,
		ExternalTimeout: c.opts.ExternalTimeout.String(),
		LastRun:         c.lastRun,
	}
}

// Report trims res with the coordinator's transport limits.
func (c *Coordinator) Report(res *BatchResult) Report {
	return res.Report(c.opts.MaxReportedResults, c.opts.FailureSample)
}

func (c *Coordinator) remember(res *BatchResult) {
	r := c.Report(res)
	c.mu.Lock()
	c.lastRun = &r
	c.mu.Unlock()
}

func (c *Coordinator) activeRecipes(ctx context.Context) ([]string, error) {
	var ids []string
	err := c.external(ctx, func(ctx context.Context) (err error) {
		ids, err = c.deps.Recipes.ListActiveRecipeIDs(ctx)
		return err
	})
	return ids, err
}

func modeFor(force bool) snapshot.Mode {
	if force {
		return snapshot.Overwrite
	}
	return snapshot.Reject
}

// runBatch fans ids out over the worker pool. Cancelling ctx stops new
// recipes from starting; recipes already running finish. A snapshot store
// internal error stops scheduling as well and is returned with the partial
// result.
func (c *Coordinator) runBatch(ctx context.Context, kind EventKind, reason string, ids []string, mode snapshot.Mode) (*BatchResult, error) {
	ids = dedupe(ids)
	started := c.opts.Now()
	log := c.log.With().Str("event", string(kind)).Str("reason", reason).Logger()
	log.Info().Int("recipes", len(ids)).Msg("batch started")

	schedCtx, abort := context.WithCancelCause(ctx)
	defer abort(nil)
	work := context.WithoutCancel(ctx)

	var (
		abortOnce sync.Once
		storeErr  error
	)
	outcomes := make([]Outcome, len(ids))
	var g errgroup.Group
	g.SetLimit(c.opts.Workers)
	for i, id := range ids {
		if schedCtx.Err() != nil {
			outcomes[i] = notStarted(ctx, id)
			continue
		}
		g.Go(func() error {
			if schedCtx.Err() != nil {
				outcomes[i] = notStarted(ctx, id)
				return nil
			}
			out := c.process(work, id, mode)
			if out.FailedAt == StagePersisting && out.ErrorKind == hpp.KindInternal && out.ErrorCode != hpp.CodePanic {
				abortOnce.Do(func() {
					storeErr = out.Err()
					abort(storeErr)
				})
			}
			outcomes[i] = out
			return nil
		})
	}
	_ = g.Wait()

	res := newResult(kind, reason, started, c.opts.Now(), outcomes)
	res.Cancelled = ctx.Err() != nil
	res.Aborted = storeErr != nil
	c.remember(res)

	log.Info().
		Int("success", res.SuccessCount).
		Int("errors", res.ErrorCount).
		Bool("cancelled", res.Cancelled).
		Bool("aborted", res.Aborted).
		Dur("duration", res.FinishedAt.Sub(res.StartedAt)).
		Msg("batch finished")

	if storeErr != nil {
		return res, hpp.Wrap(storeErr, hpp.KindInternal, "", "snapshot store unavailable, batch aborted")
	}
	return res, nil
}

// notStarted is the outcome of a recipe the batch never got to. parent
// tells a caller cancellation from a store abort.
func notStarted(parent context.Context, id string) Outcome {
	if err := parent.Err(); err != nil {
		return failed(id, StageReceived, hpp.Wrap(err, hpp.KindCancelled, "", "batch cancelled before this recipe started"))
	}
	return failed(id, StageReceived, hpp.Errorf(hpp.KindCancelled, "", "batch aborted before this recipe started"))
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok || id == "" {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// process runs one recipe through the stage machine. Errors, and panics
// raised while processing, end up in the outcome.
func (c *Coordinator) process(ctx context.Context, recipeID string, mode snapshot.Mode) (out Outcome) {
	log := c.log.With().Str("recipe_id", recipeID).Logger()
	stage := StageReceived
	advance := func(next Stage) {
		log.Debug().Str("from", string(stage)).Str("to", string(next)).Msg("stage")
		stage = next
	}
	fail := func(err error) Outcome {
		log.Warn().Err(err).Str("stage", string(stage)).Str("kind", string(hpp.KindOf(err))).Msg("recalculation failed")
		return failed(recipeID, stage, err)
	}
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("stage", string(stage)).Msg("recalculation panicked")
			out = failed(recipeID, stage, hpp.Errorf(hpp.KindInternal, hpp.CodePanic, "recalculation of %q failed unexpectedly: %v", recipeID, r))
		}
	}()

	advance(StageValidating)
	var recipe hpp.Recipe
	if err := c.external(ctx, func(ctx context.Context) (err error) {
		recipe, err = c.deps.Recipes.GetRecipe(ctx, recipeID)
		return err
	}); err != nil {
		return fail(err)
	}
	if recipe.Servings <= 0 {
		return fail(hpp.Errorf(hpp.KindValidation, hpp.CodeInvalidServings,
			"recipe %q has %d servings; servings must be greater than 0", recipe.ID, recipe.Servings))
	}

	advance(StageCalculating)
	prices, err := c.prices(ctx, recipe)
	if err != nil {
		return fail(err)
	}
	var alloc pricing.Allocation
	if err := c.external(ctx, func(ctx context.Context) (err error) {
		alloc, err = c.deps.Costs.GetAllocation(ctx, recipe.Category)
		return err
	}); err != nil {
		return fail(asDependency(err, hpp.CodeAllocation, "operational cost allocation unavailable"))
	}
	breakdown, err := c.deps.Calculator.Calculate(recipe, prices, alloc)
	if err != nil {
		return fail(err)
	}

	advance(StagePersisting)
	today := hpp.Day(c.opts.Now())
	// The baseline is whatever the recipe showed before this run, including
	// a same-day snapshot this run replaces.
	prev, hasPrev, err := c.deps.Snapshots.Latest(ctx, recipeID)
	if err != nil {
		return fail(err)
	}
	stored, err := c.appendWithRetry(ctx, hpp.NewSnapshot(breakdown, today, recipe.SellingPrice), mode)
	if err != nil {
		return fail(err)
	}

	advance(StageAlerting)
	var previous *hpp.CostBreakdown
	if hasPrev {
		b := prev.Breakdown()
		previous = &b
	}
	generated := c.deps.Generator.Evaluate(recipeID, breakdown, previous, recipe.SellingPrice)
	out = Outcome{
		RecipeID:  recipeID,
		Status:    StatusSuccess,
		Stage:     StageCompleted,
		Breakdown: &breakdown,
		Snapshot:  &stored,
		Alerts:    generated,
	}
	if c.deps.Alerts != nil {
		if err := c.deps.Alerts.Record(ctx, generated); err != nil {
			return fail(hpp.Wrap(err, hpp.KindInternal, "", "record alerts"))
		}
	}
	if c.deps.Notifier != nil {
		if _, err := c.deps.Notifier.Dispatch(ctx, generated); err != nil {
			return fail(err)
		}
	}

	advance(StageCompleted)
	log.Debug().
		Float64("total_cost", breakdown.TotalCost).
		Float64("cost_per_serving", breakdown.CostPerServing).
		Int("alerts", len(generated)).
		Msg("recalculated")
	return out
}

// prices looks up every distinct ingredient of recipe, one bounded call each.
func (c *Coordinator) prices(ctx context.Context, recipe hpp.Recipe) (map[string]hpp.IngredientPrice, error) {
	prices := make(map[string]hpp.IngredientPrice, len(recipe.Components))
	for _, comp := range recipe.Components {
		if _, ok := prices[comp.IngredientID]; ok {
			continue
		}
		var p hpp.IngredientPrice
		err := c.external(ctx, func(ctx context.Context) (err error) {
			p, err = c.deps.Ingredients.GetPrice(ctx, comp.IngredientID)
			return err
		})
		if err != nil {
			return nil, asDependency(err, hpp.CodeMissingPrice, "no price for ingredient "+comp.IngredientID)
		}
		prices[comp.IngredientID] = p
	}
	return prices, nil
}

// appendWithRetry retries an internal store failure once after the
// configured backoff. Conflicts are returned as they are.
func (c *Coordinator) appendWithRetry(ctx context.Context, snap hpp.Snapshot, mode snapshot.Mode) (hpp.Snapshot, error) {
	backoff := retry.WithMaxRetries(1, retry.NewExponential(c.opts.RetryBackoff))
	attempt := 0
	return retry.DoValue(ctx, backoff, func(ctx context.Context) (hpp.Snapshot, error) {
		attempt++
		stored, err := c.deps.Snapshots.Append(ctx, snap, mode)
		if hpp.KindOf(err) == hpp.KindInternal {
			c.log.Warn().Err(err).Str("recipe_id", snap.RecipeID).Int("attempt", attempt).Msg("snapshot write failed")
			return hpp.Snapshot{}, retry.RetryableError(err)
		}
		return stored, err
	})
}

// external runs one collaborator call under the per-call timeout. A call
// that runs out of time becomes a dependency timeout.
func (c *Coordinator) external(ctx context.Context, fn func(ctx context.Context) error) error {
	callCtx, cancel := context.WithTimeout(ctx, c.opts.ExternalTimeout)
	defer cancel()
	err := fn(callCtx)
	if err != nil && errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		return hpp.Wrap(err, hpp.KindDependency, hpp.CodeTimeout, "collaborator call timed out")
	}
	return err
}

// asDependency maps a missing or unreadable upstream figure to a dependency
// error, keeping timeouts and validation errors as they are.
func asDependency(err error, code, msg string) error {
	switch hpp.KindOf(err) {
	case hpp.KindDependency, hpp.KindValidation:
		return err
	}
	return hpp.Wrap(err, hpp.KindDependency, code, msg)
}
