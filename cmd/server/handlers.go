package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Simplici0/hppengine/internal/alerts"
	"github.com/Simplici0/hppengine/internal/automation"
	"github.com/Simplici0/hppengine/internal/comparison"
	"github.com/Simplici0/hppengine/internal/export"
	"github.com/Simplici0/hppengine/internal/hpp"
	"github.com/Simplici0/hppengine/internal/recommendations"
	"github.com/Simplici0/hppengine/internal/snapshot"
)

const maxBodyBytes = 1 << 20

type automationRequest struct {
	Action       string   `json:"action"`
	RecipeID     string   `json:"recipe_id"`
	RecipeIDs    []string `json:"recipe_ids"`
	Force        bool     `json:"force"`
	Reason       string   `json:"reason"`
	IngredientID string   `json:"ingredient_id"`
	OldPrice     float64  `json:"old_price"`
	NewPrice     *float64 `json:"new_price"`
	CostID       string   `json:"cost_id"`
	OldAmount    float64  `json:"old_amount"`
	NewAmount    *float64 `json:"new_amount"`
}

func (req automationRequest) event() (automation.Event, error) {
	switch automation.EventKind(req.Action) {
	case automation.KindIngredientPriceChanged:
		if req.NewPrice == nil {
			return nil, hpp.Validationf("new_price is required")
		}
		return automation.IngredientPriceChanged{IngredientID: req.IngredientID, OldPrice: req.OldPrice, NewPrice: *req.NewPrice}, nil
	case automation.KindOperationalCostChanged:
		if req.NewAmount == nil {
			return nil, hpp.Validationf("new_amount is required")
		}
		return automation.OperationalCostChanged{CostID: req.CostID, OldAmount: req.OldAmount, NewAmount: *req.NewAmount}, nil
	case automation.KindRecipeCalculate:
		// recipe_ids is accepted as well; several ids run as a batch.
		if req.RecipeID == "" && len(req.RecipeIDs) > 1 {
			return automation.BatchRecalculate{Reason: "manual recalculation", RecipeIDs: req.RecipeIDs, Force: req.Force}, nil
		}
		id := req.RecipeID
		if id == "" && len(req.RecipeIDs) == 1 {
			id = req.RecipeIDs[0]
		}
		return automation.RecipeCalculate{RecipeID: id, Force: req.Force}, nil
	case automation.KindBatchRecalculate:
		return automation.BatchRecalculate{Reason: req.Reason, RecipeIDs: req.RecipeIDs, Force: req.Force}, nil
	}
	return nil, hpp.Validationf("unknown action %q", req.Action)
}

func (s *server) handleAutomationTrigger(w http.ResponseWriter, r *http.Request) {
	var req automationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	ev, err := req.event()
	if err != nil {
		s.writeError(w, err)
		return
	}

	res, err := s.coordinator.Handle(r.Context(), ev)
	if err != nil && (res == nil || ev.Kind() == automation.KindRecipeCalculate) {
		s.writeError(w, err)
		return
	}
	report := s.coordinator.Report(res)
	if err != nil {
		// The batch was aborted; the partial report is still useful.
		writeJSON(w, statusFor(hpp.KindOf(err)), map[string]any{
			"success": false,
			"event":   ev.Kind(),
			"error":   errorPayload(err),
			"result":  report,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": res.ErrorCount == 0 && !res.Cancelled,
		"event":   ev.Kind(),
		"result":  report,
	})
}

func (s *server) handleAutomationStatus(w http.ResponseWriter, r *http.Request) {
	status := s.coordinator.Status()
	body := map[string]any{
		"workers":         status.Workers,
		"externalTimeout": status.ExternalTimeout,
		"lastRun":         status.LastRun,
	}

	if recipeID := strings.TrimSpace(r.URL.Query().Get("recipeId")); recipeID != "" {
		latest, ok, err := s.snapshots.Latest(r.Context(), recipeID)
		if err != nil {
			s.writeError(w, err)
			return
		}
		if ok {
			body["latestSnapshot"] = latest
		} else {
			body["latestSnapshot"] = nil
		}
	}

	include, err := parseOptionalBool(r.URL.Query().Get("includeOperationalCosts"), "includeOperationalCosts")
	if err != nil {
		s.writeError(w, err)
		return
	}
	if include {
		costs, err := s.costs.List(r.Context())
		if err != nil {
			s.writeError(w, err)
			return
		}
		body["operationalCosts"] = costs
	}

	writeJSON(w, http.StatusOK, map[string]any{"status": "active", "automation": body})
}

func (s *server) handleComparison(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	recipeID := strings.TrimSpace(q.Get("recipe_id"))
	if recipeID == "" {
		s.writeError(w, hpp.Validationf("recipe_id is required"))
		return
	}
	period, err := comparison.ParsePeriod(q.Get("period"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	periodsAgo, err := parseNonNegativeInt(q.Get("periods_ago"), "periods_ago", 0)
	if err != nil {
		s.writeError(w, err)
		return
	}

	cmp, err := s.comparisons.Compare(r.Context(), recipeID, period, periodsAgo)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if !cmp.Current.HasData {
		s.writeError(w, hpp.NotFoundf("no HPP data for recipe %s in the current %s period", recipeID, period))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": cmp})
}

func (s *server) handleSnapshots(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, to, err := parseRange(q.Get("from"), q.Get("to"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	snaps, err := s.snapshots.QueryMany(r.Context(), snapshot.Filter{
		RecipeIDs: splitList(q.Get("recipe_id")),
		From:      from,
		To:        to,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": nonNil(snaps)})
}

func (s *server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := parseNonNegativeInt(q.Get("limit"), "limit", 0)
	if err != nil {
		s.writeError(w, err)
		return
	}
	from, to, err := parseRange(q.Get("from"), q.Get("to"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	if !to.IsZero() {
		to = to.AddDate(0, 0, 1).Add(-time.Nanosecond)
	}
	list, err := s.alerts.List(r.Context(), alerts.ListFilter{
		RecipeIDs: splitList(q.Get("recipe_id")),
		From:      from,
		To:        to,
		Limit:     limit,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": nonNil(list)})
}

func (s *server) handleExport(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	format, err := export.ParseFormat(q.Get("format"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	from, to, err := parseRange(q.Get("from"), q.Get("to"))
	if err != nil {
		s.writeError(w, err)
		return
	}

	doc, err := s.exports.Export(r.Context(), format, export.Filter{
		RecipeIDs: splitList(q.Get("recipe_ids")),
		From:      from,
		To:        to,
		OwnerID:   userFrom(r),
		Include:   splitList(q.Get("include")),
	})
	if err != nil {
		s.writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", doc.MimeType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", doc.Filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(doc.Data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(doc.Data)
}

func (s *server) handleRecommendationsList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, err := parseNonNegativeInt(q.Get("page"), "page", 1)
	if err != nil {
		s.writeError(w, err)
		return
	}
	limit, err := parseNonNegativeInt(q.Get("limit"), "limit", recommendations.DefaultLimit)
	if err != nil {
		s.writeError(w, err)
		return
	}

	result, err := s.recommendations.List(r.Context(), userFrom(r), recommendations.ListQuery{
		Page:      page,
		Limit:     limit,
		Search:    q.Get("search"),
		SortBy:    q.Get("sort_by"),
		SortOrder: q.Get("sort_order"),
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"data": nonNil(result.Data),
		"meta": map[string]int{
			"total":      result.Total,
			"page":       result.Page,
			"limit":      result.Limit,
			"totalPages": result.TotalPages,
		},
	})
}

func (s *server) handleRecommendationsGet(w http.ResponseWriter, r *http.Request) {
	rec, err := s.recommendations.Get(r.Context(), userFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"recommendation": rec})
}

func (s *server) handleRecommendationsCreate(w http.ResponseWriter, r *http.Request) {
	var in recommendations.Input
	if err := decodeJSON(w, r, &in); err != nil {
		s.writeError(w, err)
		return
	}
	rec, err := s.recommendations.Create(r.Context(), userFrom(r), in)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"recommendation": rec})
}

func (s *server) handleRecommendationsUpdate(w http.ResponseWriter, r *http.Request) {
	var patch recommendations.Patch
	if err := decodeJSON(w, r, &patch); err != nil {
		s.writeError(w, err)
		return
	}
	rec, err := s.recommendations.Update(r.Context(), userFrom(r), chi.URLParam(r, "id"), patch)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"recommendation": rec})
}

func (s *server) handleRecommendationsDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.recommendations.Delete(r.Context(), userFrom(r), chi.URLParam(r, "id")); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *server) writeError(w http.ResponseWriter, err error) {
	kind := hpp.KindOf(err)
	if kind == hpp.KindInternal {
		s.log.Error().Err(err).Msg("request failed")
	}
	writeJSON(w, statusFor(kind), map[string]any{"error": errorPayload(err)})
}

func errorPayload(err error) map[string]string {
	payload := map[string]string{
		"kind":    string(hpp.KindOf(err)),
		"message": hpp.MessageOf(err),
	}
	if code := hpp.CodeOf(err); code != "" {
		payload["code"] = code
	}
	return payload
}

func errorBody(kind, message string) map[string]any {
	return map[string]any{"error": map[string]string{"kind": kind, "message": message}}
}

func statusFor(kind hpp.Kind) int {
	switch kind {
	case hpp.KindValidation:
		return http.StatusBadRequest
	case hpp.KindNotFound:
		return http.StatusNotFound
	case hpp.KindConflict:
		return http.StatusConflict
	case hpp.KindDependency:
		return http.StatusFailedDependency
	case hpp.KindCancelled:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return hpp.Validationf("request body too large")
		}
		return hpp.Validationf("invalid JSON body: %v", err)
	}
	return nil
}

func parseNonNegativeInt(raw, field string, fallback int) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, hpp.Validationf("%s must be a non-negative integer", field)
	}
	return v, nil
}

func parseOptionalBool(raw, field string) (bool, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, hpp.Validationf("%s must be true or false", field)
	}
	return v, nil
}

func parseDate(raw, field string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	v, err := time.Parse(hpp.DateLayout, raw)
	if err != nil {
		return time.Time{}, hpp.Validationf("%s must be a date in YYYY-MM-DD format", field)
	}
	return v, nil
}

func parseRange(rawFrom, rawTo string) (time.Time, time.Time, error) {
	from, err := parseDate(rawFrom, "from")
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	to, err := parseDate(rawTo, "to")
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if !from.IsZero() && !to.IsZero() && to.Before(from) {
		return time.Time{}, time.Time{}, hpp.Validationf("to must not be before from")
	}
	return from, to, nil
}

func splitList(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func nonNil[T any](v []T) []T {
	if v == nil {
		return []T{}
	}
	return v
}
