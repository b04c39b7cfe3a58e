package automation

import (
	"time"

	"github.com/Simplici0/hppengine/internal/hpp"
)

// OutcomeStatus is success or error.
type OutcomeStatus string

const (
	StatusSuccess OutcomeStatus = "success"
	StatusError   OutcomeStatus = "error"
)

// Outcome is what happened to one recipe. FailedAt is the stage the recipe
// was in when it failed.
type Outcome struct {
	RecipeID  string             `json:"recipe_id"`
	Status    OutcomeStatus      `json:"status"`
	Stage     Stage              `json:"stage"`
	FailedAt  Stage              `json:"failed_at,omitempty"`
	ErrorKind hpp.Kind           `json:"error_kind,omitempty"`
	ErrorCode string             `json:"error_code,omitempty"`
	Error     string             `json:"error,omitempty"`
	Breakdown *hpp.CostBreakdown `json:"breakdown,omitempty"`
	Snapshot  *hpp.Snapshot      `json:"snapshot,omitempty"`
	Alerts    []hpp.Alert        `json:"alerts,omitempty"`

	err error
}

// Err returns the error behind a failed outcome.
func (o Outcome) Err() error { return o.err }

func failed(recipeID string, at Stage, err error) Outcome {
	return Outcome{
		RecipeID:  recipeID,
		Status:    StatusError,
		Stage:     StageFailed,
		FailedAt:  at,
		ErrorKind: hpp.KindOf(err),
		ErrorCode: hpp.CodeOf(err),
		Error:     hpp.MessageOf(err),
		err:       err,
	}
}

// BatchResult holds every outcome of a run. Counts always cover all of
// Outcomes; use Report for a bounded copy.
type BatchResult struct {
	Event        EventKind `json:"event"`
	Reason       string    `json:"reason"`
	Total        int       `json:"total"`
	SuccessCount int       `json:"success_count"`
	ErrorCount   int       `json:"error_count"`
	Cancelled    bool      `json:"cancelled"`
	Aborted      bool      `json:"aborted"`
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at"`
	Outcomes     []Outcome `json:"-"`
}

func newResult(kind EventKind, reason string, started, finished time.Time, outcomes []Outcome) *BatchResult {
	res := &BatchResult{
		Event:      kind,
		Reason:     reason,
		Total:      len(outcomes),
		StartedAt:  started,
		FinishedAt: finished,
		Outcomes:   outcomes,
	}
	for _, o := range outcomes {
		if o.Status == StatusSuccess {
			res.SuccessCount++
		} else {
			res.ErrorCount++
		}
	}
	return res
}

// Failures returns the failed outcomes in order.
func (r *BatchResult) Failures() []Outcome {
	var out []Outcome
	for _, o := range r.Outcomes {
		if o.Status == StatusError {
			out = append(out, o)
		}
	}
	return out
}

// Report is the transport form of a BatchResult. Results and Failures are
// cut to the given sizes; the counts are not.
type Report struct {
	Event        EventKind `json:"event"`
	Reason       string    `json:"reason"`
	Total        int       `json:"total"`
	SuccessCount int       `json:"successCount"`
	ErrorCount   int       `json:"errorCount"`
	Cancelled    bool      `json:"cancelled"`
	Aborted      bool      `json:"aborted"`
	StartedAt    time.Time `json:"startedAt"`
	FinishedAt   time.Time `json:"finishedAt"`
	DurationMS   int64     `json:"durationMs"`
	Results      []Outcome `json:"results"`
	Failures     []Outcome `json:"failures"`
	Truncated    bool      `json:"truncated"`
}

// Report builds the transport form with at most maxResults results and
// failureSample failures. Breakdowns and alerts are kept only for a single
// recipe run.
func (r *BatchResult) Report(maxResults, failureSample int) Report {
	rep := Report{
		Event:        r.Event,
		Reason:       r.Reason,
		Total:        r.Total,
		SuccessCount: r.SuccessCount,
		ErrorCount:   r.ErrorCount,
		Cancelled:    r.Cancelled,
		Aborted:      r.Aborted,
		StartedAt:    r.StartedAt,
		FinishedAt:   r.FinishedAt,
		DurationMS:   r.FinishedAt.Sub(r.StartedAt).Milliseconds(),
		Results:      make([]Outcome, 0, min(len(r.Outcomes), maxResults)),
		Failures:     make([]Outcome, 0),
	}
	single := len(r.Outcomes) == 1
	for _, o := range r.Outcomes {
		if !single {
			o.Breakdown, o.Snapshot, o.Alerts = nil, nil, nil
		}
		if len(rep.Results) < maxResults {
			rep.Results = append(rep.Results, o)
		}
		if o.Status == StatusError && len(rep.Failures) < failureSample {
			rep.Failures = append(rep.Failures, o)
		}
	}
	rep.Truncated = len(rep.Results) < len(r.Outcomes) || len(rep.Failures) < r.ErrorCount
	return rep
}
