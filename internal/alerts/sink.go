package alerts

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/Simplici0/hppengine/internal/hpp"
)

// Sink delivers an alert to whoever needs to act on it. Deduplication and
// read state are the sink's business.
type Sink interface {
	Send(ctx context.Context, alert hpp.Alert) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, alert hpp.Alert) error

func (f SinkFunc) Send(ctx context.Context, alert hpp.Alert) error { return f(ctx, alert) }

// LogSink writes alerts to the structured log.
type LogSink struct {
	log zerolog.Logger
}

func NewLogSink(log zerolog.Logger) *LogSink {
	return &LogSink{log: log.With().Str("component", "alert_sink").Logger()}
}

func (s *LogSink) Send(_ context.Context, a hpp.Alert) error {
	ev := s.log.Warn()
	if a.Severity == hpp.SeverityCritical {
		ev = s.log.Error()
	}
	ev.Str("alert_id", a.ID).
		Str("recipe_id", a.RecipeID).
		Str("type", string(a.Type)).
		Str("severity", string(a.Severity)).
		Float64("impact", a.Impact).
		Msg(a.Message)
	return nil
}

// Dispatcher forwards high and critical alerts to a sink, one bounded call
// per alert. Lower severities are only logged.
type Dispatcher struct {
	sink    Sink
	timeout time.Duration
}

func NewDispatcher(sink Sink, timeout time.Duration) *Dispatcher {
	return &Dispatcher{sink: sink, timeout: timeout}
}

// Dispatch sends the notifying alerts in order and returns the number sent.
// It stops at the first failure.
func (d *Dispatcher) Dispatch(ctx context.Context, alerts []hpp.Alert) (int, error) {
	sent := 0
	for _, a := range alerts {
		if !a.Severity.Notifies() {
			continue
		}
		if err := d.send(ctx, a); err != nil {
			return sent, err
		}
		sent++
	}
	return sent, nil
}

func (d *Dispatcher) send(ctx context.Context, a hpp.Alert) error {
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}
	err := d.sink.Send(ctx, a)
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return hpp.Wrap(err, hpp.KindDependency, hpp.CodeTimeout, "notification sink timed out")
	}
	return hpp.Wrap(err, hpp.KindDependency, hpp.CodeNotifyFailed, "notification sink failed")
}
