// Package metrics provides OpenTelemetry counters for interview activity.
package metrics

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MeterName is the instrumentation scope of every intervue instrument.
const MeterName = "github.com/thebtf/intervue"

// Metrics records interview lifecycle counters. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	sessions    metric.Int64Counter
	answers     metric.Int64Counter
	completions metric.Int64Counter
	fallbacks   metric.Int64Counter
	scores      metric.Int64Histogram
}

// New creates the instruments on the given meter.
func New(meter metric.Meter) (*Metrics, error) {
	sessions, err := meter.Int64Counter("intervue.sessions.created",
		metric.WithDescription("Candidate sessions created"))
	if err != nil {
		return nil, fmt.Errorf("sessions counter: %w", err)
	}
	answers, err := meter.Int64Counter("intervue.answers.submitted",
		metric.WithDescription("Answers recorded, manual or on timeout"))
	if err != nil {
		return nil, fmt.Errorf("answers counter: %w", err)
	}
	completions, err := meter.Int64Counter("intervue.interviews.completed",
		metric.WithDescription("Interviews completed"))
	if err != nil {
		return nil, fmt.Errorf("completions counter: %w", err)
	}
	fallbacks, err := meter.Int64Counter("intervue.generation.fallbacks",
		metric.WithDescription("Language model calls replaced by the local fallback"))
	if err != nil {
		return nil, fmt.Errorf("fallbacks counter: %w", err)
	}
	scores, err := meter.Int64Histogram("intervue.interviews.score",
		metric.WithDescription("Final interview scores"),
		metric.WithExplicitBucketBoundaries(0, 50, 65, 80, 100))
	if err != nil {
		return nil, fmt.Errorf("score histogram: %w", err)
	}
	return &Metrics{
		sessions:    sessions,
		answers:     answers,
		completions: completions,
		fallbacks:   fallbacks,
		scores:      scores,
	}, nil
}

// NewGlobal creates the instruments on the global meter provider, which is a
// no-op until an SDK provider is installed.
func NewGlobal() (*Metrics, error) {
	return New(otel.Meter(MeterName))
}

// SessionCreated counts a new session by source ("upload" or "sample").
func (m *Metrics) SessionCreated(ctx context.Context, source string) {
	if m == nil {
		return
	}
	m.sessions.Add(ctx, 1, metric.WithAttributes(attribute.String("source", source)))
}

// AnswerSubmitted counts a recorded answer.
func (m *Metrics) AnswerSubmitted(ctx context.Context, timedOut bool) {
	if m == nil {
		return
	}
	m.answers.Add(ctx, 1, metric.WithAttributes(attribute.Bool("timed_out", timedOut)))
}

// InterviewCompleted counts a completion and records its score.
func (m *Metrics) InterviewCompleted(ctx context.Context, score int) {
	if m == nil {
		return
	}
	m.completions.Add(ctx, 1)
	m.scores.Record(ctx, int64(score))
}

// FallbackUsed counts a generation that fell back to local logic.
func (m *Metrics) FallbackUsed(ctx context.Context, kind string) {
	if m == nil {
		return
	}
	m.fallbacks.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}
