package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "promptbench"

// Metrics holds all OTEL metric instruments for promptbench.
// All counters are cumulative (monotonic) and safe for concurrent use.
type Metrics struct {
	// LLM token counters (partitioned by provider + model via attributes)
	InputTokens  metric.Int64Counter
	OutputTokens metric.Int64Counter

	// Experiment counters
	ExperimentRuns metric.Int64Counter // partitioned by terminal status
	ExperimentRows metric.Int64Counter // partitioned by rating
}

// NewMetrics creates all metric instruments. Returns no-op instruments
// when no MeterProvider is registered (safe to call unconditionally).
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.InputTokens, err = meter.Int64Counter("llm.tokens.input",
		metric.WithDescription("Total LLM input tokens consumed"),
		metric.WithUnit("{token}"))
	if err != nil {
		return nil, err
	}

	m.OutputTokens, err = meter.Int64Counter("llm.tokens.output",
		metric.WithDescription("Total LLM output tokens consumed"),
		metric.WithUnit("{token}"))
	if err != nil {
		return nil, err
	}

	m.ExperimentRuns, err = meter.Int64Counter("experiment.runs",
		metric.WithDescription("Experiment runs reaching a terminal status (completed, failed)"))
	if err != nil {
		return nil, err
	}

	m.ExperimentRows, err = meter.Int64Counter("experiment.rows",
		metric.WithDescription("Experiment dataset rows scored, partitioned by rating"))
	if err != nil {
		return nil, err
	}

	return m, nil
}

// RecordTokens records LLM token usage on the metric counters.
func (m *Metrics) RecordTokens(ctx context.Context, provider, model string, input, output int64) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("llm.provider", provider),
		attribute.String("llm.model", model),
	)
	m.InputTokens.Add(ctx, input, attrs)
	m.OutputTokens.Add(ctx, output, attrs)
}

// RecordRun records an experiment run reaching a terminal status.
func (m *Metrics) RecordRun(ctx context.Context, status string) {
	if m == nil {
		return
	}
	m.ExperimentRuns.Add(ctx, 1, metric.WithAttributes(
		attribute.String("run.status", status),
	))
}

// RecordRow records one scored dataset row.
func (m *Metrics) RecordRow(ctx context.Context, rating string) {
	if m == nil {
		return
	}
	m.ExperimentRows.Add(ctx, 1, metric.WithAttributes(
		attribute.String("row.rating", rating),
	))
}
