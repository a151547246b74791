package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "asktennis"

// Metrics holds the pipeline's metric instruments. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	Answers       metric.Int64Counter
	CacheHits     metric.Int64Counter
	CacheMisses   metric.Int64Counter
	Degradations  metric.Int64Counter
	LLMCalls      metric.Int64Counter
	StageDuration metric.Float64Histogram
	QueryDuration metric.Float64Histogram
}

// NewMetrics creates all metric instruments on the global meter provider.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.Answers, err = meter.Int64Counter("asktennis.answers",
		metric.WithDescription("Answers returned, by query type"))
	if err != nil {
		return nil, err
	}

	m.CacheHits, err = meter.Int64Counter("asktennis.cache.hits",
		metric.WithDescription("Answer cache hits"))
	if err != nil {
		return nil, err
	}

	m.CacheMisses, err = meter.Int64Counter("asktennis.cache.misses",
		metric.WithDescription("Answer cache misses"))
	if err != nil {
		return nil, err
	}

	m.Degradations, err = meter.Int64Counter("asktennis.pipeline.degradations",
		metric.WithDescription("Transitions into the degraded retry, by failing stage"))
	if err != nil {
		return nil, err
	}

	m.LLMCalls, err = meter.Int64Counter("asktennis.llm.calls",
		metric.WithDescription("Language model calls, by purpose and outcome"))
	if err != nil {
		return nil, err
	}

	m.StageDuration, err = meter.Float64Histogram("asktennis.pipeline.stage_seconds",
		metric.WithDescription("Pipeline stage duration in seconds"))
	if err != nil {
		return nil, err
	}

	m.QueryDuration, err = meter.Float64Histogram("asktennis.store.query_seconds",
		metric.WithDescription("Relational store query duration in seconds"))
	if err != nil {
		return nil, err
	}

	return m, nil
}

func (m *Metrics) RecordAnswer(ctx context.Context, queryType string, cached bool) {
	if m == nil {
		return
	}
	m.Answers.Add(ctx, 1, metric.WithAttributes(
		attribute.String("query_type", queryType),
		attribute.Bool("cached", cached),
	))
}

func (m *Metrics) RecordCache(ctx context.Context, hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.CacheHits.Add(ctx, 1)
		return
	}
	m.CacheMisses.Add(ctx, 1)
}

func (m *Metrics) RecordDegradation(ctx context.Context, stage string) {
	if m == nil {
		return
	}
	m.Degradations.Add(ctx, 1, metric.WithAttributes(attribute.String("stage", stage)))
}

func (m *Metrics) RecordLLMCall(ctx context.Context, purpose string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.LLMCalls.Add(ctx, 1, metric.WithAttributes(
		attribute.String("purpose", purpose),
		attribute.String("outcome", outcome),
	))
}

func (m *Metrics) RecordStage(ctx context.Context, stage string, seconds float64) {
	if m == nil {
		return
	}
	m.StageDuration.Record(ctx, seconds, metric.WithAttributes(attribute.String("stage", stage)))
}

func (m *Metrics) RecordQuery(ctx context.Context, source string, seconds float64, err error) {
	if m == nil {
		return
	}
	m.QueryDuration.Record(ctx, seconds, metric.WithAttributes(
		attribute.String("source", source),
		attribute.Bool("error", err != nil),
	))
}
