package promotion

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "offerengine/promotion"

var tracer = otel.Tracer(instrumentationName)

// runMetrics counts pricing runs and their side effects.
type runMetrics struct {
	runs       metric.Int64Counter
	applied    metric.Int64Counter
	collisions metric.Int64Counter
}

func newRunMetrics(meter metric.Meter) *runMetrics {
	if meter == nil {
		meter = otel.GetMeterProvider().Meter(instrumentationName)
	}
	m := &runMetrics{}
	// Instrument creation only fails on invalid names; a nil counter is skipped.
	m.runs, _ = meter.Int64Counter("promotion.runs",
		metric.WithDescription("Pricing runs by kind"))
	m.applied, _ = meter.Int64Counter("promotion.offers_applied",
		metric.WithDescription("Distinct offers present on an order after a run"))
	m.collisions, _ = meter.Int64Counter("promotion.adjustment_collisions",
		metric.WithDescription("Duplicate price detail adjustments removed"))
	return m
}

func (m *runMetrics) run(ctx context.Context, kind string) {
	if m.runs != nil {
		m.runs.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
	}
}

func (m *runMetrics) offersApplied(ctx context.Context, kind string, n int) {
	if m.applied != nil && n > 0 {
		m.applied.Add(ctx, int64(n), metric.WithAttributes(attribute.String("kind", kind)))
	}
}

func (m *runMetrics) collision(ctx context.Context, beforeSave bool) {
	if m.collisions != nil {
		m.collisions.Add(ctx, 1, metric.WithAttributes(attribute.Bool("before_save", beforeSave)))
	}
}
