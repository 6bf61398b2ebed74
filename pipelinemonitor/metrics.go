package pipelinemonitor

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the engine's OTEL instruments. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	fetches       metric.Int64Counter
	fetchDuration metric.Float64Histogram
	retries       metric.Int64Counter
	records       metric.Int64Counter
	cacheOps      metric.Int64Counter
}

// NewMetrics creates instruments on the global meter provider.
func NewMetrics() (*Metrics, error) {
	return NewMetricsWithProvider(otel.GetMeterProvider())
}

// NewMetricsWithProvider creates instruments on the given provider.
func NewMetricsWithProvider(mp metric.MeterProvider) (*Metrics, error) {
	meter := mp.Meter("pipelinemonitor")

	fetches, err := meter.Int64Counter(
		"pipelinemonitor.fetches",
		metric.WithDescription("Number of fetch cycles"),
		metric.WithUnit("{fetch}"),
	)
	if err != nil {
		return nil, err
	}

	fetchDuration, err := meter.Float64Histogram(
		"pipelinemonitor.fetch.duration",
		metric.WithDescription("Duration of fetch cycles"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	retries, err := meter.Int64Counter(
		"pipelinemonitor.retries",
		metric.WithDescription("Number of retries after transient errors"),
		metric.WithUnit("{retry}"),
	)
	if err != nil {
		return nil, err
	}

	records, err := meter.Int64Counter(
		"pipelinemonitor.records",
		metric.WithDescription("Number of records fetched, by status"),
		metric.WithUnit("{record}"),
	)
	if err != nil {
		return nil, err
	}

	cacheOps, err := meter.Int64Counter(
		"pipelinemonitor.cache.operations",
		metric.WithDescription("Number of cache operations"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		fetches:       fetches,
		fetchDuration: fetchDuration,
		retries:       retries,
		records:       records,
		cacheOps:      cacheOps,
	}, nil
}

// RecordFetch records a completed or failed fetch cycle.
func (m *Metrics) RecordFetch(ctx context.Context, rt ResourceType, result string, d time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("resource.type", rt.String()),
		attribute.String("result", result),
	)
	m.fetches.Add(ctx, 1, attrs)
	m.fetchDuration.Record(ctx, d.Seconds(), attrs)
}

// RecordRetry records one backoff.
func (m *Metrics) RecordRetry(ctx context.Context, rt ResourceType) {
	if m == nil {
		return
	}
	m.retries.Add(ctx, 1, metric.WithAttributes(attribute.String("resource.type", rt.String())))
}

// RecordRecords records the status breakdown of a batch.
func (m *Metrics) RecordRecords(ctx context.Context, rt ResourceType, counts map[Status]int) {
	if m == nil {
		return
	}
	for status, n := range counts {
		m.records.Add(ctx, int64(n), metric.WithAttributes(
			attribute.String("resource.type", rt.String()),
			attribute.String("status", string(status)),
		))
	}
}

// RecordCacheOperation records a cache save/load/freshness check.
func (m *Metrics) RecordCacheOperation(ctx context.Context, op string, result string) {
	if m == nil {
		return
	}
	m.cacheOps.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", op),
		attribute.String("result", result),
	))
}
