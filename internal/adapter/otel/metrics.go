package otel

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "provgraph"

// Metrics holds the ingest pipeline's metric instruments.
type Metrics struct {
	EventsIngested metric.Int64Counter
	EventsRejected metric.Int64Counter
	EventsDeduped  metric.Int64Counter
	NodesUpserted  metric.Int64Counter
	EdgesUpserted  metric.Int64Counter
	WriteRetries   metric.Int64Counter
	ApplyDuration  metric.Float64Histogram
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.EventsIngested, err = meter.Int64Counter("provgraph.events.ingested",
		metric.WithDescription("Events accepted and applied to the graph"))
	if err != nil {
		return nil, err
	}
	m.EventsRejected, err = meter.Int64Counter("provgraph.events.rejected",
		metric.WithDescription("Events rejected by validation"))
	if err != nil {
		return nil, err
	}
	m.EventsDeduped, err = meter.Int64Counter("provgraph.events.deduped",
		metric.WithDescription("Events skipped by the event-id dedup cache"))
	if err != nil {
		return nil, err
	}
	m.NodesUpserted, err = meter.Int64Counter("provgraph.nodes.upserted",
		metric.WithDescription("Node upserts written to the store"))
	if err != nil {
		return nil, err
	}
	m.EdgesUpserted, err = meter.Int64Counter("provgraph.edges.upserted",
		metric.WithDescription("Edge upserts written to the store"))
	if err != nil {
		return nil, err
	}
	m.WriteRetries, err = meter.Int64Counter("provgraph.write.retries",
		metric.WithDescription("Store applies retried after transient failures"))
	if err != nil {
		return nil, err
	}
	m.ApplyDuration, err = meter.Float64Histogram("provgraph.apply.duration_seconds",
		metric.WithDescription("Store apply duration in seconds"))
	if err != nil {
		return nil, err
	}

	return m, nil
}
