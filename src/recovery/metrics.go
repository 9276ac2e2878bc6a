package recovery

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/Blackdeer1524/PageDB/src/recovery"

// Metrics counts page-level outcomes. A nil *Metrics records nothing.
type Metrics struct {
	applied metric.Int64Counter
	skipped metric.Int64Counter
	drained metric.Int64Counter
}

// NewMetrics registers the counters on meter, or on the global meter
// provider when meter is nil.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	if meter == nil {
		meter = otel.Meter(instrumentationName)
	}

	applied, err := meter.Int64Counter(
		"recovery.records.applied",
		metric.WithDescription("Page changes applied by redo or undo"),
	)
	if err != nil {
		return nil, err
	}

	skipped, err := meter.Int64Counter(
		"recovery.records.skipped",
		metric.WithDescription("Page changes skipped by the page-LSN rule"),
	)
	if err != nil {
		return nil, err
	}

	drained, err := meter.Int64Counter(
		"recovery.limbo.drained",
		metric.WithDescription("Pages linked onto free lists from limbo"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{applied: applied, skipped: skipped, drained: drained}, nil
}

func (m *Metrics) Applied(ctx context.Context, kind Kind, op Op) {
	if m == nil {
		return
	}
	m.applied.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind.String()),
		attribute.String("op", op.String()),
	))
}

func (m *Metrics) Skipped(ctx context.Context, kind Kind, op Op) {
	if m == nil {
		return
	}
	m.skipped.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind.String()),
		attribute.String("op", op.String()),
	))
}

func (m *Metrics) Drained(ctx context.Context, n int) {
	if m == nil || n == 0 {
		return
	}
	m.drained.Add(ctx, int64(n))
}
