// Package planner prepares aggregation pipelines for execution: it runs the
// backward dependency analysis, fuses pushable leading stages into one
// physical scan request, and installs the resulting cursor as the pipeline's
// source.
package planner

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/driftdb/driftdb/pkg/logger"
	"github.com/driftdb/driftdb/pkg/pipeline"
	"github.com/driftdb/driftdb/pkg/storage"
	"github.com/driftdb/driftdb/pkg/telemetry"
)

var tracer = otel.Tracer("driftdb/internal/planner")

// Planner binds pipelines to a storage engine.
type Planner struct {
	ds     storage.Datastore
	logger logger.Logger
}

type PlannerOption func(*Planner)

func WithLogger(l logger.Logger) PlannerOption {
	return func(p *Planner) {
		p.logger = l
	}
}

// New creates a planner over the given datastore.
func New(ds storage.Datastore, opts ...PlannerOption) *Planner {
	p := &Planner{
		ds:     ds,
		logger: logger.NewNoopLogger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Prepare makes the pipeline executable. It analyzes field dependencies from
// the tail backward, then fuses as much of the pipeline's front as the engine
// can serve natively, with decreasing ambition: a leading filter plus a sort
// when a compatible access path exists, the filter alone otherwise, a bare
// collection scan when nothing is pushable. The fused stages are removed from
// the pipeline and replaced by the returned cursor; surviving stages keep
// their order.
//
// The caller owns the cursor and must Close it after draining the pipeline.
func (p *Planner) Prepare(ctx context.Context, pipe *pipeline.Pipeline) (*Cursor, error) {
	ctx, span := tracer.Start(ctx, "planner.Prepare", trace.WithAttributes(
		attribute.String("collection", pipe.Collection()),
	))
	defer span.End()

	stages := pipe.Stages()
	names := make([]string, len(stages))
	for i, s := range stages {
		names[i] = s.Name()
	}

	tracker := pipeline.NewDependencyTracker(names)
	for i := len(stages) - 1; i >= 0; i-- {
		if err := stages[i].AnalyzeDependencies(i, tracker); err != nil {
			telemetry.TraceError(span, err)
			return nil, err
		}
	}

	var projection storage.Projection
	if tracker.IsClosed() {
		fields, err := tracker.FieldSet()
		if err != nil {
			return nil, err
		}
		for _, field := range fields {
			projection = append(projection, field.String())
		}
	}

	removed := 0
	var filter storage.Filter
	if len(stages) > 0 {
		if f, ok := stages[0].PushableFilter(); ok {
			filter = f
			removed = 1
		}
	}
	var sortKey storage.SortKey
	if len(stages) > removed {
		if k, ok := stages[removed].PushableSortKey(); ok {
			sortKey = k
		}
	}

	req := storage.ScanRequest{
		Namespace:  pipe.Collection(),
		Filter:     filter,
		Projection: projection,
	}

	var scan storage.RecordScan
	sortFused := false
	if len(sortKey) > 0 {
		sorted := req
		sorted.Sort = sortKey

		var err error
		scan, err = p.ds.AcquireScan(ctx, sorted)
		switch {
		case err == nil:
			req = sorted
			removed++
			sortFused = true
		case errors.Is(err, storage.ErrNoCompatibleScan):
			// no access path produces the ordering; the sort stage stays in
			// the pipeline and the scan request keeps only the filter
			scan = nil
		default:
			telemetry.TraceError(span, err)
			return nil, err
		}
	}
	if scan == nil {
		var err error
		scan, err = p.ds.AcquireScan(ctx, req)
		if err != nil {
			telemetry.TraceError(span, err)
			return nil, err
		}
	}

	var explainer storage.Explainer
	if e, ok := p.ds.(storage.Explainer); ok {
		explainer = e
	}
	cur := newCursor(scan, req, explainer)
	cur.registration = p.ds.Registry().Register(req.Namespace, cur.markRevoked)
	if len(req.Filter) > 0 {
		cur.KeepAlive(req.Filter)
	}
	if len(req.Sort) > 0 {
		cur.KeepAlive(req.Sort)
	}

	pipe.ReplaceFront(cur, removed)

	shape := planShape(filter != nil, sortFused)
	preparedPlansCounter.WithLabelValues(shape).Inc()
	span.SetAttributes(
		attribute.String("plan_shape", shape),
		attribute.Int("fused_stages", removed),
		attribute.Bool("projection_closed", tracker.IsClosed()),
	)
	p.logger.Debug("prepared plan",
		zap.String("collection", pipe.Collection()),
		zap.String("shape", shape),
		zap.Int("fused_stages", removed),
		zap.Strings("projection", projection),
	)
	return cur, nil
}

func planShape(filterFused, sortFused bool) string {
	switch {
	case filterFused && sortFused:
		return "filter_sort"
	case filterFused:
		return "filter"
	case sortFused:
		return "sort"
	default:
		return "collscan"
	}
}
