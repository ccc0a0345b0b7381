package planner

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/emirpasic/gods/sets/hashset"

	"github.com/driftdb/driftdb/pkg/document"
	"github.com/driftdb/driftdb/pkg/pipeline"
	"github.com/driftdb/driftdb/pkg/storage"
)

// CursorName is the operator name of the cursor source stage.
const CursorName = "$cursor"

// Cursor is the leaf source stage installed by plan preparation. It drives a
// physical record scan one document at a time: each document is matched
// against the scan's residual predicate, snapshotted, and only then does the
// scan advance and yield, so interleaved collection operations run while no
// record is pinned.
//
// The cursor keeps the set of record ids it has already surfaced. A record
// whose position is revisited after structural movement during a yield is
// returned exactly once.
type Cursor struct {
	scan         storage.RecordScan
	registration *storage.Registration
	explainer    storage.Explainer

	namespace  string
	query      storage.Filter
	sortSpec   storage.SortKey
	projection storage.Projection

	returned  *hashset.Set
	keepAlive []any
	revoked   atomic.Bool
	started   bool
	exhausted bool
	closed    bool
	current   *document.Document
}

var _ pipeline.Stage = (*Cursor)(nil)

func newCursor(scan storage.RecordScan, req storage.ScanRequest, explainer storage.Explainer) *Cursor {
	return &Cursor{
		scan:       scan,
		explainer:  explainer,
		namespace:  req.Namespace,
		query:      req.Filter,
		sortSpec:   req.Sort,
		projection: req.Projection,
		returned:   hashset.New(),
	}
}

func (c *Cursor) Name() string {
	return CursorName
}

// SetSource panics: the cursor is always the pipeline's leaf.
func (c *Cursor) SetSource(pipeline.Stage) {
	panic(fmt.Errorf("%w: %s does not accept a source", pipeline.ErrContractViolation, CursorName))
}

func (c *Cursor) AnalyzeDependencies(int, *pipeline.DependencyTracker) error {
	return nil
}

func (c *Cursor) PushableFilter() (storage.Filter, bool) {
	return nil, false
}

func (c *Cursor) PushableSortKey() (storage.SortKey, bool) {
	return nil, false
}

// Namespace returns the scanned collection.
func (c *Cursor) Namespace() string {
	return c.namespace
}

// Query returns the filter that was fused into the scan.
func (c *Cursor) Query() storage.Filter {
	return c.query
}

// SortSpec returns the ordering the scan produces natively, if any.
func (c *Cursor) SortSpec() storage.SortKey {
	return c.sortSpec
}

// Projection returns the field-set hint attached to the scan, if dependency
// analysis closed the set.
func (c *Cursor) Projection() storage.Projection {
	return c.projection
}

// KeepAlive retains handle until the cursor closes. Specification values the
// scan references without copying are registered here so they outlive it.
func (c *Cursor) KeepAlive(handle any) {
	c.keepAlive = append(c.keepAlive, handle)
}

func (c *Cursor) EOF(ctx context.Context) (bool, error) {
	if !c.started {
		if err := c.findNext(ctx); err != nil {
			return false, err
		}
	}
	return c.current == nil, nil
}

func (c *Cursor) Advance(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, fmt.Errorf("%w: %s", pipeline.ErrInterrupted, err)
	}
	if !c.started {
		if err := c.findNext(ctx); err != nil {
			return false, err
		}
	}
	if err := c.findNext(ctx); err != nil {
		return false, err
	}
	return c.current != nil, nil
}

func (c *Cursor) Current(ctx context.Context) (*document.Document, error) {
	if !c.started {
		if err := c.findNext(ctx); err != nil {
			return nil, err
		}
	}
	return c.current, nil
}

func (c *Cursor) findNext(ctx context.Context) error {
	c.started = true
	c.current = nil
	if c.exhausted || c.closed {
		return nil
	}

	for {
		if c.revoked.Load() {
			invalidatedCursorsCounter.Inc()
			return fmt.Errorf("%w: collection %s was dropped", ErrCursorInvalidated, c.namespace)
		}
		if !c.scan.HasMore() {
			c.exhausted = true
			return nil
		}

		rec, err := c.scan.Current()
		if err != nil {
			return err
		}

		keep := true
		if c.scan.IsDuplicate(rec.ID) || c.returned.Contains(string(rec.ID)) {
			keep = false
			cursorDedupSkipsCounter.Inc()
		}
		if keep {
			if m := c.scan.Matcher(); m != nil {
				keep, err = m.Matches(rec.Data)
				if err != nil {
					return err
				}
			}
		}

		// snapshot before the scan yields: the record buffer is only valid
		// while the scan is positioned on it
		var doc *document.Document
		if keep {
			doc, err = document.FromBytes(rec.Data)
			if err != nil {
				return err
			}
			c.returned.Add(string(rec.ID))
		}

		if err := c.advanceScan(ctx); err != nil {
			return err
		}
		if keep {
			c.current = doc
			cursorDocumentsCounter.Inc()
			return nil
		}
	}
}

// advanceScan moves the scan forward through its yield point and revalidates
// the outcome: invalidation surfaces as ErrCursorInvalidated, cancellation as
// ErrInterrupted, neither ever as a clean end-of-stream.
func (c *Cursor) advanceScan(ctx context.Context) error {
	err := c.scan.Advance(ctx)
	if err == nil {
		if c.revoked.Load() {
			invalidatedCursorsCounter.Inc()
			return fmt.Errorf("%w: collection %s was dropped", ErrCursorInvalidated, c.namespace)
		}
		return nil
	}
	if errors.Is(err, storage.ErrScanInvalidated) {
		invalidatedCursorsCounter.Inc()
		return fmt.Errorf("%w: %s", ErrCursorInvalidated, err)
	}
	if ctx.Err() != nil {
		return fmt.Errorf("%w: %s", pipeline.ErrInterrupted, err)
	}
	return err
}

func (c *Cursor) markRevoked() {
	c.revoked.Store(true)
}

// Explain returns the storage engine's plan for the fused scan, when the
// engine offers the side channel.
func (c *Cursor) Explain(ctx context.Context) (map[string]any, error) {
	if c.explainer == nil {
		return nil, fmt.Errorf("storage engine does not support explain")
	}
	return c.explainer.ExplainScan(ctx, storage.ScanRequest{
		Namespace:  c.namespace,
		Filter:     c.query,
		Sort:       c.sortSpec,
		Projection: c.projection,
	})
}

// PlanSummary returns the structural summary of the fused scan: namespace and
// whichever of filter, sort and projection were attached. With withEngine set,
// the engine's own plan explanation is appended when the side channel exists.
func (c *Cursor) PlanSummary(ctx context.Context, withEngine bool) (map[string]any, error) {
	summary := map[string]any{"namespace": c.namespace}
	if len(c.query) > 0 {
		summary["filter"] = c.query
	}
	if len(c.sortSpec) > 0 {
		sort := make([]string, 0, len(c.sortSpec))
		for _, field := range c.sortSpec {
			name := field.Path.String()
			if field.Descending {
				name = "-" + name
			}
			sort = append(sort, name)
		}
		summary["sort"] = sort
	}
	if len(c.projection) > 0 {
		summary["projection"] = c.projection
	}
	if withEngine && c.explainer != nil {
		plan, err := c.Explain(ctx)
		if err != nil {
			return nil, err
		}
		summary["enginePlan"] = plan
	}
	return summary, nil
}

// Close releases the cursor's storage resources. The registration is released
// before the scan so the engine never sees a closed scan with a live claim.
// Close is idempotent.
func (c *Cursor) Close() {
	if c.closed {
		return
	}
	c.closed = true
	c.current = nil
	if c.registration != nil {
		c.registration.Release()
	}
	c.scan.Close()
	c.keepAlive = nil
}
