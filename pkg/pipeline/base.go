package pipeline

import (
	"context"
	"fmt"

	"github.com/driftdb/driftdb/pkg/document"
	"github.com/driftdb/driftdb/pkg/storage"
)

// baseStage carries the behavior shared by the ordinary (non-leaf) stages:
// source wiring, no-op dependency analysis, and absent pushdown capabilities.
type baseStage struct {
	source Stage
}

func (b *baseStage) SetSource(src Stage) {
	b.source = src
}

func (b *baseStage) AnalyzeDependencies(stageIndex int, tracker *DependencyTracker) error {
	return nil
}

func (b *baseStage) PushableFilter() (storage.Filter, bool) {
	return nil, false
}

func (b *baseStage) PushableSortKey() (storage.SortKey, bool) {
	return nil, false
}

// checkInterrupt observes cooperative cancellation at an Advance checkpoint.
func checkInterrupt(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %s", ErrInterrupted, err)
	}
	return nil
}

// sourceDocs drains the upstream stage; used by blocking stages that must see
// their whole input before producing anything.
func (b *baseStage) sourceDocs(ctx context.Context) ([]*document.Document, error) {
	return Drain(ctx, b.source)
}
