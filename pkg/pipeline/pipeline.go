// Package pipeline implements the aggregation pipeline stage abstraction and
// the backward dependency analysis run over it. Stages share one iteration
// contract and may expose pushdown capabilities that the planner uses to fuse
// leading stages into the physical scan.
package pipeline

import (
	"context"

	"github.com/driftdb/driftdb/pkg/document"
	"github.com/driftdb/driftdb/pkg/storage"
)

// Stage is one step of an aggregation pipeline.
//
// Iteration follows the cursor pattern shared by every stage: EOF positions
// the stage on its first document if needed and reports exhaustion, Current
// returns the current snapshot (nil when exhausted), and Advance moves one
// document forward, reporting whether a document is now current. Advance is a
// cancellation checkpoint: context cancellation surfaces as ErrInterrupted.
type Stage interface {
	// Name returns the stage's operator name, e.g. "$match".
	Name() string

	EOF(ctx context.Context) (bool, error)
	Advance(ctx context.Context) (bool, error)
	Current(ctx context.Context) (*document.Document, error)

	// SetSource attaches the upstream stage. Leaf stages panic with
	// ErrContractViolation; they never accept a source.
	SetSource(src Stage)

	// AnalyzeDependencies gives the stage its turn in the backward dependency
	// scan: remove the dependencies it produces (reporting any tracked
	// dependency it cannot produce), add the fields it reads, and close the
	// set when its output fields are fully determined. stageIndex is the
	// stage's stable position in the pipeline under analysis.
	AnalyzeDependencies(stageIndex int, tracker *DependencyTracker) error

	// PushableFilter returns the stage's predicate as a native filter
	// specification, if it is representable without loss.
	PushableFilter() (storage.Filter, bool)

	// PushableSortKey returns the stage's sort key as a native sort
	// specification, if it is representable without loss.
	PushableSortKey() (storage.SortKey, bool)
}

// Pipeline is an ordered stage list bound to a target collection.
type Pipeline struct {
	collection string
	stages     []Stage
}

// New creates a pipeline over the named collection. Stages are wired
// front-to-back; the first stage is expected to be replaced by a cursor
// source during planning.
func New(collection string, stages ...Stage) *Pipeline {
	p := &Pipeline{collection: collection, stages: stages}
	p.connect()
	return p
}

// Collection returns the target collection name.
func (p *Pipeline) Collection() string {
	return p.collection
}

// Stages returns the current stage list. The planner shortens it in place.
func (p *Pipeline) Stages() []Stage {
	return p.stages
}

// Tail returns the last stage, the one downstream consumers iterate.
func (p *Pipeline) Tail() Stage {
	if len(p.stages) == 0 {
		return nil
	}
	return p.stages[len(p.stages)-1]
}

// ReplaceFront removes `removed` stages from the front of the list, installs
// head as the new first stage, and rewires the sources of the remainder.
// Relative order of the surviving stages never changes.
func (p *Pipeline) ReplaceFront(head Stage, removed int) {
	rest := p.stages[removed:]
	p.stages = append([]Stage{head}, rest...)
	p.connect()
}

func (p *Pipeline) connect() {
	for i := 1; i < len(p.stages); i++ {
		p.stages[i].SetSource(p.stages[i-1])
	}
}

// Drain iterates a stage to exhaustion and collects every document.
func Drain(ctx context.Context, s Stage) ([]*document.Document, error) {
	var out []*document.Document
	for {
		eof, err := s.EOF(ctx)
		if err != nil {
			return nil, err
		}
		if eof {
			return out, nil
		}
		doc, err := s.Current(ctx)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
		if _, err := s.Advance(ctx); err != nil {
			return nil, err
		}
	}
}
