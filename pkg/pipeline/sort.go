package pipeline

import (
	"context"
	"sort"

	"github.com/driftdb/driftdb/pkg/document"
	"github.com/driftdb/driftdb/pkg/storage"
)

// SortName is the operator name of the sort stage.
const SortName = "$sort"

// SortStage orders its entire input by a sort key. It is a blocking stage:
// the first access drains the source. When the planner fuses the stage into a
// sorted scan, it never executes at all.
type SortStage struct {
	baseStage

	key storage.SortKey

	populated bool
	docs      []*document.Document
	pos       int
}

var _ Stage = (*SortStage)(nil)

// NewSort creates a sort stage over the given key.
func NewSort(key storage.SortKey) *SortStage {
	return &SortStage{key: key}
}

func (s *SortStage) Name() string {
	return SortName
}

// SortKey returns the stage's sort specification.
func (s *SortStage) SortKey() storage.SortKey {
	return s.key
}

// PushableSortKey exposes the key for fusion; a plain field sort key is
// always representable natively.
func (s *SortStage) PushableSortKey() (storage.SortKey, bool) {
	return s.key, true
}

// AnalyzeDependencies adds a dependency for every sort key field. Sorting
// passes documents through unchanged, so nothing is produced and the set's
// open/closed state is untouched.
func (s *SortStage) AnalyzeDependencies(stageIndex int, tracker *DependencyTracker) error {
	for _, field := range s.key {
		tracker.AddDependency(field.Path, stageIndex)
	}
	return nil
}

func (s *SortStage) EOF(ctx context.Context) (bool, error) {
	if err := s.populate(ctx); err != nil {
		return false, err
	}
	return s.pos >= len(s.docs), nil
}

func (s *SortStage) Advance(ctx context.Context) (bool, error) {
	if err := checkInterrupt(ctx); err != nil {
		return false, err
	}
	if err := s.populate(ctx); err != nil {
		return false, err
	}
	if s.pos < len(s.docs) {
		s.pos++
	}
	return s.pos < len(s.docs), nil
}

func (s *SortStage) Current(ctx context.Context) (*document.Document, error) {
	if err := s.populate(ctx); err != nil {
		return nil, err
	}
	if s.pos >= len(s.docs) {
		return nil, nil
	}
	return s.docs[s.pos], nil
}

func (s *SortStage) populate(ctx context.Context) error {
	if s.populated {
		return nil
	}
	docs, err := s.sourceDocs(ctx)
	if err != nil {
		return err
	}
	sort.SliceStable(docs, func(i, j int) bool {
		return s.less(docs[i], docs[j])
	})
	s.docs = docs
	s.populated = true
	return nil
}

func (s *SortStage) less(a, b *document.Document) bool {
	for _, field := range s.key {
		av, _ := a.Field(field.Path)
		bv, _ := b.Field(field.Path)
		cmp := storage.CompareValues(av, bv)
		if cmp == 0 {
			continue
		}
		if field.Descending {
			return cmp > 0
		}
		return cmp < 0
	}
	return false
}
