package pipeline

import (
	"context"
	"fmt"

	"github.com/driftdb/driftdb/pkg/document"
	"github.com/driftdb/driftdb/pkg/fieldpath"
	"github.com/driftdb/driftdb/pkg/storage"
)

// MatchName is the operator name of the filter stage.
const MatchName = "$match"

// MatchStage filters its input against a structural filter specification.
// Predicate semantics are delegated to the supplied matcher; the stage itself
// only walks the specification to find field references.
type MatchStage struct {
	baseStage

	filter  storage.Filter
	matcher storage.DocumentMatcher

	started bool
	current *document.Document
}

var _ Stage = (*MatchStage)(nil)

// NewMatch creates a filter stage. The matcher must implement the semantics
// of the given filter; the stage treats it as an opaque boolean capability.
func NewMatch(filter storage.Filter, m storage.DocumentMatcher) *MatchStage {
	return &MatchStage{filter: filter, matcher: m}
}

func (s *MatchStage) Name() string {
	return MatchName
}

// Filter returns the stage's filter specification.
func (s *MatchStage) Filter() storage.Filter {
	return s.filter
}

// PushableFilter exposes the filter for fusion. A structural filter is always
// representable natively, so extraction is lossless.
func (s *MatchStage) PushableFilter() (storage.Filter, bool) {
	return s.filter, true
}

// AnalyzeDependencies registers a dependency for every field the filter
// references. It neither produces fields nor closes the set.
func (s *MatchStage) AnalyzeDependencies(stageIndex int, tracker *DependencyTracker) error {
	return visitFilterFields(s.filter, func(path string) error {
		fp, err := fieldpath.New(path)
		if err != nil {
			return err
		}
		tracker.AddDependency(fp, stageIndex)
		return nil
	})
}

// visitFilterFields walks a filter specification and reports each referenced
// field path. The two logical grouping keys ($and, $or) are recursed into;
// every other key is the field its value constrains, whatever the operator
// inside. The walk only locates field references, it never evaluates
// semantics.
func visitFilterFields(filter storage.Filter, sink func(path string) error) error {
	for key, value := range filter {
		if key != "$and" && key != "$or" {
			if err := sink(key); err != nil {
				return err
			}
			continue
		}

		clauses, ok := value.([]any)
		if !ok {
			return fmt.Errorf("%s requires an array of filters", key)
		}
		for _, clause := range clauses {
			sub, ok := clause.(map[string]any)
			if !ok {
				return fmt.Errorf("%s clauses must be objects", key)
			}
			if err := visitFilterFields(sub, sink); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *MatchStage) EOF(ctx context.Context) (bool, error) {
	if !s.started {
		if err := s.findNext(ctx); err != nil {
			return false, err
		}
	}
	return s.current == nil, nil
}

func (s *MatchStage) Advance(ctx context.Context) (bool, error) {
	if err := checkInterrupt(ctx); err != nil {
		return false, err
	}
	if !s.started {
		if err := s.findNext(ctx); err != nil {
			return false, err
		}
	}
	if err := s.findNext(ctx); err != nil {
		return false, err
	}
	return s.current != nil, nil
}

func (s *MatchStage) Current(ctx context.Context) (*document.Document, error) {
	if !s.started {
		if err := s.findNext(ctx); err != nil {
			return nil, err
		}
	}
	return s.current, nil
}

func (s *MatchStage) findNext(ctx context.Context) error {
	s.started = true
	s.current = nil
	for {
		eof, err := s.source.EOF(ctx)
		if err != nil || eof {
			return err
		}
		doc, err := s.source.Current(ctx)
		if err != nil {
			return err
		}
		ok, err := s.matcher.Matches(doc.Raw())
		if err != nil {
			return err
		}
		if _, err := s.source.Advance(ctx); err != nil {
			return err
		}
		if ok {
			s.current = doc
			return nil
		}
	}
}
