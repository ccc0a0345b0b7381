package pipeline

import (
	"context"

	"github.com/driftdb/driftdb/pkg/document"
	"github.com/driftdb/driftdb/pkg/fieldpath"
)

// ProjectName is the operator name of the projection stage.
const ProjectName = "$project"

// ProjectStage reshapes documents to an inclusion list of field paths.
// Because the stage enumerates its complete output, it closes the dependency
// set during analysis.
type ProjectStage struct {
	baseStage

	fields []fieldpath.FieldPath

	started bool
	current *document.Document
}

var _ Stage = (*ProjectStage)(nil)

// NewProject creates an inclusion projection over the given paths.
func NewProject(fields ...fieldpath.FieldPath) *ProjectStage {
	return &ProjectStage{fields: fields}
}

func (s *ProjectStage) Name() string {
	return ProjectName
}

// AnalyzeDependencies removes the dependencies this projection produces,
// reports any tracked dependency it cannot produce, re-adds its inputs (an
// inclusion reads exactly what it emits), and closes the set: the output
// fields are now fully enumerated.
func (s *ProjectStage) AnalyzeDependencies(stageIndex int, tracker *DependencyTracker) error {
	for _, field := range s.fields {
		tracker.RemoveDependency(field)
	}
	if err := tracker.ReportFirstUnsatisfied(stageIndex); err != nil {
		return err
	}
	for _, field := range s.fields {
		tracker.AddDependency(field, stageIndex)
	}
	tracker.MarkClosed()
	return nil
}

func (s *ProjectStage) EOF(ctx context.Context) (bool, error) {
	if !s.started {
		if err := s.findNext(ctx); err != nil {
			return false, err
		}
	}
	return s.current == nil, nil
}

func (s *ProjectStage) Advance(ctx context.Context) (bool, error) {
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

func (s *ProjectStage) Current(ctx context.Context) (*document.Document, error) {
	if !s.started {
		if err := s.findNext(ctx); err != nil {
			return nil, err
		}
	}
	return s.current, nil
}

func (s *ProjectStage) findNext(ctx context.Context) error {
	s.started = true
	s.current = nil

	eof, err := s.source.EOF(ctx)
	if err != nil || eof {
		return err
	}
	doc, err := s.source.Current(ctx)
	if err != nil {
		return err
	}
	projected, err := doc.Project(s.fields)
	if err != nil {
		return err
	}
	if _, err := s.source.Advance(ctx); err != nil {
		return err
	}
	s.current = projected
	return nil
}
