package pipeline

import (
	"context"
	"fmt"

	"github.com/driftdb/driftdb/pkg/document"
	"github.com/driftdb/driftdb/pkg/storage"
)

// DocumentsName is the operator name of the fixed-input source stage.
const DocumentsName = "$documents"

// DocumentsStage is a leaf source over a fixed document slice, used for
// pipelines that run off provided input rather than a collection scan, and as
// the upstream in stage tests.
type DocumentsStage struct {
	docs []*document.Document
	pos  int
}

var _ Stage = (*DocumentsStage)(nil)

// NewDocuments creates a source stage over docs.
func NewDocuments(docs ...*document.Document) *DocumentsStage {
	return &DocumentsStage{docs: docs}
}

func (s *DocumentsStage) Name() string {
	return DocumentsName
}

// SetSource panics: a leaf source never accepts an upstream stage.
func (s *DocumentsStage) SetSource(src Stage) {
	panic(fmt.Errorf("%w: %s does not accept a source", ErrContractViolation, DocumentsName))
}

func (s *DocumentsStage) AnalyzeDependencies(stageIndex int, tracker *DependencyTracker) error {
	return nil
}

func (s *DocumentsStage) PushableFilter() (storage.Filter, bool) {
	return nil, false
}

func (s *DocumentsStage) PushableSortKey() (storage.SortKey, bool) {
	return nil, false
}

func (s *DocumentsStage) EOF(ctx context.Context) (bool, error) {
	return s.pos >= len(s.docs), nil
}

func (s *DocumentsStage) Advance(ctx context.Context) (bool, error) {
	if err := checkInterrupt(ctx); err != nil {
		return false, err
	}
	if s.pos < len(s.docs) {
		s.pos++
	}
	return s.pos < len(s.docs), nil
}

func (s *DocumentsStage) Current(ctx context.Context) (*document.Document, error) {
	if s.pos >= len(s.docs) {
		return nil, nil
	}
	return s.docs[s.pos], nil
}
