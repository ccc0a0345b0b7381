package pipeline

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/driftdb/driftdb/pkg/document"
	"github.com/driftdb/driftdb/pkg/fieldpath"
	"github.com/driftdb/driftdb/pkg/storage"
)

// GroupName is the operator name of the grouping stage.
const GroupName = "$group"

// Accumulator describes one accumulated output field of a group stage.
type Accumulator struct {
	// Field is the output field name.
	Field string
	// Op is the accumulator operator: $sum, $min, $max, $first or $count.
	Op string
	// Source is the input field the accumulator reads. Unused by $count.
	Source fieldpath.FieldPath
}

// GroupStage groups its input by a key field and computes accumulated
// outputs. It is a blocking stage, and since it enumerates its complete
// output it closes the dependency set during analysis.
type GroupStage struct {
	baseStage

	idPath fieldpath.FieldPath
	hasID  bool
	accums []Accumulator

	populated bool
	docs      []*document.Document
	pos       int
}

var _ Stage = (*GroupStage)(nil)

// NewGroup creates a group stage keyed by idPath.
func NewGroup(idPath fieldpath.FieldPath, accums ...Accumulator) *GroupStage {
	return &GroupStage{idPath: idPath, hasID: true, accums: accums}
}

// NewGroupAll creates a group stage that folds the whole input into a single
// group (a null grouping key).
func NewGroupAll(accums ...Accumulator) *GroupStage {
	return &GroupStage{accums: accums}
}

func (s *GroupStage) Name() string {
	return GroupName
}

// AnalyzeDependencies removes the dependencies this stage produces (the _id
// key and each accumulated field), reports any leftover dependency as
// unsatisfiable, adds the fields it reads, and closes the set.
func (s *GroupStage) AnalyzeDependencies(stageIndex int, tracker *DependencyTracker) error {
	idField, err := fieldpath.New("_id")
	if err != nil {
		return err
	}
	tracker.RemoveDependency(idField)
	for _, acc := range s.accums {
		out, err := fieldpath.New(acc.Field)
		if err != nil {
			return err
		}
		tracker.RemoveDependency(out)
	}

	if err := tracker.ReportFirstUnsatisfied(stageIndex); err != nil {
		return err
	}

	if s.hasID {
		tracker.AddDependency(s.idPath, stageIndex)
	}
	for _, acc := range s.accums {
		if acc.Op != "$count" {
			tracker.AddDependency(acc.Source, stageIndex)
		}
	}

	tracker.MarkClosed()
	return nil
}

func (s *GroupStage) EOF(ctx context.Context) (bool, error) {
	if err := s.populate(ctx); err != nil {
		return false, err
	}
	return s.pos >= len(s.docs), nil
}

func (s *GroupStage) Advance(ctx context.Context) (bool, error) {
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

func (s *GroupStage) Current(ctx context.Context) (*document.Document, error) {
	if err := s.populate(ctx); err != nil {
		return nil, err
	}
	if s.pos >= len(s.docs) {
		return nil, nil
	}
	return s.docs[s.pos], nil
}

type groupState struct {
	id     any
	accums []accumState
}

type accumState struct {
	value any
	count float64
	seen  bool
}

func (s *GroupStage) populate(ctx context.Context) error {
	if s.populated {
		return nil
	}
	input, err := s.sourceDocs(ctx)
	if err != nil {
		return err
	}

	groups := make(map[string]*groupState)
	var order []string
	for _, doc := range input {
		var id any
		if s.hasID {
			id, _ = doc.Field(s.idPath)
		}
		key, err := groupKey(id)
		if err != nil {
			return err
		}
		g, ok := groups[key]
		if !ok {
			g = &groupState{id: id, accums: make([]accumState, len(s.accums))}
			groups[key] = g
			order = append(order, key)
		}
		for i, acc := range s.accums {
			if err := accumulate(&g.accums[i], acc, doc); err != nil {
				return err
			}
		}
	}

	docs := make([]*document.Document, 0, len(order))
	for _, key := range order {
		g := groups[key]
		fields := map[string]any{"_id": g.id}
		for i, acc := range s.accums {
			fields[acc.Field] = accumValue(g.accums[i], acc)
		}
		doc, err := document.FromMap(fields)
		if err != nil {
			return err
		}
		docs = append(docs, doc)
	}
	s.docs = docs
	s.populated = true
	return nil
}

func accumulate(state *accumState, acc Accumulator, doc *document.Document) error {
	switch acc.Op {
	case "$count":
		state.count++
	case "$sum":
		v, _ := doc.Field(acc.Source)
		if f, ok := storage.AsFloat(v); ok {
			state.count += f
		}
	case "$first":
		if !state.seen {
			state.value, _ = doc.Field(acc.Source)
			state.seen = true
		}
	case "$min":
		v, ok := doc.Field(acc.Source)
		if ok && (!state.seen || storage.CompareValues(v, state.value) < 0) {
			state.value = v
			state.seen = true
		}
	case "$max":
		v, ok := doc.Field(acc.Source)
		if ok && (!state.seen || storage.CompareValues(v, state.value) > 0) {
			state.value = v
			state.seen = true
		}
	default:
		return fmt.Errorf("unknown accumulator operator %q", acc.Op)
	}
	return nil
}

func accumValue(state accumState, acc Accumulator) any {
	switch acc.Op {
	case "$count", "$sum":
		return state.count
	default:
		return state.value
	}
}

func groupKey(id any) (string, error) {
	raw, err := json.Marshal(id)
	if err != nil {
		return "", fmt.Errorf("grouping key is not representable: %w", err)
	}
	return string(raw), nil
}
