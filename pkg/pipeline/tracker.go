package pipeline

import (
	"fmt"
	"sort"

	"github.com/driftdb/driftdb/pkg/fieldpath"
)

// DependencyTracker accumulates the field paths required by the pipeline
// suffix still under analysis during the backward scan. The set starts open
// ("assume every field is required") and becomes closed, permanently, once a
// stage declares that it fully determines its output fields.
//
// Stages are identified by their stable index in the stage list under
// analysis; names are captured up front so tracker entries never hold stage
// back-references.
type DependencyTracker struct {
	stageNames []string
	closed     bool
	deps       map[string]trackedDependency
}

type trackedDependency struct {
	path  fieldpath.FieldPath
	stage int
}

// NewDependencyTracker creates an open, empty tracker for a pipeline whose
// stages carry the given names, indexed by pipeline position.
func NewDependencyTracker(stageNames []string) *DependencyTracker {
	return &DependencyTracker{
		stageNames: stageNames,
		deps:       make(map[string]trackedDependency),
	}
}

// AddDependency records that the given stage reads path. Adding the same path
// again only replaces the recorded stage: the most recent writer wins.
func (t *DependencyTracker) AddDependency(path fieldpath.FieldPath, stageIndex int) {
	t.deps[path.String()] = trackedDependency{path: path, stage: stageIndex}
}

// RemoveDependency drops the dependency on path. Removing an absent path is a
// no-op.
func (t *DependencyTracker) RemoveDependency(path fieldpath.FieldPath) {
	delete(t.deps, path.String())
}

// GetDependency returns the stage most recently recorded as depending on
// path, and whether the dependency is tracked at all.
func (t *DependencyTracker) GetDependency(path fieldpath.FieldPath) (int, bool) {
	dep, ok := t.deps[path.String()]
	if !ok {
		return 0, false
	}
	return dep.stage, true
}

// MarkClosed records that the output field set is fully determined from here
// on. Closing is monotonic: once closed, the set stays closed.
func (t *DependencyTracker) MarkClosed() {
	t.closed = true
}

// IsClosed reports whether the dependency set is closed.
func (t *DependencyTracker) IsClosed() bool {
	return t.closed
}

// FieldSet returns the tracked paths as the required projection, sorted for
// determinism. Calling it on an open set is a contract violation: an open set
// means every field must be assumed needed.
func (t *DependencyTracker) FieldSet() ([]fieldpath.FieldPath, error) {
	if !t.closed {
		return nil, fmt.Errorf("%w: field set requested from an open dependency set", ErrContractViolation)
	}
	paths := make([]fieldpath.FieldPath, 0, len(t.deps))
	for _, dep := range t.deps {
		paths = append(paths, dep.path)
	}
	sort.Slice(paths, func(i, j int) bool { return paths[i].String() < paths[j].String() })
	return paths, nil
}

// ReportUnsatisfied builds the user-facing error for a field that
// needingStage requires but excludingStage does not supply.
func (t *DependencyTracker) ReportUnsatisfied(path fieldpath.FieldPath, needingStage, excludingStage int) error {
	return &UnsatisfiedDependencyError{
		Path:           path,
		NeedingStage:   t.stageName(needingStage),
		NeedingIndex:   needingStage,
		ExcludingStage: t.stageName(excludingStage),
		ExcludingIndex: excludingStage,
	}
}

// ReportFirstUnsatisfied reports the first tracked dependency against the
// given stage, or nil when none remain. Used by stages that know their
// complete output: any dependency still tracked after they removed their
// products cannot be satisfied.
func (t *DependencyTracker) ReportFirstUnsatisfied(excludingStage int) error {
	if len(t.deps) == 0 {
		return nil
	}
	keys := make([]string, 0, len(t.deps))
	for key := range t.deps {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	dep := t.deps[keys[0]]
	return t.ReportUnsatisfied(dep.path, dep.stage, excludingStage)
}

func (t *DependencyTracker) stageName(i int) string {
	if i >= 0 && i < len(t.stageNames) {
		return t.stageNames[i]
	}
	return fmt.Sprintf("stage[%d]", i)
}
