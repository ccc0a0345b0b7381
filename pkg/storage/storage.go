// Package storage contains the storage engine interfaces consumed by the
// aggregation pipeline: physical record scans, scan acquisition, and the
// registration layer that lets the engine revoke live scans when the
// underlying collection goes away.
package storage

import (
	"context"

	"github.com/oklog/ulid/v2"

	"github.com/driftdb/driftdb/pkg/fieldpath"
)

// RecordID identifies one physical record within a collection. IDs are stable
// across yields even when the record's position moves.
type RecordID string

// NewRecordID returns a fresh, lexically sortable record id.
func NewRecordID() RecordID {
	return RecordID(ulid.Make().String())
}

// Record is a raw stored document: an id plus its JSON encoding. The Data
// buffer belongs to the engine and must be copied before it escapes a scan
// position (document materialization does this).
type Record struct {
	ID   RecordID
	Data []byte
}

// Filter is an opaque structural filter specification. The pipeline passes it
// through to the engine and to matchers; it never interprets operator
// semantics itself beyond locating field references.
type Filter map[string]any

// SortField is one component of a sort key.
type SortField struct {
	Path       fieldpath.FieldPath
	Descending bool
}

// SortKey is an ordered sort specification.
type SortKey []SortField

// Projection is the set of field paths the pipeline requires, in dot notation.
// An empty projection means all fields are needed.
type Projection []string

// DocumentMatcher evaluates a residual predicate against a raw record.
type DocumentMatcher interface {
	Matches(data []byte) (bool, error)
}

// RecordScan is a physical scan over one collection. It is single-threaded;
// Advance is the cooperative yield point, after which any previously observed
// position must be considered invalid.
type RecordScan interface {
	// HasMore reports whether the scan is positioned on a record.
	HasMore() bool

	// Current returns the record at the current position. Only valid while
	// HasMore reports true.
	Current() (Record, error)

	// Advance moves the scan one position forward and then yields, allowing
	// interleaved operations on the collection. It returns ErrScanInvalidated
	// when the collection or database vanished while suspended; that failure
	// is fatal for the scan and must never be treated as end-of-stream.
	Advance(ctx context.Context) error

	// IsDuplicate reports whether the engine knows the given record was
	// already surfaced by this scan, e.g. because structural movement during
	// a yield caused its position to be revisited.
	IsDuplicate(id RecordID) bool

	// Matcher returns the residual predicate attached to the scan, or nil
	// when every position qualifies.
	Matcher() DocumentMatcher

	// Close releases the scan. The registration wrapping the scan must be
	// released first; see Registry.
	Close()
}

// ScanRequest describes the scan the planner wants: a namespace, a pushed-down
// filter (empty means unconstrained), an optional required ordering, and the
// projection hint when the dependency analysis closed the field set.
type ScanRequest struct {
	Namespace  string
	Filter     Filter
	Sort       SortKey
	Projection Projection
}

// Datastore is the scan acquisition capability. Index and access-path
// selection live behind this interface.
type Datastore interface {
	// AcquireScan returns a physical scan satisfying the request. When the
	// request carries a sort and no access path can produce that ordering
	// natively, it returns ErrNoCompatibleScan: an expected negative outcome,
	// not a failure. A request without a sort always yields a scan.
	AcquireScan(ctx context.Context, req ScanRequest) (RecordScan, error)

	// Registry returns the live-scan registry for this datastore.
	Registry() *Registry
}

// Explainer is an optional side channel through which a datastore reports its
// own plan explanation for diagnostics.
type Explainer interface {
	ExplainScan(ctx context.Context, req ScanRequest) (map[string]any, error)
}
