// Package fieldpath implements the dotted field path value type used across
// the aggregation pipeline. A FieldPath is an ordered, non-empty sequence of
// non-empty segments with pure value semantics: once constructed it is never
// mutated, and equality, hashing, and prefix tests are component-wise and
// order-sensitive.
package fieldpath

import (
	"errors"
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Prefix is the marker prepended when rendering a path as a field reference.
const Prefix = "$"

// ErrInvalidPath is returned when a path string cannot form a FieldPath.
var ErrInvalidPath = errors.New("invalid field path")

// FieldPath is an immutable dotted field path.
//
// The zero value is invalid; construct with New or NewFromSegments.
type FieldPath struct {
	segments []string
}

// New creates a FieldPath from a dotted path string, e.g. "a.b.c".
// Any empty segment, including the empty string itself, is an error.
func New(path string) (FieldPath, error) {
	segments := strings.Split(path, ".")
	for _, s := range segments {
		if s == "" {
			return FieldPath{}, fmt.Errorf("%w: field names cannot be zero length (in path %q)", ErrInvalidPath, path)
		}
	}
	return FieldPath{segments: segments}, nil
}

// MustNew is New for statically known paths; it panics on error.
func MustNew(path string) FieldPath {
	fp, err := New(path)
	if err != nil {
		panic(err)
	}
	return fp
}

// NewFromSegments creates a FieldPath from the first n elements of segments.
// Segments must be non-empty and must not contain '.'.
func NewFromSegments(segments []string, n int) (FieldPath, error) {
	if n <= 0 || n > len(segments) {
		return FieldPath{}, fmt.Errorf("%w: prefix length %d out of range [1,%d]", ErrInvalidPath, n, len(segments))
	}
	copied := make([]string, n)
	for i := 0; i < n; i++ {
		if segments[i] == "" || strings.Contains(segments[i], ".") {
			return FieldPath{}, fmt.Errorf("%w: bad segment %q", ErrInvalidPath, segments[i])
		}
		copied[i] = segments[i]
	}
	return FieldPath{segments: copied}, nil
}

// Len returns the number of segments in the path.
func (fp FieldPath) Len() int {
	return len(fp.segments)
}

// Segment returns the i-th segment of the path.
func (fp FieldPath) Segment(i int) string {
	return fp.segments[i]
}

// Prefix returns a new FieldPath holding the first n segments of fp.
func (fp FieldPath) Prefix(n int) (FieldPath, error) {
	return NewFromSegments(fp.segments, n)
}

// Equal reports whether fp and other have the same segments in the same order.
func (fp FieldPath) Equal(other FieldPath) bool {
	if len(fp.segments) != len(other.segments) {
		return false
	}
	for i, s := range fp.segments {
		if s != other.segments[i] {
			return false
		}
	}
	return true
}

// IsPrefixOf reports whether other is a leading sub-path of fp: every segment
// of other, in order, equals the corresponding segment of fp. A longer other
// can never be a prefix.
func (fp FieldPath) IsPrefixOf(other FieldPath) bool {
	if len(other.segments) > len(fp.segments) {
		return false
	}
	for i, s := range other.segments {
		if s != fp.segments[i] {
			return false
		}
	}
	return true
}

// HashCombine folds the path segments into seed, order-sensitively.
func (fp FieldPath) HashCombine(seed uint64) uint64 {
	h := xxhash.New()
	var buf [8]byte
	for i := 0; i < 8; i++ {
		buf[i] = byte(seed >> (8 * i))
	}
	_, _ = h.Write(buf[:])
	for _, s := range fp.segments {
		_, _ = h.WriteString(s)
		_, _ = h.Write([]byte{0})
	}
	return h.Sum64()
}

// Hash returns an order-sensitive hash of the path.
func (fp FieldPath) Hash() uint64 {
	return fp.HashCombine(0xf0afbeef)
}

// String renders the path in dot notation without the field reference marker.
func (fp FieldPath) String() string {
	return strings.Join(fp.segments, ".")
}

// Path renders the path in dot notation. When prefixed is true the field
// reference marker is prepended.
func (fp FieldPath) Path(prefixed bool) string {
	if prefixed {
		return Prefix + fp.String()
	}
	return fp.String()
}
