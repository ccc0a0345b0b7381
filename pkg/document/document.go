// Package document implements the immutable document snapshot that flows
// through the aggregation pipeline. Snapshots are materialized once from a raw
// record and are decoupled from the record afterwards: structural changes in
// the collection never affect a snapshot already handed out.
package document

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/driftdb/driftdb/pkg/fieldpath"
)

// Document is an immutable JSON document snapshot.
type Document struct {
	raw []byte
}

// FromBytes materializes a snapshot from a raw JSON record. The input is
// copied, so the caller is free to reuse or mutate its buffer.
func FromBytes(raw []byte) (*Document, error) {
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("document: record is not valid JSON")
	}
	copied := make([]byte, len(raw))
	copy(copied, raw)
	return &Document{raw: copied}, nil
}

// FromMap materializes a snapshot from a field map.
func FromMap(fields map[string]any) (*Document, error) {
	raw, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("document: %w", err)
	}
	return &Document{raw: raw}, nil
}

// Raw returns a copy of the underlying JSON encoding.
func (d *Document) Raw() []byte {
	copied := make([]byte, len(d.raw))
	copy(copied, d.raw)
	return copied
}

// Field returns the value at the given path, and whether it exists.
func (d *Document) Field(path fieldpath.FieldPath) (any, bool) {
	res := gjson.GetBytes(d.raw, path.String())
	if !res.Exists() {
		return nil, false
	}
	return res.Value(), true
}

// Get is Field for a dotted path string.
func (d *Document) Get(path string) (any, bool) {
	res := gjson.GetBytes(d.raw, path)
	if !res.Exists() {
		return nil, false
	}
	return res.Value(), true
}

// Map decodes the snapshot into a fresh field map.
func (d *Document) Map() (map[string]any, error) {
	var fields map[string]any
	if err := json.Unmarshal(d.raw, &fields); err != nil {
		return nil, fmt.Errorf("document: %w", err)
	}
	return fields, nil
}

// Project returns a new snapshot containing only the listed field paths.
// Paths absent from the document are skipped.
func (d *Document) Project(paths []fieldpath.FieldPath) (*Document, error) {
	out := make(map[string]any)
	for _, path := range paths {
		res := gjson.GetBytes(d.raw, path.String())
		if !res.Exists() {
			continue
		}
		insert(out, path, res.Value())
	}
	return FromMap(out)
}

func (d *Document) String() string {
	return string(d.raw)
}

func insert(into map[string]any, path fieldpath.FieldPath, value any) {
	for i := 0; i < path.Len()-1; i++ {
		segment := path.Segment(i)
		child, ok := into[segment].(map[string]any)
		if !ok {
			child = make(map[string]any)
			into[segment] = child
		}
		into = child
	}
	into[path.Segment(path.Len()-1)] = value
}
