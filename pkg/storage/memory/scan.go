package memory

import (
	"context"
	"fmt"

	"github.com/driftdb/driftdb/pkg/storage"
)

// recordScan walks a snapshot of record positions taken at acquisition time.
// Advance is the yield point: it re-checks the collection's liveness so a
// scan suspended across a drop fails with ErrScanInvalidated instead of
// reporting a clean end-of-stream.
type recordScan struct {
	coll     *collection
	ids      []storage.RecordID
	residual storage.DocumentMatcher
	seen     map[storage.RecordID]struct{}

	pos    int
	closed bool
}

var _ storage.RecordScan = (*recordScan)(nil)

func (s *recordScan) HasMore() bool {
	return !s.closed && s.pos < len(s.ids)
}

func (s *recordScan) Current() (storage.Record, error) {
	if !s.HasMore() {
		return storage.Record{}, fmt.Errorf("memory: scan is not positioned on a record")
	}
	id := s.ids[s.pos]

	s.coll.mu.RLock()
	data, ok := s.coll.records[id]
	s.coll.mu.RUnlock()
	if !ok {
		return storage.Record{}, fmt.Errorf("memory: record %s disappeared", id)
	}

	out := make([]byte, len(data))
	copy(out, data)
	return storage.Record{ID: id, Data: out}, nil
}

func (s *recordScan) Advance(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.closed {
		return fmt.Errorf("memory: scan is closed")
	}
	if s.pos < len(s.ids) {
		s.seen[s.ids[s.pos]] = struct{}{}
		s.pos++
	}

	// the yield: interleaved operations run here, then liveness is re-checked
	s.coll.mu.RLock()
	dropped := s.coll.dropped
	s.coll.mu.RUnlock()
	if dropped {
		return storage.ErrScanInvalidated
	}
	return nil
}

func (s *recordScan) IsDuplicate(id storage.RecordID) bool {
	_, ok := s.seen[id]
	return ok
}

func (s *recordScan) Matcher() storage.DocumentMatcher {
	return s.residual
}

func (s *recordScan) Close() {
	s.closed = true
	s.ids = nil
	s.seen = nil
}
