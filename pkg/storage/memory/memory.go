// Package memory implements an in-memory datastore serving the scan
// acquisition contract: insertion-order collection scans, declared indexes
// backed by ordered tree maps for natively sorted scans, and drop-collection
// invalidation of suspended scans.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/emirpasic/gods/maps/treemap"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/driftdb/driftdb/pkg/logger"
	"github.com/driftdb/driftdb/pkg/matcher"
	"github.com/driftdb/driftdb/pkg/storage"
)

// Datastore is an in-memory storage engine.
type Datastore struct {
	mu          sync.RWMutex
	logger      logger.Logger
	registry    *storage.Registry
	collections map[string]*collection
}

var _ storage.Datastore = (*Datastore)(nil)
var _ storage.Explainer = (*Datastore)(nil)

type DatastoreOption func(*Datastore)

func WithLogger(l logger.Logger) DatastoreOption {
	return func(ds *Datastore) {
		ds.logger = l
	}
}

// New creates an empty datastore.
func New(opts ...DatastoreOption) *Datastore {
	ds := &Datastore{
		logger:      logger.NewNoopLogger(),
		registry:    storage.NewRegistry(),
		collections: make(map[string]*collection),
	}
	for _, opt := range opts {
		opt(ds)
	}
	return ds
}

type collection struct {
	mu      sync.RWMutex
	order   []storage.RecordID
	records map[storage.RecordID][]byte
	indexes []*indexDef
	dropped bool
}

type indexDef struct {
	name    string
	key     storage.SortKey
	entries *treemap.Map // indexKey -> storage.RecordID
}

type indexKey struct {
	values []any
	id     storage.RecordID
}

func newIndexDef(key storage.SortKey) *indexDef {
	parts := make([]string, 0, len(key))
	for _, field := range key {
		dir := "1"
		if field.Descending {
			dir = "-1"
		}
		parts = append(parts, field.Path.String()+"_"+dir)
	}
	def := &indexDef{name: strings.Join(parts, "_"), key: key}
	def.entries = treemap.NewWith(func(a, b any) int {
		ka, kb := a.(indexKey), b.(indexKey)
		for i, field := range key {
			cmp := storage.CompareValues(ka.values[i], kb.values[i])
			if cmp == 0 {
				continue
			}
			if field.Descending {
				return -cmp
			}
			return cmp
		}
		return strings.Compare(string(ka.id), string(kb.id))
	})
	return def
}

func (ix *indexDef) keyFor(id storage.RecordID, data []byte) indexKey {
	values := make([]any, len(ix.key))
	for i, field := range ix.key {
		res := gjson.GetBytes(data, field.Path.String())
		if res.Exists() {
			values[i] = res.Value()
		}
	}
	return indexKey{values: values, id: id}
}

// Registry returns the live-scan registry.
func (ds *Datastore) Registry() *storage.Registry {
	return ds.registry
}

func (ds *Datastore) collection(namespace string, create bool) *collection {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	coll, ok := ds.collections[namespace]
	if !ok && create {
		coll = &collection{records: make(map[storage.RecordID][]byte)}
		ds.collections[namespace] = coll
	}
	return coll
}

// Insert adds documents to the namespace, creating it on first use, and
// returns the assigned record ids.
func (ds *Datastore) Insert(ctx context.Context, namespace string, docs ...map[string]any) ([]storage.RecordID, error) {
	coll := ds.collection(namespace, true)

	coll.mu.Lock()
	defer coll.mu.Unlock()
	if coll.dropped {
		return nil, storage.ErrNotFound
	}

	ids := make([]storage.RecordID, 0, len(docs))
	for _, doc := range docs {
		data, err := json.Marshal(doc)
		if err != nil {
			return nil, fmt.Errorf("memory: encode document: %w", err)
		}
		id := storage.NewRecordID()
		coll.order = append(coll.order, id)
		coll.records[id] = data
		for _, ix := range coll.indexes {
			ix.entries.Put(ix.keyFor(id, data), id)
		}
		ids = append(ids, id)
	}

	ds.logger.Debug("inserted documents",
		zap.String("namespace", namespace),
		zap.Int("count", len(docs)),
	)
	return ids, nil
}

// CreateIndex declares an ordered index on the namespace and backfills it.
func (ds *Datastore) CreateIndex(namespace string, key storage.SortKey) error {
	if len(key) == 0 {
		return fmt.Errorf("memory: index key must not be empty")
	}
	coll := ds.collection(namespace, true)

	coll.mu.Lock()
	defer coll.mu.Unlock()
	if coll.dropped {
		return storage.ErrNotFound
	}

	ix := newIndexDef(key)
	for _, id := range coll.order {
		ix.entries.Put(ix.keyFor(id, coll.records[id]), id)
	}
	coll.indexes = append(coll.indexes, ix)

	ds.logger.Debug("created index",
		zap.String("namespace", namespace),
		zap.String("index", ix.name),
	)
	return nil
}

// DropCollection removes the namespace and invalidates every live scan
// registration on it. Scans suspended at a yield observe the drop on their
// next advance.
func (ds *Datastore) DropCollection(namespace string) error {
	ds.mu.Lock()
	coll, ok := ds.collections[namespace]
	delete(ds.collections, namespace)
	ds.mu.Unlock()

	if !ok {
		return storage.ErrNotFound
	}

	coll.mu.Lock()
	coll.dropped = true
	coll.mu.Unlock()

	ds.registry.InvalidateNamespace(namespace)
	ds.logger.Debug("dropped collection", zap.String("namespace", namespace))
	return nil
}

// AcquireScan returns a scan over the namespace. With a sort requested, a
// compatible index must exist: its leading fields must be equality-bound by
// the filter and the requested ordering must follow immediately after.
// Otherwise ErrNoCompatibleScan is returned and the caller falls back.
func (ds *Datastore) AcquireScan(ctx context.Context, req storage.ScanRequest) (storage.RecordScan, error) {
	var residual storage.DocumentMatcher
	if len(req.Filter) > 0 {
		m, err := matcher.Compile(req.Filter)
		if err != nil {
			return nil, err
		}
		residual = m
	}

	coll := ds.collection(req.Namespace, true)
	coll.mu.RLock()
	defer coll.mu.RUnlock()
	if coll.dropped {
		return nil, storage.ErrNotFound
	}

	var ids []storage.RecordID
	indexName := ""
	if len(req.Sort) > 0 {
		ix := coll.compatibleIndex(req.Filter, req.Sort)
		if ix == nil {
			return nil, storage.ErrNoCompatibleScan
		}
		indexName = ix.name
		ids = make([]storage.RecordID, 0, ix.entries.Size())
		ix.entries.Each(func(_ any, value any) {
			ids = append(ids, value.(storage.RecordID))
		})
	} else {
		ids = append(ids, coll.order...)
	}

	ds.logger.Debug("acquired scan",
		zap.String("namespace", req.Namespace),
		zap.String("index", indexName),
		zap.Int("positions", len(ids)),
	)
	return &recordScan{
		coll:     coll,
		ids:      ids,
		residual: residual,
		seen:     make(map[storage.RecordID]struct{}),
	}, nil
}

// ExplainScan reports the engine's own plan for the request.
func (ds *Datastore) ExplainScan(ctx context.Context, req storage.ScanRequest) (map[string]any, error) {
	plan := map[string]any{
		"namespace": req.Namespace,
		"stage":     "COLLSCAN",
	}
	if len(req.Filter) > 0 {
		plan["filter"] = req.Filter
	}
	if len(req.Projection) > 0 {
		plan["projection"] = req.Projection
	}
	if len(req.Sort) == 0 {
		return plan, nil
	}

	coll := ds.collection(req.Namespace, true)
	coll.mu.RLock()
	defer coll.mu.RUnlock()

	ix := coll.compatibleIndex(req.Filter, req.Sort)
	if ix == nil {
		return nil, storage.ErrNoCompatibleScan
	}
	plan["stage"] = "IXSCAN"
	plan["index"] = ix.name
	return plan, nil
}

// compatibleIndex finds an index that yields the requested ordering natively:
// some leading run of its key fields is equality-bound by the filter and the
// sort specification follows immediately, field for field, direction for
// direction.
func (c *collection) compatibleIndex(filter storage.Filter, sort storage.SortKey) *indexDef {
	eq := equalityFields(filter)
	for _, ix := range c.indexes {
		k := 0
		for k < len(ix.key) {
			if _, ok := eq[ix.key[k].Path.String()]; !ok {
				break
			}
			k++
		}
		if matchesSortPrefix(ix.key[k:], sort) {
			return ix
		}
		// equality fields may also begin the sort itself
		if matchesSortPrefix(ix.key, sort) {
			return ix
		}
	}
	return nil
}

func matchesSortPrefix(key storage.SortKey, sort storage.SortKey) bool {
	if len(sort) > len(key) {
		return false
	}
	for i, field := range sort {
		if key[i].Path.String() != field.Path.String() || key[i].Descending != field.Descending {
			return false
		}
	}
	return true
}

// equalityFields returns the top-level filter fields bound to a single value,
// the ones an index prefix can pin while preserving order on later fields.
func equalityFields(filter storage.Filter) map[string]struct{} {
	eq := make(map[string]struct{})
	for key, value := range filter {
		if strings.HasPrefix(key, "$") {
			continue
		}
		if m, ok := value.(map[string]any); ok {
			// operator objects other than a bare $eq are range constraints
			if _, isEq := m["$eq"]; !isEq || len(m) != 1 {
				continue
			}
		}
		eq[key] = struct{}{}
	}
	return eq
}
