package datastore

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// MemoryConnector is an in-process document store for local development and
// tests. Filters match top-level fields by equality; updates support $set and
// $unset. Every Connect returns a session over the same shared data.
type MemoryConnector struct {
	mutex       sync.Mutex
	databases   map[string]map[string]*memoryCollection
	connects    atomic.Int64
	openSession atomic.Int64
}

var _ Connector = (*MemoryConnector)(nil)

// NewMemoryConnector creates an empty store.
func NewMemoryConnector() *MemoryConnector {
	return &MemoryConnector{databases: make(map[string]map[string]*memoryCollection)}
}

// Connect implements Connector.
func (m *MemoryConnector) Connect(_ context.Context, _ string) (Session, error) {
	m.connects.Add(1)
	m.openSession.Add(1)

	return &memorySession{store: m}, nil
}

// OpenSessions returns the number of sessions not yet closed.
func (m *MemoryConnector) OpenSessions() int64 {
	return m.openSession.Load()
}

// Connects returns the number of sessions ever opened.
func (m *MemoryConnector) Connects() int64 {
	return m.connects.Load()
}

// HasCollection reports whether database.name exists.
func (m *MemoryConnector) HasCollection(database, name string) bool {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	_, ok := m.databases[database][name]

	return ok
}

func (m *MemoryConnector) collection(database, name string, create bool) *memoryCollection {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	db, ok := m.databases[database]
	if !ok {
		if !create {
			return nil
		}

		db = make(map[string]*memoryCollection)
		m.databases[database] = db
	}

	coll, ok := db[name]
	if !ok && create {
		coll = &memoryCollection{}
		db[name] = coll
	}

	return coll
}

type memorySession struct {
	store  *MemoryConnector
	closed atomic.Bool
}

func (s *memorySession) Collection(database, name string) Collection {
	return &memoryHandle{store: s.store, database: database, name: name}
}

func (s *memorySession) EnsureCollection(_ context.Context, database, name string) error {
	s.store.collection(database, name, true)

	return nil
}

func (s *memorySession) Close(context.Context) error {
	if s.closed.CompareAndSwap(false, true) {
		s.store.openSession.Add(-1)
	}

	return nil
}

type memoryCollection struct {
	mutex sync.Mutex
	docs  []map[string]any
}

// memoryHandle resolves its collection lazily; writes create it, reads of a
// missing collection see no documents.
type memoryHandle struct {
	store    *MemoryConnector
	database string
	name     string
}

func (h *memoryHandle) get(create bool) *memoryCollection {
	return h.store.collection(h.database, h.name, create)
}

func (h *memoryHandle) FindOne(_ context.Context, filter map[string]any) (map[string]any, error) {
	coll := h.get(false)
	if coll == nil {
		return nil, nil
	}

	coll.mutex.Lock()
	defer coll.mutex.Unlock()

	for _, doc := range coll.docs {
		if matches(doc, filter) {
			return copyDoc(doc), nil
		}
	}

	return nil, nil
}

func (h *memoryHandle) FindMany(_ context.Context, filter map[string]any, opts FindOptions) ([]map[string]any, error) {
	coll := h.get(false)
	if coll == nil {
		return []map[string]any{}, nil
	}

	coll.mutex.Lock()
	defer coll.mutex.Unlock()

	out := []map[string]any{}

	for _, doc := range coll.docs {
		if matches(doc, filter) {
			out = append(out, copyDoc(doc))
		}
	}

	if len(opts.Sort) > 0 {
		sortDocs(out, opts.Sort)
	}

	if opts.Skip > 0 {
		if opts.Skip >= int64(len(out)) {
			return []map[string]any{}, nil
		}

		out = out[opts.Skip:]
	}

	if opts.Limit > 0 && opts.Limit < int64(len(out)) {
		out = out[:opts.Limit]
	}

	return out, nil
}

func (h *memoryHandle) InsertOne(_ context.Context, doc map[string]any) (any, error) {
	coll := h.get(true)

	coll.mutex.Lock()
	defer coll.mutex.Unlock()

	stored := copyDoc(doc)
	if _, ok := stored["_id"]; !ok {
		stored["_id"] = uuid.NewString()
	}

	coll.docs = append(coll.docs, stored)

	return stored["_id"], nil
}

func (h *memoryHandle) InsertMany(ctx context.Context, docs []map[string]any) ([]any, error) {
	ids := make([]any, 0, len(docs))

	for _, doc := range docs {
		id, err := h.InsertOne(ctx, doc)
		if err != nil {
			return nil, err
		}

		ids = append(ids, id)
	}

	return ids, nil
}

func (h *memoryHandle) UpdateOne(_ context.Context, filter, update map[string]any) (UpdateResult, error) {
	return h.update(filter, update, false)
}

func (h *memoryHandle) UpdateMany(_ context.Context, filter, update map[string]any) (UpdateResult, error) {
	return h.update(filter, update, true)
}

func (h *memoryHandle) update(filter, update map[string]any, many bool) (UpdateResult, error) {
	for op := range update {
		if op != "$set" && op != "$unset" {
			return UpdateResult{}, fmt.Errorf("memory store does not support update operator %q", op)
		}
	}

	coll := h.get(false)
	if coll == nil {
		return UpdateResult{}, nil
	}

	coll.mutex.Lock()
	defer coll.mutex.Unlock()

	var result UpdateResult

	for _, doc := range coll.docs {
		if !matches(doc, filter) {
			continue
		}

		result.MatchedCount++

		if set, ok := update["$set"].(map[string]any); ok {
			for k, v := range set {
				doc[k] = v
			}
		}

		if unset, ok := update["$unset"].(map[string]any); ok {
			for k := range unset {
				delete(doc, k)
			}
		}

		result.ModifiedCount++

		if !many {
			break
		}
	}

	return result, nil
}

func (h *memoryHandle) DeleteOne(_ context.Context, filter map[string]any) (int64, error) {
	return h.delete(filter, false), nil
}

func (h *memoryHandle) DeleteMany(_ context.Context, filter map[string]any) (int64, error) {
	return h.delete(filter, true), nil
}

func (h *memoryHandle) delete(filter map[string]any, many bool) int64 {
	coll := h.get(false)
	if coll == nil {
		return 0
	}

	coll.mutex.Lock()
	defer coll.mutex.Unlock()

	var deleted int64

	kept := coll.docs[:0]

	for _, doc := range coll.docs {
		if (many || deleted == 0) && matches(doc, filter) {
			deleted++

			continue
		}

		kept = append(kept, doc)
	}

	coll.docs = kept

	return deleted
}

func matches(doc, filter map[string]any) bool {
	for k, want := range filter {
		got, ok := doc[k]
		if !ok || !equalValues(got, want) {
			return false
		}
	}

	return true
}

func equalValues(a, b any) bool {
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			return fa == fb
		}
	}

	return reflect.DeepEqual(a, b)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

func sortDocs(docs []map[string]any, order map[string]int) {
	fields := make([]string, 0, len(order))
	for field := range order {
		fields = append(fields, field)
	}

	sort.Strings(fields)

	sort.SliceStable(docs, func(i, j int) bool {
		for _, field := range fields {
			a, b := fmt.Sprint(docs[i][field]), fmt.Sprint(docs[j][field])
			if fa, ok := toFloat(docs[i][field]); ok {
				if fb, ok := toFloat(docs[j][field]); ok && fa != fb {
					return (fa < fb) == (order[field] >= 0)
				}
			}

			if a != b {
				return (a < b) == (order[field] >= 0)
			}
		}

		return false
	})
}

func copyDoc(doc map[string]any) map[string]any {
	out := make(map[string]any, len(doc))
	for k, v := range doc {
		out[k] = v
	}

	return out
}
