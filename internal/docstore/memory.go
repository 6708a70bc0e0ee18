package docstore

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	smerrors "github.com/systmms/secretmgr/internal/errors"
)

// MemoryStore is an in-memory Store for tests and single-process use.
// Documents are stored by reference under a single-writer assumption;
// the core's check-then-act sequences (default-flag clearing, delete
// guards) are not transactional here either, matching the contract.
type MemoryStore struct {
	mu    sync.RWMutex
	kinds map[string]map[string]Doc
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{kinds: make(map[string]map[string]Doc)}
}

func (s *MemoryStore) Get(ctx context.Context, kind, id string) (Doc, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if doc, ok := s.kinds[kind][id]; ok {
		return doc, nil
	}
	return nil, smerrors.NotFoundError{Resource: kind, ID: id}
}

func (s *MemoryStore) Save(ctx context.Context, doc Doc) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if doc.GetID() == "" {
		doc.SetID(uuid.NewString())
	}
	kind := doc.Kind()
	if s.kinds[kind] == nil {
		s.kinds[kind] = make(map[string]Doc)
	}
	s.kinds[kind][doc.GetID()] = doc
	return doc.GetID(), nil
}

func (s *MemoryStore) UpdateFields(ctx context.Context, kind, id string, fields map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.kinds[kind][id]
	if !ok {
		return smerrors.NotFoundError{Resource: kind, ID: id}
	}
	setter, ok := doc.(FieldSetter)
	if !ok {
		return smerrors.ProgrammingError{Message: "document kind " + kind + " does not support partial updates"}
	}
	for name, value := range fields {
		setter.SetField(name, value)
	}
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, kind, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.kinds[kind], id)
	return nil
}

func (s *MemoryStore) Query(kind string) Query {
	return &memoryQuery{store: s, kind: kind}
}

type filter struct {
	field string
	value interface{}
}

type memoryQuery struct {
	store   *MemoryStore
	kind    string
	filters []filter
}

func (q *memoryQuery) Filter(field string, value interface{}) Query {
	q.filters = append(q.filters, filter{field: field, value: value})
	return q
}

func (q *memoryQuery) matches(doc Doc) bool {
	for _, f := range q.filters {
		v, ok := doc.Field(f.field)
		if !ok || v != f.value {
			return false
		}
	}
	return true
}

func (q *memoryQuery) List(ctx context.Context) ([]Doc, error) {
	q.store.mu.RLock()
	defer q.store.mu.RUnlock()

	var out []Doc
	for _, doc := range q.store.kinds[q.kind] {
		if q.matches(doc) {
			out = append(out, doc)
		}
	}
	// Map iteration order is random; keep results stable for callers.
	sort.Slice(out, func(i, j int) bool { return out[i].GetID() < out[j].GetID() })
	return out, nil
}

func (q *memoryQuery) Get(ctx context.Context) (Doc, error) {
	docs, err := q.List(ctx)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, smerrors.NotFoundError{Resource: q.kind, ID: ""}
	}
	return docs[0], nil
}

func (q *memoryQuery) Count(ctx context.Context) (int, error) {
	docs, err := q.List(ctx)
	if err != nil {
		return 0, err
	}
	return len(docs), nil
}
