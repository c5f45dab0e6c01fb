package inmemory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/UkralStul/community-content-service/internal/domain"
	"github.com/UkralStul/community-content-service/internal/storage"
)

type entry struct {
	seq uint64
	doc domain.Document
}

// Store реализует интерфейс Storage в памяти.
type Store struct {
	mu      sync.RWMutex
	seq     uint64
	now     func() time.Time
	docs    map[storage.Collection]map[string]*entry
	indexes map[storage.Collection]map[string]map[string][]string // map[coll][field][value][]id
}

// New создает новый экземпляр in-memory хранилища.
func New() *Store {
	s := &Store{
		now:     func() time.Time { return time.Now().UTC() },
		docs:    make(map[storage.Collection]map[string]*entry),
		indexes: make(map[storage.Collection]map[string]map[string][]string),
	}
	for coll, fields := range storage.IndexedFields {
		s.indexes[coll] = make(map[string]map[string][]string, len(fields))
		for _, field := range fields {
			s.indexes[coll][field] = make(map[string][]string)
		}
	}
	return s
}

func (s *Store) collection(coll storage.Collection) map[string]*entry {
	docs, ok := s.docs[coll]
	if !ok {
		docs = make(map[string]*entry)
		s.docs[coll] = docs
	}
	return docs
}

func (s *Store) Insert(ctx context.Context, coll storage.Collection, doc domain.Document) (domain.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := clone(doc)
	id := uuid.NewString()
	now := s.now()
	stored[domain.FieldID] = id
	stored[domain.FieldCreatedAt] = now
	stored[domain.FieldUpdatedAt] = now

	docs := s.collection(coll)
	if _, ok := docs[id]; ok {
		return nil, fmt.Errorf("%w: %s %s", domain.ErrDuplicateKey, coll, id)
	}
	s.seq++
	docs[id] = &entry{seq: s.seq, doc: stored}
	s.index(coll, id, stored)

	return clone(stored), nil
}

func (s *Store) FindByID(ctx context.Context, coll storage.Collection, id string) (domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.docs[coll][id]
	if !ok {
		return nil, fmt.Errorf("%s with id %s: %w", coll, id, domain.ErrNotFound)
	}
	return clone(e.doc), nil
}

func (s *Store) Update(ctx context.Context, coll storage.Collection, id string, partial domain.Document) (domain.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.docs[coll][id]
	if !ok {
		return nil, fmt.Errorf("%s with id %s: %w", coll, id, domain.ErrNotFound)
	}

	updated := clone(e.doc)
	for k, v := range partial {
		switch k {
		case domain.FieldID, domain.FieldCreatedAt:
			continue
		}
		if v == nil {
			delete(updated, k)
			continue
		}
		updated[k] = cloneValue(v)
	}
	updated[domain.FieldUpdatedAt] = s.now()
	s.reindex(coll, id, e.doc, updated)
	e.doc = updated

	return clone(updated), nil
}

func (s *Store) Delete(ctx context.Context, coll storage.Collection, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.docs[coll][id]
	if !ok {
		return fmt.Errorf("%s with id %s: %w", coll, id, domain.ErrNotFound)
	}
	s.unindex(coll, id, e.doc)
	delete(s.docs[coll], id)
	return nil
}

func (s *Store) List(ctx context.Context, coll storage.Collection, limit, offset int) ([]domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := lo.Values(s.docs[coll])
	// Новые сверху
	sort.Slice(all, func(i, j int) bool { return all[i].seq > all[j].seq })

	start := offset
	if start >= len(all) {
		return []domain.Document{}, nil
	}
	end := start + limit
	if end > len(all) {
		end = len(all)
	}
	return cloneEntries(all[start:end]), nil
}

// === Поиск по полям ===

func (s *Store) FindByField(ctx context.Context, coll storage.Collection, field, value string) ([]domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return cloneEntries(s.matching(coll, field, value)), nil
}

func (s *Store) ListByField(ctx context.Context, coll storage.Collection, field, value string, limit, offset int) ([]domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := lo.Reverse(s.matching(coll, field, value))
	return cloneEntries(lo.Subset(matched, offset, uint(limit))), nil
}

func (s *Store) CountByField(ctx context.Context, coll storage.Collection, field, value string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if ids, ok := s.indexed(coll, field); ok {
		return int64(len(ids[value])), nil
	}
	return int64(len(s.matching(coll, field, value))), nil
}

func (s *Store) DeleteByField(ctx context.Context, coll storage.Collection, field, value string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	matched := s.matching(coll, field, value)
	for _, e := range matched {
		id := e.doc[domain.FieldID].(string)
		s.unindex(coll, id, e.doc)
		delete(s.docs[coll], id)
	}
	return int64(len(matched)), nil
}

func (s *Store) DistinctValues(ctx context.Context, coll storage.Collection, field string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var values []string
	if ids, ok := s.indexed(coll, field); ok {
		for value, list := range ids {
			if len(list) > 0 {
				values = append(values, value)
			}
		}
	} else {
		for _, e := range s.docs[coll] {
			if v, ok := e.doc[field].(string); ok {
				values = append(values, v)
			}
		}
		values = lo.Uniq(values)
	}
	sort.Strings(values)
	return values, nil
}

func (s *Store) FindByFieldIn(ctx context.Context, coll storage.Collection, field string, values []string) (map[string][]domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make(map[string][]domain.Document, len(values))
	for _, v := range values {
		results[v] = cloneEntries(s.matching(coll, field, v))
	}
	return results, nil
}

func (s *Store) Close(ctx context.Context) error {
	return nil
}

// matching возвращает записи с field == value в порядке вставки.
// Вызывается под s.mu.
func (s *Store) matching(coll storage.Collection, field, value string) []*entry {
	if ids, ok := s.indexed(coll, field); ok {
		list := ids[value]
		out := make([]*entry, 0, len(list))
		for _, id := range list {
			if e, ok := s.docs[coll][id]; ok {
				out = append(out, e)
			}
		}
		return out
	}

	var out []*entry
	for _, e := range s.docs[coll] {
		if v, ok := e.doc[field].(string); ok && v == value {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

func (s *Store) indexed(coll storage.Collection, field string) (map[string][]string, bool) {
	ids, ok := s.indexes[coll][field]
	return ids, ok
}

// Обновление индексов
func (s *Store) index(coll storage.Collection, id string, doc domain.Document) {
	for field, ids := range s.indexes[coll] {
		if v, ok := doc[field].(string); ok {
			ids[v] = append(ids[v], id)
		}
	}
}

// reindex переносит id между списками индекса для измененных полей,
// сохраняя порядок вставки.
func (s *Store) reindex(coll storage.Collection, id string, before, after domain.Document) {
	for field, ids := range s.indexes[coll] {
		old, hadOld := before[field].(string)
		cur, hasCur := after[field].(string)
		if hadOld == hasCur && old == cur {
			continue
		}
		if hadOld {
			ids[old] = lo.Without(ids[old], id)
			if len(ids[old]) == 0 {
				delete(ids, old)
			}
		}
		if hasCur {
			ids[cur] = s.insertOrdered(coll, ids[cur], id)
		}
	}
}

func (s *Store) insertOrdered(coll storage.Collection, ids []string, id string) []string {
	seq := s.docs[coll][id].seq
	at := sort.Search(len(ids), func(i int) bool {
		return s.docs[coll][ids[i]].seq > seq
	})
	return slices.Insert(ids, at, id)
}

func (s *Store) unindex(coll storage.Collection, id string, doc domain.Document) {
	for field, ids := range s.indexes[coll] {
		v, ok := doc[field].(string)
		if !ok {
			continue
		}
		ids[v] = lo.Without(ids[v], id)
		if len(ids[v]) == 0 {
			delete(ids, v)
		}
	}
}

func cloneEntries(entries []*entry) []domain.Document {
	out := make([]domain.Document, 0, len(entries))
	for _, e := range entries {
		out = append(out, clone(e.doc))
	}
	return out
}
