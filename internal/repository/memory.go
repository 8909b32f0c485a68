package repository

import (
	"context"
	"sync"
	"time"

	"github.com/stakemesh/platform/internal/domain"
)

// MemoryStateStore is an in-process StateStore for tests and single-node
// development. The mutex guards the map, not entity semantics; per-entity
// serialization is the runtime's job.
type MemoryStateStore struct {
	mu      sync.RWMutex
	records map[string]*StateRecord
}

// NewMemoryStateStore returns an empty in-memory state store.
func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{records: make(map[string]*StateRecord)}
}

func stateKey(kind, key string) string { return kind + "/" + key }

func (s *MemoryStateStore) Load(_ context.Context, kind, key string) (*StateRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[stateKey(kind, key)]
	if !ok {
		return nil, nil
	}
	cp := *rec
	cp.Data = append([]byte(nil), rec.Data...)
	return &cp, nil
}

func (s *MemoryStateStore) Save(_ context.Context, kind, key string, data []byte, expectVersion int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := stateKey(kind, key)
	current := int64(0)
	if rec, ok := s.records[k]; ok {
		current = rec.Version
	}
	if current != expectVersion {
		return 0, ErrVersionConflict
	}
	rec := &StateRecord{
		Kind:      kind,
		Key:       key,
		Version:   current + 1,
		Data:      append([]byte(nil), data...),
		UpdatedAt: time.Now().UTC(),
	}
	s.records[k] = rec
	return rec.Version, nil
}

func (s *MemoryStateStore) Delete(_ context.Context, kind, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, stateKey(kind, key))
	return nil
}

// MemoryEventStore is an in-process EventStore with the same ordering
// guarantees as the Postgres implementation.
type MemoryEventStore struct {
	mu      sync.RWMutex
	streams map[string][]domain.EventRecord
	all     []domain.EventRecord
	nextSeq int64
}

// NewMemoryEventStore returns an empty in-memory event store.
func NewMemoryEventStore() *MemoryEventStore {
	return &MemoryEventStore{streams: make(map[string][]domain.EventRecord)}
}

func (s *MemoryEventStore) Append(_ context.Context, records []domain.EventRecord) ([]domain.EventRecord, error) {
	if len(records) == 0 {
		return nil, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	aggregateID := records[0].AggregateID
	stream := s.streams[aggregateID]
	version := int64(len(stream))

	out := make([]domain.EventRecord, len(records))
	for i, rec := range records {
		s.nextSeq++
		rec.Seq = s.nextSeq
		rec.Version = version + int64(i) + 1
		stream = append(stream, rec)
		s.all = append(s.all, rec)
		out[i] = rec
	}
	s.streams[aggregateID] = stream
	return out, nil
}

func (s *MemoryEventStore) Read(_ context.Context, aggregateID string, fromVersion int64) ([]domain.EventRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.EventRecord
	for _, rec := range s.streams[aggregateID] {
		if rec.Version > fromVersion {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (s *MemoryEventStore) Exists(_ context.Context, aggregateID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.streams[aggregateID]) > 0, nil
}

func (s *MemoryEventStore) ListAfterSeq(_ context.Context, afterSeq int64, limit int) ([]domain.EventRecord, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.EventRecord
	for _, rec := range s.all {
		if rec.Seq > afterSeq {
			out = append(out, rec)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

// MemoryOffsetStore is an in-process OffsetStore.
type MemoryOffsetStore struct {
	mu      sync.Mutex
	offsets map[string]int64
}

// NewMemoryOffsetStore returns an empty in-memory offset store.
func NewMemoryOffsetStore() *MemoryOffsetStore {
	return &MemoryOffsetStore{offsets: make(map[string]int64)}
}

func (s *MemoryOffsetStore) Load(_ context.Context, consumer string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.offsets[consumer], nil
}

func (s *MemoryOffsetStore) Save(_ context.Context, consumer string, seq int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.offsets[consumer] = seq
	return nil
}
