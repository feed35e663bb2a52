package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	internalErrors "apna-payments/internal/errors"

	"github.com/google/uuid"
)

// MemoryStore keeps records in process memory. Writes are serialized under
// a single lock, which also covers updates that touch several index entries.
type MemoryStore struct {
	mu      sync.RWMutex
	opts    Options
	records map[string]*Record
	index   map[indexEntry]string
	now     func() time.Time
}

func NewMemoryStore(opts Options) *MemoryStore {
	return &MemoryStore{
		opts:    opts,
		records: make(map[string]*Record),
		index:   make(map[indexEntry]string),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (ms *MemoryStore) UpsertByKey(ctx context.Context, keyField, keyValue string, doc Document) (*Record, error) {
	incoming, err := ms.opts.prepare(keyField, keyValue, doc)
	if err != nil {
		return nil, err
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	id, ok := ms.index[indexEntry{field: keyField, value: keyValue}]
	if !ok {
		return ms.create(incoming)
	}
	return ms.merge(ms.records[id], incoming)
}

func (ms *MemoryStore) MergeByKey(ctx context.Context, keyField, keyValue string, doc Document) (*Record, error) {
	if err := ms.opts.checkKey(keyField, keyValue); err != nil {
		return nil, err
	}
	incoming, err := normalize(doc)
	if err != nil {
		return nil, err
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	id, ok := ms.index[indexEntry{field: keyField, value: keyValue}]
	if !ok {
		return nil, fmt.Errorf("%w: %s=%s", internalErrors.ErrNotFound, keyField, keyValue)
	}
	return ms.merge(ms.records[id], incoming)
}

func (ms *MemoryStore) FindByKey(ctx context.Context, keyField, keyValue string) (*Record, error) {
	if err := ms.opts.checkKey(keyField, keyValue); err != nil {
		return nil, err
	}

	ms.mu.RLock()
	defer ms.mu.RUnlock()

	id, ok := ms.index[indexEntry{field: keyField, value: keyValue}]
	if !ok {
		return nil, fmt.Errorf("%w: %s=%s", internalErrors.ErrNotFound, keyField, keyValue)
	}
	return ms.records[id].clone(), nil
}

// Len reports how many records are stored.
func (ms *MemoryStore) Len() int {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	return len(ms.records)
}

func (ms *MemoryStore) create(fields Document) (*Record, error) {
	now := ms.now()
	rec := &Record{
		ID:        uuid.NewString(),
		Fields:    fields,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := ms.reindex(rec.ID, nil, fields); err != nil {
		return nil, err
	}
	ms.records[rec.ID] = rec
	return rec.clone(), nil
}

func (ms *MemoryStore) merge(rec *Record, incoming Document) (*Record, error) {
	merged, changed, err := Merge(rec.Fields, incoming, ms.opts.Policy)
	if err != nil {
		return nil, err
	}
	if !changed {
		return rec.clone(), nil
	}
	if err := ms.reindex(rec.ID, rec.Fields, merged); err != nil {
		return nil, err
	}
	rec.Fields = merged
	rec.UpdatedAt = ms.now()
	return rec.clone(), nil
}

// reindex points the index at id for every indexed value in next and drops
// entries for values prev carried but next no longer does. Nothing changes
// when a value is owned by another record.
func (ms *MemoryStore) reindex(id string, prev, next Document) error {
	entries := ms.opts.indexEntries(next)
	for _, e := range entries {
		if owner, ok := ms.index[e]; ok && owner != id {
			return fmt.Errorf("%w: %s=%s", internalErrors.ErrKeyConflict, e.field, e.value)
		}
	}
	for _, old := range ms.opts.indexEntries(prev) {
		delete(ms.index, old)
	}
	for _, e := range entries {
		ms.index[e] = id
	}
	return nil
}
