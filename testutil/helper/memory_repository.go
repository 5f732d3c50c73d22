package helper

import (
	"context"
	"slices"
	"sync"

	"github.com/AntonStoeckl/realtime-docsync-go/docstore"
)

type memoryKey struct {
	databaseName string
	entityName   string
}

// MemoryRepository is an in-process docstore.Repository for tests that do not need PostgreSQL.
// It resolves identities like the postgres engine: exact id first, then any alias, then insert.
type MemoryRepository struct {
	mu          sync.Mutex
	collections map[memoryKey][]docstore.StorageDocument
	upserts     int
	deletes     int

	// FailWith makes every subsequent call return this error.
	FailWith error
}

// NewMemoryRepository returns an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{collections: make(map[memoryKey][]docstore.StorageDocument)}
}

func (m *MemoryRepository) GetAll(_ context.Context, databaseName, entityName string) ([]docstore.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailWith != nil {
		return nil, m.FailWith
	}

	return m.transferAll(databaseName, entityName, nil)
}

func (m *MemoryRepository) GetByFilter(_ context.Context, databaseName, entityName string, filter docstore.Filter) ([]docstore.Document, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailWith != nil {
		return nil, m.FailWith
	}

	return m.transferAll(databaseName, entityName, &filter)
}

func (m *MemoryRepository) GetByID(_ context.Context, databaseName, entityName, id string) (docstore.Document, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailWith != nil {
		return nil, false, m.FailWith
	}

	idx := m.find(databaseName, entityName, id)
	if idx < 0 {
		return nil, false, nil
	}

	doc, err := m.collections[memoryKey{databaseName, entityName}][idx].ToTransfer()

	return doc, err == nil, err
}

func (m *MemoryRepository) Upsert(
	_ context.Context,
	databaseName, entityName, id string,
	doc docstore.Document,
	_ docstore.UpsertOptions,
) (docstore.Document, error) {
	input := doc.Clone()
	delete(input, docstore.FieldDisableEvents)
	input[docstore.FieldID] = id

	storage, err := input.ToStorage()
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailWith != nil {
		return nil, m.FailWith
	}

	m.upserts++
	key := memoryKey{databaseName, entityName}
	docs := m.collections[key]

	idx := slices.IndexFunc(docs, func(s docstore.StorageDocument) bool { return s.ID() == id })
	if idx < 0 {
		for _, candidate := range append([]string{id}, storage.IDs()...) {
			if idx = m.find(databaseName, entityName, candidate); idx >= 0 {
				break
			}
		}

		if idx >= 0 {
			storage[docstore.StorageFieldIDs] = unionAliases(docs[idx], storage)
		}
	}

	if idx < 0 {
		m.collections[key] = append(docs, storage)
		return storage.ToTransfer()
	}

	merged := docs[idx]
	for k, v := range storage {
		if k != docstore.StorageFieldID {
			merged[k] = v
		}
	}

	return merged.ToTransfer()
}

func (m *MemoryRepository) Delete(_ context.Context, databaseName, entityName, id string) (docstore.Document, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailWith != nil {
		return nil, false, m.FailWith
	}

	idx := m.find(databaseName, entityName, id)
	if idx < 0 {
		return nil, false, nil
	}

	m.deletes++
	key := memoryKey{databaseName, entityName}
	deleted := m.collections[key][idx]
	m.collections[key] = slices.Delete(m.collections[key], idx, idx+1)

	doc, err := deleted.ToTransfer()

	return doc, err == nil, err
}

// UpsertCount returns how many upserts reached the store.
func (m *MemoryRepository) UpsertCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.upserts
}

// DeleteCount returns how many deletes removed a document.
func (m *MemoryRepository) DeleteCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.deletes
}

// SetFailure makes every subsequent call fail with err, or succeed again when err is nil.
func (m *MemoryRepository) SetFailure(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.FailWith = err
}

func (m *MemoryRepository) find(databaseName, entityName, id string) int {
	docs := m.collections[memoryKey{databaseName, entityName}]

	if idx := slices.IndexFunc(docs, func(s docstore.StorageDocument) bool { return s.ID() == id }); idx >= 0 {
		return idx
	}

	return slices.IndexFunc(docs, func(s docstore.StorageDocument) bool { return slices.Contains(s.IDs(), id) })
}

func (m *MemoryRepository) transferAll(databaseName, entityName string, filter *docstore.Filter) ([]docstore.Document, error) {
	out := make([]docstore.Document, 0)

	for _, storage := range m.collections[memoryKey{databaseName, entityName}] {
		doc, err := storage.ToTransfer()
		if err != nil {
			return nil, err
		}

		if filter != nil {
			match, err := filter.Evaluate(docstore.DocumentLookup(doc))
			if err != nil {
				return nil, err
			}

			if !match {
				continue
			}
		}

		out = append(out, doc)
	}

	return out, nil
}

func unionAliases(matched, input docstore.StorageDocument) []any {
	aliases := make([]any, 0)
	seen := map[string]bool{matched.ID(): true}

	for _, alias := range slices.Concat(matched.IDs(), input.IDs(), []string{input.ID()}) {
		if !seen[alias] {
			seen[alias] = true
			aliases = append(aliases, alias)
		}
	}

	return aliases
}

var _ docstore.Repository = (*MemoryRepository)(nil)
