package cache

import (
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/AntonStoeckl/realtime-docsync-go/docstore"
)

// DefaultSyncInterval is the period of the reconciliation loop.
const DefaultSyncInterval = 20 * time.Second

// Source is the store-side collection behind one registered model type.
type Source struct {
	Repository   docstore.Repository
	DatabaseName string
	EntityName   string
}

type entry struct {
	doc      docstore.Document
	modified bool
}

// tombstone remembers a local delete until the store confirmed it.
type tombstone struct {
	deletedAt int64
	confirmed bool
}

type collectionState struct {
	source     Source
	entries    map[string]*entry
	order      []string
	tombstones map[string]*tombstone
}

func newCollectionState(source Source) *collectionState {
	return &collectionState{
		source:     source,
		entries:    make(map[string]*entry),
		tombstones: make(map[string]*tombstone),
	}
}

// Stats reports the cache state and what the reconciliation loop has done so far.
type Stats struct {
	Entries       int
	Dirty         int
	Tombstones    int
	SyncPasses    int64
	UpdatesMerged int64
	Pushed        int64
	Deleted       int64
	Conflicts     int64
	LastSyncAt    time.Time
	LastSyncError error
}

// Service keeps an in-memory replica of the registered collections.
//
// All store round-trips run on a single worker started by Run, so sync passes never interleave.
// Reads and local writes only take the map lock and never wait for the worker.
type Service struct {
	logger           docstore.Logger
	metricsCollector docstore.MetricsCollector
	syncInterval     time.Duration
	importers        []Importer
	now              func() time.Time

	mu        sync.RWMutex
	types     map[string]*collectionState
	typeOrder []string

	queue   *workQueue
	started atomic.Bool
	running chan struct{}
	stopped chan struct{}
	loaded  bool

	statsMu sync.Mutex
	stats   Stats
}

// NewService creates a Service. Register the model types, then call Run.
func NewService(options ...Option) (*Service, error) {
	s := &Service{
		syncInterval: DefaultSyncInterval,
		now:          time.Now,
		types:        make(map[string]*collectionState),
		queue:        newWorkQueue(),
		running:      make(chan struct{}),
		stopped:      make(chan struct{}),
	}

	for _, option := range options {
		if err := option(s); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// Register binds typeName to its store-side collection. Registering a name again replaces the source
// and keeps the cached entries.
func (s *Service) Register(typeName string, source Source) error {
	if source.Repository == nil {
		return ErrNilRepository
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if state, ok := s.types[typeName]; ok {
		state.source = source
		return nil
	}

	s.types[typeName] = newCollectionState(source)
	s.typeOrder = append(s.typeOrder, typeName)

	return nil
}

// Source returns the store-side collection of typeName.
func (s *Service) Source(typeName string) (Source, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.types[typeName]
	if !ok {
		return Source{}, false
	}

	return state.source, true
}

// Get returns the cached document with the given id, falling back to the alias lists.
func (s *Service) Get(typeName, id string) (docstore.Document, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.types[typeName]
	if !ok {
		return nil, false, ErrModelTypeNotRegistered
	}

	key, found := state.resolve(id)
	if !found {
		return nil, false, nil
	}

	return state.entries[key].doc.Clone(), true, nil
}

// All returns every cached document of typeName in the order they entered the cache.
// Soft-deleted documents are included.
func (s *Service) All(typeName string) ([]docstore.Document, error) {
	return s.Find(typeName, nil)
}

// Find returns the cached documents of typeName that match. A nil match returns all of them.
func (s *Service) Find(typeName string, match func(docstore.Document) bool) ([]docstore.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.types[typeName]
	if !ok {
		return nil, ErrModelTypeNotRegistered
	}

	docs := make([]docstore.Document, 0, len(state.order))
	for _, id := range state.order {
		doc := state.entries[id].doc
		if match == nil || match(doc) {
			docs = append(docs, doc.Clone())
		}
	}

	return docs, nil
}

// IsModified reports whether the cached document still waits to be pushed. Alias ids resolve like in Get.
func (s *Service) IsModified(typeName, id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.types[typeName]
	if !ok {
		return false
	}

	key, found := state.resolve(id)

	return found && state.entries[key].modified
}

// Add stores doc locally and marks it modified. It does not schedule a push; call Save for that.
func (s *Service) Add(typeName string, doc docstore.Document) error {
	id := doc.ID()
	if id == "" {
		return ErrMissingID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.types[typeName]
	if !ok {
		return ErrModelTypeNotRegistered
	}

	delete(state.tombstones, id)
	state.put(id, &entry{doc: doc.Clone(), modified: true})

	return nil
}

// Upsert stores doc locally and schedules a push. Readers observe the write immediately.
func (s *Service) Upsert(typeName string, doc docstore.Document) error {
	if err := s.Add(typeName, doc); err != nil {
		return err
	}

	s.Save()

	return nil
}

// Remove drops the cached document and leaves a tombstone that the next sync deletes from the store.
// An alias id removes and tombstones the document under its primary key.
func (s *Service) Remove(typeName, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.types[typeName]
	if !ok {
		return false, ErrModelTypeNotRegistered
	}

	key, found := state.resolve(id)
	if found {
		state.remove(key)
	}

	state.tombstones[key] = &tombstone{deletedAt: s.now().UnixMilli()}

	return found, nil
}

// Delete removes the document locally and schedules a push.
func (s *Service) Delete(typeName, id string) (bool, error) {
	found, err := s.Remove(typeName, id)
	if err != nil {
		return false, err
	}

	s.Save()

	return found, nil
}

// Save schedules an asynchronous push of all local changes.
func (s *Service) Save() {
	s.queue.pushCoalesced(workItem{kind: workFlush})
}

// Stats returns a snapshot of the diagnostics.
func (s *Service) Stats() Stats {
	s.mu.RLock()
	var entries, dirty, tombstones int
	for _, state := range s.types {
		entries += len(state.entries)
		tombstones += len(state.tombstones)

		for _, e := range state.entries {
			if e.modified {
				dirty++
			}
		}
	}
	s.mu.RUnlock()

	s.statsMu.Lock()
	defer s.statsMu.Unlock()

	stats := s.stats
	stats.Entries = entries
	stats.Dirty = dirty
	stats.Tombstones = tombstones

	return stats
}

func (s *Service) typeNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]string(nil), s.typeOrder...)
}

func (s *Service) hasPendingWrites() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, state := range s.types {
		for _, t := range state.tombstones {
			if !t.confirmed {
				return true
			}
		}

		for _, e := range state.entries {
			if e.modified {
				return true
			}
		}
	}

	return false
}

func (s *Service) updateStats(update func(stats *Stats)) {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()

	update(&s.stats)
}

func (c *collectionState) put(id string, e *entry) {
	if _, exists := c.entries[id]; !exists {
		c.order = append(c.order, id)
	}

	c.entries[id] = e
}

// resolve maps id to the key of the cached document, trying the primary keys before the alias lists.
// An unknown id resolves to itself.
func (c *collectionState) resolve(id string) (string, bool) {
	if _, found := c.entries[id]; found {
		return id, true
	}

	for _, key := range c.order {
		if slices.Contains(c.entries[key].doc.IDs(), id) {
			return key, true
		}
	}

	return id, false
}

func (c *collectionState) remove(id string) {
	delete(c.entries, id)

	for i, key := range c.order {
		if key == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			return
		}
	}
}
