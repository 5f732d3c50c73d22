package cache

import (
	"context"
	"errors"
	"time"

	"github.com/AntonStoeckl/realtime-docsync-go/docstore"
	"github.com/AntonStoeckl/realtime-docsync-go/messagehub"
)

const (
	logMsgWorkProcessed    = "cache work processed"
	logMsgSyncFailed       = "cache sync failed, retrying on the next pass"
	logMsgPushed           = "pushed cached documents"
	logMsgPulled           = "merged documents from the store"
	logMsgDuplicateKey     = "store rejected cached document as duplicate, keeping it dirty"
	logMsgImporterFailed   = "static data importer failed"
	logAttrWork            = "work"
	logAttrTypeName        = "type_name"
	logAttrDocumentID      = "document_id"
	logAttrDocumentCount   = "document_count"
	logAttrDeletedCount    = "deleted_count"
	logAttrDurationMS      = "duration_ms"
	logAttrError           = "error"
	metricSyncDuration     = "docsync_cache_sync_duration_seconds"
	metricDocumentsPushed  = "docsync_cache_documents_pushed"
	metricDocumentsMerged  = "docsync_cache_documents_merged"
	metricConflictsTotal   = "docsync_cache_conflicts_total"
	labelWork              = "work"
	labelStatus            = "status"
	labelTypeName          = "type_name"
	statusSuccess          = "success"
	statusError            = "error"
	statusSkipped          = "skipped"
	microsPerMilli         = 1000
)

// Run loads every registered collection, runs the importers and then reconciles with the store
// every sync interval until ctx is cancelled. A Service runs at most once.
func (s *Service) Run(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}

	defer func() {
		close(s.stopped)
		s.queue.drain(ErrServiceStopped)
	}()

	s.queue.push(workItem{kind: workLoad})
	close(s.running)

	ticker := time.NewTicker(s.syncInterval)
	defer ticker.Stop()

	for {
		for ctx.Err() == nil {
			item, ok := s.queue.pop()
			if !ok {
				break
			}

			s.process(ctx, item)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.queue.pushCoalesced(workItem{kind: workSync})
		case <-s.queue.signal:
		}
	}
}

// Running is closed once Run owns the worker and has queued the startup load.
func (s *Service) Running() <-chan struct{} {
	return s.running
}

// Sync runs a full reconciliation pass on the worker and waits for its outcome.
func (s *Service) Sync(ctx context.Context) error {
	done := make(chan error, 1)
	s.queue.push(workItem{kind: workSync, done: done})

	select {
	case err := <-done:
		return err
	case <-s.stopped:
		return ErrServiceStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Listen schedules a sync whenever the store announces a change to one of the registered collections.
func (s *Service) Listen(hub *messagehub.Hub) (*messagehub.Subscription, error) {
	return hub.Subscribe(
		docstore.KindChanged.EventName(),
		messagehub.When(func(event docstore.ChangeEvent) bool {
			return s.tracks(event.DatabaseName, event.EntityName)
		}),
		messagehub.Handle(func(_ context.Context, _ docstore.ChangeEvent) error {
			s.queue.pushCoalesced(workItem{kind: workSync})
			return nil
		}),
	)
}

func (s *Service) tracks(databaseName, entityName string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, state := range s.types {
		if state.source.DatabaseName == databaseName && state.source.EntityName == entityName {
			return true
		}
	}

	return false
}

func (s *Service) process(ctx context.Context, item workItem) {
	start := time.Now()
	kind := item.kind

	// Until the startup load succeeded, every pass is a load so importers still run.
	if !s.loaded && kind != workLoad {
		kind = workLoad
	}

	var err error
	status := statusSuccess

	switch kind {
	case workLoad:
		if err = s.syncAll(ctx); err == nil {
			s.loaded = true
			s.runImporters(ctx)
		}

	case workFlush:
		if s.hasPendingWrites() {
			err = s.syncAll(ctx)
		} else {
			status = statusSkipped
		}

	default:
		err = s.syncAll(ctx)
	}

	duration := time.Since(start)

	if err != nil {
		status = statusError
		s.logError(logMsgSyncFailed, logAttrWork, kind.String(), logAttrError, err.Error())
	} else {
		s.logDebug(logMsgWorkProcessed, logAttrWork, kind.String(), logAttrDurationMS, float64(duration.Microseconds())/microsPerMilli)
	}

	if status != statusSkipped {
		s.updateStats(func(stats *Stats) {
			stats.SyncPasses++
			stats.LastSyncAt = s.now()
			stats.LastSyncError = err
		})
	}

	if s.metricsCollector != nil {
		s.metricsCollector.RecordDuration(metricSyncDuration, duration, map[string]string{labelWork: kind.String(), labelStatus: status})
	}

	if item.done != nil {
		item.done <- err
	}
}

func (s *Service) runImporters(ctx context.Context) {
	for _, importer := range s.importers {
		if err := importer(ctx, s); err != nil {
			s.logError(logMsgImporterFailed, logAttrError, err.Error())
		}
	}
}

// syncAll reconciles the registered types in registration order and stops at the first failure.
func (s *Service) syncAll(ctx context.Context) error {
	for _, typeName := range s.typeNames() {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := s.syncType(ctx, typeName); err != nil {
			return errors.Join(ErrSyncFailed, err)
		}
	}

	return nil
}

// syncType pushes dirty documents until none are left, pushes local deletes and then pulls the
// full remote set, including soft-deleted documents.
func (s *Service) syncType(ctx context.Context, typeName string) error {
	source, ok := s.Source(typeName)
	if !ok {
		return ErrModelTypeNotRegistered
	}

	pushed, err := s.pushDirty(ctx, typeName, source)
	if err != nil {
		return err
	}

	deleted, err := s.pushDeletes(ctx, typeName, source)
	if err != nil {
		return err
	}

	if pushed > 0 || deleted > 0 {
		s.updateStats(func(stats *Stats) { stats.Pushed += int64(pushed) })
		s.logInfo(logMsgPushed, logAttrTypeName, typeName, logAttrDocumentCount, pushed, logAttrDeletedCount, deleted)
	}

	docs, err := source.Repository.GetAll(ctx, source.DatabaseName, source.EntityName)
	if err != nil {
		return err
	}

	merged, err := s.AddRange(typeName, docs)
	if err != nil {
		return err
	}

	s.pruneTombstones(typeName, docs)

	if merged > 0 {
		s.logInfo(logMsgPulled, logAttrTypeName, typeName, logAttrDocumentCount, merged)
	}

	if s.metricsCollector != nil {
		labels := map[string]string{labelTypeName: typeName}
		s.metricsCollector.RecordValue(metricDocumentsPushed, float64(pushed), labels)
		s.metricsCollector.RecordValue(metricDocumentsMerged, float64(merged), labels)
	}

	return nil
}

// pushDirty repeats until no dirty document is left, so writes made during a push are pushed too.
// Documents rejected as duplicates stay dirty and are skipped for the rest of this pass.
func (s *Service) pushDirty(ctx context.Context, typeName string, source Source) (int, error) {
	skip := make(map[string]bool)
	pushed := 0

	for {
		batch := s.takeDirty(typeName, skip)
		if len(batch) == 0 {
			return pushed, nil
		}

		for i, doc := range batch {
			id := doc.ID()

			_, err := source.Repository.Upsert(ctx, source.DatabaseName, source.EntityName, id, doc, docstore.UpsertOptions{})
			if err == nil {
				pushed++
				continue
			}

			if !errors.Is(err, docstore.ErrDuplicateKey) {
				for _, unpushed := range batch[i:] {
					s.markDirty(typeName, unpushed.ID())
				}

				return pushed, err
			}

			s.markDirty(typeName, id)

			skip[id] = true
			s.logWarn(logMsgDuplicateKey, logAttrTypeName, typeName, logAttrDocumentID, id, logAttrError, err.Error())
			s.updateStats(func(stats *Stats) { stats.Conflicts++ })

			if s.metricsCollector != nil {
				s.metricsCollector.IncrementCounter(metricConflictsTotal, map[string]string{labelTypeName: typeName})
			}
		}
	}
}

// takeDirty stamps every dirty document, marks it clean and returns the stamped copies.
func (s *Service) takeDirty(typeName string, skip map[string]bool) []docstore.Document {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.types[typeName]
	if !ok {
		return nil
	}

	now := s.now()

	var batch []docstore.Document
	for _, id := range state.order {
		e := state.entries[id]
		if !e.modified || skip[id] {
			continue
		}

		e.doc = stamp(e.doc, now)
		e.modified = false
		batch = append(batch, e.doc.Clone())
	}

	return batch
}

func (s *Service) markDirty(typeName, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if state, ok := s.types[typeName]; ok {
		if e, found := state.entries[id]; found {
			e.modified = true
		}
	}
}

func (s *Service) pushDeletes(ctx context.Context, typeName string, source Source) (int, error) {
	deleted := 0

	for _, id := range s.pendingDeletes(typeName) {
		if _, _, err := source.Repository.Delete(ctx, source.DatabaseName, source.EntityName, id); err != nil {
			return deleted, err
		}

		s.confirmDelete(typeName, id)
		deleted++
	}

	if deleted > 0 {
		s.updateStats(func(stats *Stats) { stats.Deleted += int64(deleted) })
	}

	return deleted, nil
}

func (s *Service) pendingDeletes(typeName string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.types[typeName]
	if !ok {
		return nil
	}

	var ids []string
	for id, t := range state.tombstones {
		if !t.confirmed {
			ids = append(ids, id)
		}
	}

	return ids
}

func (s *Service) confirmDelete(typeName, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if state, ok := s.types[typeName]; ok {
		if t, found := state.tombstones[id]; found {
			t.confirmed = true
		}
	}
}

// pruneTombstones forgets confirmed deletes the store no longer holds.
func (s *Service) pruneTombstones(typeName string, remote []docstore.Document) {
	present := make(map[string]bool, len(remote))
	for _, doc := range remote {
		present[doc.ID()] = true
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.types[typeName]
	if !ok {
		return
	}

	for id, t := range state.tombstones {
		if t.confirmed && !present[id] {
			delete(state.tombstones, id)
		}
	}
}
