package cache

import (
	"strconv"
	"time"

	"github.com/AntonStoeckl/realtime-docsync-go/docstore"
)

// AddRange merges incoming documents with last-write-wins semantics and returns how many entries it
// overwrote or created. An entry is replaced only when it is absent or the incoming update timestamp
// is strictly greater. Tombstoned ids are skipped unless the incoming copy is live and at least as new
// as the local delete.
func (s *Service) AddRange(typeName string, docs []docstore.Document) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.types[typeName]
	if !ok {
		return 0, ErrModelTypeNotRegistered
	}

	updated := state.merge(docs)

	s.updateStats(func(stats *Stats) {
		stats.UpdatesMerged += int64(updated)
	})

	return updated, nil
}

func (c *collectionState) merge(docs []docstore.Document) int {
	updated := 0

	for _, doc := range docs {
		id := doc.ID()
		if id == "" {
			continue
		}

		incoming := UpdateTimestamp(doc)

		if t, tombstoned := c.tombstones[id]; tombstoned {
			if doc.IsDeleted() || incoming < t.deletedAt {
				continue
			}

			delete(c.tombstones, id)
		}

		if existing, found := c.entries[id]; found && incoming <= UpdateTimestamp(existing.doc) {
			continue
		}

		c.put(id, &entry{doc: doc.Clone()})
		updated++
	}

	return updated
}

// UpdateTimestamp returns the update time in unix milliseconds from meta_temp, or 0 when absent.
func UpdateTimestamp(doc docstore.Document) int64 {
	return metaTempMillis(doc, docstore.MetaTempUpdateTimestamp)
}

func metaTempMillis(doc docstore.Document, key string) int64 {
	var raw any

	switch metaTemp := doc[docstore.FieldMetaTemp].(type) {
	case map[string]any:
		raw = metaTemp[key]
	case map[string]string:
		raw = metaTemp[key]
	default:
		return 0
	}

	switch v := raw.(type) {
	case string:
		millis, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0
		}

		return millis
	case float64:
		return int64(v)
	case int64:
		return v
	default:
		return 0
	}
}

// stamp returns a copy of doc with fresh bookkeeping timestamps. A document that was never
// pushed gets both timestamps, every other one only the update timestamp.
func stamp(doc docstore.Document, now time.Time) docstore.Document {
	stamped := doc.Clone()
	metaTemp := make(map[string]any)

	switch existing := doc[docstore.FieldMetaTemp].(type) {
	case map[string]any:
		for k, v := range existing {
			metaTemp[k] = v
		}
	case map[string]string:
		for k, v := range existing {
			metaTemp[k] = v
		}
	}

	millis := strconv.FormatInt(now.UnixMilli(), 10)
	if _, inserted := metaTemp[docstore.MetaTempInsertTimestamp]; !inserted {
		metaTemp[docstore.MetaTempInsertTimestamp] = millis
	}

	metaTemp[docstore.MetaTempUpdateTimestamp] = millis
	stamped[docstore.FieldMetaTemp] = metaTemp

	return stamped
}
