package docstore

import (
	"strconv"
	"strings"
	"time"
)

// Bookkeeping keys in meta_temp, holding unix milliseconds as decimal strings.
const (
	MetaTempInsertTimestamp = "timestamp_database_insert"
	MetaTempUpdateTimestamp = "timestamp_database_update"
)

// UniqueKeyPrefix marks aliases that were derived from a model's unique keys.
const UniqueKeyPrefix = "UNIQUE:"

// Model is the typed client-side view of a document. Implementations embed BaseModel
// and are used through pointers, e.g. *Invoice.
type Model interface {
	Base() *BaseModel
}

// UniqueModel is a Model with business keys that must resolve to the same document.
// Clients tag every key into the alias list as "UNIQUE:<key>".
type UniqueModel interface {
	Model
	UniqueKeys() []string
}

// BaseModel carries the fields every document has.
type BaseModel struct {
	ID        string            `json:"id"`
	IDs       []string          `json:"ids"`
	IsDeleted bool              `json:"is_deleted"`
	Meta      map[string]string `json:"meta,omitempty"`
	MetaTemp  map[string]string `json:"meta_temp,omitempty"`

	modified bool
}

// Base lets embedding types satisfy Model.
func (m *BaseModel) Base() *BaseModel {
	return m
}

// MarkModified flags the model as locally changed. The flag is never persisted.
func (m *BaseModel) MarkModified() {
	m.modified = true
}

// ClearModified resets the local dirty flag.
func (m *BaseModel) ClearModified() {
	m.modified = false
}

// IsModified reports the local dirty flag.
func (m *BaseModel) IsModified() bool {
	return m.modified
}

// InsertTimestamp returns the insertion time from meta_temp, if present.
func (m *BaseModel) InsertTimestamp() (int64, bool) {
	return m.metaTempMillis(MetaTempInsertTimestamp)
}

// UpdateTimestamp returns the last update time from meta_temp, if present.
func (m *BaseModel) UpdateTimestamp() (int64, bool) {
	return m.metaTempMillis(MetaTempUpdateTimestamp)
}

// StampInsert sets both bookkeeping timestamps to now.
func (m *BaseModel) StampInsert(now time.Time) {
	m.setMetaTempMillis(MetaTempInsertTimestamp, now.UnixMilli())
	m.setMetaTempMillis(MetaTempUpdateTimestamp, now.UnixMilli())
}

// StampUpdate sets the update timestamp to now.
func (m *BaseModel) StampUpdate(now time.Time) {
	m.setMetaTempMillis(MetaTempUpdateTimestamp, now.UnixMilli())
}

// HasID reports whether id is the primary key or one of the aliases.
func (m *BaseModel) HasID(id string) bool {
	if m.ID == id {
		return true
	}

	for _, alias := range m.IDs {
		if alias == id {
			return true
		}
	}

	return false
}

func (m *BaseModel) metaTempMillis(key string) (int64, bool) {
	raw, ok := m.MetaTemp[key]
	if !ok {
		return 0, false
	}

	millis, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false
	}

	return millis, true
}

func (m *BaseModel) setMetaTempMillis(key string, millis int64) {
	if m.MetaTemp == nil {
		m.MetaTemp = make(map[string]string)
	}

	m.MetaTemp[key] = strconv.FormatInt(millis, 10)
}

// TagUniqueKeys replaces all "UNIQUE:" aliases of the model with the current unique keys.
// Empty keys are skipped.
func TagUniqueKeys(model UniqueModel) {
	base := model.Base()

	ids := make([]string, 0, len(base.IDs))
	for _, alias := range base.IDs {
		if !strings.HasPrefix(alias, UniqueKeyPrefix) {
			ids = append(ids, alias)
		}
	}

	for _, key := range model.UniqueKeys() {
		if key != "" {
			ids = append(ids, UniqueKeyPrefix+key)
		}
	}

	base.IDs = ids
}
