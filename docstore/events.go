package docstore

import "errors"

// ChangeEventKind enumerates the change notifications a collection emits.
type ChangeEventKind int

const (
	KindChanged ChangeEventKind = iota
	KindModelInserted
	KindModelUpdated
	KindModelDeleted
	KindModelsInserted
	KindModelsUpdated
	KindModelsDeleted
)

var changeEventNames = map[ChangeEventKind]string{
	KindChanged:        "CollectionChangedEvent",
	KindModelInserted:  "CollectionModelInsertedEvent",
	KindModelUpdated:   "CollectionModelUpdatedEvent",
	KindModelDeleted:   "CollectionModelDeletedEvent",
	KindModelsInserted: "CollectionModelsInsertedEvent",
	KindModelsUpdated:  "CollectionModelsUpdatedEvent",
	KindModelsDeleted:  "CollectionModelsDeletedEvent",
}

// ChangeEventKinds lists every kind in declaration order.
func ChangeEventKinds() []ChangeEventKind {
	return []ChangeEventKind{
		KindChanged,
		KindModelInserted,
		KindModelUpdated,
		KindModelDeleted,
		KindModelsInserted,
		KindModelsUpdated,
		KindModelsDeleted,
	}
}

// EventName returns the wire name of the kind.
func (k ChangeEventKind) EventName() string {
	if name, ok := changeEventNames[k]; ok {
		return name
	}

	return ""
}

// IsSingular reports whether events of this kind carry a document id.
func (k ChangeEventKind) IsSingular() bool {
	return k == KindModelInserted || k == KindModelUpdated || k == KindModelDeleted
}

func (k ChangeEventKind) String() string {
	return k.EventName()
}

// ChangeEventKindByName resolves a wire name.
func ChangeEventKindByName(name string) (ChangeEventKind, bool) {
	for kind, kindName := range changeEventNames {
		if kindName == name {
			return kind, true
		}
	}

	return 0, false
}

// ChangeEvent notifies about a write to the collection (DatabaseName, EntityName).
// Singular kinds carry the id of the written document; plural kinds signal that the
// logical operation completed.
type ChangeEvent struct {
	Kind         ChangeEventKind `json:"-"`
	DatabaseName string          `json:"database_name"`
	EntityName   string          `json:"entity_name"`
	ID           string          `json:"id,omitempty"`
}

// EventName returns the wire name, which depends on the kind.
func (e ChangeEvent) EventName() string {
	return e.Kind.EventName()
}

// Matches reports whether the event belongs to the given collection.
func (e ChangeEvent) Matches(databaseName, entityName string) bool {
	return e.DatabaseName == databaseName && e.EntityName == entityName
}

// NewChangeEvents returns the plural, singular and generic events for one write, in emission order.
func NewChangeEvents(plural, singular ChangeEventKind, databaseName, entityName, id string) []ChangeEvent {
	return []ChangeEvent{
		{Kind: plural, DatabaseName: databaseName, EntityName: entityName},
		{Kind: singular, DatabaseName: databaseName, EntityName: entityName, ID: id},
		{Kind: KindChanged, DatabaseName: databaseName, EntityName: entityName},
	}
}

// DecodeChangeEvent decodes a serialized event value received under the given wire name.
func DecodeChangeEvent(name string, raw []byte) (ChangeEvent, error) {
	kind, ok := ChangeEventKindByName(name)
	if !ok {
		return ChangeEvent{}, ErrUnknownEventKind
	}

	var event ChangeEvent
	if err := json.Unmarshal(raw, &event); err != nil {
		return ChangeEvent{}, errors.Join(ErrDecodingEventFailed, err)
	}

	event.Kind = kind
	if !kind.IsSingular() {
		event.ID = ""
	}

	return event, nil
}
