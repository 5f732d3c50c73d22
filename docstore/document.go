package docstore

// Transfer-form and storage-form field names.
const (
	FieldID            = "id"
	FieldIDs           = "ids"
	FieldIsDeleted     = "is_deleted"
	FieldMeta          = "meta"
	FieldMetaTemp      = "meta_temp"
	StorageFieldID     = "_id"
	StorageFieldIDs    = "_ids"
	FieldDisableEvents = "disable_events"
)

// Document is a JSON object in transfer form: the primary key is "id" and the alias list is "ids".
type Document map[string]any

// StorageDocument is a JSON object in storage form: the primary key is "_id" and the alias list is "_ids".
type StorageDocument map[string]any

// ID returns the primary key of a transfer-form document.
func (d Document) ID() string {
	id, _ := d[FieldID].(string)
	return id
}

// IDs returns the alias list of a transfer-form document. Non-string entries are skipped.
func (d Document) IDs() []string {
	return stringList(d[FieldIDs])
}

// IsDeleted reports the soft-delete flag.
func (d Document) IsDeleted() bool {
	deleted, _ := d[FieldIsDeleted].(bool)
	return deleted
}

// Clone returns a shallow copy.
func (d Document) Clone() Document {
	clone := make(Document, len(d))
	for k, v := range d {
		clone[k] = v
	}

	return clone
}

// ToStorage converts the transfer form into the storage form.
// It fails when "_id" is already present or "id" is missing.
// The alias list defaults to an empty array.
func (d Document) ToStorage() (StorageDocument, error) {
	if _, present := d[StorageFieldID]; present {
		return nil, validationError(ErrStorageIDPresent, StorageFieldID, "")
	}

	id, ok := d[FieldID].(string)
	if !ok || id == "" {
		return nil, validationError(ErrMissingID, FieldID, "")
	}

	storage := make(StorageDocument, len(d)+1)
	for k, v := range d {
		switch k {
		case FieldID, FieldIDs:
		default:
			storage[k] = v
		}
	}

	storage[StorageFieldID] = id
	storage[StorageFieldIDs] = aliasList(d[FieldIDs])

	return storage, nil
}

// ID returns the primary key of a storage-form document.
func (s StorageDocument) ID() string {
	id, _ := s[StorageFieldID].(string)
	return id
}

// IDs returns the alias list of a storage-form document.
func (s StorageDocument) IDs() []string {
	return stringList(s[StorageFieldIDs])
}

// ToTransfer converts the storage form back into the transfer form.
// A stray "id" field is always discarded in favour of "_id".
func (s StorageDocument) ToTransfer() (Document, error) {
	id, ok := s[StorageFieldID].(string)
	if !ok || id == "" {
		return nil, ErrMissingStorageID
	}

	doc := make(Document, len(s))
	for k, v := range s {
		switch k {
		case StorageFieldID, StorageFieldIDs, FieldID:
		default:
			doc[k] = v
		}
	}

	doc[FieldID] = id
	doc[FieldIDs] = aliasList(s[StorageFieldIDs])

	return doc, nil
}

// aliasList normalizes an alias field to a JSON array, keeping its element order.
func aliasList(v any) []any {
	switch list := v.(type) {
	case []any:
		return list
	case []string:
		out := make([]any, 0, len(list))
		for _, s := range list {
			out = append(out, s)
		}

		return out
	default:
		return []any{}
	}
}

func stringList(v any) []string {
	switch list := v.(type) {
	case []string:
		return list
	case []any:
		out := make([]string, 0, len(list))
		for _, el := range list {
			if s, ok := el.(string); ok {
				out = append(out, s)
			}
		}

		return out
	default:
		return []string{}
	}
}
