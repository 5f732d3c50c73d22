package docstore

import (
	"errors"
	"sort"
	"time"
)

// Field is a typed accessor pair for one named model property.
// Values are exchanged as string-encoded literals on Set and as typed values on Get.
type Field[T Model] struct {
	Name     string
	DataType DataType
	get      func(T) any
	set      func(T, string) error
}

// StringField registers a string property.
func StringField[T Model](name string, get func(T) string, set func(T, string)) Field[T] {
	return Field[T]{
		Name:     name,
		DataType: DataTypeString,
		get:      func(m T) any { return get(m) },
		set: func(m T, literal string) error {
			set(m, literal)
			return nil
		},
	}
}

// LongField registers an integer property.
func LongField[T Model](name string, get func(T) int64, set func(T, int64)) Field[T] {
	return Field[T]{
		Name:     name,
		DataType: DataTypeLong,
		get:      func(m T) any { return get(m) },
		set: func(m T, literal string) error {
			v, err := ParseLiteral(DataTypeLong, literal)
			if err != nil {
				return err
			}

			set(m, v.(int64))

			return nil
		},
	}
}

// DoubleField registers a floating point property.
func DoubleField[T Model](name string, get func(T) float64, set func(T, float64)) Field[T] {
	return Field[T]{
		Name:     name,
		DataType: DataTypeDouble,
		get:      func(m T) any { return get(m) },
		set: func(m T, literal string) error {
			v, err := ParseLiteral(DataTypeDouble, literal)
			if err != nil {
				return err
			}

			set(m, v.(float64))

			return nil
		},
	}
}

// BoolField registers a bool property. Set accepts "1"/"true" as true and anything else as false.
func BoolField[T Model](name string, get func(T) bool, set func(T, bool)) Field[T] {
	return Field[T]{
		Name:     name,
		DataType: DataTypeBool,
		get:      func(m T) any { return get(m) },
		set: func(m T, literal string) error {
			set(m, parseBoolLiteral(literal))
			return nil
		},
	}
}

// TimeField registers a timestamp property.
func TimeField[T Model](name string, get func(T) time.Time, set func(T, time.Time)) Field[T] {
	return Field[T]{
		Name:     name,
		DataType: DataTypeTimestamp,
		get:      func(m T) any { return get(m) },
		set: func(m T, literal string) error {
			v, err := ParseLiteral(DataTypeTimestamp, literal)
			if err != nil {
				return err
			}

			set(m, v.(time.Time))

			return nil
		},
	}
}

// StringsField registers a string list property. Set expects a JSON array literal.
func StringsField[T Model](name string, get func(T) []string, set func(T, []string)) Field[T] {
	return Field[T]{
		Name:     name,
		DataType: DataTypeString,
		get:      func(m T) any { return get(m) },
		set: func(m T, literal string) error {
			var values []string
			if err := json.Unmarshal([]byte(literal), &values); err != nil {
				return errors.Join(ErrInvalidLiteral, err)
			}

			set(m, values)

			return nil
		},
	}
}

// FieldTable maps property names to typed accessors for one model type.
// It is built once at startup; the base fields id, ids and is_deleted are always present.
type FieldTable[T Model] struct {
	fields map[string]Field[T]
}

// NewFieldTable builds a table from explicit registrations. Later registrations win on name clashes.
func NewFieldTable[T Model](fields ...Field[T]) *FieldTable[T] {
	table := &FieldTable[T]{fields: make(map[string]Field[T], len(fields)+3)}

	base := []Field[T]{
		StringField[T](FieldID,
			func(m T) string { return m.Base().ID },
			func(m T, v string) { m.Base().ID = v }),
		StringsField[T](FieldIDs,
			func(m T) []string { return m.Base().IDs },
			func(m T, v []string) { m.Base().IDs = v }),
		BoolField[T](FieldIsDeleted,
			func(m T) bool { return m.Base().IsDeleted },
			func(m T, v bool) { m.Base().IsDeleted = v }),
	}

	for _, field := range append(base, fields...) {
		table.fields[field.Name] = field
	}

	return table
}

// Names returns the registered property names in sorted order.
func (t *FieldTable[T]) Names() []string {
	names := make([]string, 0, len(t.fields))
	for name := range t.fields {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// DataType returns the data type of a registered property.
func (t *FieldTable[T]) DataType(name string) (DataType, bool) {
	field, ok := t.fields[name]
	return field.DataType, ok
}

// Get returns the typed value of a property.
func (t *FieldTable[T]) Get(model T, name string) (any, bool) {
	field, ok := t.fields[name]
	if !ok {
		return nil, false
	}

	return field.get(model), true
}

// Set parses literal according to the property's data type and assigns it.
func (t *FieldTable[T]) Set(model T, name, literal string) error {
	field, ok := t.fields[name]
	if !ok {
		return validationError(ErrUnknownField, name, "")
	}

	if err := field.set(model, literal); err != nil {
		return validationError(err, name, literal)
	}

	return nil
}

// Lookup serves the model's registered properties to Filter.Evaluate.
func (t *FieldTable[T]) Lookup(model T) PropertyLookup {
	return func(property string) (any, bool) {
		return t.Get(model, property)
	}
}
