package docstore

import (
	"errors"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type filterWire struct {
	And      *[]filterWire `json:"and,omitempty"`
	Or       *[]filterWire `json:"or,omitempty"`
	Not      *filterWire   `json:"not,omitempty"`
	Operator Operator      `json:"operator,omitempty"`
	Property string        `json:"property,omitempty"`
	Value    *string       `json:"value,omitempty"`
	Values   *[]string     `json:"values,omitempty"`
	Type     *DataType     `json:"type,omitempty"`
}

// MarshalJSON encodes the filter in its wire shape:
// {"and":[...]}, {"or":[...]}, {"not":{...}} or {"operator":1,"property":"p","value":"v","type":0}.
func (f Filter) MarshalJSON() ([]byte, error) {
	return json.Marshal(f.toWire())
}

// UnmarshalJSON decodes the wire shape. It does not validate leaf rules; call Validate for that.
func (f *Filter) UnmarshalJSON(data []byte) error {
	decoded, err := decodeFilter(data)
	if err != nil {
		return err
	}

	*f = decoded

	return nil
}

// ParseFilter decodes and validates a JSON-encoded filter.
func ParseFilter(data []byte) (Filter, error) {
	f, err := decodeFilter(data)
	if err != nil {
		return Filter{}, err
	}

	if err := f.Validate(); err != nil {
		return Filter{}, err
	}

	return f, nil
}

func decodeFilter(data []byte) (Filter, error) {
	var wire filterWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return Filter{}, errors.Join(ErrValidation, ErrMalformedFilter, err)
	}

	return fromWire(wire)
}

func (f Filter) toWire() filterWire {
	switch f.kind {
	case FilterKindAnd:
		children := toWireList(f.children)
		return filterWire{And: &children}

	case FilterKindOr:
		children := toWireList(f.children)
		return filterWire{Or: &children}

	case FilterKindNot:
		child := filterWire{}
		if len(f.children) == 1 {
			child = f.children[0].toWire()
		}

		return filterWire{Not: &child}

	case FilterKindLeaf:
		dataType := f.dataType
		wire := filterWire{Operator: f.operator, Property: f.property, Value: f.value, Type: &dataType}
		if f.values != nil {
			values := f.values
			wire.Values = &values
		}

		return wire

	default:
		return filterWire{}
	}
}

func toWireList(filters []Filter) []filterWire {
	wires := make([]filterWire, 0, len(filters))
	for _, child := range filters {
		wires = append(wires, child.toWire())
	}

	return wires
}

func fromWire(wire filterWire) (Filter, error) {
	isLeaf := wire.Operator != OperatorNone || wire.Property != "" || wire.Value != nil || wire.Values != nil || wire.Type != nil

	shapes := 0
	for _, present := range []bool{wire.And != nil, wire.Or != nil, wire.Not != nil, isLeaf} {
		if present {
			shapes++
		}
	}

	if shapes > 1 {
		return Filter{}, validationError(ErrAmbiguousFilter, "operator", "")
	}

	switch {
	case wire.And != nil:
		children, err := fromWireList(*wire.And)
		if err != nil {
			return Filter{}, err
		}

		return And(children...), nil

	case wire.Or != nil:
		children, err := fromWireList(*wire.Or)
		if err != nil {
			return Filter{}, err
		}

		return Or(children...), nil

	case wire.Not != nil:
		child, err := fromWire(*wire.Not)
		if err != nil {
			return Filter{}, err
		}

		return Not(child), nil

	case isLeaf:
		dataType := DataTypeString
		if wire.Type != nil {
			dataType = *wire.Type
		}

		var values []string
		if wire.Values != nil {
			values = *wire.Values
			if values == nil {
				values = []string{}
			}
		}

		return NewLeaf(wire.Operator, wire.Property, wire.Value, values, dataType), nil

	default:
		return Filter{}, nil
	}
}

func fromWireList(wires []filterWire) ([]Filter, error) {
	filters := make([]Filter, 0, len(wires))
	for _, w := range wires {
		child, err := fromWire(w)
		if err != nil {
			return nil, err
		}

		filters = append(filters, child)
	}

	return filters, nil
}
