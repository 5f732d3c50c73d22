package docstore

import (
	"strconv"
	"time"
)

// Operator selects the comparison a Filter leaf performs. The numeric values are part of the wire format.
type Operator int

const (
	OperatorNone Operator = iota
	OperatorEqual
	OperatorLess
	OperatorGreater
	OperatorLessOrEqual
	OperatorGreaterOrEqual
	OperatorIn
	OperatorExist
)

func (o Operator) String() string {
	switch o {
	case OperatorNone:
		return "NONE"
	case OperatorEqual:
		return "EQUAL"
	case OperatorLess:
		return "LESS"
	case OperatorGreater:
		return "GREATER"
	case OperatorLessOrEqual:
		return "LESS_OR_EQUAL"
	case OperatorGreaterOrEqual:
		return "GREATER_OR_EQUAL"
	case OperatorIn:
		return "IN"
	case OperatorExist:
		return "EXIST"
	default:
		return "UNKNOWN(" + strconv.Itoa(int(o)) + ")"
	}
}

// IsComparison reports whether the operator orders values (LESS, GREATER and their inclusive variants).
func (o Operator) IsComparison() bool {
	return o == OperatorLess || o == OperatorGreater || o == OperatorLessOrEqual || o == OperatorGreaterOrEqual
}

// DataType controls how the string-encoded literals of a Filter leaf are parsed.
type DataType int

const (
	DataTypeString DataType = iota
	DataTypeBool
	DataTypeLong
	DataTypeDouble
	DataTypeTimestamp
)

func (d DataType) String() string {
	switch d {
	case DataTypeString:
		return "STRING"
	case DataTypeBool:
		return "BOOL"
	case DataTypeLong:
		return "LONG"
	case DataTypeDouble:
		return "DOUBLE"
	case DataTypeTimestamp:
		return "TIMESTAMP"
	default:
		return "UNKNOWN(" + strconv.Itoa(int(d)) + ")"
	}
}

// FilterKind tells composite nodes from leaf predicates.
type FilterKind int

const (
	FilterKindEmpty FilterKind = iota
	FilterKindAnd
	FilterKindOr
	FilterKindNot
	FilterKindLeaf
)

// Filter is an immutable boolean expression over document properties.
// A node is either a composite (And, Or, Not) or a leaf predicate.
// The zero value is the empty filter, which matches every document.
type Filter struct {
	kind     FilterKind
	children []Filter
	operator Operator
	property string
	value    *string
	values   []string
	dataType DataType
}

// Kind returns the kind of the node.
func (f Filter) Kind() FilterKind {
	return f.kind
}

// IsEmpty reports whether the filter is the zero value.
func (f Filter) IsEmpty() bool {
	return f.kind == FilterKindEmpty
}

// Children returns the operands of an And or Or node, or the single operand of a Not node.
func (f Filter) Children() []Filter {
	return f.children
}

// Operator returns the leaf operator.
func (f Filter) Operator() Operator {
	return f.operator
}

// Property returns the property path of a leaf. Dots separate nested object keys.
func (f Filter) Property() string {
	return f.property
}

// Value returns the single string-encoded literal of a leaf, if set.
func (f Filter) Value() (string, bool) {
	if f.value == nil {
		return "", false
	}

	return *f.value, true
}

// Values returns the literal list of an IN leaf.
func (f Filter) Values() []string {
	return f.values
}

// HasValues reports whether the values list was set, even if empty.
func (f Filter) HasValues() bool {
	return f.values != nil
}

// DataType returns the data type tag of a leaf.
func (f Filter) DataType() DataType {
	return f.dataType
}

// And combines the given filters into a conjunction. An empty conjunction matches everything.
func And(filters ...Filter) Filter {
	return Filter{kind: FilterKindAnd, children: copyFilters(filters)}
}

// Or combines the given filters into a disjunction. An empty disjunction matches nothing.
func Or(filters ...Filter) Filter {
	return Filter{kind: FilterKindOr, children: copyFilters(filters)}
}

// Not negates the given filter.
func Not(filter Filter) Filter {
	return Filter{kind: FilterKindNot, children: []Filter{filter}}
}

// Equals matches documents whose string property equals value.
// A list property matches when any of its elements equals value.
func Equals(property, value string) Filter {
	return newLeaf(OperatorEqual, property, value, DataTypeString)
}

// EqualsBool matches documents whose bool property equals value.
// For false, documents where the property is absent or null match as well.
func EqualsBool(property string, value bool) Filter {
	return newLeaf(OperatorEqual, property, FormatBool(value), DataTypeBool)
}

func EqualsLong(property string, value int64) Filter {
	return newLeaf(OperatorEqual, property, FormatLong(value), DataTypeLong)
}

func EqualsDouble(property string, value float64) Filter {
	return newLeaf(OperatorEqual, property, FormatDouble(value), DataTypeDouble)
}

func EqualsTime(property string, value time.Time) Filter {
	return newLeaf(OperatorEqual, property, FormatTime(value), DataTypeTimestamp)
}

func Less(property, value string) Filter {
	return newLeaf(OperatorLess, property, value, DataTypeString)
}

func LessLong(property string, value int64) Filter {
	return newLeaf(OperatorLess, property, FormatLong(value), DataTypeLong)
}

func LessDouble(property string, value float64) Filter {
	return newLeaf(OperatorLess, property, FormatDouble(value), DataTypeDouble)
}

func LessTime(property string, value time.Time) Filter {
	return newLeaf(OperatorLess, property, FormatTime(value), DataTypeTimestamp)
}

func Greater(property, value string) Filter {
	return newLeaf(OperatorGreater, property, value, DataTypeString)
}

func GreaterLong(property string, value int64) Filter {
	return newLeaf(OperatorGreater, property, FormatLong(value), DataTypeLong)
}

func GreaterDouble(property string, value float64) Filter {
	return newLeaf(OperatorGreater, property, FormatDouble(value), DataTypeDouble)
}

func GreaterTime(property string, value time.Time) Filter {
	return newLeaf(OperatorGreater, property, FormatTime(value), DataTypeTimestamp)
}

func LessOrEqual(property, value string) Filter {
	return newLeaf(OperatorLessOrEqual, property, value, DataTypeString)
}

func LessOrEqualLong(property string, value int64) Filter {
	return newLeaf(OperatorLessOrEqual, property, FormatLong(value), DataTypeLong)
}

func LessOrEqualDouble(property string, value float64) Filter {
	return newLeaf(OperatorLessOrEqual, property, FormatDouble(value), DataTypeDouble)
}

func LessOrEqualTime(property string, value time.Time) Filter {
	return newLeaf(OperatorLessOrEqual, property, FormatTime(value), DataTypeTimestamp)
}

func GreaterOrEqual(property, value string) Filter {
	return newLeaf(OperatorGreaterOrEqual, property, value, DataTypeString)
}

func GreaterOrEqualLong(property string, value int64) Filter {
	return newLeaf(OperatorGreaterOrEqual, property, FormatLong(value), DataTypeLong)
}

func GreaterOrEqualDouble(property string, value float64) Filter {
	return newLeaf(OperatorGreaterOrEqual, property, FormatDouble(value), DataTypeDouble)
}

func GreaterOrEqualTime(property string, value time.Time) Filter {
	return newLeaf(OperatorGreaterOrEqual, property, FormatTime(value), DataTypeTimestamp)
}

// In matches documents whose property equals any of the given strings.
// An empty list matches nothing.
func In(property string, values ...string) Filter {
	return newListLeaf(property, append(make([]string, 0, len(values)), values...), DataTypeString)
}

func InLong(property string, values ...int64) Filter {
	encoded := make([]string, 0, len(values))
	for _, v := range values {
		encoded = append(encoded, FormatLong(v))
	}

	return newListLeaf(property, encoded, DataTypeLong)
}

func InDouble(property string, values ...float64) Filter {
	encoded := make([]string, 0, len(values))
	for _, v := range values {
		encoded = append(encoded, FormatDouble(v))
	}

	return newListLeaf(property, encoded, DataTypeDouble)
}

func InTime(property string, values ...time.Time) Filter {
	encoded := make([]string, 0, len(values))
	for _, v := range values {
		encoded = append(encoded, FormatTime(v))
	}

	return newListLeaf(property, encoded, DataTypeTimestamp)
}

// Exists matches documents that carry the property, including documents where it is null.
func Exists(property string) Filter {
	return Filter{kind: FilterKindLeaf, operator: OperatorExist, property: property}
}

// NewLeaf builds a leaf from raw parts, as decoded from the wire. Use Validate before translating it.
func NewLeaf(operator Operator, property string, value *string, values []string, dataType DataType) Filter {
	f := Filter{kind: FilterKindLeaf, operator: operator, property: property, dataType: dataType}
	if value != nil {
		v := *value
		f.value = &v
	}

	if values != nil {
		f.values = append(make([]string, 0, len(values)), values...)
	}

	return f
}

func newLeaf(operator Operator, property, value string, dataType DataType) Filter {
	return Filter{kind: FilterKindLeaf, operator: operator, property: property, value: &value, dataType: dataType}
}

func newListLeaf(property string, values []string, dataType DataType) Filter {
	return Filter{kind: FilterKindLeaf, operator: OperatorIn, property: property, values: values, dataType: dataType}
}

func copyFilters(filters []Filter) []Filter {
	return append(make([]Filter, 0, len(filters)), filters...)
}

// Validate checks the whole tree. Violations fail with an error wrapping ErrValidation that names the offending field.
func (f Filter) Validate() error {
	switch f.kind {
	case FilterKindEmpty:
		return nil

	case FilterKindAnd, FilterKindOr:
		for _, child := range f.children {
			if err := child.Validate(); err != nil {
				return err
			}
		}

		return nil

	case FilterKindNot:
		if len(f.children) != 1 || f.children[0].IsEmpty() {
			return validationError(ErrEmptyFilter, "not", "")
		}

		return f.children[0].Validate()

	default:
		return f.validateLeaf()
	}
}

func (f Filter) validateLeaf() error {
	if f.property == "" {
		return validationError(ErrMissingProperty, "property", "")
	}

	if f.dataType < DataTypeString || f.dataType > DataTypeTimestamp {
		return validationError(ErrUnknownDataType, "type", f.dataType.String())
	}

	switch f.operator {
	case OperatorExist:
		if f.value != nil {
			return validationError(ErrUnexpectedValue, "value", "operator "+f.operator.String())
		}

		if f.values != nil {
			return validationError(ErrUnexpectedValues, "values", "operator "+f.operator.String())
		}

		return nil

	case OperatorIn:
		if f.value != nil {
			return validationError(ErrUnexpectedValue, "value", "operator "+f.operator.String())
		}

		if f.values == nil {
			return validationError(ErrMissingValues, "values", "operator "+f.operator.String())
		}

		for _, v := range f.values {
			if _, err := ParseLiteral(f.dataType, v); err != nil {
				return validationError(err, "values", v)
			}
		}

		return nil

	case OperatorEqual, OperatorLess, OperatorGreater, OperatorLessOrEqual, OperatorGreaterOrEqual:
		if f.values != nil {
			return validationError(ErrUnexpectedValues, "values", "operator "+f.operator.String())
		}

		if f.value == nil {
			return validationError(ErrMissingValue, "value", "operator "+f.operator.String())
		}

		if f.operator.IsComparison() && f.dataType == DataTypeBool {
			return validationError(ErrUnsupportedDataType, "type", f.dataType.String()+" with operator "+f.operator.String())
		}

		if _, err := ParseLiteral(f.dataType, *f.value); err != nil {
			return validationError(err, "value", *f.value)
		}

		return nil

	default:
		return validationError(ErrUnknownOperator, "operator", f.operator.String())
	}
}
