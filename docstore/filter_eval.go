package docstore

import (
	"strings"
	"time"
)

// PropertyLookup resolves a property path to its value. present is true when the property
// exists, even if its value is nil.
type PropertyLookup func(property string) (value any, present bool)

// Evaluate reports whether the properties served by lookup satisfy the filter.
// It mirrors the store translation: EQUAL and IN match list properties by membership,
// comparisons only match scalars of the leaf's data type.
func (f Filter) Evaluate(lookup PropertyLookup) (bool, error) {
	switch f.kind {
	case FilterKindEmpty:
		return true, nil

	case FilterKindAnd:
		for _, child := range f.children {
			ok, err := child.Evaluate(lookup)
			if err != nil || !ok {
				return false, err
			}
		}

		return true, nil

	case FilterKindOr:
		for _, child := range f.children {
			ok, err := child.Evaluate(lookup)
			if err != nil {
				return false, err
			}

			if ok {
				return true, nil
			}
		}

		return false, nil

	case FilterKindNot:
		if err := f.Validate(); err != nil {
			return false, err
		}

		ok, err := f.children[0].Evaluate(lookup)
		if err != nil {
			return false, err
		}

		return !ok, nil

	default:
		if err := f.validateLeaf(); err != nil {
			return false, err
		}

		return f.evaluateLeaf(lookup)
	}
}

func (f Filter) evaluateLeaf(lookup PropertyLookup) (bool, error) {
	actual, present := lookup(f.property)

	switch f.operator {
	case OperatorExist:
		return present, nil

	case OperatorIn:
		for _, literal := range f.values {
			parsed, err := ParseLiteral(f.dataType, literal)
			if err != nil {
				return false, err
			}

			if present && containsEqual(actual, parsed) {
				return true, nil
			}
		}

		return false, nil

	case OperatorEqual:
		parsed, err := ParseLiteral(f.dataType, *f.value)
		if err != nil {
			return false, err
		}

		if f.dataType == DataTypeBool && !parsed.(bool) {
			return !present || actual == nil || containsEqual(actual, false), nil
		}

		return present && containsEqual(actual, parsed), nil

	default:
		parsed, err := ParseLiteral(f.dataType, *f.value)
		if err != nil {
			return false, err
		}

		if !present {
			return false, nil
		}

		cmp, comparable := compareScalar(actual, parsed)
		if !comparable {
			return false, nil
		}

		switch f.operator {
		case OperatorLess:
			return cmp < 0, nil
		case OperatorGreater:
			return cmp > 0, nil
		case OperatorLessOrEqual:
			return cmp <= 0, nil
		default:
			return cmp >= 0, nil
		}
	}
}

// containsEqual compares a scalar directly and a list by membership.
func containsEqual(actual any, literal any) bool {
	switch list := actual.(type) {
	case []any:
		for _, el := range list {
			if cmp, ok := compareScalar(el, literal); ok && cmp == 0 {
				return true
			}
		}

		return false

	case []string:
		for _, el := range list {
			if cmp, ok := compareScalar(el, literal); ok && cmp == 0 {
				return true
			}
		}

		return false

	default:
		cmp, ok := compareScalar(actual, literal)
		return ok && cmp == 0
	}
}

// compareScalar orders actual against a parsed literal. ok is false when the kinds differ.
func compareScalar(actual any, literal any) (cmp int, ok bool) {
	switch lit := literal.(type) {
	case string:
		s, isString := actual.(string)
		if !isString {
			return 0, false
		}

		return strings.Compare(s, lit), true

	case bool:
		b, isBool := actual.(bool)
		if !isBool {
			return 0, false
		}

		if b == lit {
			return 0, true
		}

		if !b {
			return -1, true
		}

		return 1, true

	case int64:
		if i, isInt := toInt64(actual); isInt {
			return compareOrdered(i, lit), true
		}

		if n, isNumber := toFloat64(actual); isNumber {
			return compareOrdered(n, float64(lit)), true
		}

		return 0, false

	case float64:
		n, isNumber := toFloat64(actual)
		if !isNumber {
			return 0, false
		}

		return compareOrdered(n, lit), true

	case time.Time:
		t, isTime := toTime(actual)
		if !isTime {
			return 0, false
		}

		return t.Compare(lit), true

	default:
		return 0, false
	}
}

func compareOrdered[T int64 | float64](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint32:
		return int64(n), true
	default:
		return 0, false
	}
}

func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	default:
		i, ok := toInt64(v)
		return float64(i), ok
	}
}

func toTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		parsed, err := ParseTime(t)
		return parsed, err == nil
	default:
		return time.Time{}, false
	}
}

// DocumentLookup resolves dotted property paths through nested JSON objects.
func DocumentLookup(doc map[string]any) PropertyLookup {
	return func(property string) (any, bool) {
		var current any = doc

		for _, segment := range strings.Split(property, ".") {
			object, isObject := current.(map[string]any)
			if !isObject {
				return nil, false
			}

			value, present := object[segment]
			if !present {
				return nil, false
			}

			current = value
		}

		return current, true
	}
}
