package postgresengine

import (
	"errors"
	"strings"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"

	"github.com/AntonStoeckl/realtime-docsync-go/docstore"
)

// Timestamps are stored as RFC 3339 strings. Only strings starting with a date are cast.
const timestampPattern = "^[0-9]{4}-[0-9]{2}-[0-9]{2}"

var comparisonSQL = map[docstore.Operator]string{
	docstore.OperatorEqual:          "=",
	docstore.OperatorLess:           "<",
	docstore.OperatorGreater:        ">",
	docstore.OperatorLessOrEqual:    "<=",
	docstore.OperatorGreaterOrEqual: ">=",
}

// translateFilter turns a validated filter into a boolean SQL expression over the document column.
func translateFilter(filter docstore.Filter) (exp.Expression, error) {
	switch filter.Kind() {
	case docstore.FilterKindEmpty:
		return goqu.L("TRUE"), nil

	case docstore.FilterKindAnd, docstore.FilterKindOr:
		children := filter.Children()
		if len(children) == 0 {
			if filter.Kind() == docstore.FilterKindAnd {
				return goqu.L("TRUE"), nil
			}

			return goqu.L("FALSE"), nil
		}

		expressions := make([]exp.Expression, 0, len(children))
		for _, child := range children {
			e, err := translateFilter(child)
			if err != nil {
				return nil, err
			}

			expressions = append(expressions, e)
		}

		if filter.Kind() == docstore.FilterKindAnd {
			return goqu.And(expressions...), nil
		}

		return goqu.Or(expressions...), nil

	case docstore.FilterKindNot:
		child, err := translateFilter(filter.Children()[0])
		if err != nil {
			return nil, err
		}

		// A NULL from a missing path must not turn NOT into NULL.
		return goqu.L("NOT COALESCE((?), false)", child), nil

	default:
		return translateLeaf(filter)
	}
}

func translateLeaf(filter docstore.Filter) (exp.Expression, error) {
	path := storagePath(filter.Property())

	switch filter.Operator() {
	case docstore.OperatorExist:
		return existsExpression(path), nil

	case docstore.OperatorIn:
		values := filter.Values()
		if len(values) == 0 {
			return goqu.L("FALSE"), nil
		}

		expressions := make([]exp.Expression, 0, len(values))
		for _, literal := range values {
			e, err := equalExpression(path, filter.DataType(), literal)
			if err != nil {
				return nil, err
			}

			expressions = append(expressions, e)
		}

		return goqu.Or(expressions...), nil

	case docstore.OperatorEqual:
		literal, _ := filter.Value()
		return equalExpression(path, filter.DataType(), literal)

	default:
		literal, _ := filter.Value()
		return comparisonExpression(path, filter.Operator(), filter.DataType(), literal)
	}
}

// storagePath splits a dotted property and renames the identity fields at the top level.
func storagePath(property string) []string {
	path := strings.Split(property, ".")

	switch path[0] {
	case docstore.FieldID:
		path[0] = docstore.StorageFieldID
	case docstore.FieldIDs:
		path[0] = docstore.StorageFieldIDs
	}

	return path
}

// pathLiteral renders a text[] literal such as {"a","b"} for the #> and #>> operators.
func pathLiteral(path []string) string {
	quoted := make([]string, len(path))
	for i, segment := range path {
		segment = strings.ReplaceAll(segment, `\`, `\\`)
		segment = strings.ReplaceAll(segment, `"`, `\"`)
		quoted[i] = `"` + segment + `"`
	}

	return "{" + strings.Join(quoted, ",") + "}"
}

func jsonAt(path []string) exp.LiteralExpression {
	return goqu.L("(? #> ?::text[])", goqu.I(colDocument), pathLiteral(path))
}

func textAt(path []string) exp.LiteralExpression {
	return goqu.L("(? #>> ?::text[])", goqu.I(colDocument), pathLiteral(path))
}

// nestedObject builds {"a":{"b":value}} for the path a.b.
func nestedObject(path []string, value any) map[string]any {
	object := map[string]any{path[len(path)-1]: value}

	for i := len(path) - 2; i >= 0; i-- {
		object = map[string]any{path[i]: object}
	}

	return object
}

func containment(path []string, value any) (exp.Expression, error) {
	raw, err := json.Marshal(nestedObject(path, value))
	if err != nil {
		return nil, errors.Join(docstore.ErrBuildingQueryFailed, err)
	}

	return goqu.L("? @> ?::jsonb", goqu.I(colDocument), string(raw)), nil
}

// containsValue matches the value itself or a list property holding it.
func containsValue(path []string, value any) (exp.Expression, error) {
	scalar, err := containment(path, value)
	if err != nil {
		return nil, err
	}

	member, err := containment(path, []any{value})
	if err != nil {
		return nil, err
	}

	return goqu.Or(scalar, member), nil
}

// existsExpression checks the key on its parent. jsonb_exists also matches a string scalar equal to
// the key, so nested parents must be objects.
func existsExpression(path []string) exp.Expression {
	key := path[len(path)-1]
	if len(path) == 1 {
		return goqu.L("COALESCE(jsonb_exists(?, ?), false)", goqu.I(colDocument), key)
	}

	parent := jsonAt(path[:len(path)-1])

	return goqu.L("COALESCE(jsonb_typeof(?) = 'object' AND jsonb_exists(?, ?), false)", parent, parent, key)
}

func equalExpression(path []string, dataType docstore.DataType, literal string) (exp.Expression, error) {
	parsed, err := docstore.ParseLiteral(dataType, literal)
	if err != nil {
		return nil, err
	}

	switch v := parsed.(type) {
	case bool:
		matches, err := containsValue(path, v)
		if err != nil || v {
			return matches, err
		}

		// Missing and null booleans count as false.
		return goqu.Or(
			matches,
			goqu.L("? = 'null'::jsonb", jsonAt(path)),
			goqu.L("NOT ?", existsExpression(path)),
		), nil

	case time.Time:
		return timestampComparison(path, "=", v), nil

	default:
		return containsValue(path, v)
	}
}

func comparisonExpression(path []string, operator docstore.Operator, dataType docstore.DataType, literal string) (exp.Expression, error) {
	sqlOperator, ok := comparisonSQL[operator]
	if !ok {
		return nil, docstore.ErrUnknownOperator
	}

	parsed, err := docstore.ParseLiteral(dataType, literal)
	if err != nil {
		return nil, err
	}

	switch v := parsed.(type) {
	case int64, float64:
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, errors.Join(docstore.ErrBuildingQueryFailed, err)
		}

		return goqu.L(
			"(jsonb_typeof(?) = 'number' AND ? "+sqlOperator+" ?::jsonb)",
			jsonAt(path), jsonAt(path), string(raw),
		), nil

	case string:
		return goqu.L(
			"(jsonb_typeof(?) = 'string' AND ? COLLATE \"C\" "+sqlOperator+" ?)",
			jsonAt(path), textAt(path), v,
		), nil

	case time.Time:
		return timestampComparison(path, sqlOperator, v), nil

	default:
		return nil, docstore.ErrUnsupportedDataType
	}
}

func timestampComparison(path []string, sqlOperator string, v time.Time) exp.Expression {
	return goqu.L(
		"(CASE WHEN jsonb_typeof(?) = 'string' AND ? ~ ? THEN (?)::timestamptz "+sqlOperator+" ?::timestamptz ELSE false END)",
		jsonAt(path), textAt(path), timestampPattern, textAt(path), docstore.FormatTime(v),
	)
}
