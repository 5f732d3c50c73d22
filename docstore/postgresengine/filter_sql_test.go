package postgresengine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/realtime-docsync-go/docstore"
)

func buildFilterSQL(t *testing.T, filter docstore.Filter) string {
	t.Helper()

	where, err := translateFilter(filter)
	require.NoError(t, err)

	r := &Repository{tableName: defaultTableName}
	sqlQuery, err := r.buildSelectQuery("db", "Invoice", where, 0)
	require.NoError(t, err)

	return sqlQuery
}

func Test_BuildSelectQuery_ScopesToTheCollectionInInsertionOrder(t *testing.T) {
	sqlQuery := buildFilterSQL(t, docstore.Filter{})

	assert.Contains(t, sqlQuery, `FROM "documents"`)
	assert.Contains(t, sqlQuery, `("database_name" = 'db')`)
	assert.Contains(t, sqlQuery, `("entity_name" = 'Invoice')`)
	assert.Contains(t, sqlQuery, `TRUE`)
	assert.Contains(t, sqlQuery, `ORDER BY "sequence_number" ASC`)
	assert.NotContains(t, sqlQuery, "LIMIT")
}

func Test_TranslateFilter_Leaves(t *testing.T) {
	tests := []struct {
		name      string
		filter    docstore.Filter
		fragments []string
	}{
		{
			name:   "string equality uses containment with list membership",
			filter: docstore.Equals("name", "x"),
			fragments: []string{
				`"document" @> '{"name":"x"}'::jsonb`,
				`"document" @> '{"name":["x"]}'::jsonb`,
			},
		},
		{
			name:      "id is renamed to the storage primary key",
			filter:    docstore.Equals("id", "A"),
			fragments: []string{`"document" @> '{"_id":"A"}'::jsonb`},
		},
		{
			name:      "ids is renamed to the storage alias list",
			filter:    docstore.Equals("ids", "B"),
			fragments: []string{`"document" @> '{"_ids":["B"]}'::jsonb`},
		},
		{
			name:      "dotted properties address nested objects",
			filter:    docstore.EqualsLong("address.zip", 12345),
			fragments: []string{`"document" @> '{"address":{"zip":12345}}'::jsonb`},
		},
		{
			name:   "bool false also matches null and missing",
			filter: docstore.EqualsBool("is_deleted", false),
			fragments: []string{
				`"document" @> '{"is_deleted":false}'::jsonb`,
				`= 'null'::jsonb`,
				`NOT COALESCE(jsonb_exists("document", 'is_deleted'), false)`,
			},
		},
		{
			name:   "exists checks the key on an object parent",
			filter: docstore.Exists("a.b"),
			fragments: []string{
				`jsonb_typeof(("document" #> '{"a"}'::text[])) = 'object'`,
				`jsonb_exists(("document" #> '{"a"}'::text[]), 'b')`,
			},
		},
		{
			name:   "numeric comparison is guarded by the json type",
			filter: docstore.GreaterLong("total", 5),
			fragments: []string{
				`jsonb_typeof(("document" #> '{"total"}'::text[])) = 'number'`,
				`("document" #> '{"total"}'::text[]) > '5'::jsonb`,
			},
		},
		{
			name:      "string comparison uses byte order",
			filter:    docstore.Less("name", "m"),
			fragments: []string{`("document" #>> '{"name"}'::text[]) COLLATE "C" < 'm'`},
		},
		{
			name:   "timestamp comparison casts date strings only",
			filter: docstore.GreaterOrEqualTime("at", time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)),
			fragments: []string{
				`~ '^[0-9]{4}-[0-9]{2}-[0-9]{2}'`,
				`::timestamptz >= '2024-01-02T03:04:05Z'::timestamptz`,
			},
		},
		{
			name:   "in is a disjunction of equalities",
			filter: docstore.In("status", "open", "paid"),
			fragments: []string{
				`'{"status":"open"}'::jsonb`,
				`'{"status":"paid"}'::jsonb`,
				` OR `,
			},
		},
		{
			name:      "in with an empty list matches nothing",
			filter:    docstore.In("status"),
			fragments: []string{`FALSE`},
		},
		{
			name:      "single quotes in values are escaped",
			filter:    docstore.Equals("name", "O'Brien"),
			fragments: []string{`'{"name":"O''Brien"}'::jsonb`},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			sqlQuery := buildFilterSQL(t, tc.filter)

			for _, fragment := range tc.fragments {
				assert.Contains(t, sqlQuery, fragment)
			}
		})
	}
}

func Test_TranslateFilter_Composites(t *testing.T) {
	tests := []struct {
		name      string
		filter    docstore.Filter
		fragments []string
	}{
		{
			name:      "and joins children with AND",
			filter:    docstore.And(docstore.Equals("a", "1"), docstore.Equals("b", "2")),
			fragments: []string{`'{"a":"1"}'::jsonb`, ` AND `, `'{"b":"2"}'::jsonb`},
		},
		{
			name:      "or joins children with OR",
			filter:    docstore.Or(docstore.EqualsLong("a", 1), docstore.EqualsLong("b", 2)),
			fragments: []string{`'{"a":1}'::jsonb`, ` OR `, `'{"b":2}'::jsonb`},
		},
		{
			name:      "not treats unknown as false before negating",
			filter:    docstore.Not(docstore.GreaterLong("a", 1)),
			fragments: []string{`NOT COALESCE((`},
		},
		{
			name:      "an empty and matches everything",
			filter:    docstore.And(),
			fragments: []string{`TRUE`},
		},
		{
			name:      "an empty or matches nothing",
			filter:    docstore.Or(),
			fragments: []string{`FALSE`},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			sqlQuery := buildFilterSQL(t, tc.filter)

			for _, fragment := range tc.fragments {
				assert.Contains(t, sqlQuery, fragment)
			}
		})
	}
}

func Test_TranslateFilter_When_TheLiteralCannotBeParsed(t *testing.T) {
	literal := "x"
	_, err := translateFilter(docstore.NewLeaf(docstore.OperatorLess, "total", &literal, nil, docstore.DataTypeLong))

	assert.ErrorIs(t, err, docstore.ErrInvalidLiteral)
}

func Test_IdentityExpression_MatchesPrimaryKeyAndAliases(t *testing.T) {
	r := &Repository{tableName: defaultTableName}

	sqlQuery, err := r.buildSelectQuery("db", "Invoice", identityExpression("A", "B"), 1)

	require.NoError(t, err)
	assert.Contains(t, sqlQuery, `("document_id" = 'A')`)
	assert.Contains(t, sqlQuery, `"document" @> '{"_ids":["A"]}'::jsonb`)
	assert.Contains(t, sqlQuery, `("document_id" = 'B')`)
	assert.Contains(t, sqlQuery, `"document" @> '{"_ids":["B"]}'::jsonb`)
	assert.Contains(t, sqlQuery, `LIMIT 1`)
}

func Test_MergePatch(t *testing.T) {
	storage := docstore.StorageDocument{
		docstore.StorageFieldID:  "A",
		docstore.StorageFieldIDs: []any{"X"},
		"total":                  10,
	}

	t.Run("without a merge target the primary key is dropped", func(t *testing.T) {
		patch := mergePatch(storage, nil)

		assert.Equal(t, map[string]any{docstore.StorageFieldIDs: []any{"X"}, "total": 10}, patch)
	})

	t.Run("merging unions the aliases and adds the incoming primary key", func(t *testing.T) {
		matched := storedRow{
			documentID: "B",
			document:   docstore.StorageDocument{docstore.StorageFieldID: "B", docstore.StorageFieldIDs: []any{"A", "Y"}},
		}

		patch := mergePatch(storage, &matched)

		assert.Equal(t, []any{"A", "Y", "X"}, patch[docstore.StorageFieldIDs])
		assert.NotContains(t, patch, docstore.StorageFieldID)
	})
}

func Test_IsUniqueViolation(t *testing.T) {
	assert.False(t, isUniqueViolation(docstore.ErrUpsertFailed))
}
