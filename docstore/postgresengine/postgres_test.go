package postgresengine_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/realtime-docsync-go/docstore"
	"github.com/AntonStoeckl/realtime-docsync-go/docstore/postgresengine"
	"github.com/AntonStoeckl/realtime-docsync-go/messagehub"
	. "github.com/AntonStoeckl/realtime-docsync-go/testutil/helper"                 //nolint:revive
	. "github.com/AntonStoeckl/realtime-docsync-go/testutil/helper/postgreswrapper" //nolint:revive
)

const entity = "Invoice"

type eventQueueSpy struct {
	mu        sync.Mutex
	envelopes []messagehub.Envelope
}

func (q *eventQueueSpy) QueueEvent(envelope messagehub.Envelope) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.envelopes = append(q.envelopes, envelope)
}

func (q *eventQueueSpy) eventNames() []string {
	q.mu.Lock()
	defer q.mu.Unlock()

	var names []string
	for _, envelope := range q.envelopes {
		for _, value := range envelope.Values {
			names = append(names, value.EventName())
		}
	}

	return names
}

func setUp(t *testing.T, options ...postgresengine.Option) (context.Context, *postgresengine.Repository, string) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)

	wrapper := CreateWrapperWithTestConfig(t, options...)
	databaseName := GivenUniqueDatabaseName(t)
	t.Cleanup(func() { CleanUpDatabase(t, wrapper, databaseName) })

	return ctx, wrapper.GetRepository(), databaseName
}

func ids(docs []docstore.Document) []string {
	out := make([]string, 0, len(docs))
	for _, doc := range docs {
		out = append(out, doc.ID())
	}

	return out
}

func Test_Upsert_When_TheSameIDIsWrittenTwice(t *testing.T) {
	// setup
	ctx, repo, db := setUp(t)

	// arrange
	_, err := repo.Upsert(ctx, db, entity, "123", docstore.Document{"Fuck": "A"}, docstore.UpsertOptions{})
	require.NoError(t, err)

	// act
	second, err := repo.Upsert(ctx, db, entity, "123", docstore.Document{"Fuck": "B"}, docstore.UpsertOptions{})

	// assert
	require.NoError(t, err)
	assert.Equal(t, "B", second["Fuck"])

	found, ok, err := repo.GetByID(ctx, db, entity, "123")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "B", found["Fuck"])
	assert.Equal(t, "123", found.ID())
	assert.Equal(t, []any{}, found[docstore.FieldIDs])
}

func Test_Delete_Then_Upsert_Recreates(t *testing.T) {
	// setup
	ctx, repo, db := setUp(t)

	// arrange
	_, err := repo.Upsert(ctx, db, entity, "123", docstore.Document{"Fuck": "A"}, docstore.UpsertOptions{})
	require.NoError(t, err)

	// act
	deleted, found, err := repo.Delete(ctx, db, entity, "123")

	// assert
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "A", deleted["Fuck"])

	_, ok, err := repo.GetByID(ctx, db, entity, "123")
	require.NoError(t, err)
	assert.False(t, ok)

	recreated, err := repo.Upsert(ctx, db, entity, "123", docstore.Document{"Fuck": "XYZ"}, docstore.UpsertOptions{})
	require.NoError(t, err)
	assert.Equal(t, "XYZ", recreated["Fuck"])

	again, ok, err := repo.GetByID(ctx, db, entity, "123")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "XYZ", again["Fuck"])
}

func Test_Delete_When_TheDocumentIsAbsent(t *testing.T) {
	ctx, repo, db := setUp(t)

	_, found, err := repo.Delete(ctx, db, entity, "absent")

	assert.NoError(t, err)
	assert.False(t, found)
}

func Test_Upsert_MergesIdentitiesThroughAliases(t *testing.T) {
	// setup
	ctx, repo, db := setUp(t)

	// arrange
	_, err := repo.Upsert(ctx, db, entity, "A", docstore.Document{"first": 1, "shared": "a"}, docstore.UpsertOptions{})
	require.NoError(t, err)

	// act
	merged, err := repo.Upsert(ctx, db, entity, "B", docstore.Document{"ids": []any{"A"}, "shared": "b"}, docstore.UpsertOptions{})

	// assert
	require.NoError(t, err)
	assert.Equal(t, "A", merged.ID())
	assert.Equal(t, "b", merged["shared"])
	assert.EqualValues(t, 1, merged["first"])

	all, err := repo.GetAll(ctx, db, entity)
	require.NoError(t, err)
	require.Len(t, all, 1)

	for _, id := range []string{"A", "B"} {
		doc, ok, err := repo.GetByID(ctx, db, entity, id)
		require.NoError(t, err)
		require.True(t, ok, id)
		assert.Equal(t, "A", doc.ID(), id)
		assert.Equal(t, "b", doc["shared"], id)
	}
}

func Test_Upsert_When_TheDocumentCarriesTheStorageKey(t *testing.T) {
	ctx, repo, db := setUp(t)

	_, err := repo.Upsert(ctx, db, entity, "A", docstore.Document{"_id": "A"}, docstore.UpsertOptions{})

	assert.ErrorIs(t, err, docstore.ErrValidation)
	assert.ErrorIs(t, err, docstore.ErrStorageIDPresent)
}

func Test_Upsert_PathIDOverridesTheBody(t *testing.T) {
	ctx, repo, db := setUp(t)

	doc, err := repo.Upsert(ctx, db, entity, "path", docstore.Document{"id": "body"}, docstore.UpsertOptions{})

	require.NoError(t, err)
	assert.Equal(t, "path", doc.ID())
}

func Test_GetAll_ReturnsInsertionOrderScopedToTheCollection(t *testing.T) {
	// setup
	ctx, repo, db := setUp(t)

	// arrange
	for _, id := range []string{"c", "a", "b"} {
		_, err := repo.Upsert(ctx, db, entity, id, docstore.Document{}, docstore.UpsertOptions{})
		require.NoError(t, err)
	}

	_, err := repo.Upsert(ctx, db, "Order", "z", docstore.Document{}, docstore.UpsertOptions{})
	require.NoError(t, err)

	// act
	docs, err := repo.GetAll(ctx, db, entity)

	// assert
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "a", "b"}, ids(docs))
}

func givenFilterFixtures(t *testing.T, ctx context.Context, repo *postgresengine.Repository, db string) {
	t.Helper()

	fixtures := map[string]docstore.Document{
		"d1": {"name": "alpha", "total": 10, "price": 1.5, "paid": true, "at": "2024-01-01T10:00:00Z", "tags": []any{"x", "y"}, "note": nil},
		"d2": {"name": "beta", "total": 20, "price": 2.5, "paid": false, "at": "2024-02-01T10:00:00Z", "address": map[string]any{"zip": "123"}},
		"d3": {"name": "gamma", "total": 30, "price": 3.5, "paid": nil, "at": "2024-03-01T10:00:00Z"},
		"d4": {"name": "delta", "total": "n/a", "at": "not a date", "address": "zip"},
	}

	for _, id := range []string{"d1", "d2", "d3", "d4"} {
		_, err := repo.Upsert(ctx, db, entity, id, fixtures[id], docstore.UpsertOptions{})
		require.NoError(t, err)
	}
}

func Test_GetByFilter_MatchesTheExpectedDocuments(t *testing.T) {
	// setup
	ctx, repo, db := setUp(t)

	// arrange
	givenFilterFixtures(t, ctx, repo, db)
	jan15 := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		filter   docstore.Filter
		expected []string
	}{
		{name: "equals string", filter: docstore.Equals("name", "beta"), expected: []string{"d2"}},
		{name: "equals id", filter: docstore.Equals("id", "d3"), expected: []string{"d3"}},
		{name: "equals list member", filter: docstore.Equals("tags", "y"), expected: []string{"d1"}},
		{name: "equals long", filter: docstore.EqualsLong("total", 20), expected: []string{"d2"}},
		{name: "equals double", filter: docstore.EqualsDouble("price", 3.5), expected: []string{"d3"}},
		{name: "equals bool true", filter: docstore.EqualsBool("paid", true), expected: []string{"d1"}},
		{name: "equals bool false includes null and missing", filter: docstore.EqualsBool("paid", false), expected: []string{"d2", "d3", "d4"}},
		{name: "equals time", filter: docstore.EqualsTime("at", time.Date(2024, 2, 1, 10, 0, 0, 0, time.UTC)), expected: []string{"d2"}},
		{name: "equals nested", filter: docstore.Equals("address.zip", "123"), expected: []string{"d2"}},
		{name: "less string", filter: docstore.Less("name", "c"), expected: []string{"d1", "d2"}},
		{name: "greater long skips non numbers", filter: docstore.GreaterLong("total", 10), expected: []string{"d2", "d3"}},
		{name: "less or equal double", filter: docstore.LessOrEqualDouble("price", 2.5), expected: []string{"d1", "d2"}},
		{name: "greater or equal long", filter: docstore.GreaterOrEqualLong("total", 30), expected: []string{"d3"}},
		{name: "greater time skips non dates", filter: docstore.GreaterTime("at", jan15), expected: []string{"d2", "d3"}},
		{name: "less or equal time", filter: docstore.LessOrEqualTime("at", jan15), expected: []string{"d1"}},
		{name: "in strings", filter: docstore.In("name", "alpha", "gamma"), expected: []string{"d1", "d3"}},
		{name: "in longs", filter: docstore.InLong("total", 10, 30), expected: []string{"d1", "d3"}},
		{name: "in empty", filter: docstore.In("name"), expected: []string{}},
		{name: "exists including null", filter: docstore.Exists("note"), expected: []string{"d1"}},
		{name: "exists nested skips a scalar parent equal to the key", filter: docstore.Exists("address.zip"), expected: []string{"d2"}},
		{name: "and", filter: docstore.And(docstore.GreaterLong("total", 10), docstore.EqualsBool("paid", false)), expected: []string{"d2", "d3"}},
		{name: "or", filter: docstore.Or(docstore.Equals("name", "alpha"), docstore.Equals("name", "delta")), expected: []string{"d1", "d4"}},
		{name: "not", filter: docstore.Not(docstore.GreaterLong("total", 10)), expected: []string{"d1", "d4"}},
		{name: "empty filter", filter: docstore.Filter{}, expected: []string{"d1", "d2", "d3", "d4"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			// act
			docs, err := repo.GetByFilter(ctx, db, entity, tc.filter)

			// assert
			require.NoError(t, err)
			assert.Equal(t, tc.expected, ids(docs))
		})
	}
}

func Test_GetByFilter_When_TheFilterIsInvalid(t *testing.T) {
	ctx, repo, db := setUp(t)

	literal := "1"
	invalid := docstore.NewLeaf(docstore.OperatorLess, "total", &literal, []string{"2"}, docstore.DataTypeLong)

	_, err := repo.GetByFilter(ctx, db, entity, invalid)

	assert.ErrorIs(t, err, docstore.ErrValidation)
}

func Test_Upsert_QueuesChangeEvents(t *testing.T) {
	// setup
	queue := &eventQueueSpy{}
	ctx, repo, db := setUp(t, postgresengine.WithEventQueue(queue))

	// act
	_, err := repo.Upsert(ctx, db, entity, "A", docstore.Document{"v": 1}, docstore.UpsertOptions{})
	require.NoError(t, err)
	_, err = repo.Upsert(ctx, db, entity, "A", docstore.Document{"v": 2}, docstore.UpsertOptions{})
	require.NoError(t, err)
	_, err = repo.Upsert(ctx, db, entity, "A", docstore.Document{"v": 3, "disable_events": true}, docstore.UpsertOptions{})
	require.NoError(t, err)
	_, err = repo.Upsert(ctx, db, entity, "A", docstore.Document{"v": 4}, docstore.UpsertOptions{DisableEvents: true})
	require.NoError(t, err)
	_, _, err = repo.Delete(ctx, db, entity, "A")
	require.NoError(t, err)

	// assert
	assert.Equal(t, []string{
		"CollectionModelsInsertedEvent", "CollectionModelInsertedEvent", "CollectionChangedEvent",
		"CollectionModelsUpdatedEvent", "CollectionModelUpdatedEvent", "CollectionChangedEvent",
		"CollectionModelsDeletedEvent", "CollectionModelDeletedEvent", "CollectionChangedEvent",
	}, queue.eventNames())
}

func Test_Upsert_DoesNotPersistTheEventSwitch(t *testing.T) {
	ctx, repo, db := setUp(t)

	doc, err := repo.Upsert(ctx, db, entity, "A", docstore.Document{"disable_events": true}, docstore.UpsertOptions{})

	require.NoError(t, err)
	assert.NotContains(t, doc, "disable_events")
}

func Test_Upsert_ConcurrentWritesOfOneIdentityResolveToOneDocument(t *testing.T) {
	// setup
	ctx, repo, db := setUp(t)

	// act
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)

		go func(n int) {
			defer wg.Done()
			_, err := repo.Upsert(ctx, db, entity, "same", docstore.Document{"n": n}, docstore.UpsertOptions{})
			assert.NoError(t, err)
		}(i)
	}

	wg.Wait()

	// assert
	docs, err := repo.GetAll(ctx, db, entity)
	require.NoError(t, err)
	assert.Len(t, docs, 1)
}

func Test_GetAll_WithEventualConsistency_WithoutReplica(t *testing.T) {
	ctx, repo, db := setUp(t)

	_, err := repo.Upsert(ctx, db, entity, "A", docstore.Document{}, docstore.UpsertOptions{})
	require.NoError(t, err)

	docs, err := repo.GetAll(docstore.WithEventualConsistency(ctx), db, entity)

	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, ids(docs))
}
