package docstore_test

import (
	"testing"

	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/realtime-docsync-go/docstore"
)

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

func Test_NewChangeEvents_EmitsPluralSingularAndChanged(t *testing.T) {
	events := docstore.NewChangeEvents(docstore.KindModelsInserted, docstore.KindModelInserted, "db", "Invoice", "1")

	require.Len(t, events, 3)
	assert.Equal(t, "CollectionModelsInsertedEvent", events[0].EventName())
	assert.Empty(t, events[0].ID)
	assert.Equal(t, "CollectionModelInsertedEvent", events[1].EventName())
	assert.Equal(t, "1", events[1].ID)
	assert.Equal(t, "CollectionChangedEvent", events[2].EventName())
	assert.True(t, events[2].Matches("db", "Invoice"))
	assert.False(t, events[2].Matches("db", "Order"))
}

func Test_DecodeChangeEvent_SetsTheKindFromTheName(t *testing.T) {
	// arrange
	raw, err := jsonAPI.Marshal(docstore.ChangeEvent{Kind: docstore.KindModelDeleted, DatabaseName: "db", EntityName: "Invoice", ID: "7"})
	require.NoError(t, err)

	// act
	event, err := docstore.DecodeChangeEvent("CollectionModelDeletedEvent", raw)

	// assert
	require.NoError(t, err)
	assert.Equal(t, docstore.ChangeEvent{Kind: docstore.KindModelDeleted, DatabaseName: "db", EntityName: "Invoice", ID: "7"}, event)
	assert.JSONEq(t, `{"database_name":"db","entity_name":"Invoice","id":"7"}`, string(raw))
}

func Test_DecodeChangeEvent_When_TheNameIsUnknown(t *testing.T) {
	_, err := docstore.DecodeChangeEvent("SomethingElse", []byte(`{}`))

	assert.ErrorIs(t, err, docstore.ErrUnknownEventKind)
}

func Test_ChangeEventKinds_HaveDistinctNames(t *testing.T) {
	seen := make(map[string]bool)

	for _, kind := range docstore.ChangeEventKinds() {
		name := kind.EventName()
		assert.NotEmpty(t, name)
		assert.False(t, seen[name], name)
		seen[name] = true

		resolved, ok := docstore.ChangeEventKindByName(name)
		assert.True(t, ok)
		assert.Equal(t, kind, resolved)
	}
}
