package main

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/realtime-docsync-go/docstore"
	. "github.com/AntonStoeckl/realtime-docsync-go/testutil/helper" //nolint:revive
)

func Test_ImportDocuments_UpsertsEveryLine(t *testing.T) {
	// setup
	repository := NewMemoryRepository()
	input := strings.Join([]string{
		`{"id":"1","name":"first"}`,
		``,
		`{"name":"without id"}`,
		`{"id":"2","ids":["UNIQUE:two"],"name":"second"}`,
		`{"id":"3","ids":["UNIQUE:two"],"name":"second again"}`,
	}, "\n")

	// act
	result, err := importDocuments(context.Background(), repository, strings.NewReader(input), "sales", "Invoice")

	// assert
	require.NoError(t, err)
	assert.Equal(t, importResult{imported: 4, skipped: 1}, result)

	docs, err := repository.GetAll(context.Background(), "sales", "Invoice")
	require.NoError(t, err)
	require.Len(t, docs, 3, "the alias resolves the last line to the second document")
	assert.NotEmpty(t, docs[1].ID())
	assert.Equal(t, "second again", docs[2]["name"])
}

func Test_ImportDocuments_When_ALineIsNotADocument(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "malformed json", input: "{\"id\":\"1\"}\n{nope"},
		{name: "array", input: "{\"id\":\"1\"}\n[1,2]"},
		{name: "null", input: "{\"id\":\"1\"}\nnull"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			// act
			result, err := importDocuments(context.Background(), NewMemoryRepository(), strings.NewReader(tc.input), "sales", "Invoice")

			// assert
			require.ErrorIs(t, err, errNotADocument)
			assert.Contains(t, err.Error(), "line 2")
			assert.Equal(t, 1, result.imported)
		})
	}
}

func Test_ImportDocuments_When_TheRepositoryRejectsADocument(t *testing.T) {
	// setup
	repository := NewMemoryRepository()
	repository.SetFailure(docstore.ErrUpsertFailed)

	// act
	_, err := importDocuments(context.Background(), repository, strings.NewReader(`{"id":"1"}`), "sales", "Invoice")

	// assert
	assert.True(t, errors.Is(err, docstore.ErrUpsertFailed))
	assert.Contains(t, err.Error(), "line 1")
}

func Test_FormatNumber(t *testing.T) {
	assert.Equal(t, "999", formatNumber(999))
	assert.Equal(t, "12.3K", formatNumber(12345))
	assert.Equal(t, "2.5M", formatNumber(2500000))
}
