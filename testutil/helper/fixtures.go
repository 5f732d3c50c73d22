package helper

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// GivenUniqueID returns a fresh time-ordered id.
func GivenUniqueID(t testing.TB) string {
	id, err := uuid.NewV7()
	require.NoError(t, err, "error in arranging test data")

	return id.String()
}

// GivenUniqueDatabaseName returns a database name no other test run uses, isolating
// the documents a test writes into the shared table.
func GivenUniqueDatabaseName(t testing.TB) string {
	return "test_" + GivenUniqueID(t)
}
