package repo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSequenceMonotonic(t *testing.T) {
	database := setupTestDB(t)

	for i := int64(1); i <= 5; i++ {
		value, err := NextSequence(database.DB, "test.seq")
		require.NoError(t, err)
		assert.Equal(t, i, value)
	}
}

func TestSequencesAreIndependent(t *testing.T) {
	database := setupTestDB(t)

	a, err := NextSequence(database.DB, "seq.a")
	require.NoError(t, err)
	_, err = NextSequence(database.DB, "seq.a")
	require.NoError(t, err)

	b, err := NextSequence(database.DB, "seq.b")
	require.NoError(t, err)

	assert.Equal(t, int64(1), a)
	assert.Equal(t, int64(1), b)
}

func TestNextReferenceFormat(t *testing.T) {
	database := setupTestDB(t)

	ref, err := NextReference(database.DB, SeqLoan, "LOAN")
	require.NoError(t, err)
	assert.Equal(t, "LOAN-00001", ref)

	ref, err = NextReference(database.DB, SeqLoan, "LOAN")
	require.NoError(t, err)
	assert.Equal(t, "LOAN-00002", ref)
}
