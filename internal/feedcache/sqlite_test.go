package feedcache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteStoreRoundTripsSnapshot(t *testing.T) {
	store, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()

	_, ok, err := store.Get(ctx, "opA")
	require.NoError(t, err)
	assert.False(t, ok)

	want := Snapshot{
		Operator:    "opA",
		Hash:        "abc123",
		RetrievedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Data:        []byte("gzipped-bundle"),
	}
	require.NoError(t, store.Put(ctx, want))

	got, ok, err := store.Get(ctx, "opA")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, want.Operator, got.Operator)
	assert.Equal(t, want.Hash, got.Hash)
	assert.Equal(t, want.Data, got.Data)
}

func TestSQLiteStorePutOverwritesExistingOperator(t *testing.T) {
	store, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.Put(ctx, Snapshot{Operator: "opA", Hash: "v1", Data: []byte("one"), RetrievedAt: time.Now().UTC()}))
	require.NoError(t, store.Put(ctx, Snapshot{Operator: "opA", Hash: "v2", Data: []byte("two"), RetrievedAt: time.Now().UTC()}))

	got, ok, err := store.Get(ctx, "opA")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "v2", got.Hash)
	assert.Equal(t, []byte("two"), got.Data)
}
