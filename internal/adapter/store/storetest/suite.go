// Package storetest holds the behavior every ports.Store implementation must share.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/musicflow/musicflow/internal/domain"
	"github.com/musicflow/musicflow/internal/ports"
)

// Factory creates a fresh, empty store. The suite closes it.
type Factory func(t *testing.T) ports.Store

// Run executes the store contract tests against stores produced by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("PutGet", func(t *testing.T) { testPutGet(t, newStore(t)) })
	t.Run("GetAbsent", func(t *testing.T) { testGetAbsent(t, newStore(t)) })
	t.Run("Upsert", func(t *testing.T) { testUpsert(t, newStore(t)) })
	t.Run("DeleteIdempotent", func(t *testing.T) { testDeleteIdempotent(t, newStore(t)) })
	t.Run("GetAllOrderedBySortAt", func(t *testing.T) { testGetAllOrdered(t, newStore(t)) })
	t.Run("SettingsOrderedByKey", func(t *testing.T) { testSettingsOrdered(t, newStore(t)) })
	t.Run("PartitionsIsolated", func(t *testing.T) { testPartitionsIsolated(t, newStore(t)) })
	t.Run("UnknownPartition", func(t *testing.T) { testUnknownPartition(t, newStore(t)) })
	t.Run("ClosedStore", func(t *testing.T) { testClosed(t, newStore(t)) })
	t.Run("ConcurrentWrites", func(t *testing.T) { testConcurrentWrites(t, newStore(t)) })
}

func testPutGet(t *testing.T, s ports.Store) {
	defer s.Close()
	ctx := context.Background()
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	rec := ports.Record{Key: "t1", Value: []byte(`{"id":"t1"}`), Blob: []byte{1, 2, 3}, SortAt: at}
	require.NoError(t, s.Put(ctx, ports.PartitionUploads, rec))

	got, ok, err := s.Get(ctx, ports.PartitionUploads, "t1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "t1", got.Key)
	assert.JSONEq(t, `{"id":"t1"}`, string(got.Value))
	assert.Equal(t, []byte{1, 2, 3}, got.Blob)
	assert.True(t, at.Equal(got.SortAt))
}

func testGetAbsent(t *testing.T, s ports.Store) {
	defer s.Close()

	_, ok, err := s.Get(context.Background(), ports.PartitionPlaylists, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func testUpsert(t *testing.T, s ports.Store) {
	defer s.Close()
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, ports.PartitionSettings, ports.Record{Key: "volume", Value: []byte("0.5")}))
	require.NoError(t, s.Put(ctx, ports.PartitionSettings, ports.Record{Key: "volume", Value: []byte("0.9")}))

	got, ok, err := s.Get(ctx, ports.PartitionSettings, "volume")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "0.9", string(got.Value))

	all, err := s.GetAll(ctx, ports.PartitionSettings)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func testDeleteIdempotent(t *testing.T, s ports.Store) {
	defer s.Close()
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, ports.PartitionDownloads, ports.Record{Key: "d1", Value: []byte(`{}`)}))
	require.NoError(t, s.Delete(ctx, ports.PartitionDownloads, "d1"))
	require.NoError(t, s.Delete(ctx, ports.PartitionDownloads, "d1"))
	require.NoError(t, s.Delete(ctx, ports.PartitionDownloads, "never-existed"))

	_, ok, err := s.Get(ctx, ports.PartitionDownloads, "d1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func testGetAllOrdered(t *testing.T, s ports.Store) {
	defer s.Close()
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, key := range []string{"c", "a", "b"} {
		// c is newest, a oldest
		at := base.Add(time.Duration(2-i) * time.Hour)
		if key == "b" {
			at = base.Add(90 * time.Minute)
		}
		require.NoError(t, s.Put(ctx, ports.PartitionPlaylists, ports.Record{Key: key, Value: []byte(`{}`), SortAt: at}))
	}

	all, err := s.GetAll(ctx, ports.PartitionPlaylists)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"a", "b", "c"}, keys(all))
}

func testSettingsOrdered(t *testing.T, s ports.Store) {
	defer s.Close()
	ctx := context.Background()

	for _, key := range []string{"volume", "theme", "quality"} {
		require.NoError(t, s.Put(ctx, ports.PartitionSettings, ports.Record{Key: key, Value: []byte(`1`)}))
	}

	all, err := s.GetAll(ctx, ports.PartitionSettings)
	require.NoError(t, err)
	assert.Equal(t, []string{"quality", "theme", "volume"}, keys(all))
}

func testPartitionsIsolated(t *testing.T, s ports.Store) {
	defer s.Close()
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, ports.PartitionUploads, ports.Record{Key: "x", Value: []byte(`{}`)}))

	_, ok, err := s.Get(ctx, ports.PartitionDownloads, "x")
	require.NoError(t, err)
	assert.False(t, ok)

	all, err := s.GetAll(ctx, ports.PartitionDownloads)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func testUnknownPartition(t *testing.T, s ports.Store) {
	defer s.Close()

	err := s.Put(context.Background(), ports.Partition("bogus"), ports.Record{Key: "k", Value: []byte(`{}`)})
	require.Error(t, err)
	assert.True(t, domain.IsStorage(err))
	assert.ErrorIs(t, err, domain.ErrUnknownPartition)
}

func testClosed(t *testing.T, s ports.Store) {
	require.NoError(t, s.Close())

	err := s.Put(context.Background(), ports.PartitionSettings, ports.Record{Key: "k", Value: []byte(`1`)})
	require.Error(t, err)
	assert.True(t, domain.IsStorage(err))
	assert.ErrorIs(t, err, domain.ErrStoreClosed)
}

func testConcurrentWrites(t *testing.T, s ports.Store) {
	defer s.Close()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := fmt.Sprintf("k%02d", i)
			assert.NoError(t, s.Put(ctx, ports.PartitionSettings, ports.Record{Key: key, Value: []byte(`1`)}))
		}(i)
	}
	wg.Wait()

	all, err := s.GetAll(ctx, ports.PartitionSettings)
	require.NoError(t, err)
	assert.Len(t, all, 20)
}

func keys(records []ports.Record) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.Key
	}
	return out
}
