package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"locatorcheck/internal/logger"
)

func openTestStore(t *testing.T) *SnapshotStore {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.sqlite3"), "test_", logger.NewNop())
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return NewSnapshotStore(db)
}

func TestSnapshotPutGet(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, &Snapshot{URL: "https://example.com", StatusCode: 200, ContentType: "text/html", Body: []byte("<p>v1</p>")}))

	snap, ok, err := s.Get(ctx, "https://example.com", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "<p>v1</p>", string(snap.Body))

	// 同一地址覆盖写入
	require.NoError(t, s.Put(ctx, &Snapshot{URL: "https://example.com", StatusCode: 200, ContentType: "text/html", Body: []byte("<p>v2</p>")}))
	snap, ok, err = s.Get(ctx, "https://example.com", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "<p>v2</p>", string(snap.Body))
}

func TestSnapshotExpiry(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now()
	s.now = func() time.Time { return now }

	require.NoError(t, s.Put(ctx, &Snapshot{URL: "https://old.example", StatusCode: 200, FetchedAt: now.Add(-time.Hour)}))
	require.NoError(t, s.Put(ctx, &Snapshot{URL: "https://new.example", StatusCode: 200}))

	_, ok, err := s.Get(ctx, "https://old.example", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = s.Get(ctx, "https://new.example", 0)
	require.NoError(t, err)
	assert.False(t, ok, "ttl 0 disables the cache")

	n, err := s.Purge(ctx, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, ok, err = s.Get(ctx, "https://new.example", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}
