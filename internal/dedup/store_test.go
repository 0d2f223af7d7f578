package dedup

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(2)

	ok, err := s.TryMark(ctx, "a")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.TryMark(ctx, "a")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.MarkProcessed(ctx, "b"))
	require.NoError(t, s.MarkProcessed(ctx, "c"))

	seen, _ := s.HasBeenProcessed(ctx, "a")
	assert.False(t, seen, "oldest key should be evicted")
	seen, _ = s.HasBeenProcessed(ctx, "c")
	assert.True(t, seen)
}

func TestFileStoreMarkAndReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "seen.json")

	s, err := NewFileStore(path, 10)
	require.NoError(t, err)

	seen, err := s.HasBeenProcessed(ctx, "-1:1")
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, s.MarkProcessed(ctx, "-1:1"))
	require.NoError(t, s.MarkProcessed(ctx, "-1:1"))

	reopened, err := NewFileStore(path, 10)
	require.NoError(t, err)
	seen, err = reopened.HasBeenProcessed(ctx, "-1:1")
	require.NoError(t, err)
	assert.True(t, seen)

	keys, err := reopened.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"-1:1"}, keys)
}

func TestFileStoreRetention(t *testing.T) {
	ctx := context.Background()
	s, err := NewFileStore(filepath.Join(t.TempDir(), "seen.json"), 3)
	require.NoError(t, err)

	for i := 1; i <= 5; i++ {
		require.NoError(t, s.MarkProcessed(ctx, fmt.Sprintf("k%d", i)))
	}
	keys, err := s.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"k3", "k4", "k5"}, keys)
}

func TestFileStoreCorruptFileResets(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "seen.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	s, err := NewFileStore(path, 10)
	require.NoError(t, err)

	seen, err := s.HasBeenProcessed(ctx, "x")
	require.NoError(t, err)
	assert.False(t, seen)

	ok, err := s.TryMark(ctx, "x")
	require.NoError(t, err)
	assert.True(t, ok)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `["x"]`, string(data))
}

func TestFileStoreConcurrentTryMarkSingleWinner(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "seen.json")

	// Two handles on the same file behave like two processes.
	a, err := NewFileStore(path, 100)
	require.NoError(t, err)
	b, err := NewFileStore(path, 100)
	require.NoError(t, err)

	var winners atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		store := a
		if i%2 == 1 {
			store = b
		}
		wg.Add(1)
		go func(s *FileStore) {
			defer wg.Done()
			ok, err := s.TryMark(ctx, "same")
			assert.NoError(t, err)
			if ok {
				winners.Add(1)
			}
		}(store)
	}
	wg.Wait()
	assert.Equal(t, int32(1), winners.Load())
}

func TestFileMapper(t *testing.T) {
	ctx := context.Background()
	m, err := NewFileMapper(filepath.Join(t.TempDir(), "map.json"), 2)
	require.NoError(t, err)

	_, ok, err := m.Get(ctx, "-1:1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, m.Put(ctx, "-1:1", 10))
	require.NoError(t, m.Put(ctx, "-1:2", 20))
	require.NoError(t, m.Put(ctx, "-1:3", 30))

	id, ok, err := m.Get(ctx, "-1:3")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 30, id)

	_, ok, err = m.Get(ctx, "-1:1")
	require.NoError(t, err)
	assert.False(t, ok, "oldest mapping should be evicted")
}

type fakeResult struct{ rows int64 }

func (r fakeResult) LastInsertId() (int64, error) { return 0, nil }
func (r fakeResult) RowsAffected() (int64, error) { return r.rows, nil }

// fakeDB emulates the INSERT ... ON CONFLICT DO NOTHING semantics.
type fakeDB struct {
	mu      sync.Mutex
	keys    map[string]bool
	queries []string
}

func (f *fakeDB) ExecContext(_ context.Context, query string, args ...interface{}) (sql.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, query)
	if query != insertProcessedKey {
		return fakeResult{}, nil
	}
	key := args[0].(string)
	if f.keys[key] {
		return fakeResult{rows: 0}, nil
	}
	f.keys[key] = true
	return fakeResult{rows: 1}, nil
}

func (f *fakeDB) QueryRowContext(context.Context, string, ...interface{}) *sql.Row {
	return nil
}

func TestPostgresStoreTryMark(t *testing.T) {
	ctx := context.Background()
	db := &fakeDB{keys: map[string]bool{}}

	s, err := NewPostgresStore(ctx, db, 5)
	require.NoError(t, err)
	assert.Equal(t, createProcessedTable, db.queries[0])

	ok, err := s.TryMark(ctx, "-1:1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Contains(t, db.queries, evictProcessedKeys)

	ok, err = s.TryMark(ctx, "-1:1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPostgresStoreIntegration(t *testing.T) {
	url := os.Getenv("DEDUP_TEST_POSTGRES_URL")
	if url == "" {
		t.Skip("DEDUP_TEST_POSTGRES_URL not set")
	}
	ctx := context.Background()
	s, err := OpenPostgresStore(ctx, url, 10)
	require.NoError(t, err)
	defer s.Close()

	key := fmt.Sprintf("test:%d", os.Getpid())
	ok, err := s.TryMark(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)

	seen, err := s.HasBeenProcessed(ctx, key)
	require.NoError(t, err)
	assert.True(t, seen)
}
