package reportjob

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStores(t *testing.T) map[string]SessionStore {
	t.Helper()

	fs, err := NewFileStore(filepath.Join(t.TempDir(), "session.json"))
	require.NoError(t, err)

	stores := map[string]SessionStore{
		"memory": NewMemoryStore(),
		"file":   fs,
	}

	client := redis.NewClient(&redis.Options{Addr: redisAddr(), DB: 15})
	if err := client.Ping(context.Background()).Err(); err == nil {
		prefix := "test-" + t.Name()
		t.Cleanup(func() {
			client.Del(context.Background(), "session:"+prefix+":"+MarkerKey)
			client.Close()
		})
		stores["redis"] = NewRedisStore(client, prefix, 0)
	} else {
		client.Close()
	}
	return stores
}

func redisAddr() string {
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		return addr
	}
	return "localhost:6379"
}

func TestMarker_MarkAndClear(t *testing.T) {
	for name, store := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			m := NewMarker(store)

			marked, err := m.IsMarked(ctx)
			require.NoError(t, err)
			assert.False(t, marked)

			require.NoError(t, m.Mark(ctx, JobID{Owner: "a@x.com", Project: "P1"}))
			marked, err = m.IsMarked(ctx)
			require.NoError(t, err)
			assert.True(t, marked)

			require.NoError(t, m.Clear(ctx))
			marked, err = m.IsMarked(ctx)
			require.NoError(t, err)
			assert.False(t, marked)

			// Clearing twice is fine.
			require.NoError(t, m.Clear(ctx))
		})
	}
}

func TestMarker_MarkOverwrites(t *testing.T) {
	for name, store := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			m := NewMarker(store)

			require.NoError(t, m.Mark(ctx, JobID{Owner: "a@x.com", Project: "P1"}, JobID{Owner: "a@x.com", Project: "P2"}))
			require.NoError(t, m.Mark(ctx, JobID{Owner: "b@x.com", Project: "P3"}))

			jobs, err := m.Jobs(ctx)
			require.NoError(t, err)
			assert.Equal(t, []JobID{{Owner: "b@x.com", Project: "P3"}}, jobs)

			require.NoError(t, m.Mark(ctx))
			marked, err := m.IsMarked(ctx)
			require.NoError(t, err)
			assert.False(t, marked, "marking nothing clears")
		})
	}
}

func TestMarker_TryMark(t *testing.T) {
	for name, store := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			m := NewMarker(store)
			require.NoError(t, m.Clear(ctx))

			ok, err := m.TryMark(ctx, JobID{Owner: "a@x.com", Project: "P1"})
			require.NoError(t, err)
			assert.True(t, ok)

			ok, err = m.TryMark(ctx, JobID{Owner: "a@x.com", Project: "P2"})
			require.NoError(t, err)
			assert.False(t, ok)

			jobs, err := m.Jobs(ctx)
			require.NoError(t, err)
			assert.Equal(t, []JobID{{Owner: "a@x.com", Project: "P1"}}, jobs)
		})
	}
}

func TestMarker_TryMarkRace(t *testing.T) {
	for name, store := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			m := NewMarker(store)
			require.NoError(t, m.Clear(ctx))

			var (
				wg   sync.WaitGroup
				mu   sync.Mutex
				wins int
			)
			for i := 0; i < 8; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					ok, err := m.TryMark(ctx, JobID{Owner: "a@x.com", Project: string(rune('A' + i))})
					assert.NoError(t, err)
					if ok {
						mu.Lock()
						wins++
						mu.Unlock()
					}
				}(i)
			}
			wg.Wait()
			assert.Equal(t, 1, wins)
		})
	}
}

func TestMarker_LegacyValueCountsAsMarked(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Set(ctx, MarkerKey, "P1"))

	m := NewMarker(store)
	marked, err := m.IsMarked(ctx)
	require.NoError(t, err)
	assert.True(t, marked)

	ok, err := m.TryMark(ctx, JobID{Owner: "a@x.com", Project: "P2"})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFileStore_SharedBetweenInstances(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "session.json")

	a, err := NewFileStore(path)
	require.NoError(t, err)
	b, err := NewFileStore(path)
	require.NoError(t, err)

	require.NoError(t, NewMarker(a).Mark(ctx, JobID{Owner: "a@x.com", Project: "P1"}))

	jobs, err := NewMarker(b).Jobs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []JobID{{Owner: "a@x.com", Project: "P1"}}, jobs)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestFileStore_CorruptFileIsAnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	require.NoError(t, os.WriteFile(path, []byte("{broken"), 0o600))

	s, err := NewFileStore(path)
	require.NoError(t, err)

	_, err = NewMarker(s).IsMarked(context.Background())
	assert.Error(t, err)
}

func TestSessionStore_SetIfAbsentTreatsEmptyAsAbsent(t *testing.T) {
	for name, store := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, store.Set(ctx, MarkerKey, ""))

			ok, err := store.SetIfAbsent(ctx, MarkerKey, "first")
			require.NoError(t, err)
			assert.True(t, ok, "empty value counts as absent")

			ok, err = store.SetIfAbsent(ctx, MarkerKey, "second")
			require.NoError(t, err)
			assert.False(t, ok)

			v, found, err := store.Get(ctx, MarkerKey)
			require.NoError(t, err)
			assert.True(t, found)
			assert.Equal(t, "first", v)

			require.NoError(t, store.Delete(ctx, MarkerKey))
		})
	}
}
