package store

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voxareflect/internal/database"
	"voxareflect/internal/models"
	"voxareflect/internal/phases"
)

func newSQLiteStore(t *testing.T) *SQLStore {
	t.Helper()
	db, err := database.New(filepath.Join(t.TempDir(), "store.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Initialize(context.Background()))
	return NewSQLStore(db)
}

func backends(t *testing.T) map[string]ConversationStore {
	return map[string]ConversationStore{
		"memory": NewMemoryStore(),
		"sqlite": newSQLiteStore(t),
	}
}

func TestLoadMissingUser(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			doc, err := s.Load(context.Background(), "nobody")
			require.NoError(t, err)
			assert.Equal(t, "nobody", doc.Username)
			assert.Empty(t, doc.Conversations)
			assert.Zero(t, doc.Version)
		})
	}
}

func TestSaveAndReload(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			doc, err := s.Load(ctx, "ana")
			require.NoError(t, err)

			conv := models.NewConversation(doc.NextConversationID(), "en", "G2", phases.PresetLong, time.Now())
			conv.Messages = append(conv.Messages, models.NewMessage(models.SenderUser, "hello", nil, time.Now()))
			conv.ApplyDecision(phases.Decision{From: phases.Description, To: phases.Description})
			doc.Conversations = append(doc.Conversations, conv)

			require.NoError(t, s.Save(ctx, doc))
			assert.Equal(t, int64(1), doc.Version)

			reloaded, err := s.Load(ctx, "ana")
			require.NoError(t, err)
			require.Len(t, reloaded.Conversations, 1)
			got := reloaded.Find(0)
			require.NotNil(t, got)
			assert.Equal(t, "G2", got.StudyGroup)
			assert.Equal(t, "long", got.TurnPreset)
			assert.Equal(t, 1, got.PhaseTurns[phases.Description])
			assert.Equal(t, 1, got.CurrentPhaseTurns)
			assert.Equal(t, "hello", got.Messages[0].Content)
			assert.Equal(t, int64(1), reloaded.Version)

			reloaded.Conversations[0].Title = "Team conflict"
			require.NoError(t, s.Save(ctx, reloaded))
			assert.Equal(t, int64(2), reloaded.Version)
		})
	}
}

func TestStaleSaveConflicts(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			first, err := s.Load(ctx, "ben")
			require.NoError(t, err)
			second, err := s.Load(ctx, "ben")
			require.NoError(t, err)

			first.Conversations = append(first.Conversations, models.NewConversation(0, "en", "", phases.PresetStandard, time.Now()))
			require.NoError(t, s.Save(ctx, first))

			second.Conversations = append(second.Conversations, models.NewConversation(0, "de", "", phases.PresetShort, time.Now()))
			assert.ErrorIs(t, s.Save(ctx, second), ErrVersionConflict)

			// An update built on an old version also conflicts.
			stale, err := s.Load(ctx, "ben")
			require.NoError(t, err)
			require.NoError(t, s.Save(ctx, first))
			assert.ErrorIs(t, s.Save(ctx, stale), ErrVersionConflict)

			final, err := s.Load(ctx, "ben")
			require.NoError(t, err)
			assert.Equal(t, "Ongoing Reflection", final.Conversations[0].Title)
		})
	}
}

func TestLocalLockerSerialisesUser(t *testing.T) {
	locker := NewLocalLocker()
	ctx := context.Background()

	var (
		mu      sync.Mutex
		inside  int
		maxSeen int
		wg      sync.WaitGroup
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := locker.Lock(ctx, "ana")
			if err != nil {
				t.Errorf("lock: %v", err)
				return
			}
			mu.Lock()
			inside++
			maxSeen = max(maxSeen, inside)
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			inside--
			mu.Unlock()
			unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxSeen)
	assert.Empty(t, locker.locks)
}

func TestLocalLockerHonoursContext(t *testing.T) {
	locker := NewLocalLocker()
	unlock, err := locker.Lock(context.Background(), "ana")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = locker.Lock(ctx, "ana")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// Other users are independent.
	other, err := locker.Lock(context.Background(), "ben")
	require.NoError(t, err)
	other()

	unlock()
	unlock()
	assert.Empty(t, locker.locks)
}

// Locked read-modify-write cycles never lose an update.
func TestLockedCyclesKeepEveryTurn(t *testing.T) {
	s := NewMemoryStore()
	locker := NewLocalLocker()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := locker.Lock(ctx, "ana")
			if err != nil {
				t.Errorf("lock: %v", err)
				return
			}
			defer unlock()
			doc, err := s.Load(ctx, "ana")
			if err != nil {
				t.Errorf("load: %v", err)
				return
			}
			doc.Conversations = append(doc.Conversations,
				models.NewConversation(doc.NextConversationID(), "en", "", phases.PresetStandard, time.Now()))
			if err := s.Save(ctx, doc); err != nil {
				t.Errorf("save: %v", err)
			}
		}()
	}
	wg.Wait()

	doc, err := s.Load(ctx, "ana")
	require.NoError(t, err)
	assert.Len(t, doc.Conversations, 10)
	assert.Equal(t, int64(10), doc.Version)
}

func newRedisLocker(t *testing.T, ttl time.Duration) (*RedisLocker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	locker := NewRedisLocker(client, ttl)
	locker.retry = 5 * time.Millisecond
	return locker, mr
}

func TestRedisLockerSerialisesUser(t *testing.T) {
	locker, mr := newRedisLocker(t, time.Minute)
	ctx := context.Background()

	unlockFirst, err := locker.Lock(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, mr.Exists(lockKey("alice")))

	acquired := make(chan func(), 1)
	go func() {
		unlock, err := locker.Lock(ctx, "alice")
		assert.NoError(t, err)
		acquired <- unlock
	}()

	select {
	case <-acquired:
		t.Fatal("second lock acquired while the first is held")
	case <-time.After(50 * time.Millisecond):
	}

	// Other users are not blocked.
	unlockBob, err := locker.Lock(ctx, "bob")
	require.NoError(t, err)
	unlockBob()

	unlockFirst()
	select {
	case unlockSecond := <-acquired:
		unlockSecond()
	case <-time.After(2 * time.Second):
		t.Fatal("second lock never acquired after release")
	}
	assert.False(t, mr.Exists(lockKey("alice")))
}

func TestRedisLockerStaleReleaseKeepsNewOwner(t *testing.T) {
	locker, mr := newRedisLocker(t, time.Second)
	ctx := context.Background()

	unlockStale, err := locker.Lock(ctx, "alice")
	require.NoError(t, err)
	staleToken, err := mr.Get(lockKey("alice"))
	require.NoError(t, err)

	// The first holder's lock lapses and another turn takes over.
	mr.FastForward(2 * time.Second)
	require.False(t, mr.Exists(lockKey("alice")))

	unlockOwner, err := locker.Lock(ctx, "alice")
	require.NoError(t, err)
	ownerToken, err := mr.Get(lockKey("alice"))
	require.NoError(t, err)
	require.NotEqual(t, staleToken, ownerToken)

	unlockStale()
	current, err := mr.Get(lockKey("alice"))
	require.NoError(t, err)
	assert.Equal(t, ownerToken, current)

	unlockOwner()
	assert.False(t, mr.Exists(lockKey("alice")))
}

func TestRedisLockerHonoursContext(t *testing.T) {
	locker, _ := newRedisLocker(t, time.Minute)

	unlock, err := locker.Lock(context.Background(), "alice")
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err = locker.Lock(ctx, "alice")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 2*time.Second)
}
