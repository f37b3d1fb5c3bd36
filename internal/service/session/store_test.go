package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/aura/backend/internal/model/chat"
	"github.com/zhouzirui/aura/backend/internal/storage"
)

func frozenClock() func() time.Time {
	t := time.UnixMilli(1_700_000_000_000)
	return func() time.Time { return t }
}

func newTestStore(t *testing.T, kv storage.KV, opts ...Option) *Store {
	t.Helper()
	opts = append([]Option{
		WithClock(frozenClock()),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}, opts...)
	return NewStore(storage.NewAdapter(kv), opts...)
}

func TestCreateDoesNotSelect(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, storage.NewMemoryKV())

	created, err := store.Create(ctx)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(created.ID, "session_"))
	assert.Equal(t, chat.DefaultTitle, created.Title)
	assert.Empty(t, created.History)
	assert.Nil(t, created.SessionMemory)

	_, ok := store.Active()
	assert.False(t, ok)

	require.NoError(t, store.Select(created.ID))
	active, ok := store.Active()
	assert.True(t, ok)
	assert.Equal(t, created.ID, active)
}

func TestSelectUnknown(t *testing.T) {
	store := newTestStore(t, storage.NewMemoryKV())
	assert.ErrorIs(t, store.Select("missing"), ErrSessionNotFound)
}

func TestLastModifiedStrictlyIncreases(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, storage.NewMemoryKV())

	a, err := store.Create(ctx)
	require.NoError(t, err)
	b, err := store.Create(ctx)
	require.NoError(t, err)
	assert.Greater(t, b.LastModified, a.LastModified)

	require.NoError(t, store.Mutate(ctx, a.ID, func(s chat.Session) (chat.Session, error) {
		s.Title = "renamed"
		return s, nil
	}))

	got, ok := store.Get(a.ID)
	require.True(t, ok)
	assert.Greater(t, got.LastModified, b.LastModified)

	recent, ok := store.MostRecent()
	require.True(t, ok)
	assert.Equal(t, a.ID, recent.ID)
}

func TestMutateUnchangedSkipsWrite(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, storage.NewMemoryKV())

	created, err := store.Create(ctx)
	require.NoError(t, err)

	require.NoError(t, store.Mutate(ctx, created.ID, func(s chat.Session) (chat.Session, error) {
		s.Title = "ignored"
		return s, ErrUnchanged
	}))

	got, _ := store.Get(created.ID)
	assert.Equal(t, created, got)
}

func TestMutatePropagatesUpdaterError(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, storage.NewMemoryKV())
	created, err := store.Create(ctx)
	require.NoError(t, err)

	boom := errors.New("boom")
	err = store.Mutate(ctx, created.ID, func(s chat.Session) (chat.Session, error) {
		return s, boom
	})
	assert.ErrorIs(t, err, boom)

	err = store.Mutate(ctx, "missing", func(s chat.Session) (chat.Session, error) { return s, nil })
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestMutateReceivesCopy(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, storage.NewMemoryKV())
	created, err := store.Create(ctx)
	require.NoError(t, err)
	require.NoError(t, store.Mutate(ctx, created.ID, func(s chat.Session) (chat.Session, error) {
		s.History = append(s.History, chat.UserMessage("hi"))
		return s, nil
	}))

	_ = store.Mutate(ctx, created.ID, func(s chat.Session) (chat.Session, error) {
		s.History[0] = chat.UserMessage("tampered")
		return s, ErrUnchanged
	})

	got, _ := store.Get(created.ID)
	assert.Equal(t, chat.History{chat.UserMessage("hi")}, got.History)
}

func TestDeleteReportsActive(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, storage.NewMemoryKV())

	a, _ := store.Create(ctx)
	b, _ := store.Create(ctx)
	require.NoError(t, store.Select(a.ID))

	wasActive, err := store.Delete(ctx, b.ID)
	require.NoError(t, err)
	assert.False(t, wasActive)

	wasActive, err = store.Delete(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, wasActive)

	_, ok := store.Active()
	assert.False(t, ok)
	assert.Zero(t, store.Len())

	_, err = store.Delete(ctx, a.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestStateSurvivesReload(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemoryKV()
	store := newTestStore(t, kv)

	created, _ := store.Create(ctx)
	require.NoError(t, store.Mutate(ctx, created.ID, func(s chat.Session) (chat.Session, error) {
		s.History = chat.History{chat.UserMessage("hello"), chat.ModelMessage("hi there")}
		return s, nil
	}))
	want, _ := store.Get(created.ID)

	reloaded := newTestStore(t, kv)
	require.NoError(t, reloaded.Load(ctx))

	got, ok := reloaded.Get(created.ID)
	require.True(t, ok)
	assert.Equal(t, want, got)

	next, _ := reloaded.Create(ctx)
	assert.Greater(t, next.LastModified, want.LastModified)
}

func TestDeletingLastSessionClearsStorage(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemoryKV()
	store := newTestStore(t, kv)

	created, _ := store.Create(ctx)
	_, err := store.Delete(ctx, created.ID)
	require.NoError(t, err)

	_, ok, err := kv.Get(ctx, storage.SessionsKey)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLoadCorruptStateLeavesStoreEmpty(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemoryKV()
	require.NoError(t, kv.Set(ctx, storage.SessionsKey, "{not json"))

	store := newTestStore(t, kv)
	err := store.Load(ctx)
	assert.ErrorIs(t, err, storage.ErrCorruptState)
	assert.Zero(t, store.Len())
}

func TestEvictionKeepsActiveAndNewest(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, storage.NewMemoryKV(), WithMaxSessions(2))

	oldest, _ := store.Create(ctx)
	middle, _ := store.Create(ctx)
	require.NoError(t, store.Select(oldest.ID))

	newest, err := store.Create(ctx)
	require.NoError(t, err)

	assert.Equal(t, 2, store.Len())
	_, ok := store.Get(oldest.ID)
	assert.True(t, ok, "active session is never evicted")
	_, ok = store.Get(newest.ID)
	assert.True(t, ok)
	_, ok = store.Get(middle.ID)
	assert.False(t, ok)
}

type failingKV struct{ storage.KV }

func (failingKV) Set(context.Context, string, string) error { return errors.New("disk full") }

func TestPersistFailureKeepsMemoryState(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, failingKV{KV: storage.NewMemoryKV()})

	created, err := store.Create(ctx)
	require.NoError(t, err)

	_, ok := store.Get(created.ID)
	assert.True(t, ok)
}
