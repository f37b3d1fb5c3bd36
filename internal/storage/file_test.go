package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileKV(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	kv, err := NewFileKV(dir)
	require.NoError(t, err)

	_, ok, err := kv.Get(ctx, SessionsKey)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, kv.Set(ctx, SessionsKey, `{"a":1}`))
	require.NoError(t, kv.Set(ctx, SessionsKey, `{"b":2}`))

	value, ok, err := kv.Get(ctx, SessionsKey)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `{"b":2}`, value)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files are renamed away")

	require.NoError(t, kv.Delete(ctx, SessionsKey))
	require.NoError(t, kv.Delete(ctx, SessionsKey))
	_, err = os.Stat(filepath.Join(dir, SessionsKey+".json"))
	assert.True(t, os.IsNotExist(err))
}

func TestFileKVRejectsPathKeys(t *testing.T) {
	kv, err := NewFileKV(t.TempDir())
	require.NoError(t, err)

	assert.Error(t, kv.Set(context.Background(), "../escape", "x"))
}

func TestNewKVValidatesOptions(t *testing.T) {
	ctx := context.Background()

	_, err := NewKV(ctx, DriverFile, Options{})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewKV(ctx, DriverRedis, Options{})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewKV(ctx, Driver("etcd"), Options{})
	assert.ErrorIs(t, err, ErrInvalidDriver)

	kv, err := NewKV(ctx, DriverMemory, Options{})
	require.NoError(t, err)
	assert.IsType(t, &MemoryKV{}, kv)
}
