package file

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/azuma-miyu/filatelier/internal/store"
)

func TestBackend_SetThenGet(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data")
	b := New(dir)
	ctx := context.Background()

	require.NoError(t, b.Set(ctx, "shopping-cart", []byte(`[{"quantity":1}]`)))
	got, err := b.Get(ctx, "shopping-cart")

	require.NoError(t, err)
	assert.Equal(t, `[{"quantity":1}]`, string(got))
	assert.FileExists(t, filepath.Join(dir, "shopping-cart.json"))
}

func TestBackend_OverwriteLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	b := New(dir)
	ctx := context.Background()

	require.NoError(t, b.Set(ctx, "shopping-cart", []byte(`[1]`)))
	require.NoError(t, b.Set(ctx, "shopping-cart", []byte(`[1,2]`)))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "shopping-cart.json", entries[0].Name())

	got, err := b.Get(ctx, "shopping-cart")
	require.NoError(t, err)
	assert.Equal(t, `[1,2]`, string(got))
}

func TestBackend_GetMissing(t *testing.T) {
	_, err := New(t.TempDir()).Get(context.Background(), "shopping-cart")
	assert.ErrorIs(t, err, store.ErrKeyNotFound)
}

func TestBackend_RejectsPathKeys(t *testing.T) {
	b := New(t.TempDir())
	for _, key := range []string{"", "..", "../escape", `a\b`} {
		assert.Error(t, b.Set(context.Background(), key, []byte(`[]`)), key)
	}
}

func TestBackend_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(t.TempDir()).Get(ctx, "shopping-cart")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBackend_Ping(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "store")
	require.NoError(t, New(dir).Ping(context.Background()))
	assert.DirExists(t, dir)
}
