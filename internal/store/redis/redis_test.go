package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/azuma-miyu/filatelier/internal/store"
)

func setupTestRedis(t *testing.T, ttl time.Duration) (*Backend, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return New(client, ttl), mr
}

func TestBackend_SetThenGet(t *testing.T) {
	b, mr := setupTestRedis(t, 0)
	ctx := context.Background()

	require.NoError(t, b.Set(ctx, "shopping-cart", []byte(`[]`)))

	got, err := b.Get(ctx, "shopping-cart")
	require.NoError(t, err)
	assert.Equal(t, `[]`, string(got))

	raw, err := mr.Get("storefront:shopping-cart")
	require.NoError(t, err)
	assert.Equal(t, `[]`, raw)
}

func TestBackend_GetMissing(t *testing.T) {
	b, _ := setupTestRedis(t, 0)
	_, err := b.Get(context.Background(), "shopping-cart")
	assert.ErrorIs(t, err, store.ErrKeyNotFound)
}

func TestBackend_TTL(t *testing.T) {
	b, mr := setupTestRedis(t, time.Hour)
	require.NoError(t, b.Set(context.Background(), "shopping-cart", []byte(`[]`)))

	assert.Equal(t, time.Hour, mr.TTL("storefront:shopping-cart"))

	mr.FastForward(2 * time.Hour)
	_, err := b.Get(context.Background(), "shopping-cart")
	assert.ErrorIs(t, err, store.ErrKeyNotFound)
}

func TestBackend_NoTTL(t *testing.T) {
	b, mr := setupTestRedis(t, 0)
	require.NoError(t, b.Set(context.Background(), "shopping-cart", []byte(`[]`)))
	assert.Zero(t, mr.TTL("storefront:shopping-cart"))
}

func TestBackend_ServerDown(t *testing.T) {
	b, mr := setupTestRedis(t, 0)
	mr.Close()

	_, err := b.Get(context.Background(), "shopping-cart")
	require.Error(t, err)
	assert.NotErrorIs(t, err, store.ErrKeyNotFound)
	assert.Error(t, b.Set(context.Background(), "shopping-cart", []byte(`[]`)))
	assert.Error(t, b.Ping(context.Background()))
}
