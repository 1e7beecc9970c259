package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"posengine/backend/internal/domain"
)

func newTestRedis(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c := NewRedisFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

func TestRedisRoundTrip(t *testing.T) {
	c, mr := newTestRedis(t)
	ctx := context.Background()
	require.NoError(t, c.Ping(ctx))

	var missing domain.Business
	ok, err := c.Get(ctx, BusinessKey("b1"), &missing)
	require.NoError(t, err)
	assert.False(t, ok)

	in := domain.Business{ID: "b1", Name: "Tienda", Currency: "MXN", Timezone: "America/Mexico_City"}
	require.NoError(t, c.Set(ctx, BusinessKey("b1"), in, time.Minute))

	var out domain.Business
	ok, err = c.Get(ctx, BusinessKey("b1"), &out)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, in, out)

	mr.FastForward(2 * time.Minute)
	ok, err = c.Get(ctx, BusinessKey("b1"), &out)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisGetCorruptPayload(t *testing.T) {
	c, mr := newTestRedis(t)
	require.NoError(t, mr.Set(ReceiptKey("tok"), "{not json"))

	var out domain.ReceiptView
	_, err := c.Get(context.Background(), ReceiptKey("tok"), &out)
	assert.Error(t, err)
}

func TestRedisUnavailable(t *testing.T) {
	c, mr := newTestRedis(t)
	mr.Close()

	var out domain.Business
	_, err := c.Get(context.Background(), BusinessKey("b1"), &out)
	assert.Error(t, err)
}

func TestNoop(t *testing.T) {
	var c Cache = Noop{}
	require.NoError(t, c.Set(context.Background(), "k", 1, time.Second))
	var out int
	ok, err := c.Get(context.Background(), "k", &out)
	require.NoError(t, err)
	assert.False(t, ok)
}
