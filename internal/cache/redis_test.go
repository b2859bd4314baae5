package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0x0BSoD/turfoo/internal/resource"
)

func newConnected(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	c := New(Config{Addr: mr.Addr()})
	require.NoError(t, c.Connect(context.Background()))
	t.Cleanup(c.Disconnect)

	return c, mr
}

func TestRedis_GetSetDelete(t *testing.T) {
	ctx := context.Background()
	c, _ := newConnected(t)

	_, err := c.Get(ctx, "missing")
	assert.ErrorIs(t, err, resource.ErrNotFound)

	require.NoError(t, c.Set(ctx, "feed:news:last", []byte(`{"entries":3}`), 0))
	got, err := c.Get(ctx, "feed:news:last")
	require.NoError(t, err)
	assert.Equal(t, `{"entries":3}`, string(got))

	require.NoError(t, c.Delete(ctx, "feed:news:last"))
	_, err = c.Get(ctx, "feed:news:last")
	assert.ErrorIs(t, err, resource.ErrNotFound)
}

func TestRedis_SetWithTTL(t *testing.T) {
	ctx := context.Background()
	c, mr := newConnected(t)

	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))
	mr.FastForward(2 * time.Minute)

	_, err := c.Get(ctx, "k")
	assert.ErrorIs(t, err, resource.ErrNotFound)
}

func TestRedis_Claim(t *testing.T) {
	ctx := context.Background()
	c, mr := newConnected(t)

	ok, err := c.Claim(ctx, "feed:news:inflight", "job-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.Claim(ctx, "feed:news:inflight", "job-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "owner can reclaim its own marker")

	ok, err = c.Claim(ctx, "feed:news:inflight", "job-2", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	mr.FastForward(61 * time.Second)

	ok, err = c.Claim(ctx, "feed:news:inflight", "job-2", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "marker expires on its own")
}

func TestRedis_Release(t *testing.T) {
	ctx := context.Background()
	c, mr := newConnected(t)

	ok, err := c.Claim(ctx, "feed:news:inflight", "job-1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	released, err := c.Release(ctx, "feed:news:inflight", "job-2")
	require.NoError(t, err)
	assert.False(t, released, "only the owner releases its marker")
	assert.True(t, mr.Exists("feed:news:inflight"))

	released, err = c.Release(ctx, "feed:news:inflight", "job-1")
	require.NoError(t, err)
	assert.True(t, released)
	assert.False(t, mr.Exists("feed:news:inflight"))

	ok, err = c.Claim(ctx, "feed:news:inflight", "job-2", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	released, err = c.Release(ctx, "feed:results:inflight", "job-1")
	require.NoError(t, err)
	assert.False(t, released, "releasing a missing marker is a no-op")
}

func TestRedis_ConnectFailure(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	c := New(Config{Addr: addr, DialTimeout: 200 * time.Millisecond})
	err := c.Connect(context.Background())

	var connErr *resource.ConnectionError
	require.ErrorAs(t, err, &connErr)
	assert.Equal(t, addr, connErr.Addr)
	assert.False(t, c.Healthy(context.Background()))
}

func TestRedis_NotConnected(t *testing.T) {
	c := New(Config{Addr: "127.0.0.1:0"})

	_, err := c.Get(context.Background(), "k")
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.False(t, c.Healthy(context.Background()))

	c.Disconnect()
	c.Disconnect()
}

func TestRedis_HealthyAndDisconnect(t *testing.T) {
	mr := miniredis.RunT(t)
	c := New(Config{Addr: mr.Addr()})
	require.NoError(t, c.Connect(context.Background()))

	assert.True(t, c.Healthy(context.Background()))

	c.Disconnect()
	c.Disconnect()
	assert.False(t, c.Healthy(context.Background()))
}
