package db

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studentparent-server-go/models"
)

func newTestRedis(t *testing.T) (*RedisService, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client, err := InitializeRedisClient(context.Background(), mr.Addr(), "", 8, quietLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisService(client, quietLogger()), mr
}

func TestInitializeRedisClientFailsWithoutServer(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	addr := mr.Addr()
	mr.Close()

	_, err = InitializeRedisClient(context.Background(), addr, "", 0, quietLogger())
	assert.Error(t, err)
}

func TestRedisCacheGetSet(t *testing.T) {
	svc, mr := newTestRedis(t)
	ctx := context.Background()

	_, ok, err := svc.Get(ctx, "query:GET:missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, svc.Set(ctx, "query:GET:a", []byte(`{"ok":true}`), time.Minute))
	data, ok, err := svc.Get(ctx, "query:GET:a")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.JSONEq(t, `{"ok":true}`, string(data))

	mr.Select(8)
	assert.True(t, mr.Exists(cachePrefix+"query:GET:a"))

	mr.FastForward(2 * time.Minute)
	_, ok, err = svc.Get(ctx, "query:GET:a")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisDeletePrefixSpansScanPages(t *testing.T) {
	svc, _ := newTestRedis(t)
	ctx := context.Background()

	for i := 0; i < 250; i++ {
		require.NoError(t, svc.Set(ctx, fmt.Sprintf("query:GET:%03d", i), []byte("x"), 0))
	}
	require.NoError(t, svc.Set(ctx, "other:keep", []byte("y"), 0))

	require.NoError(t, svc.DeletePrefix(ctx, "query:"))

	n, err := svc.Client.DBSize(ctx).Result()
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	_, ok, err := svc.Get(ctx, "other:keep")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisSessions(t *testing.T) {
	svc, mr := newTestRedis(t)
	ctx := context.Background()
	want := models.Session{UserID: 42, Role: models.RoleAdmin}

	_, ok, err := svc.LoadSession(ctx, "nope")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, svc.SaveSession(ctx, "tok", want, time.Hour))
	got, ok, err := svc.LoadSession(ctx, "tok")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, want, got)

	require.NoError(t, svc.DeleteSession(ctx, "tok"))
	_, ok, err = svc.LoadSession(ctx, "tok")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, svc.SaveSession(ctx, "short", want, time.Minute))
	mr.FastForward(2 * time.Minute)
	_, ok, err = svc.LoadSession(ctx, "short")
	require.NoError(t, err)
	assert.False(t, ok)

	mr.Select(8)
	mr.HSet(sessionPrefix+"bad", "userId", "not-a-number")
	_, _, err = svc.LoadSession(ctx, "bad")
	assert.Error(t, err)
}
