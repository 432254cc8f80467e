package auth

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studentparent-server-go/db"
	"studentparent-server-go/models"
)

func newService(t *testing.T) *Service {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)

	ctx := context.Background()
	store, err := db.Open(ctx, db.MemoryPath, log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	hash, err := HashPassword("secret")
	require.NoError(t, err)
	require.NoError(t, store.Seed(ctx, db.SeedOptions{
		Admin: models.User{Phone: "13000000000", Name: "admin", PasswordHash: hash},
	}))
	return NewService(store, db.NewMemorySessions(), time.Hour, log)
}

func TestHashPassword(t *testing.T) {
	hash, err := HashPassword("secret")
	require.NoError(t, err)
	assert.NotEqual(t, "secret", hash)
	assert.True(t, CheckPassword(hash, "secret"))
	assert.False(t, CheckPassword(hash, "wrong"))

	_, err = HashPassword("")
	assert.Error(t, err)
}

func TestLoginResolveLogout(t *testing.T) {
	s := newService(t)
	ctx := context.Background()

	res, err := s.Login(ctx, "13000000000", "secret")
	require.NoError(t, err)
	assert.NotEmpty(t, res.Token)
	assert.Equal(t, models.RoleAdmin, res.User.Role)

	role, err := s.Resolve(ctx, res.Token)
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, role)

	require.NoError(t, s.Logout(ctx, res.Token))
	role, err = s.Resolve(ctx, res.Token)
	require.NoError(t, err)
	assert.Equal(t, models.RoleUnknown, role)
}

func TestLoginFailures(t *testing.T) {
	s := newService(t)
	ctx := context.Background()

	_, err := s.Login(ctx, "13000000000", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = s.Login(ctx, "13999999999", "secret")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	role, err := s.Resolve(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, models.RoleUnknown, role)
	assert.NoError(t, s.Logout(ctx, ""))
}
