package clusers

import (
	"context"
	"path/filepath"
	"testing"

	"littletrack/internal/models/cldb"
	"littletrack/internal/models/clconfig"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := cldb.Open(clconfig.DatabaseConfig{
		Db:   "sqlite",
		Path: filepath.Join(t.TempDir(), "users.db"),
	}, "silent")
	require.NoError(t, err)
	require.NoError(t, cldb.Migrate(db, &User{}))
	return db
}

func TestEnsureAdminAndAuthenticate(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	admin, err := EnsureAdmin(ctx, db, clconfig.UserConfig{Login: "admin", Pass: "correct horse"})
	require.NoError(t, err)
	require.NotNil(t, admin)
	assert.NotZero(t, admin.ID)

	user, err := Authenticate(ctx, db, "admin", "correct horse")
	require.NoError(t, err)
	assert.Equal(t, admin.ID, user.ID)

	_, err = Authenticate(ctx, db, "admin", "wrong password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = Authenticate(ctx, db, "nobody", "correct horse")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestEnsureAdminUpdatesExisting(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	first, err := EnsureAdmin(ctx, db, clconfig.UserConfig{Login: "admin", Pass: "first password"})
	require.NoError(t, err)

	second, err := EnsureAdmin(ctx, db, clconfig.UserConfig{Login: "admin", Pass: "second password"})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	var count int64
	require.NoError(t, db.Model(&User{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	_, err = Authenticate(ctx, db, "admin", "first password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = Authenticate(ctx, db, "admin", "second password")
	assert.NoError(t, err)
}

func TestEnsureAdminWithHash(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	hash, err := HashPassword("from a hash")
	require.NoError(t, err)

	_, err = EnsureAdmin(ctx, db, clconfig.UserConfig{Login: "admin", Hash: hash})
	require.NoError(t, err)
	_, err = Authenticate(ctx, db, "admin", "from a hash")
	assert.NoError(t, err)
}

func TestEnsureAdminInvalid(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	user, err := EnsureAdmin(ctx, db, clconfig.UserConfig{})
	assert.NoError(t, err)
	assert.Nil(t, user)

	_, err = EnsureAdmin(ctx, db, clconfig.UserConfig{Login: "admin"})
	assert.Error(t, err)

	_, err = EnsureAdmin(ctx, db, clconfig.UserConfig{Login: "admin", Pass: "short"})
	assert.Error(t, err)
}
