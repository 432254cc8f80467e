package db

import (
	"context"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studentparent-server-go/db/migrations"
	"studentparent-server-go/models"
)

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func openSeeded(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()
	store, err := Open(ctx, MemoryPath, quietLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.Seed(ctx, SeedOptions{DemoData: true}))
	return store
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open(context.Background(), "  ", quietLogger())
	assert.Error(t, err)
}

func TestMigrationsAreRecordedOnce(t *testing.T) {
	store := openSeeded(t)
	ctx := context.Background()

	require.NoError(t, applyMigrations(ctx, store.sqlDB, migrations.FS))

	_, rows, err := store.QueryRows(ctx, "SELECT COUNT(*) FROM schema_migrations")
	require.NoError(t, err)
	assert.Equal(t, int64(3), rows[0][0])
}

func TestSeedInsertsDemoDataOnce(t *testing.T) {
	store := openSeeded(t)
	ctx := context.Background()

	require.NoError(t, store.Seed(ctx, SeedOptions{DemoData: true}))

	students, err := store.CountRows(ctx, "Student")
	require.NoError(t, err)
	assert.Equal(t, int64(5), students)

	parents, err := store.CountRows(ctx, "Parent")
	require.NoError(t, err)
	assert.Equal(t, int64(3), parents)
}

func TestCountRowsRejectsUnknownTable(t *testing.T) {
	store := openSeeded(t)
	_, err := store.CountRows(context.Background(), "User")
	assert.Error(t, err)
}

func TestAccessRoundTrip(t *testing.T) {
	store := openSeeded(t)
	ctx := context.Background()

	access, err := store.AccessFor(ctx, "Student")
	require.NoError(t, err)
	assert.True(t, access.Allows(models.MethodGet, models.RoleUnknown))
	assert.True(t, access.Allows(models.MethodPost, models.RoleAdmin))
	assert.False(t, access.Allows(models.MethodPost, models.RoleLogin))
	assert.False(t, access.Allows(models.MethodDelete, models.RoleUnknown))

	_, err = store.AccessFor(ctx, "Missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRequestStructureLookup(t *testing.T) {
	store := openSeeded(t)
	ctx := context.Background()

	rs, err := store.RequestStructure(ctx, models.MethodPost, "Student")
	require.NoError(t, err)
	assert.Contains(t, rs.Structure, `"name!"`)
	assert.Equal(t, 1, rs.Version)

	require.NoError(t, store.PutRequestStructure(ctx, models.RequestStructure{
		Method: models.MethodPost, Tag: "Student", Version: 2, Structure: `{"Student":{"name!":""}}`,
	}))
	rs, err = store.RequestStructure(ctx, models.MethodPost, "Student")
	require.NoError(t, err)
	assert.Equal(t, 2, rs.Version)

	_, err = store.RequestStructure(ctx, models.MethodPost, "Nobody")
	assert.ErrorIs(t, err, ErrNotFound)

	err = store.PutRequestStructure(ctx, models.RequestStructure{Method: models.MethodPut, Tag: "x", Structure: "{"})
	assert.Error(t, err)
}

func TestPutUserUpserts(t *testing.T) {
	store := openSeeded(t)
	ctx := context.Background()

	id, err := store.PutUser(ctx, models.User{Phone: "13000000000", Name: "admin", Role: models.RoleAdmin, PasswordHash: "h1"})
	require.NoError(t, err)

	again, err := store.PutUser(ctx, models.User{Phone: "13000000000", Name: "root", Role: models.RoleAdmin, PasswordHash: "h2"})
	require.NoError(t, err)
	assert.Equal(t, id, again)

	u, err := store.UserByPhone(ctx, "13000000000")
	require.NoError(t, err)
	assert.Equal(t, "root", u.Name)
	assert.Equal(t, "h2", u.PasswordHash)
	assert.Equal(t, models.RoleAdmin, u.Role)

	_, err = store.UserByPhone(ctx, "19999999999")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestInsertParentValidates(t *testing.T) {
	store := openSeeded(t)
	_, err := store.InsertParent(context.Background(), models.Parent{Name: "x"})
	assert.Error(t, err)
}

func TestQueryMapsKeysByColumn(t *testing.T) {
	store := openSeeded(t)
	rows, err := store.QueryMaps(context.Background(),
		`SELECT grade, COUNT(*) AS count FROM Student GROUP BY grade ORDER BY grade`)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	for _, r := range rows {
		assert.IsType(t, "", r["grade"])
		assert.IsType(t, int64(0), r["count"])
	}
}

func TestDeletingStudentRemovesParents(t *testing.T) {
	store := openSeeded(t)
	ctx := context.Background()

	_, err := store.Exec(ctx, `DELETE FROM Student WHERE id = ?`, 1)
	require.NoError(t, err)
	rows, err := store.QueryMaps(ctx, `SELECT id FROM Parent WHERE student_id = ?`, 1)
	require.NoError(t, err)
	assert.Empty(t, rows)

	n, err := store.CountRows(ctx, "Parent")
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestParentNeedsExistingStudent(t *testing.T) {
	store := openSeeded(t)
	_, err := store.InsertParent(context.Background(), models.Parent{
		StudentID: 404, Name: "无主", Relationship: "父亲", Phone: "13900000404",
	})
	assert.Error(t, err)
}
