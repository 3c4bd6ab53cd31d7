package repo

import (
	"context"
	"sort"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrate_CreatesSchemaOnce(t *testing.T) {
	db := newBareDB(t)
	ctx := context.Background()

	applied, err := Migrate(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, applied)

	again, err := Migrate(ctx, db)
	require.NoError(t, err)
	assert.Empty(t, again, "second run must be a no-op")

	versions, err := AppliedVersions(ctx, db)
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, 1, versions[0].Version)
	assert.Equal(t, "create_mp_comments", versions[0].Name)
	assert.Equal(t, LatestVersion(), versions[1].Version)
	assert.False(t, versions[0].AppliedUTC.IsZero())
}

func TestMigrate_IndexesAndForeignKey(t *testing.T) {
	db := newTestDB(t)

	var names []string
	require.NoError(t, db.Raw(
		"SELECT name FROM sqlite_master WHERE type = 'index' AND tbl_name = 'mp_comments' AND name LIKE 'ix_%'",
	).Scan(&names).Error)
	sort.Strings(names)
	want := append([]string(nil), CommentIndexNames...)
	sort.Strings(want)
	assert.Equal(t, want, names)

	var fk struct {
		Table    string `gorm:"column:table"`
		From     string `gorm:"column:from"`
		To       string `gorm:"column:to"`
		OnDelete string `gorm:"column:on_delete"`
	}
	require.NoError(t, db.Raw(
		`SELECT "table", "from", "to", on_delete FROM pragma_foreign_key_list('mp_comments')`,
	).Scan(&fk).Error)
	assert.Equal(t, "mp_comments", fk.Table)
	assert.Equal(t, "parent_guid", fk.From)
	assert.Equal(t, "id", fk.To)
	assert.Equal(t, "RESTRICT", strings.ToUpper(fk.OnDelete))
}

func TestMigrate_ColumnDefaultsAndCheck(t *testing.T) {
	db := newTestDB(t)
	id := uuid.NewString()
	ins := `INSERT INTO mp_comments (id, site_guid, feature_guid, module_guid, content_guid, user_guid) VALUES (?, ?, ?, ?, ?, ?)`
	scope := uuid.NewString()
	require.NoError(t, db.Exec(ins, id, scope, scope, scope, scope, uuid.Nil.String()).Error)

	var row struct {
		ModerationStatus int    `gorm:"column:moderation_status"`
		CreatedUTC       string `gorm:"column:created_utc"`
	}
	require.NoError(t, db.Raw("SELECT moderation_status, CAST(created_utc AS TEXT) AS created_utc FROM mp_comments WHERE id = ?", id).Scan(&row).Error)
	assert.Equal(t, 1, row.ModerationStatus, "legacy default is approved")
	assert.NotEmpty(t, row.CreatedUTC)

	bad := `INSERT INTO mp_comments (id, site_guid, feature_guid, module_guid, content_guid, user_guid, moderation_status) VALUES (?, ?, ?, ?, ?, ?, 7)`
	err := db.Exec(bad, uuid.NewString(), scope, scope, scope, scope, uuid.Nil.String()).Error
	require.Error(t, err)
	assert.Contains(t, strings.ToLower(err.Error()), "check")
}

func TestRollback_RevertsNewestFirst(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	v, err := Rollback(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, 2, v)
	assert.False(t, db.Migrator().HasTable("comment_idempotency"))
	assert.True(t, db.Migrator().HasTable("mp_comments"))

	v, err = Rollback(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, 1, v)
	assert.False(t, db.Migrator().HasTable("mp_comments"))

	v, err = Rollback(ctx, db)
	require.NoError(t, err)
	assert.Zero(t, v)

	versions, err := AppliedVersions(ctx, db)
	require.NoError(t, err)
	assert.Empty(t, versions)

	applied, err := Migrate(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, applied)
}

func TestRollback_NeverMigrated(t *testing.T) {
	db := newBareDB(t)
	v, err := Rollback(context.Background(), db)
	require.NoError(t, err)
	assert.Zero(t, v)
}

func TestMigrationDDL(t *testing.T) {
	up, err := MigrationDDL(DialectPostgres, Up)
	require.NoError(t, err)
	require.NotEmpty(t, up)
	assert.True(t, strings.HasPrefix(up[0], "CREATE TABLE mp_comments"))
	assert.Contains(t, up[0], "ON DELETE RESTRICT")
	assert.Contains(t, up[0], "UUID")
	joined := strings.Join(up, "\n")
	for _, ix := range CommentIndexNames {
		assert.Contains(t, joined, ix)
	}

	down, err := MigrationDDL(DialectSQLite, Down)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"DROP TABLE IF EXISTS comment_idempotency",
		"DROP TABLE IF EXISTS mp_comments",
	}, down)

	_, err = MigrationDDL("mssql", Up)
	assert.Error(t, err)
	_, err = MigrationDDL(DialectSQLite, Direction("sideways"))
	assert.Error(t, err)
}
