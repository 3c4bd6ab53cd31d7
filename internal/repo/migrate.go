// Package repo implements the data persistence layer for comments, backed by
// GORM. This file owns the schema: a forward-only list of versioned
// migrations, each with per-dialect Up and Down statements.
//
// Every version is applied in its own transaction together with the row that
// records it in schema_migrations, so a failed step leaves no trace. On
// PostgreSQL a transaction-scoped advisory lock serializes concurrent
// migrators; SQLite serializes writers on its own.
//
// IMPORTANT: ALWAYS APPEND NEW VERSIONS AT THE END AND NEVER EDIT A RELEASED ONE.
package repo

import (
	"context"
	"fmt"
	"time"

	errs "github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// migrationLockID keys the PostgreSQL advisory lock held while migrating.
const migrationLockID = 7355608

// Direction selects the Up or Down half of a migration.
type Direction string

const (
	Up   Direction = "up"
	Down Direction = "down"
)

// migration is one schema version. Statements are executed one at a time;
// multi-statement Exec is not portable across drivers.
type migration struct {
	Version int
	Name    string
	Up      map[string][]string
	Down    map[string][]string
}

// AppliedMigration is a row of schema_migrations.
type AppliedMigration struct {
	Version    int       `gorm:"column:version;primaryKey"`
	Name       string    `gorm:"column:name"`
	AppliedUTC time.Time `gorm:"column:applied_utc"`
}

// TableName implements the GORM tabler interface.
func (AppliedMigration) TableName() string { return "schema_migrations" }

const createVersionTable = `CREATE TABLE IF NOT EXISTS schema_migrations (
	version     INTEGER      NOT NULL PRIMARY KEY,
	name        VARCHAR(255) NOT NULL,
	applied_utc TIMESTAMP    NOT NULL
)`

// commentIndexes is shared by both dialects.
var commentIndexes = []string{
	`CREATE INDEX ix_mp_comments_content_guid ON mp_comments (content_guid)`,
	`CREATE INDEX ix_mp_comments_site_guid ON mp_comments (site_guid)`,
	`CREATE INDEX ix_mp_comments_parent_guid ON mp_comments (parent_guid)`,
	`CREATE INDEX ix_mp_comments_created_utc ON mp_comments (created_utc)`,
	`CREATE INDEX ix_mp_comments_content_status_date ON mp_comments (content_guid, moderation_status, created_utc)`,
	`CREATE INDEX ix_mp_comments_parent_date ON mp_comments (parent_guid, created_utc)`,
}

// CommentIndexNames lists the indexes created for mp_comments.
var CommentIndexNames = []string{
	"ix_mp_comments_content_guid",
	"ix_mp_comments_site_guid",
	"ix_mp_comments_parent_guid",
	"ix_mp_comments_created_utc",
	"ix_mp_comments_content_status_date",
	"ix_mp_comments_parent_date",
}

func withIndexes(create string) []string {
	return append([]string{create}, commentIndexes...)
}

// migrations returns all schema versions in order.
func migrations() []migration {
	return []migration{
		{
			Version: 1,
			Name:    "create_mp_comments",
			Up: map[string][]string{
				DialectSQLite: withIndexes(`CREATE TABLE mp_comments (
	id                CHAR(36)     NOT NULL,
	parent_guid       CHAR(36)     NULL,
	site_guid         CHAR(36)     NOT NULL,
	feature_guid      CHAR(36)     NOT NULL,
	module_guid       CHAR(36)     NOT NULL,
	content_guid      CHAR(36)     NOT NULL,
	user_guid         CHAR(36)     NOT NULL,
	title             VARCHAR(255) NULL,
	user_comment      TEXT         NULL,
	user_name         VARCHAR(50)  NULL,
	user_email        VARCHAR(100) NULL,
	user_url          VARCHAR(255) NULL,
	user_ip           VARCHAR(50)  NULL,
	created_utc       DATETIME     NOT NULL DEFAULT CURRENT_TIMESTAMP,
	last_mod_utc      DATETIME     NOT NULL DEFAULT CURRENT_TIMESTAMP,
	moderation_status SMALLINT     NOT NULL DEFAULT 1,
	moderated_by      CHAR(36)     NULL,
	moderation_reason VARCHAR(255) NULL,
	CONSTRAINT pk_mp_comments PRIMARY KEY (id),
	CONSTRAINT fk_mp_comments_parent FOREIGN KEY (parent_guid) REFERENCES mp_comments (id) ON DELETE RESTRICT,
	CONSTRAINT ck_mp_comments_moderation_status CHECK (moderation_status BETWEEN 0 AND 3)
)`),
				DialectPostgres: withIndexes(`CREATE TABLE mp_comments (
	id                UUID         NOT NULL,
	parent_guid       UUID         NULL,
	site_guid         UUID         NOT NULL,
	feature_guid      UUID         NOT NULL,
	module_guid       UUID         NOT NULL,
	content_guid      UUID         NOT NULL,
	user_guid         UUID         NOT NULL,
	title             VARCHAR(255) NULL,
	user_comment      TEXT         NULL,
	user_name         VARCHAR(50)  NULL,
	user_email        VARCHAR(100) NULL,
	user_url          VARCHAR(255) NULL,
	user_ip           VARCHAR(50)  NULL,
	created_utc       TIMESTAMP    NOT NULL DEFAULT (now() AT TIME ZONE 'utc'),
	last_mod_utc      TIMESTAMP    NOT NULL DEFAULT (now() AT TIME ZONE 'utc'),
	moderation_status SMALLINT     NOT NULL DEFAULT 1,
	moderated_by      UUID         NULL,
	moderation_reason VARCHAR(255) NULL,
	CONSTRAINT pk_mp_comments PRIMARY KEY (id),
	CONSTRAINT fk_mp_comments_parent FOREIGN KEY (parent_guid) REFERENCES mp_comments (id) ON DELETE RESTRICT,
	CONSTRAINT ck_mp_comments_moderation_status CHECK (moderation_status BETWEEN 0 AND 3)
)`),
			},
			Down: map[string][]string{
				DialectSQLite:   {`DROP TABLE IF EXISTS mp_comments`},
				DialectPostgres: {`DROP TABLE IF EXISTS mp_comments`},
			},
		},
		{
			Version: 2,
			Name:    "create_comment_idempotency",
			Up: map[string][]string{
				DialectSQLite: {
					`CREATE TABLE comment_idempotency (
	id         TEXT     NOT NULL PRIMARY KEY,
	user_id    TEXT     NOT NULL,
	content_id TEXT     NOT NULL,
	idem_key   TEXT     NOT NULL,
	comment_id TEXT     NOT NULL,
	status     INTEGER  NOT NULL,
	created_at DATETIME NOT NULL,
	expires_at DATETIME NOT NULL
)`,
					`CREATE UNIQUE INDEX ux_comment_idem_user_content_key ON comment_idempotency (user_id, content_id, idem_key)`,
					`CREATE INDEX ix_comment_idem_expires_at ON comment_idempotency (expires_at)`,
				},
				DialectPostgres: {
					`CREATE TABLE comment_idempotency (
	id         VARCHAR(36)  NOT NULL PRIMARY KEY,
	user_id    VARCHAR(64)  NOT NULL,
	content_id VARCHAR(36)  NOT NULL,
	idem_key   VARCHAR(200) NOT NULL,
	comment_id VARCHAR(36)  NOT NULL,
	status     INTEGER      NOT NULL,
	created_at TIMESTAMP    NOT NULL,
	expires_at TIMESTAMP    NOT NULL
)`,
					`CREATE UNIQUE INDEX ux_comment_idem_user_content_key ON comment_idempotency (user_id, content_id, idem_key)`,
					`CREATE INDEX ix_comment_idem_expires_at ON comment_idempotency (expires_at)`,
				},
			},
			Down: map[string][]string{
				DialectSQLite:   {`DROP TABLE IF EXISTS comment_idempotency`},
				DialectPostgres: {`DROP TABLE IF EXISTS comment_idempotency`},
			},
		},
	}
}

// LatestVersion returns the highest known schema version.
func LatestVersion() int {
	m := migrations()
	return m[len(m)-1].Version
}

// MigrationDDL returns the statements for every version in the given
// direction: ascending for Up, descending for Down. It does not touch a
// database and is used to emit reviewable DDL.
func MigrationDDL(dialect string, dir Direction) ([]string, error) {
	if dialect != DialectSQLite && dialect != DialectPostgres {
		return nil, fmt.Errorf("unsupported dialect %q", dialect)
	}
	m := migrations()
	var out []string
	switch dir {
	case Up:
		for _, mg := range m {
			out = append(out, mg.Up[dialect]...)
		}
	case Down:
		for i := len(m) - 1; i >= 0; i-- {
			out = append(out, m[i].Down[dialect]...)
		}
	default:
		return nil, fmt.Errorf("unknown direction %q", dir)
	}
	return out, nil
}

// Migrate applies every pending version in order and returns the versions it
// applied.
func Migrate(ctx context.Context, db *gorm.DB) ([]int, error) {
	dialect := db.Dialector.Name()
	if _, err := MigrationDDL(dialect, Up); err != nil {
		return nil, err
	}
	if err := db.WithContext(ctx).Exec(createVersionTable).Error; err != nil {
		return nil, errs.Wrap(err, "create schema_migrations")
	}

	var applied []int
	for _, m := range migrations() {
		m := m
		done := false
		err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := lockMigrations(tx, dialect); err != nil {
				return err
			}
			var n int64
			if err := tx.Model(&AppliedMigration{}).Where("version = ?", m.Version).Count(&n).Error; err != nil {
				return errs.Wrapf(err, "check version %d", m.Version)
			}
			if n > 0 {
				return nil
			}
			for _, stmt := range m.Up[dialect] {
				if err := tx.Exec(stmt).Error; err != nil {
					return errs.Wrapf(err, "migration %d (%s)", m.Version, m.Name)
				}
			}
			rec := AppliedMigration{Version: m.Version, Name: m.Name, AppliedUTC: time.Now().UTC()}
			if err := tx.Create(&rec).Error; err != nil {
				return errs.Wrapf(err, "record version %d", m.Version)
			}
			done = true
			return nil
		})
		if err != nil {
			return applied, err
		}
		if done {
			log.Info().Int("version", m.Version).Str("name", m.Name).Str("dialect", dialect).Msg("migration applied")
			applied = append(applied, m.Version)
		}
	}
	return applied, nil
}

// Rollback reverts the most recently applied version. It returns the reverted
// version, or 0 when nothing was applied.
func Rollback(ctx context.Context, db *gorm.DB) (int, error) {
	dialect := db.Dialector.Name()
	if _, err := MigrationDDL(dialect, Down); err != nil {
		return 0, err
	}
	if !db.Migrator().HasTable(&AppliedMigration{}) {
		return 0, nil
	}

	byVersion := make(map[int]migration)
	for _, m := range migrations() {
		byVersion[m.Version] = m
	}

	reverted := 0
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockMigrations(tx, dialect); err != nil {
			return err
		}
		var last AppliedMigration
		res := tx.Order("version DESC").Limit(1).Find(&last)
		if res.Error != nil {
			return errs.Wrap(res.Error, "read schema_migrations")
		}
		if res.RowsAffected == 0 {
			return nil
		}
		m, ok := byVersion[last.Version]
		if !ok {
			return fmt.Errorf("applied version %d is unknown to this binary", last.Version)
		}
		for _, stmt := range m.Down[dialect] {
			if err := tx.Exec(stmt).Error; err != nil {
				return errs.Wrapf(err, "rollback %d (%s)", m.Version, m.Name)
			}
		}
		if err := tx.Where("version = ?", m.Version).Delete(&AppliedMigration{}).Error; err != nil {
			return errs.Wrapf(err, "unrecord version %d", m.Version)
		}
		reverted = m.Version
		return nil
	})
	if err != nil {
		return 0, err
	}
	if reverted > 0 {
		log.Info().Int("version", reverted).Str("dialect", dialect).Msg("migration rolled back")
	}
	return reverted, nil
}

// AppliedVersions returns the recorded versions in ascending order. A
// database that was never migrated yields an empty slice.
func AppliedVersions(ctx context.Context, db *gorm.DB) ([]AppliedMigration, error) {
	if !db.Migrator().HasTable(&AppliedMigration{}) {
		return []AppliedMigration{}, nil
	}
	var out []AppliedMigration
	err := db.WithContext(ctx).Order("version ASC").Find(&out).Error
	return out, err
}

func lockMigrations(tx *gorm.DB, dialect string) error {
	if dialect != DialectPostgres {
		return nil
	}
	return errs.Wrap(tx.Exec("SELECT pg_advisory_xact_lock(?)", migrationLockID).Error, "acquire migration lock")
}
