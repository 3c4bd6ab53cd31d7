// Command commentsctl administers the comment store schema and housekeeping.
//
//	commentsctl migrate up|down|status
//	commentsctl migrate ddl --dialect postgres --direction up
//	commentsctl idempotency purge
//
// Connection settings come from the same environment variables as the server
// (DB_DRIVER, DB_PATH, DATABASE_URL) and can be overridden with flags.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
	"gorm.io/gorm"

	"github.com/tbourn/go-comments-backend/internal/config"
	"github.com/tbourn/go-comments-backend/internal/repo"
	"github.com/tbourn/go-comments-backend/internal/sysutil"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Msg("could not read .env")
	}
	if err := newApp(os.Stdout).Run(os.Args); err != nil {
		var ec cli.ExitCoder
		if errors.As(err, &ec) {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(ec.ExitCode())
		}
		log.Fatal().Err(err).Msg("commentsctl")
	}
}

func newApp(out io.Writer) *cli.App {
	return &cli.App{
		Name:      "commentsctl",
		Usage:     "administer the comment store",
		Writer:    out,
		ErrWriter: out,
		// main decides how to exit.
		ExitErrHandler: func(*cli.Context, error) {},
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "db-driver", Usage: "sqlite or postgres (overrides DB_DRIVER)"},
			&cli.StringFlag{Name: "db-path", Usage: "SQLite file (overrides DB_PATH)"},
			&cli.StringFlag{Name: "database-url", Usage: "PostgreSQL DSN (overrides DATABASE_URL)"},
			&cli.StringFlag{Name: "log-level", Value: "warn", EnvVars: []string{"LOG_LEVEL"}},
		},
		Before: func(c *cli.Context) error {
			sysutil.SetupLogger(c.String("log-level"), false, c.App.ErrWriter)
			return nil
		},
		Commands: []*cli.Command{
			migrateCommand(),
			idempotencyCommand(),
		},
	}
}

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "apply, revert or inspect schema migrations",
		Subcommands: []*cli.Command{
			{
				Name:  "up",
				Usage: "apply all pending migrations",
				Action: withDB(func(c *cli.Context, db *gorm.DB) error {
					applied, err := repo.Migrate(c.Context, db)
					if err != nil {
						return err
					}
					if len(applied) == 0 {
						fmt.Fprintln(c.App.Writer, "already at latest version", repo.LatestVersion())
						return nil
					}
					for _, v := range applied {
						fmt.Fprintln(c.App.Writer, "applied", v)
					}
					return nil
				}),
			},
			{
				Name:  "down",
				Usage: "revert the most recently applied migration",
				Action: withDB(func(c *cli.Context, db *gorm.DB) error {
					v, err := repo.Rollback(c.Context, db)
					if err != nil {
						return err
					}
					if v == 0 {
						fmt.Fprintln(c.App.Writer, "nothing to roll back")
						return nil
					}
					fmt.Fprintln(c.App.Writer, "rolled back", v)
					return nil
				}),
			},
			{
				Name:  "status",
				Usage: "list applied migrations",
				Action: withDB(func(c *cli.Context, db *gorm.DB) error {
					applied, err := repo.AppliedVersions(c.Context, db)
					if err != nil {
						return err
					}
					for _, m := range applied {
						fmt.Fprintf(c.App.Writer, "%d\t%s\t%s\n", m.Version, m.Name, m.AppliedUTC.UTC().Format(time.RFC3339))
					}
					fmt.Fprintf(c.App.Writer, "applied %d of %d\n", len(applied), repo.LatestVersion())
					return nil
				}),
			},
			{
				Name:  "ddl",
				Usage: "print the migration statements without connecting",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "dialect", Value: repo.DialectPostgres, Usage: "sqlite or postgres"},
					&cli.StringFlag{Name: "direction", Value: string(repo.Up), Usage: "up or down"},
				},
				Action: func(c *cli.Context) error {
					stmts, err := repo.MigrationDDL(strings.ToLower(c.String("dialect")), repo.Direction(strings.ToLower(c.String("direction"))))
					if err != nil {
						return cli.Exit(err.Error(), 2)
					}
					for _, s := range stmts {
						fmt.Fprintf(c.App.Writer, "%s;\n\n", strings.TrimSpace(s))
					}
					return nil
				},
			},
		},
	}
}

func idempotencyCommand() *cli.Command {
	return &cli.Command{
		Name:  "idempotency",
		Usage: "manage stored Idempotency-Key records",
		Subcommands: []*cli.Command{
			{
				Name:  "purge",
				Usage: "delete expired records",
				Action: withDB(func(c *cli.Context, db *gorm.DB) error {
					n, err := repo.PurgeExpiredIdempotency(c.Context, db, time.Now())
					if err != nil {
						return err
					}
					fmt.Fprintln(c.App.Writer, "purged", n)
					return nil
				}),
			},
		},
	}
}

// withDB opens the configured database for the duration of one action.
func withDB(fn func(*cli.Context, *gorm.DB) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		cfg, err := dbConfig(c)
		if err != nil {
			return cli.Exit(err.Error(), 2)
		}
		db, err := repo.Open(cfg)
		if err != nil {
			return err
		}
		if sqlDB, err := db.DB(); err == nil {
			defer sqlDB.Close()
		}
		return fn(c, db)
	}
}

// dbConfig starts from the environment and applies flag overrides. Only the
// storage settings are validated here.
func dbConfig(c *cli.Context) (config.DBConfig, error) {
	cfg, _ := config.Load()
	db := cfg.DB
	if v := c.String("db-driver"); v != "" {
		db.Driver = strings.ToLower(v)
	}
	if v := c.String("db-path"); v != "" {
		db.Path = v
	}
	if v := c.String("database-url"); v != "" {
		db.URL = v
	}
	if db.Driver == "postgresql" || db.Driver == "pgx" {
		db.Driver = repo.DialectPostgres
	}
	if db.MaxOpenConns < 1 {
		db.MaxOpenConns = 1
	}
	db.Tracing = false

	switch db.Driver {
	case repo.DialectSQLite:
		if strings.TrimSpace(db.Path) == "" {
			return db, errors.New("db path must not be empty")
		}
	case repo.DialectPostgres:
		if strings.TrimSpace(db.URL) == "" {
			return db, errors.New("database url must be set for postgres")
		}
	default:
		return db, fmt.Errorf("unsupported driver %q", db.Driver)
	}
	return db, nil
}
