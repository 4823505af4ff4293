package sqlite

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/jmoiron/sqlx"
	migrate "github.com/rubenv/sql-migrate"
	log "github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/groupwarden/gwbot/resources"
)

type sqliteClient struct {
	db    *sqlx.DB
	mutex sync.RWMutex
}

func NewSQLiteClient(ctx context.Context, dir, dbPath string) (*sqliteClient, error) {
	dbx, err := sqlx.Open("sqlite", filepath.Join(dir, dbPath))
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	dbx.SetMaxOpenConns(42)

	if err := dbx.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping db: %w", err)
	}

	migrationsSource := &migrate.EmbedFileSystemMigrationSource{
		FileSystem: resources.FS,
		Root:       "migrations",
	}
	n, err := migrate.Exec(dbx.DB, "sqlite3", migrationsSource, migrate.Up)
	if err != nil {
		return nil, fmt.Errorf("migrate up: %w", err)
	}
	if n > 0 {
		log.Infof("applied %d migrations", n)
	}

	return &sqliteClient{db: dbx}, nil
}

func (s *sqliteClient) Close() error {
	return s.db.Close()
}
