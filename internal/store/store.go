// Package store persists the reconciliation state in SQLite: import
// batches, transactions, documents, processing jobs, bookings, and the
// enrichment response cache.
//
// SQLite runs in WAL mode with a single open connection, which keeps
// writers serialized without explicit application locking. Schema changes
// go through embedded golang-migrate migration files.
package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	"document-reconciliation-service/pkg/errors"
	"document-reconciliation-service/pkg/logger"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Store wraps the SQLite database behind typed accessors.
type Store struct {
	db  *sql.DB
	log logger.Logger
}

// Open opens (or creates) the database at path, applies pending
// migrations, and returns a ready Store. Use ":memory:" for an ephemeral
// database in tests.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(on)", path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.StorageError(errors.CodeStorageFailure, "database", err).
			WithContext("path", path)
	}

	// SQLite allows a single writer; one connection avoids lock contention
	// entirely.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.StorageError(errors.CodeStorageFailure, "database", err).
			WithContext("path", path).
			WithSuggestion("check that the database path is writable")
	}

	s := &Store{
		db:  db,
		log: logger.WithComponent("store"),
	}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	s.log.WithField("path", path).Info("database opened")
	return s, nil
}

func (s *Store) migrate() error {
	source, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return errors.StorageError(errors.CodeStorageFailure, "migrations", err)
	}

	driver, err := sqlite.WithInstance(s.db, &sqlite.Config{})
	if err != nil {
		return errors.StorageError(errors.CodeStorageFailure, "migrations", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite", driver)
	if err != nil {
		return errors.StorageError(errors.CodeStorageFailure, "migrations", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return errors.StorageError(errors.CodeStorageFailure, "migrations", err).
			WithSuggestion("the database schema may be newer than this binary")
	}
	return nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Time columns are stored as fixed-width RFC 3339 text so that SQL string
// comparison orders them chronologically; booking dates as a plain
// YYYY-MM-DD day.

const (
	timeLayout = "2006-01-02T15:04:05.000000000Z07:00"
	dayLayout  = "2006-01-02"
)

func fmtTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func fmtTimePtr(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: fmtTime(*t), Valid: true}
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

func parseTimePtr(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func fmtDay(t time.Time) string {
	return t.UTC().Format(dayLayout)
}

func parseDay(s string) (time.Time, error) {
	return time.ParseInLocation(dayLayout, s, time.UTC)
}

// inTx runs fn inside a transaction, rolling back on error.
func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.StorageError(errors.CodeStorageFailure, "transaction", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return errors.StorageError(errors.CodeStorageFailure, "transaction", err)
	}
	return nil
}
