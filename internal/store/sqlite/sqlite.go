// Package sqlite implements the store.Store interface backed by SQLite.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/alfredjeanlab/charters/internal/model"
	"github.com/alfredjeanlab/charters/internal/store"
)

//go:embed schema.sql
var schemaSQL string

// currentSchemaVersion is recorded in PRAGMA user_version.
const currentSchemaVersion = 1

// SQLiteStore implements store.Store backed by a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

var _ store.Store = (*SQLiteStore)(nil)

// Open creates or opens the SQLite database at path and applies the schema.
//
// The pool is limited to a single connection: SQLite allows one writer, so
// transactions are serialized by the pool instead of failing with
// SQLITE_BUSY. path may be a file name or a file: URL with its own query.
func Open(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", withConnParams(path))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// connParams are applied by the driver to every connection it opens.
const connParams = "_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_foreign_keys=on"

func withConnParams(path string) string {
	if strings.Contains(path, "?") {
		return path + "&" + connParams
	}
	return path + "?" + connParams
}

func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("execute schema: %w", err)
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateCharter(ctx context.Context, c *model.Charter) error {
	return queryCreateCharter(ctx, s.db, c)
}

func (s *SQLiteStore) GetCharter(ctx context.Context, id string) (*model.Charter, error) {
	return queryGetCharter(ctx, s.db, id)
}

func (s *SQLiteStore) ListCharters(ctx context.Context) ([]*model.Charter, error) {
	return queryListCharters(ctx, s.db)
}

// UpdateCharter reads then writes, so it runs in its own transaction.
func (s *SQLiteStore) UpdateCharter(ctx context.Context, id string, document json.RawMessage, userID string, outputRef *string) (*model.Charter, error) {
	var c *model.Charter
	err := s.RunInTransaction(ctx, func(tx store.Store) error {
		var err error
		c, err = tx.UpdateCharter(ctx, id, document, userID, outputRef)
		return err
	})
	return c, err
}

func (s *SQLiteStore) GetSection(ctx context.Context, charterID string, name model.SectionName) (*model.CharterSection, error) {
	return queryGetSection(ctx, s.db, charterID, name)
}

func (s *SQLiteStore) ListSections(ctx context.Context, charterID string) ([]*model.CharterSection, error) {
	return queryListSections(ctx, s.db, charterID)
}

// InsertSection needs a transaction for its savepoint, so it opens one.
func (s *SQLiteStore) InsertSection(ctx context.Context, sec *model.CharterSection) error {
	return s.RunInTransaction(ctx, func(tx store.Store) error {
		return tx.InsertSection(ctx, sec)
	})
}

func (s *SQLiteStore) UpdateSection(ctx context.Context, sec *model.CharterSection) error {
	return queryUpdateSection(ctx, s.db, sec)
}

func (s *SQLiteStore) AppendVersion(ctx context.Context, v *model.CharterVersion) error {
	return s.RunInTransaction(ctx, func(tx store.Store) error {
		return tx.AppendVersion(ctx, v)
	})
}

func (s *SQLiteStore) HeadVersion(ctx context.Context, charterID string) (int, error) {
	return queryHeadVersion(ctx, s.db, charterID)
}

func (s *SQLiteStore) GetVersion(ctx context.Context, charterID string, version int) (*model.CharterVersion, error) {
	return queryGetVersion(ctx, s.db, charterID, version)
}

func (s *SQLiteStore) ListVersions(ctx context.Context, charterID string, filter model.VersionFilter) ([]*model.CharterVersion, int, error) {
	return queryListVersions(ctx, s.db, charterID, filter)
}

func (s *SQLiteStore) RecordEvent(ctx context.Context, e *model.Event) error {
	return queryRecordEvent(ctx, s.db, e)
}

func (s *SQLiteStore) ListEvents(ctx context.Context, charterID string, limit int) ([]*model.Event, error) {
	return queryListEvents(ctx, s.db, charterID, limit)
}

// RunInTransaction calls fn inside a transaction, committing on success.
func (s *SQLiteStore) RunInTransaction(ctx context.Context, fn func(tx store.Store) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := fn(&txStore{tx: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// txStore implements store.Store using a *sql.Tx.
type txStore struct {
	tx *sql.Tx
}

var _ store.Store = (*txStore)(nil)

func (s *txStore) CreateCharter(ctx context.Context, c *model.Charter) error {
	return queryCreateCharter(ctx, s.tx, c)
}

func (s *txStore) GetCharter(ctx context.Context, id string) (*model.Charter, error) {
	return queryGetCharter(ctx, s.tx, id)
}

func (s *txStore) ListCharters(ctx context.Context) ([]*model.Charter, error) {
	return queryListCharters(ctx, s.tx)
}

func (s *txStore) UpdateCharter(ctx context.Context, id string, document json.RawMessage, userID string, outputRef *string) (*model.Charter, error) {
	return queryUpdateCharter(ctx, s.tx, id, document, userID, outputRef)
}

func (s *txStore) GetSection(ctx context.Context, charterID string, name model.SectionName) (*model.CharterSection, error) {
	return queryGetSection(ctx, s.tx, charterID, name)
}

func (s *txStore) ListSections(ctx context.Context, charterID string) ([]*model.CharterSection, error) {
	return queryListSections(ctx, s.tx, charterID)
}

func (s *txStore) InsertSection(ctx context.Context, sec *model.CharterSection) error {
	return queryInsertSection(ctx, s.tx, sec)
}

func (s *txStore) UpdateSection(ctx context.Context, sec *model.CharterSection) error {
	return queryUpdateSection(ctx, s.tx, sec)
}

func (s *txStore) AppendVersion(ctx context.Context, v *model.CharterVersion) error {
	return queryAppendVersion(ctx, s.tx, v)
}

func (s *txStore) HeadVersion(ctx context.Context, charterID string) (int, error) {
	return queryHeadVersion(ctx, s.tx, charterID)
}

func (s *txStore) GetVersion(ctx context.Context, charterID string, version int) (*model.CharterVersion, error) {
	return queryGetVersion(ctx, s.tx, charterID, version)
}

func (s *txStore) ListVersions(ctx context.Context, charterID string, filter model.VersionFilter) ([]*model.CharterVersion, int, error) {
	return queryListVersions(ctx, s.tx, charterID, filter)
}

func (s *txStore) RecordEvent(ctx context.Context, e *model.Event) error {
	return queryRecordEvent(ctx, s.tx, e)
}

func (s *txStore) ListEvents(ctx context.Context, charterID string, limit int) ([]*model.Event, error) {
	return queryListEvents(ctx, s.tx, charterID, limit)
}

func (s *txStore) RunInTransaction(ctx context.Context, fn func(tx store.Store) error) error {
	return fn(s)
}

func (s *txStore) Close() error {
	return nil
}
