// Package postgres implements the store.Store interface backed by PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"

	"github.com/alfredjeanlab/charters/internal/model"
	"github.com/alfredjeanlab/charters/internal/store"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PostgresStore implements store.Store backed by a PostgreSQL database.
type PostgresStore struct {
	db *sql.DB
}

// Compile-time check that PostgresStore implements store.Store.
var _ store.Store = (*PostgresStore)(nil)

// New opens a connection to the PostgreSQL database at the given URL,
// configures the connection pool, and runs any pending migrations.
func New(databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

func runMigrations(db *sql.DB) error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	dbDriver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration db driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "postgres", dbDriver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("apply migrations: %w", err)
	}

	return nil
}

// Close closes the underlying database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) CreateCharter(ctx context.Context, c *model.Charter) error {
	return queryCreateCharter(ctx, s.db, c)
}

func (s *PostgresStore) GetCharter(ctx context.Context, id string) (*model.Charter, error) {
	return queryGetCharter(ctx, s.db, id)
}

func (s *PostgresStore) ListCharters(ctx context.Context) ([]*model.Charter, error) {
	return queryListCharters(ctx, s.db)
}

func (s *PostgresStore) UpdateCharter(ctx context.Context, id string, document json.RawMessage, userID string, outputRef *string) (*model.Charter, error) {
	return queryUpdateCharter(ctx, s.db, id, document, userID, outputRef)
}

func (s *PostgresStore) GetSection(ctx context.Context, charterID string, name model.SectionName) (*model.CharterSection, error) {
	return queryGetSection(ctx, s.db, charterID, name)
}

func (s *PostgresStore) ListSections(ctx context.Context, charterID string) ([]*model.CharterSection, error) {
	return queryListSections(ctx, s.db, charterID)
}

// InsertSection needs a transaction for its savepoint, so it opens one.
func (s *PostgresStore) InsertSection(ctx context.Context, sec *model.CharterSection) error {
	return s.RunInTransaction(ctx, func(tx store.Store) error {
		return tx.InsertSection(ctx, sec)
	})
}

func (s *PostgresStore) UpdateSection(ctx context.Context, sec *model.CharterSection) error {
	return queryUpdateSection(ctx, s.db, sec)
}

func (s *PostgresStore) AppendVersion(ctx context.Context, v *model.CharterVersion) error {
	return queryAppendVersion(ctx, s.db, v)
}

func (s *PostgresStore) HeadVersion(ctx context.Context, charterID string) (int, error) {
	return queryHeadVersion(ctx, s.db, charterID)
}

func (s *PostgresStore) GetVersion(ctx context.Context, charterID string, version int) (*model.CharterVersion, error) {
	return queryGetVersion(ctx, s.db, charterID, version)
}

func (s *PostgresStore) ListVersions(ctx context.Context, charterID string, filter model.VersionFilter) ([]*model.CharterVersion, int, error) {
	return queryListVersions(ctx, s.db, charterID, filter)
}

func (s *PostgresStore) RecordEvent(ctx context.Context, e *model.Event) error {
	return queryRecordEvent(ctx, s.db, e)
}

func (s *PostgresStore) ListEvents(ctx context.Context, charterID string, limit int) ([]*model.Event, error) {
	return queryListEvents(ctx, s.db, charterID, limit)
}

// RunInTransaction begins a database transaction, creates a txStore that
// delegates to it, calls fn, and commits on success or rolls back on error.
func (s *PostgresStore) RunInTransaction(ctx context.Context, fn func(tx store.Store) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	txS := &txStore{tx: tx}
	if err := fn(txS); err != nil {
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

// Compile-time check that txStore implements store.Store.
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

// RunInTransaction on a txStore reuses the existing transaction (no nesting).
func (s *txStore) RunInTransaction(ctx context.Context, fn func(tx store.Store) error) error {
	return fn(s)
}

// Close is a no-op for a transaction store; the parent store owns the connection.
func (s *txStore) Close() error {
	return nil
}
