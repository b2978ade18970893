// Package store defines the persistence interfaces for charters, their
// sections and the append-only version ledger.
package store

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/alfredjeanlab/charters/internal/model"
)

// ErrDuplicate is wrapped by backends when an insert violates a uniqueness
// constraint. The failed statement has already been discarded.
var ErrDuplicate = errors.New("duplicate key")

// CharterStore owns the single canonical row per charter.
type CharterStore interface {
	// CreateCharter inserts a new charter row. It is used only by the
	// generation pipeline; updates never create rows.
	CreateCharter(ctx context.Context, c *model.Charter) error
	GetCharter(ctx context.Context, id string) (*model.Charter, error)
	ListCharters(ctx context.Context) ([]*model.Charter, error)

	// UpdateCharter overwrites the document and modification metadata of an
	// existing row and returns the row as stored. A nil outputRef keeps the
	// current value. Returns sql.ErrNoRows when the charter does not exist.
	// last_modified_at never moves backwards.
	UpdateCharter(ctx context.Context, id string, document json.RawMessage, userID string, outputRef *string) (*model.Charter, error)
}

// SectionRows are the primitives the race-safe upsert is built from.
type SectionRows interface {
	// GetSection returns sql.ErrNoRows when no row exists for the key.
	GetSection(ctx context.Context, charterID string, name model.SectionName) (*model.CharterSection, error)
	// InsertSection returns an error wrapping ErrDuplicate when the key
	// already exists.
	InsertSection(ctx context.Context, s *model.CharterSection) error
	// UpdateSection returns sql.ErrNoRows when no row exists for the key.
	UpdateSection(ctx context.Context, s *model.CharterSection) error
}

// SectionStore owns one row per (charter, section name).
type SectionStore interface {
	SectionRows
	ListSections(ctx context.Context, charterID string) ([]*model.CharterSection, error)
}

// VersionLog is the write side of the version ledger. It can only append.
type VersionLog interface {
	// AppendVersion inserts v, assigning v.ID and the next per-charter
	// v.Version. A zero v.VersionAt is set to the current time.
	AppendVersion(ctx context.Context, v *model.CharterVersion) error
}

// VersionReader is the read side of the version ledger.
type VersionReader interface {
	// HeadVersion returns the latest version number, or 0 if none exist.
	HeadVersion(ctx context.Context, charterID string) (int, error)
	GetVersion(ctx context.Context, charterID string, version int) (*model.CharterVersion, error)
	// ListVersions returns a page of versions and the total count.
	ListVersions(ctx context.Context, charterID string, filter model.VersionFilter) ([]*model.CharterVersion, int, error)
}

// EventRecorder persists charter events.
type EventRecorder interface {
	RecordEvent(ctx context.Context, e *model.Event) error
	ListEvents(ctx context.Context, charterID string, limit int) ([]*model.Event, error)
}

// Store is the full persistence surface used by the service.
type Store interface {
	CharterStore
	SectionStore
	VersionLog
	VersionReader
	EventRecorder

	// RunInTransaction calls fn with a Store bound to one transaction,
	// committing when fn returns nil and rolling back otherwise.
	RunInTransaction(ctx context.Context, fn func(tx Store) error) error

	Close() error
}
