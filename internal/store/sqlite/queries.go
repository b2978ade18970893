package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/alfredjeanlab/charters/internal/model"
	"github.com/alfredjeanlab/charters/internal/store"
)

const charterColumns = `charter_id, project_id, document, created_by, created_at,
	last_modified_by, last_modified_at, current_output_ref`

const sectionColumns = `charter_id, section_name, section_json, updated_by, updated_at`

const versionColumns = `id, charter_id, version, version_by, version_at, document_snapshot, snapshot_sha256`

// executor is the interface satisfied by both *sql.DB and *sql.Tx.
type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// scannable is the interface satisfied by both *sql.Row and *sql.Rows.
type scannable interface {
	Scan(dest ...any) error
}

func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.ExtendedCode == sqlite3.ErrConstraintUnique || se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}

func queryCreateCharter(ctx context.Context, db executor, c *model.Charter) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO charters (`+charterColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.ProjectID, string(c.Document), c.CreatedBy, c.CreatedAt.UTC(),
		nullString(c.LastModifiedBy), c.LastModifiedAt.UTC(), nullString(c.CurrentOutputRef),
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("create charter %s: %w", c.ID, store.ErrDuplicate)
	}
	return err
}

func queryGetCharter(ctx context.Context, db executor, id string) (*model.Charter, error) {
	row := db.QueryRowContext(ctx, `SELECT `+charterColumns+` FROM charters WHERE charter_id = ?`, id)
	return scanCharter(row)
}

func queryListCharters(ctx context.Context, db executor) ([]*model.Charter, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+charterColumns+` FROM charters ORDER BY created_at, charter_id`)
	if err != nil {
		return nil, fmt.Errorf("list charters: %w", err)
	}
	defer rows.Close()

	var out []*model.Charter
	for rows.Next() {
		c, err := scanCharter(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// queryUpdateCharter must run inside a transaction. The new modification
// time is never earlier than the stored one.
func queryUpdateCharter(ctx context.Context, db executor, id string, document []byte, userID string, outputRef *string) (*model.Charter, error) {
	var prev time.Time
	if err := db.QueryRowContext(ctx, `SELECT last_modified_at FROM charters WHERE charter_id = ?`, id).Scan(&prev); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	if now.Before(prev) {
		now = prev.UTC()
	}

	var ref sql.NullString
	if outputRef != nil {
		ref = sql.NullString{String: *outputRef, Valid: true}
	}
	_, err := db.ExecContext(ctx, `
		UPDATE charters SET
			document = ?,
			last_modified_by = ?,
			last_modified_at = ?,
			current_output_ref = COALESCE(?, current_output_ref)
		WHERE charter_id = ?`,
		string(document), userID, now, ref, id,
	)
	if err != nil {
		return nil, err
	}
	return queryGetCharter(ctx, db, id)
}

func queryGetSection(ctx context.Context, db executor, charterID string, name model.SectionName) (*model.CharterSection, error) {
	row := db.QueryRowContext(ctx,
		`SELECT `+sectionColumns+` FROM charter_sections WHERE charter_id = ? AND section_name = ?`,
		charterID, string(name),
	)
	return scanSection(row)
}

func queryListSections(ctx context.Context, db executor, charterID string) ([]*model.CharterSection, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+sectionColumns+` FROM charter_sections WHERE charter_id = ? ORDER BY section_name`,
		charterID,
	)
	if err != nil {
		return nil, fmt.Errorf("list sections: %w", err)
	}
	defer rows.Close()

	var out []*model.CharterSection
	for rows.Next() {
		s, err := scanSection(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// queryInsertSection must run inside a transaction.
func queryInsertSection(ctx context.Context, db executor, s *model.CharterSection) error {
	if _, err := db.ExecContext(ctx, `SAVEPOINT section_insert`); err != nil {
		return fmt.Errorf("savepoint: %w", err)
	}

	_, err := db.ExecContext(ctx, `
		INSERT INTO charter_sections (`+sectionColumns+`)
		VALUES (?, ?, ?, ?, ?)`,
		s.CharterID, string(s.Name), string(s.SectionJSON), s.UpdatedBy, s.UpdatedAt.UTC(),
	)
	if err != nil {
		if _, rbErr := db.ExecContext(ctx, `ROLLBACK TO SAVEPOINT section_insert`); rbErr != nil {
			return fmt.Errorf("rollback to savepoint: %w (insert: %v)", rbErr, err)
		}
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %w", store.ErrDuplicate, err)
		}
		return err
	}

	if _, err := db.ExecContext(ctx, `RELEASE SAVEPOINT section_insert`); err != nil {
		return fmt.Errorf("release savepoint: %w", err)
	}
	return nil
}

func queryUpdateSection(ctx context.Context, db executor, s *model.CharterSection) error {
	res, err := db.ExecContext(ctx, `
		UPDATE charter_sections
		SET section_json = ?, updated_by = ?, updated_at = ?
		WHERE charter_id = ? AND section_name = ?`,
		string(s.SectionJSON), s.UpdatedBy, s.UpdatedAt.UTC(), s.CharterID, string(s.Name),
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func queryAppendVersion(ctx context.Context, db executor, v *model.CharterVersion) error {
	if v.VersionAt.IsZero() {
		v.VersionAt = time.Now().UTC()
	}
	res, err := db.ExecContext(ctx, `
		INSERT INTO charter_versions (charter_id, version, version_by, version_at, document_snapshot, snapshot_sha256)
		SELECT ?, COALESCE(MAX(version), 0) + 1, ?, ?, ?, ?
		FROM charter_versions
		WHERE charter_id = ?`,
		v.CharterID, v.VersionBy, v.VersionAt.UTC(), string(v.Snapshot), v.SnapshotSHA256, v.CharterID,
	)
	if err != nil {
		return err
	}
	if v.ID, err = res.LastInsertId(); err != nil {
		return err
	}
	return db.QueryRowContext(ctx, `SELECT version FROM charter_versions WHERE id = ?`, v.ID).Scan(&v.Version)
}

func queryHeadVersion(ctx context.Context, db executor, charterID string) (int, error) {
	var head int
	err := db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version), 0) FROM charter_versions WHERE charter_id = ?`,
		charterID,
	).Scan(&head)
	return head, err
}

func queryGetVersion(ctx context.Context, db executor, charterID string, version int) (*model.CharterVersion, error) {
	row := db.QueryRowContext(ctx,
		`SELECT `+versionColumns+` FROM charter_versions WHERE charter_id = ? AND version = ?`,
		charterID, version,
	)
	return scanVersion(row)
}

func queryListVersions(ctx context.Context, db executor, charterID string, filter model.VersionFilter) ([]*model.CharterVersion, int, error) {
	var total int
	if err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM charter_versions WHERE charter_id = ?`, charterID,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count versions: %w", err)
	}

	order := "ASC"
	if filter.Descending {
		order = "DESC"
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	rows, err := db.QueryContext(ctx,
		`SELECT `+versionColumns+` FROM charter_versions
		WHERE charter_id = ?
		ORDER BY version `+order+`
		LIMIT ? OFFSET ?`,
		charterID, limit, filter.Offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("list versions: %w", err)
	}
	defer rows.Close()

	var versions []*model.CharterVersion
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan versions: %w", err)
		}
		versions = append(versions, v)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("scan versions: %w", err)
	}
	return versions, total, nil
}

func queryRecordEvent(ctx context.Context, db executor, e *model.Event) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	var payload any
	if len(e.Payload) > 0 {
		payload = string(e.Payload)
	}
	res, err := db.ExecContext(ctx, `
		INSERT INTO events (topic, charter_id, actor, payload, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		e.Topic, e.CharterID, nullString(e.Actor), payload, e.CreatedAt.UTC(),
	)
	if err != nil {
		return err
	}
	e.ID, err = res.LastInsertId()
	return err
}

func queryListEvents(ctx context.Context, db executor, charterID string, limit int) ([]*model.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.QueryContext(ctx, `
		SELECT id, topic, charter_id, actor, payload, created_at
		FROM events
		WHERE charter_id = ?
		ORDER BY id DESC
		LIMIT ?`,
		charterID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Event
	for rows.Next() {
		var (
			e       model.Event
			actor   sql.NullString
			payload []byte
		)
		if err := rows.Scan(&e.ID, &e.Topic, &e.CharterID, &actor, &payload, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Actor = actor.String
		if len(payload) > 0 {
			e.Payload = json.RawMessage(payload)
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

func scanCharter(row scannable) (*model.Charter, error) {
	var (
		c              model.Charter
		document       []byte
		lastModifiedBy sql.NullString
		outputRef      sql.NullString
	)
	err := row.Scan(&c.ID, &c.ProjectID, &document, &c.CreatedBy, &c.CreatedAt,
		&lastModifiedBy, &c.LastModifiedAt, &outputRef)
	if err != nil {
		return nil, err
	}
	c.Document = json.RawMessage(document)
	c.LastModifiedBy = lastModifiedBy.String
	c.CurrentOutputRef = outputRef.String
	return &c, nil
}

func scanSection(row scannable) (*model.CharterSection, error) {
	var (
		s    model.CharterSection
		body []byte
	)
	if err := row.Scan(&s.CharterID, &s.Name, &body, &s.UpdatedBy, &s.UpdatedAt); err != nil {
		return nil, err
	}
	s.SectionJSON = json.RawMessage(body)
	return &s, nil
}

func scanVersion(row scannable) (*model.CharterVersion, error) {
	var (
		v        model.CharterVersion
		snapshot []byte
	)
	err := row.Scan(&v.ID, &v.CharterID, &v.Version, &v.VersionBy, &v.VersionAt, &snapshot, &v.SnapshotSHA256)
	if err != nil {
		return nil, err
	}
	v.Snapshot = json.RawMessage(snapshot)
	return &v, nil
}

// nullString converts a string to sql.NullString; empty string is null.
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
