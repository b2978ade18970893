package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/alfredjeanlab/charters/internal/model"
	"github.com/alfredjeanlab/charters/internal/store"
)

// charterColumns is the column list used for SELECT statements on the charters table.
const charterColumns = `charter_id, project_id, document, created_by, created_at,
	last_modified_by, last_modified_at, current_output_ref`

const sectionColumns = `charter_id, section_name, section_json, updated_by, updated_at`

const versionColumns = `id, charter_id, version, version_by, version_at, document_snapshot, snapshot_sha256`

// uniqueViolation is the SQLSTATE for unique_violation.
const uniqueViolation = "23505"

// executor is the interface satisfied by both *sql.DB and *sql.Tx.
type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

func queryCreateCharter(ctx context.Context, db executor, c *model.Charter) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO charters (
			charter_id, project_id, document, created_by, created_at,
			last_modified_by, last_modified_at, current_output_ref
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		c.ID,
		c.ProjectID,
		jsonText(c.Document),
		c.CreatedBy,
		c.CreatedAt,
		nullString(c.LastModifiedBy),
		c.LastModifiedAt,
		nullString(c.CurrentOutputRef),
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("create charter %s: %w", c.ID, store.ErrDuplicate)
	}
	return err
}

func queryGetCharter(ctx context.Context, db executor, id string) (*model.Charter, error) {
	row := db.QueryRowContext(ctx, `SELECT `+charterColumns+` FROM charters WHERE charter_id = $1`, id)
	return scanCharter(row)
}

func queryListCharters(ctx context.Context, db executor) ([]*model.Charter, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+charterColumns+` FROM charters ORDER BY created_at, charter_id`)
	if err != nil {
		return nil, fmt.Errorf("list charters: %w", err)
	}
	defer rows.Close()
	return scanCharters(rows)
}

// queryUpdateCharter takes the row lock for the rest of the transaction.
func queryUpdateCharter(ctx context.Context, db executor, id string, document []byte, userID string, outputRef *string) (*model.Charter, error) {
	var ref sql.NullString
	if outputRef != nil {
		ref = sql.NullString{String: *outputRef, Valid: true}
	}
	row := db.QueryRowContext(ctx, `
		UPDATE charters SET
			document = $2,
			last_modified_by = $3,
			last_modified_at = GREATEST(clock_timestamp(), last_modified_at),
			current_output_ref = COALESCE($4, current_output_ref)
		WHERE charter_id = $1
		RETURNING `+charterColumns,
		id, string(document), userID, ref,
	)
	return scanCharter(row)
}

func queryGetSection(ctx context.Context, db executor, charterID string, name model.SectionName) (*model.CharterSection, error) {
	row := db.QueryRowContext(ctx, `
		SELECT `+sectionColumns+` FROM charter_sections
		WHERE charter_id = $1 AND section_name = $2`,
		charterID, string(name),
	)
	return scanSection(row)
}

func queryListSections(ctx context.Context, db executor, charterID string) ([]*model.CharterSection, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+sectionColumns+` FROM charter_sections
		WHERE charter_id = $1
		ORDER BY section_name`,
		charterID,
	)
	if err != nil {
		return nil, fmt.Errorf("list sections: %w", err)
	}
	defer rows.Close()
	return scanSections(rows)
}

// queryInsertSection must run inside a transaction. The insert is wrapped in
// a savepoint so a unique violation leaves the transaction usable.
func queryInsertSection(ctx context.Context, db executor, s *model.CharterSection) error {
	if _, err := db.ExecContext(ctx, `SAVEPOINT section_insert`); err != nil {
		return fmt.Errorf("savepoint: %w", err)
	}

	_, err := db.ExecContext(ctx, `
		INSERT INTO charter_sections (charter_id, section_name, section_json, updated_by, updated_at)
		VALUES ($1, $2, $3, $4, $5)`,
		s.CharterID, string(s.Name), jsonText(s.SectionJSON), s.UpdatedBy, s.UpdatedAt,
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
		SET section_json = $3, updated_by = $4, updated_at = $5
		WHERE charter_id = $1 AND section_name = $2`,
		s.CharterID, string(s.Name), jsonText(s.SectionJSON), s.UpdatedBy, s.UpdatedAt,
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

// queryAppendVersion assigns the next per-charter version. Callers hold the
// charter row lock, so concurrent appends for one charter are serialized.
func queryAppendVersion(ctx context.Context, db executor, v *model.CharterVersion) error {
	if v.VersionAt.IsZero() {
		v.VersionAt = time.Now().UTC()
	}
	return db.QueryRowContext(ctx, `
		INSERT INTO charter_versions (charter_id, version, version_by, version_at, document_snapshot, snapshot_sha256)
		SELECT $1::text, COALESCE(MAX(version), 0) + 1, $2::text, $3::timestamptz, $4::json, $5::text
		FROM charter_versions
		WHERE charter_id = $1::text
		RETURNING id, version`,
		v.CharterID, v.VersionBy, v.VersionAt, string(v.Snapshot), v.SnapshotSHA256,
	).Scan(&v.ID, &v.Version)
}

func queryHeadVersion(ctx context.Context, db executor, charterID string) (int, error) {
	var head int
	err := db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version), 0) FROM charter_versions WHERE charter_id = $1`,
		charterID,
	).Scan(&head)
	return head, err
}

func queryGetVersion(ctx context.Context, db executor, charterID string, version int) (*model.CharterVersion, error) {
	row := db.QueryRowContext(ctx, `
		SELECT `+versionColumns+` FROM charter_versions
		WHERE charter_id = $1 AND version = $2`,
		charterID, version,
	)
	return scanVersion(row)
}

func queryListVersions(ctx context.Context, db executor, charterID string, filter model.VersionFilter) ([]*model.CharterVersion, int, error) {
	var total int
	if err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM charter_versions WHERE charter_id = $1`, charterID,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count versions: %w", err)
	}

	order := "ASC"
	if filter.Descending {
		order = "DESC"
	}
	q := `SELECT ` + versionColumns + `
		FROM charter_versions
		WHERE charter_id = $1
		ORDER BY version ` + order
	args := []any{charterID}
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		q += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		q += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := db.QueryContext(ctx, q, args...)
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
	return db.QueryRowContext(ctx, `
		INSERT INTO events (topic, charter_id, actor, payload)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`,
		e.Topic, e.CharterID, nullString(e.Actor), jsonText(e.Payload),
	).Scan(&e.ID, &e.CreatedAt)
}

func queryListEvents(ctx context.Context, db executor, charterID string, limit int) ([]*model.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.QueryContext(ctx, `
		SELECT id, topic, charter_id, actor, payload, created_at
		FROM events
		WHERE charter_id = $1
		ORDER BY id DESC
		LIMIT $2`,
		charterID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}
