package postgres

import (
	"database/sql"
	"encoding/json"

	"github.com/alfredjeanlab/charters/internal/model"
)

// scannable is the interface satisfied by both *sql.Row and *sql.Rows.
type scannable interface {
	Scan(dest ...any) error
}

// scanCharter scans a single row in charterColumns order.
func scanCharter(row scannable) (*model.Charter, error) {
	var (
		c              model.Charter
		document       []byte
		lastModifiedBy sql.NullString
		outputRef      sql.NullString
	)
	err := row.Scan(
		&c.ID,
		&c.ProjectID,
		&document,
		&c.CreatedBy,
		&c.CreatedAt,
		&lastModifiedBy,
		&c.LastModifiedAt,
		&outputRef,
	)
	if err != nil {
		return nil, err
	}
	c.Document = json.RawMessage(document)
	c.LastModifiedBy = lastModifiedBy.String
	c.CurrentOutputRef = outputRef.String
	return &c, nil
}

func scanCharters(rows *sql.Rows) ([]*model.Charter, error) {
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

func scanSections(rows *sql.Rows) ([]*model.CharterSection, error) {
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

func scanEvent(row scannable) (*model.Event, error) {
	var (
		e       model.Event
		actor   sql.NullString
		payload []byte
	)
	if err := row.Scan(&e.ID, &e.Topic, &e.CharterID, &actor, &payload, &e.CreatedAt); err != nil {
		return nil, err
	}
	e.Actor = actor.String
	if len(payload) > 0 {
		e.Payload = json.RawMessage(payload)
	}
	return &e, nil
}

func scanEvents(rows *sql.Rows) ([]*model.Event, error) {
	var out []*model.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// nullString converts a string to sql.NullString; empty string is null.
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// jsonText converts json.RawMessage to a value for JSON and JSONB columns.
// Empty input is stored as NULL.
func jsonText(m json.RawMessage) any {
	if len(m) == 0 {
		return nil
	}
	return string(m)
}
