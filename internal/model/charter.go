package model

import (
	"encoding/json"
	"time"
)

// Charter is the canonical record for one project charter. Exactly one row
// exists per ID; it is created by the generation pipeline and afterwards only
// updated.
type Charter struct {
	ID               string          `json:"charter_id"`
	ProjectID        string          `json:"project_id"`
	Document         json.RawMessage `json:"document"`
	CreatedBy        string          `json:"created_by"`
	CreatedAt        time.Time       `json:"created_at"`
	LastModifiedBy   string          `json:"last_modified_by,omitempty"`
	LastModifiedAt   time.Time       `json:"last_modified_at"`
	CurrentOutputRef string          `json:"current_output_ref,omitempty"`
}

// CharterSection holds the sub-document for one named section of a charter.
// The pair (CharterID, Name) is unique.
type CharterSection struct {
	CharterID   string          `json:"charter_id"`
	Name        SectionName     `json:"section_name"`
	SectionJSON json.RawMessage `json:"section_json"`
	UpdatedBy   string          `json:"updated_by"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// CharterVersion is an immutable snapshot of a charter's full document,
// appended once per successful update.
type CharterVersion struct {
	ID             int64           `json:"id"`      // global row id, assigned by the store
	CharterID      string          `json:"charter_id"`
	Version        int             `json:"version"` // per-charter sequence, starting at 1
	VersionBy      string          `json:"version_by"`
	VersionAt      time.Time       `json:"version_at"`
	Snapshot       json.RawMessage `json:"document_snapshot"`
	SnapshotSHA256 string          `json:"snapshot_sha256"`
}

// VersionFilter pages through a charter's version history.
type VersionFilter struct {
	Limit      int  `json:"limit,omitempty"`
	Offset     int  `json:"offset,omitempty"`
	Descending bool `json:"descending,omitempty"` // newest first
}
