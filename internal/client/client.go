// Package client provides a transport-agnostic interface for the charters
// service and an HTTP/JSON implementation that talks to its REST API.
package client

import (
	"context"
	"encoding/json"

	"github.com/alfredjeanlab/charters/internal/model"
	"github.com/alfredjeanlab/charters/internal/presence"
)

// CharterClient is the interface the charterctl commands use to talk to the
// server.
type CharterClient interface {
	// Charters
	CreateCharter(ctx context.Context, req *CreateCharterRequest) (*CreateCharterResponse, error)
	GetCharter(ctx context.Context, id string) (*model.Charter, error)
	ListCharters(ctx context.Context) ([]*model.Charter, error)
	UpdateCharter(ctx context.Context, id string, req *UpdateCharterRequest) (*UpdateCharterResponse, error)

	// Sections
	SectionNames(ctx context.Context) ([]model.SectionName, error)
	ListSections(ctx context.Context, charterID string) ([]*model.CharterSection, error)
	GetSection(ctx context.Context, charterID, name string) (*model.CharterSection, error)

	// Versions
	ListVersions(ctx context.Context, charterID string, req *ListVersionsRequest) (*ListVersionsResponse, error)
	GetVersion(ctx context.Context, charterID string, version int) (*model.CharterVersion, error)

	// Activity
	Editors(ctx context.Context, charterID string) ([]presence.Entry, error)
	GetEvents(ctx context.Context, charterID string, limit int) ([]*model.Event, error)

	// Health
	Health(ctx context.Context) (string, error)

	// Lifecycle
	Close() error
}

// CreateCharterRequest holds parameters for storing a generated charter.
type CreateCharterRequest struct {
	ProjectID    string          `json:"project_id,omitempty"`
	CreatedBy    string          `json:"created_by"`
	Document     json.RawMessage `json:"document"`
	OutputRef    string          `json:"output_ref,omitempty"`
	SeedSections bool            `json:"seed_sections,omitempty"`
}

// CreateCharterResponse is the response from CreateCharter.
type CreateCharterResponse struct {
	Charter  *model.Charter      `json:"charter"`
	Sections []model.SectionName `json:"sections,omitempty"`
}

// UpdateCharterRequest is one edit of a charter.
type UpdateCharterRequest struct {
	UserID          string          `json:"user_id"`
	Document        json.RawMessage `json:"document"`
	SectionName     string          `json:"section_name,omitempty"`
	OutputRef       *string         `json:"output_ref,omitempty"`
	ExpectedVersion *int            `json:"expected_version,omitempty"`
}

// UpdateCharterResponse is the response from UpdateCharter.
type UpdateCharterResponse struct {
	CharterID      string   `json:"charter_id"`
	SectionUpdated *string  `json:"section_updated"`
	VersionID      int      `json:"version_id"`
	Message        string   `json:"message"`
	OtherEditors   []string `json:"other_editors,omitempty"`
}

// ListVersionsRequest pages through a charter's history.
type ListVersionsRequest struct {
	Limit  int
	Offset int
	Order  string // "asc" or "desc" (default)
}

// ListVersionsResponse is the response from ListVersions.
type ListVersionsResponse struct {
	Versions []*model.CharterVersion `json:"versions"`
	Total    int                     `json:"total"`
}
