package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/alfredjeanlab/charters/internal/model"
)

// Source is the read side of the store that an export needs.
type Source interface {
	ListCharters(ctx context.Context) ([]*model.Charter, error)
	ListSections(ctx context.Context, charterID string) ([]*model.CharterSection, error)
	ListVersions(ctx context.Context, charterID string, filter model.VersionFilter) ([]*model.CharterVersion, int, error)
}

// header is the first JSONL record written by ExportJSONL.
type header struct {
	Version      string     `json:"version"`
	Type         string     `json:"type"`
	AsOf         *time.Time `json:"as_of,omitempty"` // newest last_modified_at
	CharterCount int        `json:"charter_count"`
	SectionCount int        `json:"section_count"`
	VersionCount int        `json:"version_count"`
}

// record wraps a single JSONL line with a type discriminator.
type record struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Summary counts what an export wrote.
type Summary struct {
	Charters int
	Sections int
	Versions int
}

// ExportJSONL writes every charter, its sections and its full version ledger
// as JSONL to w. Charters are sorted by ID; each charter line is followed by
// its sections (by name) and then its versions (oldest first), so the file
// can be replayed charter by charter. The output depends only on the stored
// data, so an unchanged ledger exports to identical bytes.
func ExportJSONL(ctx context.Context, src Source, w io.Writer) (Summary, error) {
	var (
		sum  Summary
		asOf *time.Time
	)

	charters, err := src.ListCharters(ctx)
	if err != nil {
		return sum, fmt.Errorf("list charters: %w", err)
	}
	sort.Slice(charters, func(i, j int) bool {
		return charters[i].ID < charters[j].ID
	})

	sections := make(map[string][]*model.CharterSection, len(charters))
	versions := make(map[string][]*model.CharterVersion, len(charters))
	for _, c := range charters {
		secs, err := src.ListSections(ctx, c.ID)
		if err != nil {
			return sum, fmt.Errorf("list sections for %s: %w", c.ID, err)
		}
		sort.Slice(secs, func(i, j int) bool { return secs[i].Name < secs[j].Name })
		sections[c.ID] = secs

		vers, _, err := src.ListVersions(ctx, c.ID, model.VersionFilter{})
		if err != nil {
			return sum, fmt.Errorf("list versions for %s: %w", c.ID, err)
		}
		versions[c.ID] = vers

		if asOf == nil || c.LastModifiedAt.After(*asOf) {
			t := c.LastModifiedAt.UTC()
			asOf = &t
		}
		sum.Sections += len(secs)
		sum.Versions += len(vers)
	}
	sum.Charters = len(charters)

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	if err := enc.Encode(header{
		Version:      "1",
		Type:         "header",
		AsOf:         asOf,
		CharterCount: sum.Charters,
		SectionCount: sum.Sections,
		VersionCount: sum.Versions,
	}); err != nil {
		return sum, fmt.Errorf("encode header: %w", err)
	}

	for _, c := range charters {
		if err := enc.Encode(record{Type: "charter", Data: c}); err != nil {
			return sum, fmt.Errorf("encode charter %s: %w", c.ID, err)
		}
		for _, s := range sections[c.ID] {
			if err := enc.Encode(record{Type: "section", Data: s}); err != nil {
				return sum, fmt.Errorf("encode section %s/%s: %w", c.ID, s.Name, err)
			}
		}
		for _, v := range versions[c.ID] {
			if err := enc.Encode(record{Type: "version", Data: v}); err != nil {
				return sum, fmt.Errorf("encode version %s/%d: %w", c.ID, v.Version, err)
			}
		}
	}

	return sum, nil
}
