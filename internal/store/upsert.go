package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/alfredjeanlab/charters/internal/model"
)

// ErrSectionVanished is returned when an insert lost a uniqueness race and
// the follow-up update still found no row.
var ErrSectionVanished = errors.New("section row missing after duplicate insert")

// UpsertOutcome reports which path UpsertSection took.
type UpsertOutcome int

const (
	// SectionUpdated means an existing row was updated in place.
	SectionUpdated UpsertOutcome = iota
	// SectionInserted means a new row was created.
	SectionInserted
	// SectionRecovered means the insert collided with a concurrent writer
	// and the row it created was updated instead.
	SectionRecovered
)

func (o UpsertOutcome) String() string {
	switch o {
	case SectionUpdated:
		return "updated"
	case SectionInserted:
		return "inserted"
	case SectionRecovered:
		return "recovered"
	default:
		return fmt.Sprintf("UpsertOutcome(%d)", int(o))
	}
}

// UpsertSection makes s the content of the (s.CharterID, s.Name) row.
//
// It reads first, inserts optimistically when the row is missing, and on a
// uniqueness violation falls back to exactly one update. No lock is taken
// before the read. If the fallback update finds no row, ErrSectionVanished
// is returned instead of retrying.
func UpsertSection(ctx context.Context, rows SectionRows, s *model.CharterSection) (UpsertOutcome, error) {
	_, err := rows.GetSection(ctx, s.CharterID, s.Name)
	switch {
	case err == nil:
		if err := rows.UpdateSection(ctx, s); err != nil {
			return SectionUpdated, fmt.Errorf("update section %s: %w", s.Name, err)
		}
		return SectionUpdated, nil
	case !errors.Is(err, sql.ErrNoRows):
		return SectionUpdated, fmt.Errorf("get section %s: %w", s.Name, err)
	}

	err = rows.InsertSection(ctx, s)
	if err == nil {
		return SectionInserted, nil
	}
	if !errors.Is(err, ErrDuplicate) {
		return SectionInserted, fmt.Errorf("insert section %s: %w", s.Name, err)
	}

	err = rows.UpdateSection(ctx, s)
	switch {
	case err == nil:
		return SectionRecovered, nil
	case errors.Is(err, sql.ErrNoRows):
		return SectionRecovered, fmt.Errorf("section %s: %w", s.Name, ErrSectionVanished)
	default:
		return SectionRecovered, fmt.Errorf("update section %s after duplicate insert: %w", s.Name, err)
	}
}
