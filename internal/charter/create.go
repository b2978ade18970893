package charter

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/alfredjeanlab/charters/internal/idgen"
	"github.com/alfredjeanlab/charters/internal/model"
	"github.com/alfredjeanlab/charters/internal/sanitize"
	"github.com/alfredjeanlab/charters/internal/store"
)

// CreateRequest is how the generation pipeline stores a freshly generated
// charter.
type CreateRequest struct {
	ProjectID string `json:"project_id,omitempty"` // random UUID when empty
	CreatedBy string `json:"created_by"`
	Document  any    `json:"document"`
	OutputRef string `json:"output_ref,omitempty"`

	// SeedSections writes a section row for every recognized section
	// present in the document.
	SeedSections bool `json:"seed_sections,omitempty"`
}

// CreateResult describes a stored charter.
type CreateResult struct {
	Charter  *model.Charter      `json:"charter"`
	Sections []model.SectionName `json:"sections,omitempty"`
}

// CreateCharter stores a new charter. It writes no version: the version
// count of a charter equals the number of updates applied to it.
func (c *Coordinator) CreateCharter(ctx context.Context, req CreateRequest) (*CreateResult, error) {
	res, err := c.createCharter(ctx, req)
	if err != nil {
		c.logger.Warn("charter create failed", "kind", string(KindOf(err)), "error", err)
		return nil, err
	}
	c.metrics.CharterCreated()
	c.logger.Info("charter created",
		"charter_id", res.Charter.ID,
		"project_id", res.Charter.ProjectID,
		"sections", len(res.Sections))
	return res, nil
}

func (c *Coordinator) createCharter(ctx context.Context, req CreateRequest) (*CreateResult, error) {
	if req.CreatedBy == "" {
		return nil, newError(KindValidation, nil, "created_by is required")
	}
	doc, canonical, err := c.prepareDocument(req.Document)
	if err != nil {
		return nil, err
	}

	id, err := idgen.NewCharterID()
	if err != nil {
		return nil, newError(KindPersistence, err, "generate charter id")
	}
	projectID := req.ProjectID
	if projectID == "" {
		projectID = uuid.NewString()
	}

	now := time.Now().UTC()
	ch := &model.Charter{
		ID:               id,
		ProjectID:        projectID,
		Document:         canonical,
		CreatedBy:        req.CreatedBy,
		CreatedAt:        now,
		LastModifiedAt:   now,
		CurrentOutputRef: req.OutputRef,
	}
	if err := model.ValidateCharter(ch); err != nil {
		return nil, newError(KindValidation, err, "charter is not valid")
	}

	var seeds []*model.CharterSection
	if req.SeedSections {
		names := make([]string, 0, len(doc))
		for name := range doc {
			if c.schema.IsSection(name) {
				names = append(names, name)
			}
		}
		sort.Strings(names)
		for _, name := range names {
			body, err := sanitize.Canonical(doc[name])
			if err != nil {
				return nil, newError(KindValidation, err, "section %s cannot be encoded", name)
			}
			seeds = append(seeds, &model.CharterSection{
				CharterID:   id,
				Name:        model.SectionName(name),
				SectionJSON: body,
				UpdatedBy:   req.CreatedBy,
				UpdatedAt:   now,
			})
		}
	}

	err = c.store.RunInTransaction(ctx, func(tx store.Store) error {
		if err := tx.CreateCharter(ctx, ch); err != nil {
			return err
		}
		for _, s := range seeds {
			if _, err := store.UpsertSection(ctx, tx, s); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, newError(KindPersistence, err, "charter id %s collided; retry", id)
		}
		return nil, newError(KindPersistence, err, "create charter")
	}

	res := &CreateResult{Charter: ch}
	for _, s := range seeds {
		res.Sections = append(res.Sections, s.Name)
	}
	return res, nil
}
