// Package charter applies edits to charters. The Coordinator is the only
// writer of charter rows, section rows and version snapshots: it validates
// and sanitizes the incoming document, then updates the charter, upserts the
// named section and appends a version inside one transaction.
package charter

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alfredjeanlab/charters/internal/metrics"
	"github.com/alfredjeanlab/charters/internal/model"
	"github.com/alfredjeanlab/charters/internal/sanitize"
	"github.com/alfredjeanlab/charters/internal/store"
)

// SchemaProvider supplies the document schema and the section enumeration.
type SchemaProvider interface {
	Validate(doc []byte) error
	IsSection(name string) bool
}

// Coordinator sequences charter updates.
type Coordinator struct {
	store   store.Store
	schema  SchemaProvider
	metrics *metrics.Metrics
	logger  *slog.Logger
	timeout time.Duration
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithMetrics records update outcomes on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Coordinator) { c.metrics = m }
}

// WithLogger replaces slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) { c.logger = l }
}

// WithTimeout bounds each call. Zero means no bound beyond the caller's context.
func WithTimeout(d time.Duration) Option {
	return func(c *Coordinator) { c.timeout = d }
}

// New returns a Coordinator writing to s and validating with schema.
func New(s store.Store, schema SchemaProvider, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:  s,
		schema: schema,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// UpdateRequest is one edit of a charter. Document is the full charter and
// may contain any nested Go values the sanitizer understands.
type UpdateRequest struct {
	CharterID   string  `json:"charter_id"`
	UserID      string  `json:"user_id"`
	Document    any     `json:"document"`
	SectionName string  `json:"section_name,omitempty"`
	OutputRef   *string `json:"output_ref,omitempty"`

	// ExpectedVersion, when set, must equal the charter's latest version
	// number or the update fails with KindConflict. Nil keeps
	// last-write-wins.
	ExpectedVersion *int `json:"expected_version,omitempty"`
}

// UpdateResult describes a committed update.
type UpdateResult struct {
	CharterID      string  `json:"charter_id"`
	SectionUpdated *string `json:"section_updated"`
	VersionID      int     `json:"version_id"`
	Message        string  `json:"message"`

	Charter *model.Charter        `json:"-"`
	Version *model.CharterVersion `json:"-"`
}

// ApplyUpdate validates req, then writes the charter, the named section (if
// any) and a new version snapshot atomically. Every error is an *Error; on
// error nothing was committed.
func (c *Coordinator) ApplyUpdate(ctx context.Context, req UpdateRequest) (*UpdateResult, error) {
	start := time.Now()
	res, err := c.applyUpdate(ctx, req)
	elapsed := time.Since(start)

	if err != nil {
		kind := KindOf(err)
		c.metrics.ObserveUpdate(string(kind), elapsed)
		level := slog.LevelWarn
		if kind == KindPersistence {
			level = slog.LevelError
		}
		c.logger.Log(ctx, level, "charter update failed",
			"charter_id", req.CharterID,
			"user_id", req.UserID,
			"section", req.SectionName,
			"kind", string(kind),
			"error", err)
		return nil, err
	}

	c.metrics.ObserveUpdate("ok", elapsed)
	c.logger.Info("charter updated",
		"charter_id", res.CharterID,
		"user_id", req.UserID,
		"section", req.SectionName,
		"version", res.VersionID,
		"duration", elapsed)
	return res, nil
}

func (c *Coordinator) applyUpdate(ctx context.Context, req UpdateRequest) (*UpdateResult, error) {
	if req.CharterID == "" {
		return nil, newError(KindValidation, nil, "charter_id is required")
	}
	if req.UserID == "" {
		return nil, newError(KindValidation, nil, "user_id is required")
	}

	doc, canonical, err := c.prepareDocument(req.Document)
	if err != nil {
		return nil, err
	}

	var section *model.CharterSection
	if req.SectionName != "" {
		if !c.schema.IsSection(req.SectionName) {
			return nil, newError(KindInvalidSection, nil, "%q is not a recognized section", req.SectionName)
		}
		sub, ok := doc[req.SectionName]
		if !ok {
			return nil, newError(KindValidation, nil, "document has no %q field", req.SectionName)
		}
		body, err := sanitize.Canonical(sub)
		if err != nil {
			return nil, newError(KindValidation, err, "section %s cannot be encoded", req.SectionName)
		}
		section = &model.CharterSection{
			CharterID:   req.CharterID,
			Name:        model.SectionName(req.SectionName),
			SectionJSON: body,
			UpdatedBy:   req.UserID,
		}
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var (
		updated *model.Charter
		version *model.CharterVersion
		upsert  store.UpsertOutcome
	)
	err = c.store.RunInTransaction(ctx, func(tx store.Store) error {
		ch, err := tx.UpdateCharter(ctx, req.CharterID, canonical, req.UserID, req.OutputRef)
		if errors.Is(err, sql.ErrNoRows) {
			return newError(KindNotFound, nil, "charter %s not found", req.CharterID)
		}
		if err != nil {
			return newError(KindPersistence, err, "update charter %s", req.CharterID)
		}

		// The charter row is locked from here on, so the head cannot move.
		if req.ExpectedVersion != nil {
			head, err := tx.HeadVersion(ctx, req.CharterID)
			if err != nil {
				return newError(KindPersistence, err, "read head version")
			}
			if head != *req.ExpectedVersion {
				return newError(KindConflict, nil, "charter %s is at version %d, expected %d",
					req.CharterID, head, *req.ExpectedVersion)
			}
		}

		if section != nil {
			section.UpdatedAt = ch.LastModifiedAt
			upsert, err = store.UpsertSection(ctx, tx, section)
			if err != nil {
				return newError(KindPersistence, err, "upsert section %s", section.Name)
			}
		}

		v := &model.CharterVersion{
			CharterID:      req.CharterID,
			VersionBy:      req.UserID,
			VersionAt:      ch.LastModifiedAt,
			Snapshot:       canonical,
			SnapshotSHA256: sanitize.Digest(canonical),
		}
		if err := tx.AppendVersion(ctx, v); err != nil {
			return newError(KindPersistence, err, "append version")
		}

		updated, version = ch, v
		return nil
	})
	if err != nil {
		var ce *Error
		if errors.As(err, &ce) {
			return nil, ce
		}
		if ctx.Err() != nil {
			return nil, newError(KindPersistence, err, "update of %s did not complete in time", req.CharterID)
		}
		return nil, newError(KindPersistence, err, "update of %s was not committed", req.CharterID)
	}

	res := &UpdateResult{
		CharterID: req.CharterID,
		VersionID: version.Version,
		Message:   fmt.Sprintf("charter updated to version %d", version.Version),
		Charter:   updated,
		Version:   version,
	}
	if section != nil {
		name := string(section.Name)
		res.SectionUpdated = &name
		res.Message = fmt.Sprintf("charter updated to version %d; section %s saved", version.Version, name)
		c.metrics.ObserveSectionUpsert(upsert.String())
		if upsert == store.SectionRecovered {
			c.logger.Info("section insert lost a race; updated instead",
				"charter_id", req.CharterID, "section", name)
		}
	}
	return res, nil
}

// prepareDocument sanitizes raw into a JSON object and checks it against the
// schema. It returns the object and its canonical encoding.
func (c *Coordinator) prepareDocument(raw any) (map[string]any, []byte, error) {
	if raw == nil {
		return nil, nil, newError(KindValidation, nil, "document is required")
	}
	doc, err := sanitize.Document(raw)
	if err != nil {
		return nil, nil, newError(KindValidation, err, "document is not valid")
	}
	canonical, err := sanitize.Canonical(doc)
	if err != nil {
		return nil, nil, newError(KindValidation, err, "document cannot be encoded")
	}
	if err := c.schema.Validate(canonical); err != nil {
		return nil, nil, newError(KindValidation, err, "document does not match the charter schema")
	}
	return doc, canonical, nil
}
