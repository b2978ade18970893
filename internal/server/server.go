package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/alfredjeanlab/charters/internal/charter"
	"github.com/alfredjeanlab/charters/internal/events"
	"github.com/alfredjeanlab/charters/internal/metrics"
	"github.com/alfredjeanlab/charters/internal/model"
	"github.com/alfredjeanlab/charters/internal/presence"
	"github.com/alfredjeanlab/charters/internal/store"
)

// DefaultPresenceWindow is how far back GET /v1/charters/{id}/editors looks
// when the request does not say.
const DefaultPresenceWindow = 10 * time.Minute

// CharterServer serves the charter API over HTTP and reports health over gRPC.
type CharterServer struct {
	store       store.Store
	coordinator *charter.Coordinator
	sections    SectionLister
	publisher   events.Publisher
	sseHub      *sseHub

	Presence       *presence.Tracker
	PresenceWindow time.Duration
	Metrics        *metrics.Metrics // nil disables GET /metrics
}

// SectionLister reports the recognized section names.
type SectionLister interface {
	Sections() []model.SectionName
	IsSection(name string) bool
}

// NewCharterServer returns a CharterServer reading from s and writing through c.
func NewCharterServer(s store.Store, c *charter.Coordinator, sections SectionLister, p events.Publisher) *CharterServer {
	return &CharterServer{
		store:          s,
		coordinator:    c,
		sections:       sections,
		publisher:      p,
		sseHub:         newSSEHub(),
		Presence:       presence.New(),
		PresenceWindow: DefaultPresenceWindow,
	}
}

// recordAndPublish persists an event to the store and publishes it to NATS.
// It runs after the update has committed, so every step is best-effort;
// failures are logged but never undo or fail the update.
func (s *CharterServer) recordAndPublish(ctx context.Context, topic, charterID, actor string, event any) {
	payload, err := json.Marshal(event)
	if err != nil {
		slog.Warn("failed to marshal event", "topic", topic, "charter_id", charterID, "error", err)
		return
	}
	if err := s.store.RecordEvent(ctx, &model.Event{
		Topic:     topic,
		CharterID: charterID,
		Actor:     actor,
		Payload:   payload,
	}); err != nil {
		slog.Warn("failed to record event", "topic", topic, "charter_id", charterID, "error", err)
	}
	if err := s.publisher.Publish(ctx, topic, event); err != nil {
		slog.Warn("failed to publish event", "topic", topic, "charter_id", charterID, "error", err)
	}
	s.sseHub.broadcast(topic, charterID, payload)
}

// updateCharter applies one update and announces it.
func (s *CharterServer) updateCharter(ctx context.Context, req charter.UpdateRequest) (*charter.UpdateResult, error) {
	res, err := s.coordinator.ApplyUpdate(ctx, req)
	if err != nil {
		return nil, err
	}

	section := ""
	if res.SectionUpdated != nil {
		section = *res.SectionUpdated
	}
	s.Presence.RecordEdit(presence.Edit{
		CharterID: res.CharterID,
		UserID:    req.UserID,
		Section:   section,
		Version:   res.VersionID,
	})

	// The request context may already be cancelled by a disconnecting client;
	// the event must still go out.
	evtCtx := context.WithoutCancel(ctx)
	s.recordAndPublish(evtCtx, events.TopicCharterUpdated, res.CharterID, req.UserID, events.CharterUpdated{
		CharterID:      res.CharterID,
		Version:        res.VersionID,
		SectionUpdated: section,
		UpdatedBy:      req.UserID,
		SnapshotSHA256: res.Version.SnapshotSHA256,
		At:             res.Version.VersionAt.UTC().Format(time.RFC3339Nano),
	})
	return res, nil
}

// createCharter stores a charter from the generation pipeline and announces it.
func (s *CharterServer) createCharter(ctx context.Context, req charter.CreateRequest) (*charter.CreateResult, error) {
	res, err := s.coordinator.CreateCharter(ctx, req)
	if err != nil {
		return nil, err
	}
	s.recordAndPublish(context.WithoutCancel(ctx), events.TopicCharterCreated, res.Charter.ID, req.CreatedBy,
		events.CharterCreated{Charter: res.Charter, Sections: res.Sections})
	return res, nil
}
