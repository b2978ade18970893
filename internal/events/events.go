// Package events defines charter event topics and the publishers that carry
// them to NATS.
package events

import (
	"context"

	"github.com/alfredjeanlab/charters/internal/model"
)

// Event topics. Subscribers may use NATS wildcards such as "charters.>".
const (
	TopicCharterCreated = "charters.charter.created"
	TopicCharterUpdated = "charters.charter.updated"
)

// CharterIDHeader carries the charter id on published NATS messages.
const CharterIDHeader = "Charters-Charter-Id"

// CharterCreated is emitted once when the generation pipeline stores a new charter.
type CharterCreated struct {
	Charter  *model.Charter      `json:"charter"`
	Sections []model.SectionName `json:"sections,omitempty"`
}

func (e CharterCreated) EventCharterID() string {
	if e.Charter == nil {
		return ""
	}
	return e.Charter.ID
}

// CharterUpdated is emitted after an update commits. It carries the version
// metadata, not the document.
type CharterUpdated struct {
	CharterID      string `json:"charter_id"`
	Version        int    `json:"version"`
	SectionUpdated string `json:"section_updated,omitempty"`
	UpdatedBy      string `json:"updated_by"`
	SnapshotSHA256 string `json:"snapshot_sha256"`
	At             string `json:"at"` // RFC 3339 commit time
}

func (e CharterUpdated) EventCharterID() string { return e.CharterID }

// keyed is implemented by events that belong to a single charter.
type keyed interface {
	EventCharterID() string
}

// Publisher emits events. Publish failures never roll back the change that
// produced the event.
type Publisher interface {
	Publish(ctx context.Context, topic string, event any) error
	Close() error
}

// NoopPublisher drops every event. The server uses it when no NATS URL is set.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, string, any) error { return nil }
func (NoopPublisher) Close() error                               { return nil }

// Message is one event as received from the bus.
type Message struct {
	Topic     string
	CharterID string // empty for events not tied to a charter
	Data      []byte // JSON payload
}

// Subscriber receives events from the bus.
type Subscriber interface {
	// Subscribe delivers messages whose topic matches pattern. The returned
	// cancel function unsubscribes and closes the channel.
	Subscribe(pattern string) (<-chan Message, func(), error)
	Close() error
}

// TopicLedgerExported is published after each ledger export run.
const TopicLedgerExported = "charters.ledger.exported"

// LedgerExported summarizes one export run. It is not tied to a charter.
type LedgerExported struct {
	Charters     int      `json:"charters"`
	Sections     int      `json:"sections"`
	Versions     int      `json:"versions"`
	Bytes        int      `json:"bytes"`
	SHA256       string   `json:"sha256"`
	Destinations []string `json:"destinations"`
	Failed       []string `json:"failed,omitempty"`
	At           string   `json:"at"`
}
