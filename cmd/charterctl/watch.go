package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/alfredjeanlab/charters/internal/events"
	"github.com/alfredjeanlab/charters/internal/model"
	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:     "watch [charter-id]",
	Short:   "Follow charter changes as they happen",
	GroupID: "history",
	Args:    cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		interval, _ := cmd.Flags().GetDuration("interval")
		natsURL, _ := cmd.Flags().GetString("nats")
		var charterID string
		if len(args) == 1 {
			charterID = args[0]
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		out := cmd.OutOrStdout()
		if natsURL != "" {
			return watchNATS(ctx, out, natsURL, charterID)
		}
		return watchPoll(ctx, out, interval, charterID)
	},
}

// watchedEvent covers the fields of both charter event payloads.
type watchedEvent struct {
	CharterID      string         `json:"charter_id"`
	Charter        *model.Charter `json:"charter"`
	Version        int            `json:"version"`
	SectionUpdated string         `json:"section_updated"`
	UpdatedBy      string         `json:"updated_by"`
}

func (e watchedEvent) charterID() string {
	if e.Charter != nil {
		return e.Charter.ID
	}
	return e.CharterID
}

func (e watchedEvent) String() string {
	if e.Charter != nil {
		return fmt.Sprintf("%s created by %s", e.Charter.ID, e.Charter.CreatedBy)
	}
	section := ""
	if e.SectionUpdated != "" {
		section = " [" + e.SectionUpdated + "]"
	}
	return fmt.Sprintf("%s version %d by %s%s", e.CharterID, e.Version, e.UpdatedBy, section)
}

// charterTopics matches the created and updated events.
const charterTopics = "charters.charter.>"

// watchNATS prints charter events from NATS as they arrive.
func watchNATS(ctx context.Context, out io.Writer, natsURL, charterID string) error {
	sub, err := events.NewNATSSubscriber(natsURL,
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("nats: disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			slog.Info("nats: reconnected")
		}),
	)
	if err != nil {
		return fmt.Errorf("connecting to NATS: %w", err)
	}
	defer sub.Close()

	ch, cancel, err := sub.Subscribe(charterTopics)
	if err != nil {
		return fmt.Errorf("subscribing to events: %w", err)
	}
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var evt watchedEvent
			if err := json.Unmarshal(msg.Data, &evt); err != nil {
				slog.Debug("skipping undecodable event", "topic", msg.Topic, "error", err)
				continue
			}
			id := msg.CharterID
			if id == "" {
				id = evt.charterID()
			}
			if charterID != "" && id != charterID {
				continue
			}
			if jsonOutput {
				fmt.Fprintln(out, string(msg.Data))
				continue
			}
			fmt.Fprintf(out, "%s %s\n", time.Now().Format(timeLayout), evt)
		}
	}
}

// watchPoll lists charters every interval and prints the ones whose
// modification time moved.
func watchPoll(ctx context.Context, out io.Writer, interval time.Duration, charterID string) error {
	seen := make(map[string]time.Time)
	first := true
	for {
		charters, err := charterClient.ListCharters(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		changed := diffCharters(charters, seen, charterID)
		if !first && len(changed) > 0 {
			if jsonOutput {
				if err := printJSON(out, changed); err != nil {
					return err
				}
			} else {
				for _, c := range changed {
					fmt.Fprintf(out, "%s %s modified by %s\n", formatTime(c.LastModifiedAt), c.ID, c.LastModifiedBy)
				}
			}
		}
		first = false

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(interval):
		}
	}
}

// diffCharters returns the charters that are new or have a different
// last_modified_at than last seen, and records them in seen. A non-empty
// charterID restricts the result to that charter.
func diffCharters(charters []*model.Charter, seen map[string]time.Time, charterID string) []*model.Charter {
	var changed []*model.Charter
	for _, c := range charters {
		if charterID != "" && c.ID != charterID {
			continue
		}
		prev, ok := seen[c.ID]
		if !ok || !c.LastModifiedAt.Equal(prev) {
			changed = append(changed, c)
		}
		seen[c.ID] = c.LastModifiedAt
	}
	return changed
}

func defaultNATSURL() string {
	if s := os.Getenv("CHARTERS_NATS_URL"); s != "" {
		return s
	}
	return activeRemoteNATSURL()
}

func init() {
	watchCmd.Flags().Duration("interval", 5*time.Second, "polling interval when NATS is not configured")
	watchCmd.Flags().String("nats", defaultNATSURL(), "NATS URL; when empty the server is polled")
}
