package server

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	// replaySize is how many recent events a reconnecting client can catch
	// up on with Last-Event-ID.
	replaySize = 1000

	keepaliveInterval = 15 * time.Second

	clientBuffer = 64
)

// sseEvent is one committed charter event as sent on the stream.
type sseEvent struct {
	ID        uint64 // hub sequence number, used as the SSE id
	Topic     string
	CharterID string
	Data      []byte // JSON payload
}

func (e *sseEvent) writeTo(w io.Writer) {
	fmt.Fprintf(w, "id:%d\nevent:%s\ndata:%s\n\n", e.ID, e.Topic, e.Data)
}

// streamFilter selects the events a client receives. Zero value matches all.
type streamFilter struct {
	topics    []string // NATS-style patterns
	charterID string
}

func (f streamFilter) matches(evt *sseEvent) bool {
	if f.charterID != "" && f.charterID != evt.CharterID {
		return false
	}
	if len(f.topics) == 0 {
		return true
	}
	for _, p := range f.topics {
		if topicMatch(p, evt.Topic) {
			return true
		}
	}
	return false
}

// topicMatch compares dot-separated subjects. "*" matches one segment and a
// trailing ">" matches one or more.
func topicMatch(pattern, topic string) bool {
	for {
		p, pRest, pMore := strings.Cut(pattern, ".")
		if p == ">" {
			return topic != ""
		}
		t, tRest, tMore := strings.Cut(topic, ".")
		if topic == "" || (p != "*" && p != t) {
			return false
		}
		if !pMore || !tMore {
			return pMore == tMore
		}
		pattern, topic = pRest, tRest
	}
}

// replayBuffer keeps the last replaySize events in sequence order.
type replayBuffer struct {
	mu     sync.Mutex
	events []sseEvent
	start  int // index of the oldest event once the buffer is full
}

func (b *replayBuffer) push(evt sseEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.events) < replaySize {
		b.events = append(b.events, evt)
		return
	}
	b.events[b.start] = evt
	b.start = (b.start + 1) % replaySize
}

// after returns the buffered events with ID > lastID, oldest first.
func (b *replayBuffer) after(lastID uint64) []*sseEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []*sseEvent
	for i := range b.events {
		evt := b.events[(b.start+i)%len(b.events)]
		if evt.ID > lastID {
			out = append(out, &evt)
		}
	}
	return out
}

type sseClient struct {
	filter streamFilter
	ch     chan *sseEvent
}

// sseHub fans committed charter events out to connected stream clients.
type sseHub struct {
	mu      sync.Mutex
	clients map[*sseClient]struct{}
	seq     uint64 // guarded by mu
	replay  replayBuffer
}

func newSSEHub() *sseHub {
	return &sseHub{clients: make(map[*sseClient]struct{})}
}

// broadcast assigns the next sequence number to an event and delivers it to
// matching clients. A client whose buffer is full misses the event.
func (h *sseHub) broadcast(topic, charterID string, payload []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.seq++
	evt := &sseEvent{ID: h.seq, Topic: topic, CharterID: charterID, Data: payload}
	h.replay.push(*evt)

	for c := range h.clients {
		if !c.filter.matches(evt) {
			continue
		}
		select {
		case c.ch <- evt:
		default:
			slog.Debug("sse client too slow, event dropped", "topic", topic, "charter_id", charterID, "id", evt.ID)
		}
	}
}

func (h *sseHub) subscribe(f streamFilter) *sseClient {
	c := &sseClient{filter: f, ch: make(chan *sseEvent, clientBuffer)}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	return c
}

func (h *sseHub) unsubscribe(c *sseClient) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
}

func (h *sseHub) since(lastID uint64) []*sseEvent {
	return h.replay.after(lastID)
}

// parseStreamFilter reads ?topics=a,b and ?charter=id.
func parseStreamFilter(r *http.Request) streamFilter {
	q := r.URL.Query()
	var f streamFilter
	for _, t := range strings.Split(q.Get("topics"), ",") {
		if t = strings.TrimSpace(t); t != "" {
			f.topics = append(f.topics, t)
		}
	}
	f.charterID = q.Get("charter")
	return f
}

// lastEventID reads the Last-Event-ID header, falling back to the
// last_event_id query parameter for clients that cannot set headers.
func lastEventID(r *http.Request) (uint64, bool) {
	v := r.Header.Get("Last-Event-ID")
	if v == "" {
		v = r.URL.Query().Get("last_event_id")
	}
	if v == "" {
		return 0, false
	}
	id, err := strconv.ParseUint(v, 10, 64)
	return id, err == nil
}

// handleEventStream handles GET /v1/events/stream.
func (s *CharterServer) handleEventStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	client := s.sseHub.subscribe(parseStreamFilter(r))
	defer s.sseHub.unsubscribe(client)

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	// Events replayed here may also arrive on client.ch; skip those by id.
	var sent uint64
	if lastID, ok := lastEventID(r); ok {
		for _, evt := range s.sseHub.since(lastID) {
			if client.filter.matches(evt) {
				evt.writeTo(w)
				sent = evt.ID
			}
		}
		flusher.Flush()
	}

	keepalive := time.NewTicker(keepaliveInterval)
	defer keepalive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case evt := <-client.ch:
			if evt.ID <= sent {
				continue
			}
			evt.writeTo(w)
			flusher.Flush()
		case <-keepalive.C:
			fmt.Fprint(w, ":keepalive\n\n")
			flusher.Flush()
		}
	}
}
