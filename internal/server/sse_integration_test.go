package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// liveStream is an SSE connection to a running test server.
type liveStream struct {
	events <-chan wireEvent
}

// openStream connects to /v1/events/stream on a real listener. The
// connection is closed when the test ends.
func openStream(t *testing.T, baseURL, query string) *liveStream {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	target := baseURL + "/v1/events/stream"
	if query != "" {
		target += "?" + query
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type = %q", ct)
	}

	ch := make(chan wireEvent, 32)
	go func() {
		defer close(ch)
		sc := bufio.NewScanner(resp.Body)
		var cur wireEvent
		for sc.Scan() {
			line := sc.Text()
			if line == "" {
				if cur.event != "" {
					ch <- cur
				}
				cur = wireEvent{}
				continue
			}
			field, value, _ := strings.Cut(line, ":")
			switch field {
			case "id":
				cur.id = value
			case "event":
				cur.event = value
			case "data":
				cur.data = value
			}
		}
	}()

	// Give the handler time to subscribe before the test acts.
	time.Sleep(50 * time.Millisecond)
	return &liveStream{events: ch}
}

// next waits for the next event with the given topic, skipping others.
func (s *liveStream) next(t *testing.T, topic string) wireEvent {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case evt, ok := <-s.events:
			if !ok {
				t.Fatalf("stream closed before %s", topic)
			}
			if evt.event == topic {
				return evt
			}
		case <-deadline:
			t.Fatalf("no %s event within 2s", topic)
		}
	}
}

// quiet fails if any event arrives within d.
func (s *liveStream) quiet(t *testing.T, d time.Duration) {
	t.Helper()
	select {
	case evt := <-s.events:
		t.Fatalf("unexpected event %+v", evt)
	case <-time.After(d):
	}
}

func startIntegrationServer(t *testing.T) (*testEnv, string) {
	t.Helper()
	env := newTestServer(t)
	ts := httptest.NewServer(env.handler)
	t.Cleanup(ts.Close)
	return env, ts.URL
}

// call sends body as JSON, checks the status and decodes the reply into out
// when out is non-nil.
func call(t *testing.T, method, url string, body any, wantStatus int, out any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != wantStatus {
		t.Fatalf("%s %s: status %d, want %d", method, url, resp.StatusCode, wantStatus)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode reply: %v", err)
		}
	}
}

// createViaHTTP creates a charter through the API and returns its id.
func createViaHTTP(t *testing.T, serverURL string, doc map[string]any) string {
	t.Helper()
	var created struct {
		Charter struct {
			ID string `json:"charter_id"`
		} `json:"charter"`
	}
	call(t, "POST", serverURL+"/v1/charters", map[string]any{"created_by": "pipeline", "document": doc}, 201, &created)
	if created.Charter.ID == "" {
		t.Fatal("created charter has no id")
	}
	return created.Charter.ID
}

func TestSSEIntegration_CreateCharterTriggersEvent(t *testing.T) {
	_, url := startIntegrationServer(t)
	stream := openStream(t, url, "")

	id := createViaHTTP(t, url, map[string]any{"project_title": "Atlas"})

	evt := stream.next(t, "charters.charter.created")
	var payload struct {
		Charter struct {
			ID string `json:"charter_id"`
		} `json:"charter"`
	}
	if err := json.Unmarshal([]byte(evt.data), &payload); err != nil {
		t.Fatalf("event data: %v", err)
	}
	if payload.Charter.ID != id {
		t.Errorf("event charter = %q, want %q", payload.Charter.ID, id)
	}
	if evt.id == "" {
		t.Error("event has no id")
	}
}

func TestSSEIntegration_UpdateCharterTriggersEvent(t *testing.T) {
	_, url := startIntegrationServer(t)
	id := createViaHTTP(t, url, map[string]any{"objectives": []string{"a"}})
	stream := openStream(t, url, "")

	call(t, "PUT", url+"/v1/charters/"+id, map[string]any{
		"user_id":      "alice",
		"document":     map[string]any{"objectives": []string{"a", "b"}},
		"section_name": "objectives",
	}, 200, nil)

	var payload struct {
		CharterID      string `json:"charter_id"`
		Version        int    `json:"version"`
		SectionUpdated string `json:"section_updated"`
		UpdatedBy      string `json:"updated_by"`
	}
	if err := json.Unmarshal([]byte(stream.next(t, "charters.charter.updated").data), &payload); err != nil {
		t.Fatalf("event data: %v", err)
	}
	if payload.CharterID != id || payload.Version != 1 || payload.SectionUpdated != "objectives" || payload.UpdatedBy != "alice" {
		t.Fatalf("payload = %+v", payload)
	}
}

func TestSSEIntegration_RejectedUpdateSendsNothing(t *testing.T) {
	_, url := startIntegrationServer(t)
	id := createViaHTTP(t, url, map[string]any{})
	stream := openStream(t, url, "topics=charters.charter.updated")

	call(t, "PUT", url+"/v1/charters/"+id, map[string]any{
		"user_id": "alice", "document": map[string]any{}, "section_name": "not_a_section",
	}, 400, nil)

	stream.quiet(t, 200*time.Millisecond)
}

func TestSSEIntegration_CharterFilterOnlyReceivesMatching(t *testing.T) {
	_, url := startIntegrationServer(t)
	watched := createViaHTTP(t, url, map[string]any{})
	other := createViaHTTP(t, url, map[string]any{})
	stream := openStream(t, url, "charter="+watched)

	for _, id := range []string{other, watched} {
		call(t, "PUT", url+"/v1/charters/"+id, map[string]any{
			"user_id": "alice", "document": map[string]any{"project_title": id},
		}, 200, nil)
	}

	if evt := stream.next(t, "charters.charter.updated"); !strings.Contains(evt.data, watched) {
		t.Fatalf("event for wrong charter: %s", evt.data)
	}
	stream.quiet(t, 100*time.Millisecond)
}

func TestSSEIntegration_MultipleClientsReceiveSameEvents(t *testing.T) {
	_, url := startIntegrationServer(t)
	id := createViaHTTP(t, url, map[string]any{})
	all := openStream(t, url, "")
	scoped := openStream(t, url, "topics=charters.>")

	call(t, "PUT", url+"/v1/charters/"+id, map[string]any{"user_id": "bob", "document": map[string]any{}}, 200, nil)

	e1 := all.next(t, "charters.charter.updated")
	e2 := scoped.next(t, "charters.charter.updated")
	if e1 != e2 {
		t.Fatalf("clients saw different events: %+v vs %+v", e1, e2)
	}
}
