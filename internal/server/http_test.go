package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alfredjeanlab/charters/internal/model"
)

func doJSON(t *testing.T, handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != nil {
		b, _ := json.Marshal(body)
		req = httptest.NewRequest(method, path, bytes.NewReader(b))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func requireStatus(t *testing.T, rec *httptest.ResponseRecorder, code int) {
	t.Helper()
	if rec.Code != code {
		t.Fatalf("expected status %d, got %d; body: %s", code, rec.Code, rec.Body.String())
	}
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
}

type updateResponse struct {
	CharterID      string   `json:"charter_id"`
	SectionUpdated *string  `json:"section_updated"`
	VersionID      int      `json:"version_id"`
	Message        string   `json:"message"`
	OtherEditors   []string `json:"other_editors"`
}

func TestHandleHealth(t *testing.T) {
	env := newTestServer(t)
	rec := doJSON(t, env.handler, "GET", "/v1/health", nil)
	requireStatus(t, rec, 200)
	var body map[string]string
	decodeJSON(t, rec, &body)
	if body["status"] != "ok" {
		t.Fatalf("expected status=ok, got %q", body["status"])
	}
}

func TestHandleListSectionNames(t *testing.T) {
	env := newTestServer(t)
	rec := doJSON(t, env.handler, "GET", "/v1/sections", nil)
	requireStatus(t, rec, 200)
	var body struct {
		Sections []string `json:"sections"`
	}
	decodeJSON(t, rec, &body)
	if len(body.Sections) != len(model.DefaultSections) {
		t.Fatalf("expected %d sections, got %v", len(model.DefaultSections), body.Sections)
	}
}

func TestHandleCreateAndGetCharter(t *testing.T) {
	env := newTestServer(t)
	rec := doJSON(t, env.handler, "POST", "/v1/charters", map[string]any{
		"project_id":    "proj-1",
		"created_by":    "pipeline",
		"document":      map[string]any{"project_title": "Atlas", "objectives": []string{"a"}},
		"seed_sections": true,
	})
	requireStatus(t, rec, 201)
	var created struct {
		Charter  model.Charter `json:"charter"`
		Sections []string      `json:"sections"`
	}
	decodeJSON(t, rec, &created)
	if created.Charter.ID == "" || created.Charter.ProjectID != "proj-1" {
		t.Fatalf("unexpected charter: %+v", created.Charter)
	}
	if len(created.Sections) != 1 || created.Sections[0] != "objectives" {
		t.Fatalf("unexpected seeded sections: %v", created.Sections)
	}

	rec = doJSON(t, env.handler, "GET", "/v1/charters/"+created.Charter.ID, nil)
	requireStatus(t, rec, 200)
	var got model.Charter
	decodeJSON(t, rec, &got)
	if got.CreatedBy != "pipeline" {
		t.Fatalf("expected created_by=pipeline, got %q", got.CreatedBy)
	}

	rec = doJSON(t, env.handler, "GET", "/v1/charters", nil)
	requireStatus(t, rec, 200)
	var list struct {
		Charters []model.Charter `json:"charters"`
	}
	decodeJSON(t, rec, &list)
	if len(list.Charters) != 1 {
		t.Fatalf("expected 1 charter, got %d", len(list.Charters))
	}
}

func TestHandleUpdateCharter(t *testing.T) {
	env := newTestServer(t)
	id := env.seedCharter(t, map[string]any{"objectives": []any{"a"}})

	rec := doJSON(t, env.handler, "PUT", "/v1/charters/"+id, map[string]any{
		"user_id":      "alice",
		"document":     map[string]any{"objectives": []string{"a", "b"}},
		"section_name": "objectives",
	})
	requireStatus(t, rec, 200)
	var res updateResponse
	decodeJSON(t, rec, &res)
	if res.CharterID != id || res.VersionID != 1 || res.SectionUpdated == nil || *res.SectionUpdated != "objectives" {
		t.Fatalf("unexpected response: %+v", res)
	}
	if len(res.OtherEditors) != 0 {
		t.Fatalf("expected no other editors, got %v", res.OtherEditors)
	}

	// A second user sees alice as a concurrent editor.
	rec = doJSON(t, env.handler, "PUT", "/v1/charters/"+id, map[string]any{
		"user_id":  "bob",
		"document": map[string]any{"objectives": []string{"a", "b", "c"}},
	})
	requireStatus(t, rec, 200)
	decodeJSON(t, rec, &res)
	if res.VersionID != 2 || res.SectionUpdated != nil {
		t.Fatalf("unexpected response: %+v", res)
	}
	if len(res.OtherEditors) != 1 || res.OtherEditors[0] != "alice" {
		t.Fatalf("expected other_editors=[alice], got %v", res.OtherEditors)
	}
}

func TestHandleUpdateCharter_Errors(t *testing.T) {
	for _, tc := range []struct {
		name string
		id   string
		body any
		code int
		kind string
	}{
		{"NotFound", "ch-missing", map[string]any{"user_id": "u", "document": map[string]any{}}, 404, "NotFound"},
		{"MissingUser", "", map[string]any{"document": map[string]any{}}, 400, "ValidationError"},
		{"MissingDocument", "", map[string]any{"user_id": "u"}, 400, "ValidationError"},
		{"NullDocument", "", map[string]any{"user_id": "u", "document": nil}, 400, "ValidationError"},
		{"SchemaViolation", "", map[string]any{"user_id": "u", "document": map[string]any{"objectives": 7}}, 400, "ValidationError"},
		{"UnknownSection", "", map[string]any{"user_id": "u", "document": map[string]any{}, "section_name": "budget_details"}, 400, "InvalidSection"},
		{"StaleVersion", "", map[string]any{"user_id": "u", "document": map[string]any{}, "expected_version": 3}, 409, "Conflict"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestServer(t)
			id := tc.id
			if id == "" {
				id = env.seedCharter(t, map[string]any{})
			}
			rec := doJSON(t, env.handler, "PUT", "/v1/charters/"+id, tc.body)
			requireStatus(t, rec, tc.code)
			var body errorBody
			decodeJSON(t, rec, &body)
			if body.Error != tc.kind {
				t.Fatalf("expected error=%q, got %q (%s)", tc.kind, body.Error, body.Message)
			}
			if body.Retryable {
				t.Fatal("client errors must not be retryable")
			}
		})
	}
}

func TestHandleUpdateCharter_ValidationFields(t *testing.T) {
	env := newTestServer(t)
	id := env.seedCharter(t, map[string]any{})
	rec := doJSON(t, env.handler, "PUT", "/v1/charters/"+id, map[string]any{
		"user_id": "u", "document": map[string]any{"objectives": "not a list"},
	})
	requireStatus(t, rec, 400)
	var body errorBody
	decodeJSON(t, rec, &body)
	found := false
	for _, f := range body.Fields {
		if strings.Contains(f.Field, "objectives") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a field error for objectives, got %+v", body.Fields)
	}
}

func TestHandleUpdateCharter_PersistenceIsRetryable(t *testing.T) {
	env := newTestServer(t)
	id := env.seedCharter(t, map[string]any{})
	env.store.Close()

	rec := doJSON(t, env.handler, "PUT", "/v1/charters/"+id, map[string]any{
		"user_id": "u", "document": map[string]any{},
	})
	requireStatus(t, rec, 503)
	var body errorBody
	decodeJSON(t, rec, &body)
	if body.Error != "PersistenceError" || !body.Retryable {
		t.Fatalf("expected retryable PersistenceError, got %+v", body)
	}
}

func TestHandleUpdateCharter_InvalidJSON(t *testing.T) {
	env := newTestServer(t)
	req := httptest.NewRequest("PUT", "/v1/charters/ch-x", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	requireStatus(t, rec, 400)
}

func TestHandleSections(t *testing.T) {
	env := newTestServer(t)
	id := env.seedCharter(t, map[string]any{})
	doJSON(t, env.handler, "PUT", "/v1/charters/"+id, map[string]any{
		"user_id": "u", "document": map[string]any{"timeline": map[string]any{"phase_1": "2w"}}, "section_name": "timeline",
	})

	rec := doJSON(t, env.handler, "GET", "/v1/charters/"+id+"/sections", nil)
	requireStatus(t, rec, 200)
	var list struct {
		Sections []model.CharterSection `json:"sections"`
	}
	decodeJSON(t, rec, &list)
	if len(list.Sections) != 1 || list.Sections[0].Name != model.SectionTimeline {
		t.Fatalf("unexpected sections: %+v", list.Sections)
	}

	rec = doJSON(t, env.handler, "GET", "/v1/charters/"+id+"/sections/timeline", nil)
	requireStatus(t, rec, 200)
	var sec model.CharterSection
	decodeJSON(t, rec, &sec)
	if string(sec.SectionJSON) != `{"phase_1":"2w"}` || sec.UpdatedBy != "u" {
		t.Fatalf("unexpected section: %+v", sec)
	}

	requireStatus(t, doJSON(t, env.handler, "GET", "/v1/charters/"+id+"/sections/objectives", nil), 404)
	requireStatus(t, doJSON(t, env.handler, "GET", "/v1/charters/"+id+"/sections/budget_details", nil), 400)
	requireStatus(t, doJSON(t, env.handler, "GET", "/v1/charters/ch-missing/sections", nil), 404)
}

func TestHandleVersions(t *testing.T) {
	env := newTestServer(t)
	id := env.seedCharter(t, map[string]any{})
	for _, title := range []string{"one", "two", "three"} {
		rec := doJSON(t, env.handler, "PUT", "/v1/charters/"+id, map[string]any{
			"user_id": "u", "document": map[string]any{"project_title": title},
		})
		requireStatus(t, rec, 200)
	}

	rec := doJSON(t, env.handler, "GET", "/v1/charters/"+id+"/versions?limit=2", nil)
	requireStatus(t, rec, 200)
	var list struct {
		Versions []model.CharterVersion `json:"versions"`
		Total    int                    `json:"total"`
	}
	decodeJSON(t, rec, &list)
	if list.Total != 3 || len(list.Versions) != 2 || list.Versions[0].Version != 3 {
		t.Fatalf("unexpected page: total=%d versions=%+v", list.Total, list.Versions)
	}

	rec = doJSON(t, env.handler, "GET", "/v1/charters/"+id+"/versions?order=asc", nil)
	requireStatus(t, rec, 200)
	decodeJSON(t, rec, &list)
	if len(list.Versions) != 3 || list.Versions[0].Version != 1 {
		t.Fatalf("unexpected ascending list: %+v", list.Versions)
	}

	rec = doJSON(t, env.handler, "GET", "/v1/charters/"+id+"/versions/2", nil)
	requireStatus(t, rec, 200)
	var v model.CharterVersion
	decodeJSON(t, rec, &v)
	if string(v.Snapshot) != `{"project_title":"two"}` {
		t.Fatalf("unexpected snapshot: %s", v.Snapshot)
	}

	for _, path := range []string{
		"/v1/charters/" + id + "/versions?limit=-1",
		"/v1/charters/" + id + "/versions?offset=x",
		"/v1/charters/" + id + "/versions?order=sideways",
		"/v1/charters/" + id + "/versions/0",
		"/v1/charters/" + id + "/versions/abc",
	} {
		requireStatus(t, doJSON(t, env.handler, "GET", path, nil), 400)
	}
	requireStatus(t, doJSON(t, env.handler, "GET", "/v1/charters/"+id+"/versions/9", nil), 404)
	requireStatus(t, doJSON(t, env.handler, "GET", "/v1/charters/ch-missing/versions", nil), 404)
}

func TestHandleEditorsAndEvents(t *testing.T) {
	env := newTestServer(t)
	id := env.seedCharter(t, map[string]any{})
	doJSON(t, env.handler, "PUT", "/v1/charters/"+id, map[string]any{"user_id": "alice", "document": map[string]any{}})

	rec := doJSON(t, env.handler, "GET", "/v1/charters/"+id+"/editors?window=1h", nil)
	requireStatus(t, rec, 200)
	var editors struct {
		Editors []struct {
			UserID string `json:"user_id"`
		} `json:"editors"`
		Window string `json:"window"`
	}
	decodeJSON(t, rec, &editors)
	if len(editors.Editors) != 1 || editors.Editors[0].UserID != "alice" || editors.Window != "1h0m0s" {
		t.Fatalf("unexpected editors: %+v", editors)
	}
	requireStatus(t, doJSON(t, env.handler, "GET", "/v1/charters/"+id+"/editors?window=soon", nil), 400)

	rec = doJSON(t, env.handler, "GET", "/v1/charters/"+id+"/events", nil)
	requireStatus(t, rec, 200)
	var evts struct {
		Events []model.Event `json:"events"`
	}
	decodeJSON(t, rec, &evts)
	if len(evts.Events) != 2 {
		t.Fatalf("expected created+updated events, got %d", len(evts.Events))
	}
	if evts.Events[0].Topic != "charters.charter.updated" {
		t.Fatalf("expected newest event first, got %q", evts.Events[0].Topic)
	}
}

func TestHandleEmptyLists(t *testing.T) {
	env := newTestServer(t)
	id := env.seedCharter(t, map[string]any{})
	for _, tc := range []struct {
		path string
		key  string
	}{
		{"/v1/charters/" + id + "/sections", "sections"},
		{"/v1/charters/" + id + "/versions", "versions"},
		{"/v1/charters/ch-none/events", "events"},
	} {
		rec := doJSON(t, env.handler, "GET", tc.path, nil)
		requireStatus(t, rec, 200)
		var body map[string]json.RawMessage
		decodeJSON(t, rec, &body)
		if string(body[tc.key]) != "[]" {
			t.Fatalf("%s: expected %s=[], got %s", tc.path, tc.key, body[tc.key])
		}
	}
}

func TestHandleMetrics(t *testing.T) {
	env := newTestServer(t)
	id := env.seedCharter(t, map[string]any{})
	doJSON(t, env.handler, "PUT", "/v1/charters/"+id, map[string]any{"user_id": "u", "document": map[string]any{}})

	rec := doJSON(t, env.handler, "GET", "/metrics", nil)
	requireStatus(t, rec, 200)
	if !strings.Contains(rec.Body.String(), `charters_updates_total{outcome="ok"} 1`) {
		t.Fatalf("expected update counter in metrics output, got:\n%s", rec.Body.String())
	}
}

func TestHandler_RequiresToken(t *testing.T) {
	env := newTestServer(t)
	h := env.srv.NewHTTPHandler("secret")

	requireStatus(t, doJSON(t, h, "GET", "/v1/health", nil), 200)
	requireStatus(t, doJSON(t, h, "GET", "/v1/charters", nil), 401)

	req := httptest.NewRequest("GET", "/v1/charters", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	requireStatus(t, rec, 200)
}
