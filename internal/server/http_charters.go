package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/alfredjeanlab/charters/internal/charter"
	"github.com/alfredjeanlab/charters/internal/model"
)

// updateCharterInput is the body of PUT /v1/charters/{id}.
type updateCharterInput struct {
	UserID          string          `json:"user_id"`
	Document        json.RawMessage `json:"document"`
	SectionName     string          `json:"section_name,omitempty"`
	OutputRef       *string         `json:"output_ref,omitempty"`
	ExpectedVersion *int            `json:"expected_version,omitempty"`
}

// updateCharterOutput adds the other recent editors to the update result so
// callers can tell when someone else is editing the same charter.
type updateCharterOutput struct {
	*charter.UpdateResult
	OtherEditors []string `json:"other_editors,omitempty"`
}

// createCharterInput is the body of POST /v1/charters.
type createCharterInput struct {
	ProjectID    string          `json:"project_id,omitempty"`
	CreatedBy    string          `json:"created_by"`
	Document     json.RawMessage `json:"document"`
	OutputRef    string          `json:"output_ref,omitempty"`
	SeedSections bool            `json:"seed_sections,omitempty"`
}

// document turns an absent or null body field into a nil document so the
// coordinator reports it as missing.
func document(raw json.RawMessage) any {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return raw
}

// handleListSectionNames handles GET /v1/sections.
func (s *CharterServer) handleListSectionNames(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"sections": s.sections.Sections()})
}

// handleCreateCharter handles POST /v1/charters.
func (s *CharterServer) handleCreateCharter(w http.ResponseWriter, r *http.Request) {
	var in createCharterInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	res, err := s.createCharter(r.Context(), charter.CreateRequest{
		ProjectID:    in.ProjectID,
		CreatedBy:    in.CreatedBy,
		Document:     document(in.Document),
		OutputRef:    in.OutputRef,
		SeedSections: in.SeedSections,
	})
	if err != nil {
		writeCharterError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// handleListCharters handles GET /v1/charters.
func (s *CharterServer) handleListCharters(w http.ResponseWriter, r *http.Request) {
	charters, err := s.store.ListCharters(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if charters == nil {
		charters = []*model.Charter{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"charters": charters})
}

// handleGetCharter handles GET /v1/charters/{id}.
func (s *CharterServer) handleGetCharter(w http.ResponseWriter, r *http.Request) {
	ch, err := s.store.GetCharter(r.Context(), r.PathValue("id"))
	if err != nil {
		writeStoreError(w, err, "charter")
		return
	}
	writeJSON(w, http.StatusOK, ch)
}

// handleUpdateCharter handles PUT /v1/charters/{id}.
func (s *CharterServer) handleUpdateCharter(w http.ResponseWriter, r *http.Request) {
	var in updateCharterInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	id := r.PathValue("id")
	res, err := s.updateCharter(r.Context(), charter.UpdateRequest{
		CharterID:       id,
		UserID:          in.UserID,
		Document:        document(in.Document),
		SectionName:     in.SectionName,
		OutputRef:       in.OutputRef,
		ExpectedVersion: in.ExpectedVersion,
	})
	if err != nil {
		writeCharterError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, updateCharterOutput{
		UpdateResult: res,
		OtherEditors: s.Presence.OtherEditors(id, in.UserID, s.PresenceWindow),
	})
}

// handleListSections handles GET /v1/charters/{id}/sections.
func (s *CharterServer) handleListSections(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.store.GetCharter(r.Context(), id); err != nil {
		writeStoreError(w, err, "charter")
		return
	}
	sections, err := s.store.ListSections(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if sections == nil {
		sections = []*model.CharterSection{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"sections": sections})
}

// handleGetSection handles GET /v1/charters/{id}/sections/{name}.
func (s *CharterServer) handleGetSection(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if !s.sections.IsSection(name) {
		writeError(w, http.StatusBadRequest, "unknown section "+strconv.Quote(name))
		return
	}
	sec, err := s.store.GetSection(r.Context(), r.PathValue("id"), model.SectionName(name))
	if err != nil {
		writeStoreError(w, err, "section")
		return
	}
	writeJSON(w, http.StatusOK, sec)
}

// handleListVersions handles GET /v1/charters/{id}/versions.
func (s *CharterServer) handleListVersions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := model.VersionFilter{Descending: true}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		filter.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid offset")
			return
		}
		filter.Offset = n
	}
	switch q.Get("order") {
	case "", "desc":
	case "asc":
		filter.Descending = false
	default:
		writeError(w, http.StatusBadRequest, "order must be asc or desc")
		return
	}

	id := r.PathValue("id")
	if _, err := s.store.GetCharter(r.Context(), id); err != nil {
		writeStoreError(w, err, "charter")
		return
	}
	versions, total, err := s.store.ListVersions(r.Context(), id, filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if versions == nil {
		versions = []*model.CharterVersion{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"versions": versions, "total": total})
}

// handleGetVersion handles GET /v1/charters/{id}/versions/{version}.
func (s *CharterServer) handleGetVersion(w http.ResponseWriter, r *http.Request) {
	n, err := strconv.Atoi(r.PathValue("version"))
	if err != nil || n < 1 {
		writeError(w, http.StatusBadRequest, "version must be a positive integer")
		return
	}
	v, err := s.store.GetVersion(r.Context(), r.PathValue("id"), n)
	if err != nil {
		writeStoreError(w, err, "version")
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// handleListEditors handles GET /v1/charters/{id}/editors.
func (s *CharterServer) handleListEditors(w http.ResponseWriter, r *http.Request) {
	window := s.PresenceWindow
	if v := r.URL.Query().Get("window"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			writeError(w, http.StatusBadRequest, "invalid window")
			return
		}
		window = d
	}
	editors := s.Presence.Editors(r.PathValue("id"), window)
	writeJSON(w, http.StatusOK, map[string]any{"editors": editors, "window": window.String()})
}

// handleGetEvents handles GET /v1/charters/{id}/events.
func (s *CharterServer) handleGetEvents(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	evts, err := s.store.ListEvents(r.Context(), r.PathValue("id"), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if evts == nil {
		evts = []*model.Event{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": evts})
}
