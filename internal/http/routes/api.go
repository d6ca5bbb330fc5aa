package routes

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/briangreenhill/communitysite/internal/content"
)

const maxJSONBytes = 1 << 20

func (s *Server) apiManager(w http.ResponseWriter, r *http.Request) (content.Manager, bool) {
	m, err := s.Catalog.Lookup(chi.URLParam(r, "domain"))
	if err != nil {
		writeJSONError(w, r, err)
		return nil, false
	}
	return m, true
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBytes))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %w", content.ErrInvalid, err)
	}
	return nil
}

// apiList returns a domain's items. With ?page= the result is a paginated
// envelope read straight from the database; otherwise it is the cached list
// for ?location=.
func (s *Server) apiList(w http.ResponseWriter, r *http.Request) {
	m, ok := s.apiManager(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()

	if raw := q.Get("page"); raw != "" {
		page, err := strconv.Atoi(raw)
		if err != nil {
			writeJSONError(w, r, fmt.Errorf("%w: page must be a number", content.ErrInvalid))
			return
		}
		size, _ := strconv.Atoi(q.Get("size"))
		p, err := m.RecordPage(r.Context(), page, size)
		if err != nil {
			writeJSONError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusOK, map[string]any{
			"items": p.Items,
			"total": p.Total,
			"page":  p.Page,
			"size":  p.Size,
			"pages": p.Pages(),
		})
		return
	}

	loc, err := content.ParseLocation(q.Get("location"))
	if err != nil {
		writeJSONError(w, r, err)
		return
	}
	items, err := m.Records(r.Context(), loc)
	if err != nil {
		writeJSONError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"items": items})
}

func (s *Server) apiGet(w http.ResponseWriter, r *http.Request) {
	m, ok := s.apiManager(w, r)
	if !ok {
		return
	}
	rec, err := m.Record(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeJSONError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, rec)
}

func (s *Server) apiCreate(w http.ResponseWriter, r *http.Request) {
	m, ok := s.apiManager(w, r)
	if !ok {
		return
	}
	var row map[string]any
	if err := decodeJSON(w, r, &row); err != nil {
		writeJSONError(w, r, err)
		return
	}
	rec, err := m.CreateFrom(r.Context(), row)
	if err != nil {
		writeJSONError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, rec)
}

func (s *Server) apiUpdate(w http.ResponseWriter, r *http.Request) {
	m, ok := s.apiManager(w, r)
	if !ok {
		return
	}
	var row map[string]any
	if err := decodeJSON(w, r, &row); err != nil {
		writeJSONError(w, r, err)
		return
	}
	rec, err := m.UpdateFrom(r.Context(), chi.URLParam(r, "id"), row)
	if err != nil {
		writeJSONError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, rec)
}

func (s *Server) apiDelete(w http.ResponseWriter, r *http.Request) {
	m, ok := s.apiManager(w, r)
	if !ok {
		return
	}
	if err := m.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeJSONError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type reorderRequest struct {
	IDs []string `json:"ids"`
}

// apiReorder applies a full ordering. The response always carries the list
// the client should now display, including after a rollback.
func (s *Server) apiReorder(w http.ResponseWriter, r *http.Request) {
	m, ok := s.apiManager(w, r)
	if !ok {
		return
	}
	var req reorderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSONError(w, r, err)
		return
	}
	items, state, err := m.ArrangeIDs(r.Context(), req.IDs)
	if err != nil {
		status := errorStatus(err)
		body := map[string]any{"error": err.Error(), "state": state.String()}
		if len(items) > 0 {
			body["items"] = items
		}
		writeJSON(w, r, status, body)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"items": items, "state": state.String()})
}
