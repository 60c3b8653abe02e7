package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/newsdesk/sentinel/pkg/domain"
	"github.com/newsdesk/sentinel/pkg/sentinel"
)

// draftResponse is the JSON shape of a draft on the admin API
type draftResponse struct {
	ID            int64     `json:"id"`
	TitleEN       string    `json:"title_en"`
	TitleKM       string    `json:"title_km,omitempty"`
	ContentEN     string    `json:"content_en"`
	ContentKM     string    `json:"content_km,omitempty"`
	Thumbnail     string    `json:"thumbnail,omitempty"`
	SourceName    string    `json:"source_name"`
	SourceURL     string    `json:"source_url"`
	RunID         string    `json:"run_id"`
	StagesApplied []string  `json:"stages_applied"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
}

// statusHandler returns the current run summary
func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	renderJSON(w, r, http.StatusOK, s.sentinel.Status())
}

// runHandler triggers an ingestion cycle and returns its summary. A cycle
// already in progress yields 409.
func (s *Server) runHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PersistOverride bool `json:"persist_override"`
	}
	if r.Body != nil && r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			renderError(w, r, fmt.Errorf("invalid request body"), http.StatusBadRequest)
			return
		}
	}

	summary, err := s.sentinel.RunOnce(r.Context(), sentinel.RunRequest{PersistOverride: req.PersistOverride})
	if err != nil {
		if errors.Is(err, sentinel.ErrRunInProgress) {
			renderError(w, r, err, http.StatusConflict)
			return
		}
		log.Printf("[ERROR] run failed: %v", err)
		renderError(w, r, err, http.StatusInternalServerError)
		return
	}

	renderJSON(w, r, http.StatusOK, summary)
}

// dataQualityHandler returns aggregate defect metrics over persisted drafts
func (s *Server) dataQualityHandler(w http.ResponseWriter, r *http.Request) {
	report, err := s.store.DataQuality(r.Context())
	if err != nil {
		log.Printf("[ERROR] data quality scan failed: %v", err)
		renderError(w, r, err, http.StatusInternalServerError)
		return
	}
	renderJSON(w, r, http.StatusOK, report)
}

// draftsHandler lists persisted drafts with limit/offset pagination
func (s *Server) draftsHandler(w http.ResponseWriter, r *http.Request) {
	limit := intQueryParam(r, "limit", 50)
	offset := intQueryParam(r, "offset", 0)
	if limit < 1 || limit > 200 {
		renderError(w, r, fmt.Errorf("limit must be between 1 and 200"), http.StatusBadRequest)
		return
	}
	if offset < 0 {
		renderError(w, r, fmt.Errorf("offset must not be negative"), http.StatusBadRequest)
		return
	}

	drafts, err := s.store.ListDrafts(r.Context(), limit, offset)
	if err != nil {
		log.Printf("[ERROR] failed to list drafts: %v", err)
		renderError(w, r, err, http.StatusInternalServerError)
		return
	}

	resp := make([]draftResponse, 0, len(drafts))
	for _, d := range drafts {
		resp = append(resp, toDraftResponse(d))
	}
	renderJSON(w, r, http.StatusOK, map[string]interface{}{
		"drafts": resp,
		"limit":  limit,
		"offset": offset,
	})
}

// intQueryParam reads an integer query parameter with a default
func intQueryParam(r *http.Request, name string, def int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// toDraftResponse converts a domain draft for the API
func toDraftResponse(d domain.NewsDraft) draftResponse {
	stages := d.Ingestion.StagesApplied
	if stages == nil {
		stages = []string{}
	}
	return draftResponse{
		ID:            d.ID,
		TitleEN:       d.Title.EN,
		TitleKM:       d.Title.KM,
		ContentEN:     d.Content.EN,
		ContentKM:     d.Content.KM,
		Thumbnail:     d.Thumbnail,
		SourceName:    d.Source.Name,
		SourceURL:     d.Source.URL,
		RunID:         d.Ingestion.RunID,
		StagesApplied: stages,
		Status:        string(d.Status),
		CreatedAt:     d.CreatedAt,
	}
}

// renderJSON sends data as JSON response
func renderJSON(w http.ResponseWriter, _ *http.Request, code int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			log.Printf("[ERROR] can't encode response to JSON: %v", err)
		}
	}
}

// renderError sends error response as JSON
func renderError(w http.ResponseWriter, r *http.Request, err error, code int) {
	errMsg := "unknown error"
	if err != nil {
		errMsg = err.Error()
	}
	renderJSON(w, r, code, map[string]string{"error": errMsg})
}
