package server

import (
	"net/http"

	"github.com/teranos/breg-harvester/browser"
)

// GET /api/browser/{facet...}?ext=1
func (s *HarvesterServer) handleBrowserTerms(w http.ResponseWriter, r *http.Request) {
	b, err := s.currentBrowser()
	if err != nil {
		handleError(w, s.log(r), err, "Browser unavailable")
		return
	}
	facet := browser.Facet(r.PathValue("facet"))
	terms, err := b.Terms(r.Context(), facet, queryFlag(r, "ext"))
	if err != nil {
		handleError(w, s.log(r), err, "Failed to list facet terms")
		return
	}
	writeJSON(w, http.StatusOK, terms)
}

type searchResponse struct {
	Datasets []browser.Dataset `json:"datasets"`
}

// POST /api/browser/dataset/search
func (s *HarvesterServer) handleDatasetSearch(w http.ResponseWriter, r *http.Request) {
	b, err := s.currentBrowser()
	if err != nil {
		handleError(w, s.log(r), err, "Browser unavailable")
		return
	}
	var req browser.SearchRequest
	if err := readJSON(r, &req); err != nil {
		handleError(w, s.log(r), err, "Invalid search request")
		return
	}
	datasets, err := b.Search(r.Context(), req)
	if err != nil {
		handleError(w, s.log(r), err, "Dataset search failed")
		return
	}
	writeJSON(w, http.StatusOK, searchResponse{Datasets: datasets})
}
