package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/sakif/opsdash/internal/apperror"
	"github.com/sakif/opsdash/internal/search"
)

// ProfileSearcher is implemented by *search.Searcher.
type ProfileSearcher interface {
	Search(ctx context.Context, q string, limit int) ([]search.Hit, error)
}

// SearchHandler answers profile search. With no searcher configured every
// request is a 503.
type SearchHandler struct {
	searcher ProfileSearcher
}

func NewSearchHandler(searcher ProfileSearcher) *SearchHandler {
	return &SearchHandler{searcher: searcher}
}

// HandleSearch handles GET /api/search/profiles?q=go&limit=10
func (h *SearchHandler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	if h.searcher == nil {
		writeError(w, apperror.Unavailable("profile search is not configured"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	hits, err := h.searcher.Search(r.Context(), r.URL.Query().Get("q"), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	if hits == nil {
		hits = []search.Hit{}
	}
	writeJSON(w, http.StatusOK, hits)
}
