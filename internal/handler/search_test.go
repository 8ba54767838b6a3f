package handler_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/opsdash/internal/apperror"
	"github.com/sakif/opsdash/internal/handler"
	"github.com/sakif/opsdash/internal/search"
)

type fakeSearcher struct {
	gotQuery string
	gotLimit int
	hits     []search.Hit
	err      error
}

func (f *fakeSearcher) Search(_ context.Context, q string, limit int) ([]search.Hit, error) {
	f.gotQuery, f.gotLimit = q, limit
	return f.hits, f.err
}

func TestSearchHandler(t *testing.T) {
	t.Run("not configured", func(t *testing.T) {
		h := handler.NewSearchHandler(nil)
		rr := httptest.NewRecorder()
		h.HandleSearch(rr, httptest.NewRequest(http.MethodGet, "/api/search/profiles?q=go", nil))

		assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
		assert.Equal(t, "unavailable", decode[handler.ErrorResponse](t, rr.Body).Error)
	})

	t.Run("passes query and limit", func(t *testing.T) {
		fake := &fakeSearcher{hits: []search.Hit{{UserID: "u1", Score: 1.5}}}
		h := handler.NewSearchHandler(fake)
		rr := httptest.NewRecorder()
		h.HandleSearch(rr, httptest.NewRequest(http.MethodGet, "/api/search/profiles?q=go&limit=5", nil))

		require.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "go", fake.gotQuery)
		assert.Equal(t, 5, fake.gotLimit)
		hits := decode[[]search.Hit](t, rr.Body)
		require.Len(t, hits, 1)
		assert.Equal(t, "u1", hits[0].UserID)
	})

	t.Run("validation error", func(t *testing.T) {
		h := handler.NewSearchHandler(&fakeSearcher{err: apperror.ValidationFailed("q", "search query is required")})
		rr := httptest.NewRecorder()
		h.HandleSearch(rr, httptest.NewRequest(http.MethodGet, "/api/search/profiles", nil))

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		res := decode[handler.ErrorResponse](t, rr.Body)
		assert.Equal(t, "q", res.Field)
	})

	t.Run("internal errors are not leaked", func(t *testing.T) {
		h := handler.NewSearchHandler(&fakeSearcher{err: errors.New("dial tcp 10.0.0.7:9200: refused")})
		rr := httptest.NewRecorder()
		h.HandleSearch(rr, httptest.NewRequest(http.MethodGet, "/api/search/profiles?q=go", nil))

		assert.Equal(t, http.StatusInternalServerError, rr.Code)
		assert.Equal(t, "An internal error occurred", decode[handler.ErrorResponse](t, rr.Body).Message)
	})
}
