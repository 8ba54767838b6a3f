package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	es "github.com/elastic/go-elasticsearch/v8"

	"github.com/sakif/opsdash/internal/apperror"
)

const maxResults = 50

// Hit is one matching profile.
type Hit struct {
	UserID string  `json:"userId"`
	Score  float64 `json:"score"`
	ProfileDoc
}

type Searcher struct {
	es *es.Client
}

func NewSearcher(client *es.Client) *Searcher {
	return &Searcher{es: client}
}

// Search matches q against username, display name, bio and skills.
func (s *Searcher) Search(ctx context.Context, q string, limit int) ([]Hit, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return nil, apperror.ValidationFailed("q", "search query is required")
	}
	if limit <= 0 || limit > maxResults {
		limit = maxResults
	}

	query := map[string]any{
		"size": limit,
		"query": map[string]any{
			"multi_match": map[string]any{
				"query":  q,
				"fields": []string{"username^3", "display_name^2", "bio", "skills^2"},
			},
		},
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(query); err != nil {
		return nil, fmt.Errorf("search: encoding query: %w", err)
	}

	res, err := s.es.Search(
		s.es.Search.WithContext(ctx),
		s.es.Search.WithIndex(ProfilesIndex),
		s.es.Search.WithBody(&buf),
	)
	if err != nil {
		return nil, fmt.Errorf("search: querying: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, fmt.Errorf("search: querying: %s", res.Status())
	}

	var body struct {
		Hits struct {
			Hits []struct {
				ID     string     `json:"_id"`
				Score  float64    `json:"_score"`
				Source ProfileDoc `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("search: decoding response: %w", err)
	}

	hits := make([]Hit, 0, len(body.Hits.Hits))
	for _, h := range body.Hits.Hits {
		hits = append(hits, Hit{UserID: h.ID, Score: h.Score, ProfileDoc: h.Source})
	}
	return hits, nil
}
