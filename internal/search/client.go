// Package search keeps a profile directory in Elasticsearch. Profile
// changes are queued in the store's outbox and a Worker drains the queue
// into the index with the bulk API.
package search

import (
	"bytes"
	"context"
	"fmt"

	es "github.com/elastic/go-elasticsearch/v8"
)

// ProfilesIndex holds one document per user, keyed by user ID.
const ProfilesIndex = "profiles_v1"

const profilesMapping = `{"settings":{"number_of_shards":1},"mappings":{"dynamic":"strict","properties":{
	"username":{"type":"keyword"},"display_name":{"type":"text"},"bio":{"type":"text"},
	"avatar_url":{"type":"keyword","index":false},"skills":{"type":"keyword"},"updated_at":{"type":"date"}
}}}`

// NewClient connects to the cluster at url.
func NewClient(url string) (*es.Client, error) {
	c, err := es.NewClient(es.Config{Addresses: []string{url}})
	if err != nil {
		return nil, fmt.Errorf("search: creating client: %w", err)
	}
	return c, nil
}

// EnsureIndex creates the profiles index unless it exists.
func EnsureIndex(ctx context.Context, c *es.Client) error {
	return ensure(ctx, c, ProfilesIndex, profilesMapping)
}

func ensure(ctx context.Context, c *es.Client, index, body string) error {
	exists, err := c.Indices.Exists([]string{index}, c.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("search: checking index %s: %w", index, err)
	}
	exists.Body.Close()
	if exists.StatusCode == 200 {
		return nil
	}

	res, err := c.Indices.Create(index,
		c.Indices.Create.WithBody(bytes.NewBufferString(body)),
		c.Indices.Create.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("search: creating index %s: %w", index, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("search: creating index %s: %s", index, res.Status())
	}
	return nil
}
