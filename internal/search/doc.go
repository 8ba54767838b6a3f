package search

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/sakif/opsdash/internal/model"
)

// ProfileDoc is what the directory stores and returns.
type ProfileDoc struct {
	Username    string    `json:"username"`
	DisplayName string    `json:"display_name"`
	Bio         string    `json:"bio"`
	AvatarURL   string    `json:"avatar_url"`
	Skills      []string  `json:"skills"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func BuildProfileDoc(p model.Profile, skills []model.Skill) ([]byte, error) {
	names := make([]string, 0, len(skills))
	for _, s := range skills {
		names = append(names, s.Name)
	}
	sort.Strings(names)
	return json.Marshal(ProfileDoc{
		Username:    p.Username,
		DisplayName: p.DisplayName,
		Bio:         p.Bio,
		AvatarURL:   p.AvatarURL,
		Skills:      names,
		UpdatedAt:   p.UpdatedAt,
	})
}
