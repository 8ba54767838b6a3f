package model

import (
	"strings"
	"time"
)

// CustomSkillCategory is the category given to skills users type in
// themselves rather than pick from the seeded catalog.
const CustomSkillCategory = "User-defined"

// Skill is a global catalog entry. Names are unique case-insensitively
// after trimming; the store enforces it.
type Skill struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Category    string    `json:"category"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"createdAt"`
}

// UserSkill links a user to a catalog skill.
type UserSkill struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	SkillID   string    `json:"skillId"`
	CreatedAt time.Time `json:"createdAt"`
}

// NormalizeSkillName is the comparison key for skill names.
func NormalizeSkillName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
