package model

import "time"

// TeamRole is a member's role inside one team.
type TeamRole string

const (
	TeamRoleOwner  TeamRole = "owner"
	TeamRoleAdmin  TeamRole = "admin"
	TeamRoleMember TeamRole = "member"
)

// Valid reports whether r is one of the known roles.
func (r TeamRole) Valid() bool {
	switch r {
	case TeamRoleOwner, TeamRoleAdmin, TeamRoleMember:
		return true
	}
	return false
}

// ColorScheme drives how a team badge is drawn.
type ColorScheme struct {
	BgColor     string `json:"bgColor"`
	TextColor   string `json:"textColor"`
	BorderColor string `json:"borderColor"`
}

type Team struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Slug        string      `json:"slug"`
	IconName    string      `json:"iconName"`
	ColorScheme ColorScheme `json:"colorScheme"`
	CreatedAt   time.Time   `json:"createdAt"`
}

// MemberTeam is a team as seen by one of its members.
type MemberTeam struct {
	Team
	Role TeamRole `json:"role"`
}
