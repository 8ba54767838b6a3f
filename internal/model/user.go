// Package model defines the data structures used throughout the application.
package model

import "time"

// User is an account known to the identity provider.
//
// Accounts come from two places: email + password sign-up, or GitHub OAuth.
// GitHubID is nil for password accounts; the UNIQUE constraint on github_id
// in the DB ensures one GitHub account maps to exactly one app account.
//
// AvatarURL is identity metadata, separate from the profile's avatar_url.
// The avatar upload flow keeps both in step.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	GitHubID     *int64    `json:"githubId,omitempty"`
	Login        string    `json:"login,omitempty"` // GitHub username, empty for password accounts
	PasswordHash string    `json:"-"`
	AvatarURL    string    `json:"avatarUrl"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// UserAttributes is the metadata a signed-in user may change on their
// identity. Nil means "leave as is".
type UserAttributes struct {
	AvatarURL *string `json:"avatarUrl,omitempty"`
}

// Session is a validated access token plus the identity it belongs to.
type Session struct {
	AccessToken string    `json:"-"`
	ExpiresAt   time.Time `json:"expiresAt"`
	User        User      `json:"user"`
}

// AuthEventKind names a change pushed by the identity provider.
type AuthEventKind string

const (
	EventSignedIn    AuthEventKind = "SIGNED_IN"
	EventSignedOut   AuthEventKind = "SIGNED_OUT"
	EventUserUpdated AuthEventKind = "USER_UPDATED"
)

// AuthEvent is one entry of the provider's auth-change stream.
// User is nil for EventSignedOut; UserID is always set.
type AuthEvent struct {
	Kind   AuthEventKind
	UserID string
	User   *User
}
