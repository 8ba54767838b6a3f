package profilesync

import (
	"regexp"
	"strings"

	"github.com/sakif/opsdash/internal/apperror"
)

const (
	MinUsernameLength = 3
	MaxUsernameLength = 20
)

var (
	// RE2's \s is ASCII only; \p{Z} adds NBSP and the U+2000 block.
	whitespaceRun   = regexp.MustCompile(`[\s\v\p{Z}\x{FEFF}]+`)
	usernameIllegal = regexp.MustCompile(`[^a-z0-9_]`)
)

// Sanitize turns free text into a username: lowercase, whitespace runs
// become "_", anything outside [a-z0-9_] is dropped and edge underscores
// are trimmed. Results outside 3..20 characters are rejected, not clamped.
//
//	Sanitize("  Jane  Doe!!") → "jane_doe"
func Sanitize(s string) (string, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	s = whitespaceRun.ReplaceAllString(s, "_")
	s = usernameIllegal.ReplaceAllString(s, "")
	s = strings.Trim(s, "_")

	if len(s) < MinUsernameLength {
		return "", apperror.ValidationFailed("username",
			"Username must be at least 3 characters long after sanitization (letters, numbers, underscores only).")
	}
	if len(s) > MaxUsernameLength {
		return "", apperror.ValidationFailed("username", "Username must be 20 characters or less.")
	}
	return s, nil
}
