package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sakif/opsdash/internal/apperror"
	"github.com/sakif/opsdash/internal/model"
)

const profileColumns = `id, username, display_name, full_name, avatar_url, bio,
	website_url, twitter_url, linkedin_url, github_url, instagram_url, discord_url,
	phone_whatsapp, tiktok_url, telegram_url, facebook_url,
	dollar_handle, token_name, supply, has_seen_welcome_card, updated_at`

// CreateProfile inserts the profile row for a freshly registered user.
func (db *DB) CreateProfile(ctx context.Context, p *model.Profile) error {
	p.UpdatedAt = time.Now().UTC()
	f := p.ProfileFields
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO profiles (`+profileColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, f.Username, f.DisplayName, f.FullName, p.AvatarURL, f.Bio,
		f.WebsiteURL, f.TwitterURL, f.LinkedInURL, f.GitHubURL, f.InstagramURL, f.DiscordURL,
		f.PhoneWhatsApp, f.TikTokURL, f.TelegramURL, f.FacebookURL,
		f.DollarHandle, f.TokenName, f.Supply, p.HasSeenWelcomeCard, p.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("profile", p.ID)
		}
		if isForeignKeyViolation(err) {
			return apperror.NotFound("user", p.ID)
		}
		return fmt.Errorf("sqlite: inserting profile %s: %w", p.ID, err)
	}
	return nil
}

func (db *DB) GetProfile(ctx context.Context, userID string) (*model.Profile, error) {
	var p model.Profile
	f := &p.ProfileFields
	err := db.conn.QueryRowContext(ctx,
		`SELECT `+profileColumns+` FROM profiles WHERE id = ?`, userID,
	).Scan(
		&p.ID, &f.Username, &f.DisplayName, &f.FullName, &p.AvatarURL, &f.Bio,
		&f.WebsiteURL, &f.TwitterURL, &f.LinkedInURL, &f.GitHubURL, &f.InstagramURL, &f.DiscordURL,
		&f.PhoneWhatsApp, &f.TikTokURL, &f.TelegramURL, &f.FacebookURL,
		&f.DollarHandle, &f.TokenName, &f.Supply, &p.HasSeenWelcomeCard, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("profile", userID)
		}
		return nil, fmt.Errorf("sqlite: getting profile %s: %w", userID, err)
	}
	return &p, nil
}

// UpdateProfile writes every set field of update in one statement.
// A taken username surfaces as ErrConflict.
func (db *DB) UpdateProfile(ctx context.Context, userID string, update model.ProfileUpdate) error {
	cols := update.Columns()
	if len(cols) == 0 {
		return nil
	}

	// Column names come from model.ProfileUpdate, never from user input.
	// Sorting keeps the generated SQL stable.
	names := make([]string, 0, len(cols))
	for name := range cols {
		names = append(names, name)
	}
	sort.Strings(names)

	sets := make([]string, 0, len(names)+1)
	args := make([]any, 0, len(names)+2)
	for _, name := range names {
		sets = append(sets, name+" = ?")
		args = append(args, cols[name])
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, time.Now().UTC(), userID)

	res, err := db.conn.ExecContext(ctx,
		`UPDATE profiles SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("profile", userID)
		}
		return fmt.Errorf("sqlite: updating profile %s: %w", userID, err)
	}
	return requireOneRow(res, "profile", userID)
}
