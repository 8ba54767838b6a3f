package model

import "time"

// DefaultSupply is shown in the token section until the user sets one.
const DefaultSupply = "1,000,000,000"

// ProfileFields are the user-editable text attributes of a profile.
// The empty string is the null value for every field.
//
// The same struct doubles as the set of edit buffers the dashboard form
// binds to, so a draft and a stored profile compare field by field.
type ProfileFields struct {
	Username      string `json:"username"`
	DisplayName   string `json:"displayName"`
	FullName      string `json:"fullName"`
	Bio           string `json:"bio"`
	WebsiteURL    string `json:"websiteUrl"`
	TwitterURL    string `json:"twitterUrl"`
	LinkedInURL   string `json:"linkedinUrl"`
	GitHubURL     string `json:"githubUrl"`
	InstagramURL  string `json:"instagramUrl"`
	DiscordURL    string `json:"discordUrl"`
	PhoneWhatsApp string `json:"phoneWhatsapp"`
	TikTokURL     string `json:"tiktokUrl"`
	TelegramURL   string `json:"telegramUrl"`
	FacebookURL   string `json:"facebookUrl"`
	DollarHandle  string `json:"dollarHandle"`
	TokenName     string `json:"tokenName"`
	Supply        string `json:"supply"`
}

// Profile is the public-facing record of one user. ID equals the user ID.
type Profile struct {
	ID string `json:"id"`
	ProfileFields
	AvatarURL          string    `json:"avatarUrl"`
	HasSeenWelcomeCard bool      `json:"hasSeenWelcomeCard"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

// ProfileUpdate is a partial update. Nil fields are left untouched.
type ProfileUpdate struct {
	Username      *string
	DisplayName   *string
	FullName      *string
	Bio           *string
	WebsiteURL    *string
	TwitterURL    *string
	LinkedInURL   *string
	GitHubURL     *string
	InstagramURL  *string
	DiscordURL    *string
	PhoneWhatsApp *string
	TikTokURL     *string
	TelegramURL   *string
	FacebookURL   *string
	DollarHandle  *string
	TokenName     *string
	Supply        *string

	AvatarURL          *string
	HasSeenWelcomeCard *bool
}

// textColumn binds one ProfileFields attribute to its column and to the
// matching ProfileUpdate pointer.
type textColumn struct {
	name   string
	field  func(*ProfileFields) *string
	update func(*ProfileUpdate) **string
}

var textColumns = []textColumn{
	{"username", func(f *ProfileFields) *string { return &f.Username }, func(u *ProfileUpdate) **string { return &u.Username }},
	{"display_name", func(f *ProfileFields) *string { return &f.DisplayName }, func(u *ProfileUpdate) **string { return &u.DisplayName }},
	{"full_name", func(f *ProfileFields) *string { return &f.FullName }, func(u *ProfileUpdate) **string { return &u.FullName }},
	{"bio", func(f *ProfileFields) *string { return &f.Bio }, func(u *ProfileUpdate) **string { return &u.Bio }},
	{"website_url", func(f *ProfileFields) *string { return &f.WebsiteURL }, func(u *ProfileUpdate) **string { return &u.WebsiteURL }},
	{"twitter_url", func(f *ProfileFields) *string { return &f.TwitterURL }, func(u *ProfileUpdate) **string { return &u.TwitterURL }},
	{"linkedin_url", func(f *ProfileFields) *string { return &f.LinkedInURL }, func(u *ProfileUpdate) **string { return &u.LinkedInURL }},
	{"github_url", func(f *ProfileFields) *string { return &f.GitHubURL }, func(u *ProfileUpdate) **string { return &u.GitHubURL }},
	{"instagram_url", func(f *ProfileFields) *string { return &f.InstagramURL }, func(u *ProfileUpdate) **string { return &u.InstagramURL }},
	{"discord_url", func(f *ProfileFields) *string { return &f.DiscordURL }, func(u *ProfileUpdate) **string { return &u.DiscordURL }},
	{"phone_whatsapp", func(f *ProfileFields) *string { return &f.PhoneWhatsApp }, func(u *ProfileUpdate) **string { return &u.PhoneWhatsApp }},
	{"tiktok_url", func(f *ProfileFields) *string { return &f.TikTokURL }, func(u *ProfileUpdate) **string { return &u.TikTokURL }},
	{"telegram_url", func(f *ProfileFields) *string { return &f.TelegramURL }, func(u *ProfileUpdate) **string { return &u.TelegramURL }},
	{"facebook_url", func(f *ProfileFields) *string { return &f.FacebookURL }, func(u *ProfileUpdate) **string { return &u.FacebookURL }},
	{"dollar_handle", func(f *ProfileFields) *string { return &f.DollarHandle }, func(u *ProfileUpdate) **string { return &u.DollarHandle }},
	{"token_name", func(f *ProfileFields) *string { return &f.TokenName }, func(u *ProfileUpdate) **string { return &u.TokenName }},
	{"supply", func(f *ProfileFields) *string { return &f.Supply }, func(u *ProfileUpdate) **string { return &u.Supply }},
}

// DiffFields returns an update holding only the fields of next that differ
// from cur.
func DiffFields(cur, next ProfileFields) ProfileUpdate {
	var u ProfileUpdate
	for _, c := range textColumns {
		v := *c.field(&next)
		if *c.field(&cur) != v {
			*c.update(&u) = &v
		}
	}
	return u
}

// Columns maps every non-nil field to its column name. Both store
// backends build their UPDATE from this.
func (u ProfileUpdate) Columns() map[string]any {
	cols := make(map[string]any)
	for _, c := range textColumns {
		if v := *c.update(&u); v != nil {
			cols[c.name] = *v
		}
	}
	if u.AvatarURL != nil {
		cols["avatar_url"] = *u.AvatarURL
	}
	if u.HasSeenWelcomeCard != nil {
		cols["has_seen_welcome_card"] = *u.HasSeenWelcomeCard
	}
	return cols
}

// IsEmpty reports whether the update would change nothing.
func (u ProfileUpdate) IsEmpty() bool {
	return len(u.Columns()) == 0
}

// Apply copies every non-nil field into p.
func (u ProfileUpdate) Apply(p *Profile) {
	for _, c := range textColumns {
		if v := *c.update(&u); v != nil {
			*c.field(&p.ProfileFields) = *v
		}
	}
	if u.AvatarURL != nil {
		p.AvatarURL = *u.AvatarURL
	}
	if u.HasSeenWelcomeCard != nil {
		p.HasSeenWelcomeCard = *u.HasSeenWelcomeCard
	}
}
