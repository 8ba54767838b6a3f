package postgres

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"

	"github.com/sakif/opsdash/internal/model"
)

// Row types keep gorm tags out of the model package.

type userRow struct {
	ID           string `gorm:"type:uuid;primaryKey"`
	Email        string `gorm:"not null;default:''"`
	GitHubID     *int64 `gorm:"column:github_id;uniqueIndex"`
	Login        string `gorm:"not null;default:''"`
	PasswordHash string `gorm:"not null;default:''"`
	AvatarURL    string `gorm:"not null;default:''"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (userRow) TableName() string { return "users" }

func (r userRow) toModel() *model.User {
	return &model.User{
		ID:           r.ID,
		Email:        r.Email,
		GitHubID:     r.GitHubID,
		Login:        r.Login,
		PasswordHash: r.PasswordHash,
		AvatarURL:    r.AvatarURL,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

func userRowFrom(u *model.User) userRow {
	return userRow{
		ID:           u.ID,
		Email:        u.Email,
		GitHubID:     u.GitHubID,
		Login:        u.Login,
		PasswordHash: u.PasswordHash,
		AvatarURL:    u.AvatarURL,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}

type profileRow struct {
	ID                 string `gorm:"type:uuid;primaryKey"`
	Username           string `gorm:"not null;default:''"`
	DisplayName        string `gorm:"not null;default:''"`
	FullName           string `gorm:"not null;default:''"`
	AvatarURL          string `gorm:"not null;default:''"`
	Bio                string `gorm:"not null;default:''"`
	WebsiteURL         string `gorm:"not null;default:''"`
	TwitterURL         string `gorm:"not null;default:''"`
	LinkedInURL        string `gorm:"column:linkedin_url;not null;default:''"`
	GitHubURL          string `gorm:"column:github_url;not null;default:''"`
	InstagramURL       string `gorm:"not null;default:''"`
	DiscordURL         string `gorm:"not null;default:''"`
	PhoneWhatsApp      string `gorm:"column:phone_whatsapp;not null;default:''"`
	TikTokURL          string `gorm:"column:tiktok_url;not null;default:''"`
	TelegramURL        string `gorm:"not null;default:''"`
	FacebookURL        string `gorm:"not null;default:''"`
	DollarHandle       string `gorm:"not null;default:''"`
	TokenName          string `gorm:"not null;default:''"`
	Supply             string `gorm:"not null;default:''"`
	HasSeenWelcomeCard bool   `gorm:"not null;default:false"`
	UpdatedAt          time.Time
}

func (profileRow) TableName() string { return "profiles" }

func (r profileRow) toModel() *model.Profile {
	return &model.Profile{
		ID: r.ID,
		ProfileFields: model.ProfileFields{
			Username:      r.Username,
			DisplayName:   r.DisplayName,
			FullName:      r.FullName,
			Bio:           r.Bio,
			WebsiteURL:    r.WebsiteURL,
			TwitterURL:    r.TwitterURL,
			LinkedInURL:   r.LinkedInURL,
			GitHubURL:     r.GitHubURL,
			InstagramURL:  r.InstagramURL,
			DiscordURL:    r.DiscordURL,
			PhoneWhatsApp: r.PhoneWhatsApp,
			TikTokURL:     r.TikTokURL,
			TelegramURL:   r.TelegramURL,
			FacebookURL:   r.FacebookURL,
			DollarHandle:  r.DollarHandle,
			TokenName:     r.TokenName,
			Supply:        r.Supply,
		},
		AvatarURL:          r.AvatarURL,
		HasSeenWelcomeCard: r.HasSeenWelcomeCard,
		UpdatedAt:          r.UpdatedAt,
	}
}

func profileRowFrom(p *model.Profile) profileRow {
	f := p.ProfileFields
	return profileRow{
		ID:                 p.ID,
		Username:           f.Username,
		DisplayName:        f.DisplayName,
		FullName:           f.FullName,
		AvatarURL:          p.AvatarURL,
		Bio:                f.Bio,
		WebsiteURL:         f.WebsiteURL,
		TwitterURL:         f.TwitterURL,
		LinkedInURL:        f.LinkedInURL,
		GitHubURL:          f.GitHubURL,
		InstagramURL:       f.InstagramURL,
		DiscordURL:         f.DiscordURL,
		PhoneWhatsApp:      f.PhoneWhatsApp,
		TikTokURL:          f.TikTokURL,
		TelegramURL:        f.TelegramURL,
		FacebookURL:        f.FacebookURL,
		DollarHandle:       f.DollarHandle,
		TokenName:          f.TokenName,
		Supply:             f.Supply,
		HasSeenWelcomeCard: p.HasSeenWelcomeCard,
		UpdatedAt:          p.UpdatedAt,
	}
}

type skillRow struct {
	ID          string `gorm:"primaryKey"`
	Name        string `gorm:"not null"`
	NameNorm    string `gorm:"not null;default:''"`
	Category    string `gorm:"not null;default:''"`
	Description string `gorm:"not null;default:''"`
	CreatedAt   time.Time
}

func (skillRow) TableName() string { return "skills" }

func (r skillRow) toModel() model.Skill {
	return model.Skill{ID: r.ID, Name: r.Name, Category: r.Category, Description: r.Description, CreatedAt: r.CreatedAt}
}

type userSkillRow struct {
	ID        string   `gorm:"primaryKey"`
	UserID    string   `gorm:"type:uuid;not null;uniqueIndex:idx_user_skill"`
	SkillID   string   `gorm:"not null;uniqueIndex:idx_user_skill"`
	User      userRow  `gorm:"constraint:OnDelete:CASCADE"`
	Skill     skillRow `gorm:"constraint:OnDelete:CASCADE"`
	CreatedAt time.Time
}

func (userSkillRow) TableName() string { return "user_skills" }

type teamRow struct {
	ID          string `gorm:"primaryKey"`
	Name        string `gorm:"not null"`
	Slug        string `gorm:"not null;uniqueIndex"`
	IconName    string `gorm:"not null;default:''"`
	ColorScheme datatypes.JSON
	CreatedAt   time.Time
}

func (teamRow) TableName() string { return "teams" }

func (r teamRow) toModel() (model.Team, error) {
	t := model.Team{ID: r.ID, Name: r.Name, Slug: r.Slug, IconName: r.IconName, CreatedAt: r.CreatedAt}
	if len(r.ColorScheme) > 0 {
		if err := json.Unmarshal(r.ColorScheme, &t.ColorScheme); err != nil {
			return t, err
		}
	}
	return t, nil
}

type membershipRow struct {
	TeamID    string  `gorm:"primaryKey"`
	UserID    string  `gorm:"type:uuid;primaryKey"`
	Team      teamRow `gorm:"constraint:OnDelete:CASCADE"`
	User      userRow `gorm:"constraint:OnDelete:CASCADE"`
	Role      string  `gorm:"not null;default:'member'"`
	CreatedAt time.Time
}

func (membershipRow) TableName() string { return "user_team_memberships" }

type scopeRow struct {
	ID        string  `gorm:"primaryKey"`
	UserID    string  `gorm:"type:uuid;not null;index"`
	User      userRow `gorm:"constraint:OnDelete:CASCADE"`
	Name      string  `gorm:"not null"`
	CreatedAt time.Time
}

func (scopeRow) TableName() string { return "project_scopes" }

func (r scopeRow) toModel() model.ProjectScope {
	return model.ProjectScope{ID: r.ID, UserID: r.UserID, Name: r.Name, CreatedAt: r.CreatedAt}
}

type taskRow struct {
	ID             string    `gorm:"primaryKey"`
	UserID         string    `gorm:"type:uuid;not null;index"`
	User           userRow   `gorm:"constraint:OnDelete:CASCADE"`
	Text           string    `gorm:"not null"`
	Status         string    `gorm:"not null;default:'TO_DO'"`
	ProjectScopeID *string   `gorm:"index"`
	ProjectScope   *scopeRow `gorm:"constraint:OnDelete:SET NULL"`
	Notes          string    `gorm:"not null;default:''"`
	DueDate        *time.Time
	OrderVal       int `gorm:"not null;default:0"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (taskRow) TableName() string { return "tasks" }

func (r taskRow) toModel() model.Task {
	return model.Task{
		ID:             r.ID,
		UserID:         r.UserID,
		Text:           r.Text,
		Status:         model.TaskStatus(r.Status),
		ProjectScopeID: r.ProjectScopeID,
		Notes:          r.Notes,
		DueDate:        r.DueDate,
		OrderVal:       r.OrderVal,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}

func taskRowFrom(t *model.Task) taskRow {
	return taskRow{
		ID:             t.ID,
		UserID:         t.UserID,
		Text:           t.Text,
		Status:         string(t.Status),
		ProjectScopeID: t.ProjectScopeID,
		Notes:          t.Notes,
		DueDate:        t.DueDate,
		OrderVal:       t.OrderVal,
		CreatedAt:      t.CreatedAt,
		UpdatedAt:      t.UpdatedAt,
	}
}

type outboxRow struct {
	ID         int64  `gorm:"primaryKey;autoIncrement"`
	EntityType string `gorm:"index;not null"`
	EntityID   string `gorm:"not null"`
	Op         string `gorm:"not null"`
	CreatedAt  time.Time
	Processed  bool `gorm:"default:false;index"`
	Attempts   int  `gorm:"not null;default:0"`
}

func (outboxRow) TableName() string { return "profile_outbox" }

func (r outboxRow) toModel() model.OutboxEvent {
	return model.OutboxEvent{
		ID:         r.ID,
		EntityType: r.EntityType,
		EntityID:   r.EntityID,
		Op:         r.Op,
		CreatedAt:  r.CreatedAt,
		Processed:  r.Processed,
		Attempts:   r.Attempts,
	}
}
