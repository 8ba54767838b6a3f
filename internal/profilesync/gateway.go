package profilesync

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/sakif/opsdash/internal/apperror"
	"github.com/sakif/opsdash/internal/metrics"
	"github.com/sakif/opsdash/internal/model"
	"github.com/sakif/opsdash/internal/storage"
)

// avatarExts are the extensions an avatar may have. Before an upload every
// one of them is removed so an extension change leaves no orphan.
var avatarExts = []string{"png", "jpg", "jpeg", "gif", "webp"}

var contentTypeExt = map[string]string{
	"image/png":  "png",
	"image/jpeg": "jpg",
	"image/jpg":  "jpg",
	"image/gif":  "gif",
	"image/webp": "webp",
}

// AvatarFile is one uploaded image.
type AvatarFile struct {
	Name        string
	ContentType string
	Size        int64
	Body        io.Reader
}

// begin checks that a user is mounted and clears the previous messages.
func (c *Controller) begin() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.user == nil {
		return "", apperror.Unauthorized("no signed-in user")
	}
	c.errMsg = ""
	c.success = ""
	return c.user.ID, nil
}

// fail records msg as the visible error and counts the failed op.
func (c *Controller) fail(op, msg string, err error) {
	c.setError(msg)
	metrics.Mutations.WithLabelValues(op, "error").Inc()
	c.logger.Error("profile mutation failed",
		slog.String("op", op),
		slog.String("error", err.Error()),
	)
}

func (c *Controller) succeed(ctx context.Context, op, userID, msg string) {
	metrics.Mutations.WithLabelValues(op, "ok").Inc()
	if msg != "" {
		c.setSuccess(msg, c.opts.SuccessTTL)
	}
	c.notify(ctx, userID)
}

// setSelectedLocked adds or removes skill from the selection.
func (c *Controller) setSelectedLocked(skill model.Skill, on bool) {
	switch {
	case on && !c.selected[skill.ID]:
		c.selected[skill.ID] = true
		c.userSkills = append(c.userSkills, skill)
		sortSkills(c.userSkills)
	case !on && c.selected[skill.ID]:
		delete(c.selected, skill.ID)
		kept := c.userSkills[:0:0]
		for _, s := range c.userSkills {
			if s.ID != skill.ID {
				kept = append(kept, s)
			}
		}
		c.userSkills = kept
	}
}

// selectOptimistic applies the change now and returns its inverse. The
// inverse touches only this skill, so concurrent toggles of other skills
// survive a rollback.
func (c *Controller) selectOptimistic(skill model.Skill, on bool) (rollback func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	was := c.selected[skill.ID]
	c.setSelectedLocked(skill, on)
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.setSelectedLocked(skill, was)
	}
}

func (c *Controller) findSkillLocked(id string) (model.Skill, bool) {
	for _, s := range c.allSkills {
		if s.ID == id {
			return s, true
		}
	}
	for _, s := range c.userSkills {
		if s.ID == id {
			return s, true
		}
	}
	return model.Skill{}, false
}

// attach links skill to the user with an optimistic selection. An existing
// link counts as success.
func (c *Controller) attach(ctx context.Context, userID string, skill model.Skill) error {
	rollback := c.selectOptimistic(skill, true)
	err := c.store.AddUserSkill(ctx, userID, skill.ID)
	if err != nil && !apperror.Is(err, apperror.ErrConflict) {
		rollback()
		metrics.Rollbacks.WithLabelValues("add_skill").Inc()
		return err
	}
	return nil
}

// ToggleSkill adds or removes one skill from the user's selection. The
// selection changes before the write and is reverted if the write fails.
func (c *Controller) ToggleSkill(ctx context.Context, skillID string, selected bool) error {
	userID, err := c.begin()
	if err != nil {
		return err
	}

	c.mu.Lock()
	skill, ok := c.findSkillLocked(skillID)
	c.mu.Unlock()

	if selected {
		if !ok {
			err := apperror.NotFound("skill", skillID)
			c.fail("add_skill", "Failed to add skill: "+err.Error(), err)
			return err
		}
		if err := c.attach(ctx, userID, skill); err != nil {
			c.fail("add_skill", "Failed to add skill: "+err.Error(), err)
			return fmt.Errorf("profilesync: adding skill %s: %w", skillID, err)
		}
		c.succeed(ctx, "add_skill", userID, "Skill added!")
		return nil
	}

	if !ok {
		skill = model.Skill{ID: skillID}
	}
	rollback := c.selectOptimistic(skill, false)
	err = c.store.RemoveUserSkill(ctx, userID, skillID)
	if err != nil && !apperror.Is(err, apperror.ErrNotFound) {
		rollback()
		metrics.Rollbacks.WithLabelValues("remove_skill").Inc()
		c.fail("remove_skill", "Failed to remove skill: "+err.Error(), err)
		return fmt.Errorf("profilesync: removing skill %s: %w", skillID, err)
	}
	c.succeed(ctx, "remove_skill", userID, "Skill removed.")
	return nil
}

// AddCustomSkill selects a skill by name, creating it in the catalog when
// no skill with the same normalized name exists.
//
// Creating and attaching are two writes. If the attach fails after this
// call created the skill, the skill is deleted again and dropped from the
// local catalog. A create that loses a race with another writer falls back
// to the winner's row, so no duplicate is ever inserted.
func (c *Controller) AddCustomSkill(ctx context.Context, name string) error {
	userID, err := c.begin()
	if err != nil {
		return err
	}

	trimmed := strings.TrimSpace(name)
	norm := model.NormalizeSkillName(name)
	if norm == "" {
		err := apperror.ValidationFailed("name", "Skill name cannot be empty.")
		c.setError(err.Message)
		return err
	}

	c.mu.Lock()
	var existing *model.Skill
	for i := range c.allSkills {
		if model.NormalizeSkillName(c.allSkills[i].Name) == norm {
			s := c.allSkills[i]
			existing = &s
			break
		}
	}
	alreadySelected := existing != nil && c.selected[existing.ID]
	c.mu.Unlock()

	if alreadySelected {
		c.setSuccess(fmt.Sprintf("Skill %q is already added.", existing.Name), c.opts.DuplicateTTL)
		return nil
	}
	if existing != nil {
		if err := c.attach(ctx, userID, *existing); err != nil {
			c.fail("add_skill", "Failed to add skill: "+err.Error(), err)
			return fmt.Errorf("profilesync: adding skill %s: %w", existing.ID, err)
		}
		c.succeed(ctx, "add_skill", userID, "Skill added!")
		return nil
	}

	var sg saga

	skill := &model.Skill{Name: trimmed, Category: model.CustomSkillCategory}
	if err := c.store.CreateSkill(ctx, skill); err != nil {
		if !apperror.Is(err, apperror.ErrConflict) {
			c.fail("create_skill", "Failed to create new skill: "+err.Error(), err)
			return fmt.Errorf("profilesync: creating skill %q: %w", trimmed, err)
		}
		winner, gerr := c.store.GetSkillByName(ctx, trimmed)
		if gerr != nil {
			c.fail("create_skill", "Failed to create new skill: "+gerr.Error(), gerr)
			return fmt.Errorf("profilesync: fetching skill %q: %w", trimmed, gerr)
		}
		skill = winner
	} else {
		created := skill.ID
		sg.onFailure("create skill", func(ctx context.Context) error {
			return c.store.DeleteSkill(ctx, created)
		})
	}

	c.mu.Lock()
	if _, ok := c.findSkillLocked(skill.ID); !ok {
		c.allSkills = append(c.allSkills, *skill)
		sortSkills(c.allSkills)
		added := skill.ID
		sg.onFailure("catalog append", func(context.Context) error {
			c.mu.Lock()
			defer c.mu.Unlock()
			kept := c.allSkills[:0:0]
			for _, s := range c.allSkills {
				if s.ID != added {
					kept = append(kept, s)
				}
			}
			c.allSkills = kept
			return nil
		})
	}
	c.mu.Unlock()

	if err := c.attach(ctx, userID, *skill); err != nil {
		if cerr := sg.compensate(ctx); cerr != nil {
			c.logger.Error("custom skill compensation failed",
				slog.String("skillID", skill.ID),
				slog.String("error", cerr.Error()),
			)
		}
		metrics.Compensations.Inc()
		c.fail("link_skill", "Failed to link new skill: "+err.Error(), err)
		return fmt.Errorf("profilesync: linking skill %s: %w", skill.ID, err)
	}

	c.logger.Info("custom skill added", slog.String("userID", userID), slog.String("skill", skill.Name))
	c.succeed(ctx, "add_skill", userID, "Skill added!")
	return nil
}

// avatarExt picks the stored extension from the file name, falling back to
// the content type.
func avatarExt(f AvatarFile) (string, bool) {
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(f.Name), "."))
	for _, e := range avatarExts {
		if ext == e {
			return ext, true
		}
	}
	if e, ok := contentTypeExt[strings.ToLower(f.ContentType)]; ok {
		return e, true
	}
	return "", false
}

// UploadAvatar stores f as public/<userID>/avatar.<ext>, points the
// profile at it and mirrors the URL into the identity's metadata. Only the
// profile write is required; cleanup and metadata are best effort.
func (c *Controller) UploadAvatar(ctx context.Context, f AvatarFile) (string, error) {
	userID, err := c.begin()
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	c.avatarErr = ""
	c.uploadingAvatar = true
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.uploadingAvatar = false
		c.mu.Unlock()
	}()

	url, err := c.uploadAvatar(ctx, userID, f)
	if err != nil {
		c.mu.Lock()
		c.avatarErr = "Upload failed: " + err.Error()
		c.mu.Unlock()
		metrics.Mutations.WithLabelValues("upload_avatar", "error").Inc()
		c.logger.Error("avatar upload failed",
			slog.String("userID", userID),
			slog.String("error", err.Error()),
		)
		return "", err
	}

	c.succeed(ctx, "upload_avatar", userID, "Avatar updated!")
	return url, nil
}

func (c *Controller) uploadAvatar(ctx context.Context, userID string, f AvatarFile) (string, error) {
	ext, ok := avatarExt(f)
	if !ok {
		return "", apperror.ValidationFailed("file", "Please select an image file (png, jpg, gif or webp).")
	}
	if f.Size > c.opts.MaxAvatarBytes {
		return "", apperror.ValidationFailed("file",
			fmt.Sprintf("Image must be %d MB or smaller.", c.opts.MaxAvatarBytes>>20))
	}

	dir := "public/" + userID
	old := make([]string, 0, len(avatarExts))
	for _, e := range avatarExts {
		old = append(old, dir+"/avatar."+e)
	}
	if err := c.objects.Remove(ctx, old...); err != nil {
		c.logger.Warn("removing previous avatars failed",
			slog.String("userID", userID),
			slog.String("error", err.Error()),
		)
	}

	objectPath := dir + "/avatar." + ext
	err := c.objects.Upload(ctx, objectPath, f.Body, storage.UploadOptions{
		ContentType:  f.ContentType,
		CacheControl: "3600",
		Upsert:       true,
	})
	if err != nil {
		return "", fmt.Errorf("profilesync: uploading %s: %w", objectPath, err)
	}

	url := c.objects.PublicURL(objectPath) + "?t=" + strconv.FormatInt(c.opts.Now().UnixMilli(), 10)
	if err := c.store.UpdateProfile(ctx, userID, model.ProfileUpdate{AvatarURL: &url}); err != nil {
		return "", fmt.Errorf("profilesync: saving avatar url: %w", err)
	}

	c.mu.Lock()
	if c.profile != nil && c.profile.ID == userID {
		c.profile.AvatarURL = url
	}
	c.mu.Unlock()

	if _, err := c.sessions.UpdateUser(ctx, userID, model.UserAttributes{AvatarURL: &url}); err != nil {
		c.logger.Warn("updating identity avatar failed",
			slog.String("userID", userID),
			slog.String("error", err.Error()),
		)
	}
	return url, nil
}

// UpdateDraft replaces the edit buffers. Nothing is written until
// SaveProfile runs.
func (c *Controller) UpdateDraft(fields model.ProfileFields) {
	c.mu.Lock()
	c.draft = fields
	c.mu.Unlock()
}

// SaveProfile writes the fields of the draft that differ from the loaded
// profile in one update. An invalid username is rejected before any write.
func (c *Controller) SaveProfile(ctx context.Context) error {
	userID, err := c.begin()
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.profile == nil {
		c.errMsg = "User or profile not loaded. Cannot save."
		c.mu.Unlock()
		return apperror.ValidationFailed("profile", "User or profile not loaded. Cannot save.")
	}
	draft := c.draft
	current := c.profile.ProfileFields
	c.mu.Unlock()

	username, err := Sanitize(draft.Username)
	if err != nil {
		c.setError(err.Error())
		return err
	}

	next := trimFields(draft)
	next.Username = username
	if next.DisplayName == "" {
		next.DisplayName = username
	}

	update := model.DiffFields(current, next)
	if update.IsEmpty() {
		return nil
	}

	c.mu.Lock()
	c.saving = true
	c.mu.Unlock()

	err = c.store.UpdateProfile(ctx, userID, update)

	c.mu.Lock()
	c.saving = false
	c.mu.Unlock()

	if err != nil {
		msg := "Failed to update profile: " + err.Error()
		if apperror.Is(err, apperror.ErrConflict) || apperror.Is(err, apperror.ErrValidation) {
			msg += ". Username might be taken or some fields invalid."
		}
		c.fail("save_profile", msg, err)
		return fmt.Errorf("profilesync: saving profile: %w", err)
	}

	c.mu.Lock()
	if c.profile != nil && c.profile.ID == userID {
		update.Apply(c.profile)
	}
	// Keep edits typed while the write was in flight.
	if c.draft == draft {
		c.draft = next
	}
	c.mu.Unlock()

	c.logger.Info("profile saved", slog.String("userID", userID))
	c.succeed(ctx, "save_profile", userID, "Profile updated successfully!")
	return nil
}

// ScheduleAutoSave (re)starts the debounce timer; when it fires the draft
// is saved with a fresh context.
func (c *Controller) ScheduleAutoSave() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	if c.autoSaveTimer != nil && c.autoSaveTimer.Stop() {
		c.autoSaves.Done()
	}
	c.autoSaves.Add(1)
	c.autoSaveTimer = time.AfterFunc(c.opts.AutoSaveDelay, func() {
		defer c.autoSaves.Done()
		ctx, cancel := context.WithTimeout(context.Background(), c.opts.AutoSaveTimeout)
		defer cancel()
		if err := c.SaveProfile(ctx); err != nil {
			c.logger.Warn("auto-save failed", slog.String("error", err.Error()))
		}
	})
}

// DismissWelcomeCard hides the card at once and persists the choice. The
// card comes back if the write fails.
func (c *Controller) DismissWelcomeCard(ctx context.Context) error {
	userID, err := c.begin()
	if err != nil {
		return err
	}

	c.mu.Lock()
	was := c.showWelcome
	c.showWelcome = false
	c.mu.Unlock()

	seen := true
	if err := c.store.UpdateProfile(ctx, userID, model.ProfileUpdate{HasSeenWelcomeCard: &seen}); err != nil {
		c.mu.Lock()
		c.showWelcome = was
		c.mu.Unlock()
		metrics.Rollbacks.WithLabelValues("dismiss_welcome").Inc()
		c.fail("dismiss_welcome", "Failed to dismiss welcome card: "+err.Error(), err)
		return fmt.Errorf("profilesync: dismissing welcome card: %w", err)
	}

	c.mu.Lock()
	if c.profile != nil && c.profile.ID == userID {
		c.profile.HasSeenWelcomeCard = true
	}
	c.mu.Unlock()
	metrics.Mutations.WithLabelValues("dismiss_welcome", "ok").Inc()
	return nil
}

func trimFields(f model.ProfileFields) model.ProfileFields {
	for _, p := range []*string{
		&f.Username, &f.DisplayName, &f.FullName, &f.Bio, &f.WebsiteURL,
		&f.TwitterURL, &f.LinkedInURL, &f.GitHubURL, &f.InstagramURL,
		&f.DiscordURL, &f.PhoneWhatsApp, &f.TikTokURL, &f.TelegramURL,
		&f.FacebookURL, &f.DollarHandle, &f.TokenName, &f.Supply,
	} {
		*p = strings.TrimSpace(*p)
	}
	return f
}
