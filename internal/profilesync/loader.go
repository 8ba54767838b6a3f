package profilesync

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/sakif/opsdash/internal/apperror"
	"github.com/sakif/opsdash/internal/metrics"
	"github.com/sakif/opsdash/internal/model"
)

// ViewProfile is the view the dashboard profile page loads.
const ViewProfile = "profile"

// LoadReport says which fetch steps failed. A nil field means that step
// succeeded.
type LoadReport struct {
	ProfileErr    error
	UserSkillsErr error
	TeamsErr      error
	CatalogErr    error
}

// OK reports whether every step succeeded.
func (r *LoadReport) OK() bool {
	return r.Err() == nil
}

// Err joins the step errors.
func (r *LoadReport) Err() error {
	return errors.Join(r.ProfileErr, r.UserSkillsErr, r.TeamsErr, r.CatalogErr)
}

// Message is the single human-readable string shown to the user, in fetch
// order.
func (r *LoadReport) Message() string {
	var parts []string
	if r.ProfileErr != nil {
		parts = append(parts, "Failed to load profile: "+r.ProfileErr.Error())
	}
	if r.UserSkillsErr != nil {
		parts = append(parts, "Failed to load user skills.")
	}
	if r.TeamsErr != nil {
		parts = append(parts, "Failed to load teams.")
	}
	if r.CatalogErr != nil {
		parts = append(parts, "Failed to load all skills.")
	}
	return strings.Join(parts, "; ")
}

// Load fetches the profile, the user's skills, their team memberships and
// the skill catalog, in that order. A failing step does not stop the ones
// after it; its section is emptied and its error lands in the report and in
// the state's error string.
//
// Concurrent calls for the same user and view share one fetch. The only
// error returned is ErrUnauthorized when no user is mounted.
func (c *Controller) Load(ctx context.Context, view string) (*LoadReport, error) {
	c.mu.Lock()
	if c.user == nil {
		c.loading, c.loadingSkills, c.loadingTeams = false, false, false
		c.mu.Unlock()
		return nil, apperror.Unauthorized("no signed-in user")
	}
	userID := c.user.ID
	c.mu.Unlock()

	v, _, _ := c.loads.Do(userID+"|"+view, func() (any, error) {
		return c.load(ctx, userID), nil
	})
	return v.(*LoadReport), nil
}

func (c *Controller) load(ctx context.Context, userID string) *LoadReport {
	c.mu.Lock()
	c.loading, c.loadingSkills, c.loadingTeams = true, true, true
	c.errMsg = ""
	c.teamsErr = ""
	c.mu.Unlock()

	report := &LoadReport{}

	profile, err := c.store.GetProfile(ctx, userID)
	if err != nil {
		report.ProfileErr = err
	}
	userSkills, err := c.store.ListUserSkills(ctx, userID)
	if err != nil {
		report.UserSkillsErr = err
	}
	teams, err := c.store.ListUserTeams(ctx, userID)
	if err != nil {
		report.TeamsErr = err
	}
	catalog, err := c.store.ListSkills(ctx)
	if err != nil {
		report.CatalogErr = err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.loading, c.loadingSkills, c.loadingTeams = false, false, false

	// Signed out or switched user while fetching.
	if c.user == nil || c.user.ID != userID {
		return report
	}

	// A failed step empties its section so nothing from an earlier load is
	// shown as current.
	if report.ProfileErr == nil {
		c.profile = profile
		c.draft = draftFrom(profile)
		c.showWelcome = !profile.HasSeenWelcomeCard
	} else {
		c.profile = nil
		c.draft = model.ProfileFields{}
		c.showWelcome = false
	}
	if report.UserSkillsErr == nil {
		sortSkills(userSkills)
		c.userSkills = userSkills
	} else {
		userSkills = nil
		c.userSkills = nil
	}
	c.selected = make(map[string]bool, len(userSkills))
	for _, s := range userSkills {
		c.selected[s.ID] = true
	}
	if report.TeamsErr == nil {
		sortTeams(teams)
		c.teams = teams
	} else {
		c.teams = nil
		c.teamsErr = "Failed to load teams: " + report.TeamsErr.Error()
	}
	if report.CatalogErr == nil {
		sortSkills(catalog)
		c.allSkills = catalog
	} else {
		c.allSkills = nil
	}
	c.errMsg = report.Message()

	outcome := "ok"
	switch {
	case report.ProfileErr != nil:
		outcome = "error"
	case !report.OK():
		outcome = "partial"
	}
	metrics.ProfileLoads.WithLabelValues(outcome).Inc()

	if !report.OK() {
		c.logger.Warn("profile load incomplete",
			slog.String("userID", userID),
			slog.String("error", report.Err().Error()),
		)
	}
	return report
}

// draftFrom fills the edit buffers from a stored profile.
func draftFrom(p *model.Profile) model.ProfileFields {
	d := p.ProfileFields
	if d.Supply == "" {
		d.Supply = model.DefaultSupply
	}
	return d
}
