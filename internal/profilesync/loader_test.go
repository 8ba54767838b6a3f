package profilesync

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/opsdash/internal/apperror"
	"github.com/sakif/opsdash/internal/model"
)

func TestLoad_PopulatesState(t *testing.T) {
	h := newHarness(t)
	h.store.profiles["u1"] = model.Profile{
		ID:            "u1",
		ProfileFields: model.ProfileFields{Username: "jane", Bio: "hi"},
	}
	react := h.store.seedSkill("React")
	h.store.seedSkill("angular")
	h.store.links["u1"] = map[string]bool{react.ID: true}
	h.store.teams["u1"] = []model.MemberTeam{
		{Team: model.Team{ID: "t2", Name: "Zeta"}, Role: model.TeamRoleMember},
		{Team: model.Team{ID: "t1", Name: "Alpha"}, Role: model.TeamRoleOwner},
	}

	c := h.controller(t)
	st := c.State()

	require.NotNil(t, st.Profile)
	assert.Equal(t, "jane", st.Draft.Username)
	assert.Equal(t, model.DefaultSupply, st.Draft.Supply)
	assert.True(t, st.ShowWelcomeCard)
	assert.Equal(t, []string{react.ID}, st.SelectedSkillIDs)
	assert.Equal(t, []string{"angular", "React"}, []string{st.AllSkills[0].Name, st.AllSkills[1].Name})
	assert.Equal(t, "Alpha", st.Teams[0].Name)
	assert.False(t, st.Loading)
	assert.False(t, st.LoadingSkills)
	assert.False(t, st.LoadingTeams)
	assert.Empty(t, st.Error)
}

func TestLoad_WelcomeCardHiddenOnceSeen(t *testing.T) {
	h := newHarness(t)
	h.store.profiles["u1"] = model.Profile{ID: "u1", HasSeenWelcomeCard: true}

	assert.False(t, h.controller(t).State().ShowWelcomeCard)
}

func TestLoad_StepsAreIndependent(t *testing.T) {
	h := newHarness(t)
	h.store.setErr("ListUserSkills", errors.New("boom"))
	h.store.setErr("ListSkills", errors.New("boom"))

	c := NewController(h.deps, h.opts)
	defer c.Close()
	_, err := c.Mount(context.Background(), "tok-1")
	require.NoError(t, err)

	report, err := c.Load(context.Background(), ViewProfile)
	require.NoError(t, err)

	assert.NoError(t, report.ProfileErr)
	assert.Error(t, report.UserSkillsErr)
	assert.NoError(t, report.TeamsErr)
	assert.Error(t, report.CatalogErr)
	assert.False(t, report.OK())

	// Teams were still fetched after the skills failure.
	assert.Equal(t, 1, h.store.callCount("ListUserTeams"))

	st := c.State()
	assert.NotNil(t, st.Profile)
	assert.Equal(t, "Failed to load user skills.; Failed to load all skills.", st.Error)
	assert.False(t, st.Loading)
}

func TestLoad_ErrorMessages(t *testing.T) {
	h := newHarness(t)
	h.store.setErr("GetProfile", errors.New("db down"))
	h.store.setErr("ListUserTeams", errors.New("timeout"))

	c := NewController(h.deps, h.opts)
	defer c.Close()
	_, err := c.Mount(context.Background(), "tok-1")
	require.NoError(t, err)
	_, err = c.Load(context.Background(), ViewProfile)
	require.NoError(t, err)

	st := c.State()
	assert.Equal(t, "Failed to load profile: db down; Failed to load teams.", st.Error)
	assert.Equal(t, "Failed to load teams: timeout", st.TeamsError)
	assert.Nil(t, st.Profile)
}

func TestLoad_FailedReloadEmptiesThatSection(t *testing.T) {
	h := newHarness(t)
	h.store.skills["s1"] = model.Skill{ID: "s1", Name: "Go"}
	h.store.links["u1"] = map[string]bool{"s1": true}
	h.store.teams["u1"] = []model.MemberTeam{{Team: model.Team{ID: "t1", Name: "Core"}}}
	c := h.controller(t)

	st := c.State()
	require.NotNil(t, st.Profile)
	require.Len(t, st.UserSkills, 1)
	require.Len(t, st.Teams, 1)
	require.Len(t, st.AllSkills, 1)

	h.store.setErr("GetProfile", errors.New("db down"))
	h.store.setErr("ListUserSkills", errors.New("boom"))
	h.store.setErr("ListUserTeams", errors.New("boom"))
	h.store.setErr("ListSkills", errors.New("boom"))
	_, err := c.Load(context.Background(), ViewProfile)
	require.NoError(t, err)

	st = c.State()
	assert.Nil(t, st.Profile)
	assert.Equal(t, model.ProfileFields{}, st.Draft)
	assert.False(t, st.ShowWelcomeCard)
	assert.Empty(t, st.UserSkills)
	assert.Empty(t, st.SelectedSkillIDs)
	assert.Empty(t, st.Teams)
	assert.Empty(t, st.AllSkills)
	assert.NotNil(t, st.User)
}

func TestLoad_RequiresUser(t *testing.T) {
	h := newHarness(t)
	c := NewController(h.deps, h.opts)
	defer c.Close()

	_, err := c.Load(context.Background(), ViewProfile)
	assert.ErrorIs(t, err, apperror.ErrUnauthorized)
	assert.False(t, c.State().Loading)
	assert.Equal(t, 0, h.store.callCount("GetProfile"))
}

func TestLoad_IsIdempotent(t *testing.T) {
	h := newHarness(t)
	for _, name := range []string{"Go", "rust", "C", "elixir", "TypeScript"} {
		s := h.store.seedSkill(name)
		if name != "C" {
			if h.store.links["u1"] == nil {
				h.store.links["u1"] = map[string]bool{}
			}
			h.store.links["u1"][s.ID] = true
		}
	}
	h.store.teams["u1"] = []model.MemberTeam{
		{Team: model.Team{ID: "b", Name: "Beta"}},
		{Team: model.Team{ID: "a", Name: "Alpha"}},
	}

	c := h.controller(t)
	first := c.State()
	_, err := c.Load(context.Background(), ViewProfile)
	require.NoError(t, err)
	second := c.State()

	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("state changed between loads (-first +second):\n%s", diff)
	}
}
