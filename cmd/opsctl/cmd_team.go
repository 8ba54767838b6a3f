package main

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sakif/opsdash/internal/model"
)

var (
	teamSlug    string
	teamIcon    string
	teamOwner   string
	teamMembers []string
)

var teamCmd = &cobra.Command{
	Use:   "team",
	Short: "Manage teams",
}

var teamCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a team and add its members",
	Args:  cobra.ExactArgs(1),
	RunE:  runTeamCreate,
}

func init() {
	teamCreateCmd.Flags().StringVar(&teamSlug, "slug", "", "URL slug (default: derived from the name)")
	teamCreateCmd.Flags().StringVar(&teamIcon, "icon", "users", "icon name shown on the badge")
	teamCreateCmd.Flags().StringVar(&teamOwner, "owner", "", "user ID of the team owner")
	teamCreateCmd.Flags().StringSliceVar(&teamMembers, "member", nil, "user ID to add as member (repeatable)")
	teamCmd.AddCommand(teamCreateCmd)
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

func slugify(name string) string {
	return strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(name), "-"), "-")
}

func runTeamCreate(cmd *cobra.Command, args []string) error {
	name := strings.TrimSpace(args[0])
	slug := teamSlug
	if slug == "" {
		slug = slugify(name)
	}
	if name == "" || slug == "" {
		return fmt.Errorf("team name %q gives an empty slug", args[0])
	}

	_, store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	team := &model.Team{
		Name:     name,
		Slug:     slug,
		IconName: teamIcon,
		ColorScheme: model.ColorScheme{
			BgColor:     "#1e293b",
			TextColor:   "#f8fafc",
			BorderColor: "#334155",
		},
	}
	if err := store.CreateTeam(cmd.Context(), team); err != nil {
		return fmt.Errorf("creating team: %w", err)
	}

	if teamOwner != "" {
		if err := store.AddTeamMember(cmd.Context(), team.ID, teamOwner, model.TeamRoleOwner); err != nil {
			return fmt.Errorf("adding owner %s: %w", teamOwner, err)
		}
	}
	for _, id := range teamMembers {
		if err := store.AddTeamMember(cmd.Context(), team.ID, id, model.TeamRoleMember); err != nil {
			return fmt.Errorf("adding member %s: %w", id, err)
		}
	}

	fmt.Fprintf(cmd.OutOrStdout(), "created team %s (%s)\n", team.Slug, team.ID)
	return nil
}
