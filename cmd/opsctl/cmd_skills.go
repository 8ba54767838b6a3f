package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sakif/opsdash/internal/apperror"
	"github.com/sakif/opsdash/internal/model"
)

// defaultCatalog is what a fresh deployment offers in the skill picker.
var defaultCatalog = []model.Skill{
	{Name: "Go", Category: "Language"},
	{Name: "TypeScript", Category: "Language"},
	{Name: "Python", Category: "Language"},
	{Name: "Rust", Category: "Language"},
	{Name: "Solidity", Category: "Language"},
	{Name: "React", Category: "Frontend"},
	{Name: "Next.js", Category: "Frontend"},
	{Name: "Tailwind CSS", Category: "Frontend"},
	{Name: "PostgreSQL", Category: "Data"},
	{Name: "Elasticsearch", Category: "Data"},
	{Name: "Docker", Category: "Infrastructure"},
	{Name: "Kubernetes", Category: "Infrastructure"},
	{Name: "Product Design", Category: "Design"},
	{Name: "Community Management", Category: "Growth"},
	{Name: "Technical Writing", Category: "Growth"},
}

// seedSkillsCmd fills the skill catalog
var seedSkillsCmd = &cobra.Command{
	Use:   "seed-skills",
	Short: "Insert the default skill catalog",
	Long: `Insert the default skill catalog. Skills that already exist
(compared case-insensitively) are left alone, so the command can be re-run.`,
	RunE: runSeedSkills,
}

func runSeedSkills(cmd *cobra.Command, _ []string) error {
	_, store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	added := 0
	for _, s := range defaultCatalog {
		skill := s
		err := store.CreateSkill(cmd.Context(), &skill)
		switch {
		case err == nil:
			added++
		case errors.Is(err, apperror.ErrConflict):
		default:
			return fmt.Errorf("creating skill %q: %w", s.Name, err)
		}
	}
	fmt.Fprintf(cmd.OutOrStdout(), "added %d of %d skills\n", added, len(defaultCatalog))
	return nil
}
