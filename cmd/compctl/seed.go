package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/noah-isme/mathcomp-api/internal/models"
	"github.com/noah-isme/mathcomp-api/internal/repository"
	"github.com/noah-isme/mathcomp-api/internal/service"
)

type seedFile struct {
	Competitions []seedCompetition `yaml:"competitions"`
}

type seedCompetition struct {
	Name            string  `yaml:"name"`
	Date            string  `yaml:"date"`
	Location        string  `yaml:"location"`
	Description     string  `yaml:"description"`
	RegistrationFee float64 `yaml:"registration_fee"`
}

var sampleCompetitions = []models.CreateCompetitionRequest{
	{
		Name:            "Regional Math Olympiad",
		Date:            "2026-11-14",
		Location:        "Central High School Auditorium",
		Description:     "Individual problem solving for grades 6 through 8.",
		RegistrationFee: 25,
	},
	{
		Name:            "Elementary Math Bowl",
		Date:            "2026-12-05",
		Location:        "Lincoln Elementary Gym",
		Description:     "Team relay rounds for grades 3 through 5.",
		RegistrationFee: 15,
	},
	{
		Name:            "State Mathcounts Qualifier",
		Date:            "2027-02-20",
		Location:        "State University Science Hall",
		Description:     "Sprint, target and countdown rounds.",
		RegistrationFee: 40,
	},
}

func newSeedCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Insert sample competitions, skipping names that already exist",
		RunE: func(cmd *cobra.Command, _ []string) error {
			items := sampleCompetitions
			if file != "" {
				f, err := os.Open(file)
				if err != nil {
					return err
				}
				defer f.Close()
				if items, err = readSeedFile(f); err != nil {
					return fmt.Errorf("parse %s: %w", file, err)
				}
			}
			return withEnv(cmd.Context(), func(ctx context.Context, e *env) error {
				competitions := service.NewCompetitionService(
					repository.NewCompetitionRepository(e.db),
					repository.NewRegistrationRepository(e.db),
					repository.NewAdminRepository(e.db),
					e.cache(ctx), e.cfg.Competitions.CacheTTL, nil, e.logger,
				)
				inserted, err := competitions.Seed(ctx, items)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "seeded %d of %d competition(s)\n", inserted, len(items))
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "YAML file with a top-level competitions list")
	return cmd
}

func readSeedFile(r io.Reader) ([]models.CreateCompetitionRequest, error) {
	var doc seedFile
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, err
	}
	if len(doc.Competitions) == 0 {
		return nil, fmt.Errorf("no competitions listed")
	}
	items := make([]models.CreateCompetitionRequest, 0, len(doc.Competitions))
	for _, c := range doc.Competitions {
		items = append(items, models.CreateCompetitionRequest{
			Name:            c.Name,
			Date:            c.Date,
			Location:        c.Location,
			Description:     c.Description,
			RegistrationFee: c.RegistrationFee,
		})
	}
	return items, nil
}
