package cli

import (
	"context"

	"adaptive-quiz-service/internal/config"
	"adaptive-quiz-service/internal/infra/postgres"
	"github.com/spf13/cobra"
)

// NewSeedCmd loads a YAML question bank into Postgres.
func NewSeedCmd(configPath *string) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Upsert questions from a YAML file into Postgres",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if file == "" {
				file = questionsPath(cfg)
			}
			return runSeed(cmd.Context(), cfg, file)
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "question bank YAML (defaults to questions.path)")
	return cmd
}

func runSeed(ctx context.Context, cfg config.Config, file string) error {
	logger := newLogger(cfg)
	questions, err := config.LoadQuestions(file)
	if err != nil {
		return err
	}
	if err := runMigrations(ctx, cfg, logger); err != nil {
		return err
	}

	db := postgres.OpenDB(cfg.Postgres.URL)
	defer db.Close()
	if err := postgres.SaveQuestions(ctx, db, questions); err != nil {
		return err
	}
	logger.Info("questions seeded", "count", len(questions), "file", file)
	return nil
}
