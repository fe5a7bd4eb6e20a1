package main

import (
	"github.com/spf13/cobra"

	"github.com/skshohagmiah/flindoc/internal/exercise"
)

var exerciseCmd = &cobra.Command{
	Use:   "exercise",
	Short: "Seed the sample movie data and run the walkthrough queries",
	Long: `Seeds the movies, users and comments collections with the embedded sample
data (unless they already hold documents) and runs the create, read, update,
delete and aggregate walkthrough, printing every result.

Storage follows the configuration, so with the badger engine the changes
persist between runs.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		log, err := newLogger(cfg)
		if err != nil {
			return err
		}
		defer log.Sync()

		ctx := cmd.Context()
		database, err := openDatabase(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer database.Close()

		if err := exercise.Seed(ctx, database); err != nil {
			return err
		}
		_, err = exercise.NewRunner(database, cmd.OutOrStdout(), log).Run(ctx)
		return err
	},
}
