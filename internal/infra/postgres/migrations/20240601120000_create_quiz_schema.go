package migrations

import (
	"context"
	_ "embed"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"
)

//go:embed 0001_create_quiz_schema.sql
var createQuizSchemaSQL string

// Migrations holds the client-side read model schema.
var Migrations = migrate.NewMigrations()

func init() {
	Migrations.MustRegister(
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.ExecContext(ctx, createQuizSchemaSQL)
			return err
		},
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.ExecContext(ctx, `
DROP TABLE IF EXISTS quiz_leaderboard;
DROP TABLE IF EXISTS quiz_scores;
DROP TABLE IF EXISTS quiz_answers;
DROP VIEW IF EXISTS choices_public;
DROP TABLE IF EXISTS choices;
DROP TABLE IF EXISTS questions;
DROP TABLE IF EXISTS levels;
DROP TABLE IF EXISTS quiz_control;
DROP TABLE IF EXISTS quiz_settings;
DROP TABLE IF EXISTS quizzes;`)
			return err
		},
	)
}
