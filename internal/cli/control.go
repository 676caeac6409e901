package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"live-quiz-client/internal/config"
	"live-quiz-client/internal/domain"
	"live-quiz-client/internal/infra/natsfeed"
	pgstore "live-quiz-client/internal/infra/postgres"
)

// NewControlCmd writes the control record and announces it on NATS. It stands
// in for the session controller when running locally.
func NewControlCmd(configPath *string) *cobra.Command {
	var (
		status   string
		quizID   string
		startsIn time.Duration
	)
	cmd := &cobra.Command{
		Use:   "control",
		Short: "Set the quiz control record (status, active quiz, start time)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			rec := domain.ControlRecord{
				Status:       domain.ParseStatus(status),
				ActiveQuizID: quizID,
				UpdatedAt:    time.Now().UTC(),
			}
			if rec.Status == domain.StatusNone && status != string(domain.StatusNone) {
				return fmt.Errorf("unknown status %q", status)
			}
			if rec.Status == domain.StatusScheduled || rec.Status == domain.StatusLive {
				startsAt := time.Now().Add(startsIn).UTC()
				rec.StartsAt = &startsAt
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			return applyControl(ctx, cfg, rec)
		},
	}
	cmd.Flags().StringVar(&status, "status", string(domain.StatusScheduled), "none, scheduled, live or finished")
	cmd.Flags().StringVar(&quizID, "quiz", "", "active quiz id")
	cmd.Flags().DurationVar(&startsIn, "starts-in", 30*time.Second, "delay until the quiz starts")
	return cmd
}

func applyControl(ctx context.Context, cfg config.Config, rec domain.ControlRecord) error {
	if cfg.Postgres.URL == "" && cfg.NATS.URL == "" {
		return fmt.Errorf("neither postgres nor nats configured")
	}

	if cfg.Postgres.URL != "" {
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer pool.Close()
		if err := pgstore.NewControlSource(pool).SetControl(ctx, rec); err != nil {
			return err
		}
	}

	if cfg.NATS.URL != "" {
		natsCfg := natsfeed.DefaultConfig()
		natsCfg.URL = cfg.NATS.URL
		natsCfg.Subject = cfg.ControlSubject()
		natsCfg.MaxReconnects = 0
		feed, err := natsfeed.Connect(natsCfg)
		if err != nil {
			return err
		}
		defer feed.Close()
		if err := feed.Publish(rec); err != nil {
			return fmt.Errorf("publish control record: %w", err)
		}
	}

	ev := log.Info().Str("status", string(rec.Status)).Str("quiz_id", rec.ActiveQuizID)
	if rec.StartsAt != nil {
		ev = ev.Time("starts_at", *rec.StartsAt)
	}
	ev.Msg("control record updated")
	return nil
}
