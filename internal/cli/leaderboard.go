package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/spf13/cobra"

	"live-quiz-client/internal/config"
	"live-quiz-client/internal/domain"
	pgstore "live-quiz-client/internal/infra/postgres"
	"live-quiz-client/internal/leaderboard"
)

// NewLeaderboardCmd prints the ranked standings of a quiz.
func NewLeaderboardCmd(configPath *string) *cobra.Command {
	var (
		quizID string
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "leaderboard",
		Short: "Print the ranked leaderboard of a quiz",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if cfg.Postgres.URL == "" {
				return fmt.Errorf("postgres url not configured")
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
			if err != nil {
				return fmt.Errorf("connect postgres: %w", err)
			}
			defer pool.Close()

			if quizID == "" {
				rec, err := pgstore.NewControlSource(pool).Control(ctx)
				if err != nil {
					return err
				}
				quizID = rec.ActiveQuizID
			}
			if quizID == "" {
				return domain.ErrNoActiveQuiz
			}

			standings, err := leaderboard.Fetch(ctx, pgstore.NewLeaderboardSource(pool), quizID)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(standings)
			}
			return printStandings(cmd.OutOrStdout(), standings)
		},
	}
	cmd.Flags().StringVar(&quizID, "quiz", "", "quiz id (defaults to the active quiz)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	return cmd
}

func printStandings(w io.Writer, s domain.Standings) error {
	if len(s.Entries) == 0 {
		_, err := fmt.Fprintf(w, "no results for %s yet\n", s.QuizID)
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RANK\tPLAYER\tSCORE\tLIFELINES\tAVG MS")
	for _, e := range s.Entries {
		latency := "-"
		if e.MeanCorrectAnswerLatencyMs > 0 {
			latency = fmt.Sprint(e.MeanCorrectAnswerLatencyMs)
		}
		name := e.DisplayName
		if name == "" {
			name = e.ParticipantID
		}
		fmt.Fprintf(tw, "%d\t%s\t%d\t%d\t%s\n", e.Rank, name, e.Score, e.LifelinesUsedCount, latency)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if s.ShowTieBreak {
		_, err := fmt.Fprintln(w, "ties on score are broken by fewer lifelines, then faster average correct answer")
		return err
	}
	return nil
}
