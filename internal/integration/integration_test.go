package integration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"

	"live-quiz-client/internal/domain"
	pgstore "live-quiz-client/internal/infra/postgres"
	pgmigrations "live-quiz-client/internal/infra/postgres/migrations"
	infraredis "live-quiz-client/internal/infra/redis"
	"live-quiz-client/internal/leaderboard"
)

func TestReadModelEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	seedQuiz(t, ctx, pgURL)

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	defer redisClient.Close()

	t.Run("questions load ordered and cache in redis", func(t *testing.T) {
		loader := pgstore.NewQuestionLoader(pool)
		cache := infraredis.NewQuestionCache(redisClient, loader, 5*time.Minute)

		content, err := cache.GetQuestions(ctx, "quiz-1")
		if err != nil {
			t.Fatalf("get questions: %v", err)
		}
		if content.QuestionDurationSeconds != 5 || len(content.Questions) != 2 {
			t.Fatalf("unexpected content %+v", content)
		}
		first, second := content.Questions[0], content.Questions[1]
		if first.ID != "q-easy" || second.ID != "q-medium" {
			t.Fatalf("expected easy level first, got %s then %s", first.ID, second.ID)
		}
		if first.Points != 1 || second.Points != 2 {
			t.Fatalf("expected level points 1 and 2, got %d and %d", first.Points, second.Points)
		}
		if first.Choices[0].Label != "A" || first.Choices[1].Label != "B" {
			t.Fatalf("expected choices sorted by label, got %+v", first.Choices)
		}
		if n, err := redisClient.Exists(ctx, "quiz:quiz-1:questions").Result(); err != nil || n != 1 {
			t.Fatalf("expected cached content in redis, got n=%d err=%v", n, err)
		}

		if _, err := loader.LoadQuestions(ctx, "missing"); !errors.Is(err, domain.ErrQuizNotFound) {
			t.Fatalf("expected quiz not found, got %v", err)
		}
	})

	t.Run("control record round trips", func(t *testing.T) {
		control := pgstore.NewControlSource(pool)
		rec, err := control.Control(ctx)
		if err != nil {
			t.Fatalf("control: %v", err)
		}
		if rec.Status != domain.StatusNone {
			t.Fatalf("expected seeded status none, got %s", rec.Status)
		}

		startsAt := time.Now().Add(time.Minute).UTC().Truncate(time.Second)
		if err := control.SetControl(ctx, domain.ControlRecord{Status: domain.StatusLive, StartsAt: &startsAt, ActiveQuizID: "quiz-1"}); err != nil {
			t.Fatalf("set control: %v", err)
		}
		rec, err = control.Control(ctx)
		if err != nil {
			t.Fatalf("control: %v", err)
		}
		if rec.Status != domain.StatusLive || rec.ActiveQuizID != "quiz-1" || rec.StartsAt == nil || !rec.StartsAt.Equal(startsAt) {
			t.Fatalf("unexpected control record %+v", rec)
		}
	})

	t.Run("leaderboard ranks by score then lifelines then latency", func(t *testing.T) {
		exec(t, ctx, pool, `
INSERT INTO quiz_leaderboard (quiz_id, user_id, username, score, lifelines_used, avg_correct_ms) VALUES
('quiz-1', 'u1', 'Alice', 3, 1, 900),
('quiz-1', 'u2', 'Bob', 3, 0, NULL),
('quiz-1', 'u3', 'Chen', 5, 2, 1500)`)

		standings, err := leaderboard.Fetch(ctx, pgstore.NewLeaderboardSource(pool), "quiz-1")
		if err != nil {
			t.Fatalf("leaderboard: %v", err)
		}
		var order []string
		for _, e := range standings.Entries {
			order = append(order, e.ParticipantID)
		}
		if strings.Join(order, ",") != "u3,u2,u1" {
			t.Fatalf("unexpected order %v", order)
		}
		if !standings.ShowTieBreak {
			t.Fatalf("expected tie-break panel for the tied score")
		}
	})

	t.Run("judged progress restores answers and timeouts", func(t *testing.T) {
		exec(t, ctx, pool, `
INSERT INTO quiz_answers (quiz_id, user_id, question_id, choice_id, is_correct) VALUES
('quiz-1', 'u1', 'q-easy', 'c-easy-b', true),
('quiz-1', 'u1', 'q-medium', NULL, false)`)
		exec(t, ctx, pool, `INSERT INTO quiz_scores (quiz_id, user_id, score) VALUES ('quiz-1', 'u1', 0)`)

		progress, err := pgstore.NewProgressReader(pool).LoadProgress(ctx, "quiz-1", "u1")
		if err != nil {
			t.Fatalf("load progress: %v", err)
		}
		outcomes := map[string]domain.Outcome{}
		for _, rec := range progress.Answers {
			outcomes[rec.QuestionID] = rec.Outcome
		}
		if outcomes["q-easy"] != domain.OutcomeCorrect || outcomes["q-medium"] != domain.OutcomeTimeout {
			t.Fatalf("unexpected outcomes %+v", outcomes)
		}
		if progress.Score == nil || *progress.Score != 0 {
			t.Fatalf("expected judged score 0, got %v", progress.Score)
		}
	})

	t.Run("redis progress store survives a new client", func(t *testing.T) {
		store := infraredis.NewProgressStore(redisClient, time.Hour)
		if err := store.SaveAnswer(ctx, "quiz-1", "u2", domain.AnswerRecord{
			QuestionID: "q-easy", ChosenChoiceID: "c-easy-a", Outcome: domain.OutcomeWrong, State: domain.TxConfirmed,
		}); err != nil {
			t.Fatalf("save answer: %v", err)
		}

		other, err := redisClientFromURL(redisURL)
		if err != nil {
			t.Fatalf("redis client: %v", err)
		}
		defer other.Close()
		progress, err := infraredis.NewProgressStore(other, time.Hour).LoadProgress(ctx, "quiz-1", "u2")
		if err != nil {
			t.Fatalf("load progress: %v", err)
		}
		if len(progress.Answers) != 1 || progress.Answers[0].Outcome != domain.OutcomeWrong {
			t.Fatalf("unexpected progress %+v", progress)
		}
	})
}

func exec(t *testing.T, ctx context.Context, pool *pgxpool.Pool, stmt string) {
	t.Helper()
	if _, err := pool.Exec(ctx, stmt); err != nil {
		t.Fatalf("exec: %v", err)
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "quiz", "POSTGRES_PASSWORD": "quizpass", "POSTGRES_DB": "quizdb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForLog("database system is ready to accept connections").WithOccurrence(2).WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://quiz:quizpass@%s:%s/quizdb?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(ctx)
	}
}

// seedQuiz migrates the schema and inserts a two-level quiz. The medium
// question is older so ordering must come from the level, not creation time.
func seedQuiz(t *testing.T, ctx context.Context, dsn string) {
	t.Helper()
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	statements := []string{
		`INSERT INTO quizzes (id, title) VALUES ('quiz-1', 'Integration quiz')`,
		`INSERT INTO quiz_settings (quiz_id, seconds_per_question) VALUES ('quiz-1', 5)`,
		`INSERT INTO levels (id, name, order_index) VALUES (1, 'easy', 1), (2, 'medium', 2)`,
		`INSERT INTO questions (id, quiz_id, level_id, question_text, hint, created_at) VALUES
			('q-medium', 'quiz-1', 2, 'Which port does Postgres listen on?', 'Four digits.', now() - interval '1 hour'),
			('q-easy', 'quiz-1', 1, 'What is 2 + 2?', NULL, now())`,
		`INSERT INTO choices (id, question_id, label, choice_text, is_correct) VALUES
			('c-easy-b', 'q-easy', 'B', '4', true),
			('c-easy-a', 'q-easy', 'A', '3', false),
			('c-med-a', 'q-medium', 'A', '5432', true),
			('c-med-b', 'q-medium', 'B', '6379', false)`,
	}
	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
