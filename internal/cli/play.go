package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"live-quiz-client/internal/app"
	"live-quiz-client/internal/config"
	"live-quiz-client/internal/domain"
	"live-quiz-client/internal/infra/memory"
	"live-quiz-client/internal/infra/natsfeed"
	pgstore "live-quiz-client/internal/infra/postgres"
	redisstore "live-quiz-client/internal/infra/redis"
	"live-quiz-client/internal/judge"
	"live-quiz-client/internal/reveal"
	transport "live-quiz-client/internal/transport/http"
)

const demoToken = "demo-token"

// NewPlayCmd builds the subcommand that joins the active quiz and serves the
// local view feed.
func NewPlayCmd(configPath *string) *cobra.Command {
	var (
		offline bool
		addr    string
	)
	cmd := &cobra.Command{
		Use:   "play",
		Short: "Follow the active quiz and serve the view feed on /ws",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return runPlay(cmd.Context(), cfg, offline)
		},
	}
	cmd.Flags().BoolVar(&offline, "offline", false, "play the built-in demo quiz against an in-process judge")
	cmd.Flags().StringVar(&addr, "addr", "", "listen address for the view feed (overrides server.addr)")
	return cmd
}

// backends are the optional connections play was configured with.
type backends struct {
	pool  *pgxpool.Pool
	redis *redis.Client
	feed  *natsfeed.ControlFeed
}

func (b *backends) Close() {
	if b.feed != nil {
		b.feed.Close()
	}
	if b.redis != nil {
		_ = b.redis.Close()
	}
	if b.pool != nil {
		b.pool.Close()
	}
}

func runPlay(parent context.Context, cfg config.Config, offline bool) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	be, err := connectBackends(ctx, cfg, offline)
	if err != nil {
		return err
	}
	defer be.Close()

	timing := cfg.ParsedTiming()
	opts := app.Options{
		Tick:               timing.Tick,
		SyncInterval:       timing.SyncInterval,
		RevealDwell:        timing.RevealDwell,
		PreCountdownWindow: timing.PreCountdownWindow,
		ControlPoll:        timing.ControlPoll,
		SessionCheck:       timing.SessionCheck,
	}

	var (
		deps    app.Deps
		session domain.SessionContext
	)
	if offline {
		deps, session = offlineDeps(cfg)
	} else {
		deps, session, err = onlineDeps(ctx, cfg, be)
		if err != nil {
			return err
		}
	}
	deps.Feedback = reveal.FeedbackFunc(logReveal)

	rt := app.NewRuntime(session, deps, opts)
	defer rt.Close()
	rt.Start()

	if offline {
		startsAt := time.Now().Add(timing.PreCountdownWindow)
		rt.ApplyControl(ctx, domain.ControlRecord{
			Status:       domain.StatusLive,
			StartsAt:     &startsAt,
			ActiveQuizID: memory.DemoQuizID,
		})
	}

	server := &http.Server{
		Addr:        cfg.ServerAddr(),
		Handler:     transport.NewRouter(transport.NewWSHandler(rt, cfg.Server.AllowedOrigins), cfg.Server.AllowedOrigins),
		ReadTimeout: 15 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", server.Addr).Bool("offline", offline).Msg("serving view feed")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("view feed: %w", err)
		}
		return nil
	})
	if be.feed != nil {
		g.Go(func() error {
			return be.feed.Run(gctx, func(rec domain.ControlRecord) {
				rt.ApplyControl(gctx, rec)
			})
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func connectBackends(ctx context.Context, cfg config.Config, offline bool) (*backends, error) {
	be := &backends{}
	if offline {
		return be, nil
	}

	if cfg.Postgres.URL != "" {
		if err := RunMigrations(ctx, cfg.Postgres.URL); err != nil {
			return nil, err
		}
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		be.pool = pool
	}
	if cfg.Redis.Addr != "" {
		be.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}
	if cfg.NATS.URL != "" {
		natsCfg := natsfeed.DefaultConfig()
		natsCfg.URL = cfg.NATS.URL
		natsCfg.Subject = cfg.ControlSubject()
		feed, err := natsfeed.Connect(natsCfg)
		if err != nil {
			// polling still delivers control changes
			log.Warn().Err(err).Msg("control feed unavailable, relying on polling")
		} else {
			be.feed = feed
		}
	}
	return be, nil
}

func onlineDeps(ctx context.Context, cfg config.Config, be *backends) (app.Deps, domain.SessionContext, error) {
	if !cfg.Online() {
		return app.Deps{}, domain.SessionContext{}, errors.New("judge.base_url not configured (use --offline for the demo)")
	}
	if be.pool == nil {
		return app.Deps{}, domain.SessionContext{}, errors.New("postgres.url not configured, questions cannot be loaded")
	}

	client := judge.NewClient(cfg.Judge.BaseURL, cfg.JudgeTimeout())
	loader := pgstore.NewQuestionLoader(be.pool)
	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)

	deps := app.Deps{
		Judge:       client,
		Remote:      pgstore.NewProgressReader(be.pool),
		Control:     pgstore.NewControlSource(be.pool),
		Leaderboard: pgstore.NewLeaderboardSource(be.pool),
	}
	var store app.ProgressStore
	if be.redis != nil {
		deps.Questions = redisstore.NewQuestionCache(be.redis, loader, quizTTL)
		store = redisstore.NewProgressStore(be.redis, config.TTLDuration(cfg.Redis.TTL, 24*time.Hour))
	} else {
		deps.Questions = memory.NewQuestionRepository(loader, quizTTL, nil)
		store = memory.NewProgressStore()
	}
	deps.Progress = store

	session := domain.SessionContext{
		Token:         cfg.Session.Token,
		ParticipantID: cfg.Session.ParticipantID,
		DisplayName:   cfg.Session.DisplayName,
	}
	if session.Token == "" && session.ParticipantID != "" {
		tok, err := store.SessionToken(ctx, session.ParticipantID)
		if err != nil {
			log.Warn().Err(err).Msg("reading saved session token failed")
		}
		session.Token = tok
	}
	if session.Token != "" {
		p, err := client.Me(ctx, session.Token)
		switch {
		case errors.Is(err, domain.ErrSessionExpired):
			log.Warn().Msg("saved session token rejected, sign in required")
			session.Token = ""
			if session.ParticipantID != "" {
				_ = store.ClearSessionToken(ctx, session.ParticipantID)
			}
		case err != nil:
			log.Warn().Err(err).Msg("could not verify session, continuing")
		default:
			if session.ParticipantID == "" {
				session.ParticipantID = p.ID
			}
			if session.DisplayName == "" {
				session.DisplayName = p.Username
			}
		}
	}
	if session.Token != "" && session.ParticipantID != "" {
		if err := store.SaveSessionToken(ctx, session.ParticipantID, session.Token); err != nil {
			log.Warn().Err(err).Msg("saving session token failed")
		}
	}
	return deps, session, nil
}

func offlineDeps(cfg config.Config) (app.Deps, domain.SessionContext) {
	content, keyed := memory.DemoQuiz(cfg.QuestionSeconds())
	session := domain.SessionContext{Token: demoToken, ParticipantID: "demo-player", DisplayName: "Demo Player"}
	if cfg.Session.DisplayName != "" {
		session.DisplayName = cfg.Session.DisplayName
	}

	j := memory.NewJudge(nil)
	j.AddParticipant(demoToken, domain.Participant{ID: session.ParticipantID, Username: session.DisplayName})
	j.AddQuiz(memory.DemoQuizID, keyed)

	loader := memory.NewStaticQuestionLoader(map[string]domain.QuizContent{memory.DemoQuizID: content})
	return app.Deps{
		Judge:       j,
		Questions:   memory.NewQuestionRepository(loader, time.Hour, nil),
		Progress:    memory.NewProgressStore(),
		Leaderboard: j,
	}, session
}

func logReveal(ev reveal.Event) {
	e := log.Info()
	if ev.Indeterminate {
		e = log.Warn()
	}
	e.Str("question_id", ev.QuestionID).
		Int("index", ev.Index).
		Str("outcome", string(ev.Outcome)).
		Bool("replay", ev.Replay).
		Msg("question revealed")
}
