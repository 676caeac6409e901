package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Addr           string   `yaml:"addr"`
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"server"`
	Judge struct {
		BaseURL string `yaml:"base_url"`
		Timeout string `yaml:"timeout"`
	} `yaml:"judge"`
	Session struct {
		Token         string `yaml:"token"`
		ParticipantID string `yaml:"participant_id"`
		DisplayName   string `yaml:"display_name"`
	} `yaml:"session"`
	Timing struct {
		Tick               string `yaml:"tick"`
		SyncInterval       string `yaml:"sync_interval"`
		RevealDwell        string `yaml:"reveal_dwell"`
		PreCountdownWindow string `yaml:"pre_countdown_window"`
		ControlPoll        string `yaml:"control_poll"`
		SessionCheck       string `yaml:"session_check"`
	} `yaml:"timing"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	NATS struct {
		URL            string `yaml:"url"`
		ControlSubject string `yaml:"control_subject"`
	} `yaml:"nats"`
	Quiz struct {
		TTL             string `yaml:"ttl"`
		QuestionSeconds int    `yaml:"question_seconds"`
	} `yaml:"quiz"`
}

// Timing is the parsed timing section.
type Timing struct {
	Tick               time.Duration
	SyncInterval       time.Duration
	RevealDwell        time.Duration
	PreCountdownWindow time.Duration
	ControlPoll        time.Duration
	SessionCheck       time.Duration
}

const (
	DefaultAddr            = ":8080"
	DefaultJudgeTimeout    = 10 * time.Second
	DefaultQuestionSeconds = 3
	DefaultControlSubject  = "quiz.control"
)

// Load reads YAML config from path. A missing file yields the zero config so the
// client can run from environment variables alone. QUIZ_SESSION_TOKEN overrides
// the configured token.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return cfg, err
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	if tok := os.Getenv("QUIZ_SESSION_TOKEN"); tok != "" {
		cfg.Session.Token = tok
	}
	if id := os.Getenv("QUIZ_PARTICIPANT_ID"); id != "" {
		cfg.Session.ParticipantID = id
	}
	if url := os.Getenv("JUDGE_BASE_URL"); url != "" {
		cfg.Judge.BaseURL = url
	}
	return cfg, nil
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}

// ParsedTiming returns the timing section with defaults applied.
func (c Config) ParsedTiming() Timing {
	return Timing{
		Tick:               TTLDuration(c.Timing.Tick, 200*time.Millisecond),
		SyncInterval:       TTLDuration(c.Timing.SyncInterval, 15*time.Second),
		RevealDwell:        TTLDuration(c.Timing.RevealDwell, 1200*time.Millisecond),
		PreCountdownWindow: TTLDuration(c.Timing.PreCountdownWindow, 10*time.Second),
		ControlPoll:        TTLDuration(c.Timing.ControlPoll, 2*time.Second),
		SessionCheck:       TTLDuration(c.Timing.SessionCheck, 15*time.Second),
	}
}

func (c Config) ServerAddr() string {
	if c.Server.Addr == "" {
		return DefaultAddr
	}
	return c.Server.Addr
}

func (c Config) JudgeTimeout() time.Duration {
	return TTLDuration(c.Judge.Timeout, DefaultJudgeTimeout)
}

func (c Config) QuestionSeconds() int {
	if c.Quiz.QuestionSeconds <= 0 {
		return DefaultQuestionSeconds
	}
	return c.Quiz.QuestionSeconds
}

func (c Config) ControlSubject() string {
	if c.NATS.ControlSubject == "" {
		return DefaultControlSubject
	}
	return c.NATS.ControlSubject
}

// Validate rejects timing values that would stall the runtime. The dwell is
// checked against the question duration once a quiz is loaded.
func (c Config) Validate() error {
	t := c.ParsedTiming()
	named := []struct {
		name string
		d    time.Duration
	}{
		{"timing.tick", t.Tick},
		{"timing.sync_interval", t.SyncInterval},
		{"timing.reveal_dwell", t.RevealDwell},
		{"timing.pre_countdown_window", t.PreCountdownWindow},
		{"timing.control_poll", t.ControlPoll},
		{"timing.session_check", t.SessionCheck},
		{"judge.timeout", c.JudgeTimeout()},
	}
	for _, n := range named {
		if n.d <= 0 {
			return fmt.Errorf("%s must be positive, got %v", n.name, n.d)
		}
	}
	if t.Tick > time.Second {
		return fmt.Errorf("timing.tick must be at most 1s, got %v", t.Tick)
	}
	return nil
}

// Online reports whether a remote judge is configured.
func (c Config) Online() bool {
	return c.Judge.BaseURL != ""
}
