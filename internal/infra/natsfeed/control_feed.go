package natsfeed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"live-quiz-client/internal/domain"
)

// Config holds the NATS connection settings for control-record notifications.
type Config struct {
	URL           string
	Subject       string
	MaxReconnects int
	ReconnectWait time.Duration
}

// DefaultConfig returns the defaults used when only a URL is configured.
func DefaultConfig() Config {
	return Config{
		URL:           nats.DefaultURL,
		Subject:       "quiz.control",
		MaxReconnects: -1,
		ReconnectWait: 2 * time.Second,
	}
}

// ControlFeed pushes control-record changes as they are published, so the
// runtime does not wait for its next poll.
type ControlFeed struct {
	nc      *nats.Conn
	subject string
}

func Connect(cfg Config) (*ControlFeed, error) {
	if cfg.Subject == "" {
		cfg.Subject = DefaultConfig().Subject
	}
	opts := []nats.Option{
		nats.Name("live-quiz-client"),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}
	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return &ControlFeed{nc: nc, subject: cfg.Subject}, nil
}

// Run delivers each decoded record to handle until ctx ends. Undecodable
// messages are logged and skipped.
func (f *ControlFeed) Run(ctx context.Context, handle func(domain.ControlRecord)) error {
	msgs := make(chan *nats.Msg, 16)
	sub, err := f.nc.ChanSubscribe(f.subject, msgs)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", f.subject, err)
	}
	defer func() {
		if err := sub.Unsubscribe(); err != nil && err != nats.ErrConnectionClosed {
			log.Debug().Err(err).Msg("NATS unsubscribe")
		}
	}()

	log.Info().Str("subject", f.subject).Msg("listening for control updates")
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-msgs:
			rec, err := DecodeControl(msg.Data)
			if err != nil {
				log.Warn().Err(err).Str("subject", msg.Subject).Msg("skipping control update")
				continue
			}
			handle(rec)
		}
	}
}

// Publish sends a control record, for operators and tests.
func (f *ControlFeed) Publish(rec domain.ControlRecord) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode control record: %w", err)
	}
	if err := f.nc.Publish(f.subject, payload); err != nil {
		return err
	}
	return f.nc.Flush()
}

func (f *ControlFeed) Close() {
	f.nc.Close()
}

// DecodeControl parses a control-record payload. Unknown statuses read as none.
func DecodeControl(data []byte) (domain.ControlRecord, error) {
	var raw struct {
		Status       string     `json:"status"`
		StartsAt     *time.Time `json:"starts_at"`
		ActiveQuizID *string    `json:"active_quiz_id"`
		UpdatedAt    *time.Time `json:"updated_at"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return domain.ControlRecord{}, fmt.Errorf("decode control record: %w", err)
	}
	rec := domain.ControlRecord{
		Status:   domain.ParseStatus(raw.Status),
		StartsAt: raw.StartsAt,
	}
	if raw.ActiveQuizID != nil {
		rec.ActiveQuizID = *raw.ActiveQuizID
	}
	if raw.UpdatedAt != nil {
		rec.UpdatedAt = *raw.UpdatedAt
	}
	return rec, nil
}
