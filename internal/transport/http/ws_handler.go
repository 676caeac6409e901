package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"live-quiz-client/internal/app"
	"live-quiz-client/internal/domain"
)

// Runtime is the part of the quiz runtime a renderer can drive.
type Runtime interface {
	Subscribe() (<-chan app.View, func())
	Submit(ctx context.Context, choiceID string) (domain.AnswerRecord, error)
	UseHint(ctx context.Context) (string, error)
	UseFiftyFifty(ctx context.Context) ([]string, error)
	Leaderboard(ctx context.Context) (domain.Standings, error)
}

type WSHandler struct {
	runtime  Runtime
	upgrader websocket.Upgrader
}

// NewWSHandler accepts upgrades only from the allowed browser origins. An
// empty list or "*" allows any origin.
func NewWSHandler(runtime Runtime, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		runtime: runtime,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[strings.ToLower(strings.TrimSuffix(o, "/"))] = struct{}{}
	}
	if len(set) == 0 {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			// not a browser
			return true
		}
		_, ok := set[strings.ToLower(origin)]
		if !ok {
			log.Warn().Str("origin", origin).Msg("ws upgrade from disallowed origin")
		}
		return ok
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type answerPayload struct {
	ChoiceID string `json:"choiceId"`
}

type answerResult struct {
	QuestionID string         `json:"questionId"`
	ChoiceID   string         `json:"choiceId"`
	Outcome    domain.Outcome `json:"outcome"`
	State      domain.TxState `json:"state"`
}

type hintPayload struct {
	Hint string `json:"hint"`
}

type fiftyFiftyPayload struct {
	HideChoiceIDs []string `json:"hideChoiceIds"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

// ServeWS upgrades the request, streams view snapshots and executes the
// participant's commands against the runtime.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("ws upgrade failed")
		return
	}
	defer conn.Close()

	views, cancel := h.runtime.Subscribe()
	defer cancel()

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	viewsDone := make(chan struct{})

	// single writer; gorilla connections do not support concurrent writes
	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				log.Debug().Err(err).Msg("ws write failed")
				return
			}
		}
	}()

	go func() {
		defer close(viewsDone)
		for {
			select {
			case v, ok := <-views:
				if !ok {
					return
				}
				select {
				case send <- outboundMessage[any]{Type: "view", Payload: v}:
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		reply := h.handle(r.Context(), inbound)
		select {
		case send <- reply:
		case <-writerDone:
		}
	}

	close(closeSignals)
	<-viewsDone
	close(send)
	<-writerDone
}

func (h *WSHandler) handle(ctx context.Context, inbound inboundMessage) outboundMessage[any] {
	switch inbound.Type {
	case "answer":
		var payload answerPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil || payload.ChoiceID == "" {
			return errorMessage(errors.New("invalid answer payload"))
		}
		rec, err := h.runtime.Submit(ctx, payload.ChoiceID)
		if err != nil {
			return errorMessage(err)
		}
		return outboundMessage[any]{Type: "answerResult", Payload: answerResult{
			QuestionID: rec.QuestionID,
			ChoiceID:   rec.ChosenChoiceID,
			Outcome:    rec.Outcome,
			State:      rec.State,
		}}
	case "hint":
		hint, err := h.runtime.UseHint(ctx)
		if err != nil {
			return errorMessage(err)
		}
		return outboundMessage[any]{Type: "hint", Payload: hintPayload{Hint: hint}}
	case "fiftyFifty":
		hide, err := h.runtime.UseFiftyFifty(ctx)
		if err != nil {
			return errorMessage(err)
		}
		return outboundMessage[any]{Type: "fiftyFifty", Payload: fiftyFiftyPayload{HideChoiceIDs: hide}}
	case "leaderboard":
		standings, err := h.runtime.Leaderboard(ctx)
		if err != nil {
			return errorMessage(err)
		}
		return outboundMessage[any]{Type: "leaderboard", Payload: standings}
	default:
		return errorMessage(errors.New("unsupported message type"))
	}
}

func errorMessage(err error) outboundMessage[any] {
	return outboundMessage[any]{Type: "error", Payload: errorPayload{
		Message:   err.Error(),
		Retryable: errors.Is(err, domain.ErrTransient),
	}}
}
