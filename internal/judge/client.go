package judge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"live-quiz-client/internal/domain"
)

const (
	pathAnswer     = "/api/quiz/answer"
	pathTimeout    = "/api/quiz/timeout"
	pathHint       = "/api/quiz/use-hint"
	pathFiftyFifty = "/api/quiz/use-fifty"
	pathServerTime = "/api/server-time"
	pathMe         = "/api/me"

	headerIdempotencyKey = "Idempotency-Key"
	contentTypeJSON      = "application/json"
)

// Client talks JSON over HTTP to the remote judge.
type Client struct {
	baseURL string
	client  *http.Client
	headers map[string]string
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		headers: map[string]string{"Accept": contentTypeJSON},
	}
}

func (c *Client) SetHeader(key, value string) {
	c.headers[key] = value
}

func (c *Client) SubmitAnswer(ctx context.Context, req domain.AnswerRequest) (domain.AnswerVerdict, error) {
	var out domain.AnswerVerdict
	err := c.do(ctx, http.MethodPost, pathAnswer, req.EventID, req, &out)
	return out, err
}

func (c *Client) ApplyTimeout(ctx context.Context, req domain.TimeoutRequest) (domain.TimeoutVerdict, error) {
	var out domain.TimeoutVerdict
	err := c.do(ctx, http.MethodPost, pathTimeout, req.EventID, req, &out)
	return out, err
}

func (c *Client) UseHint(ctx context.Context, req domain.LifelineRequest) (domain.HintGrant, error) {
	var out domain.HintGrant
	err := c.do(ctx, http.MethodPost, pathHint, req.EventID, req, &out)
	return out, err
}

func (c *Client) UseFiftyFifty(ctx context.Context, req domain.LifelineRequest) (domain.FiftyFiftyGrant, error) {
	var out domain.FiftyFiftyGrant
	err := c.do(ctx, http.MethodPost, pathFiftyFifty, req.EventID, req, &out)
	return out, err
}

// ServerTime returns the raw server time reply; shape normalization is left to the caller.
func (c *Client) ServerTime(ctx context.Context) (json.RawMessage, error) {
	var out json.RawMessage
	if err := c.do(ctx, http.MethodGet, pathServerTime, "", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Me validates the session token and returns the signed-in participant.
func (c *Client) Me(ctx context.Context, token string) (domain.Participant, error) {
	if token == "" {
		return domain.Participant{}, domain.ErrSessionExpired
	}
	var out struct {
		User domain.Participant `json:"user"`
	}
	body := map[string]string{"session_token": token}
	if err := c.do(ctx, http.MethodPost, pathMe, "", body, &out); err != nil {
		return domain.Participant{}, err
	}
	return out.User, nil
}

func (c *Client) do(ctx context.Context, method, endpoint, eventID string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s: %w", endpoint, err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, body)
	if err != nil {
		return fmt.Errorf("create request %s: %w", endpoint, err)
	}
	for key, value := range c.headers {
		req.Header.Set(key, value)
	}
	if in != nil {
		req.Header.Set("Content-Type", contentTypeJSON)
	}
	if eventID != "" {
		req.Header.Set(headerIdempotencyKey, eventID)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("%s: %w", endpoint, ctxErr)
		}
		return fmt.Errorf("%s: %w: %v", endpoint, domain.ErrTransient, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s: %w: read body: %v", endpoint, domain.ErrTransient, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusError(endpoint, resp.StatusCode, raw)
	}
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s: %w", endpoint, err)
	}
	return nil
}

// statusError classifies a non-2xx reply.
func statusError(endpoint string, status int, body []byte) error {
	msg := message(body)
	var kind error
	switch {
	case status == http.StatusUnauthorized:
		kind = domain.ErrSessionExpired
	case status == http.StatusRequestTimeout, status == http.StatusTooManyRequests, status >= 500:
		kind = domain.ErrTransient
	default:
		kind = domain.ErrRejected
	}
	return &StatusError{Endpoint: endpoint, Code: status, Message: msg, kind: kind}
}

// StatusError is a non-2xx reply from the judge. It unwraps to the matching
// domain sentinel.
type StatusError struct {
	Endpoint string
	Code     int
	Message  string
	kind     error
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: status %d: %v", e.Endpoint, e.Code, e.kind)
	}
	return fmt.Sprintf("%s: status %d: %s", e.Endpoint, e.Code, e.Message)
}

func (e *StatusError) Unwrap() error { return e.kind }

// Message returns the judge's message from err, if it carries one.
func Message(err error) string {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Message
	}
	return ""
}

func message(body []byte) string {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return ""
	}
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(trimmed, &payload); err == nil {
		if payload.Message != "" {
			return payload.Message
		}
		return payload.Error
	}
	return string(trimmed)
}
