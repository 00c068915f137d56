// Package client talks to the Checkpoint API on behalf of the console.
//
// ────────────────────────────────────────────────────────────────────
// LEARNING NOTE — one request path
// ────────────────────────────────────────────────────────────────────
// Every typed method (Login, ListEvents, SaveRules...) funnels through
// Client.do. That single function attaches the bearer token, unwraps the
// {"status_code", "data"} envelope, turns error bodies into *APIError and
// forgets the token on a 401. The typed methods only name the route and
// the Go types on either side.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/eventdesk/checkpoint/internal/models"
)

// ErrUnauthorized is returned when the API rejects the session. The stored
// token has already been cleared by the time the caller sees it.
var ErrUnauthorized = errors.New("session expired or missing, log in again")

// APIError is a non-2xx response other than 401.
type APIError struct {
	StatusCode int
	Message    string
	Details    map[string]string
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	if len(e.Details) == 0 {
		return fmt.Sprintf("api: %d %s", e.StatusCode, msg)
	}
	keys := make([]string, 0, len(e.Details))
	for k := range e.Details {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + ": " + e.Details[k]
	}
	return fmt.Sprintf("api: %d %s (%s)", e.StatusCode, msg, strings.Join(parts, "; "))
}

// Client is a typed Checkpoint API client. It is safe for concurrent use
// as long as its TokenStore is.
type Client struct {
	baseURL string
	http    *http.Client
	tokens  TokenStore
	logger  *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithLogger sets the logger used for per-request debug lines.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New returns a client for the API rooted at baseURL, e.g.
// "http://localhost:8080/api". A nil store keeps the token in memory.
func New(baseURL string, tokens TokenStore, opts ...Option) *Client {
	if tokens == nil {
		tokens = &MemoryTokenStore{}
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 15 * time.Second},
		tokens:  tokens,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// LoggedIn reports whether a token is stored. It does not check the token
// with the server; Me does.
func (c *Client) LoggedIn() bool {
	tok, err := c.tokens.Token()
	return err == nil && tok != ""
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	raw, err := c.send(ctx, method, path, query, body)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

// send performs the request and returns the unwrapped response payload.
func (c *Client) send(ctx context.Context, method, path string, query url.Values, body any) (json.RawMessage, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, rd)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if err := c.authorize(req.Header); err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s %s: %w", method, path, err)
	}
	c.logger.Debug("api request",
		"method", method, "path", path, "status", resp.StatusCode, "duration", time.Since(start))

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		if err := c.tokens.Clear(); err != nil {
			c.logger.Warn("clear token", "error", err)
		}
		return nil, ErrUnauthorized
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var eb struct {
			Error   string            `json:"error"`
			Details map[string]string `json:"details"`
		}
		if json.Unmarshal(raw, &eb) == nil {
			apiErr.Message = eb.Error
			apiErr.Details = eb.Details
		}
		return nil, apiErr
	}
	return unwrap(raw), nil
}

func (c *Client) authorize(h http.Header) error {
	tok, err := c.tokens.Token()
	if err != nil {
		return err
	}
	if tok != "" {
		h.Set("Authorization", "Bearer "+tok)
	}
	return nil
}

// unwrap returns the envelope's data when raw is {"status_code", "data"},
// and raw unchanged otherwise.
func unwrap(raw []byte) json.RawMessage {
	var env map[string]json.RawMessage
	if json.Unmarshal(raw, &env) != nil {
		return raw
	}
	data, hasData := env["data"]
	_, hasStatus := env["status_code"]
	if hasData && hasStatus {
		return data
	}
	return raw
}

// ── Auth ─────────────────────────────────────────────────────────────

// Login exchanges credentials for a token and stores it.
func (c *Client) Login(ctx context.Context, email, password string) (models.LoginResponse, error) {
	var out models.LoginResponse
	err := c.do(ctx, http.MethodPost, "/auth/login", nil,
		models.LoginRequest{Email: email, Password: password}, &out)
	if err != nil {
		return out, err
	}
	return out, c.tokens.SetToken(out.Token)
}

// Register creates an account and stores the returned token.
func (c *Client) Register(ctx context.Context, req models.RegisterRequest) (models.LoginResponse, error) {
	var out models.LoginResponse
	if err := c.do(ctx, http.MethodPost, "/auth/register", nil, req, &out); err != nil {
		return out, err
	}
	return out, c.tokens.SetToken(out.Token)
}

// Logout forgets the stored token.
func (c *Client) Logout() error { return c.tokens.Clear() }

// Me returns the logged-in user.
func (c *Client) Me(ctx context.Context) (models.User, error) {
	var u models.User
	err := c.do(ctx, http.MethodGet, "/auth/me", nil, nil, &u)
	return u, err
}

// ── Events ───────────────────────────────────────────────────────────

// EventFilter narrows ListEvents. Empty fields are not sent.
type EventFilter struct {
	Search string
	Status models.EventStatus
}

func (f EventFilter) query() url.Values {
	q := url.Values{}
	if f.Search != "" {
		q.Set("search", f.Search)
	}
	if f.Status != "" {
		q.Set("status", string(f.Status))
	}
	return q
}

func (c *Client) ListEvents(ctx context.Context, f EventFilter) ([]models.Event, error) {
	raw, err := c.send(ctx, http.MethodGet, "/events", f.query(), nil)
	if err != nil {
		return nil, err
	}
	return decodeList[models.Event](raw, "items", "data", "events")
}

func (c *Client) GetEvent(ctx context.Context, id string) (models.Event, error) {
	var e models.Event
	err := c.do(ctx, http.MethodGet, "/events/"+url.PathEscape(id), nil, nil, &e)
	return e, err
}

func (c *Client) CreateEvent(ctx context.Context, req models.EventRequest) (models.Event, error) {
	var e models.Event
	err := c.do(ctx, http.MethodPost, "/events", nil, req, &e)
	return e, err
}

func (c *Client) UpdateEvent(ctx context.Context, id string, req models.EventRequest) (models.Event, error) {
	var e models.Event
	err := c.do(ctx, http.MethodPut, "/events/"+url.PathEscape(id), nil, req, &e)
	return e, err
}

func (c *Client) DeleteEvent(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/events/"+url.PathEscape(id), nil, nil, nil)
}

// CheckInCode fetches a signed venue QR token for the event.
func (c *Client) CheckInCode(ctx context.Context, eventID string) (models.CheckInCodeResponse, error) {
	var out models.CheckInCodeResponse
	err := c.do(ctx, http.MethodGet, "/events/"+url.PathEscape(eventID)+"/checkin-code", nil, nil, &out)
	return out, err
}

// ── Participants ─────────────────────────────────────────────────────

// ParticipantFilter narrows ListParticipants. Empty fields are not sent.
type ParticipantFilter struct {
	Search  string
	EventID string
	CheckIn models.CheckInStatus
}

func (f ParticipantFilter) query() url.Values {
	q := url.Values{}
	if f.Search != "" {
		q.Set("search", f.Search)
	}
	if f.EventID != "" {
		q.Set("event_id", f.EventID)
	}
	if f.CheckIn != "" {
		q.Set("checkin", string(f.CheckIn))
	}
	return q
}

func (c *Client) ListParticipants(ctx context.Context, f ParticipantFilter) ([]models.Participant, error) {
	raw, err := c.send(ctx, http.MethodGet, "/participants", f.query(), nil)
	if err != nil {
		return nil, err
	}
	return decodeList[models.Participant](raw, "items", "data", "participants")
}

func (c *Client) CreateParticipant(ctx context.Context, req models.ParticipantRequest) (models.Participant, error) {
	var p models.Participant
	err := c.do(ctx, http.MethodPost, "/participants", nil, req, &p)
	return p, err
}

func (c *Client) UpdateParticipant(ctx context.Context, id string, req models.ParticipantRequest) (models.Participant, error) {
	var p models.Participant
	err := c.do(ctx, http.MethodPut, "/participants/"+url.PathEscape(id), nil, req, &p)
	return p, err
}

func (c *Client) DeleteParticipant(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/participants/"+url.PathEscape(id), nil, nil, nil)
}

// TransferParticipant moves a participant to another event. Their check-in
// is reset to pending.
func (c *Client) TransferParticipant(ctx context.Context, id, eventID string) (models.Participant, error) {
	var p models.Participant
	err := c.do(ctx, http.MethodPost, "/participants/"+url.PathEscape(id)+"/transfer", nil,
		models.TransferRequest{EventID: eventID}, &p)
	return p, err
}

// CheckIn performs a desk check-in at the server's current time.
func (c *Client) CheckIn(ctx context.Context, id string) (models.Participant, error) {
	var p models.Participant
	err := c.do(ctx, http.MethodPost, "/participants/"+url.PathEscape(id)+"/checkin", nil, nil, &p)
	return p, err
}

// SyncCheckIns pushes door-device scans.
func (c *Client) SyncCheckIns(ctx context.Context, records []models.CheckInSyncRecord) ([]models.SyncResult, error) {
	var out models.SyncCheckInsResponse
	err := c.do(ctx, http.MethodPost, "/sync/checkins", nil, models.SyncCheckInsRequest{Records: records}, &out)
	return out.Results, err
}

// ── Dashboard ────────────────────────────────────────────────────────

func (c *Client) Dashboard(ctx context.Context) (models.Dashboard, error) {
	var d models.Dashboard
	err := c.do(ctx, http.MethodGet, "/dashboard", nil, nil, &d)
	return d, err
}
