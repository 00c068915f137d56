// Package handlers contains the HTTP handler logic for the Checkpoint API.
//
// ────────────────────────────────────────────────────────────────────
// LEARNING NOTE — package structure
// ────────────────────────────────────────────────────────────────────
// All handler files share the same "handlers" package so they can call
// each other's helpers freely without exporting them. The files are
// split by domain (auth, events, participants, rules, sync, dashboard)
// purely for readability.
//
// The central type is Server. It holds what every handler needs: a
// database connection, the JWT secret, a logger and the live feed.
// Putting shared dependencies on a struct (instead of global variables)
// makes the code easier to test: each test creates its own Server with
// its own in-memory database and no test pollutes another.
//
// ────────────────────────────────────────────────────────────────────
// LEARNING NOTE — the response envelope
// ────────────────────────────────────────────────────────────────────
// Every successful response is wrapped as
//
//	{"status_code": 200, "data": <payload>}
//
// so the console client can unwrap one shape everywhere. Errors are not
// wrapped: they are {"error": "...", "details": {...}}.
package handlers

import (
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/eventdesk/checkpoint/internal/models"
	"github.com/google/uuid"
)

// envelope is the wrapper around every successful response body.
type envelope struct {
	StatusCode int `json:"status_code"`
	Data       any `json:"data"`
}

// errorBody is the shape of every error response.
type errorBody struct {
	Error   string            `json:"error"`
	Details map[string]string `json:"details,omitempty"`
}

// respond writes v as JSON inside the envelope with the given HTTP status.
// Setting Content-Type before WriteHeader is important: once WriteHeader
// is called the headers are flushed and cannot be changed.
func respond(w http.ResponseWriter, status int, body any) {
	writeJSON(w, status, envelope{StatusCode: status, Data: body})
}

// respondError sends a JSON object with a single "error" key,
// e.g. {"error": "event not found"}.
func respondError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

// respondInvalid sends 422 with per-field messages.
func respondInvalid(w http.ResponseWriter, msg string, details map[string]string) {
	writeJSON(w, http.StatusUnprocessableEntity, errorBody{Error: msg, Details: details})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Ignoring the encode error: if the client disconnected mid-write
	// there is nothing useful we can do.
	_ = json.NewEncoder(w).Encode(v)
}

// decode reads and parses a JSON request body into v.
func decode(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}

// Publisher pushes activities to connected live-feed clients.
// *live.Hub implements it.
type Publisher interface {
	Publish(a models.Activity)
}

// Server holds shared dependencies for all handlers.
type Server struct {
	// DB is the SQLite connection pool. database/sql is safe for
	// concurrent use; the pool manages multiple connections internally.
	DB *sql.DB
	// Secret is the HMAC key used to sign and verify JWTs.
	Secret string
	// Logger receives handler-level diagnostics. Nil means discard.
	Logger *slog.Logger
	// Live receives every recorded activity. Nil disables the feed.
	Live Publisher
	// Now is the clock used for check-ins and activity timestamps.
	// Nil means time.Now.
	Now func() time.Time
}

func (s *Server) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *Server) log() *slog.Logger {
	if s.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return s.Logger
}

// Record stores an activity for the dashboard feed and publishes it on
// the live feed. The sweep job records auto-closes through it too.
func (s *Server) Record(ctx context.Context, a models.Activity) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.At.IsZero() {
		a.At = s.now()
	}
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO activities (id, kind, participant, event, event_id, detail, at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.Kind, a.Participant, a.Event, a.EventID, a.Detail, a.At,
	)
	if err != nil {
		return err
	}
	if s.Live != nil {
		s.Live.Publish(a)
	}
	return nil
}

// record is Record for handlers: a failure to write the feed never fails
// the request that caused it, it is only logged.
func (s *Server) record(ctx context.Context, a models.Activity) {
	if err := s.Record(ctx, a); err != nil {
		s.log().Warn("record activity", "kind", a.Kind, "error", err)
	}
}
