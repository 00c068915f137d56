package handlers

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strings"

	"github.com/eventdesk/checkpoint/internal/auth"
	"github.com/eventdesk/checkpoint/internal/models"
	"github.com/google/uuid"
)

// minEventText is the minimum length of an event's name and location.
const minEventText = 3

// eventColumns is the column list every event query selects, in the order
// scanEvent expects.
const eventColumns = `id, name, starts_at, location, status, check_in_code, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (models.Event, error) {
	var e models.Event
	err := row.Scan(&e.ID, &e.Name, &e.StartsAt, &e.Location, &e.Status,
		&e.CheckInCode, &e.CreatedAt, &e.UpdatedAt)
	return e, err
}

// checkEvent trims and sanitises req in place and returns per-field
// problems, or nil when the request is acceptable.
func checkEvent(req *models.EventRequest) map[string]string {
	req.Name = strings.TrimSpace(req.Name)
	req.Location = strings.TrimSpace(req.Location)
	if req.Status != models.EventStatusActive && req.Status != models.EventStatusClosed {
		req.Status = models.EventStatusActive
	}
	req.StartsAt = req.StartsAt.UTC()

	details := map[string]string{}
	if len([]rune(req.Name)) < minEventText {
		details["name"] = "must have at least 3 characters"
	}
	if len([]rune(req.Location)) < minEventText {
		details["location"] = "must have at least 3 characters"
	}
	if req.StartsAt.IsZero() {
		details["starts_at"] = "is required"
	}
	if len(details) == 0 {
		return nil
	}
	return details
}

// CreateEvent handles POST /api/events  (admin only)
func (s *Server) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var req models.EventRequest
	if err := decode(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if details := checkEvent(&req); details != nil {
		respondInvalid(w, "invalid event", details)
		return
	}

	now := s.now()
	event := models.Event{
		ID:       uuid.NewString(),
		Name:     req.Name,
		StartsAt: req.StartsAt,
		Location: req.Location,
		Status:   req.Status,
		// CheckInCode is the shared secret baked into venue QR tokens.
		// Only admins can obtain a token via GET /api/events/{id}/checkin-code.
		CheckInCode: uuid.NewString(),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	_, err := s.DB.ExecContext(r.Context(),
		`INSERT INTO events (id, name, starts_at, location, status, check_in_code, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		event.ID, event.Name, event.StartsAt, event.Location, event.Status,
		event.CheckInCode, event.CreatedAt, event.UpdatedAt,
	)
	if err != nil {
		s.log().Error("create event", "error", err)
		respondError(w, http.StatusInternalServerError, "could not create event")
		return
	}

	s.record(r.Context(), models.Activity{
		Kind: models.ActivityEventCreated, Event: event.Name, EventID: event.ID,
	})
	respond(w, http.StatusCreated, event)
}

// ListEvents handles GET /api/events?search=&status=
//
// search matches name or location; SQLite's LIKE is case-insensitive for
// ASCII, which is what the console search box needs.
func (s *Server) ListEvents(w http.ResponseWriter, r *http.Request) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE 1=1`
	var args []any
	if search := strings.TrimSpace(r.URL.Query().Get("search")); search != "" {
		query += ` AND (name LIKE ? OR location LIKE ?)`
		like := "%" + search + "%"
		args = append(args, like, like)
	}
	if status := r.URL.Query().Get("status"); status != "" {
		query += ` AND status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY starts_at ASC`

	rows, err := s.DB.QueryContext(r.Context(), query, args...)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "database error")
		return
	}
	defer rows.Close()

	// Initialise to an empty slice, not nil, so JSON encodes as [] not null.
	events := []models.Event{}
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "scan error")
			return
		}
		events = append(events, e)
	}
	// rows.Err() catches any error that occurred during iteration;
	// it's separate from rows.Next() reaching EOF.
	if err := rows.Err(); err != nil {
		respondError(w, http.StatusInternalServerError, "rows error")
		return
	}

	respond(w, http.StatusOK, events)
}

// GetEvent handles GET /api/events/{id}
// r.PathValue("id") is the Go 1.22+ way to read path parameters from the
// standard library mux.
func (s *Server) GetEvent(w http.ResponseWriter, r *http.Request) {
	e, ok := s.eventOr404(w, r, r.PathValue("id"))
	if !ok {
		return
	}
	respond(w, http.StatusOK, e)
}

// UpdateEvent handles PUT /api/events/{id}  (admin only)
func (s *Server) UpdateEvent(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req models.EventRequest
	if err := decode(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if details := checkEvent(&req); details != nil {
		respondInvalid(w, "invalid event", details)
		return
	}

	res, err := s.DB.ExecContext(r.Context(),
		`UPDATE events SET name = ?, starts_at = ?, location = ?, status = ?, updated_at = ?
		 WHERE id = ?`,
		req.Name, req.StartsAt, req.Location, req.Status, s.now(), id,
	)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "could not update event")
		return
	}
	if n, _ := res.RowsAffected(); n == 0 {
		respondError(w, http.StatusNotFound, "event not found")
		return
	}

	e, ok := s.eventOr404(w, r, id)
	if !ok {
		return
	}
	s.record(r.Context(), models.Activity{
		Kind: models.ActivityEventUpdated, Event: e.Name, EventID: e.ID,
	})
	respond(w, http.StatusOK, e)
}

// DeleteEvent handles DELETE /api/events/{id}  (admin only)
//
// Participants and check-in rules go with the event (ON DELETE CASCADE),
// which needs the foreign_keys pragma on the connection.
func (s *Server) DeleteEvent(w http.ResponseWriter, r *http.Request) {
	e, ok := s.eventOr404(w, r, r.PathValue("id"))
	if !ok {
		return
	}
	if _, err := s.DB.ExecContext(r.Context(), `DELETE FROM events WHERE id = ?`, e.ID); err != nil {
		respondError(w, http.StatusInternalServerError, "could not delete event")
		return
	}
	s.record(r.Context(), models.Activity{
		Kind: models.ActivityEventDeleted, Event: e.Name, EventID: e.ID,
	})
	respond(w, http.StatusOK, map[string]string{"id": e.ID})
}

// GetEventCheckInCode handles GET /api/events/{id}/checkin-code  (admin only)
//
// It returns a signed check-in token for the venue QR code. The token
// carries the event id and the event's check-in code; door devices hand it
// back unchanged in POST /api/sync/checkins.
func (s *Server) GetEventCheckInCode(w http.ResponseWriter, r *http.Request) {
	e, ok := s.eventOr404(w, r, r.PathValue("id"))
	if !ok {
		return
	}
	if e.Status == models.EventStatusClosed {
		respondError(w, http.StatusConflict, "event is closed")
		return
	}

	now := s.now()
	exp := now.Add(auth.CheckInTokenDuration)
	token, err := auth.GenerateCheckInTokenWithExpiry(e.ID, e.CheckInCode, s.Secret, now, exp)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "could not generate check-in token")
		return
	}

	respond(w, http.StatusOK, models.CheckInCodeResponse{EventID: e.ID, Token: token, Expires: exp})
}

// loadEvent fetches one event by id. It returns sql.ErrNoRows when absent.
func (s *Server) loadEvent(ctx context.Context, id string) (models.Event, error) {
	return scanEvent(s.DB.QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id = ?`, id))
}

// eventOr404 loads an event and writes the error response itself when it
// cannot; callers just return when ok is false.
func (s *Server) eventOr404(w http.ResponseWriter, r *http.Request, id string) (models.Event, bool) {
	e, err := s.loadEvent(r.Context(), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			respondError(w, http.StatusNotFound, "event not found")
			return e, false
		}
		respondError(w, http.StatusInternalServerError, "database error")
		return e, false
	}
	return e, true
}
