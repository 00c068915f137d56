package handlers

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/eventdesk/checkpoint/internal/checkin"
	"github.com/eventdesk/checkpoint/internal/models"
	"github.com/google/uuid"
)

const minParticipantName = 2

const participantColumns = `id, name, email, event_id, checkin, checked_in_at, created_at, updated_at`

func scanParticipant(row rowScanner) (models.Participant, error) {
	var (
		p  models.Participant
		at sql.NullTime
	)
	err := row.Scan(&p.ID, &p.Name, &p.Email, &p.EventID, &p.CheckIn, &at, &p.CreatedAt, &p.UpdatedAt)
	if at.Valid {
		t := at.Time
		p.CheckedInAt = &t
	}
	return p, err
}

// checkParticipant trims and sanitises req in place and returns per-field
// problems. An unknown check-in status becomes pending.
func (s *Server) checkParticipant(ctx context.Context, req *models.ParticipantRequest) (map[string]string, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	req.EventID = strings.TrimSpace(req.EventID)
	if req.CheckIn != models.CheckInDone {
		req.CheckIn = models.CheckInPending
	}

	details := map[string]string{}
	if len([]rune(req.Name)) < minParticipantName {
		details["name"] = "must have at least 2 characters"
	}
	if _, err := mail.ParseAddress(req.Email); err != nil {
		details["email"] = "must be a valid email address"
	}
	if req.EventID == "" {
		details["event_id"] = "is required"
	} else {
		ok, err := s.eventExists(ctx, req.EventID)
		if err != nil {
			return nil, err
		}
		if !ok {
			details["event_id"] = "event not found"
		}
	}
	if len(details) == 0 {
		return nil, nil
	}
	return details, nil
}

func (s *Server) eventExists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := s.DB.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM events WHERE id = ?)`, id).Scan(&exists)
	return exists, err
}

// CreateParticipant handles POST /api/participants  (admin only)
func (s *Server) CreateParticipant(w http.ResponseWriter, r *http.Request) {
	var req models.ParticipantRequest
	if err := decode(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	details, err := s.checkParticipant(r.Context(), &req)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "database error")
		return
	}
	if details != nil {
		respondInvalid(w, "invalid participant", details)
		return
	}

	now := s.now()
	p := models.Participant{
		ID:        uuid.NewString(),
		Name:      req.Name,
		Email:     req.Email,
		EventID:   req.EventID,
		CheckIn:   req.CheckIn,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if p.CheckIn == models.CheckInDone {
		p.CheckedInAt = &now
	}

	_, err = s.DB.ExecContext(r.Context(),
		`INSERT INTO participants (id, name, email, event_id, checkin, checked_in_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.Email, p.EventID, p.CheckIn, nullTime(p.CheckedInAt), p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		s.log().Error("create participant", "error", err)
		respondError(w, http.StatusInternalServerError, "could not create participant")
		return
	}

	s.record(r.Context(), s.participantActivity(r.Context(), models.ActivityParticipantAdded, p))
	respond(w, http.StatusCreated, p)
}

// ListParticipants handles GET /api/participants?search=&event_id=&checkin=
func (s *Server) ListParticipants(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := `SELECT ` + participantColumns + ` FROM participants WHERE 1=1`
	var args []any
	if search := strings.TrimSpace(q.Get("search")); search != "" {
		query += ` AND (name LIKE ? OR email LIKE ?)`
		like := "%" + search + "%"
		args = append(args, like, like)
	}
	if eventID := q.Get("event_id"); eventID != "" {
		query += ` AND event_id = ?`
		args = append(args, eventID)
	}
	if status := q.Get("checkin"); status != "" {
		query += ` AND checkin = ?`
		args = append(args, status)
	}
	query += ` ORDER BY name ASC`

	rows, err := s.DB.QueryContext(r.Context(), query, args...)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "database error")
		return
	}
	defer rows.Close()

	participants := []models.Participant{}
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "scan error")
			return
		}
		participants = append(participants, p)
	}
	if err := rows.Err(); err != nil {
		respondError(w, http.StatusInternalServerError, "rows error")
		return
	}
	respond(w, http.StatusOK, participants)
}

// GetParticipant handles GET /api/participants/{id}
func (s *Server) GetParticipant(w http.ResponseWriter, r *http.Request) {
	p, ok := s.participantOr404(w, r, r.PathValue("id"))
	if !ok {
		return
	}
	respond(w, http.StatusOK, p)
}

// UpdateParticipant handles PUT /api/participants/{id}  (admin only)
//
// Moving a participant from pending to done stamps checked_in_at; moving
// back to pending clears it. Staying done keeps the original stamp.
func (s *Server) UpdateParticipant(w http.ResponseWriter, r *http.Request) {
	current, ok := s.participantOr404(w, r, r.PathValue("id"))
	if !ok {
		return
	}

	var req models.ParticipantRequest
	if err := decode(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	details, err := s.checkParticipant(r.Context(), &req)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "database error")
		return
	}
	if details != nil {
		respondInvalid(w, "invalid participant", details)
		return
	}

	now := s.now()
	checkedInAt := current.CheckedInAt
	switch {
	case req.CheckIn == models.CheckInPending:
		checkedInAt = nil
	case current.CheckIn != models.CheckInDone:
		checkedInAt = &now
	}

	_, err = s.DB.ExecContext(r.Context(),
		`UPDATE participants SET name = ?, email = ?, event_id = ?, checkin = ?, checked_in_at = ?, updated_at = ?
		 WHERE id = ?`,
		req.Name, req.Email, req.EventID, req.CheckIn, nullTime(checkedInAt), now, current.ID,
	)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "could not update participant")
		return
	}

	p, ok := s.participantOr404(w, r, current.ID)
	if !ok {
		return
	}
	s.record(r.Context(), s.participantActivity(r.Context(), models.ActivityParticipantUpdated, p))
	respond(w, http.StatusOK, p)
}

// DeleteParticipant handles DELETE /api/participants/{id}  (admin only)
func (s *Server) DeleteParticipant(w http.ResponseWriter, r *http.Request) {
	p, ok := s.participantOr404(w, r, r.PathValue("id"))
	if !ok {
		return
	}
	// Resolve the event name before the row is gone.
	a := s.participantActivity(r.Context(), models.ActivityParticipantRemoved, p)
	if _, err := s.DB.ExecContext(r.Context(), `DELETE FROM participants WHERE id = ?`, p.ID); err != nil {
		respondError(w, http.StatusInternalServerError, "could not delete participant")
		return
	}
	s.record(r.Context(), a)
	respond(w, http.StatusOK, map[string]string{"id": p.ID})
}

// TransferParticipant handles POST /api/participants/{id}/transfer  (admin only)
//
// A transferred participant starts over at the new event: check-in is
// reset to pending.
func (s *Server) TransferParticipant(w http.ResponseWriter, r *http.Request) {
	p, ok := s.participantOr404(w, r, r.PathValue("id"))
	if !ok {
		return
	}

	var req models.TransferRequest
	if err := decode(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	req.EventID = strings.TrimSpace(req.EventID)
	if req.EventID == "" {
		respondInvalid(w, "invalid transfer", map[string]string{"event_id": "is required"})
		return
	}
	if req.EventID == p.EventID {
		respondError(w, http.StatusConflict, "participant is already registered for this event")
		return
	}
	target, err := s.loadEvent(r.Context(), req.EventID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			respondInvalid(w, "invalid transfer", map[string]string{"event_id": "event not found"})
			return
		}
		respondError(w, http.StatusInternalServerError, "database error")
		return
	}

	_, err = s.DB.ExecContext(r.Context(),
		`UPDATE participants SET event_id = ?, checkin = 'pending', checked_in_at = NULL, updated_at = ?
		 WHERE id = ?`,
		target.ID, s.now(), p.ID,
	)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "could not transfer participant")
		return
	}

	moved, ok := s.participantOr404(w, r, p.ID)
	if !ok {
		return
	}
	s.record(r.Context(), models.Activity{
		Kind:        models.ActivityParticipantMoved,
		Participant: moved.Name,
		Event:       target.Name,
		EventID:     target.ID,
	})
	respond(w, http.StatusOK, moved)
}

// CheckInParticipant handles POST /api/participants/{id}/checkin  (admin only)
//
// Desk check-in at the current time. The event's active rules decide
// whether "now" is inside the admission period. Checking in someone who is
// already checked in is a no-op that returns the participant.
func (s *Server) CheckInParticipant(w http.ResponseWriter, r *http.Request) {
	p, ok := s.participantOr404(w, r, r.PathValue("id"))
	if !ok {
		return
	}
	if p.CheckIn == models.CheckInDone {
		respond(w, http.StatusOK, p)
		return
	}

	e, err := s.loadEvent(r.Context(), p.EventID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "database error")
		return
	}
	if e.Status == models.EventStatusClosed {
		respondError(w, http.StatusConflict, "event is closed")
		return
	}

	rules, err := s.loadRules(r.Context(), e.ID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "database error")
		return
	}
	now := s.now()
	if err := checkin.Admit(rules, e.StartsAt, now); err != nil {
		respondError(w, http.StatusConflict, err.Error())
		return
	}

	if err := s.markCheckedIn(r.Context(), p.ID, now); err != nil {
		respondError(w, http.StatusInternalServerError, "could not check in participant")
		return
	}
	p.CheckIn = models.CheckInDone
	p.CheckedInAt = &now
	p.UpdatedAt = now

	s.record(r.Context(), models.Activity{
		Kind: models.ActivityCheckIn, Participant: p.Name, Event: e.Name, EventID: e.ID, Detail: "desk",
	})
	respond(w, http.StatusOK, p)
}

func (s *Server) markCheckedIn(ctx context.Context, participantID string, at time.Time) error {
	_, err := s.DB.ExecContext(ctx,
		`UPDATE participants SET checkin = 'done', checked_in_at = ?, updated_at = ? WHERE id = ?`,
		at, s.now(), participantID,
	)
	return err
}

func (s *Server) loadParticipant(ctx context.Context, id string) (models.Participant, error) {
	return scanParticipant(s.DB.QueryRowContext(ctx,
		`SELECT `+participantColumns+` FROM participants WHERE id = ?`, id))
}

func (s *Server) participantOr404(w http.ResponseWriter, r *http.Request, id string) (models.Participant, bool) {
	p, err := s.loadParticipant(r.Context(), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			respondError(w, http.StatusNotFound, "participant not found")
			return p, false
		}
		respondError(w, http.StatusInternalServerError, "database error")
		return p, false
	}
	return p, true
}

// participantActivity builds a feed entry for p, resolving the event name.
// A missing event leaves the name blank rather than failing.
func (s *Server) participantActivity(ctx context.Context, kind string, p models.Participant) models.Activity {
	a := models.Activity{Kind: kind, Participant: p.Name, EventID: p.EventID}
	_ = s.DB.QueryRowContext(ctx, `SELECT name FROM events WHERE id = ?`, p.EventID).Scan(&a.Event)
	return a
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
