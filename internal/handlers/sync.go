package handlers

import (
	"context"
	"database/sql"
	"errors"
	"net/http"

	"github.com/eventdesk/checkpoint/internal/auth"
	"github.com/eventdesk/checkpoint/internal/checkin"
	"github.com/eventdesk/checkpoint/internal/models"
)

// SyncCheckIns handles POST /api/sync/checkins
//
// Door devices scan the venue QR and a participant badge, store the scan
// locally, and push pending scans here in batches once they are online:
//
//  1. ADMIN: GET /api/events/{id}/checkin-code returns a signed token
//     that is shown as a QR at the entrance.
//  2. DOOR DEVICE (offline is fine): records {local_id, participant_id,
//     token, scanned_at} for every admitted person.
//  3. SYNC: the device sends all pending records in one request. Each
//     record is judged on its own and the server echoes back local_id so
//     the device can mark it verified or rejected.
//
// LEARNING NOTE — batch processing
// We process every record even if some fail; the response reports
// individual statuses. One bad scan never loses the rest of the batch.
func (s *Server) SyncCheckIns(w http.ResponseWriter, r *http.Request) {
	var req models.SyncCheckInsRequest
	if err := decode(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if len(req.Records) == 0 {
		respondError(w, http.StatusBadRequest, "no records to sync")
		return
	}

	results := make([]models.SyncResult, 0, len(req.Records))
	for _, rec := range req.Records {
		results = append(results, s.processCheckInRecord(r.Context(), rec))
	}

	respond(w, http.StatusOK, models.SyncCheckInsResponse{Results: results})
}

// processCheckInRecord validates and persists a single synced scan.
//
// ────────────────────────────────────────────────────────────────────
// LEARNING NOTE — judging a scan by when it happened
// ────────────────────────────────────────────────────────────────────
// The token proves the device was at the venue: it is signed with the
// server secret and carries the event id and check-in code. Its exp is
// NOT checked here (see auth.ParseCheckInToken): a device may sync hours
// later. What decides admission is scanned_at, measured against the
// event's active rules exactly like a desk check-in at that moment.
// Because the scan is judged at scanned_at, an event that has since been
// auto-closed still accepts scans made while it was open.
func (s *Server) processCheckInRecord(ctx context.Context, rec models.CheckInSyncRecord) models.SyncResult {
	fail := func(msg string) models.SyncResult {
		return models.SyncResult{LocalID: rec.LocalID, Status: models.SyncRejected, Message: msg}
	}

	if rec.ParticipantID == "" {
		return fail("participant_id is required")
	}
	if rec.Token == "" {
		return fail("token is required")
	}
	if rec.ScannedAt.IsZero() {
		return fail("scanned_at is required")
	}

	claims, err := auth.ParseCheckInToken(rec.Token, s.Secret)
	if err != nil {
		return fail("invalid check-in token")
	}

	p, err := s.loadParticipant(ctx, rec.ParticipantID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fail("participant not found")
		}
		return fail("database error")
	}
	if claims.EventID != p.EventID {
		return fail("token is for a different event")
	}

	e, err := s.loadEvent(ctx, p.EventID)
	if err != nil {
		return fail("event not found")
	}
	if claims.Code != e.CheckInCode {
		return fail("check-in code is no longer valid")
	}

	if p.CheckIn == models.CheckInDone {
		return models.SyncResult{LocalID: rec.LocalID, Status: models.SyncVerified, Message: "already checked in"}
	}

	rules, err := s.loadRules(ctx, e.ID)
	if err != nil {
		return fail("database error")
	}
	scannedAt := rec.ScannedAt.UTC()
	if err := checkin.Admit(rules, e.StartsAt, scannedAt); err != nil {
		return fail(err.Error())
	}

	if err := s.markCheckedIn(ctx, p.ID, scannedAt); err != nil {
		return fail("database error recording check-in")
	}
	s.record(ctx, models.Activity{
		Kind: models.ActivityCheckIn, Participant: p.Name, Event: e.Name, EventID: e.ID, Detail: "qr",
	})

	return models.SyncResult{LocalID: rec.LocalID, Status: models.SyncVerified, Message: "checked in"}
}
