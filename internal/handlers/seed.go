package handlers

// SeedDemo handles POST /api/admin/seed
//
// This endpoint is ONLY for demos. It inserts a fixed set of accounts,
// events, participants and check-in rules so the console can start from a
// known state without running external scripts.
//
// The endpoint is idempotent: every INSERT uses INSERT OR IGNORE and the
// ids are hard-coded, so the same rows are produced every time.
//
// DEMO SCENARIO
// ─────────────────────────────────────────────────────────────────────────
// Admin  : admin@checkpoint.test  / demo1234
// Viewer : viewer@checkpoint.test / demo1234
//
// Events:
//  1. Go Meetup Kisumu       (starts in 30 min, active)
//     Rules: "QR Code" MANDATORY 60/30, "Badge Pickup" OPTIONAL 120/120,
//            "Late Desk" OPTIONAL inactive.
//     → doors are already open; desk and QR check-ins succeed now.
//  2. Cloud Native Summit    (in 14 days, active)
//     Rules: "Ticket Scan" MANDATORY 120/60, "ID Check" MANDATORY 30/15.
//     → a consistent set with two overlapping mandatory windows.
//  3. Security Workshop      (last week, closed)
//     → history for the dashboard; check-ins are refused.

import (
	"fmt"
	"net/http"
	"time"

	"github.com/eventdesk/checkpoint/internal/checkin"
	"github.com/eventdesk/checkpoint/internal/models"
	"golang.org/x/crypto/bcrypt"
)

// Pre-determined ids keep the seed idempotent across restarts. Rule ids
// must be UUIDs to pass the rule-set checks.
const (
	SeedAdminID  = "5eed0000-0000-4000-8000-000000000001"
	SeedViewerID = "5eed0000-0000-4000-8000-000000000002"

	SeedEventMeetupID   = "5eed0000-0000-4000-8000-000000000010"
	SeedEventSummitID   = "5eed0000-0000-4000-8000-000000000011"
	SeedEventWorkshopID = "5eed0000-0000-4000-8000-000000000012"

	SeedRuleQRID       = "5eed0000-0000-4000-8000-000000000020"
	SeedRuleBadgeID    = "5eed0000-0000-4000-8000-000000000021"
	SeedRuleLateDeskID = "5eed0000-0000-4000-8000-000000000022"
	SeedRuleTicketID   = "5eed0000-0000-4000-8000-000000000023"
	SeedRuleIDCheckID  = "5eed0000-0000-4000-8000-000000000024"

	// SeedMeetupCheckInCode is the code embedded in the meetup's QR tokens.
	SeedMeetupCheckInCode = "DEMO-CHECKIN-CODE-GO-MEETUP"

	seedPassword = "demo1234"
)

// SeedDemo handles POST /api/admin/seed
func (s *Server) SeedDemo(w http.ResponseWriter, r *http.Request) {
	hash, err := bcrypt.GenerateFromPassword([]byte(seedPassword), bcrypt.DefaultCost)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "bcrypt: "+err.Error())
		return
	}
	pw := string(hash)
	now := s.now()
	ctx := r.Context()

	// ── Users ────────────────────────────────────────────────────────────
	users := []struct {
		id, email, name string
		role            models.UserRole
	}{
		{SeedAdminID, "admin@checkpoint.test", "Desk Admin", models.RoleAdmin},
		{SeedViewerID, "viewer@checkpoint.test", "Floor Viewer", models.RoleViewer},
	}
	for _, u := range users {
		if _, err := s.DB.ExecContext(ctx,
			`INSERT OR IGNORE INTO users (id, email, password_hash, name, role, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			u.id, u.email, pw, u.name, u.role, now, now,
		); err != nil {
			respondError(w, http.StatusInternalServerError, "seed users: "+err.Error())
			return
		}
	}

	// ── Events ───────────────────────────────────────────────────────────
	events := []struct {
		id, name, location, code string
		start                    time.Time
		status                   models.EventStatus
	}{
		{SeedEventMeetupID, "Go Meetup Kisumu", "Lakeside Hub, Room 2", SeedMeetupCheckInCode,
			now.Add(30 * time.Minute), models.EventStatusActive},
		{SeedEventSummitID, "Cloud Native Summit", "Convention Centre Hall A", "DEMO-CHECKIN-CODE-SUMMIT",
			now.AddDate(0, 0, 14), models.EventStatusActive},
		{SeedEventWorkshopID, "Security Workshop", "Innovation Lab", "DEMO-CHECKIN-CODE-WORKSHOP",
			now.AddDate(0, 0, -7), models.EventStatusClosed},
	}
	for _, e := range events {
		if _, err := s.DB.ExecContext(ctx,
			`INSERT OR IGNORE INTO events (id, name, starts_at, location, status, check_in_code, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			e.id, e.name, e.start, e.location, e.status, e.code, now, now,
		); err != nil {
			respondError(w, http.StatusInternalServerError, "seed events: "+err.Error())
			return
		}
	}

	// ── Check-in rules ───────────────────────────────────────────────────
	ruleSets := map[string][]checkin.Rule{
		SeedEventMeetupID: {
			{ID: SeedRuleQRID, Name: "QR Code", Active: true, Requirement: checkin.Mandatory, OpensMinutesBefore: 60, ClosesMinutesAfter: 30},
			{ID: SeedRuleBadgeID, Name: "Badge Pickup", Active: true, Requirement: checkin.Optional, OpensMinutesBefore: 120, ClosesMinutesAfter: 120},
			{ID: SeedRuleLateDeskID, Name: "Late Desk", Active: false, Requirement: checkin.Optional, OpensMinutesBefore: 0, ClosesMinutesAfter: 240},
		},
		SeedEventSummitID: {
			{ID: SeedRuleTicketID, Name: "Ticket Scan", Active: true, Requirement: checkin.Mandatory, OpensMinutesBefore: 120, ClosesMinutesAfter: 60},
			{ID: SeedRuleIDCheckID, Name: "ID Check", Active: true, Requirement: checkin.Mandatory, OpensMinutesBefore: 30, ClosesMinutesAfter: 15},
		},
	}
	for eventID, rules := range ruleSets {
		for i, rule := range rules {
			if _, err := s.DB.ExecContext(ctx,
				`INSERT OR IGNORE INTO checkin_rules
				 (id, event_id, position, name, active, requirement, opens_minutes_before, closes_minutes_after)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				rule.ID, eventID, i, rule.Name, rule.Active, rule.Requirement,
				rule.OpensMinutesBefore, rule.ClosesMinutesAfter,
			); err != nil {
				respondError(w, http.StatusInternalServerError, "seed rules: "+err.Error())
				return
			}
		}
	}

	// ── Participants ─────────────────────────────────────────────────────
	participants := []struct {
		name, email, eventID string
		done                 bool
	}{
		{"Amara Osei", "amara@example.test", SeedEventMeetupID, false},
		{"Baraka Mwangi", "baraka@example.test", SeedEventMeetupID, false},
		{"Chidi Okafor", "chidi@example.test", SeedEventMeetupID, true},
		{"Dalia Haddad", "dalia@example.test", SeedEventSummitID, false},
		{"Emeka Nwosu", "emeka@example.test", SeedEventSummitID, false},
		{"Fatima Bello", "fatima@example.test", SeedEventWorkshopID, true},
	}
	for i, p := range participants {
		status := models.CheckInPending
		var at *time.Time
		if p.done {
			status = models.CheckInDone
			at = &now
		}
		if _, err := s.DB.ExecContext(ctx,
			`INSERT OR IGNORE INTO participants (id, name, email, event_id, checkin, checked_in_at, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			seedID(0x100+i), p.name, p.email, p.eventID, status, nullTime(at), now, now,
		); err != nil {
			respondError(w, http.StatusInternalServerError, "seed participants: "+err.Error())
			return
		}
	}

	respond(w, http.StatusOK, map[string]any{
		"seeded": true,
		"accounts": []map[string]string{
			{"role": string(models.RoleAdmin), "email": "admin@checkpoint.test", "password": seedPassword},
			{"role": string(models.RoleViewer), "email": "viewer@checkpoint.test", "password": seedPassword},
		},
		"events": []string{SeedEventMeetupID, SeedEventSummitID, SeedEventWorkshopID},
	})
}

// seedID builds a stable UUID-shaped id for seeded rows.
func seedID(n int) string {
	return fmt.Sprintf("5eed0000-0000-4000-8000-%012x", n)
}
