package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/eventdesk/checkpoint/internal/checkin"
	"github.com/eventdesk/checkpoint/internal/db"
	"github.com/eventdesk/checkpoint/internal/models"
)

// ────────────────────────────────────────────────────────────────────
// LEARNING NOTE — storage checks vs. consistency checks
// ────────────────────────────────────────────────────────────────────
// PUT /api/events/{id}/checkin-rules only enforces STRUCTURE: every rule
// has a UUID id, a name, a known requirement and offsets in 0..1440, and
// ids are unique. It does NOT run checkin.Validate. Whether a rule set is
// consistent (one active rule, overlapping mandatory windows) is decided
// by the console before it offers to save. The same validator is exposed
// read-only at POST /api/checkin-rules/validate.

// loadRules returns an event's rules in their stored order.
func (s *Server) loadRules(ctx context.Context, eventID string) ([]checkin.Rule, error) {
	return db.LoadRules(ctx, s.DB, eventID)
}

// checkRuleSet trims names in place and returns per-field problems keyed
// as rules[i].field, or nil when the set is structurally sound.
func checkRuleSet(rules []checkin.Rule) map[string]string {
	details := map[string]string{}
	seen := make(map[string]int, len(rules))
	for i := range rules {
		rules[i].Name = strings.TrimSpace(rules[i].Name)
		var fe checkin.FieldErrors
		if err := rules[i].Check(); errors.As(err, &fe) {
			for field, msg := range fe {
				details[fmt.Sprintf("rules[%d].%s", i, field)] = msg
			}
		}
		if first, dup := seen[rules[i].ID]; dup {
			details[fmt.Sprintf("rules[%d].id", i)] = fmt.Sprintf("duplicates rules[%d]", first)
		} else {
			seen[rules[i].ID] = i
		}
	}
	if len(details) == 0 {
		return nil
	}
	return details
}

// GetRules handles GET /api/events/{id}/checkin-rules
func (s *Server) GetRules(w http.ResponseWriter, r *http.Request) {
	e, ok := s.eventOr404(w, r, r.PathValue("id"))
	if !ok {
		return
	}
	rules, err := s.loadRules(r.Context(), e.ID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "database error")
		return
	}
	respond(w, http.StatusOK, models.RulesResponse{EventID: e.ID, Rules: rules})
}

// PutRules handles PUT /api/events/{id}/checkin-rules  (admin only)
//
// The whole set is replaced in one transaction: DELETE every row for the
// event, then INSERT the new rules with their position. Either the new set
// is stored completely or the old one survives untouched. The response is
// the set as stored, which the console adopts as its new baseline.
func (s *Server) PutRules(w http.ResponseWriter, r *http.Request) {
	e, ok := s.eventOr404(w, r, r.PathValue("id"))
	if !ok {
		return
	}

	var req models.RulesRequest
	if err := decode(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Rules == nil {
		respondError(w, http.StatusBadRequest, "rules is required")
		return
	}
	if details := checkRuleSet(req.Rules); details != nil {
		respondInvalid(w, "invalid check-in rules", details)
		return
	}

	tx, err := s.DB.BeginTx(r.Context(), nil)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "database error")
		return
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is a no-op after Commit succeeds

	if _, err := tx.ExecContext(r.Context(), `DELETE FROM checkin_rules WHERE event_id = ?`, e.ID); err != nil {
		respondError(w, http.StatusInternalServerError, "could not replace rules")
		return
	}
	for i, rule := range req.Rules {
		_, err := tx.ExecContext(r.Context(),
			`INSERT INTO checkin_rules
			 (id, event_id, position, name, active, requirement, opens_minutes_before, closes_minutes_after)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			rule.ID, e.ID, i, rule.Name, rule.Active, rule.Requirement,
			rule.OpensMinutesBefore, rule.ClosesMinutesAfter,
		)
		if err != nil {
			s.log().Error("insert rule", "event_id", e.ID, "rule_id", rule.ID, "error", err)
			respondError(w, http.StatusInternalServerError, "could not replace rules")
			return
		}
	}
	stored, err := db.LoadRules(r.Context(), tx, e.ID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "database error")
		return
	}
	if err := tx.Commit(); err != nil {
		respondError(w, http.StatusInternalServerError, "database error")
		return
	}

	sum := checkin.Summarize(stored)
	s.record(r.Context(), models.Activity{
		Kind:    models.ActivityRulesUpdated,
		Event:   e.Name,
		EventID: e.ID,
		Detail:  fmt.Sprintf("%d rules, %d active, %d mandatory", sum.Total, sum.Active, sum.Mandatory),
	})
	respond(w, http.StatusOK, models.RulesResponse{EventID: e.ID, Rules: stored})
}

// ValidateRules handles POST /api/checkin-rules/validate
//
// It runs the consistency validator on the posted set and stores nothing.
// A body without "rules" is an absent set and has no violations; an empty
// array is a set with nothing active.
func (s *Server) ValidateRules(w http.ResponseWriter, r *http.Request) {
	var req models.RulesRequest
	if err := decode(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	violations := checkin.Validate(req.Rules)
	if violations == nil {
		violations = []string{}
	}
	respond(w, http.StatusOK, models.ValidateRulesResponse{
		Violations: violations,
		Summary:    checkin.Summarize(req.Rules),
	})
}
