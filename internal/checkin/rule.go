// Package checkin holds the check-in rule model and the consistency engine
// that guards it: a pure validator over a rule set and a pure reducer over an
// edit session.
//
// ────────────────────────────────────────────────────────────────────
// LEARNING NOTE — why keep this package free of I/O?
// ────────────────────────────────────────────────────────────────────
// Nothing in here touches the network, the database or a clock. Every
// function takes values and returns values. That makes the rules trivially
// testable (no fixtures, no fakes) and lets the server, the console and the
// sweep job all share exactly the same logic.
package checkin

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Requirement says whether a participant must satisfy a rule.
type Requirement string

const (
	Mandatory Requirement = "MANDATORY"
	Optional  Requirement = "OPTIONAL"
)

// Limits shared by the schema checks and the console prompts.
const (
	MinNameLength    = 3
	MaxOffsetMinutes = 1440

	DefaultOpensMinutesBefore = 120
	DefaultClosesMinutesAfter = 120
)

// Rule is one admission rule of an event's check-in process.
type Rule struct {
	ID                 string      `json:"id"`
	Name               string      `json:"name"`
	Active             bool        `json:"active"`
	Requirement        Requirement `json:"requirement"`
	OpensMinutesBefore int         `json:"opens_minutes_before"`
	ClosesMinutesAfter int         `json:"closes_minutes_after"`
}

// NewRule returns a rule with a fresh id and the defaults the console offers
// for a blank form: active, optional, two hours either side of the start.
func NewRule(name string) Rule {
	return Rule{
		ID:                 uuid.NewString(),
		Name:               name,
		Active:             true,
		Requirement:        Optional,
		OpensMinutesBefore: DefaultOpensMinutesBefore,
		ClosesMinutesAfter: DefaultClosesMinutesAfter,
	}
}

// IsMandatory reports whether the rule must be satisfied by every participant.
func (r Rule) IsMandatory() bool { return r.Requirement == Mandatory }

// Window is a closed admission interval expressed in minutes relative to the
// event start. Start is usually negative (before the start), End positive.
type Window struct {
	Start int
	End   int
}

// Window returns the rule's admission window relative to the event start.
func (r Rule) Window() Window {
	return Window{Start: -r.OpensMinutesBefore, End: r.ClosesMinutesAfter}
}

// Overlaps reports whether two closed windows share at least one instant.
// Touching boundaries count as overlap.
func (w Window) Overlaps(o Window) bool {
	return max(w.Start, o.Start) <= min(w.End, o.End)
}

// Contains reports whether offset, measured from the event start, falls
// inside w. Both ends are exact instants, so 10m59s is past a window that
// closes at minute 10.
func (w Window) Contains(offset time.Duration) bool {
	return offset >= time.Duration(w.Start)*time.Minute && offset <= time.Duration(w.End)*time.Minute
}

// ParseRequirement maps free-form input onto a Requirement. Case is
// ignored and "M" or "REQUIRED" also mean mandatory. Anything else is
// optional, the same fallback the wire sanitiser uses.
func ParseRequirement(s string) Requirement {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case string(Mandatory), "M", "REQUIRED":
		return Mandatory
	default:
		return Optional
	}
}

// FieldErrors maps a field name to a human-readable problem.
type FieldErrors map[string]string

func (fe FieldErrors) Error() string {
	keys := fe.Fields()
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+fe[k])
	}
	return "invalid rule: " + strings.Join(parts, "; ")
}

// Fields returns the failing field names in sorted order.
func (fe FieldErrors) Fields() []string {
	keys := make([]string, 0, len(fe))
	for k := range fe {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Check validates the shape of a single rule: id, name length, requirement
// value and offset ranges. It is the per-record check that sits in front of
// Validate; Validate itself never looks at these constraints.
func (r Rule) Check() error {
	fe := FieldErrors{}
	if _, err := uuid.Parse(r.ID); err != nil {
		fe["id"] = "must be a UUID"
	}
	if len([]rune(strings.TrimSpace(r.Name))) < MinNameLength {
		fe["name"] = fmt.Sprintf("must have at least %d characters", MinNameLength)
	}
	if r.Requirement != Mandatory && r.Requirement != Optional {
		fe["requirement"] = "must be MANDATORY or OPTIONAL"
	}
	if msg := checkOffset(r.OpensMinutesBefore); msg != "" {
		fe["opens_minutes_before"] = msg
	}
	if msg := checkOffset(r.ClosesMinutesAfter); msg != "" {
		fe["closes_minutes_after"] = msg
	}
	if len(fe) > 0 {
		return fe
	}
	return nil
}

func checkOffset(v int) string {
	switch {
	case v < 0:
		return "must be 0 or greater"
	case v > MaxOffsetMinutes:
		return fmt.Sprintf("must be at most %d minutes (1 day)", MaxOffsetMinutes)
	}
	return ""
}
