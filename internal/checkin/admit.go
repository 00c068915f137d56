package checkin

import (
	"errors"
	"time"
)

var (
	// ErrNoActiveRules means the event has no active rule to admit anyone.
	ErrNoActiveRules = errors.New("event has no active check-in rule")
	// ErrOutsideWindow means the moment falls outside the admission windows.
	ErrOutsideWindow = errors.New("check-in is outside the admission window")
)

// Admit decides whether a participant arriving at `at` may check in to an
// event starting at `start`.
//
// Inactive rules are ignored. When there are active mandatory rules, `at`
// must fall inside every one of their windows. Without mandatory rules,
// falling inside any active optional window is enough.
func Admit(rules []Rule, start, at time.Time) error {
	offset := at.Sub(start)

	var mandatory, optional []Rule
	for _, r := range rules {
		if !r.Active {
			continue
		}
		if r.IsMandatory() {
			mandatory = append(mandatory, r)
		} else {
			optional = append(optional, r)
		}
	}

	switch {
	case len(mandatory) > 0:
		for _, r := range mandatory {
			if !r.Window().Contains(offset) {
				return ErrOutsideWindow
			}
		}
		return nil
	case len(optional) > 0:
		for _, r := range optional {
			if r.Window().Contains(offset) {
				return nil
			}
		}
		return ErrOutsideWindow
	default:
		return ErrNoActiveRules
	}
}

// LastAdmission returns the moment after which Admit can no longer succeed
// for an event starting at start.
//
// Active mandatory rules must all hold at once, so the earliest mandatory
// close ends admission and optional rules no longer matter. Without
// mandatory rules the latest optional close counts. With no active rules it
// falls back to one day after the start.
func LastAdmission(rules []Rule, start time.Time) time.Time {
	var (
		earliestMandatory, latestOptional int
		haveMandatory, haveOptional       bool
	)
	for _, r := range rules {
		if !r.Active {
			continue
		}
		closes := r.ClosesMinutesAfter
		if r.IsMandatory() {
			if !haveMandatory || closes < earliestMandatory {
				earliestMandatory, haveMandatory = closes, true
			}
		} else if !haveOptional || closes > latestOptional {
			latestOptional, haveOptional = closes, true
		}
	}

	last := MaxOffsetMinutes
	switch {
	case haveMandatory:
		last = earliestMandatory
	case haveOptional:
		last = latestOptional
	}
	return start.Add(time.Duration(last) * time.Minute)
}
