package checkin

import "fmt"

// MsgNoActiveRule is reported when an event has no active rule at all.
const MsgNoActiveRule = "there must be at least one active rule for the event"

// Validate returns the business-rule violations of a rule set, in the order
// they were found. An empty result means the set may be saved.
//
// A nil slice stands for "nothing loaded yet" and yields no violations, so a
// screen that is still loading never shows spurious errors. An empty but
// non-nil slice is a real, empty rule set and fails the active-rule check.
//
// Only pairs of active mandatory rules are compared. Every pair is checked
// rather than only neighbours because the rules are not sorted by window.
func Validate(rules []Rule) []string {
	if rules == nil {
		return nil
	}

	var violations []string

	var active []Rule
	for _, r := range rules {
		if r.Active {
			active = append(active, r)
		}
	}
	if len(active) == 0 {
		violations = append(violations, MsgNoActiveRule)
	}

	var mandatory []Rule
	for _, r := range active {
		if r.IsMandatory() {
			mandatory = append(mandatory, r)
		}
	}

	for i := 0; i < len(mandatory); i++ {
		for j := i + 1; j < len(mandatory); j++ {
			r1, r2 := mandatory[i], mandatory[j]
			if !r1.Window().Overlaps(r2.Window()) {
				violations = append(violations, windowConflict(r1, r2))
			}
		}
	}

	return violations
}

func windowConflict(r1, r2 Rule) string {
	return fmt.Sprintf(
		"window conflict: mandatory rules %q and %q have check-in windows that do not overlap; "+
			"mandatory rules must share a common admission period so a participant can satisfy all of them at once",
		r1.Name, r2.Name,
	)
}
