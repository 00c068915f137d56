package checkin

// Session is the client-local working copy of one event's rule set.
//
// Dirty and "has violations" are independent facets of one record; there is
// no separate state enum. Sessions are values: Transition never mutates the
// session it is given, and the slices of a returned session are never shared
// with the input, so older sessions can be kept (for undo, or in tests)
// without surprises.
type Session struct {
	Draft      []Rule
	Baseline   []Rule
	Dirty      bool
	Violations []string
}

// NewSession returns the session for a freshly loaded rule set.
func NewSession(rules []Rule) Session {
	return Transition(Session{}, LoadSucceeded{Rules: rules})
}

// Action is one of the fixed set of session transitions below.
type Action interface {
	isAction()
}

// LoadSucceeded installs rules as both draft and baseline.
type LoadSucceeded struct{ Rules []Rule }

// AddRule appends a rule to the draft.
type AddRule struct{ Rule Rule }

// UpdateRule replaces the draft rule that has the same ID.
type UpdateRule struct{ Rule Rule }

// RemoveRule drops the draft rule with ID.
type RemoveRule struct{ ID string }

// ToggleActive flips the Active flag of the draft rule with ID.
type ToggleActive struct{ ID string }

// ResetChanges discards the draft and returns to the baseline.
type ResetChanges struct{}

// Revalidate recomputes Violations from the draft.
type Revalidate struct{}

// SetDirty forces the Dirty flag.
type SetDirty struct{ Dirty bool }

func (LoadSucceeded) isAction() {}
func (AddRule) isAction()       {}
func (UpdateRule) isAction()    {}
func (RemoveRule) isAction()    {}
func (ToggleActive) isAction()  {}
func (ResetChanges) isAction()  {}
func (Revalidate) isAction()    {}
func (SetDirty) isAction()      {}

// Transition applies a to s and returns the next session. It is total: an
// unknown or nil action returns s unchanged.
//
// Mutating actions (add, update, remove, toggle) do not revalidate. The
// controller sequences a Revalidate after each of them, which also lets it
// validate right after a load without a prior mutation.
func Transition(s Session, a Action) Session {
	switch a := a.(type) {
	case LoadSucceeded:
		return Session{
			Draft:      cloneRules(a.Rules),
			Baseline:   cloneRules(a.Rules),
			Dirty:      false,
			Violations: []string{},
		}

	case AddRule:
		draft := make([]Rule, 0, len(s.Draft)+1)
		draft = append(draft, s.Draft...)
		draft = append(draft, a.Rule)
		return s.withDraft(draft)

	case UpdateRule:
		draft := make([]Rule, len(s.Draft))
		for i, r := range s.Draft {
			if r.ID == a.Rule.ID {
				r = a.Rule
			}
			draft[i] = r
		}
		return s.withDraft(draft)

	case RemoveRule:
		draft := make([]Rule, 0, len(s.Draft))
		for _, r := range s.Draft {
			if r.ID != a.ID {
				draft = append(draft, r)
			}
		}
		return s.withDraft(draft)

	case ToggleActive:
		draft := make([]Rule, len(s.Draft))
		for i, r := range s.Draft {
			if r.ID == a.ID {
				r.Active = !r.Active
			}
			draft[i] = r
		}
		return s.withDraft(draft)

	case ResetChanges:
		return Session{
			Draft:      cloneRules(s.Baseline),
			Baseline:   cloneRules(s.Baseline),
			Dirty:      false,
			Violations: []string{},
		}

	case Revalidate:
		next := s.clone()
		next.Violations = Validate(next.Draft)
		return next

	case SetDirty:
		next := s.clone()
		next.Dirty = a.Dirty
		return next

	default:
		return s
	}
}

// CanSave is the save-gating policy: something changed and nothing is wrong.
func CanSave(s Session) bool {
	return s.Dirty && len(s.Violations) == 0
}

// Rule returns the draft rule with id.
func (s Session) Rule(id string) (Rule, bool) {
	for _, r := range s.Draft {
		if r.ID == id {
			return r, true
		}
	}
	return Rule{}, false
}

// Summary counts the draft the way the console sidebar shows it.
type Summary struct {
	Total     int `json:"total"`
	Active    int `json:"active"`
	Mandatory int `json:"mandatory"`
}

// Summarize counts total, active, and active mandatory rules in rules.
func Summarize(rules []Rule) Summary {
	var sum Summary
	for _, r := range rules {
		sum.Total++
		if !r.Active {
			continue
		}
		sum.Active++
		if r.IsMandatory() {
			sum.Mandatory++
		}
	}
	return sum
}

func (s Session) withDraft(draft []Rule) Session {
	next := s.clone()
	next.Draft = draft
	next.Dirty = true
	return next
}

func (s Session) clone() Session {
	return Session{
		Draft:      cloneRules(s.Draft),
		Baseline:   cloneRules(s.Baseline),
		Dirty:      s.Dirty,
		Violations: cloneStrings(s.Violations),
	}
}

func cloneRules(rules []Rule) []Rule {
	if rules == nil {
		return nil
	}
	out := make([]Rule, len(rules))
	copy(out, rules)
	return out
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}
