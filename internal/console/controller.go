// Package console drives one check-in rule edit session against a remote
// rule store. It is the only owner of the session it holds: every read and
// every transition goes through the Controller, which serialises them.
package console

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/eventdesk/checkpoint/internal/checkin"
)

var (
	// ErrNotDirty is returned by Save when there is nothing to save.
	ErrNotDirty = errors.New("no unsaved changes")
	// ErrInvalidRules is returned by Save while the draft has violations.
	ErrInvalidRules = errors.New("rule set has violations")
	// ErrUnknownRule is returned when an id does not match any draft rule.
	ErrUnknownRule = errors.New("no such rule in the draft")
	// ErrSaving is returned for edits attempted while a save is in flight.
	ErrSaving = errors.New("a save is in progress")
)

// RuleStore is the rule source and sink of an event.
//
// SaveRules returns the set the store actually persisted; the controller
// re-baselines on that set rather than on what it sent.
type RuleStore interface {
	LoadRules(ctx context.Context, eventID string) ([]checkin.Rule, error)
	SaveRules(ctx context.Context, eventID string, rules []checkin.Rule) ([]checkin.Rule, error)
}

// View is what a screen needs to render the session and its save button.
type View struct {
	EventID    string
	Rules      []checkin.Rule
	Dirty      bool
	Violations []string
	CanSave    bool
	Saving     bool
	Summary    checkin.Summary
	// LastError is the most recent load or save failure, cleared by the
	// next successful load or save.
	LastError error
}

// Controller owns the edit session for one event.
type Controller struct {
	store   RuleStore
	eventID string
	logger  *slog.Logger

	mu      sync.Mutex
	session checkin.Session
	saving  bool
	lastErr error
}

// Open loads the event's rules and returns a controller whose session is
// validated and clean.
func Open(ctx context.Context, store RuleStore, eventID string, logger *slog.Logger) (*Controller, error) {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Controller{
		store:   store,
		eventID: eventID,
		logger:  logger.With("event_id", eventID),
	}
	if err := c.Reload(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// EventID returns the event whose rules this controller edits.
func (c *Controller) EventID() string { return c.eventID }

// Reload replaces draft and baseline with the store's current rule set,
// discarding unsaved edits. On failure the session is left as it was.
func (c *Controller) Reload(ctx context.Context) error {
	c.mu.Lock()
	if c.saving {
		c.mu.Unlock()
		return ErrSaving
	}
	c.mu.Unlock()

	rules, err := c.store.LoadRules(ctx, c.eventID)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.lastErr = fmt.Errorf("load rules: %w", err)
		c.logger.Warn("load rules failed", "err", err)
		return c.lastErr
	}
	c.lastErr = nil
	if rules == nil {
		rules = []checkin.Rule{}
	}
	c.apply(checkin.LoadSucceeded{Rules: rules})
	c.logger.Debug("rules loaded", "count", len(rules))
	return nil
}

// Add appends rule to the draft. A rule that fails its schema check is
// refused with a checkin.FieldErrors and the draft is left alone, the same
// way a form refuses to submit.
func (c *Controller) Add(rule checkin.Rule) error {
	if err := rule.Check(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.saving {
		return ErrSaving
	}
	if _, ok := c.session.Rule(rule.ID); ok {
		return fmt.Errorf("rule id %s already in the draft", rule.ID)
	}
	c.apply(checkin.AddRule{Rule: rule})
	return nil
}

// Update replaces the draft rule with the same id.
func (c *Controller) Update(rule checkin.Rule) error {
	if err := rule.Check(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.editable(rule.ID); err != nil {
		return err
	}
	c.apply(checkin.UpdateRule{Rule: rule})
	return nil
}

// Remove drops the draft rule with id.
func (c *Controller) Remove(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.editable(id); err != nil {
		return err
	}
	c.apply(checkin.RemoveRule{ID: id})
	return nil
}

// Toggle flips the active flag of the draft rule with id.
func (c *Controller) Toggle(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.editable(id); err != nil {
		return err
	}
	c.apply(checkin.ToggleActive{ID: id})
	return nil
}

// Reset discards every unsaved change.
func (c *Controller) Reset() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.saving {
		return ErrSaving
	}
	c.session = checkin.Transition(c.session, checkin.ResetChanges{})
	return nil
}

// Save sends the draft to the store when the gating policy allows it and
// re-baselines on the stored result. A failed save keeps the draft intact.
//
// The lock is released while the store call is in flight so Snapshot keeps
// working; edits are refused with ErrSaving until the call returns.
func (c *Controller) Save(ctx context.Context) error {
	c.mu.Lock()
	if c.saving {
		c.mu.Unlock()
		return ErrSaving
	}
	if !c.session.Dirty {
		c.mu.Unlock()
		return ErrNotDirty
	}
	if len(c.session.Violations) > 0 {
		err := fmt.Errorf("%w: %s", ErrInvalidRules, strings.Join(c.session.Violations, "; "))
		c.mu.Unlock()
		return err
	}
	for _, r := range c.session.Draft {
		if err := r.Check(); err != nil {
			c.mu.Unlock()
			return fmt.Errorf("rule %q: %w", r.Name, err)
		}
	}
	draft := append([]checkin.Rule{}, c.session.Draft...)
	c.saving = true
	c.mu.Unlock()

	saved, err := c.store.SaveRules(ctx, c.eventID, draft)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.saving = false
	if err != nil {
		c.lastErr = fmt.Errorf("save rules: %w", err)
		c.logger.Warn("save rules failed", "err", err, "rules", len(draft))
		return c.lastErr
	}
	c.lastErr = nil
	if saved == nil {
		saved = []checkin.Rule{}
	}
	c.apply(checkin.LoadSucceeded{Rules: saved})
	c.logger.Info("rules saved", "count", len(saved))
	return nil
}

// Snapshot returns a copy of the session as the UI should render it.
func (c *Controller) Snapshot() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.session
	return View{
		EventID:    c.eventID,
		Rules:      append([]checkin.Rule(nil), s.Draft...),
		Dirty:      s.Dirty,
		Violations: append([]string(nil), s.Violations...),
		CanSave:    checkin.CanSave(s) && !c.saving,
		Saving:     c.saving,
		Summary:    checkin.Summarize(s.Draft),
		LastError:  c.lastErr,
	}
}

// Rule returns the draft rule with id.
func (c *Controller) Rule(id string) (checkin.Rule, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.Rule(id)
}

// editable reports why the rule with id cannot be edited right now, if at
// all. Callers hold c.mu.
func (c *Controller) editable(id string) error {
	if c.saving {
		return ErrSaving
	}
	if _, ok := c.session.Rule(id); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownRule, id)
	}
	return nil
}

// apply runs a transition and, for anything that changes the draft, the
// validation that must follow it. Callers hold c.mu.
func (c *Controller) apply(a checkin.Action) {
	c.session = checkin.Transition(c.session, a)
	c.session = checkin.Transition(c.session, checkin.Revalidate{})
}
