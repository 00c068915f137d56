package console

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/eventdesk/checkpoint/internal/checkin"
	"github.com/eventdesk/checkpoint/internal/client"
	"github.com/eventdesk/checkpoint/internal/models"
)

// fakeBackend serves one event from memory. Rule storage is a memStore.
type fakeBackend struct {
	*memStore
	loggedIn   bool
	checkedIn  []string
	activities []models.Activity
}

var shellNow = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func newFakeBackend(rules ...checkin.Rule) *fakeBackend {
	return &fakeBackend{memStore: newMemStore(testEventID, rules...)}
}

func (f *fakeBackend) Login(_ context.Context, email, password string) (models.LoginResponse, error) {
	if password != "demo1234" {
		return models.LoginResponse{}, &client.APIError{StatusCode: 401, Message: "invalid credentials"}
	}
	f.loggedIn = true
	return models.LoginResponse{Token: "t", User: models.User{Email: email, Name: "Desk Admin", Role: models.RoleAdmin}}, nil
}

func (f *fakeBackend) Logout() error {
	f.loggedIn = false
	return nil
}

func (f *fakeBackend) Me(context.Context) (models.User, error) {
	if !f.loggedIn {
		return models.User{}, client.ErrUnauthorized
	}
	return models.User{Name: "Desk Admin", Email: "admin@checkpoint.test", Role: models.RoleAdmin}, nil
}

func (f *fakeBackend) GetEvent(_ context.Context, id string) (models.Event, error) {
	if id != testEventID {
		return models.Event{}, &client.APIError{StatusCode: 404, Message: "event not found"}
	}
	return models.Event{ID: testEventID, Name: "Go Meetup", StartsAt: shellNow.Add(30 * time.Minute)}, nil
}

func (f *fakeBackend) ListEvents(context.Context, client.EventFilter) ([]models.Event, error) {
	e, _ := f.GetEvent(context.Background(), testEventID)
	return []models.Event{e}, nil
}

func (f *fakeBackend) ListParticipants(context.Context, client.ParticipantFilter) ([]models.Participant, error) {
	return []models.Participant{{ID: "p1", Name: "Amara Osei", Email: "amara@example.test", CheckIn: models.CheckInPending}}, nil
}

func (f *fakeBackend) CheckIn(_ context.Context, id string) (models.Participant, error) {
	f.checkedIn = append(f.checkedIn, id)
	return models.Participant{ID: id, Name: "Amara Osei", CheckIn: models.CheckInDone}, nil
}

func (f *fakeBackend) Dashboard(context.Context) (models.Dashboard, error) {
	return models.Dashboard{TotalEvents: 3, TotalParticipants: 6, CheckedIn: 2}, nil
}

func (f *fakeBackend) Watch(_ context.Context, fn func(models.Activity)) error {
	for _, a := range f.activities {
		fn(a)
	}
	return nil
}

// runShell feeds script to a shell and returns everything it printed.
func runShell(t *testing.T, api Backend, script ...string) string {
	t.Helper()
	var out strings.Builder
	sh := NewShell(api, strings.NewReader(strings.Join(script, "\n")+"\n"), &out, quietLogger())
	sh.Now = func() time.Time { return shellNow }
	if err := sh.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	return out.String()
}

func assertContains(t *testing.T, out string, want ...string) {
	t.Helper()
	for _, w := range want {
		if !strings.Contains(out, w) {
			t.Errorf("output missing %q:\n%s", w, out)
		}
	}
}

// ── Tests ────────────────────────────────────────────────────────────

func TestSplitArgs(t *testing.T) {
	cases := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"  list  ", []string{"list"}},
		{`add "Badge Pickup" optional 120 60`, []string{"add", "Badge Pickup", "optional", "120", "60"}},
		{`edit 2 name="Late Desk" active=false`, []string{"edit", "2", "name=Late Desk", "active=false"}},
		{`add ''`, []string{"add", ""}},
	}
	for _, tc := range cases {
		got, err := splitArgs(tc.in)
		if err != nil {
			t.Errorf("splitArgs(%q): %v", tc.in, err)
			continue
		}
		if !reflect.DeepEqual(got, tc.want) {
			t.Errorf("splitArgs(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
	if _, err := splitArgs(`add "QR`); !errors.Is(err, errUnterminatedQuote) {
		t.Errorf("unterminated quote: err = %v", err)
	}
}

func TestShell_LoginAndWhoami(t *testing.T) {
	api := newFakeBackend()
	out := runShell(t, api,
		"whoami",
		"login admin@checkpoint.test",
		"demo1234",
		"whoami",
		"quit",
	)
	assertContains(t, out,
		"error: not logged in",
		"password: ",
		"logged in as Desk Admin (admin)",
		"Desk Admin <admin@checkpoint.test> (admin)",
	)
}

func TestShell_BrowseCommands(t *testing.T) {
	api := newFakeBackend()
	out := runShell(t, api, "events", "participants", "checkin p1", "dashboard", "bogus", "quit")
	assertContains(t, out,
		"Go Meetup",
		"30 minutes from now",
		"Amara Osei",
		"Amara Osei checked in",
		"events: 3  participants: 6  checked in: 2",
		`unknown command "bogus"`,
	)
	if !reflect.DeepEqual(api.checkedIn, []string{"p1"}) {
		t.Errorf("checked in = %v", api.checkedIn)
	}
}

func TestShell_Watch(t *testing.T) {
	api := newFakeBackend()
	api.activities = []models.Activity{
		{Kind: models.ActivityCheckIn, Participant: "Amara Osei", Event: "Go Meetup", At: shellNow.Add(-2 * time.Minute)},
	}
	out := runShell(t, api, "watch", "", "quit")
	assertContains(t, out, "checkin  Amara Osei  Go Meetup")
}

func TestShell_RuleSessionAddAndSave(t *testing.T) {
	api := newFakeBackend(mandatoryRule("QR Code", 60, 30))
	out := runShell(t, api,
		"rules "+testEventID,
		"edit 1 closes=-5",
		`add "Badge Pickup" optional 120 120`,
		"save",
		"done",
		"quit",
	)
	assertContains(t, out,
		"1 rules, 1 active, 1 mandatory",
		"ok: rules are consistent",
		"error: invalid rule",
		"closes_minutes_after: must be 0 or greater",
		"2 rules, 2 active, 1 mandatory",
		"unsaved changes (save to store them)",
		"rules(Go Meetup)*> ",
		"saved",
		"Badge Pickup (stored)",
	)
	if api.saves != 1 {
		t.Errorf("saves = %d, want 1", api.saves)
	}
}

// Toggling the only active rule off makes the set inconsistent: save is
// refused until the rule is back on.
func TestShell_ToggleLastActiveRuleBlocksSave(t *testing.T) {
	api := newFakeBackend(mandatoryRule("QR Code", 60, 30))
	out := runShell(t, api,
		"rules "+testEventID,
		"save",
		"toggle 1",
		"save",
		"toggle 1",
		"reset",
		"done",
		"quit",
	)
	assertContains(t, out,
		"error: no unsaved changes",
		"problem: "+checkin.MsgNoActiveRule,
		"fix the problems above to save",
		"error: rule set has violations",
		"unsaved changes (save to store them)",
	)
	if api.saves != 0 {
		t.Errorf("saves = %d, want 0", api.saves)
	}
}

func TestShell_RemoveAsksFirst(t *testing.T) {
	api := newFakeBackend(
		mandatoryRule("QR Code", 60, 30),
		mandatoryRule("ID Check", 30, 15),
	)
	out := runShell(t, api,
		"rules "+testEventID,
		"rm 2",
		"n",
		"list",
		"rm 2",
		"yes",
		"save",
		"done",
		"quit",
	)
	assertContains(t, out,
		`remove rule "ID Check"? [y/N] `,
		"error: not removed",
		"2 rules, 2 active, 2 mandatory",
		"1 rules, 1 active, 1 mandatory",
		"saved",
	)
	stored := api.rules[testEventID]
	if len(stored) != 1 || stored[0].Name != "QR Code (stored)" {
		t.Errorf("stored = %+v", stored)
	}
}

func TestShell_DoneAsksBeforeDiscarding(t *testing.T) {
	api := newFakeBackend(
		mandatoryRule("QR Code", 60, 30),
		mandatoryRule("ID Check", 30, 15),
	)
	out := runShell(t, api,
		"rules "+testEventID,
		"toggle 2",
		"done",
		"n",
		"done",
		"y",
		"quit",
	)
	assertContains(t, out,
		"discard unsaved changes? [y/N] ",
		"rules(Go Meetup)*> ",
		"checkpoint> ",
	)
	if strings.Count(out, "discard unsaved changes?") != 2 {
		t.Errorf("expected two discard prompts:\n%s", out)
	}
	if api.saves != 0 {
		t.Errorf("saves = %d, want 0", api.saves)
	}
}

func TestShell_UnknownEventAndRule(t *testing.T) {
	api := newFakeBackend(mandatoryRule("QR Code", 60, 30))
	out := runShell(t, api,
		"rules nope",
		"rules "+testEventID,
		"toggle 9",
		"toggle zzz",
		"edit 1 colour=blue",
		"done",
		"quit",
	)
	assertContains(t, out,
		"error: api: 404 event not found",
		"no such rule in the draft: no rule #9",
		"no such rule in the draft: zzz",
		`unknown key "colour"`,
	)
}
