package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/eventdesk/checkpoint/internal/checkin"
	"github.com/eventdesk/checkpoint/internal/live"
	"github.com/eventdesk/checkpoint/internal/models"
)

// ── Helpers ──────────────────────────────────────────────────────────

func newTestClient(t *testing.T, h http.HandlerFunc) (*Client, *MemoryTokenStore) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	tokens := &MemoryTokenStore{}
	return New(srv.URL+"/api", tokens), tokens
}

func writeEnvelope(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"status_code": status, "data": data})
}

// ── Tests ────────────────────────────────────────────────────────────

func TestLogin_StoresToken(t *testing.T) {
	c, tokens := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/auth/login" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		var req models.LoginRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Email != "admin@checkpoint.test" {
			t.Errorf("email = %q", req.Email)
		}
		writeEnvelope(w, http.StatusOK, models.LoginResponse{
			Token: "tok-123",
			User:  models.User{ID: "u1", Role: models.RoleAdmin},
		})
	})

	resp, err := c.Login(context.Background(), "admin@checkpoint.test", "demo1234")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if resp.User.Role != models.RoleAdmin {
		t.Errorf("role = %q", resp.User.Role)
	}
	if tok, _ := tokens.Token(); tok != "tok-123" {
		t.Errorf("stored token = %q", tok)
	}
	if !c.LoggedIn() {
		t.Error("LoggedIn() = false after login")
	}
}

func TestDo_SendsBearerToken(t *testing.T) {
	c, tokens := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer abc" {
			t.Errorf("Authorization = %q", got)
		}
		writeEnvelope(w, http.StatusOK, models.User{ID: "u1", Name: "Desk Admin"})
	})
	_ = tokens.SetToken("abc")

	u, err := c.Me(context.Background())
	if err != nil {
		t.Fatalf("Me: %v", err)
	}
	if u.Name != "Desk Admin" {
		t.Errorf("name = %q", u.Name)
	}
}

func TestDo_UnauthorizedClearsToken(t *testing.T) {
	c, tokens := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error":"invalid or expired token"}`)
	})
	_ = tokens.SetToken("stale")

	_, err := c.Me(context.Background())
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("err = %v, want ErrUnauthorized", err)
	}
	if tok, _ := tokens.Token(); tok != "" {
		t.Errorf("token not cleared: %q", tok)
	}
}

func TestDo_APIErrorCarriesDetails(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = io.WriteString(w,
			`{"error":"invalid check-in rules","details":{"rules[0].name":"must be at least 3 characters"}}`)
	})

	_, err := c.SaveRules(context.Background(), "e1", []checkin.Rule{{ID: "r1", Name: "x"}})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want *APIError", err)
	}
	if apiErr.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("status = %d", apiErr.StatusCode)
	}
	if apiErr.Details["rules[0].name"] == "" {
		t.Errorf("details = %v", apiErr.Details)
	}
	if !strings.Contains(apiErr.Error(), "rules[0].name") {
		t.Errorf("Error() = %q", apiErr.Error())
	}
}

func TestDo_UnwrapsOnlyFullEnvelope(t *testing.T) {
	// A body with "data" but no "status_code" is the payload itself.
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"data":[{"id":"e1","name":"Go Meetup"}]}`)
	})

	events, err := c.ListEvents(context.Background(), EventFilter{})
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if len(events) != 1 || events[0].ID != "e1" {
		t.Errorf("events = %+v", events)
	}
}

func TestListEvents_SendsFilter(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("search") != "meetup" || r.URL.Query().Get("status") != "active" {
			t.Errorf("query = %s", r.URL.RawQuery)
		}
		writeEnvelope(w, http.StatusOK, []models.Event{{ID: "e1"}, {ID: "e2"}})
	})

	events, err := c.ListEvents(context.Background(), EventFilter{Search: "meetup", Status: models.EventStatusActive})
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if len(events) != 2 {
		t.Errorf("len = %d, want 2", len(events))
	}
}

func TestLoadRules_AcceptsSeveralShapes(t *testing.T) {
	cases := map[string]string{
		"bare array":     `[{"id":"r1","name":"QR Code","active":true,"requirement":"MANDATORY","opens_minutes_before":60,"closes_minutes_after":30}]`,
		"rules key":      `{"status_code":200,"data":{"event_id":"e1","rules":[{"id":"r1","name":"QR Code","active":true,"requirement":"MANDATORY","opens_minutes_before":60,"closes_minutes_after":30}]}}`,
		"items key":      `{"items":[{"id":"r1","name":"QR Code","active":true,"requirement":"MANDATORY","opens_minutes_before":60,"closes_minutes_after":30}]}`,
		"string numbers": `[{"id":"r1","name":"QR Code","active":1,"requirement":"mandatory","opens_minutes_before":"60","closes_minutes_after":"30"}]`,
	}
	want := checkin.Rule{ID: "r1", Name: "QR Code", Active: true, Requirement: checkin.Mandatory,
		OpensMinutesBefore: 60, ClosesMinutesAfter: 30}

	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/api/events/e1/checkin-rules" {
					t.Errorf("path = %s", r.URL.Path)
				}
				_, _ = io.WriteString(w, body)
			})
			rules, err := c.LoadRules(context.Background(), "e1")
			if err != nil {
				t.Fatalf("LoadRules: %v", err)
			}
			if len(rules) != 1 || rules[0] != want {
				t.Errorf("rules = %+v, want [%+v]", rules, want)
			}
		})
	}
}

func TestLoadRules_UnknownShapeIsEmpty(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"something":"else"}`)
	})
	rules, err := c.LoadRules(context.Background(), "e1")
	if err != nil {
		t.Fatalf("LoadRules: %v", err)
	}
	if rules == nil || len(rules) != 0 {
		t.Errorf("rules = %#v, want empty non-nil", rules)
	}
}

func TestLoadRules_MissingRequirementIsOptional(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `[{"id":"r1","name":"Badge","active":true}]`)
	})
	rules, err := c.LoadRules(context.Background(), "e1")
	if err != nil {
		t.Fatalf("LoadRules: %v", err)
	}
	if rules[0].Requirement != checkin.Optional {
		t.Errorf("requirement = %q, want OPTIONAL", rules[0].Requirement)
	}
	if rules[0].OpensMinutesBefore != 0 || rules[0].ClosesMinutesAfter != 0 {
		t.Errorf("offsets = %d/%d, want 0/0", rules[0].OpensMinutesBefore, rules[0].ClosesMinutesAfter)
	}
}

func TestSaveRules_SanitisesAndReturnsStored(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Errorf("method = %s", r.Method)
		}
		var req models.RulesRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if req.Rules[0].Requirement != checkin.Optional {
			t.Errorf("sent requirement = %q, want OPTIONAL", req.Rules[0].Requirement)
		}
		if req.Rules[0].Name != "Badge" {
			t.Errorf("sent name = %q, want trimmed", req.Rules[0].Name)
		}
		// The server's authoritative copy differs from what was sent.
		stored := req.Rules
		stored[0].Name = "Badge Pickup"
		writeEnvelope(w, http.StatusOK, models.RulesResponse{EventID: "e1", Rules: stored})
	})

	sent := []checkin.Rule{{ID: "r1", Name: "  Badge ", Active: true, Requirement: "weird"}}
	got, err := c.SaveRules(context.Background(), "e1", sent)
	if err != nil {
		t.Fatalf("SaveRules: %v", err)
	}
	if len(got) != 1 || got[0].Name != "Badge Pickup" {
		t.Errorf("stored = %+v", got)
	}
	if sent[0].Name != "  Badge " {
		t.Error("SaveRules modified the caller's slice")
	}
}

func TestSyncCheckIns(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req models.SyncCheckInsRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		results := make([]models.SyncResult, len(req.Records))
		for i, rec := range req.Records {
			results[i] = models.SyncResult{LocalID: rec.LocalID, Status: models.SyncVerified}
		}
		writeEnvelope(w, http.StatusOK, models.SyncCheckInsResponse{Results: results})
	})

	res, err := c.SyncCheckIns(context.Background(), []models.CheckInSyncRecord{
		{LocalID: "a", ParticipantID: "p1", Token: "t", ScannedAt: time.Now()},
		{LocalID: "b", ParticipantID: "p2", Token: "t", ScannedAt: time.Now()},
	})
	if err != nil {
		t.Fatalf("SyncCheckIns: %v", err)
	}
	if len(res) != 2 || res[1].LocalID != "b" {
		t.Errorf("results = %+v", res)
	}
}

func TestWatch_DeliversActivities(t *testing.T) {
	hub := live.NewHub(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	srv := httptest.NewServer(live.Handler(hub, nil))
	defer srv.Close()
	// The handler answers on every path, including /live.
	c := New(srv.URL, nil)

	got := make(chan models.Activity, 1)
	watchCtx, stop := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() {
		done <- c.Watch(watchCtx, func(a models.Activity) { got <- a })
	}()

	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	hub.Publish(models.Activity{ID: "a1", Kind: models.ActivityCheckIn, Participant: "Amara"})

	select {
	case a := <-got:
		if a.ID != "a1" || a.Participant != "Amara" {
			t.Errorf("activity = %+v", a)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no activity received")
	}

	stop()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Watch returned %v after cancel", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Watch did not return after cancel")
	}
}

func TestLiveURL(t *testing.T) {
	cases := map[string]string{
		"http://localhost:8080/api": "ws://localhost:8080/api/live",
		"https://desk.example/api/": "wss://desk.example/api/live",
	}
	for base, want := range cases {
		if got := New(base, nil).liveURL(); got != want {
			t.Errorf("liveURL(%q) = %q, want %q", base, got, want)
		}
	}
}

func TestFileTokenStore(t *testing.T) {
	store := FileTokenStore{Path: filepath.Join(t.TempDir(), "nested", "token")}

	if tok, err := store.Token(); err != nil || tok != "" {
		t.Fatalf("empty store = %q, %v", tok, err)
	}
	if err := store.SetToken("abc"); err != nil {
		t.Fatalf("SetToken: %v", err)
	}
	if tok, _ := store.Token(); tok != "abc" {
		t.Errorf("Token = %q", tok)
	}
	if err := store.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if err := store.Clear(); err != nil {
		t.Errorf("second Clear: %v", err)
	}
	if tok, _ := store.Token(); tok != "" {
		t.Errorf("after Clear = %q", tok)
	}
}
