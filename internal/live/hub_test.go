package live

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/eventdesk/checkpoint/internal/models"
	"github.com/gorilla/websocket"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startHub(t *testing.T) *Hub {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	hub := NewHub(quietLogger())
	go hub.Run(ctx)
	return hub
}

func waitForClients(t *testing.T, hub *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %d clients, have %d", n, hub.ClientCount())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHandler_StreamsActivities(t *testing.T) {
	hub := startHub(t)
	srv := httptest.NewServer(Handler(hub, quietLogger()))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	waitForClients(t, hub, 1)

	at := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	hub.Publish(models.Activity{ID: "a1", Kind: models.ActivityCheckIn, Participant: "Amara", At: at})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if msg.Type != "activity.checkin" {
		t.Errorf("type: got %q", msg.Type)
	}
	if !msg.Timestamp.Equal(at) {
		t.Errorf("timestamp: got %v", msg.Timestamp)
	}
	a, ok := ActivityFrom(msg)
	if !ok || a.Participant != "Amara" || a.ID != "a1" {
		t.Errorf("payload: got %+v (ok=%v)", a, ok)
	}
}

func TestHandler_UnregistersOnClose(t *testing.T) {
	hub := startHub(t)
	srv := httptest.NewServer(Handler(hub, quietLogger()))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	waitForClients(t, hub, 1)

	conn.Close()
	waitForClients(t, hub, 0)
}

func TestHandler_ChecksOrigin(t *testing.T) {
	hub := startHub(t)
	srv := httptest.NewServer(Handler(hub, quietLogger(), "https://desk.example.test"))
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	cases := []struct {
		name   string
		origin string
		ok     bool
	}{
		{"allowed origin", "https://desk.example.test", true},
		{"no origin header", "", true},
		{"other origin", "https://evil.example.test", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			header := http.Header{}
			if tc.origin != "" {
				header.Set("Origin", tc.origin)
			}
			conn, resp, err := websocket.DefaultDialer.Dial(url, header)
			if conn != nil {
				defer conn.Close()
			}
			if tc.ok && err != nil {
				t.Fatalf("dial: %v", err)
			}
			if !tc.ok {
				if err == nil {
					t.Fatal("dial succeeded, want rejection")
				}
				if resp == nil || resp.StatusCode != http.StatusForbidden {
					t.Errorf("response = %v, want 403", resp)
				}
			}
		})
	}
}

func TestOriginChecker_Wildcard(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/api/live", nil)
	r.Header.Set("Origin", "https://anywhere.example.test")
	if !originChecker([]string{"*"})(r) {
		t.Error(`"*" should allow any origin`)
	}
	if !originChecker(nil)(r) {
		t.Error("empty allow-list should allow any origin")
	}
}

func TestPublish_WithoutClients(t *testing.T) {
	hub := startHub(t)
	// Must not block or panic.
	for i := 0; i < 10; i++ {
		hub.Publish(models.Activity{Kind: models.ActivityEventCreated})
	}
}

func TestActivityFrom_IgnoresOtherTypes(t *testing.T) {
	if _, ok := ActivityFrom(Message{Type: "pong"}); ok {
		t.Error("non-activity message should not decode")
	}
}

func TestRegister_AfterStop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub(quietLogger())
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()
	cancel()
	<-stopped

	c := NewClient()
	hub.Register(c)
	if _, ok := <-c.Send(); ok {
		t.Error("send queue should be closed after the hub stopped")
	}
	hub.Unregister(c) // must not block
}
