package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/eventdesk/checkpoint/internal/auth"
	"github.com/eventdesk/checkpoint/internal/db"
	"github.com/eventdesk/checkpoint/internal/middleware"
	"github.com/eventdesk/checkpoint/internal/models"
)

const testSecret = "handler-test-secret"

// testNow is the fixed clock every test server runs on.
var testNow = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

var testDBCounter uint64

// newTestServer creates a Server backed by a unique in-memory SQLite database.
func newTestServer(t *testing.T) *Server {
	t.Helper()
	// Each test gets its own named shared-cache memory DB so connections
	// in the pool all see the same tables without interfering across tests.
	id := atomic.AddUint64(&testDBCounter, 1)
	dsn := fmt.Sprintf("file:testdb%d?mode=memory&cache=shared&_pragma=foreign_keys(1)", id)
	testDB, err := db.Open(dsn)
	if err != nil {
		t.Fatalf("newTestServer: open db: %v", err)
	}
	t.Cleanup(func() { testDB.Close() })
	return &Server{DB: testDB, Secret: testSecret, Now: func() time.Time { return testNow }}
}

// jsonBody encodes v to JSON and returns a bytes.Buffer.
func jsonBody(t *testing.T, v any) *bytes.Buffer {
	t.Helper()
	buf := &bytes.Buffer{}
	if err := json.NewEncoder(buf).Encode(v); err != nil {
		t.Fatalf("jsonBody: %v", err)
	}
	return buf
}

// decodeData unwraps the response envelope into v.
func decodeData(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	var env struct {
		StatusCode int             `json:"status_code"`
		Data       json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if env.StatusCode != rec.Code {
		t.Errorf("envelope status_code %d, HTTP status %d", env.StatusCode, rec.Code)
	}
	if err := json.Unmarshal(env.Data, v); err != nil {
		t.Fatalf("decode data: %v (%s)", err, env.Data)
	}
}

// decodeError reads an error body.
func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var body errorBody
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return body
}

// ctxWithUser attaches a user_id and role to a request's context (simulates Authenticate middleware).
func ctxWithUser(r *http.Request, userID, role string) *http.Request {
	ctx := context.WithValue(r.Context(), middleware.ContextUserID, userID)
	ctx = context.WithValue(ctx, middleware.ContextRole, role)
	return r.WithContext(ctx)
}

// ---- Auth handler tests ----

func TestRegister_Success(t *testing.T) {
	srv := newTestServer(t)
	body := jsonBody(t, models.RegisterRequest{
		Email:    "Alice@Example.com",
		Password: "password123",
		Name:     "Alice",
		Role:     models.RoleAdmin,
	})
	req := httptest.NewRequest(http.MethodPost, "/api/auth/register", body)
	rec := httptest.NewRecorder()
	srv.Register(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp models.LoginResponse
	decodeData(t, rec, &resp)
	if resp.Token == "" {
		t.Error("expected non-empty token")
	}
	if resp.User.Email != "alice@example.com" {
		t.Errorf("email: got %q", resp.User.Email)
	}
	claims, err := auth.ParseToken(resp.Token, testSecret)
	if err != nil {
		t.Fatalf("ParseToken: %v", err)
	}
	if claims.Role != auth.RoleAdmin {
		t.Errorf("role claim: got %q", claims.Role)
	}
}

func TestRegister_DefaultsToViewer(t *testing.T) {
	srv := newTestServer(t)
	body := jsonBody(t, map[string]string{
		"email": "v@example.com", "password": "password123", "name": "Vee",
	})
	rec := httptest.NewRecorder()
	srv.Register(rec, httptest.NewRequest(http.MethodPost, "/api/auth/register", body))

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp models.LoginResponse
	decodeData(t, rec, &resp)
	if resp.User.Role != models.RoleViewer {
		t.Errorf("role: got %q, want viewer", resp.User.Role)
	}
}

func TestRegister_DuplicateEmail(t *testing.T) {
	srv := newTestServer(t)
	payload := models.RegisterRequest{
		Email:    "bob@example.com",
		Password: "password123",
		Name:     "Bob",
		Role:     models.RoleViewer,
	}
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/register", jsonBody(t, payload))
		rec := httptest.NewRecorder()
		srv.Register(rec, req)
		if i == 1 && rec.Code != http.StatusConflict {
			t.Errorf("expected 409, got %d", rec.Code)
		}
	}
}

func TestRegister_InvalidRole(t *testing.T) {
	srv := newTestServer(t)
	body := jsonBody(t, map[string]string{
		"email": "x@x.com", "password": "password123", "name": "X", "role": "superuser",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/auth/register", body)
	rec := httptest.NewRecorder()
	srv.Register(rec, req)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
	if got := decodeError(t, rec).Details["role"]; got == "" {
		t.Error("expected a role detail")
	}
}

func TestRegister_InvalidEmail(t *testing.T) {
	srv := newTestServer(t)
	body := jsonBody(t, map[string]string{
		"email": "not-an-email", "password": "password123", "name": "X",
	})
	rec := httptest.NewRecorder()
	srv.Register(rec, httptest.NewRequest(http.MethodPost, "/api/auth/register", body))
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
	details := decodeError(t, rec).Details
	if details["email"] == "" {
		t.Errorf("expected an email detail, got %v", details)
	}
	if _, ok := details["name"]; ok {
		t.Errorf("one-letter name should be accepted, got %v", details)
	}
}

func TestRegister_ShortPassword(t *testing.T) {
	srv := newTestServer(t)
	body := jsonBody(t, map[string]string{
		"email": "p@example.com", "password": "short", "name": "Pat",
	})
	rec := httptest.NewRecorder()
	srv.Register(rec, httptest.NewRequest(http.MethodPost, "/api/auth/register", body))
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
	if decodeError(t, rec).Details["password"] == "" {
		t.Error("expected a password detail")
	}
}

func TestLogin_UnknownEmail(t *testing.T) {
	srv := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login",
		jsonBody(t, models.LoginRequest{Email: "nobody@example.com", Password: "whatever1"}))
	rec := httptest.NewRecorder()
	srv.Login(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

func TestLogin_Success(t *testing.T) {
	srv := newTestServer(t)
	regBody := jsonBody(t, models.RegisterRequest{
		Email:    "carol@example.com",
		Password: "securepass",
		Name:     "Carol",
		Role:     models.RoleAdmin,
	})
	srv.Register(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/", regBody))

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login",
		jsonBody(t, models.LoginRequest{Email: "carol@example.com", Password: "securepass"}))
	rec := httptest.NewRecorder()
	srv.Login(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp models.LoginResponse
	decodeData(t, rec, &resp)
	if resp.User.Name != "Carol" {
		t.Errorf("name: got %q", resp.User.Name)
	}
}

func TestLogin_WrongPassword(t *testing.T) {
	srv := newTestServer(t)
	regBody := jsonBody(t, models.RegisterRequest{
		Email:    "dave@example.com",
		Password: "correctpass",
		Name:     "Dave",
		Role:     models.RoleViewer,
	})
	srv.Register(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/", regBody))

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login",
		jsonBody(t, models.LoginRequest{Email: "dave@example.com", Password: "wrongpass"}))
	rec := httptest.NewRecorder()
	srv.Login(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

func TestMe(t *testing.T) {
	srv := newTestServer(t)
	regBody := jsonBody(t, models.RegisterRequest{
		Email: "erin@example.com", Password: "password123", Name: "Erin", Role: models.RoleViewer,
	})
	regRec := httptest.NewRecorder()
	srv.Register(regRec, httptest.NewRequest(http.MethodPost, "/", regBody))
	var reg models.LoginResponse
	decodeData(t, regRec, &reg)

	req := ctxWithUser(httptest.NewRequest(http.MethodGet, "/api/auth/me", nil), reg.User.ID, auth.RoleViewer)
	rec := httptest.NewRecorder()
	srv.Me(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var user models.User
	decodeData(t, rec, &user)
	if user.Email != "erin@example.com" {
		t.Errorf("email: got %q", user.Email)
	}
}
