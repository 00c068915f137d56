package handlers

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"net/mail"
	"strings"

	"github.com/eventdesk/checkpoint/internal/auth"
	"github.com/eventdesk/checkpoint/internal/middleware"
	"github.com/eventdesk/checkpoint/internal/models"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const minPasswordLength = 8

// userColumns is the column list every user query selects, in the order
// scanUser expects.
const userColumns = `id, email, password_hash, name, role, created_at, updated_at`

func scanUser(row rowScanner) (models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Name, &u.Role, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

// loadUser finds a user by "id" or "email".
func (s *Server) loadUser(ctx context.Context, column, value string) (models.User, error) {
	return scanUser(s.DB.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE `+column+` = ?`, value))
}

// checkRegistration normalises req in place and returns per-field problems.
// An empty role registers a read-only viewer.
func checkRegistration(req *models.RegisterRequest) map[string]string {
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	req.Name = strings.TrimSpace(req.Name)
	if req.Role == "" {
		req.Role = models.RoleViewer
	}

	details := map[string]string{}
	if _, err := mail.ParseAddress(req.Email); err != nil {
		details["email"] = "must be a valid email address"
	}
	if req.Name == "" {
		details["name"] = "is required"
	}
	if len(req.Password) < minPasswordLength {
		details["password"] = "must have at least 8 characters"
	}
	if req.Role != models.RoleAdmin && req.Role != models.RoleViewer {
		details["role"] = "must be admin or viewer"
	}
	if len(details) == 0 {
		return nil
	}
	return details
}

// issueSession signs a session token for u and writes the login response.
func (s *Server) issueSession(w http.ResponseWriter, status int, u models.User) {
	token, err := auth.GenerateToken(u.ID, string(u.Role), s.Secret)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "could not generate token")
		return
	}
	respond(w, status, models.LoginResponse{Token: token, User: u})
}

// Register handles POST /api/auth/register
//
// Only admins may edit events, participants and check-in rules; viewers
// see everything and can sync door scans.
func (s *Server) Register(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterRequest
	if err := decode(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if details := checkRegistration(&req); details != nil {
		respondInvalid(w, "invalid registration", details)
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to hash password")
		return
	}

	now := s.now()
	user := models.User{
		ID:           uuid.NewString(),
		Email:        req.Email,
		PasswordHash: string(hash),
		Name:         req.Name,
		Role:         req.Role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	_, err = s.DB.ExecContext(r.Context(),
		`INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		user.ID, user.Email, user.PasswordHash, user.Name, user.Role, user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		// modernc reports constraint failures only through the message.
		if strings.Contains(err.Error(), "UNIQUE") {
			respondError(w, http.StatusConflict, "email already registered")
			return
		}
		s.log().Error("create user", "error", err)
		respondError(w, http.StatusInternalServerError, "could not create user")
		return
	}
	s.log().Info("user registered", "user_id", user.ID, "role", user.Role)
	s.issueSession(w, http.StatusCreated, user)
}

// Login handles POST /api/auth/login
//
// Unknown email and wrong password both get 401 "invalid credentials".
func (s *Server) Login(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if err := decode(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	user, err := s.loadUser(r.Context(), "email", strings.TrimSpace(strings.ToLower(req.Email)))
	switch {
	case errors.Is(err, sql.ErrNoRows):
		respondError(w, http.StatusUnauthorized, "invalid credentials")
		return
	case err != nil:
		respondError(w, http.StatusInternalServerError, "database error")
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		s.log().Debug("login rejected", "user_id", user.ID)
		respondError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	s.issueSession(w, http.StatusOK, user)
}

// Me handles GET /api/auth/me
func (s *Server) Me(w http.ResponseWriter, r *http.Request) {
	user, err := s.loadUser(r.Context(), "id", middleware.GetUserID(r.Context()))
	switch {
	case errors.Is(err, sql.ErrNoRows):
		respondError(w, http.StatusNotFound, "user not found")
		return
	case err != nil:
		respondError(w, http.StatusInternalServerError, "database error")
		return
	}
	respond(w, http.StatusOK, user)
}
