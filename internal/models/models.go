package models

import (
	"time"

	"github.com/eventdesk/checkpoint/internal/checkin"
)

// UserRole defines what a console account may do.
type UserRole string

const (
	RoleAdmin  UserRole = "admin"
	RoleViewer UserRole = "viewer"
)

// EventStatus represents the lifecycle state of an event.
type EventStatus string

const (
	EventStatusActive EventStatus = "active"
	EventStatusClosed EventStatus = "closed"
)

// CheckInStatus tracks whether a participant has checked in.
type CheckInStatus string

const (
	CheckInPending CheckInStatus = "pending"
	CheckInDone    CheckInStatus = "done"
)

// SyncStatus is the outcome of one synced scan.
type SyncStatus string

const (
	SyncVerified SyncStatus = "verified"
	SyncRejected SyncStatus = "rejected"
)

// User is a console account.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Name         string    `json:"name"`
	Role         UserRole  `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Event is something participants check in to.
type Event struct {
	ID       string      `json:"id"`
	Name     string      `json:"name"`
	StartsAt time.Time   `json:"starts_at"`
	Location string      `json:"location"`
	Status   EventStatus `json:"status"`
	// CheckInCode is the secret embedded in venue QR tokens. Never listed.
	CheckInCode string    `json:"-"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Participant is a person registered for one event.
type Participant struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Email       string        `json:"email"`
	EventID     string        `json:"event_id"`
	CheckIn     CheckInStatus `json:"checkin"`
	CheckedInAt *time.Time    `json:"checked_in_at,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// Activity is one entry of the dashboard feed.
type Activity struct {
	ID          string    `json:"id"`
	Kind        string    `json:"kind"`
	Participant string    `json:"participant,omitempty"`
	Event       string    `json:"event,omitempty"`
	EventID     string    `json:"event_id,omitempty"`
	Detail      string    `json:"detail,omitempty"`
	At          time.Time `json:"at"`
}

// Activity kinds.
const (
	ActivityEventCreated       = "event_created"
	ActivityEventUpdated       = "event_updated"
	ActivityEventDeleted       = "event_deleted"
	ActivityEventClosed        = "event_closed"
	ActivityParticipantAdded   = "participant_added"
	ActivityParticipantUpdated = "participant_updated"
	ActivityParticipantRemoved = "participant_removed"
	ActivityParticipantMoved   = "participant_transferred"
	ActivityCheckIn            = "checkin"
	ActivityRulesUpdated       = "rules_updated"
)

// UpcomingEvent is the short form of an event on the dashboard.
type UpcomingEvent struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	StartsAt time.Time `json:"starts_at"`
}

// Dashboard aggregates counts and recent activity.
type Dashboard struct {
	TotalEvents       int             `json:"total_events"`
	TotalParticipants int             `json:"total_participants"`
	CheckedIn         int             `json:"checked_in"`
	UpcomingEvents    []UpcomingEvent `json:"upcoming_events"`
	RecentActivities  []Activity      `json:"recent_activities"`
}

// ---- Request / Response DTOs ----

type RegisterRequest struct {
	Email    string   `json:"email"`
	Password string   `json:"password"`
	Name     string   `json:"name"`
	Role     UserRole `json:"role"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

// EventRequest is the body of create and update. Unknown statuses are
// treated as active.
type EventRequest struct {
	Name     string      `json:"name"`
	StartsAt time.Time   `json:"starts_at"`
	Location string      `json:"location"`
	Status   EventStatus `json:"status"`
}

// ParticipantRequest is the body of create and update.
type ParticipantRequest struct {
	Name    string        `json:"name"`
	Email   string        `json:"email"`
	EventID string        `json:"event_id"`
	CheckIn CheckInStatus `json:"checkin"`
}

type TransferRequest struct {
	EventID string `json:"event_id"`
}

// RulesRequest replaces an event's whole rule set.
type RulesRequest struct {
	Rules []checkin.Rule `json:"rules"`
}

// RulesResponse is the authoritative stored rule set.
type RulesResponse struct {
	EventID string         `json:"event_id"`
	Rules   []checkin.Rule `json:"rules"`
}

type ValidateRulesResponse struct {
	Violations []string        `json:"violations"`
	Summary    checkin.Summary `json:"summary"`
}

type CheckInCodeResponse struct {
	EventID string    `json:"event_id"`
	Token   string    `json:"token"`
	Expires time.Time `json:"expires_at"`
}

type SyncCheckInsRequest struct {
	Records []CheckInSyncRecord `json:"records"`
}

// CheckInSyncRecord is one scan captured by a door device, possibly offline.
type CheckInSyncRecord struct {
	LocalID       string    `json:"local_id"` // device-side id echoed back
	ParticipantID string    `json:"participant_id"`
	Token         string    `json:"token"` // the venue QR token that was scanned
	ScannedAt     time.Time `json:"scanned_at"`
}

type SyncCheckInsResponse struct {
	Results []SyncResult `json:"results"`
}

type SyncResult struct {
	LocalID string     `json:"local_id"`
	Status  SyncStatus `json:"status"`
	Message string     `json:"message,omitempty"`
}
