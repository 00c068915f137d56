package handlers

import (
	"context"
	"net/http"

	"github.com/eventdesk/checkpoint/internal/models"
)

const (
	dashboardUpcoming   = 5
	dashboardActivities = 10
)

// Dashboard handles GET /api/dashboard
func (s *Server) Dashboard(w http.ResponseWriter, r *http.Request) {
	d, err := s.dashboard(r.Context())
	if err != nil {
		s.log().Error("dashboard", "error", err)
		respondError(w, http.StatusInternalServerError, "database error")
		return
	}
	respond(w, http.StatusOK, d)
}

func (s *Server) dashboard(ctx context.Context) (models.Dashboard, error) {
	d := models.Dashboard{
		UpcomingEvents:   []models.UpcomingEvent{},
		RecentActivities: []models.Activity{},
	}

	err := s.DB.QueryRowContext(ctx,
		`SELECT
		   (SELECT COUNT(*) FROM events),
		   (SELECT COUNT(*) FROM participants),
		   (SELECT COUNT(*) FROM participants WHERE checkin = 'done')`,
	).Scan(&d.TotalEvents, &d.TotalParticipants, &d.CheckedIn)
	if err != nil {
		return d, err
	}

	// Start times are compared in Go: the driver stores time.Time as
	// text, which SQL can order but should not be asked to compare.
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, name, starts_at FROM events WHERE status = 'active' ORDER BY starts_at ASC`)
	if err != nil {
		return d, err
	}
	now := s.now()
	for rows.Next() {
		var u models.UpcomingEvent
		if err := rows.Scan(&u.ID, &u.Name, &u.StartsAt); err != nil {
			rows.Close()
			return d, err
		}
		if u.StartsAt.After(now) && len(d.UpcomingEvents) < dashboardUpcoming {
			d.UpcomingEvents = append(d.UpcomingEvents, u)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return d, err
	}

	rows, err = s.DB.QueryContext(ctx,
		`SELECT id, kind, participant, event, event_id, detail, at
		 FROM activities ORDER BY at DESC LIMIT ?`, dashboardActivities)
	if err != nil {
		return d, err
	}
	defer rows.Close()
	for rows.Next() {
		var a models.Activity
		if err := rows.Scan(&a.ID, &a.Kind, &a.Participant, &a.Event, &a.EventID, &a.Detail, &a.At); err != nil {
			return d, err
		}
		d.RecentActivities = append(d.RecentActivities, a)
	}
	return d, rows.Err()
}
