package db

import (
	"context"
	"database/sql"

	"github.com/eventdesk/checkpoint/internal/checkin"
)

// Querier is satisfied by *sql.DB and *sql.Tx.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// LoadRules returns an event's check-in rules in their stored order. An
// event with no rules yields an empty, non-nil slice.
func LoadRules(ctx context.Context, q Querier, eventID string) ([]checkin.Rule, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, name, active, requirement, opens_minutes_before, closes_minutes_after
		 FROM checkin_rules WHERE event_id = ? ORDER BY position ASC`, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	rules := []checkin.Rule{}
	for rows.Next() {
		var r checkin.Rule
		if err := rows.Scan(&r.ID, &r.Name, &r.Active, &r.Requirement,
			&r.OpensMinutesBefore, &r.ClosesMinutesAfter); err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}
	return rules, rows.Err()
}
