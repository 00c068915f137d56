// Package db handles SQLite initialisation and schema migrations.
//
// ────────────────────────────────────────────────────────────────────
// LEARNING NOTE — why modernc.org/sqlite instead of go-sqlite3?
// ────────────────────────────────────────────────────────────────────
// go-sqlite3 is a CGo binding and needs a C toolchain on the build
// machine. modernc.org/sqlite is a pure-Go port: no CGo, cross-compiles
// cleanly into a scratch container. The only visible difference is the
// driver name, "sqlite" instead of "sqlite3".
package db

import (
	"database/sql"
	"fmt"
	"strings"

	// Blank import: the modernc driver registers itself with
	// database/sql under the name "sqlite" when this package loads.
	_ "modernc.org/sqlite"
)

// Open opens (or creates) the SQLite database at dsn and runs all migrations.
//
// Recommended DSN formats for modernc.org/sqlite:
//   - Production file: "checkpoint.db?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
//   - Tests:           "file:testXYZ?mode=memory&cache=shared&_pragma=foreign_keys(1)"
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

// migrate runs each DDL statement in the schema individually; the driver
// only executes the first statement of a multi-statement string.
func migrate(db *sql.DB) error {
	for _, stmt := range strings.Split(schema, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migration statement failed: %w\nstatement: %s", err, stmt)
		}
	}
	return nil
}

// Tables lists every table the schema creates, in creation order.
var Tables = []string{"users", "events", "participants", "checkin_rules", "activities"}

// schema contains every CREATE statement for the application.
//
//	checkin_rules  one row per rule; position keeps the order the console
//	               sent, since display order is the editor's order.
//	               Replacing a rule set is DELETE + INSERT in one tx.
//
//	activities     the dashboard feed. Names are denormalised so the feed
//	               still reads well after an event or participant is gone.
const schema = `
CREATE TABLE IF NOT EXISTS users (
    id            TEXT PRIMARY KEY,
    email         TEXT NOT NULL UNIQUE,
    password_hash TEXT NOT NULL,
    name          TEXT NOT NULL,
    role          TEXT NOT NULL CHECK(role IN ('admin','viewer')),
    created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS events (
    id            TEXT PRIMARY KEY,
    name          TEXT NOT NULL,
    starts_at     DATETIME NOT NULL,
    location      TEXT NOT NULL DEFAULT '',
    status        TEXT NOT NULL DEFAULT 'active' CHECK(status IN ('active','closed')),
    check_in_code TEXT NOT NULL DEFAULT '',
    created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS participants (
    id            TEXT PRIMARY KEY,
    name          TEXT NOT NULL,
    email         TEXT NOT NULL,
    event_id      TEXT NOT NULL REFERENCES events(id) ON DELETE CASCADE,
    checkin       TEXT NOT NULL DEFAULT 'pending' CHECK(checkin IN ('pending','done')),
    checked_in_at DATETIME,
    created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_participants_event ON participants(event_id);

CREATE TABLE IF NOT EXISTS checkin_rules (
    id                   TEXT NOT NULL,
    event_id             TEXT NOT NULL REFERENCES events(id) ON DELETE CASCADE,
    position             INTEGER NOT NULL,
    name                 TEXT NOT NULL,
    active               BOOLEAN NOT NULL,
    requirement          TEXT NOT NULL CHECK(requirement IN ('MANDATORY','OPTIONAL')),
    opens_minutes_before INTEGER NOT NULL CHECK(opens_minutes_before BETWEEN 0 AND 1440),
    closes_minutes_after INTEGER NOT NULL CHECK(closes_minutes_after BETWEEN 0 AND 1440),
    PRIMARY KEY (event_id, id)
);

CREATE TABLE IF NOT EXISTS activities (
    id          TEXT PRIMARY KEY,
    kind        TEXT NOT NULL,
    participant TEXT NOT NULL DEFAULT '',
    event       TEXT NOT NULL DEFAULT '',
    event_id    TEXT NOT NULL DEFAULT '',
    detail      TEXT NOT NULL DEFAULT '',
    at          DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_activities_at ON activities(at)
`
