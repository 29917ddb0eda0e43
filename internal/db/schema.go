package db

import (
	"database/sql"
	"fmt"
)

// schema is the full database schema.
const schema = `
CREATE TABLE IF NOT EXISTS users (
    id            INTEGER PRIMARY KEY,
    username      TEXT NOT NULL,
    name          TEXT NOT NULL DEFAULT '',
    password_hash TEXT NOT NULL,
    role          TEXT NOT NULL DEFAULT 'student' CHECK (role IN ('admin', 'staff', 'student')),
    created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    deleted_at    DATETIME
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_users_username_active
    ON users(username) WHERE deleted_at IS NULL;

CREATE TABLE IF NOT EXISTS settings (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS revoked_tokens (
    jti        TEXT PRIMARY KEY,
    expires_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS lost_reports (
    seq               INTEGER PRIMARY KEY AUTOINCREMENT,
    id                TEXT NOT NULL UNIQUE,
    description       TEXT NOT NULL,
    possible_location TEXT NOT NULL,
    category          TEXT NOT NULL CHECK (category IN ('Electronics', 'Documents', 'Personal Items', 'Books', 'Clothing', 'Other')),
    date_lost         TEXT NOT NULL,
    image_ref         TEXT NOT NULL DEFAULT '',
    status            TEXT NOT NULL DEFAULT 'searching' CHECK (status IN ('searching', 'found')),
    reporter_id       TEXT NOT NULL,
    linked_found_id   TEXT,
    version           INTEGER NOT NULL DEFAULT 1,
    created_at        DATETIME NOT NULL,
    updated_at        DATETIME NOT NULL,
    archived_at       DATETIME
);

CREATE INDEX IF NOT EXISTS idx_lost_reports_category ON lost_reports(category, seq);

CREATE TABLE IF NOT EXISTS found_reports (
    seq            INTEGER PRIMARY KEY AUTOINCREMENT,
    id             TEXT NOT NULL UNIQUE,
    description    TEXT NOT NULL,
    location       TEXT NOT NULL,
    category       TEXT NOT NULL CHECK (category IN ('Electronics', 'Documents', 'Personal Items', 'Books', 'Clothing', 'Other')),
    date_found     TEXT NOT NULL,
    image_ref      TEXT NOT NULL DEFAULT '',
    status         TEXT NOT NULL DEFAULT 'unclaimed' CHECK (status IN ('unclaimed', 'claimed')),
    finder_id      TEXT NOT NULL,
    finder_name    TEXT NOT NULL DEFAULT '',
    finder_roll_no TEXT NOT NULL DEFAULT '',
    finder_contact TEXT NOT NULL,
    claimant_id    TEXT,
    linked_lost_id TEXT,
    version        INTEGER NOT NULL DEFAULT 1,
    created_at     DATETIME NOT NULL,
    updated_at     DATETIME NOT NULL,
    archived_at    DATETIME
);

CREATE INDEX IF NOT EXISTS idx_found_reports_category ON found_reports(category, seq);

-- A lost report is linked to at most one found report.
CREATE UNIQUE INDEX IF NOT EXISTS idx_found_reports_linked_lost
    ON found_reports(linked_lost_id) WHERE linked_lost_id IS NOT NULL;

CREATE TABLE IF NOT EXISTS events (
    id          INTEGER PRIMARY KEY,
    action      TEXT NOT NULL CHECK (action IN ('claim', 'reopen', 'resolve', 'archive')),
    report_kind TEXT NOT NULL CHECK (report_kind IN ('lost', 'found')),
    report_id   TEXT NOT NULL,
    linked_id   TEXT NOT NULL DEFAULT '',
    claimant_id TEXT NOT NULL DEFAULT '',
    actor_id    TEXT NOT NULL,
    at          DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_events_report ON events(report_kind, report_id);

CREATE TABLE IF NOT EXISTS images (
    ref        TEXT PRIMARY KEY,
    data       BLOB NOT NULL,
    mime       TEXT NOT NULL,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// EnsureSchema creates all tables and indexes if they don't already exist.
func EnsureSchema(db *sql.DB) error {
	_, err := db.Exec(schema)
	if err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return nil
}
