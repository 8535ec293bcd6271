package db

import (
	"database/sql"
	"fmt"
)

// schema is the full database schema.
const schema = `
CREATE TABLE IF NOT EXISTS users (
    id        INTEGER PRIMARY KEY,
    joined_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS invites (
    code       TEXT PRIMARY KEY,
    created_by INTEGER NOT NULL,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    used_by    INTEGER,
    used_at    DATETIME
);

CREATE TABLE IF NOT EXISTS records (
    id        INTEGER PRIMARY KEY,
    user_id   INTEGER NOT NULL,
    position  INTEGER NOT NULL CHECK (position >= 0),
    image_ref TEXT,
    link      TEXT NOT NULL DEFAULT '',
    color     TEXT NOT NULL DEFAULT '',
    size      TEXT NOT NULL DEFAULT '',
    quantity  INTEGER NOT NULL DEFAULT 0 CHECK (quantity >= 0),
    comment   TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_records_user_position
    ON records(user_id, position);

CREATE TABLE IF NOT EXISTS form_states (
    user_id    INTEGER PRIMARY KEY,
    step       TEXT NOT NULL,
    mode       TEXT NOT NULL DEFAULT '',
    position   INTEGER NOT NULL DEFAULT 0,
    field      INTEGER NOT NULL DEFAULT 0,
    draft      TEXT NOT NULL DEFAULT '{}',
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS settings (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS revoked_tokens (
    jti        TEXT PRIMARY KEY,
    expires_at DATETIME NOT NULL
);
`

// migrations is a list of SQL statements applied in order after schema creation.
// Each migration must be idempotent. Append new migrations at the end.
var migrations = []string{}

// EnsureSchema creates all tables and indexes if they don't already exist and
// applies pending migrations.
func EnsureSchema(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}

	for i, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return fmt.Errorf("running migration %d: %w", i+1, err)
		}
	}
	return nil
}
