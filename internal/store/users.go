package store

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"fmt"

	"github.com/erazemk/tovor/internal/model"
)

// RegisterUser admits a user. Registering twice is a no-op.
func RegisterUser(ctx context.Context, db *sql.DB, id int64) error {
	_, err := db.ExecContext(ctx, `INSERT OR IGNORE INTO users (id) VALUES (?)`, id)
	if err != nil {
		return fmt.Errorf("registering user: %w", err)
	}
	return nil
}

// IsRegistered reports whether the user was admitted.
func IsRegistered(ctx context.Context, db *sql.DB, id int64) (bool, error) {
	var count int
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE id = ?`, id).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("checking user: %w", err)
	}
	return count > 0, nil
}

// ListUsers returns all admitted users, newest first.
func ListUsers(ctx context.Context, db *sql.DB) ([]model.User, error) {
	rows, err := db.QueryContext(ctx, `SELECT id, joined_at FROM users ORDER BY joined_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		var u model.User
		if err := rows.Scan(&u.ID, &u.JoinedAt); err != nil {
			return nil, fmt.Errorf("scanning user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// CreateInvite stores a new one-time invite code.
func CreateInvite(ctx context.Context, db *sql.DB, createdBy int64) (string, error) {
	buf := make([]byte, 12)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating invite code: %w", err)
	}
	code := base64.RawURLEncoding.EncodeToString(buf)

	_, err := db.ExecContext(ctx,
		`INSERT INTO invites (code, created_by) VALUES (?, ?)`, code, createdBy,
	)
	if err != nil {
		return "", fmt.Errorf("creating invite: %w", err)
	}
	return code, nil
}

// ConsumeInvite marks code as used by userID and admits the user. It returns
// false when the code does not exist or was already used.
func ConsumeInvite(ctx context.Context, db *sql.DB, code string, userID int64) (bool, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`UPDATE invites SET used_by = ?, used_at = CURRENT_TIMESTAMP
		 WHERE code = ? AND used_by IS NULL`,
		userID, code,
	)
	if err != nil {
		return false, fmt.Errorf("consuming invite: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("checking invite: %w", err)
	}
	if n == 0 {
		return false, nil
	}

	if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO users (id) VALUES (?)`, userID); err != nil {
		return false, fmt.Errorf("registering user: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("committing invite: %w", err)
	}
	return true, nil
}

// ListOpenInvites returns unused invites, newest first.
func ListOpenInvites(ctx context.Context, db *sql.DB) ([]model.Invite, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT code, created_by, created_at FROM invites
		 WHERE used_by IS NULL ORDER BY created_at DESC, code`,
	)
	if err != nil {
		return nil, fmt.Errorf("listing invites: %w", err)
	}
	defer rows.Close()

	var invites []model.Invite
	for rows.Next() {
		var inv model.Invite
		if err := rows.Scan(&inv.Code, &inv.CreatedBy, &inv.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning invite: %w", err)
		}
		invites = append(invites, inv)
	}
	return invites, rows.Err()
}
