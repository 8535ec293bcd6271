// Package auth admits chat users through invites and authenticates the chat
// bridges that deliver their events.
package auth

import (
	"context"
	"database/sql"
	"strings"

	"github.com/erazemk/tovor/internal/model"
	"github.com/erazemk/tovor/internal/store"
)

// Gate decides which chat users may use the bot.
type Gate struct {
	db     *sql.DB
	admins map[int64]bool
}

// NewGate returns a gate that always admits admins.
func NewGate(db *sql.DB, admins []int64) *Gate {
	g := &Gate{db: db, admins: make(map[int64]bool, len(admins))}
	for _, id := range admins {
		g.admins[id] = true
	}
	return g
}

// IsAdmin reports whether userID is a configured admin.
func (g *Gate) IsAdmin(userID int64) bool {
	return g.admins[userID]
}

// IsAuthorized reports whether userID was admitted. Admins are registered on
// first contact.
func (g *Gate) IsAuthorized(ctx context.Context, userID int64) (bool, error) {
	if g.IsAdmin(userID) {
		if err := store.RegisterUser(ctx, g.db, userID); err != nil {
			return false, err
		}
		return true, nil
	}
	return store.IsRegistered(ctx, g.db, userID)
}

// ConsumeInvite admits userID if code is an unused invite.
func (g *Gate) ConsumeInvite(ctx context.Context, code string, userID int64) (bool, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return false, nil
	}
	return store.ConsumeInvite(ctx, g.db, code, userID)
}

// CreateInvite issues a one-time invite code on behalf of createdBy.
func (g *Gate) CreateInvite(ctx context.Context, createdBy int64) (string, error) {
	return store.CreateInvite(ctx, g.db, createdBy)
}

// OpenInvites lists invites that were not used yet.
func (g *Gate) OpenInvites(ctx context.Context) ([]model.Invite, error) {
	return store.ListOpenInvites(ctx, g.db)
}
