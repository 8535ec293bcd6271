package auth

import (
	"context"
	"testing"

	"github.com/erazemk/tovor/internal/db"
)

func TestGateAdmitsAdmins(t *testing.T) {
	g := NewGate(db.NewTestDB(t), []int64{10})
	ctx := context.Background()

	ok, err := g.IsAuthorized(ctx, 10)
	if err != nil || !ok {
		t.Fatalf("IsAuthorized(admin) = %v, %v", ok, err)
	}
	ok, _ = g.IsAuthorized(ctx, 11)
	if ok {
		t.Error("stranger authorized")
	}
}

func TestGateInviteFlow(t *testing.T) {
	g := NewGate(db.NewTestDB(t), []int64{10})
	ctx := context.Background()

	code, err := g.CreateInvite(ctx, 10)
	if err != nil {
		t.Fatalf("CreateInvite: %v", err)
	}

	if ok, _ := g.ConsumeInvite(ctx, "  ", 20); ok {
		t.Error("blank code admitted a user")
	}
	if ok, err := g.ConsumeInvite(ctx, " "+code+" ", 20); err != nil || !ok {
		t.Fatalf("ConsumeInvite = %v, %v", ok, err)
	}
	if ok, _ := g.IsAuthorized(ctx, 20); !ok {
		t.Error("invited user not authorized")
	}
	if ok, _ := g.ConsumeInvite(ctx, code, 30); ok {
		t.Error("invite used twice")
	}
}
