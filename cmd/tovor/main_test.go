package main

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/erazemk/tovor/internal/archive"
	"github.com/erazemk/tovor/internal/config"
	"github.com/erazemk/tovor/internal/store"
)

func TestLevelRouter(t *testing.T) {
	var out, errOut bytes.Buffer
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	logger := slog.New(&levelRouter{
		stdout: newHandler(&out, false, opts),
		stderr: newHandler(&errOut, false, opts),
	})

	logger.Debug("hidden")
	logger.Info("hello", "k", "v")
	logger.Warn("careful")
	logger.Error("boom")

	if strings.Contains(out.String(), "hidden") || strings.Contains(errOut.String(), "hidden") {
		t.Error("debug record should be dropped")
	}
	if !strings.Contains(out.String(), `"msg":"hello"`) || !strings.Contains(out.String(), `"msg":"careful"`) {
		t.Errorf("stdout = %q", out.String())
	}
	if strings.Contains(out.String(), "boom") {
		t.Error("error record went to stdout")
	}
	if !strings.Contains(errOut.String(), `"msg":"boom"`) {
		t.Errorf("stderr = %q", errOut.String())
	}
}

func TestLevelRouterWithAttrs(t *testing.T) {
	var out bytes.Buffer
	h := &levelRouter{
		stdout: newHandler(&out, true, nil),
		stderr: newHandler(&out, true, nil),
	}
	slog.New(h).With("user", 7).Info("x")
	if !strings.Contains(out.String(), "user=7") {
		t.Errorf("text output = %q", out.String())
	}
}

func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "tovor.toml")
	body := "[server]\ndata_dir = \"" + filepath.ToSlash(filepath.Join(dir, "data")) + "\"\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestInviteCommands(t *testing.T) {
	cfgPath := writeConfig(t)

	out, err := run(t, "-c", cfgPath, "invites")
	if err != nil {
		t.Fatalf("invites: %v", err)
	}
	if !strings.Contains(out, "No open invites.") {
		t.Errorf("invites output = %q", out)
	}

	out, err = run(t, "-c", cfgPath, "invite")
	if err != nil {
		t.Fatalf("invite: %v", err)
	}
	code := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(out), "/start"))
	if code == "" {
		t.Fatalf("invite output = %q", out)
	}

	out, err = run(t, "-c", cfgPath, "invites")
	if err != nil {
		t.Fatalf("invites: %v", err)
	}
	if !strings.Contains(out, code) || !strings.Contains(out, "cli") {
		t.Errorf("invites output missing %s: %q", code, out)
	}
}

func TestUsersCommand(t *testing.T) {
	cfgPath := writeConfig(t)

	out, err := run(t, "-c", cfgPath, "users")
	if err != nil {
		t.Fatalf("users: %v", err)
	}
	if !strings.Contains(out, "No users.") {
		t.Errorf("users output = %q", out)
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		t.Fatal(err)
	}
	a, err := openApp(cfg)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	code, err := store.CreateInvite(ctx, a.db, 0)
	if err != nil {
		t.Fatal(err)
	}
	if ok, err := store.ConsumeInvite(ctx, a.db, code, 4242); err != nil || !ok {
		t.Fatalf("ConsumeInvite = %v, %v", ok, err)
	}
	a.Close()

	out, err = run(t, "-c", cfgPath, "users")
	if err != nil {
		t.Fatalf("users: %v", err)
	}
	if !strings.Contains(out, "4242") {
		t.Errorf("users output missing admitted user: %q", out)
	}
}

func TestTokenCommand(t *testing.T) {
	cfgPath := writeConfig(t)

	out, err := run(t, "-c", cfgPath, "token", "--bridge", "telegram", "--ttl", "1h")
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 3 || !strings.HasPrefix(lines[1], "id: ") {
		t.Fatalf("token output = %q", out)
	}

	jti := strings.TrimPrefix(lines[1], "id: ")
	out, err = run(t, "-c", cfgPath, "token", "revoke", jti)
	if err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if !strings.Contains(out, "revoked "+jti) {
		t.Errorf("revoke output = %q", out)
	}
}

func TestArchiveCommand(t *testing.T) {
	cfgPath := writeConfig(t)

	if _, err := run(t, "-c", cfgPath, "archive", "abc"); err == nil {
		t.Error("expected error for non-numeric user id")
	}

	out, err := run(t, "-c", cfgPath, "archive", "42")
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	if !strings.Contains(out, "No documents.") {
		t.Errorf("archive output = %q", out)
	}

	arch, err := archive.NewLocal(filepath.Join(filepath.Dir(cfgPath), "data", "archive"))
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := arch.Write(ctx, 42, "cargo.xlsx", []byte("data")); err != nil {
		t.Fatal(err)
	}

	out, err = run(t, "-c", cfgPath, "archive", "42")
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	if !strings.Contains(out, "cargo.xlsx") || !strings.Contains(out, "4 B") {
		t.Errorf("archive output = %q", out)
	}
}
