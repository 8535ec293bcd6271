package archive

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func newTestLocal(t *testing.T) *Local {
	t.Helper()
	l, err := NewLocal(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}
	return l
}

func read(t *testing.T, l *Local, user int64, name string) string {
	t.Helper()
	r, err := l.Open(context.Background(), user, name)
	if err != nil {
		t.Fatalf("Open(%s): %v", name, err)
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("reading %s: %v", name, err)
	}
	return string(data)
}

func TestLocalWriteListOpen(t *testing.T) {
	l := newTestLocal(t)
	ctx := context.Background()

	for _, name := range []string{"b.xlsx", "a.xlsx", "c.xlsx"} {
		if err := l.Write(ctx, 1, name, []byte("doc "+name)); err != nil {
			t.Fatalf("Write(%s): %v", name, err)
		}
	}
	l.Write(ctx, 2, "other.xlsx", []byte("x"))

	entries, err := l.List(ctx, 1)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name)
	}
	want := []string{"a.xlsx", "b.xlsx", "c.xlsx"}
	if len(names) != len(want) {
		t.Fatalf("List = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("List[%d] = %q, want %q", i, names[i], want[i])
		}
	}
	if entries[0].Size != int64(len("doc a.xlsx")) {
		t.Errorf("size = %d", entries[0].Size)
	}

	if got := read(t, l, 1, "b.xlsx"); got != "doc b.xlsx" {
		t.Errorf("Open = %q", got)
	}
}

func TestLocalOverwrite(t *testing.T) {
	l := newTestLocal(t)
	ctx := context.Background()

	l.Write(ctx, 1, "x.xlsx", []byte("first"))
	if err := l.Write(ctx, 1, "x.xlsx", []byte("second")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if got := read(t, l, 1, "x.xlsx"); got != "second" {
		t.Errorf("Open = %q, want second", got)
	}
	entries, _ := l.List(ctx, 1)
	if len(entries) != 1 {
		t.Errorf("expected one entry after overwrite, got %d", len(entries))
	}
}

func TestLocalNotFound(t *testing.T) {
	l := newTestLocal(t)
	ctx := context.Background()
	l.Write(ctx, 1, "mine.xlsx", []byte("x"))

	for _, tt := range []struct {
		user int64
		name string
	}{
		{1, "missing.xlsx"},
		{2, "mine.xlsx"},
		{2, "../1/mine.xlsx"},
		{1, ""},
	} {
		if _, err := l.Open(ctx, tt.user, tt.name); !errors.Is(err, ErrNotFound) {
			t.Errorf("Open(%d, %q) = %v, want ErrNotFound", tt.user, tt.name, err)
		}
	}
}

func TestLocalEmptyArchive(t *testing.T) {
	l := newTestLocal(t)
	entries, err := l.List(context.Background(), 42)
	if err != nil || len(entries) != 0 {
		t.Errorf("List = %v, %v; want empty", entries, err)
	}
}

func TestLocalRejectsPathNames(t *testing.T) {
	l := newTestLocal(t)
	for _, name := range []string{"../x.xlsx", "a/b.xlsx", `a\b.xlsx`, "..", ""} {
		if err := l.Write(context.Background(), 1, name, []byte("x")); err == nil {
			t.Errorf("Write(%q) succeeded", name)
		}
	}
	if _, err := os.Stat(filepath.Join(l.root, "x.xlsx")); !errors.Is(err, os.ErrNotExist) {
		t.Error("write escaped the user directory")
	}
}
