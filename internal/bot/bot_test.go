package bot

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"strings"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/erazemk/tovor/internal/archive"
	"github.com/erazemk/tovor/internal/auth"
	"github.com/erazemk/tovor/internal/db"
	"github.com/erazemk/tovor/internal/form"
	"github.com/erazemk/tovor/internal/lock"
	"github.com/erazemk/tovor/internal/media"
	"github.com/erazemk/tovor/internal/model"
	"github.com/erazemk/tovor/internal/sheet"
	"github.com/erazemk/tovor/internal/store"
)

const (
	admin  int64 = 1
	member int64 = 2
)

type env struct {
	d        *Dispatcher
	gate     *auth.Gate
	sessions *store.Sessions
	archive  *archive.Local
}

func newEnv(t *testing.T) *env {
	t.Helper()
	database := db.NewTestDB(t)

	mediaStore, err := media.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("media.NewStore: %v", err)
	}
	arch, err := archive.NewLocal(t.TempDir())
	if err != nil {
		t.Fatalf("archive.NewLocal: %v", err)
	}

	sessions := store.NewSessions(database, mediaStore)
	gate := auth.NewGate(database, []int64{admin})
	d := New(Deps{
		Gate:      gate,
		Machine:   form.NewMachine(sessions, store.NewFormStates(database), mediaStore),
		Sessions:  sessions,
		Generator: sheet.NewGenerator(mediaStore, sheet.DefaultLayout()),
		Archive:   arch,
		Locker:    lock.NewLocal(),
		Now:       func() time.Time { return time.Unix(1700000000, 0) },
	})
	return &env{d: d, gate: gate, sessions: sessions, archive: arch}
}

func (e *env) send(t *testing.T, ev Event) []Reply {
	t.Helper()
	replies := e.d.Handle(context.Background(), ev)
	if len(replies) == 0 {
		t.Fatalf("no replies to %+v", ev)
	}
	return replies
}

func (e *env) text(t *testing.T, user int64, s string) Reply {
	t.Helper()
	r := e.send(t, Event{UserID: user, Text: s})
	return r[len(r)-1]
}

func (e *env) press(t *testing.T, user int64, token string) Reply {
	t.Helper()
	r := e.send(t, Event{UserID: user, Button: token})
	return r[len(r)-1]
}

func (e *env) photo(t *testing.T, user int64) Reply {
	t.Helper()
	var buf bytes.Buffer
	png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 200, 100)))
	r := e.send(t, Event{UserID: user, Attachment: &media.Attachment{
		Filename: "a.png", MIME: "image/png", Data: &buf,
	}})
	return r[len(r)-1]
}

func hasButton(kb Keyboard, token string) bool {
	for _, row := range kb {
		for _, b := range row {
			if b.Token == token {
				return true
			}
		}
	}
	return false
}

func TestUnauthorizedUserIsDenied(t *testing.T) {
	e := newEnv(t)

	for _, ev := range []Event{
		{UserID: 99, Text: "/start"},
		{UserID: 99, Button: tokenAdd},
		{UserID: 99, Button: tokenNewDocument},
		{UserID: 99, Text: "hello"},
		{UserID: 99, Text: "/invite"},
	} {
		r := e.send(t, ev)
		if !strings.HasPrefix(r[0].Text, "Access denied") {
			t.Errorf("%+v got %q", ev, r[0].Text)
		}
	}

	st, _ := e.d.Machine.State(context.Background(), 99)
	if !st.Idle() {
		t.Error("denied user entered a flow")
	}
}

func TestInviteAdmitsUser(t *testing.T) {
	e := newEnv(t)

	r := e.text(t, admin, "/invite")
	_, code, ok := strings.Cut(r.Text, "/start ")
	if !ok {
		t.Fatalf("no invite in %q", r.Text)
	}

	r = e.text(t, member, "/start "+code)
	if !hasButton(r.Keyboard, tokenNewDocument) {
		t.Errorf("expected main menu after joining, got %+v", r)
	}

	r = e.text(t, 3, "/start "+code)
	if !strings.Contains(r.Text, "invalid") {
		t.Errorf("reused invite: %q", r.Text)
	}

	if r := e.text(t, member, "/invite"); !strings.Contains(r.Text, "Only admins") {
		t.Errorf("member created invite: %q", r.Text)
	}
}

func TestEmptyListGuard(t *testing.T) {
	e := newEnv(t)
	e.press(t, admin, tokenNewDocument)

	for _, token := range []string{tokenEdit, tokenDelete, tokenFinish, tokenSave} {
		r := e.press(t, admin, token)
		if !strings.Contains(r.Text, "empty") {
			t.Errorf("%s on empty list: %q", token, r.Text)
		}
	}
}

func TestQuantityRetry(t *testing.T) {
	e := newEnv(t)
	e.press(t, admin, tokenAdd)
	e.text(t, admin, "-")
	e.text(t, admin, "http://x")
	e.text(t, admin, "red")
	e.text(t, admin, "M")

	r := e.send(t, Event{UserID: admin, Text: "12,5"})
	if len(r) != 2 || !strings.Contains(r[1].Text, "quantity") {
		t.Fatalf("expected error and re-prompt, got %+v", r)
	}

	if r := e.text(t, admin, "0"); !strings.Contains(r.Text, "comment") {
		t.Errorf("expected comment prompt, got %q", r.Text)
	}
}

func TestScenarioAddDeleteFinish(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	e.press(t, admin, tokenNewDocument)

	e.press(t, admin, tokenAdd)
	for _, s := range []string{"-", "http://x", "red", "M", "3"} {
		e.text(t, admin, s)
	}
	if r := e.text(t, admin, "-"); r.Text != "Item 1 added." {
		t.Fatalf("first add: %q", r.Text)
	}

	e.press(t, admin, tokenAdd)
	e.photo(t, admin)
	for _, s := range []string{"http://y", "blue", "L", "2"} {
		e.text(t, admin, s)
	}
	if r := e.text(t, admin, "note"); r.Text != "Item 2 added." {
		t.Fatalf("second add: %q", r.Text)
	}

	r := e.press(t, admin, tokenDelete)
	if !hasButton(r.Keyboard, "del:0") || !hasButton(r.Keyboard, "del:1") {
		t.Fatalf("delete picker missing records: %+v", r.Keyboard)
	}
	r = e.press(t, admin, "del:0")
	if !hasButton(r.Keyboard, "delok:0") {
		t.Fatalf("expected confirmation, got %+v", r)
	}
	e.press(t, admin, "delok:0")

	records, _ := e.sessions.All(ctx, admin)
	if len(records) != 1 || records[0].Position != 0 || records[0].Color != "blue" {
		t.Fatalf("session after delete = %+v", records)
	}

	r = e.press(t, admin, tokenFinish)
	if !strings.Contains(r.Text, "1 items") || !hasButton(r.Keyboard, tokenSave) {
		t.Fatalf("unexpected preview %+v", r)
	}
	e.press(t, admin, tokenSave)

	r = e.text(t, admin, "CARGO 7!")
	if r.Document == nil || r.Document.Name != "CARGO7.xlsx" {
		t.Fatalf("expected document reply, got %+v", r)
	}

	if n, _ := e.sessions.Len(ctx, admin); n != 0 {
		t.Errorf("session not cleared: %d records", n)
	}

	f, err := excelize.OpenReader(bytes.NewReader(r.Document.Data))
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	defer f.Close()

	rows, _ := f.GetRows("Sheet1")
	if len(rows) != 5 {
		t.Fatalf("expected exactly one data row, got %d rows", len(rows))
	}
	want := []string{"http://y", "blue", "L", "2", "note"}
	for i, w := range want {
		axis, _ := excelize.CoordinatesToCellName(i+2, 5)
		if got, _ := f.GetCellValue("Sheet1", axis); got != w {
			t.Errorf("%s = %q, want %q", axis, got, w)
		}
	}
	if pics, _ := f.GetPictures("Sheet1", "A5"); len(pics) != 1 {
		t.Errorf("expected thumbnail in A5, got %d pictures", len(pics))
	}

	entries, _ := e.archive.List(ctx, admin)
	if len(entries) != 1 || entries[0].Name != "CARGO7.xlsx" {
		t.Fatalf("archive = %+v", entries)
	}

	r = e.press(t, admin, tokenArchive)
	if !hasButton(r.Keyboard, "arch:CARGO7.xlsx") {
		t.Fatalf("archive menu = %+v", r.Keyboard)
	}
	r = e.press(t, admin, "arch:CARGO7.xlsx")
	if r.Document == nil || !bytes.Equal(r.Document.Data, entries2data(t, e, "CARGO7.xlsx")) {
		t.Error("archive did not return the stored document")
	}

	if r := e.press(t, admin, "arch:missing.xlsx"); r.Text != "No such file." {
		t.Errorf("missing archive entry: %q", r.Text)
	}
}

func entries2data(t *testing.T, e *env, name string) []byte {
	t.Helper()
	r, err := e.archive.Open(context.Background(), admin, name)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()
	var buf bytes.Buffer
	buf.ReadFrom(r)
	return buf.Bytes()
}

func TestEditFlowThroughMenus(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	e.press(t, admin, tokenAdd)
	for _, s := range []string{"-", "http://x", "red", "M", "3", "c"} {
		e.text(t, admin, s)
	}

	e.press(t, admin, tokenEdit)
	r := e.press(t, admin, "edit:0")
	if !hasButton(r.Keyboard, "field:color") {
		t.Fatalf("expected field picker, got %+v", r)
	}
	r = e.press(t, admin, "field:color")
	if r.Text != "Send the new color." {
		t.Fatalf("unexpected prompt %q", r.Text)
	}
	if r := e.text(t, admin, "green"); r.Text != "Item 1 updated." {
		t.Fatalf("edit result %q", r.Text)
	}

	rec, _ := e.sessions.Get(ctx, admin, 0)
	if rec.Color != "green" || rec.Size != "M" {
		t.Errorf("record after edit = %+v", rec)
	}

	if r := e.press(t, admin, "edit:5"); r.Text != "Item not found." {
		t.Errorf("edit of missing item: %q", r.Text)
	}
}

func TestCancelCommand(t *testing.T) {
	e := newEnv(t)

	e.press(t, admin, tokenAdd)
	e.text(t, admin, "-")
	e.text(t, admin, "http://x")

	if r := e.text(t, admin, "/cancel"); r.Text != "Cancelled." {
		t.Errorf("cancel reply %q", r.Text)
	}
	st, _ := e.d.Machine.State(context.Background(), admin)
	if st.Step != model.StepIdle {
		t.Errorf("state after cancel = %s", st.Step)
	}
	if n, _ := e.sessions.Len(context.Background(), admin); n != 0 {
		t.Errorf("cancel committed %d records", n)
	}
	if r := e.text(t, admin, "/cancel"); r.Text != "Nothing to cancel." {
		t.Errorf("second cancel reply %q", r.Text)
	}
}

func TestIdleTextShowsMenu(t *testing.T) {
	e := newEnv(t)
	r := e.text(t, admin, "hello")
	if r.Text != "Please use the menu." || !hasButton(r.Keyboard, tokenNewDocument) {
		t.Errorf("unexpected reply %+v", r)
	}
}
