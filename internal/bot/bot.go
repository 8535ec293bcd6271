// Package bot turns inbound chat events into replies. It owns the menus and
// commands and routes free input through the form machine.
package bot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/erazemk/tovor/internal/archive"
	"github.com/erazemk/tovor/internal/form"
	"github.com/erazemk/tovor/internal/lock"
	"github.com/erazemk/tovor/internal/media"
	"github.com/erazemk/tovor/internal/model"
	"github.com/erazemk/tovor/internal/sheet"
)

// Event is one inbound user action. Exactly one of Text, Button or
// Attachment is set. Bridge names the chat bridge that delivered it.
type Event struct {
	UserID     int64
	Bridge     string
	Text       string
	Button     string
	Attachment *media.Attachment
}

// Button is one pressable keyboard button. Token is echoed back in
// Event.Button when pressed.
type Button struct {
	Label string `json:"label"`
	Token string `json:"token"`
}

// Keyboard is a grid of buttons, row by row.
type Keyboard [][]Button

// Document is a file sent back to the user.
type Document struct {
	Name string `json:"name"`
	Data []byte `json:"data"`
}

// Reply is one outbound message.
type Reply struct {
	Text     string    `json:"text"`
	Keyboard Keyboard  `json:"keyboard,omitempty"`
	Document *Document `json:"document,omitempty"`
}

// Gate admits users.
type Gate interface {
	IsAuthorized(ctx context.Context, userID int64) (bool, error)
	IsAdmin(userID int64) bool
	ConsumeInvite(ctx context.Context, code string, userID int64) (bool, error)
	CreateInvite(ctx context.Context, createdBy int64) (string, error)
	OpenInvites(ctx context.Context) ([]model.Invite, error)
}

// Sessions is the part of the session store the dispatcher uses directly.
type Sessions interface {
	All(ctx context.Context, userID int64) ([]model.Record, error)
	Len(ctx context.Context, userID int64) (int, error)
	RemoveAt(ctx context.Context, userID int64, position int) (model.Record, error)
	Clear(ctx context.Context, userID int64) error
}

// Generator renders a record collection into a document.
type Generator interface {
	Generate(ctx context.Context, records []model.Record) ([]byte, error)
}

// Deps are the collaborators of a Dispatcher.
type Deps struct {
	Gate      Gate
	Machine   *form.Machine
	Sessions  Sessions
	Generator Generator
	Archive   archive.Archive
	Locker    lock.Locker

	// Now defaults to time.Now.
	Now func() time.Time
}

// Dispatcher handles events. Events of one user are processed one at a time;
// different users proceed concurrently.
type Dispatcher struct {
	Deps
}

// New returns a dispatcher over d.
func New(d Deps) *Dispatcher {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Locker == nil {
		d.Locker = lock.NewLocal()
	}
	return &Dispatcher{Deps: d}
}

// Handle processes ev and returns the replies to send. Failures never
// escape; they turn into an error message and a safe menu.
func (d *Dispatcher) Handle(ctx context.Context, ev Event) []Reply {
	unlock, err := d.Locker.Lock(ctx, ev.UserID)
	if err != nil {
		slog.Warn("failed to lock user", "user", ev.UserID, "bridge", ev.Bridge, "error", err)
		return []Reply{{Text: "Still working on your previous message, please try again."}}
	}
	defer unlock()

	replies, err := d.handle(ctx, ev)
	if err != nil {
		slog.Error("failed to handle event", "user", ev.UserID, "bridge", ev.Bridge, "error", err)
		return []Reply{{Text: "Something went wrong, please try again.", Keyboard: mainMenu()}}
	}
	return replies
}

func (d *Dispatcher) handle(ctx context.Context, ev Event) ([]Reply, error) {
	text := strings.TrimSpace(ev.Text)
	if ev.Attachment == nil && ev.Button == "" && strings.HasPrefix(text, "/") {
		cmd, arg, _ := strings.Cut(text, " ")
		if cmd == "/start" {
			return d.start(ctx, ev.UserID, strings.TrimSpace(arg))
		}
		if ok, err := d.Gate.IsAuthorized(ctx, ev.UserID); err != nil || !ok {
			return denied(), err
		}
		return d.command(ctx, ev.UserID, cmd)
	}

	ok, err := d.Gate.IsAuthorized(ctx, ev.UserID)
	if err != nil || !ok {
		return denied(), err
	}

	if ev.Button != "" {
		return d.button(ctx, ev.UserID, ev.Button)
	}
	return d.input(ctx, ev.UserID, form.Input{Text: ev.Text, Attachment: ev.Attachment})
}

func denied() []Reply {
	return []Reply{{Text: "Access denied. Ask an admin for an invite and send /start <code>."}}
}

func (d *Dispatcher) start(ctx context.Context, userID int64, code string) ([]Reply, error) {
	ok, err := d.Gate.IsAuthorized(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		if code == "" {
			return denied(), nil
		}
		ok, err = d.Gate.ConsumeInvite(ctx, code, userID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return []Reply{{Text: "This invite code is invalid or was already used."}}, nil
		}
		slog.Info("user joined", "user", userID)
	}

	if _, err := d.Machine.Cancel(ctx, userID); err != nil {
		return nil, err
	}
	return []Reply{{Text: "Welcome! What would you like to do?", Keyboard: mainMenu()}}, nil
}

func (d *Dispatcher) command(ctx context.Context, userID int64, cmd string) ([]Reply, error) {
	switch cmd {
	case "/cancel":
		active, err := d.Machine.Cancel(ctx, userID)
		if err != nil {
			return nil, err
		}
		msg := "Nothing to cancel."
		if active {
			msg = "Cancelled."
		}
		return d.itemsOrMain(ctx, userID, msg)

	case "/invite":
		if !d.Gate.IsAdmin(userID) {
			return []Reply{{Text: "Only admins can create invites."}}, nil
		}
		code, err := d.Gate.CreateInvite(ctx, userID)
		if err != nil {
			return nil, err
		}
		return []Reply{{Text: "New invite, valid for one use:\n/start " + code}}, nil

	case "/invites":
		if !d.Gate.IsAdmin(userID) {
			return []Reply{{Text: "Only admins can list invites."}}, nil
		}
		invites, err := d.Gate.OpenInvites(ctx)
		if err != nil {
			return nil, err
		}
		if len(invites) == 0 {
			return []Reply{{Text: "No open invites."}}, nil
		}
		var b strings.Builder
		b.WriteString("Open invites:")
		for _, inv := range invites {
			fmt.Fprintf(&b, "\n%s (%s)", inv.Code, inv.CreatedAt.Format("2006-01-02"))
		}
		return []Reply{{Text: b.String()}}, nil
	}
	return []Reply{{Text: "Unknown command.", Keyboard: mainMenu()}}, nil
}

func (d *Dispatcher) button(ctx context.Context, userID int64, token string) ([]Reply, error) {
	name, arg, _ := strings.Cut(token, ":")

	switch name {
	case "field":
		return d.chooseField(ctx, userID, arg)
	case "arch":
		return d.openArchived(ctx, userID, arg)
	case tokenCancel:
		return d.command(ctx, userID, "/cancel")
	}

	// Menu navigation abandons a flow in progress.
	if _, err := d.Machine.Cancel(ctx, userID); err != nil {
		return nil, err
	}

	switch token {
	case tokenMain:
		return []Reply{{Text: "Main menu.", Keyboard: mainMenu()}}, nil
	case tokenItems:
		return []Reply{{Text: "Items menu.", Keyboard: itemsMenu()}}, nil
	case tokenNewDocument:
		if err := d.Sessions.Clear(ctx, userID); err != nil {
			return nil, err
		}
		return []Reply{{Text: "New document started. Add your first item.", Keyboard: itemsMenu()}}, nil
	case tokenArchive:
		return d.listArchive(ctx, userID)
	case tokenAdd:
		if err := d.Machine.StartAdd(ctx, userID); err != nil {
			return nil, err
		}
		return d.prompt(ctx, userID)
	case tokenEdit:
		return d.pickRecord(ctx, userID, "Which item do you want to edit?", "edit")
	case tokenDelete:
		return d.pickRecord(ctx, userID, "Which item do you want to delete?", "del")
	case tokenFinish:
		return d.preview(ctx, userID)
	case tokenSave:
		return d.beginFinish(ctx, userID)
	}

	switch name {
	case "edit":
		return d.withPosition(ctx, userID, arg, d.startEdit)
	case "del":
		return d.withPosition(ctx, userID, arg, d.confirmDelete)
	case "delok":
		return d.withPosition(ctx, userID, arg, d.remove)
	}

	slog.Warn("unknown button", "user", userID, "token", token)
	return []Reply{{Text: "This button is no longer valid.", Keyboard: mainMenu()}}, nil
}

func (d *Dispatcher) withPosition(ctx context.Context, userID int64, arg string, fn func(context.Context, int64, int) ([]Reply, error)) ([]Reply, error) {
	pos, err := strconv.Atoi(arg)
	if err != nil {
		return notFound(), nil
	}
	return fn(ctx, userID, pos)
}

func notFound() []Reply {
	return []Reply{{Text: "Item not found.", Keyboard: itemsMenu()}}
}

// itemsOrMain replies with msg and the items menu while a document is being
// assembled, the main menu otherwise.
func (d *Dispatcher) itemsOrMain(ctx context.Context, userID int64, msg string) ([]Reply, error) {
	n, err := d.Sessions.Len(ctx, userID)
	if err != nil {
		return nil, err
	}
	if n > 0 {
		return []Reply{{Text: msg, Keyboard: itemsMenu()}}, nil
	}
	return []Reply{{Text: msg, Keyboard: mainMenu()}}, nil
}

// records returns the session, or a reply when it is empty.
func (d *Dispatcher) records(ctx context.Context, userID int64) ([]model.Record, []Reply, error) {
	records, err := d.Sessions.All(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	if len(records) == 0 {
		return nil, []Reply{{Text: "The list is empty. Add an item first.", Keyboard: itemsMenu()}}, nil
	}
	return records, nil, nil
}

func (d *Dispatcher) pickRecord(ctx context.Context, userID int64, msg, action string) ([]Reply, error) {
	records, empty, err := d.records(ctx, userID)
	if err != nil || empty != nil {
		return empty, err
	}
	return []Reply{{Text: msg, Keyboard: recordPicker(records, action)}}, nil
}

func (d *Dispatcher) startEdit(ctx context.Context, userID int64, pos int) ([]Reply, error) {
	if err := d.Machine.StartEdit(ctx, userID, pos); err != nil {
		if errors.Is(err, model.ErrOutOfRange) {
			return notFound(), nil
		}
		return nil, err
	}
	return d.prompt(ctx, userID)
}

func (d *Dispatcher) chooseField(ctx context.Context, userID int64, token string) ([]Reply, error) {
	field, err := model.ParseField(token)
	if err != nil {
		return d.prompt(ctx, userID)
	}
	if err := d.Machine.ChooseField(ctx, userID, field); err != nil {
		if errors.Is(err, form.ErrWrongStep) {
			return []Reply{{Text: "Pick an item to edit first.", Keyboard: itemsMenu()}}, nil
		}
		return nil, err
	}
	return d.prompt(ctx, userID)
}

func (d *Dispatcher) confirmDelete(ctx context.Context, userID int64, pos int) ([]Reply, error) {
	records, empty, err := d.records(ctx, userID)
	if err != nil || empty != nil {
		return empty, err
	}
	if pos < 0 || pos >= len(records) {
		return notFound(), nil
	}
	return []Reply{{
		Text:     "Delete item " + records[pos].Title() + "?",
		Keyboard: confirmDelete(pos),
	}}, nil
}

func (d *Dispatcher) remove(ctx context.Context, userID int64, pos int) ([]Reply, error) {
	rec, err := d.Sessions.RemoveAt(ctx, userID, pos)
	if errors.Is(err, model.ErrOutOfRange) {
		return notFound(), nil
	}
	if err != nil {
		return nil, err
	}
	return d.itemsOrMain(ctx, userID, fmt.Sprintf("Item %d removed.", rec.Position+1))
}

func (d *Dispatcher) preview(ctx context.Context, userID int64) ([]Reply, error) {
	records, empty, err := d.records(ctx, userID)
	if err != nil || empty != nil {
		return empty, err
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Your document has %d items:", len(records))
	for _, rec := range records {
		b.WriteString("\n" + rec.Title())
	}
	return []Reply{{Text: b.String(), Keyboard: finishMenu()}}, nil
}

func (d *Dispatcher) beginFinish(ctx context.Context, userID int64) ([]Reply, error) {
	_, empty, err := d.records(ctx, userID)
	if err != nil || empty != nil {
		return empty, err
	}
	if err := d.Machine.BeginFinish(ctx, userID); err != nil {
		return nil, err
	}
	return d.prompt(ctx, userID)
}

// input feeds free text or an attachment to the form machine.
func (d *Dispatcher) input(ctx context.Context, userID int64, in form.Input) ([]Reply, error) {
	out, err := d.Machine.Input(ctx, userID, in)

	var verr *form.ValidationError
	switch {
	case errors.Is(err, form.ErrIdle):
		return d.itemsOrMain(ctx, userID, "Please use the menu.")
	case errors.As(err, &verr):
		replies, perr := d.prompt(ctx, userID)
		return append([]Reply{{Text: capitalize(verr.Reason) + "."}}, replies...), perr
	case errors.Is(err, media.ErrMediaIO):
		slog.Warn("failed to store attachment", "user", userID, "error", err)
		replies, perr := d.prompt(ctx, userID)
		return append([]Reply{{Text: "Could not save the file, please send it again."}}, replies...), perr
	case errors.Is(err, model.ErrOutOfRange):
		return notFound(), nil
	case err != nil:
		return nil, err
	}

	switch {
	case out.Appended:
		return []Reply{{Text: fmt.Sprintf("Item %d added.", out.Position+1), Keyboard: itemsMenu()}}, nil
	case out.Edited:
		return []Reply{{Text: fmt.Sprintf("Item %d updated.", out.Position+1), Keyboard: itemsMenu()}}, nil
	case out.DocumentName != "":
		return d.publish(ctx, userID, out.DocumentName)
	}
	return d.prompt(ctx, userID)
}

// publish generates the document, stores it in the archive and clears the
// session. On failure the session is kept so the user can retry.
func (d *Dispatcher) publish(ctx context.Context, userID int64, name string) ([]Reply, error) {
	records, empty, err := d.records(ctx, userID)
	if err != nil || empty != nil {
		return empty, err
	}

	data, err := d.Generator.Generate(ctx, records)
	if err != nil {
		slog.Error("failed to generate document", "user", userID, "error", err)
		return []Reply{{Text: "Could not create the document, please try again.", Keyboard: finishMenu()}}, nil
	}

	fileName := sheet.FileName(name, d.Now())
	if err := d.Archive.Write(ctx, userID, fileName, data); err != nil {
		slog.Error("failed to archive document", "user", userID, "name", fileName, "error", err)
		return []Reply{{Text: "Could not save the document, please try again.", Keyboard: finishMenu()}}, nil
	}

	if err := d.Sessions.Clear(ctx, userID); err != nil {
		return nil, err
	}
	slog.Info("document saved", "user", userID, "name", fileName, "items", len(records))

	return []Reply{{
		Text:     "Document " + fileName + " saved to your archive.",
		Keyboard: mainMenu(),
		Document: &Document{Name: fileName, Data: data},
	}}, nil
}

func (d *Dispatcher) listArchive(ctx context.Context, userID int64) ([]Reply, error) {
	entries, err := d.Archive.List(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return []Reply{{Text: "Your archive is empty.", Keyboard: mainMenu()}}, nil
	}
	return []Reply{{Text: "Your documents:", Keyboard: archiveMenu(entries)}}, nil
}

func (d *Dispatcher) openArchived(ctx context.Context, userID int64, name string) ([]Reply, error) {
	r, err := d.Archive.Open(ctx, userID, name)
	if errors.Is(err, archive.ErrNotFound) {
		return []Reply{{Text: "No such file.", Keyboard: mainMenu()}}, nil
	}
	if err != nil {
		return nil, err
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", name, err)
	}
	return []Reply{{Text: name, Document: &Document{Name: name, Data: data}}}, nil
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
