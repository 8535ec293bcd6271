// Package form drives the guided, per-user collection of records: adding a
// record step by step, replacing one field of an existing record, and naming
// the document when the collection is finished.
package form

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/looplab/fsm"

	"github.com/erazemk/tovor/internal/media"
	"github.com/erazemk/tovor/internal/model"
)

var (
	// ErrWrongStep is returned when an action is not allowed in the user's
	// current step.
	ErrWrongStep = errors.New("action not allowed in current step")

	// ErrIdle is returned when input arrives while no flow is in progress.
	ErrIdle = errors.New("no flow in progress")
)

// ValidationError rejects an input without advancing the step.
type ValidationError struct {
	Step   model.Step
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid input for %s: %s", e.Step, e.Reason)
}

func invalid(step model.Step, reason string) error {
	return &ValidationError{Step: step, Reason: reason}
}

// SessionStore is the part of the session store the machine commits to.
type SessionStore interface {
	Append(ctx context.Context, userID int64, rec model.Record) (int, error)
	Get(ctx context.Context, userID int64, position int) (model.Record, error)
	ReplaceField(ctx context.Context, userID int64, position int, v model.Value) error
}

// StateStore persists the per-user cursor between inputs.
type StateStore interface {
	Get(ctx context.Context, userID int64) (model.FormState, error)
	Put(ctx context.Context, st model.FormState) error
	Reset(ctx context.Context, userID int64) error
}

// MediaStore saves attachments and releases the ones that end up unowned.
type MediaStore interface {
	Save(userID int64, a media.Attachment) (string, error)
	Release(ref string)
}

// Input is one inbound user input. Exactly one of Text or Attachment is set.
type Input struct {
	Text       string
	Attachment *media.Attachment
}

// Outcome describes what an accepted input did.
type Outcome struct {
	// Step is the step the user is in after the input.
	Step model.Step

	// Appended is set when the creation flow completed.
	Appended bool
	// Edited is set when an edit flow replaced a field.
	Edited   bool
	Position int
	Field    model.Field

	// DocumentName is set when the finishing flow received a name.
	DocumentName string
}

// Transition events.
const (
	eventStartAdd     = "start_add"
	eventNext         = "next"
	eventChooseRecord = "choose_record"
	eventChooseField  = "choose_field"
	eventFinish       = "finish"
	eventDone         = "done"
	eventCancel       = "cancel"
)

var activeSteps = []string{
	string(model.StepAwaitingImage),
	string(model.StepAwaitingLink),
	string(model.StepAwaitingColor),
	string(model.StepAwaitingSize),
	string(model.StepAwaitingQuantity),
	string(model.StepAwaitingComment),
	string(model.StepComplete),
	string(model.StepChoosingField),
	string(model.StepAwaitingFieldValue),
	string(model.StepAwaitingDocumentName),
}

var transitions = fsm.Events{
	{Name: eventStartAdd, Src: []string{string(model.StepIdle)}, Dst: string(model.StepAwaitingImage)},

	{Name: eventNext, Src: []string{string(model.StepAwaitingImage)}, Dst: string(model.StepAwaitingLink)},
	{Name: eventNext, Src: []string{string(model.StepAwaitingLink)}, Dst: string(model.StepAwaitingColor)},
	{Name: eventNext, Src: []string{string(model.StepAwaitingColor)}, Dst: string(model.StepAwaitingSize)},
	{Name: eventNext, Src: []string{string(model.StepAwaitingSize)}, Dst: string(model.StepAwaitingQuantity)},
	{Name: eventNext, Src: []string{string(model.StepAwaitingQuantity)}, Dst: string(model.StepAwaitingComment)},
	{Name: eventNext, Src: []string{string(model.StepAwaitingComment)}, Dst: string(model.StepComplete)},

	{Name: eventChooseRecord, Src: []string{string(model.StepIdle)}, Dst: string(model.StepChoosingField)},
	{Name: eventChooseField, Src: []string{string(model.StepChoosingField)}, Dst: string(model.StepAwaitingFieldValue)},

	{Name: eventFinish, Src: []string{string(model.StepIdle)}, Dst: string(model.StepAwaitingDocumentName)},

	{Name: eventDone, Src: []string{
		string(model.StepComplete),
		string(model.StepAwaitingFieldValue),
		string(model.StepAwaitingDocumentName),
	}, Dst: string(model.StepIdle)},

	{Name: eventCancel, Src: activeSteps, Dst: string(model.StepIdle)},
}

// transition fires event from step and returns the resulting step.
func transition(ctx context.Context, step model.Step, event string) (model.Step, error) {
	if step == "" {
		step = model.StepIdle
	}
	machine := fsm.NewFSM(string(step), transitions, nil)
	if err := machine.Event(ctx, event); err != nil {
		return step, fmt.Errorf("%w: %s from %s", ErrWrongStep, event, step)
	}
	return model.Step(machine.Current()), nil
}

// Machine applies user actions to the form state. It does not serialize
// calls; callers process one action per user at a time.
type Machine struct {
	sessions SessionStore
	states   StateStore
	media    MediaStore
}

// NewMachine returns a machine over the given stores.
func NewMachine(sessions SessionStore, states StateStore, media MediaStore) *Machine {
	return &Machine{sessions: sessions, states: states, media: media}
}

// State returns the user's current form state.
func (m *Machine) State(ctx context.Context, userID int64) (model.FormState, error) {
	return m.states.Get(ctx, userID)
}

// StartAdd begins collecting a new record. A flow already in progress is
// cancelled first and its partial input discarded.
func (m *Machine) StartAdd(ctx context.Context, userID int64) error {
	st, err := m.restart(ctx, userID)
	if err != nil {
		return err
	}

	step, err := transition(ctx, st.Step, eventStartAdd)
	if err != nil {
		return err
	}
	return m.states.Put(ctx, model.FormState{UserID: userID, Step: step, Mode: model.ModeCreating})
}

// StartEdit selects the record at position for editing. The user then picks
// the field to replace with ChooseField.
func (m *Machine) StartEdit(ctx context.Context, userID int64, position int) error {
	if _, err := m.sessions.Get(ctx, userID, position); err != nil {
		return err
	}

	st, err := m.restart(ctx, userID)
	if err != nil {
		return err
	}

	step, err := transition(ctx, st.Step, eventChooseRecord)
	if err != nil {
		return err
	}
	return m.states.Put(ctx, model.FormState{
		UserID:   userID,
		Step:     step,
		Mode:     model.ModeEditing,
		Position: position,
	})
}

// ChooseField binds the edit flow to field and waits for its new value.
func (m *Machine) ChooseField(ctx context.Context, userID int64, field model.Field) error {
	if !field.Valid() {
		return fmt.Errorf("choosing field: unknown field %d", field)
	}

	st, err := m.states.Get(ctx, userID)
	if err != nil {
		return err
	}

	step, err := transition(ctx, st.Step, eventChooseField)
	if err != nil {
		return err
	}
	st.Step = step
	st.Field = field
	return m.states.Put(ctx, st)
}

// BeginFinish waits for the name of the document to generate.
func (m *Machine) BeginFinish(ctx context.Context, userID int64) error {
	st, err := m.restart(ctx, userID)
	if err != nil {
		return err
	}

	step, err := transition(ctx, st.Step, eventFinish)
	if err != nil {
		return err
	}
	return m.states.Put(ctx, model.FormState{UserID: userID, Step: step, Mode: model.ModeFinishing})
}

// Cancel discards any partial input and returns the user to idle. It reports
// whether a flow was in progress. The session is never touched.
func (m *Machine) Cancel(ctx context.Context, userID int64) (bool, error) {
	st, err := m.states.Get(ctx, userID)
	if err != nil {
		return false, err
	}
	if st.Idle() {
		return false, nil
	}

	if _, err := transition(ctx, st.Step, eventCancel); err != nil {
		return false, err
	}
	if err := m.states.Reset(ctx, userID); err != nil {
		return false, err
	}
	if st.Mode == model.ModeCreating {
		m.media.Release(st.Draft.ImageRef)
	}
	return true, nil
}

// restart cancels a flow in progress and returns the resulting state.
func (m *Machine) restart(ctx context.Context, userID int64) (model.FormState, error) {
	if _, err := m.Cancel(ctx, userID); err != nil {
		return model.FormState{}, err
	}
	return model.FormState{UserID: userID, Step: model.StepIdle}, nil
}

// Input applies one user input to the current step. Rejected input returns
// a *ValidationError and leaves both the state and the session unchanged.
func (m *Machine) Input(ctx context.Context, userID int64, in Input) (Outcome, error) {
	st, err := m.states.Get(ctx, userID)
	if err != nil {
		return Outcome{}, err
	}

	switch st.Step {
	case model.StepIdle, "":
		return Outcome{Step: model.StepIdle}, ErrIdle
	case model.StepChoosingField:
		return Outcome{Step: st.Step}, invalid(st.Step, "pick a field from the menu")
	case model.StepAwaitingFieldValue:
		return m.inputEdit(ctx, st, in)
	case model.StepAwaitingDocumentName:
		return m.inputName(ctx, st, in)
	}

	field, ok := model.StepField(st.Step)
	if !ok {
		return Outcome{Step: st.Step}, fmt.Errorf("%w: input in %s", ErrWrongStep, st.Step)
	}
	return m.inputCreate(ctx, st, field, in)
}

func (m *Machine) inputCreate(ctx context.Context, st model.FormState, field model.Field, in Input) (Outcome, error) {
	v, err := m.parse(st, field, in, true)
	if err != nil {
		return Outcome{Step: st.Step}, err
	}
	if err := v.Apply(&st.Draft); err != nil {
		return Outcome{Step: st.Step}, err
	}

	next, err := transition(ctx, st.Step, eventNext)
	if err != nil {
		m.media.Release(v.ImageRef)
		return Outcome{Step: st.Step}, err
	}

	if next != model.StepComplete {
		st.Step = next
		if err := m.states.Put(ctx, st); err != nil {
			m.media.Release(v.ImageRef)
			return Outcome{Step: st.Step}, err
		}
		return Outcome{Step: next}, nil
	}

	pos, err := m.sessions.Append(ctx, st.UserID, st.Draft)
	if err != nil {
		return Outcome{Step: st.Step}, fmt.Errorf("committing record: %w", err)
	}
	idle, err := transition(ctx, next, eventDone)
	if err != nil {
		return Outcome{Step: next}, err
	}
	if err := m.states.Reset(ctx, st.UserID); err != nil {
		return Outcome{Step: next}, err
	}
	return Outcome{Step: idle, Appended: true, Position: pos}, nil
}

func (m *Machine) inputEdit(ctx context.Context, st model.FormState, in Input) (Outcome, error) {
	v, err := m.parse(st, st.Field, in, false)
	if err != nil {
		return Outcome{Step: st.Step}, err
	}

	if err := m.sessions.ReplaceField(ctx, st.UserID, st.Position, v); err != nil {
		m.media.Release(v.ImageRef)
		if errors.Is(err, model.ErrOutOfRange) {
			// The record is gone; drop back to the menu.
			if resetErr := m.states.Reset(ctx, st.UserID); resetErr != nil {
				return Outcome{Step: st.Step}, resetErr
			}
			return Outcome{Step: model.StepIdle}, err
		}
		return Outcome{Step: st.Step}, err
	}

	idle, err := transition(ctx, st.Step, eventDone)
	if err != nil {
		return Outcome{Step: st.Step}, err
	}
	if err := m.states.Reset(ctx, st.UserID); err != nil {
		return Outcome{Step: st.Step}, err
	}
	return Outcome{Step: idle, Edited: true, Position: st.Position, Field: st.Field}, nil
}

func (m *Machine) inputName(ctx context.Context, st model.FormState, in Input) (Outcome, error) {
	if in.Attachment != nil {
		return Outcome{Step: st.Step}, invalid(st.Step, "send the document name as text")
	}
	name := model.NormalizeText(in.Text)
	if name == "" {
		return Outcome{Step: st.Step}, invalid(st.Step, "the document name is empty")
	}

	idle, err := transition(ctx, st.Step, eventDone)
	if err != nil {
		return Outcome{Step: st.Step}, err
	}
	if err := m.states.Reset(ctx, st.UserID); err != nil {
		return Outcome{Step: st.Step}, err
	}
	return Outcome{Step: idle, DocumentName: name}, nil
}

// parse validates in for field. The image field takes an attachment; in the
// creation flow a lone "-" skips it. Every other field takes text.
func (m *Machine) parse(st model.FormState, field model.Field, in Input, allowSkipImage bool) (model.Value, error) {
	v := model.Value{Field: field}

	if field == model.FieldImage {
		if in.Attachment == nil {
			if allowSkipImage && strings.TrimSpace(in.Text) == "-" {
				return v, nil
			}
			if allowSkipImage {
				return v, invalid(st.Step, "send a photo or file, or \"-\" to skip")
			}
			return v, invalid(st.Step, "send a photo or file")
		}
		ref, err := m.media.Save(st.UserID, *in.Attachment)
		if err != nil {
			return v, fmt.Errorf("saving attachment: %w", err)
		}
		v.ImageRef = ref
		return v, nil
	}

	if in.Attachment != nil {
		return v, invalid(st.Step, "send text")
	}

	if field == model.FieldQuantity {
		n, err := model.ParseQuantity(in.Text)
		if err != nil {
			return v, invalid(st.Step, "quantity must be a whole number of 0 or more")
		}
		v.Quantity = n
		return v, nil
	}

	v.Text = model.NormalizeText(in.Text)
	return v, nil
}
