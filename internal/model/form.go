package model

// Step names the input the form is waiting for.
type Step string

// Form steps.
const (
	StepIdle             Step = "idle"
	StepAwaitingImage    Step = "awaiting_image"
	StepAwaitingLink     Step = "awaiting_link"
	StepAwaitingColor    Step = "awaiting_color"
	StepAwaitingSize     Step = "awaiting_size"
	StepAwaitingQuantity Step = "awaiting_quantity"
	StepAwaitingComment  Step = "awaiting_comment"
	StepComplete         Step = "complete"

	StepChoosingField      Step = "choosing_field"
	StepAwaitingFieldValue Step = "awaiting_field_value"

	StepAwaitingDocumentName Step = "awaiting_document_name"
)

// Mode tells what the current flow will do once it completes.
type Mode string

// Form modes.
const (
	ModeNone      Mode = ""
	ModeCreating  Mode = "creating"
	ModeEditing   Mode = "editing"
	ModeFinishing Mode = "finishing"
)

// FormState is the per-user cursor of the guided form.
type FormState struct {
	UserID   int64  `json:"user_id"`
	Step     Step   `json:"step"`
	Mode     Mode   `json:"mode"`
	Position int    `json:"position"`
	Field    Field  `json:"field"`
	Draft    Record `json:"draft"`
}

// Idle reports whether no flow is in progress.
func (s FormState) Idle() bool {
	return s.Step == "" || s.Step == StepIdle
}

// StepField maps a creation step to the field it collects.
func StepField(s Step) (Field, bool) {
	switch s {
	case StepAwaitingImage:
		return FieldImage, true
	case StepAwaitingLink:
		return FieldLink, true
	case StepAwaitingColor:
		return FieldColor, true
	case StepAwaitingSize:
		return FieldSize, true
	case StepAwaitingQuantity:
		return FieldQuantity, true
	case StepAwaitingComment:
		return FieldComment, true
	}
	return 0, false
}
