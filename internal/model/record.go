package model

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ErrOutOfRange is returned when a position does not address a record in the
// user's session.
var ErrOutOfRange = errors.New("position out of range")

// Record is one line item of a cargo document.
type Record struct {
	Position int    `json:"position"`
	ImageRef string `json:"image_ref,omitempty"`
	Link     string `json:"link"`
	Color    string `json:"color"`
	Size     string `json:"size"`
	Quantity int    `json:"quantity"`
	Comment  string `json:"comment"`
}

// HasImage reports whether the record owns a stored attachment.
func (r Record) HasImage() bool {
	return r.ImageRef != ""
}

// Title is the short label used in pickers and previews.
func (r Record) Title() string {
	color := r.Color
	if color == "" {
		color = "-"
	}
	size := r.Size
	if size == "" {
		size = "-"
	}
	return fmt.Sprintf("%d. %s | %s | x%d", r.Position+1, color, size, r.Quantity)
}

// Field identifies one editable column of a Record.
type Field int

// Record fields, in collection and column order.
const (
	FieldImage Field = iota + 1
	FieldLink
	FieldColor
	FieldSize
	FieldQuantity
	FieldComment
)

// Fields lists every field in column order.
var Fields = []Field{FieldImage, FieldLink, FieldColor, FieldSize, FieldQuantity, FieldComment}

// String returns the stable token of the field.
func (f Field) String() string {
	switch f {
	case FieldImage:
		return "photo"
	case FieldLink:
		return "link"
	case FieldColor:
		return "color"
	case FieldSize:
		return "size"
	case FieldQuantity:
		return "quantity"
	case FieldComment:
		return "comment"
	}
	return "unknown"
}

// Label returns the column header of the field.
func (f Field) Label() string {
	switch f {
	case FieldImage:
		return "Photo"
	case FieldLink:
		return "Link"
	case FieldColor:
		return "Color"
	case FieldSize:
		return "Size"
	case FieldQuantity:
		return "Quantity"
	case FieldComment:
		return "Comment"
	}
	return "Unknown"
}

// Valid reports whether f is one of the six record fields.
func (f Field) Valid() bool {
	return f >= FieldImage && f <= FieldComment
}

// ParseField resolves a field token as produced by Field.String.
func ParseField(s string) (Field, error) {
	for _, f := range Fields {
		if f.String() == s {
			return f, nil
		}
	}
	return 0, fmt.Errorf("unknown field %q", s)
}

// Value is a field value addressed at one field. Exactly one of Text, Quantity
// or ImageRef is meaningful, depending on Field.
type Value struct {
	Field    Field
	Text     string
	Quantity int
	ImageRef string
}

// Apply overwrites the addressed field of r with v.
func (v Value) Apply(r *Record) error {
	switch v.Field {
	case FieldImage:
		r.ImageRef = v.ImageRef
	case FieldLink:
		r.Link = v.Text
	case FieldColor:
		r.Color = v.Text
	case FieldSize:
		r.Size = v.Text
	case FieldQuantity:
		if v.Quantity < 0 {
			return fmt.Errorf("negative quantity %d", v.Quantity)
		}
		r.Quantity = v.Quantity
	case FieldComment:
		r.Comment = v.Text
	default:
		return fmt.Errorf("unknown field %d", v.Field)
	}
	return nil
}

var digitsRe = regexp.MustCompile(`^[0-9]+$`)

// ParseQuantity accepts a non-negative integer written with digits only.
func ParseQuantity(s string) (int, error) {
	s = strings.TrimSpace(s)
	if !digitsRe.MatchString(s) {
		return 0, fmt.Errorf("quantity %q is not a non-negative integer", s)
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("quantity %q out of range", s)
	}
	return n, nil
}

// NormalizeText trims s and maps the lone "-" skip marker to "".
func NormalizeText(s string) string {
	s = strings.TrimSpace(s)
	if s == "-" {
		return ""
	}
	return s
}
