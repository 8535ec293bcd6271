package bot

import (
	"context"
	"strconv"
	"strings"

	"github.com/erazemk/tovor/internal/archive"
	"github.com/erazemk/tovor/internal/model"
)

// Button tokens. Tokens with arguments are "<name>:<arg>".
const (
	tokenMain        = "menu:main"
	tokenItems       = "menu:items"
	tokenArchive     = "menu:archive"
	tokenNewDocument = "doc:new"
	tokenAdd         = "item:add"
	tokenEdit        = "item:edit"
	tokenDelete      = "item:delete"
	tokenFinish      = "item:finish"
	tokenSave        = "finish:save"
	tokenCancel      = "cancel"
)

var cancelRow = []Button{{Label: "Cancel", Token: tokenCancel}}

func mainMenu() Keyboard {
	return Keyboard{
		{{Label: "Create document", Token: tokenNewDocument}},
		{{Label: "Archive", Token: tokenArchive}},
	}
}

func itemsMenu() Keyboard {
	return Keyboard{
		{{Label: "Add item", Token: tokenAdd}},
		{{Label: "Edit item", Token: tokenEdit}, {Label: "Delete item", Token: tokenDelete}},
		{{Label: "Finish", Token: tokenFinish}},
		{{Label: "Main menu", Token: tokenMain}},
	}
}

func finishMenu() Keyboard {
	return Keyboard{
		{{Label: "Save", Token: tokenSave}},
		{{Label: "Back", Token: tokenItems}},
	}
}

func recordPicker(records []model.Record, action string) Keyboard {
	kb := make(Keyboard, 0, len(records)+1)
	for _, rec := range records {
		kb = append(kb, []Button{{Label: rec.Title(), Token: action + ":" + strconv.Itoa(rec.Position)}})
	}
	return append(kb, []Button{{Label: "Back", Token: tokenItems}})
}

func fieldPicker() Keyboard {
	kb := make(Keyboard, 0, len(model.Fields)/2+1)
	for i := 0; i < len(model.Fields); i += 2 {
		row := []Button{}
		for _, f := range model.Fields[i:min(i+2, len(model.Fields))] {
			row = append(row, Button{Label: f.Label(), Token: "field:" + f.String()})
		}
		kb = append(kb, row)
	}
	return append(kb, cancelRow)
}

func confirmDelete(pos int) Keyboard {
	return Keyboard{{
		{Label: "Delete", Token: "delok:" + strconv.Itoa(pos)},
		{Label: "Back", Token: tokenItems},
	}}
}

func archiveMenu(entries []archive.Entry) Keyboard {
	kb := make(Keyboard, 0, len(entries)+1)
	for _, e := range entries {
		kb = append(kb, []Button{{Label: e.Name, Token: "arch:" + e.Name}})
	}
	return append(kb, []Button{{Label: "Main menu", Token: tokenMain}})
}

var stepPrompts = map[model.Step]string{
	model.StepAwaitingImage:        `Send a photo of the item, or "-" to skip.`,
	model.StepAwaitingLink:         `Send the product link, or "-" to leave it empty.`,
	model.StepAwaitingColor:        "Send the color.",
	model.StepAwaitingSize:         "Send the size.",
	model.StepAwaitingQuantity:     "Send the quantity as a whole number.",
	model.StepAwaitingComment:      `Send a comment, or "-" to leave it empty.`,
	model.StepChoosingField:        "Which field do you want to change?",
	model.StepAwaitingDocumentName: "Send a name for the document (letters, digits, - and _).",
}

// prompt asks for the input the user's current step expects.
func (d *Dispatcher) prompt(ctx context.Context, userID int64) ([]Reply, error) {
	st, err := d.Machine.State(ctx, userID)
	if err != nil {
		return nil, err
	}

	switch st.Step {
	case model.StepIdle, "":
		return d.itemsOrMain(ctx, userID, "What next?")
	case model.StepChoosingField:
		return []Reply{{Text: stepPrompts[st.Step], Keyboard: fieldPicker()}}, nil
	case model.StepAwaitingFieldValue:
		msg := "Send the new " + strings.ToLower(st.Field.Label()) + "."
		if st.Field == model.FieldImage {
			msg = "Send the new photo."
		}
		return []Reply{{Text: msg, Keyboard: Keyboard{cancelRow}}}, nil
	}

	msg, ok := stepPrompts[st.Step]
	if !ok {
		msg = "Please use the menu."
	}
	return []Reply{{Text: msg, Keyboard: Keyboard{cancelRow}}}, nil
}
