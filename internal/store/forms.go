package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/erazemk/tovor/internal/model"
)

// FormStates persists the per-user form cursor.
type FormStates struct {
	db *sql.DB
}

// NewFormStates returns a SQLite-backed form state store.
func NewFormStates(db *sql.DB) *FormStates {
	return &FormStates{db: db}
}

// Get returns the user's form state, or an idle state when none is stored.
func (f *FormStates) Get(ctx context.Context, userID int64) (model.FormState, error) {
	st := model.FormState{UserID: userID, Step: model.StepIdle}
	var step, mode, draft string
	err := f.db.QueryRowContext(ctx,
		`SELECT step, mode, position, field, draft FROM form_states WHERE user_id = ?`, userID,
	).Scan(&step, &mode, &st.Position, &st.Field, &draft)
	if err == sql.ErrNoRows {
		return st, nil
	}
	if err != nil {
		return st, fmt.Errorf("getting form state: %w", err)
	}

	st.Step = model.Step(step)
	st.Mode = model.Mode(mode)
	if err := json.Unmarshal([]byte(draft), &st.Draft); err != nil {
		return st, fmt.Errorf("decoding form draft: %w", err)
	}
	return st, nil
}

// Put stores st, replacing any previous state of the same user.
func (f *FormStates) Put(ctx context.Context, st model.FormState) error {
	draft, err := json.Marshal(st.Draft)
	if err != nil {
		return fmt.Errorf("encoding form draft: %w", err)
	}

	_, err = f.db.ExecContext(ctx,
		`INSERT INTO form_states (user_id, step, mode, position, field, draft, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT (user_id) DO UPDATE SET
		     step = excluded.step, mode = excluded.mode, position = excluded.position,
		     field = excluded.field, draft = excluded.draft, updated_at = CURRENT_TIMESTAMP`,
		st.UserID, string(st.Step), string(st.Mode), st.Position, int(st.Field), string(draft),
	)
	if err != nil {
		return fmt.Errorf("storing form state: %w", err)
	}
	return nil
}

// Reset returns the user to idle.
func (f *FormStates) Reset(ctx context.Context, userID int64) error {
	if _, err := f.db.ExecContext(ctx,
		`DELETE FROM form_states WHERE user_id = ?`, userID,
	); err != nil {
		return fmt.Errorf("resetting form state: %w", err)
	}
	return nil
}
