package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/erazemk/tovor/internal/model"
)

// Releaser frees stored attachments that a record no longer owns.
type Releaser interface {
	Release(ref string)
}

// Sessions is the SQLite-backed ordered collection of records per user.
// Positions are always contiguous 0..n-1.
type Sessions struct {
	db    *sql.DB
	media Releaser
}

// NewSessions returns a session store that releases attachments via media.
func NewSessions(db *sql.DB, media Releaser) *Sessions {
	return &Sessions{db: db, media: media}
}

const recordColumns = `position, image_ref, link, color, size, quantity, comment`

// Append adds rec to the end of the user's collection and returns its position.
func (s *Sessions) Append(ctx context.Context, userID int64, rec model.Record) (int, error) {
	if rec.Quantity < 0 {
		return 0, fmt.Errorf("appending record: negative quantity %d", rec.Quantity)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var n int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM records WHERE user_id = ?`, userID,
	).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting records: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO records (user_id, position, image_ref, link, color, size, quantity, comment)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		userID, n, nullString(rec.ImageRef), rec.Link, rec.Color, rec.Size, rec.Quantity, rec.Comment,
	)
	if err != nil {
		return 0, fmt.Errorf("appending record: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing record: %w", err)
	}
	return n, nil
}

// All returns the user's records in position order.
func (s *Sessions) All(ctx context.Context, userID int64) ([]model.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM records WHERE user_id = ? ORDER BY position`, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing records: %w", err)
	}
	defer rows.Close()

	var records []model.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Len returns the number of records in the user's session.
func (s *Sessions) Len(ctx context.Context, userID int64) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM records WHERE user_id = ?`, userID,
	).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting records: %w", err)
	}
	return n, nil
}

// Get returns the record at position.
func (s *Sessions) Get(ctx context.Context, userID int64, position int) (model.Record, error) {
	rec, err := scanRecord(s.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM records WHERE user_id = ? AND position = ?`, userID, position,
	))
	if err == sql.ErrNoRows {
		return model.Record{}, model.ErrOutOfRange
	}
	return rec, err
}

// ReplaceField overwrites only the named field of the record at position.
// Replacing the image releases the previous attachment.
func (s *Sessions) ReplaceField(ctx context.Context, userID int64, position int, v model.Value) error {
	column, arg, err := fieldColumn(v)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var oldRef sql.NullString
	err = tx.QueryRowContext(ctx,
		`SELECT image_ref FROM records WHERE user_id = ? AND position = ?`, userID, position,
	).Scan(&oldRef)
	if err == sql.ErrNoRows {
		return model.ErrOutOfRange
	}
	if err != nil {
		return fmt.Errorf("loading record: %w", err)
	}

	// column comes from the closed switch in fieldColumn, never from input.
	_, err = tx.ExecContext(ctx,
		`UPDATE records SET `+column+` = ? WHERE user_id = ? AND position = ?`,
		arg, userID, position,
	)
	if err != nil {
		return fmt.Errorf("updating %s: %w", v.Field, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing update: %w", err)
	}

	if v.Field == model.FieldImage && oldRef.String != "" && oldRef.String != v.ImageRef {
		s.media.Release(oldRef.String)
	}
	return nil
}

// RemoveAt deletes the record at position, releases its attachment and shifts
// every later record down by one. The removed record is returned.
func (s *Sessions) RemoveAt(ctx context.Context, userID int64, position int) (model.Record, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Record{}, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	rec, err := scanRecord(tx.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM records WHERE user_id = ? AND position = ?`, userID, position,
	))
	if err == sql.ErrNoRows {
		return model.Record{}, model.ErrOutOfRange
	}
	if err != nil {
		return model.Record{}, err
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM records WHERE user_id = ? AND position = ?`, userID, position,
	); err != nil {
		return model.Record{}, fmt.Errorf("deleting record: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE records SET position = position - 1 WHERE user_id = ? AND position > ?`, userID, position,
	); err != nil {
		return model.Record{}, fmt.Errorf("shifting records: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return model.Record{}, fmt.Errorf("committing removal: %w", err)
	}

	s.media.Release(rec.ImageRef)
	return rec, nil
}

// Clear releases every attachment of the user's session and empties it.
// Clearing an empty session is a no-op.
func (s *Sessions) Clear(ctx context.Context, userID int64) error {
	records, err := s.All(ctx, userID)
	if err != nil {
		return err
	}

	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM records WHERE user_id = ?`, userID,
	); err != nil {
		return fmt.Errorf("clearing records: %w", err)
	}

	for _, rec := range records {
		s.media.Release(rec.ImageRef)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (model.Record, error) {
	var rec model.Record
	var imageRef sql.NullString
	err := row.Scan(&rec.Position, &imageRef, &rec.Link, &rec.Color, &rec.Size, &rec.Quantity, &rec.Comment)
	if err == sql.ErrNoRows {
		return rec, err
	}
	if err != nil {
		return rec, fmt.Errorf("scanning record: %w", err)
	}
	rec.ImageRef = imageRef.String
	return rec, nil
}

// fieldColumn maps a field value to its column and bind argument.
func fieldColumn(v model.Value) (string, any, error) {
	switch v.Field {
	case model.FieldImage:
		return "image_ref", nullString(v.ImageRef), nil
	case model.FieldLink:
		return "link", v.Text, nil
	case model.FieldColor:
		return "color", v.Text, nil
	case model.FieldSize:
		return "size", v.Text, nil
	case model.FieldQuantity:
		if v.Quantity < 0 {
			return "", nil, fmt.Errorf("negative quantity %d", v.Quantity)
		}
		return "quantity", v.Quantity, nil
	case model.FieldComment:
		return "comment", v.Text, nil
	}
	return "", nil, fmt.Errorf("unknown field %d", v.Field)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
