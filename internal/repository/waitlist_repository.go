package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/iliyamo/restaurant-reservation/internal/model"
	"github.com/iliyamo/restaurant-reservation/internal/source"
)

// WaitlistRepo stores waitlist entries. Positions are assigned per
// establishment as one past the current maximum.
type WaitlistRepo struct {
	db *sql.DB
}

func NewWaitlistRepo(db *sql.DB) *WaitlistRepo { return &WaitlistRepo{db: db} }

const waitlistColumns = `id, establishment_id, client_name, COALESCE(client_phone, ''), COALESCE(client_email, ''),
	number_of_people, preferred_date, COALESCE(preferred_time, ''), status, position,
	preferred_area_id, COALESCE(preferred_table_number, ''), COALESCE(notes, ''), created_at`

func scanWaitlist(s rowScanner) (model.WaitlistEntry, error) {
	var (
		e      model.WaitlistEntry
		date   sql.NullTime
		status string
		areaID sql.NullInt64
	)
	err := s.Scan(&e.ID, &e.EstablishmentID, &e.Client.Name, &e.Client.Phone, &e.Client.Email,
		&e.PartySize, &date, &e.PreferredTime, &status, &e.Position,
		&areaID, &e.PreferredTable, &e.Notes, &e.CreatedAt)
	if err != nil {
		return model.WaitlistEntry{}, err
	}
	if date.Valid {
		e.PreferredDate = date.Time.Format(model.DateLayout)
	}
	e.Status = model.WaitlistStatus(status)
	if areaID.Valid {
		v := areaID.Int64
		e.PreferredAreaID = &v
	}
	return e, nil
}

func (r *WaitlistRepo) ListWaitlist(ctx context.Context, establishmentID int64) ([]model.WaitlistEntry, error) {
	q := "SELECT " + waitlistColumns + " FROM waitlist_entries"
	var args []any
	if establishmentID != 0 {
		q += " WHERE establishment_id = ?"
		args = append(args, establishmentID)
	}
	rows, err := r.db.QueryContext(ctx, q+" ORDER BY position, created_at, id", args...)
	if err != nil {
		return nil, translate(err, "list waitlist")
	}
	defer rows.Close()
	var out []model.WaitlistEntry
	for rows.Next() {
		e, err := scanWaitlist(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *WaitlistRepo) get(ctx context.Context, q interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}, where string, arg any) (model.WaitlistEntry, error) {
	return scanWaitlist(q.QueryRowContext(ctx, "SELECT "+waitlistColumns+" FROM waitlist_entries WHERE "+where, arg))
}

// CreateWaitlistEntry queues e at the end of its establishment's list.
func (r *WaitlistRepo) CreateWaitlistEntry(ctx context.Context, e model.WaitlistEntry, opts source.WriteOptions) (model.WaitlistEntry, error) {
	if opts.IdempotencyKey != "" {
		prev, err := r.get(ctx, r.db, "idempotency_key = ?", opts.IdempotencyKey)
		if err == nil {
			return prev, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return model.WaitlistEntry{}, translate(err, "waitlist by idempotency key")
		}
	}
	var date sql.NullString
	if e.PreferredDate != "" {
		d, err := model.NormalizeDate(e.PreferredDate)
		if err != nil {
			return model.WaitlistEntry{}, err
		}
		date = sql.NullString{String: d, Valid: true}
	}
	if e.Status == "" {
		e.Status = model.WaitlistWaiting
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return model.WaitlistEntry{}, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	var last int
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(position), 0) FROM waitlist_entries WHERE establishment_id = ? FOR UPDATE`,
		e.EstablishmentID).Scan(&last); err != nil {
		return model.WaitlistEntry{}, translate(err, "waitlist position")
	}
	result, err := tx.ExecContext(ctx,
		`INSERT INTO waitlist_entries (establishment_id, client_name, client_phone, client_email,
		 number_of_people, preferred_date, preferred_time, status, position, preferred_area_id,
		 preferred_table_number, notes, idempotency_key)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.EstablishmentID, e.Client.Name, nullString(e.Client.Phone), nullString(e.Client.Email),
		e.PartySize, date, nullString(e.PreferredTime), string(e.Status), last+1, nullInt(e.PreferredAreaID),
		nullString(e.PreferredTable), nullString(e.Notes), nullString(opts.IdempotencyKey))
	if err != nil {
		if isDuplicate(err) && opts.IdempotencyKey != "" {
			_ = tx.Rollback()
			prev, err := r.get(ctx, r.db, "idempotency_key = ?", opts.IdempotencyKey)
			return prev, translate(err, "waitlist by idempotency key")
		}
		return model.WaitlistEntry{}, translate(err, "insert waitlist entry")
	}
	id, err := result.LastInsertId()
	if err != nil {
		return model.WaitlistEntry{}, err
	}
	if err := tx.Commit(); err != nil {
		return model.WaitlistEntry{}, err
	}
	committed = true
	created, err := r.get(ctx, r.db, "id = ?", id)
	return created, translate(err, fmt.Sprintf("waitlist entry %d", id))
}

// UpdateWaitlistStatus moves an entry to status. Transitions out of a final
// state are rejected with source.ErrConflict.
func (r *WaitlistRepo) UpdateWaitlistStatus(ctx context.Context, id int64, status model.WaitlistStatus) (model.WaitlistEntry, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return model.WaitlistEntry{}, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	var current string
	if err := tx.QueryRowContext(ctx, `SELECT status FROM waitlist_entries WHERE id = ? FOR UPDATE`, id).Scan(&current); err != nil {
		return model.WaitlistEntry{}, translate(err, fmt.Sprintf("waitlist entry %d", id))
	}
	if !model.WaitlistStatus(current).CanTransition(status) {
		return model.WaitlistEntry{}, fmt.Errorf("waitlist entry %d: %s -> %s: %w", id, current, status, source.ErrConflict)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE waitlist_entries SET status = ? WHERE id = ?`, string(status), id); err != nil {
		return model.WaitlistEntry{}, translate(err, "update waitlist entry")
	}
	if err := tx.Commit(); err != nil {
		return model.WaitlistEntry{}, err
	}
	committed = true
	e, err := r.get(ctx, r.db, "id = ?", id)
	return e, translate(err, fmt.Sprintf("waitlist entry %d", id))
}
