package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/iliyamo/restaurant-reservation/internal/model"
	"github.com/iliyamo/restaurant-reservation/internal/source"
)

// ConflictFunc decides whether r may be written next to the other active
// reservations of its establishment and day. It returns an error wrapping
// source.ErrConflict to reject the write.
type ConflictFunc func(existing []model.Reservation, r model.Reservation) error

// ReservationRepo stores reservations. Writes run in a transaction that
// locks the establishment's reservations for the day (SELECT ... FOR
// UPDATE) before Check runs, so two concurrent writes for the same table
// cannot both commit.
type ReservationRepo struct {
	db *sql.DB
	// Check is consulted inside every write. Nil accepts every write.
	Check ConflictFunc
}

func NewReservationRepo(db *sql.DB, check ConflictFunc) *ReservationRepo {
	return &ReservationRepo{db: db, Check: check}
}

const reservationColumns = `id, establishment_id, area_id, client_name, COALESCE(client_phone, ''),
	COALESCE(client_email, ''), client_birthdate, reservation_date, CAST(reservation_time AS CHAR),
	number_of_people, table_number, status, COALESCE(origin, ''), COALESCE(notes, ''),
	blocks_entire_area, COALESCE(event_type, ''), event_id, waitlist_entry_id, send_email,
	send_whatsapp, version, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReservation(s rowScanner) (model.Reservation, error) {
	var (
		r         model.Reservation
		birthdate sql.NullTime
		date      time.Time
		tables    string
		status    string
		eventTag  string
		eventID   sql.NullInt64
		entryID   sql.NullInt64
	)
	err := s.Scan(&r.ID, &r.EstablishmentID, &r.AreaID, &r.Client.Name, &r.Client.Phone,
		&r.Client.Email, &birthdate, &date, &r.Time,
		&r.PartySize, &tables, &status, &r.Origin, &r.Notes,
		&r.BlocksArea, &eventTag, &eventID, &entryID, &r.NotifyEmail,
		&r.NotifyWhatsApp, &r.Version, &r.UpdatedAt)
	if err != nil {
		return model.Reservation{}, err
	}
	if birthdate.Valid {
		r.Client.Birthdate = birthdate.Time.Format(model.DateLayout)
	}
	r.Date = date.Format(model.DateLayout)
	if t, err := model.NormalizeTime(r.Time); err == nil {
		r.Time = t
	}
	r.TableNumbers = model.SplitTables(tables)
	r.Status = model.ParseStatus(status, r.Notes)
	r.EventTag = model.EventTag(eventTag)
	if eventID.Valid {
		v := eventID.Int64
		r.EventID = &v
	}
	if entryID.Valid {
		v := entryID.Int64
		r.WaitlistEntryID = &v
	}
	return r, nil
}

// reservationWhere builds the WHERE clause of a listing.
func reservationWhere(f source.ReservationFilter) (string, []any, error) {
	var (
		conds []string
		args  []any
	)
	if f.EstablishmentID != 0 {
		conds = append(conds, "establishment_id = ?")
		args = append(args, f.EstablishmentID)
	}
	if f.AreaID != 0 {
		conds = append(conds, "area_id = ?")
		args = append(args, f.AreaID)
	}
	for _, d := range []struct {
		op, value string
	}{{"=", f.Date}, {">=", f.DateFrom}, {"<=", f.DateTo}} {
		if d.value == "" {
			continue
		}
		date, err := model.NormalizeDate(d.value)
		if err != nil {
			return "", nil, err
		}
		conds = append(conds, "reservation_date "+d.op+" ?")
		args = append(args, date)
	}
	if f.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, string(f.Status))
	}
	if len(conds) == 0 {
		return "", nil, nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args, nil
}

func (r *ReservationRepo) ListReservations(ctx context.Context, f source.ReservationFilter) ([]model.Reservation, error) {
	where, args, err := reservationWhere(f)
	if err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+reservationColumns+" FROM reservations"+where+" ORDER BY reservation_date, reservation_time, id", args...)
	if err != nil {
		return nil, translate(err, "list reservations")
	}
	defer rows.Close()
	var out []model.Reservation
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, rows.Err()
}

func (r *ReservationRepo) GetReservation(ctx context.Context, id int64) (model.Reservation, error) {
	res, err := scanReservation(r.db.QueryRowContext(ctx,
		"SELECT "+reservationColumns+" FROM reservations WHERE id = ?", id))
	if err != nil {
		return model.Reservation{}, translate(err, fmt.Sprintf("reservation %d", id))
	}
	return res, nil
}

// lockDay loads and locks the active reservations of r's establishment and
// day, excluding r itself.
func lockDay(ctx context.Context, tx *sql.Tx, res model.Reservation) ([]model.Reservation, error) {
	date, err := model.NormalizeDate(res.Date)
	if err != nil {
		return nil, err
	}
	rows, err := tx.QueryContext(ctx,
		"SELECT "+reservationColumns+` FROM reservations
		 WHERE establishment_id = ? AND reservation_date = ? AND id <> ? AND status NOT IN (?, ?)
		 FOR UPDATE`,
		res.EstablishmentID, date, res.ID, string(model.StatusCancelled), string(model.StatusCompleted))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Reservation
	for rows.Next() {
		other, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, other)
	}
	return out, rows.Err()
}

func (r *ReservationRepo) check(ctx context.Context, tx *sql.Tx, res model.Reservation) error {
	if r.Check == nil || !res.Status.Active() {
		return nil
	}
	day, err := lockDay(ctx, tx, res)
	if err != nil {
		return translate(err, "lock reservations")
	}
	return r.Check(day, res)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt(p *int64) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *p, Valid: true}
}

// reservationArgs returns the column values of every writable field, in the
// order of writableColumns.
func reservationArgs(res model.Reservation) []any {
	return []any{
		res.EstablishmentID, res.AreaID, res.Client.Name, nullString(res.Client.Phone),
		nullString(res.Client.Email), nullString(res.Client.Birthdate), res.Date, res.Time,
		res.PartySize, model.JoinTables(res.TableNumbers), string(res.Status), nullString(res.Origin),
		nullString(res.Notes), res.BlocksArea, nullString(string(res.EventTag)), nullInt(res.EventID),
		nullInt(res.WaitlistEntryID), res.NotifyEmail, res.NotifyWhatsApp,
	}
}

var writableColumns = []string{
	"establishment_id", "area_id", "client_name", "client_phone",
	"client_email", "client_birthdate", "reservation_date", "reservation_time",
	"number_of_people", "table_number", "status", "origin",
	"notes", "blocks_entire_area", "event_type", "event_id",
	"waitlist_entry_id", "send_email", "send_whatsapp",
}

func normalizeReservation(res model.Reservation) (model.Reservation, error) {
	d, err := model.NormalizeDate(res.Date)
	if err != nil {
		return res, err
	}
	t, err := model.NormalizeTime(res.Time)
	if err != nil {
		return res, err
	}
	res.Date, res.Time = d, t
	return res, nil
}

// CreateReservation inserts res. A repeated idempotency key returns the
// reservation created by the first call.
func (r *ReservationRepo) CreateReservation(ctx context.Context, res model.Reservation, opts source.WriteOptions) (model.Reservation, error) {
	res, err := normalizeReservation(res)
	if err != nil {
		return model.Reservation{}, err
	}
	res.ID = 0
	if opts.IdempotencyKey != "" {
		if prev, err := r.byKey(ctx, opts.IdempotencyKey); err == nil {
			return prev, nil
		} else if !errors.Is(err, source.ErrNotFound) {
			return model.Reservation{}, err
		}
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Reservation{}, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err := r.check(ctx, tx, res); err != nil {
		return model.Reservation{}, err
	}
	cols := append(append([]string(nil), writableColumns...), "idempotency_key")
	args := append(reservationArgs(res), nullString(opts.IdempotencyKey))
	q := "INSERT INTO reservations (" + strings.Join(cols, ", ") + ") VALUES (?" + strings.Repeat(", ?", len(cols)-1) + ")"
	result, err := tx.ExecContext(ctx, q, args...)
	if err != nil {
		if isDuplicate(err) && opts.IdempotencyKey != "" {
			// a concurrent submission with the same key won
			_ = tx.Rollback()
			return r.byKey(ctx, opts.IdempotencyKey)
		}
		return model.Reservation{}, translate(err, "insert reservation")
	}
	id, err := result.LastInsertId()
	if err != nil {
		return model.Reservation{}, err
	}
	if err := tx.Commit(); err != nil {
		return model.Reservation{}, err
	}
	committed = true
	return r.GetReservation(ctx, id)
}

func (r *ReservationRepo) byKey(ctx context.Context, key string) (model.Reservation, error) {
	res, err := scanReservation(r.db.QueryRowContext(ctx,
		"SELECT "+reservationColumns+" FROM reservations WHERE idempotency_key = ?", key))
	if err != nil {
		return model.Reservation{}, translate(err, "reservation by idempotency key")
	}
	return res, nil
}

// UpdateReservation replaces every writable field of res. When res carries a
// version, the row must still have it; a newer row yields source.ErrConflict.
func (r *ReservationRepo) UpdateReservation(ctx context.Context, res model.Reservation, _ source.WriteOptions) (model.Reservation, error) {
	res, err := normalizeReservation(res)
	if err != nil {
		return model.Reservation{}, err
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Reservation{}, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	var current int64
	if err := tx.QueryRowContext(ctx, `SELECT version FROM reservations WHERE id = ? FOR UPDATE`, res.ID).Scan(&current); err != nil {
		return model.Reservation{}, translate(err, fmt.Sprintf("reservation %d", res.ID))
	}
	if res.Version != 0 && res.Version != current {
		return model.Reservation{}, fmt.Errorf("reservation %d changed (version %d, have %d): %w", res.ID, current, res.Version, source.ErrConflict)
	}
	if err := r.check(ctx, tx, res); err != nil {
		return model.Reservation{}, err
	}

	sets := make([]string, len(writableColumns))
	for i, c := range writableColumns {
		sets[i] = c + " = ?"
	}
	args := append(reservationArgs(res), res.ID)
	if _, err := tx.ExecContext(ctx,
		"UPDATE reservations SET "+strings.Join(sets, ", ")+", version = version + 1 WHERE id = ?", args...); err != nil {
		return model.Reservation{}, translate(err, "update reservation")
	}
	if err := tx.Commit(); err != nil {
		return model.Reservation{}, err
	}
	committed = true
	return r.GetReservation(ctx, res.ID)
}
