package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/restaurant-reservation/internal/model"
	"github.com/iliyamo/restaurant-reservation/internal/source"
)

// VenueRepo reads establishments, areas and tables.
type VenueRepo struct {
	db *sql.DB
}

func NewVenueRepo(db *sql.DB) *VenueRepo { return &VenueRepo{db: db} }

// ListEstablishments returns every establishment with its profile key, used
// at start-up to bind policy profiles.
func (r *VenueRepo) ListEstablishments(ctx context.Context) ([]model.Establishment, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, COALESCE(address, ''), profile_key FROM establishments ORDER BY id`)
	if err != nil {
		return nil, translate(err, "list establishments")
	}
	defer rows.Close()
	var out []model.Establishment
	for rows.Next() {
		var e model.Establishment
		if err := rows.Scan(&e.ID, &e.Name, &e.Address, &e.ProfileKey); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *VenueRepo) ListAreas(ctx context.Context, establishmentID int64) ([]model.Area, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, establishment_id, name, capacity_lunch, capacity_dinner
		 FROM areas WHERE establishment_id = ? ORDER BY id`, establishmentID)
	if err != nil {
		return nil, translate(err, "list areas")
	}
	defer rows.Close()
	var out []model.Area
	for rows.Next() {
		var a model.Area
		if err := rows.Scan(&a.ID, &a.EstablishmentID, &a.Name, &a.LunchCapacity, &a.DinnerCapacity); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// ListTables returns the tables of an area. With a date, IsReserved marks the
// tables held by any active reservation that day; the resolver narrows this
// down to the requested time.
func (r *VenueRepo) ListTables(ctx context.Context, q source.TableQuery) ([]model.Table, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, area_id, table_number, capacity, COALESCE(table_type, ''), COALESCE(description, '')
		 FROM restaurant_tables WHERE area_id = ? ORDER BY id`, q.AreaID)
	if err != nil {
		return nil, translate(err, "list tables")
	}
	defer rows.Close()
	var out []model.Table
	for rows.Next() {
		var t model.Table
		if err := rows.Scan(&t.ID, &t.AreaID, &t.Number, &t.Capacity, &t.Type, &t.Description); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, source.ErrUnavailable
	}
	if q.Date == "" {
		return out, nil
	}

	held, err := r.heldTables(ctx, q)
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].IsReserved = held[out[i].Number]
	}
	return out, nil
}

func (r *VenueRepo) heldTables(ctx context.Context, q source.TableQuery) (map[string]bool, error) {
	date, err := model.NormalizeDate(q.Date)
	if err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT table_number FROM reservations
		 WHERE area_id = ? AND reservation_date = ? AND status NOT IN (?, ?)`,
		q.AreaID, date, string(model.StatusCancelled), string(model.StatusCompleted))
	if err != nil {
		return nil, translate(err, "list held tables")
	}
	defer rows.Close()
	held := map[string]bool{}
	for rows.Next() {
		var joined string
		if err := rows.Scan(&joined); err != nil {
			return nil, err
		}
		for _, n := range model.SplitTables(joined) {
			held[n] = true
		}
	}
	return held, rows.Err()
}
