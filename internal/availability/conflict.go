package availability

import (
	"fmt"
	"strings"

	"github.com/iliyamo/restaurant-reservation/internal/model"
	"github.com/iliyamo/restaurant-reservation/internal/policy"
	"github.com/iliyamo/restaurant-reservation/internal/source"
)

// ConflictCheck returns the write-side rule that backends owning their data
// apply inside the write: r conflicts when any of its tables (or, for an
// area-blocking booking, any table of the area) is occupied at its time
// under the establishment's profile. The error wraps source.ErrConflict.
func ConflictCheck(profiles *policy.Registry) func(existing []model.Reservation, r model.Reservation) error {
	return func(existing []model.Reservation, r model.Reservation) error {
		if !r.Status.Active() || (len(r.TableNumbers) == 0 && !r.BlocksArea) {
			return nil
		}
		profile := profiles.ForEstablishment(r.EstablishmentID)
		q, err := Query{
			EstablishmentID:      r.EstablishmentID,
			AreaID:               r.AreaID,
			Date:                 r.Date,
			Time:                 r.Time,
			ExcludeReservationID: r.ID,
		}.normalize()
		if err != nil {
			return err
		}

		if r.BlocksArea {
			occupies := occupancyFunc(profile, q)
			for _, other := range inScope(q, existing) {
				if occupies(other) {
					return fmt.Errorf("area %d blocked by reservation %d: %w", r.AreaID, other.ID, source.ErrConflict)
				}
			}
			return nil
		}

		tables := make([]model.Table, 0, len(r.TableNumbers))
		for _, n := range r.TableNumbers {
			tables = append(tables, model.Table{AreaID: r.AreaID, Number: n})
		}
		var taken []string
		for _, t := range Annotate(profile, q, tables, existing) {
			if t.IsReserved {
				taken = append(taken, t.Number)
			}
		}
		if len(taken) > 0 {
			return fmt.Errorf("table %s already reserved: %w", strings.Join(taken, ","), source.ErrConflict)
		}
		return nil
	}
}
