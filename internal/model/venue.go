package model

import "time"

// Establishment is a venue. ProfileKey selects the policy profile (windows,
// sub-areas, turns, blocks) and is resolved once when the establishment is
// loaded; the display name is never used to pick rules.
type Establishment struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	Address    string `json:"address,omitempty"`
	ProfileKey string `json:"profile_key"`
}

// Area is the base unit of seating capacity.
type Area struct {
	ID              int64  `json:"id"`
	EstablishmentID int64  `json:"establishment_id"`
	Name            string `json:"name"`
	LunchCapacity   int    `json:"lunch_capacity"`
	DinnerCapacity  int    `json:"dinner_capacity"`
}

// Table is a physical (or, when synthesized from the sub-area catalog,
// virtual) table. IsReserved is derived for the query being answered.
type Table struct {
	ID          int64  `json:"id"`
	AreaID      int64  `json:"area_id"`
	Number      string `json:"table_number"`
	Capacity    int    `json:"capacity"`
	Type        string `json:"type,omitempty"`
	Description string `json:"description,omitempty"`
	IsReserved  bool   `json:"is_reserved"`
	Virtual     bool   `json:"virtual,omitempty"`
}

// WaitlistEntry is a guest queued for a slot. Entries of one establishment,
// date and compatible time are ordered by Position, lower first.
type WaitlistEntry struct {
	ID               int64          `json:"id"`
	EstablishmentID  int64          `json:"establishment_id"`
	Client           Client         `json:"client"`
	PartySize        int            `json:"party_size"`
	PreferredDate    string         `json:"preferred_date"`
	PreferredTime    string         `json:"preferred_time,omitempty"`
	Status           WaitlistStatus `json:"status"`
	Position         int            `json:"position"`
	CreatedAt        time.Time      `json:"created_at"`
	PreferredAreaID  *int64         `json:"preferred_area_id,omitempty"`
	PreferredTable   string         `json:"preferred_table,omitempty"`
	SeatedAtOverflow bool           `json:"seated_at_overflow,omitempty"`
	Notes            string         `json:"notes,omitempty"`
}

// HasPreferredTime reports whether the guest asked for a specific time.
func (w WaitlistEntry) HasPreferredTime() bool {
	return SlotKey(w.PreferredTime) != ""
}
