package remote

import (
	"strings"
	"time"

	"github.com/iliyamo/restaurant-reservation/internal/model"
)

// The collaborator API's field names. Dates may come back as RFC 3339
// timestamps and table numbers comma-joined; both are normalized here so no
// caller ever sees the wire shape.

type areaWire struct {
	ID              int64  `json:"id"`
	EstablishmentID int64  `json:"establishment_id"`
	Name            string `json:"name"`
	CapacityLunch   int    `json:"capacity_lunch"`
	CapacityDinner  int    `json:"capacity_dinner"`
}

func (w areaWire) model() model.Area {
	return model.Area{
		ID:              w.ID,
		EstablishmentID: w.EstablishmentID,
		Name:            w.Name,
		LunchCapacity:   w.CapacityLunch,
		DinnerCapacity:  w.CapacityDinner,
	}
}

type tableWire struct {
	ID          int64  `json:"id"`
	AreaID      int64  `json:"area_id"`
	TableNumber string `json:"table_number"`
	Capacity    int    `json:"capacity"`
	TableType   string `json:"table_type"`
	Description string `json:"description"`
	IsReserved  bool   `json:"is_reserved"`
}

func (w tableWire) model() model.Table {
	return model.Table{
		ID:          w.ID,
		AreaID:      w.AreaID,
		Number:      strings.TrimSpace(w.TableNumber),
		Capacity:    w.Capacity,
		Type:        w.TableType,
		Description: w.Description,
		IsReserved:  w.IsReserved,
	}
}

type reservationWire struct {
	ID               int64  `json:"id,omitempty"`
	ClientName       string `json:"client_name"`
	ClientPhone      string `json:"client_phone,omitempty"`
	ClientEmail      string `json:"client_email,omitempty"`
	ClientBirthdate  string `json:"client_birthdate,omitempty"`
	ReservationDate  string `json:"reservation_date"`
	ReservationTime  string `json:"reservation_time"`
	NumberOfPeople   int    `json:"number_of_people"`
	AreaID           int64  `json:"area_id"`
	TableNumber      string `json:"table_number,omitempty"`
	Status           string `json:"status"`
	Origin           string `json:"origin,omitempty"`
	Notes            string `json:"notes,omitempty"`
	EstablishmentID  int64  `json:"establishment_id"`
	EventID          *int64 `json:"event_id,omitempty"`
	WaitlistEntryID  *int64 `json:"waitlist_entry_id,omitempty"`
	EventType        string `json:"event_type,omitempty"`
	BlocksEntireArea bool   `json:"blocks_entire_area,omitempty"`
	SendEmail        bool   `json:"send_email"`
	SendWhatsApp     bool   `json:"send_whatsapp"`
	Version          int64  `json:"version,omitempty"`
	UpdatedAt        string `json:"updated_at,omitempty"`
}

func (w reservationWire) model() model.Reservation {
	date, err := model.NormalizeDate(w.ReservationDate)
	if err != nil {
		date = w.ReservationDate
	}
	at, err := model.NormalizeTime(w.ReservationTime)
	if err != nil {
		at = w.ReservationTime
	}
	return model.Reservation{
		ID: w.ID,
		Client: model.Client{
			Name:      w.ClientName,
			Phone:     w.ClientPhone,
			Email:     w.ClientEmail,
			Birthdate: w.ClientBirthdate,
		},
		EstablishmentID: w.EstablishmentID,
		AreaID:          w.AreaID,
		TableNumbers:    model.SplitTables(w.TableNumber),
		Date:            date,
		Time:            at,
		PartySize:       w.NumberOfPeople,
		Status:          model.ParseStatus(w.Status, w.Notes),
		Origin:          w.Origin,
		Notes:           stripMarker(w.Notes),
		BlocksArea:      w.BlocksEntireArea,
		EventTag:        model.EventTag(w.EventType),
		EventID:         w.EventID,
		WaitlistEntryID: w.WaitlistEntryID,
		NotifyEmail:     w.SendEmail,
		NotifyWhatsApp:  w.SendWhatsApp,
		Version:         w.Version,
		UpdatedAt:       parseStamp(w.UpdatedAt),
	}
}

// reservationToWire maps the early-wait status onto what the collaborator
// API understands: a pending booking carrying the notes marker.
func reservationToWire(r model.Reservation) reservationWire {
	status, notes := string(r.Status), r.Notes
	if r.Status == model.StatusEarlyWaitlist {
		status = string(model.StatusPending)
		if !strings.Contains(strings.ToUpper(notes), model.EarlyWaitlistMarker) {
			notes = strings.TrimSpace(model.EarlyWaitlistMarker + " " + notes)
		}
	}
	return reservationWire{
		ID:               r.ID,
		ClientName:       r.Client.Name,
		ClientPhone:      r.Client.Phone,
		ClientEmail:      r.Client.Email,
		ClientBirthdate:  r.Client.Birthdate,
		ReservationDate:  r.Date,
		ReservationTime:  r.Time,
		NumberOfPeople:   r.PartySize,
		AreaID:           r.AreaID,
		TableNumber:      model.JoinTables(r.TableNumbers),
		Status:           status,
		Origin:           r.Origin,
		Notes:            notes,
		EstablishmentID:  r.EstablishmentID,
		EventID:          r.EventID,
		WaitlistEntryID:  r.WaitlistEntryID,
		EventType:        string(r.EventTag),
		BlocksEntireArea: r.BlocksArea,
		SendEmail:        r.NotifyEmail,
		SendWhatsApp:     r.NotifyWhatsApp,
		Version:          r.Version,
	}
}

// stripMarker removes the early-wait marker once it has become a status.
func stripMarker(notes string) string {
	i := strings.Index(strings.ToUpper(notes), model.EarlyWaitlistMarker)
	if i < 0 {
		return notes
	}
	return strings.TrimSpace(notes[:i] + notes[i+len(model.EarlyWaitlistMarker):])
}

type waitlistWire struct {
	ID              int64  `json:"id,omitempty"`
	EstablishmentID int64  `json:"establishment_id"`
	ClientName      string `json:"client_name"`
	ClientPhone     string `json:"client_phone,omitempty"`
	ClientEmail     string `json:"client_email,omitempty"`
	NumberOfPeople  int    `json:"number_of_people"`
	PreferredDate   string `json:"preferred_date,omitempty"`
	PreferredTime   string `json:"preferred_time,omitempty"`
	Status          string `json:"status,omitempty"`
	Position        int    `json:"position,omitempty"`
	CreatedAt       string `json:"created_at,omitempty"`
	PreferredAreaID *int64 `json:"preferred_area_id,omitempty"`
	PreferredTable  string `json:"preferred_table_number,omitempty"`
	Notes           string `json:"notes,omitempty"`
}

func (w waitlistWire) model() model.WaitlistEntry {
	date := w.PreferredDate
	if d, err := model.NormalizeDate(date); err == nil {
		date = d
	}
	status := model.WaitlistStatus(strings.ToLower(strings.TrimSpace(w.Status)))
	if status == "" {
		status = model.WaitlistWaiting
	}
	if status == "canceled" {
		status = model.WaitlistCancelled
	}
	return model.WaitlistEntry{
		ID:              w.ID,
		EstablishmentID: w.EstablishmentID,
		Client:          model.Client{Name: w.ClientName, Phone: w.ClientPhone, Email: w.ClientEmail},
		PartySize:       w.NumberOfPeople,
		PreferredDate:   date,
		PreferredTime:   w.PreferredTime,
		Status:          status,
		Position:        w.Position,
		CreatedAt:       parseStamp(w.CreatedAt),
		PreferredAreaID: w.PreferredAreaID,
		PreferredTable:  w.PreferredTable,
		Notes:           w.Notes,
	}
}

func waitlistToWire(e model.WaitlistEntry) waitlistWire {
	return waitlistWire{
		ID:              e.ID,
		EstablishmentID: e.EstablishmentID,
		ClientName:      e.Client.Name,
		ClientPhone:     e.Client.Phone,
		ClientEmail:     e.Client.Email,
		NumberOfPeople:  e.PartySize,
		PreferredDate:   e.PreferredDate,
		PreferredTime:   e.PreferredTime,
		Status:          string(e.Status),
		Position:        e.Position,
		PreferredAreaID: e.PreferredAreaID,
		PreferredTable:  e.PreferredTable,
		Notes:           e.Notes,
	}
}

var stampLayouts = []string{time.RFC3339Nano, "2006-01-02 15:04:05", "2006-01-02T15:04:05"}

// parseStamp reads the audit timestamps the API emits; an unknown layout
// yields the zero time.
func parseStamp(s string) time.Time {
	for _, layout := range stampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
