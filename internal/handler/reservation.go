package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/restaurant-reservation/internal/form"
	"github.com/iliyamo/restaurant-reservation/internal/model"
	"github.com/iliyamo/restaurant-reservation/internal/source"
)

// reservationView is a reservation with the location label an operator
// sees on the list.
type reservationView struct {
	model.Reservation
	Location string `json:"location"`
}

// ListReservations handles GET /v1/establishments/:id/reservations. The
// listing comes from the reservation store when one is wired.
func (h *Handler) ListReservations(c echo.Context) error {
	est, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid establishment id"})
	}
	f := source.ReservationFilter{EstablishmentID: est}
	if raw := strings.TrimSpace(c.QueryParam("date")); raw != "" {
		d, err := model.NormalizeDate(raw)
		if err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "date must be YYYY-MM-DD"})
		}
		f.Date = d
	}
	if raw := strings.TrimSpace(c.QueryParam("status")); raw != "" {
		f.Status = model.Status(raw)
		if !f.Status.Valid() {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "unknown status"})
		}
	}

	ctx := c.Request().Context()
	var list []model.Reservation
	if h.store != nil {
		list = h.store.List(f)
	} else {
		var err error
		if list, err = h.backend.ListReservations(ctx, f); err != nil {
			return h.fail(c, err)
		}
	}

	areas, err := h.backend.ListAreas(ctx, est)
	if err != nil {
		return h.fail(c, err)
	}
	names := make(map[int64]string, len(areas))
	for _, a := range areas {
		names[a.ID] = a.Name
	}
	p := h.profiles.ForEstablishment(est)
	items := make([]reservationView, len(list))
	for i, r := range list {
		items[i] = reservationView{Reservation: r, Location: p.DisplayLabel(r.AreaID, names[r.AreaID], r.TableNumbers)}
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items, "count": len(items)})
}

// CreateReservation handles POST /v1/establishments/:id/reservations.
func (h *Handler) CreateReservation(c echo.Context) error {
	return h.submitReservation(c, false)
}

// UpdateReservation handles PUT /v1/establishments/:id/reservations/:rid.
func (h *Handler) UpdateReservation(c echo.Context) error {
	return h.submitReservation(c, true)
}

func (h *Handler) submitReservation(c echo.Context, edit bool) error {
	est, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid establishment id"})
	}
	var in form.ReservationInput
	if err := c.Bind(&in); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	in.EstablishmentID = est
	in.IdempotencyKey = idempotencyKey(c)
	status := http.StatusCreated
	if edit {
		rid, ok := pathID(c, "rid")
		if !ok {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid reservation id"})
		}
		in.ID = rid
		status = http.StatusOK
	}

	ctx := c.Request().Context()
	res, err := h.ctrl.SubmitReservation(ctx, actor(c), in)
	if err != nil {
		return h.fail(c, err)
	}
	h.purge(ctx, est)
	return c.JSON(status, res)
}

// ChangeStatus returns the handler of POST .../reservations/:rid/<action>.
func (h *Handler) ChangeStatus(action form.Action) echo.HandlerFunc {
	return func(c echo.Context) error {
		est, ok := pathID(c, "id")
		if !ok {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid establishment id"})
		}
		rid, ok := pathID(c, "rid")
		if !ok {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid reservation id"})
		}
		ctx := c.Request().Context()
		res, err := h.ctrl.ChangeStatus(ctx, actor(c), est, rid, action, idempotencyKey(c))
		if err != nil {
			return h.fail(c, err)
		}
		h.purge(ctx, est)
		return c.JSON(http.StatusOK, res)
	}
}

// Offer handles GET /v1/establishments/:id/reservations/:rid/offer. skip is
// a comma-separated list of waitlist entries the operator declined.
func (h *Handler) Offer(c echo.Context) error {
	est, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid establishment id"})
	}
	rid, ok := pathID(c, "rid")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid reservation id"})
	}
	var skip []int64
	for _, part := range strings.Split(c.QueryParam("skip"), ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid skip list"})
		}
		skip = append(skip, n)
	}
	offer, err := h.ctrl.Offer(c.Request().Context(), est, rid, skip...)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, offer)
}
