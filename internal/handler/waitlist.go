package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/restaurant-reservation/internal/form"
)

// SubmitWaitlist handles POST /v1/establishments/:id/waitlist. A submission
// naming a free table and a time comes back as a reservation.
func (h *Handler) SubmitWaitlist(c echo.Context) error {
	est, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid establishment id"})
	}
	var in form.WaitlistInput
	if err := c.Bind(&in); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	in.EstablishmentID = est
	in.IdempotencyKey = idempotencyKey(c)

	ctx := c.Request().Context()
	res, err := h.ctrl.SubmitWaitlist(ctx, actor(c), in)
	if err != nil {
		return h.fail(c, err)
	}
	h.purge(ctx, est)
	return c.JSON(http.StatusCreated, res)
}

type promoteRequest struct {
	FreedReservationID int64 `json:"freed_reservation_id"`
}

// Promote handles POST /v1/establishments/:id/waitlist/:wid/promote: the
// operator accepts the offer of seating entry wid on the tables freed by
// freed_reservation_id.
func (h *Handler) Promote(c echo.Context) error {
	est, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid establishment id"})
	}
	wid, ok := pathID(c, "wid")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid waitlist entry id"})
	}
	var req promoteRequest
	if err := c.Bind(&req); err != nil || req.FreedReservationID <= 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "freed_reservation_id is required"})
	}

	ctx := c.Request().Context()
	created, err := h.ctrl.AcceptPromotion(ctx, actor(c), est, wid, req.FreedReservationID, idempotencyKey(c))
	if err != nil {
		return h.fail(c, err)
	}
	h.purge(ctx, est)
	return c.JSON(http.StatusCreated, created)
}
