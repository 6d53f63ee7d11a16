package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/restaurant-reservation/internal/grid"
	"github.com/iliyamo/restaurant-reservation/internal/model"
	"github.com/iliyamo/restaurant-reservation/internal/source"
)

// anchorDate returns the date query parameter, today when absent.
func anchorDate(c echo.Context) string {
	if d := strings.TrimSpace(c.QueryParam("date")); d != "" {
		return d
	}
	return time.Now().Format(model.DateLayout)
}

// BuildWeek loads the reservations of the week around anchor and lays them
// on the grid.
func (h *Handler) BuildWeek(ctx context.Context, establishmentID int64, anchor string) (grid.Week, error) {
	from, to, err := grid.Range(anchor)
	if err != nil {
		return grid.Week{}, err
	}
	f := source.ReservationFilter{EstablishmentID: establishmentID, DateFrom: from, DateTo: to}
	var list []model.Reservation
	if h.store != nil {
		list = h.store.List(f)
	} else if list, err = h.backend.ListReservations(ctx, f); err != nil {
		return grid.Week{}, err
	}
	return grid.BuildWeek(anchor, list, nil)
}

// Week handles GET /v1/establishments/:id/week.
func (h *Handler) Week(c echo.Context) error {
	est, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid establishment id"})
	}
	w, err := h.BuildWeek(c.Request().Context(), est, anchorDate(c))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, w)
}
