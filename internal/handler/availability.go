package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/restaurant-reservation/internal/availability"
	"github.com/iliyamo/restaurant-reservation/internal/capacity"
	"github.com/iliyamo/restaurant-reservation/internal/model"
	"github.com/iliyamo/restaurant-reservation/internal/policy"
)

// Tables handles GET /v1/establishments/:id/areas/:area_id/tables. Without
// a time the tables are reserved when held at any time of the day.
func (h *Handler) Tables(c echo.Context) error {
	est, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid establishment id"})
	}
	area, ok := pathID(c, "area_id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid area id"})
	}
	party, ok := queryInt(c, "party_size")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid party_size"})
	}
	var exclude int64
	if raw := strings.TrimSpace(c.QueryParam("exclude")); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n <= 0 {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid exclude"})
		}
		exclude = n
	}

	q := availability.Query{
		EstablishmentID:      est,
		AreaID:               area,
		Date:                 c.QueryParam("date"),
		Time:                 c.QueryParam("time"),
		PartySize:            party,
		SubArea:              strings.TrimSpace(c.QueryParam("subarea")),
		ExcludeReservationID: exclude,
	}
	tables, err := h.resolver.Resolve(c.Request().Context(), q)
	if err != nil {
		return h.fail(c, err)
	}
	free := availability.Free(tables, party)
	return c.JSON(http.StatusOK, echo.Map{
		"items": tables,
		"count": len(tables),
		"free":  len(free),
	})
}

// Capacity handles GET /v1/establishments/:id/capacity.
func (h *Handler) Capacity(c echo.Context) error {
	est, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid establishment id"})
	}
	party, ok := queryInt(c, "party_size")
	if !ok || party < 1 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "party_size must be at least 1"})
	}
	d, err := h.gate.CanReserve(c.Request().Context(), capacity.Request{
		EstablishmentID: est,
		Date:            c.QueryParam("date"),
		Time:            c.QueryParam("time"),
		PartySize:       party,
	})
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, d)
}

// Windows handles GET /v1/establishments/:id/windows. An empty list on a
// restricted profile means closed all day.
func (h *Handler) Windows(c echo.Context) error {
	est, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid establishment id"})
	}
	date, err := model.NormalizeDate(c.QueryParam("date"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "date must be YYYY-MM-DD"})
	}
	p := h.profiles.ForEstablishment(est)
	family := strings.TrimSpace(c.QueryParam("family"))
	windows, err := p.WindowsFor(date, family)
	if err != nil {
		return h.fail(c, err)
	}
	labels := make([]string, len(windows))
	for i, w := range windows {
		labels[i] = w.String()
	}
	return c.JSON(http.StatusOK, echo.Map{
		"date":       date,
		"family":     family,
		"restricted": p.Restricted(),
		"windows":    windows,
		"labels":     labels,
	})
}

// SubAreas handles GET /v1/establishments/:id/subareas.
func (h *Handler) SubAreas(c echo.Context) error {
	est, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid establishment id"})
	}
	p := h.profiles.ForEstablishment(est)
	items := p.SubAreas
	if raw := strings.TrimSpace(c.QueryParam("area_id")); raw != "" {
		area, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || area <= 0 {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid area_id"})
		}
		items = p.SubAreasFor(area)
	}
	if items == nil {
		items = []policy.SubArea{}
	}
	return c.JSON(http.StatusOK, echo.Map{
		"profile":     p.Key,
		"items":       items,
		"area_labels": p.AreaLabels,
	})
}
