// Package realtime pushes the weekly occupancy grid to operators over
// WebSocket whenever the reservation store changes.
package realtime

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"

	"github.com/iliyamo/restaurant-reservation/internal/grid"
	"github.com/iliyamo/restaurant-reservation/internal/model"
	"github.com/iliyamo/restaurant-reservation/internal/store"
)

const (
	writeWait    = 7 * time.Second
	readWait     = 70 * time.Second
	pingInterval = 25 * time.Second
	buildTimeout = 10 * time.Second
)

// WeekBuilder lays the reservations of the week around anchor on the grid.
type WeekBuilder interface {
	BuildWeek(ctx context.Context, establishmentID int64, anchor string) (grid.Week, error)
}

// Message is what a subscriber receives.
type Message struct {
	Type            string    `json:"type"`
	EstablishmentID int64     `json:"establishment_id"`
	At              string    `json:"at"`
	Week            grid.Week `json:"week"`
}

type request struct {
	Type string `json:"type"`
	Date string `json:"date"`
}

// Hub fans store changes out to the WebSocket subscribers of each
// establishment.
type Hub struct {
	builder  WeekBuilder
	upgrader websocket.Upgrader
	logger   *log.Logger

	mu    sync.RWMutex
	rooms map[int64]map[*client]struct{}

	unsubscribe func()
}

type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
	from string
	to   string
	week string // anchor date
}

// New subscribes a hub to st. Close releases the subscription.
func New(st *store.Store, builder WeekBuilder, logger *log.Logger) *Hub {
	if logger == nil {
		logger = log.New("realtime")
		logger.SetOutput(io.Discard)
	}
	h := &Hub{
		builder:  builder,
		upgrader: websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 1024},
		logger:   logger,
		rooms:    map[int64]map[*client]struct{}{},
	}
	if st != nil {
		h.unsubscribe = st.Subscribe(h.onChange)
	}
	return h
}

// Close stops listening to the store and disconnects every subscriber.
func (h *Hub) Close() {
	if h.unsubscribe != nil {
		h.unsubscribe()
	}
	h.mu.Lock()
	rooms := h.rooms
	h.rooms = map[int64]map[*client]struct{}{}
	h.mu.Unlock()
	for _, room := range rooms {
		for c := range room {
			_ = c.close()
		}
	}
}

func (h *Hub) add(est int64, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room := h.rooms[est]
	if room == nil {
		room = map[*client]struct{}{}
		h.rooms[est] = room
	}
	room[c] = struct{}{}
}

func (h *Hub) remove(est int64, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room := h.rooms[est]
	if room == nil {
		return
	}
	delete(room, c)
	if len(room) == 0 {
		delete(h.rooms, est)
	}
}

func (h *Hub) list(est int64) []*client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	room := h.rooms[est]
	out := make([]*client, 0, len(room))
	for c := range room {
		out = append(out, c)
	}
	return out
}

// Subscribers returns the number of open streams of an establishment.
func (h *Hub) Subscribers(est int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[est])
}

// onChange runs on the store writer's goroutine; the rebuild happens
// elsewhere so a slow subscriber cannot stall a write.
func (h *Hub) onChange(ch store.Change) {
	var targets []*client
	for _, c := range h.list(ch.EstablishmentID) {
		if c.watches(ch.Dates) {
			targets = append(targets, c)
		}
	}
	if len(targets) == 0 {
		return
	}
	go func() {
		for _, c := range targets {
			h.push(ch.EstablishmentID, c, "week")
		}
	}()
}

func (h *Hub) push(est int64, c *client, typ string) {
	c.mu.Lock()
	anchor := c.week
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), buildTimeout)
	defer cancel()
	w, err := h.builder.BuildWeek(ctx, est, anchor)
	if err != nil {
		h.logger.Warnf("build week %s for establishment %d: %v", anchor, est, err)
		return
	}
	msg := Message{Type: typ, EstablishmentID: est, At: time.Now().UTC().Format(time.RFC3339), Week: w}
	if err := c.writeJSON(msg); err != nil {
		h.remove(est, c)
		_ = c.close()
	}
}

func (c *client) setWeek(anchor string) error {
	from, to, err := grid.Range(anchor)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.week, c.from, c.to = anchor, from, to
	c.mu.Unlock()
	return nil
}

func (c *client) watches(dates []string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, d := range dates {
		if d >= c.from && d <= c.to {
			return true
		}
	}
	return false
}

func (c *client) writeJSON(v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, raw)
}

func (c *client) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(writeWait))
}

func (c *client) close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.Close()
}

// Serve handles GET /v1/establishments/:id/week/stream?date=. The first
// message is the current week; later ones follow every change to it. A
// subscriber moves to another week by sending {"type":"week","date":...}
// and asks for a fresh copy with {"type":"sync"}.
func (h *Hub) Serve(c echo.Context) error {
	est, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || est <= 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid establishment id"})
	}
	anchor := strings.TrimSpace(c.QueryParam("date"))
	if anchor == "" {
		anchor = time.Now().Format(model.DateLayout)
	}
	cl := &client{}
	if err := cl.setWeek(anchor); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "date must be YYYY-MM-DD"})
	}

	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// Upgrade already wrote the error response
		return nil
	}
	cl.conn = conn
	h.add(est, cl)
	defer func() {
		h.remove(est, cl)
		_ = cl.close()
	}()

	conn.SetReadLimit(1 << 16)
	_ = conn.SetReadDeadline(time.Now().Add(readWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readWait))
	})

	h.push(est, cl, "hello")

	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var req request
			if json.Unmarshal(raw, &req) != nil {
				continue
			}
			switch strings.ToLower(strings.TrimSpace(req.Type)) {
			case "week":
				if cl.setWeek(req.Date) != nil {
					continue
				}
			case "sync":
			default:
				continue
			}
			h.push(est, cl, "week")
		}
	}()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-readDone:
			return nil
		case <-c.Request().Context().Done():
			return nil
		case <-ticker.C:
			if err := cl.ping(); err != nil {
				return nil
			}
		}
	}
}
