// Package remote implements the source contracts against the collaborator
// reservation REST API.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/iliyamo/restaurant-reservation/internal/model"
	"github.com/iliyamo/restaurant-reservation/internal/source"
)

// DefaultTimeout bounds every request to the collaborator API.
const DefaultTimeout = 10 * time.Second

// Error is a failed call to the collaborator API. A non-2xx answer carries
// Status and the server's own Message, shown to the operator unchanged. A
// request that never got an answer has Status 0 and the cause in Err.
type Error struct {
	Method  string
	Path    string
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Status == 0 && e.Err != nil {
		return fmt.Sprintf("%s %s: %v", e.Method, e.Path, e.Err)
	}
	return fmt.Sprintf("%s %s: status %d", e.Method, e.Path, e.Status)
}

// Temporary reports whether the same request may succeed later: the API was
// unreachable, throttled us or failed on its side.
func (e *Error) Temporary() bool {
	return e.Status == 0 || e.Status == http.StatusTooManyRequests || e.Status >= 500
}

// Unwrap maps the status onto the source sentinels so callers can use
// errors.Is without knowing about HTTP.
func (e *Error) Unwrap() error {
	if e.Status == 0 {
		return e.Err
	}
	switch e.Status {
	case http.StatusConflict:
		return source.ErrConflict
	case http.StatusNotFound:
		return source.ErrNotFound
	}
	return nil
}

// Client talks to the collaborator API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithToken sends token as a bearer credential.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// New creates a client for the API rooted at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var (
	_ source.Backend         = (*Client)(nil)
	_ source.GuestListSource = (*Client)(nil)
)

func (c *Client) ListAreas(ctx context.Context, establishmentID int64) ([]model.Area, error) {
	q := url.Values{}
	q.Set("establishment_id", strconv.FormatInt(establishmentID, 10))
	var wire []areaWire
	if err := c.getList(ctx, "/areas", q, &wire); err != nil {
		return nil, err
	}
	out := make([]model.Area, 0, len(wire))
	for _, w := range wire {
		a := w.model()
		if a.EstablishmentID == 0 {
			a.EstablishmentID = establishmentID
		}
		out = append(out, a)
	}
	return out, nil
}

func (c *Client) ListTables(ctx context.Context, tq source.TableQuery) ([]model.Table, error) {
	q := url.Values{}
	if tq.Date != "" {
		q.Set("date", tq.Date)
	}
	if tq.EstablishmentID != 0 {
		q.Set("establishment_id", strconv.FormatInt(tq.EstablishmentID, 10))
	}
	var wire []tableWire
	path := fmt.Sprintf("/tables/%d/availability", tq.AreaID)
	if err := c.getList(ctx, path, q, &wire); err != nil {
		return nil, err
	}
	out := make([]model.Table, 0, len(wire))
	for _, w := range wire {
		t := w.model()
		if t.AreaID == 0 {
			t.AreaID = tq.AreaID
		}
		out = append(out, t)
	}
	return out, nil
}

func (c *Client) ListReservations(ctx context.Context, f source.ReservationFilter) ([]model.Reservation, error) {
	q := url.Values{}
	if f.EstablishmentID != 0 {
		q.Set("establishment_id", strconv.FormatInt(f.EstablishmentID, 10))
	}
	if f.AreaID != 0 {
		q.Set("area_id", strconv.FormatInt(f.AreaID, 10))
	}
	if f.Date != "" {
		q.Set("reservation_date", f.Date)
	}
	if f.DateFrom != "" {
		q.Set("date_from", f.DateFrom)
	}
	if f.DateTo != "" {
		q.Set("date_to", f.DateTo)
	}
	if f.Status != "" {
		q.Set("status", string(f.Status))
	}
	var wire []reservationWire
	if err := c.getList(ctx, "/reservations", q, &wire); err != nil {
		return nil, err
	}
	out := make([]model.Reservation, 0, len(wire))
	for _, w := range wire {
		out = append(out, w.model())
	}
	return out, nil
}

func (c *Client) GetReservation(ctx context.Context, id int64) (model.Reservation, error) {
	var w reservationWire
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/reservations/%d", id), nil, nil, "", &w); err != nil {
		return model.Reservation{}, err
	}
	return w.model(), nil
}

func (c *Client) CreateReservation(ctx context.Context, r model.Reservation, opts source.WriteOptions) (model.Reservation, error) {
	var w reservationWire
	if err := c.do(ctx, http.MethodPost, "/reservations", nil, reservationToWire(r), opts.IdempotencyKey, &w); err != nil {
		return model.Reservation{}, err
	}
	return merged(r, w), nil
}

func (c *Client) UpdateReservation(ctx context.Context, r model.Reservation, opts source.WriteOptions) (model.Reservation, error) {
	var w reservationWire
	path := fmt.Sprintf("/reservations/%d", r.ID)
	if err := c.do(ctx, http.MethodPut, path, nil, reservationToWire(r), opts.IdempotencyKey, &w); err != nil {
		return model.Reservation{}, err
	}
	return merged(r, w), nil
}

// merged prefers the server's copy but keeps what was sent when the API
// answers with a bare acknowledgement.
func merged(sent model.Reservation, w reservationWire) model.Reservation {
	if w.ClientName == "" && w.ReservationDate == "" {
		out := sent.Clone()
		if w.ID != 0 {
			out.ID = w.ID
		}
		return out
	}
	return w.model()
}

func (c *Client) ListWaitlist(ctx context.Context, establishmentID int64) ([]model.WaitlistEntry, error) {
	q := url.Values{}
	q.Set("establishment_id", strconv.FormatInt(establishmentID, 10))
	var wire []waitlistWire
	if err := c.getList(ctx, "/waitlist", q, &wire); err != nil {
		return nil, err
	}
	out := make([]model.WaitlistEntry, 0, len(wire))
	for _, w := range wire {
		e := w.model()
		if e.EstablishmentID == 0 {
			e.EstablishmentID = establishmentID
		}
		out = append(out, e)
	}
	return out, nil
}

func (c *Client) CreateWaitlistEntry(ctx context.Context, e model.WaitlistEntry, opts source.WriteOptions) (model.WaitlistEntry, error) {
	if e.Status == "" {
		e.Status = model.WaitlistWaiting
	}
	var w waitlistWire
	if err := c.do(ctx, http.MethodPost, "/waitlist", nil, waitlistToWire(e), opts.IdempotencyKey, &w); err != nil {
		return model.WaitlistEntry{}, err
	}
	if w.ClientName == "" {
		if w.ID != 0 {
			e.ID = w.ID
		}
		return e, nil
	}
	return w.model(), nil
}

func (c *Client) UpdateWaitlistStatus(ctx context.Context, id int64, status model.WaitlistStatus) (model.WaitlistEntry, error) {
	var w waitlistWire
	body := map[string]string{"status": string(status)}
	if err := c.do(ctx, http.MethodPut, fmt.Sprintf("/waitlist/%d", id), nil, body, "", &w); err != nil {
		return model.WaitlistEntry{}, err
	}
	e := w.model()
	if e.ID == 0 {
		e.ID = id
	}
	e.Status = status
	return e, nil
}

// CreateGuestList asks for one list per reservation. A redelivered event
// repeats the request, so a 409 means the list already exists.
func (c *Client) CreateGuestList(ctx context.Context, req source.GuestListRequest) error {
	key := fmt.Sprintf("guest-list-%d", req.ReservationID)
	err := c.do(ctx, http.MethodPost, "/guest-lists", nil, req, key, nil)
	if errors.Is(err, source.ErrConflict) {
		return nil
	}
	return err
}

// getList decodes either a bare JSON array or an envelope of the form
// {"data": [...]}, both of which the API returns depending on the endpoint.
func (c *Client) getList(ctx context.Context, path string, q url.Values, out any) error {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, path, q, nil, "", &raw); err != nil {
		return err
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if raw[0] == '{' {
		var env struct {
			Data json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(raw, &env); err != nil {
			return fmt.Errorf("decode %s: %w", path, err)
		}
		raw = env.Data
		if len(raw) == 0 || string(raw) == "null" {
			return nil
		}
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, q url.Values, body any, idempotencyKey string, out any) error {
	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &Error{Method: method, Path: path, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &Error{Method: method, Path: path, Status: resp.StatusCode, Message: readMessage(resp.Body)}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// readMessage extracts the server's message from {"error": ...},
// {"message": ...} or a plain-text body.
func readMessage(r io.Reader) string {
	b, err := io.ReadAll(io.LimitReader(r, 64<<10))
	if err != nil {
		return ""
	}
	var env struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(b, &env) == nil {
		if env.Error != "" {
			return env.Error
		}
		if env.Message != "" {
			return env.Message
		}
	}
	return strings.TrimSpace(string(b))
}
