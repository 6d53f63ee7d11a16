package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/labstack/gommon/log"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/iliyamo/restaurant-reservation/internal/model"
	"github.com/iliyamo/restaurant-reservation/internal/source"
)

// DefaultLogPath is where the consumer appends one line per event.
const DefaultLogPath = "logs/reservations.log"

// DefaultRetryDelay is how long a failed delivery waits before it goes back
// to the queue.
const DefaultRetryDelay = 2 * time.Second

// rememberedEvents bounds the ids kept to skip redelivered audit lines.
const rememberedEvents = 4096

// errMalformed marks a message that no retry can fix.
var errMalformed = errors.New("malformed event")

// Consumer processes reservation events: it asks the guest-list feature to
// prepare a list for new large-party bookings that carry an event tag and
// appends an audit line for each event.
type Consumer struct {
	URL        string
	Guests     source.GuestListSource // optional
	LogPath    string
	RetryDelay time.Duration
	Logger     *log.Logger

	mu     sync.Mutex // serializes appends to LogPath
	logged map[string]bool
	order  []string
}

func (c *Consumer) logger() *log.Logger {
	if c.Logger == nil {
		c.Logger = log.New("eventworker")
		c.Logger.SetOutput(io.Discard)
	}
	return c.Logger
}

// Run dials the broker and consumes until ctx is cancelled, reconnecting
// with backoff when the connection drops.
func (c *Consumer) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		conn, err := amqp.Dial(c.URL)
		if err != nil {
			c.logger().Warnf("dial broker: %v; retrying in %s", err, backoff)
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = c.consume(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.logger().Warnf("consume loop ended: %v; reconnecting", err)
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (c *Consumer) consume(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		c.logger().Warnf("set QoS: %v", err)
	}
	if _, err := ch.QueueDeclare(QueueName, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.Consume(QueueName, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			if err := c.Handle(ctx, d.Body); err != nil {
				if !Retryable(err) {
					c.logger().Errorf("drop message %s: %v", d.MessageId, err)
					_ = d.Nack(false, false)
					continue
				}
				delay := c.RetryDelay
				if delay <= 0 {
					delay = DefaultRetryDelay
				}
				c.logger().Warnf("message %s failed, requeue in %s: %v", d.MessageId, delay, err)
				sleep(ctx, delay)
				_ = d.Nack(false, true)
				continue
			}
			_ = d.Ack(false)
		}
	}
}

// Handle processes one message body. The guest list is requested before
// the audit line is written, so a failed request leaves no trace and the
// redelivered message starts over.
func (c *Consumer) Handle(ctx context.Context, body []byte) error {
	var ev Event
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("%w: %v", errMalformed, err)
	}
	if ev.Type == "" {
		return fmt.Errorf("%w: event without type", errMalformed)
	}
	if wantsGuestList(ev) && c.Guests != nil {
		r := ev.Reservation
		err := c.Guests.CreateGuestList(ctx, source.GuestListRequest{
			ReservationID:   r.ID,
			EstablishmentID: ev.EstablishmentID,
			Date:            r.Date,
			HostName:        r.Client.Name,
			ExpectedGuests:  r.PartySize,
			EventTag:        r.EventTag,
		})
		if err != nil {
			return fmt.Errorf("guest list for reservation %d: %w", r.ID, err)
		}
		c.logger().Infof("guest list requested for reservation %d (%s, %d guests)", r.ID, r.EventTag, r.PartySize)
	}
	return c.audit(ev)
}

// Retryable reports whether a failed message should go back to the queue.
// Malformed events and errors that say they are permanent are dropped.
func Retryable(err error) bool {
	if errors.Is(err, errMalformed) {
		return false
	}
	var t interface{ Temporary() bool }
	if errors.As(err, &t) {
		return t.Temporary()
	}
	return true
}

// wantsGuestList reports whether the event opens a large-party booking with
// an event tag.
func wantsGuestList(ev Event) bool {
	if !ev.LargeParty || ev.Reservation.EventTag == model.EventNone || !ev.Reservation.Status.Active() {
		return false
	}
	return ev.Type == TypeReservationCreated || ev.Type == TypeWaitlistPromoted
}

func formatLine(ev Event) string {
	r := ev.Reservation
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s | event_id=%s | establishment_id=%d | reservation_id=%d | date=%s | time=%s | party=%d | tables=%s | status=%s",
		ev.OccurredAt, ev.Type, ev.ID, ev.EstablishmentID, r.ID, r.Date, r.Time, r.PartySize, model.JoinTables(r.TableNumbers), r.Status)
	if ev.PreviousStatus != "" {
		fmt.Fprintf(&b, " | previous=%s", ev.PreviousStatus)
	}
	if ev.WaitlistEntryID != 0 {
		fmt.Fprintf(&b, " | waitlist_entry_id=%d", ev.WaitlistEntryID)
	}
	if ev.Actor != "" {
		fmt.Fprintf(&b, " | actor=%q", ev.Actor)
	}
	b.WriteByte('\n')
	return b.String()
}

// audit appends the event's line once per event id.
func (c *Consumer) audit(ev Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ev.ID != "" && c.logged[ev.ID] {
		return nil
	}
	if err := c.appendLine(formatLine(ev)); err != nil {
		return err
	}
	if ev.ID != "" {
		c.remember(ev.ID)
	}
	return nil
}

func (c *Consumer) remember(id string) {
	if c.logged == nil {
		c.logged = make(map[string]bool)
	}
	if len(c.order) >= rememberedEvents {
		delete(c.logged, c.order[0])
		c.order = c.order[1:]
	}
	c.logged[id] = true
	c.order = append(c.order, id)
}

// appendLine must be called with mu held.
func (c *Consumer) appendLine(line string) error {
	path := c.LogPath
	if path == "" {
		path = DefaultLogPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir logs: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()
	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("write log: %w", err)
	}
	return nil
}
