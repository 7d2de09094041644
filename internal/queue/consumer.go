package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

// AuditLogFile is the file, inside the configured directory, that the
// consumer appends one line per event to.
const AuditLogFile = "reservations.log"

// Consumer drains the reservation queue into an append-only audit log.
type Consumer struct {
	url    string
	logDir string
	log    logrus.FieldLogger
}

// NewConsumer returns a Consumer for the broker at url writing to logDir.
func NewConsumer(url, logDir string, log logrus.FieldLogger) *Consumer {
	if url == "" {
		url = DefaultURL
	}
	if logDir == "" {
		logDir = "logs"
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Consumer{url: url, logDir: logDir, log: log.WithField("component", "reservation-consumer")}
}

// Run connects, consumes and reconnects with exponential backoff until ctx
// is cancelled. Messages that cannot be handled are rejected without
// requeue so a poison message cannot spin the loop.
func (c *Consumer) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		conn, err := amqp.Dial(c.url)
		if err != nil {
			c.log.WithError(err).WithField("retry_in", backoff.String()).Warn("failed to dial broker")
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = c.consumeLoop(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.log.WithError(err).Warn("consume loop ended, reconnecting")
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func (c *Consumer) consumeLoop(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		c.log.WithError(err).Warn("set QoS failed")
	}
	if err := declare(ch); err != nil {
		return err
	}
	msgs, err := ch.Consume(ReservationQueue, "", false, false, false, false, nil)
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
			if err := handleMessage(d.Body, c.logDir); err != nil {
				c.log.WithError(err).Error("handle message failed")
				_ = d.Nack(false, false)
				continue
			}
			_ = d.Ack(false)
		}
	}
}

func handleMessage(body []byte, dir string) error {
	var ev ReservationEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	if ev.Type == "" {
		return errors.New("event without type")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}
	f, err := os.OpenFile(filepath.Join(dir, AuditLogFile), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(formatLine(ev)); err != nil {
		return fmt.Errorf("write log: %w", err)
	}
	return nil
}

// formatLine renders ev as one human-friendly line.
func formatLine(ev ReservationEvent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", ev.OccurredAt, ev.Type)
	if ev.Type == EventReservationsExpired {
		fmt.Fprintf(&b, " | count=%d", ev.Count)
	} else {
		fmt.Fprintf(&b, " | reservation_id=%d | initiator_id=%d | beneficiary_id=%d | date=%s | weekday_id=%d | period_id=%d | status=%s",
			ev.ReservationID, ev.InitiatorID, ev.BeneficiaryID, ev.Date, ev.WeekdayID, ev.PeriodID, ev.Status)
		if ev.Reactivated {
			b.WriteString(" | reactivated=true")
		}
	}
	fmt.Fprintf(&b, " | id=%s\n", ev.ID)
	return b.String()
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
