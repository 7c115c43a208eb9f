package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Handler processes one event.  An error rejects the message without
// requeueing it.
type Handler func(ev TenantChangedEvent) error

// Consume reads the tenant.changed queue until ctx is done, reconnecting
// with backoff whenever the broker goes away.
func Consume(ctx context.Context, url, exchange string, handle Handler, log *zap.Logger) error {
	backoff := time.Second
	for {
		conn, err := amqp.Dial(url)
		if err != nil {
			log.Warn("event consumer: dial failed", zap.Duration("retry_in", backoff), zap.Error(err))
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = consumeLoop(ctx, conn, exchange, handle, log)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Warn("event consumer: consume loop ended; reconnecting", zap.Error(err))
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func consumeLoop(ctx context.Context, conn *amqp.Connection, exchange string, handle Handler, log *zap.Logger) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		log.Warn("event consumer: set QoS failed", zap.Error(err))
	}
	if err := declare(ch, exchange); err != nil {
		return err
	}
	msgs, err := ch.ConsumeWithContext(ctx, TenantChangedKey, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for d := range msgs {
		if err := dispatch(d.Body, handle); err != nil {
			log.Warn("event consumer: handle message failed", zap.Error(err))
			_ = d.Nack(false, false)
			continue
		}
		_ = d.Ack(false)
	}
	return errors.New("deliveries channel closed")
}

func dispatch(body []byte, handle Handler) error {
	var ev TenantChangedEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	return handle(ev)
}

// AppendToFile returns a Handler that writes one line per event to path,
// creating the file and its directory as needed.
func AppendToFile(path string) Handler {
	return func(ev TenantChangedEvent) error {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fmt.Errorf("mkdir event log: %w", err)
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("open event log: %w", err)
		}
		defer f.Close()

		if _, err := f.WriteString(FormatLine(ev)); err != nil {
			return fmt.Errorf("write event log: %w", err)
		}
		return nil
	}
}

// FormatLine renders ev as a single human readable log line.
func FormatLine(ev TenantChangedEvent) string {
	return fmt.Sprintf("[%s] Tenant %s | tenant_id=%d | tenant=%q | actor_id=%s | actor=%q\n",
		ev.OccurredAt, ev.Action, ev.TenantID, ev.TenantName, ev.ActorID, ev.ActorEmail)
}
