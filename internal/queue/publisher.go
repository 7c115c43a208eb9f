package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// channel is the part of *amqp.Channel the publisher uses.
type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

const (
	// DialTimeout bounds the connect and handshake when ctx has no deadline.
	DialTimeout = 5 * time.Second
	// RedialBackoff is how long publishes fail fast after a failed dial.
	RedialBackoff = 30 * time.Second
)

// ErrBrokerUnavailable is returned while the publisher waits out the backoff
// after a failed dial.
var ErrBrokerUnavailable = errors.New("broker unavailable")

// Publisher publishes tenant events to a durable topic exchange.  The
// connection is opened on first use and reopened after any failure.
type Publisher struct {
	exchange string
	log      *zap.Logger
	open     func(ctx context.Context) (channel, func() error, error)
	now      func() time.Time
	backoff  time.Duration

	mu        sync.Mutex
	ch        channel
	close     func() error
	downUntil time.Time
}

// NewPublisher returns a publisher for the broker at url.  Nothing is
// dialed until the first Publish.
func NewPublisher(url, exchange string, log *zap.Logger) *Publisher {
	p := &Publisher{exchange: exchange, log: log, now: time.Now, backoff: RedialBackoff}
	p.open = func(ctx context.Context) (channel, func() error, error) { return dial(ctx, url, exchange) }
	return p
}

// dialTimeout is what is left of ctx, or DialTimeout when ctx has no
// deadline.
func dialTimeout(ctx context.Context) time.Duration {
	d, ok := ctx.Deadline()
	if !ok {
		return DialTimeout
	}
	if left := time.Until(d); left > 0 {
		return left
	}
	return time.Millisecond
}

// dial connects and declares the exchange and the tenant.changed queue
// bound to it, so events are kept even before a consumer first runs.  The
// TCP connect and the AMQP handshake share the deadline of ctx.
func dial(ctx context.Context, url, exchange string) (channel, func() error, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, fmt.Errorf("dial broker: %w", err)
	}
	timeout := dialTimeout(ctx)
	conn, err := amqp.DialConfig(url, amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
		Dial: func(network, addr string) (net.Conn, error) {
			var d net.Dialer
			dctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			c, err := d.DialContext(dctx, network, addr)
			if err != nil {
				return nil, err
			}
			// Cleared by the client once the handshake completes.
			if err := c.SetDeadline(time.Now().Add(timeout)); err != nil {
				_ = c.Close()
				return nil, err
			}
			return c, nil
		},
	})
	if err != nil {
		return nil, nil, fmt.Errorf("dial broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("open channel: %w", err)
	}
	if err := declare(ch, exchange); err != nil {
		_ = conn.Close()
		return nil, nil, err
	}
	return ch, conn.Close, nil
}

func declare(ch *amqp.Channel, exchange string) error {
	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	if _, err := ch.QueueDeclare(TenantChangedKey, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue %s: %w", TenantChangedKey, err)
	}
	if err := ch.QueueBind(TenantChangedKey, TenantChangedKey, exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue %s: %w", TenantChangedKey, err)
	}
	return nil
}

// PublishTenantChanged sends ev as a persistent JSON message.  A failed
// publish drops the connection so the next call dials again.  A failed dial
// makes calls return ErrBrokerUnavailable without dialing until the backoff
// has passed.
func (p *Publisher) PublishTenantChanged(ctx context.Context, ev TenantChangedEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Type:         TenantChangedKey,
		Body:         body,
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch == nil {
		if now := p.now(); now.Before(p.downUntil) {
			return fmt.Errorf("%w until %s", ErrBrokerUnavailable, p.downUntil.Format(time.RFC3339))
		}
		ch, closeFn, err := p.open(ctx)
		if err != nil {
			p.downUntil = p.now().Add(p.backoff)
			return err
		}
		p.ch, p.close = ch, closeFn
		p.downUntil = time.Time{}
	}
	if err := p.ch.PublishWithContext(ctx, p.exchange, TenantChangedKey, false, false, msg); err != nil {
		p.reset()
		return fmt.Errorf("publish %s: %w", TenantChangedKey, err)
	}
	return nil
}

func (p *Publisher) reset() {
	if p.ch == nil {
		return
	}
	_ = p.ch.Close()
	if p.close != nil {
		if err := p.close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			p.log.Debug("close broker connection", zap.Error(err))
		}
	}
	p.ch, p.close = nil, nil
}

// Close releases the connection, if any.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reset()
	return nil
}
