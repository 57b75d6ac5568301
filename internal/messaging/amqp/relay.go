// Package amqp relays realtime room events between replicas over a RabbitMQ
// fanout exchange.
package amqp

import (
	"context"
	"sync"
	"time"

	"github.com/go-faster/errors"
	amqp091 "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Config holds relay settings.
type Config struct {
	URL          string        `usage:"RabbitMQ URL; empty disables the cross-replica relay"`
	Exchange     string        `default:"tableorder.realtime" usage:"Fanout exchange for room events"`
	DialAttempts int           `default:"5" usage:"Connection attempts before giving up"`
	DialBackoff  time.Duration `default:"2s" usage:"Base delay between connection attempts"`
}

// Handler processes one relayed message.
type Handler func(ctx context.Context, body []byte) error

// Relay publishes to and consumes from the fanout exchange.
type Relay struct {
	cfg Config
	lg  *zap.Logger

	mu   sync.Mutex
	conn *amqp091.Connection
	pub  *amqp091.Channel
}

// Dial connects to the broker and declares the exchange.
func Dial(ctx context.Context, cfg Config, lg *zap.Logger) (*Relay, error) {
	if cfg.Exchange == "" {
		cfg.Exchange = "tableorder.realtime"
	}
	if cfg.DialAttempts <= 0 {
		cfg.DialAttempts = 1
	}
	r := &Relay{cfg: cfg, lg: lg}
	if err := r.connect(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Relay) connect(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var err error
	for attempt := 1; attempt <= r.cfg.DialAttempts; attempt++ {
		if err = r.connectLocked(); err == nil {
			return nil
		}
		if attempt == r.cfg.DialAttempts {
			break
		}
		wait := time.Duration(attempt) * r.cfg.DialBackoff
		r.lg.Warn("RabbitMQ connection failed, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return errors.Wrapf(err, "connect to rabbitmq after %d attempts", r.cfg.DialAttempts)
}

func (r *Relay) connectLocked() error {
	r.closeLocked()

	conn, err := amqp091.Dial(r.cfg.URL)
	if err != nil {
		return errors.Wrap(err, "dial")
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return errors.Wrap(err, "open channel")
	}
	if err := ch.ExchangeDeclare(
		r.cfg.Exchange, // name
		"fanout",       // type
		true,           // durable
		false,          // auto-deleted
		false,          // internal
		false,          // no-wait
		nil,            // arguments
	); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return errors.Wrapf(err, "declare exchange %s", r.cfg.Exchange)
	}
	r.conn = conn
	r.pub = ch
	return nil
}

func (r *Relay) closeLocked() {
	if r.pub != nil {
		_ = r.pub.Close()
		r.pub = nil
	}
	if r.conn != nil {
		_ = r.conn.Close()
		r.conn = nil
	}
}

// IsClosed reports whether the broker connection is gone.
func (r *Relay) IsClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.conn == nil || r.conn.IsClosed()
}

// Ping fails when the broker connection is closed.
func (r *Relay) Ping(context.Context) error {
	if r.IsClosed() {
		return errors.New("rabbitmq connection closed")
	}
	return nil
}

// Publish sends body to every replica. Messages are transient.
func (r *Relay) Publish(ctx context.Context, body []byte) error {
	if r.IsClosed() {
		if err := r.connect(ctx); err != nil {
			return errors.Wrap(err, "reconnect")
		}
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pub == nil {
		return errors.New("rabbitmq channel closed")
	}
	if err := r.pub.PublishWithContext(ctx,
		r.cfg.Exchange, // exchange
		"",             // routing key (ignored for fanout)
		false,          // mandatory
		false,          // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Transient,
			Timestamp:    time.Now(),
			Body:         body,
		},
	); err != nil {
		return errors.Wrap(err, "publish")
	}
	return nil
}

// Consume delivers every relayed message to handler until ctx is done. Each
// call binds its own exclusive queue, so every replica sees every message.
func (r *Relay) Consume(ctx context.Context, handler Handler) error {
	for {
		err := r.consumeOnce(ctx, handler)
		if ctx.Err() != nil {
			return nil
		}
		r.lg.Warn("Relay consumer interrupted, reconnecting", zap.Error(err))
		if err := r.connect(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.Wrap(err, "reconnect consumer")
		}
	}
}

func (r *Relay) consumeOnce(ctx context.Context, handler Handler) error {
	r.mu.Lock()
	conn := r.conn
	r.mu.Unlock()
	if conn == nil || conn.IsClosed() {
		return errors.New("rabbitmq connection closed")
	}

	ch, err := conn.Channel()
	if err != nil {
		return errors.Wrap(err, "open consumer channel")
	}
	defer func() { _ = ch.Close() }()

	q, err := ch.QueueDeclare(
		"",    // server-named
		false, // durable
		true,  // delete when unused
		true,  // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return errors.Wrap(err, "declare queue")
	}
	if err := ch.QueueBind(q.Name, "", r.cfg.Exchange, false, nil); err != nil {
		return errors.Wrap(err, "bind queue")
	}
	msgs, err := ch.ConsumeWithContext(ctx,
		q.Name, // queue
		"",     // consumer
		true,   // auto-ack
		true,   // exclusive
		false,  // no-local
		false,  // no-wait
		nil,    // args
	)
	if err != nil {
		return errors.Wrap(err, "consume")
	}

	r.lg.Info("Relay consumer started", zap.String("queue", q.Name), zap.String("exchange", r.cfg.Exchange))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("delivery channel closed")
			}
			if err := handler(ctx, d.Body); err != nil {
				r.lg.Warn("Relay message rejected", zap.Error(err), zap.Int("size", len(d.Body)))
			}
		}
	}
}

// Close closes the broker connection.
func (r *Relay) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closeLocked()
	return nil
}
