package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/iliyamo/herdbook/internal/queue"
)

// VerificationNotifier hands a verification email off for asynchronous
// delivery.  Implementations must not block the caller on the broker and
// must not report failures back.
type VerificationNotifier interface {
	NotifyVerification(ctx context.Context, ev queue.VerificationEmailEvent)
}

// MailPublisher publishes verification events to a durable RabbitMQ queue.
type MailPublisher struct {
	url     string
	queue   string
	timeout time.Duration
	log     *slog.Logger
	wg      sync.WaitGroup
}

// NewMailPublisher publishes to queueName on the broker at url.
func NewMailPublisher(url, queueName string, logger *slog.Logger) *MailPublisher {
	return &MailPublisher{
		url:     url,
		queue:   queueName,
		timeout: 5 * time.Second,
		log:     logger.With("component", "mail-publisher", "queue", queueName),
	}
}

// NotifyVerification publishes in the background.  A failure is logged and
// counted only.
func (p *MailPublisher) NotifyVerification(ctx context.Context, ev queue.VerificationEmailEvent) {
	ctx = context.WithoutCancel(ctx)
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		pubCtx, cancel := context.WithTimeout(ctx, p.timeout)
		defer cancel()
		if err := p.Publish(pubCtx, ev); err != nil {
			RecordMailResult("publish_failed")
			p.log.Warn("publish verification email failed", "email", ev.Email, "err", err)
			return
		}
		RecordMailResult("queued")
	}()
}

// Wait blocks until in-flight publishes have finished.  Called on shutdown.
func (p *MailPublisher) Wait() { p.wg.Wait() }

// Publish sends one persistent JSON message to the queue, declaring it
// first (idempotent).
func (p *MailPublisher) Publish(ctx context.Context, ev queue.VerificationEmailEvent) error {
	conn, err := amqp.DialConfig(p.url, amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
		Dial:      amqp.DefaultDial(p.timeout),
	})
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		return err
	}
	defer func() { _ = ch.Close() }()

	if _, err := ch.QueueDeclare(
		p.queue, // name
		true,    // durable
		false,   // autoDelete
		false,   // exclusive
		false,   // noWait
		nil,     // args
	); err != nil {
		return err
	}

	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return ch.PublishWithContext(ctx, "", p.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
}
