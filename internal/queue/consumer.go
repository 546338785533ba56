package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/iliyamo/herdbook/internal/mail"
)

// Sender delivers a rendered email.
type Sender interface {
	Send(ctx context.Context, msg mail.Message) error
}

// ConsumerConfig wires the mail consumer.
type ConsumerConfig struct {
	URL         string
	Queue       string
	FrontendURL string
	Prefetch    int
	SendTimeout time.Duration
	// OnResult is called once per delivery with "sent", "rejected" or
	// "failed".  Optional.
	OnResult func(result string)
}

// StartMailConsumer connects to RabbitMQ, declares the mail queue (durable)
// and sends one verification email per message.  It reconnects with
// exponential backoff (1s up to 30s) and returns only when ctx is done.
func StartMailConsumer(ctx context.Context, cfg ConsumerConfig, sender Sender, logger *slog.Logger) error {
	if cfg.Prefetch <= 0 {
		cfg.Prefetch = 10
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 30 * time.Second
	}
	logger = logger.With("component", "mail-consumer", "queue", cfg.Queue)

	backoff := time.Second
	for {
		conn, err := amqp.Dial(cfg.URL)
		if err != nil {
			logger.Warn("dial broker failed", "err", err, "retry_in", backoff)
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = consumeLoop(ctx, conn, cfg, sender, logger)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logger.Warn("consume loop ended; reconnecting", "err", err)
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func consumeLoop(ctx context.Context, conn *amqp.Connection, cfg ConsumerConfig, sender Sender, logger *slog.Logger) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(cfg.Prefetch, 0, false); err != nil {
		logger.Warn("set QoS failed", "err", err)
	}
	if _, err := ch.QueueDeclare(cfg.Queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.Consume(cfg.Queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}
	logger.Info("consuming")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			result := "sent"
			if err := HandleDelivery(ctx, d.Body, cfg, sender); err != nil {
				result = "failed"
				if IsMalformed(err) {
					result = "rejected"
				}
				logger.Error("handle message failed", "err", err)
				_ = d.Nack(false, false) // do not requeue; avoids tight redelivery loops
			} else {
				_ = d.Ack(false)
			}
			if cfg.OnResult != nil {
				cfg.OnResult(result)
			}
		}
	}
}

type malformedError struct{ err error }

func (e *malformedError) Error() string { return "malformed event: " + e.err.Error() }
func (e *malformedError) Unwrap() error { return e.err }

// HandleDelivery decodes one message body and sends the email it describes.
func HandleDelivery(ctx context.Context, body []byte, cfg ConsumerConfig, sender Sender) error {
	var ev VerificationEmailEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return &malformedError{err}
	}
	if ev.Email == "" || ev.Token == "" {
		return &malformedError{errors.New("email and token are required")}
	}
	msg, err := mail.VerificationMessage(cfg.FrontendURL, ev.Email, ev.Name, ev.Token)
	if err != nil {
		return err
	}
	sendCtx, cancel := context.WithTimeout(ctx, cfg.SendTimeout)
	defer cancel()
	if err := sender.Send(sendCtx, msg); err != nil {
		return fmt.Errorf("send to %s: %w", ev.Email, err)
	}
	return nil
}

// IsMalformed reports whether err came from an undecodable message.
func IsMalformed(err error) bool {
	var bad *malformedError
	return errors.As(err, &bad)
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
