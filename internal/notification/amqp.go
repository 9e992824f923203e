package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

type AMQPConfig struct {
	URL        string
	Exchange   string
	RoutingKey string
}

// AMQPSender hands messages to a mail worker through a topic exchange. Send
// returns once the broker confirms the publish.
type AMQPSender struct {
	conn       *amqp.Connection
	ch         *amqp.Channel
	exchange   string
	routingKey string
	mu         sync.Mutex
}

type envelope struct {
	To      string    `json:"to"`
	Subject string    `json:"subject"`
	Body    string    `json:"body"`
	SentAt  time.Time `json:"sent_at"`
}

func NewAMQPSender(cfg AMQPConfig) (*AMQPSender, error) {
	const op = "notification.NewAMQPSender"

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("%s: dial rabbitmq: %w", op, err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("%s: open channel: %w", op, err)
	}

	if err := ch.ExchangeDeclare(cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("%s: declare exchange: %w", op, err)
	}

	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("%s: enable confirms: %w", op, err)
	}

	return &AMQPSender{
		conn:       conn,
		ch:         ch,
		exchange:   cfg.Exchange,
		routingKey: cfg.RoutingKey,
	}, nil
}

func (s *AMQPSender) Send(ctx context.Context, to, subject, body string) error {
	const op = "notification.AMQPSender.Send"

	msg, err := encodeEnvelope(to, subject, body, time.Now())
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dc, err := s.ch.PublishWithDeferredConfirmWithContext(ctx, s.exchange, s.routingKey, false, false, msg)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	acked, err := dc.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if !acked {
		return fmt.Errorf("%s: %w", op, errors.New("broker did not acknowledge the message"))
	}

	return nil
}

func (s *AMQPSender) Close() error {
	if s.ch != nil {
		_ = s.ch.Close()
	}
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

func encodeEnvelope(to, subject, body string, at time.Time) (amqp.Publishing, error) {
	b, err := json.Marshal(envelope{To: to, Subject: subject, Body: body, SentAt: at.UTC()})
	if err != nil {
		return amqp.Publishing{}, err
	}

	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    at,
		Body:         b,
	}, nil
}
