package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// ExchangeName is the durable topic exchange every event is published to.
const ExchangeName = "photovault.events"

// channel is the subset of *amqp.Channel the publisher uses.
type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// RabbitMQ publishes events as persistent JSON messages.
//
// An AMQP channel must not be used for concurrent publishes, so every
// Publish takes mu. One channel is plenty for photovault's event rate.
type RabbitMQ struct {
	conn     *amqp.Connection
	mu       sync.Mutex
	ch       channel
	exchange string
	timeout  time.Duration
}

// NewRabbitMQ dials uri, opens a channel and declares the exchange.
func NewRabbitMQ(uri string) (*RabbitMQ, error) {
	conn, err := amqp.Dial(uri)
	if err != nil {
		return nil, fmt.Errorf("events: connecting to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("events: opening channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		ExchangeName, // name
		"topic",      // type
		true,         // durable
		false,        // auto-deleted
		false,        // internal
		false,        // no-wait
		nil,          // arguments
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("events: declaring exchange: %w", err)
	}

	p := newRabbitMQ(ch)
	p.conn = conn
	return p, nil
}

func newRabbitMQ(ch channel) *RabbitMQ {
	return &RabbitMQ{ch: ch, exchange: ExchangeName, timeout: 5 * time.Second}
}

func (p *RabbitMQ) Publish(ctx context.Context, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("events: encoding %s: %w", event.Type, err)
	}

	pubCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	p.mu.Lock()
	defer p.mu.Unlock()

	err = p.ch.PublishWithContext(
		pubCtx,
		p.exchange, // exchange
		event.Type, // routing key
		false,      // mandatory
		false,      // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    event.OccurredAt,
			Type:         event.Type,
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("events: publishing %s: %w", event.Type, err)
	}
	return nil
}

func (p *RabbitMQ) Close() error {
	chErr := p.ch.Close()
	if p.conn == nil {
		return chErr
	}
	if err := p.conn.Close(); err != nil {
		return err
	}
	return chErr
}
