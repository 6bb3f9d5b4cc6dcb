package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// EventProducer publishes events to a RabbitMQ topic exchange.
type EventProducer struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
	log      zerolog.Logger
}

// NewEventProducer dials amqpURL and declares exchange as a durable topic exchange.
func NewEventProducer(amqpURL, exchange string, log zerolog.Logger) (*EventProducer, error) {
	cleanURL, err := SanitizeURL(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("NewEventProducer: %w", err)
	}

	conn, err := amqp.DialConfig(cleanURL, amqp.Config{Dial: amqp.DefaultDial(10 * time.Second)})
	if err != nil {
		return nil, fmt.Errorf("NewEventProducer: dialing broker: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("NewEventProducer: opening channel: %w", err)
	}

	if err := channel.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("NewEventProducer: declaring exchange %s: %w", exchange, err)
	}

	return &EventProducer{conn: conn, channel: channel, exchange: exchange, log: log}, nil
}

// Publish sends body as JSON to the producer's exchange with routingKey.
func (p *EventProducer) Publish(ctx context.Context, routingKey string, body interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("Publish: encoding payload: %w", err)
	}

	if err := p.channel.PublishWithContext(ctx, p.exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Body:         payload,
	}); err != nil {
		return fmt.Errorf("Publish: %w", err)
	}

	p.log.Debug().Str("exchange", p.exchange).Str("routing_key", routingKey).Msg("published event")
	return nil
}

// PublishImportCompleted implements Publisher.
func (p *EventProducer) PublishImportCompleted(ctx context.Context, ev ImportCompleted) error {
	return p.Publish(ctx, RoutingKeyImportCompleted, ev)
}

// Close releases channel and connection resources.
func (p *EventProducer) Close() {
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		p.conn.Close()
	}
}

// NewPublisher returns an EventProducer when amqpURL is set and reachable,
// and a NoopPublisher otherwise.
func NewPublisher(amqpURL, exchange string, log zerolog.Logger) Publisher {
	if strings.TrimSpace(amqpURL) == "" {
		return NoopPublisher{}
	}
	p, err := NewEventProducer(amqpURL, exchange, log)
	if err != nil {
		log.Warn().Err(err).Msg("event broker unavailable, import events will not be published")
		return NoopPublisher{}
	}
	return p
}

// SanitizeURL strips quotes and leading junk from a broker URL and checks its scheme.
func SanitizeURL(raw string) (string, error) {
	clean := strings.TrimSpace(raw)
	clean = strings.Trim(clean, "\"'")
	idx := strings.Index(strings.ToLower(clean), "amqp")
	if idx > 0 {
		clean = clean[idx:]
	}
	parsed, err := url.Parse(clean)
	if err != nil {
		return "", err
	}
	if parsed.Scheme != "amqp" && parsed.Scheme != "amqps" {
		return "", errors.New("AMQP scheme must be either 'amqp://' or 'amqps://'")
	}
	return clean, nil
}

var (
	_ Publisher = (*EventProducer)(nil)
	_ Publisher = NoopPublisher{}
)
