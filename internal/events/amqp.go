package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// AMQPPublisher keeps one connection and channel, redialing after failures.
// Queues are declared durable on first use.
type AMQPPublisher struct {
	url string

	mu       sync.Mutex
	conn     *amqp.Connection
	ch       *amqp.Channel
	declared map[string]bool
	dial     func(url string) (*amqp.Connection, error)
}

func NewAMQPPublisher(url string) *AMQPPublisher {
	return &AMQPPublisher{
		url:      url,
		declared: make(map[string]bool),
		dial:     amqp.Dial,
	}
}

// channel returns an open channel; caller holds mu
func (p *AMQPPublisher) channel() (*amqp.Channel, error) {
	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}
	if p.conn == nil || p.conn.IsClosed() {
		conn, err := p.dial(p.url)
		if err != nil {
			return nil, fmt.Errorf("rabbitmq: dial failed: %w", err)
		}
		p.conn = conn
	}
	ch, err := p.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("rabbitmq: channel open failed: %w", err)
	}
	p.ch = ch
	p.declared = make(map[string]bool)
	return ch, nil
}

func (p *AMQPPublisher) Publish(ctx context.Context, queue string, event any) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("rabbitmq: marshal event failed: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	ch, err := p.channel()
	if err != nil {
		return err
	}

	if !p.declared[queue] {
		if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
			p.ch = nil
			return fmt.Errorf("rabbitmq: queue declare failed: %w", err)
		}
		p.declared[queue] = true
	}

	err = ch.PublishWithContext(ctx, "", queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
	if err != nil {
		p.ch = nil
		return fmt.Errorf("rabbitmq: publish failed: %w", err)
	}
	return nil
}

func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var errs []error
	if p.ch != nil {
		errs = append(errs, p.ch.Close())
		p.ch = nil
	}
	if p.conn != nil {
		errs = append(errs, p.conn.Close())
		p.conn = nil
	}
	return errors.Join(errs...)
}
