package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"chat-automation/internal/domain"
)

// RabbitInbound читает входящие сообщения из очереди RabbitMQ.
type RabbitInbound struct {
	url   string
	queue string

	mu         sync.Mutex
	conn       *amqp.Connection
	ch         *amqp.Channel
	deliveries <-chan amqp.Delivery
}

var _ domain.InboundQueue = (*RabbitInbound)(nil)

// NewRabbitInbound создаёт потребителя. Соединение открывается при первом Receive.
func NewRabbitInbound(url, queue string) (*RabbitInbound, error) {
	if url == "" {
		return nil, errors.New("amqp url is empty")
	}
	if queue == "" {
		return nil, errors.New("queue name is empty")
	}
	return &RabbitInbound{url: url, queue: queue}, nil
}

func (q *RabbitInbound) consume() (<-chan amqp.Delivery, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.deliveries != nil && q.conn != nil && !q.conn.IsClosed() {
		return q.deliveries, nil
	}
	q.closeLocked()

	conn, err := amqp.Dial(q.url)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	if _, err := ch.QueueDeclare(q.queue, true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp declare %s: %w", q.queue, err)
	}
	if err := ch.Qos(1, 0, false); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp qos: %w", err)
	}
	deliveries, err := ch.Consume(q.queue, "", false, false, false, false, nil)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp consume %s: %w", q.queue, err)
	}
	q.conn, q.ch, q.deliveries = conn, ch, deliveries
	return deliveries, nil
}

// Receive ждёт следующее сообщение. Неразбираемые сообщения отклоняются без возврата в очередь.
func (q *RabbitInbound) Receive(ctx context.Context) (domain.InboundEnvelope, domain.InboundAckFunc, error) {
	deliveries, err := q.consume()
	if err != nil {
		return domain.InboundEnvelope{}, nil, err
	}
	select {
	case <-ctx.Done():
		return domain.InboundEnvelope{}, nil, ctx.Err()
	case d, ok := <-deliveries:
		if !ok {
			q.mu.Lock()
			q.closeLocked()
			q.mu.Unlock()
			return domain.InboundEnvelope{}, nil, errors.New("amqp: delivery channel closed")
		}
		env, err := decodeEnvelope(d.Body)
		if err != nil {
			_ = d.Reject(false)
			return domain.InboundEnvelope{}, nil, err
		}
		return env, deliveryAck(d), nil
	}
}

func deliveryAck(d amqp.Delivery) domain.InboundAckFunc {
	return func(success bool) error {
		if success {
			return d.Ack(false)
		}
		return d.Nack(false, true)
	}
}

// Close закрывает канал и соединение.
func (q *RabbitInbound) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closeLocked()
	return nil
}

func (q *RabbitInbound) closeLocked() {
	if q.ch != nil {
		_ = q.ch.Close()
	}
	if q.conn != nil {
		_ = q.conn.Close()
	}
	q.conn, q.ch, q.deliveries = nil, nil, nil
}
