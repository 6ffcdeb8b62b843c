package events

import (
	"context"
	"fmt"
	"sync"
	"time"

	"pocketledger/internal/logger"

	amqp "github.com/rabbitmq/amqp091-go"
)

// AMQPPublisher publishes events to a direct exchange bound to one durable queue.
type AMQPPublisher struct {
	mu           sync.Mutex
	conn         *amqp.Connection
	channel      *amqp.Channel
	exchangeName string
	queueName    string
	timeout      time.Duration
}

// NewAMQPPublisher dials url and declares the exchange, queue and binding.
func NewAMQPPublisher(url, exchangeName, queueName string) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial AMQP: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	p := &AMQPPublisher{
		conn:         conn,
		channel:      channel,
		exchangeName: exchangeName,
		queueName:    queueName,
		timeout:      5 * time.Second,
	}
	if err := p.setup(); err != nil {
		p.Close()
		return nil, fmt.Errorf("setup exchange and queue: %w", err)
	}
	return p, nil
}

func (p *AMQPPublisher) setup() error {
	if err := p.channel.ExchangeDeclare(p.exchangeName, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}
	if _, err := p.channel.QueueDeclare(p.queueName, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}
	// Routing key is the queue name.
	if err := p.channel.QueueBind(p.queueName, p.queueName, p.exchangeName, false, nil); err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}
	return nil
}

// PublishExpenseCreated sends msg as a persistent JSON message.
func (p *AMQPPublisher) PublishExpenseCreated(ctx context.Context, msg ExpenseCreated) error {
	body, err := msg.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	p.mu.Lock()
	defer p.mu.Unlock()
	err = p.channel.PublishWithContext(ctx, p.exchangeName, p.queueName, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    msg.PublishedAt,
		Type:         msg.Type,
		MessageId:    msg.ExpenseID,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish message: %w", err)
	}

	logger.Get().Debugw("published event",
		"type", msg.Type, "expense_id", msg.ExpenseID, "exchange", p.exchangeName, "queue", p.queueName)
	return nil
}

// Close closes the channel and the connection.
func (p *AMQPPublisher) Close() error {
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

// NewPublisher returns an AMQP publisher when url is set and a NopPublisher otherwise.
func NewPublisher(url, exchangeName, queueName string) (Publisher, error) {
	if url == "" {
		return NopPublisher{}, nil
	}
	return NewAMQPPublisher(url, exchangeName, queueName)
}
