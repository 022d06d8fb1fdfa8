package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"bytebits/internal/model"
)

type MailPublisher struct {
	conn      *amqp.Connection
	queueName string
}

func NewMailPublisher(conn *amqp.Connection, queueName string) *MailPublisher {
	return &MailPublisher{
		conn:      conn,
		queueName: queueName,
	}
}

func (p *MailPublisher) Publish(ctx context.Context, job model.MailJob) error {
	ch, err := p.conn.Channel()
	if err != nil {
		return fmt.Errorf("open rabbitmq channel failed: %w", err)
	}
	defer ch.Close()

	_, err = ch.QueueDeclare(
		p.queueName,
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("declare mail queue failed: %w", err)
	}

	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal mail job failed: %w", err)
	}

	if err := ch.PublishWithContext(
		ctx,
		"",
		p.queueName,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         payload,
			DeliveryMode: amqp.Persistent,
		},
	); err != nil {
		return fmt.Errorf("publish mail job failed: %w", err)
	}
	return nil
}
