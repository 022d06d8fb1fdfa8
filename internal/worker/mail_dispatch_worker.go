package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"bytebits/internal/model"
)

// MailSender is satisfied by mail.Sender.
type MailSender interface {
	Send(job model.MailJob) error
}

// MailDispatchWorker consumes queued mail jobs and delivers them over SMTP,
// keeping slow mail transport off the request path.
type MailDispatchWorker struct {
	conn      *amqp.Connection
	sender    MailSender
	queueName string

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewMailDispatchWorker(conn *amqp.Connection, sender MailSender, queueName string) *MailDispatchWorker {
	return &MailDispatchWorker{
		conn:      conn,
		sender:    sender,
		queueName: queueName,
	}
}

func (w *MailDispatchWorker) Start(ctx context.Context) error {
	if w.cancel != nil {
		return nil
	}

	workerCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	ch, err := w.conn.Channel()
	if err != nil {
		cancel()
		return fmt.Errorf("open worker channel failed: %w", err)
	}

	_, err = ch.QueueDeclare(
		w.queueName,
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("declare worker queue failed: %w", err)
	}

	deliveries, err := ch.Consume(
		w.queueName,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("consume mail queue failed: %w", err)
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer ch.Close()

		for {
			select {
			case <-workerCtx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					return
				}

				var job model.MailJob
				if err := json.Unmarshal(d.Body, &job); err != nil {
					log.Printf("worker decode mail job failed: %v", err)
					_ = d.Nack(false, false)
					continue
				}

				if err := w.sender.Send(job); err != nil {
					log.Printf("worker send mail failed: %v", err)
					_ = d.Nack(false, false)
					continue
				}

				_ = d.Ack(false)
			}
		}
	}()

	return nil
}

func (w *MailDispatchWorker) Close() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}
