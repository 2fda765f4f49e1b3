package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	amqp "github.com/rabbitmq/amqp091-go"
)

// HandlerFunc forwards one staff notification to its final destination.
type HandlerFunc func(ctx context.Context, n StaffNotification) error

// Consumer is the part of *amqp.Channel the worker uses.
type Consumer interface {
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
}

// Worker drains the staff queue. Failed or malformed messages are rejected to the DLQ.
type Worker struct {
	Channel Consumer
	Handle  HandlerFunc
}

func NewWorker(ch Consumer, handle HandlerFunc) *Worker {
	return &Worker{
		Channel: ch,
		Handle:  handle,
	}
}

// Start consumes until ctx is done or the channel closes.
func (w *Worker) Start(ctx context.Context, queueName string) error {
	msgs, err := w.Channel.Consume(
		queueName,
		"",    // consumer
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("register consumer on %s: %w", queueName, err)
	}

	log.Printf("[QUEUE] worker consuming '%s'", queueName)
	for {
		select {
		case <-ctx.Done():
			log.Println("[QUEUE] ⚠️ worker stopped")
			return nil
		case d, ok := <-msgs:
			if !ok {
				return fmt.Errorf("consumer channel closed")
			}
			w.process(ctx, d)
		}
	}
}

func (w *Worker) process(ctx context.Context, d amqp.Delivery) {
	var n StaffNotification
	if err := json.Unmarshal(d.Body, &n); err != nil {
		log.Printf("[QUEUE] ❌ invalid JSON: %s", err)
		_ = d.Nack(false, false)
		return
	}

	if err := w.Handle(ctx, n); err != nil {
		log.Printf("[QUEUE] ❌ staff notification for lead %s failed: %s", n.LeadID, err)
		_ = d.Nack(false, false)
		return
	}

	log.Printf("[QUEUE] ✅ staff notified of lead %s", n.LeadID)
	_ = d.Ack(false)
}
