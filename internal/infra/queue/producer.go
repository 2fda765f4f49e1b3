package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/xavierca1/lead-relay/internal/entity"
	"github.com/xavierca1/lead-relay/internal/usecase"
)

// StaffNotification is the message put on the staff queue for every new lead.
type StaffNotification struct {
	LeadID         string    `json:"lead_id"`
	FullName       string    `json:"full_name"`
	Phone          string    `json:"phone"`
	Email          string    `json:"email"`
	PreferredClass string    `json:"preferred_class"`
	CreatedAt      time.Time `json:"created_at"`
}

func NotificationFromLead(lead entity.Lead) StaffNotification {
	return StaffNotification{
		LeadID:         lead.ID,
		FullName:       lead.FullName,
		Phone:          lead.Phone,
		Email:          lead.Email,
		PreferredClass: lead.PreferredClass,
		CreatedAt:      lead.CreatedAt,
	}
}

func (n StaffNotification) Lead() entity.Lead {
	return entity.Lead{
		ID:             n.LeadID,
		FullName:       n.FullName,
		Phone:          n.Phone,
		Email:          n.Email,
		PreferredClass: n.PreferredClass,
		CreatedAt:      n.CreatedAt,
	}
}

// Publisher is the part of *amqp.Channel the producer uses.
type Publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// StaffPublisher is the STAFF_MESSAGE sender when staff are reached through RabbitMQ.
type StaffPublisher struct {
	Ch Publisher
}

func NewStaffPublisher(ch Publisher) *StaffPublisher {
	return &StaffPublisher{Ch: ch}
}

func (p *StaffPublisher) Send(ctx context.Context, lead entity.Lead) usecase.SendResult {
	if err := p.Publish(ctx, NotificationFromLead(lead)); err != nil {
		log.Printf("[QUEUE] ❌ %v", err)
		return usecase.Failed(err.Error())
	}
	return usecase.Sent()
}

func (p *StaffPublisher) Publish(ctx context.Context, n StaffNotification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encode staff notification: %w", err)
	}

	err = p.Ch.PublishWithContext(ctx,
		ExchangeName,
		RoutingKey,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			MessageId:    n.LeadID,
			Timestamp:    time.Now().UTC(),
			Body:         body,
			DeliveryMode: amqp.Persistent,
		},
	)
	if err != nil {
		return fmt.Errorf("rabbitmq publish: %w", err)
	}
	return nil
}
