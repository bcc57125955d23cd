package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"ticket-inventory/internal/models"
)

type Producer struct {
	Writer *kafka.Writer
}

func NewProducer(brokers []string, topic string) *Producer {
	writer := kafka.NewWriter(kafka.WriterConfig{
		Brokers: brokers,
		Topic:   topic,
	})
	return &Producer{Writer: writer}
}

// TransitionEvent is the wire shape consumed by reporting and notification
// services downstream.
type TransitionEvent struct {
	Type          string    `json:"type"`
	TicketID      string    `json:"ticket_id"`
	TicketNumber  string    `json:"ticket_number"`
	EventID       string    `json:"event_id"`
	State         string    `json:"state"`
	PriceSnapshot int64     `json:"price_snapshot"`
	AdmittedAt    time.Time `json:"admitted_at,omitempty"`
	AdmittedBy    string    `json:"admitted_by,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

func (p *Producer) publish(eventType string, ticket models.Ticket) error {
	msg := TransitionEvent{
		Type:          eventType,
		TicketID:      ticket.ID,
		TicketNumber:  ticket.TicketNumber,
		EventID:       ticket.EventID,
		State:         string(ticket.State),
		PriceSnapshot: ticket.PriceSnapshot,
		AdmittedAt:    ticket.AdmittedAt,
		AdmittedBy:    ticket.AdmittedBy,
		OccurredAt:    time.Now(),
	}
	msgBytes, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	return p.Writer.WriteMessages(context.Background(),
		kafka.Message{
			Key:   []byte(ticket.ID),
			Value: msgBytes,
		},
	)
}

func (p *Producer) PublishTicketIssued(ticket models.Ticket) error {
	return p.publish("ticket_issued", ticket)
}

func (p *Producer) PublishTicketCancelled(ticket models.Ticket) error {
	return p.publish("ticket_cancelled", ticket)
}

func (p *Producer) PublishTicketReinstated(ticket models.Ticket) error {
	return p.publish("ticket_reinstated", ticket)
}

func (p *Producer) PublishTicketAdmitted(ticket models.Ticket) error {
	return p.publish("ticket_admitted", ticket)
}

func (p *Producer) PublishTicketDeleted(ticket models.Ticket) error {
	return p.publish("ticket_deleted", ticket)
}

func (p *Producer) Close() error {
	return p.Writer.Close()
}
