// Package events publishes domain events emitted by the order workflow.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"

	"github.com/hanko-field/orderdesk/internal/services"
)

// PubSubPublisher publishes domain events to a Pub/Sub topic.
type PubSubPublisher struct {
	topic   *pubsub.Topic
	marshal func(any) ([]byte, error)
}

type eventEnvelope struct {
	Name       string         `json:"name"`
	OrderID    string         `json:"orderId,omitempty"`
	InvoiceID  string         `json:"invoiceId,omitempty"`
	ProductID  string         `json:"productId,omitempty"`
	OccurredAt time.Time      `json:"occurredAt"`
	Payload    map[string]any `json:"payload,omitempty"`
}

var _ services.EventPublisher = (*PubSubPublisher)(nil)

// NewPubSubPublisher constructs a Pub/Sub backed event publisher.
func NewPubSubPublisher(topic *pubsub.Topic) (*PubSubPublisher, error) {
	if topic == nil {
		return nil, errors.New("pubsub event publisher: topic is required")
	}
	return &PubSubPublisher{topic: topic, marshal: json.Marshal}, nil
}

// Publish sends the event and waits for the server acknowledgement.
func (p *PubSubPublisher) Publish(ctx context.Context, event services.DomainEvent) error {
	if p == nil || p.topic == nil {
		return errors.New("pubsub event publisher: not initialised")
	}
	if strings.TrimSpace(event.Name) == "" {
		return errors.New("pubsub event publisher: event name is required")
	}

	data, err := p.marshal(eventEnvelope{
		Name:       event.Name,
		OrderID:    event.OrderID,
		InvoiceID:  event.InvoiceID,
		ProductID:  event.ProductID,
		OccurredAt: event.OccurredAt.UTC(),
		Payload:    event.Payload,
	})
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", event.Name, err)
	}

	attrs := map[string]string{"event": event.Name}
	setAttr(attrs, "orderId", event.OrderID)
	setAttr(attrs, "invoiceId", event.InvoiceID)
	setAttr(attrs, "productId", event.ProductID)

	result := p.topic.Publish(ctx, &pubsub.Message{Data: data, Attributes: attrs})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish event %s: %w", event.Name, err)
	}
	return nil
}

// Stop flushes pending messages.
func (p *PubSubPublisher) Stop() {
	if p != nil && p.topic != nil {
		p.topic.Stop()
	}
}

func setAttr(attrs map[string]string, key string, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}
