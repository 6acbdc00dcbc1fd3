// Package jobs publishes reconciliation events to Pub/Sub.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/pubsub"

	"github.com/marigold-store/api/internal/services"
)

// PubSubPaymentEventPublisher publishes payment events to a Pub/Sub topic.
type PubSubPaymentEventPublisher struct {
	topic   *pubsub.Topic
	marshal func(any) ([]byte, error)
}

var _ services.PaymentEventPublisher = (*PubSubPaymentEventPublisher)(nil)

// NewPubSubPaymentEventPublisher constructs a publisher bound to the topic.
func NewPubSubPaymentEventPublisher(topic *pubsub.Topic) (*PubSubPaymentEventPublisher, error) {
	if topic == nil {
		return nil, errors.New("pubsub payment event publisher: topic is required")
	}
	return &PubSubPaymentEventPublisher{topic: topic, marshal: json.Marshal}, nil
}

// PublishPaymentEvent enqueues one event message and returns the server id.
func (p *PubSubPaymentEventPublisher) PublishPaymentEvent(ctx context.Context, message services.PaymentEventMessage) (string, error) {
	if p == nil || p.topic == nil {
		return "", errors.New("pubsub payment event publisher: not initialised")
	}

	data, err := p.marshal(message)
	if err != nil {
		return "", fmt.Errorf("marshal payment event: %w", err)
	}

	attrs := make(map[string]string)
	setAttr(attrs, "eventId", message.EventID)
	setAttr(attrs, "type", message.Type)
	setAttr(attrs, "orderId", message.OrderID)
	setAttr(attrs, "provider", message.Provider)
	setAttr(attrs, "paymentStatus", message.PaymentStatus)

	result := p.topic.Publish(ctx, &pubsub.Message{Data: data, Attributes: attrs})
	id, err := result.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish payment event: %w", err)
	}
	return id, nil
}

func setAttr(attrs map[string]string, key, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}
