package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/hanko-field/orderdesk/internal/services"
)

func newTestTopic(t *testing.T) (*pstest.Server, *pubsub.Topic) {
	t.Helper()
	ctx := context.Background()
	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	client, err := pubsub.NewClient(ctx, "test-project",
		option.WithEndpoint(srv.Addr),
		option.WithoutAuthentication(),
		option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
	)
	if err != nil {
		t.Fatalf("pubsub.NewClient: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	topic, err := client.CreateTopic(ctx, "orderdesk-events")
	if err != nil {
		t.Fatalf("CreateTopic: %v", err)
	}
	return srv, topic
}

func TestPubSubPublisherPublishesEvent(t *testing.T) {
	srv, topic := newTestTopic(t)
	publisher, err := NewPubSubPublisher(topic)
	if err != nil {
		t.Fatalf("NewPubSubPublisher: %v", err)
	}
	defer publisher.Stop()

	occurred := time.Date(2025, 5, 6, 9, 0, 0, 0, time.UTC)
	event := services.DomainEvent{
		Name:       "stock.low",
		ProductID:  "prod_1",
		OccurredAt: occurred,
		Payload:    map[string]any{"remaining": 2},
	}
	if err := publisher.Publish(context.Background(), event); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	messages := srv.Messages()
	if len(messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(messages))
	}
	var payload eventEnvelope
	if err := json.Unmarshal(messages[0].Data, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.Name != "stock.low" || payload.ProductID != "prod_1" || !payload.OccurredAt.Equal(occurred) {
		t.Fatalf("unexpected payload %#v", payload)
	}
	attrs := messages[0].Attributes
	if attrs["event"] != "stock.low" || attrs["productId"] != "prod_1" {
		t.Fatalf("unexpected attributes %v", attrs)
	}
	if _, ok := attrs["orderId"]; ok {
		t.Fatalf("empty order id should not be an attribute")
	}
}

func TestPubSubPublisherRejectsUnnamedEvent(t *testing.T) {
	_, topic := newTestTopic(t)
	publisher, err := NewPubSubPublisher(topic)
	if err != nil {
		t.Fatalf("NewPubSubPublisher: %v", err)
	}
	if err := publisher.Publish(context.Background(), services.DomainEvent{}); err == nil {
		t.Fatalf("expected error for unnamed event")
	}
}

func TestNewPubSubPublisherRequiresTopic(t *testing.T) {
	if _, err := NewPubSubPublisher(nil); err == nil {
		t.Fatalf("expected error")
	}
}
