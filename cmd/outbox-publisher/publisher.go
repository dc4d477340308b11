package main

import (
	"context"
	"errors"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"

	"github.com/angelmondragon/gemtrade-backend/pkg/db/models"
	"github.com/angelmondragon/gemtrade-backend/pkg/outbox"
)

type publisher interface {
	Publish(context.Context, *gcppubsub.Message) publishResult
}

type publishResult interface {
	Get(context.Context) (string, error)
}

type publisherFactory func(topic string) publisher

// messageFor carries the stored payload unchanged. Attributes repeat the
// routing fields so subscribers can filter without decoding the body.
func messageFor(row models.OutboxEvent, env outbox.PayloadEnvelope) *gcppubsub.Message {
	return &gcppubsub.Message{
		Data: row.Payload,
		Attributes: map[string]string{
			"event_id":       env.EventID,
			"event_type":     string(row.EventType),
			"aggregate_type": string(row.AggregateType),
			"aggregate_id":   row.AggregateID.String(),
			"occurred_at":    env.OccurredAt.UTC().Format(time.RFC3339Nano),
		},
	}
}

// topicPublisher adapts a pubsub publisher to the narrow interface the
// service depends on.
type topicPublisher struct {
	inner *gcppubsub.Publisher
}

func publisherFor(p *gcppubsub.Publisher) publisher {
	if p == nil {
		return nil
	}
	return topicPublisher{inner: p}
}

func (p topicPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	return resultOf{inner: p.inner.Publish(ctx, msg)}
}

type resultOf struct {
	inner *gcppubsub.PublishResult
}

func (r resultOf) Get(ctx context.Context) (string, error) {
	if r.inner == nil {
		return "", errors.New("publish returned no result")
	}
	return r.inner.Get(ctx)
}
