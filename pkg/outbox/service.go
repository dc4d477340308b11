package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/gemtrade-backend/pkg/auth"
	"github.com/angelmondragon/gemtrade-backend/pkg/db/models"
	"github.com/angelmondragon/gemtrade-backend/pkg/enums"
	"github.com/angelmondragon/gemtrade-backend/pkg/logger"
)

const currentVersion = 1

// DomainEvent is what services hand to Emit. AggregateType may be left
// empty; it is derived from EventType. Actor defaults to the authenticated
// subject on ctx.
type DomainEvent struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	AggregateID   uuid.UUID
	Actor         *ActorRef
	Data          any
	OccurredAt    time.Time
}

type Service struct {
	repo *Repository
	logg *logger.Logger
	now  func() time.Time
}

func NewService(repo *Repository, logg *logger.Logger) *Service {
	return &Service{repo: repo, logg: logg, now: time.Now}
}

// Emit queues event. When tx is nil the row is written on the repository's
// own connection; sale operations pass their transaction so the event commits
// with the sale.
func (s *Service) Emit(ctx context.Context, tx *gorm.DB, event DomainEvent) error {
	if err := s.complete(ctx, &event); err != nil {
		return err
	}
	data, err := json.Marshal(event.Data)
	if err != nil {
		return fmt.Errorf("encode %s data: %w", event.EventType, err)
	}
	envelope := PayloadEnvelope{
		Version:    currentVersion,
		EventID:    uuid.NewString(),
		OccurredAt: event.OccurredAt,
		Actor:      event.Actor,
		Data:       data,
	}
	payload, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("encode %s envelope: %w", event.EventType, err)
	}
	row := models.OutboxEvent{
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       payload,
	}
	if err := s.repo.Insert(ctx, tx, row); err != nil {
		return err
	}
	if s.logg != nil {
		s.logg.Debug(s.logg.WithFields(ctx, map[string]any{
			"event_id":       envelope.EventID,
			"event_type":     event.EventType,
			"aggregate_id":   event.AggregateID.String(),
			"aggregate_type": event.AggregateType,
		}), "outbox event queued")
	}
	return nil
}

// complete fills derived fields and rejects events consumers could not route.
func (s *Service) complete(ctx context.Context, event *DomainEvent) error {
	if !event.EventType.IsValid() {
		return fmt.Errorf("unknown event type %q", event.EventType)
	}
	want := event.EventType.Aggregate()
	if event.AggregateType == "" {
		event.AggregateType = want
	}
	if event.AggregateType != want {
		return fmt.Errorf("event %s belongs to %s aggregates, got %s", event.EventType, want, event.AggregateType)
	}
	if event.AggregateID == uuid.Nil {
		return fmt.Errorf("event %s requires an aggregate id", event.EventType)
	}
	if event.Actor == nil {
		if subject := auth.SubjectFromContext(ctx); subject != "" {
			event.Actor = &ActorRef{Subject: subject}
		}
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = s.now()
	}
	event.OccurredAt = event.OccurredAt.UTC()
	return nil
}
