package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/gemtrade-backend/pkg/config"
	"github.com/angelmondragon/gemtrade-backend/pkg/db/models"
	"github.com/angelmondragon/gemtrade-backend/pkg/logger"
	"github.com/angelmondragon/gemtrade-backend/pkg/metrics"
	"github.com/angelmondragon/gemtrade-backend/pkg/outbox"
)

const (
	fallbackBatchSize   = 50
	fallbackMaxAttempts = 10
	publishDeadline     = 15 * time.Second
	errorCeiling        = 10 * time.Second
	jitterWindow        = 250 * time.Millisecond
)

type dbClient interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type pubSubClient interface {
	Ping(context.Context) error
	SalesTopic() string
	Publisher(name string) *gcppubsub.Publisher
}

type outboxRepository interface {
	FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error
	MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error
}

// errPermanent wraps failures another attempt cannot fix.
var errPermanent = errors.New("permanent publish failure")

type outcome int

const (
	delivered outcome = iota
	retryLater
	parked
)

func (o outcome) String() string {
	switch o {
	case delivered:
		return "delivered"
	case retryLater:
		return "retry"
	default:
		return "parked"
	}
}

// batchStats counts what happened to each claimed row.
type batchStats struct {
	delivered, retried, parked int
}

func (b *batchStats) add(o outcome) {
	switch o {
	case delivered:
		b.delivered++
	case retryLater:
		b.retried++
	default:
		b.parked++
	}
}

func (b batchStats) claimed() int {
	return b.delivered + b.retried + b.parked
}

type ServiceParams struct {
	Config           *config.Config
	Logger           *logger.Logger
	Metrics          *metrics.SaleMetrics
	DB               dbClient
	PubSub           pubSubClient
	Repository       outboxRepository
	PublisherFactory publisherFactory
}

// Service drains outbox_events onto the sales topic. Each batch is claimed
// and settled inside one transaction, so a crash leaves rows unpublished and
// concurrent publishers skip rows another instance holds.
type Service struct {
	logg        *logger.Logger
	metrics     *metrics.SaleMetrics
	db          dbClient
	pubsub      pubSubClient
	repo        outboxRepository
	publisherOf publisherFactory
	topic       string
	batchSize   int
	maxAttempts int
	pace        *pacer
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Config == nil:
		return nil, errors.New("outbox publisher: config is required")
	case params.Logger == nil:
		return nil, errors.New("outbox publisher: logger is required")
	case params.DB == nil:
		return nil, errors.New("outbox publisher: database client is required")
	case params.PubSub == nil:
		return nil, errors.New("outbox publisher: pubsub client is required")
	case params.Repository == nil:
		return nil, errors.New("outbox publisher: repository is required")
	}

	topic := params.PubSub.SalesTopic()
	if topic == "" {
		topic = params.Config.PubSub.SalesTopic
	}
	if topic == "" {
		return nil, errors.New("outbox publisher: sales topic is required")
	}

	factory := params.PublisherFactory
	if factory == nil {
		factory = func(name string) publisher { return publisherFor(params.PubSub.Publisher(name)) }
	}

	cfg := params.Config.Outbox
	return &Service{
		logg:        params.Logger,
		metrics:     params.Metrics,
		db:          params.DB,
		pubsub:      params.PubSub,
		repo:        params.Repository,
		publisherOf: factory,
		topic:       topic,
		batchSize:   positiveOr(cfg.BatchSize, fallbackBatchSize),
		maxAttempts: positiveOr(cfg.MaxAttempts, fallbackMaxAttempts),
		pace:        newPacer(cfg.PollInterval(), errorCeiling),
	}, nil
}

func positiveOr(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}

// Run polls until ctx is cancelled. A full batch is followed immediately by
// the next claim; an empty one waits a poll interval; an error backs off.
func (s *Service) Run(ctx context.Context) error {
	for name, ping := range map[string]func(context.Context) error{"database": s.db.Ping, "pubsub": s.pubsub.Ping} {
		if err := ping(ctx); err != nil {
			s.logg.Error(ctx, name+" not reachable", err)
			return fmt.Errorf("%s ping: %w", name, err)
		}
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		stats, err := s.processBatch(ctx)
		var wait time.Duration
		if err != nil {
			s.logg.Error(ctx, "outbox batch aborted", err)
			wait = s.pace.afterError()
		} else {
			if stats.claimed() > 0 {
				s.logg.Info(s.logg.WithFields(ctx, map[string]any{
					"delivered": stats.delivered,
					"retried":   stats.retried,
					"parked":    stats.parked,
				}), "outbox batch settled")
			}
			wait = s.pace.afterBatch(stats.claimed())
		}

		if err := sleepCtx(ctx, wait); err != nil {
			return err
		}
	}
}

// processBatch claims up to batchSize rows and settles each one. It fails
// only when the claim or a row's bookkeeping fails, which rolls the whole
// batch back for the next poll.
func (s *Service) processBatch(ctx context.Context) (batchStats, error) {
	var stats batchStats
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := s.repo.FetchUnpublishedForPublish(tx, s.batchSize, s.maxAttempts)
		if err != nil {
			return fmt.Errorf("claim outbox rows: %w", err)
		}
		for _, row := range rows {
			result, cause := s.deliver(ctx, row)
			if err := s.settle(ctx, tx, row, result, cause); err != nil {
				return err
			}
			stats.add(result)
		}
		return nil
	})
	return stats, err
}

// deliver publishes one row and classifies the result.
func (s *Service) deliver(ctx context.Context, row models.OutboxEvent) (outcome, error) {
	env, err := outbox.DecodeEnvelope(row.Payload)
	if err != nil {
		return parked, fmt.Errorf("%w: %v", errPermanent, err)
	}

	err = s.publish(ctx, messageFor(row, env))
	switch {
	case err == nil:
		return delivered, nil
	case errors.Is(err, errPermanent):
		return parked, err
	case row.AttemptCount+1 >= s.maxAttempts:
		return parked, fmt.Errorf("gave up after %d attempts: %w", row.AttemptCount+1, err)
	default:
		return retryLater, err
	}
}

func (s *Service) publish(ctx context.Context, msg *gcppubsub.Message) error {
	pub := s.publisherOf(s.topic)
	if pub == nil {
		return fmt.Errorf("%w: no publisher for topic %s", errPermanent, s.topic)
	}
	ctx, cancel := context.WithTimeout(ctx, publishDeadline)
	defer cancel()

	result := pub.Publish(ctx, msg)
	if result == nil {
		return fmt.Errorf("%w: topic %s returned no result", errPermanent, s.topic)
	}
	_, err := result.Get(ctx)
	return err
}

// settle records the outcome on the row. Parked rows keep their last error
// and stay in the table for manual replay.
func (s *Service) settle(ctx context.Context, tx *gorm.DB, row models.OutboxEvent, result outcome, cause error) error {
	s.metrics.IncOutboxPublish(result == delivered)

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"outbox_id":      row.ID.String(),
		"event_type":     row.EventType,
		"aggregate_type": row.AggregateType,
		"aggregate_id":   row.AggregateID.String(),
		"attempt_count":  row.AttemptCount,
		"topic":          s.topic,
		"outcome":        result.String(),
	})
	if cause != nil {
		logCtx = s.logg.WithField(logCtx, "error", cause.Error())
	}

	var err error
	switch result {
	case delivered:
		s.logg.Debug(logCtx, "outbox event published")
		err = s.repo.MarkPublishedTx(tx, row.ID)
	case retryLater:
		s.logg.Warn(logCtx, "outbox publish failed, will retry")
		err = s.repo.MarkFailedTx(tx, row.ID, cause)
	default:
		s.logg.Warn(logCtx, "outbox event parked")
		err = s.repo.MarkTerminalTx(tx, row.ID, cause, s.maxAttempts)
	}
	if err != nil {
		return fmt.Errorf("record %s for outbox row %s: %w", result, row.ID, err)
	}
	return nil
}

// pacer picks the wait between polls: none after a non-empty batch, the poll
// interval when idle, and a doubling delay capped at ceiling after errors.
type pacer struct {
	poll    time.Duration
	ceiling time.Duration
	backoff time.Duration
	jitter  func() time.Duration
}

func newPacer(poll, ceiling time.Duration) *pacer {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	return &pacer{
		poll:    poll,
		ceiling: ceiling,
		jitter:  func() time.Duration { return time.Duration(rng.Int63n(int64(jitterWindow))) },
	}
}

func (p *pacer) afterBatch(claimed int) time.Duration {
	p.backoff = 0
	if claimed > 0 {
		return 0
	}
	return p.poll + p.jitter()
}

func (p *pacer) afterError() time.Duration {
	p.backoff = nextBackoff(p.backoff, p.poll, p.ceiling)
	return p.backoff + p.jitter()
}

func nextBackoff(current, base, ceiling time.Duration) time.Duration {
	if current <= 0 {
		current = base
	}
	if next := current * 2; next < ceiling {
		return next
	}
	return ceiling
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
