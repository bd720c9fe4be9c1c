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

	"github.com/cartaviva/cartaviva-backend/pkg/config"
	"github.com/cartaviva/cartaviva-backend/pkg/db/models"
	"github.com/cartaviva/cartaviva-backend/pkg/enums"
	"github.com/cartaviva/cartaviva-backend/pkg/logger"
	"github.com/cartaviva/cartaviva-backend/pkg/outbox/registry"
)

const (
	defaultBatchSize   = 50
	defaultPollMs      = 500
	defaultMaxAttempts = 10

	publishTimeout = 15 * time.Second
	backoffCeiling = 10 * time.Second
	jitterWindow   = 250 * time.Millisecond
)

var jitterSource = rand.New(rand.NewSource(time.Now().UnixNano()))

type dbClient interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type pubSubClient interface {
	Ping(context.Context) error
	Publisher(name string) *gcppubsub.Publisher
}

type outboxRepository interface {
	FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error
	MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error
}

type dlqRepository interface {
	InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error
}

type registryResolver interface {
	Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error)
}

type topicPublisher interface {
	Publish(context.Context, *gcppubsub.Message) publishHandle
}

type publishHandle interface {
	Get(context.Context) (string, error)
}

// WorkerDeps wires the publisher worker. OpenTopic may be left nil, in
// which case topics are opened through the Pub/Sub client.
type WorkerDeps struct {
	Config    *config.Config
	Logger    *logger.Logger
	DB        dbClient
	PubSub    pubSubClient
	Outbox    outboxRepository
	DLQ       dlqRepository
	Registry  registryResolver
	OpenTopic func(topic string) topicPublisher
}

func (d WorkerDeps) validate() error {
	switch {
	case d.Config == nil:
		return errors.New("config is required")
	case d.Logger == nil:
		return errors.New("logger is required")
	case d.DB == nil:
		return errors.New("database client is required")
	case d.PubSub == nil:
		return errors.New("pubsub client is required")
	case d.Outbox == nil:
		return errors.New("outbox repository is required")
	case d.DLQ == nil:
		return errors.New("dlq repository is required")
	case d.Registry == nil:
		return errors.New("event registry is required")
	}
	return nil
}

// Worker drains the outbox table in batches and publishes each event to
// its registered topic. Rows are locked FOR UPDATE SKIP LOCKED so several
// workers can run side by side.
type Worker struct {
	logg        *logger.Logger
	db          dbClient
	outbox      outboxRepository
	dlq         dlqRepository
	registry    registryResolver
	pubsub      pubSubClient
	openTopic   func(topic string) topicPublisher
	batchSize   int
	maxAttempts int
	poll        time.Duration
}

func NewWorker(deps WorkerDeps) (*Worker, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}

	open := deps.OpenTopic
	if open == nil {
		open = func(topic string) topicPublisher {
			p := deps.PubSub.Publisher(topic)
			if p == nil {
				return nil
			}
			return gcpTopic{p}
		}
	}

	w := &Worker{
		logg:        deps.Logger,
		db:          deps.DB,
		outbox:      deps.Outbox,
		dlq:         deps.DLQ,
		registry:    deps.Registry,
		pubsub:      deps.PubSub,
		openTopic:   open,
		batchSize:   deps.Config.Outbox.BatchSize,
		maxAttempts: deps.Config.Outbox.MaxAttempts,
		poll:        time.Duration(deps.Config.Outbox.PollIntervalMS) * time.Millisecond,
	}
	if w.batchSize <= 0 {
		w.batchSize = defaultBatchSize
	}
	if w.maxAttempts <= 0 {
		w.maxAttempts = defaultMaxAttempts
	}
	if w.poll <= 0 {
		w.poll = defaultPollMs * time.Millisecond
	}
	return w, nil
}

// Run polls until the context is canceled. Batch errors back off
// exponentially up to backoffCeiling; a drained batch resets the pace.
func (w *Worker) Run(ctx context.Context) error {
	if err := w.checkDependencies(ctx); err != nil {
		return err
	}

	backoff := w.poll
	for {
		select {
		case <-ctx.Done():
			w.logg.Info(ctx, "outbox worker stopping")
			return ctx.Err()
		default:
		}

		drained, err := w.drainBatch(ctx)
		if err != nil {
			w.logg.Error(ctx, "outbox batch failed", err)
			backoff = doubleBackoff(backoff, w.poll)
			if err := sleepCtx(ctx, jittered(backoff)); err != nil {
				return err
			}
			continue
		}
		backoff = w.poll

		if drained > 0 {
			continue
		}
		if err := sleepCtx(ctx, jittered(w.poll)); err != nil {
			return err
		}
	}
}

func (w *Worker) checkDependencies(ctx context.Context) error {
	if err := w.db.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	if err := w.pubsub.Ping(ctx); err != nil {
		return fmt.Errorf("pubsub ping failed: %w", err)
	}
	return nil
}

// drainBatch claims one batch inside a transaction and settles every
// claimed event before committing. Returns how many events were claimed.
func (w *Worker) drainBatch(ctx context.Context) (int, error) {
	claimed := 0
	err := w.db.WithTx(ctx, func(tx *gorm.DB) error {
		events, err := w.outbox.FetchUnpublishedForPublish(tx, w.batchSize, w.maxAttempts)
		if err != nil {
			return err
		}
		claimed = len(events)
		for _, event := range events {
			if err := w.settle(ctx, tx, event); err != nil {
				return err
			}
		}
		return nil
	})
	return claimed, err
}

// settle publishes one event and records the outcome on its row. Only
// bookkeeping failures abort the batch; publish failures are absorbed as
// retry or DLQ state.
func (w *Worker) settle(ctx context.Context, tx *gorm.DB, event models.OutboxEvent) error {
	resolved, err := w.registry.Resolve(event)
	if err != nil {
		return w.quarantine(ctx, tx, event, enums.OutboxDLQReasonNonRetryable, err)
	}

	fields := w.eventFields(event)
	fields["topic"] = resolved.Descriptor.Topic
	fields["event_id"] = resolved.Envelope.EventID

	err = w.publish(ctx, event, resolved)
	if err == nil {
		if markErr := w.outbox.MarkPublishedTx(tx, event.ID); markErr != nil {
			return fmt.Errorf("mark published %s: %w", event.ID, markErr)
		}
		w.logg.Info(w.logg.WithFields(ctx, fields), "outbox event published")
		return nil
	}

	var nonRetry registry.NonRetryableError
	if errors.As(err, &nonRetry) {
		return w.quarantine(ctx, tx, event, enums.OutboxDLQReasonNonRetryable, err)
	}

	attempts := event.AttemptCount + 1
	if attempts >= w.maxAttempts {
		return w.quarantine(ctx, tx, event, enums.OutboxDLQReasonMaxAttempts,
			fmt.Errorf("max publish attempts reached: %w", err))
	}

	fields["attempt_count"] = attempts
	logCtx := w.logg.WithField(w.logg.WithFields(ctx, fields), "error", err.Error())
	w.logg.Warn(logCtx, "outbox publish failed")
	if markErr := w.outbox.MarkFailedTx(tx, event.ID, err); markErr != nil {
		return fmt.Errorf("mark failure %s: %w", event.ID, markErr)
	}
	return nil
}

func (w *Worker) publish(ctx context.Context, event models.OutboxEvent, resolved *registry.ResolvedEvent) error {
	topic := resolved.Descriptor.Topic
	pub := w.openTopic(topic)
	if pub == nil {
		return registry.NewNonRetryableError(fmt.Errorf("publisher not configured for topic %s", topic))
	}

	msg := &gcppubsub.Message{
		Data: event.Payload,
		Attributes: map[string]string{
			"event_id":       resolved.Envelope.EventID,
			"event_type":     string(event.EventType),
			"aggregate_type": string(event.AggregateType),
			"aggregate_id":   event.AggregateID.String(),
			"created_at":     event.CreatedAt.Format(time.RFC3339Nano),
		},
	}

	publishCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	handle := pub.Publish(publishCtx, msg)
	if handle == nil {
		return registry.NewNonRetryableError(fmt.Errorf("publisher returned nil for topic %s", topic))
	}
	_, err := handle.Get(publishCtx)
	return err
}

// quarantine copies the event into the DLQ and marks the outbox row
// terminal so it is never claimed again.
func (w *Worker) quarantine(ctx context.Context, tx *gorm.DB, event models.OutboxEvent, reason enums.OutboxDLQErrorReason, cause error) error {
	fields := w.eventFields(event)
	fields["error_reason"] = reason
	logCtx := w.logg.WithField(w.logg.WithFields(ctx, fields), "error", cause.Error())
	w.logg.Warn(logCtx, "outbox event will not be retried")

	msg := cause.Error()
	entry := models.OutboxDLQ{
		EventID:       event.ID,
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       event.Payload,
		ErrorReason:   reason,
		ErrorMessage:  &msg,
		AttemptCount:  event.AttemptCount,
		FailedAt:      time.Now().UTC(),
	}
	if err := w.dlq.InsertTx(tx, entry); err != nil {
		return fmt.Errorf("insert dlq %s: %w", event.ID, err)
	}
	if err := w.outbox.MarkTerminalTx(tx, event.ID, cause, w.maxAttempts); err != nil {
		return fmt.Errorf("mark terminal %s: %w", event.ID, err)
	}
	return nil
}

func (w *Worker) eventFields(event models.OutboxEvent) map[string]any {
	fields := map[string]any{
		"outbox_id":      event.ID.String(),
		"event_type":     event.EventType,
		"aggregate_type": event.AggregateType,
		"aggregate_id":   event.AggregateID.String(),
		"attempt_count":  event.AttemptCount,
	}
	if event.LastError != nil {
		fields["last_error"] = *event.LastError
	}
	return fields
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

func doubleBackoff(current, base time.Duration) time.Duration {
	if current <= 0 {
		current = base
	}
	next := current * 2
	if next > backoffCeiling {
		return backoffCeiling
	}
	return next
}

func jittered(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d + time.Duration(jitterSource.Int63n(int64(jitterWindow)))
}

type gcpTopic struct {
	p *gcppubsub.Publisher
}

func (t gcpTopic) Publish(ctx context.Context, msg *gcppubsub.Message) publishHandle {
	if t.p == nil {
		return nil
	}
	return t.p.Publish(ctx, msg)
}
