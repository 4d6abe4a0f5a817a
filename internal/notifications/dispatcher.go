// Package notifications delivers outbox events as Telegram messages.
package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/giftdrop-backend/internal/users"
	"github.com/angelmondragon/giftdrop-backend/pkg/db/models"
	"github.com/angelmondragon/giftdrop-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/giftdrop-backend/pkg/errors"
	"github.com/angelmondragon/giftdrop-backend/pkg/logger"
	"github.com/angelmondragon/giftdrop-backend/pkg/outbox"
	"github.com/angelmondragon/giftdrop-backend/pkg/outbox/payloads"
)

const (
	ConsumerName = "notification-worker"

	defaultBatchSize   = 50
	defaultPoll        = 500 * time.Millisecond
	defaultMaxAttempts = 10
	defaultSendTimeout = 15 * time.Second
	maxBackoff         = 10 * time.Second
	jitterWindow       = 250 * time.Millisecond
)

var jitterSource = rand.New(rand.NewSource(time.Now().UnixNano()))

type dbClient interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxRepository interface {
	FetchDeliverable(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublished(tx *gorm.DB, id uuid.UUID, at time.Time) error
	MarkFailed(tx *gorm.DB, id uuid.UUID, err error) error
	MarkAbandoned(tx *gorm.DB, id uuid.UUID, err error, maxAttempts int) error
}

type decoder interface {
	Decode(eventType enums.OutboxEventType, version int, payload json.RawMessage) (any, error)
}

type processedGuard interface {
	CheckAndMark(ctx context.Context, id string) (bool, error)
	Forget(ctx context.Context, id string) error
}

type lifecycleNotifier interface {
	NotifyPurchase(ctx context.Context, telegramID int64, giftName string) error
	NotifyReceipt(ctx context.Context, buyerTelegramID int64, giftName, receiverName string) error
}

type deliveryObserver interface {
	NotificationDelivered(event string, err error)
}

type DispatcherParams struct {
	Logger      *logger.Logger
	DB          dbClient
	Outbox      outboxRepository
	Registry    decoder
	Guard       processedGuard
	Notifier    lifecycleNotifier
	Users       *users.Repository
	Metrics     deliveryObserver
	BatchSize   int
	Poll        time.Duration
	MaxAttempts int
}

// Dispatcher drains committed outbox rows. Each row is delivered at most once
// per event id when a guard is configured; failures bump attempt_count and
// the row is retried on a later batch until MaxAttempts.
type Dispatcher struct {
	logg        *logger.Logger
	db          dbClient
	outbox      outboxRepository
	registry    decoder
	guard       processedGuard
	notifier    lifecycleNotifier
	users       *users.Repository
	metrics     deliveryObserver
	batchSize   int
	poll        time.Duration
	maxAttempts int
	now         func() time.Time
}

func NewDispatcher(params DispatcherParams) (*Dispatcher, error) {
	switch {
	case params.Logger == nil:
		return nil, errors.New("logger is required")
	case params.DB == nil:
		return nil, errors.New("database client is required")
	case params.Outbox == nil:
		return nil, errors.New("outbox repository is required")
	case params.Notifier == nil:
		return nil, errors.New("notifier is required")
	case params.Users == nil:
		return nil, errors.New("user repository is required")
	}
	registry := params.Registry
	if registry == nil {
		registry = outbox.DefaultRegistry()
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	poll := params.Poll
	if poll <= 0 {
		poll = defaultPoll
	}
	attempts := params.MaxAttempts
	if attempts <= 0 {
		attempts = defaultMaxAttempts
	}
	return &Dispatcher{
		logg:        params.Logger,
		db:          params.DB,
		outbox:      params.Outbox,
		registry:    registry,
		guard:       params.Guard,
		notifier:    params.Notifier,
		users:       params.Users,
		metrics:     params.Metrics,
		batchSize:   batch,
		poll:        poll,
		maxAttempts: attempts,
		now:         func() time.Time { return time.Now().UTC() },
	}, nil
}

// Run polls until ctx is canceled, backing off after batch errors.
func (d *Dispatcher) Run(ctx context.Context) error {
	backoff := d.poll
	for {
		select {
		case <-ctx.Done():
			d.logg.Info(ctx, "notification dispatcher stopped")
			return ctx.Err()
		default:
		}

		processed, err := d.ProcessBatch(ctx)
		if err != nil {
			d.logg.Error(ctx, "notification batch error", err)
			backoff = nextBackoff(backoff, d.poll, maxBackoff)
			if err := sleep(ctx, withJitter(backoff)); err != nil {
				return err
			}
			continue
		}
		backoff = d.poll
		if processed > 0 {
			continue
		}
		if err := sleep(ctx, withJitter(d.poll)); err != nil {
			return err
		}
	}
}

// ProcessBatch delivers one batch and reports how many rows it handled.
func (d *Dispatcher) ProcessBatch(ctx context.Context) (int, error) {
	handled := 0
	err := d.db.WithTx(ctx, func(tx *gorm.DB) error {
		events, err := d.outbox.FetchDeliverable(tx, d.batchSize, d.maxAttempts)
		if err != nil {
			return err
		}
		handled = len(events)
		for _, event := range events {
			if err := d.handle(ctx, tx, event); err != nil {
				return err
			}
		}
		return nil
	})
	return handled, err
}

// handle only returns bookkeeping errors; delivery errors are recorded on the row.
func (d *Dispatcher) handle(ctx context.Context, tx *gorm.DB, event models.OutboxEvent) error {
	fields := map[string]any{
		"outbox_id":     event.ID.String(),
		"event_type":    event.EventType,
		"aggregate_id":  event.AggregateID.String(),
		"attempt_count": event.AttemptCount,
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(event.Payload, &envelope); err != nil {
		return d.fail(ctx, tx, event, fields, malformed(err, "decode envelope"))
	}
	eventID, err := envelope.EventUUID()
	if err != nil {
		return d.fail(ctx, tx, event, fields, malformed(err, "event id"))
	}
	fields["event_id"] = eventID.String()

	decoded, err := d.registry.Decode(event.EventType, envelope.Version, envelope.Data)
	if err != nil {
		return d.fail(ctx, tx, event, fields, malformed(err, "decode payload"))
	}

	if d.guard != nil {
		seen, err := d.guard.CheckAndMark(ctx, eventID.String())
		if err != nil {
			return d.fail(ctx, tx, event, fields, fmt.Errorf("idempotency check: %w", err))
		}
		if seen {
			d.logg.Info(d.logg.WithFields(ctx, fields), "notification already delivered")
			return d.outbox.MarkPublished(tx, event.ID, d.now())
		}
	}

	d.applyLocal(ctx, tx, decoded, fields)

	deliverErr := d.deliver(ctx, decoded)
	d.observe(event.EventType, deliverErr)
	if deliverErr != nil {
		if d.guard != nil {
			if delErr := d.guard.Forget(ctx, eventID.String()); delErr != nil {
				d.logg.Error(d.logg.WithFields(ctx, fields), "failed to clear idempotency key", delErr)
			}
		}
		return d.fail(ctx, tx, event, fields, deliverErr)
	}

	if err := d.outbox.MarkPublished(tx, event.ID, d.now()); err != nil {
		return fmt.Errorf("mark published %s: %w", event.ID, err)
	}
	d.logg.Info(d.logg.WithFields(ctx, fields), "notification delivered")
	return nil
}

// applyLocal runs the store side of an event in its own savepoint. It commits
// whatever the send outcome is, and its own failure never blocks delivery.
func (d *Dispatcher) applyLocal(ctx context.Context, tx *gorm.DB, decoded any, fields map[string]any) {
	evt, ok := decoded.(*payloads.GiftReceivedEvent)
	if !ok {
		return
	}
	err := tx.Transaction(func(inner *gorm.DB) error {
		_, err := d.users.WithTx(inner).RecomputeRanks(ctx)
		return err
	})
	if err != nil {
		logCtx := d.logg.WithField(d.logg.WithFields(ctx, fields), "receiver_id", evt.ReceiverID.String())
		d.logg.Error(logCtx, "rank recompute failed", err)
	}
}

func (d *Dispatcher) deliver(ctx context.Context, decoded any) error {
	sendCtx, cancel := context.WithTimeout(ctx, defaultSendTimeout)
	defer cancel()

	switch evt := decoded.(type) {
	case *payloads.GiftPurchasedEvent:
		return d.notifier.NotifyPurchase(sendCtx, evt.BuyerTelegramID, evt.GiftName)
	case *payloads.GiftReceivedEvent:
		return d.notifier.NotifyReceipt(sendCtx, evt.BuyerTelegramID, evt.GiftName, evt.ReceiverDisplayName)
	default:
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unsupported payload %T", decoded))
	}
}

func malformed(err error, what string) error {
	return pkgerrors.Wrap(pkgerrors.CodeValidation, err, what)
}

func (d *Dispatcher) fail(ctx context.Context, tx *gorm.DB, event models.OutboxEvent, fields map[string]any, cause error) error {
	next := event.AttemptCount + 1
	fields["attempt_count"] = next
	logCtx := d.logg.WithFields(ctx, fields)
	logCtx = d.logg.WithField(logCtx, "error", cause.Error())

	if !pkgerrors.Retryable(cause) {
		d.logg.Warn(logCtx, "notification abandoned, failure is permanent")
		if err := d.outbox.MarkAbandoned(tx, event.ID, cause, d.maxAttempts); err != nil {
			return fmt.Errorf("mark abandoned %s: %w", event.ID, err)
		}
		return nil
	}
	if next >= d.maxAttempts {
		d.logg.Warn(logCtx, "notification abandoned after max attempts")
	} else {
		d.logg.Warn(logCtx, "notification delivery failed")
	}
	if err := d.outbox.MarkFailed(tx, event.ID, cause); err != nil {
		return fmt.Errorf("mark failure %s: %w", event.ID, err)
	}
	return nil
}

func (d *Dispatcher) observe(eventType enums.OutboxEventType, err error) {
	if d.metrics == nil {
		return
	}
	d.metrics.NotificationDelivered(string(eventType), err)
}

func sleep(ctx context.Context, d time.Duration) error {
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

func nextBackoff(current, base, max time.Duration) time.Duration {
	if current <= 0 {
		current = base
	}
	next := current * 2
	if next > max {
		return max
	}
	return next
}

func withJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d + time.Duration(jitterSource.Int63n(int64(jitterWindow)))
}
