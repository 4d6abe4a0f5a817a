package cron

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/giftdrop-backend/pkg/logger"
)

const (
	defaultInvoiceRetention    = 24 * time.Hour
	defaultOutboxRetentionDays = 30
	defaultOutboxMinAttempts   = 10
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type invoicePruner interface {
	DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// InvoiceRetentionJobParams configure pruning of settled invoices.
type InvoiceRetentionJobParams struct {
	Logger    *logger.Logger
	Invoices  invoicePruner
	Retention time.Duration
}

// NewInvoiceRetentionJob deletes paid and expired invoices whose expiry is
// older than the retention window. Pending invoices are never touched.
func NewInvoiceRetentionJob(params InvoiceRetentionJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Invoices == nil {
		return nil, fmt.Errorf("invoice repository required")
	}
	retention := params.Retention
	if retention <= 0 {
		retention = defaultInvoiceRetention
	}
	return &invoiceRetentionJob{
		logg:      params.Logger,
		invoices:  params.Invoices,
		retention: retention,
		now:       func() time.Time { return time.Now().UTC() },
	}, nil
}

type invoiceRetentionJob struct {
	logg      *logger.Logger
	invoices  invoicePruner
	retention time.Duration
	now       func() time.Time
}

func (j *invoiceRetentionJob) Name() string { return "invoice-retention" }

func (j *invoiceRetentionJob) Run(ctx context.Context) error {
	cutoff := j.now().Add(-j.retention)
	deleted, err := j.invoices.DeleteTerminalBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("invoice retention: %w", err)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":       cutoff,
		"rows_deleted": deleted,
	})
	j.logg.Info(logCtx, "invoice retention cleanup complete")
	return nil
}

type outboxPruner interface {
	DeletePublishedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time, minAttemptCount int) (int64, error)
}

// OutboxRetentionJobParams configure pruning of delivered notifications.
type OutboxRetentionJobParams struct {
	Logger        *logger.Logger
	DB            txRunner
	Outbox        outboxPruner
	RetentionDays int
	MinAttempts   int
}

// NewOutboxRetentionJob removes outbox rows that were published, or that
// exhausted their delivery attempts, before the retention window.
func NewOutboxRetentionJob(params OutboxRetentionJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox repository required")
	}
	days := params.RetentionDays
	if days <= 0 {
		days = defaultOutboxRetentionDays
	}
	attempts := params.MinAttempts
	if attempts <= 0 {
		attempts = defaultOutboxMinAttempts
	}
	return &outboxRetentionJob{
		logg:        params.Logger,
		db:          params.DB,
		outbox:      params.Outbox,
		days:        days,
		minAttempts: attempts,
		now:         func() time.Time { return time.Now().UTC() },
	}, nil
}

type outboxRetentionJob struct {
	logg        *logger.Logger
	db          txRunner
	outbox      outboxPruner
	days        int
	minAttempts int
	now         func() time.Time
}

func (j *outboxRetentionJob) Name() string { return "outbox-retention" }

func (j *outboxRetentionJob) Run(ctx context.Context) error {
	cutoff := j.now().AddDate(0, 0, -j.days)
	var deleted int64
	err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := j.outbox.DeletePublishedBefore(ctx, tx, cutoff, j.minAttempts)
		deleted = rows
		return err
	})
	if err != nil {
		return fmt.Errorf("outbox retention: %w", err)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":         cutoff,
		"retention_days": j.days,
		"min_attempts":   j.minAttempts,
		"rows_deleted":   deleted,
	})
	j.logg.Info(logCtx, "outbox retention cleanup complete")
	return nil
}
