package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/giftdrop-backend/internal/payments"
	"github.com/angelmondragon/giftdrop-backend/pkg/cryptopay"
	"github.com/angelmondragon/giftdrop-backend/pkg/db/models"
	"github.com/angelmondragon/giftdrop-backend/pkg/logger"
)

const (
	defaultSweepBatch     = 50
	defaultGatewayTimeout = 10 * time.Second
)

type invoiceSweeper interface {
	ListSweepable(ctx context.Context, now time.Time, limit int) ([]models.Invoice, error)
	ListElapsed(ctx context.Context, now time.Time, limit int) ([]models.Invoice, error)
	Touch(ctx context.Context, ids []uuid.UUID, at time.Time) error
}

type gatewayReader interface {
	GetInvoices(ctx context.Context, invoiceIDs []string) ([]cryptopay.Invoice, error)
}

type paymentApplier interface {
	ConfirmPaid(ctx context.Context, externalID string, trigger payments.Trigger) (payments.Result, error)
	Expire(ctx context.Context, externalID string, trigger payments.Trigger) (payments.Result, error)
}

// SweepJobParams configure the reconcile and local expiry jobs.
type SweepJobParams struct {
	Logger    *logger.Logger
	Invoices  invoiceSweeper
	Gateway   gatewayReader
	Payments  paymentApplier
	BatchSize int
	Timeout   time.Duration
}

func (p SweepJobParams) validate() error {
	switch {
	case p.Logger == nil:
		return fmt.Errorf("logger required")
	case p.Invoices == nil:
		return fmt.Errorf("invoice repository required")
	case p.Gateway == nil:
		return fmt.Errorf("payment gateway required")
	case p.Payments == nil:
		return fmt.Errorf("payment service required")
	}
	return nil
}

type sweep struct {
	logg     *logger.Logger
	invoices invoiceSweeper
	gateway  gatewayReader
	payments paymentApplier
	batch    int
	timeout  time.Duration
	now      func() time.Time
}

func newSweep(params SweepJobParams) (sweep, error) {
	if err := params.validate(); err != nil {
		return sweep{}, err
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultSweepBatch
	}
	timeout := params.Timeout
	if timeout <= 0 {
		timeout = defaultGatewayTimeout
	}
	return sweep{
		logg:     params.Logger,
		invoices: params.Invoices,
		gateway:  params.Gateway,
		payments: params.Payments,
		batch:    batch,
		timeout:  timeout,
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

// remoteStatuses asks the gateway for the batch in one call bounded by the
// sweep timeout. Ids the gateway does not know are absent from the map.
func (s sweep) remoteStatuses(ctx context.Context, batch []models.Invoice) (map[string]string, error) {
	ids := make([]string, 0, len(batch))
	for _, inv := range batch {
		ids = append(ids, inv.ExternalID)
	}
	gwCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	remote, err := s.gateway.GetInvoices(gwCtx, ids)
	if err != nil {
		return nil, err
	}
	statuses := make(map[string]string, len(remote))
	for _, inv := range remote {
		statuses[inv.InvoiceID] = inv.Status
	}
	return statuses, nil
}

type sweepStats struct {
	paid, expired, active, missing int
}

func (s sweep) logStats(ctx context.Context, msg string, checked int, stats sweepStats) {
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"checked": checked,
		"paid":    stats.paid,
		"expired": stats.expired,
		"active":  stats.active,
		"missing": stats.missing,
	})
	s.logg.Info(logCtx, msg)
}

// NewInvoiceReconcileJob polls the gateway for pending invoices that are still
// inside their payment window.
func NewInvoiceReconcileJob(params SweepJobParams) (Job, error) {
	s, err := newSweep(params)
	if err != nil {
		return nil, err
	}
	return &invoiceReconcileJob{sweep: s}, nil
}

type invoiceReconcileJob struct {
	sweep
}

func (j *invoiceReconcileJob) Name() string { return "invoice-reconcile" }

func (j *invoiceReconcileJob) Run(ctx context.Context) error {
	now := j.now()
	batch, err := j.invoices.ListSweepable(ctx, now, j.batch)
	if err != nil {
		return fmt.Errorf("list pending invoices: %w", err)
	}
	if len(batch) == 0 {
		return nil
	}
	statuses, err := j.remoteStatuses(ctx, batch)
	if err != nil {
		return fmt.Errorf("query gateway: %w", err)
	}

	var (
		errs    error
		stats   sweepStats
		touched []uuid.UUID
	)
	for _, inv := range batch {
		status, ok := statuses[inv.ExternalID]
		switch {
		case !ok:
			stats.missing++
			touched = append(touched, inv.ID)
		case status == cryptopay.StatusPaid:
			stats.paid++
			if _, err := j.payments.ConfirmPaid(ctx, inv.ExternalID, payments.TriggerReconcile); err != nil {
				errs = multierr.Append(errs, fmt.Errorf("confirm %s: %w", inv.ExternalID, err))
			}
		case status == cryptopay.StatusExpired:
			stats.expired++
			if _, err := j.payments.Expire(ctx, inv.ExternalID, payments.TriggerReconcile); err != nil {
				errs = multierr.Append(errs, fmt.Errorf("expire %s: %w", inv.ExternalID, err))
			}
		default:
			stats.active++
			touched = append(touched, inv.ID)
		}
	}
	if err := j.invoices.Touch(ctx, touched, now); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("touch invoices: %w", err))
	}
	j.logStats(ctx, "invoice reconcile sweep complete", len(batch), stats)
	return errs
}

// NewInvoiceLocalExpiryJob settles pending invoices whose local hard expiry
// has passed. The gateway still has the final say on paid invoices; anything
// it reports expired or no longer knows is expired locally.
func NewInvoiceLocalExpiryJob(params SweepJobParams) (Job, error) {
	s, err := newSweep(params)
	if err != nil {
		return nil, err
	}
	return &invoiceLocalExpiryJob{sweep: s}, nil
}

type invoiceLocalExpiryJob struct {
	sweep
}

func (j *invoiceLocalExpiryJob) Name() string { return "invoice-local-expiry" }

func (j *invoiceLocalExpiryJob) Run(ctx context.Context) error {
	now := j.now()
	batch, err := j.invoices.ListElapsed(ctx, now, j.batch)
	if err != nil {
		return fmt.Errorf("list elapsed invoices: %w", err)
	}
	if len(batch) == 0 {
		return nil
	}
	statuses, err := j.remoteStatuses(ctx, batch)
	if err != nil {
		return fmt.Errorf("query gateway: %w", err)
	}

	var (
		errs    error
		stats   sweepStats
		touched []uuid.UUID
	)
	for _, inv := range batch {
		status, ok := statuses[inv.ExternalID]
		switch {
		case ok && status == cryptopay.StatusPaid:
			stats.paid++
			if _, err := j.payments.ConfirmPaid(ctx, inv.ExternalID, payments.TriggerLocalExpiry); err != nil {
				errs = multierr.Append(errs, fmt.Errorf("confirm %s: %w", inv.ExternalID, err))
			}
		case ok && status == cryptopay.StatusActive:
			stats.active++
			touched = append(touched, inv.ID)
		default:
			if ok {
				stats.expired++
			} else {
				stats.missing++
			}
			if _, err := j.payments.Expire(ctx, inv.ExternalID, payments.TriggerLocalExpiry); err != nil {
				errs = multierr.Append(errs, fmt.Errorf("expire %s: %w", inv.ExternalID, err))
			}
		}
	}
	if err := j.invoices.Touch(ctx, touched, now); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("touch invoices: %w", err))
	}
	j.logStats(ctx, "invoice local expiry sweep complete", len(batch), stats)
	return errs
}
