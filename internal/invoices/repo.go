package invoices

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/giftdrop-backend/internal/repo"
	"github.com/angelmondragon/giftdrop-backend/pkg/db/models"
	"github.com/angelmondragon/giftdrop-backend/pkg/enums"
)

// Repository is the invoice ledger. Status only ever leaves pending through
// the compare-and-set helpers below.
type Repository struct {
	repo.Base
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(db)}
}

func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{Base: r.Bind(tx)}
}

func (r *Repository) Create(ctx context.Context, invoice *models.Invoice) error {
	return r.DB(ctx).Create(invoice).Error
}

func (r *Repository) FindByExternalID(ctx context.Context, externalID string) (*models.Invoice, error) {
	var invoice models.Invoice
	if err := r.DB(ctx).Where("external_id = ?", externalID).First(&invoice).Error; err != nil {
		return nil, err
	}
	return &invoice, nil
}

// FindForUser loads an invoice only when userID placed it.
func (r *Repository) FindForUser(ctx context.Context, id, userID uuid.UUID) (*models.Invoice, error) {
	var invoice models.Invoice
	if err := r.DB(ctx).Where("id = ? AND user_id = ?", id, userID).First(&invoice).Error; err != nil {
		return nil, err
	}
	return &invoice, nil
}

// MarkPaid moves a pending invoice to paid. It reports false when the invoice
// had already left pending.
func (r *Repository) MarkPaid(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	return r.transition(ctx, id, map[string]any{
		"status":          enums.InvoiceStatusPaid,
		"paid_at":         at,
		"last_checked_at": at,
	})
}

// MarkExpired moves a pending invoice to expired with the same guarantee as MarkPaid.
func (r *Repository) MarkExpired(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	return r.transition(ctx, id, map[string]any{
		"status":          enums.InvoiceStatusExpired,
		"last_checked_at": at,
	})
}

func (r *Repository) transition(ctx context.Context, id uuid.UUID, updates map[string]any) (bool, error) {
	res := r.DB(ctx).
		Model(&models.Invoice{}).
		Where("id = ? AND status = ?", id, enums.InvoiceStatusPending).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ListSweepable returns pending invoices that are still inside their window,
// least recently checked first.
func (r *Repository) ListSweepable(ctx context.Context, now time.Time, limit int) ([]models.Invoice, error) {
	var rows []models.Invoice
	err := r.DB(ctx).
		Where("status = ? AND expires_at > ?", enums.InvoiceStatusPending, now).
		Order("last_checked_at ASC").
		Order("id ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// ListElapsed returns pending invoices whose local hard expiry has passed,
// least recently checked first.
func (r *Repository) ListElapsed(ctx context.Context, now time.Time, limit int) ([]models.Invoice, error) {
	var rows []models.Invoice
	err := r.DB(ctx).
		Where("status = ? AND expires_at <= ?", enums.InvoiceStatusPending, now).
		Order("last_checked_at ASC").
		Order("id ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// Touch stamps last_checked_at on pending invoices so the sweep rotates.
func (r *Repository) Touch(ctx context.Context, ids []uuid.UUID, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	return r.DB(ctx).
		Model(&models.Invoice{}).
		Where("id IN ? AND status = ?", ids, enums.InvoiceStatusPending).
		UpdateColumn("last_checked_at", at).Error
}

// DeleteTerminalBefore prunes paid, expired and failed invoices that expired before cutoff.
func (r *Repository) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.DB(ctx).
		Where("status <> ? AND expires_at < ?", enums.InvoiceStatusPending, cutoff).
		Delete(&models.Invoice{})
	return res.RowsAffected, res.Error
}
