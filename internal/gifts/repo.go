package gifts

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/giftdrop-backend/internal/repo"
	"github.com/angelmondragon/giftdrop-backend/pkg/db/models"
)

// Repository owns the catalog rows and their bounded bought_count counter.
type Repository struct {
	repo.Base
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(db)}
}

func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{Base: r.Bind(tx)}
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Gift, error) {
	var gift models.Gift
	if err := r.DB(ctx).First(&gift, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &gift, nil
}

// ListAvailable returns active gifts that still have stock.
func (r *Repository) ListAvailable(ctx context.Context) ([]models.Gift, error) {
	var rows []models.Gift
	err := r.DB(ctx).
		Where("is_active = ? AND bought_count < total_count", true).
		Order("created_at ASC").
		Find(&rows).Error
	return rows, err
}

func (r *Repository) Create(ctx context.Context, gift *models.Gift) error {
	return r.DB(ctx).Create(gift).Error
}

// FindForUpdate loads the gift for an edit. On postgres the row stays locked
// until the surrounding transaction ends, so reservations queue behind it.
func (r *Repository) FindForUpdate(ctx context.Context, id uuid.UUID) (*models.Gift, error) {
	query := r.DB(ctx)
	if query.Dialector.Name() == "postgres" {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var gift models.Gift
	if err := query.First(&gift, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &gift, nil
}

// UpdateCatalog writes the admin-editable columns. bought_count is never
// written, and total_count only lands while it still covers the units already
// reserved. It reports false when that guard rejects the row.
func (r *Repository) UpdateCatalog(ctx context.Context, gift *models.Gift) (bool, error) {
	res := r.DB(ctx).
		Model(&models.Gift{}).
		Where("id = ? AND bought_count <= ?", gift.ID, gift.TotalCount).
		Updates(map[string]any{
			"name":        gift.Name,
			"description": gift.Description,
			"price":       gift.Price,
			"asset":       gift.Asset,
			"total_count": gift.TotalCount,
			"is_active":   gift.IsActive,
			"bg_variant":  gift.BgVariant,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// Reserve takes one unit of stock. It reports false when the gift is inactive
// or sold out, leaving the row untouched.
func (r *Repository) Reserve(ctx context.Context, id uuid.UUID) (bool, error) {
	res := r.DB(ctx).
		Model(&models.Gift{}).
		Where("id = ? AND is_active = ? AND bought_count < total_count", id, true).
		UpdateColumn("bought_count", gorm.Expr("bought_count + 1"))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// Release hands one reserved unit back. The counter never drops below zero.
func (r *Repository) Release(ctx context.Context, id uuid.UUID) (bool, error) {
	res := r.DB(ctx).
		Model(&models.Gift{}).
		Where("id = ? AND bought_count > 0", id).
		UpdateColumn("bought_count", gorm.Expr("bought_count - 1"))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
