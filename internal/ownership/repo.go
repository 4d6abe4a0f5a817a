package ownership

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/giftdrop-backend/internal/repo"
	"github.com/angelmondragon/giftdrop-backend/pkg/db/models"
	"github.com/angelmondragon/giftdrop-backend/pkg/enums"
	"github.com/angelmondragon/giftdrop-backend/pkg/pagination"
)

// Repository is the ownership ledger of purchased gifts.
type Repository struct {
	repo.Base
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(db)}
}

func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{Base: r.Bind(tx)}
}

func (r *Repository) Create(ctx context.Context, gift *models.PurchasedGift) error {
	return r.DB(ctx).Create(gift).Error
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.PurchasedGift, error) {
	var row models.PurchasedGift
	if err := r.DB(ctx).Preload("Gift").First(&row, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

// FindTransferable loads the purchased gift only when ownerID holds it and it
// has not been handed on yet.
func (r *Repository) FindTransferable(ctx context.Context, id, ownerID uuid.UUID) (*models.PurchasedGift, error) {
	var row models.PurchasedGift
	err := r.DB(ctx).
		Where("id = ? AND owner_id = ? AND status = ?", id, ownerID, enums.PurchasedGiftStatusAvailable).
		First(&row).Error
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// Reassign moves the gift from sender to receiver and marks it gifted. It
// reports false when sender no longer owns it.
func (r *Repository) Reassign(ctx context.Context, id, senderID, receiverID uuid.UUID) (bool, error) {
	res := r.DB(ctx).
		Model(&models.PurchasedGift{}).
		Where("id = ? AND owner_id = ?", id, senderID).
		Updates(map[string]any{
			"owner_id": receiverID,
			"status":   enums.PurchasedGiftStatusGifted,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ListOwned pages through the gifts ownerID holds, newest first. A nil status
// returns every gift regardless of status.
func (r *Repository) ListOwned(ctx context.Context, ownerID uuid.UUID, status *enums.PurchasedGiftStatus, cursor *pagination.Cursor, limit int) ([]models.PurchasedGift, error) {
	q := r.DB(ctx).Preload("Gift").Where("owner_id = ?", ownerID)
	if status != nil {
		q = q.Where("status = ?", *status)
	}
	if cursor != nil {
		q = q.Where("(bought_at < ?) OR (bought_at = ? AND id < ?)", cursor.At, cursor.At, cursor.ID)
	}
	var rows []models.PurchasedGift
	err := q.Order("bought_at DESC").Order("id DESC").Limit(limit).Find(&rows).Error
	return rows, err
}
