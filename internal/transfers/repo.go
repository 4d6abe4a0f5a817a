package transfers

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/giftdrop-backend/internal/repo"
	"github.com/angelmondragon/giftdrop-backend/pkg/db/models"
	"github.com/angelmondragon/giftdrop-backend/pkg/enums"
)

type Repository struct {
	repo.Base
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(db)}
}

func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{Base: r.Bind(tx)}
}

func (r *Repository) Create(ctx context.Context, transfer *models.GiftTransfer) error {
	return r.DB(ctx).Create(transfer).Error
}

func (r *Repository) FindByPurchasedGift(ctx context.Context, purchasedGiftID uuid.UUID) (*models.GiftTransfer, error) {
	var row models.GiftTransfer
	if err := r.DB(ctx).Where("purchased_gift_id = ?", purchasedGiftID).First(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *Repository) FindByToken(ctx context.Context, token string) (*models.GiftTransfer, error) {
	var row models.GiftTransfer
	if err := r.DB(ctx).Where("send_token = ?", token).First(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

// MarkReceived consumes a pending transfer. It reports false when the token
// was already used.
func (r *Repository) MarkReceived(ctx context.Context, id, receiverID uuid.UUID, at time.Time) (bool, error) {
	res := r.DB(ctx).
		Model(&models.GiftTransfer{}).
		Where("id = ? AND status = ?", id, enums.TransferStatusPending).
		Updates(map[string]any{
			"status":      enums.TransferStatusReceived,
			"receiver_id": receiverID,
			"received_at": at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
