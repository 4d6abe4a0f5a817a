package dbtest

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/giftdrop-backend/pkg/db"
	"github.com/angelmondragon/giftdrop-backend/pkg/db/models"
	"github.com/angelmondragon/giftdrop-backend/pkg/enums"
)

// SeedUser stores a user with the given telegram id and optional username.
func SeedUser(t *testing.T, client *db.Client, telegramID int64, username string) models.User {
	t.Helper()
	user := models.User{TelegramID: telegramID, FirstName: "user"}
	if username != "" {
		user.Username = &username
	}
	if err := client.DB().Create(&user).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return user
}

// SeedGift stores an active gift priced at 10 USDT with the given capacity.
func SeedGift(t *testing.T, client *db.Client, slug string, total int) models.Gift {
	t.Helper()
	gift := models.Gift{
		Slug:       slug,
		Name:       slug,
		Price:      decimal.NewFromInt(10),
		Asset:      enums.AssetUSDT,
		TotalCount: total,
		IsActive:   true,
	}
	if err := client.DB().Create(&gift).Error; err != nil {
		t.Fatalf("seed gift: %v", err)
	}
	return gift
}

// ReloadGift reads the gift row back from the store.
func ReloadGift(t *testing.T, client *db.Client, id uuid.UUID) models.Gift {
	t.Helper()
	var gift models.Gift
	if err := client.DB().First(&gift, "id = ?", id).Error; err != nil {
		t.Fatalf("reload gift: %v", err)
	}
	return gift
}

// Count returns the number of rows of model matching the optional condition.
func Count(t *testing.T, client *db.Client, model any, query string, args ...any) int64 {
	t.Helper()
	var n int64
	q := client.DB().Model(model)
	if query != "" {
		q = q.Where(query, args...)
	}
	if err := q.Count(&n).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}
