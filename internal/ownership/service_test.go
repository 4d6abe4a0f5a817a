package ownership

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/giftdrop-backend/pkg/db/dbtest"
	"github.com/angelmondragon/giftdrop-backend/pkg/db/models"
	"github.com/angelmondragon/giftdrop-backend/pkg/enums"
	"github.com/angelmondragon/giftdrop-backend/pkg/pagination"
)

func TestReassignRequiresCurrentOwner(t *testing.T) {
	client := dbtest.Open(t)
	repo := NewRepository(client.DB())
	ctx := context.Background()
	gift := dbtest.SeedGift(t, client, "rose", 1)
	alice := dbtest.SeedUser(t, client, 1, "alice")
	bob := dbtest.SeedUser(t, client, 2, "bob")

	pg := Materialize(models.Invoice{GiftID: gift.ID, UserID: alice.ID}, time.Now().UTC())
	require.NoError(t, repo.Create(ctx, pg))

	_, err := repo.FindTransferable(ctx, pg.ID, bob.ID)
	require.Error(t, err)
	found, err := repo.FindTransferable(ctx, pg.ID, alice.ID)
	require.NoError(t, err)
	require.Equal(t, alice.ID, found.BuyerID)

	moved, err := repo.Reassign(ctx, pg.ID, bob.ID, alice.ID)
	require.NoError(t, err)
	require.False(t, moved)

	moved, err = repo.Reassign(ctx, pg.ID, alice.ID, bob.ID)
	require.NoError(t, err)
	require.True(t, moved)

	got, err := repo.FindByID(ctx, pg.ID)
	require.NoError(t, err)
	require.Equal(t, bob.ID, got.OwnerID)
	require.Equal(t, alice.ID, got.BuyerID)
	require.Equal(t, enums.PurchasedGiftStatusGifted, got.Status)
	require.NotNil(t, got.Gift)
	require.Equal(t, "rose", got.Gift.Slug)

	_, err = repo.FindTransferable(ctx, pg.ID, bob.ID)
	require.Error(t, err)
}

func TestAvailableAndOwnedListing(t *testing.T) {
	client := dbtest.Open(t)
	repo := NewRepository(client.DB())
	svc := NewService(repo)
	ctx := context.Background()
	gift := dbtest.SeedGift(t, client, "star", 5)
	owner := uuid.New()
	base := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		pg := Materialize(models.Invoice{GiftID: gift.ID, UserID: owner}, base.Add(time.Duration(i)*time.Minute))
		require.NoError(t, repo.Create(ctx, pg))
	}
	received := &models.PurchasedGift{GiftID: gift.ID, OwnerID: owner, BuyerID: uuid.New(), Status: enums.PurchasedGiftStatusGifted, BoughtAt: base.Add(time.Hour)}
	require.NoError(t, repo.Create(ctx, received))

	page, err := svc.Available(ctx, owner, pagination.Params{Limit: 2})
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	require.NotEmpty(t, page.NextCursor)
	require.Equal(t, "star", page.Items[0].Gift.Slug)

	rest, err := svc.Available(ctx, owner, pagination.Params{Limit: 2, Cursor: page.NextCursor})
	require.NoError(t, err)
	require.Len(t, rest.Items, 1)
	require.Empty(t, rest.NextCursor)

	all, err := svc.Owned(ctx, owner, pagination.Params{})
	require.NoError(t, err)
	require.Len(t, all.Items, 4)
	require.Equal(t, received.ID, all.Items[0].ID)
}
