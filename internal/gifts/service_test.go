package gifts

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/giftdrop-backend/internal/invoices"
	"github.com/angelmondragon/giftdrop-backend/pkg/cryptopay"
	"github.com/angelmondragon/giftdrop-backend/pkg/db"
	"github.com/angelmondragon/giftdrop-backend/pkg/db/dbtest"
	"github.com/angelmondragon/giftdrop-backend/pkg/db/models"
	"github.com/angelmondragon/giftdrop-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/giftdrop-backend/pkg/errors"
)

type fakeGateway struct {
	seq   atomic.Int64
	calls atomic.Int64
	err   error
}

func (f *fakeGateway) CreateInvoice(_ context.Context, params cryptopay.CreateInvoiceParams) (*cryptopay.Invoice, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	id := strconv.FormatInt(f.seq.Add(1), 10)
	return &cryptopay.Invoice{
		InvoiceID:     id,
		Hash:          "IV" + id,
		Status:        cryptopay.StatusActive,
		Asset:         params.Asset.String(),
		Amount:        params.Amount.String(),
		MiniAppPayURL: "https://t.me/CryptoBot/app?startapp=invoice-IV" + id,
	}, nil
}

type countingMetrics struct{ issued atomic.Int64 }

func (c *countingMetrics) InvoiceIssued() { c.issued.Add(1) }

var fixedNow = time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)

func newService(t *testing.T, client *db.Client, gateway invoiceCreator, metrics issueObserver) *Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		DB:      client,
		Gifts:   NewRepository(client.DB()),
		Ledger:  invoices.NewRepository(client.DB()),
		Gateway: gateway,
		Metrics: metrics,
		Now:     func() time.Time { return fixedNow },
	})
	require.NoError(t, err)
	return svc
}

func TestBuyReservesAndOpensInvoice(t *testing.T) {
	client := dbtest.Open(t)
	gift := dbtest.SeedGift(t, client, "golden-rose", 3)
	buyer := dbtest.SeedUser(t, client, 100, "alice")
	gateway := &fakeGateway{}
	metrics := &countingMetrics{}
	svc := newService(t, client, gateway, metrics)

	res, err := svc.Buy(context.Background(), buyer.ID, gift.ID)
	require.NoError(t, err)
	require.Equal(t, "1", res.ExternalID)
	require.Equal(t, fixedNow.Add(time.Hour), res.ExpiresAt.UTC())
	require.Contains(t, res.PayURL, "startapp=invoice-IV1")

	require.Equal(t, 1, dbtest.ReloadGift(t, client, gift.ID).BoughtCount)

	var inv models.Invoice
	require.NoError(t, client.DB().First(&inv, "external_id = ?", "1").Error)
	require.Equal(t, enums.InvoiceStatusPending, inv.Status)
	require.Equal(t, buyer.ID, inv.UserID)
	require.True(t, inv.Price.Equal(gift.Price))
	require.True(t, inv.LastCheckedAt.Equal(fixedNow))
	require.EqualValues(t, 1, metrics.issued.Load())
}

func TestBuyBeyondCapacityFailsWithoutInvoice(t *testing.T) {
	client := dbtest.Open(t)
	gift := dbtest.SeedGift(t, client, "limited", 2)
	buyer := dbtest.SeedUser(t, client, 100, "")
	gateway := &fakeGateway{}
	svc := newService(t, client, gateway, nil)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := svc.Buy(ctx, buyer.ID, gift.ID)
		require.NoError(t, err)
	}
	_, err := svc.Buy(ctx, buyer.ID, gift.ID)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict), "got %v", err)

	require.EqualValues(t, 2, gateway.calls.Load())
	require.Equal(t, 2, dbtest.ReloadGift(t, client, gift.ID).BoughtCount)
	require.EqualValues(t, 2, dbtest.Count(t, client, &models.Invoice{}, ""))
}

func TestConcurrentBuysNeverExceedCapacity(t *testing.T) {
	client := dbtest.Open(t)
	gift := dbtest.SeedGift(t, client, "scarce", 3)
	buyer := dbtest.SeedUser(t, client, 100, "")
	svc := newService(t, client, &fakeGateway{}, nil)

	const attempts = 10
	var wg sync.WaitGroup
	var ok, conflicts atomic.Int64
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Buy(context.Background(), buyer.ID, gift.ID)
			switch {
			case err == nil:
				ok.Add(1)
			case pkgerrors.IsCode(err, pkgerrors.CodeConflict):
				conflicts.Add(1)
			}
		}()
	}
	wg.Wait()

	require.EqualValues(t, 3, ok.Load())
	require.EqualValues(t, attempts-3, conflicts.Load())
	require.Equal(t, 3, dbtest.ReloadGift(t, client, gift.ID).BoughtCount)
	require.EqualValues(t, 3, dbtest.Count(t, client, &models.Invoice{}, ""))
}

func TestBuyGatewayFailureLeavesStoreUntouched(t *testing.T) {
	client := dbtest.Open(t)
	gift := dbtest.SeedGift(t, client, "rose", 5)
	buyer := dbtest.SeedUser(t, client, 100, "")
	svc := newService(t, client, &fakeGateway{err: errors.New("connection refused")}, nil)

	_, err := svc.Buy(context.Background(), buyer.ID, gift.ID)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))
	require.Equal(t, 0, dbtest.ReloadGift(t, client, gift.ID).BoughtCount)
	require.Zero(t, dbtest.Count(t, client, &models.Invoice{}, ""))
}

func TestBuyPrecheckSkipsGateway(t *testing.T) {
	client := dbtest.Open(t)
	buyer := dbtest.SeedUser(t, client, 100, "")
	gift := dbtest.SeedGift(t, client, "retired", 5)
	require.NoError(t, client.DB().Model(&models.Gift{}).Where("id = ?", gift.ID).Update("is_active", false).Error)
	soldOut := dbtest.SeedGift(t, client, "gone", 1)
	require.NoError(t, client.DB().Model(&models.Gift{}).Where("id = ?", soldOut.ID).Update("bought_count", 1).Error)

	gateway := &fakeGateway{}
	svc := newService(t, client, gateway, nil)
	ctx := context.Background()

	_, err := svc.Buy(ctx, buyer.ID, uuid.New())
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	_, err = svc.Buy(ctx, buyer.ID, gift.ID)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))

	_, err = svc.Buy(ctx, buyer.ID, soldOut.ID)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))

	_, err = svc.Buy(ctx, uuid.Nil, gift.ID)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	require.Zero(t, gateway.calls.Load())
}

func TestStoreListsOnlyBuyableGifts(t *testing.T) {
	client := dbtest.Open(t)
	open := dbtest.SeedGift(t, client, "open", 2)
	full := dbtest.SeedGift(t, client, "full", 1)
	require.NoError(t, client.DB().Model(&models.Gift{}).Where("id = ?", full.ID).Update("bought_count", 1).Error)
	svc := newService(t, client, &fakeGateway{}, nil)

	list, err := svc.Store(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, open.ID, list[0].ID)
	require.Equal(t, 2, list[0].Remaining)
}

func TestAdminCreateAndUpdate(t *testing.T) {
	client := dbtest.Open(t)
	svc := newService(t, client, &fakeGateway{}, nil)
	ctx := context.Background()
	inactive := false

	created, err := svc.Create(ctx, CreateGiftInput{
		Slug:       " Blue-Star ",
		Name:       "Blue Star",
		Price:      decimal.RequireFromString("2.5"),
		Asset:      enums.AssetTON,
		TotalCount: 2,
		IsActive:   &inactive,
	})
	require.NoError(t, err)
	require.Equal(t, "blue-star", created.Slug)
	require.False(t, created.IsActive)
	require.False(t, dbtest.ReloadGift(t, client, created.ID).IsActive)

	_, err = svc.Create(ctx, CreateGiftInput{Slug: "blue-star", Name: "dup", Price: decimal.NewFromInt(1), Asset: enums.AssetTON, TotalCount: 1})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))

	_, err = svc.Create(ctx, CreateGiftInput{Slug: "free", Name: "free", Price: decimal.Zero, Asset: enums.AssetTON, TotalCount: 1})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	require.NoError(t, client.DB().Model(&models.Gift{}).Where("id = ?", created.ID).Update("bought_count", 2).Error)

	shrink := 1
	_, err = svc.Update(ctx, created.ID, UpdateGiftInput{TotalCount: &shrink})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))

	grow := 5
	active := true
	updated, err := svc.Update(ctx, created.ID, UpdateGiftInput{TotalCount: &grow, IsActive: &active})
	require.NoError(t, err)
	require.Equal(t, 5, updated.TotalCount)
	require.Equal(t, 3, updated.Remaining)
	require.True(t, updated.IsActive)

	_, err = svc.Update(ctx, uuid.New(), UpdateGiftInput{})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}
