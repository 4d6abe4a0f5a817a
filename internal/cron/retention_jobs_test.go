package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/giftdrop-backend/internal/invoices"
	"github.com/angelmondragon/giftdrop-backend/pkg/db/dbtest"
	"github.com/angelmondragon/giftdrop-backend/pkg/db/models"
	"github.com/angelmondragon/giftdrop-backend/pkg/enums"
	"github.com/angelmondragon/giftdrop-backend/pkg/logger"
)

func TestInvoiceRetentionDeletesOnlySettledInvoices(t *testing.T) {
	client := dbtest.Open(t)
	now := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	gift := dbtest.SeedGift(t, client, "golden-rose", 10)
	user := dbtest.SeedUser(t, client, 64054676, "alice")

	seed := func(externalID string, status enums.InvoiceStatus, expiresAt time.Time) {
		inv := models.Invoice{
			ExternalID:    externalID,
			UserID:        user.ID,
			GiftID:        gift.ID,
			Price:         decimal.NewFromInt(10),
			Asset:         enums.AssetUSDT,
			Status:        status,
			LastCheckedAt: expiresAt,
			ExpiresAt:     expiresAt,
		}
		require.NoError(t, client.DB().Create(&inv).Error)
	}
	old := now.Add(-48 * time.Hour)
	seed("1", enums.InvoiceStatusPaid, old)
	seed("2", enums.InvoiceStatusExpired, old)
	seed("3", enums.InvoiceStatusPending, old)
	seed("4", enums.InvoiceStatusExpired, now.Add(-time.Hour))

	job, err := NewInvoiceRetentionJob(InvoiceRetentionJobParams{
		Logger:   logger.New(logger.Options{ServiceName: "cron-test"}),
		Invoices: invoices.NewRepository(client.DB()),
	})
	require.NoError(t, err)
	job.(*invoiceRetentionJob).now = func() time.Time { return now }

	require.NoError(t, job.Run(context.Background()))
	require.EqualValues(t, 2, dbtest.Count(t, client, &models.Invoice{}, ""))
	require.EqualValues(t, 1, dbtest.Count(t, client, &models.Invoice{}, "external_id = ?", "3"))
}

type fakeOutboxPruner struct {
	cutoff      time.Time
	minAttempts int
	calls       int
	err         error
}

func (f *fakeOutboxPruner) DeletePublishedBefore(_ context.Context, _ *gorm.DB, cutoff time.Time, minAttemptCount int) (int64, error) {
	f.calls++
	f.cutoff = cutoff
	f.minAttempts = minAttemptCount
	return 7, f.err
}

type passthroughTx struct{}

func (passthroughTx) WithTx(_ context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

func newOutboxRetention(t *testing.T, pruner *fakeOutboxPruner) *outboxRetentionJob {
	t.Helper()
	job, err := NewOutboxRetentionJob(OutboxRetentionJobParams{
		Logger: logger.New(logger.Options{ServiceName: "cron-test"}),
		DB:     passthroughTx{},
		Outbox: pruner,
	})
	require.NoError(t, err)
	return job.(*outboxRetentionJob)
}

func TestOutboxRetentionUsesDefaults(t *testing.T) {
	now := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)
	pruner := &fakeOutboxPruner{}
	job := newOutboxRetention(t, pruner)
	job.now = func() time.Time { return now }

	require.NoError(t, job.Run(context.Background()))
	require.Equal(t, 1, pruner.calls)
	require.True(t, pruner.cutoff.Equal(now.AddDate(0, 0, -defaultOutboxRetentionDays)))
	require.Equal(t, defaultOutboxMinAttempts, pruner.minAttempts)
}

func TestOutboxRetentionPropagatesError(t *testing.T) {
	job := newOutboxRetention(t, &fakeOutboxPruner{err: errors.New("boom")})
	require.Error(t, job.Run(context.Background()))
}
