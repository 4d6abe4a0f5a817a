package controllers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/giftdrop-backend/internal/gifts"
)

type stubGiftAdmin struct {
	created *gifts.CreateGiftInput
	updated *gifts.UpdateGiftInput
	target  uuid.UUID
}

func (s *stubGiftAdmin) Create(_ context.Context, input gifts.CreateGiftInput) (*gifts.GiftDTO, error) {
	s.created = &input
	return &gifts.GiftDTO{ID: uuid.New(), Slug: input.Slug, Name: input.Name, TotalCount: input.TotalCount}, nil
}

func (s *stubGiftAdmin) Update(_ context.Context, giftID uuid.UUID, input gifts.UpdateGiftInput) (*gifts.GiftDTO, error) {
	s.target, s.updated = giftID, &input
	return &gifts.GiftDTO{ID: giftID}, nil
}

func TestAdminCreateGiftTrimsNames(t *testing.T) {
	svc := &stubGiftAdmin{}
	rec := httptest.NewRecorder()
	req := jsonRequest(http.MethodPost, "/api/v1/admin/gifts", map[string]any{
		"slug":       " golden-rose ",
		"name":       "  Golden Rose ",
		"price":      "5",
		"asset":      "USDT",
		"totalCount": 3,
	})
	AdminCreateGift(svc, nil).ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.NotNil(t, svc.created)
	assert.Equal(t, "golden-rose", svc.created.Slug)
	assert.Equal(t, "Golden Rose", svc.created.Name)
	assert.Equal(t, "5", svc.created.Price.String())
}

func TestAdminCreateGiftValidates(t *testing.T) {
	rec := httptest.NewRecorder()
	req := jsonRequest(http.MethodPost, "/api/v1/admin/gifts", map[string]any{"slug": "x", "asset": "USDT", "totalCount": 0})
	AdminCreateGift(&stubGiftAdmin{}, nil).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminUpdateGift(t *testing.T) {
	svc := &stubGiftAdmin{}
	router := chi.NewRouter()
	router.Put("/api/v1/admin/gifts/{giftId}", AdminUpdateGift(svc, nil))
	giftID := uuid.New()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, jsonRequest(http.MethodPut, "/api/v1/admin/gifts/"+giftID.String(), map[string]any{"name": " Lily ", "isActive": false}))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, giftID, svc.target)
	require.NotNil(t, svc.updated.Name)
	assert.Equal(t, "Lily", *svc.updated.Name)
	require.NotNil(t, svc.updated.IsActive)
	assert.False(t, *svc.updated.IsActive)
}
