package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/giftdrop-backend/api/middleware"
	"github.com/angelmondragon/giftdrop-backend/internal/activities"
	"github.com/angelmondragon/giftdrop-backend/internal/gifts"
	"github.com/angelmondragon/giftdrop-backend/internal/invoices"
	"github.com/angelmondragon/giftdrop-backend/internal/ownership"
	"github.com/angelmondragon/giftdrop-backend/internal/transfers"
	"github.com/angelmondragon/giftdrop-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/giftdrop-backend/pkg/errors"
	"github.com/angelmondragon/giftdrop-backend/pkg/pagination"
)

type stubGiftService struct {
	items    []gifts.GiftDTO
	result   *gifts.BuyResult
	err      error
	boughtBy uuid.UUID
	bought   uuid.UUID
}

func (s *stubGiftService) Store(context.Context) ([]gifts.GiftDTO, error) {
	return s.items, s.err
}

func (s *stubGiftService) Buy(_ context.Context, userID, giftID uuid.UUID) (*gifts.BuyResult, error) {
	s.boughtBy, s.bought = userID, giftID
	return s.result, s.err
}

type stubInvoiceReader struct {
	owner uuid.UUID
	view  *invoices.View
}

func (s stubInvoiceReader) Get(_ context.Context, userID, invoiceID uuid.UUID) (*invoices.View, error) {
	if userID != s.owner || invoiceID != s.view.ID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "invoice not found")
	}
	return s.view, nil
}

type stubTransfers struct {
	token   string
	claimed string
	err     error
}

func (s *stubTransfers) Issue(context.Context, uuid.UUID, uuid.UUID) (string, error) {
	return s.token, s.err
}

func (s *stubTransfers) Claim(_ context.Context, _ uuid.UUID, token string) (*transfers.ClaimResult, error) {
	s.claimed = token
	if s.err != nil {
		return nil, s.err
	}
	return &transfers.ClaimResult{TransferID: uuid.New(), PurchasedGiftID: uuid.New(), SenderID: uuid.New()}, nil
}

type stubLinks struct{}

func (stubLinks) MiniAppURL(startParam string) string {
	return "https://t.me/giftdrop_bot/app?startapp=" + startParam
}

type stubOwnership struct {
	params pagination.Params
	page   *ownership.Page
}

func (s *stubOwnership) Available(_ context.Context, _ uuid.UUID, params pagination.Params) (*ownership.Page, error) {
	s.params = params
	return s.page, nil
}

func (s *stubOwnership) Owned(_ context.Context, _ uuid.UUID, params pagination.Params) (*ownership.Page, error) {
	s.params = params
	return s.page, nil
}

type stubActivities struct {
	target uuid.UUID
}

func (s *stubActivities) ListForGift(_ context.Context, giftID uuid.UUID, _ pagination.Params) (*activities.Page, error) {
	s.target = giftID
	return &activities.Page{Items: []activities.Entry{{ID: uuid.New(), Type: enums.ActivityTypeGiftPurchased}}}, nil
}

func (s *stubActivities) ListForUser(_ context.Context, userID uuid.UUID, _ pagination.Params) (*activities.Page, error) {
	s.target = userID
	return &activities.Page{Items: []activities.Entry{}}, nil
}

func asUser(r *http.Request, userID uuid.UUID) *http.Request {
	return r.WithContext(middleware.WithUser(r.Context(), userID, 64054676))
}

func jsonRequest(method, target string, body any) *http.Request {
	buf, _ := json.Marshal(body)
	return httptest.NewRequest(method, target, bytes.NewReader(buf))
}

func TestGiftBuyCreatesInvoice(t *testing.T) {
	userID, giftID := uuid.New(), uuid.New()
	svc := &stubGiftService{result: &gifts.BuyResult{InvoiceID: uuid.New(), ExternalID: "77", PayURL: "https://t.me/CryptoBot?start=IVabc", ExpiresAt: time.Now().Add(time.Hour)}}

	req := asUser(jsonRequest(http.MethodPost, "/api/v1/gifts/buy", map[string]string{"giftId": giftID.String()}), userID)
	rec := httptest.NewRecorder()
	GiftBuy(svc, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d (%s)", rec.Code, rec.Body.String())
	}
	if svc.boughtBy != userID || svc.bought != giftID {
		t.Fatalf("unexpected buy args %s/%s", svc.boughtBy, svc.bought)
	}
	var envelope struct {
		Data gifts.BuyResult `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Data.ExternalID != "77" {
		t.Fatalf("unexpected external id %q", envelope.Data.ExternalID)
	}
}

func TestGiftBuyRequiresUser(t *testing.T) {
	rec := httptest.NewRecorder()
	GiftBuy(&stubGiftService{}, nil).ServeHTTP(rec, jsonRequest(http.MethodPost, "/api/v1/gifts/buy", map[string]string{"giftId": uuid.NewString()}))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", rec.Code)
	}
}

func TestGiftBuyValidatesBody(t *testing.T) {
	rec := httptest.NewRecorder()
	req := asUser(jsonRequest(http.MethodPost, "/api/v1/gifts/buy", map[string]string{"giftId": "rose"}), uuid.New())
	GiftBuy(&stubGiftService{}, nil).ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
}

func TestGiftBuySoldOut(t *testing.T) {
	svc := &stubGiftService{err: pkgerrors.New(pkgerrors.CodeConflict, "gift sold out")}
	rec := httptest.NewRecorder()
	req := asUser(jsonRequest(http.MethodPost, "/api/v1/gifts/buy", map[string]string{"giftId": uuid.NewString()}), uuid.New())
	GiftBuy(svc, nil).ServeHTTP(rec, req)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d", rec.Code)
	}
}

func TestGiftStoreListsItems(t *testing.T) {
	svc := &stubGiftService{items: []gifts.GiftDTO{{ID: uuid.New(), Name: "Golden Rose", Price: decimal.NewFromInt(5), Remaining: 1}}}
	rec := httptest.NewRecorder()
	GiftStore(svc, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/gifts/store", nil))

	var envelope struct {
		Data []gifts.GiftDTO `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(envelope.Data) != 1 || envelope.Data[0].Name != "Golden Rose" {
		t.Fatalf("unexpected items %+v", envelope.Data)
	}
}

func TestInvoiceStatusHidesOtherUsersInvoices(t *testing.T) {
	owner := uuid.New()
	view := &invoices.View{ID: uuid.New(), ExternalID: "77", Status: enums.InvoiceStatusPending}
	router := chi.NewRouter()
	router.Get("/api/v1/gifts/invoices/{invoiceId}", InvoiceStatus(stubInvoiceReader{owner: owner, view: view}, nil))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, asUser(httptest.NewRequest(http.MethodGet, "/api/v1/gifts/invoices/"+view.ID.String(), nil), owner))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, asUser(httptest.NewRequest(http.MethodGet, "/api/v1/gifts/invoices/"+view.ID.String(), nil), uuid.New()))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for foreign invoice got %d", rec.Code)
	}
}

func TestGiftSendReturnsShareURL(t *testing.T) {
	svc := &stubTransfers{token: "a1b2c3d4e5f6"}
	req := asUser(jsonRequest(http.MethodPost, "/api/v1/gifts/send", map[string]string{"purchasedGiftId": uuid.NewString()}), uuid.New())
	rec := httptest.NewRecorder()
	GiftSend(svc, stubLinks{}, nil).ServeHTTP(rec, req)

	var envelope struct {
		Data sendResponse `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Data.SendToken != "a1b2c3d4e5f6" {
		t.Fatalf("unexpected token %q", envelope.Data.SendToken)
	}
	if envelope.Data.ShareURL != "https://t.me/giftdrop_bot/app?startapp=gift_a1b2c3d4e5f6" {
		t.Fatalf("unexpected share url %q", envelope.Data.ShareURL)
	}
}

func TestGiftReceiveStripsStartPrefix(t *testing.T) {
	svc := &stubTransfers{}
	req := asUser(jsonRequest(http.MethodPost, "/api/v1/gifts/receive", map[string]string{"token": "gift_a1b2c3d4e5f6"}), uuid.New())
	rec := httptest.NewRecorder()
	GiftReceive(svc, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	if svc.claimed != "a1b2c3d4e5f6" {
		t.Fatalf("unexpected claimed token %q", svc.claimed)
	}
}

func TestGiftReceiveAlreadyClaimed(t *testing.T) {
	svc := &stubTransfers{err: pkgerrors.New(pkgerrors.CodeConflict, "gift already received")}
	req := asUser(jsonRequest(http.MethodPost, "/api/v1/gifts/receive", map[string]string{"token": "a1b2c3d4e5f6"}), uuid.New())
	rec := httptest.NewRecorder()
	GiftReceive(svc, nil).ServeHTTP(rec, req)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d", rec.Code)
	}
}

func TestMyGiftsPassesPagination(t *testing.T) {
	svc := &stubOwnership{page: &ownership.Page{Items: []ownership.OwnedGift{}}}
	rec := httptest.NewRecorder()
	MyGifts(svc, nil).ServeHTTP(rec, asUser(httptest.NewRequest(http.MethodGet, "/api/v1/gifts/my?limit=3&cursor=xyz", nil), uuid.New()))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	if svc.params.Limit != 3 || svc.params.Cursor != "xyz" {
		t.Fatalf("unexpected params %+v", svc.params)
	}
}

func TestGiftActions(t *testing.T) {
	feed := &stubActivities{}
	giftID := uuid.New()
	router := chi.NewRouter()
	router.Get("/api/v1/gifts/{giftId}/actions", GiftActions(feed, nil))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/gifts/"+giftID.String()+"/actions", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	if feed.target != giftID {
		t.Fatalf("expected gift %s got %s", giftID, feed.target)
	}
}
