package webhooks

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/giftdrop-backend/pkg/cryptopay"
)

const (
	testAPIToken = "12345:AAAAtestToken"
	testSecret   = "hook-secret"
	paidUpdate   = `{"update_id":901,"update_type":"invoice_paid","request_date":"2026-03-01T12:00:00Z","payload":{"invoice_id":77,"hash":"IVabc","status":"paid","asset":"USDT","amount":"5"}}`
)

type stubWebhookService struct {
	calls []*cryptopay.Update
	err   error
}

func (s *stubWebhookService) HandleUpdate(_ context.Context, update *cryptopay.Update) error {
	s.calls = append(s.calls, update)
	return s.err
}

type stubGuard struct {
	seen    map[string]bool
	deleted []string
}

func (g *stubGuard) CheckAndMark(_ context.Context, updateID string) (bool, error) {
	if g.seen == nil {
		g.seen = map[string]bool{}
	}
	if g.seen[updateID] {
		return true, nil
	}
	g.seen[updateID] = true
	return false, nil
}

func (g *stubGuard) Forget(_ context.Context, updateID string) error {
	delete(g.seen, updateID)
	g.deleted = append(g.deleted, updateID)
	return nil
}

type tokenVerifier string

func (v tokenVerifier) VerifySignature(body []byte, signature string) bool {
	return cryptopay.VerifySignature(string(v), body, signature)
}

func newWebhookRouter(svc *stubWebhookService, guard *stubGuard, verify bool) http.Handler {
	params := CryptoPayWebhookParams{Service: svc, Guard: guard, Secret: testSecret}
	if verify {
		params.Verifier = tokenVerifier(testAPIToken)
	}
	r := chi.NewRouter()
	r.Post("/api/v1/webhooks/cryptopay/{secret}", CryptoPayWebhook(params))
	return r
}

func deliver(t *testing.T, handler http.Handler, secret, body string, signed bool) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/cryptopay/"+secret, bytes.NewBufferString(body))
	if signed {
		req.Header.Set(cryptopay.SignatureHeader, hex.EncodeToString(cryptopay.Sign(testAPIToken, []byte(body))))
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestCryptoPayWebhookRejectsWrongSecret(t *testing.T) {
	svc := &stubWebhookService{}
	rec := deliver(t, newWebhookRouter(svc, &stubGuard{}, true), "guess", paidUpdate, true)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Empty(t, svc.calls)
}

func TestCryptoPayWebhookRejectsBadSignature(t *testing.T) {
	svc := &stubWebhookService{}
	rec := deliver(t, newWebhookRouter(svc, &stubGuard{}, true), testSecret, paidUpdate, false)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, svc.calls)
}

func TestCryptoPayWebhookProcessesOnce(t *testing.T) {
	svc := &stubWebhookService{}
	guard := &stubGuard{}
	router := newWebhookRouter(svc, guard, true)

	first := deliver(t, router, testSecret, paidUpdate, true)
	second := deliver(t, router, testSecret, paidUpdate, true)

	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, http.StatusOK, second.Code)
	require.Len(t, svc.calls, 1)
	assert.Equal(t, "901", svc.calls[0].UpdateID)
	assert.Equal(t, cryptopay.UpdateInvoicePaid, svc.calls[0].UpdateType)
}

func TestCryptoPayWebhookForgetsFailedUpdates(t *testing.T) {
	svc := &stubWebhookService{err: errors.New("db down")}
	guard := &stubGuard{}
	router := newWebhookRouter(svc, guard, false)

	rec := deliver(t, router, testSecret, paidUpdate, false)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, []string{"901"}, guard.deleted)

	svc.err = nil
	rec = deliver(t, router, testSecret, paidUpdate, false)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, svc.calls, 2)
}

func TestCryptoPayWebhookAcknowledgesUndecodableBody(t *testing.T) {
	svc := &stubWebhookService{}
	guard := &stubGuard{}
	rec := deliver(t, newWebhookRouter(svc, guard, false), testSecret, `not json`, false)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, svc.calls)
	assert.Empty(t, guard.seen)
}

func TestCryptoPayWebhookHandlesUpdateWithoutID(t *testing.T) {
	svc := &stubWebhookService{}
	guard := &stubGuard{}
	router := newWebhookRouter(svc, guard, false)

	first := deliver(t, router, testSecret, `{"update_type":"invoice_created","payload":{}}`, false)
	second := deliver(t, router, testSecret, `{"update_type":"invoice_paid"}`, false)

	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, http.StatusOK, second.Code)
	assert.Len(t, svc.calls, 2)
	assert.Empty(t, guard.seen)
}
