package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/giftdrop-backend/pkg/config"
	"github.com/angelmondragon/giftdrop-backend/pkg/db/models"
	"github.com/angelmondragon/giftdrop-backend/pkg/telegram"
)

const testBotToken = "7000000001:AAHdqTcvCH1vGWJxfSeofSAs0K5PALDsaw"

type stubUsers struct {
	seen []telegram.WebAppUser
	id   uuid.UUID
}

func (s *stubUsers) Ensure(_ context.Context, tgUser telegram.WebAppUser) (*models.User, error) {
	s.seen = append(s.seen, tgUser)
	return &models.User{ID: s.id, TelegramID: tgUser.ID, FirstName: tgUser.FirstName}, nil
}

func signedInitData(t *testing.T, authDate time.Time) string {
	t.Helper()
	values := url.Values{}
	values.Set("auth_date", strconv.FormatInt(authDate.Unix(), 10))
	values.Set("user", `{"id":64054676,"first_name":"Alice","username":"alice"}`)
	hash, err := telegram.SignInitData(values, testBotToken)
	require.NoError(t, err)
	values.Set("hash", hash)
	return values.Encode()
}

func authHandler(users *stubUsers, allowDebug bool, captured *struct {
	user uuid.UUID
	tg   int64
}) http.Handler {
	cfg := config.TelegramConfig{BotToken: testBotToken, InitDataMaxAge: time.Hour}
	return TelegramAuth(cfg, allowDebug, users, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured.user = UserIDFromContext(r.Context())
		captured.tg = TelegramIDFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))
}

func TestTelegramAuthAcceptsSignedInitData(t *testing.T) {
	users := &stubUsers{id: uuid.New()}
	var captured struct {
		user uuid.UUID
		tg   int64
	}
	handler := authHandler(users, false, &captured)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/profile/me", nil)
	req.Header.Set("Authorization", "tma "+signedInitData(t, time.Now().Add(-time.Minute)))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d (%s)", resp.Code, resp.Body.String())
	}
	if captured.user != users.id || captured.tg != 64054676 {
		t.Fatalf("unexpected identity %v/%d", captured.user, captured.tg)
	}
	if len(users.seen) != 1 || users.seen[0].Username != "alice" {
		t.Fatalf("expected profile upsert with username, got %+v", users.seen)
	}
}

func TestTelegramAuthRejectsTamperedInitData(t *testing.T) {
	var captured struct {
		user uuid.UUID
		tg   int64
	}
	handler := authHandler(&stubUsers{}, false, &captured)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "tma "+signedInitData(t, time.Now())+"&extra=1")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestTelegramAuthDebugHeader(t *testing.T) {
	var captured struct {
		user uuid.UUID
		tg   int64
	}
	users := &stubUsers{id: uuid.New()}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(debugLoginHeader, "42")
	resp := httptest.NewRecorder()
	authHandler(users, false, &captured).ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected debug header to be refused when disabled, got %d", resp.Code)
	}

	resp = httptest.NewRecorder()
	authHandler(users, true, &captured).ServeHTTP(resp, req)
	if resp.Code != http.StatusOK || captured.tg != 42 {
		t.Fatalf("expected debug login to pass, got %d tg=%d", resp.Code, captured.tg)
	}
}

func TestRequireAdmin(t *testing.T) {
	cfg := config.TelegramConfig{AdminIDs: []int64{7}}
	handler := RequireAdmin(cfg, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	for _, tc := range []struct {
		telegramID int64
		want       int
	}{
		{7, http.StatusNoContent},
		{8, http.StatusForbidden},
	} {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/gifts", nil)
		req = req.WithContext(WithUser(req.Context(), uuid.New(), tc.telegramID))
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, req)
		if resp.Code != tc.want {
			t.Fatalf("telegram id %d: expected %d got %d", tc.telegramID, tc.want, resp.Code)
		}
	}
}
