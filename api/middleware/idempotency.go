package middleware

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/giftdrop-backend/api/responses"
	pkgerrors "github.com/angelmondragon/giftdrop-backend/pkg/errors"
	"github.com/angelmondragon/giftdrop-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/giftdrop-backend/pkg/redis"
)

const (
	idempotencyHeader    = "Idempotency-Key"
	replayHeader         = "Idempotent-Replayed"
	maxIdempotencyKeyLen = 128
	inFlightMarker       = "in-flight"
	defaultInFlightTTL   = 30 * time.Second
	defaultReplayTTL     = 24 * time.Hour
)

// IdempotentRoutes are the mini-app mutations a client may retry after a
// dropped response. Paths are matched after the /api/v1 prefix is applied.
var IdempotentRoutes = []string{
	"/api/v1/gifts/buy",
	"/api/v1/gifts/send",
	"/api/v1/gifts/receive",
	"/api/v1/admin/gifts",
}

type IdempotencyOptions struct {
	Routes      []string
	TTL         time.Duration
	InFlightTTL time.Duration
}

type storedResponse struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type,omitempty"`
	Body        string `json:"body"`
	RequestHash string `json:"request_hash"`
}

// Idempotency replays the first response recorded for an Idempotency-Key.
// While the first request is still running, retries get a 409. Server errors
// release the key so the client can try again. POSTs outside opts.Routes and
// requests without the header pass straight through.
func Idempotency(store pkgredis.IdempotencyStore, opts IdempotencyOptions, logg *logger.Logger) func(http.Handler) http.Handler {
	if opts.TTL <= 0 {
		opts.TTL = defaultReplayTTL
	}
	if opts.InFlightTTL <= 0 {
		opts.InFlightTTL = defaultInFlightTTL
	}
	routes := make(map[string]struct{}, len(opts.Routes))
	for _, route := range opts.Routes {
		routes[strings.TrimSuffix(route, "/")] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientKey := strings.TrimSpace(r.Header.Get(idempotencyHeader))
			if store == nil || clientKey == "" || r.Method != http.MethodPost {
				next.ServeHTTP(w, r)
				return
			}
			if _, ok := routes[strings.TrimSuffix(r.URL.Path, "/")]; !ok {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()
			if len(clientKey) > maxIdempotencyKeyLen {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key is too long"))
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			key := store.IdempotencyKey(callerScope(r), clientKey)
			fingerprint := fingerprint(r.URL.Path, body)

			claimed, err := store.SetNX(ctx, key, inFlightMarker, opts.InFlightTTL)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim idempotency key"))
				return
			}
			if !claimed {
				replayOrReject(w, r, store, key, fingerprint, logg)
				return
			}

			capture := &responseCapture{ResponseWriter: w}
			next.ServeHTTP(capture, r)

			// The in-flight marker is swapped for the final record; a 5xx leaves
			// the key free.
			if err := store.Del(ctx, key); err != nil && logg != nil {
				logg.Error(ctx, "idempotency.release_failed", err)
			}
			if capture.statusCode() >= http.StatusInternalServerError {
				return
			}
			payload, err := json.Marshal(storedResponse{
				Status:      capture.statusCode(),
				ContentType: capture.Header().Get("Content-Type"),
				Body:        base64.StdEncoding.EncodeToString(capture.body.Bytes()),
				RequestHash: fingerprint,
			})
			if err != nil {
				return
			}
			if _, err := store.SetNX(ctx, key, string(payload), opts.TTL); err != nil && logg != nil {
				logg.Error(ctx, "idempotency.persist_failed", err)
			}
		})
	}
}

func replayOrReject(w http.ResponseWriter, r *http.Request, store pkgredis.IdempotencyStore, key, fingerprint string, logg *logger.Logger) {
	ctx := r.Context()
	raw, err := store.Get(ctx, key)
	switch {
	case errors.Is(err, redis.Nil):
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeConflict, "request with this Idempotency-Key is still in progress"))
		return
	case err != nil:
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read idempotency record"))
		return
	case raw == inFlightMarker:
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeConflict, "request with this Idempotency-Key is still in progress"))
		return
	}

	var stored storedResponse
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode idempotency record"))
		return
	}
	if stored.RequestHash != fingerprint {
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeConflict, "Idempotency-Key reused with a different request"))
		return
	}

	if stored.ContentType != "" {
		w.Header().Set("Content-Type", stored.ContentType)
	}
	w.Header().Set(replayHeader, "true")
	w.WriteHeader(stored.Status)
	if decoded, err := base64.StdEncoding.DecodeString(stored.Body); err == nil {
		_, _ = w.Write(decoded)
	}
}

// callerScope keys records per Telegram user so two users sharing a key never
// see each other's responses.
func callerScope(r *http.Request) string {
	if id := TelegramIDFromContext(r.Context()); id != 0 {
		return "tg:" + strconv.FormatInt(id, 10)
	}
	return "anon"
}

func fingerprint(path string, body []byte) string {
	h := sha256.New()
	h.Write([]byte(path))
	h.Write([]byte{0})
	h.Write(body)
	return base64.RawStdEncoding.EncodeToString(h.Sum(nil))
}

type responseCapture struct {
	http.ResponseWriter
	body   bytes.Buffer
	status int
}

func (c *responseCapture) WriteHeader(code int) {
	if c.status == 0 {
		c.status = code
	}
	c.ResponseWriter.WriteHeader(code)
}

func (c *responseCapture) Write(b []byte) (int, error) {
	if c.status == 0 {
		c.status = http.StatusOK
	}
	c.body.Write(b)
	return c.ResponseWriter.Write(b)
}

func (c *responseCapture) statusCode() int {
	if c.status == 0 {
		return http.StatusOK
	}
	return c.status
}
