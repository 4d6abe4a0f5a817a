package telegram

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	initdata "github.com/telegram-mini-apps/init-data-golang"
)

var (
	ErrInitDataMissing   = errors.New("init data is empty")
	ErrInitDataSignature = errors.New("init data signature mismatch")
	ErrInitDataExpired   = errors.New("init data expired")
	ErrInitDataUser      = errors.New("init data carries no user")
)

// WebAppUser is the user object embedded in mini-app init data.
type WebAppUser struct {
	ID           int64
	FirstName    string
	LastName     string
	Username     string
	LanguageCode string
	IsPremium    bool
	IsBot        bool
	PhotoURL     string
}

// InitData is the verified launch payload of a mini-app session.
type InitData struct {
	User       WebAppUser
	AuthDate   time.Time
	QueryID    string
	StartParam string
}

// ValidateInitData checks the init data signature against the bot token and,
// when maxAge is positive, rejects payloads signed longer ago than maxAge.
func ValidateInitData(raw, botToken string, maxAge time.Duration, now time.Time) (*InitData, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrInitDataMissing
	}
	// Expiry is checked below against now, so the library only verifies the hash.
	if err := initdata.Validate(raw, botToken, 0); err != nil {
		if errors.Is(err, initdata.ErrSignMissing) || errors.Is(err, initdata.ErrSignInvalid) {
			return nil, ErrInitDataSignature
		}
		return nil, err
	}
	parsed, err := initdata.Parse(raw)
	if err != nil {
		return nil, err
	}

	out := &InitData{QueryID: parsed.QueryID, StartParam: parsed.StartParam}
	if parsed.AuthDateRaw > 0 {
		out.AuthDate = parsed.AuthDate().UTC()
	}
	if maxAge > 0 && (out.AuthDate.IsZero() || now.Sub(out.AuthDate) > maxAge) {
		return nil, ErrInitDataExpired
	}
	if parsed.User.ID == 0 {
		return nil, ErrInitDataUser
	}
	out.User = WebAppUser{
		ID:           parsed.User.ID,
		FirstName:    parsed.User.FirstName,
		LastName:     parsed.User.LastName,
		Username:     parsed.User.Username,
		LanguageCode: parsed.User.LanguageCode,
		IsPremium:    parsed.User.IsPremium,
		IsBot:        parsed.User.IsBot,
		PhotoURL:     parsed.User.PhotoURL,
	}
	return out, nil
}

// SignInitData returns the hex hash Telegram would attach to values. values
// must carry auth_date.
func SignInitData(values url.Values, botToken string) (string, error) {
	secs, err := strconv.ParseInt(values.Get("auth_date"), 10, 64)
	if err != nil {
		return "", fmt.Errorf("auth_date: %w", err)
	}
	payload := make(map[string]string, len(values))
	for key := range values {
		payload[key] = values.Get(key)
	}
	return initdata.Sign(payload, botToken, time.Unix(secs, 0)), nil
}
