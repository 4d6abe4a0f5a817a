// Package cryptopay talks to the Crypto Pay REST API used to bill gift purchases.
package cryptopay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/giftdrop-backend/pkg/config"
	"github.com/angelmondragon/giftdrop-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/giftdrop-backend/pkg/errors"
)

const (
	headerAPIToken = "Crypto-Pay-API-Token"

	methodCreateInvoice = "createInvoice"
	methodGetInvoices   = "getInvoices"

	// getInvoicesChunk bounds the ids sent in one getInvoices request.
	getInvoicesChunk = 100
	defaultTimeout   = 10 * time.Second
	maxResponseBytes = 1 << 20
)

// Invoice statuses reported by the gateway.
const (
	StatusActive  = "active"
	StatusPaid    = "paid"
	StatusExpired = "expired"
)

// Observer receives the latency and outcome of each API call.
type Observer interface {
	ObserveGateway(method string, err error, duration time.Duration)
}

// Client is a minimal Crypto Pay client with an explicit request timeout.
type Client struct {
	http     *http.Client
	baseURL  string
	apiToken string
	observer Observer
}

type ClientParams struct {
	Config     config.CryptoPayConfig
	HTTPClient *http.Client
	Observer   Observer
}

// NewClient validates the gateway credentials and builds the client.
func NewClient(params ClientParams) (*Client, error) {
	token := strings.TrimSpace(params.Config.APIToken)
	if token == "" {
		return nil, errors.New("crypto pay api token is required")
	}
	base := strings.TrimRight(strings.TrimSpace(params.Config.BaseURL), "/")
	if base == "" {
		return nil, errors.New("crypto pay base url is required")
	}
	httpClient := params.HTTPClient
	if httpClient == nil {
		timeout := params.Config.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{
		http:     httpClient,
		baseURL:  base,
		apiToken: token,
		observer: params.Observer,
	}, nil
}

// Invoice is the subset of the gateway invoice object the shop relies on.
type Invoice struct {
	InvoiceID     string `json:"-"`
	Hash          string `json:"hash"`
	Status        string `json:"status"`
	Asset         string `json:"asset"`
	Amount        string `json:"amount"`
	PayURL        string `json:"bot_invoice_url"`
	MiniAppPayURL string `json:"mini_app_invoice_url"`
	WebAppPayURL  string `json:"web_app_invoice_url"`
	Payload       string `json:"payload"`
	PaidAt        string `json:"paid_at"`
}

// UnmarshalJSON accepts invoice_id as either a JSON number or string.
func (i *Invoice) UnmarshalJSON(data []byte) error {
	type plain Invoice
	aux := struct {
		*plain
		InvoiceID json.RawMessage `json:"invoice_id"`
	}{plain: (*plain)(i)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	id, err := decodeID(aux.InvoiceID)
	if err != nil {
		return fmt.Errorf("invoice_id: %w", err)
	}
	i.InvoiceID = id
	return nil
}

// CheckoutURL picks the best link to hand to a mini-app user.
func (i Invoice) CheckoutURL() string {
	switch {
	case i.MiniAppPayURL != "":
		return i.MiniAppPayURL
	case i.WebAppPayURL != "":
		return i.WebAppPayURL
	default:
		return i.PayURL
	}
}

type CreateInvoiceParams struct {
	Amount      decimal.Decimal
	Asset       enums.Asset
	ExpiresIn   time.Duration
	Description string
	Payload     string
}

// CreateInvoice issues a crypto-denominated invoice.
func (c *Client) CreateInvoice(ctx context.Context, params CreateInvoiceParams) (*Invoice, error) {
	if !params.Amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invoice amount must be positive")
	}
	if !params.Asset.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unsupported invoice asset")
	}
	body := map[string]any{
		"currency_type": "crypto",
		"asset":         params.Asset.String(),
		"amount":        params.Amount.String(),
	}
	if params.ExpiresIn > 0 {
		body["expires_in"] = int64(params.ExpiresIn / time.Second)
	}
	if params.Description != "" {
		body["description"] = params.Description
	}
	if params.Payload != "" {
		body["payload"] = params.Payload
	}

	var invoice Invoice
	if err := c.call(ctx, methodCreateInvoice, body, &invoice); err != nil {
		return nil, err
	}
	if invoice.InvoiceID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "crypto pay returned an invoice without id")
	}
	return &invoice, nil
}

// GetInvoices fetches the current state of the given invoices. Ids unknown to
// the gateway are simply absent from the result.
func (c *Client) GetInvoices(ctx context.Context, invoiceIDs []string) ([]Invoice, error) {
	if len(invoiceIDs) == 0 {
		return nil, nil
	}
	out := make([]Invoice, 0, len(invoiceIDs))
	for start := 0; start < len(invoiceIDs); start += getInvoicesChunk {
		end := min(start+getInvoicesChunk, len(invoiceIDs))
		chunk := invoiceIDs[start:end]

		var result struct {
			Items []Invoice `json:"items"`
		}
		body := map[string]any{
			"invoice_ids": strings.Join(chunk, ","),
			"count":       len(chunk),
		}
		if err := c.call(ctx, methodGetInvoices, body, &result); err != nil {
			return nil, err
		}
		out = append(out, result.Items...)
	}
	return out, nil
}

type envelope struct {
	OK     bool            `json:"ok"`
	Result json.RawMessage `json:"result"`
	Error  *apiError       `json:"error"`
}

type apiError struct {
	Code int    `json:"code"`
	Name string `json:"name"`
}

func (c *Client) call(ctx context.Context, method string, body any, dest any) (err error) {
	started := time.Now()
	defer func() {
		if c.observer != nil {
			c.observer.ObserveGateway(method, err, time.Since(started))
		}
	}()

	payload, err := json.Marshal(body)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode crypto pay request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+method, bytes.NewReader(payload))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build crypto pay request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(headerAPIToken, c.apiToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("crypto pay %s request failed", method))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("read crypto pay %s response", method))
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("decode crypto pay %s response (status %d)", method, resp.StatusCode))
	}
	if !env.OK {
		name := "UNKNOWN"
		if env.Error != nil && env.Error.Name != "" {
			name = env.Error.Name
		}
		return pkgerrors.New(pkgerrors.CodeDependency, fmt.Sprintf("crypto pay %s rejected: %s", method, name)).
			WithDetails(map[string]any{"status": resp.StatusCode, "error": name})
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return pkgerrors.New(pkgerrors.CodeDependency, fmt.Sprintf("crypto pay %s returned status %d", method, resp.StatusCode))
	}
	if len(env.Result) == 0 || string(env.Result) == "null" {
		return pkgerrors.New(pkgerrors.CodeDependency, fmt.Sprintf("crypto pay %s returned an empty result", method))
	}
	if err := json.Unmarshal(env.Result, dest); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("decode crypto pay %s result", method))
	}
	return nil
}

func decodeID(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}
	var num json.Number
	if err := json.Unmarshal(raw, &num); err == nil {
		return num.String(), nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", err
	}
	if _, err := strconv.ParseInt(s, 10, 64); err != nil {
		return "", fmt.Errorf("non-numeric id %q", s)
	}
	return s, nil
}
