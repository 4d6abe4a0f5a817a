package cryptopay

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
)

const (
	// SignatureHeader carries the hex HMAC of the raw webhook body.
	SignatureHeader = "Crypto-Pay-Api-Signature"

	UpdateInvoicePaid = "invoice_paid"
)

// Update is the webhook envelope pushed by the gateway.
type Update struct {
	UpdateID    string          `json:"-"`
	UpdateType  string          `json:"update_type"`
	RequestDate string          `json:"request_date"`
	Payload     json.RawMessage `json:"payload"`
}

func (u *Update) UnmarshalJSON(data []byte) error {
	type plain Update
	aux := struct {
		*plain
		UpdateID json.RawMessage `json:"update_id"`
	}{plain: (*plain)(u)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	id, err := decodeID(aux.UpdateID)
	if err != nil {
		return fmt.Errorf("update_id: %w", err)
	}
	u.UpdateID = id
	return nil
}

// PaidInvoice decodes the payload of an invoice_paid update.
func (u Update) PaidInvoice() (*Invoice, error) {
	if u.UpdateType != UpdateInvoicePaid {
		return nil, fmt.Errorf("update %q is not %s", u.UpdateType, UpdateInvoicePaid)
	}
	if len(u.Payload) == 0 {
		return nil, fmt.Errorf("update payload is empty")
	}
	var invoice Invoice
	if err := json.Unmarshal(u.Payload, &invoice); err != nil {
		return nil, err
	}
	if invoice.InvoiceID == "" {
		return nil, fmt.Errorf("update payload has no invoice_id")
	}
	return &invoice, nil
}

// VerifySignature checks the webhook HMAC. The key is the SHA-256 digest of
// the API token.
func (c *Client) VerifySignature(body []byte, signature string) bool {
	return VerifySignature(c.apiToken, body, signature)
}

func VerifySignature(apiToken string, body []byte, signature string) bool {
	signature = strings.TrimSpace(signature)
	if signature == "" {
		return false
	}
	expected, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	return hmac.Equal(expected, Sign(apiToken, body))
}

// Sign returns the raw HMAC the gateway would attach to body.
func Sign(apiToken string, body []byte) []byte {
	secret := sha256.Sum256([]byte(apiToken))
	mac := hmac.New(sha256.New, secret[:])
	mac.Write(body)
	return mac.Sum(nil)
}
