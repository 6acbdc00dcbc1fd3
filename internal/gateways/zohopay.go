package gateways

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// zohoSignatureHeaders lists the header names the gateway has been observed
// to sign under, most recent first.
var zohoSignatureHeaders = []string{
	"X-Zoho-Webhook-Signature",
	"X-Zoho-Signature",
	"Zoho-Webhook-Signature",
}

// ZohoPayEvent is a parsed JSON delivery from the payments-session gateway.
type ZohoPayEvent struct {
	raw       []byte
	body      map[string]any
	signature string
}

// ParseZohoPay builds an event from the raw body and request headers.
func ParseZohoPay(raw []byte, header http.Header) (*ZohoPayEvent, error) {
	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, fmt.Errorf("gateways: decode zohopay payload: %w", err)
	}
	var signature string
	for _, name := range zohoSignatureHeaders {
		if v := header.Get(name); v != "" {
			signature = v
			break
		}
	}
	return &ZohoPayEvent{raw: raw, body: body, signature: signature}, nil
}

// Provider implements Event.
func (e *ZohoPayEvent) Provider() Provider { return ProviderZohoPay }

// Verify checks SHA-256 hex of the raw body concatenated with the signing
// key. A missing key, or a configured key with no presented signature, is
// reported as unverifiable so the caller can log and continue; an actual
// mismatch is fatal.
func (e *ZohoPayEvent) Verify(creds Credentials) error {
	key := creds.ZohoPay.SigningKey
	if key == "" {
		return fmt.Errorf("%w: zohopay signing key", ErrVerifierUnconfigured)
	}
	if e.signature == "" {
		return fmt.Errorf("%w: zohopay delivery carries no signature", ErrVerifierUnconfigured)
	}
	if !equalFoldConstantTime(sha256Hex(string(e.raw)+key), e.signature) {
		return fmt.Errorf("%w: zohopay signature", ErrSignatureMismatch)
	}
	return nil
}

func (e *ZohoPayEvent) field(name string) string {
	return leafString(e.body[name])
}

// ResolveOrderID uses reference_id, which the initiation flow sets to the
// canonical order id, then generic fallbacks.
func (e *ZohoPayEvent) ResolveOrderID() (string, error) {
	for _, name := range []string{"reference_id", "orderId", "order_id"} {
		if v := e.field(name); v != "" {
			return stripSuffix(v), nil
		}
	}
	return "", ErrOrderIDMissing
}

// TransactionID prefers the gateway payment id, then the session id.
func (e *ZohoPayEvent) TransactionID(now time.Time) string {
	for _, name := range []string{"payment_id", "payments_session_id"} {
		if v := e.field(name); v != "" {
			return v
		}
	}
	orderID, _ := e.ResolveOrderID()
	return fmt.Sprintf("ZP_%s_%d", orderID, now.Unix())
}

// StatusToken implements Event.
func (e *ZohoPayEvent) StatusToken() string { return e.field("status") }

// Amount implements Event.
func (e *ZohoPayEvent) Amount() string { return e.field("amount") }

// Payload implements Event.
func (e *ZohoPayEvent) Payload() map[string]any { return e.body }
