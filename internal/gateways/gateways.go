// Package gateways recognises, authenticates, and normalises payment webhook
// payloads from the supported payment service providers. Each provider is a
// distinct Event variant; downstream code never branches on provider again.
package gateways

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"strings"
	"time"
)

// Provider identifies a payment gateway integration.
type Provider string

const (
	// ProviderEasebuzz is the form-POST, hash-signed gateway.
	ProviderEasebuzz Provider = "easebuzz"
	// ProviderPhonePe is the JSON gateway signed via Authorization or X-VERIFY.
	ProviderPhonePe Provider = "phonepe"
	// ProviderZohoPay is the JSON payments-session gateway.
	ProviderZohoPay Provider = "zohopay"
	// ProviderUnknown is returned when detection cannot decide.
	ProviderUnknown Provider = ""
)

var (
	// ErrSignatureMismatch indicates the presented signature did not match the
	// recomputed one.
	ErrSignatureMismatch = errors.New("gateways: signature mismatch")
	// ErrVerifierUnconfigured indicates verification could not run because no
	// secret material is configured (or the provider omitted the signature).
	// Callers decide whether to continue; the original integrations did.
	ErrVerifierUnconfigured = errors.New("gateways: verifier not configured")
	// ErrCredentialsMissing indicates mandatory gateway credentials are absent.
	ErrCredentialsMissing = errors.New("gateways: gateway credentials missing")
	// ErrOrderIDMissing indicates no order id could be extracted at all.
	ErrOrderIDMissing = errors.New("gateways: order id missing in webhook")
	// ErrOrderIDInvalid indicates the extracted id fails the canonical format.
	ErrOrderIDInvalid = errors.New("gateways: order id format invalid")
)

// EasebuzzCredentials holds the merchant key and salt used for hash checks.
type EasebuzzCredentials struct {
	MerchantKey string
	Salt        string
}

// PhonePeCredentials holds the webhook basic pair and the legacy HMAC secret.
type PhonePeCredentials struct {
	WebhookUser    string
	WebhookPass    string
	MerchantSecret string
}

// ZohoPayCredentials holds the webhook signing key.
type ZohoPayCredentials struct {
	SigningKey string
}

// Credentials aggregates per-provider secret material so events can verify
// themselves without the caller branching on provider.
type Credentials struct {
	Easebuzz EasebuzzCredentials
	PhonePe  PhonePeCredentials
	ZohoPay  ZohoPayCredentials
}

// Event is the canonical view of a parsed webhook delivery.
type Event interface {
	// Provider names the gateway that produced the delivery.
	Provider() Provider
	// Verify authenticates the delivery against the provider's scheme.
	Verify(creds Credentials) error
	// ResolveOrderID extracts the canonical order id, or reports why it can't.
	ResolveOrderID() (string, error)
	// TransactionID returns the gateway reference, synthesising a fallback so
	// the result is never empty.
	TransactionID(now time.Time) string
	// StatusToken returns the raw provider status token.
	StatusToken() string
	// Amount returns the raw amount field, when present.
	Amount() string
	// Payload exposes the raw delivery for audit storage.
	Payload() map[string]any
}

func sha256Hex(message string) string {
	sum := sha256.Sum256([]byte(message))
	return hex.EncodeToString(sum[:])
}

func sha512Hex(message string) string {
	sum := sha512.Sum512([]byte(message))
	return hex.EncodeToString(sum[:])
}

func hmacSHA256Base64(secret, message []byte) string {
	mac := hmac.New(sha256.New, secret)
	_, _ = mac.Write(message)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// equalFoldConstantTime compares two hex digests case-insensitively without
// leaking the mismatch position.
func equalFoldConstantTime(a, b string) bool {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// stripSuffix recovers an original order id from a value that payment
// initiation extended with `_timestamp` or similar suffixes.
func stripSuffix(value string) string {
	value = strings.TrimSpace(value)
	if idx := strings.Index(value, "_"); idx >= 0 {
		// Canonical ids contain exactly one underscore (e.g. OCT_P428); only
		// material past the second segment is a suffix.
		rest := value[idx+1:]
		if next := strings.Index(rest, "_"); next >= 0 {
			return value[:idx+1+next]
		}
	}
	return value
}
