package gateways

import (
	"crypto/hmac"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// PhonePeEvent is a parsed JSON delivery from the signed-header gateway. The
// raw body is retained because the fallback HMAC scheme signs the exact bytes.
type PhonePeEvent struct {
	raw          []byte
	body         map[string]any
	authHeader   string
	verifyHeader string
}

// ParsePhonePe builds an event from the raw body and request headers.
func ParsePhonePe(raw []byte, header http.Header) (*PhonePeEvent, error) {
	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, fmt.Errorf("gateways: decode phonepe payload: %w", err)
	}
	verify := header.Get("X-VERIFY")
	if verify == "" {
		verify = header.Get("x-phonepe-signature")
	}
	return &PhonePeEvent{
		raw:          raw,
		body:         body,
		authHeader:   header.Get("Authorization"),
		verifyHeader: verify,
	}, nil
}

// Provider implements Event.
func (e *PhonePeEvent) Provider() Provider { return ProviderPhonePe }

// Verify prefers the documented Authorization scheme, SHA-256 hex of
// "user:password" with an optional "SHA256 " prefix. When no webhook pair is
// configured it falls back to the legacy HMAC of the raw body against the
// verification header. Mismatch under either scheme is fatal.
func (e *PhonePeEvent) Verify(creds Credentials) error {
	pp := creds.PhonePe
	switch {
	case pp.WebhookUser != "" && pp.WebhookPass != "":
		presented := strings.TrimPrefix(e.authHeader, "SHA256 ")
		if presented == "" {
			return fmt.Errorf("%w: phonepe authorization header missing", ErrSignatureMismatch)
		}
		expected := sha256Hex(pp.WebhookUser + ":" + pp.WebhookPass)
		if !equalFoldConstantTime(presented, expected) {
			return fmt.Errorf("%w: phonepe authorization", ErrSignatureMismatch)
		}
		return nil
	case pp.MerchantSecret != "":
		expected := hmacSHA256Base64([]byte(pp.MerchantSecret), e.raw)
		if !hmac.Equal([]byte(e.verifyHeader), []byte(expected)) {
			return fmt.Errorf("%w: phonepe x-verify", ErrSignatureMismatch)
		}
		return nil
	default:
		return fmt.Errorf("%w: phonepe webhook credentials", ErrVerifierUnconfigured)
	}
}

// ResolveOrderID walks the documented fallback chain. The gateway mangles the
// merchant order id in several payload generations, so every candidate is
// normalised by stripping initiation suffixes.
func (e *PhonePeEvent) ResolveOrderID() (string, error) {
	candidates := []string{
		e.lookup("payload", "metaInfo", "udf2"),
		e.lookup("udf2"),
		e.lookup("payload", "merchantOrderId"),
		e.lookup("merchantOrderId"),
		e.lookup("merchantTransactionId"),
		e.lookup("orderId"),
		e.lookup("order_id"),
		e.lookup("payload", "payment", "merchantOrderId"),
	}
	for _, candidate := range candidates {
		if candidate == "" {
			continue
		}
		return stripSuffix(candidate), nil
	}
	return "", ErrOrderIDMissing
}

// TransactionID walks the transaction id fallback chain and synthesises a
// stable fallback when the payload carries none.
func (e *PhonePeEvent) TransactionID(now time.Time) string {
	candidates := []string{
		e.lookupIndexed("transactionId", "payload", "paymentDetails"),
		e.lookup("payload", "transactionId"),
		e.lookup("transactionId"),
		e.lookup("paymentId"),
		e.lookup("txnId"),
		e.lookup("txnid"),
		e.lookup("payload", "payment", "transactionId"),
	}
	for _, candidate := range candidates {
		if candidate != "" {
			return candidate
		}
	}
	orderID, _ := e.ResolveOrderID()
	return fmt.Sprintf("PP_%s_%d", orderID, now.Unix())
}

// StatusToken returns the uppercased payment state from its fallback chain.
func (e *PhonePeEvent) StatusToken() string {
	for _, candidate := range []string{
		e.lookup("payload", "state"),
		e.lookup("state"),
		e.lookup("payload", "payment", "state"),
	} {
		if candidate != "" {
			return strings.ToUpper(candidate)
		}
	}
	return ""
}

// Amount implements Event.
func (e *PhonePeEvent) Amount() string {
	for _, candidate := range []string{e.lookup("payload", "amount"), e.lookup("amount")} {
		if candidate != "" {
			return candidate
		}
	}
	return ""
}

// Payload implements Event.
func (e *PhonePeEvent) Payload() map[string]any { return e.body }

// lookup walks nested objects and stringifies the leaf.
func (e *PhonePeEvent) lookup(path ...string) string {
	current := any(e.body)
	for _, key := range path {
		obj, ok := current.(map[string]any)
		if !ok {
			return ""
		}
		current = obj[key]
	}
	return leafString(current)
}

// lookupIndexed reads key from the first element of the array at path.
func (e *PhonePeEvent) lookupIndexed(key string, path ...string) string {
	current := any(e.body)
	for _, segment := range path {
		obj, ok := current.(map[string]any)
		if !ok {
			return ""
		}
		current = obj[segment]
	}
	arr, ok := current.([]any)
	if !ok || len(arr) == 0 {
		return ""
	}
	obj, ok := arr[0].(map[string]any)
	if !ok {
		return ""
	}
	return leafString(obj[key])
}

func leafString(value any) string {
	switch v := value.(type) {
	case string:
		return strings.TrimSpace(v)
	case json.Number:
		return v.String()
	case float64:
		return strings.TrimSpace(fmt.Sprintf("%v", v))
	default:
		return ""
	}
}
