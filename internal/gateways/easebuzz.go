package gateways

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/marigold-store/api/internal/domain"
)

// easebuzzHashFields is the documented webhook hash layout:
// SALT|status|<ten empty udf slots>|email|firstname|productinfo|amount|txnid|KEY.
const easebuzzEmptySlots = "|||||||||||"

// EasebuzzEvent is a parsed form-POST delivery from the hash-signed gateway.
type EasebuzzEvent struct {
	fields map[string]string
}

// ParseEasebuzzForm builds an event from decoded form values.
func ParseEasebuzzForm(values url.Values) *EasebuzzEvent {
	fields := make(map[string]string, len(values))
	for key := range values {
		fields[key] = values.Get(key)
	}
	return &EasebuzzEvent{fields: fields}
}

// ParseEasebuzzMap builds an event from a generic JSON object, used when the
// dispatcher receives an easebuzz-shaped body on the shared endpoint.
func ParseEasebuzzMap(body map[string]any) *EasebuzzEvent {
	fields := make(map[string]string, len(body))
	for key, value := range body {
		if s, ok := value.(string); ok {
			fields[key] = s
		} else if value != nil {
			fields[key] = fmt.Sprint(value)
		}
	}
	return &EasebuzzEvent{fields: fields}
}

func (e *EasebuzzEvent) field(name string) string {
	return strings.TrimSpace(e.fields[name])
}

// Provider implements Event.
func (e *EasebuzzEvent) Provider() Provider { return ProviderEasebuzz }

// Verify recomputes the webhook hash and compares case-insensitively. The
// gateway only signs deliveries that carry hash, key, txnid, and amount; a
// delivery without them is reported as unverifiable rather than rejected.
func (e *EasebuzzEvent) Verify(creds Credentials) error {
	key := creds.Easebuzz.MerchantKey
	salt := creds.Easebuzz.Salt
	if key == "" || salt == "" {
		return fmt.Errorf("%w: easebuzz merchant key or salt", ErrCredentialsMissing)
	}
	hash := e.field("hash")
	if hash == "" || e.field("key") == "" || e.field("txnid") == "" || e.field("amount") == "" {
		return fmt.Errorf("%w: easebuzz delivery carries no hash", ErrVerifierUnconfigured)
	}
	message := salt + "|" + e.field("status") + easebuzzEmptySlots +
		e.field("email") + "|" + e.field("firstname") + "|" + e.field("productinfo") + "|" +
		e.field("amount") + "|" + e.field("txnid") + "|" + key
	if !equalFoldConstantTime(sha512Hex(message), hash) {
		return fmt.Errorf("%w: easebuzz hash", ErrSignatureMismatch)
	}
	return nil
}

// ResolveOrderID extracts the canonical order id. udf2 carries the clean id
// (possibly with a payment-initiation suffix); txnid is the fallback. The
// result must match the canonical format or the delivery is unprocessable.
func (e *EasebuzzEvent) ResolveOrderID() (string, error) {
	var candidate string
	switch {
	case e.field("udf2") != "":
		candidate = stripSuffix(e.field("udf2"))
	case e.field("txnid") != "":
		candidate = stripSuffix(e.field("txnid"))
	}
	if candidate == "" {
		return "", ErrOrderIDMissing
	}
	if !domain.ValidOrderID(candidate) {
		return "", fmt.Errorf("%w: %q", ErrOrderIDInvalid, candidate)
	}
	return candidate, nil
}

// TransactionID prefers the gateway's own payment id, then the merchant txn
// id, then the bank reference, and finally synthesises a stable fallback.
func (e *EasebuzzEvent) TransactionID(now time.Time) string {
	for _, name := range []string{"mihpayid", "txnid", "bank_ref_num"} {
		if v := e.field(name); v != "" {
			return v
		}
	}
	orderID, _ := e.ResolveOrderID()
	return fmt.Sprintf("EB_%s_%d", orderID, now.Unix())
}

// StatusToken implements Event.
func (e *EasebuzzEvent) StatusToken() string { return e.field("status") }

// Amount implements Event.
func (e *EasebuzzEvent) Amount() string { return e.field("amount") }

// Payload implements Event.
func (e *EasebuzzEvent) Payload() map[string]any {
	payload := make(map[string]any, len(e.fields))
	for key, value := range e.fields {
		payload[key] = value
	}
	return payload
}
