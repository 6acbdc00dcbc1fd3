package gateways

import (
	"fmt"
	"net/http"
)

// Detect inspects headers and the decoded body to decide which provider sent
// a delivery to the shared endpoint. It returns ProviderUnknown when nothing
// matches; the caller falls back to the configured default provider.
func Detect(header http.Header, body map[string]any) Provider {
	if header.Get("X-VERIFY") != "" || header.Get("x-phonepe-signature") != "" {
		return ProviderPhonePe
	}
	for _, name := range zohoSignatureHeaders {
		if header.Get(name) != "" {
			return ProviderZohoPay
		}
	}
	// The zoho session shape also carries a status field, so check its
	// distinctive keys before the easebuzz form triple.
	if body["payments_session_id"] != nil || body["reference_id"] != nil {
		return ProviderZohoPay
	}
	if body["status"] != nil || body["txnid"] != nil || body["amount"] != nil || body["firstname"] != nil {
		return ProviderEasebuzz
	}
	if body["payload"] != nil || body["merchantOrderId"] != nil || body["merchantTransactionId"] != nil {
		return ProviderPhonePe
	}
	return ProviderUnknown
}

// EventForProvider builds the matching event variant from a delivery already
// decoded by the shared endpoint.
func EventForProvider(provider Provider, raw []byte, header http.Header, body map[string]any) (Event, error) {
	switch provider {
	case ProviderEasebuzz:
		return ParseEasebuzzMap(body), nil
	case ProviderPhonePe:
		return ParsePhonePe(raw, header)
	case ProviderZohoPay:
		return ParseZohoPay(raw, header)
	default:
		return nil, fmt.Errorf("gateways: unsupported provider %q", provider)
	}
}
