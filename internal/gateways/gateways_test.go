package gateways

import (
	"errors"
	"net/http"
	"net/url"
	"testing"
	"time"
)

var testCreds = Credentials{
	Easebuzz: EasebuzzCredentials{MerchantKey: "MKEY", Salt: "SALT"},
	PhonePe:  PhonePeCredentials{WebhookUser: "hookuser", WebhookPass: "hookpass"},
	ZohoPay:  ZohoPayCredentials{SigningKey: "zsign"},
}

func easebuzzForm(overrides map[string]string) url.Values {
	values := url.Values{}
	base := map[string]string{
		"txnid":       "OCT_P428_1699999999",
		"amount":      "499.00",
		"productinfo": "Marigold Tee",
		"firstname":   "Asha",
		"email":       "asha@example.com",
		"status":      "success",
		"key":         "MKEY",
		"udf2":        "OCT_P428",
		"mihpayid":    "403993715527",
	}
	for k, v := range overrides {
		base[k] = v
	}
	for k, v := range base {
		values.Set(k, v)
	}
	hashInput := "SALT|" + base["status"] + "|||||||||||" + base["email"] + "|" +
		base["firstname"] + "|" + base["productinfo"] + "|" + base["amount"] + "|" +
		base["txnid"] + "|MKEY"
	values.Set("hash", sha512Hex(hashInput))
	return values
}

func TestEasebuzzVerify(t *testing.T) {
	ev := ParseEasebuzzForm(easebuzzForm(nil))
	if err := ev.Verify(testCreds); err != nil {
		t.Fatalf("valid hash rejected: %v", err)
	}

	tampered := easebuzzForm(nil)
	tampered.Set("amount", "1.00")
	if err := ParseEasebuzzForm(tampered).Verify(testCreds); !errors.Is(err, ErrSignatureMismatch) {
		t.Fatalf("tampered amount: want signature mismatch, got %v", err)
	}

	unsigned := easebuzzForm(nil)
	unsigned.Del("hash")
	if err := ParseEasebuzzForm(unsigned).Verify(testCreds); !errors.Is(err, ErrVerifierUnconfigured) {
		t.Fatalf("unsigned delivery: want unverifiable, got %v", err)
	}

	if err := ev.Verify(Credentials{}); !errors.Is(err, ErrCredentialsMissing) {
		t.Fatalf("missing credentials: want ErrCredentialsMissing, got %v", err)
	}
}

func TestEasebuzzVerifyCaseInsensitive(t *testing.T) {
	upper := easebuzzForm(nil)
	upper.Set("hash", upperHex(upper.Get("hash")))
	if err := ParseEasebuzzForm(upper).Verify(testCreds); err != nil {
		t.Fatalf("uppercase hash rejected: %v", err)
	}
}

func upperHex(s string) string {
	out := []byte(s)
	for i, c := range out {
		if c >= 'a' && c <= 'f' {
			out[i] = c - 'a' + 'A'
		}
	}
	return string(out)
}

func TestEasebuzzOrderIDResolution(t *testing.T) {
	ev := ParseEasebuzzForm(easebuzzForm(map[string]string{"udf2": "OCT_P428_1699999999_ab12cd"}))
	orderID, err := ev.ResolveOrderID()
	if err != nil || orderID != "OCT_P428" {
		t.Fatalf("suffixed udf2: got %q err=%v", orderID, err)
	}

	noUDF := easebuzzForm(map[string]string{"udf2": "", "txnid": "NOV_P12_1700000001"})
	orderID, err = ParseEasebuzzForm(noUDF).ResolveOrderID()
	if err != nil || orderID != "NOV_P12" {
		t.Fatalf("txnid fallback: got %q err=%v", orderID, err)
	}

	bad := easebuzzForm(map[string]string{"udf2": "not-an-order"})
	if _, err := ParseEasebuzzForm(bad).ResolveOrderID(); !errors.Is(err, ErrOrderIDInvalid) {
		t.Fatalf("invalid id: want ErrOrderIDInvalid, got %v", err)
	}

	empty := easebuzzForm(map[string]string{"udf2": "", "txnid": ""})
	if _, err := ParseEasebuzzForm(empty).ResolveOrderID(); !errors.Is(err, ErrOrderIDMissing) {
		t.Fatalf("empty fields: want ErrOrderIDMissing, got %v", err)
	}
}

func TestEasebuzzTransactionIDPrecedence(t *testing.T) {
	now := time.Unix(1700000000, 0)

	ev := ParseEasebuzzForm(easebuzzForm(nil))
	if got := ev.TransactionID(now); got != "403993715527" {
		t.Fatalf("mihpayid should win, got %q", got)
	}

	noPayID := ParseEasebuzzForm(easebuzzForm(map[string]string{"mihpayid": ""}))
	if got := noPayID.TransactionID(now); got != "OCT_P428_1699999999" {
		t.Fatalf("txnid should be second, got %q", got)
	}

	bare := ParseEasebuzzForm(easebuzzForm(map[string]string{
		"mihpayid": "", "txnid": "", "bank_ref_num": "",
	}))
	if got := bare.TransactionID(now); got != "EB_OCT_P428_1700000000" {
		t.Fatalf("synthesised fallback wrong: %q", got)
	}
}

func phonePeBody() []byte {
	return []byte(`{
		"event": "checkout.order.completed",
		"payload": {
			"merchantOrderId": "OCT_P431_1699999123",
			"state": "COMPLETED",
			"amount": 49900,
			"metaInfo": {"udf2": "OCT_P431"},
			"paymentDetails": [{"transactionId": "OM2310301234"}]
		}
	}`)
}

func TestPhonePeAuthorizationVerify(t *testing.T) {
	expected := sha256Hex("hookuser:hookpass")

	header := http.Header{}
	header.Set("Authorization", "SHA256 "+expected)
	ev, err := ParsePhonePe(phonePeBody(), header)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if err := ev.Verify(testCreds); err != nil {
		t.Fatalf("prefixed authorization rejected: %v", err)
	}

	header.Set("Authorization", upperHex(expected))
	ev, _ = ParsePhonePe(phonePeBody(), header)
	if err := ev.Verify(testCreds); err != nil {
		t.Fatalf("bare uppercase authorization rejected: %v", err)
	}

	header.Set("Authorization", "SHA256 deadbeef")
	ev, _ = ParsePhonePe(phonePeBody(), header)
	if err := ev.Verify(testCreds); !errors.Is(err, ErrSignatureMismatch) {
		t.Fatalf("wrong authorization: want mismatch, got %v", err)
	}
}

func TestPhonePeHMACFallback(t *testing.T) {
	creds := Credentials{PhonePe: PhonePeCredentials{MerchantSecret: "legacy-secret"}}
	body := phonePeBody()

	header := http.Header{}
	header.Set("X-VERIFY", hmacSHA256Base64([]byte("legacy-secret"), body))
	ev, err := ParsePhonePe(body, header)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if err := ev.Verify(creds); err != nil {
		t.Fatalf("valid hmac rejected: %v", err)
	}

	header.Set("X-VERIFY", "bogus")
	ev, _ = ParsePhonePe(body, header)
	if err := ev.Verify(creds); !errors.Is(err, ErrSignatureMismatch) {
		t.Fatalf("bad hmac: want mismatch, got %v", err)
	}

	ev, _ = ParsePhonePe(body, http.Header{})
	if err := ev.Verify(Credentials{}); !errors.Is(err, ErrVerifierUnconfigured) {
		t.Fatalf("no credentials: want unverifiable, got %v", err)
	}
}

func TestPhonePeFieldFallbacks(t *testing.T) {
	ev, err := ParsePhonePe(phonePeBody(), http.Header{})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	orderID, err := ev.ResolveOrderID()
	if err != nil || orderID != "OCT_P431" {
		t.Fatalf("metaInfo.udf2 should win: got %q err=%v", orderID, err)
	}
	if got := ev.TransactionID(time.Unix(0, 0)); got != "OM2310301234" {
		t.Fatalf("paymentDetails transaction id should win, got %q", got)
	}
	if got := ev.StatusToken(); got != "COMPLETED" {
		t.Fatalf("state token wrong: %q", got)
	}

	flat, err := ParsePhonePe([]byte(`{"merchantTransactionId":"OCT_P431_1699999123","state":"failed"}`), http.Header{})
	if err != nil {
		t.Fatalf("parse flat: %v", err)
	}
	orderID, err = flat.ResolveOrderID()
	if err != nil || orderID != "OCT_P431" {
		t.Fatalf("merchantTransactionId fallback: got %q err=%v", orderID, err)
	}
	if got := flat.StatusToken(); got != "FAILED" {
		t.Fatalf("state must be uppercased, got %q", got)
	}
	if got := flat.TransactionID(time.Unix(1700000000, 0)); got != "PP_OCT_P431_1700000000" {
		t.Fatalf("synthesised fallback wrong: %q", got)
	}
}

func zohoBody() []byte {
	return []byte(`{"event_type":"payment.captured","payment_id":"pay_901","payments_session_id":"sess_14","reference_id":"OCT_P433","status":"success","amount":"1299"}`)
}

func TestZohoPayVerify(t *testing.T) {
	body := zohoBody()
	header := http.Header{}
	header.Set("X-Zoho-Webhook-Signature", sha256Hex(string(body)+"zsign"))
	ev, err := ParseZohoPay(body, header)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if err := ev.Verify(testCreds); err != nil {
		t.Fatalf("valid signature rejected: %v", err)
	}

	header.Set("X-Zoho-Webhook-Signature", "feedface")
	ev, _ = ParseZohoPay(body, header)
	if err := ev.Verify(testCreds); !errors.Is(err, ErrSignatureMismatch) {
		t.Fatalf("bad signature: want mismatch, got %v", err)
	}

	ev, _ = ParseZohoPay(body, http.Header{})
	if err := ev.Verify(testCreds); !errors.Is(err, ErrVerifierUnconfigured) {
		t.Fatalf("missing signature with key: want unverifiable, got %v", err)
	}
	if err := ev.Verify(Credentials{}); !errors.Is(err, ErrVerifierUnconfigured) {
		t.Fatalf("missing key: want unverifiable, got %v", err)
	}
}

func TestZohoPayExtraction(t *testing.T) {
	ev, err := ParseZohoPay(zohoBody(), http.Header{})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	orderID, err := ev.ResolveOrderID()
	if err != nil || orderID != "OCT_P433" {
		t.Fatalf("reference_id extraction: got %q err=%v", orderID, err)
	}
	if got := ev.TransactionID(time.Unix(0, 0)); got != "pay_901" {
		t.Fatalf("payment_id should win, got %q", got)
	}
	if got := ev.StatusToken(); got != "success" {
		t.Fatalf("status token wrong: %q", got)
	}
}

func TestDetect(t *testing.T) {
	phonepeHeader := http.Header{}
	phonepeHeader.Set("X-VERIFY", "sig")
	if got := Detect(phonepeHeader, map[string]any{"status": "success"}); got != ProviderPhonePe {
		t.Fatalf("x-verify header must win, got %q", got)
	}

	zohoHeader := http.Header{}
	zohoHeader.Set("X-Zoho-Webhook-Signature", "sig")
	if got := Detect(zohoHeader, nil); got != ProviderZohoPay {
		t.Fatalf("zoho header detection failed, got %q", got)
	}

	cases := []struct {
		body map[string]any
		want Provider
	}{
		{map[string]any{"status": "success", "txnid": "OCT_P428_1", "firstname": "Asha"}, ProviderEasebuzz},
		{map[string]any{"payload": map[string]any{"state": "COMPLETED"}}, ProviderPhonePe},
		{map[string]any{"merchantOrderId": "OCT_P431"}, ProviderPhonePe},
		{map[string]any{"reference_id": "OCT_P433", "payments_session_id": "sess"}, ProviderZohoPay},
		{map[string]any{"unrelated": true}, ProviderUnknown},
	}
	for _, tc := range cases {
		if got := Detect(http.Header{}, tc.body); got != tc.want {
			t.Fatalf("Detect(%v) = %q, want %q", tc.body, got, tc.want)
		}
	}
}

func TestStripSuffix(t *testing.T) {
	cases := map[string]string{
		"OCT_P428_1699999999_ab12cd": "OCT_P428",
		"OCT_P428_1699999999":        "OCT_P428",
		"OCT_P428":                   "OCT_P428",
		"P428":                       "P428",
	}
	for in, want := range cases {
		if got := stripSuffix(in); got != want {
			t.Fatalf("stripSuffix(%q) = %q, want %q", in, got, want)
		}
	}
}
