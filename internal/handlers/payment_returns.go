package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/marigold-store/api/internal/gateways"
	"github.com/marigold-store/api/internal/platform/observability"
	"github.com/marigold-store/api/internal/services"
)

// PaymentReturnHandlers serves the browser-return URLs gateways send the
// customer back to after payment. The posted fields are replayed through the
// same reconciliation pipeline the webhooks use, then the customer is
// redirected to the storefront result page with the fields as query
// parameters. The redirect target is always our own site; gateway-supplied
// origins are never trusted.
type PaymentReturnHandlers struct {
	processor  services.WebhookProcessor
	successURL string
	failureURL string
}

// NewPaymentReturnHandlers constructs the handler set. successURL and
// failureURL are absolute storefront URLs.
func NewPaymentReturnHandlers(processor services.WebhookProcessor, successURL, failureURL string) (*PaymentReturnHandlers, error) {
	if processor == nil {
		return nil, errors.New("handlers: payment return handlers require a processor")
	}
	if successURL == "" || failureURL == "" {
		return nil, errors.New("handlers: payment return handlers require storefront URLs")
	}
	return &PaymentReturnHandlers{processor: processor, successURL: successURL, failureURL: failureURL}, nil
}

// Success handles the gateway success-return POST (or GET).
func (h *PaymentReturnHandlers) Success(w http.ResponseWriter, r *http.Request) {
	h.handle(w, r, h.successURL, true)
}

// Failure handles the gateway failure-return POST (or GET).
func (h *PaymentReturnHandlers) Failure(w http.ResponseWriter, r *http.Request) {
	h.handle(w, r, h.failureURL, false)
}

func (h *PaymentReturnHandlers) handle(w http.ResponseWriter, r *http.Request, target string, reconcile bool) {
	params := h.collectParams(r)

	// The return POST is best effort: the signed webhook is authoritative,
	// so a rejected or failed replay still redirects the customer.
	if reconcile && r.Method == http.MethodPost && len(params) > 0 {
		h.replay(r, params)
	}

	redirect := target
	if encoded := params.Encode(); encoded != "" {
		separator := "?"
		if strings.Contains(target, "?") {
			separator = "&"
		}
		redirect = target + separator + encoded
	}
	w.Header().Set("Cache-Control", "no-cache")
	http.Redirect(w, r, redirect, http.StatusFound)
}

func (h *PaymentReturnHandlers) collectParams(r *http.Request) url.Values {
	params := url.Values{}
	if r.Method == http.MethodPost {
		if isJSONRequest(r) {
			if body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody)); err == nil {
				for key, value := range formToMapFromJSON(body) {
					params.Set(key, value)
				}
			}
		} else if err := r.ParseForm(); err == nil {
			for key := range r.PostForm {
				params.Set(key, r.PostForm.Get(key))
			}
		}
	}
	for key := range r.URL.Query() {
		if params.Get(key) == "" {
			params.Set(key, r.URL.Query().Get(key))
		}
	}
	return params
}

func formToMapFromJSON(raw []byte) map[string]string {
	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil
	}
	flat := make(map[string]string, len(body))
	for key, value := range body {
		switch v := value.(type) {
		case string:
			flat[key] = v
		case float64, bool:
			flat[key] = fmt.Sprint(v)
		}
	}
	return flat
}

func (h *PaymentReturnHandlers) replay(r *http.Request, params url.Values) {
	body := make(map[string]any, len(params))
	for key := range params {
		body[key] = params.Get(key)
	}
	provider := gateways.Detect(r.Header, body)
	if provider == gateways.ProviderUnknown {
		return
	}
	event, err := gateways.EventForProvider(provider, nil, r.Header, body)
	if err != nil {
		return
	}
	outcome := h.processor.Process(r.Context(), event, false)
	if !outcome.OK {
		observability.FromContext(r.Context()).Warn("return reconciliation rejected",
			zap.String("provider", string(provider)),
			zap.String("reason", outcome.Message),
		)
	}
}
