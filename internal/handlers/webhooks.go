package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/marigold-store/api/internal/gateways"
	"github.com/marigold-store/api/internal/platform/observability"
	"github.com/marigold-store/api/internal/services"
)

// maxWebhookBody bounds gateway payload reads.
const maxWebhookBody = 1 << 20

// webhookResponse is the envelope every webhook endpoint answers with. The
// HTTP status is always 200; gateways retry and alert on anything else.
type webhookResponse struct {
	Status        int    `json:"status"`
	Message       string `json:"message"`
	OrderID       string `json:"orderId,omitempty"`
	TransactionID string `json:"transactionId,omitempty"`
	PaymentStatus string `json:"paymentStatus,omitempty"`
	OrderStatus   string `json:"orderStatus,omitempty"`
}

// WebhookHandlers exposes the gateway callback endpoints.
type WebhookHandlers struct {
	processor       services.WebhookProcessor
	defaultProvider gateways.Provider
}

// NewWebhookHandlers constructs the handler set.
func NewWebhookHandlers(processor services.WebhookProcessor, defaultProvider gateways.Provider) (*WebhookHandlers, error) {
	if processor == nil {
		return nil, errors.New("handlers: webhook handlers require a processor")
	}
	if defaultProvider == gateways.ProviderUnknown {
		defaultProvider = gateways.ProviderPhonePe
	}
	return &WebhookHandlers{processor: processor, defaultProvider: defaultProvider}, nil
}

// Register mounts the webhook routes.
func (h *WebhookHandlers) Register(r interface {
	Post(pattern string, handler http.HandlerFunc)
}) {
	r.Post("/easebuzz", h.Easebuzz)
	r.Post("/phonepe", h.PhonePe)
	r.Post("/zohopay", h.ZohoPay)
	r.Post("/payments", h.Generic)
}

// Easebuzz handles the form-POST callback.
func (h *WebhookHandlers) Easebuzz(w http.ResponseWriter, r *http.Request) {
	var event gateways.Event
	if isJSONRequest(r) {
		body, ok := decodeJSONBody(w, r)
		if !ok {
			return
		}
		event = gateways.ParseEasebuzzMap(body)
	} else {
		if err := r.ParseForm(); err != nil {
			writeWebhookReject(w, "Invalid form payload")
			return
		}
		event = gateways.ParseEasebuzzForm(r.PostForm)
	}
	h.process(w, r, event, false)
}

// PhonePe handles the JSON callback.
func (h *WebhookHandlers) PhonePe(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeWebhookReject(w, "Unreadable payload")
		return
	}
	event, err := gateways.ParsePhonePe(raw, r.Header)
	if err != nil {
		writeWebhookReject(w, "Invalid JSON")
		return
	}
	h.process(w, r, event, false)
}

// ZohoPay handles the payments-session callback.
func (h *WebhookHandlers) ZohoPay(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeWebhookReject(w, "Unreadable payload")
		return
	}
	event, err := gateways.ParseZohoPay(raw, r.Header)
	if err != nil {
		writeWebhookReject(w, "Invalid JSON")
		return
	}
	h.process(w, r, event, false)
}

// Generic handles the shared endpoint: detect the provider, build the
// matching event, and process with the active-gateway cross-check enabled.
func (h *WebhookHandlers) Generic(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeWebhookReject(w, "Unreadable payload")
		return
	}

	var body map[string]any
	if len(raw) > 0 && !isJSONRequest(r) && strings.Contains(r.Header.Get("Content-Type"), "application/x-www-form-urlencoded") {
		body = formToMap(string(raw))
	} else if err := json.Unmarshal(raw, &body); err != nil {
		writeWebhookReject(w, "Invalid JSON")
		return
	}

	provider := gateways.Detect(r.Header, body)
	if provider == gateways.ProviderUnknown {
		provider = h.defaultProvider
	}
	event, err := gateways.EventForProvider(provider, raw, r.Header, body)
	if err != nil {
		observability.FromContext(r.Context()).Warn("event construction failed", zap.Error(err))
		writeWebhookReject(w, "Unsupported payload")
		return
	}
	h.process(w, r, event, true)
}

func (h *WebhookHandlers) process(w http.ResponseWriter, r *http.Request, event gateways.Event, generic bool) {
	outcome := h.processor.Process(r.Context(), event, generic)
	status := 0
	if outcome.OK {
		status = 1
	}
	writeWebhookJSON(w, webhookResponse{
		Status:        status,
		Message:       outcome.Message,
		OrderID:       outcome.OrderID,
		TransactionID: outcome.TransactionID,
		PaymentStatus: outcome.PaymentStatus,
		OrderStatus:   outcome.OrderStatus,
	})
}

func isJSONRequest(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Content-Type"), "application/json")
}

func decodeJSONBody(w http.ResponseWriter, r *http.Request) (map[string]any, bool) {
	var body map[string]any
	if err := json.NewDecoder(io.LimitReader(r.Body, maxWebhookBody)).Decode(&body); err != nil {
		writeWebhookReject(w, "Invalid JSON")
		return nil, false
	}
	return body, true
}

func formToMap(encoded string) map[string]any {
	values, err := url.ParseQuery(encoded)
	if err != nil {
		return map[string]any{}
	}
	body := make(map[string]any, len(values))
	for key := range values {
		body[key] = values.Get(key)
	}
	return body
}

func writeWebhookReject(w http.ResponseWriter, message string) {
	writeWebhookJSON(w, webhookResponse{Status: 0, Message: message})
}

func writeWebhookJSON(w http.ResponseWriter, payload webhookResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(payload)
}
