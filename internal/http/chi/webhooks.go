package chi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httplog"

	"github.com/marcelsud/commerce-webhooks/webhook"
	"github.com/marcelsud/commerce-webhooks/webhook/ingest"
)

// Platform delivery headers
const (
	HeaderShopDomain  = "X-Shopify-Shop-Domain"
	HeaderHmac        = "X-Shopify-Hmac-Sha256"
	HeaderWebhookID   = "X-Shopify-Webhook-Id"
	HeaderTriggeredAt = "X-Shopify-Triggered-At"
	HeaderTopic       = "X-Shopify-Topic"
)

// MaxBodyBytes caps a delivery body
const MaxBodyBytes = 5 << 20

/* HTTP layer DTOs for the operational API
 * Separate from domain entities to avoid leaking internal structure
 */

// errorResponse is the body of every non-ingest error
type errorResponse struct {
	Error string `json:"error"`
}

// postWebhook handles POST /webhooks/{resource}/{event}
func postWebhook(ingestService ingest.UseCase) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		topic := chi.URLParam(r, "resource") + "/" + chi.URLParam(r, "event")

		// The signature covers the exact bytes; Body stays nil only when the request has none
		var body []byte
		if r.Body != nil {
			defer r.Body.Close()
			var err error
			body, err = io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
			if err != nil {
				rejectBody(w, r, topic, err)
				return
			}
		}

		req := ingest.Request{
			Topic:       webhook.NewTopic(topic),
			ShopDomain:  r.Header.Get(HeaderShopDomain),
			Signature:   r.Header.Get(HeaderHmac),
			WebhookID:   r.Header.Get(HeaderWebhookID),
			TriggeredAt: r.Header.Get(HeaderTriggeredAt),
			Body:        body,
		}
		resp := ingestService.Ingest(r.Context(), req)

		httplog.LogEntrySetField(r.Context(), "topic", topic)
		httplog.LogEntrySetField(r.Context(), "shop_domain", req.ShopDomain)
		httplog.LogEntrySetField(r.Context(), "outcome", resp.Message)
		if resp.IntegrationID != "" {
			httplog.LogEntrySetField(r.Context(), "integration_id", resp.IntegrationID)
		}
		if resp.StatusCode == http.StatusUnauthorized {
			httplog.LogEntrySetField(r.Context(), "event", "security")
			httplog.LogEntrySetField(r.Context(), "remote_addr", r.RemoteAddr)
		}
		if resp.Mode != 0 {
			httplog.LogEntrySetField(r.Context(), "mode", resp.Mode.String())
		}

		writeJSON(w, resp.StatusCode, resp)
	})
}

// rejectBody answers a delivery whose body could not be read in full
func rejectBody(w http.ResponseWriter, r *http.Request, topic string, err error) {
	resp := ingest.Response{StatusCode: http.StatusBadRequest, Message: ingest.MsgUnreadableBody}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		resp = ingest.Response{StatusCode: http.StatusRequestEntityTooLarge, Message: ingest.MsgBodyTooLarge}
	}
	httplog.LogEntrySetField(r.Context(), "topic", topic)
	httplog.LogEntrySetField(r.Context(), "shop_domain", r.Header.Get(HeaderShopDomain))
	httplog.LogEntrySetField(r.Context(), "outcome", resp.Message)
	writeJSON(w, resp.StatusCode, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// windowHours parses ?hours=, defaulting to 24
func windowHours(r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("hours")
	if raw == "" {
		return 24, true
	}
	hours, err := strconv.Atoi(raw)
	if err != nil || hours < 1 || hours > maxWindowHours {
		return 0, false
	}
	return hours, true
}

const maxWindowHours = 24 * 30
