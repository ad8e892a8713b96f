package handlers

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"

	"mtquotesAPI/internal/apperr"
	"mtquotesAPI/services"
)

const maxWebhookBody = 64 << 10

type WebhookHandler struct {
	paymentService *services.PaymentService
	apiKey         string
	stripeSecret   string
}

func NewWebhookHandler(paymentService *services.PaymentService, apiKey, stripeSecret string) *WebhookHandler {
	return &WebhookHandler{
		paymentService: paymentService,
		apiKey:         apiKey,
		stripeSecret:   stripeSecret,
	}
}

type paymentWebhookRequest struct {
	TransactionID string `json:"transactionId"`
	Status        string `json:"status"`
	ReferenceID   string `json:"referenceId"`
}

// HandlePaymentWebhook receives status callbacks from the payment gateway.
// The shared key is checked before the body is read.
func (h *WebhookHandler) HandlePaymentWebhook(w http.ResponseWriter, r *http.Request) {
	if !h.validAPIKey(r.Header.Get("x-api-key")) {
		log.Println("Webhook: rejected payment callback with invalid api key")
		services.RecordWebhook("gateway", "unauthorized")
		respondWithError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		log.Printf("Error reading webhook body: %v", err)
		respondWithError(w, http.StatusBadRequest, "Error reading body")
		return
	}

	var req paymentWebhookRequest
	if err := json.Unmarshal(body, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.TransactionID == "" || req.Status == "" {
		respondWithError(w, http.StatusBadRequest, "transactionId and status are required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
	defer cancel()

	res, err := h.paymentService.ApplyWebhook(ctx, services.WebhookUpdate{
		Provider:      "gateway",
		TransactionID: req.TransactionID,
		Status:        req.Status,
		ReferenceID:   req.ReferenceID,
		Payload:       body,
	})
	if err != nil {
		respondWithAppError(w, err)
		return
	}

	log.Printf("Webhook: transaction %s status=%s applied=%v", res.TransactionID, res.Status, res.Applied)
	respondWithJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *WebhookHandler) validAPIKey(got string) bool {
	if h.apiKey == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(h.apiKey)) == 1
}

// HandleStripeWebhook processes Stripe payment intent events. Intents carry
// our ledger id in metadata.transactionId.
func (h *WebhookHandler) HandleStripeWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		log.Printf("Error reading request body: %v", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	event, err := webhook.ConstructEvent(payload, r.Header.Get("Stripe-Signature"), h.stripeSecret)
	if err != nil {
		log.Printf("Error verifying webhook signature: %v", err)
		services.RecordWebhook("stripe", "unauthorized")
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	var status string
	switch event.Type {
	case "payment_intent.succeeded":
		status = "succeeded"
	case "payment_intent.payment_failed":
		status = "failed"
	default:
		log.Printf("Unhandled event type: %s", event.Type)
		w.WriteHeader(http.StatusOK)
		return
	}

	var intent stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
		log.Printf("Error parsing webhook JSON: %v", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	txID := intent.Metadata["transactionId"]
	if txID == "" {
		log.Printf("Stripe: payment intent %s has no transactionId metadata, ignoring", intent.ID)
		w.WriteHeader(http.StatusOK)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
	defer cancel()

	_, err = h.paymentService.ApplyWebhook(ctx, services.WebhookUpdate{
		Provider:      "stripe",
		TransactionID: txID,
		Status:        status,
		ReferenceID:   intent.ID,
		Payload:       payload,
	})
	if err != nil {
		if apperr.CodeOf(err) != apperr.CodeNotFound {
			log.Printf("Error handling %s: %v", event.Type, err)
		}
		respondWithAppError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]bool{"success": true})
}
