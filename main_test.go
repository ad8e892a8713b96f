package main

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"mtquotesAPI/internal/config"
	"mtquotesAPI/internal/payment"
	"mtquotesAPI/internal/store"
	"mtquotesAPI/internal/subscription"
	"mtquotesAPI/middleware"
	"mtquotesAPI/services"
)

type staticVerifier map[string]*middleware.Identity

func (v staticVerifier) Verify(_ context.Context, token string) (*middleware.Identity, error) {
	if id, ok := v[token]; ok {
		return id, nil
	}
	return nil, errors.New("invalid token")
}

func newTestRouter(t *testing.T) (http.Handler, *store.MemoryStore) {
	t.Helper()
	st := store.NewMemoryStore()
	app := &application{
		cfg:                 config.Config{WebhookAPIKey: "k", MetricsUser: "m", MetricsPass: "p"},
		store:               st,
		paymentService:      services.NewPaymentService(st, nil, 7*24*time.Hour, 1),
		subscriptionService: services.NewSubscriptionService(st, nil),
		verifier:            staticVerifier{"tok": {UserID: "u1"}},
	}
	return newRouter(app, middleware.NewRateLimiter(rate.Inf, 1)), st
}

func TestRouter(t *testing.T) {
	router, st := newTestRouter(t)
	end := time.Now().Add(24 * time.Hour)
	st.PutSubscription(&subscription.Record{UserID: "u1", Status: subscription.StatusActive, SubscriptionEndDate: &end})
	st.PutPayment(&payment.Payment{ID: "t1", UserID: "u1", PlanType: subscription.PlanPerTemplate, Status: payment.StatusPending})

	tests := []struct {
		name     string
		method   string
		path     string
		body     string
		headers  map[string]string
		wantCode int
	}{
		{name: "health", method: http.MethodGet, path: "/health", wantCode: http.StatusOK},
		{name: "metrics need credentials", method: http.MethodGet, path: "/metrics", wantCode: http.StatusUnauthorized},
		{name: "protected without token", method: http.MethodGet, path: "/api/v1/subscription", wantCode: http.StatusUnauthorized},
		{name: "protected with token", method: http.MethodGet, path: "/api/v1/subscription", headers: map[string]string{"Authorization": "Bearer tok"}, wantCode: http.StatusOK},
		{name: "webhook wrong key", method: http.MethodPost, path: "/webhooks/payment", body: `{"transactionId":"t1","status":"success"}`, headers: map[string]string{"x-api-key": "nope"}, wantCode: http.StatusUnauthorized},
		{name: "webhook", method: http.MethodPost, path: "/webhooks/payment", body: `{"transactionId":"t1","status":"success"}`, headers: map[string]string{"x-api-key": "k"}, wantCode: http.StatusOK},
		{name: "cancel", method: http.MethodPost, path: "/api/v1/subscription/cancel", headers: map[string]string{"Authorization": "Bearer tok"}, wantCode: http.StatusOK},
		{name: "cancel twice", method: http.MethodPost, path: "/api/v1/subscription/cancel", headers: map[string]string{"Authorization": "Bearer tok"}, wantCode: http.StatusPreconditionFailed},
		{name: "wrong method", method: http.MethodGet, path: "/api/v1/subscription/cancel", headers: map[string]string{"Authorization": "Bearer tok"}, wantCode: http.StatusMethodNotAllowed},
		{name: "wrong method on webhook", method: http.MethodGet, path: "/webhooks/payment", wantCode: http.StatusMethodNotAllowed},
		{name: "unknown path", method: http.MethodGet, path: "/api/v1/nope", headers: map[string]string{"Authorization": "Bearer tok"}, wantCode: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, bytes.NewBufferString(tt.body))
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)
			assert.Equal(t, tt.wantCode, rec.Code)
		})
	}

	sub, err := st.GetSubscription(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, subscription.PerTemplatePoints, sub.Points)
	assert.Equal(t, subscription.StatusCancelled, sub.Status)
}

func TestRootCommands(t *testing.T) {
	root := newRootCmd()
	names := map[string]bool{}
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["serve"])
	assert.True(t, names["sweep"])
}
