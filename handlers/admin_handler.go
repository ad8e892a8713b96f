package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"mtquotesAPI/middleware"
	"mtquotesAPI/services"
)

type AdminHandler struct {
	subscriptionService *services.SubscriptionService
}

func NewAdminHandler(subscriptionService *services.SubscriptionService) *AdminHandler {
	return &AdminHandler{
		subscriptionService: subscriptionService,
	}
}

type creditPointsRequest struct {
	UserID string `json:"userId"`
	Points int    `json:"points"`
	Reason string `json:"reason"`
}

func (h *AdminHandler) CreditPoints(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	userID, ok := middleware.GetUserID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	var req creditPointsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	caller := services.Caller{UserID: userID, Admin: middleware.IsAdmin(ctx)}
	res, err := h.subscriptionService.CreditPoints(ctx, caller, req.UserID, req.Points, req.Reason)
	if err != nil {
		respondWithAppError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, res)
}
