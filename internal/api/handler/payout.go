package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ayo6706/payout-settlement/internal/domain"
	"github.com/ayo6706/payout-settlement/internal/lock"
	"github.com/ayo6706/payout-settlement/internal/models"
	"github.com/ayo6706/payout-settlement/internal/service"
)

// PayoutService is implemented by *service.PayoutService.
type PayoutService interface {
	SettleSeller(ctx context.Context, sellerID uuid.UUID, payoutType domain.PayoutType) (*models.Payout, error)
	GetPayout(ctx context.Context, payoutID uuid.UUID) (*models.Payout, error)
	ListSellerPayouts(ctx context.Context, sellerID uuid.UUID, limit, offset int32) ([]models.Payout, error)
	ListReviews(ctx context.Context, includeResolved bool, limit, offset int32) ([]models.PayoutReview, error)
	ReviewQueueSize(ctx context.Context) (int64, error)
	ResolveReview(ctx context.Context, reviewID uuid.UUID, actorID *uuid.UUID, resolution string) error
}

// PayoutHandler handles HTTP requests for payouts.
type PayoutHandler struct {
	payoutSvc PayoutService
}

// NewPayoutHandler creates a new PayoutHandler instance.
func NewPayoutHandler(payoutSvc PayoutService) *PayoutHandler {
	return &PayoutHandler{payoutSvc: payoutSvc}
}

// SettleRequest is the optional body of a settle call.
type SettleRequest struct {
	PayoutType string `json:"payout_type"`
}

// SettleSeller handles POST /v1/sellers/{id}/payouts.
// It pays out the seller's unpaid balances, or resumes a pending payout.
func (h *PayoutHandler) SettleSeller(w http.ResponseWriter, r *http.Request) {
	sellerID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-seller-id", "Invalid seller ID")
		return
	}

	var req SettleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Invalid request body")
		return
	}
	payoutType := domain.PayoutType(strings.ToLower(strings.TrimSpace(req.PayoutType)))
	switch payoutType {
	case "":
		payoutType = domain.PayoutTypeStandard
	case domain.PayoutTypeStandard, domain.PayoutTypeInstant:
	default:
		RespondError(w, r, http.StatusBadRequest, "request/invalid-payout-type", "payout_type must be standard or instant")
		return
	}

	payout, err := h.payoutSvc.SettleSeller(r.Context(), sellerID, payoutType)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNothingToPay):
			RespondError(w, r, http.StatusUnprocessableEntity, "payout/nothing-to-pay", err.Error())
		case errors.Is(err, service.ErrNoDestination):
			RespondError(w, r, http.StatusUnprocessableEntity, "payout/no-destination", err.Error())
		case errors.Is(err, service.ErrAmountTooSmall):
			RespondJSON(w, http.StatusOK, payout)
		case errors.Is(err, service.ErrNetworkUnavailable):
			zap.L().Warn("payout left pending", zap.String("seller_id", sellerID.String()), zap.Error(err))
			RespondError(w, r, http.StatusServiceUnavailable, "payout/network-unavailable", "payment network unavailable, payout left pending")
		case errors.Is(err, lock.ErrNotAcquired), errors.Is(err, models.ErrStateConflict):
			RespondError(w, r, http.StatusConflict, "payout/in-progress", "another settlement for this seller is in progress")
		default:
			if status, problemType, msg, ok := mapDBError(err); ok {
				RespondError(w, r, status, problemType, msg)
				return
			}
			zap.L().Error("settle seller failed", zap.String("seller_id", sellerID.String()), zap.Error(err))
			RespondError(w, r, http.StatusInternalServerError, "payout/settle-failed", "Failed to settle seller")
		}
		return
	}

	status := http.StatusAccepted
	if payout.State == domain.PayoutStateFailed {
		status = http.StatusOK
	}
	RespondJSON(w, status, payout)
}

// ListSellerPayouts handles GET /v1/sellers/{id}/payouts.
func (h *PayoutHandler) ListSellerPayouts(w http.ResponseWriter, r *http.Request) {
	sellerID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-seller-id", "Invalid seller ID")
		return
	}
	pg, ok := parsePage(w, r)
	if !ok {
		return
	}

	payouts, err := h.payoutSvc.ListSellerPayouts(r.Context(), sellerID, pg.limit, pg.offset)
	if err != nil {
		zap.L().Error("list seller payouts failed", zap.Error(err))
		RespondError(w, r, http.StatusInternalServerError, "payout/list-failed", "Failed to list payouts")
		return
	}
	RespondJSON(w, http.StatusOK, map[string]any{
		"items":  payouts,
		"limit":  pg.limit,
		"offset": pg.offset,
		"count":  len(payouts),
	})
}

// GetPayout handles GET /v1/payouts/{id}.
func (h *PayoutHandler) GetPayout(w http.ResponseWriter, r *http.Request) {
	payoutID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-payout-id", "Invalid payout ID")
		return
	}

	payout, err := h.payoutSvc.GetPayout(r.Context(), payoutID)
	if err != nil {
		if errors.Is(err, service.ErrPayoutNotFound) {
			RespondError(w, r, http.StatusNotFound, "payout/not-found", "Payout not found")
			return
		}
		zap.L().Error("get payout failed", zap.Error(err), zap.String("payout_id", payoutID.String()))
		RespondError(w, r, http.StatusInternalServerError, "payout/read-failed", "Failed to get payout")
		return
	}

	RespondJSON(w, http.StatusOK, payout)
}
