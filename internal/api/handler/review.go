package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ayo6706/payout-settlement/internal/service"
)

// ListReviews handles GET /v1/payouts/reviews.
func (h *PayoutHandler) ListReviews(w http.ResponseWriter, r *http.Request) {
	pg, ok := parsePage(w, r)
	if !ok {
		return
	}
	includeResolved, _ := strconv.ParseBool(r.URL.Query().Get("include_resolved"))

	reviews, err := h.payoutSvc.ListReviews(r.Context(), includeResolved, pg.limit, pg.offset)
	if err != nil {
		zap.L().Error("list payout reviews failed", zap.Error(err))
		RespondError(w, r, http.StatusInternalServerError, "review/list-failed", "Failed to list payout reviews")
		return
	}
	open, err := h.payoutSvc.ReviewQueueSize(r.Context())
	if err != nil {
		zap.L().Warn("failed to compute review queue size", zap.Error(err))
		open = -1
	}
	RespondJSON(w, http.StatusOK, map[string]any{
		"items":      reviews,
		"limit":      pg.limit,
		"offset":     pg.offset,
		"count":      len(reviews),
		"open_count": open,
	})
}

type resolveReviewRequest struct {
	Resolution string `json:"resolution"`
}

// ResolveReview handles POST /v1/payouts/reviews/{id}/resolve.
func (h *PayoutHandler) ResolveReview(w http.ResponseWriter, r *http.Request) {
	actorID, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}
	reviewID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-review-id", "Invalid review ID")
		return
	}

	var req resolveReviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Invalid request body")
		return
	}
	req.Resolution = strings.TrimSpace(req.Resolution)
	if req.Resolution == "" {
		RespondError(w, r, http.StatusBadRequest, "request/missing-resolution", "resolution is required")
		return
	}

	if err := h.payoutSvc.ResolveReview(r.Context(), reviewID, actorID, req.Resolution); err != nil {
		if errors.Is(err, service.ErrReviewNotFound) {
			RespondError(w, r, http.StatusNotFound, "review/not-found", "Review not found or already resolved")
			return
		}
		zap.L().Error("resolve payout review failed", zap.Error(err), zap.String("review_id", reviewID.String()))
		RespondError(w, r, http.StatusInternalServerError, "review/resolve-failed", "Failed to resolve review")
		return
	}

	RespondJSON(w, http.StatusOK, map[string]string{"id": reviewID.String(), "status": "resolved"})
}
