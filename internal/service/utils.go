package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/ayo6706/payout-settlement/internal/models"
)

func stringPtr(s string) *string {
	return &s
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func payoutFields(p *models.Payout) []zap.Field {
	return []zap.Field{
		zap.String("payout_id", p.ID.String()),
		zap.String("external_id", p.ExternalID),
		zap.String("state", string(p.State)),
		zap.String("network_payout_id", derefString(p.NetworkTransferID)),
	}
}

// notify sends the seller notification. Delivery failures are logged, never returned.
func notify(ctx context.Context, n Notifier, p *models.Payout) {
	if n == nil {
		return
	}
	if err := n.PayoutFailed(ctx, p); err != nil {
		zap.L().Warn("payout notification failed", append(payoutFields(p), zap.Error(err))...)
	}
}
