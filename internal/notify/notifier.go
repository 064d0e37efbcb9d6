package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ayo6706/payout-settlement/internal/domain"
	"github.com/ayo6706/payout-settlement/internal/models"
)

const (
	DefaultExchange = "payout_events"

	RoutingPayoutFailed = "payout.failed"
)

// PayoutFailedEvent is the message sellers' notification consumers receive.
type PayoutFailedEvent struct {
	PayoutID      uuid.UUID `json:"payout_id"`
	ExternalID    string    `json:"external_id"`
	SellerID      uuid.UUID `json:"seller_id"`
	Amount        int64     `json:"amount"`
	Currency      string    `json:"currency"`
	DisplayAmount string    `json:"display_amount"`
	State         string    `json:"state"`
	FailureReason string    `json:"failure_reason,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// Notifier tells sellers their payout did not arrive.
type Notifier struct {
	pub      Publisher
	exchange string
}

func NewNotifier(pub Publisher, exchange string) *Notifier {
	if exchange == "" {
		exchange = DefaultExchange
	}
	return &Notifier{pub: pub, exchange: exchange}
}

// PayoutFailed publishes a failure notification for a failed, cancelled or returned payout.
func (n *Notifier) PayoutFailed(ctx context.Context, p *models.Payout) error {
	evt := PayoutFailedEvent{
		PayoutID:      p.ID,
		ExternalID:    p.ExternalID,
		SellerID:      p.SellerID,
		Amount:        p.Amount,
		Currency:      p.Currency,
		DisplayAmount: domain.NewMoney(p.LedgerAmount, p.Currency).String(),
		State:         string(p.State),
		Timestamp:     time.Now().UTC(),
	}
	if p.FailureReason != nil {
		evt.FailureReason = string(*p.FailureReason)
	}
	if err := n.pub.Publish(ctx, n.exchange, RoutingPayoutFailed, evt); err != nil {
		return fmt.Errorf("publish payout failed notification: %w", err)
	}
	return nil
}
