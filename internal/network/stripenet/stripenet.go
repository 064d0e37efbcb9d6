// Package stripenet adapts Stripe Connect to the network.Network interface.
package stripenet

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	stripe "github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"go.uber.org/zap"

	"github.com/ayo6706/payout-settlement/internal/network"
)

// Network talks to Stripe using the platform secret key. Connected accounts
// are addressed with the Stripe-Account header.
type Network struct {
	sc *client.API
}

// New creates a Stripe-backed network.
func New(secretKey string) *Network {
	return &Network{sc: client.New(secretKey, nil)}
}

func (n *Network) Name() string { return "stripe" }

func (n *Network) SubmitPayout(ctx context.Context, req network.PayoutRequest) (*network.Payout, error) {
	params := &stripe.PayoutParams{
		Amount:   stripe.Int64(req.Amount),
		Currency: stripe.String(strings.ToLower(req.Currency)),
	}
	if req.Description != "" {
		params.Description = stripe.String(req.Description)
	}
	if req.Instant {
		params.Method = stripe.String("instant")
	}
	params.Context = ctx
	params.SetStripeAccount(req.DestinationAccount)
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}

	p, err := n.sc.Payouts.New(params)
	if err != nil {
		return nil, translateError("create payout", err)
	}
	return toPayout(p), nil
}

func (n *Network) RetrievePayout(ctx context.Context, payoutID, account string) (*network.Payout, error) {
	params := &stripe.PayoutParams{}
	params.Context = ctx
	if account != "" {
		params.SetStripeAccount(account)
	}
	p, err := n.sc.Payouts.Get(payoutID, params)
	if err != nil {
		return nil, translateError("retrieve payout", err)
	}
	return toPayout(p), nil
}

func (n *Network) CreateTransfer(ctx context.Context, req network.TransferRequest) (*network.Transfer, error) {
	params := &stripe.TransferParams{
		Amount:      stripe.Int64(req.Amount),
		Currency:    stripe.String(strings.ToLower(req.Currency)),
		Destination: stripe.String(req.DestinationAccount),
	}
	if req.Description != "" {
		params.Description = stripe.String(req.Description)
	}
	params.Context = ctx
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}

	t, err := n.sc.Transfers.New(params)
	if err != nil {
		return nil, translateError("create transfer", err)
	}
	out := &network.Transfer{
		ID:       t.ID,
		Amount:   t.Amount,
		Currency: strings.ToUpper(string(t.Currency)),
		Reversed: t.Reversed,
	}
	if t.DestinationPayment != nil {
		out.DestinationPaymentID = t.DestinationPayment.ID
	}
	return out, nil
}

func (n *Network) ReverseTransfer(ctx context.Context, transferID, idempotencyKey string) (*network.Reversal, error) {
	params := &stripe.TransferReversalParams{ID: stripe.String(transferID)}
	params.Context = ctx
	if idempotencyKey != "" {
		params.SetIdempotencyKey(idempotencyKey)
	}
	r, err := n.sc.TransferReversals.New(params)
	if err != nil {
		return nil, translateError("reverse transfer", err)
	}
	return &network.Reversal{ID: r.ID, TransferID: transferID, Amount: r.Amount}, nil
}

func (n *Network) RetrieveCharge(ctx context.Context, chargeID, account string, expand ...string) (*network.Charge, error) {
	params := &stripe.ChargeParams{}
	params.Context = ctx
	if account != "" {
		params.SetStripeAccount(account)
	}
	for _, e := range expand {
		params.AddExpand(e)
	}
	c, err := n.sc.Charges.Get(chargeID, params)
	if err != nil {
		return nil, translateError("retrieve charge", err)
	}
	return toCharge(c), nil
}

func toPayout(p *stripe.Payout) *network.Payout {
	out := &network.Payout{
		ID:             p.ID,
		Amount:         p.Amount,
		Currency:       strings.ToUpper(string(p.Currency)),
		Status:         string(p.Status),
		Automatic:      p.Automatic,
		FailureCode:    string(p.FailureCode),
		FailureMessage: p.FailureMessage,
		Metadata:       p.Metadata,
	}
	if p.ArrivalDate > 0 {
		at := time.Unix(p.ArrivalDate, 0).UTC()
		out.ArrivalDate = &at
	}
	if p.OriginalPayout != nil {
		out.OriginalPayoutID = p.OriginalPayout.ID
	}
	if p.ReversedBy != nil {
		out.ReversedByID = p.ReversedBy.ID
	}
	return out
}

func toCharge(c *stripe.Charge) *network.Charge {
	out := &network.Charge{
		ID:                 c.ID,
		Amount:             c.Amount,
		Currency:           strings.ToUpper(string(c.Currency)),
		BalanceTransaction: toBalanceTransaction(c.BalanceTransaction),
	}
	if c.Refunds != nil {
		for _, r := range c.Refunds.Data {
			if r == nil {
				continue
			}
			out.Refunds = append(out.Refunds, network.Refund{
				ID:                 r.ID,
				Amount:             r.Amount,
				BalanceTransaction: toBalanceTransaction(r.BalanceTransaction),
			})
		}
	}
	return out
}

func toBalanceTransaction(bt *stripe.BalanceTransaction) *network.BalanceTransaction {
	if bt == nil {
		return nil
	}
	return &network.BalanceTransaction{
		ID:       bt.ID,
		Amount:   bt.Amount,
		Fee:      bt.Fee,
		Net:      bt.Net,
		Currency: strings.ToUpper(string(bt.Currency)),
	}
}

// translateError maps Stripe errors onto the network error taxonomy.
func translateError(op string, err error) error {
	var serr *stripe.Error
	if !errors.As(err, &serr) {
		zap.L().Warn("stripe call failed without api error", zap.String("op", op), zap.Error(err))
		return fmt.Errorf("%s: %v: %w", op, err, network.ErrConnection)
	}

	switch {
	case serr.HTTPStatusCode == http.StatusUnauthorized || serr.HTTPStatusCode == http.StatusForbidden:
		return fmt.Errorf("%s: %s: %w", op, serr.Msg, network.ErrAuthentication)
	case serr.HTTPStatusCode == http.StatusTooManyRequests || serr.HTTPStatusCode >= http.StatusInternalServerError:
		return fmt.Errorf("%s: %s: %w", op, serr.Msg, network.ErrConnection)
	case serr.Type == stripe.ErrorTypeInvalidRequest || serr.Type == stripe.ErrorTypeCard ||
		serr.HTTPStatusCode == http.StatusBadRequest || serr.HTTPStatusCode == http.StatusPaymentRequired:
		return fmt.Errorf("%s: %w", op, network.NewValidationError(string(serr.Code), serr.Msg))
	default:
		return fmt.Errorf("%s: %s: %w", op, serr.Msg, network.ErrConnection)
	}
}
