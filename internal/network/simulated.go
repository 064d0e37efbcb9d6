package network

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/ayo6706/payout-settlement/internal/domain"
)

// Simulated is an in-memory payment network for local runs and tests.
// It introduces a random delay and fails a fraction of calls with ErrConnection.
type Simulated struct {
	// FailureRate is the probability of a connection failure (0.0 to 1.0).
	FailureRate float64
	// MaxDelay bounds the simulated latency. Zero disables the delay.
	MaxDelay time.Duration
	// TransferFee is withheld from each destination charge, in minor units.
	TransferFee int64

	mu        sync.Mutex
	seq       int
	payouts   map[string]*Payout
	transfers map[string]*Transfer
	charges   map[string]*Charge
	idem      map[string]string
}

// NewSimulated creates a Simulated network with default settings.
func NewSimulated() *Simulated {
	return &Simulated{
		FailureRate: 0.05,
		MaxDelay:    500 * time.Millisecond,
		payouts:     make(map[string]*Payout),
		transfers:   make(map[string]*Transfer),
		charges:     make(map[string]*Charge),
		idem:        make(map[string]string),
	}
}

func (s *Simulated) Name() string { return "simulated" }

func (s *Simulated) SubmitPayout(ctx context.Context, req PayoutRequest) (*Payout, error) {
	if err := s.latency(ctx); err != nil {
		return nil, err
	}
	if req.Amount <= 0 {
		return nil, NewValidationError("amount_too_small", "Amount must be greater than zero")
	}
	if req.DestinationAccount == "" {
		return nil, NewValidationError("account_invalid", "Sorry, you don't have any external accounts in that currency")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.idem[req.IdempotencyKey]; ok && req.IdempotencyKey != "" {
		return clonePayout(s.payouts[id]), nil
	}
	arrival := time.Now().UTC().Add(48 * time.Hour)
	if req.Instant {
		arrival = time.Now().UTC().Add(30 * time.Minute)
	}
	p := &Payout{
		ID:          s.nextID("po"),
		Amount:      req.Amount,
		Currency:    req.Currency,
		Status:      domain.NetworkPayoutPending,
		ArrivalDate: &arrival,
		Metadata:    copyMetadata(req.Metadata),
	}
	s.payouts[p.ID] = p
	s.remember(req.IdempotencyKey, p.ID)
	return clonePayout(p), nil
}

func (s *Simulated) RetrievePayout(ctx context.Context, payoutID, account string) (*Payout, error) {
	if err := s.latency(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payouts[payoutID]
	if !ok {
		return nil, NewValidationError("resource_missing", fmt.Sprintf("No such payout: '%s'", payoutID))
	}
	return clonePayout(p), nil
}

func (s *Simulated) CreateTransfer(ctx context.Context, req TransferRequest) (*Transfer, error) {
	if err := s.latency(ctx); err != nil {
		return nil, err
	}
	if req.Amount <= 0 {
		return nil, NewValidationError("amount_too_small", "Amount must be greater than zero")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.idem[req.IdempotencyKey]; ok && req.IdempotencyKey != "" {
		t := *s.transfers[id]
		return &t, nil
	}
	charge := &Charge{
		ID:       s.nextID("py"),
		Amount:   req.Amount,
		Currency: req.Currency,
		BalanceTransaction: &BalanceTransaction{
			ID:       s.nextID("txn"),
			Amount:   req.Amount,
			Fee:      s.TransferFee,
			Net:      req.Amount - s.TransferFee,
			Currency: req.Currency,
		},
	}
	t := &Transfer{
		ID:                   s.nextID("tr"),
		Amount:               req.Amount,
		Currency:             req.Currency,
		DestinationPaymentID: charge.ID,
	}
	s.charges[charge.ID] = charge
	s.transfers[t.ID] = t
	s.remember(req.IdempotencyKey, t.ID)
	out := *t
	return &out, nil
}

func (s *Simulated) ReverseTransfer(ctx context.Context, transferID, idempotencyKey string) (*Reversal, error) {
	if err := s.latency(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.transfers[transferID]
	if !ok {
		return nil, NewValidationError("resource_missing", fmt.Sprintf("No such transfer: '%s'", transferID))
	}
	if t.Reversed {
		return nil, NewValidationError("transfer_already_reversed", "Transfer has already been fully reversed")
	}
	t.Reversed = true
	if charge, ok := s.charges[t.DestinationPaymentID]; ok {
		net := charge.BalanceTransaction.Net
		charge.Refunds = append(charge.Refunds, Refund{
			ID:     s.nextID("pyr"),
			Amount: charge.Amount,
			BalanceTransaction: &BalanceTransaction{
				ID:       s.nextID("txn"),
				Amount:   -charge.Amount,
				Net:      -net,
				Currency: charge.Currency,
			},
		})
	}
	return &Reversal{ID: s.nextID("trr"), TransferID: t.ID, Amount: t.Amount}, nil
}

func (s *Simulated) RetrieveCharge(ctx context.Context, chargeID, account string, expand ...string) (*Charge, error) {
	if err := s.latency(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.charges[chargeID]
	if !ok {
		return nil, NewValidationError("resource_missing", fmt.Sprintf("No such charge: '%s'", chargeID))
	}
	out := *c
	out.Refunds = append([]Refund(nil), c.Refunds...)
	return &out, nil
}

// SettlePayout moves a simulated payout to a terminal status, as the network
// would before emitting the matching event.
func (s *Simulated) SettlePayout(payoutID, status, failureCode string) (*Payout, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payouts[payoutID]
	if !ok {
		return nil, fmt.Errorf("unknown simulated payout %s", payoutID)
	}
	p.Status = status
	p.FailureCode = failureCode
	return clonePayout(p), nil
}

// ReversePayout creates a reversing payout for an already paid payout.
func (s *Simulated) ReversePayout(payoutID string) (*Payout, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	orig, ok := s.payouts[payoutID]
	if !ok {
		return nil, fmt.Errorf("unknown simulated payout %s", payoutID)
	}
	rev := &Payout{
		ID:               s.nextID("po"),
		Amount:           orig.Amount,
		Currency:         orig.Currency,
		Status:           domain.NetworkPayoutPending,
		OriginalPayoutID: orig.ID,
	}
	orig.ReversedByID = rev.ID
	s.payouts[rev.ID] = rev
	return clonePayout(rev), nil
}

func (s *Simulated) latency(ctx context.Context) error {
	if s.MaxDelay > 0 {
		delay := time.Duration(rand.Int63n(int64(s.MaxDelay)))
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return fmt.Errorf("simulated network call canceled: %w", ctx.Err())
		}
	}
	if rand.Float64() < s.FailureRate {
		return fmt.Errorf("simulated network temporarily unavailable: %w", ErrConnection)
	}
	return nil
}

// nextID must be called with mu held.
func (s *Simulated) nextID(prefix string) string {
	s.seq++
	return fmt.Sprintf("%s_SIM%s%05d", prefix, time.Now().UTC().Format("20060102"), s.seq)
}

func (s *Simulated) remember(key, id string) {
	if key != "" {
		s.idem[key] = id
	}
}

func clonePayout(p *Payout) *Payout {
	out := *p
	out.Metadata = copyMetadata(p.Metadata)
	return &out
}

func copyMetadata(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
