package service

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/ayo6706/payout-settlement/internal/domain"
	"github.com/ayo6706/payout-settlement/internal/lock"
	"github.com/ayo6706/payout-settlement/internal/models"
	"github.com/ayo6706/payout-settlement/internal/network"
	"github.com/ayo6706/payout-settlement/internal/repository"
)

// memStore is an in-memory QueryStore. RunInTx serializes transactions and
// rolls back every table when fn fails.
type memStore struct {
	txMu sync.Mutex
	mu   sync.Mutex
	seq  int64
	now  func() time.Time

	payouts   map[uuid.UUID]models.Payout
	balances  map[uuid.UUID]models.Balance
	accounts  map[uuid.UUID]models.MerchantAccount
	transfers map[uuid.UUID]models.InternalTransfer
	checks    map[uuid.UUID]models.ReversalCheck
	credits   []models.Credit
	reviews   []models.PayoutReview
	audit     []repository.InsertAuditLogParams
}

func newMemStore() *memStore {
	return &memStore{
		payouts:   map[uuid.UUID]models.Payout{},
		balances:  map[uuid.UUID]models.Balance{},
		accounts:  map[uuid.UUID]models.MerchantAccount{},
		transfers: map[uuid.UUID]models.InternalTransfer{},
		checks:    map[uuid.UUID]models.ReversalCheck{},
		now:       func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) },
	}
}

type memSnapshot struct {
	payouts   map[uuid.UUID]models.Payout
	balances  map[uuid.UUID]models.Balance
	transfers map[uuid.UUID]models.InternalTransfer
	checks    map[uuid.UUID]models.ReversalCheck
	credits   []models.Credit
	reviews   []models.PayoutReview
	audit     []repository.InsertAuditLogParams
}

func copyMap[K comparable, V any](in map[K]V) map[K]V {
	out := make(map[K]V, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func (s *memStore) Queries() Repo { return s }

func (s *memStore) RunInTx(ctx context.Context, fn func(q Repo) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	snap := memSnapshot{
		payouts:   copyMap(s.payouts),
		balances:  copyMap(s.balances),
		transfers: copyMap(s.transfers),
		checks:    copyMap(s.checks),
		credits:   append([]models.Credit(nil), s.credits...),
		reviews:   append([]models.PayoutReview(nil), s.reviews...),
		audit:     append([]repository.InsertAuditLogParams(nil), s.audit...),
	}
	s.mu.Unlock()

	if err := fn(s); err != nil {
		s.mu.Lock()
		s.payouts, s.balances, s.transfers, s.checks = snap.payouts, snap.balances, snap.transfers, snap.checks
		s.credits, s.reviews, s.audit = snap.credits, snap.reviews, snap.audit
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *memStore) stamp() time.Time {
	s.seq++
	return s.now().Add(time.Duration(s.seq) * time.Microsecond)
}

// Payouts

func (s *memStore) InsertPayout(_ context.Context, p *models.Payout) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.payouts {
		if existing.ExternalID == p.ExternalID {
			return models.ErrDuplicate
		}
	}
	p.CreatedAt = s.stamp()
	p.UpdatedAt = p.CreatedAt
	s.payouts[p.ID] = *p
	return nil
}

func (s *memStore) GetPayout(_ context.Context, id uuid.UUID) (*models.Payout, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payouts[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &p, nil
}

func (s *memStore) findPayout(match func(models.Payout) bool) (*models.Payout, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.payouts {
		if match(p) {
			out := p
			return &out, nil
		}
	}
	return nil, models.ErrNotFound
}

func (s *memStore) GetPayoutByNetworkID(_ context.Context, destinationAccountID uuid.UUID, networkPayoutID string) (*models.Payout, error) {
	return s.findPayout(func(p models.Payout) bool {
		return p.DestinationAccountID == destinationAccountID && derefString(p.NetworkTransferID) == networkPayoutID
	})
}

func (s *memStore) GetPayoutByReversingID(_ context.Context, destinationAccountID uuid.UUID, reversingPayoutID string) (*models.Payout, error) {
	return s.findPayout(func(p models.Payout) bool {
		return p.DestinationAccountID == destinationAccountID && derefString(p.NetworkReversingPayoutID) == reversingPayoutID
	})
}

func (s *memStore) FindPendingPayout(_ context.Context, sellerID uuid.UUID) (*models.Payout, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var found *models.Payout
	for _, p := range s.payouts {
		if p.SellerID != sellerID || p.State != domain.PayoutStatePending {
			continue
		}
		if found == nil || p.CreatedAt.Before(found.CreatedAt) {
			out := p
			found = &out
		}
	}
	if found == nil {
		return nil, models.ErrNotFound
	}
	return found, nil
}

func (s *memStore) UpdatePayout(_ context.Context, p *models.Payout, expected domain.PayoutState) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.payouts[p.ID]
	if !ok || current.State != expected {
		return 0, nil
	}
	updated := *p
	updated.CreatedAt = current.CreatedAt
	updated.UpdatedAt = s.stamp()
	s.payouts[p.ID] = updated
	return 1, nil
}

func (s *memStore) ListStalePayouts(_ context.Context, olderThan time.Time, limit int32) ([]models.Payout, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Payout
	for _, p := range s.payouts {
		stuck := p.State == domain.PayoutStatePending ||
			(p.State == domain.PayoutStateProcessing && p.NetworkTransferID == nil)
		if stuck && p.UpdatedAt.Before(olderThan) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if len(out) > int(limit) {
		out = out[:limit]
	}
	return out, nil
}

func (s *memStore) ListSellerPayouts(_ context.Context, sellerID uuid.UUID, limit, offset int32) ([]models.Payout, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Payout
	for _, p := range s.payouts {
		if p.SellerID == sellerID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if int(offset) >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > int(limit) {
		out = out[:limit]
	}
	return out, nil
}

// Balances

func (s *memStore) InsertBalance(_ context.Context, b *models.Balance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b.CreatedAt = s.stamp()
	s.balances[b.ID] = *b
	return nil
}

func (s *memStore) sortedBalances(match func(models.Balance) bool) []models.Balance {
	var out []models.Balance
	for _, b := range s.balances {
		if match(b) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (s *memStore) FindUnpaidBalances(_ context.Context, sellerID uuid.UUID) ([]models.Balance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sortedBalances(func(b models.Balance) bool {
		return b.SellerID == sellerID && b.State == domain.BalanceStateUnpaid && b.PayoutID == nil
	}), nil
}

func (s *memStore) ListPayoutBalances(_ context.Context, payoutID uuid.UUID) ([]models.Balance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sortedBalances(func(b models.Balance) bool {
		return b.PayoutID != nil && *b.PayoutID == payoutID
	}), nil
}

func (s *memStore) updateBalances(match func(models.Balance) bool, apply func(*models.Balance)) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, b := range s.balances {
		if match(b) {
			apply(&b)
			s.balances[id] = b
			n++
		}
	}
	return n
}

func (s *memStore) AttachBalances(_ context.Context, payoutID uuid.UUID, balanceIDs []uuid.UUID) (int64, error) {
	wanted := make(map[uuid.UUID]bool, len(balanceIDs))
	for _, id := range balanceIDs {
		wanted[id] = true
	}
	return s.updateBalances(
		func(b models.Balance) bool {
			return wanted[b.ID] && b.State == domain.BalanceStateUnpaid && b.PayoutID == nil
		},
		func(b *models.Balance) {
			id := payoutID
			b.State = domain.BalanceStateProcessing
			b.PayoutID = &id
		}), nil
}

func (s *memStore) MarkBalancesPaid(_ context.Context, payoutID uuid.UUID) (int64, error) {
	return s.updateBalances(
		func(b models.Balance) bool {
			return b.PayoutID != nil && *b.PayoutID == payoutID && b.State == domain.BalanceStateProcessing
		},
		func(b *models.Balance) { b.State = domain.BalanceStatePaid }), nil
}

func (s *memStore) ReleaseBalances(_ context.Context, payoutID uuid.UUID) (int64, error) {
	return s.updateBalances(
		func(b models.Balance) bool {
			return b.PayoutID != nil && *b.PayoutID == payoutID && b.State != domain.BalanceStateUnpaid
		},
		func(b *models.Balance) {
			b.State = domain.BalanceStateUnpaid
			b.PayoutID = nil
		}), nil
}

func (s *memStore) DeleteCarriedBalance(_ context.Context, payoutID uuid.UUID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, b := range s.balances {
		if b.CarriedFromPayoutID != nil && *b.CarriedFromPayoutID == payoutID &&
			b.State == domain.BalanceStateUnpaid && b.PayoutID == nil {
			delete(s.balances, id)
			n++
		}
	}
	return n, nil
}

func (s *memStore) InsertCredit(_ context.Context, c *models.Credit) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.NetworkReference != nil {
		for _, existing := range s.credits {
			if existing.NetworkReference != nil && *existing.NetworkReference == *c.NetworkReference {
				return false, nil
			}
		}
	}
	c.CreatedAt = s.stamp()
	s.credits = append(s.credits, *c)
	return true, nil
}

// Accounts

func (s *memStore) GetMerchantAccount(_ context.Context, id uuid.UUID) (*models.MerchantAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &a, nil
}

func (s *memStore) GetMerchantAccountByNetworkID(_ context.Context, networkAccountID string) (*models.MerchantAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if a.NetworkAccountID == networkAccountID {
			out := a
			return &out, nil
		}
	}
	return nil, models.ErrNotFound
}

func (s *memStore) ListMerchantAccounts(_ context.Context, sellerID uuid.UUID, extraIDs []uuid.UUID) ([]models.MerchantAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	extra := make(map[uuid.UUID]bool, len(extraIDs))
	for _, id := range extraIDs {
		extra[id] = true
	}
	var out []models.MerchantAccount
	for _, a := range s.accounts {
		if (a.SellerID != nil && *a.SellerID == sellerID) || extra[a.ID] {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// Internal transfers

func (s *memStore) InsertInternalTransfer(_ context.Context, t *models.InternalTransfer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.transfers {
		if existing.NetworkTransferID == t.NetworkTransferID {
			return models.ErrDuplicate
		}
	}
	t.CreatedAt = s.stamp()
	s.transfers[t.ID] = *t
	return nil
}

func (s *memStore) GetInternalTransfer(_ context.Context, id uuid.UUID) (*models.InternalTransfer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.transfers[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &t, nil
}

func (s *memStore) GetInternalTransferByNetworkID(_ context.Context, networkTransferID string) (*models.InternalTransfer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.transfers {
		if t.NetworkTransferID == networkTransferID {
			out := t
			return &out, nil
		}
	}
	return nil, models.ErrNotFound
}

func (s *memStore) MarkInternalTransferReversed(_ context.Context, id uuid.UUID, reversalID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.transfers[id]
	if !ok || t.ReversalID != nil {
		return 0, nil
	}
	t.ReversalID = &reversalID
	s.transfers[id] = t
	return 1, nil
}

// Reversal checks

func (s *memStore) InsertReversalCheck(_ context.Context, c *models.ReversalCheck) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.checks {
		if existing.PayoutID == c.PayoutID && existing.ReversingPayoutID == c.ReversingPayoutID {
			return false, nil
		}
	}
	c.CreatedAt = s.stamp()
	s.checks[c.ID] = *c
	return true, nil
}

func (s *memStore) GetReversalCheck(_ context.Context, payoutID uuid.UUID, reversingPayoutID string) (*models.ReversalCheck, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.checks {
		if c.PayoutID == payoutID && c.ReversingPayoutID == reversingPayoutID {
			out := c
			return &out, nil
		}
	}
	return nil, models.ErrNotFound
}

func (s *memStore) ClaimDueReversalChecks(_ context.Context, now time.Time, lease time.Duration, limit int32) ([]models.ReversalCheck, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.ReversalCheck
	for id, c := range s.checks {
		if len(out) >= int(limit) {
			break
		}
		if c.Status != domain.ReversalCheckScheduled || c.RunAt.After(now) {
			continue
		}
		c.RunAt = now.Add(lease)
		c.Attempts++
		s.checks[id] = c
		out = append(out, c)
	}
	return out, nil
}

func (s *memStore) UpdateReversalCheck(_ context.Context, id uuid.UUID, status domain.ReversalCheckStatus, runAt time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.checks[id]
	if !ok || c.Status != domain.ReversalCheckScheduled {
		return 0, nil
	}
	c.Status = status
	c.RunAt = runAt
	s.checks[id] = c
	return 1, nil
}

func (s *memStore) CountScheduledReversalChecks(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, c := range s.checks {
		if c.Status == domain.ReversalCheckScheduled {
			n++
		}
	}
	return n, nil
}

// Reviews

func (s *memStore) InsertPayoutReview(_ context.Context, r *models.PayoutReview) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r.CreatedAt = s.stamp()
	s.reviews = append(s.reviews, *r)
	return nil
}

func (s *memStore) HasOpenReview(_ context.Context, payoutID uuid.UUID, reason string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.reviews {
		if r.PayoutID == payoutID && r.Reason == reason && !r.Resolved {
			return true, nil
		}
	}
	return false, nil
}

func (s *memStore) ListPayoutReviews(_ context.Context, includeResolved bool, limit, offset int32) ([]models.PayoutReview, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.PayoutReview
	for _, r := range s.reviews {
		if includeResolved || !r.Resolved {
			out = append(out, r)
		}
	}
	if int(offset) >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > int(limit) {
		out = out[:limit]
	}
	return out, nil
}

func (s *memStore) ResolvePayoutReview(_ context.Context, id uuid.UUID, actorID *uuid.UUID, resolution string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, r := range s.reviews {
		if r.ID == id && !r.Resolved {
			s.reviews[i].Resolved = true
			s.reviews[i].ResolvedBy = actorID
			s.reviews[i].Resolution = resolution
			return 1, nil
		}
	}
	return 0, nil
}

func (s *memStore) CountOpenPayoutReviews(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, r := range s.reviews {
		if !r.Resolved {
			n++
		}
	}
	return n, nil
}

func (s *memStore) InsertAuditLog(_ context.Context, arg repository.InsertAuditLogParams) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audit = append(s.audit, arg)
	return int64(len(s.audit)), nil
}

func (s *memStore) auditActions(payoutID uuid.UUID) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, a := range s.audit {
		if repository.FromPgUUID(a.EntityID) == payoutID {
			out = append(out, a.Action)
		}
	}
	return out
}

func (s *memStore) creditsFor(sellerID uuid.UUID) []models.Credit {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Credit
	for _, c := range s.credits {
		if c.SellerID == sellerID {
			out = append(out, c)
		}
	}
	return out
}

// testNetwork wraps the simulated network with injectable failures.
type testNetwork struct {
	*network.Simulated

	mu          sync.Mutex
	submitErr   error
	transferErr error
	reverseErr  error
	chargeHook  func(*network.Charge)
	submits     int
	transfers   int
	reversals   int
}

func newTestNetwork() *testNetwork {
	sim := network.NewSimulated()
	sim.FailureRate = 0
	sim.MaxDelay = 0
	return &testNetwork{Simulated: sim}
}

func (n *testNetwork) SubmitPayout(ctx context.Context, req network.PayoutRequest) (*network.Payout, error) {
	n.mu.Lock()
	n.submits++
	err := n.submitErr
	n.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return n.Simulated.SubmitPayout(ctx, req)
}

func (n *testNetwork) CreateTransfer(ctx context.Context, req network.TransferRequest) (*network.Transfer, error) {
	n.mu.Lock()
	n.transfers++
	err := n.transferErr
	n.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return n.Simulated.CreateTransfer(ctx, req)
}

func (n *testNetwork) ReverseTransfer(ctx context.Context, transferID, idempotencyKey string) (*network.Reversal, error) {
	n.mu.Lock()
	n.reversals++
	err := n.reverseErr
	n.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return n.Simulated.ReverseTransfer(ctx, transferID, idempotencyKey)
}

func (n *testNetwork) RetrieveCharge(ctx context.Context, chargeID, account string, expand ...string) (*network.Charge, error) {
	c, err := n.Simulated.RetrieveCharge(ctx, chargeID, account, expand...)
	if err != nil {
		return nil, err
	}
	n.mu.Lock()
	hook := n.chargeHook
	n.mu.Unlock()
	if hook != nil {
		hook(c)
	}
	return c, nil
}

func (n *testNetwork) setSubmitErr(err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.submitErr = err
}

func (n *testNetwork) counts() (submits, transfers, reversals int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.submits, n.transfers, n.reversals
}

type recordingNotifier struct {
	mu     sync.Mutex
	failed []uuid.UUID
}

func (n *recordingNotifier) PayoutFailed(_ context.Context, p *models.Payout) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failed = append(n.failed, p.ID)
	return nil
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.failed)
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	t          *testing.T
	ctx        context.Context
	store      *memStore
	net        *testNetwork
	notifier   *recordingNotifier
	clock      *testClock
	payouts    *PayoutService
	reconciler *PayoutEventReconciler
	transfers  *InternalTransferService
	seller     uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := &testClock{now: time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)}
	store := newMemStore()
	store.now = clock.Now
	nw := newTestNetwork()
	notifier := &recordingNotifier{}
	locker := lock.NewLocalLocker()
	opts := Options{Now: clock.Now}

	return &fixture{
		t:          t,
		ctx:        context.Background(),
		store:      store,
		net:        nw,
		notifier:   notifier,
		clock:      clock,
		payouts:    NewPayoutService(store, nw, locker, notifier, opts),
		reconciler: NewPayoutEventReconciler(store, nw, locker, notifier, opts),
		transfers:  NewInternalTransferService(store, nw),
		seller:     uuid.New(),
	}
}

func (f *fixture) addAccount(kind domain.MerchantAccountKind, holder domain.HolderOfFunds, currency, networkID string) models.MerchantAccount {
	f.t.Helper()
	seller := f.seller
	a := models.MerchantAccount{
		ID:               uuid.New(),
		SellerID:         &seller,
		NetworkAccountID: networkID,
		HolderOfFunds:    holder,
		Currency:         currency,
		Kind:             kind,
		Active:           true,
		CreatedAt:        f.store.stamp(),
	}
	f.store.accounts[a.ID] = a
	return a
}

func (f *fixture) addSubaccount(currency string) models.MerchantAccount {
	return f.addAccount(domain.AccountKindPlatformSubaccount, domain.HolderNetwork, currency, "acct_sub_"+currency)
}

func (f *fixture) addBalance(holder domain.HolderOfFunds, amount int64, currency string, account *models.MerchantAccount) models.Balance {
	f.t.Helper()
	b := &models.Balance{
		ID:            uuid.New(),
		SellerID:      f.seller,
		Date:          f.clock.Now().Truncate(24 * time.Hour),
		Currency:      currency,
		HoldingAmount: amount,
		HolderOfFunds: holder,
		State:         domain.BalanceStateUnpaid,
	}
	if account != nil {
		id := account.ID
		b.MerchantAccountID = &id
	}
	require.NoError(f.t, f.store.InsertBalance(f.ctx, b))
	return *b
}

func (f *fixture) payout(id uuid.UUID) *models.Payout {
	f.t.Helper()
	p, err := f.store.GetPayout(f.ctx, id)
	require.NoError(f.t, err)
	return p
}

func (f *fixture) sellerBalances() []models.Balance {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	return f.store.sortedBalances(func(b models.Balance) bool { return b.SellerID == f.seller })
}

func (f *fixture) unpaidTotal() int64 {
	var total int64
	for _, b := range f.sellerBalances() {
		if b.State == domain.BalanceStateUnpaid {
			total += b.HoldingAmount
		}
	}
	return total
}

// event builds a payout event for p as the network would send it.
func (f *fixture) event(p *models.Payout, eventType string) *Event {
	f.t.Helper()
	account, err := f.store.GetMerchantAccount(f.ctx, p.DestinationAccountID)
	require.NoError(f.t, err)
	return &Event{
		ID:      "evt_" + uuid.NewString(),
		Type:    eventType,
		Account: account.NetworkAccountID,
		Data: EventData{Object: EventObject{
			ID:       derefString(p.NetworkTransferID),
			Object:   domain.EventObjectPayout,
			Amount:   p.Amount,
			Currency: p.Currency,
			Metadata: map[string]string{domain.MetadataPaymentKey: p.ExternalID},
		}},
	}
}

// reversalEvent builds an event about a payout reversing p.
func (f *fixture) reversalEvent(p *models.Payout, reversingID, eventType string) *Event {
	evt := f.event(p, eventType)
	evt.Data.Object.ID = reversingID
	evt.Data.Object.OriginalPayout = derefString(p.NetworkTransferID)
	evt.Data.Object.Amount = -p.Amount
	evt.Data.Object.Metadata = nil
	return evt
}

// settledPayout settles a single network-held balance and returns the processing payout.
func (f *fixture) settledPayout(amount int64, currency string) *models.Payout {
	f.t.Helper()
	account := f.addSubaccount(currency)
	f.addBalance(domain.HolderNetwork, amount, currency, &account)
	p, err := f.payouts.SettleSeller(f.ctx, f.seller, domain.PayoutTypeStandard)
	require.NoError(f.t, err)
	require.Equal(f.t, domain.PayoutStateProcessing, p.State)
	return p
}
