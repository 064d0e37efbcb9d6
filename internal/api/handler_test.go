package api_test

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ayo6706/payout-settlement/internal/api"
	"github.com/ayo6706/payout-settlement/internal/api/middleware"
	"github.com/ayo6706/payout-settlement/internal/config"
	"github.com/ayo6706/payout-settlement/internal/domain"
	"github.com/ayo6706/payout-settlement/internal/models"
	"github.com/ayo6706/payout-settlement/internal/service"
)

const (
	testJWTSecret   = "test-secret-0123456789-test-secret"
	testJWTIssuer   = "payout-settlement-test"
	testJWTAudience = "payout-api-test"
	testHMACKey     = "test"
)

func TestMain(m *testing.M) {
	middleware.SetJWTSecret(testJWTSecret)
	middleware.SetJWTValidation(testJWTIssuer, testJWTAudience)
	os.Exit(m.Run())
}

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

type fakePayouts struct {
	mu          sync.Mutex
	settleErr   error
	settled     []domain.PayoutType
	payouts     map[uuid.UUID]*models.Payout
	reviews     []models.PayoutReview
	resolvedBy  *uuid.UUID
	resolveErr  error
	resolutions []string
}

func newFakePayouts() *fakePayouts {
	return &fakePayouts{payouts: map[uuid.UUID]*models.Payout{}}
}

func (f *fakePayouts) SettleSeller(_ context.Context, sellerID uuid.UUID, payoutType domain.PayoutType) (*models.Payout, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.settled = append(f.settled, payoutType)
	if f.settleErr != nil {
		return nil, f.settleErr
	}
	p := &models.Payout{
		ID:         uuid.New(),
		SellerID:   sellerID,
		Currency:   "USD",
		Amount:     1000,
		PayoutType: payoutType,
		State:      domain.PayoutStateProcessing,
	}
	f.payouts[p.ID] = p
	return p, nil
}

func (f *fakePayouts) GetPayout(_ context.Context, id uuid.UUID) (*models.Payout, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.payouts[id]
	if !ok {
		return nil, service.ErrPayoutNotFound
	}
	return p, nil
}

func (f *fakePayouts) ListSellerPayouts(_ context.Context, sellerID uuid.UUID, limit, offset int32) ([]models.Payout, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Payout
	for _, p := range f.payouts {
		if p.SellerID == sellerID {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (f *fakePayouts) ListReviews(context.Context, bool, int32, int32) ([]models.PayoutReview, error) {
	return f.reviews, nil
}

func (f *fakePayouts) ReviewQueueSize(context.Context) (int64, error) {
	return int64(len(f.reviews)), nil
}

func (f *fakePayouts) ResolveReview(_ context.Context, _ uuid.UUID, actorID *uuid.UUID, resolution string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.resolveErr != nil {
		return f.resolveErr
	}
	f.resolvedBy = actorID
	f.resolutions = append(f.resolutions, resolution)
	return nil
}

type fakeEventHandler struct {
	err    error
	events []string
}

func (h *fakeEventHandler) Handle(_ context.Context, evt *service.Event) error {
	h.events = append(h.events, evt.ID)
	return h.err
}

type testAPI struct {
	handler http.Handler
	payouts *fakePayouts
	events  *fakeEventHandler
}

func setupAPI(t *testing.T, db fakePinger) *testAPI {
	t.Helper()
	cfg := &config.Config{
		HTTPPort:           "0",
		JWTSecret:          testJWTSecret,
		JWTIssuer:          testJWTIssuer,
		JWTAudience:        testJWTAudience,
		WebhookHMACKey:     testHMACKey,
		PublicRateLimitRPS: 1000,
		AuthRateLimitRPS:   1000,
		IdempotencyTTL:     time.Hour,
	}
	payouts := newFakePayouts()
	events := &fakeEventHandler{}
	webhooks := service.NewWebhookService(events, nil, testHMACKey, false)
	router := api.NewRouter(cfg, zap.NewNop(), db, nil, nil, payouts, webhooks)
	return &testAPI{handler: router.Routes(), payouts: payouts, events: events}
}

func tokenWithRole(userID, role string) string {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": userID,
		"role":    role,
		"iss":     testJWTIssuer,
		"aud":     testJWTAudience,
		"sub":     userID,
		"iat":     now.Unix(),
		"nbf":     now.Add(-30 * time.Second).Unix(),
		"exp":     now.Add(time.Hour).Unix(),
	})
	tokenString, _ := token.SignedString(middleware.JWTSecret())
	return tokenString
}

func computeHMAC(payload []byte, key string) string {
	h := hmac.New(sha256.New, []byte(key))
	h.Write(payload)
	return "sha256=" + hex.EncodeToString(h.Sum(nil))
}

func (a *testAPI) do(method, path string, body []byte, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	a.handler.ServeHTTP(w, req)
	return w
}

func adminHeaders(actor uuid.UUID) map[string]string {
	return map[string]string{
		"Authorization":   "Bearer " + tokenWithRole(actor.String(), "admin"),
		"Idempotency-Key": uuid.NewString(),
	}
}

func TestHealthAndMetrics(t *testing.T) {
	a := setupAPI(t, fakePinger{})

	cases := []struct {
		name string
		path string
	}{
		{name: "live", path: "/health/live"},
		{name: "ready", path: "/health/ready"},
		{name: "metrics", path: "/metrics"},
		{name: "openapi", path: "/openapi.yaml"},
		{name: "swagger", path: "/swagger/index.html"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := a.do(http.MethodGet, tc.path, nil, nil)
			assert.Equal(t, http.StatusOK, w.Code)
		})
	}
}

func TestReadyReportsDatabaseOutage(t *testing.T) {
	a := setupAPI(t, fakePinger{err: errors.New("connection refused")})

	w := a.do(http.MethodGet, "/health/ready", nil, nil)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	require.Equal(t, "application/problem+json", w.Header().Get("Content-Type"))
}

func payoutEvent(id string) []byte {
	body, _ := json.Marshal(map[string]any{
		"id":      id,
		"type":    domain.EventPayoutPaid,
		"account": "acct_123",
		"data": map[string]any{"object": map[string]any{
			"id":     "po_123",
			"object": domain.EventObjectPayout,
			"amount": 1000,
		}},
	})
	return body
}

func TestNetworkWebhook(t *testing.T) {
	cases := []struct {
		name       string
		handlerErr error
		signature  func([]byte) string
		status     int
		outcome    string
	}{
		{
			name:      "processed",
			signature: func(b []byte) string { return computeHMAC(b, testHMACKey) },
			status:    http.StatusOK,
			outcome:   service.WebhookProcessed,
		},
		{
			name:      "bad signature",
			signature: func(b []byte) string { return computeHMAC(b, "wrong") },
			status:    http.StatusUnauthorized,
		},
		{
			name:       "unknown payout is redelivered",
			handlerErr: service.ErrPayoutNotFound,
			signature:  func(b []byte) string { return computeHMAC(b, testHMACKey) },
			status:     http.StatusInternalServerError,
		},
		{
			name:       "network outage",
			handlerErr: fmt.Errorf("retrieve payout: %w", service.ErrNetworkUnavailable),
			signature:  func(b []byte) string { return computeHMAC(b, testHMACKey) },
			status:     http.StatusServiceUnavailable,
		},
		{
			name:       "inconsistency is acknowledged",
			handlerErr: service.ErrReversalInconsistency,
			signature:  func(b []byte) string { return computeHMAC(b, testHMACKey) },
			status:     http.StatusOK,
			outcome:    service.WebhookFlagged,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a := setupAPI(t, fakePinger{})
			a.events.err = tc.handlerErr
			body := payoutEvent("evt_" + uuid.NewString())

			w := a.do(http.MethodPost, "/v1/webhooks/network", body, map[string]string{
				"X-Webhook-Signature": tc.signature(body),
			})
			require.Equal(t, tc.status, w.Code, w.Body.String())
			if tc.outcome != "" {
				var res service.WebhookResult
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
				require.Equal(t, tc.outcome, res.Status)
			}
		})
	}
}

func TestAdminRoutesRequireAdminToken(t *testing.T) {
	a := setupAPI(t, fakePinger{})
	path := "/v1/sellers/" + uuid.NewString() + "/payouts"

	w := a.do(http.MethodPost, path, nil, nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w = a.do(http.MethodPost, path, nil, map[string]string{
		"Authorization": "Bearer " + tokenWithRole(uuid.NewString(), "user"),
	})
	require.Equal(t, http.StatusForbidden, w.Code)
	require.Empty(t, a.payouts.settled)
}

func TestSettleSeller(t *testing.T) {
	a := setupAPI(t, fakePinger{})
	sellerID := uuid.New()
	path := "/v1/sellers/" + sellerID.String() + "/payouts"

	w := a.do(http.MethodPost, path, []byte(`{"payout_type":"instant"}`), adminHeaders(uuid.New()))
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	var p models.Payout
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &p))
	require.Equal(t, sellerID, p.SellerID)
	require.Equal(t, domain.PayoutTypeInstant, p.PayoutType)

	w = a.do(http.MethodGet, "/v1/payouts/"+p.ID.String(), nil, adminHeaders(uuid.New()))
	require.Equal(t, http.StatusOK, w.Code)

	w = a.do(http.MethodGet, path+"?limit=10", nil, adminHeaders(uuid.New()))
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Equal(t, 1, list.Count)
}

func TestSettleSellerDefaultsToStandard(t *testing.T) {
	a := setupAPI(t, fakePinger{})

	w := a.do(http.MethodPost, "/v1/sellers/"+uuid.NewString()+"/payouts", nil, adminHeaders(uuid.New()))
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	require.Equal(t, []domain.PayoutType{domain.PayoutTypeStandard}, a.payouts.settled)
}

func TestSettleSellerErrors(t *testing.T) {
	cases := []struct {
		name   string
		path   string
		body   string
		err    error
		status int
	}{
		{name: "bad seller id", path: "/v1/sellers/nope/payouts", status: http.StatusBadRequest},
		{name: "bad payout type", body: `{"payout_type":"overnight"}`, status: http.StatusBadRequest},
		{name: "nothing to pay", err: service.ErrNothingToPay, status: http.StatusUnprocessableEntity},
		{name: "no destination", err: service.ErrNoDestination, status: http.StatusUnprocessableEntity},
		{name: "network down", err: fmt.Errorf("submit: %w", service.ErrNetworkUnavailable), status: http.StatusServiceUnavailable},
		{name: "concurrent", err: models.ErrStateConflict, status: http.StatusConflict},
		{name: "unexpected", err: errors.New("boom"), status: http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a := setupAPI(t, fakePinger{})
			a.payouts.settleErr = tc.err
			path := tc.path
			if path == "" {
				path = "/v1/sellers/" + uuid.NewString() + "/payouts"
			}
			w := a.do(http.MethodPost, path, []byte(tc.body), adminHeaders(uuid.New()))
			require.Equal(t, tc.status, w.Code, w.Body.String())
		})
	}
}

func TestGetPayoutNotFound(t *testing.T) {
	a := setupAPI(t, fakePinger{})

	w := a.do(http.MethodGet, "/v1/payouts/"+uuid.NewString(), nil, adminHeaders(uuid.New()))
	require.Equal(t, http.StatusNotFound, w.Code)

	w = a.do(http.MethodGet, "/v1/payouts/not-a-uuid", nil, adminHeaders(uuid.New()))
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestReviewQueue(t *testing.T) {
	a := setupAPI(t, fakePinger{})
	review := models.PayoutReview{ID: uuid.New(), PayoutID: uuid.New(), Reason: "reversal_inconsistency"}
	a.payouts.reviews = []models.PayoutReview{review}

	w := a.do(http.MethodGet, "/v1/payouts/reviews", nil, adminHeaders(uuid.New()))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var page struct {
		Count     int                   `json:"count"`
		OpenCount int64                 `json:"open_count"`
		Items     []models.PayoutReview `json:"items"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
	require.Equal(t, 1, page.Count)
	require.Equal(t, int64(1), page.OpenCount)
	require.Equal(t, review.ID, page.Items[0].ID)

	actor := uuid.New()
	path := "/v1/payouts/reviews/" + review.ID.String() + "/resolve"
	w = a.do(http.MethodPost, path, []byte(`{"resolution":"  "}`), adminHeaders(actor))
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = a.do(http.MethodPost, path, []byte(`{"resolution":"credited seller manually"}`), adminHeaders(actor))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.NotNil(t, a.payouts.resolvedBy)
	require.Equal(t, actor, *a.payouts.resolvedBy)
	require.Equal(t, []string{"credited seller manually"}, a.payouts.resolutions)

	a.payouts.resolveErr = service.ErrReviewNotFound
	w = a.do(http.MethodPost, path, []byte(`{"resolution":"again"}`), adminHeaders(actor))
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestReviewsRouteIsNotShadowedByPayoutID(t *testing.T) {
	a := setupAPI(t, fakePinger{})

	w := a.do(http.MethodGet, "/v1/payouts/reviews?limit=0", nil, adminHeaders(uuid.New()))
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Contains(t, w.Body.String(), "limit")
}
