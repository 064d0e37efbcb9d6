package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ayo6706/payout-settlement/internal/domain"
	"github.com/ayo6706/payout-settlement/internal/observability"
)

// Webhook outcomes reported to the caller.
const (
	WebhookProcessed = "processed"
	WebhookDuplicate = "duplicate"
	WebhookIgnored   = "ignored"
	WebhookFlagged   = "flagged_for_review"
)

// DefaultSignatureTolerance bounds the age of a timestamped signature.
const DefaultSignatureTolerance = 5 * time.Minute

// EventDeduper remembers processed event ids. *idempotency.Store implements it.
type EventDeduper interface {
	BeginEvent(ctx context.Context, eventID, eventType string) (bool, error)
	ForgetEvent(ctx context.Context, eventID string) error
}

// EventHandler applies a decoded event.
type EventHandler interface {
	Handle(ctx context.Context, evt *Event) error
}

// WebhookService verifies, deduplicates and dispatches network events.
type WebhookService struct {
	handler   EventHandler
	deduper   EventDeduper
	hmacKey   []byte
	skipSig   bool
	tolerance time.Duration
	now       func() time.Time
}

// NewWebhookService creates a new WebhookService instance. deduper may be nil.
func NewWebhookService(handler EventHandler, deduper EventDeduper, hmacKey string, skipSignature bool) *WebhookService {
	return &WebhookService{
		handler:   handler,
		deduper:   deduper,
		hmacKey:   []byte(hmacKey),
		skipSig:   skipSignature,
		tolerance: DefaultSignatureTolerance,
		now:       time.Now,
	}
}

// WebhookResult reports how an event was handled.
type WebhookResult struct {
	EventID string `json:"event_id"`
	Status  string `json:"status"`
}

// HandleNetworkEvent processes one delivery. A returned error means the network
// should redeliver; the event id is forgotten so the redelivery is not
// mistaken for a duplicate. Reversal inconsistencies are acknowledged, since a
// review was opened and redelivery cannot fix them.
func (s *WebhookService) HandleNetworkEvent(ctx context.Context, payload []byte, signature string) (*WebhookResult, error) {
	if !s.verifySignature(payload, signature) {
		observability.IncrementWebhookEvent("unknown", "invalid_signature")
		return nil, ErrInvalidSignature
	}

	var evt Event
	if err := json.Unmarshal(payload, &evt); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if strings.TrimSpace(evt.ID) == "" {
		return nil, fmt.Errorf("%w: missing event id", ErrMalformedEvent)
	}
	result := &WebhookResult{EventID: evt.ID}

	if evt.Data.Object.Object != domain.EventObjectPayout || !isPayoutEventType(evt.Type) {
		observability.IncrementWebhookEvent(evt.Type, WebhookIgnored)
		result.Status = WebhookIgnored
		return result, nil
	}

	if s.deduper != nil {
		first, err := s.deduper.BeginEvent(ctx, evt.ID, evt.Type)
		if err != nil {
			return nil, err
		}
		if !first {
			observability.IncrementWebhookEvent(evt.Type, WebhookDuplicate)
			result.Status = WebhookDuplicate
			return result, nil
		}
	}

	if err := s.handler.Handle(ctx, &evt); err != nil {
		if errors.Is(err, ErrReversalInconsistency) {
			observability.IncrementWebhookEvent(evt.Type, WebhookFlagged)
			result.Status = WebhookFlagged
			return result, nil
		}
		observability.IncrementWebhookEvent(evt.Type, "error")
		s.forget(evt.ID)
		return nil, err
	}

	observability.IncrementWebhookEvent(evt.Type, WebhookProcessed)
	result.Status = WebhookProcessed
	return result, nil
}

// forget runs detached from the request so a cancelled delivery still clears its id.
func (s *WebhookService) forget(eventID string) {
	if s.deduper == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.deduper.ForgetEvent(ctx, eventID); err != nil {
		zap.L().Error("failed to forget webhook event", zap.String("event_id", eventID), zap.Error(err))
	}
}

// verifySignature accepts either "sha256=<hex>" over the body, or the
// timestamped "t=<unix>,v1=<hex>" form signed over "<t>.<body>".
func (s *WebhookService) verifySignature(payload []byte, signature string) bool {
	if s.skipSig {
		return true
	}
	if len(s.hmacKey) == 0 || signature == "" {
		return false
	}

	if strings.HasPrefix(signature, "sha256=") {
		expected := "sha256=" + s.sign(payload)
		return hmac.Equal([]byte(signature), []byte(expected))
	}

	var timestamp string
	var candidates []string
	for _, part := range strings.Split(signature, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			timestamp = v
		case "v1":
			candidates = append(candidates, v)
		}
	}
	if timestamp == "" || len(candidates) == 0 {
		return false
	}
	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return false
	}
	if age := s.now().Sub(time.Unix(ts, 0)); s.tolerance > 0 && (age > s.tolerance || age < -s.tolerance) {
		return false
	}

	expected := s.sign(append([]byte(timestamp+"."), payload...))
	for _, c := range candidates {
		if hmac.Equal([]byte(c), []byte(expected)) {
			return true
		}
	}
	return false
}

func (s *WebhookService) sign(data []byte) string {
	h := hmac.New(sha256.New, s.hmacKey)
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}
