package service

import (
	"time"

	"github.com/ayo6706/payout-settlement/internal/domain"
)

// Event is a network webhook notification.
type Event struct {
	ID      string    `json:"id"`
	Type    string    `json:"type"`
	Account string    `json:"account"`
	Created int64     `json:"created"`
	Data    EventData `json:"data"`
}

type EventData struct {
	Object EventObject `json:"object"`
}

// EventObject is the payout carried by an event.
type EventObject struct {
	ID             string            `json:"id"`
	Object         string            `json:"object"`
	Amount         int64             `json:"amount"`
	Currency       string            `json:"currency"`
	Automatic      bool              `json:"automatic"`
	OriginalPayout string            `json:"original_payout,omitempty"`
	ArrivalDate    int64             `json:"arrival_date,omitempty"`
	FailureCode    string            `json:"failure_code,omitempty"`
	Status         string            `json:"status,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

func (o EventObject) arrival() *time.Time {
	if o.ArrivalDate <= 0 {
		return nil
	}
	t := time.Unix(o.ArrivalDate, 0).UTC()
	return &t
}

func isPayoutEventType(t string) bool {
	switch t {
	case domain.EventPayoutPaid, domain.EventPayoutCanceled, domain.EventPayoutFailed:
		return true
	}
	return false
}
