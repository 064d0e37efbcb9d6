// Package problem writes RFC 7807 problem+json responses.
package problem

import (
	"encoding/json"
	"net/http"
)

const contentType = "application/problem+json"
const baseTypeURL = "https://errors.payout-settlement.dev/"

// Details represents RFC 7807 Problem Details.
type Details struct {
	Type      string `json:"type"`
	Title     string `json:"title"`
	Status    int    `json:"status"`
	Detail    string `json:"detail"`
	Instance  string `json:"instance"`
	RequestID string `json:"request_id"`
	// Retryable tells webhook senders and operators whether the same request may succeed later.
	Retryable bool `json:"retryable,omitempty"`
}

// Type expands a slug such as "payout/not-found" into a problem type URL.
func Type(slug string) string {
	return baseTypeURL + slug
}

// Write sends RFC 7807-compliant errors.
func Write(w http.ResponseWriter, r *http.Request, status int, problemType, title, detail string) {
	writeDetails(w, r, Details{Type: problemType, Title: title, Status: status, Detail: detail})
}

// WriteSlug writes a problem whose type is built from slug and whose title is the status text.
func WriteSlug(w http.ResponseWriter, r *http.Request, status int, slug, detail string) {
	writeDetails(w, r, Details{Type: Type(slug), Status: status, Detail: detail})
}

func writeDetails(w http.ResponseWriter, r *http.Request, d Details) {
	if d.Title == "" {
		d.Title = http.StatusText(d.Status)
	}
	if d.Type == "" {
		d.Type = "about:blank"
	}
	if r != nil {
		d.Instance = r.URL.Path
		d.RequestID = r.Header.Get("X-Trace-ID")
	}
	if d.RequestID == "" {
		d.RequestID = w.Header().Get("X-Trace-ID")
	}
	switch d.Status {
	case http.StatusTooManyRequests, http.StatusServiceUnavailable, http.StatusConflict:
		d.Retryable = true
	default:
		d.Retryable = d.Status >= http.StatusInternalServerError
	}

	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(d.Status)
	_ = json.NewEncoder(w).Encode(d)
}
