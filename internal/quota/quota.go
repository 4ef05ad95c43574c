// Package quota prices client change requests by size tier and defines the
// open-request cap and the monthly allowance counter.
package quota

import (
	"errors"
	"strings"
	"time"
)

type SizeTier string

const (
	TierTiny   SizeTier = "tiny"
	TierSmall  SizeTier = "small"
	TierMedium SizeTier = "medium"
	TierLarge  SizeTier = "large"
)

const (
	// OpenRequestCap bounds concurrent work in progress per client.
	OpenRequestCap = 2
	// DefaultIncludedRequests seeds a new monthly allowance row.
	DefaultIncludedRequests = 2
)

var ErrUnknownTier = errors.New("unknown size tier")

type Quote struct {
	Tier       SizeTier `json:"tier"`
	PriceCents *int64   `json:"priceCents"`
	Label      string   `json:"label"`
}

// Pending reports whether the tier needs a manual quote.
func (q Quote) Pending() bool {
	return q.PriceCents == nil
}

// QuoteFor is a fixed lookup; large requests are never auto-priced.
func QuoteFor(tier SizeTier) (Quote, error) {
	switch SizeTier(strings.ToLower(strings.TrimSpace(string(tier)))) {
	case TierTiny:
		return Quote{Tier: TierTiny, PriceCents: cents(0), Label: "free"}, nil
	case TierSmall:
		return Quote{Tier: TierSmall, PriceCents: cents(5000), Label: "$50"}, nil
	case TierMedium:
		return Quote{Tier: TierMedium, PriceCents: cents(10000), Label: "$100"}, nil
	case TierLarge:
		return Quote{Tier: TierLarge, Label: "quote pending"}, nil
	default:
		return Quote{}, ErrUnknownTier
	}
}

func cents(v int64) *int64 {
	return &v
}

type RequestStatus string

const (
	StatusNew             RequestStatus = "new"
	StatusInProgress      RequestStatus = "in_progress"
	StatusWaitingOnClient RequestStatus = "waiting_on_client"
	StatusDone            RequestStatus = "done"
	StatusCancelled       RequestStatus = "cancelled"
)

func ParseStatus(value string) (RequestStatus, bool) {
	switch status := RequestStatus(strings.ToLower(strings.TrimSpace(value))); status {
	case StatusNew, StatusInProgress, StatusWaitingOnClient, StatusDone, StatusCancelled:
		return status, true
	default:
		return "", false
	}
}

// IsOpen reports whether a request in this status counts against the cap.
func IsOpen(status RequestStatus) bool {
	return status != StatusDone && status != StatusCancelled
}

// CanSubmit is true while the client holds fewer than OpenRequestCap open requests.
func CanSubmit(openRequests int) bool {
	return openRequests < OpenRequestCap
}

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// ParsePriority defaults blank input to normal.
func ParsePriority(value string) (Priority, bool) {
	switch p := Priority(strings.ToLower(strings.TrimSpace(value))); p {
	case "":
		return PriorityNormal, true
	case PriorityLow, PriorityNormal, PriorityHigh:
		return p, true
	default:
		return "", false
	}
}

// Allowance is the per-client, per-month counter of included requests.
// It is never decremented; cancelling a request does not refund it.
type Allowance struct {
	ClientID         string    `json:"clientId"`
	Month            time.Time `json:"month"`
	IncludedRequests int       `json:"includedRequests"`
	UsedRequests     int       `json:"usedRequests"`
}

// Remaining is floored at zero.
func (a Allowance) Remaining() int {
	if a.UsedRequests >= a.IncludedRequests {
		return 0
	}
	return a.IncludedRequests - a.UsedRequests
}

// WithinAllowance reports whether the most recent submission was covered.
func (a Allowance) WithinAllowance() bool {
	return a.UsedRequests <= a.IncludedRequests
}

// Next applies one submission: a missing row starts at used=1 with the
// given included count.
func Next(existing *Allowance, clientID string, month time.Time, included int) Allowance {
	if existing == nil {
		return Allowance{
			ClientID:         clientID,
			Month:            month,
			IncludedRequests: included,
			UsedRequests:     1,
		}
	}
	next := *existing
	next.UsedRequests++
	return next
}
