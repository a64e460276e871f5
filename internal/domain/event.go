package domain

import (
	"time"

	"github.com/google/uuid"
)

// Decision statuses shared by both validation endpoints.
const (
	StatusAccepted = "accepted"
	StatusDenied   = "denied"
	StatusError    = "error"
)

// Decision kinds carried on DecisionEvent.Type.
const (
	DecisionJurisdiction = "jurisdiction"
	DecisionCoupon       = "coupon"
)

// JurisdictionDecision is the outcome of checking an address against a claim.
type JurisdictionDecision struct {
	Status              string `json:"status"`
	ClaimedJurisdiction string `json:"claimed_jurisdiction"`
	ActualJurisdiction  string `json:"actual_jurisdiction"`
	MatchedAddress      string `json:"matched_address"`
}

// CouponDecision is the outcome of checking a coupon code for an address.
// Optional fields are empty when the check stopped before reaching them.
type CouponDecision struct {
	Status             string `json:"status"`
	Coupon             string `json:"coupon"`
	Jurisdiction       string `json:"jurisdiction,omitempty"`
	ActualJurisdiction string `json:"actual_jurisdiction,omitempty"`
	MatchedAddress     string `json:"matched_address,omitempty"`
	Reason             string `json:"reason"`
}

// DecisionEvent is the record published for every validation outcome.
type DecisionEvent struct {
	ID                 string    `json:"id"`
	Type               string    `json:"type"`
	Status             string    `json:"status"`
	Address            string    `json:"address"`
	Claimed            string    `json:"claimed,omitempty"`
	Coupon             string    `json:"coupon,omitempty"`
	ActualJurisdiction string    `json:"actual_jurisdiction,omitempty"`
	MatchedAddress     string    `json:"matched_address,omitempty"`
	Reason             string    `json:"reason,omitempty"`
	DecidedAt          time.Time `json:"decided_at"`
}

// NewDecisionEvent stamps a fresh random ID on an event.
func NewDecisionEvent(kind, status, address string, decidedAt time.Time) DecisionEvent {
	return DecisionEvent{
		ID:        uuid.NewString(),
		Type:      kind,
		Status:    status,
		Address:   address,
		DecidedAt: decidedAt.UTC(),
	}
}
