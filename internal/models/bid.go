package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Bid statuses
const (
	BidStatusPending  = "pending"
	BidStatusAccepted = "accepted"
	BidStatusRejected = "rejected"
)

// Valid state transitions: from -> []to. A bid is terminal once non-pending.
var ValidBidTransitions = map[string][]string{
	BidStatusPending:  {BidStatusAccepted, BidStatusRejected},
	BidStatusAccepted: {},
	BidStatusRejected: {},
}

func IsValidBidTransition(from, to string) bool {
	allowed, ok := ValidBidTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// MilestoneSpec is a milestone as proposed on a bid. It carries no release
// state; that lives on the escrow copy created at acceptance.
type MilestoneSpec struct {
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
}

type Bid struct {
	ID                uuid.UUID       `json:"id"`
	ContractID        string          `json:"contract_id"`
	ContractorAddress string          `json:"contractor_address"`
	Amount            decimal.Decimal `json:"amount"`
	Currency          string          `json:"currency"`
	PerformanceScore  float64         `json:"performance_score"`
	Milestones        []MilestoneSpec `json:"milestones"`
	Status            string          `json:"status"`
	SubmittedAt       time.Time       `json:"submitted_at"`
	ResolvedAt        *time.Time      `json:"resolved_at,omitempty"`
}
