package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	EscrowStatusActive    = "active"
	EscrowStatusCompleted = "completed"
)

const (
	MilestoneStatusPending   = "pending"
	MilestoneStatusCompleted = "completed"
)

// Milestone is an independently releasable slice of an escrow. FundsReleased
// is a one-way latch; there is no refund or reversal path.
type Milestone struct {
	Description   string          `json:"description"`
	Amount        decimal.Decimal `json:"amount"`
	Status        string          `json:"status"`
	FundsReleased bool            `json:"funds_released"`
	ReleasedAt    *time.Time      `json:"released_at,omitempty"`
}

// Escrow is created exactly once per accepted bid (1:1). Only the client
// address may release milestones.
type Escrow struct {
	ID                uuid.UUID       `json:"id"`
	BidID             uuid.UUID       `json:"bid_id"`
	ContractID        string          `json:"contract_id"`
	ContractorAddress string          `json:"contractor_address"`
	ClientAddress     string          `json:"client_address"`
	Amount            decimal.Decimal `json:"amount"`
	Currency          string          `json:"currency"`
	Milestones        []Milestone     `json:"milestones"`
	ReleasedTotal     decimal.Decimal `json:"released_total"`
	Status            string          `json:"status"`
	CreatedAt         time.Time       `json:"created_at"`
	CompletedAt       *time.Time      `json:"completed_at,omitempty"`
}

// AllReleased reports whether every milestone has had its funds released.
func (e *Escrow) AllReleased() bool {
	for i := range e.Milestones {
		if !e.Milestones[i].FundsReleased {
			return false
		}
	}
	return len(e.Milestones) > 0
}
