// Package bidding owns the bid-acceptance and escrow/milestone state
// machines. No other component mutates bids or escrows.
package bidding

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chainbid/relay/internal/audit"
	"github.com/chainbid/relay/internal/events"
	"github.com/chainbid/relay/internal/models"
	"github.com/chainbid/relay/internal/wallet"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type Engine struct {
	store     Store
	auditLog  audit.Recorder
	publisher events.Publisher
	log       *zap.Logger

	// Serializes accept/release read-modify-write cycles. ResolveBid is
	// conditional in the store as well, so first-accept-wins holds even
	// without the lock; the lock keeps escrow mutation linearizable.
	mu sync.Mutex

	now func() time.Time
}

func NewEngine(store Store, auditLog audit.Recorder, publisher events.Publisher, log *zap.Logger) *Engine {
	return &Engine{
		store:     store,
		auditLog:  auditLog,
		publisher: publisher,
		log:       log,
		now:       time.Now,
	}
}

type SubmitBidInput struct {
	ContractID        string
	ContractorAddress string
	Amount            decimal.Decimal
	Currency          string
	PerformanceScore  float64
	Milestones        []models.MilestoneSpec
}

// SubmitBid validates and records a new pending bid. Milestone amounts must
// sum exactly to the bid amount; a bid without milestones gets one implicit
// milestone for the full amount.
func (e *Engine) SubmitBid(ctx context.Context, in SubmitBidInput) (*models.Bid, error) {
	if in.ContractID == "" || in.ContractorAddress == "" {
		return nil, fmt.Errorf("%w: contract id and contractor address are required", ErrInvalidBid)
	}
	if !in.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: amount must be positive", ErrInvalidBid)
	}
	if in.Currency == "" {
		in.Currency = "USDC"
	}

	milestones := in.Milestones
	if len(milestones) == 0 {
		milestones = []models.MilestoneSpec{{Description: "full delivery", Amount: in.Amount}}
	} else {
		sum := decimal.Zero
		for _, m := range milestones {
			if !m.Amount.IsPositive() {
				return nil, fmt.Errorf("%w: milestone amounts must be positive", ErrInvalidBid)
			}
			sum = sum.Add(m.Amount)
		}
		if !sum.Equal(in.Amount) {
			return nil, fmt.Errorf("%w: milestones sum to %s, bid amount is %s",
				ErrMilestoneSumMismatch, sum, in.Amount)
		}
	}

	bid := &models.Bid{
		ID:                uuid.New(),
		ContractID:        in.ContractID,
		ContractorAddress: wallet.Canonical(in.ContractorAddress),
		Amount:            in.Amount,
		Currency:          in.Currency,
		PerformanceScore:  in.PerformanceScore,
		Milestones:        milestones,
		Status:            models.BidStatusPending,
		SubmittedAt:       e.now(),
	}

	if err := e.store.CreateBid(ctx, bid); err != nil {
		return nil, err
	}

	_ = e.auditLog.Append(ctx, models.AuditEntry{
		Type:   models.AuditActionBidSubmitted,
		Author: bid.ContractorAddress,
		Meta:   map[string]any{"bid_id": bid.ID.String(), "contract_id": bid.ContractID, "amount": bid.Amount.String()},
	})

	return bid, nil
}

// AcceptBid resolves a pending bid and atomically creates its escrow. The
// first caller wins; a second accept attempt fails with ErrAlreadyResolved
// and never creates a second escrow. The acceptor becomes the escrow's
// client and the only address that may release milestones.
func (e *Engine) AcceptBid(ctx context.Context, bidID uuid.UUID, acceptorAddress string) (*models.Escrow, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	bid, err := e.store.GetBid(ctx, bidID)
	if err != nil {
		return nil, err
	}

	acceptor := wallet.Canonical(acceptorAddress)
	if acceptor == bid.ContractorAddress {
		return nil, fmt.Errorf("%w: contractor cannot accept own bid", ErrForbidden)
	}

	now := e.now()
	changed, err := e.store.ResolveBid(ctx, bidID, models.BidStatusAccepted, now)
	if err != nil {
		return nil, err
	}
	if !changed {
		return nil, ErrAlreadyResolved
	}

	milestones := make([]models.Milestone, len(bid.Milestones))
	for i, spec := range bid.Milestones {
		milestones[i] = models.Milestone{
			Description: spec.Description,
			Amount:      spec.Amount,
			Status:      models.MilestoneStatusPending,
		}
	}

	escrow := &models.Escrow{
		ID:                uuid.New(),
		BidID:             bid.ID,
		ContractID:        bid.ContractID,
		ContractorAddress: bid.ContractorAddress,
		ClientAddress:     acceptor,
		Amount:            bid.Amount,
		Currency:          bid.Currency,
		Milestones:        milestones,
		ReleasedTotal:     decimal.Zero,
		Status:            models.EscrowStatusActive,
		CreatedAt:         now,
	}

	if err := e.store.CreateEscrow(ctx, escrow); err != nil {
		return nil, fmt.Errorf("failed to create escrow for accepted bid %s: %w", bid.ID, err)
	}

	_ = e.auditLog.Append(ctx, models.AuditEntry{
		Type:   models.AuditActionBidAccepted,
		Author: acceptor,
		Meta:   map[string]any{"bid_id": bid.ID.String(), "escrow_id": escrow.ID.String()},
	})
	_ = e.publisher.Publish(ctx, events.StreamRelay, events.Event{
		Type: events.EventBidStatusChanged,
		Payload: map[string]any{
			"bid_id":     bid.ID.String(),
			"new_status": models.BidStatusAccepted,
			"escrow_id":  escrow.ID.String(),
		},
	})

	return escrow, nil
}

// RejectBid marks a pending bid rejected. Terminal; a resolved bid cannot be
// rejected again.
func (e *Engine) RejectBid(ctx context.Context, bidID uuid.UUID, actorAddress string) error {
	bid, err := e.store.GetBid(ctx, bidID)
	if err != nil {
		return err
	}

	changed, err := e.store.ResolveBid(ctx, bidID, models.BidStatusRejected, e.now())
	if err != nil {
		return err
	}
	if !changed {
		return ErrAlreadyResolved
	}

	actor := wallet.Canonical(actorAddress)
	_ = e.auditLog.Append(ctx, models.AuditEntry{
		Type:   models.AuditActionBidRejected,
		Author: actor,
		Meta:   map[string]any{"bid_id": bid.ID.String(), "contract_id": bid.ContractID},
	})
	_ = e.publisher.Publish(ctx, events.StreamRelay, events.Event{
		Type:    events.EventBidStatusChanged,
		Payload: map[string]any{"bid_id": bid.ID.String(), "new_status": models.BidStatusRejected},
	})

	return nil
}

// ReleaseMilestone releases funds for one milestone. Only the escrow's
// client may release; fundsReleased is a one-way latch; the escrow completes
// exactly when the last milestone releases.
func (e *Engine) ReleaseMilestone(ctx context.Context, escrowID uuid.UUID, index int, releaserAddress string) (*models.Escrow, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	escrow, err := e.store.GetEscrow(ctx, escrowID)
	if err != nil {
		return nil, err
	}

	releaser := wallet.Canonical(releaserAddress)
	if releaser != escrow.ClientAddress {
		return nil, fmt.Errorf("%w: only the client may release milestone funds", ErrForbidden)
	}
	if index < 0 || index >= len(escrow.Milestones) {
		return nil, fmt.Errorf("%w: index %d, escrow has %d milestones", ErrInvalidIndex, index, len(escrow.Milestones))
	}
	if escrow.Milestones[index].FundsReleased {
		return nil, ErrAlreadyReleased
	}

	now := e.now()
	m := &escrow.Milestones[index]
	m.FundsReleased = true
	m.Status = models.MilestoneStatusCompleted
	m.ReleasedAt = &now
	escrow.ReleasedTotal = escrow.ReleasedTotal.Add(m.Amount)

	if escrow.AllReleased() {
		escrow.Status = models.EscrowStatusCompleted
		escrow.CompletedAt = &now
	}

	if err := e.store.UpdateEscrow(ctx, escrow); err != nil {
		return nil, err
	}

	_ = e.auditLog.Append(ctx, models.AuditEntry{
		Type:   models.AuditActionRelease,
		Author: releaser,
		Meta: map[string]any{
			"escrow_id":      escrow.ID.String(),
			"milestone":      index,
			"amount":         m.Amount.String(),
			"escrow_status":  escrow.Status,
			"released_total": escrow.ReleasedTotal.String(),
		},
	})
	_ = e.publisher.Publish(ctx, events.StreamRelay, events.Event{
		Type: events.EventMilestoneReleased,
		Payload: map[string]any{
			"escrow_id": escrow.ID.String(),
			"milestone": index,
			"status":    escrow.Status,
		},
	})

	return escrow, nil
}

func (e *Engine) GetBid(ctx context.Context, id uuid.UUID) (*models.Bid, error) {
	return e.store.GetBid(ctx, id)
}

func (e *Engine) ListBids(ctx context.Context, f BidFilter) ([]models.Bid, error) {
	return e.store.ListBids(ctx, f)
}

func (e *Engine) GetEscrow(ctx context.Context, id uuid.UUID) (*models.Escrow, error) {
	return e.store.GetEscrow(ctx, id)
}

func (e *Engine) GetEscrowByBid(ctx context.Context, bidID uuid.UUID) (*models.Escrow, error) {
	return e.store.GetEscrowByBid(ctx, bidID)
}

// RankBids scores the pending bids competing for a contract. Pure function of
// stored attributes; safe to recompute on demand.
func (e *Engine) RankBids(ctx context.Context, contractID string) ([]RankedBid, error) {
	pending := models.BidStatusPending
	bids, err := e.store.ListBids(ctx, BidFilter{ContractID: &contractID, Status: &pending})
	if err != nil {
		return nil, err
	}
	return Rank(bids), nil
}
