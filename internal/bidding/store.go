package bidding

import (
	"context"
	"sync"
	"time"

	"github.com/chainbid/relay/internal/models"
	"github.com/google/uuid"
)

type BidFilter struct {
	ContractID *string
	Status     *string
	Limit      int
}

// Store persists bids and escrows. The state machine itself lives in the
// Engine; ResolveBid is the one conditional write the store must provide so
// that "first accept wins" holds in every backend.
type Store interface {
	CreateBid(ctx context.Context, bid *models.Bid) error
	GetBid(ctx context.Context, id uuid.UUID) (*models.Bid, error)
	ListBids(ctx context.Context, f BidFilter) ([]models.Bid, error)
	// ResolveBid sets the bid's status iff it is still pending. changed is
	// false when the bid was already resolved.
	ResolveBid(ctx context.Context, id uuid.UUID, status string, at time.Time) (changed bool, err error)

	CreateEscrow(ctx context.Context, e *models.Escrow) error
	GetEscrow(ctx context.Context, id uuid.UUID) (*models.Escrow, error)
	GetEscrowByBid(ctx context.Context, bidID uuid.UUID) (*models.Escrow, error)
	UpdateEscrow(ctx context.Context, e *models.Escrow) error
}

// MemoryStore is the default process-local store; the reference deployment
// keeps all contractual state in memory.
type MemoryStore struct {
	mu      sync.RWMutex
	bids    map[uuid.UUID]*models.Bid
	escrows map[uuid.UUID]*models.Escrow
	byBid   map[uuid.UUID]uuid.UUID // bid id -> escrow id
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		bids:    make(map[uuid.UUID]*models.Bid),
		escrows: make(map[uuid.UUID]*models.Escrow),
		byBid:   make(map[uuid.UUID]uuid.UUID),
	}
}

func (s *MemoryStore) CreateBid(ctx context.Context, bid *models.Bid) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *bid
	s.bids[bid.ID] = &cp
	return nil
}

func (s *MemoryStore) GetBid(ctx context.Context, id uuid.UUID) (*models.Bid, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	bid, ok := s.bids[id]
	if !ok {
		return nil, ErrBidNotFound
	}
	cp := *bid
	return &cp, nil
}

func (s *MemoryStore) ListBids(ctx context.Context, f BidFilter) ([]models.Bid, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Bid
	for _, bid := range s.bids {
		if f.ContractID != nil && bid.ContractID != *f.ContractID {
			continue
		}
		if f.Status != nil && bid.Status != *f.Status {
			continue
		}
		out = append(out, *bid)
		if f.Limit > 0 && len(out) >= f.Limit {
			break
		}
	}
	return out, nil
}

func (s *MemoryStore) ResolveBid(ctx context.Context, id uuid.UUID, status string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bid, ok := s.bids[id]
	if !ok {
		return false, ErrBidNotFound
	}
	if !models.IsValidBidTransition(bid.Status, status) {
		return false, nil
	}
	bid.Status = status
	bid.ResolvedAt = &at
	return true, nil
}

func (s *MemoryStore) CreateEscrow(ctx context.Context, e *models.Escrow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := cloneEscrow(e)
	s.escrows[e.ID] = cp
	s.byBid[e.BidID] = e.ID
	return nil
}

func (s *MemoryStore) GetEscrow(ctx context.Context, id uuid.UUID) (*models.Escrow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.escrows[id]
	if !ok {
		return nil, ErrEscrowNotFound
	}
	return cloneEscrow(e), nil
}

func (s *MemoryStore) GetEscrowByBid(ctx context.Context, bidID uuid.UUID) (*models.Escrow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byBid[bidID]
	if !ok {
		return nil, ErrEscrowNotFound
	}
	return cloneEscrow(s.escrows[id]), nil
}

func (s *MemoryStore) UpdateEscrow(ctx context.Context, e *models.Escrow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.escrows[e.ID]; !ok {
		return ErrEscrowNotFound
	}
	s.escrows[e.ID] = cloneEscrow(e)
	return nil
}

func cloneEscrow(e *models.Escrow) *models.Escrow {
	cp := *e
	cp.Milestones = make([]models.Milestone, len(e.Milestones))
	copy(cp.Milestones, e.Milestones)
	return &cp
}
