package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/chainbid/relay/internal/bidding"
	"github.com/chainbid/relay/internal/models"
)

// BiddingRepo is the postgres-backed bidding.Store. Amounts are stored as
// text and parsed on read; milestones travel as jsonb.
type BiddingRepo struct {
	pool *pgxpool.Pool
}

func NewBiddingRepo(pool *pgxpool.Pool) *BiddingRepo {
	return &BiddingRepo{pool: pool}
}

func (r *BiddingRepo) CreateBid(ctx context.Context, bid *models.Bid) error {
	milestones, err := json.Marshal(bid.Milestones)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO bids (id, contract_id, contractor_address, amount, currency, performance_score, milestones, status, submitted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, bid.ID, bid.ContractID, bid.ContractorAddress, bid.Amount.String(), bid.Currency,
		bid.PerformanceScore, milestones, bid.Status, bid.SubmittedAt)
	return err
}

const bidColumns = `id, contract_id, contractor_address, amount, currency, performance_score, milestones, status, submitted_at, resolved_at`

func scanBid(row pgx.Row) (*models.Bid, error) {
	var b models.Bid
	var amount string
	var milestones []byte
	if err := row.Scan(&b.ID, &b.ContractID, &b.ContractorAddress, &amount, &b.Currency,
		&b.PerformanceScore, &milestones, &b.Status, &b.SubmittedAt, &b.ResolvedAt); err != nil {
		return nil, err
	}
	var err error
	if b.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("bad amount %q: %w", amount, err)
	}
	if err := json.Unmarshal(milestones, &b.Milestones); err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *BiddingRepo) GetBid(ctx context.Context, id uuid.UUID) (*models.Bid, error) {
	bid, err := scanBid(r.pool.QueryRow(ctx, `SELECT `+bidColumns+` FROM bids WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, bidding.ErrBidNotFound
	}
	return bid, err
}

func (r *BiddingRepo) ListBids(ctx context.Context, f bidding.BidFilter) ([]models.Bid, error) {
	query := `SELECT ` + bidColumns + ` FROM bids WHERE 1=1`
	args := []any{}
	argN := 1

	if f.ContractID != nil {
		query += fmt.Sprintf(" AND contract_id = $%d", argN)
		args = append(args, *f.ContractID)
		argN++
	}
	if f.Status != nil {
		query += fmt.Sprintf(" AND status = $%d", argN)
		args = append(args, *f.Status)
		argN++
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	query += fmt.Sprintf(" ORDER BY submitted_at DESC LIMIT $%d", argN)
	args = append(args, limit)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bids []models.Bid
	for rows.Next() {
		bid, err := scanBid(rows)
		if err != nil {
			return nil, err
		}
		bids = append(bids, *bid)
	}
	return bids, rows.Err()
}

func (r *BiddingRepo) ResolveBid(ctx context.Context, id uuid.UUID, status string, at time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE bids SET status = $2, resolved_at = $3
		WHERE id = $1 AND status = 'pending'
	`, id, status, at)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *BiddingRepo) CreateEscrow(ctx context.Context, e *models.Escrow) error {
	milestones, err := json.Marshal(e.Milestones)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO escrows (id, bid_id, contract_id, contractor_address, client_address, amount, currency, milestones, released_total, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, e.ID, e.BidID, e.ContractID, e.ContractorAddress, e.ClientAddress, e.Amount.String(),
		e.Currency, milestones, e.ReleasedTotal.String(), e.Status, e.CreatedAt)
	return err
}

const escrowColumns = `id, bid_id, contract_id, contractor_address, client_address, amount, currency, milestones, released_total, status, created_at, completed_at`

func scanEscrow(row pgx.Row) (*models.Escrow, error) {
	var e models.Escrow
	var amount, released string
	var milestones []byte
	if err := row.Scan(&e.ID, &e.BidID, &e.ContractID, &e.ContractorAddress, &e.ClientAddress,
		&amount, &e.Currency, &milestones, &released, &e.Status, &e.CreatedAt, &e.CompletedAt); err != nil {
		return nil, err
	}
	var err error
	if e.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("bad amount %q: %w", amount, err)
	}
	if e.ReleasedTotal, err = decimal.NewFromString(released); err != nil {
		return nil, fmt.Errorf("bad released total %q: %w", released, err)
	}
	if err := json.Unmarshal(milestones, &e.Milestones); err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *BiddingRepo) GetEscrow(ctx context.Context, id uuid.UUID) (*models.Escrow, error) {
	e, err := scanEscrow(r.pool.QueryRow(ctx, `SELECT `+escrowColumns+` FROM escrows WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, bidding.ErrEscrowNotFound
	}
	return e, err
}

func (r *BiddingRepo) GetEscrowByBid(ctx context.Context, bidID uuid.UUID) (*models.Escrow, error) {
	e, err := scanEscrow(r.pool.QueryRow(ctx, `SELECT `+escrowColumns+` FROM escrows WHERE bid_id = $1`, bidID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, bidding.ErrEscrowNotFound
	}
	return e, err
}

func (r *BiddingRepo) UpdateEscrow(ctx context.Context, e *models.Escrow) error {
	milestones, err := json.Marshal(e.Milestones)
	if err != nil {
		return err
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE escrows SET milestones = $2, released_total = $3, status = $4, completed_at = $5
		WHERE id = $1
	`, e.ID, milestones, e.ReleasedTotal.String(), e.Status, e.CompletedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return bidding.ErrEscrowNotFound
	}
	return nil
}
