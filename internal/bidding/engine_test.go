package bidding

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/chainbid/relay/internal/audit"
	"github.com/chainbid/relay/internal/events"
	"github.com/chainbid/relay/internal/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	contractor = "0xAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"
	client     = "0xBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBB"
	stranger   = "0xCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCC"
)

func newTestEngine() *Engine {
	return NewEngine(NewMemoryStore(), audit.NewMemoryLog(100), events.NopPublisher{}, zap.NewNop())
}

func submitBid(t *testing.T, e *Engine, amount string, milestones ...models.MilestoneSpec) *models.Bid {
	t.Helper()
	bid, err := e.SubmitBid(context.Background(), SubmitBidInput{
		ContractID:        "C1",
		ContractorAddress: contractor,
		Amount:            decimal.RequireFromString(amount),
		Currency:          "USDC",
		PerformanceScore:  80,
		Milestones:        milestones,
	})
	if err != nil {
		t.Fatal(err)
	}
	return bid
}

func TestSubmitBidDefaultsSingleMilestone(t *testing.T) {
	e := newTestEngine()
	bid := submitBid(t, e, "100")

	if len(bid.Milestones) != 1 {
		t.Fatalf("milestones = %d, want 1 implicit", len(bid.Milestones))
	}
	if !bid.Milestones[0].Amount.Equal(bid.Amount) {
		t.Fatal("implicit milestone should cover the full amount")
	}
	if bid.Status != models.BidStatusPending {
		t.Fatalf("status = %s, want pending", bid.Status)
	}
}

func TestSubmitBidEnforcesMilestoneSum(t *testing.T) {
	e := newTestEngine()
	_, err := e.SubmitBid(context.Background(), SubmitBidInput{
		ContractID:        "C1",
		ContractorAddress: contractor,
		Amount:            decimal.RequireFromString("100"),
		Milestones: []models.MilestoneSpec{
			{Description: "half", Amount: decimal.RequireFromString("50")},
			{Description: "rest", Amount: decimal.RequireFromString("40")},
		},
	})
	if !errors.Is(err, ErrMilestoneSumMismatch) {
		t.Fatalf("err = %v, want ErrMilestoneSumMismatch", err)
	}
}

func TestSubmitBidValidation(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()

	cases := []SubmitBidInput{
		{ContractorAddress: contractor, Amount: decimal.RequireFromString("10")},      // no contract
		{ContractID: "C1", Amount: decimal.RequireFromString("10")},                   // no contractor
		{ContractID: "C1", ContractorAddress: contractor},                             // zero amount
		{ContractID: "C1", ContractorAddress: contractor, Amount: decimal.RequireFromString("-5")},
	}
	for i, in := range cases {
		if _, err := e.SubmitBid(ctx, in); !errors.Is(err, ErrInvalidBid) {
			t.Errorf("case %d: err = %v, want ErrInvalidBid", i, err)
		}
	}
}

func TestAcceptBidCreatesEscrowOnce(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()
	bid := submitBid(t, e, "100")

	escrow, err := e.AcceptBid(ctx, bid.ID, client)
	if err != nil {
		t.Fatal(err)
	}
	if escrow.Status != models.EscrowStatusActive {
		t.Fatalf("escrow status = %s, want active", escrow.Status)
	}
	if !escrow.Amount.Equal(bid.Amount) {
		t.Fatal("escrow amount must copy the bid amount")
	}
	if escrow.ClientAddress == escrow.ContractorAddress {
		t.Fatal("client and contractor must differ")
	}

	// Second accept always fails and never creates a second escrow.
	if _, err := e.AcceptBid(ctx, bid.ID, stranger); !errors.Is(err, ErrAlreadyResolved) {
		t.Fatalf("second accept err = %v, want ErrAlreadyResolved", err)
	}
	got, err := e.GetEscrowByBid(ctx, bid.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != escrow.ID {
		t.Fatal("escrow was replaced by the second accept")
	}
	if got.ClientAddress != escrow.ClientAddress {
		t.Fatal("client address changed after failed accept")
	}
}

func TestAcceptBidUnknown(t *testing.T) {
	e := newTestEngine()
	if _, err := e.AcceptBid(context.Background(), uuid.New(), client); !errors.Is(err, ErrBidNotFound) {
		t.Fatalf("err = %v, want ErrBidNotFound", err)
	}
}

func TestAcceptOwnBidForbidden(t *testing.T) {
	e := newTestEngine()
	bid := submitBid(t, e, "100")
	if _, err := e.AcceptBid(context.Background(), bid.ID, contractor); !errors.Is(err, ErrForbidden) {
		t.Fatalf("err = %v, want ErrForbidden", err)
	}
}

func TestRejectThenAcceptFails(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()
	bid := submitBid(t, e, "100")

	if err := e.RejectBid(ctx, bid.ID, client); err != nil {
		t.Fatal(err)
	}
	if _, err := e.AcceptBid(ctx, bid.ID, client); !errors.Is(err, ErrAlreadyResolved) {
		t.Fatalf("accept after reject err = %v, want ErrAlreadyResolved", err)
	}
	if err := e.RejectBid(ctx, bid.ID, client); !errors.Is(err, ErrAlreadyResolved) {
		t.Fatalf("double reject err = %v, want ErrAlreadyResolved", err)
	}
}

func TestConcurrentAcceptSingleWinner(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()
	bid := submitBid(t, e, "100")

	const callers = 16
	var wg sync.WaitGroup
	wins := make(chan *models.Escrow, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if escrow, err := e.AcceptBid(ctx, bid.ID, client); err == nil {
				wins <- escrow
			}
		}()
	}
	wg.Wait()
	close(wins)

	count := 0
	for range wins {
		count++
	}
	if count != 1 {
		t.Fatalf("winners = %d, want exactly 1", count)
	}
}

func TestReleaseMilestoneLatch(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()
	bid := submitBid(t, e, "100",
		models.MilestoneSpec{Description: "design", Amount: decimal.RequireFromString("40")},
		models.MilestoneSpec{Description: "build", Amount: decimal.RequireFromString("60")},
	)
	escrow, err := e.AcceptBid(ctx, bid.ID, client)
	if err != nil {
		t.Fatal(err)
	}

	updated, err := e.ReleaseMilestone(ctx, escrow.ID, 0, client)
	if err != nil {
		t.Fatal(err)
	}
	if updated.Status != models.EscrowStatusActive {
		t.Fatal("escrow must stay active with milestones outstanding")
	}
	if updated.ReleasedTotal.String() != "40" {
		t.Fatalf("released total = %s, want 40", updated.ReleasedTotal)
	}

	// The latch is one-way.
	if _, err := e.ReleaseMilestone(ctx, escrow.ID, 0, client); !errors.Is(err, ErrAlreadyReleased) {
		t.Fatalf("second release err = %v, want ErrAlreadyReleased", err)
	}

	// Released total never exceeds the escrow amount.
	final, err := e.ReleaseMilestone(ctx, escrow.ID, 1, client)
	if err != nil {
		t.Fatal(err)
	}
	if final.ReleasedTotal.GreaterThan(final.Amount) {
		t.Fatalf("released total %s exceeds escrow amount %s", final.ReleasedTotal, final.Amount)
	}
}

func TestEscrowCompletesOnLastRelease(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()
	bid := submitBid(t, e, "90",
		models.MilestoneSpec{Description: "a", Amount: decimal.RequireFromString("30")},
		models.MilestoneSpec{Description: "b", Amount: decimal.RequireFromString("30")},
		models.MilestoneSpec{Description: "c", Amount: decimal.RequireFromString("30")},
	)
	escrow, _ := e.AcceptBid(ctx, bid.ID, client)

	for i := 0; i < 2; i++ {
		updated, err := e.ReleaseMilestone(ctx, escrow.ID, i, client)
		if err != nil {
			t.Fatal(err)
		}
		if updated.Status == models.EscrowStatusCompleted {
			t.Fatalf("escrow completed after %d of 3 releases", i+1)
		}
	}

	final, err := e.ReleaseMilestone(ctx, escrow.ID, 2, client)
	if err != nil {
		t.Fatal(err)
	}
	if final.Status != models.EscrowStatusCompleted {
		t.Fatal("escrow must complete on the last release")
	}
	if final.CompletedAt == nil {
		t.Fatal("completed escrow must record its completion time")
	}
}

func TestReleaseMilestoneGuards(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()
	bid := submitBid(t, e, "100")
	escrow, _ := e.AcceptBid(ctx, bid.ID, client)

	if _, err := e.ReleaseMilestone(ctx, escrow.ID, 0, stranger); !errors.Is(err, ErrForbidden) {
		t.Fatalf("stranger release err = %v, want ErrForbidden", err)
	}
	if _, err := e.ReleaseMilestone(ctx, escrow.ID, 0, contractor); !errors.Is(err, ErrForbidden) {
		t.Fatalf("contractor self-release err = %v, want ErrForbidden", err)
	}
	if _, err := e.ReleaseMilestone(ctx, escrow.ID, 5, client); !errors.Is(err, ErrInvalidIndex) {
		t.Fatalf("out-of-range err = %v, want ErrInvalidIndex", err)
	}
	if _, err := e.ReleaseMilestone(ctx, escrow.ID, -1, client); !errors.Is(err, ErrInvalidIndex) {
		t.Fatalf("negative index err = %v, want ErrInvalidIndex", err)
	}
	if _, err := e.ReleaseMilestone(ctx, uuid.New(), 0, client); !errors.Is(err, ErrEscrowNotFound) {
		t.Fatalf("unknown escrow err = %v, want ErrEscrowNotFound", err)
	}
}

func TestEndToEndSingleMilestoneScenario(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()

	bid := submitBid(t, e, "100")
	escrow, err := e.AcceptBid(ctx, bid.ID, client)
	if err != nil {
		t.Fatal(err)
	}
	if escrow.Amount.String() != "100" || escrow.Status != models.EscrowStatusActive {
		t.Fatalf("escrow = %s/%s, want 100/active", escrow.Amount, escrow.Status)
	}

	final, err := e.ReleaseMilestone(ctx, escrow.ID, 0, client)
	if err != nil {
		t.Fatal(err)
	}
	if final.Status != models.EscrowStatusCompleted {
		t.Fatalf("escrow status = %s, want completed", final.Status)
	}
}
