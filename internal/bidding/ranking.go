package bidding

import (
	"sort"

	"github.com/chainbid/relay/internal/models"
)

// Score weights. The lowest price earns the full price component; other bids
// earn it proportionally (lowest/this). Performance score is supplied on a
// 0-100 scale.
const (
	priceWeight       = 0.6
	performanceWeight = 0.4
)

type RankedBid struct {
	models.Bid
	Score float64 `json:"score"`
}

// Rank scores competing bids deterministically: ties break on submission
// time, then bid id, so repeated calls over the same input agree.
func Rank(bids []models.Bid) []RankedBid {
	if len(bids) == 0 {
		return nil
	}

	lowest := bids[0].Amount
	for _, b := range bids[1:] {
		if b.Amount.LessThan(lowest) {
			lowest = b.Amount
		}
	}

	ranked := make([]RankedBid, 0, len(bids))
	for _, b := range bids {
		priceComponent := 0.0
		if b.Amount.IsPositive() {
			priceComponent, _ = lowest.Div(b.Amount).Float64()
		}
		perf := b.PerformanceScore / 100
		if perf > 1 {
			perf = 1
		}
		if perf < 0 {
			perf = 0
		}
		ranked = append(ranked, RankedBid{
			Bid:   b,
			Score: priceWeight*priceComponent + performanceWeight*perf,
		})
	}

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		if !ranked[i].SubmittedAt.Equal(ranked[j].SubmittedAt) {
			return ranked[i].SubmittedAt.Before(ranked[j].SubmittedAt)
		}
		return ranked[i].ID.String() < ranked[j].ID.String()
	})

	return ranked
}
