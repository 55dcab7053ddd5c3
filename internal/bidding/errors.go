package bidding

import "errors"

// Domain errors. All are terminal for the given call and non-retryable with
// the same arguments.
var (
	ErrBidNotFound          = errors.New("bid not found")
	ErrEscrowNotFound       = errors.New("escrow not found")
	ErrAlreadyResolved      = errors.New("bid already resolved")
	ErrForbidden            = errors.New("forbidden")
	ErrInvalidIndex         = errors.New("milestone index out of range")
	ErrAlreadyReleased      = errors.New("milestone funds already released")
	ErrMilestoneSumMismatch = errors.New("milestone amounts must sum to the bid amount")
	ErrInvalidBid           = errors.New("invalid bid")
)
