package relay

import "errors"

var (
	// ErrInvalidRequest means the request is missing payload, signature or
	// address, or the payload does not carry a challenge.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrInvalidSignature means recovery failed or the recovered address
	// does not match the claimed one. Retrying with the same inputs is
	// pointless.
	ErrInvalidSignature = errors.New("invalid signature")

	ErrRateLimited = errors.New("rate limited")
	ErrNotHolder   = errors.New("address does not hold the required token")
)
