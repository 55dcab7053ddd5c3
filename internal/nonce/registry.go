package nonce

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	// ChallengePrefix marks a challenge string issued by this relay. The hex
	// nonce follows the prefix; clients sign the whole challenge string.
	ChallengePrefix = "chainbid-relay:"

	// DefaultIssueTTL is how long an unused nonce is kept around.
	DefaultIssueTTL = 10 * time.Minute

	// DefaultConsumeTTL is the window within which a nonce may be consumed.
	// It is enforced again at consumption time; the shorter window wins.
	DefaultConsumeTTL = 5 * time.Minute
)

// ErrNonceInvalid covers both unknown and expired nonces. The caller must
// request a fresh challenge; a consumed nonce never validates again.
var ErrNonceInvalid = errors.New("unknown or expired nonce")

// Store holds issued nonces. Consume must be atomic: under concurrent
// attempts on the same value, exactly one caller sees ok=true.
type Store interface {
	Save(ctx context.Context, value string, issuedAt time.Time, ttl time.Duration) error
	// Consume removes the nonce and returns its issue time. ok is false when
	// the value is unknown (never issued, already consumed, or swept).
	Consume(ctx context.Context, value string) (issuedAt time.Time, ok bool, err error)
}

// Registry issues and consumes single-use challenge nonces.
type Registry struct {
	store      Store
	issueTTL   time.Duration
	consumeTTL time.Duration
	now        func() time.Time
}

func NewRegistry(store Store) *Registry {
	return &Registry{
		store:      store,
		issueTTL:   DefaultIssueTTL,
		consumeTTL: DefaultConsumeTTL,
		now:        time.Now,
	}
}

// SetTTLs overrides the default windows. Zero or negative values keep the
// defaults. The shorter of the two wins at consumption time.
func (r *Registry) SetTTLs(issue, consume time.Duration) {
	if issue > 0 {
		r.issueTTL = issue
	}
	if consume > 0 {
		r.consumeTTL = consume
	}
}

// Issue generates a 32-byte random nonce and returns the full challenge
// string the client must sign.
func (r *Registry) Issue(ctx context.Context) (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	value := hex.EncodeToString(b)

	if err := r.store.Save(ctx, value, r.now(), r.issueTTL); err != nil {
		return "", fmt.Errorf("failed to save nonce: %w", err)
	}
	return ChallengePrefix + value, nil
}

// Consume deletes the nonce and succeeds iff it exists and is within the
// consume window. A stale nonce is deleted and reported invalid.
func (r *Registry) Consume(ctx context.Context, value string) error {
	if value == "" {
		return ErrNonceInvalid
	}
	issuedAt, ok, err := r.store.Consume(ctx, value)
	if err != nil {
		return fmt.Errorf("nonce store: %w", err)
	}
	if !ok {
		return ErrNonceInvalid
	}
	if r.now().Sub(issuedAt) > r.consumeTTL {
		return ErrNonceInvalid
	}
	return nil
}

// FromChallenge extracts the nonce value from a signed challenge string.
func FromChallenge(challenge string) (string, error) {
	if !strings.HasPrefix(challenge, ChallengePrefix) {
		return "", ErrNonceInvalid
	}
	value := strings.TrimPrefix(challenge, ChallengePrefix)
	if value == "" {
		return "", ErrNonceInvalid
	}
	return value, nil
}
