package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"go.uber.org/zap"

	"github.com/chainbid/relay/internal/chain"
	"github.com/chainbid/relay/internal/nonce"
	"github.com/chainbid/relay/internal/ratelimit"
	"github.com/chainbid/relay/internal/wallet"
)

// AuthRequest is the signed envelope every privileged endpoint accepts.
// Payload is the exact string the wallet signed; it must be a JSON object
// carrying at least a "challenge" field.
type AuthRequest struct {
	Payload   string `json:"payload"`
	Signature string `json:"signature"`
	Address   string `json:"address"`
}

// Grant is issued once a request clears every check. Address is canonical
// (lowercased). A grant is scoped to the single request that produced it.
type Grant struct {
	Address   string
	Challenge string
	GrantedAt time.Time
}

// Gate is the on-chain holder check. Satisfied by chain.HolderGate.
type Gate interface {
	Holds(ctx context.Context, address string, tokenID *big.Int) (bool, error)
}

type payloadFields struct {
	Challenge string      `json:"challenge"`
	TokenID   json.Number `json:"tokenId"`
}

// Authorizer composes the signature, nonce, rate-limit and holder checks
// into a single gate. Check order is fixed: a forged signature must never
// burn a nonce, and the nonce is consumed before the rate limiter is
// charged, so a rate-limited request wastes its nonce and the client has
// to fetch a fresh challenge.
type Authorizer struct {
	nonces         *nonce.Registry
	limiter        ratelimit.Limiter
	gate           Gate
	defaultTokenID *big.Int
	log            *zap.Logger

	now func() time.Time
}

// NewAuthorizer wires the gate. gate may be nil when no RPC endpoint is
// configured; holder-gated actions then fail closed with
// chain.ErrVerificationUnavailable.
func NewAuthorizer(nonces *nonce.Registry, limiter ratelimit.Limiter, gate Gate, defaultTokenID *big.Int, log *zap.Logger) *Authorizer {
	return &Authorizer{
		nonces:         nonces,
		limiter:        limiter,
		gate:           gate,
		defaultTokenID: defaultTokenID,
		log:            log,
		now:            time.Now,
	}
}

// Authorize runs the ungated pipeline: fields, signature, nonce, rate.
func (a *Authorizer) Authorize(ctx context.Context, req AuthRequest) (*Grant, error) {
	grant, _, err := a.authorize(ctx, req)
	return grant, err
}

// AuthorizeHolder runs the full pipeline and additionally requires the
// signer to hold the gate token. The payload's tokenId field overrides the
// configured default.
func (a *Authorizer) AuthorizeHolder(ctx context.Context, req AuthRequest) (*Grant, error) {
	grant, fields, err := a.authorize(ctx, req)
	if err != nil {
		return nil, err
	}
	tokenID := a.defaultTokenID
	if fields.TokenID != "" {
		id, ok := new(big.Int).SetString(fields.TokenID.String(), 10)
		if !ok {
			return nil, fmt.Errorf("%w: bad tokenId %q", ErrInvalidRequest, fields.TokenID)
		}
		tokenID = id
	}
	if a.gate == nil {
		return nil, fmt.Errorf("no chain gate configured: %w", chain.ErrVerificationUnavailable)
	}
	holds, err := a.gate.Holds(ctx, grant.Address, tokenID)
	if err != nil {
		return nil, err
	}
	if !holds {
		a.log.Info("holder check rejected",
			zap.String("address", grant.Address),
			zap.String("token_id", tokenID.String()))
		return nil, ErrNotHolder
	}
	return grant, nil
}

func (a *Authorizer) authorize(ctx context.Context, req AuthRequest) (*Grant, *payloadFields, error) {
	if req.Payload == "" || req.Signature == "" || req.Address == "" {
		return nil, nil, ErrInvalidRequest
	}

	if !wallet.Verify(req.Address, req.Payload, req.Signature) {
		return nil, nil, ErrInvalidSignature
	}

	var fields payloadFields
	if err := json.Unmarshal([]byte(req.Payload), &fields); err != nil || fields.Challenge == "" {
		return nil, nil, fmt.Errorf("%w: payload carries no challenge", ErrInvalidRequest)
	}
	value, err := nonce.FromChallenge(fields.Challenge)
	if err != nil {
		return nil, nil, err
	}
	if err := a.nonces.Consume(ctx, value); err != nil {
		return nil, nil, err
	}

	address := wallet.Canonical(req.Address)
	allowed, err := a.limiter.Allow(ctx, address)
	if err != nil {
		return nil, nil, err
	}
	if !allowed {
		return nil, nil, ErrRateLimited
	}

	a.log.Debug("request authorized", zap.String("address", address))
	return &Grant{
		Address:   address,
		Challenge: fields.Challenge,
		GrantedAt: a.now(),
	}, &fields, nil
}
