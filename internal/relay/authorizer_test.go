package relay

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"github.com/chainbid/relay/internal/chain"
	"github.com/chainbid/relay/internal/nonce"
	"github.com/chainbid/relay/internal/ratelimit"
)

type testWallet struct {
	key     *ecdsa.PrivateKey
	address string
}

func newTestWallet(t *testing.T) testWallet {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	return testWallet{key: key, address: crypto.PubkeyToAddress(key.PublicKey).Hex()}
}

func (w testWallet) sign(t *testing.T, message string) string {
	t.Helper()
	sig, err := crypto.Sign(accounts.TextHash([]byte(message)), w.key)
	if err != nil {
		t.Fatal(err)
	}
	sig[64] += 27
	return hexutil.Encode(sig)
}

type stubGate struct {
	holds bool
	err   error
	calls int
}

func (g *stubGate) Holds(_ context.Context, _ string, _ *big.Int) (bool, error) {
	g.calls++
	return g.holds, g.err
}

type authFixture struct {
	auth    *Authorizer
	nonces  *nonce.Registry
	limiter *ratelimit.MemoryLimiter
	gate    *stubGate
}

func newFixture(limit int) *authFixture {
	gate := &stubGate{holds: true}
	nonces := nonce.NewRegistry(nonce.NewMemoryStore())
	limiter := ratelimit.NewMemoryLimiter(limit, time.Minute)
	return &authFixture{
		auth:    NewAuthorizer(nonces, limiter, gate, big.NewInt(1), zap.NewNop()),
		nonces:  nonces,
		limiter: limiter,
		gate:    gate,
	}
}

// signedRequest fetches a fresh challenge and signs a payload embedding it.
func (f *authFixture) signedRequest(t *testing.T, w testWallet, extra map[string]any) AuthRequest {
	t.Helper()
	challenge, err := f.nonces.Issue(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	body := map[string]any{"challenge": challenge}
	for k, v := range extra {
		body[k] = v
	}
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	return AuthRequest{
		Payload:   string(payload),
		Signature: w.sign(t, string(payload)),
		Address:   w.address,
	}
}

func TestAuthorizeHappyPath(t *testing.T) {
	f := newFixture(60)
	w := newTestWallet(t)
	req := f.signedRequest(t, w, nil)

	grant, err := f.auth.Authorize(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if grant.Address != strings.ToLower(w.address) {
		t.Fatalf("grant address = %s, want lowercased %s", grant.Address, w.address)
	}
	if grant.Challenge == "" {
		t.Fatal("grant must record the consumed challenge")
	}
}

func TestAuthorizeReplayRejected(t *testing.T) {
	f := newFixture(60)
	w := newTestWallet(t)
	req := f.signedRequest(t, w, nil)
	ctx := context.Background()

	if _, err := f.auth.Authorize(ctx, req); err != nil {
		t.Fatal(err)
	}
	if _, err := f.auth.Authorize(ctx, req); !errors.Is(err, nonce.ErrNonceInvalid) {
		t.Fatalf("replay err = %v, want ErrNonceInvalid", err)
	}
}

func TestAuthorizeMissingFields(t *testing.T) {
	f := newFixture(60)
	w := newTestWallet(t)
	good := f.signedRequest(t, w, nil)
	ctx := context.Background()

	cases := []AuthRequest{
		{Signature: good.Signature, Address: good.Address},
		{Payload: good.Payload, Address: good.Address},
		{Payload: good.Payload, Signature: good.Signature},
		{},
	}
	for i, req := range cases {
		if _, err := f.auth.Authorize(ctx, req); !errors.Is(err, ErrInvalidRequest) {
			t.Errorf("case %d: err = %v, want ErrInvalidRequest", i, err)
		}
	}
}

func TestForgedSignatureDoesNotBurnNonce(t *testing.T) {
	f := newFixture(60)
	owner := newTestWallet(t)
	thief := newTestWallet(t)
	ctx := context.Background()

	req := f.signedRequest(t, owner, nil)
	forged := AuthRequest{
		Payload:   req.Payload,
		Signature: thief.sign(t, req.Payload),
		Address:   owner.address,
	}
	if _, err := f.auth.Authorize(ctx, forged); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("forged err = %v, want ErrInvalidSignature", err)
	}

	// The legitimate holder of the nonce can still use it.
	if _, err := f.auth.Authorize(ctx, req); err != nil {
		t.Fatalf("nonce was burned by a forged request: %v", err)
	}
}

func TestPayloadWithoutChallenge(t *testing.T) {
	f := newFixture(60)
	w := newTestWallet(t)
	payload := `{"note":"no challenge here"}`
	req := AuthRequest{Payload: payload, Signature: w.sign(t, payload), Address: w.address}

	if _, err := f.auth.Authorize(context.Background(), req); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("err = %v, want ErrInvalidRequest", err)
	}
}

func TestRateLimitedRequestWastesNonce(t *testing.T) {
	f := newFixture(1)
	w := newTestWallet(t)
	ctx := context.Background()

	if _, err := f.auth.Authorize(ctx, f.signedRequest(t, w, nil)); err != nil {
		t.Fatal(err)
	}

	second := f.signedRequest(t, w, nil)
	if _, err := f.auth.Authorize(ctx, second); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("err = %v, want ErrRateLimited", err)
	}

	// The nonce was consumed before the rate check: replaying the same
	// request now fails on the nonce, proving it was spent for nothing.
	if _, err := f.auth.Authorize(ctx, second); !errors.Is(err, nonce.ErrNonceInvalid) {
		t.Fatalf("replay after rate limit err = %v, want ErrNonceInvalid", err)
	}
}

func TestSixtyFirstRequestRejected(t *testing.T) {
	f := newFixture(60)
	w := newTestWallet(t)
	ctx := context.Background()

	for i := 0; i < 60; i++ {
		if _, err := f.auth.Authorize(ctx, f.signedRequest(t, w, nil)); err != nil {
			t.Fatalf("request %d: %v", i+1, err)
		}
	}
	if _, err := f.auth.Authorize(ctx, f.signedRequest(t, w, nil)); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("61st err = %v, want ErrRateLimited", err)
	}
}

func TestAuthorizeHolder(t *testing.T) {
	f := newFixture(60)
	w := newTestWallet(t)
	ctx := context.Background()

	if _, err := f.auth.AuthorizeHolder(ctx, f.signedRequest(t, w, nil)); err != nil {
		t.Fatal(err)
	}
	if f.gate.calls != 1 {
		t.Fatalf("gate calls = %d, want 1", f.gate.calls)
	}

	f.gate.holds = false
	if _, err := f.auth.AuthorizeHolder(ctx, f.signedRequest(t, w, nil)); !errors.Is(err, ErrNotHolder) {
		t.Fatalf("err = %v, want ErrNotHolder", err)
	}
}

func TestAuthorizeHolderUnavailable(t *testing.T) {
	f := newFixture(60)
	w := newTestWallet(t)
	ctx := context.Background()

	f.gate.err = fmt.Errorf("eth_call: %w", chain.ErrVerificationUnavailable)
	if _, err := f.auth.AuthorizeHolder(ctx, f.signedRequest(t, w, nil)); !errors.Is(err, chain.ErrVerificationUnavailable) {
		t.Fatalf("err = %v, want ErrVerificationUnavailable", err)
	}
}

func TestAuthorizeHolderNoGate(t *testing.T) {
	nonces := nonce.NewRegistry(nonce.NewMemoryStore())
	auth := NewAuthorizer(nonces, ratelimit.NewMemoryLimiter(60, time.Minute), nil, big.NewInt(1), zap.NewNop())
	w := newTestWallet(t)
	ctx := context.Background()

	challenge, err := nonces.Issue(ctx)
	if err != nil {
		t.Fatal(err)
	}
	payload := fmt.Sprintf(`{"challenge":%q}`, challenge)
	req := AuthRequest{Payload: payload, Signature: w.sign(t, payload), Address: w.address}

	if _, err := auth.AuthorizeHolder(ctx, req); !errors.Is(err, chain.ErrVerificationUnavailable) {
		t.Fatalf("err = %v, want ErrVerificationUnavailable", err)
	}
}

func TestAuthorizeHolderTokenIDFromPayload(t *testing.T) {
	f := newFixture(60)
	w := newTestWallet(t)

	if _, err := f.auth.AuthorizeHolder(context.Background(), f.signedRequest(t, w, map[string]any{"tokenId": 7})); err != nil {
		t.Fatal(err)
	}

	bad := f.signedRequest(t, w, map[string]any{"tokenId": "not-a-number"})
	if _, err := f.auth.AuthorizeHolder(context.Background(), bad); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("err = %v, want ErrInvalidRequest", err)
	}
}
