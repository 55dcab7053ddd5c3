package wallet

import (
	"testing"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

func signMessage(t *testing.T, message string) (address, signature string) {
	t.Helper()

	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}

	sig, err := crypto.Sign(accounts.TextHash([]byte(message)), key)
	if err != nil {
		t.Fatal(err)
	}
	// Present V as 27/28 the way browser wallets do.
	sig[64] += 27

	return crypto.PubkeyToAddress(key.PublicKey).Hex(), hexutil.Encode(sig)
}

func TestVerifyValidSignature(t *testing.T) {
	msg := "chainbid-relay:deadbeef"
	addr, sig := signMessage(t, msg)

	if !Verify(addr, msg, sig) {
		t.Fatal("expected valid signature to verify")
	}
}

func TestVerifyCaseInsensitiveAddress(t *testing.T) {
	msg := "hello"
	addr, sig := signMessage(t, msg)

	if !Verify(Canonical(addr), msg, sig) {
		t.Fatal("lowercased address should still verify")
	}
}

func TestVerifyTamperedMessage(t *testing.T) {
	msg := "pay contractor 100"
	addr, sig := signMessage(t, msg)

	// Any byte change in the message flips the result.
	if Verify(addr, "pay contractor 101", sig) {
		t.Fatal("tampered message must not verify")
	}
}

func TestVerifyWrongAddress(t *testing.T) {
	msg := "hello"
	_, sig := signMessage(t, msg)
	other, _ := signMessage(t, msg)

	if Verify(other, msg, sig) {
		t.Fatal("signature must not verify against a different address")
	}
}

func TestRecoverMalformedInput(t *testing.T) {
	tests := []struct {
		name string
		sig  string
	}{
		{"not hex", "zzzz"},
		{"missing 0x", "deadbeef"},
		{"too short", "0xdeadbeef"},
		{"empty", ""},
		{"wrong length", "0x" + string(make([]byte, 10))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Recover("msg", tt.sig); err == nil {
				t.Fatal("expected error for malformed signature")
			}
		})
	}
}

func TestRecoverDoesNotMutateSignature(t *testing.T) {
	msg := "immutability"
	addr, sig := signMessage(t, msg)

	first, err := Recover(msg, sig)
	if err != nil {
		t.Fatal(err)
	}
	second, err := Recover(msg, sig)
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Fatal("repeated recovery diverged")
	}
	if first.Hex() != addr {
		t.Fatalf("recovered %s, want %s", first.Hex(), addr)
	}
}

func TestVerifyInvalidClaimedAddress(t *testing.T) {
	msg := "hello"
	_, sig := signMessage(t, msg)

	if Verify("not-an-address", msg, sig) {
		t.Fatal("non-hex claimed address must not verify")
	}
}
