// Package wallet recovers and verifies EVM personal-sign signatures.
package wallet

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// ErrMalformedSignature is the normal rejection path for input that cannot be
// decoded or recovered; it is never a panic.
var ErrMalformedSignature = errors.New("malformed signature")

// Recover returns the address that produced signature over message using the
// Ethereum personal-sign scheme ("\x19Ethereum Signed Message:\n" prefix).
func Recover(message, signature string) (common.Address, error) {
	sig, err := hexutil.Decode(signature)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrMalformedSignature, err)
	}
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("%w: expected %d bytes, got %d", ErrMalformedSignature, crypto.SignatureLength, len(sig))
	}

	// Wallets emit V as 27/28; go-ethereum expects 0/1. Work on a copy so the
	// caller's slice is untouched.
	norm := make([]byte, len(sig))
	copy(norm, sig)
	if norm[64] >= 27 {
		norm[64] -= 27
	}

	pub, err := crypto.SigToPub(accounts.TextHash([]byte(message)), norm)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrMalformedSignature, err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// Verify reports whether signature was produced over message by the key
// controlling claimedAddress. Comparison is case-insensitive.
func Verify(claimedAddress, message, signature string) bool {
	if !common.IsHexAddress(claimedAddress) {
		return false
	}
	recovered, err := Recover(message, signature)
	if err != nil {
		return false
	}
	return recovered == common.HexToAddress(claimedAddress)
}

// Canonical lowercases a hex address to the relay's canonical form used for
// rate-limit keys and audit records.
func Canonical(address string) string {
	return strings.ToLower(address)
}
