// Package chain reads token balances from the configured EVM RPC endpoint to
// gate privileged relay actions on on-chain holdings.
package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"
)

// ErrVerificationUnavailable means the RPC read itself failed. It is distinct
// from "does not hold": the relay must refuse the action, not fail open or
// closed silently. Safe to retry.
var ErrVerificationUnavailable = errors.New("holder verification unavailable")

const erc1155ABI = `[{"inputs":[{"name":"account","type":"address"},{"name":"id","type":"uint256"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"}]`

const erc20ABI = `[{"inputs":[{"name":"account","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"}]`

// Caller is the slice of ethclient.Client the gate needs; tests substitute a
// fake.
type Caller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// HolderGate checks token ownership against a single configured contract.
// Results are never cached: holdings can change between calls, so every
// privileged action re-verifies.
type HolderGate struct {
	caller   Caller
	contract common.Address
	erc1155  abi.ABI
	erc20    abi.ABI
	attempts uint
	log      *zap.Logger
}

func NewHolderGate(caller Caller, contract common.Address, log *zap.Logger) (*HolderGate, error) {
	multi, err := abi.JSON(strings.NewReader(erc1155ABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse erc1155 abi: %w", err)
	}
	fungible, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse erc20 abi: %w", err)
	}
	return &HolderGate{
		caller:   caller,
		contract: contract,
		erc1155:  multi,
		erc20:    fungible,
		attempts: 3,
		log:      log,
	}, nil
}

// Dial connects an ethclient to the RPC endpoint and wraps it in a gate.
func Dial(ctx context.Context, rpcURL string, contract common.Address, log *zap.Logger) (*HolderGate, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial rpc endpoint: %w", err)
	}
	return NewHolderGate(client, contract, log)
}

// Holds reports whether address owns at least one unit of the ERC-1155 token.
func (g *HolderGate) Holds(ctx context.Context, address string, tokenID *big.Int) (bool, error) {
	if !common.IsHexAddress(address) {
		return false, fmt.Errorf("invalid holder address %q", address)
	}
	data, err := g.erc1155.Pack("balanceOf", common.HexToAddress(address), tokenID)
	if err != nil {
		return false, fmt.Errorf("failed to pack balanceOf call: %w", err)
	}

	bal, err := g.call(ctx, data)
	if err != nil {
		return false, err
	}
	return bal.Sign() > 0, nil
}

// HoldsFungible reports whether address owns at least min units of the
// fungible (ERC-20 style) token at the configured contract.
func (g *HolderGate) HoldsFungible(ctx context.Context, address string, min *big.Int) (bool, error) {
	if !common.IsHexAddress(address) {
		return false, fmt.Errorf("invalid holder address %q", address)
	}
	data, err := g.erc20.Pack("balanceOf", common.HexToAddress(address))
	if err != nil {
		return false, fmt.Errorf("failed to pack balanceOf call: %w", err)
	}

	bal, err := g.call(ctx, data)
	if err != nil {
		return false, err
	}
	return bal.Cmp(min) >= 0, nil
}

func (g *HolderGate) call(ctx context.Context, data []byte) (*big.Int, error) {
	msg := ethereum.CallMsg{To: &g.contract, Data: data}

	var out []byte
	err := retry.Do(
		func() error {
			var callErr error
			out, callErr = g.caller.CallContract(ctx, msg, nil)
			return callErr
		},
		retry.Attempts(g.attempts),
		retry.Delay(200*time.Millisecond),
		retry.Context(ctx),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		g.log.Warn("balance read failed", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrVerificationUnavailable, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: empty response from contract", ErrVerificationUnavailable)
	}

	return new(big.Int).SetBytes(out), nil
}
