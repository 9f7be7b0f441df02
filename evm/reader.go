// Package evm reads the chain collaborators of the billing ledger and the
// royalty gate from deployed contracts: Uniswap-V2 style pair reserves, a
// usage oracle and ERC-721 balances.
package evm

import (
	"context"
	"fmt"
	"math"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/holiman/uint256"

	"github.com/xraph/tierpay/chain"
	"github.com/xraph/tierpay/types"
)

const pairABI = `[
 {"type":"function","name":"getReserves","stateMutability":"view","inputs":[],
  "outputs":[{"name":"reserve0","type":"uint112"},{"name":"reserve1","type":"uint112"},{"name":"blockTimestampLast","type":"uint32"}]},
 {"type":"function","name":"token0","stateMutability":"view","inputs":[],
  "outputs":[{"name":"","type":"address"}]}
]`

const usageOracleABI = `[
 {"type":"function","name":"getUsage","stateMutability":"view","inputs":[{"name":"user","type":"address"}],
  "outputs":[{"name":"","type":"uint256"}]}
]`

const erc721ABI = `[
 {"type":"function","name":"balanceOf","stateMutability":"view","inputs":[{"name":"owner","type":"address"}],
  "outputs":[{"name":"","type":"uint256"}]}
]`

var (
	_ chain.PriceOracle = (*Reader)(nil)
	_ chain.UsageOracle = (*Reader)(nil)
	_ chain.Holdings    = (*Reader)(nil)
)

// Reader answers chain.PriceOracle, chain.UsageOracle and chain.Holdings
// with read-only contract calls.
type Reader struct {
	caller bind.ContractCaller

	pair  abi.ABI
	usage abi.ABI
	nft   abi.ABI
}

// NewReader creates a Reader over any contract caller; *ethclient.Client
// satisfies bind.ContractCaller.
func NewReader(caller bind.ContractCaller) (*Reader, error) {
	r := &Reader{caller: caller}
	for _, p := range []struct {
		dst  *abi.ABI
		name string
		json string
	}{
		{&r.pair, "pair", pairABI},
		{&r.usage, "usage oracle", usageOracleABI},
		{&r.nft, "erc721", erc721ABI},
	} {
		parsed, err := abi.JSON(strings.NewReader(p.json))
		if err != nil {
			return nil, fmt.Errorf("evm: parse %s abi: %w", p.name, err)
		}
		*p.dst = parsed
	}
	return r, nil
}

// Dial connects to an RPC endpoint and returns a Reader over it. The caller
// owns the returned client and must close it.
func Dial(ctx context.Context, url string) (*Reader, *ethclient.Client, error) {
	client, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return nil, nil, fmt.Errorf("evm: dial %s: %w", url, err)
	}
	r, err := NewReader(client)
	if err != nil {
		client.Close()
		return nil, nil, err
	}
	return r, client, nil
}

// GetReserves implements chain.PriceOracle.
func (r *Reader) GetReserves(ctx context.Context, pair common.Address) (chain.Reserves, error) {
	out, err := r.call(ctx, r.pair, pair, "getReserves")
	if err != nil {
		return chain.Reserves{}, err
	}
	if len(out) < 2 {
		return chain.Reserves{}, fmt.Errorf("evm: getReserves on %s: short result", pair.Hex())
	}
	r0, err := toAmount(out[0])
	if err != nil {
		return chain.Reserves{}, fmt.Errorf("evm: getReserves reserve0: %w", err)
	}
	r1, err := toAmount(out[1])
	if err != nil {
		return chain.Reserves{}, fmt.Errorf("evm: getReserves reserve1: %w", err)
	}

	tok, err := r.call(ctx, r.pair, pair, "token0")
	if err != nil {
		return chain.Reserves{}, err
	}
	token0, ok := first(tok).(common.Address)
	if !ok {
		return chain.Reserves{}, fmt.Errorf("evm: token0 on %s: unexpected result %T", pair.Hex(), first(tok))
	}
	return chain.Reserves{Reserve0: r0, Reserve1: r1, Token0: token0}, nil
}

// GetUsage implements chain.UsageOracle.
func (r *Reader) GetUsage(ctx context.Context, oracle, user common.Address) (*uint256.Int, error) {
	out, err := r.call(ctx, r.usage, oracle, "getUsage", user)
	if err != nil {
		return nil, err
	}
	units, err := toAmount(first(out))
	if err != nil {
		return nil, fmt.Errorf("evm: getUsage: %w", err)
	}
	return units, nil
}

// BalanceOf implements chain.Holdings. Balances above MaxUint64 saturate.
func (r *Reader) BalanceOf(ctx context.Context, collection, owner common.Address) (uint64, error) {
	out, err := r.call(ctx, r.nft, collection, "balanceOf", owner)
	if err != nil {
		return 0, err
	}
	n, ok := first(out).(*big.Int)
	if !ok {
		return 0, fmt.Errorf("evm: balanceOf on %s: unexpected result %T", collection.Hex(), first(out))
	}
	if !n.IsUint64() {
		return math.MaxUint64, nil
	}
	return n.Uint64(), nil
}

func (r *Reader) call(ctx context.Context, parsed abi.ABI, addr common.Address, method string, args ...any) ([]any, error) {
	contract := bind.NewBoundContract(addr, parsed, r.caller, nil, nil)
	var out []any
	if err := contract.Call(&bind.CallOpts{Context: ctx}, &out, method, args...); err != nil {
		return nil, fmt.Errorf("evm: %s on %s: %w", method, addr.Hex(), err)
	}
	return out, nil
}

func first(out []any) any {
	if len(out) == 0 {
		return nil
	}
	return out[0]
}

func toAmount(v any) (*uint256.Int, error) {
	b, ok := v.(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected result %T", v)
	}
	return types.FromBig(b)
}
