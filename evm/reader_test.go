package evm

import (
	"bytes"
	"context"
	"errors"
	"math"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	pairAddr   = common.HexToAddress("0x9a1")
	oracleAddr = common.HexToAddress("0x0c1")
	passAddr   = common.HexToAddress("0xf9")
	kndxAddr   = common.HexToAddress("0x70")
	holder     = common.HexToAddress("0xb1")
)

// fakeCaller answers eth_call by contract address and method selector.
type fakeCaller struct {
	results map[common.Address]map[string][]byte
	err     error
}

func (f *fakeCaller) CodeAt(context.Context, common.Address, *big.Int) ([]byte, error) {
	return []byte{0x60}, nil
}

func (f *fakeCaller) CallContract(_ context.Context, call ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	if call.To == nil || len(call.Data) < 4 {
		return nil, errors.New("bad call")
	}
	return f.results[*call.To][string(call.Data[:4])], nil
}

func (f *fakeCaller) set(t *testing.T, addr common.Address, parsed abi.ABI, method string, values ...any) {
	t.Helper()
	m, ok := parsed.Methods[method]
	require.True(t, ok, method)
	out, err := m.Outputs.Pack(values...)
	require.NoError(t, err)
	if f.results == nil {
		f.results = make(map[common.Address]map[string][]byte)
	}
	if f.results[addr] == nil {
		f.results[addr] = make(map[string][]byte)
	}
	f.results[addr][string(m.ID)] = out
}

func newFake(t *testing.T) (*Reader, *fakeCaller) {
	t.Helper()
	fc := &fakeCaller{}
	r, err := NewReader(fc)
	require.NoError(t, err)
	return r, fc
}

func TestGetReserves(t *testing.T) {
	r, fc := newFake(t)
	reserve0, _ := new(big.Int).SetString("2000000000000000000000000", 10)
	reserve1, _ := new(big.Int).SetString("1000000000000000000000", 10)
	fc.set(t, pairAddr, r.pair, "getReserves", reserve0, reserve1, uint32(1700000000))
	fc.set(t, pairAddr, r.pair, "token0", kndxAddr)

	got, err := r.GetReserves(context.Background(), pairAddr)
	require.NoError(t, err)
	assert.Equal(t, reserve0.String(), got.Reserve0.Dec())
	assert.Equal(t, reserve1.String(), got.Reserve1.Dec())
	assert.Equal(t, kndxAddr, got.Token0)
}

func TestGetUsage(t *testing.T) {
	r, fc := newFake(t)
	fc.set(t, oracleAddr, r.usage, "getUsage", big.NewInt(80))

	got, err := r.GetUsage(context.Background(), oracleAddr, holder)
	require.NoError(t, err)
	assert.Equal(t, uint64(80), got.Uint64())
}

func TestBalanceOf(t *testing.T) {
	r, fc := newFake(t)
	fc.set(t, passAddr, r.nft, "balanceOf", big.NewInt(3))

	n, err := r.BalanceOf(context.Background(), passAddr, holder)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), n)

	huge := new(big.Int).Lsh(big.NewInt(1), 70)
	fc.set(t, passAddr, r.nft, "balanceOf", huge)
	n, err = r.BalanceOf(context.Background(), passAddr, holder)
	require.NoError(t, err)
	assert.Equal(t, uint64(math.MaxUint64), n)
}

func TestCallFailureIsWrapped(t *testing.T) {
	r, fc := newFake(t)
	boom := errors.New("connection refused")
	fc.err = boom

	_, err := r.GetReserves(context.Background(), pairAddr)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "getReserves")
}

func TestSelectorsAreDistinct(t *testing.T) {
	r, _ := newFake(t)
	ids := [][]byte{
		r.pair.Methods["getReserves"].ID,
		r.pair.Methods["token0"].ID,
		r.usage.Methods["getUsage"].ID,
		r.nft.Methods["balanceOf"].ID,
	}
	for i := range ids {
		for j := i + 1; j < len(ids); j++ {
			assert.False(t, bytes.Equal(ids[i], ids[j]))
		}
	}
}
