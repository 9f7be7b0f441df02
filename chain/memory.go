package chain

import (
	"context"
	"errors"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/xraph/tierpay/types"
)

// ErrUnknownPair is returned by MemoryPairs for a pair it has no reserves for.
var ErrUnknownPair = errors.New("chain: unknown pair")

// MemoryPairs is a PriceOracle over reserves set by hand.
type MemoryPairs struct {
	mu    sync.RWMutex
	pairs map[common.Address]Reserves
}

// NewMemoryPairs returns an empty oracle.
func NewMemoryPairs() *MemoryPairs {
	return &MemoryPairs{pairs: make(map[common.Address]Reserves)}
}

// Set records the reserves of pair.
func (m *MemoryPairs) Set(pair common.Address, r Reserves) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pairs[pair] = Reserves{Reserve0: types.Clone(r.Reserve0), Reserve1: types.Clone(r.Reserve1), Token0: r.Token0}
}

// GetReserves implements PriceOracle.
func (m *MemoryPairs) GetReserves(_ context.Context, pair common.Address) (Reserves, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.pairs[pair]
	if !ok {
		return Reserves{}, ErrUnknownPair
	}
	return Reserves{Reserve0: types.Clone(r.Reserve0), Reserve1: types.Clone(r.Reserve1), Token0: r.Token0}, nil
}

// MemoryUsage is a UsageOracle over figures set by hand. Unknown users
// report zero.
type MemoryUsage struct {
	mu    sync.RWMutex
	usage map[common.Address]map[common.Address]*uint256.Int
}

// NewMemoryUsage returns an empty oracle.
func NewMemoryUsage() *MemoryUsage {
	return &MemoryUsage{usage: make(map[common.Address]map[common.Address]*uint256.Int)}
}

// Set records the usage oracle reports for user.
func (m *MemoryUsage) Set(oracle, user common.Address, amount *uint256.Int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.usage[oracle] == nil {
		m.usage[oracle] = make(map[common.Address]*uint256.Int)
	}
	m.usage[oracle][user] = types.Clone(amount)
}

// GetUsage implements UsageOracle.
func (m *MemoryUsage) GetUsage(_ context.Context, oracle, user common.Address) (*uint256.Int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if v, ok := m.usage[oracle][user]; ok {
		return v.Clone(), nil
	}
	return types.Zero(), nil
}
