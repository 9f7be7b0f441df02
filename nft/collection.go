// Package nft is a minimal in-process ERC-721 collection whose ownership
// changes pass through a transfer hook, plus a registry answering balance
// queries across collections.
package nft

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/xraph/tierpay/chain"
)

// Collection errors.
var (
	ErrNonexistentToken = errors.New("nft: nonexistent token")
	ErrNotOwner         = errors.New("nft: caller is not owner nor approved")
	ErrWrongFrom        = errors.New("nft: transfer from incorrect owner")
	ErrZeroAddress      = errors.New("nft: zero address")
	ErrUnknownContract  = errors.New("nft: unknown collection")
)

// TransferHook runs before every ownership change, mints included (from is
// the zero address). An error aborts the change.
type TransferHook interface {
	BeforeTransfer(ctx context.Context, from, to common.Address, tokenID uint64) error
}

// HookFunc adapts a function to TransferHook.
type HookFunc func(ctx context.Context, from, to common.Address, tokenID uint64) error

// BeforeTransfer implements TransferHook.
func (f HookFunc) BeforeTransfer(ctx context.Context, from, to common.Address, tokenID uint64) error {
	return f(ctx, from, to, tokenID)
}

// Collection is one NFT contract.
type Collection struct {
	address common.Address

	// xfer serializes ownership changes across the hook call.
	xfer sync.Mutex

	mu        sync.RWMutex
	hook      TransferHook
	owners    map[uint64]common.Address
	balances  map[common.Address]uint64
	approvals map[uint64]common.Address
	nextID    uint64
}

// NewCollection returns an empty collection deployed at address.
func NewCollection(address common.Address, hook TransferHook) *Collection {
	return &Collection{
		address:   address,
		hook:      hook,
		owners:    make(map[uint64]common.Address),
		balances:  make(map[common.Address]uint64),
		approvals: make(map[uint64]common.Address),
		nextID:    1,
	}
}

// Address is the collection's contract address.
func (c *Collection) Address() common.Address { return c.address }

// SetHook replaces the transfer hook.
func (c *Collection) SetHook(h TransferHook) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hook = h
}

// Mint creates the next token for to.
func (c *Collection) Mint(ctx context.Context, to common.Address) (uint64, error) {
	if to == (common.Address{}) {
		return 0, ErrZeroAddress
	}
	c.xfer.Lock()
	defer c.xfer.Unlock()

	c.mu.RLock()
	tokenID := c.nextID
	hook := c.hook
	c.mu.RUnlock()

	if hook != nil {
		if err := hook.BeforeTransfer(ctx, common.Address{}, to, tokenID); err != nil {
			return 0, err
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.owners[tokenID] = to
	c.balances[to]++
	c.nextID++
	return tokenID, nil
}

// Approve lets spender transfer tokenID once.
func (c *Collection) Approve(_ context.Context, caller, spender common.Address, tokenID uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	owner, ok := c.owners[tokenID]
	if !ok {
		return ErrNonexistentToken
	}
	if owner != caller {
		return ErrNotOwner
	}
	c.approvals[tokenID] = spender
	return nil
}

// Transfer moves tokenID from from to to on behalf of caller, the owner or
// the approved spender.
func (c *Collection) Transfer(ctx context.Context, caller, from, to common.Address, tokenID uint64) error {
	if to == (common.Address{}) {
		return ErrZeroAddress
	}
	c.xfer.Lock()
	defer c.xfer.Unlock()

	c.mu.RLock()
	owner, ok := c.owners[tokenID]
	approved := c.approvals[tokenID]
	hook := c.hook
	c.mu.RUnlock()

	switch {
	case !ok:
		return ErrNonexistentToken
	case owner != from:
		return fmt.Errorf("%w: %s owns token %d", ErrWrongFrom, owner.Hex(), tokenID)
	case caller != owner && caller != approved:
		return ErrNotOwner
	}

	if hook != nil {
		if err := hook.BeforeTransfer(ctx, from, to, tokenID); err != nil {
			return err
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.approvals, tokenID)
	c.owners[tokenID] = to
	c.balances[from]--
	c.balances[to]++
	return nil
}

// OwnerOf returns the owner of tokenID.
func (c *Collection) OwnerOf(_ context.Context, tokenID uint64) (common.Address, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	owner, ok := c.owners[tokenID]
	if !ok {
		return common.Address{}, ErrNonexistentToken
	}
	return owner, nil
}

// BalanceOf returns how many tokens owner holds.
func (c *Collection) BalanceOf(_ context.Context, owner common.Address) uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.balances[owner]
}

// Registry resolves collections by address.
type Registry struct {
	mu          sync.RWMutex
	collections map[common.Address]*Collection
}

var _ chain.Holdings = (*Registry)(nil)

// NewRegistry returns a registry holding cs.
func NewRegistry(cs ...*Collection) *Registry {
	r := &Registry{collections: make(map[common.Address]*Collection)}
	for _, c := range cs {
		r.Add(c)
	}
	return r
}

// Add registers c under its address.
func (r *Registry) Add(c *Collection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.collections[c.Address()] = c
}

// Get returns the collection at address.
func (r *Registry) Get(address common.Address) (*Collection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.collections[address]
	return c, ok
}

// BalanceOf implements chain.Holdings.
func (r *Registry) BalanceOf(ctx context.Context, collection, owner common.Address) (uint64, error) {
	c, ok := r.Get(collection)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownContract, collection.Hex())
	}
	return c.BalanceOf(ctx, owner), nil
}
