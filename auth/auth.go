// Package auth answers role questions for the billing ledger, the royalty
// gate and the treasury.
package auth

import (
	"context"
	"errors"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// Role names a capability.
type Role string

const (
	// RoleAdmin configures the royalty gate and manages roles.
	RoleAdmin Role = "admin"
	// RoleGovernor configures the billing platform and treasury permissions.
	RoleGovernor Role = "governor"
	// RoleUpdater applies usage on behalf of users.
	RoleUpdater Role = "updater"
)

// ErrNotAdmin is returned when a non-admin grants or revokes a role.
var ErrNotAdmin = errors.New("tierpay: caller is not an admin")

// Authority reports role membership.
type Authority interface {
	HasRole(ctx context.Context, role Role, account common.Address) (bool, error)
}

// Require returns err when account lacks role.
func Require(ctx context.Context, a Authority, role Role, account common.Address, err error) error {
	if a == nil {
		return err
	}
	ok, lookupErr := a.HasRole(ctx, role, account)
	if lookupErr != nil {
		return lookupErr
	}
	if !ok {
		return err
	}
	return nil
}

// Memory is an in-process Authority.
type Memory struct {
	mu    sync.RWMutex
	roles map[Role]map[common.Address]struct{}
}

var _ Authority = (*Memory)(nil)

// NewMemory returns an authority where admins hold RoleAdmin.
func NewMemory(admins ...common.Address) *Memory {
	m := &Memory{roles: make(map[Role]map[common.Address]struct{})}
	for _, a := range admins {
		m.Grant(RoleAdmin, a)
	}
	return m
}

// Grant adds account to role without an authority check, for bootstrapping.
func (m *Memory) Grant(role Role, account common.Address) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.roles[role] == nil {
		m.roles[role] = make(map[common.Address]struct{})
	}
	m.roles[role][account] = struct{}{}
}

// GrantRole adds account to role on behalf of caller, who must be an admin.
func (m *Memory) GrantRole(ctx context.Context, caller common.Address, role Role, account common.Address) error {
	if err := Require(ctx, m, RoleAdmin, caller, ErrNotAdmin); err != nil {
		return err
	}
	m.Grant(role, account)
	return nil
}

// RevokeRole removes account from role on behalf of caller, who must be an admin.
func (m *Memory) RevokeRole(ctx context.Context, caller common.Address, role Role, account common.Address) error {
	if err := Require(ctx, m, RoleAdmin, caller, ErrNotAdmin); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.roles[role], account)
	return nil
}

// HasRole implements Authority.
func (m *Memory) HasRole(_ context.Context, role Role, account common.Address) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.roles[role][account]
	return ok, nil
}
