// Package memory is an in-process store.Store for tests and single-node use.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/xraph/tierpay/account"
	"github.com/xraph/tierpay/event"
	"github.com/xraph/tierpay/platform"
	"github.com/xraph/tierpay/provider"
	"github.com/xraph/tierpay/royalty"
	"github.com/xraph/tierpay/store"
)

var _ store.Store = (*Store)(nil)

type usageKey struct {
	user, provider common.Address
}

// Store keeps every record in maps guarded by one lock. Reads and writes
// copy, so callers never share memory with the store.
type Store struct {
	mu sync.RWMutex

	// Billing storage
	accounts  map[common.Address]*account.Account
	usage     map[usageKey]*account.Usage
	providers map[common.Address]*provider.Provider
	platform  *platform.State

	// Royalty storage
	tokens        map[uint64]*royalty.Token
	royaltyConfig *royalty.Config

	// Journal storage
	events []*event.Event

	closed bool
}

// New returns an empty store.
func New() *Store {
	return &Store{
		accounts:  make(map[common.Address]*account.Account),
		usage:     make(map[usageKey]*account.Usage),
		providers: make(map[common.Address]*provider.Provider),
		tokens:    make(map[uint64]*royalty.Token),
		events:    make([]*event.Event, 0),
	}
}

// Account Store implementation
func (s *Store) GetAccount(_ context.Context, user common.Address) (*account.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if a, ok := s.accounts[user]; ok {
		return a.Clone(), nil
	}
	return nil, fmt.Errorf("%w: account %s", store.ErrNotFound, user.Hex())
}

func (s *Store) SaveAccount(_ context.Context, a *account.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return store.ErrClosed
	}
	s.accounts[a.User] = a.Clone()
	return nil
}

func (s *Store) GetUsage(_ context.Context, user, prov common.Address) (*account.Usage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if u, ok := s.usage[usageKey{user, prov}]; ok {
		return u.Clone(), nil
	}
	return nil, fmt.Errorf("%w: usage %s/%s", store.ErrNotFound, user.Hex(), prov.Hex())
}

func (s *Store) SaveUsage(_ context.Context, u *account.Usage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return store.ErrClosed
	}
	s.usage[usageKey{u.User, u.Provider}] = u.Clone()
	return nil
}

// Provider Store implementation
func (s *Store) GetProvider(_ context.Context, addr common.Address) (*provider.Provider, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if p, ok := s.providers[addr]; ok {
		return p.Clone(), nil
	}
	return nil, fmt.Errorf("%w: provider %s", store.ErrNotFound, addr.Hex())
}

func (s *Store) SaveProvider(_ context.Context, p *provider.Provider) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return store.ErrClosed
	}
	s.providers[p.Address] = p.Clone()
	return nil
}

func (s *Store) ListProviders(_ context.Context, opts provider.ListOpts) ([]*provider.Provider, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*provider.Provider
	for _, p := range s.providers {
		if opts.RegisteredOnly && !p.Registered {
			continue
		}
		result = append(result, p.Clone())
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt) ||
			(result[i].CreatedAt.Equal(result[j].CreatedAt) && result[i].Address.Cmp(result[j].Address) < 0)
	})
	return paginate(result, opts.Offset, opts.Limit), nil
}

// Platform Store implementation
func (s *Store) GetPlatform(_ context.Context) (*platform.State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.platform == nil {
		return nil, fmt.Errorf("%w: platform", store.ErrNotFound)
	}
	return s.platform.Clone(), nil
}

func (s *Store) SavePlatform(_ context.Context, st *platform.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return store.ErrClosed
	}
	s.platform = st.Clone()
	return nil
}

// Royalty Store implementation
func (s *Store) GetRoyaltyToken(_ context.Context, tokenID uint64) (*royalty.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if t, ok := s.tokens[tokenID]; ok {
		return t.Clone(), nil
	}
	return nil, fmt.Errorf("%w: royalty token %d", store.ErrNotFound, tokenID)
}

func (s *Store) SaveRoyaltyToken(_ context.Context, t *royalty.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return store.ErrClosed
	}
	s.tokens[t.TokenID] = t.Clone()
	return nil
}

func (s *Store) GetRoyaltyConfig(_ context.Context) (*royalty.Config, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.royaltyConfig == nil {
		return nil, fmt.Errorf("%w: royalty config", store.ErrNotFound)
	}
	return s.royaltyConfig.Clone(), nil
}

func (s *Store) SaveRoyaltyConfig(_ context.Context, c *royalty.Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return store.ErrClosed
	}
	s.royaltyConfig = c.Clone()
	return nil
}

// Journal Store implementation
func (s *Store) AppendEvent(_ context.Context, e *event.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return store.ErrClosed
	}
	s.events = append(s.events, e.Clone())
	return nil
}

func (s *Store) ListEvents(_ context.Context, opts event.ListOpts) ([]*event.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*event.Event
	for _, e := range slices.Backward(s.events) {
		if opts.Matches(e) {
			result = append(result, e.Clone())
		}
	}
	return paginate(result, opts.Offset, opts.Limit), nil
}

// Store management
func (s *Store) Migrate(_ context.Context) error {
	return nil // No migration needed for memory store
}

func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return store.ErrClosed
	}
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func paginate[T any](items []T, offset, limit int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return nil
		}
		items = items[offset:]
	}
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
