package memory

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/tierpay/account"
	"github.com/xraph/tierpay/event"
	"github.com/xraph/tierpay/provider"
	"github.com/xraph/tierpay/royalty"
	"github.com/xraph/tierpay/store"
	"github.com/xraph/tierpay/types"
)

var (
	alice = common.HexToAddress("0xa1")
	bob   = common.HexToAddress("0xb2")
)

func TestAccountRoundTripIsolated(t *testing.T) {
	ctx := context.Background()
	s := New()

	_, err := s.GetAccount(ctx, alice)
	require.ErrorIs(t, err, store.ErrNotFound)

	a := account.New(alice)
	a.TotalDeposited = types.NewAmount(500)
	require.NoError(t, s.SaveAccount(ctx, a))

	// Mutating the saved value must not leak into the store.
	a.TotalDeposited.SetUint64(1)

	got, err := s.GetAccount(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, uint64(500), got.TotalDeposited.Uint64())

	got.TotalUsed.SetUint64(9)
	again, _ := s.GetAccount(ctx, alice)
	assert.True(t, again.TotalUsed.IsZero())
}

func TestUsageKeyedByPair(t *testing.T) {
	ctx := context.Background()
	s := New()

	require.NoError(t, s.SaveUsage(ctx, &account.Usage{User: alice, Provider: bob, Units: 7}))

	u, err := s.GetUsage(ctx, alice, bob)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), u.Units)

	_, err = s.GetUsage(ctx, bob, alice)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestListProviders(t *testing.T) {
	ctx := context.Background()
	s := New()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, addr := range []common.Address{alice, bob, common.HexToAddress("0xc3")} {
		p := provider.New(addr)
		p.Registered = i != 1
		p.Touch(base.Add(time.Duration(i) * time.Minute))
		require.NoError(t, s.SaveProvider(ctx, p))
	}

	all, err := s.ListProviders(ctx, provider.ListOpts{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, alice, all[0].Address)

	registered, err := s.ListProviders(ctx, provider.ListOpts{RegisteredOnly: true})
	require.NoError(t, err)
	assert.Len(t, registered, 2)

	page, err := s.ListProviders(ctx, provider.ListOpts{Offset: 1, Limit: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, bob, page[0].Address)
}

func TestSingletonsNotFoundUntilSaved(t *testing.T) {
	ctx := context.Background()
	s := New()

	_, err := s.GetPlatform(ctx)
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = s.GetRoyaltyConfig(ctx)
	assert.ErrorIs(t, err, store.ErrNotFound)

	cfg := royalty.DefaultConfig()
	require.NoError(t, s.SaveRoyaltyConfig(ctx, &cfg))
	got, err := s.GetRoyaltyConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(4000), got.ManufacturerBP)
}

func TestListEventsNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := New()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.AppendEvent(ctx, event.New(event.KindDeposit, alice, now)))
	require.NoError(t, s.AppendEvent(ctx, event.New(event.KindUsageApplied, alice, now.Add(time.Second))))
	require.NoError(t, s.AppendEvent(ctx, event.New(event.KindDeposit, bob, now.Add(2*time.Second))))

	all, err := s.ListEvents(ctx, event.ListOpts{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, bob, all[0].Account)

	deposits, err := s.ListEvents(ctx, event.ListOpts{Kind: event.KindDeposit, Account: alice})
	require.NoError(t, err)
	require.Len(t, deposits, 1)
	assert.Equal(t, event.KindDeposit, deposits[0].Kind)
}

func TestClosedStoreRejectsWrites(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.Close())

	assert.ErrorIs(t, s.Ping(ctx), store.ErrClosed)
	assert.ErrorIs(t, s.SaveAccount(ctx, account.New(alice)), store.ErrClosed)
}
