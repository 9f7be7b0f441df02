package treasury

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/xraph/tierpay/auth"
	"github.com/xraph/tierpay/erc20"
	"github.com/xraph/tierpay/types"
)

var (
	governor = common.HexToAddress("0x90")
	vault    = common.HexToAddress("0x7e")
	billing  = common.HexToAddress("0xb1")
	user     = common.HexToAddress("0x05")
	token    = common.HexToAddress("0x70")
	other    = common.HexToAddress("0x71")
)

func setup(t *testing.T) (*Treasury, *erc20.Ledger) {
	t.Helper()
	ctx := context.Background()
	authority := auth.NewMemory()
	authority.Grant(auth.RoleGovernor, governor)
	tokens := erc20.New()
	tr := New(vault, tokens, authority, nil)

	for _, p := range []struct {
		kind    Permission
		account common.Address
	}{
		{PermDepositor, billing},
		{PermSpender, billing},
		{PermReserveToken, token},
	} {
		if err := tr.SetPermission(ctx, governor, p.kind, p.account, true); err != nil {
			t.Fatal(err)
		}
	}
	if err := tokens.Mint(ctx, token, billing, types.NewAmount(100)); err != nil {
		t.Fatal(err)
	}
	return tr, tokens
}

func TestDepositWithdraw(t *testing.T) {
	ctx := context.Background()
	tr, tokens := setup(t)

	if err := tokens.Approve(ctx, token, billing, vault, types.NewAmount(70)); err != nil {
		t.Fatal(err)
	}
	if err := tr.Deposit(ctx, billing, types.NewAmount(70), token); err != nil {
		t.Fatalf("Deposit: %v", err)
	}
	if bal, _ := tr.Balance(ctx, token); bal.Uint64() != 70 {
		t.Errorf("treasury balance: got %d, want 70", bal.Uint64())
	}

	if err := tr.Withdraw(ctx, billing, user, types.NewAmount(30), token); err != nil {
		t.Fatalf("Withdraw: %v", err)
	}
	if bal, _ := tokens.BalanceOf(ctx, token, user); bal.Uint64() != 30 {
		t.Errorf("user balance: got %d, want 30", bal.Uint64())
	}
}

func TestPermissions(t *testing.T) {
	ctx := context.Background()
	tr, _ := setup(t)

	tests := []struct {
		name string
		fn   func() error
		want error
	}{
		{"unknown depositor", func() error { return tr.Deposit(ctx, user, types.NewAmount(1), token) }, ErrNotPermitted},
		{"unknown spender", func() error { return tr.Withdraw(ctx, user, user, types.NewAmount(1), token) }, ErrNotPermitted},
		{"foreign token", func() error { return tr.Withdraw(ctx, billing, user, types.NewAmount(1), other) }, ErrNotPermitted},
		{"zero amount", func() error { return tr.Withdraw(ctx, billing, user, types.Zero(), token) }, ErrInvalidAmount},
		{"non-governor", func() error { return tr.SetPermission(ctx, user, PermSpender, user, true) }, ErrNotGovernor},
		{"bad kind", func() error { return tr.SetPermission(ctx, governor, "minter", user, true) }, ErrUnknownPerm},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.fn(); !errors.Is(err, tt.want) {
				t.Errorf("got %v, want %v", err, tt.want)
			}
		})
	}

	if err := tr.SetPermission(ctx, governor, PermSpender, billing, false); err != nil {
		t.Fatal(err)
	}
	if tr.Permitted(PermSpender, billing) {
		t.Error("spender permission survived revoke")
	}
}
