package erc20

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/xraph/tierpay/chain"
	"github.com/xraph/tierpay/types"
)

var (
	token = common.HexToAddress("0x1000")
	alice = common.HexToAddress("0xa11ce")
	bob   = common.HexToAddress("0xb0b")
	carol = common.HexToAddress("0xca401")
)

func balance(t *testing.T, l *Ledger, owner common.Address) uint64 {
	t.Helper()
	b, err := l.BalanceOf(context.Background(), token, owner)
	if err != nil {
		t.Fatal(err)
	}
	return b.Uint64()
}

func TestTransferFromConsumesAllowance(t *testing.T) {
	ctx := context.Background()
	l := New()
	if err := l.Mint(ctx, token, alice, types.NewAmount(100)); err != nil {
		t.Fatal(err)
	}
	if err := l.Approve(ctx, token, alice, bob, types.NewAmount(60)); err != nil {
		t.Fatal(err)
	}

	if err := l.TransferFrom(ctx, token, bob, alice, carol, types.NewAmount(40)); err != nil {
		t.Fatalf("TransferFrom: %v", err)
	}
	if got := balance(t, l, carol); got != 40 {
		t.Errorf("carol: got %d, want 40", got)
	}
	left, _ := l.Allowance(ctx, token, alice, bob)
	if left.Uint64() != 20 {
		t.Errorf("allowance: got %d, want 20", left.Uint64())
	}

	err := l.TransferFrom(ctx, token, bob, alice, carol, types.NewAmount(21))
	if !errors.Is(err, ErrInsufficientAllowance) {
		t.Errorf("got %v, want ErrInsufficientAllowance", err)
	}
	if got := balance(t, l, alice); got != 60 {
		t.Errorf("alice after failed pull: got %d, want 60", got)
	}
}

func TestTransferInsufficientBalance(t *testing.T) {
	ctx := context.Background()
	l := New()
	_ = l.Mint(ctx, token, alice, types.NewAmount(5))

	if err := l.Transfer(ctx, token, alice, bob, types.NewAmount(6)); !errors.Is(err, ErrInsufficientBalance) {
		t.Errorf("got %v, want ErrInsufficientBalance", err)
	}
	if err := l.Transfer(ctx, token, alice, common.Address{}, types.NewAmount(1)); !errors.Is(err, ErrZeroAddress) {
		t.Errorf("got %v, want ErrZeroAddress", err)
	}
}

func TestTransferBatchIsAtomic(t *testing.T) {
	ctx := context.Background()
	l := New()
	_ = l.Mint(ctx, token, alice, types.NewAmount(100))

	err := l.TransferBatch(ctx, token, alice, []chain.Leg{
		{To: bob, Amount: types.NewAmount(60)},
		{To: carol, Amount: types.NewAmount(50)},
	})
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("got %v, want ErrInsufficientBalance", err)
	}
	if balance(t, l, bob) != 0 || balance(t, l, carol) != 0 || balance(t, l, alice) != 100 {
		t.Error("failed batch moved funds")
	}

	err = l.TransferBatch(ctx, token, alice, []chain.Leg{
		{To: bob, Amount: types.NewAmount(60)},
		{To: carol, Amount: types.NewAmount(40)},
	})
	if err != nil {
		t.Fatalf("TransferBatch: %v", err)
	}
	if balance(t, l, bob) != 60 || balance(t, l, carol) != 40 || balance(t, l, alice) != 0 {
		t.Error("batch did not settle every leg")
	}
	if got := l.TotalSupply(ctx, token).Uint64(); got != 100 {
		t.Errorf("supply: got %d, want 100", got)
	}
}

func TestHookCanAbort(t *testing.T) {
	ctx := context.Background()
	blocked := errors.New("blocked")
	l := New(WithHook(func(_ context.Context, _, _, to common.Address, _ *uint256.Int) error {
		if to == carol {
			return blocked
		}
		return nil
	}))
	_ = l.Mint(ctx, token, alice, types.NewAmount(10))

	if err := l.Transfer(ctx, token, alice, carol, types.NewAmount(1)); !errors.Is(err, blocked) {
		t.Errorf("got %v, want hook error", err)
	}
	if err := l.Transfer(ctx, token, alice, bob, types.NewAmount(1)); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if balance(t, l, alice) != 9 {
		t.Errorf("alice: got %d, want 9", balance(t, l, alice))
	}
}
