package sqlmodel

import (
	"math"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/xraph/tierpay/event"
	"github.com/xraph/tierpay/platform"
	"github.com/xraph/tierpay/provider"
	"github.com/xraph/tierpay/royalty"
	"github.com/xraph/tierpay/types"
)

func TestUnsignedValuesSurviveSignedColumns(t *testing.T) {
	tok := royalty.NewToken(math.MaxUint64, common.HexToAddress("0xc1"))
	tok.RoyaltyWei = new(uint256.Int).SetAllOne()

	row := ToRoyaltyToken(tok)
	if row.TokenID >= 0 {
		t.Fatalf("expected the max token id to wrap negative, got %d", row.TokenID)
	}
	back, err := FromRoyaltyToken(row)
	if err != nil {
		t.Fatal(err)
	}
	if back.TokenID != math.MaxUint64 {
		t.Errorf("token id = %d", back.TokenID)
	}
	if !back.RoyaltyWei.Eq(tok.RoyaltyWei) {
		t.Errorf("royalty wei = %s", back.RoyaltyWei.Dec())
	}
}

func TestProviderTiersRoundTrip(t *testing.T) {
	p := provider.New(common.HexToAddress("0x02"))
	p.Registered = true
	p.FallbackRate = types.NewAmount(3)
	tiers, err := provider.NewTiers([]uint64{100, 200}, []*uint256.Int{types.NewAmount(1), types.NewAmount(2)})
	if err != nil {
		t.Fatal(err)
	}
	p.Tiers = tiers

	row, err := ToProvider(p)
	if err != nil {
		t.Fatal(err)
	}
	if string(row.Tiers) != `[{"threshold":100,"rate":"1"},{"threshold":200,"rate":"2"}]` {
		t.Errorf("tiers json = %s", row.Tiers)
	}
	back, err := FromProvider(row)
	if err != nil {
		t.Fatal(err)
	}
	if len(back.Tiers) != 2 || back.Tiers[1].Threshold != 200 || back.Tiers[1].Rate.Uint64() != 2 {
		t.Errorf("tiers = %+v", back.Tiers)
	}

	p.Unregister()
	row, _ = ToProvider(p)
	back, err = FromProvider(row)
	if err != nil {
		t.Fatal(err)
	}
	if back.Tiers != nil {
		t.Errorf("unregistered provider kept tiers %+v", back.Tiers)
	}
}

func TestPlatformAndEventRows(t *testing.T) {
	st := platform.NewState(platform.DefaultConfig())
	st.DiscountCollections = []common.Address{common.HexToAddress("0xd1")}
	row, err := ToPlatform(st)
	if err != nil {
		t.Fatal(err)
	}
	if row.ID != SingletonID {
		t.Errorf("platform id = %d", row.ID)
	}
	back, err := FromPlatform(row)
	if err != nil {
		t.Fatal(err)
	}
	if back.LockPeriod != 30*24*time.Hour || len(back.DiscountCollections) != 1 {
		t.Errorf("platform = %+v", back.Config)
	}

	e := event.New(event.KindDeposit, common.HexToAddress("0x01"), time.Now())
	erow, err := ToEvent(e)
	if err != nil {
		t.Fatal(err)
	}
	ev, err := FromEvent(erow)
	if err != nil {
		t.Fatal(err)
	}
	if ev.ID.String() != e.ID.String() || ev.Attributes != nil {
		t.Errorf("event = %+v", ev)
	}

	if _, err := FromAccount(&Account{User: "0x01", TotalDeposited: "abc"}); err == nil {
		t.Error("expected a corrupt amount to fail")
	}
}
