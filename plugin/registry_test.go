package plugin

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/xraph/tierpay/event"
)

type recorder struct {
	name string

	mu       sync.Mutex
	deposits int
	usage    int
	all      []event.Kind
	fail     bool
}

func (r *recorder) Name() string { return r.name }

func (r *recorder) OnDeposit(_ context.Context, _ *event.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deposits++
	if r.fail {
		return errors.New("boom")
	}
	return nil
}

func (r *recorder) OnUsageApplied(_ context.Context, _ *event.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.usage++
	return nil
}

func (r *recorder) OnEvent(_ context.Context, e *event.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.all = append(r.all, e.Kind)
	return nil
}

type slow struct{}

func (slow) Name() string { return "slow" }

func (slow) OnEvent(ctx context.Context, _ *event.Event) error {
	time.Sleep(200 * time.Millisecond)
	return nil
}

func quietRegistry() *Registry {
	return NewRegistry().WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestRegisterRejectsDuplicateNames(t *testing.T) {
	r := quietRegistry()
	if err := r.Register(&recorder{name: "a"}); err != nil {
		t.Fatal(err)
	}
	if err := r.Register(&recorder{name: "a"}); err == nil {
		t.Fatal("expected duplicate registration error")
	}
	if r.Count() != 1 {
		t.Errorf("count: got %d, want 1", r.Count())
	}
	if r.Get("a") == nil || r.Get("b") != nil {
		t.Error("Get returned the wrong plugin")
	}
}

func TestEmitEventRoutesByKind(t *testing.T) {
	ctx := context.Background()
	r := quietRegistry()
	rec := &recorder{name: "rec"}
	if err := r.Register(rec); err != nil {
		t.Fatal(err)
	}

	now := time.Now()
	user := common.HexToAddress("0x01")
	r.EmitEvent(ctx, event.New(event.KindDeposit, user, now))
	r.EmitEvent(ctx, event.New(event.KindUsageApplied, user, now))
	r.EmitEvent(ctx, event.New(event.KindRoyaltyCharged, user, now))

	if rec.deposits != 1 || rec.usage != 1 {
		t.Errorf("typed hooks: deposits=%d usage=%d, want 1 and 1", rec.deposits, rec.usage)
	}
	if len(rec.all) != 3 {
		t.Errorf("catch-all saw %d events, want 3", len(rec.all))
	}
}

func TestEmitEventSurvivesFailureAndTimeout(t *testing.T) {
	ctx := context.Background()
	r := quietRegistry().WithTimeout(20 * time.Millisecond)
	rec := &recorder{name: "rec", fail: true}
	for _, p := range []Plugin{rec, slow{}} {
		if err := r.Register(p); err != nil {
			t.Fatal(err)
		}
	}

	start := time.Now()
	r.EmitEvent(ctx, event.New(event.KindDeposit, common.Address{}, start))
	if elapsed := time.Since(start); elapsed > 150*time.Millisecond {
		t.Errorf("emission blocked for %s", elapsed)
	}
	if rec.deposits != 1 {
		t.Error("failing hook was not called")
	}
}
