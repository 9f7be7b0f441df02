package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"github.com/xraph/tierpay/event"
)

// DefaultTimeout bounds each plugin call.
const DefaultTimeout = 5 * time.Second

// Registry manages all registered plugins and provides efficient dispatch.
// It uses type-cached discovery so emission never type-asserts.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *slog.Logger
	timeout time.Duration
	hooks   hooks
}

// hooks holds the type-cached plugin lists used for dispatch.
type hooks struct {
	onInit                []OnInit
	onShutdown            []OnShutdown
	onDeposit             []OnDeposit
	onUsageApplied        []OnUsageApplied
	onWithdrawal          []OnWithdrawal
	onProviderChanged     []OnProviderChanged
	onConfigChanged       []OnConfigChanged
	onRoyaltyCharged      []OnRoyaltyCharged
	onRoyaltyExempted     []OnRoyaltyExempted
	onRoyaltyTokenChanged []OnRoyaltyTokenChanged
	onEvent               []OnEvent
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		logger:  slog.Default(),
		timeout: DefaultTimeout,
	}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// WithTimeout sets the per-call plugin timeout.
func (r *Registry) WithTimeout(d time.Duration) *Registry {
	if d > 0 {
		r.timeout = d
	}
	return r
}

// Register adds a plugin to the registry and caches its interfaces.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}

	r.plugins = append(r.plugins, p)

	// Type-switch to cache interfaces
	if v, ok := p.(OnInit); ok {
		r.hooks.onInit = append(r.hooks.onInit, v)
	}
	if v, ok := p.(OnShutdown); ok {
		r.hooks.onShutdown = append(r.hooks.onShutdown, v)
	}
	if v, ok := p.(OnDeposit); ok {
		r.hooks.onDeposit = append(r.hooks.onDeposit, v)
	}
	if v, ok := p.(OnUsageApplied); ok {
		r.hooks.onUsageApplied = append(r.hooks.onUsageApplied, v)
	}
	if v, ok := p.(OnWithdrawal); ok {
		r.hooks.onWithdrawal = append(r.hooks.onWithdrawal, v)
	}
	if v, ok := p.(OnProviderChanged); ok {
		r.hooks.onProviderChanged = append(r.hooks.onProviderChanged, v)
	}
	if v, ok := p.(OnConfigChanged); ok {
		r.hooks.onConfigChanged = append(r.hooks.onConfigChanged, v)
	}
	if v, ok := p.(OnRoyaltyCharged); ok {
		r.hooks.onRoyaltyCharged = append(r.hooks.onRoyaltyCharged, v)
	}
	if v, ok := p.(OnRoyaltyExempted); ok {
		r.hooks.onRoyaltyExempted = append(r.hooks.onRoyaltyExempted, v)
	}
	if v, ok := p.(OnRoyaltyTokenChanged); ok {
		r.hooks.onRoyaltyTokenChanged = append(r.hooks.onRoyaltyTokenChanged, v)
	}
	if v, ok := p.(OnEvent); ok {
		r.hooks.onEvent = append(r.hooks.onEvent, v)
	}

	r.logger.Info("plugin registered",
		"name", p.Name(),
		"interfaces", implementedInterfaces(p),
	)

	return nil
}

// implementedInterfaces lists the hooks p implements, for logging.
func implementedInterfaces(p Plugin) []string {
	var interfaces []string
	v := reflect.TypeOf(p)

	checkInterface := func(iface reflect.Type, name string) {
		if v.Implements(iface) {
			interfaces = append(interfaces, name)
		}
	}

	checkInterface(reflect.TypeOf((*OnInit)(nil)).Elem(), "OnInit")
	checkInterface(reflect.TypeOf((*OnShutdown)(nil)).Elem(), "OnShutdown")
	checkInterface(reflect.TypeOf((*OnDeposit)(nil)).Elem(), "OnDeposit")
	checkInterface(reflect.TypeOf((*OnUsageApplied)(nil)).Elem(), "OnUsageApplied")
	checkInterface(reflect.TypeOf((*OnWithdrawal)(nil)).Elem(), "OnWithdrawal")
	checkInterface(reflect.TypeOf((*OnProviderChanged)(nil)).Elem(), "OnProviderChanged")
	checkInterface(reflect.TypeOf((*OnConfigChanged)(nil)).Elem(), "OnConfigChanged")
	checkInterface(reflect.TypeOf((*OnRoyaltyCharged)(nil)).Elem(), "OnRoyaltyCharged")
	checkInterface(reflect.TypeOf((*OnRoyaltyExempted)(nil)).Elem(), "OnRoyaltyExempted")
	checkInterface(reflect.TypeOf((*OnRoyaltyTokenChanged)(nil)).Elem(), "OnRoyaltyTokenChanged")
	checkInterface(reflect.TypeOf((*OnEvent)(nil)).Elem(), "OnEvent")

	return interfaces
}

// Get returns a plugin by name.
func (r *Registry) Get(name string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// List returns all registered plugins.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Plugin, len(r.plugins))
	copy(result, r.plugins)
	return result
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// ──────────────────────────────────────────────────
// Event emission methods
// ──────────────────────────────────────────────────

// EmitInit calls OnInit for all plugins that implement it.
func (r *Registry) EmitInit(ctx context.Context, engine any) {
	r.mu.RLock()
	plugins := r.hooks.onInit
	r.mu.RUnlock()

	for _, p := range plugins {
		r.call(ctx, p.Name(), "OnInit", func() error {
			return p.OnInit(ctx, engine)
		})
	}
}

// EmitShutdown calls OnShutdown for all plugins that implement it.
func (r *Registry) EmitShutdown(ctx context.Context) {
	r.mu.RLock()
	plugins := r.hooks.onShutdown
	r.mu.RUnlock()

	for _, p := range plugins {
		r.call(ctx, p.Name(), "OnShutdown", func() error {
			return p.OnShutdown(ctx)
		})
	}
}

// EmitEvent routes e to the typed hook for its kind, then to every OnEvent
// plugin. Failures are logged and never reach the caller.
func (r *Registry) EmitEvent(ctx context.Context, e *event.Event) {
	r.mu.RLock()
	h := r.hooks
	r.mu.RUnlock()

	switch e.Kind {
	case event.KindDeposit:
		for _, p := range h.onDeposit {
			r.call(ctx, p.Name(), "OnDeposit", func() error { return p.OnDeposit(ctx, e.Clone()) })
		}
	case event.KindUsageApplied:
		for _, p := range h.onUsageApplied {
			r.call(ctx, p.Name(), "OnUsageApplied", func() error { return p.OnUsageApplied(ctx, e.Clone()) })
		}
	case event.KindUnusedWithdrawn, event.KindProviderWithdrawn, event.KindRoyaltyWithdrawn:
		for _, p := range h.onWithdrawal {
			r.call(ctx, p.Name(), "OnWithdrawal", func() error { return p.OnWithdrawal(ctx, e.Clone()) })
		}
	case event.KindProviderRegistered, event.KindProviderTiersSet, event.KindProviderUnregistered:
		for _, p := range h.onProviderChanged {
			r.call(ctx, p.Name(), "OnProviderChanged", func() error { return p.OnProviderChanged(ctx, e.Clone()) })
		}
	case event.KindConfigChanged, event.KindRoyaltyConfigChanged:
		for _, p := range h.onConfigChanged {
			r.call(ctx, p.Name(), "OnConfigChanged", func() error { return p.OnConfigChanged(ctx, e.Clone()) })
		}
	case event.KindRoyaltyCharged:
		for _, p := range h.onRoyaltyCharged {
			r.call(ctx, p.Name(), "OnRoyaltyCharged", func() error { return p.OnRoyaltyCharged(ctx, e.Clone()) })
		}
	case event.KindRoyaltyExempted:
		for _, p := range h.onRoyaltyExempted {
			r.call(ctx, p.Name(), "OnRoyaltyExempted", func() error { return p.OnRoyaltyExempted(ctx, e.Clone()) })
		}
	case event.KindRoyaltyOwnerChanged, event.KindRoyaltyPriceChanged:
		for _, p := range h.onRoyaltyTokenChanged {
			r.call(ctx, p.Name(), "OnRoyaltyTokenChanged", func() error { return p.OnRoyaltyTokenChanged(ctx, e.Clone()) })
		}
	}

	for _, p := range h.onEvent {
		r.call(ctx, p.Name(), "OnEvent", func() error { return p.OnEvent(ctx, e.Clone()) })
	}
}

func (r *Registry) call(ctx context.Context, pluginName, hook string, fn func() error) {
	if err := r.callWithTimeout(ctx, pluginName, fn); err != nil {
		r.logger.Warn("plugin "+hook+" failed",
			"plugin", pluginName,
			"error", err,
		)
	}
}

// callWithTimeout calls a plugin function with a timeout.
// Plugins should never block the billing pipeline.
func (r *Registry) callWithTimeout(ctx context.Context, pluginName string, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		done <- fn()
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(r.timeout):
		return fmt.Errorf("plugin timeout: %s", pluginName)
	case <-ctx.Done():
		return ctx.Err()
	}
}
