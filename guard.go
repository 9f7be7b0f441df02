package tierpay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/xraph/tierpay/event"
	"github.com/xraph/tierpay/plugin"
	"github.com/xraph/tierpay/store"
)

type inCallKey struct{}

// callTag marks a context as running inside an engine call. Tags chain so a
// gate call that reaches the ledger through a token callback carries both.
type callTag struct {
	owner  *serializer
	parent *callTag
}

// serializer is the single-writer lock of one engine.
type serializer struct {
	mu sync.Mutex
}

// enter takes the lock and returns a tagged context. A context already
// carrying this serializer's tag fails fast instead of deadlocking.
func (s *serializer) enter(ctx context.Context) (context.Context, error) {
	parent, _ := ctx.Value(inCallKey{}).(*callTag)
	for t := parent; t != nil; t = t.parent {
		if t.owner == s {
			return nil, ErrReentrantCall
		}
	}
	s.mu.Lock()
	return context.WithValue(ctx, inCallKey{}, &callTag{owner: s, parent: parent}), nil
}

func (s *serializer) leave() { s.mu.Unlock() }

// txn collects the undo log and the events of one mutating call.
type txn struct {
	undo   []func(context.Context) error
	events []*event.Event
}

// onRollback pushes a compensating step. Steps replay in reverse order.
func (t *txn) onRollback(fn func(context.Context) error) {
	t.undo = append(t.undo, fn)
}

// emit queues e for the journal and the plugins once the call commits.
func (t *txn) emit(e *event.Event) {
	t.events = append(t.events, e)
}

func (t *txn) rollback(ctx context.Context) error {
	var errs MultiError
	for _, fn := range slices.Backward(t.undo) {
		errs.Add(fn(ctx))
	}
	if errs.HasErrors() {
		return errs
	}
	return nil
}

// core is the machinery shared by Ledger and Gate.
type core struct {
	name    string
	store   store.Store
	plugins *plugin.Registry
	logger  *slog.Logger
	clock   func() time.Time
	ser     serializer
}

func (c *core) now() time.Time { return c.clock().UTC() }

// mutate runs fn under the engine lock. On error or panic the undo log is
// replayed; a panic is re-raised once the lock is released. On success the
// queued events are journaled under the lock and handed to plugins after it.
func (c *core) mutate(ctx context.Context, op string, fn func(ctx context.Context, tx *txn) error) error {
	events, err := c.locked(ctx, op, fn)
	if err != nil {
		return err
	}
	for _, e := range events {
		c.plugins.EmitEvent(ctx, e)
	}
	return nil
}

func (c *core) locked(ctx context.Context, op string, fn func(ctx context.Context, tx *txn) error) ([]*event.Event, error) {
	inner, err := c.ser.enter(ctx)
	if err != nil {
		c.logger.Warn("reentrant call rejected", "engine", c.name, "op", op)
		return nil, err
	}
	defer c.ser.leave()

	tx := &txn{}
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("call panicked, reverting", "engine", c.name, "op", op, "panic", r)
			c.revert(inner, op, tx, fmt.Errorf("panic: %v", r)) //nolint:errcheck // re-panicking
			panic(r)
		}
	}()

	if err := fn(inner, tx); err != nil {
		err = c.revert(inner, op, tx, err)
		c.logger.Debug("call reverted", "engine", c.name, "op", op, "error", err)
		return nil, err
	}

	for _, e := range tx.events {
		if err := c.store.AppendEvent(inner, e); err != nil {
			c.logger.Warn("journal append failed",
				"engine", c.name,
				"kind", e.Kind,
				"error", err,
			)
		}
	}
	return tx.events, nil
}

// revert replays the undo log and folds a rollback failure into cause.
func (c *core) revert(ctx context.Context, op string, tx *txn, cause error) error {
	rbErr := tx.rollback(context.WithoutCancel(ctx))
	if rbErr == nil {
		return cause
	}
	c.logger.Error("rollback failed",
		"engine", c.name,
		"op", op,
		"cause", cause,
		"error", rbErr,
	)
	return errors.Join(cause, fmt.Errorf("%w: %w", ErrRollbackFailed, rbErr))
}
