// Package optimistic applies local state changes before the server confirms
// them and rolls them back exactly when the server call fails.
//
// Per key the controller keeps the last confirmed state (base) and the ordered
// list of operations still in flight. The visible state is base with every
// pending operation applied in order, so a failed operation is undone by
// dropping it and recomputing, which also composes when several operations on
// the same key overlap.
package optimistic

import (
	"context"
	"sync"
	"time"

	"example.com/mindfeed/internal/logger"
)

const DefaultTimeout = 15 * time.Second

var logg = logger.New()

// Mutation is one optimistic change.
type Mutation[S any] struct {
	// Apply returns the state as it will look once Call succeeds. It must not
	// modify its argument in place.
	Apply func(S) S
	// Call performs the server side change.
	Call func(ctx context.Context) error
	// Reconcile optionally fetches server truth once nothing is pending.
	Reconcile func(ctx context.Context) (S, error)
}

// Config of a Controller. OnError sees every failed Call.
type Config[K comparable] struct {
	Timeout time.Duration
	OnError func(key K, err error)
}

type op[S any] struct {
	apply func(S) S
	done  bool
}

type entry[S any] struct {
	base    S
	pending []*op[S]
	// gen advances on every new operation, reconcile start and Put. A fetch
	// result is only accepted while gen still matches its start.
	gen uint64
}

func (e *entry[S]) visible() S {
	s := e.base
	for _, o := range e.pending {
		s = o.apply(s)
	}
	return s
}

// fold moves settled operations from the front of the queue into base.
func (e *entry[S]) fold() {
	i := 0
	for ; i < len(e.pending) && e.pending[i].done; i++ {
		e.base = e.pending[i].apply(e.base)
	}
	e.pending = e.pending[i:]
}

func (e *entry[S]) remove(target *op[S]) {
	for i, o := range e.pending {
		if o == target {
			e.pending = append(e.pending[:i], e.pending[i+1:]...)
			return
		}
	}
}

// Controller is safe for concurrent use. Observers run synchronously on every
// visible change and must not call Mutate themselves.
type Controller[K comparable, S any] struct {
	cfg Config[K]

	notifyMu  sync.Mutex
	mu        sync.Mutex
	entries   map[K]*entry[S]
	observers map[int]func(K, S)
	nextObs   int
}

func New[K comparable, S any](cfg Config[K]) *Controller[K, S] {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Controller[K, S]{
		cfg:       cfg,
		entries:   make(map[K]*entry[S]),
		observers: make(map[int]func(K, S)),
	}
}

// Get returns the visible state of key.
func (c *Controller[K, S]) Get(key K) (S, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		var zero S
		return zero, false
	}
	return e.visible(), true
}

// Put replaces the confirmed state of key. Pending operations stay applied on top.
func (c *Controller[K, S]) Put(key K, s S) {
	c.update(key, func(e *entry[S]) {
		e.base = s
		e.gen++
	})
}

// Forget drops every state held for key. Observers are not notified.
func (c *Controller[K, S]) Forget(key K) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// Pending reports how many operations on key are still in flight.
func (c *Controller[K, S]) Pending(key K) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok {
		return len(e.pending)
	}
	return 0
}

// Subscribe registers fn for visible state changes and returns its cancel func.
func (c *Controller[K, S]) Subscribe(fn func(K, S)) func() {
	c.mu.Lock()
	id := c.nextObs
	c.nextObs++
	c.observers[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.observers, id)
		c.mu.Unlock()
	}
}

// Mutate applies m optimistically, notifies observers and runs m.Call in the
// background. The returned channel receives the outcome once the operation has
// settled, reconciliation included. Failed calls are never retried.
func (c *Controller[K, S]) Mutate(ctx context.Context, key K, m Mutation[S]) <-chan error {
	o := &op[S]{apply: m.Apply}
	c.update(key, func(e *entry[S]) {
		e.pending = append(e.pending, o)
		e.gen++
	})

	result := make(chan error, 1)
	go func() {
		defer close(result)

		callCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
		err := m.Call(callCtx)
		cancel()

		if err != nil {
			c.update(key, func(e *entry[S]) { e.remove(o) })
			if c.cfg.OnError != nil {
				c.cfg.OnError(key, err)
			}
			result <- err
			return
		}

		idle := false
		var gen uint64
		c.update(key, func(e *entry[S]) {
			o.done = true
			e.fold()
			idle = len(e.pending) == 0
			if idle && m.Reconcile != nil {
				e.gen++
				gen = e.gen
			}
		})

		if idle && m.Reconcile != nil {
			c.reconcile(ctx, key, gen, m.Reconcile)
		}
		result <- nil
	}()
	return result
}

func (c *Controller[K, S]) reconcile(ctx context.Context, key K, gen uint64, fetch func(context.Context) (S, error)) {
	fetchCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	fresh, err := fetch(fetchCtx)
	if err != nil {
		logg.Warn("optimistic", "reconcile failed, keeping local state", err)
		return
	}
	c.update(key, func(e *entry[S]) {
		// Something newer happened meanwhile and owns the next reconcile.
		if e.gen != gen || len(e.pending) > 0 {
			logg.Debug("optimistic", "dropping stale reconcile result")
			return
		}
		e.base = fresh
	})
}

// update mutates the entry of key and notifies observers with the new
// visible state, serialised so observers see changes in order.
func (c *Controller[K, S]) update(key K, fn func(*entry[S])) {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	c.mu.Lock()
	e, ok := c.entries[key]
	if !ok {
		e = &entry[S]{}
		c.entries[key] = e
	}
	fn(e)
	state := e.visible()
	observers := make([]func(K, S), 0, len(c.observers))
	for _, obs := range c.observers {
		observers = append(observers, obs)
	}
	c.mu.Unlock()

	for _, obs := range observers {
		obs(key, state)
	}
}
