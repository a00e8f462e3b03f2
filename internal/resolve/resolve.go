// Package resolve maps import specifiers to module ids.
package resolve

import (
	"context"
	"errors"

	"github.com/hashicorp/golang-lru/v2"

	"cjses/internal/project"
)

// Resolver resolves specifier as imported from from. ok=false means the
// specifier is unresolved and the target is treated as external.
type Resolver interface {
	Resolve(ctx context.Context, specifier string, from project.ModuleID) (id project.ModuleID, ok bool, err error)
}

// Func adapts a function to Resolver.
type Func func(ctx context.Context, specifier string, from project.ModuleID) (project.ModuleID, bool, error)

func (f Func) Resolve(ctx context.Context, specifier string, from project.ModuleID) (project.ModuleID, bool, error) {
	return f(ctx, specifier, from)
}

type key struct {
	specifier string
	from      project.ModuleID
}

type future struct {
	done chan struct{}
	id   project.ModuleID
	ok   bool
	err  error
}

// Memo shares one resolution per (specifier, from) between concurrent
// callers and remembers results in a bounded LRU.
type Memo struct {
	next  Resolver
	cache *lru.Cache[key, *future]
}

// NewMemo wraps next; size bounds the number of remembered results.
func NewMemo(next Resolver, size int) (*Memo, error) {
	if size <= 0 {
		size = 4096
	}
	cache, err := lru.New[key, *future](size)
	if err != nil {
		return nil, err
	}
	return &Memo{next: next, cache: cache}, nil
}

// Resolve returns the memoized result. Failures other than cancellation
// are reported as unresolved; cancelled lookups are forgotten so a later
// caller retries. A waiter whose own ctx is live retries when the lookup
// it joined was cancelled by its initiator.
func (m *Memo) Resolve(ctx context.Context, specifier string, from project.ModuleID) (project.ModuleID, bool, error) {
	k := key{specifier: specifier, from: from}
	for {
		f := &future{done: make(chan struct{})}
		if prev, found, _ := m.cache.PeekOrAdd(k, f); found {
			m.cache.Get(k)
			id, ok, err := prev.wait(ctx)
			if err != nil && isCancel(err) && ctx.Err() == nil {
				continue
			}
			return id, ok, err
		}

		id, ok, err := m.next.Resolve(ctx, specifier, from)
		switch {
		case err == nil:
		case isCancel(err):
			if cur, found := m.cache.Peek(k); found && cur == f {
				m.cache.Remove(k)
			}
		default:
			id, ok, err = "", false, nil
		}
		f.id, f.ok, f.err = id, ok, err
		close(f.done)
		return id, ok, err
	}
}

// Len reports the number of remembered keys.
func (m *Memo) Len() int {
	return m.cache.Len()
}

func (f *future) wait(ctx context.Context) (project.ModuleID, bool, error) {
	select {
	case <-f.done:
		return f.id, f.ok, f.err
	case <-ctx.Done():
		return "", false, ctx.Err()
	}
}

func isCancel(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
