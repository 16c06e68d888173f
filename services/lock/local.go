package lock

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/yarcoin/marketplace/core"
)

type (
	// Local serializes access to keys within a single process.
	Local struct {
		wait time.Duration

		mu   sync.Mutex
		keys map[string]*entry
	}

	entry struct {
		sem  chan struct{} // holds one token while the key is locked
		refs int           // holders + waiters
	}
)

var _ core.Locker = (*Local)(nil) // interface compliance check

// NewLocal returns a Local locker whose Acquire gives up after wait.
func NewLocal(wait time.Duration) *Local {
	return &Local{wait: wait, keys: make(map[string]*entry)}
}

func (l *Local) Acquire(ctx context.Context, key string) (func(), error) {
	e := l.ref(key)

	timer := time.NewTimer(l.wait)
	defer timer.Stop()

	select {
	case e.sem <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-e.sem
				l.unref(key, e)
			})
		}, nil
	case <-timer.C:
		l.unref(key, e)
		return nil, core.ErrBusy
	case <-ctx.Done():
		l.unref(key, e)
		return nil, errors.Wrap(ctx.Err(), "waiting for lock")
	}
}

func (l *Local) ref(key string) *entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.keys[key]
	if !ok {
		e = &entry{sem: make(chan struct{}, 1)}
		l.keys[key] = e
	}
	e.refs++
	return e
}

func (l *Local) unref(key string, e *entry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e.refs--
	if e.refs == 0 {
		delete(l.keys, key)
	}
}
