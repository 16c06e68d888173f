package core

import (
	"context"
	"io"
)

type (
	// Locker grants exclusive access to a named resource.
	// Acquire waits at most for the locker's configured bound and returns ErrBusy past it.
	// The returned release func must be called exactly once.
	Locker interface {
		Acquire(ctx context.Context, key string) (release func(), err error)
	}

	// FileStore keeps uploaded files opaquely and hands back a reference to them.
	FileStore interface {
		Save(ctx context.Context, category, filename string, r io.Reader) (ref string, err error)
	}
)
