// Package lock serializes ledger mutations per customer.
package lock

import (
	"context"
	"errors"
)

var (
	ErrEmptyKey    = errors.New("lock key is empty")
	ErrNotAcquired = errors.New("lock not acquired")
)

// Locker grants exclusive access to a key until the returned release func runs.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
	Backend() string
}
