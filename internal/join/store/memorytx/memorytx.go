// Package memorytx provides an in-memory transactional boundary for the join
// commit: a single coarse lock instead of a database transaction. The commit
// sequence is written so every abort happens before its first mutation, which
// is what makes a lock (with no rollback) a valid stand-in.
package memorytx

import (
	"context"
	"sync"
	"time"

	"zonegate/internal/join/service"
	dErrors "zonegate/pkg/domain-errors"
)

// defaultTxTimeout bounds how long a commit may hold the lock.
const defaultTxTimeout = 5 * time.Second

// Tx serializes join commits over a fixed set of memory stores.
type Tx struct {
	mu      sync.Mutex
	stores  service.TxStores
	timeout time.Duration
}

func New(stores service.TxStores) *Tx {
	return &Tx{stores: stores, timeout: defaultTxTimeout}
}

func (t *Tx) RunInTx(ctx context.Context, fn func(stores service.TxStores) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	return fn(t.stores)
}
