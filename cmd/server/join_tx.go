package main

import (
	"context"
	"database/sql"
	"time"

	joinservice "zonegate/internal/join/service"
	assignmentstore "zonegate/internal/join/store/assignment"
	riderstore "zonegate/internal/rider/store/rider"
	attemptstore "zonegate/internal/verification/store/attempt"
	zonestore "zonegate/internal/zone/store/zone"
	dErrors "zonegate/pkg/domain-errors"
)

const defaultJoinTxTimeout = 5 * time.Second

// joinPostgresTx runs the join commit inside a single database transaction.
// The stores passed to fn share the *sql.Tx, so the occupancy update and the
// assignment inserts commit or roll back together.
type joinPostgresTx struct {
	db      *sql.DB
	timeout time.Duration
}

func newJoinPostgresTx(db *sql.DB) *joinPostgresTx {
	return &joinPostgresTx{db: db}
}

func (t *joinPostgresTx) RunInTx(ctx context.Context, fn func(stores joinservice.TxStores) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	timeout := t.timeout
	if timeout == 0 {
		timeout = defaultJoinTxTimeout
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	stores := joinservice.TxStores{
		Zones:       zonestore.NewPostgresTx(tx),
		Assignments: assignmentstore.NewPostgresTx(tx),
		Attempts:    attemptstore.NewPostgresTx(tx),
		Riders:      riderstore.NewPostgresTx(tx),
	}
	if err := fn(stores); err != nil {
		return err
	}
	return tx.Commit()
}
