package main

import (
	"context"
	"database/sql"
	"time"

	dErrors "rollcall/pkg/domain-errors"
	"rollcall/pkg/platform/tx"
)

const defaultAttendanceTxTimeout = 5 * time.Second

// attendancePostgresTx runs service transactions on Postgres. Stores reached
// through the txCtx pick the transaction up via pkg/platform/tx. Row locks
// taken by the stores replace the in-memory lock keys, which are ignored.
type attendancePostgresTx struct {
	db      *sql.DB
	timeout time.Duration
}

func newAttendancePostgresTx(db *sql.DB) *attendancePostgresTx {
	return &attendancePostgresTx{db: db}
}

func (t *attendancePostgresTx) RunInTx(ctx context.Context, fn func(txCtx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	timeout := t.timeout
	if timeout == 0 {
		timeout = defaultAttendanceTxTimeout
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	return tx.Run(ctx, t.db, func(txCtx context.Context, _ *sql.Tx) error {
		return fn(txCtx)
	})
}
