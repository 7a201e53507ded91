package service

import (
	"context"
	"sync"
	"time"

	dErrors "rollcall/pkg/domain-errors"
)

// StoreTx provides a transactional boundary for multi-store mutations.
// Implementations may wrap a database transaction or, in-memory, a sharded lock.
// Stores reached through the txCtx join the transaction.
type StoreTx interface {
	RunInTx(ctx context.Context, fn func(txCtx context.Context) error) error
}

// numTxShards distributes in-memory transactions across mutexes by lock key so
// unrelated sessions do not contend.
const numTxShards = 128

// defaultTxTimeout bounds a transaction when the caller set no deadline.
const defaultTxTimeout = 5 * time.Second

type shardedStoreTx struct {
	shards  [numTxShards]sync.Mutex
	timeout time.Duration
}

// NewInMemoryStoreTx returns a StoreTx for the in-memory stores.
func NewInMemoryStoreTx() StoreTx {
	return &shardedStoreTx{timeout: defaultTxTimeout}
}

func (t *shardedStoreTx) RunInTx(ctx context.Context, fn func(txCtx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	shard := selectShard(ctx)
	t.shards[shard].Lock()
	defer t.shards[shard].Unlock()

	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	return fn(ctx)
}

type txLockKey struct{}

// WithLockKey scopes the next RunInTx to key. Transactions with different keys
// may run concurrently in memory; a Postgres StoreTx ignores the key.
func WithLockKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, txLockKey{}, key)
}

// LockKey returns the key set by WithLockKey.
func LockKey(ctx context.Context) (string, bool) {
	key, ok := ctx.Value(txLockKey{}).(string)
	return key, ok && key != ""
}

func selectShard(ctx context.Context) int {
	if key, ok := LockKey(ctx); ok {
		return int(hashKey(key) % numTxShards)
	}
	return 0
}

// hashKey is FNV-1a.
func hashKey(s string) uint32 {
	const (
		fnvOffset = 2166136261
		fnvPrime  = 16777619
	)
	h := uint32(fnvOffset)
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= fnvPrime
	}
	return h
}
