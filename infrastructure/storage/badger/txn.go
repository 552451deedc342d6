package badger

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/felixgeelhaar/fortify/retry"
)

const writeStripes = 64

// writeLocks serializes read-modify-write transactions per key. Badger
// aborts every transaction but one when they read the same key
// concurrently; holding the stripe makes same-id writes queue up and the
// last committed write wins.
type writeLocks struct {
	stripes [writeStripes]sync.Mutex
}

func newWriteLocks() *writeLocks {
	return &writeLocks{}
}

func (l *writeLocks) lock(key []byte) func() {
	h := fnv.New32a()
	_, _ = h.Write(key)
	mu := &l.stripes[h.Sum32()%writeStripes]
	mu.Lock()
	return mu.Unlock
}

// conflictRetry covers conflicts the stripes cannot see, such as writers
// sharing the database through another DB handle in the same process.
var conflictRetry = retry.New[struct{}](retry.Config{
	MaxAttempts:     10,
	InitialDelay:    time.Millisecond,
	MaxDelay:        50 * time.Millisecond,
	BackoffPolicy:   retry.BackoffExponential,
	Multiplier:      2.0,
	Jitter:          true,
	RetryableErrors: []error{badger.ErrConflict},
})

// update runs fn in a read-write transaction holding the key's stripe and
// retries it on transaction conflicts.
func update(ctx context.Context, db *badger.DB, locks *writeLocks, key []byte, fn func(txn *badger.Txn) error) error {
	unlock := locks.lock(key)
	defer unlock()

	_, err := conflictRetry.Do(ctx, func(context.Context) (struct{}, error) {
		return struct{}{}, db.Update(fn)
	})
	return err
}
