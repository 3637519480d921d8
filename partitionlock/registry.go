package partitionlock

import (
	"sync"
	"sync/atomic"

	"github.com/cfedersp/review-pipeline/logging"
)

type (
	// Registry is a concurrent mapping from partition key to a lock cell.
	// The zero value is not usable - construct with NewRegistry.
	Registry struct {
		log   logging.Logger
		cells sync.Map // string -> *int32 (0 = free, 1 = held)
		count int64    // number of distinct keys ever seen, for Len
	}
)

// NewRegistry constructs an empty Registry. log may be nil, in which case
// debug-level release-of-unheld-key events are discarded.
func NewRegistry(log logging.Logger) *Registry {
	return &Registry{log: logging.OrDiscard(log)}
}

// TryAcquire is atomic and never blocks. It returns true the first time it
// observes key in the free state, transitioning it to held; it returns
// false if key is already held. The cell is created lazily on first use.
func (r *Registry) TryAcquire(key string) bool {
	cell := r.cellFor(key)
	return atomic.CompareAndSwapInt32(cell, 0, 1)
}

// Release transitions key back to the free state. It is idempotent:
// releasing an unheld or unknown key is a no-op, logged at debug level, and
// never panics or returns an error.
func (r *Registry) Release(key string) {
	v, ok := r.cells.Load(key)
	if !ok || !atomic.CompareAndSwapInt32(v.(*int32), 1, 0) {
		r.log.WithField("partition_key", key).Debug("partitionlock: release of unheld or unknown key")
	}
}

// Len reports the number of distinct partition keys the Registry has ever
// observed (held or not), to support externally-driven cardinality
// monitoring and eviction policy.
func (r *Registry) Len() int {
	return int(atomic.LoadInt64(&r.count))
}

func (r *Registry) cellFor(key string) *int32 {
	if v, ok := r.cells.Load(key); ok {
		return v.(*int32)
	}
	cell := new(int32)
	actual, loaded := r.cells.LoadOrStore(key, cell)
	if !loaded {
		atomic.AddInt64(&r.count, 1)
	}
	return actual.(*int32)
}
