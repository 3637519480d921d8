// Package source defines the shared stream shape produced by both
// PollingPublisher and PushPublisher, and consumed by Dispatcher: a
// channel of Emission values, each carrying the completion signal the
// partition gate needs in order to release its lock at the right time.
// Neither publisher type depends on the other; this package exists so the
// dispatcher can merge both kinds uniformly.
package source

import "context"

type (
	// Emission is one item that has already cleared a partition gate,
	// together with the completion signal its source needs. Whoever reads
	// an Emission from a Source's channel takes ownership of calling Done
	// exactly once - whether the item is processed, fails, or is abandoned
	// due to cancellation before being processed at all. A Source may block
	// waiting for Done before emitting the next item of the same partition,
	// so Done must never be deferred indefinitely.
	Emission[T any] struct {
		Item T
		Done func(err error)
	}

	// Source is anything that produces a cold, restartable stream of
	// gated items: both PollingPublisher and PushPublisher implement it.
	// Subscribe starts a new, independent production chain; cancelling ctx
	// terminates it and releases any locks it still holds, and the
	// returned channel is always eventually closed.
	Source[T any] interface {
		Subscribe(ctx context.Context) <-chan Emission[T]
	}
)
