package pushpublisher

import (
	"context"
	"sync"

	"github.com/cfedersp/review-pipeline/logging"
	"github.com/cfedersp/review-pipeline/partitionlock"
	"github.com/cfedersp/review-pipeline/source"
	"github.com/cfedersp/review-pipeline/workitem"
)

type (
	// Config configures a Publisher. Lock is required; NewPublisher
	// panics if it is nil. This is the same configuration surface as
	// pollpublisher.Config minus the polling-specific fields.
	Config[T workitem.Item] struct {
		// Lock gates offered items by partition key. Required.
		Lock *partitionlock.Registry

		// PartitionKeyOf derives the partition key for an item. Defaults
		// to workitem.PartitionKey.
		PartitionKeyOf func(T) string

		// ItemFilter drops items (before the partition gate) for which it
		// returns false. Defaults to accepting everything.
		ItemFilter func(item T) bool

		// Logger receives debug/warn/error events. Defaults to
		// logging.Discard.
		Logger logging.Logger
	}

	// Publisher is a PushPublisher<T>. The zero value is not usable -
	// construct with NewPublisher.
	Publisher[T workitem.Item] struct {
		cfg Config[T]

		mu     sync.RWMutex
		sinks  map[int]chan source.Emission[T]
		nextID int
	}
)

// NewPublisher validates cfg and constructs a Publisher. cfg.Lock is
// required.
func NewPublisher[T workitem.Item](cfg Config[T]) *Publisher[T] {
	if cfg.Lock == nil {
		panic("pushpublisher: Lock is required")
	}
	if cfg.PartitionKeyOf == nil {
		cfg.PartitionKeyOf = func(item T) string { return workitem.PartitionKey(item) }
	}
	cfg.Logger = logging.OrDiscard(cfg.Logger)

	return &Publisher[T]{
		cfg:   cfg,
		sinks: make(map[int]chan source.Emission[T]),
	}
}

// Subscribe registers a new consumer and returns the channel it receives
// gated items on. Unlike PollingPublisher, Subscribe does not start any
// production of its own - items only flow once Offer is called. The
// channel is closed when ctx is done.
func (p *Publisher[T]) Subscribe(ctx context.Context) <-chan source.Emission[T] {
	out := make(chan source.Emission[T])

	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.sinks[id] = out
	p.mu.Unlock()

	go func() {
		<-ctx.Done()
		p.mu.Lock()
		delete(p.sinks, id)
		p.mu.Unlock()
		close(out)
	}()

	return out
}

// Offer delivers one externally-decoded item into the pipeline. It
// returns true if the item cleared the filter and partition gate and was
// forwarded to at least one subscriber; false if it was filtered out,
// failed to acquire its partition lock, or there was no subscriber to
// receive it. ctx bounds how long Offer will wait for a subscriber to
// accept the item; Offer does not wait for the item to finish processing.
func (p *Publisher[T]) Offer(ctx context.Context, item T) bool {
	if p.cfg.ItemFilter != nil && !p.cfg.ItemFilter(item) {
		return false
	}

	key := p.cfg.PartitionKeyOf(item)
	if !p.cfg.Lock.TryAcquire(key) {
		return false
	}

	p.mu.RLock()
	sinks := make([]chan source.Emission[T], 0, len(p.sinks))
	for _, sink := range p.sinks {
		sinks = append(sinks, sink)
	}
	p.mu.RUnlock()

	if len(sinks) == 0 {
		p.cfg.Logger.WithField("partition_key", key).Debug("pushpublisher: no subscriber, dropping item")
		p.cfg.Lock.Release(key)
		return false
	}

	var once sync.Once
	release := func(error) { once.Do(func() { p.cfg.Lock.Release(key) }) }

	delivered := false
	for _, sink := range sinks {
		emission := source.Emission[T]{Item: item, Done: release}
		select {
		case sink <- emission:
			delivered = true
		case <-ctx.Done():
		}
	}

	if !delivered {
		release(nil)
	}

	return delivered
}
