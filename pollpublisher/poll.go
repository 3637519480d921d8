package pollpublisher

import (
	"context"
	"sync"
	"time"

	"github.com/cfedersp/review-pipeline/errs"
	"github.com/cfedersp/review-pipeline/internal/blockingpool"
	"github.com/cfedersp/review-pipeline/logging"
	"github.com/cfedersp/review-pipeline/partitionlock"
	"github.com/cfedersp/review-pipeline/source"
	"github.com/cfedersp/review-pipeline/workitem"
)

type (
	// Fetch retrieves the next batch from whatever blocking data source it
	// wraps. It may legally return a nil or empty batch, and is expected to
	// be called repeatedly and idempotently: the same unprocessed item may
	// be returned across ticks until some external collaborator marks it
	// processed.
	Fetch[T workitem.Item] func(ctx context.Context) ([]T, error)

	// Config configures a Publisher. Zero-valued optional fields fall back
	// to the defaults documented on each field. Fetch and Lock are
	// required; NewPublisher panics if either is nil.
	Config[T workitem.Item] struct {
		// PollInterval is the duration between successive Fetch calls.
		// Defaults to 5s.
		PollInterval time.Duration

		// Fetch is the blocking fetch function. Required.
		Fetch Fetch[T]

		// Lock gates emitted items by partition key. Required.
		Lock *partitionlock.Registry

		// PartitionKeyOf derives the partition key for an item. Defaults
		// to workitem.PartitionKey.
		PartitionKeyOf func(T) string

		// BatchObserver is a side-effect hook invoked once per non-empty
		// fetched batch, before filtering.
		BatchObserver func(batch []T)

		// ItemFilter drops items (before the partition gate) for which it
		// returns false. Defaults to accepting everything.
		ItemFilter func(item T) bool

		// ContinueOnError controls behavior when Fetch returns an error: if
		// true (the default), the tick is dropped and polling continues;
		// if false, the stream terminates: its channel is closed, and the
		// error itself is reported only to ErrorObserver and the Logger,
		// not through the channel.
		ContinueOnError *bool

		// ErrorObserver is a side-effect hook invoked with every
		// *errs.FetchError produced by Fetch.
		ErrorObserver func(error)

		// BlockingExecutor is where Fetch runs. Defaults to a
		// privately-owned blockingpool.Pool sized for one concurrent
		// fetch plus headroom.
		BlockingExecutor *blockingpool.Pool

		// Logger receives debug/warn/error events. Defaults to
		// logging.Discard.
		Logger logging.Logger
	}

	// Publisher is a PollingPublisher<T>: a lazy, restartable, gated
	// stream factory built from a Config. The zero value is not usable -
	// construct with NewPublisher.
	Publisher[T workitem.Item] struct {
		cfg      Config[T]
		ownsPool bool
	}

	partitionGroup[T workitem.Item] struct {
		key   string
		items []T
	}
)

// NewPublisher validates cfg and constructs a Publisher. cfg.Fetch and
// cfg.Lock are required; a missing required field panics.
func NewPublisher[T workitem.Item](cfg Config[T]) *Publisher[T] {
	if cfg.Fetch == nil {
		panic("pollpublisher: Fetch is required")
	}
	if cfg.Lock == nil {
		panic("pollpublisher: Lock is required")
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.PartitionKeyOf == nil {
		cfg.PartitionKeyOf = func(item T) string { return workitem.PartitionKey(item) }
	}
	cfg.Logger = logging.OrDiscard(cfg.Logger)

	ownsPool := cfg.BlockingExecutor == nil
	if ownsPool {
		cfg.BlockingExecutor = blockingpool.New(2)
	}

	return &Publisher[T]{cfg: cfg, ownsPool: ownsPool}
}

// Close releases the privately-owned blocking executor, if NewPublisher
// created one because no BlockingExecutor was configured. It is a no-op if
// the caller supplied their own executor - ownership, and therefore
// lifecycle, remains with the caller in that case.
func (p *Publisher[T]) Close() {
	if p.ownsPool {
		p.cfg.BlockingExecutor.Close()
	}
}

func (p *Publisher[T]) continueOnError() bool {
	return p.cfg.ContinueOnError == nil || *p.cfg.ContinueOnError
}

// Subscribe starts a new, independent polling loop (a cold stream) and
// returns the channel it emits gated items on. The channel is closed once
// the loop has fully stopped, either because ctx was cancelled or
// because a fatal fetch error terminated it (continueOnError=false).
func (p *Publisher[T]) Subscribe(ctx context.Context) <-chan source.Emission[T] {
	out := make(chan source.Emission[T])
	ctx, cancel := context.WithCancel(ctx)
	go p.run(ctx, cancel, out)
	return out
}

func (p *Publisher[T]) run(ctx context.Context, cancel context.CancelFunc, out chan<- source.Emission[T]) {
	defer close(out)
	defer cancel()

	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	var wg sync.WaitGroup
	defer wg.Wait()

	// busy holds a single token when no fetch is currently running; taking
	// it gates a new tick, putting it back (via the goroutine's defer)
	// makes the next tick eligible. A tick that arrives while the token is
	// out is dropped, never queued.
	busy := make(chan struct{}, 1)
	busy <- struct{}{}

	doTick := func() {
		select {
		case <-busy:
		default:
			p.cfg.Logger.Warn("pollpublisher: dropped tick, previous fetch still in flight")
			return
		}

		wg.Add(1)
		p.cfg.BlockingExecutor.Go(func() {
			defer wg.Done()
			defer func() { busy <- struct{}{} }()
			p.fetchAndEmit(ctx, cancel, out)
		})
	}

	doTick() // tick 0, at t=0

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			doTick()
		}
	}
}

func (p *Publisher[T]) fetchAndEmit(ctx context.Context, cancel context.CancelFunc, out chan<- source.Emission[T]) {
	batch, err := p.cfg.Fetch(ctx)
	if err != nil {
		fetchErr := &errs.FetchError{Err: err}
		p.cfg.Logger.WithError(err).Error("pollpublisher: fetch failed")
		if p.cfg.ErrorObserver != nil {
			p.cfg.ErrorObserver(fetchErr)
		}
		if !p.continueOnError() {
			cancel()
		}
		return
	}

	if len(batch) == 0 {
		return
	}

	if p.cfg.BatchObserver != nil {
		p.cfg.BatchObserver(batch)
	}

	for _, group := range groupByPartitionKey(batch, p.cfg.PartitionKeyOf) {
		if ctx.Err() != nil {
			return
		}

		var filtered []T
		for _, item := range group.items {
			if p.cfg.ItemFilter == nil || p.cfg.ItemFilter(item) {
				filtered = append(filtered, item)
			}
		}
		if len(filtered) == 0 {
			continue
		}

		if !p.cfg.Lock.TryAcquire(group.key) {
			continue // already held elsewhere; the whole group is dropped for this tick
		}

		p.emitGroup(ctx, out, group.key, filtered)
	}
}

// emitGroup sends each item of one partition group downstream in order,
// waiting for each item's completion signal before sending the next - the
// lock is held for the whole group, so at most one of its items is ever
// in flight downstream at a time.
func (p *Publisher[T]) emitGroup(ctx context.Context, out chan<- source.Emission[T], key string, items []T) {
	defer p.cfg.Lock.Release(key)

	for _, item := range items {
		doneCh := make(chan struct{})
		var once sync.Once
		emission := source.Emission[T]{
			Item: item,
			Done: func(error) { once.Do(func() { close(doneCh) }) },
		}

		select {
		case out <- emission:
		case <-ctx.Done():
			return
		}

		// The consumer (typically a Dispatcher) guarantees Done fires
		// exactly once, even for items cancelled before their handler
		// ever runs - see the source.Source contract.
		<-doneCh
	}
}

func groupByPartitionKey[T workitem.Item](batch []T, keyOf func(T) string) []partitionGroup[T] {
	index := make(map[string]int, len(batch))
	var groups []partitionGroup[T]

	for _, item := range batch {
		key := keyOf(item)
		if i, ok := index[key]; ok {
			groups[i].items = append(groups[i].items, item)
			continue
		}
		index[key] = len(groups)
		groups = append(groups, partitionGroup[T]{key: key, items: []T{item}})
	}

	return groups
}
