package dispatcher

import (
	"context"
	"errors"
	"sync"

	"github.com/cfedersp/review-pipeline/errs"
	"github.com/cfedersp/review-pipeline/logging"
	"github.com/cfedersp/review-pipeline/source"
	"github.com/cfedersp/review-pipeline/workitem"
	"golang.org/x/sync/semaphore"
)

type (
	// Process invokes whatever processing a WorkItem-like value requires,
	// typically wired to a handlerregistry.Registry's Dispatch method.
	Process[T workitem.Item] func(ctx context.Context, item T) error

	// Outcome is the per-item result delivered on the channel returned by
	// Start: either the item completed its handler successfully, or Err
	// describes why it didn't.
	Outcome[T workitem.Item] struct {
		Item T
		Err  error
	}

	// Config configures a Dispatcher. Sources and Process are required;
	// New panics if either is missing.
	Config[T workitem.Item] struct {
		// Sources are merged into one stream; cross-source order is
		// unspecified, but each source's internal order is preserved.
		Sources []source.Source[T]

		// Process runs one item's handler and reports its outcome.
		// Required.
		Process Process[T]

		// MaxConcurrency is the global cap on simultaneously-running
		// Process invocations, across every lane of every account.
		// Defaults to 10.
		MaxConcurrency int

		// PreObserver is invoked for every item as soon as it's received,
		// before any concurrency gating.
		PreObserver func(item T)

		// SuccessObserver is invoked after a successful Process call.
		SuccessObserver func(item T)

		// ErrorObserver is invoked after a failed Process call, including
		// *errs.UnknownTypeError failures.
		ErrorObserver func(item T, err error)

		// ContinueOnError controls behavior on handler failure: if true
		// (the default), the error is swallowed (after ErrorObserver
		// runs) and the dispatcher keeps running; if false, the
		// dispatcher cancels itself. *errs.UnknownTypeError is never
		// fatal regardless of this setting - a single unregistered type
		// tag should never take down processing for every other item.
		ContinueOnError *bool

		// Logger receives debug/warn/error events. Defaults to
		// logging.Discard.
		Logger logging.Logger
	}

	// Dispatcher merges one or more source.Source streams and runs each
	// item through Process, routing download-operation items to a
	// strictly-serial per-account lane and everything else to its own
	// goroutine under a shared concurrency cap. The zero value is not
	// usable - construct with New.
	Dispatcher[T workitem.Item] struct {
		cfg Config[T]
		sem *semaphore.Weighted

		mu     sync.Mutex
		lanes  map[string]chan source.Emission[T]
		laneWG sync.WaitGroup
	}
)

// New validates cfg and constructs a Dispatcher.
func New[T workitem.Item](cfg Config[T]) *Dispatcher[T] {
	if len(cfg.Sources) == 0 {
		panic("dispatcher: at least one Source is required")
	}
	if cfg.Process == nil {
		panic("dispatcher: Process is required")
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 10
	}
	cfg.Logger = logging.OrDiscard(cfg.Logger)

	return &Dispatcher[T]{
		cfg:   cfg,
		sem:   semaphore.NewWeighted(int64(cfg.MaxConcurrency)),
		lanes: make(map[string]chan source.Emission[T]),
	}
}

func (d *Dispatcher[T]) continueOnError() bool {
	return d.cfg.ContinueOnError == nil || *d.cfg.ContinueOnError
}

// Start merges every configured Source, runs the full dispatch pipeline,
// and returns a channel of per-item Outcome values the caller must
// drain (this form is primarily useful for tests - see StartAsync for the
// fire-and-forget form). Cancelling ctx propagates to every Source,
// drains every in-flight handler invocation, releases every held
// partition lock, and then closes the returned channel.
func (d *Dispatcher[T]) Start(ctx context.Context) <-chan Outcome[T] {
	out := make(chan Outcome[T])
	go d.run(ctx, out)
	return out
}

// StartAsync is Start with a built-in consumer that logs failures and
// discards successes, for callers that drive behavior entirely off
// PreObserver/SuccessObserver/ErrorObserver and don't need the Outcome
// stream itself.
func (d *Dispatcher[T]) StartAsync(ctx context.Context) {
	out := d.Start(ctx)
	go func() {
		for o := range out {
			if o.Err != nil {
				logging.WithWorkItem(d.cfg.Logger, o.Item).WithError(o.Err).Error("dispatcher: item failed")
			}
		}
	}()
}

func (d *Dispatcher[T]) run(parent context.Context, out chan<- Outcome[T]) {
	defer close(out)

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	merged := d.mergeSources(ctx)

	var inflight sync.WaitGroup

	for emission := range merged {
		item := emission.Item

		if d.cfg.PreObserver != nil {
			d.cfg.PreObserver(item)
		}

		if ctx.Err() != nil {
			emission.Done(ctx.Err())
			continue
		}

		if workitem.IsDownload(item.GetOperation()) {
			// Enqueued synchronously, in this same goroutine, so that
			// items for one account are handed to its download lane in
			// exactly the order they were received - spawning a
			// goroutine per item here would race multiple senders
			// against the same lane channel and lose that ordering.
			d.enqueueDownload(ctx, emission, out, cancel)
			continue
		}

		inflight.Add(1)
		go func(e source.Emission[T]) {
			defer inflight.Done()
			d.runItem(ctx, e, out, cancel)
		}(emission)
	}

	inflight.Wait()
	d.closeLanes()
	d.laneWG.Wait()
}

// mergeSources fans every configured Source in, preserving each source's
// internal order while interleaving across sources.
func (d *Dispatcher[T]) mergeSources(ctx context.Context) <-chan source.Emission[T] {
	merged := make(chan source.Emission[T])

	var wg sync.WaitGroup
	wg.Add(len(d.cfg.Sources))
	for _, src := range d.cfg.Sources {
		go func(ch <-chan source.Emission[T]) {
			defer wg.Done()
			for e := range ch {
				select {
				case merged <- e:
				case <-ctx.Done():
					e.Done(ctx.Err())
				}
			}
		}(src.Subscribe(ctx))
	}

	go func() {
		wg.Wait()
		close(merged)
	}()

	return merged
}

// laneBufferSize bounds how many download-lane items for a single account
// may be pending behind the one currently running, so that enqueueDownload
// does not block the main merge loop (and thereby stall unrelated
// accounts) until that many are pending, while still capping memory use
// per account.
const laneBufferSize = 4096

// enqueueDownload sends e into the strictly-serial lane for its account,
// creating that lane's worker goroutine on first use. Download-lane
// concurrency is exactly 1 per account, regardless of MaxConcurrency.
func (d *Dispatcher[T]) enqueueDownload(ctx context.Context, e source.Emission[T], out chan<- Outcome[T], cancel context.CancelFunc) {
	lane := d.laneFor(e.Item.GetAccountID(), ctx, out, cancel)

	select {
	case lane <- e:
	case <-ctx.Done():
		e.Done(ctx.Err())
	}
}

func (d *Dispatcher[T]) laneFor(account string, ctx context.Context, out chan<- Outcome[T], cancel context.CancelFunc) chan<- source.Emission[T] {
	d.mu.Lock()
	defer d.mu.Unlock()

	if ch, ok := d.lanes[account]; ok {
		return ch
	}

	ch := make(chan source.Emission[T], laneBufferSize)
	d.lanes[account] = ch

	d.laneWG.Add(1)
	go func() {
		defer d.laneWG.Done()
		for e := range ch {
			// one at a time, in arrival order: the next item is only
			// read once runItem (including its handler invocation) has
			// fully returned.
			d.runItem(ctx, e, out, cancel)
		}
	}()

	return ch
}

func (d *Dispatcher[T]) closeLanes() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, ch := range d.lanes {
		close(ch)
	}
}

// runItem is the shared terminal step for both lanes: acquire the global
// permit, run Process, release the permit and the partition lock on every
// exit path, and fan the result out to the observers and Outcome channel.
func (d *Dispatcher[T]) runItem(ctx context.Context, e source.Emission[T], out chan<- Outcome[T], cancel context.CancelFunc) {
	if ctx.Err() != nil {
		// CANCELLED: no handler call, permit never taken, lock released.
		e.Done(ctx.Err())
		return
	}

	if err := d.sem.Acquire(ctx, 1); err != nil {
		e.Done(err)
		return
	}
	defer d.sem.Release(1)

	err := d.cfg.Process(ctx, e.Item)
	e.Done(err)

	if err != nil {
		if d.cfg.ErrorObserver != nil {
			d.cfg.ErrorObserver(e.Item, err)
		}

		var unknownType *errs.UnknownTypeError
		fatal := !d.continueOnError() && !errors.As(err, &unknownType)
		if fatal {
			cancel()
		}

		sendOutcome(out, Outcome[T]{Item: e.Item, Err: err})
		return
	}

	if d.cfg.SuccessObserver != nil {
		d.cfg.SuccessObserver(e.Item)
	}
	sendOutcome(out, Outcome[T]{Item: e.Item})
}

func sendOutcome[T workitem.Item](out chan<- Outcome[T], o Outcome[T]) {
	if out == nil {
		return
	}
	out <- o
}
