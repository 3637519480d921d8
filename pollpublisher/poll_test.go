package pollpublisher

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cfedersp/review-pipeline/partitionlock"
	"github.com/cfedersp/review-pipeline/workitem"
	"github.com/stretchr/testify/require"
)

func item(id, client, account, op string) workitem.WorkItem {
	return workitem.WorkItem{ID: id, ClientID: client, AccountID: account, Operation: op}
}

func TestPublisher_EmptyBatchProducesNoEmissions(t *testing.T) {
	lock := partitionlock.NewRegistry(nil)
	calls := int32(0)
	p := NewPublisher(Config[workitem.WorkItem]{
		PollInterval: 10 * time.Millisecond,
		Lock:         lock,
		Fetch: func(ctx context.Context) ([]workitem.WorkItem, error) {
			atomic.AddInt32(&calls, 1)
			return nil, nil
		},
	})
	defer p.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()

	ch := p.Subscribe(ctx)

	var received int
	for range ch {
		received++
	}

	require.Equal(t, 0, received)
	require.GreaterOrEqual(t, int(atomic.LoadInt32(&calls)), 2)
}

func TestPublisher_EmitsFetchedItemsAndReleasesLockOnDone(t *testing.T) {
	lock := partitionlock.NewRegistry(nil)
	var fetched int32
	p := NewPublisher(Config[workitem.WorkItem]{
		PollInterval: 10 * time.Millisecond,
		Lock:         lock,
		Fetch: func(ctx context.Context) ([]workitem.WorkItem, error) {
			if atomic.AddInt32(&fetched, 1) == 1 {
				return []workitem.WorkItem{item("1", "c", "a", "update")}, nil
			}
			return nil, nil
		},
	})
	defer p.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := p.Subscribe(ctx)

	emission, ok := <-ch
	require.True(t, ok)
	require.Equal(t, "1", emission.Item.ID)
	require.False(t, lock.TryAcquire("c:a:update")) // still held, not yet Done

	emission.Done(nil)

	// give the publisher goroutine a moment to release after Done.
	require.Eventually(t, func() bool {
		return lock.TryAcquire("c:a:update")
	}, time.Second, time.Millisecond)
}

func TestPublisher_SamePartitionKeyItemsAreSerialized(t *testing.T) {
	lock := partitionlock.NewRegistry(nil)
	batch := []workitem.WorkItem{
		item("1", "c", "a", "update"),
		item("2", "c", "a", "update"),
		item("3", "c", "a", "update"),
	}

	p := NewPublisher(Config[workitem.WorkItem]{
		PollInterval: time.Hour, // only tick 0 fires within the test
		Lock:         lock,
		Fetch: func(ctx context.Context) ([]workitem.WorkItem, error) {
			return batch, nil
		},
	})
	defer p.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := p.Subscribe(ctx)

	var order []string
	var mu sync.Mutex
	for i := 0; i < len(batch); i++ {
		e, ok := <-ch
		require.True(t, ok)
		mu.Lock()
		order = append(order, e.Item.ID)
		mu.Unlock()
		// hold the lock a moment before acknowledging, to prove no
		// concurrent emission of the same key is possible.
		require.False(t, lock.TryAcquire("c:a:update"))
		e.Done(nil)
	}

	require.Equal(t, []string{"1", "2", "3"}, order)
}

func TestPublisher_DroppedGroupOnFailedAcquire(t *testing.T) {
	lock := partitionlock.NewRegistry(nil)
	require.True(t, lock.TryAcquire("c:a:update")) // pre-held by someone else

	p := NewPublisher(Config[workitem.WorkItem]{
		PollInterval: time.Hour,
		Lock:         lock,
		Fetch: func(ctx context.Context) ([]workitem.WorkItem, error) {
			return []workitem.WorkItem{item("1", "c", "a", "update")}, nil
		},
	})
	defer p.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	ch := p.Subscribe(ctx)

	var received int
	for range ch {
		received++
	}
	require.Equal(t, 0, received)
}

func TestPublisher_ItemFilterDropsBeforeGate(t *testing.T) {
	lock := partitionlock.NewRegistry(nil)
	p := NewPublisher(Config[workitem.WorkItem]{
		PollInterval: time.Hour,
		Lock:         lock,
		Fetch: func(ctx context.Context) ([]workitem.WorkItem, error) {
			return []workitem.WorkItem{item("1", "c", "a", "update")}, nil
		},
		ItemFilter: func(workitem.WorkItem) bool { return false },
	})
	defer p.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	ch := p.Subscribe(ctx)

	var received int
	for range ch {
		received++
	}
	require.Equal(t, 0, received)
	require.True(t, lock.TryAcquire("c:a:update")) // never acquired
}

func TestPublisher_ContinueOnErrorKeepsPolling(t *testing.T) {
	lock := partitionlock.NewRegistry(nil)
	var calls int32
	var errObserved int32
	continueOnError := true
	p := NewPublisher(Config[workitem.WorkItem]{
		PollInterval:    10 * time.Millisecond,
		Lock:            lock,
		ContinueOnError: &continueOnError,
		Fetch: func(ctx context.Context) ([]workitem.WorkItem, error) {
			atomic.AddInt32(&calls, 1)
			return nil, errors.New("transient")
		},
		ErrorObserver: func(error) { atomic.AddInt32(&errObserved, 1) },
	})
	defer p.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	ch := p.Subscribe(ctx)
	for range ch {
	}

	require.GreaterOrEqual(t, int(atomic.LoadInt32(&calls)), 2)
	require.GreaterOrEqual(t, int(atomic.LoadInt32(&errObserved)), 2)
}

func TestPublisher_TerminatesOnFatalError(t *testing.T) {
	lock := partitionlock.NewRegistry(nil)
	var calls int32
	notContinue := false
	p := NewPublisher(Config[workitem.WorkItem]{
		PollInterval:    5 * time.Millisecond,
		Lock:            lock,
		ContinueOnError: &notContinue,
		Fetch: func(ctx context.Context) ([]workitem.WorkItem, error) {
			atomic.AddInt32(&calls, 1)
			return nil, errors.New("fatal")
		},
	})
	defer p.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	ch := p.Subscribe(ctx)

	deadline := time.After(500 * time.Millisecond)
	closed := false
loop:
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				closed = true
				break loop
			}
		case <-deadline:
			break loop
		}
	}

	require.True(t, closed, "stream should terminate after a fatal fetch error")
	require.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestPublisher_BackpressureDropsTicksDuringSlowFetch(t *testing.T) {
	lock := partitionlock.NewRegistry(nil)
	var calls int32
	release := make(chan struct{})
	p := NewPublisher(Config[workitem.WorkItem]{
		PollInterval: 15 * time.Millisecond,
		Lock:         lock,
		Fetch: func(ctx context.Context) ([]workitem.WorkItem, error) {
			n := atomic.AddInt32(&calls, 1)
			if n == 1 {
				<-release // block well past several ticks
			}
			return nil, nil
		},
	})
	defer p.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := p.Subscribe(ctx)

	time.Sleep(120 * time.Millisecond) // several ticks would have fired
	close(release)

	cancel()
	for range ch {
	}

	// only the slow fetch plus at most two more (ticks racing the release
	// and the cancel) should have been allowed to run; intervening ticks
	// were dropped, not queued.
	require.LessOrEqual(t, int(atomic.LoadInt32(&calls)), 3)
}

func TestPublisher_RestartProducesIndependentLoop(t *testing.T) {
	lock := partitionlock.NewRegistry(nil)
	p := NewPublisher(Config[workitem.WorkItem]{
		PollInterval: time.Hour,
		Lock:         lock,
		Fetch: func(ctx context.Context) ([]workitem.WorkItem, error) {
			return []workitem.WorkItem{item("1", "c", "a", "update")}, nil
		},
	})
	defer p.Close()

	ctx1, cancel1 := context.WithCancel(context.Background())
	ch1 := p.Subscribe(ctx1)
	e1 := <-ch1
	e1.Done(nil)
	cancel1()
	for range ch1 {
	}

	require.True(t, lock.TryAcquire("c:a:update"))
	lock.Release("c:a:update")

	ctx2, cancel2 := context.WithCancel(context.Background())
	defer cancel2()
	ch2 := p.Subscribe(ctx2)
	e2 := <-ch2
	require.Equal(t, "1", e2.Item.ID)
	e2.Done(nil)
}
