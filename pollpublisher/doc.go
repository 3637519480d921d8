// Package pollpublisher turns a blocking "fetch one or batch" function
// into a lazy, restartable, partition-gated stream of source.Emission
// values.
//
// Each Subscribe call starts an independent polling loop (a cold stream):
// a logical clock ticks at PollInterval starting immediately, each tick
// runs Fetch on a blockingpool.Pool, and if the previous tick's fetch
// hasn't finished the new tick is dropped rather than queued. Resulting
// batches are filtered, grouped by partition key, and gated through a
// partitionlock.Registry one group at a time - release runs only once the
// group's last item's completion signal fires.
package pollpublisher
