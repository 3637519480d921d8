// Package blockingpool implements the bounded-but-growable worker pool a
// PollingPublisher runs its blocking fetch function on. A fixed set of
// always-on workers absorbs the common case; when all of them are busy,
// Go spawns a transient goroutine rather than queueing, so one
// publisher's slow fetch never starves another publisher's tick.
package blockingpool
