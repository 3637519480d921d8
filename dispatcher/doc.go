// Package dispatcher implements the merge-and-dispatch engine: it fuses
// one or more source.Source streams, groups items by accountId, and within
// each account group routes operation=="download"
// items through a strictly serial lane while every other item runs in a
// bounded-parallel lane - both lanes share one global concurrency gate, so
// the dispatcher-wide in-flight handler count never exceeds MaxConcurrency
// regardless of how many accounts are active.
package dispatcher
