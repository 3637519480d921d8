// Package partitionlock implements the in-memory mutual-exclusion gate that
// prevents concurrent processing of work sharing the same partition key
// (clientId:accountId:operation).
//
// There is no fairness, queueing, or TTL - a caller that fails to acquire a
// key must retry on its own schedule. Lock cells are created lazily and
// never removed; cardinality is bounded only by the number of distinct keys
// ever seen. Cell eviction is deliberately left unresolved here - Len is
// exposed so an operator can build an external sweep on top of it.
package partitionlock
