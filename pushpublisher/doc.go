// Package pushpublisher implements a thin adapter around an
// externally-driven push source (e.g. a subscription callback), gating
// each delivered item through the same partitionlock.Registry a
// PollingPublisher uses, with no batching and no polling of its own.
package pushpublisher
