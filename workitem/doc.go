// Package workitem defines the unit of work moved through the review
// pipeline, and the partition key derivation shared by every source,
// publisher, and the dispatcher.
package workitem
