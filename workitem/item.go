package workitem

import (
	"context"
	"strings"
)

type (
	// Item is the capability every heterogeneous source must provide: enough
	// to derive a partition key and to select the download lane. Concrete
	// sources (a database-backed review queue, a decoded subscription
	// message, ...) satisfy this by embedding or wrapping WorkItem - no
	// inheritance chain is required, just this one small interface.
	Item interface {
		GetClientID() string
		GetAccountID() string
		GetOperation() string
	}

	// WorkItem is the concrete, source-agnostic unit of processing. Sources
	// outside the core (see examples/reviewpipeline) construct these from
	// whatever native representation they poll or receive.
	WorkItem struct {
		// ID is opaque, and only required to be unique within one source.
		ID string

		// ClientID is the tenant/owner identifier.
		ClientID string

		// AccountID is the sub-owner, and the dispatcher's primary grouping
		// key.
		AccountID string

		// Operation is a free-form tag. The literal value "download"
		// (compared case-insensitively) selects the per-account download
		// lane; every other value uses the per-account parallel lane.
		Operation string

		// TypeTag selects the handlerregistry.Registry binding used to
		// process this item.
		TypeTag string

		// Payload is handed to the handler verbatim.
		Payload []byte

		// MarkProcessed is invoked by a handler (never by the dispatcher)
		// once processing has succeeded, for poll-sourced items whose
		// origin store tracks a processed flag. It is nil for items that
		// don't need it (e.g. push-sourced items, or in tests).
		MarkProcessed func(ctx context.Context) error
	}
)

var _ Item = WorkItem{}

func (w WorkItem) GetClientID() string  { return w.ClientID }
func (w WorkItem) GetAccountID() string { return w.AccountID }
func (w WorkItem) GetOperation() string { return w.Operation }

// PartitionKey derives the serialization domain for an item, exactly
// clientId + ":" + accountId + ":" + operation. The separator is the ASCII
// colon (U+003A). Components are compared byte-for-byte - this function
// must be the sole source of partition keys, so that heterogeneous sources
// (a polled review queue, a decoded subscription message) that happen to
// share client/account/operation always collide on the same key.
func PartitionKey(item Item) string {
	return item.GetClientID() + ":" + item.GetAccountID() + ":" + item.GetOperation()
}

// IsDownload reports whether operation selects the distinguished download
// lane. The comparison is case-insensitive, unlike partition key components.
func IsDownload(operation string) bool {
	return strings.EqualFold(operation, "download")
}
