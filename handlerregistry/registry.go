package handlerregistry

import (
	"context"
	"fmt"

	"github.com/cfedersp/review-pipeline/errs"
	"github.com/cfedersp/review-pipeline/workitem"
)

type (
	// Handler is one processing strategy, advertising the type tag it
	// handles. Handle receives the full item (not just payload/clientId) so
	// strategies can reach accountId, operation, and the poll-source
	// MarkProcessed hook where relevant - a handler, not the registry or
	// the dispatcher, owns deciding when an item counts as processed.
	Handler interface {
		TypeTag() string
		Handle(ctx context.Context, item workitem.WorkItem) error
	}

	// HandlerFunc adapts a plain function to the Handler interface for a
	// fixed type tag.
	HandlerFunc struct {
		Tag string
		Fn  func(ctx context.Context, item workitem.WorkItem) error
	}

	// Registry is an immutable-after-construction mapping from type tag to
	// Handler. The zero value is not usable - construct with NewRegistry.
	Registry struct {
		handlers map[string]Handler
	}
)

func (h HandlerFunc) TypeTag() string { return h.Tag }

func (h HandlerFunc) Handle(ctx context.Context, item workitem.WorkItem) error {
	return h.Fn(ctx, item)
}

// NewRegistry constructs a Registry from a set of handlers. Duplicate type
// tags are a fatal configuration error and panic - this is a startup-time
// invariant, not a runtime condition callers should recover from.
func NewRegistry(handlers ...Handler) *Registry {
	byTag := make(map[string]Handler, len(handlers))
	for _, h := range handlers {
		tag := h.TypeTag()
		if _, exists := byTag[tag]; exists {
			panic(fmt.Sprintf("handlerregistry: duplicate type tag %q", tag))
		}
		byTag[tag] = h
	}
	return &Registry{handlers: byTag}
}

// Dispatch looks up the handler bound to item's type tag and invokes it.
// Lookups are lock-free (the map is never mutated after construction). A
// missing binding fails with *errs.UnknownTypeError, wrapping neither a
// handler error nor a registry error - the dispatcher's errorObserver sees
// this the same way it sees any other handler failure.
func (r *Registry) Dispatch(ctx context.Context, item workitem.WorkItem) error {
	h, ok := r.handlers[item.TypeTag]
	if !ok {
		return &errs.UnknownTypeError{TypeTag: item.TypeTag}
	}

	if err := h.Handle(ctx, item); err != nil {
		return &errs.HandlerError{TypeTag: item.TypeTag, Err: err}
	}

	return nil
}

// Len reports the number of registered type tags.
func (r *Registry) Len() int {
	return len(r.handlers)
}
