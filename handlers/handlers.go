package handlers

import (
	"context"
	"fmt"

	"github.com/cfedersp/review-pipeline/logging"
	"github.com/cfedersp/review-pipeline/workitem"
)

type (
	// Fetcher performs the long-running, idempotent work a Download handler
	// stands in front of - fetching and storing whatever item.Payload
	// references. Swap in a real implementation (HTTP client, object store
	// writer, ...) at construction.
	Fetcher func(ctx context.Context, item workitem.WorkItem) error

	// Download is the handlerregistry.Handler typically bound to the
	// dispatcher's download lane. It runs Fetch, and on success invokes
	// item.MarkProcessed if the item carries one - the mark-processed side
	// effect belongs to the handler, not the dispatcher or registry.
	Download struct {
		Tag    string
		Fetch  Fetcher
		Logger logging.Logger
	}

	// Update is a short, side-effect-light handler for the parallel lane's
	// ordinary items. Apply does the actual work; Update wraps it with
	// logging consistent with Download.
	Update struct {
		Tag    string
		Apply  func(ctx context.Context, item workitem.WorkItem) error
		Logger logging.Logger
	}

	// Echo is a trivial handler, primarily useful in tests and the example
	// wiring: it records nothing of its own, succeeding unconditionally
	// unless Err is set.
	Echo struct {
		Tag string
		Err error
	}
)

func (h Download) TypeTag() string { return h.Tag }

func (h Download) Handle(ctx context.Context, item workitem.WorkItem) error {
	log := logging.WithWorkItem(logging.OrDiscard(h.Logger), item)

	if err := h.Fetch(ctx, item); err != nil {
		log.WithError(err).Error("handlers: download fetch failed")
		return err
	}

	if item.MarkProcessed == nil {
		return nil
	}
	if err := item.MarkProcessed(ctx); err != nil {
		log.WithError(err).Error("handlers: mark processed failed after successful download")
		return fmt.Errorf("mark processed: %w", err)
	}
	return nil
}

func (h Update) TypeTag() string { return h.Tag }

func (h Update) Handle(ctx context.Context, item workitem.WorkItem) error {
	if err := h.Apply(ctx, item); err != nil {
		logging.WithWorkItem(logging.OrDiscard(h.Logger), item).WithError(err).Warn("handlers: update failed")
		return err
	}
	return nil
}

func (h Echo) TypeTag() string { return h.Tag }

func (h Echo) Handle(context.Context, workitem.WorkItem) error {
	return h.Err
}
