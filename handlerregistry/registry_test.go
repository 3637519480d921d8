package handlerregistry

import (
	"context"
	"errors"
	"testing"

	"github.com/cfedersp/review-pipeline/errs"
	"github.com/cfedersp/review-pipeline/workitem"
	"github.com/stretchr/testify/require"
)

func TestRegistry_DispatchSuccess(t *testing.T) {
	var called workitem.WorkItem
	r := NewRegistry(HandlerFunc{
		Tag: "echo",
		Fn: func(ctx context.Context, item workitem.WorkItem) error {
			called = item
			return nil
		},
	})

	item := workitem.WorkItem{ID: "1", TypeTag: "echo"}
	require.NoError(t, r.Dispatch(context.Background(), item))
	require.Equal(t, item, called)
}

func TestRegistry_DispatchHandlerFailure(t *testing.T) {
	sentinel := errors.New("boom")
	r := NewRegistry(HandlerFunc{
		Tag: "explode",
		Fn: func(ctx context.Context, item workitem.WorkItem) error {
			return sentinel
		},
	})

	err := r.Dispatch(context.Background(), workitem.WorkItem{TypeTag: "explode"})
	require.Error(t, err)

	var handlerErr *errs.HandlerError
	require.ErrorAs(t, err, &handlerErr)
	require.Equal(t, "explode", handlerErr.TypeTag)
	require.ErrorIs(t, err, sentinel)
}

func TestRegistry_DispatchUnknownType(t *testing.T) {
	r := NewRegistry()

	err := r.Dispatch(context.Background(), workitem.WorkItem{TypeTag: "missing"})
	require.Error(t, err)

	var unknownErr *errs.UnknownTypeError
	require.ErrorAs(t, err, &unknownErr)
	require.Equal(t, "missing", unknownErr.TypeTag)
}

func TestNewRegistry_DuplicateTagPanics(t *testing.T) {
	noop := func(context.Context, workitem.WorkItem) error { return nil }

	require.Panics(t, func() {
		NewRegistry(
			HandlerFunc{Tag: "dup", Fn: noop},
			HandlerFunc{Tag: "dup", Fn: noop},
		)
	})
}

func TestRegistry_Len(t *testing.T) {
	noop := func(context.Context, workitem.WorkItem) error { return nil }
	r := NewRegistry(
		HandlerFunc{Tag: "a", Fn: noop},
		HandlerFunc{Tag: "b", Fn: noop},
	)
	require.Equal(t, 2, r.Len())
}
