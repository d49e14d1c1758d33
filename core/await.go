package core

import (
	"context"
	"sync"
)

// Await runs start with a callback and blocks until the callback fires or ctx
// is done. An error returned by start is returned as is; callbacks delivered
// after ctx is done are dropped.
func Await[T any](ctx context.Context, start func(Callback[T]) error) (Response[T], error) {
	if start == nil {
		return Response[T]{}, NewInvalidArgumentError("core: await start func is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	results := make(chan Result[T], 1)
	var once sync.Once
	send := func(result Result[T]) {
		once.Do(func() {
			results <- result
		})
	}
	callback := CallbackFuncs[T]{
		OnSuccess: func(value Response[T]) { send(Result[T]{Value: value}) },
		OnFailure: func(err error) { send(Result[T]{Err: err}) },
	}
	if err := start(callback); err != nil {
		return Response[T]{}, err
	}
	select {
	case result := <-results:
		return result.Value, result.Err
	case <-ctx.Done():
		return Response[T]{}, ctx.Err()
	}
}
