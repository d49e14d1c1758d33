package core

// ResponseMeta carries transport details of a delivered value.
type ResponseMeta struct {
	StatusCode int
	Headers    map[string]string
}

type Response[T any] struct {
	Body T
	Meta ResponseMeta
}

// Callback is the result sink of asynchronous operations.
type Callback[T any] interface {
	Succeeded(result Response[T])
	Failed(err error)
}

// CallbackFuncs adapts plain functions to Callback. Nil funcs are skipped.
type CallbackFuncs[T any] struct {
	OnSuccess func(Response[T])
	OnFailure func(error)
}

func (c CallbackFuncs[T]) Succeeded(result Response[T]) {
	if c.OnSuccess != nil {
		c.OnSuccess(result)
	}
}

func (c CallbackFuncs[T]) Failed(err error) {
	if c.OnFailure != nil {
		c.OnFailure(err)
	}
}

// Result is the outcome flowing through a forwarding layer.
type Result[T any] struct {
	Value Response[T]
	Err   error
}

func (r Result[T]) Failed() bool {
	return r.Err != nil
}

func deliver[T any](callback Callback[T], result Result[T]) {
	if callback == nil {
		return
	}
	if result.Err != nil {
		callback.Failed(result.Err)
		return
	}
	callback.Succeeded(result.Value)
}
