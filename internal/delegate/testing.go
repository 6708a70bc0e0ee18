package delegate

import (
	"context"
	"sync"
)

// FakeDispatcher is a scriptable Dispatcher for tests. Handlers are
// keyed by operation; unhandled operations return Err (or an empty
// response when Err is nil).
type FakeDispatcher struct {
	mu       sync.Mutex
	Handlers map[Operation]func(Request) (*Response, error)
	Err      error
	Calls    []Request
}

// NewFakeDispatcher creates an empty fake.
func NewFakeDispatcher() *FakeDispatcher {
	return &FakeDispatcher{Handlers: make(map[Operation]func(Request) (*Response, error))}
}

// Handle scripts a response for one operation.
func (f *FakeDispatcher) Handle(op Operation, fn func(Request) (*Response, error)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Handlers[op] = fn
}

// Dispatch implements Dispatcher.
func (f *FakeDispatcher) Dispatch(ctx context.Context, req Request) (*Response, error) {
	f.mu.Lock()
	f.Calls = append(f.Calls, req)
	fn := f.Handlers[req.Operation]
	f.mu.Unlock()

	if fn != nil {
		return fn(req)
	}
	if f.Err != nil {
		return nil, f.Err
	}
	return &Response{Data: map[string]interface{}{}}, nil
}

// CallCount returns how many times an operation was dispatched.
func (f *FakeDispatcher) CallCount(op Operation) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.Calls {
		if c.Operation == op {
			n++
		}
	}
	return n
}
