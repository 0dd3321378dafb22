package jsbridge

import "github.com/dop251/goja"

// Promise is the handle to a pending, fulfilled or rejected computation
// inside the engine. The engine owns the underlying promise; the handle
// caches the outcome once observed so it survives the value's later life
// in the VM.
//
// A Promise never advances the event loop itself. Settlement is observed
// by calling Step after the driving Context has ticked the loop.
type Promise struct {
	p *goja.Promise

	done   bool
	result interface{}
	exc    error
}

func newPromise(p *goja.Promise) *Promise {
	return &Promise{p: p}
}

// IsDone returns true once the promise has been observed settled.
func (p *Promise) IsDone() bool { return p.done }

// Step checks whether the promise has settled and, the first time it has,
// caches the exported result or rejection. r is the runtime driving this
// promise; the caller must hold its Context's engine lock, since reading
// promise state and exporting the result enter the VM.
func (p *Promise) Step(r *Runtime) bool {
	if p.done {
		return true
	}
	switch p.p.State() {
	case goja.PromiseStatePending:
		return false
	case goja.PromiseStateFulfilled:
		p.result = exportValue(p.p.Result())
	case goja.PromiseStateRejected:
		p.exc = exceptionError(p.p.Result())
	}
	p.done = true
	return true
}

// Result returns the fulfilled value. Before settlement it fails with
// ErrNotSettled; after a rejection it returns the rejection error.
func (p *Promise) Result() (interface{}, error) {
	if !p.done {
		return nil, ErrNotSettled
	}
	if p.exc != nil {
		return nil, p.exc
	}
	return p.result, nil
}

// Exception returns the rejection error, nil if the promise fulfilled,
// and ErrNotSettled before settlement.
func (p *Promise) Exception() (error, error) {
	if !p.done {
		return nil, ErrNotSettled
	}
	return p.exc, nil
}
