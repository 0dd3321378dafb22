package jsbridge

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/console"
	"github.com/dop251/goja_nodejs/require"
)

// Runtime wraps one goja virtual machine together with the timer layer the
// engine itself does not provide. The engine is single-threaded and is not
// re-entrant: every entry into the VM (evaluation, calls, ticks, promise
// inspection) must hold the owning Context's engine lock. Runtime performs
// no locking of its own.
type Runtime struct {
	vm   *goja.Runtime
	loop *Loop

	req     *require.RequireModule
	srcMu   sync.Mutex
	sources map[string][]byte

	// Promise.resolve bound to Promise, used to wrap plain return values
	// of async calls into settled promises.
	promiseResolve goja.Callable

	timeout     time.Duration
	maxHeapSize uint64
	currentDir  string
}

// NewRuntime creates a fresh engine instance. Each Runtime has its own
// heap, globals, module registry and timer queue; values cannot be shared
// between runtimes.
func NewRuntime(cfg config) (*Runtime, error) {
	r := &Runtime{
		vm:          goja.New(),
		loop:        NewLoop(),
		sources:     make(map[string][]byte),
		timeout:     cfg.timeout,
		maxHeapSize: cfg.maxHeapSize,
		currentDir:  cfg.currentDir,
	}
	if r.currentDir == "" {
		dir, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		r.currentDir = dir
	}
	if cfg.maxStackSize > 0 {
		r.vm.SetMaxCallStackSize(cfg.maxStackSize)
	}

	registry := require.NewRegistry(require.WithLoader(r.loadSource))
	r.req = registry.Enable(r.vm)
	console.Enable(r.vm)
	r.installTimers()

	v, err := r.vm.RunString(`Promise.resolve.bind(Promise)`)
	if err != nil {
		return nil, newJSError(err)
	}
	resolve, ok := goja.AssertFunction(v)
	if !ok {
		return nil, fmt.Errorf("jsbridge: Promise.resolve is not callable")
	}
	r.promiseResolve = resolve

	return r, nil
}

// Timeout returns the evaluation timeout, zero meaning unlimited.
func (r *Runtime) Timeout() time.Duration { return r.timeout }

// MaxHeapSize returns the configured heap ceiling. The embedded engine
// exposes no per-runtime heap accounting, so the value is recorded and
// surfaced but not enforced.
func (r *Runtime) MaxHeapSize() uint64 { return r.maxHeapSize }

// Loop returns the runtime's macro-task queue.
func (r *Runtime) Loop() *Loop { return r.loop }

// close drops all queued work. The VM itself is garbage collected.
func (r *Runtime) close() {
	r.loop.Stop()
}

// tick advances the event loop by one unit: the timer jobs due right now,
// plus the microtask cascade each of them triggers inside the engine.
// Returns whether more work remains queued. The first uncaught callback
// exception is reported after the whole snapshot has run.
func (r *Runtime) tick(opts advanceOptions) (bool, error) {
	var err error
	if opts.pumpMessageLoop {
		done := r.armWatchdog()
		_, err = r.loop.Run()
		done()
	}
	return r.loop.IsLoopPending(), err
}

// armWatchdog interrupts the VM if the current entry runs past the
// configured timeout. The returned func disarms it.
func (r *Runtime) armWatchdog() func() {
	if r.timeout <= 0 {
		return func() {}
	}
	t := time.AfterFunc(r.timeout, func() {
		r.vm.Interrupt(ErrTimeout)
	})
	return func() {
		t.Stop()
		r.vm.ClearInterrupt()
	}
}

// eval runs a chunk of code and exports its completion value.
func (r *Runtime) eval(code string) (interface{}, error) {
	done := r.armWatchdog()
	defer done()

	v, err := r.vm.RunString(code)
	if err != nil {
		return nil, newJSError(err)
	}
	return exportValue(v), nil
}

// getValue looks up a global by name.
func (r *Runtime) getValue(name string) (interface{}, error) {
	v := r.vm.Get(name)
	if v == nil || goja.IsUndefined(v) {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return exportValue(v), nil
}

// lookupFunction resolves a callable: a global function when this is nil,
// otherwise a property of this.
func (r *Runtime) lookupFunction(this *goja.Object, name string) (goja.Callable, error) {
	var v goja.Value
	if this == nil {
		v = r.vm.Get(name)
	} else {
		v = this.Get(name)
	}
	if v == nil || goja.IsUndefined(v) {
		return nil, fmt.Errorf("%w: function %q", ErrNotFound, name)
	}
	fn, ok := goja.AssertFunction(v)
	if !ok {
		return nil, fmt.Errorf("jsbridge: %q is not a function", name)
	}
	return fn, nil
}

// invoke calls fn under the evaluation watchdog.
func (r *Runtime) invoke(fn goja.Callable, this goja.Value, args []interface{}) (goja.Value, error) {
	done := r.armWatchdog()
	defer done()

	if this == nil {
		this = goja.Undefined()
	}
	v, err := fn(this, r.toValues(args)...)
	if err != nil {
		return nil, newJSError(err)
	}
	return v, nil
}

// toPromise returns the engine promise behind v, wrapping non-promise
// values via Promise.resolve so async calls always yield a handle.
func (r *Runtime) toPromise(v goja.Value) (*goja.Promise, error) {
	if p, ok := asPromise(v); ok {
		return p, nil
	}
	if v == nil {
		v = goja.Undefined()
	}
	wrapped, err := r.promiseResolve(goja.Undefined(), v)
	if err != nil {
		return nil, newJSError(err)
	}
	p, ok := asPromise(wrapped)
	if !ok {
		return nil, fmt.Errorf("jsbridge: Promise.resolve did not return a promise")
	}
	return p, nil
}

// registerSource makes an in-memory module visible to require.
func (r *Runtime) registerSource(filename string, contents []byte) {
	r.srcMu.Lock()
	defer r.srcMu.Unlock()
	r.sources[filename] = contents
}

// loadSource feeds the require registry: registered in-memory modules
// first, then the filesystem.
func (r *Runtime) loadSource(path string) ([]byte, error) {
	r.srcMu.Lock()
	src, ok := r.sources[path]
	if !ok {
		src, ok = r.sources[strings.TrimPrefix(path, "./")]
	}
	r.srcMu.Unlock()
	if ok {
		return src, nil
	}
	if !filepath.IsAbs(path) {
		if b, err := require.DefaultSourceLoader(filepath.Join(r.currentDir, path)); err == nil {
			return b, nil
		}
	}
	return require.DefaultSourceLoader(path)
}

// requireModule loads a CommonJS module and returns its exports object.
func (r *Runtime) requireModule(path string) (*goja.Object, error) {
	done := r.armWatchdog()
	defer done()

	v, err := r.req.Require(path)
	if err != nil {
		return nil, newJSError(err)
	}
	obj := v.ToObject(r.vm)
	if obj == nil {
		return nil, fmt.Errorf("jsbridge: module %q has no exports", path)
	}
	return obj, nil
}

// installTimers binds setTimeout/setInterval and friends onto the global
// object, backed by the loop. Callbacks never run here; they run on the
// tick that finds them due.
func (r *Runtime) installTimers() {
	vm := r.vm

	schedule := func(call goja.FunctionCall, interval bool) goja.Value {
		fn, ok := goja.AssertFunction(call.Argument(0))
		if !ok {
			panic(vm.NewTypeError("callback is not a function"))
		}
		delay := time.Duration(call.Argument(1).ToInteger()) * time.Millisecond
		if delay < 0 {
			delay = 0
		}
		var extra []goja.Value
		if len(call.Arguments) > 2 {
			extra = append(extra, call.Arguments[2:]...)
		}

		job := func() error {
			_, err := fn(goja.Undefined(), extra...)
			return newJSError(err)
		}
		every := time.Duration(0)
		if interval {
			every = delay
			if every <= 0 {
				every = time.Millisecond
			}
		}
		return vm.ToValue(r.loop.ScheduleJob(job, delay, every))
	}

	clearJob := func(call goja.FunctionCall) goja.Value {
		r.loop.ClearJob(call.Argument(0).ToInteger())
		return goja.Undefined()
	}

	vm.Set("setTimeout", func(call goja.FunctionCall) goja.Value {
		return schedule(call, false)
	})
	vm.Set("setInterval", func(call goja.FunctionCall) goja.Value {
		return schedule(call, true)
	})
	vm.Set("clearTimeout", clearJob)
	vm.Set("clearInterval", clearJob)

	// queueMicrotask is approximated as a zero-delay macro task: the
	// engine drains real microtasks on its own whenever the call stack
	// empties, so only host-visible scheduling goes through the loop.
	vm.Set("queueMicrotask", func(call goja.FunctionCall) goja.Value {
		fn, ok := goja.AssertFunction(call.Argument(0))
		if !ok {
			panic(vm.NewTypeError("callback is not a function"))
		}
		r.loop.ScheduleJob(func() error {
			_, err := fn(goja.Undefined())
			return newJSError(err)
		}, 0, 0)
		return goja.Undefined()
	})
}
