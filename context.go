package jsbridge

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

type config struct {
	timeout      time.Duration
	maxHeapSize  uint64
	maxStackSize int
	currentDir   string
	logger       *zap.Logger
	yield        YieldFunc
}

// Option configures a Context at construction time.
type Option func(*config)

// WithTimeout bounds each entry into the engine: evaluations, calls and
// individual ticks. Zero means unlimited. The timeout is an engine
// property, not a per-future timer.
func WithTimeout(d time.Duration) Option {
	return func(cfg *config) { cfg.timeout = d }
}

// WithMaxHeapSize records a heap ceiling for the engine. The embedded
// engine exposes no heap accounting, so the value is surfaced via
// Runtime.MaxHeapSize but not enforced.
func WithMaxHeapSize(bytes uint64) Option {
	return func(cfg *config) { cfg.maxHeapSize = bytes }
}

// WithMaxStackSize bounds the engine's call stack depth.
func WithMaxStackSize(size int) Option {
	return func(cfg *config) { cfg.maxStackSize = size }
}

// WithCurrentDir sets the directory relative module paths resolve against.
func WithCurrentDir(dir string) Option {
	return func(cfg *config) { cfg.currentDir = dir }
}

// WithLogger attaches a structured logger. The default is a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(cfg *config) { cfg.logger = l }
}

// YieldFunc hands control back to the host scheduler between polls. It
// returns an error to abort the wait, typically ctx.Err().
type YieldFunc func(ctx context.Context) error

// WithYield replaces the scheduler hook used by Await and Wait.
func WithYield(fn YieldFunc) Option {
	return func(cfg *config) { cfg.yield = fn }
}

func defaultYield(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(time.Millisecond): // prevent 100% CPU
		return nil
	}
}

// Context owns one engine instance and the registry of live futures
// created from it. It is the single serialization point for the engine:
// every evaluation, call, tick and promise check goes through one lock,
// so a tick started by one future's poll never overlaps another.
//
// The engine outlives every Future created from it; Close cancels all
// remaining futures before releasing engine resources, and every
// operation after Close fails with ErrClosed.
type Context struct {
	rt   *Runtime
	live *futureStore

	// engineMu serializes all entry into the VM, whichever path takes it
	// there: Advance, Eval, calls, or a future's poll.
	engineMu sync.Mutex

	log     *zap.Logger
	yieldFn YieldFunc
	closed  atomic.Bool
}

// New constructs an isolated Context with its own engine instance.
func New(opts ...Option) (*Context, error) {
	cfg := config{
		logger: zap.NewNop(),
		yield:  defaultYield,
	}
	for _, fn := range opts {
		fn(&cfg)
	}

	rt, err := NewRuntime(cfg)
	if err != nil {
		return nil, err
	}

	c := &Context{
		rt:      rt,
		live:    newFutureStore(),
		log:     cfg.logger,
		yieldFn: cfg.yield,
	}
	c.log.Debug("context created",
		zap.Duration("timeout", rt.timeout),
		zap.Uint64("max_heap_size", rt.maxHeapSize))
	return c, nil
}

// With runs fn with a fresh Context and guarantees that all outstanding
// futures are cancelled when fn returns, normally or with an error.
func With(fn func(*Context) error, opts ...Option) error {
	c, err := New(opts...)
	if err != nil {
		return err
	}
	defer c.Close()
	return fn(c)
}

// Runtime returns the engine adapter owned by this context. Direct VM
// access bypasses the context's serialization and is not safe while any
// future is being polled.
func (c *Context) Runtime() *Runtime { return c.rt }

// Timeout returns the evaluation timeout.
func (c *Context) Timeout() time.Duration { return c.rt.timeout }

// CurrentDir returns the directory relative module paths resolve against.
func (c *Context) CurrentDir() string {
	c.engineMu.Lock()
	defer c.engineMu.Unlock()
	return c.rt.currentDir
}

// SetCurrentDir changes the module resolution directory.
func (c *Context) SetCurrentDir(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("jsbridge: not a directory: %q", dir)
	}
	c.engineMu.Lock()
	defer c.engineMu.Unlock()
	c.rt.currentDir = dir
	return nil
}

// Pending returns the number of live futures.
func (c *Context) Pending() int { return c.live.Count() }

func (c *Context) checkOpen() error {
	if c.closed.Load() {
		return ErrClosed
	}
	return nil
}

// Eval runs a chunk of code synchronously and returns its completion
// value exported to Go.
func (c *Context) Eval(code string) (interface{}, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	c.engineMu.Lock()
	defer c.engineMu.Unlock()
	return c.rt.eval(code)
}

// GetValue returns a global by name, or ErrNotFound.
func (c *Context) GetValue(name string) (interface{}, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	c.engineMu.Lock()
	defer c.engineMu.Unlock()
	return c.rt.getValue(name)
}

// Call invokes a named global function synchronously. Functions that
// return a promise must be invoked with CallAsync instead.
func (c *Context) Call(name string, args ...interface{}) (interface{}, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	c.engineMu.Lock()
	defer c.engineMu.Unlock()

	fn, err := c.rt.lookupFunction(nil, name)
	if err != nil {
		return nil, err
	}
	v, err := c.rt.invoke(fn, nil, args)
	if err != nil {
		return nil, err
	}
	if isPromise(v) {
		return nil, fmt.Errorf("jsbridge: %q returned a promise, use CallAsync", name)
	}
	return exportValue(v), nil
}

// CallModule invokes an exported function of a loaded module synchronously.
func (c *Context) CallModule(handle *ModuleHandle, name string, args ...interface{}) (interface{}, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	c.engineMu.Lock()
	defer c.engineMu.Unlock()

	fn, err := c.rt.lookupFunction(handle.exports, name)
	if err != nil {
		return nil, err
	}
	v, err := c.rt.invoke(fn, handle.exports, args)
	if err != nil {
		return nil, err
	}
	if isPromise(v) {
		return nil, fmt.Errorf("jsbridge: %q returned a promise, use CallModuleAsync", name)
	}
	return exportValue(v), nil
}

// CallAsync invokes a named global function expected to return a promise
// and wraps the result in a Future registered with this context. The call
// itself runs the function's synchronous prologue but never blocks on the
// promise; plain return values are wrapped in an already-settled promise.
func (c *Context) CallAsync(name string, args ...interface{}) (*Future, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	c.engineMu.Lock()
	fn, err := c.rt.lookupFunction(nil, name)
	if err != nil {
		c.engineMu.Unlock()
		return nil, err
	}
	v, err := c.rt.invoke(fn, nil, args)
	if err != nil {
		c.engineMu.Unlock()
		return nil, err
	}
	p, err := c.rt.toPromise(v)
	c.engineMu.Unlock()
	if err != nil {
		return nil, err
	}

	f := newFuture(c, newPromise(p))
	c.log.Debug("future registered", zap.String("function", name), zap.Int("pending", c.live.Count()))
	return f, nil
}

// CallModuleAsync is CallAsync scoped to a loaded module's exports.
func (c *Context) CallModuleAsync(handle *ModuleHandle, name string, args ...interface{}) (*Future, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	c.engineMu.Lock()
	fn, err := c.rt.lookupFunction(handle.exports, name)
	if err != nil {
		c.engineMu.Unlock()
		return nil, err
	}
	v, err := c.rt.invoke(fn, handle.exports, args)
	if err != nil {
		c.engineMu.Unlock()
		return nil, err
	}
	p, err := c.rt.toPromise(v)
	c.engineMu.Unlock()
	if err != nil {
		return nil, err
	}

	f := newFuture(c, newPromise(p))
	c.log.Debug("future registered",
		zap.String("module", handle.Filename()),
		zap.String("function", name),
		zap.Int("pending", c.live.Count()))
	return f, nil
}

// advanceOptions control a single tick.
type advanceOptions struct {
	waitForInspector bool
	pumpMessageLoop  bool
}

// AdvanceOption configures a call to Advance.
type AdvanceOption func(*advanceOptions)

// WithInspectorWait requests that the tick also service an attached
// debugger channel. The embedded engine has no inspector, so the flag is
// accepted for API parity and ignored.
func WithInspectorWait(wait bool) AdvanceOption {
	return func(o *advanceOptions) { o.waitForInspector = wait }
}

// WithMessageLoopPump controls whether the tick pumps the timer queue.
// It defaults to true; with false the tick performs no loop work.
func WithMessageLoopPump(pump bool) AdvanceOption {
	return func(o *advanceOptions) { o.pumpMessageLoop = pump }
}

// Advance ticks the event loop once and returns whether more work remains
// queued. A tick may settle any number of pending promises, including
// ones nobody is currently polling; each affected Future observes its
// settlement on its own next poll. Advance is safe to call redundantly
// and is useful from an otherwise idle host loop to keep the engine
// making progress.
func (c *Context) Advance(opts ...AdvanceOption) (bool, error) {
	if err := c.checkOpen(); err != nil {
		return false, err
	}
	o := advanceOptions{pumpMessageLoop: true}
	for _, fn := range opts {
		fn(&o)
	}

	c.engineMu.Lock()
	pending, err := c.rt.tick(o)
	c.engineMu.Unlock()
	return pending, err
}

// pollFuture performs one poll cycle for f: a single engine tick followed
// by a settlement check of f's promise. Serialized with every other
// engine entry on this context.
func (c *Context) pollFuture(f *Future) (bool, error) {
	if err := c.checkOpen(); err != nil {
		return false, err
	}

	c.engineMu.Lock()
	_, tickErr := c.rt.tick(advanceOptions{pumpMessageLoop: true})
	settled := f.promise.Step(c.rt)
	var result interface{}
	var terminal error
	if settled {
		result, terminal = f.promise.Result()
	}
	c.engineMu.Unlock()

	if tickErr != nil && !settled {
		// an uncaught exception in an unrelated callback; the promise
		// chain it belongs to rejects on its own, so just surface it
		c.log.Warn("uncaught exception during tick", zap.Error(tickErr))
	}

	if !settled {
		return false, nil
	}
	if f.complete(FutureSettled, result, terminal) {
		c.log.Debug("future settled",
			zap.Bool("rejected", terminal != nil),
			zap.Int("pending", c.live.Count()))
	}
	return true, nil
}

// Wait drains the context: it keeps polling every live future and
// yielding to the host scheduler until the live set is empty. Used for
// graceful shutdown so in-flight promises settle instead of being
// abandoned. Futures that settle or are cancelled while Wait iterates
// are simply not visited again.
func (c *Context) Wait(ctx context.Context) error {
	for {
		if err := c.checkOpen(); err != nil {
			return err
		}
		futures := c.live.Snapshot()
		if len(futures) == 0 {
			return nil
		}
		for _, f := range futures {
			if _, err := f.Poll(); err != nil {
				return err
			}
		}
		if err := c.yield(ctx); err != nil {
			return err
		}
	}
}

// CancelAll pops every live future and cancels each one that has not
// already settled. Used for abrupt shutdown. The registry is drained
// into a snapshot first, so futures settling concurrently are neither
// skipped nor visited twice.
func (c *Context) CancelAll() {
	futures := c.live.Drain()
	cancelled := 0
	for _, f := range futures {
		if f.Cancel() {
			cancelled++
		}
	}
	if len(futures) > 0 {
		c.log.Debug("cancel all", zap.Int("live", len(futures)), zap.Int("cancelled", cancelled))
	}
}

// Close cancels all remaining futures and tears the engine down. Every
// subsequent operation on the context or its futures fails with
// ErrClosed. Closing twice returns ErrClosed.
func (c *Context) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return ErrClosed
	}
	c.CancelAll()

	c.engineMu.Lock()
	c.rt.close()
	c.engineMu.Unlock()

	c.log.Debug("context closed")
	return nil
}

func (c *Context) yield(ctx context.Context) error {
	return c.yieldFn(ctx)
}
