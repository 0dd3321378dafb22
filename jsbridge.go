/*
Package jsbridge exposes an embedded JavaScript engine's promises as awaitable
values for Go callers.

The engine (goja) is single-threaded and externally stepped: its timer/job
queue only makes progress when the host explicitly ticks it. A Context owns
one engine instance and tracks every in-flight Future; a Future adapts one
JavaScript promise to a poll-based protocol that composes with goroutines and
context.Context.

Polling a Future has engine-wide side effects: each poll advances the shared
event loop by one tick, which may settle any number of other pending promises
on the same Context, not just the one being polled. A Context that is never
polled and never advanced will stall its pending futures indefinitely; keeping
the loop moving is the caller's responsibility.
*/
package jsbridge
