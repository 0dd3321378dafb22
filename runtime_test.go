package jsbridge_test

import (
	"testing"
	"time"

	jsbridge "github.com/rvbridge/jsbridge-go"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRuntimeGlobals(t *testing.T) {
	ctx, err := jsbridge.New()
	require.NoError(t, err)
	defer ctx.Close()

	// timer bindings, console and require are installed on every runtime
	globals := []string{
		"setTimeout", "setInterval", "clearTimeout", "clearInterval",
		"queueMicrotask", "require",
	}
	for _, name := range globals {
		result, err := ctx.Eval(`typeof ` + name)
		require.NoError(t, err)
		require.Equal(t, "function", result, name)
	}

	result, err := ctx.Eval(`typeof console.log`)
	require.NoError(t, err)
	require.Equal(t, "function", result)
}

func TestRuntimeSetInterval(t *testing.T) {
	ctx, err := jsbridge.New()
	require.NoError(t, err)
	defer ctx.Close()

	_, err = ctx.Eval(`
		globalThis.beats = 0;
		globalThis.beatId = setInterval(() => {
			globalThis.beats++;
			if (globalThis.beats >= 3) {
				clearInterval(globalThis.beatId);
			}
		}, 1);
	`)
	require.NoError(t, err)

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		pending, err := ctx.Advance()
		require.NoError(t, err)
		if !pending {
			break
		}
		time.Sleep(time.Millisecond)
	}

	beats, err := ctx.GetValue("beats")
	require.NoError(t, err)
	require.EqualValues(t, 3, beats)
}

func TestRuntimeTimerCallbackError(t *testing.T) {
	ctx, err := jsbridge.New()
	require.NoError(t, err)
	defer ctx.Close()

	_, err = ctx.Eval(`setTimeout(() => { throw new Error("timer boom"); }, 0);`)
	require.NoError(t, err)

	_, err = ctx.Advance()
	require.Error(t, err)

	var jsErr *jsbridge.Error
	require.ErrorAs(t, err, &jsErr)
	require.Equal(t, "timer boom", jsErr.Message)
}

func TestRuntimeTimerBadCallback(t *testing.T) {
	ctx, err := jsbridge.New()
	require.NoError(t, err)
	defer ctx.Close()

	_, err = ctx.Eval(`setTimeout("not a function", 0)`)
	require.Error(t, err)
}

func TestRuntimeTimerArgs(t *testing.T) {
	ctx, err := jsbridge.New()
	require.NoError(t, err)
	defer ctx.Close()

	_, err = ctx.Eval(`setTimeout((a, b) => { globalThis.sum = a + b; }, 0, 20, 22);`)
	require.NoError(t, err)

	_, err = ctx.Advance()
	require.NoError(t, err)

	sum, err := ctx.GetValue("sum")
	require.NoError(t, err)
	require.EqualValues(t, 42, sum)
}

func TestRuntimeConfig(t *testing.T) {
	ctx, err := jsbridge.New(
		jsbridge.WithTimeout(time.Second),
		jsbridge.WithMaxHeapSize(64<<20),
		jsbridge.WithMaxStackSize(2048),
		jsbridge.WithLogger(zap.NewNop()),
	)
	require.NoError(t, err)
	defer ctx.Close()

	rt := ctx.Runtime()
	require.Equal(t, time.Second, rt.Timeout())
	require.EqualValues(t, 64<<20, rt.MaxHeapSize())

	// the stack limit actually binds
	_, err = ctx.Eval(`function recurse() { return recurse(); } recurse();`)
	require.Error(t, err)
}
