package jsbridge_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	jsbridge "github.com/rvbridge/jsbridge-go"
	"github.com/stretchr/testify/require"
)

const adderSource = `
exports.add = (a, b) => a + b;
exports.addAsync = (a, b) => new Promise(resolve => setTimeout(() => resolve(a + b), 0));
`

func TestModuleLoad(t *testing.T) {
	ctx, err := jsbridge.New()
	require.NoError(t, err)
	defer ctx.Close()

	mod := jsbridge.NewModule("adder.js", adderSource)
	require.Equal(t, "adder.js", mod.Filename())
	require.Equal(t, adderSource, mod.Contents())

	handle, err := ctx.LoadModule(mod)
	require.NoError(t, err)
	require.Equal(t, "adder.js", handle.Filename())
	require.Same(t, mod, handle.Module())

	t.Run("CallModule", func(t *testing.T) {
		result, err := ctx.CallModule(handle, "add", 2, 3)
		require.NoError(t, err)
		require.EqualValues(t, 5, result)
	})

	t.Run("CallModuleMissing", func(t *testing.T) {
		_, err := ctx.CallModule(handle, "subtract")
		require.ErrorIs(t, err, jsbridge.ErrNotFound)
	})

	t.Run("CallModuleAsyncRequired", func(t *testing.T) {
		_, err := ctx.CallModule(handle, "addAsync", 1, 2)
		require.Error(t, err)
		require.Contains(t, err.Error(), "CallModuleAsync")
	})

	t.Run("CallModuleAsync", func(t *testing.T) {
		fut, err := ctx.CallModuleAsync(handle, "addAsync", 2, 3)
		require.NoError(t, err)

		result, err := fut.Await(context.Background())
		require.NoError(t, err)
		require.EqualValues(t, 5, result)
	})

	t.Run("EmptyFilename", func(t *testing.T) {
		_, err := ctx.LoadModule(jsbridge.NewModule("", "exports.x = 1;"))
		require.Error(t, err)
	})
}

func TestModuleRequireChain(t *testing.T) {
	ctx, err := jsbridge.New()
	require.NoError(t, err)
	defer ctx.Close()

	_, err = ctx.LoadModule(jsbridge.NewModule("dep.js", `exports.add = (a, b) => a + b;`))
	require.NoError(t, err)

	main := jsbridge.NewModule("main.js", `
		const dep = require("./dep.js");
		exports.twice = x => dep.add(x, x);
	`)
	handle, err := ctx.LoadModule(main)
	require.NoError(t, err)

	result, err := ctx.CallModule(handle, "twice", 21)
	require.NoError(t, err)
	require.EqualValues(t, 42, result)
}

func TestModuleLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "adder.js")
	require.NoError(t, os.WriteFile(path, []byte(adderSource), 0o644))

	mod, err := jsbridge.LoadModuleFile(path)
	require.NoError(t, err)
	require.Equal(t, path, mod.Filename())

	ctx, err := jsbridge.New()
	require.NoError(t, err)
	defer ctx.Close()

	handle, err := ctx.LoadModule(mod)
	require.NoError(t, err)

	result, err := ctx.CallModule(handle, "add", 4, 5)
	require.NoError(t, err)
	require.EqualValues(t, 9, result)

	_, err = jsbridge.LoadModuleFile(filepath.Join(dir, "missing.js"))
	require.Error(t, err)
}

func TestModuleLoadDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.js"), []byte(`exports.name = "a";`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.ts"), []byte(`exports.name = "b";`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte(`skip me`), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))

	modules, err := jsbridge.LoadModuleDir(dir)
	require.NoError(t, err)
	require.Len(t, modules, 2)
	for _, mod := range modules {
		ext := filepath.Ext(mod.Filename())
		require.Contains(t, []string{".js", ".ts"}, ext)
	}

	_, err = jsbridge.LoadModuleDir(filepath.Join(dir, "missing"))
	require.Error(t, err)
}
