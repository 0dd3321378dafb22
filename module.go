package jsbridge

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dop251/goja"
)

// Module is JavaScript source ready to be loaded: a filename the module
// registry resolves it under, plus its contents. Modules use CommonJS
// semantics (exports / module.exports / require).
type Module struct {
	filename string
	contents string
}

// NewModule creates an in-memory module.
func NewModule(filename, contents string) *Module {
	return &Module{filename: filename, contents: contents}
}

// LoadModuleFile reads a module from disk.
func LoadModuleFile(path string) (*Module, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return &Module{filename: path, contents: string(b)}, nil
}

// LoadModuleDir reads every .js and .ts file in a directory, skipping
// everything else.
func LoadModuleDir(dir string) ([]*Module, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var modules []*Module
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.TrimPrefix(filepath.Ext(entry.Name()), ".")
		if ext != "js" && ext != "ts" {
			continue
		}
		mod, err := LoadModuleFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		modules = append(modules, mod)
	}
	return modules, nil
}

// Filename returns the name the module is registered under.
func (m *Module) Filename() string { return m.filename }

// Contents returns the module source.
func (m *Module) Contents() string { return m.contents }

// ModuleHandle is a loaded module: its exports object inside the engine.
// Handles are only valid on the Context that loaded them.
type ModuleHandle struct {
	module  *Module
	exports *goja.Object
}

// Filename returns the loaded module's name.
func (h *ModuleHandle) Filename() string { return h.module.filename }

// Contents returns the loaded module's source.
func (h *ModuleHandle) Contents() string { return h.module.contents }

// Module returns the source module the handle was loaded from.
func (h *ModuleHandle) Module() *Module { return h.module }

// LoadModule evaluates a module and returns a handle to its exports. The
// module's top-level code runs during the load, including its
// synchronous part only; promises it creates settle through ticks like
// any other.
func (c *Context) LoadModule(mod *Module) (*ModuleHandle, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	if mod.filename == "" {
		return nil, fmt.Errorf("jsbridge: module filename cannot be empty")
	}

	c.rt.registerSource(mod.filename, []byte(mod.contents))

	path := mod.filename
	if !filepath.IsAbs(path) && !strings.HasPrefix(path, "./") && !strings.HasPrefix(path, "../") {
		path = "./" + path
	}

	c.engineMu.Lock()
	exports, err := c.rt.requireModule(path)
	c.engineMu.Unlock()
	if err != nil {
		return nil, err
	}

	return &ModuleHandle{module: mod, exports: exports}, nil
}
