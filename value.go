package jsbridge

import "github.com/dop251/goja"

// toValues converts Go call arguments into engine values. Must be called
// with the engine lock held.
func (r *Runtime) toValues(args []interface{}) []goja.Value {
	if len(args) == 0 {
		return nil
	}
	out := make([]goja.Value, len(args))
	for i, a := range args {
		out[i] = r.vm.ToValue(a)
	}
	return out
}

// exportValue converts an engine value into its Go representation.
// undefined and null both map to nil.
func exportValue(v goja.Value) interface{} {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil
	}
	return v.Export()
}

// asPromise extracts the engine promise backing a value, if any.
func asPromise(v goja.Value) (*goja.Promise, bool) {
	if v == nil {
		return nil, false
	}
	p, ok := v.Export().(*goja.Promise)
	return p, ok
}

// isPromise reports whether a value is a promise without exporting twice.
func isPromise(v goja.Value) bool {
	_, ok := asPromise(v)
	return ok
}
