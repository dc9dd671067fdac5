package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/dop251/goja"

	"github.com/isdmx/dexbox/store"
)

// maxCallStackSize bounds interpreter recursion depth so deeply recursive
// snippets fail with a RangeError instead of exhausting the stack.
const maxCallStackSize = 500

// Environment is the restricted namespace one snippet invocation runs in.
// It owns a single read-only store handle and an in-memory stdout buffer,
// and is destroyed with the invocation. The goja global object doubles as
// the scope for top-level statements and for functions the snippet defines,
// so top-level bindings are visible from nested function bodies.
//
// The snippet can reach exactly what is bound here (print, query,
// scalarQuery, args, result, stats) plus ECMAScript's own pure globals
// (Math, JSON, String, Array, ...). goja exposes no filesystem, network,
// process, or module-loading surface, and eval and the Function constructor
// are disabled.
type Environment struct {
	vm     *goja.Runtime
	store  *store.Store
	stdout bytes.Buffer
}

// NewEnvironment opens a read-only handle to the store at path and builds
// a fresh execution namespace around it. A store that cannot be opened
// fails the invocation before any snippet code runs.
func NewEnvironment(storePath string, args map[string]any) (*Environment, error) {
	st, err := store.OpenReadOnly(storePath)
	if err != nil {
		return nil, err
	}

	vm := goja.New()
	vm.SetMaxCallStackSize(maxCallStackSize)

	e := &Environment{vm: vm, store: st}
	e.harden()
	e.bind(args)

	return e, nil
}

// harden removes the dynamic-evaluation escape hatches.
func (e *Environment) harden() {
	_ = e.vm.Set("eval", goja.Undefined())
	_, _ = e.vm.RunString(`(function() {
		try {
			Object.defineProperty(Function.prototype, 'constructor', {
				value: function() { throw new TypeError('Function constructor is disabled'); },
				writable: false,
				configurable: false
			});
		} catch (err) {}
	})();`)
}

// bind installs the allowlisted primitives and data-access helpers.
func (e *Environment) bind(args map[string]any) {
	_ = e.vm.Set("print", e.printFunc())
	_ = e.vm.Set("query", e.queryFunc())
	_ = e.vm.Set("scalarQuery", e.scalarQueryFunc())
	_ = e.vm.Set("stats", statsHelpers())
	// The snippet gets a copy so the caller's mapping is never mutated
	if args == nil {
		args = map[string]any{}
	}
	_ = e.vm.Set("args", copyValue(args))
	_ = e.vm.Set("result", goja.Null())
}

// Run executes the snippet with the environment as its scope.
func (e *Environment) Run(code string) error {
	_, err := e.vm.RunString(code)
	return err
}

// Result returns the value the snippet assigned to `result`, or nil if it
// never did (or assigned null).
func (e *Environment) Result() any {
	v := e.vm.Get("result")
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil
	}
	return v.Export()
}

// Stdout returns everything the snippet printed so far.
func (e *Environment) Stdout() string {
	return e.stdout.String()
}

// Interrupt aborts a running snippet; Run returns a *goja.InterruptedError.
func (e *Environment) Interrupt(reason string) {
	e.vm.Interrupt(reason)
}

// ClearInterrupt resets a pending interrupt that fired after Run returned.
func (e *Environment) ClearInterrupt() {
	e.vm.ClearInterrupt()
}

// Close releases the store handle.
func (e *Environment) Close() error {
	return e.store.Close()
}

func (e *Environment) printFunc() func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		parts := make([]string, len(call.Arguments))
		for i, arg := range call.Arguments {
			parts[i] = arg.String()
		}
		fmt.Fprintln(&e.stdout, strings.Join(parts, " "))
		return goja.Undefined()
	}
}

func (e *Environment) queryFunc() func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		stmt := call.Argument(0).String()
		rows, err := e.store.Query(context.Background(), stmt, exportParams(call)...)
		if err != nil {
			panic(e.vm.NewGoError(err))
		}
		out := make([]any, len(rows))
		for i, r := range rows {
			out[i] = map[string]any(r)
		}
		return e.vm.ToValue(out)
	}
}

func (e *Environment) scalarQueryFunc() func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		stmt := call.Argument(0).String()
		v, err := e.store.Scalar(context.Background(), stmt, exportParams(call)...)
		if err != nil {
			panic(e.vm.NewGoError(err))
		}
		if v == nil {
			return goja.Null()
		}
		if row, ok := v.(store.Row); ok {
			return e.vm.ToValue(map[string]any(row))
		}
		return e.vm.ToValue(v)
	}
}

// exportParams accepts the second call argument as either an array of
// parameters or a single bare parameter, mirroring the helpers' contract.
func exportParams(call goja.FunctionCall) []any {
	if len(call.Arguments) < 2 {
		return nil
	}
	switch v := call.Argument(1).Export().(type) {
	case nil:
		return nil
	case []any:
		return v
	default:
		return []any{v}
	}
}

// statsHelpers supplies the basic statistics the snippet environment
// promises alongside the JS Math built-ins. goja throws the error return
// as a JS exception.
func statsHelpers() map[string]any {
	return map[string]any{
		"sum": func(xs []float64) float64 {
			var total float64
			for _, x := range xs {
				total += x
			}
			return total
		},
		"mean": func(xs []float64) (float64, error) {
			if len(xs) == 0 {
				return 0, errors.New("stats.mean requires at least one value")
			}
			var total float64
			for _, x := range xs {
				total += x
			}
			return total / float64(len(xs)), nil
		},
		"min": func(xs []float64) (float64, error) {
			if len(xs) == 0 {
				return 0, errors.New("stats.min requires at least one value")
			}
			lo := xs[0]
			for _, x := range xs[1:] {
				lo = math.Min(lo, x)
			}
			return lo, nil
		},
		"max": func(xs []float64) (float64, error) {
			if len(xs) == 0 {
				return 0, errors.New("stats.max requires at least one value")
			}
			hi := xs[0]
			for _, x := range xs[1:] {
				hi = math.Max(hi, x)
			}
			return hi, nil
		},
		"median": func(xs []float64) (float64, error) {
			if len(xs) == 0 {
				return 0, errors.New("stats.median requires at least one value")
			}
			sorted := append([]float64(nil), xs...)
			sort.Float64s(sorted)
			mid := len(sorted) / 2
			if len(sorted)%2 == 0 {
				return (sorted[mid-1] + sorted[mid]) / 2, nil
			}
			return sorted[mid], nil
		},
		"stdev": func(xs []float64) (float64, error) {
			if len(xs) < 2 {
				return 0, errors.New("stats.stdev requires at least two values")
			}
			var total float64
			for _, x := range xs {
				total += x
			}
			mean := total / float64(len(xs))
			var ss float64
			for _, x := range xs {
				ss += (x - mean) * (x - mean)
			}
			return math.Sqrt(ss / float64(len(xs)-1)), nil
		},
	}
}

// copyValue deep-copies the JSON-shaped values an args mapping may hold.
func copyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = copyValue(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = copyValue(e)
		}
		return out
	default:
		return v
	}
}
