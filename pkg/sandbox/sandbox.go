// Package sandbox runs user-authored JavaScript with a restricted global
// environment, a single vetted fetch capability and a wall-clock limit.
package sandbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dop251/goja"
)

var dangerousGlobals = []string{
	"require",
	"module",
	"exports",
	"process",
	"global",
	"globalThis",
	"__dirname",
	"__filename",
	"Buffer",
	"setImmediate",
	"clearImmediate",
	"setTimeout",
	"setInterval",
	"XMLHttpRequest",
	"WebSocket",
	"importScripts",
}

var frozenBuiltins = []string{
	"Object",
	"Array",
	"Function",
	"String",
	"Number",
	"Boolean",
	"Date",
	"RegExp",
	"Error",
	"Math",
	"JSON",
	"Promise",
}

const freezeScript = `
	(function() {
		return function(obj) {
			if (obj && (typeof obj === 'object' || typeof obj === 'function')) {
				Object.freeze(obj);
				if (obj.prototype) {
					Object.freeze(obj.prototype);
				}
			}
		};
	})()
`

// lockScript swaps every reachable function constructor for a thrower so
// source text cannot be compiled at run time.
const lockScript = `
	(function() {
		var blocked = function() {
			throw new TypeError('Function constructor is not allowed');
		};
		var protos = [
			Function.prototype,
			Object.getPrototypeOf(async function() {}),
			Object.getPrototypeOf(function*() {}),
		];
		for (var i = 0; i < protos.length; i++) {
			Object.defineProperty(protos[i], 'constructor', {value: blocked, writable: false, configurable: false});
			Object.freeze(protos[i]);
		}
		return blocked;
	})()
`

// Script is one function body to run. Globals are exposed to the body by name.
type Script struct {
	Name    string
	Body    string
	Globals map[string]any
	// Timeout overrides the sandbox default when positive.
	Timeout time.Duration
}

// Result is the value a script returned. Undefined is set when the script
// returned nothing or returned undefined explicitly.
type Result struct {
	Value     any
	Undefined bool
}

// Sandbox executes scripts. A fresh runtime is created for every run so no
// state leaks between executions or tenants.
type Sandbox struct {
	config Config
	logger *slog.Logger
}

// New creates a sandbox with the given limits.
func New(config Config, logger *slog.Logger) *Sandbox {
	config.applyDefaults()

	return &Sandbox{
		config: config,
		logger: logger,
	}
}

// Run executes script.Body as the body of an async function and waits for
// its settled value. The run is aborted once the timeout or ctx expires.
func (s *Sandbox) Run(ctx context.Context, script Script) (result Result, err error) {
	timeout := s.config.Timeout
	if script.Timeout > 0 {
		timeout = script.Timeout
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = &ScriptError{Type: ErrorTypeInternal, Message: fmt.Sprintf("panic during execution: %v", r)}
		}
	}()

	vm := goja.New()
	vm.SetFieldNameMapper(goja.TagFieldNameMapper("json", true))

	err = s.prepare(runCtx, vm, script.Globals)
	if err != nil {
		return Result{}, err
	}

	done := make(chan struct{})
	defer close(done)

	go func() {
		select {
		case <-runCtx.Done():
			vm.Interrupt("execution timeout")
		case <-done:
		}
	}()

	value, err := vm.RunScript(scriptName(script), "(async function() {\n"+script.Body+"\n})()")
	if err != nil {
		var interrupted *goja.InterruptedError
		if errors.As(err, &interrupted) {
			return Result{}, newTimeoutError(timeout)
		}

		return Result{}, fromGoja(err)
	}

	promise, ok := value.Export().(*goja.Promise)
	if !ok {
		return exportResult(value), nil
	}

	switch promise.State() {
	case goja.PromiseStateFulfilled:
		return exportResult(promise.Result()), nil
	case goja.PromiseStateRejected:
		return Result{}, fromValue(promise.Result(), "script rejected")
	default:
		if runCtx.Err() != nil {
			return Result{}, newTimeoutError(timeout)
		}

		return Result{}, &ScriptError{Type: ErrorTypeRuntime, Message: "script did not settle"}
	}
}

func (s *Sandbox) prepare(ctx context.Context, vm *goja.Runtime, globals map[string]any) error {
	for _, name := range dangerousGlobals {
		err := vm.Set(name, goja.Undefined())
		if err != nil {
			return fmt.Errorf("failed to remove %s: %w", name, err)
		}
	}

	err := vm.Set("eval", func(goja.FunctionCall) goja.Value {
		panic(vm.NewTypeError("eval is not allowed"))
	})
	if err != nil {
		return fmt.Errorf("failed to restrict eval: %w", err)
	}

	blocked, err := vm.RunString(lockScript)
	if err != nil {
		return fmt.Errorf("failed to lock function constructors: %w", err)
	}

	err = vm.Set("Function", blocked)
	if err != nil {
		return fmt.Errorf("failed to restrict Function: %w", err)
	}

	if s.config.DisableFetch {
		err = vm.Set("fetch", goja.Undefined())
	} else {
		err = vm.Set("fetch", s.fetch(ctx, vm))
	}

	if err != nil {
		return fmt.Errorf("failed to install fetch: %w", err)
	}

	for name, value := range globals {
		err = vm.Set(name, detach(value))
		if err != nil {
			return fmt.Errorf("failed to set %s: %w", name, err)
		}
	}

	return freezeBuiltins(vm)
}

func freezeBuiltins(vm *goja.Runtime) error {
	val, err := vm.RunString(freezeScript)
	if err != nil {
		return fmt.Errorf("failed to create freeze function: %w", err)
	}

	freeze, ok := goja.AssertFunction(val)
	if !ok {
		return errors.New("freeze function is not a function")
	}

	for _, name := range frozenBuiltins {
		obj := vm.Get(name)
		if obj == nil || goja.IsUndefined(obj) {
			continue
		}

		_, err = freeze(goja.Undefined(), obj)
		if err != nil {
			return fmt.Errorf("failed to freeze %s: %w", name, err)
		}
	}

	return nil
}

// detach deep-copies JSON-like values so script mutations never reach the
// caller's maps.
func detach(value any) any {
	if value == nil {
		return nil
	}

	raw, err := json.Marshal(value)
	if err != nil {
		return value
	}

	var out any

	err = json.Unmarshal(raw, &out)
	if err != nil {
		return value
	}

	return out
}

func exportResult(value goja.Value) Result {
	if value == nil || goja.IsUndefined(value) {
		return Result{Undefined: true}
	}

	return Result{Value: value.Export()}
}

func scriptName(script Script) string {
	if script.Name != "" {
		return script.Name
	}

	return "script"
}
