// Package sandbox provides the sandboxed snippet execution engine.
//
// The sandbox package runs caller-supplied JavaScript snippets against a
// read-only handle to the Z-A database and returns the value the snippet
// assigns to `result`, together with captured print output. Each invocation
// gets a fresh restricted environment; nothing is shared or reused across
// invocations.
//
// Two backends exist. The default "process" backend spawns a fresh worker
// OS process per invocation and enforces the wall-clock budget by killing
// it, so runaway or crashing snippets can never affect the server. The
// "goja" backend runs the same environment in-process with an interpreter
// interrupt; it exists for development and tests and must be explicitly
// enabled in configuration.
//
// Usage:
//
//	executor, err := sandbox.NewExecutor(logger, cfg)
//	result, err := executor.Execute(ctx, sandbox.ExecuteRequest{
//	    Code: "result = scalarQuery('SELECT COUNT(*) FROM pokemons')",
//	})
package sandbox
