package sandbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dop251/goja"
	"go.uber.org/zap"
)

// GojaExecutor implements Executor by running the restricted environment
// in-process, with an interpreter interrupt standing in for the worker
// kill (WARNING: this is not an isolation boundary and should only be
// used for development and tests; it must be explicitly enabled in the
// configuration).
type GojaExecutor struct {
	logger *zap.Logger
	config *Config
}

// NewGojaExecutor creates a new GojaExecutor
func NewGojaExecutor(logger *zap.Logger, config *Config) *GojaExecutor {
	return &GojaExecutor{
		logger: logger,
		config: config,
	}
}

// Execute runs one request in-process and always returns a well-formed
// outcome; the error return is reserved for context cancellation.
func (g *GojaExecutor) Execute(ctx context.Context, req ExecuteRequest) (ExecuteResult, error) {
	if err := ctx.Err(); err != nil {
		return ExecuteResult{}, err
	}

	timeout := g.config.timeout(req)

	env, err := NewEnvironment(g.config.storePath(req), req.Args)
	if err != nil {
		return ExecuteResult{Error: err.Error()}, nil
	}
	defer env.Close()

	timer := time.AfterFunc(timeout, func() {
		env.Interrupt("execution timeout")
	})
	defer timer.Stop()

	if runErr := env.Run(req.Code); runErr != nil {
		var interrupted *goja.InterruptedError
		if errors.As(runErr, &interrupted) {
			g.logger.Warn("snippet timed out", zap.Duration("timeout", timeout))
			return ExecuteResult{Error: fmt.Sprintf(errTimeoutFmt, timeout)}, nil
		}
		return ExecuteResult{Error: snippetErrorText(runErr)}, nil
	}

	// The timer may fire between Run returning and timer.Stop
	env.ClearInterrupt()

	return ExecuteResult{
		Result: env.Result(),
		Stdout: truncate(env.Stdout(), g.config.maxStdoutLen()),
	}, nil
}
