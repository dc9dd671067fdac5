package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ProcessExecutor implements Executor by spawning a fresh worker OS
// process per invocation: the running binary re-executed in worker mode.
// The request travels as JSON on the worker's stdin and exactly one
// outcome envelope comes back on its stdout. The wall-clock budget is
// enforced by killing the worker, not by asking it to stop, so snippets
// cannot intercept or delay cancellation. Workers are never pooled or
// reused; each invocation gets a disjoint environment and store handle.
type ProcessExecutor struct {
	logger  *zap.Logger
	config  *Config
	command WorkerCommandFunc
}

// WorkerCommandFunc builds the command that starts one worker process.
type WorkerCommandFunc func() (*exec.Cmd, error)

// ProcessExecutorOption defines a functional option for ProcessExecutor
type ProcessExecutorOption func(*ProcessExecutor)

// WithWorkerCommand sets the worker command builder for ProcessExecutor
func WithWorkerCommand(command WorkerCommandFunc) ProcessExecutorOption {
	return func(p *ProcessExecutor) {
		p.command = command
	}
}

// NewProcessExecutor creates a new ProcessExecutor with default implementations and optional interfaces
func NewProcessExecutor(logger *zap.Logger, config *Config, opts ...ProcessExecutorOption) *ProcessExecutor {
	executor := &ProcessExecutor{
		logger:  logger,
		config:  config,
		command: defaultWorkerCommand, // Default implementation
	}

	// Apply options
	for _, opt := range opts {
		opt(executor)
	}

	return executor
}

func defaultWorkerCommand() (*exec.Cmd, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("failed to locate executable: %w", err)
	}
	return exec.Command(exe, WorkerModeArg), nil
}

// Execute runs one request in an isolated worker and always returns a
// well-formed outcome; the error return is reserved for host-level faults
// (worker cannot be spawned, context canceled).
func (p *ProcessExecutor) Execute(ctx context.Context, req ExecuteRequest) (ExecuteResult, error) {
	timeout := p.config.timeout(req)
	log := p.logger.With(zap.String("invocation_id", uuid.NewString()))

	payload, err := json.Marshal(workerRequest{
		Code:         req.Code,
		DBPath:       p.config.storePath(req),
		Args:         req.Args,
		MaxStdoutLen: p.config.maxStdoutLen(),
	})
	if err != nil {
		return ExecuteResult{}, fmt.Errorf("failed to encode worker request: %w", err)
	}

	cmd, err := p.command()
	if err != nil {
		return ExecuteResult{}, fmt.Errorf("failed to build worker command: %w", err)
	}

	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdin = bytes.NewReader(payload)
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return ExecuteResult{}, fmt.Errorf("failed to start worker: %w", err)
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case waitErr := <-done:
		return p.collect(log, &stdoutBuf, waitErr, time.Since(start)), nil

	case <-timer.C:
		// Past this point the worker's output is no longer honored,
		// even if an envelope races in while it dies.
		p.kill(log, cmd, done)
		log.Warn("worker timed out",
			zap.Duration("timeout", timeout))
		return ExecuteResult{Error: fmt.Sprintf(errTimeoutFmt, timeout)}, nil

	case <-ctx.Done():
		p.kill(log, cmd, done)
		return ExecuteResult{}, ctx.Err()
	}
}

// collect turns whatever the worker left on its stdout into an outcome.
// An exited worker with no parseable envelope means it crashed or was
// killed by the host before sending.
func (p *ProcessExecutor) collect(log *zap.Logger, stdout *bytes.Buffer, waitErr error, elapsed time.Duration) ExecuteResult {
	var env workerEnvelope
	if err := json.Unmarshal(bytes.TrimSpace(stdout.Bytes()), &env); err != nil {
		log.Warn("worker exited without an outcome",
			zap.NamedError("wait_err", waitErr),
			zap.Duration("elapsed", elapsed))
		return ExecuteResult{Error: errNoResult}
	}

	if !env.OK || env.Data == nil {
		msg := env.Error
		if msg == "" {
			msg = "unknown error"
		}
		log.Info("worker reported failure",
			zap.String("error", msg),
			zap.Duration("elapsed", elapsed))
		return ExecuteResult{Error: msg}
	}

	log.Info("worker completed",
		zap.Duration("elapsed", elapsed),
		zap.Int("stdout_len", len(env.Data.Stdout)))
	return *env.Data
}

// kill forcibly terminates the worker and gives it a brief grace period
// to die before the supervisor moves on.
func (p *ProcessExecutor) kill(log *zap.Logger, cmd *exec.Cmd, done <-chan error) {
	if cmd.Process != nil {
		if err := cmd.Process.Kill(); err != nil {
			log.Warn("failed to kill worker", zap.Error(err))
		}
	}
	select {
	case <-done:
	case <-time.After(p.config.GracePeriod):
		log.Warn("worker did not exit within grace period")
	}
}
