package sandbox

import (
	"context"
	"time"
)

// ExecuteRequest represents the parameters for one snippet execution
type ExecuteRequest struct {
	// Code is the snippet source. It reports its answer by assigning to
	// the `result` variable.
	Code string `json:"code"`
	// DBPath optionally overrides the configured store location.
	DBPath string `json:"db_path,omitempty"`
	// Args is a caller-supplied mapping visible to the snippet as `args`.
	// The engine never mutates it.
	Args map[string]any `json:"args,omitempty"`
	// TimeoutSec optionally overrides the configured wall-clock budget.
	TimeoutSec int `json:"timeout_sec,omitempty"`
}

// ExecuteResult represents the outcome of one snippet execution. Callers
// always receive a well-formed result; every failure mode ends up in Error.
type ExecuteResult struct {
	Result any    `json:"result"`
	Stdout string `json:"stdout"`
	Error  string `json:"error,omitempty"`
}

// Executor defines the interface for snippet execution
type Executor interface {
	Execute(ctx context.Context, req ExecuteRequest) (ExecuteResult, error)
}

// Config holds configuration shared by the executor backends
type Config struct {
	// StorePath is the default database location, used when a request
	// does not carry its own.
	StorePath string
	// Timeout is the default wall-clock budget per invocation.
	Timeout time.Duration
	// GracePeriod is how long a killed worker is given to die.
	GracePeriod time.Duration
	// MaxStdoutLen caps captured print output, in characters.
	MaxStdoutLen int
}

// DefaultMaxStdoutLen bounds outcome size regardless of snippet verbosity.
const DefaultMaxStdoutLen = 10000

const (
	errTimeoutFmt = "timeout after %s"
	errNoResult   = "no result (crash or empty output)"
)

// timeout returns the effective budget for a request.
func (c *Config) timeout(req ExecuteRequest) time.Duration {
	if req.TimeoutSec > 0 {
		return time.Duration(req.TimeoutSec) * time.Second
	}
	return c.Timeout
}

// storePath returns the effective database location for a request.
func (c *Config) storePath(req ExecuteRequest) string {
	if req.DBPath != "" {
		return req.DBPath
	}
	return c.StorePath
}

// maxStdoutLen returns the effective stdout cap.
func (c *Config) maxStdoutLen() int {
	if c.MaxStdoutLen > 0 {
		return c.MaxStdoutLen
	}
	return DefaultMaxStdoutLen
}
