package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/isdmx/dexbox/config"
)

func testConfig(t *testing.T) *Config {
	t.Helper()
	return &Config{
		StorePath:    newFixtureDB(t),
		Timeout:      10 * time.Second,
		GracePeriod:  time.Second,
		MaxStdoutLen: DefaultMaxStdoutLen,
	}
}

func newTestProcessExecutor(t *testing.T, mode string) *ProcessExecutor {
	t.Helper()
	return NewProcessExecutor(zaptest.NewLogger(t), testConfig(t),
		WithWorkerCommand(testWorkerCommand(mode)))
}

func TestProcessExecutorSuccess(t *testing.T) {
	executor := newTestProcessExecutor(t, "worker")

	out, err := executor.Execute(context.Background(), ExecuteRequest{
		Code: `
			print('looking up');
			result = scalarQuery('SELECT name FROM pokemons WHERE id = ?', 1);
		`,
	})
	require.NoError(t, err)
	assert.Empty(t, out.Error)
	assert.Equal(t, "Chikorita", out.Result)
	assert.Equal(t, "looking up\n", out.Stdout)
}

func TestProcessExecutorArgs(t *testing.T) {
	executor := newTestProcessExecutor(t, "worker")

	out, err := executor.Execute(context.Background(), ExecuteRequest{
		Code: "result = scalarQuery('SELECT hp FROM pokemons WHERE name = ?', args.who)",
		Args: map[string]any{"who": "Tepig"},
	})
	require.NoError(t, err)
	assert.Empty(t, out.Error)
	assert.EqualValues(t, 65, out.Result)
}

func TestProcessExecutorSnippetError(t *testing.T) {
	executor := newTestProcessExecutor(t, "worker")

	out, err := executor.Execute(context.Background(), ExecuteRequest{
		Code: "definitely.not.defined",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, out.Error)
	assert.Nil(t, out.Result)
}

func TestProcessExecutorTimeout(t *testing.T) {
	executor := newTestProcessExecutor(t, "worker")

	start := time.Now()
	out, err := executor.Execute(context.Background(), ExecuteRequest{
		Code:       "for (;;) {}",
		TimeoutSec: 1,
	})
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Equal(t, "timeout after 1s", out.Error)
	assert.Nil(t, out.Result)
	// Budget plus grace period plus slack, never the full default budget
	assert.Less(t, elapsed, 5*time.Second)
}

func TestProcessExecutorWorkerCrash(t *testing.T) {
	executor := newTestProcessExecutor(t, "crash")

	out, err := executor.Execute(context.Background(), ExecuteRequest{
		Code: "result = 1",
	})
	require.NoError(t, err)
	assert.Equal(t, "no result (crash or empty output)", out.Error)
}

func TestProcessExecutorContextCanceled(t *testing.T) {
	executor := newTestProcessExecutor(t, "worker")

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := executor.Execute(ctx, ExecuteRequest{Code: "for (;;) {}"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestProcessExecutorStoreUnavailable(t *testing.T) {
	executor := newTestProcessExecutor(t, "worker")

	out, err := executor.Execute(context.Background(), ExecuteRequest{
		Code:   "result = 1",
		DBPath: filepath.Join(t.TempDir(), "missing.sqlite3"),
	})
	require.NoError(t, err)
	assert.NotEmpty(t, out.Error)
	assert.Nil(t, out.Result)
}

func TestProcessExecutorStdoutCap(t *testing.T) {
	executor := NewProcessExecutor(zaptest.NewLogger(t), &Config{
		StorePath:    newFixtureDB(t),
		Timeout:      10 * time.Second,
		GracePeriod:  time.Second,
		MaxStdoutLen: 16,
	}, WithWorkerCommand(testWorkerCommand("worker")))

	out, err := executor.Execute(context.Background(), ExecuteRequest{
		Code: "for (var i = 0; i < 100; i++) { print('x'); } result = 'done'",
	})
	require.NoError(t, err)
	assert.Empty(t, out.Error)
	assert.Equal(t, "done", out.Result)
	assert.Equal(t, strings.Repeat("x\n", 8), out.Stdout)
}

func TestProcessExecutorIsolatedFailures(t *testing.T) {
	// A failed invocation must leave nothing behind for the next one
	executor := newTestProcessExecutor(t, "worker")

	for range 2 {
		out, err := executor.Execute(context.Background(), ExecuteRequest{
			Code: "leaked = 42; definitely.not.defined",
		})
		require.NoError(t, err)
		assert.NotEmpty(t, out.Error)
	}

	out, err := executor.Execute(context.Background(), ExecuteRequest{
		Code: "result = (typeof leaked === 'undefined')",
	})
	require.NoError(t, err)
	assert.Empty(t, out.Error)
	assert.Equal(t, true, out.Result)
}

func TestWorkerMain(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		req, err := json.Marshal(workerRequest{
			Code:         "result = scalarQuery('SELECT COUNT(*) FROM pokemons')",
			DBPath:       newFixtureDB(t),
			MaxStdoutLen: DefaultMaxStdoutLen,
		})
		require.NoError(t, err)

		var stdout bytes.Buffer
		code := WorkerMain(bytes.NewReader(req), &stdout)
		assert.Equal(t, 0, code)

		var env workerEnvelope
		require.NoError(t, json.Unmarshal(stdout.Bytes(), &env))
		assert.True(t, env.OK)
		require.NotNil(t, env.Data)
		assert.EqualValues(t, 3, env.Data.Result)
	})

	t.Run("MalformedRequest", func(t *testing.T) {
		var stdout bytes.Buffer
		code := WorkerMain(strings.NewReader("not json"), &stdout)
		assert.Equal(t, 1, code)

		var env workerEnvelope
		require.NoError(t, json.Unmarshal(stdout.Bytes(), &env))
		assert.False(t, env.OK)
		assert.Contains(t, env.Error, "bad worker request")
	})

	t.Run("UnserializableResult", func(t *testing.T) {
		req, err := json.Marshal(workerRequest{
			Code:   "result = function() {}",
			DBPath: newFixtureDB(t),
		})
		require.NoError(t, err)

		var stdout bytes.Buffer
		code := WorkerMain(bytes.NewReader(req), &stdout)
		assert.Equal(t, 0, code)

		var env workerEnvelope
		require.NoError(t, json.Unmarshal(stdout.Bytes(), &env))
		assert.False(t, env.OK)
		assert.Contains(t, env.Error, "not serializable")
	})
}

func TestGojaExecutorSuccess(t *testing.T) {
	executor := NewGojaExecutor(zaptest.NewLogger(t), testConfig(t))

	out, err := executor.Execute(context.Background(), ExecuteRequest{
		Code: "print('ok'); result = scalarQuery('SELECT name FROM pokemons WHERE id = 3')",
	})
	require.NoError(t, err)
	assert.Empty(t, out.Error)
	assert.Equal(t, "Pikachu", out.Result)
	assert.Equal(t, "ok\n", out.Stdout)
}

func TestGojaExecutorTimeout(t *testing.T) {
	executor := NewGojaExecutor(zaptest.NewLogger(t), testConfig(t))

	start := time.Now()
	out, err := executor.Execute(context.Background(), ExecuteRequest{
		Code:       "for (;;) {}",
		TimeoutSec: 1,
	})
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Equal(t, "timeout after 1s", out.Error)
	assert.Less(t, elapsed, 5*time.Second)
}

func TestGojaExecutorStoreUnavailable(t *testing.T) {
	executor := NewGojaExecutor(zaptest.NewLogger(t), testConfig(t))

	out, err := executor.Execute(context.Background(), ExecuteRequest{
		Code:   "result = 1",
		DBPath: filepath.Join(t.TempDir(), "missing.sqlite3"),
	})
	require.NoError(t, err)
	assert.NotEmpty(t, out.Error)
}

func TestGojaExecutorContextCanceled(t *testing.T) {
	executor := NewGojaExecutor(zaptest.NewLogger(t), testConfig(t))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := executor.Execute(ctx, ExecuteRequest{Code: "result = 1"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewExecutor(t *testing.T) {
	base := func() *config.Config {
		return &config.Config{
			Store: config.StoreConfig{Path: "za.sqlite3"},
			Sandbox: config.SandboxConfig{
				Backend:      "process",
				TimeoutSec:   8,
				GraceSec:     1,
				MaxStdoutLen: DefaultMaxStdoutLen,
			},
		}
	}

	t.Run("Process", func(t *testing.T) {
		executor, err := NewExecutor(zaptest.NewLogger(t), base())
		require.NoError(t, err)
		assert.IsType(t, &ProcessExecutor{}, executor)
	})

	t.Run("Goja", func(t *testing.T) {
		cfg := base()
		cfg.Sandbox.Backend = "goja"
		executor, err := NewExecutor(zaptest.NewLogger(t), cfg)
		require.NoError(t, err)
		assert.IsType(t, &GojaExecutor{}, executor)
	})

	t.Run("Unsupported", func(t *testing.T) {
		cfg := base()
		cfg.Sandbox.Backend = "firecracker"
		_, err := NewExecutor(zaptest.NewLogger(t), cfg)
		assert.ErrorContains(t, err, "unsupported backend")
	})
}
