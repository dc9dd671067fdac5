package sandbox

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/dop251/goja"
)

// WorkerModeArg is the argv[1] value that switches the binary into the
// worker runtime.
const WorkerModeArg = "worker"

// IsWorkerProcess reports whether argv selects the worker runtime.
func IsWorkerProcess(args []string) bool {
	return len(args) > 1 && args[1] == WorkerModeArg
}

// workerRequest is the supervisor-to-worker wire format. The store path
// and stdout cap arrive already resolved; the worker applies no defaults
// of its own beyond the cap floor.
type workerRequest struct {
	Code         string         `json:"code"`
	DBPath       string         `json:"db_path"`
	Args         map[string]any `json:"args,omitempty"`
	MaxStdoutLen int            `json:"max_stdout_len"`
}

// workerEnvelope is the single worker-to-supervisor message. Exactly zero
// or one envelope ever crosses the pipe.
type workerEnvelope struct {
	OK    bool           `json:"ok"`
	Data  *ExecuteResult `json:"data,omitempty"`
	Error string         `json:"error,omitempty"`
}

// WorkerMain services exactly one execution request: read it from stdin,
// run the snippet in a fresh restricted environment, write one outcome
// envelope to stdout, exit. Every failure is captured in the envelope, so
// the process itself always exits cleanly. Returns the process exit code.
func WorkerMain(stdin io.Reader, stdout io.Writer) int {
	var req workerRequest
	if err := json.NewDecoder(stdin).Decode(&req); err != nil {
		writeEnvelope(stdout, workerEnvelope{Error: fmt.Sprintf("bad worker request: %v", err)})
		return 1
	}

	writeEnvelope(stdout, runSnippet(req))
	return 0
}

// runSnippet builds the environment, executes the code, and packages the
// outcome. Panics from the interpreter boundary are recovered into the
// envelope rather than crashing the worker without a message.
func runSnippet(req workerRequest) (env workerEnvelope) {
	defer func() {
		if r := recover(); r != nil {
			env = workerEnvelope{Error: fmt.Sprintf("snippet panic: %v", r)}
		}
	}()

	e, err := NewEnvironment(req.DBPath, req.Args)
	if err != nil {
		return workerEnvelope{Error: err.Error()}
	}
	defer e.Close()

	if runErr := e.Run(req.Code); runErr != nil {
		return workerEnvelope{Error: snippetErrorText(runErr)}
	}

	data := ExecuteResult{
		Result: e.Result(),
		Stdout: truncate(e.Stdout(), capOrDefault(req.MaxStdoutLen)),
	}
	return workerEnvelope{OK: true, Data: &data}
}

// writeEnvelope emits the one outcome message. A result the codec cannot
// represent (a snippet assigning a function to result, say) degrades to a
// failure envelope instead of a silent empty channel.
func writeEnvelope(w io.Writer, env workerEnvelope) {
	data, err := json.Marshal(env)
	if err != nil {
		env = workerEnvelope{Error: fmt.Sprintf("result is not serializable: %v", err)}
		data, _ = json.Marshal(env)
	}
	_, _ = w.Write(append(data, '\n'))
}

// snippetErrorText renders an execution error the way a snippet author
// expects: the thrown value for runtime errors, the parser message for
// syntax errors.
func snippetErrorText(err error) string {
	var ex *goja.Exception
	if errors.As(err, &ex) {
		return ex.Value().String()
	}
	return err.Error()
}

func capOrDefault(n int) int {
	if n > 0 {
		return n
	}
	return DefaultMaxStdoutLen
}

// truncate caps s at n characters. The cap is applied after the fact, so
// the full output only ever lives inside the disposable worker.
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
