// Package procrun executes external control processes and captures their
// output without deadlocking on full pipe buffers.
package procrun

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/twistedxcom/agentmux/internal/logging"
)

var procLog = logging.ForComponent(logging.CompProc)

// ErrUndecodableOutput is returned when a child process produces output that
// is not valid UTF-8. Callers treat this as fatal for the call in question.
var ErrUndecodableOutput = errors.New("process output is not valid UTF-8")

// ExitError carries the exit code and trimmed stderr of a failed process.
type ExitError struct {
	Path     string
	Code     int
	Stderr   string
	Original error
}

func (e *ExitError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("%s exited with code %d: %s", e.Path, e.Code, e.Stderr)
	}
	return fmt.Sprintf("%s exited with code %d", e.Path, e.Code)
}

func (e *ExitError) Unwrap() error { return e.Original }

// Spec describes one external process invocation. Env is the fully resolved
// environment: GUI-launched processes do not inherit an interactive shell's
// environment, so the caller must supply one.
type Spec struct {
	Path string
	Args []string
	Env  []string // nil = inherit current process environment
	Dir  string
}

// Result holds the captured output of a completed process.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Runner runs external processes. The interface exists so the multiplexer
// protocol layer can be tested against a scripted fake.
type Runner interface {
	Run(ctx context.Context, spec Spec) (Result, error)
}

// ExecRunner is the production Runner backed by os/exec.
type ExecRunner struct{}

// NewExecRunner returns a Runner backed by os/exec.
func NewExecRunner() *ExecRunner { return &ExecRunner{} }

// Run executes the process described by spec and returns its decoded output.
// Both stdout and stderr are drained to completion before Wait is called:
// waiting first deadlocks when the child fills the OS pipe buffer.
func (r *ExecRunner) Run(ctx context.Context, spec Spec) (Result, error) {
	cmd := exec.CommandContext(ctx, spec.Path, spec.Args...)
	if spec.Env != nil {
		cmd.Env = spec.Env
	}
	cmd.Dir = spec.Dir

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return Result{}, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return Result{}, fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return Result{}, fmt.Errorf("starting %s: %w", spec.Path, err)
	}

	var (
		wg      sync.WaitGroup
		outData []byte
		errData []byte
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		outData, _ = io.ReadAll(stdout)
	}()
	go func() {
		defer wg.Done()
		errData, _ = io.ReadAll(stderr)
	}()
	wg.Wait()

	waitErr := cmd.Wait()

	if !utf8.Valid(outData) || !utf8.Valid(errData) {
		return Result{}, fmt.Errorf("%s: %w", spec.Path, ErrUndecodableOutput)
	}

	res := Result{
		Stdout: string(outData),
		Stderr: string(errData),
	}

	if waitErr != nil {
		var ee *exec.ExitError
		if errors.As(waitErr, &ee) {
			res.ExitCode = ee.ExitCode()
			procLog.Debug("process_failed",
				slog.String("path", spec.Path),
				slog.Int("exit_code", res.ExitCode),
				slog.String("stderr", strings.TrimSpace(res.Stderr)))
			return res, &ExitError{
				Path:     spec.Path,
				Code:     res.ExitCode,
				Stderr:   strings.TrimSpace(res.Stderr),
				Original: waitErr,
			}
		}
		return res, fmt.Errorf("waiting for %s: %w", spec.Path, waitErr)
	}

	return res, nil
}
