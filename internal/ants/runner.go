package ants

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

var (
	// ErrMissingOutput is returned when a command exited cleanly without writing an expected file.
	ErrMissingOutput = errors.New("expected output was not produced")
	// ErrNotInstalled is returned when an executable cannot be found.
	ErrNotInstalled = errors.New("ANTs executable not found")
)

// ExitError is returned when an ANTs executable exits with a non-zero status.
type ExitError struct {
	Name   string
	Code   int
	ErrLog string
}

func (e *ExitError) Error() string {
	if e.ErrLog != "" {
		return fmt.Sprintf("%s exited with status %d, see %s", e.Name, e.Code, e.ErrLog)
	}

	return fmt.Sprintf("%s exited with status %d", e.Name, e.Code)
}

// Runner runs ANTs commands as subprocesses.
type Runner struct {
	binDir    string
	logger    zerolog.Logger
	progress  func(line string)
	waitDelay time.Duration
}

// RunnerOption configures a Runner.
type RunnerOption func(r *Runner)

// WithBinDir looks executables up in dir before PATH.
func WithBinDir(dir string) RunnerOption {
	return func(r *Runner) {
		r.binDir = dir
	}
}

// WithLogger sets the logger used to trace commands.
func WithLogger(logger zerolog.Logger) RunnerOption {
	return func(r *Runner) {
		r.logger = logger
	}
}

// WithProgress receives the output lines of commands running without logs.
func WithProgress(fn func(line string)) RunnerOption {
	return func(r *Runner) {
		r.progress = fn
	}
}

// NewRunner creates a runner.
func NewRunner(opts ...RunnerOption) *Runner {
	r := &Runner{
		logger:    zerolog.Nop(),
		waitDelay: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Path resolves the executable name.
func (r *Runner) Path(name string) (string, error) {
	if r.binDir != "" {
		candidate := filepath.Join(r.binDir, name)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}

	path, err := exec.LookPath(name)
	if err != nil {
		return "", errors.Wrapf(ErrNotInstalled, "%s: %v", name, err)
	}

	return path, nil
}

// Check verifies every executable can be found.
func (r *Runner) Check(names ...string) error {
	for _, name := range names {
		if _, err := r.Path(name); err != nil {
			return err
		}
	}

	return nil
}

// Run executes cmd and waits for it. Cancelling ctx kills the process and its children.
func (r *Runner) Run(ctx context.Context, cmd Command) error {
	path, err := r.Path(cmd.Name)
	if err != nil {
		return err
	}

	proc := exec.CommandContext(ctx, path, cmd.Args...)
	proc.Dir = cmd.Dir
	proc.WaitDelay = r.waitDelay
	setProcessGroup(proc)

	r.logger.Debug().Str("command", cmd.String()).Msg("running")

	var lines *lineWriter
	if cmd.Logs != nil {
		closeLogs, err := redirect(proc, cmd.Logs)
		if err != nil {
			return err
		}
		defer closeLogs()
	} else if r.progress != nil {
		lines = &lineWriter{fn: r.progress}
		proc.Stdout = lines
		proc.Stderr = lines
	}

	err = proc.Run()
	if lines != nil {
		lines.Flush()
	}
	if ctx.Err() != nil {
		return errors.Wrapf(ctx.Err(), "%s cancelled", cmd.Name)
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res := &ExitError{Name: cmd.Name, Code: exitErr.ExitCode()}
			if cmd.Logs != nil {
				res.ErrLog = cmd.Logs.Err
			}

			return res
		}

		return errors.Wrapf(err, "unable to run %s", cmd.Name)
	}

	return checkOutputs(cmd)
}

func checkOutputs(cmd Command) error {
	for _, out := range cmd.Outputs {
		if !filepath.IsAbs(out) && cmd.Dir != "" {
			out = filepath.Join(cmd.Dir, out)
		}
		if _, err := os.Stat(out); err != nil {
			return errors.Wrapf(ErrMissingOutput, "%s did not write %s", cmd.Name, out)
		}
	}

	return nil
}

func redirect(proc *exec.Cmd, logs *Logs) (func(), error) {
	outFile, err := os.Create(logs.Out)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to create %s", logs.Out)
	}
	errFile, err := os.Create(logs.Err)
	if err != nil {
		outFile.Close()

		return nil, errors.Wrapf(err, "unable to create %s", logs.Err)
	}
	proc.Stdout = outFile
	proc.Stderr = errFile

	return func() {
		outFile.Close()
		errFile.Close()
	}, nil
}

// lineWriter calls fn once per complete line written to it.
type lineWriter struct {
	mu  sync.Mutex
	fn  func(string)
	buf bytes.Buffer
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf.Write(p)
	for {
		line, err := w.buf.ReadString('\n')
		if err == io.EOF {
			// keep the partial line for the next write
			w.buf.Reset()
			w.buf.WriteString(line)

			break
		}
		w.fn(line[:len(line)-1])
	}

	return len(p), nil
}

// Flush emits a trailing line without newline.
func (w *lineWriter) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.buf.Len() > 0 {
		w.fn(w.buf.String())
		w.buf.Reset()
	}
}
