// Package antstest provides an in-process stand-in for the ANTs executables.
package antstest

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/askiada/antstemplate/internal/ants"
)

// Runner records the commands it is given and writes their logs and outputs.
type Runner struct {
	// Fail makes every command with this name exit with status 1.
	Fail string
	// ErrLog is written to the err log of every command.
	ErrLog string
	// Hook runs after the outputs are written.
	Hook func(cmd ants.Command) error

	mu   sync.Mutex
	cmds []ants.Command
}

// Run implements the command runner of the stages.
func (r *Runner) Run(ctx context.Context, cmd ants.Command) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	r.cmds = append(r.cmds, cmd)
	r.mu.Unlock()

	if cmd.Name == r.Fail {
		res := &ants.ExitError{Name: cmd.Name, Code: 1}
		if cmd.Logs != nil {
			res.ErrLog = cmd.Logs.Err
		}

		return res
	}
	if cmd.Logs != nil {
		if err := os.WriteFile(cmd.Logs.Out, []byte(cmd.String()), 0o644); err != nil {
			return err
		}
		if err := os.WriteFile(cmd.Logs.Err, []byte(r.ErrLog), 0o644); err != nil {
			return err
		}
	}
	for _, out := range cmd.Outputs {
		if err := WriteFile(cmd.Dir, out, cmd.String()); err != nil {
			return err
		}
	}
	if r.Hook != nil {
		return r.Hook(cmd)
	}

	return nil
}

// Commands returns the recorded commands in call order.
func (r *Runner) Commands() []ants.Command {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]ants.Command(nil), r.cmds...)
}

// Named returns the recorded commands of an executable sorted by command line.
func (r *Runner) Named(name string) []ants.Command {
	var res []ants.Command
	for _, cmd := range r.Commands() {
		if cmd.Name == name {
			res = append(res, cmd)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].String() < res[j].String() })

	return res
}

// WriteFile writes content to path, resolved against dir when relative.
func WriteFile(dir, path, content string) error {
	if !filepath.IsAbs(path) && dir != "" {
		path = filepath.Join(dir, path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	return os.WriteFile(path, []byte(content), 0o644)
}
