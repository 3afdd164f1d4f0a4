//go:build unix

package ants_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askiada/antstemplate/internal/ants"
)

func writeScript(t *testing.T, dir, name, body string) {
	t.Helper()

	err := os.WriteFile(filepath.Join(dir, name), []byte("#!/bin/sh\n"+body+"\n"), 0o755)
	require.NoError(t, err)
}

func TestRunnerLogs(t *testing.T) {
	t.Parallel()

	binDir := t.TempDir()
	workDir := t.TempDir()
	writeScript(t, binDir, "ImageMath", `echo "args: $*"; echo "warning" >&2; touch "$2"`)

	runner := ants.NewRunner(ants.WithBinDir(binDir))
	matrix := filepath.Join(workDir, "brain_mirror.mat")
	cmd := ants.ReflectionMatrix("brain.nrrd", matrix, ants.Horizontal).WithLogs(filepath.Join(workDir, "brain_mirror"))

	require.NoError(t, runner.Run(t.Context(), cmd))
	assert.FileExists(t, matrix)

	out, err := os.ReadFile(cmd.Logs.Out)
	require.NoError(t, err)
	assert.Equal(t, "args: 3 "+matrix+" ReflectionMatrix brain.nrrd 0\n", string(out))

	errLog, err := os.ReadFile(cmd.Logs.Err)
	require.NoError(t, err)
	assert.Equal(t, "warning\n", string(errLog))
}

func TestRunnerProgress(t *testing.T) {
	t.Parallel()

	binDir := t.TempDir()
	writeScript(t, binDir, "antsIntroduction.sh", `echo first; printf "second"`)

	var (
		mu    sync.Mutex
		lines []string
	)
	runner := ants.NewRunner(ants.WithBinDir(binDir), ants.WithProgress(func(line string) {
		mu.Lock()
		defer mu.Unlock()
		lines = append(lines, line)
	}))

	require.NoError(t, runner.Run(t.Context(), ants.Introduction(ants.IntroductionOptions{})))
	assert.Equal(t, []string{"first", "second"}, lines)
}

func TestRunnerExitError(t *testing.T) {
	t.Parallel()

	binDir := t.TempDir()
	workDir := t.TempDir()
	writeScript(t, binDir, "AverageImages", `exit 3`)

	runner := ants.NewRunner(ants.WithBinDir(binDir))
	cmd := ants.AverageImages(filepath.Join(workDir, "t.nrrd"), true, "a.nrrd").WithLogs(filepath.Join(workDir, "average"))

	err := runner.Run(t.Context(), cmd)
	var exitErr *ants.ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 3, exitErr.Code)
	assert.Equal(t, cmd.Logs.Err, exitErr.ErrLog)
	assert.Contains(t, err.Error(), "AverageImages exited with status 3")
}

func TestRunnerMissingOutput(t *testing.T) {
	t.Parallel()

	binDir := t.TempDir()
	writeScript(t, binDir, "ImageMath", `exit 0`)

	runner := ants.NewRunner(ants.WithBinDir(binDir))
	err := runner.Run(t.Context(), ants.Normalize(filepath.Join(t.TempDir(), "f.nii.gz")))
	require.ErrorIs(t, err, ants.ErrMissingOutput)
}

func TestRunnerRelativeOutputInDir(t *testing.T) {
	t.Parallel()

	binDir := t.TempDir()
	workDir := t.TempDir()
	writeScript(t, binDir, "ImageMath", `touch "$2"`)

	runner := ants.NewRunner(ants.WithBinDir(binDir))
	cmd := ants.Normalize("f.nii.gz")
	cmd.Dir = workDir

	require.NoError(t, runner.Run(t.Context(), cmd))
	assert.FileExists(t, filepath.Join(workDir, "f.nii.gz"))
}

func TestRunnerCancel(t *testing.T) {
	t.Parallel()

	binDir := t.TempDir()
	writeScript(t, binDir, "antsRegistrationSyNQuick.sh", `sleep 30 & wait`)

	runner := ants.NewRunner(ants.WithBinDir(binDir))
	ctx, cancel := context.WithTimeout(t.Context(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := runner.Run(ctx, ants.SyNQuick(ants.SyNQuickOptions{}))
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 10*time.Second)
}

func TestRunnerCheck(t *testing.T) {
	t.Parallel()

	binDir := t.TempDir()
	writeScript(t, binDir, "ImageMath", `exit 0`)

	runner := ants.NewRunner(ants.WithBinDir(binDir))
	require.NoError(t, runner.Check("ImageMath"))
	require.ErrorIs(t, runner.Check("ImageMath", "definitely-not-an-ants-tool"), ants.ErrNotInstalled)
}
