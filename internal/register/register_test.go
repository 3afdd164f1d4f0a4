package register_test

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askiada/antstemplate/internal/ants"
	"github.com/askiada/antstemplate/internal/ants/antstest"
	"github.com/askiada/antstemplate/internal/register"
	"github.com/askiada/antstemplate/internal/stage"
)

func setup(t *testing.T) (template, input, out string) {
	t.Helper()

	dir := t.TempDir()
	template = filepath.Join(dir, "template.nii.gz")
	input = filepath.Join(dir, "brain.nrrd")
	require.NoError(t, os.WriteFile(template, []byte("template"), 0o644))
	require.NoError(t, os.WriteFile(input, []byte("brain"), 0o644))

	return template, input, filepath.Join(dir, "out")
}

// registrationHook writes what antsIntroduction.sh leaves behind.
func registrationHook(cmd ants.Command) error {
	if cmd.Name != "antsIntroduction.sh" {
		return nil
	}
	prefix := cmd.Args[7]
	for _, file := range []string{"deformed.nii.gz", "Warp.nii.gz", "InverseWarp.nii.gz", "Affine.txt"} {
		if err := antstest.WriteFile("", prefix+file, file); err != nil {
			return err
		}
	}
	for _, file := range []string{"tmp1234/work.nii.gz", "brain.cfg", "brainrepaired.nii.gz"} {
		if err := antstest.WriteFile(cmd.Dir, file, file); err != nil {
			return err
		}
	}

	return nil
}

type lines struct {
	mu  sync.Mutex
	all []string
}

func (l *lines) add(line string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.all = append(l.all, line)
}

func TestRun(t *testing.T) {
	t.Parallel()

	template, input, out := setup(t)
	runner := &antstest.Runner{Hook: registrationHook}
	progress := &lines{}

	res, err := register.NewJob(template, input, out).Run(t.Context(), stage.Env{Runner: runner, Logger: zerolog.Nop()}, progress.add)
	require.NoError(t, err)
	assert.Equal(t, &register.FollowUp{
		Deformed:    filepath.Join(out, "brain_deformed.nii.gz"),
		Warp:        filepath.Join(out, "brain_Warp.nii.gz"),
		InverseWarp: filepath.Join(out, "brain_InverseWarp.nii.gz"),
		Affine:      filepath.Join(out, "brain_Affine.txt"),
	}, res)

	cmds := runner.Commands()
	require.Len(t, cmds, 1)
	assert.Equal(t, []string{
		"-d", "3", "-r", template, "-i", input, "-o", filepath.Join(out, "brain_"),
		"-m", "30x90x20x8", "-t", "GR", "-n", "1", "-q", "1", "-s", "CC",
	}, cmds[0].Args)
	assert.Equal(t, filepath.Join(out, "brain_out.log"), cmds[0].Logs.Out)
	assert.Equal(t, out, filepath.Dir(cmds[0].Dir))

	entries, err := os.ReadDir(out)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, entry.Name())
	}
	assert.ElementsMatch(t, []string{
		"brain_deformed.nii.gz", "brain_Warp.nii.gz", "brain_InverseWarp.nii.gz", "brain_Affine.txt", "tmp1234",
	}, names)

	assert.Equal(t, "Running registration...", progress.all[0])
	assert.Equal(t, "Registration finished.", progress.all[len(progress.all)-1])
}

func TestRunFlipSyNQuickDebug(t *testing.T) {
	t.Parallel()

	template, input, out := setup(t)
	runner := &antstest.Runner{}
	job := register.NewJob(template, input, out)
	job.Method = register.SyNQuick
	job.SyNQuick.Threads = 4
	job.Flip = true
	job.LowMemory = true
	job.Debug = true
	progress := &lines{}

	res, err := job.Run(t.Context(), stage.Env{Runner: runner, Logger: zerolog.Nop()}, progress.add)
	require.NoError(t, err)
	assert.True(t, res.Flipped)
	assert.Equal(t, filepath.Join(out, "brain_registered_Warped.nii.gz"), res.Deformed)
	assert.Equal(t, filepath.Join(out, "brain_registered_0GenericAffine.mat"), res.Affine)
	assert.Len(t, res.Missing, 4)

	cmds := runner.Commands()
	require.Len(t, cmds, 3)
	flipped := filepath.Join(out, "brain_flipped.nrrd")
	assert.Equal(t, []string{"3", filepath.Join(out, "brain.mat"), "ReflectionMatrix", input, "0"}, cmds[0].Args)
	assert.Equal(t, filepath.Join(out, "brain_out.log"), cmds[0].Logs.Out)
	assert.Equal(t, []string{
		"-d", "3", "-i", input, "-o", flipped, "-r", input, "-t", filepath.Join(out, "brain.mat"), "--float", "1",
	}, cmds[1].Args)
	assert.Equal(t, "antsRegistrationSyNQuick.sh", cmds[2].Name)
	assert.Equal(t, []string{
		"-d", "3", "-f", template, "-m", flipped, "-o", filepath.Join(out, "brain_registered_"),
		"-n", "4", "-t", "a", "-j", "0", "-y", "1",
	}, cmds[2].Args)
	assert.Equal(t, filepath.Join(out, "brain_registered_out.log"), cmds[2].Logs.Out)

	assert.FileExists(t, flipped)
	assert.FileExists(t, filepath.Join(out, "brain.mat"))
	assert.FileExists(t, filepath.Join(out, "brain_flipped_err.log"))
	reminder, err := os.ReadFile(filepath.Join(out, "brain_flipped.txt"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(reminder), "This file is a reminder"))
	assert.Equal(t, "Flipping the brain...", progress.all[0])
}

func TestRunFlipCleansIntermediates(t *testing.T) {
	t.Parallel()

	template, input, out := setup(t)
	job := register.NewJob(template, input, out)
	job.Flip = true

	_, err := job.Run(t.Context(), stage.Env{Runner: &antstest.Runner{Hook: registrationHook}, Logger: zerolog.Nop()}, nil)
	require.NoError(t, err)
	assert.NoFileExists(t, filepath.Join(out, "brain.mat"))
	assert.NoFileExists(t, filepath.Join(out, "brain_flipped.nrrd"))
	assert.NoFileExists(t, filepath.Join(out, "brain_flipped_out.log"))
	assert.FileExists(t, filepath.Join(out, "brain_flipped.txt"))
}

func TestRunPrefixExists(t *testing.T) {
	t.Parallel()

	template, input, out := setup(t)
	require.NoError(t, os.MkdirAll(out, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(out, "brain_deformed.nii.gz"), nil, 0o644))
	runner := &antstest.Runner{}

	_, err := register.NewJob(template, input, out).Run(t.Context(), stage.Env{Runner: runner, Logger: zerolog.Nop()}, nil)
	assert.ErrorIs(t, err, stage.ErrPrefixExists)
	assert.Empty(t, runner.Commands())
}

func TestRunRegistrationFailure(t *testing.T) {
	t.Parallel()

	template, input, out := setup(t)
	runner := &antstest.Runner{Fail: "antsIntroduction.sh"}

	_, err := register.NewJob(template, input, out).Run(t.Context(), stage.Env{Runner: runner, Logger: zerolog.Nop()}, nil)
	var exitErr *ants.ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, filepath.Join(out, "brain_err.log"), exitErr.ErrLog)
}

func TestRunMissingInput(t *testing.T) {
	t.Parallel()

	template, _, out := setup(t)

	_, err := register.NewJob(template, filepath.Join(out, "nope.nrrd"), out).
		Run(t.Context(), stage.Env{Runner: &antstest.Runner{}, Logger: zerolog.Nop()}, nil)
	assert.ErrorIs(t, err, stage.ErrMissingFile)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		update   func(j *register.Job)
		expected error
	}{
		"defaults":          {update: func(*register.Job) {}},
		"missing template":  {update: func(j *register.Job) { j.Template = "" }, expected: register.ErrMissingArgument},
		"missing output":    {update: func(j *register.Job) { j.OutputDir = "" }, expected: register.ErrMissingArgument},
		"space":             {update: func(j *register.Job) { j.Input = "my brain.nrrd" }, expected: register.ErrSpaceInPath},
		"method":            {update: func(j *register.Job) { j.Method = "elastix" }, expected: register.ErrInvalidMethod},
		"transform":         {update: func(j *register.Job) { j.Introduction.Transform = "XX" }, expected: register.ErrInvalidTransform},
		"metric":            {update: func(j *register.Job) { j.Introduction.Metric = "NCC" }, expected: register.ErrInvalidMetric},
		"iterations zero":   {update: func(j *register.Job) { j.Introduction.Iterations = "30x0x20" }, expected: register.ErrInvalidIterations},
		"iterations text":   {update: func(j *register.Job) { j.Introduction.Iterations = "30x9a" }, expected: register.ErrInvalidIterations},
		"single iteration":  {update: func(j *register.Job) { j.Introduction.Iterations = "100" }},
		"syn quick":         {update: func(j *register.Job) { j.Method = register.SyNQuick }},
		"syn quick threads": {update: func(j *register.Job) { j.Method = register.SyNQuick; j.SyNQuick.Threads = 0 }, expected: register.ErrInvalidThreads},
		"syn quick type":    {update: func(j *register.Job) { j.Method = register.SyNQuick; j.SyNQuick.Transform = "GR" }, expected: register.ErrInvalidTransform},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			job := register.NewJob("template.nii.gz", "brain.nrrd", "out")
			tc.update(&job)
			err := job.Validate()
			if tc.expected == nil {
				assert.NoError(t, err)

				return
			}
			assert.ErrorIs(t, err, tc.expected)
		})
	}
}

func TestPrefix(t *testing.T) {
	t.Parallel()

	job := register.NewJob("t.nii.gz", "in/brain.nii.gz", "out")
	assert.Equal(t, "out/brain_", job.Prefix())
	job.Method = register.SyNQuick
	assert.Equal(t, "out/brain_registered_", job.Prefix())
	assert.Equal(t, []string{"antsRegistrationSyNQuick.sh"}, job.Executables())
}
