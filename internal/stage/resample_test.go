package stage

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askiada/antstemplate/internal/ants"
	"github.com/askiada/antstemplate/internal/ants/antstest"
)

func TestResample(t *testing.T) {
	t.Parallel()

	in := t.TempDir()
	out := filepath.Join(t.TempDir(), "resampled")
	writeFiles(t, in, "a.nrrd", "b_mirror.nrrd")
	writeFiles(t, out, "a_resampled_0.8x0.8x0.8.nrrd")
	runner := &antstest.Runner{}

	outputs, err := Resample(t.Context(), testEnv(runner), ResampleOptions{
		InputDir:  in,
		OutputDir: out,
		VoxelSize: "0.8x0.8x0.8",
		Workers:   testWorkers,
		CleanUp:   true,
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		filepath.Join(out, "a_resampled_0.8x0.8x0.8.nrrd"),
		filepath.Join(out, "b_mirror_resampled_0.8x0.8x0.8.nrrd"),
	}, outputs)

	cmds := runner.Named("ResampleImage")
	require.Len(t, cmds, 2)
	assert.Equal(t, []string{
		"3", filepath.Join(in, "a.nrrd"), filepath.Join(out, "a_resampled_0.8x0.8x0.8.nrrd"), "0.8x0.8x0.8", "0", "0", "6",
	}, cmds[0].Args)
	assert.ElementsMatch(t, []string{"a_resampled_0.8x0.8x0.8.nrrd", "b_mirror_resampled_0.8x0.8x0.8.nrrd"}, listDir(t, out))
}

func TestResampleErrors(t *testing.T) {
	t.Parallel()

	in := t.TempDir()
	writeFiles(t, in, "a.nrrd")

	tcs := map[string]struct {
		opts     ResampleOptions
		expected error
	}{
		"invalid voxel": {
			opts:     ResampleOptions{InputDir: in, OutputDir: t.TempDir(), VoxelSize: "0.8x0.8", Workers: 1},
			expected: ants.ErrInvalidVoxelSize,
		},
		"negative voxel": {
			opts:     ResampleOptions{InputDir: in, OutputDir: t.TempDir(), VoxelSize: "0.8x-1x0.8", Workers: 1},
			expected: ants.ErrInvalidVoxelSize,
		},
		"empty input": {
			opts:     ResampleOptions{InputDir: t.TempDir(), OutputDir: t.TempDir(), VoxelSize: "1x1x1", Workers: 1},
			expected: ErrNoInputFiles,
		},
		"workers": {
			opts:     ResampleOptions{InputDir: in, OutputDir: t.TempDir(), VoxelSize: "1x1x1", Workers: 0},
			expected: ErrInvalidWorkers,
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			_, err := Resample(t.Context(), testEnv(&antstest.Runner{}), tc.opts)
			assert.ErrorIs(t, err, tc.expected)
		})
	}
}

func TestEstimate(t *testing.T) {
	t.Parallel()

	assert.Equal(t, time.Duration(0), estimate(time.Minute, 0, 4))
	assert.Equal(t, 3*time.Minute, estimate(time.Minute, 1, 4))
	assert.Equal(t, time.Minute, estimate(3*time.Minute, 3, 4))
	assert.Equal(t, time.Duration(0), estimate(4*time.Minute, 4, 4))
}

func TestProgressString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "estimating time to completion", Progress{Total: 3}.String())
	assert.Contains(t, Progress{Done: 1, Total: 3, ETA: 2 * time.Hour}.String(), "from now")
}
