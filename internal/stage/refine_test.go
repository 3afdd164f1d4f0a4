package stage

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askiada/antstemplate/internal/ants"
	"github.com/askiada/antstemplate/internal/ants/antstest"
	"github.com/askiada/antstemplate/internal/metadata"
)

func TestRefineTemplate(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	results := writeResults(t, root)
	writeFiles(t, filepath.Join(results, synDir), "complete_c_resampled_1x1x1.nrrd2deformed.nii.gz")
	out := filepath.Join(root, "refined")
	runner := &antstest.Runner{}

	output, err := RefineTemplate(t.Context(), testEnv(runner), RefineTemplateOptions{
		Results:   ResultsOptions{Root: filepath.Join(root, "results")},
		Metadata:  writeMetadata(t, root),
		OutputDir: out,
		Workers:   testWorkers,
	})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(out, "refined_template_20240305_1407.nii.gz"), output)
	assert.FileExists(t, output)

	tmp := filepath.Join(out, "temp_20240305_1407")
	normalized := runner.Named("ImageMath")
	require.Len(t, normalized, 2)
	a := filepath.Join(tmp, "complete_a_resampled_1x1x1.nrrd0deformed.nii.gz")
	c := filepath.Join(tmp, "complete_c_resampled_1x1x1.nrrd2deformed.nii.gz")
	assert.Equal(t, []string{"3", a, "Normalize", a}, normalized[0].Args)

	averages := runner.Named("AverageImages")
	require.Len(t, averages, 1)
	assert.Equal(t, []string{"3", output, "0", a, c}, averages[0].Args)
	assert.NoDirExists(t, tmp)
}

func TestRefineTemplateErrors(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		extra    string
		exclude  bool
		expected error
	}{
		"unknown sample": {
			extra:    "complete_z_resampled_1x1x1.nrrd3deformed.nii.gz",
			expected: metadata.ErrNotFound,
		},
		"nothing included": {
			exclude:  true,
			expected: ErrNothingIncluded,
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			root := t.TempDir()
			syn := filepath.Join(root, "run", synDir)
			files := []string{"complete_b_resampled_1x1x1.nrrd1deformed.nii.gz"}
			if !tc.exclude {
				files = append(files, "complete_a_resampled_1x1x1.nrrd0deformed.nii.gz")
			}
			if tc.extra != "" {
				files = append(files, tc.extra)
			}
			writeFiles(t, syn, files...)
			runner := &antstest.Runner{}

			_, err := RefineTemplate(t.Context(), testEnv(runner), RefineTemplateOptions{
				Results:   ResultsOptions{Dir: filepath.Join(root, "run")},
				Metadata:  writeMetadata(t, root),
				OutputDir: filepath.Join(root, "out"),
				Workers:   1,
			})
			assert.ErrorIs(t, err, tc.expected)
			assert.Empty(t, runner.Commands())
		})
	}
}

func TestRefineTemplateOutputExists(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	results := writeResults(t, root)
	out := filepath.Join(root, "refined")
	writeFiles(t, out, "refined_template_20240305_1407.nii.gz")

	_, err := RefineTemplate(t.Context(), testEnv(&antstest.Runner{}), RefineTemplateOptions{
		Results:   ResultsOptions{Dir: results},
		Metadata:  writeMetadata(t, root),
		OutputDir: out,
		Workers:   1,
	})
	assert.ErrorIs(t, err, ErrOutputExists)
}

func TestRefineTemplateNormalizeFailure(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	results := writeResults(t, root)
	writeFiles(t, filepath.Join(results, synDir), "complete_c_resampled_1x1x1.nrrd2deformed.nii.gz")
	out := filepath.Join(root, "refined")
	runner := &antstest.Runner{Hook: func(cmd ants.Command) error {
		if cmd.Name == "ImageMath" && strings.Contains(cmd.Args[1], "complete_c_") {
			return &ants.ExitError{Name: cmd.Name, Code: 1}
		}

		return nil
	}}

	_, err := RefineTemplate(t.Context(), testEnv(runner), RefineTemplateOptions{
		Results:   ResultsOptions{Dir: results},
		Metadata:  writeMetadata(t, root),
		OutputDir: out,
		Workers:   testWorkers,
	})
	var exitErr *ants.ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Empty(t, runner.Named("AverageImages"))
	assert.NoFileExists(t, filepath.Join(out, "refined_template_20240305_1407.nii.gz"))
}
