package verify_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askiada/antstemplate/internal/ants"
	"github.com/askiada/antstemplate/internal/ants/antstest"
	"github.com/askiada/antstemplate/internal/nrrd"
	"github.com/askiada/antstemplate/internal/stage"
	"github.com/askiada/antstemplate/internal/verify"
)

var jacobians = map[string][]float64{
	"a_Warp.nii.gz": {0, 1, 2, 3},
	"b_Warp.nii.gz": {2, 3, 4, 5},
}

// jacobianHook replaces the fake outputs of CreateJacobianDeterminantImage with real volumes.
func jacobianHook(cmd ants.Command) error {
	if cmd.Name != "CreateJacobianDeterminantImage" {
		return nil
	}
	header := nrrd.Header{Fields: []nrrd.Field{
		{Key: "dimension", Value: "3"},
		{Key: "sizes", Value: "2 2 1"},
		{Key: "space directions", Value: "(1,0,0) (0,1,0) (0,0,1)"},
	}}

	return nrrd.WriteFile(cmd.Outputs[0], header, jacobians[filepath.Base(cmd.Args[1])])
}

func writeSyn(t *testing.T) string {
	t.Helper()

	syn := filepath.Join(t.TempDir(), "syn")
	require.NoError(t, os.MkdirAll(syn, 0o755))
	for _, name := range []string{"a_Warp.nii.gz", "a_InverseWarp.nii.gz", "b_Warp.nii.gz", "a_deformed.nii.gz"} {
		require.NoError(t, os.WriteFile(filepath.Join(syn, name), []byte(name), 0o644))
	}

	return syn
}

func readText(t *testing.T, path string) string {
	t.Helper()

	b, err := os.ReadFile(path)
	require.NoError(t, err)

	return string(b)
}

func TestFindWarps(t *testing.T) {
	t.Parallel()

	syn := writeSyn(t)
	warps, err := verify.FindWarps(syn)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(syn, "a_Warp.nii.gz"), filepath.Join(syn, "b_Warp.nii.gz")}, warps)

	_, err = verify.FindWarps(t.TempDir())
	require.ErrorIs(t, err, verify.ErrNoWarps)

	_, err = verify.FindWarps(filepath.Join(syn, "missing"))
	require.ErrorIs(t, err, stage.ErrMissingDir)
}

func TestJacobian(t *testing.T) {
	t.Parallel()

	syn := writeSyn(t)
	root := t.TempDir()
	processed := filepath.Join(root, "processed")
	summary := filepath.Join(root, "whole_brain")
	runner := &antstest.Runner{Hook: jacobianHook}

	res, err := verify.Jacobian(t.Context(), testEnv(runner), verify.JacobianOptions{
		SynDirs:      []string{syn},
		ProcessedDir: processed,
		SummaryDir:   summary,
		Workers:      testWorkers,
		Histogram:    filepath.Join(summary, "jacobian_histogram.png"),
	})
	require.NoError(t, err)

	assert.Equal(t, []string{
		filepath.Join(processed, "a_Warp_logjacobian.nrrd"),
		filepath.Join(processed, "b_Warp_logjacobian.nrrd"),
	}, res.Volumes)
	assert.Len(t, runner.Named("CreateJacobianDeterminantImage"), 2)

	assert.Equal(t, []float64{1, 2, 3, 4}, readVolume(t, filepath.Join(summary, "mean_logjacobian.nrrd")))
	assert.Equal(t, []float64{1, 1, 1, 1}, readVolume(t, filepath.Join(summary, "sd_logjacobian.nrrd")))

	assert.InDelta(t, 2.5, res.Summary.Mean, 1e-9)
	assert.InDelta(t, 1.5, res.Summary.SD, 1e-9)
	assert.Equal(t, "Mean log jacobian: 2.5000\nSD log jacobian: 1.5000\n95% CI: [0.1750, 4.8250]\n",
		readText(t, filepath.Join(summary, "jacobian_values.txt")))

	png := readText(t, filepath.Join(summary, "jacobian_histogram.png"))
	assert.True(t, strings.HasPrefix(png, "\x89PNG"))
	assert.Empty(t, res.Channels)
}

func TestJacobianSkipsExisting(t *testing.T) {
	t.Parallel()

	syn := writeSyn(t)
	root := t.TempDir()
	processed := filepath.Join(root, "processed")
	writeVolume(t, filepath.Join(processed, "a_Warp_logjacobian.nrrd"), jacobians["a_Warp.nii.gz"], 2, 2, 1)
	runner := &antstest.Runner{Hook: jacobianHook}

	res, err := verify.Jacobian(t.Context(), testEnv(runner), verify.JacobianOptions{
		SynDirs:      []string{syn},
		ProcessedDir: processed,
		SummaryDir:   filepath.Join(root, "whole_brain"),
		Workers:      1,
	})
	require.NoError(t, err)
	require.Len(t, res.Volumes, 2)

	cmds := runner.Named("CreateJacobianDeterminantImage")
	require.Len(t, cmds, 1)
	assert.Equal(t, filepath.Join(syn, "b_Warp.nii.gz"), cmds[0].Args[1])
}

func TestJacobianChannels(t *testing.T) {
	t.Parallel()

	syn := writeSyn(t)
	root := t.TempDir()
	template := filepath.Join(root, "template")
	consensus := filepath.Join(template, "consensus_segmentation_template.nrrd")
	writeVolume(t, consensus, []float64{0, 0, 1, 2}, 2, 2, 1)
	writeVolume(t, filepath.Join(template, "consensus_segmentation_channel_0_template.nrrd"), []float64{1, 1, 1, 0}, 2, 2, 1)
	writeVolume(t, filepath.Join(template, "consensus_segmentation_channel_1_template.nrrd"), []float64{0, 0, 0, 1}, 2, 2, 1)
	neuropils := filepath.Join(root, "neuropils")

	res, err := verify.Jacobian(t.Context(), testEnv(&antstest.Runner{Hook: jacobianHook}), verify.JacobianOptions{
		SynDirs:      []string{syn},
		ProcessedDir: filepath.Join(root, "processed"),
		SummaryDir:   filepath.Join(root, "whole_brain"),
		ChannelDir:   neuropils,
		Workers:      testWorkers,
		Consensus:    consensus,
	})
	require.NoError(t, err)
	require.Len(t, res.Channels, 2)

	assert.Equal(t, 0, res.Channels[0].Channel)
	assert.Equal(t, 6, res.Channels[0].Summary.N)
	assert.InDelta(t, 2, res.Channels[0].Summary.Mean, 1e-9)

	assert.Equal(t, 1, res.Channels[1].Channel)
	assert.InDelta(t, 4, res.Channels[1].Summary.Mean, 1e-9)
	assert.Equal(t, "Mean log jacobian: 4.0000\nSD log jacobian: 1.0000\n95% CI: [3.0500, 4.9500]\n",
		readText(t, filepath.Join(neuropils, "jacobian_values_channel_1.txt")))
	assert.Equal(t, "3.000000000000000000e+00\n5.000000000000000000e+00\n",
		readText(t, filepath.Join(neuropils, "jacobian_values_channel_1.csv")))
	assert.Equal(t,
		"0.000000000000000000e+00,1.000000000000000000e+00,2.000000000000000000e+00\n"+
			"2.000000000000000000e+00,3.000000000000000000e+00,4.000000000000000000e+00\n",
		readText(t, filepath.Join(neuropils, "jacobian_values_channel_0.csv")))
}

func TestJacobianDimensionMismatch(t *testing.T) {
	t.Parallel()

	syn := writeSyn(t)
	root := t.TempDir()
	processed := filepath.Join(root, "processed")
	writeVolume(t, filepath.Join(processed, "a_Warp_logjacobian.nrrd"), []float64{1, 2}, 2, 1, 1)

	_, err := verify.Jacobian(t.Context(), testEnv(&antstest.Runner{Hook: jacobianHook}), verify.JacobianOptions{
		SynDirs:      []string{syn},
		ProcessedDir: processed,
		SummaryDir:   filepath.Join(root, "whole_brain"),
		Workers:      1,
	})
	require.ErrorIs(t, err, verify.ErrDimensionMismatch)
}

func TestJacobianFailure(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	_, err := verify.Jacobian(t.Context(), testEnv(&antstest.Runner{Fail: "CreateJacobianDeterminantImage"}), verify.JacobianOptions{
		SynDirs:      []string{writeSyn(t)},
		ProcessedDir: filepath.Join(root, "processed"),
		SummaryDir:   filepath.Join(root, "whole_brain"),
		Workers:      1,
	})

	var exitErr *ants.ExitError
	require.ErrorAs(t, err, &exitErr)
}
