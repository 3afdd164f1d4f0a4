package verify_test

import (
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askiada/antstemplate/internal/ants/antstest"
	"github.com/askiada/antstemplate/internal/stage"
	"github.com/askiada/antstemplate/internal/verify"
)

const isotropic = "(1,0,0) (0,1,0) (0,0,1)"

func TestFindPeaks(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		hist      []float64
		threshold float64
		want      []int
	}{
		"two peaks": {
			hist:      []float64{0, 2000, 0, 500, 3000, 1500, 0},
			threshold: verify.DefaultPeakThreshold,
			want:      []int{1, 4},
		},
		"too low": {
			hist:      []float64{0, 999, 0},
			threshold: verify.DefaultPeakThreshold,
		},
		"edges are not peaks": {
			hist:      []float64{5000, 0, 0, 5000},
			threshold: verify.DefaultPeakThreshold,
		},
		"plateau fails the threshold": {
			hist:      []float64{0, 2000, 2000, 0},
			threshold: verify.DefaultPeakThreshold,
		},
		"plateau middle without threshold": {
			hist: []float64{0, 2000, 2000, 2000, 0, 1, 1, 0},
			want: []int{2, 5},
		},
		"plateau running into the edge": {
			hist: []float64{0, 3, 3, 3},
		},
		"rising shoulder is not a peak": {
			hist: []float64{0, 2, 2, 5, 0},
			want: []int{3},
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tc.want, verify.FindPeaks(tc.hist, tc.threshold))
		})
	}
}

func TestChannels(t *testing.T) {
	t.Parallel()

	n, labels := verify.Channels([]float64{0, 0, 255}, verify.DefaultPeakThreshold)
	assert.Equal(t, 2, n)
	assert.Equal(t, []int{0, 0, 1}, labels)

	values := make([]float64, 2002)
	for i := range 2000 {
		values[i] = 128
	}
	values[2001] = 255
	n, labels = verify.Channels(values, verify.DefaultPeakThreshold)
	assert.Equal(t, 3, n)
	assert.Equal(t, 1, labels[0])
	assert.Equal(t, 0, labels[2000])
	assert.Equal(t, 2, labels[2001])
}

func TestDiceScore(t *testing.T) {
	t.Parallel()

	assert.InDelta(t, 0.5, verify.DiceScore(2, 4, 4), 1e-9)
	assert.InDelta(t, 1, verify.DiceScore(3, 3, 3), 1e-9)
	assert.True(t, math.IsNaN(verify.DiceScore(0, 0, 3)))
	assert.True(t, math.IsNaN(verify.DiceScore(0, 3, 0)))
}

func writeLabels(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	writeLabel(t, filepath.Join(dir, "s1_segmented.nrrd"), isotropic, []uint8{0, 255, 255, 0})
	writeLabel(t, filepath.Join(dir, "s2_segmented.nrrd"), isotropic, []uint8{0, 255, 0, 0})
	writeLabel(t, filepath.Join(dir, "s3_segmented.nrrd"), isotropic, []uint8{0, 255, 255, 255})
	writeLabel(t, filepath.Join(dir, "s4.nrrd"), "(2,0,0) (0,2,0) (0,0,2)", []uint8{0})

	return dir
}

const wantDiceStats = `Channel 0 (Background)
==========
Average Dice score: 0.66
Median Dice score: 0.67
95% CI Dice score: (0.51, 0.79)
Min Dice score: 0.50
Max Dice score: 0.80
Std Dice score: 0.12

Channel 1
==========
Average Dice score: 0.66
Median Dice score: 0.67
95% CI Dice score: (0.51, 0.79)
Min Dice score: 0.50
Max Dice score: 0.80
Std Dice score: 0.12

`

func TestDice(t *testing.T) {
	t.Parallel()

	labels := writeLabels(t)
	out := filepath.Join(t.TempDir(), "processed_data", "template")

	res, err := verify.Dice(t.Context(), testEnv(&antstest.Runner{}), verify.DiceOptions{
		LabelsDir: labels,
		OutputDir: out,
		Workers:   testWorkers,
	})
	require.NoError(t, err)
	require.Len(t, res.Labels, 3)
	assert.Equal(t, 2, res.Channels)

	assert.Equal(t, []float64{0, 1, 1, 0}, readVolume(t, filepath.Join(out, "s1_segmented_processed.nrrd")))
	assert.Equal(t, []float64{1, 0, 0, 0}, readVolume(t, verify.ConsensusName(out, verify.TemplateSet, 0)))
	assert.Equal(t, []float64{0, 1, 0, 0}, readVolume(t, verify.ConsensusName(out, verify.TemplateSet, 1)))
	assert.Equal(t, []float64{0, 2, 0, 0}, readVolume(t, filepath.Join(out, "consensus_segmentation_template.nrrd")))

	want := map[[3]int]float64{
		{0, 0, 1}: 0.8, {0, 0, 2}: 2.0 / 3, {0, 1, 2}: 0.5,
		{1, 0, 1}: 2.0 / 3, {1, 0, 2}: 0.8, {1, 1, 2}: 0.5,
	}
	require.Len(t, res.Scores, len(want))
	for _, s := range res.Scores {
		assert.InDelta(t, want[[3]int{s.Channel, s.I, s.J}], s.Score, 1e-9)
	}

	require.Len(t, res.Stats, 2)
	for _, s := range res.Stats {
		require.Len(t, s.Lowest, 3)
		assert.Equal(t, 1, s.Lowest[0].I)
		assert.Equal(t, 2, s.Lowest[0].J)
	}

	assert.Equal(t, wantDiceStats, readText(t, filepath.Join(out, "dice_scores_channel_template.txt")))
	csv := readText(t, filepath.Join(out, "dice_scores_template.csv"))
	assert.Contains(t, csv, "channel,i,j,dice\n")
	assert.Contains(t, csv, "0,1,2,5.000000000000000000e-01\n")
}

func TestDiceLowest(t *testing.T) {
	t.Parallel()

	res, err := verify.Dice(t.Context(), testEnv(&antstest.Runner{}), verify.DiceOptions{
		LabelsDir: writeLabels(t),
		OutputDir: t.TempDir(),
		Workers:   1,
		Lowest:    1,
	})
	require.NoError(t, err)
	for _, s := range res.Stats {
		require.Len(t, s.Lowest, 1)
		assert.InDelta(t, 0.5, s.Lowest[0].Score, 1e-9)
	}
}

func TestDiceErrors(t *testing.T) {
	t.Parallel()

	peaked := make([]uint8, 2002)
	for i := range 2000 {
		peaked[i] = 128
	}
	peaked[2001] = 255
	flat := make([]uint8, 2002)
	flat[2000], flat[2001] = 255, 255

	tcs := map[string]struct {
		setup func(t *testing.T, dir string)
		err   error
	}{
		"no labels": {
			setup: func(t *testing.T, dir string) {
				t.Helper()
				writeLabel(t, filepath.Join(dir, "s1.nrrd"), isotropic, []uint8{0})
			},
			err: verify.ErrNoLabels,
		},
		"spacing mismatch": {
			setup: func(t *testing.T, dir string) {
				t.Helper()
				writeLabel(t, filepath.Join(dir, "s1_segmented.nrrd"), isotropic, []uint8{0, 255})
				writeLabel(t, filepath.Join(dir, "s2_segmented.nrrd"), "(2,0,0) (0,2,0) (0,0,2)", []uint8{0, 255})
			},
			err: verify.ErrSpacingMismatch,
		},
		"dimension mismatch": {
			setup: func(t *testing.T, dir string) {
				t.Helper()
				writeLabel(t, filepath.Join(dir, "s1_segmented.nrrd"), isotropic, []uint8{0, 255})
				writeLabel(t, filepath.Join(dir, "s2_segmented.nrrd"), isotropic, []uint8{0, 255, 0})
			},
			err: verify.ErrDimensionMismatch,
		},
		"channel mismatch": {
			setup: func(t *testing.T, dir string) {
				t.Helper()
				writeLabel(t, filepath.Join(dir, "s1_segmented.nrrd"), isotropic, peaked)
				writeLabel(t, filepath.Join(dir, "s2_segmented.nrrd"), isotropic, flat)
			},
			err: verify.ErrChannelMismatch,
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			dir := t.TempDir()
			tc.setup(t, dir)
			_, err := verify.Dice(t.Context(), testEnv(&antstest.Runner{}), verify.DiceOptions{
				LabelsDir: dir,
				OutputDir: filepath.Join(dir, "out"),
				Workers:   1,
			})
			require.ErrorIs(t, err, tc.err)
		})
	}
}

func TestDiceMissingDir(t *testing.T) {
	t.Parallel()

	_, err := verify.Dice(t.Context(), testEnv(&antstest.Runner{}), verify.DiceOptions{
		LabelsDir: filepath.Join(t.TempDir(), "missing"),
		OutputDir: t.TempDir(),
		Workers:   1,
	})
	require.ErrorIs(t, err, stage.ErrMissingDir)
}
