package verify

import (
	"context"
	"encoding/csv"
	"math"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/askiada/antstemplate/internal/ants"
	"github.com/askiada/antstemplate/internal/nrrd"
	"github.com/askiada/antstemplate/internal/stage"
	"github.com/askiada/antstemplate/pkg/pipeline"
)

const (
	jacobianSuffix   = "_logjacobian.nrrd"
	consensusPrefix  = "consensus_segmentation_channel"
	jacobianValues   = "jacobian_values"
	meanJacobianFile = "mean_logjacobian.nrrd"
	sdJacobianFile   = "sd_logjacobian.nrrd"
)

// ErrNoWarps is returned when no forward warp is found.
var ErrNoWarps = errors.New("no warp fields found")

// JacobianOptions configures Jacobian.
type JacobianOptions struct {
	SynDirs      []string
	ProcessedDir string
	SummaryDir   string
	// ChannelDir receives the per channel statistics, SummaryDir when empty.
	ChannelDir string
	Workers    int
	// Consensus is an optional consensus segmentation splitting the statistics per channel.
	Consensus string
	// Channels defaults to the number of consensus channel files next to Consensus.
	Channels int
	// Histogram is an optional PNG path.
	Histogram string
}

// ChannelSummary is the summary of the voxels of one consensus channel.
type ChannelSummary struct {
	Channel int
	Summary Summary
}

// JacobianResult holds the statistics computed by Jacobian.
type JacobianResult struct {
	Volumes  []string
	Summary  Summary
	Channels []ChannelSummary
}

// FindWarps returns the forward warp fields of dirs.
func FindWarps(dirs ...string) ([]string, error) {
	var warps []string
	for _, dir := range dirs {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			return nil, errors.Wrap(stage.ErrMissingDir, dir)
		}
		matches, err := filepath.Glob(filepath.Join(dir, "*Warp.nii.gz"))
		if err != nil {
			return nil, errors.Wrapf(err, "unable to list %s", dir)
		}
		for _, match := range matches {
			if !strings.HasSuffix(match, "InverseWarp.nii.gz") {
				warps = append(warps, match)
			}
		}
	}
	if len(warps) == 0 {
		return nil, errors.Wrapf(ErrNoWarps, "in %s", strings.Join(dirs, ", "))
	}
	sort.Strings(warps)

	return warps, nil
}

// JacobianOutput returns the log Jacobian volume written for warp.
func JacobianOutput(warp, dir string) string {
	return filepath.Join(dir, strings.TrimSuffix(filepath.Base(warp), ".nii.gz")+jacobianSuffix)
}

// Jacobian summarizes the log Jacobian determinants of the warps found in the syn directories.
func Jacobian(ctx context.Context, env stage.Env, opts JacobianOptions) (*JacobianResult, error) {
	logger := env.Logger.With().Str("component", "jacobian").Logger()

	warps, err := FindWarps(opts.SynDirs...)
	if err != nil {
		return nil, err
	}
	workers := min(opts.Workers, len(warps))
	if err := stage.ValidateWorkers(workers, len(warps)); err != nil {
		return nil, err
	}
	if opts.ChannelDir == "" {
		opts.ChannelDir = opts.SummaryDir
	}
	for _, dir := range []string{opts.ProcessedDir, opts.SummaryDir, opts.ChannelDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrapf(err, "unable to create %s", dir)
		}
	}
	logger.Info().Int("warps", len(warps)).Int("workers", workers).Msg("computing log jacobians")

	volumes, err := computeJacobians(ctx, env, warps, opts.ProcessedDir, workers)
	if err != nil {
		return nil, err
	}

	jacobians, err := readVolumes(volumes)
	if err != nil {
		return nil, err
	}
	if err := writeVoxelStats(jacobians, opts.SummaryDir); err != nil {
		return nil, err
	}

	all := make([]float64, 0, len(jacobians)*len(jacobians[0].Data))
	for _, vol := range jacobians {
		all = append(all, vol.Data...)
	}
	summary, err := Summarize(all)
	if err != nil {
		return nil, err
	}
	logger.Info().
		Float64("mean", summary.Mean).
		Float64("sd", summary.SD).
		Floats64("ci95", []float64{summary.Low, summary.High}).
		Msg("log jacobian")
	if err := writeSummary(filepath.Join(opts.SummaryDir, jacobianValues+".txt"), summary); err != nil {
		return nil, err
	}

	if opts.Histogram != "" {
		if err := PlotHistogram(opts.Histogram, all, summary); err != nil {
			return nil, err
		}
		logger.Info().Str("file", opts.Histogram).Msg("saved histogram of jacobians")
	}

	res := &JacobianResult{Volumes: volumes, Summary: summary}
	if opts.Consensus != "" {
		res.Channels, err = channelStats(env, opts, jacobians)
		if err != nil {
			return nil, err
		}
	}

	return res, nil
}

func computeJacobians(ctx context.Context, env stage.Env, warps []string, dir string, workers int) ([]string, error) {
	logger := env.Logger.With().Str("component", "jacobian").Logger()

	pipe, err := env.NewPipeline(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "unable to create pipeline")
	}
	root, err := pipeline.AddRootStepFromSlice(pipe, "warps", warps)
	if err != nil {
		return nil, err
	}
	computed, err := pipeline.AddStepOneToOne(pipe, "jacobian", root, func(ctx context.Context, warp string) (string, error) {
		output := JacobianOutput(warp, dir)
		if _, err := os.Stat(output); err == nil {
			logger.Info().Str("file", output).Msg("already computed")

			return output, nil
		}
		if err := env.Runner.Run(ctx, ants.JacobianDeterminant(warp, output)); err != nil {
			return "", errors.Wrapf(err, "unable to compute the jacobian of %s", warp)
		}

		return output, nil
	}, pipeline.StepConcurrency[string](workers))
	if err != nil {
		return nil, err
	}

	var volumes []string
	err = pipeline.AddSink(pipe, "collect", computed, func(_ context.Context, output string) error {
		volumes = append(volumes, output)

		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := pipe.Run(); err != nil {
		return nil, err
	}
	sort.Strings(volumes)

	return volumes, nil
}

// readVolumes reads every file and checks they share the grid of the first one.
func readVolumes(files []string) ([]*nrrd.Volume, error) {
	volumes := make([]*nrrd.Volume, len(files))
	for i, file := range files {
		vol, err := nrrd.ReadFile(file)
		if err != nil {
			return nil, err
		}
		if i > 0 && !slices.Equal(vol.Sizes, volumes[0].Sizes) {
			return nil, errors.Wrapf(ErrDimensionMismatch, "%s is %v, %s is %v", file, vol.Sizes, files[0], volumes[0].Sizes)
		}
		volumes[i] = vol
	}

	return volumes, nil
}

func writeVoxelStats(volumes []*nrrd.Volume, dir string) error {
	n := len(volumes[0].Data)
	means := make([]float64, n)
	sds := make([]float64, n)
	voxel := make([]float64, len(volumes))
	for i := range n {
		for j, vol := range volumes {
			voxel[j] = vol.Data[i]
		}
		means[i], sds[i] = stat.PopMeanStdDev(voxel, nil)
	}

	header := volumes[0].Header
	if err := nrrd.WriteFile(filepath.Join(dir, meanJacobianFile), header, means); err != nil {
		return err
	}

	return nrrd.WriteFile(filepath.Join(dir, sdJacobianFile), header, sds)
}

// countChannels counts the consensus channel volumes in dir.
func countChannels(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, errors.Wrapf(err, "unable to list %s", dir)
	}
	n := 0
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), consensusPrefix) && strings.HasSuffix(entry.Name(), ".nrrd") {
			n++
		}
	}

	return n, nil
}

func channelStats(env stage.Env, opts JacobianOptions, jacobians []*nrrd.Volume) ([]ChannelSummary, error) {
	logger := env.Logger.With().Str("component", "jacobian").Logger()

	consensus, err := nrrd.ReadFile(opts.Consensus)
	if err != nil {
		return nil, err
	}
	if !slices.Equal(consensus.Sizes, jacobians[0].Sizes) {
		return nil, errors.Wrapf(ErrDimensionMismatch, "consensus is %v, jacobians are %v", consensus.Sizes, jacobians[0].Sizes)
	}
	channels := opts.Channels
	if channels == 0 {
		channels, err = countChannels(filepath.Dir(opts.Consensus))
		if err != nil {
			return nil, err
		}
	}
	if channels < 1 {
		return nil, errors.Wrapf(ErrNoValues, "no consensus channels next to %s", opts.Consensus)
	}
	logger.Info().Int("channels", channels).Msg("found consensus segmentation")

	edges := Linspace(0, floats.Max(consensus.Data), channels)
	labels := make([]int, len(consensus.Data))
	for i, v := range consensus.Data {
		labels[i] = Digitize(v, edges)
	}

	var res []ChannelSummary
	for c := range channels {
		masked := make([][]float64, len(jacobians))
		var all []float64
		for j, vol := range jacobians {
			for i, label := range labels {
				if label == c {
					masked[j] = append(masked[j], vol.Data[i])
				}
			}
			all = append(all, masked[j]...)
		}
		if len(all) == 0 {
			logger.Warn().Int("channel", c).Msg("no voxels in channel")

			continue
		}

		summary, err := Summarize(all)
		if err != nil {
			return nil, err
		}
		logger.Info().
			Int("channel", c).
			Float64("mean", summary.Mean).
			Float64("sd", summary.SD).
			Floats64("ci95", []float64{summary.Low, summary.High}).
			Msg("log jacobian")

		base := filepath.Join(opts.ChannelDir, jacobianValues+"_channel_"+strconv.Itoa(c))
		if err := writeSummary(base+".txt", summary); err != nil {
			return nil, err
		}
		if err := writeRows(base+".csv", masked); err != nil {
			return nil, err
		}
		res = append(res, ChannelSummary{Channel: c, Summary: summary})
	}

	return res, nil
}

// writeRows writes one comma separated row per slice.
func writeRows(path string, rows [][]float64) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "unable to create %s", path)
	}
	w := csv.NewWriter(f)
	for _, row := range rows {
		record := make([]string, len(row))
		for i, v := range row {
			record[i] = formatValue(v)
		}
		if err := w.Write(record); err != nil {
			f.Close()

			return errors.Wrapf(err, "unable to write %s", path)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()

		return errors.Wrapf(err, "unable to write %s", path)
	}

	return errors.Wrapf(f.Close(), "unable to close %s", path)
}

func formatValue(v float64) string {
	if math.IsNaN(v) {
		return "nan"
	}

	return strconv.FormatFloat(v, 'e', 18, 64)
}
