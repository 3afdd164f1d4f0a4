package verify

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/askiada/antstemplate/internal/ants"
	"github.com/askiada/antstemplate/internal/naming"
	"github.com/askiada/antstemplate/internal/register"
	"github.com/askiada/antstemplate/internal/stage"
	"github.com/askiada/antstemplate/internal/warp"
	"github.com/askiada/antstemplate/pkg/pipeline"
)

const (
	TrainSet = "train"
	TestSet  = "test"

	// DefaultSegmentVoxel is the resolution the samples are registered at.
	DefaultSegmentVoxel = "0.8x0.8x0.8"
	// DefaultSide is the hemisphere every sample is brought to.
	DefaultSide = "LEFT"

	segmentationTag = "_segmentation"
	backupDir       = "backup"
	registrationDir = "registration"
	warpedDir       = "warped"
)

var (
	ErrInvalidSet    = errors.New("set must be train or test")
	ErrInvalidSide   = errors.New("side must be LEFT or RIGHT")
	ErrNoPairs       = errors.New("no image with a matching segmentation found")
	ErrTemplate      = errors.New("expected exactly one template at the target resolution")
	ErrNotRegistered = errors.New("registration did not write its transforms")
	ErrSameSample    = errors.New("samples collide once brought to the same side")
)

// SegmentOptions configures Segment.
type SegmentOptions struct {
	// DataDir holds the images and their <image>_segmentation.nrrd labels.
	DataDir string
	// TemplateDir is searched for the template at VoxelSize unless Template is set.
	TemplateDir string
	Template    string
	OutputDir   string
	// Set is TrainSet or TestSet.
	Set string
	// VoxelSize defaults to DefaultSegmentVoxel.
	VoxelSize string
	// Side defaults to DefaultSide. Samples of the other side are mirrored.
	Side string
	// Quality runs the extra affine quality step of antsIntroduction.
	Quality   bool
	Threshold float64
	Lowest    int
	Workers   int
	Debug     bool
}

// Sample is an image and its segmentation followed through the workflow.
type Sample struct {
	Image string
	Label string
	// Mirrored is set when the sample was reflected onto the target side.
	Mirrored bool

	BackupImage string
	BackupLabel string
	// Resampled are the inputs of the registration.
	ResampledImage string
	ResampledLabel string
	// Warped is the label in template space, reflected back when mirrored.
	Warped string
}

// SegmentResult is what Segment produced.
type SegmentResult struct {
	Template string
	Samples  []Sample
	Dice     *DiceResult
}

func (o SegmentOptions) withDefaults() SegmentOptions {
	if o.VoxelSize == "" {
		o.VoxelSize = DefaultSegmentVoxel
	}
	if o.Side == "" {
		o.Side = DefaultSide
	}

	return o
}

func (o SegmentOptions) validate() error {
	switch o.Set {
	case TrainSet, TestSet:
	default:
		return errors.Wrapf(ErrInvalidSet, "got %q", o.Set)
	}
	switch o.Side {
	case "LEFT", "RIGHT":
	default:
		return errors.Wrapf(ErrInvalidSide, "got %q", o.Side)
	}
	if _, err := ants.ParseVoxelSize(o.VoxelSize); err != nil {
		return err
	}
	if o.Workers < 1 {
		return errors.Wrapf(stage.ErrInvalidWorkers, "%d is less than 1", o.Workers)
	}

	return nil
}

func otherSide(side string) string {
	if side == "LEFT" {
		return "RIGHT"
	}

	return "LEFT"
}

// PairSegmentations pairs every image of dir with the label named <image stem>_segmentation.nrrd.
// Images without a label are left out.
func PairSegmentations(dir string) ([]Sample, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, errors.Wrap(stage.ErrMissingDir, dir)
		}

		return nil, errors.Wrapf(err, "unable to list %s", dir)
	}

	var images []string
	labels := make(map[string]string)
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".nrrd") {
			continue
		}
		stem := strings.TrimSuffix(name, ".nrrd")
		if strings.Contains(name, "segmentation") {
			labels[strings.Replace(stem, segmentationTag, "", 1)] = filepath.Join(dir, name)

			continue
		}
		images = append(images, stem)
	}
	sort.Strings(images)

	var res []Sample
	for _, stem := range images {
		label, ok := labels[stem]
		if !ok {
			continue
		}
		res = append(res, Sample{Image: filepath.Join(dir, stem+".nrrd"), Label: label})
	}
	if len(res) == 0 {
		return nil, errors.Wrap(ErrNoPairs, dir)
	}

	return res, nil
}

// FindTemplate returns the only .nrrd of dir whose name carries voxel.
func FindTemplate(dir, voxel string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", errors.Wrap(stage.ErrMissingDir, dir)
		}

		return "", errors.Wrapf(err, "unable to list %s", dir)
	}

	var found []string
	for _, entry := range entries {
		name := entry.Name()
		if !entry.IsDir() && strings.HasSuffix(name, ".nrrd") && strings.Contains(name, voxel) {
			found = append(found, filepath.Join(dir, name))
		}
	}
	if len(found) != 1 {
		return "", errors.Wrapf(ErrTemplate, "%d templates at %s in %s", len(found), voxel, dir)
	}

	return found[0], nil
}

// sideName renames base onto side when it carries the other one.
func sideName(base, side string) (string, bool) {
	other := otherSide(side)
	if !strings.Contains(base, other) {
		return base, false
	}

	return strings.ReplaceAll(base, other, side), true
}

func (s *Sample) plan(opts SegmentOptions) {
	backup := filepath.Join(opts.OutputDir, backupDir)
	image, mirrored := sideName(filepath.Base(s.Image), opts.Side)
	label, _ := sideName(filepath.Base(s.Label), opts.Side)
	s.Mirrored = mirrored
	s.BackupImage = filepath.Join(backup, image)
	s.BackupLabel = filepath.Join(backup, label)
	s.ResampledImage = naming.Resampled(s.BackupImage, opts.OutputDir, opts.VoxelSize)
	s.ResampledLabel = naming.Resampled(s.BackupLabel, opts.OutputDir, opts.VoxelSize)
}

// prepare brings src onto the target side into dst, reflecting it when mirrored.
// An existing dst is kept.
func prepare(ctx context.Context, env stage.Env, logger zerolog.Logger, src, dst string, mirrored, label bool) error {
	if _, err := os.Stat(dst); err == nil {
		logger.Info().Str("file", dst).Msg("already prepared, skipping")

		return nil
	}
	if !mirrored {
		return stage.CopyFile(src, dst)
	}
	flip := stage.Reflection{
		Input:  src,
		Output: dst,
		Matrix: filepath.Join(filepath.Dir(dst), naming.Stem(src)+"_reflection_matrix.mat"),
		Axis:   ants.Horizontal,
		Label:  label,
	}
	if err := flip.Run(ctx, env.Runner, nil); err != nil {
		return errors.Wrapf(err, "unable to mirror %s", src)
	}

	return nil
}

func allExist(paths ...string) bool {
	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			return false
		}
	}

	return true
}

// Segment registers every training or test sample to the template, warps its
// segmentation into template space and scores the overlap of the warped labels.
func Segment(ctx context.Context, env stage.Env, opts SegmentOptions) (*SegmentResult, error) {
	logger := env.Logger.With().Str("component", "segment").Str("set", opts.Set).Logger()
	opts = opts.withDefaults()
	if err := opts.validate(); err != nil {
		return nil, err
	}

	template := opts.Template
	if template == "" {
		var err error
		if template, err = FindTemplate(opts.TemplateDir, opts.VoxelSize); err != nil {
			return nil, err
		}
	}
	if _, err := os.Stat(template); err != nil {
		return nil, errors.Wrap(stage.ErrMissingFile, template)
	}
	samples, err := PairSegmentations(opts.DataDir)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]string, len(samples))
	for i := range samples {
		samples[i].plan(opts)
		if prev, ok := seen[samples[i].BackupImage]; ok {
			return nil, errors.Wrapf(ErrSameSample, "%s and %s", prev, samples[i].Image)
		}
		seen[samples[i].BackupImage] = samples[i].Image
	}
	logger.Info().Int("samples", len(samples)).Str("template", template).Msg("paired images and segmentations")

	backup := filepath.Join(opts.OutputDir, backupDir)
	if err := os.MkdirAll(backup, 0o755); err != nil {
		return nil, errors.Wrapf(err, "unable to create %s", backup)
	}
	if err := prepareSamples(ctx, env, logger, samples, min(opts.Workers, len(samples))); err != nil {
		return nil, err
	}

	var resampled []string
	for _, s := range samples {
		resampled = append(resampled, s.ResampledImage, s.ResampledLabel)
	}
	if allExist(resampled...) {
		logger.Info().Msg("every sample already resampled, skipping")
	} else {
		backups, err := filepath.Glob(filepath.Join(backup, "*.nrrd"))
		if err != nil {
			return nil, errors.Wrapf(err, "unable to list %s", backup)
		}
		_, err = stage.Resample(ctx, env, stage.ResampleOptions{
			InputDir:  backup,
			OutputDir: opts.OutputDir,
			VoxelSize: opts.VoxelSize,
			Workers:   min(opts.Workers, len(backups)),
		})
		if err != nil {
			return nil, errors.Wrap(err, "unable to resample the samples")
		}
	}

	samples, err = registerSamples(ctx, env, logger, samples, template, opts)
	if err != nil {
		return nil, err
	}

	labels := make([]string, len(samples))
	for i, s := range samples {
		labels[i] = s.Warped
	}
	dice, err := Dice(ctx, env, DiceOptions{
		Labels:    labels,
		OutputDir: opts.OutputDir,
		Set:       opts.Set,
		Threshold: opts.Threshold,
		Workers:   opts.Workers,
		Lowest:    opts.Lowest,
	})
	if err != nil {
		return nil, err
	}

	return &SegmentResult{Template: template, Samples: samples, Dice: dice}, nil
}

func prepareSamples(ctx context.Context, env stage.Env, logger zerolog.Logger, samples []Sample, workers int) error {
	pipe, err := env.NewPipeline(ctx)
	if err != nil {
		return errors.Wrap(err, "unable to create pipeline")
	}
	root, err := pipeline.AddRootStepFromSlice(pipe, "samples", samples)
	if err != nil {
		return err
	}
	prepared, err := pipeline.AddStepOneToOne(pipe, "prepare", root, func(ctx context.Context, s Sample) (Sample, error) {
		if err := prepare(ctx, env, logger, s.Image, s.BackupImage, s.Mirrored, false); err != nil {
			return s, err
		}
		if err := prepare(ctx, env, logger, s.Label, s.BackupLabel, s.Mirrored, true); err != nil {
			return s, err
		}

		return s, nil
	}, pipeline.StepConcurrency[Sample](workers))
	if err != nil {
		return err
	}
	err = pipeline.AddSink(pipe, "prepared", prepared, func(_ context.Context, s Sample) error {
		logger.Debug().Str("image", s.BackupImage).Bool("mirrored", s.Mirrored).Msg("prepared")

		return nil
	})
	if err != nil {
		return err
	}

	return pipe.Run()
}

// registerSamples registers each resampled image and warps its label with the
// resulting transforms. Registrations whose warp exists are reused.
func registerSamples(ctx context.Context, env stage.Env, logger zerolog.Logger, samples []Sample, template string, opts SegmentOptions) ([]Sample, error) {
	regDir := filepath.Join(opts.OutputDir, registrationDir)
	warpDir := filepath.Join(opts.OutputDir, warpedDir)

	pipe, err := env.NewPipeline(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "unable to create pipeline")
	}
	root, err := pipeline.AddRootStepFromSlice(pipe, "resampled", samples)
	if err != nil {
		return nil, err
	}

	type registered struct {
		sample    Sample
		transform register.FollowUp
	}
	workers := min(opts.Workers, len(samples))
	regs, err := pipeline.AddStepOneToOne(pipe, "register", root, func(ctx context.Context, s Sample) (registered, error) {
		job := register.NewJob(template, s.ResampledImage, regDir)
		job.Introduction.Quality = opts.Quality
		job.Debug = opts.Debug
		follow := job.FollowUp()
		if _, err := os.Stat(follow.Warp); err == nil {
			logger.Info().Str("file", follow.Warp).Msg("already registered, skipping")

			return registered{sample: s, transform: follow}, nil
		}
		res, err := job.Run(ctx, env, nil)
		if err != nil {
			return registered{}, errors.Wrapf(err, "unable to register %s", s.ResampledImage)
		}
		if !allExist(res.Warp, res.Affine) {
			return registered{}, errors.Wrap(ErrNotRegistered, s.ResampledImage)
		}

		return registered{sample: s, transform: *res}, nil
	}, pipeline.StepConcurrency[registered](workers))
	if err != nil {
		return nil, err
	}
	warped, err := pipeline.AddStepOneToOne(pipe, "warp", regs, func(ctx context.Context, r registered) (Sample, error) {
		job := warp.Job{
			Input:     r.sample.ResampledLabel,
			Target:    template,
			OutputDir: warpDir,
			Warp:      r.transform.Warp,
			Affine:    r.transform.Affine,
			Kind:      warp.Label,
			FlipBack:  r.sample.Mirrored,
			Debug:     opts.Debug,
		}
		final := job.Output()
		if r.sample.Mirrored {
			final = job.Fixed()
		}
		if _, err := os.Stat(final); err == nil {
			logger.Info().Str("file", final).Msg("already warped, skipping")
			r.sample.Warped = final

			return r.sample, nil
		}
		out, err := job.Run(ctx, env, nil)
		if err != nil {
			return Sample{}, errors.Wrapf(err, "unable to warp %s", r.sample.ResampledLabel)
		}
		r.sample.Warped = out

		return r.sample, nil
	}, pipeline.StepConcurrency[Sample](workers))
	if err != nil {
		return nil, err
	}

	byImage := make(map[string]Sample, len(samples))
	err = pipeline.AddSink(pipe, "warped", warped, func(_ context.Context, s Sample) error {
		logger.Info().Str("label", s.Warped).Msgf("warped label %d of %d", len(byImage)+1, len(samples))
		byImage[s.Image] = s

		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := pipe.Run(); err != nil {
		return nil, err
	}

	res := make([]Sample, len(samples))
	for i, s := range samples {
		res[i] = byImage[s.Image]
	}

	return res, nil
}
