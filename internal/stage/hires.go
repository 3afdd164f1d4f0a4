package stage

import (
	"compress/gzip"
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/askiada/antstemplate/internal/ants"
	"github.com/askiada/antstemplate/internal/naming"
	"github.com/askiada/antstemplate/pkg/pipeline"
)

var (
	ErrMissingTransform   = errors.New("registration transform not found")
	ErrAmbiguousTransform = errors.New("more than one registration transform found")
	ErrAmbiguousBase      = errors.New("original file maps to more than one registration")
)

// Sample is one registered brain of a template construction run.
type Sample struct {
	// Base is the prefix shared by the sample files in syn/.
	Base string
	// Original is the clean database file the sample was built from.
	Original string
	Warp     string
	Affine   string
	// gzAffine is set when the affine only exists compressed.
	gzAffine bool
}

// ID returns the original file name without extension.
func (s Sample) ID() string {
	return strings.TrimSuffix(s.Original, ".nrrd")
}

// CollectSamples groups the syn/ files of a results dir by base file.
func CollectSamples(dir string) ([]Sample, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to list %s", dir)
	}

	var names []string
	bases := make(map[string]struct{})
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		names = append(names, name)
		if strings.HasSuffix(name, ".nii.gz") && !strings.HasPrefix(name, "complete_template") {
			bases[naming.BaseFile(name)] = struct{}{}
		}
	}

	samples := make([]Sample, 0, len(bases))
	for base := range bases {
		sample, err := findTransforms(dir, base, names)
		if err != nil {
			return nil, err
		}
		samples = append(samples, sample)
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i].Base < samples[j].Base })

	return samples, nil
}

func findTransforms(dir, base string, names []string) (Sample, error) {
	var warps, affines []string
	for _, name := range names {
		if !strings.HasPrefix(name, base) {
			continue
		}
		switch {
		case strings.HasSuffix(name, "Warp.nii.gz") && !strings.Contains(name, "Inverse"):
			warps = append(warps, name)
		case strings.HasSuffix(name, "GenericAffine.mat"):
			affines = append(affines, name)
		}
	}

	sample := Sample{Base: base, Original: naming.OriginalName(base)}
	if len(warps) != 1 {
		return sample, transformErr(base, "Warp.nii.gz", warps)
	}
	sample.Warp = filepath.Join(dir, warps[0])

	switch {
	case len(affines) == 1:
		sample.Affine = filepath.Join(dir, affines[0])
	case len(affines) > 1:
		return sample, transformErr(base, "GenericAffine.mat", affines)
	case exists(filepath.Join(dir, base+"Affine.txt")):
		sample.Affine = filepath.Join(dir, base+"Affine.txt")
	case exists(filepath.Join(dir, base+"Affine.txt.gz")):
		sample.Affine = filepath.Join(dir, base+"Affine.txt.gz")
		sample.gzAffine = true
	default:
		return sample, errors.Wrapf(ErrMissingTransform, "%sGenericAffine.mat", base)
	}

	return sample, nil
}

func transformErr(base, suffix string, found []string) error {
	if len(found) == 0 {
		return errors.Wrapf(ErrMissingTransform, "%s*%s", base, suffix)
	}

	return errors.Wrapf(ErrAmbiguousTransform, "%s*%s: %s", base, suffix, strings.Join(found, ", "))
}

// gunzip decompresses src into dir and returns the written path.
func gunzip(src, dir string) (string, error) {
	in, err := os.Open(src)
	if err != nil {
		return "", errors.Wrapf(err, "unable to open %s", src)
	}
	defer in.Close()

	zr, err := gzip.NewReader(in)
	if err != nil {
		return "", errors.Wrapf(err, "unable to read %s", src)
	}
	defer zr.Close()

	dst := filepath.Join(dir, strings.TrimSuffix(filepath.Base(src), ".gz"))
	out, err := os.Create(dst)
	if err != nil {
		return "", errors.Wrapf(err, "unable to create %s", dst)
	}
	if _, err := io.Copy(out, zr); err != nil {
		out.Close()

		return "", errors.Wrapf(err, "unable to decompress %s", src)
	}

	return dst, errors.Wrapf(out.Close(), "unable to close %s", dst)
}

// matchOriginals checks every sample maps to a single file of the clean database.
func matchOriginals(samples []Sample, cleanDir string) error {
	byOriginal := make(map[string][]string, len(samples))
	for _, s := range samples {
		if err := requireFile(filepath.Join(cleanDir, s.Original)); err != nil {
			return errors.Wrapf(err, "original of %s", s.Base)
		}
		byOriginal[s.Original] = append(byOriginal[s.Original], s.Base)
	}
	for original, bases := range byOriginal {
		if len(bases) > 1 {
			return errors.Wrapf(ErrAmbiguousBase, "%s: %s", original, strings.Join(bases, ", "))
		}
	}

	return nil
}

// GenerateTemplateOptions configures GenerateTemplate.
type GenerateTemplateOptions struct {
	Results   ResultsOptions
	CleanDir  string
	OutputDir string
	VoxelSize string
	Workers   int
	KeepTemp  bool
	// TemplateFile is the template name inside the results dir.
	TemplateFile string
}

// GenerateTemplate warps every original stack onto the upsampled template and averages them.
// It returns the written template.
func GenerateTemplate(ctx context.Context, env Env, opts GenerateTemplateOptions) (string, error) {
	logger := env.logger("generate-template")

	voxel, err := ants.ParseVoxelSize(opts.VoxelSize)
	if err != nil {
		return "", err
	}
	ts := Timestamp(env.now())
	if err := os.MkdirAll(opts.OutputDir, 0o755); err != nil {
		return "", errors.Wrapf(err, "unable to create %s", opts.OutputDir)
	}
	output := filepath.Join(opts.OutputDir, "obiroi_template_"+ts+"_"+voxel.String()+".nrrd")
	if exists(output) {
		return "", errors.Wrap(ErrOutputExists, output)
	}
	if err := requireDir(opts.CleanDir); err != nil {
		return "", err
	}
	resultsDir, err := opts.Results.Resolve()
	if err != nil {
		return "", err
	}
	template := filepath.Join(resultsDir, opts.TemplateFile)
	if err := requireFile(template); err != nil {
		return "", err
	}

	samples, err := CollectSamples(filepath.Join(resultsDir, synDir))
	if err != nil {
		return "", err
	}
	if len(samples) == 0 {
		return "", errors.Wrap(ErrNoInputFiles, filepath.Join(resultsDir, synDir))
	}
	if err := matchOriginals(samples, opts.CleanDir); err != nil {
		return "", err
	}
	if err := ValidateWorkers(opts.Workers, len(samples)); err != nil {
		return "", err
	}
	logger.Info().Str("results", resultsDir).Int("samples", len(samples)).Msg("all files found")

	tmp := filepath.Join(opts.OutputDir, "temp_"+ts+"_"+voxel.String())
	if err := freshDir(tmp); err != nil {
		return "", err
	}
	if !opts.KeepTemp {
		defer func() {
			if err := os.RemoveAll(tmp); err != nil {
				logger.Error().Err(err).Str("dir", tmp).Msg("unable to remove temporary files")
			}
		}()
	}

	for i, s := range samples {
		if !s.gzAffine {
			continue
		}
		if samples[i].Affine, err = gunzip(s.Affine, tmp); err != nil {
			return "", err
		}
	}

	upsampled := filepath.Join(tmp, "upsampled_template.nii.gz")
	logger.Info().Str("voxel", voxel.String()).Msg("resampling template")
	err = env.Runner.Run(ctx, ants.ResampleImageBySpacing(template, upsampled, voxel).WithLogs(filepath.Join(tmp, "upsampled_template")))
	if err != nil {
		return "", errors.Wrap(err, "unable to upsample template")
	}

	if err := warpAndAverage(ctx, env, opts, samples, upsampled, tmp, output); err != nil {
		return "", err
	}
	logger.Info().Str("template", output).Msg("high resolution template generated")

	return output, nil
}

func warpAndAverage(ctx context.Context, env Env, opts GenerateTemplateOptions, samples []Sample, upsampled, tmp, output string) error {
	logger := env.logger("generate-template")

	pipe, err := env.NewPipeline(ctx)
	if err != nil {
		return errors.Wrap(err, "unable to create pipeline")
	}
	root, err := pipeline.AddRootStepFromSlice(pipe, "samples", samples)
	if err != nil {
		return err
	}
	warped, err := pipeline.AddStepOneToOne(pipe, "warp", root, func(ctx context.Context, s Sample) (string, error) {
		out := filepath.Join(tmp, s.ID()+"_warped.nii.gz")
		cmd := ants.WarpImageMultiTransform(filepath.Join(opts.CleanDir, s.Original), out, upsampled, s.Warp, s.Affine).
			WithLogs(filepath.Join(tmp, s.ID()))
		if err := env.Runner.Run(ctx, cmd); err != nil {
			return "", errors.Wrapf(err, "unable to warp %s", s.Original)
		}
		logger.Debug().Str("file", out).Msg("warped")

		return out, nil
	}, pipeline.StepConcurrency[string](opts.Workers))
	if err != nil {
		return err
	}

	err = pipeline.AddSinkFromChan(pipe, "average", warped, func(ctx context.Context, in <-chan string) error {
		var files []string
		for file := range in {
			files = append(files, file)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		sort.Strings(files)
		logger.Info().Int("files", len(files)).Msg("averaging warped files")
		err := env.Runner.Run(ctx, ants.AverageImages(output, true, files...).WithLogs(filepath.Join(tmp, "average")))

		return errors.Wrap(err, "unable to average warped files")
	})
	if err != nil {
		return err
	}

	return pipe.Run()
}
