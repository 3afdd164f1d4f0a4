package stage

import (
	"context"
	"os"
	"path/filepath"
	"sort"

	"github.com/pkg/errors"

	"github.com/askiada/antstemplate/internal/ants"
	"github.com/askiada/antstemplate/internal/metadata"
	"github.com/askiada/antstemplate/internal/naming"
	"github.com/askiada/antstemplate/pkg/pipeline"
)

// ErrNothingIncluded is returned when no deformed image is marked for refinement.
var ErrNothingIncluded = errors.New("no files to include in refinement")

// RefineTemplateOptions configures RefineTemplate.
type RefineTemplateOptions struct {
	Results   ResultsOptions
	Metadata  string
	OutputDir string
	Workers   int
	KeepTemp  bool
}

type refineJob struct {
	deformed string
	included bool
}

// planRefinement pairs every deformed image with its inclusion flag.
func planRefinement(files []string, md *metadata.Metadata) ([]refineJob, int, error) {
	jobs := make([]refineJob, 0, len(files))
	included := 0
	for _, file := range files {
		rec, err := md.Lookup(naming.OriginalName(file))
		if err != nil {
			return nil, 0, err
		}
		if rec.Included() {
			included++
		}
		jobs = append(jobs, refineJob{deformed: file, included: rec.Included()})
	}
	if included == 0 {
		return nil, 0, ErrNothingIncluded
	}

	return jobs, included, nil
}

// RefineTemplate averages the normalized deformed images marked for refinement.
// It returns the written template.
func RefineTemplate(ctx context.Context, env Env, opts RefineTemplateOptions) (string, error) {
	logger := env.logger("refine-template")

	ts := Timestamp(env.now())
	if err := os.MkdirAll(opts.OutputDir, 0o755); err != nil {
		return "", errors.Wrapf(err, "unable to create %s", opts.OutputDir)
	}
	output := filepath.Join(opts.OutputDir, "refined_template_"+ts+".nii.gz")
	if exists(output) {
		return "", errors.Wrap(ErrOutputExists, output)
	}
	md, err := metadata.Load(opts.Metadata)
	if err != nil {
		return "", err
	}
	resultsDir, err := opts.Results.Resolve()
	if err != nil {
		return "", err
	}
	deformed, err := globFiles(filepath.Join(resultsDir, synDir), "*deformed.nii.gz")
	if err != nil {
		return "", err
	}
	jobs, included, err := planRefinement(deformed, md)
	if err != nil {
		return "", err
	}
	if err := ValidateWorkers(opts.Workers, included); err != nil {
		return "", err
	}
	logger.Info().Str("results", resultsDir).Int("included", included).Int("files", len(jobs)).Msg("refining template")

	tmp := filepath.Join(opts.OutputDir, "temp_"+ts)
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

	pipe, err := env.NewPipeline(ctx)
	if err != nil {
		return "", errors.Wrap(err, "unable to create pipeline")
	}
	root, err := pipeline.AddRootStepFromSlice(pipe, "deformed", jobs)
	if err != nil {
		return "", err
	}
	normalized, err := pipeline.AddStepOneToOneOrZero(pipe, "normalize", root, func(ctx context.Context, job refineJob) (string, error) {
		if !job.included {
			logger.Debug().Str("file", job.deformed).Msg("excluded from refinement")

			return "", nil
		}
		file := filepath.Join(tmp, filepath.Base(job.deformed))
		if err := CopyFile(job.deformed, file); err != nil {
			return "", err
		}
		if err := env.Runner.Run(ctx, ants.Normalize(file)); err != nil {
			return "", errors.Wrapf(err, "unable to normalize %s", file)
		}

		return file, nil
	}, pipeline.StepConcurrency[string](opts.Workers))
	if err != nil {
		return "", err
	}
	err = pipeline.AddSinkFromChan(pipe, "average", normalized, func(ctx context.Context, in <-chan string) error {
		var files []string
		for file := range in {
			files = append(files, file)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		sort.Strings(files)
		err := env.Runner.Run(ctx, ants.AverageImages(output, false, files...).WithLogs(filepath.Join(tmp, "average")))

		return errors.Wrap(err, "unable to average normalized files")
	})
	if err != nil {
		return "", err
	}
	if err := pipe.Run(); err != nil {
		return "", err
	}
	logger.Info().Str("template", output).Msg("refined template generated")

	return output, nil
}
