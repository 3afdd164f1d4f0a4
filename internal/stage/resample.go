package stage

import (
	"context"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"

	"github.com/askiada/antstemplate/internal/ants"
	"github.com/askiada/antstemplate/internal/naming"
	"github.com/askiada/antstemplate/pkg/pipeline"
)

// ResampleOptions configures Resample.
type ResampleOptions struct {
	InputDir  string
	OutputDir string
	// VoxelSize is the target resolution in the AxBxC notation.
	VoxelSize string
	Workers   int
	CleanUp   bool
}

type resampleJob struct {
	input  string
	output string
}

// Progress describes how far a stage went through its files.
type Progress struct {
	Done  int
	Total int
	// ETA is zero until the first file completes.
	ETA time.Duration
}

// String renders the progress the way it is logged.
func (p Progress) String() string {
	if p.Done == 0 {
		return "estimating time to completion"
	}

	now := time.Now()

	return "estimated completion " + humanize.RelTime(now.Add(p.ETA), now, "ago", "from now")
}

// estimate projects the remaining time from the mean duration per completed file.
func estimate(elapsed time.Duration, done, total int) time.Duration {
	if done <= 0 || done >= total {
		return 0
	}

	return elapsed / time.Duration(done) * time.Duration(total-done)
}

// Resample resamples every stack of InputDir to VoxelSize and returns the written files.
func Resample(ctx context.Context, env Env, opts ResampleOptions) ([]string, error) {
	logger := env.logger("resample")

	voxel, err := ants.ParseVoxelSize(opts.VoxelSize)
	if err != nil {
		return nil, err
	}
	if err := requireDir(opts.InputDir); err != nil {
		return nil, err
	}
	sources, err := globFiles(opts.InputDir, "*.nrrd")
	if err != nil {
		return nil, err
	}
	if len(sources) == 0 {
		return nil, errors.Wrap(ErrNoInputFiles, opts.InputDir)
	}
	if err := ValidateWorkers(opts.Workers, len(sources)); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(opts.OutputDir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "unable to create %s", opts.OutputDir)
	}

	jobs := make([]resampleJob, 0, len(sources))
	for _, source := range sources {
		output := naming.Resampled(source, opts.OutputDir, voxel.String())
		if exists(output) {
			logger.Warn().Str("file", output).Msg("output already exists and will be overwritten")
			if err := os.Remove(output); err != nil {
				return nil, errors.Wrapf(err, "unable to remove %s", output)
			}
		}
		jobs = append(jobs, resampleJob{input: source, output: output})
	}

	pipe, err := env.NewPipeline(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "unable to create pipeline")
	}
	root, err := pipeline.AddRootStepFromSlice(pipe, "stacks", jobs)
	if err != nil {
		return nil, err
	}
	resampled, err := pipeline.AddStepOneToOne(pipe, "resample", root, func(ctx context.Context, job resampleJob) (string, error) {
		logger.Debug().Str("file", job.input).Str("voxel", voxel.String()).Msg("resampling")
		cmd := ants.ResampleImage(job.input, job.output, voxel).WithLogs(naming.TrimImageExt(job.output))
		if err := env.Runner.Run(ctx, cmd); err != nil {
			return "", errors.Wrapf(err, "unable to resample %s", job.input)
		}

		return job.output, nil
	}, pipeline.StepConcurrency[string](opts.Workers))
	if err != nil {
		return nil, err
	}

	var (
		outputs []string
		start   = env.now()
	)
	err = pipeline.AddSink(pipe, "progress", resampled, func(_ context.Context, output string) error {
		outputs = append(outputs, output)
		progress := Progress{
			Done:  len(outputs),
			Total: len(jobs),
			ETA:   estimate(env.now().Sub(start), len(outputs), len(jobs)),
		}
		logger.Info().
			Str("file", output).
			Msgf("resampled file %d of %d, %s", progress.Done, progress.Total, progress)

		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := pipe.Run(); err != nil {
		return nil, err
	}

	if opts.CleanUp {
		if _, err := CleanLogs(opts.OutputDir, logger); err != nil {
			return nil, err
		}
	}

	return outputs, nil
}
