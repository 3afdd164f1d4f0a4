package stage

import (
	"context"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/askiada/antstemplate/internal/ants"
	"github.com/askiada/antstemplate/internal/naming"
	"github.com/askiada/antstemplate/pkg/pipeline"
)

// MirrorOptions configures Mirror.
type MirrorOptions struct {
	InputDir  string
	OutputDir string
	// SkipExisting keeps existing mirrors instead of regenerating them.
	SkipExisting bool
	Workers      int
	Axis         ants.Axis
	// CleanUp removes the log pairs without errors.
	CleanUp bool
}

// MirrorResult lists the files written or kept by Mirror.
type MirrorResult struct {
	Mirrored []string
	Skipped  []string
}

type mirrorJob struct {
	input  string
	output string
	matrix string
}

// Mirror writes the reflection of every stack of InputDir.
func Mirror(ctx context.Context, env Env, opts MirrorOptions) (*MirrorResult, error) {
	logger := env.logger("mirror")

	if err := requireDir(opts.InputDir); err != nil {
		return nil, err
	}
	if opts.OutputDir == "" {
		opts.OutputDir = opts.InputDir
	}

	all, err := globFiles(opts.InputDir, "*.nrrd")
	if err != nil {
		return nil, err
	}
	sources := all[:0]
	for _, file := range all {
		if !naming.IsMirror(file) {
			sources = append(sources, file)
		}
	}
	if len(sources) == 0 {
		return nil, errors.Wrap(ErrNoInputFiles, opts.InputDir)
	}
	if err := os.MkdirAll(opts.OutputDir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "unable to create %s", opts.OutputDir)
	}
	if err := ValidateWorkers(opts.Workers, len(sources)); err != nil {
		return nil, err
	}

	res := &MirrorResult{}
	jobs := make([]mirrorJob, 0, len(sources))
	for _, source := range sources {
		output, matrix := naming.Mirror(source, opts.OutputDir)
		if exists(output) {
			if opts.SkipExisting {
				logger.Warn().Str("file", output).Msg("output already exists and will be skipped")
				if err := copyAlongside(source, opts.OutputDir); err != nil {
					return nil, err
				}
				res.Skipped = append(res.Skipped, output)

				continue
			}
			logger.Warn().Str("file", output).Msg("output already exists and will be overwritten")
			if err := os.Remove(output); err != nil {
				return nil, errors.Wrapf(err, "unable to remove %s", output)
			}
		}
		jobs = append(jobs, mirrorJob{input: source, output: output, matrix: matrix})
	}
	logger.Info().Int("files", len(jobs)).Int("skipped", len(res.Skipped)).Str("axis", opts.Axis.String()).Msg("mirroring")

	if err := runMirror(ctx, env, opts, jobs, res); err != nil {
		return nil, err
	}

	if opts.CleanUp {
		if _, err := CleanLogs(opts.OutputDir, logger); err != nil {
			return nil, err
		}
	}

	return res, nil
}

// copyAlongside copies the source of a skipped mirror into dir unless it is already there.
func copyAlongside(source, dir string) error {
	target := filepath.Join(dir, filepath.Base(source))
	if exists(target) {
		return nil
	}

	return CopyFile(source, target)
}

func runMirror(ctx context.Context, env Env, opts MirrorOptions, jobs []mirrorJob, res *MirrorResult) error {
	if len(jobs) == 0 {
		return nil
	}

	pipe, err := env.NewPipeline(ctx)
	if err != nil {
		return errors.Wrap(err, "unable to create pipeline")
	}

	root, err := pipeline.AddRootStepFromSlice(pipe, "stacks", jobs)
	if err != nil {
		return err
	}
	reflected, err := pipeline.AddStepOneToOne(pipe, "reflect", root, func(ctx context.Context, job mirrorJob) (string, error) {
		logs := naming.TrimImageExt(job.output)
		reflection := Reflection{
			Input:      job.input,
			Output:     job.output,
			Matrix:     job.matrix,
			Axis:       opts.Axis,
			Float:      true,
			MatrixLogs: logs,
			OutputLogs: logs,
		}
		if err := reflection.Run(ctx, env.Runner, nil); err != nil {
			return "", errors.Wrapf(err, "unable to reflect %s", job.input)
		}

		return job.output, nil
	}, pipeline.StepConcurrency[string](opts.Workers))
	if err != nil {
		return err
	}

	logger := env.logger("mirror")
	err = pipeline.AddSink(pipe, "collect", reflected, func(_ context.Context, output string) error {
		logger.Info().Str("file", output).Msg("mirrored")
		res.Mirrored = append(res.Mirrored, output)

		return nil
	})
	if err != nil {
		return err
	}

	return pipe.Run()
}
