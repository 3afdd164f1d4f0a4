package stage

import (
	"context"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/askiada/antstemplate/pkg/pipeline"
	"github.com/askiada/antstemplate/pkg/pipeline/model"
)

// ResetSymmetryOptions configures ResetSymmetry.
type ResetSymmetryOptions struct {
	InputDir  string
	BackupDir string
	// QualityAffine also restores the diff dir.
	QualityAffine bool
	DiffDir       string
}

// ResetSymmetry moves the files set aside by Asymmetrize back into the input dir.
func ResetSymmetry(ctx context.Context, env Env, opts ResetSymmetryOptions) ([]string, error) {
	logger := env.logger("reset-symmetry")
	if opts.BackupDir == "" {
		opts.BackupDir = filepath.Join(opts.InputDir, "backup")
	}
	if opts.DiffDir == "" {
		opts.DiffDir = filepath.Join(opts.InputDir, "diff")
	}

	if err := requireNrrdDir(opts.InputDir); err != nil {
		return nil, err
	}
	sources := []string{opts.BackupDir}
	if opts.QualityAffine {
		sources = append(sources, opts.DiffDir)
	}
	files := make([][]string, len(sources))
	for i, dir := range sources {
		if err := requireNrrdDir(dir); err != nil {
			return nil, err
		}
		var err error
		if files[i], err = globFiles(dir, "*.nrrd"); err != nil {
			return nil, err
		}
	}

	pipe, err := env.NewPipeline(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "unable to create pipeline")
	}
	roots := make([]*model.Step[string], len(sources))
	for i, dir := range sources {
		roots[i], err = pipeline.AddRootStepFromSlice(pipe, filepath.Base(dir), files[i])
		if err != nil {
			return nil, err
		}
	}
	merged, err := pipeline.AddMerger(pipe, "restore", roots...)
	if err != nil {
		return nil, err
	}

	var restored []string
	err = pipeline.AddSink(pipe, "move to input", merged, func(_ context.Context, file string) error {
		target := filepath.Join(opts.InputDir, filepath.Base(file))
		if err := MoveFile(file, target); err != nil {
			return err
		}
		restored = append(restored, target)

		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := pipe.Run(); err != nil {
		return nil, err
	}

	for _, dir := range sources {
		if err := removeIfEmpty(dir); err != nil {
			return nil, err
		}
	}
	logger.Info().Int("files", len(restored)).Str("dir", opts.InputDir).Msg("restored")

	return restored, nil
}

func requireNrrdDir(dir string) error {
	if err := requireDir(dir); err != nil {
		return err
	}
	files, err := globFiles(dir, "*.nrrd")
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return errors.Wrap(ErrNoInputFiles, dir)
	}

	return nil
}

func removeIfEmpty(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return errors.Wrapf(err, "unable to list %s", dir)
	}
	if len(entries) > 0 {
		return nil
	}

	return errors.Wrapf(os.Remove(dir), "unable to remove %s", dir)
}
