package register

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/askiada/antstemplate/internal/naming"
	"github.com/askiada/antstemplate/internal/stage"
)

const flipReminder = "This file is a reminder that the brain was flipped before registration.\n"

// FollowUp lists the files a warp of another channel needs.
type FollowUp struct {
	Deformed    string
	Warp        string
	InverseWarp string
	Affine      string
	Flipped     bool
	// Missing lists the files above that do not exist.
	Missing []string
}

// FollowUp returns the files written by a successful run of j.
func (j Job) FollowUp() FollowUp {
	prefix := j.Prefix()
	res := FollowUp{
		Deformed:    prefix + "deformed.nii.gz",
		Warp:        prefix + "Warp.nii.gz",
		InverseWarp: prefix + "InverseWarp.nii.gz",
		Affine:      prefix + "Affine.txt",
		Flipped:     j.Flip,
	}
	if j.Method == SyNQuick {
		res.Deformed = prefix + "Warped.nii.gz"
		res.Warp = prefix + "1Warp.nii.gz"
		res.InverseWarp = prefix + "1InverseWarp.nii.gz"
		res.Affine = prefix + "0GenericAffine.mat"
	}
	for _, file := range []string{res.Deformed, res.Warp, res.InverseWarp, res.Affine} {
		if _, err := os.Stat(file); err != nil {
			res.Missing = append(res.Missing, file)
		}
	}

	return res
}

// Run registers the job and reports status lines to progress, which may be nil.
func (j Job) Run(ctx context.Context, env stage.Env, progress func(string)) (*FollowUp, error) {
	logger := env.Logger.With().Str("component", "register").Logger()
	if progress == nil {
		progress = func(string) {}
	}

	if err := j.Validate(); err != nil {
		return nil, err
	}
	j, err := j.absolute()
	if err != nil {
		return nil, err
	}
	for _, file := range []string{j.Template, j.Input} {
		if err := requireFile(file); err != nil {
			return nil, err
		}
	}
	if err := os.MkdirAll(j.OutputDir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "unable to create %s", j.OutputDir)
	}
	if err := stage.CheckPrefix(j.Prefix()); err != nil {
		return nil, err
	}

	var intermediates []string
	moving := j.Input
	if j.Flip {
		progress("Flipping the brain...")
		flip := j.reflection()
		if err := flip.Run(ctx, env.Runner, progress); err != nil {
			return nil, errors.Wrap(err, "unable to flip the brain")
		}
		reminder := filepath.Join(j.OutputDir, naming.Stem(j.Input)+"_flipped.txt")
		if err := os.WriteFile(reminder, []byte(flipReminder), 0o644); err != nil {
			return nil, errors.Wrapf(err, "unable to write %s", reminder)
		}
		intermediates = append(intermediates, flip.Intermediates()...)
		intermediates = append(intermediates, flip.Output)
		moving = flip.Output
	}

	scratch, err := os.MkdirTemp(j.OutputDir, "scratch_")
	if err != nil {
		return nil, errors.Wrap(err, "unable to create scratch directory")
	}
	cmd := j.command(moving)
	cmd.Dir = scratch
	intermediates = append(intermediates, cmd.Logs.Out, cmd.Logs.Err)

	progress("Running registration...")
	progress(cmd.String())
	runErr := env.Runner.Run(ctx, cmd)

	progress("Move temporary files...")
	relocated, err := relocate(scratch, j.OutputDir, progress)
	if err != nil {
		return nil, err
	}
	if err := os.Remove(scratch); err != nil {
		logger.Warn().Err(err).Str("dir", scratch).Msg("scratch directory not empty")
	}
	if runErr != nil {
		return nil, errors.Wrap(runErr, "registration failed")
	}

	if !j.Debug {
		progress("Removing intermediate files...")
		if err := stage.RemoveIntermediates(append(intermediates, relocated...), logger); err != nil {
			return nil, err
		}
	}
	progress("Registration finished.")

	res := j.FollowUp()
	for _, missing := range res.Missing {
		logger.Warn().Str("file", missing).Msg("registration output missing")
	}

	return &res, nil
}

// relocate moves the tmp* dirs and the .cfg and .nii.gz files of scratch into dir.
func relocate(scratch, dir string, progress func(string)) ([]string, error) {
	entries, err := os.ReadDir(scratch)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to list %s", scratch)
	}

	var moved []string
	for _, entry := range entries {
		name := entry.Name()
		switch {
		case entry.IsDir() && strings.HasPrefix(name, "tmp"):
		case !entry.IsDir() && (strings.HasSuffix(name, ".cfg") || strings.HasSuffix(name, ".nii.gz")):
		default:
			continue
		}

		target := filepath.Join(dir, name)
		progress("mv " + filepath.Join(scratch, name) + " " + dir)
		if err := stage.MoveFile(filepath.Join(scratch, name), target); err != nil {
			return moved, err
		}
		moved = append(moved, target)
	}

	return moved, nil
}
