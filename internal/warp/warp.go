// Package warp applies the transforms of a registration to another channel.
package warp

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/askiada/antstemplate/internal/ants"
	"github.com/askiada/antstemplate/internal/naming"
	"github.com/askiada/antstemplate/internal/stage"
)

const deformedSuffix = "deformed.nii.gz"

var (
	ErrMissingArgument = errors.New("input, target, output directory, and affine must be set")
	ErrMissingWarp     = errors.New("warp must be set unless affine only")
	ErrNotDeformed     = errors.New("target must end in deformed.nii.gz to autofill")
	ErrInvalidOption   = errors.New("invalid warp option")
)

// Direction is the way the transforms are applied.
type Direction string

const (
	ToTemplate   Direction = "to-template"
	FromTemplate Direction = "from-template"
)

// Kind is the type of data being warped.
type Kind string

const (
	Volume Kind = "volume"
	Label  Kind = "label"
	Points Kind = "points"
)

// Job warps Input into the space of Target.
type Job struct {
	Input       string
	Target      string
	OutputDir   string
	Warp        string
	InverseWarp string
	Affine      string

	Direction  Direction
	Kind       Kind
	AffineOnly bool
	TimeSeries bool
	LowMemory  bool
	// Flip mirrors the input before warping and the result back afterwards.
	Flip bool
	// FlipBack only mirrors the result, for inputs reflected upstream.
	FlipBack bool
	// Debug keeps the intermediate files.
	Debug bool
}

// Transforms are the registration outputs autofilled from a deformed image.
type Transforms struct {
	Warp        string
	InverseWarp string
	Affine      string
	// Missing lists the files above that do not exist.
	Missing []string
}

// Autofill derives the transforms of a registration from its deformed image.
func Autofill(deformed string) (Transforms, error) {
	if !strings.HasSuffix(deformed, deformedSuffix) {
		return Transforms{}, errors.Wrapf(ErrNotDeformed, "got %s", deformed)
	}
	prefix := strings.TrimSuffix(deformed, deformedSuffix)
	res := Transforms{
		Warp:        prefix + "Warp.nii.gz",
		InverseWarp: prefix + "InverseWarp.nii.gz",
		Affine:      prefix + "Affine.txt",
	}
	for _, file := range []string{res.Warp, res.InverseWarp, res.Affine} {
		if _, err := os.Stat(file); err != nil {
			res.Missing = append(res.Missing, file)
		}
	}

	return res, nil
}

// Apply sets the transforms of j.
func (j *Job) Apply(t Transforms) {
	j.Warp = t.Warp
	j.InverseWarp = t.InverseWarp
	j.Affine = t.Affine
}

func (j Job) withDefaults() Job {
	if j.Direction == "" {
		j.Direction = ToTemplate
	}
	if j.Kind == "" {
		j.Kind = Volume
	}

	return j
}

// Validate checks the job without touching the file system.
func (j Job) Validate() error {
	j = j.withDefaults()
	if j.Input == "" || j.Target == "" || j.OutputDir == "" || j.Affine == "" {
		return ErrMissingArgument
	}
	switch j.Direction {
	case ToTemplate:
		if !j.AffineOnly && j.Warp == "" {
			return errors.Wrap(ErrMissingWarp, "to-template needs the warp")
		}
	case FromTemplate:
		if !j.AffineOnly && j.InverseWarp == "" {
			return errors.Wrap(ErrMissingWarp, "from-template needs the inverse warp")
		}
	default:
		return errors.Wrapf(ErrInvalidOption, "direction %q", j.Direction)
	}
	switch j.Kind {
	case Volume, Label, Points:
	default:
		return errors.Wrapf(ErrInvalidOption, "kind %q", j.Kind)
	}

	return nil
}

// Prefix returns the prefix of the warped output.
func (j Job) Prefix() string {
	return filepath.Join(j.OutputDir, naming.Stem(j.Input)+"_warped")
}

// Output returns the warped file.
func (j Job) Output() string {
	if j.Kind == Points {
		return j.Prefix() + ".csv"
	}

	return j.Prefix() + ".nrrd"
}

// Fixed returns the warped file reflected back when flipping.
func (j Job) Fixed() string {
	return filepath.Join(j.OutputDir, naming.Stem(j.Input)+"_fixed"+naming.Ext(j.Input))
}

// Command returns the antsApplyTransforms call warping moving.
func (j Job) Command(moving string) ants.Command {
	j = j.withDefaults()
	var transforms []ants.Transform
	switch j.Direction {
	case FromTemplate:
		transforms = append(transforms, ants.Transform{Path: j.Affine, Invert: true})
		if !j.AffineOnly {
			transforms = append(transforms, ants.Transform{Path: j.InverseWarp})
		}
	default:
		if !j.AffineOnly {
			transforms = append(transforms, ants.Transform{Path: j.Warp})
		}
		transforms = append(transforms, ants.Transform{Path: j.Affine})
	}

	return ants.ApplyTransforms(ants.ApplyTransformsOptions{
		Input:      moving,
		Output:     j.Output(),
		Reference:  j.Target,
		Transforms: transforms,
		Label:      j.Kind == Label,
		TimeSeries: j.TimeSeries,
		Float:      j.LowMemory,
	}).WithLogs(j.Prefix())
}

func (j Job) flipIn() stage.Reflection {
	stem := naming.Stem(j.Input)

	return stage.Reflection{
		Input:  j.Input,
		Output: filepath.Join(j.OutputDir, stem+"_flipped"+naming.Ext(j.Input)),
		Matrix: filepath.Join(j.OutputDir, stem+".mat"),
		Axis:   ants.Horizontal,
		Float:  j.LowMemory,
		Label:  j.Kind == Label,
	}
}

func (j Job) flipOut() stage.Reflection {
	return stage.Reflection{
		Input:  j.Output(),
		Output: j.Fixed(),
		Matrix: filepath.Join(j.OutputDir, naming.Stem(j.Input)+"_reverse.mat"),
		Axis:   ants.Horizontal,
		Float:  j.LowMemory,
		Label:  j.Kind == Label,
	}
}

// Run warps the job and reports status lines to progress, which may be nil.
// It returns the final warped file.
func (j Job) Run(ctx context.Context, env stage.Env, progress func(string)) (string, error) {
	logger := env.Logger.With().Str("component", "warp").Logger()
	if progress == nil {
		progress = func(string) {}
	}
	j = j.withDefaults()

	if err := j.Validate(); err != nil {
		return "", err
	}
	if err := os.MkdirAll(j.OutputDir, 0o755); err != nil {
		return "", errors.Wrapf(err, "unable to create %s", j.OutputDir)
	}
	if err := stage.CheckPrefix(j.Prefix()); err != nil {
		return "", err
	}

	var intermediates []string
	moving := j.Input
	if j.Flip {
		progress("Flipping the input...")
		flip := j.flipIn()
		if err := flip.Run(ctx, env.Runner, progress); err != nil {
			return "", errors.Wrap(err, "unable to flip the input")
		}
		intermediates = append(intermediates, flip.Intermediates()...)
		intermediates = append(intermediates, flip.Output)
		moving = flip.Output
	}

	cmd := j.Command(moving)
	progress("Warping...")
	progress(cmd.String())
	if err := env.Runner.Run(ctx, cmd); err != nil {
		return "", errors.Wrap(err, "warping failed")
	}
	intermediates = append(intermediates, cmd.Logs.Out, cmd.Logs.Err)
	result := j.Output()

	if (j.Flip || j.FlipBack) && j.Kind != Points {
		progress("Flipping the output back...")
		flip := j.flipOut()
		if err := flip.Run(ctx, env.Runner, progress); err != nil {
			return "", errors.Wrap(err, "unable to flip the output")
		}
		permute := ants.PermuteFlip(flip.Output, flip.Output).WithLogs(naming.TrimImageExt(flip.Output) + "_permute")
		progress(permute.String())
		if err := env.Runner.Run(ctx, permute); err != nil {
			return "", errors.Wrap(err, "unable to permute the output axes")
		}
		intermediates = append(intermediates, flip.Intermediates()...)
		intermediates = append(intermediates, result, permute.Logs.Out, permute.Logs.Err)
		result = flip.Output
	}

	if !j.Debug {
		progress("Removing intermediate files...")
		if err := stage.RemoveIntermediates(intermediates, logger); err != nil {
			return "", err
		}
	}
	progress("Warping finished.")
	logger.Info().Str("file", result).Msg("warped")

	return result, nil
}
