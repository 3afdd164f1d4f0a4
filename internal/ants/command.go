// Package ants builds and runs the command lines of the ANTs executables.
package ants

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// ErrInvalidAxis is returned for an unknown reflection axis.
var ErrInvalidAxis = errors.New("axis must be horizontal or vertical")

// Logs is the pair of files receiving the output of a command.
type Logs struct {
	Out string
	Err string
}

// LogsFor returns prefix_out.log and prefix_err.log.
func LogsFor(prefix string) *Logs {
	return &Logs{
		Out: prefix + "_out.log",
		Err: prefix + "_err.log",
	}
}

// Command is a single invocation of an ANTs executable.
type Command struct {
	Name string
	Args []string
	// Logs receives stdout and stderr. Without logs the output is streamed to the runner progress.
	Logs *Logs
	// Dir is the working directory, the current one when empty.
	Dir string
	// Outputs must all exist once the command succeeded.
	Outputs []string
}

func (c Command) String() string {
	return strings.Join(append([]string{c.Name}, c.Args...), " ")
}

// WithLogs returns a copy of c logging to the pair of prefix.
func (c Command) WithLogs(prefix string) Command {
	c.Logs = LogsFor(prefix)

	return c
}

// Transform is a transform file passed to antsApplyTransforms.
type Transform struct {
	Path   string
	Invert bool
}

func (t Transform) arg() string {
	if t.Invert {
		return "[" + t.Path + ",1]"
	}

	return t.Path
}

// Axis is the reflection axis given to ImageMath ReflectionMatrix.
type Axis int

const (
	Horizontal Axis = 0
	Vertical   Axis = 1
)

// ParseAxis accepts horizontal or vertical.
func ParseAxis(s string) (Axis, error) {
	switch strings.ToLower(s) {
	case "horizontal":
		return Horizontal, nil
	case "vertical":
		return Vertical, nil
	default:
		return 0, errors.Wrapf(ErrInvalidAxis, "got %q", s)
	}
}

func (a Axis) String() string {
	if a == Vertical {
		return "vertical"
	}

	return "horizontal"
}

func flag(b bool) string {
	if b {
		return "1"
	}

	return "0"
}

// ReflectionMatrix writes the matrix mirroring input along axis.
func ReflectionMatrix(input, matrix string, axis Axis) Command {
	return Command{
		Name:    "ImageMath",
		Args:    []string{"3", matrix, "ReflectionMatrix", input, strconv.Itoa(int(axis))},
		Outputs: []string{matrix},
	}
}

// ApplyTransformsOptions configures antsApplyTransforms.
type ApplyTransformsOptions struct {
	Input      string
	Output     string
	Reference  string
	Transforms []Transform
	// Label interpolates with GenericLabel.
	Label bool
	// TimeSeries treats the input as a 4D series of 3D volumes.
	TimeSeries bool
	// Float computes in single precision.
	Float bool
}

// ApplyTransforms resamples an image through a chain of transforms.
func ApplyTransforms(opts ApplyTransformsOptions) Command {
	args := []string{"-d", "3"}
	if opts.TimeSeries {
		args = []string{"-d", "4", "-e", "3"}
	}
	args = append(args, "-i", opts.Input, "-o", opts.Output, "-r", opts.Reference)
	for _, t := range opts.Transforms {
		args = append(args, "-t", t.arg())
	}
	if opts.Label {
		args = append(args, "-n", "GenericLabel")
	}
	if opts.Float {
		args = append(args, "--float", "1")
	}

	return Command{
		Name:    "antsApplyTransforms",
		Args:    args,
		Outputs: []string{opts.Output},
	}
}

// ResampleImage resamples to the voxel size with a windowed sinc interpolation.
func ResampleImage(input, output string, voxel VoxelSize) Command {
	return Command{
		Name:    "ResampleImage",
		Args:    []string{"3", input, output, strings.Join(voxel.Components(), "x"), "0", "0", "6"},
		Outputs: []string{output},
	}
}

// ResampleImageBySpacing resamples to the voxel size without smoothing.
func ResampleImageBySpacing(input, output string, voxel VoxelSize) Command {
	args := append([]string{"3", input, output}, voxel.Components()...)

	return Command{
		Name:    "ResampleImageBySpacing",
		Args:    append(args, "0", "0", "0"),
		Outputs: []string{output},
	}
}

// WarpImageMultiTransform applies transforms to input in the space of reference.
func WarpImageMultiTransform(input, output, reference string, transforms ...string) Command {
	args := append([]string{"3", input, output, "-R", reference}, transforms...)

	return Command{
		Name:    "WarpImageMultiTransform",
		Args:    args,
		Outputs: []string{output},
	}
}

// AverageImages averages inputs into output, normalizing them first when normalize is set.
func AverageImages(output string, normalize bool, inputs ...string) Command {
	args := append([]string{"3", output, flag(normalize)}, inputs...)

	return Command{
		Name:    "AverageImages",
		Args:    args,
		Outputs: []string{output},
	}
}

// Normalize rescales the intensities of file in place.
func Normalize(file string) Command {
	return Command{
		Name:    "ImageMath",
		Args:    []string{"3", file, "Normalize", file},
		Outputs: []string{file},
	}
}

// JacobianDeterminant writes the log Jacobian determinant of a warp field.
func JacobianDeterminant(warp, output string) Command {
	return Command{
		Name:    "CreateJacobianDeterminantImage",
		Args:    []string{"3", warp, output, "1", "1"},
		Outputs: []string{output},
	}
}

// PermuteFlip flips the first axis of input.
func PermuteFlip(input, output string) Command {
	return Command{
		Name:    "PermuteFlipImageOrientationAxes",
		Args:    []string{"3", input, output, "0", "1", "2", "1", "0", "0"},
		Outputs: []string{output},
	}
}

// IntroductionOptions configures antsIntroduction.sh.
type IntroductionOptions struct {
	Template   string
	Input      string
	Prefix     string
	Iterations string
	Transform  string
	Metric     string
	N4         bool
	Quality    bool
}

// Introduction registers Input to Template, writing files starting with Prefix.
func Introduction(opts IntroductionOptions) Command {
	return Command{
		Name: "antsIntroduction.sh",
		Args: []string{
			"-d", "3",
			"-r", opts.Template,
			"-i", opts.Input,
			"-o", opts.Prefix,
			"-m", opts.Iterations,
			"-t", opts.Transform,
			"-n", flag(opts.N4),
			"-q", flag(opts.Quality),
			"-s", opts.Metric,
		},
	}
}

// SyNQuickOptions configures antsRegistrationSyNQuick.sh.
type SyNQuickOptions struct {
	Template          string
	Input             string
	Prefix            string
	Threads           int
	Transform         string
	HistogramMatching bool
	Reproducible      bool
}

// SyNQuick registers Input to Template with the quick SyN preset.
func SyNQuick(opts SyNQuickOptions) Command {
	return Command{
		Name: "antsRegistrationSyNQuick.sh",
		Args: []string{
			"-d", "3",
			"-f", opts.Template,
			"-m", opts.Input,
			"-o", opts.Prefix,
			"-n", strconv.Itoa(opts.Threads),
			"-t", opts.Transform,
			"-j", flag(opts.HistogramMatching),
			"-y", flag(opts.Reproducible),
		},
	}
}
