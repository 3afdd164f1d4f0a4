// Package register registers one brain to a template with the ANTs registration scripts.
package register

import (
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"github.com/pkg/errors"

	"github.com/askiada/antstemplate/internal/ants"
	"github.com/askiada/antstemplate/internal/naming"
	"github.com/askiada/antstemplate/internal/stage"
)

var (
	ErrMissingArgument   = errors.New("template, input, and output directory must be set")
	ErrSpaceInPath       = errors.New("paths must not contain spaces")
	ErrInvalidMethod     = errors.New("method must be introduction or syn-quick")
	ErrInvalidTransform  = errors.New("invalid transform type")
	ErrInvalidMetric     = errors.New("similarity metric must be CC, MI, MSQ, or PR")
	ErrInvalidIterations = errors.New("iterations must be positive integers separated by x")
	ErrInvalidThreads    = errors.New("threads must be a positive integer")
)

// Method selects the registration script.
type Method string

const (
	Introduction Method = "introduction"
	SyNQuick     Method = "syn-quick"
)

var (
	introductionTransforms = []string{"RI", "RA", "EL", "SY", "S2", "GR", "EX", "DD"}
	introductionMetrics    = []string{"CC", "MI", "MSQ", "PR"}
	synQuickTransforms     = []string{"r", "a", "s"}
	iterationsPattern      = regexp.MustCompile(`^[1-9][0-9]*(x[1-9][0-9]*)*$`)
)

// IntroductionOptions configures antsIntroduction.sh.
type IntroductionOptions struct {
	Transform  string
	Metric     string
	Iterations string
	N4         bool
	Quality    bool
}

// SyNQuickOptions configures antsRegistrationSyNQuick.sh.
type SyNQuickOptions struct {
	Threads int
	// Transform is r (rigid), a (rigid and affine) or s (rigid, affine and deformable).
	Transform         string
	HistogramMatching bool
	Reproducible      bool
}

// Job registers Input to Template into OutputDir.
type Job struct {
	Template  string
	Input     string
	OutputDir string
	Method    Method

	Introduction IntroductionOptions
	SyNQuick     SyNQuickOptions

	// Flip mirrors the input before registration.
	Flip      bool
	LowMemory bool
	// Debug keeps the intermediate files.
	Debug bool
}

// NewJob returns a job with the default options.
func NewJob(template, input, outputDir string) Job {
	return Job{
		Template:  template,
		Input:     input,
		OutputDir: outputDir,
		Method:    Introduction,
		Introduction: IntroductionOptions{
			Transform:  "GR",
			Metric:     "CC",
			Iterations: "30x90x20x8",
			N4:         true,
			Quality:    true,
		},
		SyNQuick: SyNQuickOptions{
			Threads:      1,
			Transform:    "a",
			Reproducible: true,
		},
	}
}

// Validate checks the job without touching the file system.
func (j Job) Validate() error {
	if j.Template == "" || j.Input == "" || j.OutputDir == "" {
		return ErrMissingArgument
	}
	for _, path := range []string{j.Template, j.Input, j.OutputDir} {
		if strings.Contains(path, " ") {
			return errors.Wrapf(ErrSpaceInPath, "%q", path)
		}
	}

	switch j.Method {
	case Introduction:
		opts := j.Introduction
		if !slices.Contains(introductionTransforms, opts.Transform) {
			return errors.Wrapf(ErrInvalidTransform, "%q is not one of %s", opts.Transform, strings.Join(introductionTransforms, ", "))
		}
		if !slices.Contains(introductionMetrics, opts.Metric) {
			return errors.Wrapf(ErrInvalidMetric, "got %q", opts.Metric)
		}
		if !iterationsPattern.MatchString(opts.Iterations) {
			return errors.Wrapf(ErrInvalidIterations, "got %q", opts.Iterations)
		}
	case SyNQuick:
		opts := j.SyNQuick
		if opts.Threads <= 0 {
			return errors.Wrapf(ErrInvalidThreads, "got %d", opts.Threads)
		}
		if !slices.Contains(synQuickTransforms, opts.Transform) {
			return errors.Wrapf(ErrInvalidTransform, "%q is not one of %s", opts.Transform, strings.Join(synQuickTransforms, ", "))
		}
	default:
		return errors.Wrapf(ErrInvalidMethod, "got %q", j.Method)
	}

	return nil
}

// Prefix returns the prefix of every file the registration writes.
func (j Job) Prefix() string {
	stem := naming.Stem(j.Input)
	if j.Method == SyNQuick {
		return filepath.Join(j.OutputDir, stem+"_registered_")
	}

	return filepath.Join(j.OutputDir, stem+"_")
}

// Executables lists the ANTs executables the job runs.
func (j Job) Executables() []string {
	res := []string{"antsIntroduction.sh"}
	if j.Method == SyNQuick {
		res = []string{"antsRegistrationSyNQuick.sh"}
	}
	if j.Flip {
		res = append(res, "ImageMath", "antsApplyTransforms")
	}

	return res
}

// reflection returns the flip of the input, written next to the registration outputs.
func (j Job) reflection() stage.Reflection {
	stem := naming.Stem(j.Input)

	return stage.Reflection{
		Input:  j.Input,
		Output: filepath.Join(j.OutputDir, stem+"_flipped"+naming.Ext(j.Input)),
		Matrix: filepath.Join(j.OutputDir, stem+".mat"),
		Axis:   ants.Horizontal,
		Float:  j.LowMemory,
	}
}

// command returns the registration command of moving.
func (j Job) command(moving string) ants.Command {
	prefix := j.Prefix()
	var cmd ants.Command
	if j.Method == SyNQuick {
		cmd = ants.SyNQuick(ants.SyNQuickOptions{
			Template:          j.Template,
			Input:             moving,
			Prefix:            prefix,
			Threads:           j.SyNQuick.Threads,
			Transform:         j.SyNQuick.Transform,
			HistogramMatching: j.SyNQuick.HistogramMatching,
			Reproducible:      j.SyNQuick.Reproducible,
		})
	} else {
		cmd = ants.Introduction(ants.IntroductionOptions{
			Template:   j.Template,
			Input:      moving,
			Prefix:     prefix,
			Iterations: j.Introduction.Iterations,
			Transform:  j.Introduction.Transform,
			Metric:     j.Introduction.Metric,
			N4:         j.Introduction.N4,
			Quality:    j.Introduction.Quality,
		})
	}

	// the scripts log to <prefix>out.log
	return cmd.WithLogs(strings.TrimSuffix(prefix, "_"))
}

// absolute returns j with absolute paths, the registration running in a scratch dir.
func (j Job) absolute() (Job, error) {
	for _, path := range []*string{&j.Template, &j.Input, &j.OutputDir} {
		abs, err := filepath.Abs(*path)
		if err != nil {
			return j, errors.Wrapf(err, "unable to resolve %s", *path)
		}
		*path = abs
	}

	return j, nil
}

func requireFile(path string) error {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return errors.Wrap(stage.ErrMissingFile, path)
	}

	return nil
}
