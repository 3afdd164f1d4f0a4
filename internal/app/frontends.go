package app

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/askiada/antstemplate/internal/register"
	"github.com/askiada/antstemplate/internal/warp"
)

func (a *App) progress(line string) {
	fmt.Fprintln(a.out, line)
}

func (a *App) registerCommand() *cli.Command {
	defaults := register.NewJob("", "", "")

	return &cli.Command{
		Name:  "register",
		Usage: "register one brain to a template",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "template", Aliases: []string{"r"}, Required: true, Usage: "template image"},
			&cli.StringFlag{Name: "input", Aliases: []string{"i"}, Required: true, Usage: "image to register"},
			&cli.StringFlag{Name: "output_dir", Aliases: []string{"o"}, Required: true, Usage: "output directory"},
			&cli.StringFlag{Name: "method", Value: string(defaults.Method), Usage: "introduction or syn-quick"},
			&cli.StringFlag{Name: "transform", Aliases: []string{"t"}, Value: defaults.Introduction.Transform, Usage: "RI, RA, EL, SY, S2, GR, EX or DD"},
			&cli.StringFlag{Name: "metric", Aliases: []string{"s"}, Value: defaults.Introduction.Metric, Usage: "CC, MI, MSQ or PR"},
			&cli.StringFlag{Name: "iterations", Aliases: []string{"m"}, Value: defaults.Introduction.Iterations, Usage: "iterations per level, AxBx..."},
			&cli.BoolFlag{Name: "n4", Value: defaults.Introduction.N4, Usage: "N4 bias field correction"},
			&cli.BoolFlag{Name: "quality", Aliases: []string{"q"}, Value: defaults.Introduction.Quality, Usage: "quality check"},
			&cli.IntFlag{Name: "threads", Value: defaults.SyNQuick.Threads, Usage: "syn-quick threads"},
			&cli.StringFlag{Name: "syn_transform", Value: defaults.SyNQuick.Transform, Usage: "syn-quick transform r, a or s"},
			&cli.BoolFlag{Name: "histogram_matching", Value: defaults.SyNQuick.HistogramMatching, Usage: "syn-quick histogram matching"},
			&cli.BoolFlag{Name: "reproducible", Value: defaults.SyNQuick.Reproducible, Usage: "syn-quick reproducible mode"},
			&cli.BoolFlag{Name: "flip", Usage: "mirror the input before registration"},
			&cli.BoolFlag{Name: "low_memory", Usage: "compute the flip in single precision"},
			&cli.BoolFlag{Name: "debug", Usage: "keep the intermediate files"},
		},
		Action: func(c *cli.Context) error {
			job := register.NewJob(c.String("template"), c.String("input"), c.String("output_dir"))
			job.Method = register.Method(c.String("method"))
			job.Introduction = register.IntroductionOptions{
				Transform:  c.String("transform"),
				Metric:     c.String("metric"),
				Iterations: c.String("iterations"),
				N4:         c.Bool("n4"),
				Quality:    c.Bool("quality"),
			}
			job.SyNQuick = register.SyNQuickOptions{
				Threads:           c.Int("threads"),
				Transform:         c.String("syn_transform"),
				HistogramMatching: c.Bool("histogram_matching"),
				Reproducible:      c.Bool("reproducible"),
			}
			job.Flip = c.Bool("flip")
			job.LowMemory = c.Bool("low_memory")
			job.Debug = c.Bool("debug")

			if err := job.Validate(); err != nil {
				return err
			}
			if err := a.check(job.Executables()...); err != nil {
				return err
			}

			follow, err := job.Run(c.Context, a.env(), a.progress)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Deformed: %s\nWarp: %s\nInverse warp: %s\nAffine: %s\n",
				follow.Deformed, follow.Warp, follow.InverseWarp, follow.Affine)
			if follow.Flipped {
				fmt.Fprintln(a.out, "The input was flipped, warp other channels with --flip.")
			}
			for _, file := range follow.Missing {
				a.logger.Warn().Str("component", "register").Str("file", file).Msg("expected registration output is missing")
			}

			return nil
		},
	}
}

func (a *App) warpCommand() *cli.Command {
	return &cli.Command{
		Name:  "warp",
		Usage: "apply registration transforms to another image, label or point set",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "input", Aliases: []string{"i"}, Required: true, Usage: "file to warp"},
			&cli.StringFlag{Name: "target", Aliases: []string{"r"}, Required: true, Usage: "reference image"},
			&cli.StringFlag{Name: "output_dir", Aliases: []string{"o"}, Required: true, Usage: "output directory"},
			&cli.StringFlag{Name: "warp", Usage: "forward warp field"},
			&cli.StringFlag{Name: "inverse_warp", Usage: "inverse warp field"},
			&cli.StringFlag{Name: "affine", Usage: "affine transform"},
			&cli.BoolFlag{Name: "autofill", Usage: "take the transforms from the registration of a *deformed.nii.gz target"},
			&cli.StringFlag{Name: "direction", Value: string(warp.ToTemplate), Usage: "to-template or from-template"},
			&cli.StringFlag{Name: "kind", Value: string(warp.Volume), Usage: "volume, label or points"},
			&cli.BoolFlag{Name: "affine_only", Usage: "skip the warp field"},
			&cli.BoolFlag{Name: "time_series", Usage: "treat the input as a series of volumes"},
			&cli.BoolFlag{Name: "low_memory", Usage: "compute in single precision"},
			&cli.BoolFlag{Name: "flip", Usage: "mirror the input before warping and the output back afterwards"},
			&cli.BoolFlag{Name: "debug", Usage: "keep the intermediate files"},
		},
		Action: func(c *cli.Context) error {
			job := warp.Job{
				Input:       c.String("input"),
				Target:      c.String("target"),
				OutputDir:   c.String("output_dir"),
				Warp:        c.String("warp"),
				InverseWarp: c.String("inverse_warp"),
				Affine:      c.String("affine"),
				Direction:   warp.Direction(c.String("direction")),
				Kind:        warp.Kind(c.String("kind")),
				AffineOnly:  c.Bool("affine_only"),
				TimeSeries:  c.Bool("time_series"),
				LowMemory:   c.Bool("low_memory"),
				Flip:        c.Bool("flip"),
				Debug:       c.Bool("debug"),
			}
			if c.Bool("autofill") {
				transforms, err := warp.Autofill(job.Target)
				if err != nil {
					return err
				}
				for _, file := range transforms.Missing {
					a.logger.Warn().Str("component", "warp").Str("file", file).Msg("autofilled transform is missing")
				}
				job.Apply(transforms)
			}
			if err := job.Validate(); err != nil {
				return err
			}
			names := []string{"antsApplyTransforms"}
			if job.Flip {
				names = append(names, "ImageMath", "PermuteFlipImageOrientationAxes")
			}
			if err := a.check(names...); err != nil {
				return err
			}

			output, err := job.Run(c.Context, a.env(), a.progress)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Warped file written to %s\n", output)

			return nil
		},
	}
}
