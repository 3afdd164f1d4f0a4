package app

import (
	"fmt"
	"path/filepath"
	"runtime"

	"github.com/urfave/cli/v2"

	"github.com/askiada/antstemplate/internal/verify"
)

func (a *App) jacobianCommand() *cli.Command {
	return &cli.Command{
		Name:  "jacobian",
		Usage: "compute the log jacobian of every warp and summarize them",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{Name: "syn_dir", Aliases: []string{"i"}, Usage: "syn directories (default: syn of the latest results directory)"},
			&cli.StringFlag{Name: "processed_dir", Aliases: []string{"p"}, Value: "processed_data", Usage: "directory of the log jacobian volumes"},
			&cli.StringFlag{Name: "summary_dir", Aliases: []string{"o"}, Value: "whole_brain", Usage: "directory of the whole brain statistics"},
			&cli.StringFlag{Name: "channel_dir", Value: "neuropils", Usage: "directory of the per channel statistics"},
			workersFlagWithDefault(runtime.NumCPU()),
			&cli.StringFlag{Name: "consensus", Usage: "consensus segmentation splitting the statistics per channel"},
			&cli.IntFlag{Name: "channels", Usage: "number of consensus channels (default: channel files next to the consensus)"},
			&cli.StringFlag{Name: "histogram", Value: "jacobian_histogram.png", Usage: "histogram file in the summary directory, empty to skip"},
		},
		Action: func(c *cli.Context) error {
			dirs := c.StringSlice("syn_dir")
			if len(dirs) == 0 {
				results, err := a.results(c).Resolve()
				if err != nil {
					return err
				}
				dirs = []string{filepath.Join(results, "syn")}
			}
			summary := c.String("summary_dir")
			histogram := c.String("histogram")
			if histogram != "" && !filepath.IsAbs(histogram) {
				histogram = filepath.Join(summary, histogram)
			}
			if err := a.check("CreateJacobianDeterminantImage"); err != nil {
				return err
			}

			res, err := verify.Jacobian(c.Context, a.env(), verify.JacobianOptions{
				SynDirs:      dirs,
				ProcessedDir: c.String("processed_dir"),
				SummaryDir:   summary,
				ChannelDir:   c.String("channel_dir"),
				Workers:      a.workers(c),
				Consensus:    c.String("consensus"),
				Channels:     c.Int("channels"),
				Histogram:    histogram,
			})
			if err != nil {
				return err
			}
			if _, err := res.Summary.WriteTo(a.out); err != nil {
				return err
			}
			for _, ch := range res.Channels {
				fmt.Fprintf(a.out, "Channel %d\n==========\n", ch.Channel)
				if _, err := ch.Summary.WriteTo(a.out); err != nil {
					return err
				}
			}

			return nil
		},
	}
}

func (a *App) diceCommand() *cli.Command {
	return &cli.Command{
		Name:  "dice",
		Usage: "digitize segmented labels, score their overlap and build the consensus segmentation",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "labels_dir", Aliases: []string{"i"}, Value: "./segmentation_data/template", Usage: "directory of the *segmented*.nrrd labels"},
			&cli.StringFlag{Name: "output_dir", Aliases: []string{"o"}, Value: "processed_data/template", Usage: "output directory"},
			&cli.Float64Flag{Name: "threshold", Value: verify.DefaultPeakThreshold, Usage: "height of a histogram peak above its neighbours"},
			&cli.IntFlag{Name: "lowest", Value: verify.DefaultLowestPairs, Usage: "lowest scoring pairs reported per channel"},
			workersFlagWithDefault(runtime.NumCPU()),
		},
		Action: func(c *cli.Context) error {
			res, err := verify.Dice(c.Context, a.env(), verify.DiceOptions{
				LabelsDir: c.String("labels_dir"),
				OutputDir: c.String("output_dir"),
				Threshold: c.Float64("threshold"),
				Workers:   a.workers(c),
				Lowest:    c.Int("lowest"),
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Scored %d labels over %d channels.\n", len(res.Labels), res.Channels)

			return nil
		},
	}
}

func (a *App) segmentVerifyCommand() *cli.Command {
	return &cli.Command{
		Name:  "segment-verify",
		Usage: "register segmented train or test samples to a template and score the overlap of their warped labels",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "set", Required: true, Usage: "train or test"},
			&cli.StringFlag{Name: "data_dir", Aliases: []string{"i"}, Usage: "directory of the images and their *_segmentation.nrrd labels (default: ../data/segmentation_data/<set>)"},
			&cli.StringFlag{Name: "template_dir", Value: "../data/templates", Usage: "directory searched for the template at the voxel size"},
			&cli.StringFlag{Name: "template", Aliases: []string{"r"}, Usage: "template image, overrides --template_dir"},
			&cli.StringFlag{Name: "output_dir", Aliases: []string{"o"}, Usage: "output directory (default: processed_data/<set>)"},
			&cli.StringFlag{Name: "voxel_size", Aliases: []string{"v"}, Value: verify.DefaultSegmentVoxel, Usage: "registration resolution, AxBxC"},
			&cli.StringFlag{Name: "side", Value: verify.DefaultSide, Usage: "LEFT or RIGHT, samples of the other side are mirrored"},
			&cli.BoolFlag{Name: "quality", Aliases: []string{"q"}, Usage: "quality check of the registration (default: on for the test set)"},
			&cli.Float64Flag{Name: "threshold", Value: verify.DefaultPeakThreshold, Usage: "height of a histogram peak above its neighbours"},
			&cli.IntFlag{Name: "lowest", Value: verify.DefaultLowestPairs, Usage: "lowest scoring pairs reported per channel"},
			&cli.BoolFlag{Name: "debug", Usage: "keep the intermediate files"},
			workersFlagWithDefault(runtime.NumCPU()),
		},
		Action: func(c *cli.Context) error {
			set := c.String("set")
			dataDir := c.String("data_dir")
			if dataDir == "" {
				dataDir = filepath.Join("..", "data", "segmentation_data", set)
			}
			outputDir := c.String("output_dir")
			if outputDir == "" {
				outputDir = filepath.Join("processed_data", set)
			}
			quality := set == verify.TestSet
			if c.IsSet("quality") {
				quality = c.Bool("quality")
			}
			if err := a.check("ImageMath", "antsApplyTransforms", "ResampleImage", "antsIntroduction.sh", "PermuteFlipImageOrientationAxes"); err != nil {
				return err
			}

			res, err := verify.Segment(c.Context, a.env(), verify.SegmentOptions{
				DataDir:     dataDir,
				TemplateDir: c.String("template_dir"),
				Template:    c.String("template"),
				OutputDir:   outputDir,
				Set:         set,
				VoxelSize:   c.String("voxel_size"),
				Side:        c.String("side"),
				Quality:     quality,
				Threshold:   c.Float64("threshold"),
				Lowest:      c.Int("lowest"),
				Workers:     a.workers(c),
				Debug:       c.Bool("debug"),
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Scored %d %s samples against %s over %d channels.\n",
				len(res.Samples), set, res.Template, res.Dice.Channels)

			return nil
		},
	}
}
