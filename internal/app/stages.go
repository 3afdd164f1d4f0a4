package app

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v2"

	"github.com/askiada/antstemplate/internal/ants"
	"github.com/askiada/antstemplate/internal/stage"
)

func (a *App) mirrorCommand() *cli.Command {
	return &cli.Command{
		Name:  "mirror",
		Usage: "reflect every .nrrd stack into <name>_mirror.nrrd",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "input_dir", Aliases: []string{"i"}, Value: "./cleaned_data/whole_brain/", Usage: "directory of .nrrd stacks"},
			&cli.StringFlag{Name: "output_dir", Aliases: []string{"o"}, Usage: "output directory (default: input directory)"},
			&cli.BoolFlag{Name: "skip_existing", Aliases: []string{"skip"}, Value: true, Usage: "keep existing mirrors"},
			workersFlagWithDefault(1),
			&cli.StringFlag{Name: "axis", Aliases: []string{"a"}, Value: "horizontal", Usage: "horizontal or vertical"},
			&cli.BoolFlag{Name: "clean_up", Aliases: []string{"c"}, Value: true, Usage: "remove log files without errors"},
		},
		Action: func(c *cli.Context) error {
			axis, err := ants.ParseAxis(c.String("axis"))
			if err != nil {
				return err
			}
			res, err := stage.Mirror(c.Context, a.env(), stage.MirrorOptions{
				InputDir:     c.String("input_dir"),
				OutputDir:    c.String("output_dir"),
				SkipExisting: c.Bool("skip_existing"),
				Workers:      a.workers(c),
				Axis:         axis,
				CleanUp:      c.Bool("clean_up"),
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Mirrored %s files, skipped %s.\n",
				humanize.Comma(int64(len(res.Mirrored))), humanize.Comma(int64(len(res.Skipped))))

			return nil
		},
	}
}

func (a *App) resampleCommand() *cli.Command {
	return &cli.Command{
		Name:  "resample",
		Usage: "resample stacks to a target voxel size",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "input_dir", Aliases: []string{"i"}, Value: "./cleaned_data", Usage: "directory of .nrrd stacks"},
			&cli.StringFlag{Name: "output_dir", Aliases: []string{"o"}, Value: "./resampled_data", Usage: "output directory"},
			&cli.StringFlag{Name: "target_voxel_size", Aliases: []string{"v"}, Value: "0.8x0.8x0.8", Usage: "target voxel size in microns"},
			workersFlagWithDefault(1),
			&cli.BoolFlag{Name: "clean_up", Aliases: []string{"c"}, Value: true, Usage: "remove log files without errors"},
		},
		Action: func(c *cli.Context) error {
			files, err := stage.Resample(c.Context, a.env(), stage.ResampleOptions{
				InputDir:  c.String("input_dir"),
				OutputDir: c.String("output_dir"),
				VoxelSize: c.String("target_voxel_size"),
				Workers:   a.workers(c),
				CleanUp:   c.Bool("clean_up"),
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Resampled %s files.\n", humanize.Comma(int64(len(files))))

			return nil
		},
	}
}

func (a *App) asymmetrizeCommand() *cli.Command {
	return &cli.Command{
		Name:  "asymmetrize",
		Usage: "route files to the output, backup or diff directories by their leaning",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "input_dir", Aliases: []string{"i"}, Value: "./resampled_data/", Usage: "directory of .nrrd files"},
			&cli.StringFlag{Name: "output_dir", Aliases: []string{"o"}, Usage: "output directory (default: input directory)"},
			&cli.StringFlag{Name: "backup_dir", Aliases: []string{"b"}, Usage: "backup directory (default: <input_dir>/backup)"},
			&cli.StringFlag{Name: "diff_dir", Aliases: []string{"m"}, Usage: "diff directory (default: <input_dir>/diff)"},
			&cli.StringFlag{Name: "metadata", Aliases: []string{"meta"}, Usage: "metadata CSV"},
			&cli.StringFlag{Name: "left_or_right", Aliases: []string{"lr"}, Value: "left", Usage: "side kept in the output directory"},
			&cli.BoolFlag{Name: "quality_affine", Aliases: []string{"q"}, Value: true, Usage: "set symmetric and skip-affine files aside in the diff directory"},
		},
		Action: func(c *cli.Context) error {
			moves, err := stage.Asymmetrize(c.Context, a.env(), stage.AsymmetrizeOptions{
				InputDir:      c.String("input_dir"),
				OutputDir:     c.String("output_dir"),
				BackupDir:     c.String("backup_dir"),
				DiffDir:       c.String("diff_dir"),
				Metadata:      a.metadata(c),
				Side:          c.String("left_or_right"),
				QualityAffine: c.Bool("quality_affine"),
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Moved %s files.\n", humanize.Comma(int64(len(moves))))

			return nil
		},
	}
}

func (a *App) resetSymmetryCommand() *cli.Command {
	return &cli.Command{
		Name:  "reset-symmetry",
		Usage: "move the backup and diff files back into the input directory",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "input_dir", Aliases: []string{"i"}, Value: "./resampled_data/whole_brain/", Usage: "directory of .nrrd files"},
			&cli.StringFlag{Name: "backup_dir", Aliases: []string{"b"}, Usage: "backup directory (default: <input_dir>/backup)"},
			&cli.BoolFlag{Name: "quality_affine", Aliases: []string{"n"}, Usage: "also restore the diff directory"},
			&cli.StringFlag{Name: "diff_dir", Aliases: []string{"m"}, Usage: "diff directory (default: <input_dir>/diff)"},
		},
		Action: func(c *cli.Context) error {
			restored, err := stage.ResetSymmetry(c.Context, a.env(), stage.ResetSymmetryOptions{
				InputDir:      c.String("input_dir"),
				BackupDir:     c.String("backup_dir"),
				QualityAffine: c.Bool("quality_affine"),
				DiffDir:       c.String("diff_dir"),
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Restored %s files.\n", humanize.Comma(int64(len(restored))))

			return nil
		},
	}
}

func (a *App) generateTemplateCommand() *cli.Command {
	return &cli.Command{
		Name:  "generate-template",
		Usage: "build a high resolution template from a results directory",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "input_dir", Aliases: []string{"i"}, Usage: "results directory (default: latest in the results root)"},
			&cli.StringFlag{Name: "clean_database", Aliases: []string{"db"}, Value: "./cleaned_data/whole_brain", Usage: "directory of the original stacks"},
			&cli.StringFlag{Name: "output_dir", Aliases: []string{"o"}, Value: "./final_templates", Usage: "output directory"},
			&cli.StringFlag{Name: "target_voxel_size", Aliases: []string{"v"}, Value: "0.8x0.8x0.8", Usage: "target voxel size in microns"},
			workersFlagWithDefault(1),
			&cli.BoolFlag{Name: "keep_temp", Aliases: []string{"t"}, Usage: "keep the temporary files"},
			&cli.StringFlag{Name: "template", Value: "complete_template0.nii.gz", Usage: "template file inside the results directory"},
		},
		Action: func(c *cli.Context) error {
			output, err := stage.GenerateTemplate(c.Context, a.env(), stage.GenerateTemplateOptions{
				Results:      a.results(c),
				CleanDir:     c.String("clean_database"),
				OutputDir:    c.String("output_dir"),
				VoxelSize:    c.String("target_voxel_size"),
				Workers:      a.workers(c),
				KeepTemp:     c.Bool("keep_temp"),
				TemplateFile: c.String("template"),
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Template written to %s\n", output)

			return nil
		},
	}
}

func (a *App) refineTemplateCommand() *cli.Command {
	return &cli.Command{
		Name:  "refine-template",
		Usage: "average the normalized deformed images into a refined template",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "input_dir", Aliases: []string{"i"}, Usage: "results directory (default: latest in the results root)"},
			&cli.StringFlag{Name: "metadata", Aliases: []string{"meta"}, Usage: "metadata CSV"},
			&cli.StringFlag{Name: "output_dir", Aliases: []string{"o"}, Value: "./refined_templates/", Usage: "output directory"},
			workersFlagWithDefault(1),
			&cli.BoolFlag{Name: "keep_temp", Aliases: []string{"t"}, Usage: "keep the temporary files"},
		},
		Action: func(c *cli.Context) error {
			output, err := stage.RefineTemplate(c.Context, a.env(), stage.RefineTemplateOptions{
				Results:   a.results(c),
				Metadata:  a.metadata(c),
				OutputDir: c.String("output_dir"),
				Workers:   a.workers(c),
				KeepTemp:  c.Bool("keep_temp"),
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Refined template written to %s\n", output)

			return nil
		},
	}
}
