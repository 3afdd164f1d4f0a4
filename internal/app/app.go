// Package app wires the template building stages into the antstemplate command line.
package app

import (
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"github.com/askiada/antstemplate/internal/ants"
	"github.com/askiada/antstemplate/internal/config"
	"github.com/askiada/antstemplate/internal/logger"
	"github.com/askiada/antstemplate/internal/stage"
	"github.com/askiada/antstemplate/pkg/pipeline/drawer"
	"github.com/askiada/antstemplate/pkg/pipeline/measure"
	"github.com/askiada/antstemplate/pkg/pipeline/model"
)

// Banner is printed before every command.
const Banner = "Kronauer Lab - Microscopy Image Processing Pipeline"

const workersFlag = "num_workers"

// App holds the state shared by the commands of one invocation.
type App struct {
	out    io.Writer
	cfg    *config.Config
	logger zerolog.Logger
	runner *ants.Runner

	// runnerOverride replaces the ANTs runner, for tests.
	runnerOverride stage.CommandRunner

	measure   *measure.DefaultMeasure
	drawPath  string
	pipelines atomic.Int64
}

// New returns the command line application writing to out.
func New(out io.Writer) *cli.App {
	return newApp(out, nil)
}

func newApp(out io.Writer, runner stage.CommandRunner) *cli.App {
	a := &App{out: out, runnerOverride: runner}

	return &cli.App{
		Name:      "antstemplate",
		Usage:     "build, refine and verify ANTs brain templates",
		Writer:    out,
		ErrWriter: out,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Value: config.DefaultPath, Usage: "path to the configuration file"},
			&cli.StringFlag{Name: "log-level", Usage: "debug, info, warn or error"},
			&cli.StringFlag{Name: "log-format", Usage: "console or json"},
			&cli.StringFlag{Name: "ants-path", EnvVars: []string{"ANTSPATH"}, Usage: "directory holding the ANTs executables"},
			&cli.BoolFlag{Name: "measure", Usage: "log the duration of every pipeline step"},
			&cli.StringFlag{Name: "draw", Usage: "write the pipeline graphs to this DOT file"},
		},
		Before: a.setup,
		After:  a.report,
		Commands: []*cli.Command{
			a.mirrorCommand(),
			a.resampleCommand(),
			a.asymmetrizeCommand(),
			a.resetSymmetryCommand(),
			a.generateTemplateCommand(),
			a.refineTemplateCommand(),
			a.registerCommand(),
			a.warpCommand(),
			a.jacobianCommand(),
			a.diceCommand(),
			a.segmentVerifyCommand(),
		},
	}
}

func (a *App) setup(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}
	if c.IsSet("log-level") {
		cfg.Log.Level = c.String("log-level")
	}
	if c.IsSet("log-format") {
		cfg.Log.Format = c.String("log-format")
	}
	if c.IsSet("ants-path") {
		cfg.ANTs.BinDir = c.String("ants-path")
	}
	a.cfg = cfg

	a.logger, err = logger.New(a.out, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	a.runner = ants.NewRunner(
		ants.WithBinDir(cfg.ANTs.BinDir),
		ants.WithLogger(a.logger.With().Str("component", "ants").Logger()),
		ants.WithProgress(func(line string) {
			a.logger.Debug().Str("component", "ants").Msg(line)
		}),
	)
	if c.Bool("measure") || c.IsSet("draw") {
		a.measure = measure.NewDefaultMeasure()
	}
	a.drawPath = c.String("draw")

	fmt.Fprintln(a.out, Banner)

	return nil
}

// pipelineOptions gives each pipeline its own drawer, numbering the DOT files after the first.
func (a *App) pipelineOptions() []model.PipelineOption {
	var opts []model.PipelineOption
	if a.measure != nil {
		opts = append(opts, measure.PipelineMeasure(a.measure))
	}
	if a.drawPath != "" {
		path := a.drawPath
		if n := a.pipelines.Add(1); n > 1 {
			ext := filepath.Ext(path)
			path = strings.TrimSuffix(path, ext) + "_" + strconv.FormatInt(n, 10) + ext
		}
		opts = append(opts, drawer.PipelineDrawer(drawer.NewDOTDrawer(path), a.measure))
	}

	return opts
}

func (a *App) env() stage.Env {
	env := stage.Env{
		Runner:          a.runner,
		Logger:          a.logger,
		PipelineOptions: a.pipelineOptions,
	}
	if a.runnerOverride != nil {
		env.Runner = a.runnerOverride
	}

	return env
}

// check verifies the executables unless the runner is replaced.
func (a *App) check(names ...string) error {
	if a.runnerOverride != nil {
		return nil
	}

	return a.runner.Check(names...)
}

// workers prefers the flag, then the configuration, then the flag default.
func (a *App) workers(c *cli.Context) int {
	if !c.IsSet(workersFlag) && a.cfg.Processing.Workers > 0 {
		return a.cfg.Processing.Workers
	}

	return c.Int(workersFlag)
}

// metadata prefers the flag, then the configuration.
func (a *App) metadata(c *cli.Context) string {
	if c.IsSet("metadata") {
		return c.String("metadata")
	}

	return a.cfg.Metadata
}

func (a *App) results(c *cli.Context) stage.ResultsOptions {
	return stage.ResultsOptions{
		Dir:    c.String("input_dir"),
		Root:   a.cfg.Results.Root,
		Prefix: a.cfg.Results.Prefix,
	}
}

func (a *App) report(_ *cli.Context) error {
	if a.measure == nil {
		return nil
	}
	for _, step := range measure.Report(a.measure) {
		if step.Count == 0 && step.Total == 0 {
			continue
		}
		a.logger.Info().
			Str("component", "measure").
			Str("step", step.Name).
			Str("count", humanize.Comma(step.Count)).
			Dur("average", step.Average).
			Dur("total", step.Total).
			Msg("step timing")
	}

	return nil
}

func workersFlagWithDefault(value int) *cli.IntFlag {
	return &cli.IntFlag{Name: workersFlag, Aliases: []string{"n"}, Value: value, Usage: "number of workers"}
}
