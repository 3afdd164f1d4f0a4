package stage

import (
	"context"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/askiada/antstemplate/internal/metadata"
	"github.com/askiada/antstemplate/internal/naming"
	"github.com/askiada/antstemplate/pkg/pipeline"
)

// ErrInvalidSide is returned when the target side is neither left nor right.
var ErrInvalidSide = errors.New("target side must be left or right")

// Destination is where Asymmetrize moves a file.
type Destination int

const (
	ToOutput Destination = iota
	ToBackup
	ToDiff
)

func (d Destination) String() string {
	switch d {
	case ToOutput:
		return "output"
	case ToBackup:
		return "backup"
	case ToDiff:
		return "diff"
	default:
		return "unknown"
	}
}

// Route returns the destination of a file given its sample leaning.
func Route(leaning, target metadata.Leaning, mirror, skipAffine, qualityAffine bool) Destination {
	keep, other := ToOutput, ToBackup
	if mirror {
		keep, other = ToBackup, ToOutput
	}

	if !qualityAffine {
		if leaning == target || leaning == metadata.Sym {
			return keep
		}

		return other
	}

	switch {
	case leaning == target:
		return keep
	case leaning == metadata.Sym || skipAffine:
		if mirror {
			return ToBackup
		}

		return ToDiff
	default:
		return other
	}
}

// Move is one planned file move.
type Move struct {
	Source      string
	Destination Destination
}

// PlanAsymmetry routes every file through md. It fails before anything is moved.
func PlanAsymmetry(files []string, md *metadata.Metadata, target metadata.Leaning, qualityAffine bool) ([]Move, error) {
	moves := make([]Move, 0, len(files))
	for _, file := range files {
		rec, err := md.Lookup(naming.CleanName(file))
		if err != nil {
			return nil, err
		}
		leaning, err := rec.Leaning()
		if err != nil {
			return nil, err
		}
		moves = append(moves, Move{
			Source:      file,
			Destination: Route(leaning, target, naming.IsMirror(file), rec.SkipAffine, qualityAffine),
		})
	}

	return moves, nil
}

// AsymmetrizeOptions configures Asymmetrize.
type AsymmetrizeOptions struct {
	InputDir  string
	OutputDir string
	BackupDir string
	DiffDir   string
	Metadata  string
	// Side is the leaning kept in the output dir.
	Side          string
	QualityAffine bool
}

func (o *AsymmetrizeOptions) setDefaults() {
	if o.OutputDir == "" {
		o.OutputDir = o.InputDir
	}
	if o.BackupDir == "" {
		o.BackupDir = filepath.Join(o.InputDir, "backup")
	}
	if o.DiffDir == "" {
		o.DiffDir = filepath.Join(o.InputDir, "diff")
	}
}

// Asymmetrize keeps the stacks leaning toward Side in the output dir and moves the others aside.
func Asymmetrize(ctx context.Context, env Env, opts AsymmetrizeOptions) ([]Move, error) {
	logger := env.logger("asymmetrize")
	opts.setDefaults()

	target, err := metadata.ParseLeaning(opts.Side)
	if err != nil || target == metadata.Sym {
		return nil, errors.Wrapf(ErrInvalidSide, "got %q", opts.Side)
	}
	if err := requireDir(opts.InputDir); err != nil {
		return nil, err
	}
	files, err := globFiles(opts.InputDir, "*.nrrd")
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, errors.Wrap(ErrNoInputFiles, opts.InputDir)
	}
	md, err := metadata.Load(opts.Metadata)
	if err != nil {
		return nil, err
	}

	moves, err := PlanAsymmetry(files, md, target, opts.QualityAffine)
	if err != nil {
		return nil, err
	}

	dirs := map[Destination]string{
		ToOutput: opts.OutputDir,
		ToBackup: opts.BackupDir,
		ToDiff:   opts.DiffDir,
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrapf(err, "unable to create %s", dir)
		}
	}
	if opts.QualityAffine {
		logger.Info().Msgf("keeping only %s brains in affine and both %s and symmetric brains in diffeomorphic", target, target)
	} else {
		logger.Info().Msgf("keeping only %s or symmetric brains", target)
	}

	if err := runMoves(ctx, env, moves, dirs); err != nil {
		return nil, err
	}

	return moves, nil
}

func runMoves(ctx context.Context, env Env, moves []Move, dirs map[Destination]string) error {
	logger := env.logger("asymmetrize")

	pipe, err := env.NewPipeline(ctx)
	if err != nil {
		return errors.Wrap(err, "unable to create pipeline")
	}
	root, err := pipeline.AddRootStepFromSlice(pipe, "plan", moves)
	if err != nil {
		return err
	}

	destinations := []Destination{ToOutput, ToBackup, ToDiff}
	fns := make([]pipeline.SplitterFn[Move], len(destinations))
	for i, dest := range destinations {
		fns[i] = func(m Move) (bool, error) { return m.Destination == dest, nil }
	}
	splitter, err := pipeline.AddSplitterFn(pipe, "route", root, fns)
	if err != nil {
		return err
	}

	for _, dest := range destinations {
		branch, ok := splitter.Get()
		if !ok {
			return errors.Errorf("missing branch for %s", dest)
		}
		dir := dirs[dest]
		err := pipeline.AddSink(pipe, "move to "+dest.String(), branch, func(_ context.Context, m Move) error {
			target := filepath.Join(dir, filepath.Base(m.Source))
			if err := MoveFile(m.Source, target); err != nil {
				return err
			}
			logger.Debug().Str("from", m.Source).Str("to", target).Msg("moved")

			return nil
		})
		if err != nil {
			return err
		}
	}

	return pipe.Run()
}
