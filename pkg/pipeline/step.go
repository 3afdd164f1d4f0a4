package pipeline

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/askiada/antstemplate/pkg/pipeline/model"
)

// stepFn turns one input into zero or more outputs.
type stepFn[I, O any] func(ctx context.Context, input I) ([]O, error)

// outputHook is called once per processed input.
type outputHook func(iterationDuration, computationDuration time.Duration) error

func sequentialFn[I, O any](ctx context.Context, goIdx int, input *model.Step[I], output *model.Step[O], fn stepFn[I, O], hook outputHook) error {
	for {
		startIter := time.Now()
		select {
		case <-ctx.Done():
			return errors.Wrapf(ctx.Err(), "go routine %d", goIdx)
		case in, ok := <-input.Output:
			if !ok {
				if ctx.Err() != nil {
					return errors.Wrapf(ctx.Err(), "go routine %d", goIdx)
				}

				return nil
			}
			startFn := time.Now()
			outs, err := fn(ctx, in)
			if err != nil {
				return errors.Wrapf(err, "go routine %d", goIdx)
			}
			endFn := time.Since(startFn)

			for _, out := range outs {
				// checked again so running goroutines stop adding elements once cancelled
				select {
				case <-ctx.Done():
					return errors.Wrapf(ctx.Err(), "go routine %d", goIdx)
				case output.Output <- out:
				}
			}

			if hook != nil {
				err = hook(time.Since(startIter)-endFn, endFn)
				if err != nil {
					return errors.Wrapf(err, "go routine %d", goIdx)
				}
			}
		}
	}
}

func concurrentFn[I, O any](ctx context.Context, concurrent int, input *model.Step[I], output *model.Step[O], fn stepFn[I, O], hook outputHook) error {
	errGrp, dCtx := errgroup.WithContext(ctx)
	errGrp.SetLimit(concurrent)
	// each consumer stops as soon as one of them fails
	for goIdx := range concurrent {
		errGrp.Go(func() error {
			return sequentialFn(dCtx, goIdx, input, output, fn, hook)
		})
	}

	return errGrp.Wait()
}

func runStep[I, O any](ctx context.Context, input *model.Step[I], output *model.Step[O], fn stepFn[I, O], hook outputHook) error {
	details := output.Info()
	if details.Concurrent < 1 {
		details.Concurrent = 1
	}
	if details.Concurrent == 1 {
		return sequentialFn(ctx, 0, input, output, fn, hook)
	}

	return concurrentFn(ctx, details.Concurrent, input, output, fn, hook)
}

// oneToOne wraps oneToOneFn into a step emitting exactly one output.
func oneToOne[I, O any](oneToOneFn func(context.Context, I) (O, error)) stepFn[I, O] {
	return func(ctx context.Context, in I) ([]O, error) {
		out, err := oneToOneFn(ctx, in)
		if err != nil {
			return nil, err
		}

		return []O{out}, nil
	}
}

func runOneToOne[I, O any](ctx context.Context, input *model.Step[I], output *model.Step[O], oneToOneFn func(context.Context, I) (O, error), hook outputHook) error {
	return runStep(ctx, input, output, oneToOne(oneToOneFn), hook)
}

func prepareStep[I, O any](p *Pipeline, name string, input *model.Step[I], opts ...StepOption[O]) (*model.Step[O], error) {
	if p == nil {
		return nil, ErrPipelineMustBeSet
	}
	if input == nil {
		return nil, ErrInputMustBeSet
	}

	step := &model.Step[O]{
		Details: &model.StepInfo{
			Type:       model.NormalStepType,
			Name:       name,
			Concurrent: 1,
		},
	}
	for _, opt := range opts {
		opt(step)
	}
	step.Output = make(chan O, step.Details.BufferSize)

	for _, opt := range p.opts {
		err := opt.PrepareStep(input.Info(), step.Details)
		if err != nil {
			return nil, errors.Wrap(err, "unable to run before step function")
		}
	}

	return step, nil
}

func (p *Pipeline) stepHook(parent, step *model.StepInfo) outputHook {
	if len(p.opts) == 0 {
		return nil
	}

	return func(iterationDuration, computationDuration time.Duration) error {
		for _, opt := range p.opts {
			err := opt.OnStepOutput(parent, step, iterationDuration, computationDuration)
			if err != nil {
				return errors.Wrap(err, "unable to run on step output function")
			}
		}

		return nil
	}
}

func addStep[I, O any](p *Pipeline, name string, input *model.Step[I], fn stepFn[I, O], opts ...StepOption[O]) (*model.Step[O], error) {
	step, err := prepareStep(p, name, input, opts...)
	if err != nil {
		return nil, err
	}

	hook := p.stepHook(input.Info(), step.Details)
	p.startStage(name, func() error {
		return runStep(p.ctx, input, step, fn, hook)
	}, func() { close(step.Output) })

	return step, nil
}

// AddStepOneToOne adds a step producing exactly one output per input.
func AddStepOneToOne[I, O any](p *Pipeline, name string, input *model.Step[I], oneToOneFn func(context.Context, I) (O, error), opts ...StepOption[O]) (*model.Step[O], error) {
	return addStep(p, name, input, oneToOne(oneToOneFn), opts...)
}

// AddStepOneToOneOrZero adds a step dropping every zero value returned by oneToOneFn.
func AddStepOneToOneOrZero[I any, O comparable](p *Pipeline, name string, input *model.Step[I], oneToOneFn func(context.Context, I) (O, error), opts ...StepOption[O]) (*model.Step[O], error) {
	return addStep(p, name, input, func(ctx context.Context, in I) ([]O, error) {
		var zero O

		out, err := oneToOneFn(ctx, in)
		if err != nil {
			return nil, err
		}
		if out == zero {
			return nil, nil
		}

		return []O{out}, nil
	}, opts...)
}

// AddStepOneToMany adds a step producing any number of outputs per input.
func AddStepOneToMany[I, O any](p *Pipeline, name string, input *model.Step[I], oneToManyFn func(context.Context, I) ([]O, error), opts ...StepOption[O]) (*model.Step[O], error) {
	return addStep(p, name, input, stepFn[I, O](oneToManyFn), opts...)
}
