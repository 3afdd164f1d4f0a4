package pipeline

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/askiada/antstemplate/pkg/pipeline/model"
)

func prepareMerger[I any](p *Pipeline, name string, steps ...*model.Step[I]) (*model.Step[I], error) {
	if p == nil {
		return nil, ErrPipelineMustBeSet
	}
	if len(steps) == 0 {
		return nil, ErrMergerInputs
	}

	outputStep := &model.Step[I]{
		Details: &model.StepInfo{
			Type:       model.MergerStepType,
			Name:       name,
			Concurrent: 1,
		},
		Output: make(chan I),
	}

	stepInfos := make([]*model.StepInfo, len(steps))
	for i, step := range steps {
		if step == nil {
			return nil, ErrInputMustBeSet
		}
		stepInfos[i] = step.Info()
	}

	for _, opt := range p.opts {
		err := opt.PrepareMerger(stepInfos, outputStep.Details)
		if err != nil {
			return nil, errors.Wrap(err, "unable to run before merger function")
		}
	}

	return outputStep, nil
}

func (p *Pipeline) onMergerOutput(parent, outputStep *model.StepInfo, startIter time.Time) error {
	endIter := time.Since(startIter)
	for _, opt := range p.opts {
		err := opt.OnMergerOutput(parent, outputStep, endIter)
		if err != nil {
			return errors.Wrap(err, "unable to run on merger output function")
		}
	}

	return nil
}

func runStepMerger[I any](ctx context.Context, p *Pipeline, step, outputStep *model.Step[I]) error {
	for {
		startIter := time.Now()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case entry, ok := <-step.Output:
			if !ok {
				return ctx.Err()
			}

			select {
			case <-ctx.Done():
				return ctx.Err()
			case outputStep.Output <- entry:
				err := p.onMergerOutput(step.Info(), outputStep.Details, startIter)
				if err != nil {
					return err
				}
			}
		}
	}
}

// AddMerger merges the output of steps into a single channel, closed once every input is drained.
func AddMerger[I any](p *Pipeline, name string, steps ...*model.Step[I]) (*model.Step[I], error) {
	outputStep, err := prepareMerger(p, name, steps...)
	if err != nil {
		return nil, errors.Wrap(err, "unable to prepare merger")
	}

	p.startStage(name, func() error {
		errGrp, dCtx := errgroup.WithContext(p.ctx)
		for _, step := range steps {
			errGrp.Go(func() error {
				return runStepMerger(dCtx, p, step, outputStep)
			})
		}

		return errGrp.Wait()
	}, func() { close(outputStep.Output) })

	return outputStep, nil
}
