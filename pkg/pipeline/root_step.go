package pipeline

import (
	"context"

	"github.com/pkg/errors"

	"github.com/askiada/antstemplate/pkg/pipeline/model"
)

func prepareRootStep[O any](p *Pipeline, name string, opts ...StepOption[O]) (*model.Step[O], error) {
	step := &model.Step[O]{
		Details: &model.StepInfo{
			Type:       model.RootStepType,
			Name:       name,
			Concurrent: 1,
		},
	}
	for _, opt := range opts {
		opt(step)
	}
	step.Output = make(chan O, step.Details.BufferSize)

	for _, opt := range p.opts {
		err := opt.PrepareStep(model.StartStep.Details, step.Details)
		if err != nil {
			return nil, errors.Wrap(err, "unable to run before step function")
		}
	}

	return step, nil
}

// AddRootStep adds a step feeding the pipeline. stepFn owns the output until it returns.
func AddRootStep[O any](p *Pipeline, name string, stepFn func(ctx context.Context, rootChan chan<- O) error, opts ...StepOption[O]) (*model.Step[O], error) {
	if p == nil {
		return nil, ErrPipelineMustBeSet
	}

	step, err := prepareRootStep(p, name, opts...)
	if err != nil {
		return nil, err
	}

	p.startStage(name, func() error {
		return stepFn(p.ctx, step.Output)
	}, func() { close(step.Output) })

	return step, nil
}

// AddRootStepFromSlice adds a root step emitting items in order.
func AddRootStepFromSlice[O any](p *Pipeline, name string, items []O, opts ...StepOption[O]) (*model.Step[O], error) {
	return AddRootStep(p, name, func(ctx context.Context, rootChan chan<- O) error {
		for _, item := range items {
			err := Send(ctx, rootChan, item)
			if err != nil {
				return err
			}
		}

		return nil
	}, opts...)
}
