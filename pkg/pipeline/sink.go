package pipeline

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/askiada/antstemplate/pkg/pipeline/model"
)

func prepareSink[I any](p *Pipeline, name string, input *model.Step[I]) (*model.StepInfo, error) {
	if p == nil {
		return nil, ErrPipelineMustBeSet
	}
	if input == nil {
		return nil, ErrInputMustBeSet
	}

	details := &model.StepInfo{
		Type:       model.SinkStepType,
		Name:       name,
		Concurrent: 1,
	}
	for _, opt := range p.opts {
		err := opt.PrepareSink(input.Info(), details)
		if err != nil {
			return nil, errors.Wrap(err, "unable to run before sink function")
		}
	}

	return details, nil
}

func (p *Pipeline) afterSink(details *model.StepInfo) error {
	for _, opt := range p.opts {
		err := opt.AfterSink(details, time.Since(p.startTime))
		if err != nil {
			return errors.Wrap(err, "unable to run after sink function")
		}
	}

	return nil
}

// AddSink adds a final stage consuming every element of input.
func AddSink[I any](p *Pipeline, name string, input *model.Step[I], sinkFn func(ctx context.Context, input I) error) error {
	details, err := prepareSink(p, name, input)
	if err != nil {
		return err
	}
	parent := input.Info()

	p.startStage(name, func() error {
		for {
			startIter := time.Now()
			select {
			case <-p.ctx.Done():
				return p.ctx.Err()
			case in, ok := <-input.Output:
				if !ok {
					if p.ctx.Err() != nil {
						return p.ctx.Err()
					}

					return p.afterSink(details)
				}
				startFn := time.Now()
				err := sinkFn(p.ctx, in)
				if err != nil {
					return err
				}
				endFn := time.Since(startFn)

				for _, opt := range p.opts {
					err := opt.OnSinkOutput(parent, details, time.Since(startIter)-endFn, endFn)
					if err != nil {
						return errors.Wrap(err, "unable to run on sink output function")
					}
				}
			}
		}
	}, nil)

	return nil
}

// AddSinkFromChan adds a final stage handed the whole input channel.
func AddSinkFromChan[I any](p *Pipeline, name string, input *model.Step[I], sinkFn func(ctx context.Context, input <-chan I) error) error {
	details, err := prepareSink(p, name, input)
	if err != nil {
		return err
	}

	p.startStage(name, func() error {
		err := sinkFn(p.ctx, input.Output)
		if err != nil {
			return err
		}

		return p.afterSink(details)
	}, nil)

	return nil
}
