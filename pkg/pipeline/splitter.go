package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/askiada/antstemplate/pkg/pipeline/model"
)

// Splitter fans the elements of one step out to several branches.
type Splitter[I any] struct {
	mu            sync.Mutex
	currIdx       int
	mainStep      *model.Step[I]
	splittedSteps []*model.Step[I]
	bufferSize    int
	Total         int
}

// Get returns the next unclaimed branch.
func (s *Splitter[I]) Get() (*model.Step[I], bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.currIdx >= len(s.splittedSteps) {
		return nil, false
	}
	step := s.splittedSteps[s.currIdx]
	s.currIdx++

	return step, true
}

// SplitterFn decides whether an element goes to its branch.
type SplitterFn[I any] func(input I) (bool, error)

func newSplitter[I any](p *Pipeline, name string, input *model.Step[I], total int, opts ...SplitterOption[I]) (*Splitter[I], error) {
	if p == nil {
		return nil, ErrPipelineMustBeSet
	}
	if input == nil {
		return nil, ErrInputMustBeSet
	}
	if total <= 0 {
		return nil, ErrSplitterTotal
	}

	splitter := &Splitter[I]{
		Total:      total,
		bufferSize: 1,
		mainStep: &model.Step[I]{
			Details: &model.StepInfo{
				Type:       model.SplitterStepType,
				Name:       name,
				Concurrent: 1,
			},
		},
	}
	for _, opt := range opts {
		opt(splitter)
	}
	splitter.mainStep.Details.BufferSize = splitter.bufferSize

	splitter.splittedSteps = make([]*model.Step[I], total)
	for i := range total {
		splitter.splittedSteps[i] = &model.Step[I]{
			// branches share the splitter name so downstream steps link to it
			Details: &model.StepInfo{
				Type:       model.SplitterStepType,
				Name:       name,
				Concurrent: 1,
				BufferSize: splitter.bufferSize,
			},
			Output: make(chan I, splitter.bufferSize),
		}
	}

	for _, opt := range p.opts {
		err := opt.PrepareSplitter(input.Info(), splitter.mainStep.Details)
		if err != nil {
			return nil, errors.Wrap(err, "unable to run before splitter function")
		}
	}

	return splitter, nil
}

func (s *Splitter[I]) run(ctx context.Context, p *Pipeline, input *model.Step[I], fns []SplitterFn[I]) error {
	for {
		startIter := time.Now()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case entry, ok := <-input.Output:
			if !ok {
				return ctx.Err()
			}
			startFn := time.Now()
			for i, branch := range s.splittedSteps {
				if fns != nil {
					keep, err := fns[i](entry)
					if err != nil {
						return errors.Wrap(err, "unable to run splitter function")
					}
					if !keep {
						continue
					}
				}

				select {
				case <-ctx.Done():
					return ctx.Err()
				case branch.Output <- entry:
				}
			}
			endFn := time.Since(startFn)

			for _, opt := range p.opts {
				err := opt.OnSplitterOutput(input.Info(), s.mainStep.Details, time.Since(startIter)-endFn, endFn)
				if err != nil {
					return errors.Wrap(err, "unable to run on splitter output function")
				}
			}
		}
	}
}

func (s *Splitter[I]) start(p *Pipeline, name string, input *model.Step[I], fns []SplitterFn[I]) {
	p.startStage(name, func() error {
		return s.run(p.ctx, p, input, fns)
	}, func() {
		for _, branch := range s.splittedSteps {
			close(branch.Output)
		}
	})
}

// AddSplitter copies every element of input to total branches.
func AddSplitter[I any](p *Pipeline, name string, input *model.Step[I], total int, opts ...SplitterOption[I]) (*Splitter[I], error) {
	splitter, err := newSplitter(p, name, input, total, opts...)
	if err != nil {
		return nil, err
	}
	splitter.start(p, name, input, nil)

	return splitter, nil
}

// AddSplitterFn routes every element of input to the branches whose function accepts it.
// Branches are returned by Get in the order of fns.
func AddSplitterFn[I any](p *Pipeline, name string, input *model.Step[I], fns []SplitterFn[I], opts ...SplitterOption[I]) (*Splitter[I], error) {
	splitter, err := newSplitter(p, name, input, len(fns), opts...)
	if err != nil {
		return nil, err
	}
	splitter.start(p, name, input, fns)

	return splitter, nil
}
