// Package stage implements the template building stages on top of the ANTs runner.
//
// Every stage validates its inputs before touching the file system, then fans
// the per-file work out over a pipeline whose concurrency is the worker count.
package stage

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/askiada/antstemplate/internal/ants"
	"github.com/askiada/antstemplate/pkg/pipeline"
	"github.com/askiada/antstemplate/pkg/pipeline/model"
)

// CommandRunner runs a single ANTs command.
type CommandRunner interface {
	Run(ctx context.Context, cmd ants.Command) error
}

// Env holds what every stage needs to run.
type Env struct {
	Runner CommandRunner
	Logger zerolog.Logger
	// PipelineOptions are passed to every pipeline a stage builds.
	PipelineOptions func() []model.PipelineOption
	// Now defaults to time.Now.
	Now func() time.Time
}

func (e Env) now() time.Time {
	if e.Now == nil {
		return time.Now()
	}

	return e.Now()
}

func (e Env) logger(component string) zerolog.Logger {
	return e.Logger.With().Str("component", component).Logger()
}

// NewPipeline creates a pipeline with the configured options.
func (e Env) NewPipeline(ctx context.Context) (*pipeline.Pipeline, error) {
	var opts []model.PipelineOption
	if e.PipelineOptions != nil {
		opts = e.PipelineOptions()
	}

	return pipeline.New(ctx, opts...)
}
