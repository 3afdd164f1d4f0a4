package stage

import (
	"context"

	"github.com/askiada/antstemplate/internal/ants"
	"github.com/askiada/antstemplate/internal/naming"
)

// Reflection mirrors Input into Output through a reflection matrix.
type Reflection struct {
	Input  string
	Output string
	Matrix string
	Axis   ants.Axis
	// Float runs antsApplyTransforms in single precision.
	Float bool
	// Label interpolates with GenericLabel.
	Label bool
	// MatrixLogs and OutputLogs are the log prefixes of both commands.
	// They default to Matrix and Output without extension.
	MatrixLogs string
	OutputLogs string
}

func (r Reflection) logs() (matrix, output string) {
	matrix, output = r.MatrixLogs, r.OutputLogs
	if matrix == "" {
		matrix = naming.TrimImageExt(r.Matrix)
	}
	if output == "" {
		output = naming.TrimImageExt(r.Output)
	}

	return matrix, output
}

// Commands returns the reflection matrix and apply commands.
func (r Reflection) Commands() []ants.Command {
	matrixLogs, outputLogs := r.logs()

	return []ants.Command{
		ants.ReflectionMatrix(r.Input, r.Matrix, r.Axis).WithLogs(matrixLogs),
		ants.ApplyTransforms(ants.ApplyTransformsOptions{
			Input:      r.Input,
			Output:     r.Output,
			Reference:  r.Input,
			Transforms: []ants.Transform{{Path: r.Matrix}},
			Float:      r.Float,
			Label:      r.Label,
		}).WithLogs(outputLogs),
	}
}

// Intermediates lists the matrix and the log files written by Run.
func (r Reflection) Intermediates() []string {
	matrixLogs, outputLogs := r.logs()
	res := []string{r.Matrix}
	for _, prefix := range []string{matrixLogs, outputLogs} {
		logs := ants.LogsFor(prefix)
		res = append(res, logs.Out, logs.Err)
	}

	return res
}

// Run runs the commands in order, stopping at the first failure.
func (r Reflection) Run(ctx context.Context, runner CommandRunner, progress func(string)) error {
	for _, cmd := range r.Commands() {
		if progress != nil {
			progress(cmd.String())
		}
		if err := runner.Run(ctx, cmd); err != nil {
			return err
		}
	}

	return nil
}
