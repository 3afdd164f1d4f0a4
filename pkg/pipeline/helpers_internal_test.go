package pipeline

import (
	"context"
	"testing"

	"github.com/askiada/antstemplate/pkg/pipeline/model"
)

func inputStep(t *testing.T, ctx context.Context, total int) *model.Step[int] {
	t.Helper()

	inputChan := make(chan int)

	go func() {
		defer close(inputChan)

		for i := range total {
			select {
			case <-ctx.Done():
				return
			case inputChan <- i:
			}
		}
	}()

	return &model.Step[int]{Output: inputChan}
}

func drain[O any](t *testing.T, output <-chan O) <-chan []O {
	t.Helper()

	res := make(chan []O, 1)

	go func() {
		got := []O{}
		for out := range output {
			got = append(got, out)
		}
		res <- got
	}()

	return res
}
