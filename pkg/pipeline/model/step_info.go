package model

type stepType string

const (
	RootStepType     stepType = "root"
	NormalStepType   stepType = "step"
	SplitterStepType stepType = "splitter"
	SinkStepType     stepType = "sink"
	MergerStepType   stepType = "merger"
)

// StepInfo describes a step to the pipeline options.
type StepInfo struct {
	Type       stepType
	Name       string
	Concurrent int
	BufferSize int
}

var (
	// StartStep is the virtual parent of every root step.
	StartStep = &Step[any]{Details: &StepInfo{Type: RootStepType, Name: "start"}}
	// EndStep is the virtual child of every sink.
	EndStep = &Step[any]{Details: &StepInfo{Type: SinkStepType, Name: "end"}}
)

// Step holds the output channel of a stage. The channel is closed once the stage is done.
type Step[O any] struct {
	Output  chan O
	Details *StepInfo
}

// Info returns the step details. Steps built by hand without details get an anonymous description.
func (s *Step[O]) Info() *StepInfo {
	if s.Details == nil {
		s.Details = &StepInfo{Type: NormalStepType, Name: "input", Concurrent: 1}
	}

	return s.Details
}
