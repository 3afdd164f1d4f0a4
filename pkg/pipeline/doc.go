// Package pipeline wires processing stages together with channels.
//
// A pipeline is built from a root step producing elements, any number of
// intermediate steps, splitters and mergers, and one or more sinks consuming
// the results. Each stage runs in its own goroutines as soon as it is added;
// Run blocks until every stage is done and returns the first error reported by
// any of them, cancelling the others.
//
// Options implementing model.PipelineOption observe the pipeline while it is
// built and run. The measure and drawer packages provide options recording
// step timings and rendering the pipeline as a Graphviz graph.
package pipeline
