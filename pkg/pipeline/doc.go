// Package pipeline provides a pipeline for processing data.
//
// The pipeline package offers a convenient way to process data using a series of stages. Each stage in the pipeline
// performs a specific operation on the data and passes it to the next stage. This allows for a modular and flexible
// approach to data processing.
//
// One of the key benefits of using the pipeline package is that it manages the flow of data using channels. This
// ensures that data is passed between stages efficiently and without the need for complex synchronisation mechanisms.
// Channels are unbuffered unless a step asks otherwise, so a stage only holds the element it is working on and the
// memory used by a run does not depend on the size of its input.
//
// Steps are only started by Run. The pipeline stops on the first encountered error: the context shared by all the
// steps is cancelled, and Run returns once every step has returned. A step can also be given an error handler to
// drop the failing element instead of stopping the pipeline.
//
// Pipeline options (see the model package) observe a run without changing the data: the measure package records
// durations and counts, the drawer package renders the graph of steps, and the logging package reports the run.
package pipeline
