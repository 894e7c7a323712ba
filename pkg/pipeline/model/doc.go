// Package model provides the data structures shared by the pipeline package and its options.
// It defines the step descriptors passed around between steps,
// and the hooks a pipeline option must implement to observe a run.
package model
