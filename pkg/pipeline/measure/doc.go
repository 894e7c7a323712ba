// Package measure monitors a pipeline run.
//
// For every step it records when the step started and stopped, how many elements it sent, filtered out or
// skipped on error, the average time spent computing an output and the average time spent waiting on each input.
package measure
