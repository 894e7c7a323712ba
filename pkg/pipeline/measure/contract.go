package measure

import "time"

// Measure stores a metric per step.
type Measure interface {
	AddMetric(name string, concurrent int) Metric
	GetMetric(name string) Metric
	AllMetrics() map[string]Metric
}

// Metric collects what happened in a step. It never sees the elements themselves.
type Metric interface {
	AddDuration(elapsed time.Duration)
	AddTransportDuration(inputStepName string, elapsed time.Duration)
	AddFiltered()
	AddSkipped()
	AVGDuration() time.Duration
	AVGTransportDuration() map[string]*TransportInfo
	SetRange(startedAt, endedAt time.Time)
	GetTotalDuration() time.Duration
	StartedAt() time.Time
	EndedAt() time.Time
	Outputs() int64
	Filtered() int64
	Skipped() int64
	AllTransports() map[string]*TransportInfo
}
