package stream

import (
	"time"

	"github.com/google/uuid"

	"github.com/askiada/go-etl/pkg/pipeline/measure"
)

// StepStats holds the monitored figures of a single step.
type StepStats struct {
	Name        string
	StartedAt   time.Time
	EndedAt     time.Time
	Emitted     int64
	Filtered    int64
	Skipped     int64
	AvgDuration time.Duration
}

// Summary describes a finished run.
type Summary struct {
	RunID     uuid.UUID
	StartedAt time.Time
	EndedAt   time.Time
	// Read is the number of records read from the source.
	Read int64
	// Emitted is the number of records that went through every transform.
	Emitted int64
	// Filtered is the number of records dropped by a transform.
	Filtered int64
	// Skipped is the number of records dropped by the Skip policy.
	Skipped int64
	// Steps is only filled when the pipeline is monitored. The source comes first.
	Steps []StepStats
}

// Duration returns the time between the start and the end of the run.
func (s Summary) Duration() time.Duration {
	return s.EndedAt.Sub(s.StartedAt)
}

func stepStats(msr measure.Measure, name string) StepStats {
	metric := msr.GetMetric(name)

	return StepStats{
		Name:        name,
		StartedAt:   metric.StartedAt(),
		EndedAt:     metric.EndedAt(),
		Emitted:     metric.Outputs(),
		Filtered:    metric.Filtered(),
		Skipped:     metric.Skipped(),
		AvgDuration: metric.AVGDuration(),
	}
}
