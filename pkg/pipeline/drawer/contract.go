package drawer

import (
	"io"
	"time"

	"github.com/askiada/go-etl/pkg/pipeline/measure"
)

// Drawer renders the graph of a pipeline run. Steps are nodes, and the channels between them are edges.
type Drawer interface {
	AddStep(stepname string) error
	// AddLink adds an edge from a step to the step reading its output.
	AddLink(parentStepName, childrenStepName string) error
	// Draw writes the graph to its destination.
	Draw() error
	WriteTo(wrt io.Writer) (int64, error)
	// SetTotalTime records when stepName finished.
	SetTotalTime(stepName string, totalTime time.Time) error
	// AddMeasure sets where the durations shown on the graph are read from.
	AddMeasure(measure measure.Measure) error
}
