// Package bottleneck finds the slowest steps of a monitored pipeline.
package bottleneck

import (
	"cmp"
	"slices"
	"sync"
	"time"

	"github.com/dominikbraun/graph"
	"github.com/pkg/errors"

	"github.com/askiada/go-etl/pkg/pipeline/measure"
	"github.com/askiada/go-etl/pkg/pipeline/model"
)

var ErrMeasureMustBeSet = errors.New("measure must be set")

// Finding describes one step of the pipeline.
type Finding struct {
	Step string
	// Position is the index of the step in the topological order of the pipeline.
	Position    int
	AvgDuration time.Duration
	Outputs     int64
	// Share is the part of the summed average durations spent in this step.
	Share float64
}

// Analyzer records the step graph of a pipeline. It is a pipeline option,
// the durations come from the measure given to New.
type Analyzer struct {
	mu    sync.Mutex
	graph graph.Graph[string, string]
	m     measure.Measure
}

// New returns an analyzer reading the durations from msr.
func New(msr measure.Measure) *Analyzer {
	return &Analyzer{
		graph: graph.New(graph.StringHash, graph.Directed()),
		m:     msr,
	}
}

func (a *Analyzer) addVertex(name string) error {
	err := a.graph.AddVertex(name)
	if err != nil && !errors.Is(err, graph.ErrVertexAlreadyExists) {
		return errors.Wrapf(err, "unable to add step %s", name)
	}

	return nil
}

func (a *Analyzer) link(parent, step string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.addVertex(parent); err != nil {
		return err
	}
	if err := a.addVertex(step); err != nil {
		return err
	}

	err := a.graph.AddEdge(parent, step)
	if err != nil && !errors.Is(err, graph.ErrEdgeAlreadyExists) {
		return errors.Wrapf(err, "unable to link %s to %s", parent, step)
	}

	return nil
}

// Report returns every measured step, the slowest first.
// Steps with the same average duration keep their topological order.
func (a *Analyzer) Report() ([]Finding, error) {
	if a.m == nil {
		return nil, ErrMeasureMustBeSet
	}

	a.mu.Lock()
	order, err := graph.StableTopologicalSort(a.graph, func(x, y string) bool { return x < y })
	a.mu.Unlock()
	if err != nil {
		return nil, errors.Wrap(err, "unable to sort steps")
	}

	metrics := a.m.AllMetrics()
	findings := make([]Finding, 0, len(order))
	var total time.Duration
	for _, name := range order {
		if name == model.StartStep.Details.Name || name == model.EndStep.Details.Name {
			continue
		}
		mt, ok := metrics[name]
		if !ok {
			continue
		}
		finding := Finding{
			Step:        name,
			Position:    len(findings),
			AvgDuration: mt.AVGDuration(),
			Outputs:     mt.Outputs(),
		}
		total += finding.AvgDuration
		findings = append(findings, finding)
	}

	if total > 0 {
		for i := range findings {
			findings[i].Share = float64(findings[i].AvgDuration) / float64(total)
		}
	}

	slices.SortStableFunc(findings, func(x, y Finding) int {
		return cmp.Compare(y.AvgDuration, x.AvgDuration)
	})

	return findings, nil
}

func (*Analyzer) New() error {
	return nil
}

func (a *Analyzer) PrepareStep(parentStep, step *model.StepInfo) error {
	return a.link(parentStep.Name, step.Name)
}

func (a *Analyzer) PrepareSplitter(parentStep, splitterStep *model.StepInfo) error {
	return a.link(parentStep.Name, splitterStep.Name)
}

func (a *Analyzer) PrepareMerger(parentSteps []*model.StepInfo, step *model.StepInfo) error {
	for _, parentStep := range parentSteps {
		if err := a.link(parentStep.Name, step.Name); err != nil {
			return err
		}
	}

	return nil
}

func (a *Analyzer) PrepareSink(parentStep, step *model.StepInfo) error {
	return a.link(parentStep.Name, step.Name)
}

func (*Analyzer) Finish() error {
	return nil
}

func (*Analyzer) OnStepOutput(_, _ *model.StepInfo, _, _ time.Duration) error {
	return nil
}

func (*Analyzer) OnStepDrop(_, _ *model.StepInfo, _ error) error {
	return nil
}

func (*Analyzer) AfterStep(_ *model.StepInfo, _, _ time.Time) error {
	return nil
}

func (*Analyzer) OnSplitterOutput(_, _ *model.StepInfo, _, _ time.Duration) error {
	return nil
}

func (*Analyzer) OnMergerOutput(_, _ *model.StepInfo, _ time.Duration) error {
	return nil
}

func (*Analyzer) OnSinkOutput(_, _ *model.StepInfo, _, _ time.Duration) error {
	return nil
}

func (*Analyzer) AfterSink(_ *model.StepInfo, _, _ time.Time) error {
	return nil
}
