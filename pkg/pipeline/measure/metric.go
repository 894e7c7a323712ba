package measure

import (
	"maps"
	"sync"
	"time"
)

type TransportInfo struct {
	Elapsed time.Duration
	total   int64
}

type DefaultMetric struct {
	allTransports map[string]*TransportInfo
	mu            *sync.Mutex
	startedAt     time.Time
	endedAt       time.Time
	stepElapsed   time.Duration
	total         int64
	filtered      int64
	skipped       int64
	concurrent    int
}

// AddDuration records an output of the step and the time spent computing it.
func (mt *DefaultMetric) AddDuration(elapsed time.Duration) {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	mt.total++
	mt.stepElapsed += elapsed
}

func (mt *DefaultMetric) AddFiltered() {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	mt.filtered++
}

func (mt *DefaultMetric) AddSkipped() {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	mt.skipped++
}

func (mt *DefaultMetric) SetRange(startedAt, endedAt time.Time) {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	mt.startedAt = startedAt
	mt.endedAt = endedAt
}

func (mt *DefaultMetric) GetTotalDuration() time.Duration {
	mt.mu.Lock()
	defer mt.mu.Unlock()

	if mt.endedAt.IsZero() {
		return 0
	}

	return mt.endedAt.Sub(mt.startedAt)
}

func (mt *DefaultMetric) StartedAt() time.Time {
	mt.mu.Lock()
	defer mt.mu.Unlock()

	return mt.startedAt
}

func (mt *DefaultMetric) EndedAt() time.Time {
	mt.mu.Lock()
	defer mt.mu.Unlock()

	return mt.endedAt
}

func (mt *DefaultMetric) Outputs() int64 {
	mt.mu.Lock()
	defer mt.mu.Unlock()

	return mt.total
}

func (mt *DefaultMetric) Filtered() int64 {
	mt.mu.Lock()
	defer mt.mu.Unlock()

	return mt.filtered
}

func (mt *DefaultMetric) Skipped() int64 {
	mt.mu.Lock()
	defer mt.mu.Unlock()

	return mt.skipped
}

func (mt *DefaultMetric) AddTransportDuration(inputStepName string, elapsed time.Duration) {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	if mt.allTransports[inputStepName] == nil {
		mt.allTransports[inputStepName] = &TransportInfo{}
	}
	ch := mt.allTransports[inputStepName]
	ch.Elapsed += elapsed
	ch.total++
}

func (mt *DefaultMetric) AVGDuration() time.Duration {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	if mt.total == 0 {
		return time.Duration(0)
	}

	return round(time.Duration(float64(mt.stepElapsed) / float64(mt.total)))
}

// AVGTransportDuration returns the average time spent waiting on each input, per goroutine.
func (mt *DefaultMetric) AVGTransportDuration() map[string]*TransportInfo {
	mt.mu.Lock()
	defer mt.mu.Unlock()

	res := make(map[string]*TransportInfo, len(mt.allTransports))
	for name, ch := range mt.allTransports {
		avg := &TransportInfo{total: ch.total}
		if ch.total > 0 {
			avg.Elapsed = round(time.Duration((float64(ch.Elapsed) / float64(ch.total)) / float64(mt.concurrent)))
		}
		res[name] = avg
	}

	return res
}

func (mt *DefaultMetric) AllTransports() map[string]*TransportInfo {
	mt.mu.Lock()
	defer mt.mu.Unlock()

	return maps.Clone(mt.allTransports)
}

func round(d time.Duration) time.Duration {
	switch {
	case d > time.Hour:
		d = d.Round(time.Minute)
	case d > time.Minute:
		d = d.Round(time.Second)
	case d > time.Second:
		d = d.Round(time.Millisecond)
	case d > time.Millisecond:
		d = d.Round(time.Microsecond)
	}

	return d
}

var _ Metric = (*DefaultMetric)(nil)
