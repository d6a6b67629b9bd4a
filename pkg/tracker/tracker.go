package tracker

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/blingblang/atlas-fluvial/pkg/pipeline"
)

// Tracker counts pipeline stage activity. It implements
// pipeline.Observer; all methods are safe for concurrent use and never
// block.
type Tracker struct {
	mu     sync.RWMutex
	stages map[pipeline.Stage]*StageStats

	runsSucceeded   int64
	runsFailed      int64
	missedIntervals int64
}

// StageStats holds metrics for one pipeline stage.
// Fields are accessed atomically.
type StageStats struct {
	Started   int64
	Succeeded int64
	Failed    int64
	Attempts  int64
	ElapsedNS int64
}

// New creates a new Tracker.
func New() *Tracker {
	return &Tracker{
		stages: make(map[pipeline.Stage]*StageStats),
	}
}

func (t *Tracker) getStats(stage pipeline.Stage) *StageStats {
	t.mu.RLock()
	s, ok := t.stages[stage]
	t.mu.RUnlock()
	if ok {
		return s
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	// Double check
	if s, ok = t.stages[stage]; ok {
		return s
	}
	s = &StageStats{}
	t.stages[stage] = s
	return s
}

// StageStarted implements pipeline.Observer.
func (t *Tracker) StageStarted(stage pipeline.Stage) {
	atomic.AddInt64(&t.getStats(stage).Started, 1)
}

// StageFinished implements pipeline.Observer.
func (t *Tracker) StageFinished(stage pipeline.Stage, attempts int, elapsed time.Duration, err error) {
	s := t.getStats(stage)
	atomic.AddInt64(&s.Attempts, int64(attempts))
	atomic.AddInt64(&s.ElapsedNS, int64(elapsed))
	if err != nil {
		atomic.AddInt64(&s.Failed, 1)
	} else {
		atomic.AddInt64(&s.Succeeded, 1)
	}
}

// RunFinished implements pipeline.Observer.
func (t *Tracker) RunFinished(run *pipeline.RunState) {
	if run.Status == pipeline.StatusSucceeded {
		atomic.AddInt64(&t.runsSucceeded, 1)
	} else {
		atomic.AddInt64(&t.runsFailed, 1)
	}
}

// TrackMissedInterval counts a scheduled trigger rejected because the
// previous run was still in flight.
func (t *Tracker) TrackMissedInterval() {
	atomic.AddInt64(&t.missedIntervals, 1)
}

// Snapshot is a point-in-time copy of all counters.
type Snapshot struct {
	Stages          map[pipeline.Stage]StageStats
	RunsSucceeded   int64
	RunsFailed      int64
	MissedIntervals int64
}

// Snapshot returns a copy of the current stats.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()

	snap := Snapshot{
		Stages:          make(map[pipeline.Stage]StageStats, len(t.stages)),
		RunsSucceeded:   atomic.LoadInt64(&t.runsSucceeded),
		RunsFailed:      atomic.LoadInt64(&t.runsFailed),
		MissedIntervals: atomic.LoadInt64(&t.missedIntervals),
	}
	for k, v := range t.stages {
		snap.Stages[k] = StageStats{
			Started:   atomic.LoadInt64(&v.Started),
			Succeeded: atomic.LoadInt64(&v.Succeeded),
			Failed:    atomic.LoadInt64(&v.Failed),
			Attempts:  atomic.LoadInt64(&v.Attempts),
			ElapsedNS: atomic.LoadInt64(&v.ElapsedNS),
		}
	}
	return snap
}
