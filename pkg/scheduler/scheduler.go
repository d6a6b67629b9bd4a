package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/blingblang/atlas-fluvial/pkg/config"
	"github.com/blingblang/atlas-fluvial/pkg/geo"
	"github.com/blingblang/atlas-fluvial/pkg/model"
	"github.com/blingblang/atlas-fluvial/pkg/pipeline"
)

// MissedIntervalSink counts scheduled triggers rejected because the
// previous run was still in flight.
type MissedIntervalSink interface {
	TrackMissedInterval()
}

// Loop is the ambient driver: it constructs a fresh GenerationRequest
// on each tick and hands it to the coordinator. The interval is
// measured trigger-to-trigger; an overrunning generation causes the
// next trigger to be rejected and logged, never queued.
type Loop struct {
	coord    *pipeline.Coordinator
	anchor   geo.Point
	scale    int
	interval time.Duration
	grace    time.Duration
	missed   MissedIntervalSink
}

// New creates a Loop. The missed sink may be nil.
func New(coord *pipeline.Coordinator, anchor geo.Point, schedCfg *config.SchedulerConfig, mapCfg *config.MapConfig, missed MissedIntervalSink) *Loop {
	return &Loop{
		coord:    coord,
		anchor:   anchor,
		scale:    mapCfg.Scale,
		interval: time.Duration(schedCfg.Interval),
		grace:    time.Duration(schedCfg.ShutdownGrace),
		missed:   missed,
	}
}

func (l *Loop) newRequest() model.GenerationRequest {
	return model.GenerationRequest{
		Anchor:      l.anchor,
		Scale:       l.scale,
		PageSize:    model.PageA4,
		GeneratedAt: time.Now().UTC(),
	}
}

// RunOnce executes exactly one generation synchronously and returns its
// terminal state.
func (l *Loop) RunOnce(ctx context.Context) (*pipeline.RunState, error) {
	return l.coord.Trigger(ctx, l.newRequest())
}

// Run drives ambient mode until ctx is cancelled. On shutdown no new
// triggers are issued; an in-flight run may finish within the grace
// period, after which it is cancelled.
func (l *Loop) Run(ctx context.Context) {
	// Runs get their own context so a shutdown signal does not abort
	// them immediately; cancelRuns enforces the hard deadline.
	runCtx, cancelRuns := context.WithCancel(context.Background())
	defer cancelRuns()

	var wg sync.WaitGroup
	trigger := func() {
		req := l.newRequest()
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := l.coord.Trigger(runCtx, req)
			if errors.Is(err, pipeline.ErrRunInProgress) {
				slog.Warn("Missed interval: previous run still in flight",
					"generated_at", req.GeneratedAt)
				if l.missed != nil {
					l.missed.TrackMissedInterval()
				}
			}
		}()
	}

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	slog.Info("Ambient scheduler started", "interval", l.interval)
	trigger()

	for {
		select {
		case <-ctx.Done():
			l.shutdown(&wg, cancelRuns)
			return
		case <-ticker.C:
			trigger()
		}
	}
}

func (l *Loop) shutdown(wg *sync.WaitGroup, cancelRuns context.CancelFunc) {
	slog.Info("Scheduler stopping", "grace", l.grace)

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(l.grace)
	defer timer.Stop()

	select {
	case <-done:
	case <-timer.C:
		slog.Warn("Shutdown grace exceeded, cancelling in-flight run")
		cancelRuns()
		<-done
	}
	slog.Info("Scheduler stopped")
}
