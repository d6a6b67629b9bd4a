package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/blingblang/atlas-fluvial/pkg/model"
)

// Renderer produces the map raster for a request.
type Renderer interface {
	Render(ctx context.Context, req model.GenerationRequest) (*model.RenderedMap, int, error)
}

// Composer turns a rendered map into the finished document.
type Composer interface {
	Compose(m *model.RenderedMap, generatedAt time.Time) (*model.ComposedArtifact, error)
}

// Publisher uploads a finished document and returns its public record.
type Publisher interface {
	Upload(ctx context.Context, filename string, pdf []byte) (*model.PublishedArtifact, int, error)
}

// Observer receives stage transitions for metrics and logging. The
// concrete sink is an external collaborator; callbacks must not block.
type Observer interface {
	StageStarted(stage Stage)
	StageFinished(stage Stage, attempts int, elapsed time.Duration, err error)
	RunFinished(run *RunState)
}

// History records terminal runs. Failures to record are logged, never
// propagated into the run outcome.
type History interface {
	RecordRun(ctx context.Context, run *RunState) error
}

// Coordinator owns the run state machine. It serializes triggers: a new
// trigger while a run is non-terminal is rejected with ErrRunInProgress.
type Coordinator struct {
	renderer  Renderer
	composer  Composer
	publisher Publisher
	observer  Observer
	history   History

	mu     sync.Mutex
	active *RunState
}

// NewCoordinator creates a Coordinator. Observer and history may be nil.
func NewCoordinator(r Renderer, c Composer, p Publisher, obs Observer, hist History) *Coordinator {
	return &Coordinator{
		renderer:  r,
		composer:  c,
		publisher: p,
		observer:  obs,
		history:   hist,
	}
}

// Active returns a snapshot of the in-flight run, or nil when idle.
// The scheduler reads this for reporting only.
func (c *Coordinator) Active() *RunState {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil {
		return nil
	}
	return c.active.clone()
}

// Trigger executes one generation run to a terminal state and returns
// its final record. The error, if any, is a *StageError — except for
// ErrRunInProgress, which reports a rejected trigger and leaves the
// in-flight run untouched.
func (c *Coordinator) Trigger(ctx context.Context, req model.GenerationRequest) (*RunState, error) {
	c.mu.Lock()
	if c.active != nil && !c.active.Status.Terminal() {
		c.mu.Unlock()
		return nil, ErrRunInProgress
	}
	run := &RunState{
		ID:        uuid.NewString(),
		Request:   req,
		Status:    StatusPending,
		Attempts:  make(map[Stage]int),
		StartedAt: time.Now().UTC(),
	}
	c.active = run
	c.mu.Unlock()

	slog.Info("Run started", "run", run.ID,
		"lat", req.Anchor.Lat, "lon", req.Anchor.Lon, "generated_at", req.GeneratedAt)

	err := c.execute(ctx, run)

	c.mu.Lock()
	run.FinishedAt = time.Now().UTC()
	snapshot := run.clone()
	c.active = nil
	c.mu.Unlock()

	c.record(snapshot)
	if c.observer != nil {
		c.observer.RunFinished(snapshot)
	}

	return snapshot, err
}

// execute walks the strict stage sequence. A failure at any stage moves
// the run directly to Failed carrying the originating stage.
func (c *Coordinator) execute(ctx context.Context, run *RunState) error {
	// Rendering
	c.setStatus(run, StatusRendering)
	start := time.Now()
	c.stageStarted(StageRendering)
	rendered, attempts, err := c.renderer.Render(ctx, run.Request)
	c.stageFinished(run, StageRendering, attempts, time.Since(start), err)
	if err != nil {
		return c.fail(ctx, run, StageRendering, err)
	}

	// Composing
	c.setStatus(run, StatusComposing)
	artifact, err := c.compose(run, rendered)
	if err != nil {
		return c.fail(ctx, run, StageComposing, err)
	}
	rendered.PNG = nil // the composer consumed the raster; no retention

	summary := artifact.Summary()
	slog.Info("Document composed", "run", run.ID,
		"size_bytes", summary.SizeBytes, "sha1", summary.SHA1, "pages", summary.PageCount)

	// Publishing
	c.setStatus(run, StatusPublishing)
	filename := run.Request.Filename()
	start = time.Now()
	c.stageStarted(StagePublishing)
	published, attempts, err := c.publisher.Upload(ctx, filename, artifact.PDF)
	c.stageFinished(run, StagePublishing, attempts, time.Since(start), err)
	if err != nil {
		return c.fail(ctx, run, StagePublishing, err)
	}

	c.mu.Lock()
	run.Artifact = published
	run.Status = StatusSucceeded
	c.mu.Unlock()

	slog.Info("Run succeeded", "run", run.ID, "url", published.URL, "size_bytes", published.SizeBytes)
	return nil
}

func (c *Coordinator) compose(run *RunState, rendered *model.RenderedMap) (*model.ComposedArtifact, error) {
	start := time.Now()
	c.stageStarted(StageComposing)
	artifact, err := c.composer.Compose(rendered, run.Request.GeneratedAt)
	c.stageFinished(run, StageComposing, 1, time.Since(start), err)
	return artifact, err
}

func (c *Coordinator) fail(ctx context.Context, run *RunState, stage Stage, err error) error {
	if ctx.Err() != nil {
		err = &StageError{Stage: stage, Err: ErrCancelled}
	} else {
		err = &StageError{Stage: stage, Err: err}
	}

	c.mu.Lock()
	run.Status = StatusFailed
	run.FailedStage = stage
	run.LastError = err.Error()
	c.mu.Unlock()

	slog.Error("Run failed", "run", run.ID, "stage", stage, "error", err)
	return err
}

func (c *Coordinator) setStatus(run *RunState, s Status) {
	c.mu.Lock()
	run.Status = s
	c.mu.Unlock()
}

func (c *Coordinator) stageStarted(stage Stage) {
	if c.observer != nil {
		c.observer.StageStarted(stage)
	}
}

func (c *Coordinator) stageFinished(run *RunState, stage Stage, attempts int, elapsed time.Duration, err error) {
	c.mu.Lock()
	run.Attempts[stage] = attempts
	c.mu.Unlock()
	if c.observer != nil {
		c.observer.StageFinished(stage, attempts, elapsed, err)
	}
}

// record writes the terminal run to the history ledger. The run context
// may already be cancelled; the ledger write gets its own deadline.
func (c *Coordinator) record(run *RunState) {
	if c.history == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := c.history.RecordRun(ctx, run); err != nil {
		slog.Warn("Failed to record run history", "run", run.ID, "error", err)
	}
}
