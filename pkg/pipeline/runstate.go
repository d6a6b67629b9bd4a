package pipeline

import (
	"errors"
	"fmt"
	"time"

	"github.com/blingblang/atlas-fluvial/pkg/model"
)

var (
	// ErrRunInProgress rejects a trigger that arrives while another run
	// is non-terminal. It is a scheduling conflict, not a run failure.
	ErrRunInProgress = errors.New("generation run already in progress")

	// ErrCancelled marks a run aborted by shutdown before completion.
	ErrCancelled = errors.New("run cancelled")
)

// Status is the lifecycle state of a generation run.
type Status string

const (
	StatusPending    Status = "pending"
	StatusRendering  Status = "rendering"
	StatusComposing  Status = "composing"
	StatusPublishing Status = "publishing"
	StatusSucceeded  Status = "succeeded"
	StatusFailed     Status = "failed"
)

// Terminal reports whether the status is final.
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// Stage identifies one step of the generation sequence.
type Stage string

const (
	StageRendering  Stage = "rendering"
	StageComposing  Stage = "composing"
	StagePublishing Stage = "publishing"
)

// RunState is the transient record of one generation run. At most one
// non-terminal RunState exists at any instant.
type RunState struct {
	ID          string
	Request     model.GenerationRequest
	Status      Status
	Attempts    map[Stage]int
	FailedStage Stage
	LastError   string
	Artifact    *model.PublishedArtifact
	StartedAt   time.Time
	FinishedAt  time.Time
}

// clone returns a copy safe to hand outside the coordinator's lock.
func (r *RunState) clone() *RunState {
	cp := *r
	cp.Attempts = make(map[Stage]int, len(r.Attempts))
	for k, v := range r.Attempts {
		cp.Attempts[k] = v
	}
	if r.Artifact != nil {
		a := *r.Artifact
		cp.Artifact = &a
	}
	return &cp
}

// StageError carries the stage at which a run failed.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}
