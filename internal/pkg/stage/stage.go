// Package stage is the in-process Stage Machine (C8): canonical stage
// order, progress-band mapping, and the idempotent start/complete/fail
// transitions backed by postgres.DB's stage_repo.
package stage

import (
	"context"
	"fmt"

	"github.com/airenas/voxsum/internal/pkg/persistence"
)

// Type names one stage in the canonical pipeline order.
type Type string

const (
	Resolve   Type = "resolve"
	Download  Type = "download"
	Transcode Type = "transcode"
	Upload    Type = "upload_storage"
	Transcribe Type = "transcribe"
	Summarize Type = "summarize"
)

// Order is the canonical stage sequence; Resolve is skipped for upload-
// sourced tasks (only remote-URL tasks need it).
var Order = []Type{Resolve, Download, Transcode, Upload, Transcribe, Summarize}

// Status values a TaskStage row can hold.
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusSkipped   = "skipped"
)

// Task status values, derived from stage activity.
const (
	TaskPending      = "pending"
	TaskExtracting   = "extracting"
	TaskTranscribing = "transcribing"
	TaskSummarizing  = "summarizing"
	TaskCompleted    = "completed"
	TaskFailed       = "failed"
)

// band is a progress range [lo, hi] a task status maps into.
type band struct{ lo, hi int32 }

var taskStatusBand = map[string]band{
	TaskPending:      {0, 0},
	TaskExtracting:   {0, 20},
	TaskTranscribing: {20, 70},
	TaskSummarizing:  {70, 99},
	TaskCompleted:    {100, 100},
}

// stageTaskStatus maps a stage type to the observable task status active
// while that stage runs.
var stageTaskStatus = map[Type]string{
	Resolve:    TaskExtracting,
	Download:   TaskExtracting,
	Transcode:  TaskExtracting,
	Upload:     TaskExtracting,
	Transcribe: TaskTranscribing,
	Summarize:  TaskSummarizing,
}

// TaskStatusFor returns the observable task.status while stageType runs.
func TaskStatusFor(stageType Type) string {
	return stageTaskStatus[stageType]
}

// BandUpperBound returns the progress percent to set once a stage
// completes — the upper bound of its status band.
func BandUpperBound(taskStatus string) int32 {
	return taskStatusBand[taskStatus].hi
}

// BandLinear maps a stage's own internal [0,1] progress into the task's
// overall progress band, for stages that expose fine-grained progress
// (nothing in the orchestrator calls it; stages only set the band's
// upper bound on completion).
func BandLinear(taskStatus string, stageFrac float64) int32 {
	b := taskStatusBand[taskStatus]
	if stageFrac < 0 {
		stageFrac = 0
	}
	if stageFrac > 1 {
		stageFrac = 1
	}
	return b.lo + int32(float64(b.hi-b.lo)*stageFrac)
}

// repo is satisfied by *postgres.DB.
type repo interface {
	LoadActiveStage(ctx context.Context, taskID string, stageType string) (*persistence.TaskStage, error)
	StartStage(ctx context.Context, taskID string, stageType string, attemptID string) (*persistence.TaskStage, error)
	CompleteStage(ctx context.Context, id int64) error
	FailStage(ctx context.Context, id int64, errMsg string) error
	SkipStage(ctx context.Context, taskID string, stageType string, attemptID string) error
}

// Machine drives stage-record bookkeeping for one orchestrator run.
type Machine struct {
	repo repo
}

// New wires a stage machine over the durable stage store.
func New(repo repo) *Machine {
	return &Machine{repo: repo}
}

// AlreadyCompleted implements the idempotency check of §4.8: if an
// active, completed record exists for (taskID, stageType), the caller
// should short-circuit to the next stage rather than re-executing.
func (m *Machine) AlreadyCompleted(ctx context.Context, taskID string, stageType Type) (bool, error) {
	s, err := m.repo.LoadActiveStage(ctx, taskID, string(stageType))
	if err != nil {
		return false, fmt.Errorf("can't load active stage: %w", err)
	}
	return s != nil && s.Status == StatusCompleted, nil
}

// Start archives any stale active row and inserts a fresh running one.
func (m *Machine) Start(ctx context.Context, taskID string, stageType Type, attemptID string) (*persistence.TaskStage, error) {
	s, err := m.repo.StartStage(ctx, taskID, string(stageType), attemptID)
	if err != nil {
		return nil, fmt.Errorf("can't start stage %s: %w", stageType, err)
	}
	return s, nil
}

// Complete marks a stage row completed.
func (m *Machine) Complete(ctx context.Context, id int64) error {
	if err := m.repo.CompleteStage(ctx, id); err != nil {
		return fmt.Errorf("can't complete stage: %w", err)
	}
	return nil
}

// Fail marks a stage row terminally failed.
func (m *Machine) Fail(ctx context.Context, id int64, errMsg string) error {
	if err := m.repo.FailStage(ctx, id, errMsg); err != nil {
		return fmt.Errorf("can't fail stage: %w", err)
	}
	return nil
}

// Skip records a stage as intentionally skipped — used for `resolve`
// when the task's source is an already-staged upload, not a remote URL.
func (m *Machine) Skip(ctx context.Context, taskID string, stageType Type, attemptID string) error {
	if err := m.repo.SkipStage(ctx, taskID, string(stageType), attemptID); err != nil {
		return fmt.Errorf("can't skip stage %s: %w", stageType, err)
	}
	return nil
}
