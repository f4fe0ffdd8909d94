// Package messages defines the queue envelopes passed between the API
// tier, the Pipeline Orchestrator, and the Progress Broadcaster over the
// durable gue queue.
package messages

const (
	st = "VOXSUM/"
	// Extract queue carries newly created tasks into the stage pipeline.
	Extract = st + "Extract"
	// Stage names a queue for per-stage transition messages; nothing in
	// this repository enqueues to or consumes it (the orchestrator runs
	// every stage inside one Extract job).
	Stage = st + "Stage"
	// Fail names a queue for terminal-failure notifications; nothing
	// enqueues to or consumes it (failures are notified through Inform).
	Fail = st + "Fail"
	// Inform queue carries terminal task-state notifications for email.
	Inform = st + "Inform"
	// Clean names a queue for soft-deleted tasks past their retention
	// window; nothing enqueues to or consumes it (the clean service sweeps
	// the database on a timer).
	Clean = st + "Clean"
	// Visualize queue carries on-demand visualization-generation requests,
	// run as a pipeline independent of the main stage order.
	Visualize = st + "Visualize"
	// Progress queue carries one message per progress event, bridging the
	// worker process (publisher) to the progress process (subscriber-facing
	// broadcaster) across the process boundary.
	Progress = st + "Progress"
)

// TaskMessage is the envelope enqueued whenever a task needs to be
// (re)dispatched into the stage pipeline, identified by ID alone —
// every handler reloads current state from the database before acting,
// so a message only ever carries an ID plus enough context to resume.
type TaskMessage struct {
	TaskID string `json:"taskId"`
}

// NewTaskMessage builds a TaskMessage for id.
func NewTaskMessage(id string) *TaskMessage {
	return &TaskMessage{TaskID: id}
}

// StageMessage is the envelope for the Stage queue, naming one stage
// attempt of a task; no component in this repository builds one.
type StageMessage struct {
	TaskID    string `json:"taskId"`
	StageType string `json:"stageType"`
	AttemptID string `json:"attemptId"`
}

// CleanMessage is the envelope for the Clean queue, naming a task whose
// rows are to be purged; no component in this repository builds one.
type CleanMessage struct {
	TaskID string `json:"taskId"`
}

// InformMessage is enqueued on a task's terminal transition (completed
// or failed) to trigger an owner email notification.
type InformMessage struct {
	TaskID string `json:"taskId"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// VisualizeMessage is enqueued by the "generate visualization" operation
// to run a diagram-generation pass independent of the main stage order.
type VisualizeMessage struct {
	TaskID        string `json:"taskId"`
	VisualType    string `json:"visualType"`
	ContentStyle  string `json:"contentStyle,omitempty"`
	Provider      string `json:"provider,omitempty"`
	ModelID       string `json:"modelId,omitempty"`
	GenerateImage bool   `json:"generateImage,omitempty"`
	ImageFormat   string `json:"imageFormat,omitempty"`
}

// ProgressMessage mirrors one progress.Event, carried over the durable
// queue so the worker process's publisher and the progress process's
// broadcaster can run as separate binaries.
type ProgressMessage struct {
	TaskID   string `json:"taskId"`
	Type     string `json:"type"`
	Status   string `json:"status"`
	Stage    string `json:"stage,omitempty"`
	Progress int32  `json:"progress"`
}
