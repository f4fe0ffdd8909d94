package persistence

import (
	"database/sql"
	"time"
)

// SourceType indicates how the task's audio/video originates.
type SourceType string

const (
	// SourceUpload means the content was uploaded by the client to object storage first.
	SourceUpload SourceType = "upload"
	// SourceURL means the content must be resolved/downloaded from a remote URL.
	SourceURL SourceType = "url"
)

// Task is one unit of work travelling through the stage pipeline.
type Task struct {
	ID        string
	UserID    string
	Title     string
	Source    SourceType
	FileKey   sql.NullString
	SourceURL sql.NullString
	ContentHash sql.NullString

	Options Options

	Status      string
	Progress    int32
	DurationSec sql.NullFloat64
	Error       sql.NullString
	Cancelled   bool

	Created time.Time
	Updated time.Time
	Deleted bool

	// Version is used for optimistic-concurrency updates, same discipline
	// as the teacher's status.Version column.
	Version int32
}

// Options holds the per-task processing options from the §6 configuration surface.
type Options struct {
	Language               string `json:"language,omitempty"`
	EnableSpeakerDiarization bool  `json:"enable_speaker_diarization,omitempty"`
	SummaryStyle           string `json:"summary_style,omitempty"`
	ASRVariant             string `json:"asr_variant,omitempty"`
	Provider               string `json:"provider,omitempty"`
	ModelID                string `json:"model_id,omitempty"`
}

// TaskStage is one record per stage attempt of a task.
type TaskStage struct {
	ID          int64
	TaskID      string
	StageType   string
	Status      string
	StartedAt   sql.NullTime
	CompletedAt sql.NullTime
	Error       sql.NullString
	IsActive    bool
	AttemptID   string
	Created     time.Time
}

// WordTiming is a vendor-conditional word-level timestamp.
type WordTiming struct {
	Word       string
	Start      float64
	End        float64
	Confidence sql.NullFloat64
}

// TranscriptSegment is immutable once written; edits preserve the original.
type TranscriptSegment struct {
	ID         int64
	TaskID     string
	SpeakerID  sql.NullString
	Start      float64
	End        float64
	Content    string
	Confidence sql.NullFloat64
	Words      []WordTiming

	IsEdited        bool
	OriginalContent sql.NullString

	Seq int32
}

// Summary is a generated artifact of a given type; exactly one version is
// active per (task, summary_type).
type Summary struct {
	ID            int64
	TaskID        string
	SummaryType   string
	Content       string
	Version       int32
	IsActive      bool
	VisualFormat  sql.NullString
	VisualContent sql.NullString
	ImageKey      sql.NullString
	ModelUsed     string
	PromptVersion string
	TokenCount    sql.NullInt32
	Created       time.Time
}

// QuotaEntry is keyed by (owner, provider, variant, window_type).
type QuotaEntry struct {
	ID          int64
	Owner       string
	Provider    string
	Variant     string
	WindowType  string
	WindowStart time.Time
	WindowEnd   time.Time
	QuotaSec    float64
	UsedSec     float64
	Status      string
	Version     int32
}

// UsageRecord is an append-only event recording a provider call's estimated cost.
type UsageRecord struct {
	ID           int64
	Timestamp    time.Time
	ServiceType  string
	Provider     string
	UserID       string
	TaskID       string
	CostEstimate float64
	Tokens       sql.NullInt32
	DurationSec  sql.NullFloat64
	RequestID    string
	AttemptIndex int32
}

// CircuitStateRow is the persisted mirror of C6's in-memory circuit state,
// used only for restart-recovery diagnostics; the authoritative state lives
// in breaker.Manager's in-process memory per §5 ("Health Monitor / Circuit
// Breakers: ... writes serialized per key").
type CircuitStateRow struct {
	ServiceType       string
	Provider          string
	State             string
	ConsecutiveFail   int32
	OpenedAt          sql.NullTime
	NextProbeAt       sql.NullTime
}
