package domain

import "time"

// JobStatus represents the status of an import job.
type JobStatus string

const (
	// JobStatusIdle is the client-side default before a job exists; it is never stored.
	JobStatusIdle      JobStatus = "idle"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// IsTerminal reports whether no further transitions can happen.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// JobKind distinguishes what an import job pulls in.
type JobKind string

const (
	JobKindKitas     JobKind = "kitas"
	JobKindKnowledge JobKind = "knowledge"
)

// LogLevel of a job log entry.
type LogLevel string

const (
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// Extracted is the structured twin of an "-> Extracted: name (detail)" message.
type Extracted struct {
	Name   string `json:"name"`
	Detail string `json:"detail,omitempty"`
}

// LogEntry is one line of a job's log stream. Immutable once appended.
type LogEntry struct {
	Timestamp time.Time  `json:"timestamp"`
	Level     LogLevel   `json:"level"`
	Message   string     `json:"message"`
	Extracted *Extracted `json:"extracted,omitempty"`
}

// JobStats counts per-item outcomes of a job.
type JobStats struct {
	Processed int `json:"processed"`
	Extracted int `json:"extracted"`
	Failed    int `json:"failed"`
	Persisted int `json:"persisted"`
}

// ImportJob is a read-only snapshot of one import run.
// Results holds []Kita or []KnowledgePost depending on Kind.
type ImportJob struct {
	ID         string     `json:"id"`
	Kind       JobKind    `json:"kind"`
	Status     JobStatus  `json:"status"`
	Progress   int        `json:"progress"`
	Logs       []LogEntry `json:"logs"`
	Error      string     `json:"error,omitempty"`
	DryRun     bool       `json:"dryRun"`
	Stats      JobStats   `json:"stats"`
	CreatedAt  time.Time  `json:"createdAt"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
}

// ImportRun is the persisted summary of a finished job.
type ImportRun struct {
	ID         string    `gorm:"type:text;primaryKey" json:"id"`
	Kind       JobKind   `gorm:"type:text;not null;index" json:"kind"`
	Source     string    `gorm:"type:text;index" json:"source"`
	Status     JobStatus `gorm:"type:text;not null" json:"status"`
	DryRun     bool      `json:"dryRun"`
	Processed  int       `json:"processed"`
	Extracted  int       `json:"extracted"`
	Failed     int       `json:"failed"`
	Persisted  int       `json:"persisted"`
	ErrorLog   string    `json:"errorLog,omitempty"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
	CreatedAt  time.Time `json:"createdAt"`
}

// TableName returns the database table name for ImportRun.
func (ImportRun) TableName() string {
	return "import_runs"
}

// JobSummary is the log-free view of a job used by job listings.
type JobSummary struct {
	ID         string     `json:"id"`
	Kind       JobKind    `json:"kind"`
	Status     JobStatus  `json:"status"`
	Progress   int        `json:"progress"`
	Error      string     `json:"error,omitempty"`
	DryRun     bool       `json:"dryRun"`
	Stats      JobStats   `json:"stats"`
	CreatedAt  time.Time  `json:"createdAt"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
}
