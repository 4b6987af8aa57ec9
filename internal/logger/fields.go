package logger

// Fields is an alias for map[string]interface{} for convenience.
type Fields map[string]interface{}

// Tracing fields, propagated through the context.
const (
	FieldRequestID = "request_id"
	FieldJobID     = "job_id"
	FieldJobKind   = "job_kind"
	FieldComponent = "component"
	FieldBezirk    = "bezirk"
	FieldURL       = "url"
	FieldDryRun    = "dry_run"
	FieldSource    = "source"
)

// Metric fields, used for aggregation.
const (
	FieldDurationMs = "duration_ms"
	FieldCount      = "count"
	FieldStatus     = "status"
	FieldProgress   = "progress"
	FieldSize       = "size"
)
