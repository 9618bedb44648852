package models

import "time"

// Run statuses for JobExecutionLog. Logs transition running -> terminal
// exactly once and are never otherwise mutated.
const (
	RunStatusRunning = "running"
	RunStatusSuccess = "success"
	RunStatusFailed  = "failed"
	RunStatusTimeout = "timeout"
)

// JobExecutionLog is the append-only record of one pipeline run. It is the
// sole interface the external scheduler/notification layer consumes.
type JobExecutionLog struct {
	ID      string `json:"id" badgerhold:"unique"` // run_<uuid>
	JobName string `json:"job_name" badgerhold:"index"`

	Status      string     `json:"status"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	Processed int `json:"records_processed"`
	Added     int `json:"new_records_added"`
	Updated   int `json:"updated_records"`
	Failed    int `json:"failed_records"`

	ErrorMessage    string                 `json:"error_message,omitempty"`
	DurationSeconds float64                `json:"duration_seconds"`
	Metadata        map[string]interface{} `json:"metadata,omitempty"`
}

// RunSummary is the orchestrator's return value for one invocation.
type RunSummary struct {
	Processed int           `json:"processed"`
	Added     int           `json:"added"`
	Updated   int           `json:"updated"`
	Failed    int           `json:"failed"`
	Duration  time.Duration `json:"duration"`
	Status    string        `json:"status"` // success, failed, timeout

	// FailedConditions lists search conditions whose listing crawl failed
	// outright. The remaining conditions still run.
	FailedConditions []string `json:"failed_conditions,omitempty"`
}
