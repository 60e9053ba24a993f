// File: api/schemas/schemas.go
package schemas

import (
	"time"
)

// -- Task Schemas --

// TaskType identifies which engine operation a task requests.
type TaskType string

const (
	TaskEmbed   TaskType = "embed"
	TaskExtract TaskType = "extract"
	TaskProtect TaskType = "protect"
	TaskScore   TaskType = "score"
	TaskAnalyze TaskType = "analyze"
	TaskStrip   TaskType = "strip"
)

// Task describes one unit of work for the engine: a single operation applied
// to a single image file. Tasks are value objects; the engine never mutates them.
type Task struct {
	TaskID string   `json:"task_id"`
	JobID  string   `json:"job_id"`
	Type   TaskType `json:"type"`

	// Input is the path of the image to operate on. Output, where relevant,
	// is the path the transformed image is written to.
	Input  string `json:"input"`
	Output string `json:"output,omitempty"`

	// OwnerID is the identifier to embed (TaskEmbed) or the claimed owner to
	// verify against (TaskAnalyze).
	OwnerID string `json:"owner_id,omitempty"`

	// Strength selects the watermark bit-depth for TaskEmbed (1-10).
	Strength int `json:"strength,omitempty"`

	// Level selects the protection level for TaskProtect (0-100).
	Level int `json:"level,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// ResultEnvelope is the top level wrapper for the outcome of a single task.
// Exactly one of the result pointers is populated on success; Error carries
// the failure message otherwise.
type ResultEnvelope struct {
	JobID     string    `json:"job_id"`
	TaskID    string    `json:"task_id"`
	Type      TaskType  `json:"type"`
	Input     string    `json:"input"`
	Output    string    `json:"output,omitempty"`
	Timestamp time.Time `json:"timestamp"`

	Embed   *EmbedResult   `json:"embed,omitempty"`
	Extract *ExtractResult `json:"extract,omitempty"`
	Shield  *ShieldResult  `json:"shield,omitempty"`
	Score   *float64       `json:"score,omitempty"`
	Verdict *TamperVerdict `json:"verdict,omitempty"`

	Error string `json:"error,omitempty"`
}
