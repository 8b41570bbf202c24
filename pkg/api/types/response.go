package types

import (
	"time"

	"forgehq/loom/pkg/store"
)

// CreateTaskResponse is the body returned by POST /requirement-tasks.
type CreateTaskResponse struct {
	// TaskID is the generated task identifier used for polling.
	TaskID string `json:"taskId"`

	// Status is always "pending" on create.
	Status string `json:"status"`

	// Message is a human-readable confirmation.
	Message string `json:"message"`
}

// TaskResponse is the polling view of a task: the durable row joined
// with the live queue state and any recorded quality metrics.
type TaskResponse struct {
	TaskID    string                 `json:"taskId"`
	Status    string                 `json:"status"`
	Progress  float64                `json:"progress"`
	Details   map[string]interface{} `json:"details,omitempty"`
	CreatedAt time.Time              `json:"createdAt"`
	UpdatedAt time.Time              `json:"updatedAt"`

	// QueueInfo reflects the queue's view of the task's job. Omitted when
	// the queue could not be consulted.
	QueueInfo *QueueInfo `json:"queueInfo,omitempty"`

	// QualityMetrics lists recorded quality scores, empty until the
	// quality stage has run.
	QualityMetrics []QualityMetricResponse `json:"qualityMetrics"`
}

// QueueInfo is the live queue state of a task's job.
type QueueInfo struct {
	// State is one of waiting, active, completed, failed, delayed or
	// not-found.
	State string `json:"state"`

	// Progress is set only while the job is active.
	Progress *float64 `json:"progress,omitempty"`
}

// QualityMetricResponse is the client view of one quality-check result.
type QualityMetricResponse struct {
	CodeQualityScore         float64 `json:"codeQualityScore"`
	RequirementCoverageScore float64 `json:"requirementCoverageScore"`
	SyntaxValidityScore      float64 `json:"syntaxValidityScore"`
}

// NewQualityMetricResponse converts a stored metric row.
func NewQualityMetricResponse(m *store.QualityMetric) QualityMetricResponse {
	return QualityMetricResponse{
		CodeQualityScore:         m.CodeQuality,
		RequirementCoverageScore: m.RequirementCoverage,
		SyntaxValidityScore:      m.SyntaxValidity,
	}
}

// CleanQueueResponse is the body returned by the queue clean endpoint.
type CleanQueueResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}
