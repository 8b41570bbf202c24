package types

import "forgehq/loom/pkg/store"

// CreateTaskRequest is the body of POST /requirement-tasks.
type CreateTaskRequest struct {
	// ProjectID groups tasks that belong to the same project. Required.
	ProjectID string `json:"projectId"`

	// RepositoryURL is the Git remote the generated code is pushed to.
	// Required.
	RepositoryURL string `json:"repositoryUrl"`

	// Branch is the base branch the task branch is cut from. Required.
	Branch string `json:"branch"`

	// RequirementText is the natural-language requirement. Required.
	RequirementText string `json:"requirementText"`

	// Priority orders the task in the queue. Default: "medium".
	Priority string `json:"priority,omitempty"`

	// AdditionalContext is free-form text passed to the analysis prompt.
	AdditionalContext string `json:"additionalContext,omitempty"`

	// Language selects the target language. Default: "typescript".
	Language string `json:"language,omitempty"`

	// OutputPath overrides where generated files land in the repository.
	OutputPath string `json:"outputPath,omitempty"`

	// TemplateID selects a prompt template set for this task.
	TemplateID string `json:"templateId,omitempty"`
}

// ToTask converts the request into a store task. Defaults and enum
// validation are applied by the store on create.
func (r *CreateTaskRequest) ToTask() *store.Task {
	return &store.Task{
		ProjectID:         r.ProjectID,
		RepositoryURL:     r.RepositoryURL,
		Branch:            r.Branch,
		RequirementText:   r.RequirementText,
		Priority:          store.Priority(r.Priority),
		AdditionalContext: r.AdditionalContext,
		Language:          store.Language(r.Language),
		OutputPath:        r.OutputPath,
		TemplateID:        r.TemplateID,
	}
}

// CleanQueueRequest is the body of POST /requirement-tasks/queue/clean.
// An empty body is equivalent to a zero grace period.
type CleanQueueRequest struct {
	// GracePeriod is the minimum age in seconds a completed or failed
	// job must have before it is removed. Default: 0, remove all.
	GracePeriod int64 `json:"gracePeriod,omitempty"`
}
