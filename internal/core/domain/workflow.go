package domain

import (
	"errors"
	"time"
)

type UserWorkflowStatus string

const (
	WorkflowStatusActive   UserWorkflowStatus = "active"
	WorkflowStatusInactive UserWorkflowStatus = "inactive"
	WorkflowStatusError    UserWorkflowStatus = "error"
)

// UserWorkflow links a workflow imported into a user's automation server
// back to the catalog template it was created from.
type UserWorkflow struct {
	ID           string             `json:"id"`
	UserID       int64              `json:"user_id"`
	WorkflowID   string             `json:"workflow_id"` // ID on the automation server
	TemplateID   TemplateID         `json:"template_id,omitempty"`
	WorkflowName string             `json:"workflow_name"`
	Status       UserWorkflowStatus `json:"status"`

	CreatedAt      time.Time  `json:"created_at"`
	LastExecution  *time.Time `json:"last_execution,omitempty"`
	ExecutionCount int        `json:"execution_count"`
	ErrorCount     int        `json:"error_count"`
}

var ErrWorkflowNotFound = errors.New("user workflow not found")
