package models

import "time"

// TaskStatus is the lifecycle state of a Task.
type TaskStatus string

const (
	TaskPlanning     TaskStatus = "planning"
	TaskPending      TaskStatus = "pending"
	TaskRunning      TaskStatus = "running"
	TaskPaused       TaskStatus = "paused"
	TaskCompleted    TaskStatus = "completed"
	TaskFailed       TaskStatus = "failed"
	TaskRollingBack  TaskStatus = "rolling_back"
	TaskRolledBack   TaskStatus = "rolled_back"
	TaskCancelled    TaskStatus = "cancelled"
)

// StepStatus is the lifecycle state of a TaskStep.
type StepStatus string

const (
	StepPending     StepStatus = "pending"
	StepRunning     StepStatus = "running"
	StepCompleted   StepStatus = "completed"
	StepFailed      StepStatus = "failed"
	StepSkipped     StepStatus = "skipped"
	StepRolledBack  StepStatus = "rolled_back"
)

// TaskStep is one ordered command within a Task's plan.
type TaskStep struct {
	ID               string     `json:"id"`
	Name             string     `json:"name"`
	Description      string     `json:"description"`
	Command          string     `json:"command"`
	RollbackCommand  string     `json:"rollback_command,omitempty"`
	RequiresApproval bool       `json:"requires_approval"`
	Timeout          int        `json:"timeout"`

	Status      StepStatus `json:"status"`
	Output      string     `json:"output,omitempty"`
	Error       string     `json:"error,omitempty"`
	ExitCode    *int       `json:"exit_code,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Task is a multi-step, resumable, pausable, rollback-capable plan executed
// against a single Server.
type Task struct {
	ID       string `json:"id"`
	UserID   string `json:"user_id"`
	ServerID string `json:"server_id"`

	Title       string `json:"title"`
	Description string `json:"description"`

	Status           TaskStatus `json:"status"`
	Steps            []*TaskStep `json:"steps"`
	CurrentStepIndex int        `json:"current_step_index"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// TaskPlan is the LLM-produced structure planTask extracts before a Task is
// materialized.
type TaskPlan struct {
	Title              string         `json:"title"`
	Description        string         `json:"description"`
	Steps              []PlannedStep  `json:"steps"`
	EstimatedDuration  string         `json:"estimated_duration,omitempty"`
	Risks              []string       `json:"risks,omitempty"`
	RequiresApproval   bool           `json:"requires_approval"`
}

// PlannedStep is one step inside a TaskPlan, before ids are assigned.
type PlannedStep struct {
	Name             string `json:"name"`
	Description      string `json:"description"`
	Command          string `json:"command"`
	RollbackCommand  string `json:"rollback_command,omitempty"`
	RequiresApproval bool   `json:"requires_approval"`
	Timeout          int    `json:"timeout"`
}
