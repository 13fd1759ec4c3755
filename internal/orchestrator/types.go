// Package orchestrator implements the Task Orchestrator (C6): it turns an
// LLM-authored plan into a sequence of remote commands, executing them one
// at a time with per-step approval gates and reverse-order rollback.
//
// Tasks live in an in-process keyed map owned by the orchestrator — there is
// no persistence layer backing them, mirrored on the teacher's
// internal/jobs.MemoryStore clone-on-write idiom — and every mutation is
// announced on an internal event bus rather than returned to a caller
// directly, the way internal/tasks/executor.go reports progress through its
// own logger rather than a return channel.
package orchestrator

import (
	"time"

	"github.com/riftlabs/vpsagent/internal/sshexec"
)

// TaskStatus is the task-level state named in spec §4.6.
type TaskStatus string

const (
	TaskStatusPlanning    TaskStatus = "planning"
	TaskStatusPending     TaskStatus = "pending"
	TaskStatusRunning     TaskStatus = "running"
	TaskStatusPaused      TaskStatus = "paused"
	TaskStatusCompleted   TaskStatus = "completed"
	TaskStatusFailed      TaskStatus = "failed"
	TaskStatusRollingBack TaskStatus = "rolling_back"
	TaskStatusRolledBack  TaskStatus = "rolled_back"
	TaskStatusCancelled   TaskStatus = "cancelled"
)

// StepStatus is the per-step state. rollback_failed is distinct from failed
// so a step that executed successfully but whose rollback command later
// failed doesn't read as though the original execution never happened.
type StepStatus string

const (
	StepStatusPending        StepStatus = "pending"
	StepStatusRunning        StepStatus = "running"
	StepStatusCompleted      StepStatus = "completed"
	StepStatusFailed         StepStatus = "failed"
	StepStatusSkipped        StepStatus = "skipped"
	StepStatusRolledBack     StepStatus = "rolled_back"
	StepStatusRollbackFailed StepStatus = "rollback_failed"
)

// Step is one materialised unit of work within a Task.
type Step struct {
	ID               string     `json:"id"`
	Name             string     `json:"name"`
	Description      string     `json:"description,omitempty"`
	Command          string     `json:"command"`
	RollbackCommand  string     `json:"rollbackCommand,omitempty"`
	RequiresApproval bool       `json:"requiresApproval"`
	Timeout          int        `json:"timeout"` // seconds
	Status           StepStatus `json:"status"`
	Output           string     `json:"output,omitempty"`
	Error            string     `json:"error,omitempty"`
	StartedAt        *time.Time `json:"startedAt,omitempty"`
	CompletedAt      *time.Time `json:"completedAt,omitempty"`
}

// Task is one orchestrated multi-step operation against a server.
type Task struct {
	ID                string     `json:"id"`
	UserID            string     `json:"userId"`
	ServerID          string     `json:"serverId"`
	Title             string     `json:"title"`
	Description       string     `json:"description,omitempty"`
	Status            TaskStatus `json:"status"`
	Steps             []*Step    `json:"steps"`
	CurrentStepIndex  int        `json:"currentStepIndex"`
	EstimatedDuration string     `json:"estimatedDuration,omitempty"`
	Risks             []string   `json:"risks,omitempty"`
	Error             string     `json:"error,omitempty"`
	CreatedAt         time.Time  `json:"createdAt"`
	StartedAt         *time.Time `json:"startedAt,omitempty"`
	CompletedAt       *time.Time `json:"completedAt,omitempty"`

	// conn is the resolved SSH coordinate for ServerID. Credential
	// decryption happens one layer up (the HTTP gateway route), same
	// separation of concerns as internal/agent.Loop.Run taking a pre-built
	// *tools.Session — the orchestrator never touches the Vault.
	conn sshexec.ServerConnection
}

// Plan is the LLM's proposed shape for a new task, per spec §4.6's
// planTask JSON contract.
type Plan struct {
	Title             string     `json:"title"`
	Description       string     `json:"description"`
	Steps             []PlanStep `json:"steps"`
	EstimatedDuration string     `json:"estimatedDuration"`
	Risks             []string   `json:"risks"`
	RequiresApproval  bool       `json:"requiresApproval"`
}

// PlanStep is one step as the LLM describes it, before a task id is
// assigned.
type PlanStep struct {
	Name             string `json:"name"`
	Description      string `json:"description"`
	Command          string `json:"command"`
	RollbackCommand  string `json:"rollbackCommand,omitempty"`
	RequiresApproval bool   `json:"requiresApproval"`
	Timeout          int    `json:"timeout"`
}

// isTerminal reports whether s is one of the task states executeTask must
// never resume from.
func (s TaskStatus) isTerminal() bool {
	switch s {
	case TaskStatusCompleted, TaskStatusFailed, TaskStatusRolledBack, TaskStatusCancelled:
		return true
	default:
		return false
	}
}

// clone deep-copies a Task (including its Steps) so callers can never
// mutate orchestrator-owned state through a returned snapshot — the same
// clone-on-read/write guarantee jobs.MemoryStore gives its callers.
func (t *Task) clone() *Task {
	if t == nil {
		return nil
	}
	cp := *t
	cp.Steps = make([]*Step, len(t.Steps))
	for i, s := range t.Steps {
		sc := *s
		cp.Steps[i] = &sc
	}
	cp.Risks = append([]string(nil), t.Risks...)
	return &cp
}
