package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/riftlabs/vpsagent/internal/llm"
	"github.com/riftlabs/vpsagent/internal/observability"
	"github.com/riftlabs/vpsagent/internal/sshexec"
)

// CommandRunner executes one remote command and is the orchestrator's only
// dependency on the SSH Executor (C2) — a narrow port rather than a direct
// sshexec import, the way internal/agent depends on ToolDispatcher/
// ConversationStore instead of concrete types, so executeTask's step loop
// can be driven from tests without a real network dial.
type CommandRunner interface {
	Run(conn sshexec.ServerConnection, command string, timeout time.Duration) (*sshexec.Result, error)
}

// sshCommandRunner is the production CommandRunner, a thin pass-through to
// sshexec.Exec.
type sshCommandRunner struct{}

func (sshCommandRunner) Run(conn sshexec.ServerConnection, command string, timeout time.Duration) (*sshexec.Result, error) {
	return sshexec.Exec(conn, command, timeout)
}

// Orchestrator is the Task Orchestrator (C6). Tasks are held entirely in
// memory, keyed by id, each guarded by its own lock so a long-running step
// on one task never blocks reads or mutations (pause, cancel, approve) on
// another — grounded on the "active tasks ... single-writer-per-task
// invariant" shared-resource policy in spec §5 and the per-id map+mutex
// shape of the teacher's jobs.MemoryStore.
type Orchestrator struct {
	planner llm.Provider
	runner  CommandRunner
	bus     *EventBus

	mu    sync.Mutex
	tasks map[string]*Task
	locks map[string]*sync.Mutex

	tracer *observability.Tracer
}

// SetTracer attaches a tracer for span emission around each step's remote
// exec, wired from C13's bootstrap. A nil tracer (the default) is a no-op.
func (o *Orchestrator) SetTracer(t *observability.Tracer) { o.tracer = t }

// New wires an Orchestrator. runner may be nil to use the real SSH
// executor; tests supply a fake.
func New(planner llm.Provider, runner CommandRunner, bus *EventBus) *Orchestrator {
	if runner == nil {
		runner = sshCommandRunner{}
	}
	if bus == nil {
		bus = NewEventBus()
	}
	return &Orchestrator{
		planner: planner,
		runner:  runner,
		bus:     bus,
		tasks:   make(map[string]*Task),
		locks:   make(map[string]*sync.Mutex),
	}
}

// Bus exposes the event bus for HTTP route wiring.
func (o *Orchestrator) Bus() *EventBus { return o.bus }

// PlanTask asks the LLM for a plan for request against a server described
// by serverInfo. Per spec §4.6 this never errors — an unparseable response
// degrades to the single-step apology plan.
func (o *Orchestrator) PlanTask(ctx context.Context, request, serverInfo string) (*Plan, error) {
	return planTask(ctx, o.planner, request, serverInfo)
}

func (o *Orchestrator) taskLock(taskID string) *sync.Mutex {
	o.mu.Lock()
	defer o.mu.Unlock()
	l, ok := o.locks[taskID]
	if !ok {
		l = &sync.Mutex{}
		o.locks[taskID] = l
	}
	return l
}

// CreateTask materialises plan into a stored Task with fresh step ids and
// status=pending, per spec §4.6's createTask.
func (o *Orchestrator) CreateTask(userID, serverID string, conn sshexec.ServerConnection, plan *Plan) *Task {
	steps := make([]*Step, len(plan.Steps))
	for i, ps := range plan.Steps {
		timeout := ps.Timeout
		if timeout <= 0 {
			timeout = fallbackTimeoutSeconds
		}
		steps[i] = &Step{
			ID:               uuid.NewString(),
			Name:             ps.Name,
			Description:      ps.Description,
			Command:          ps.Command,
			RollbackCommand:  ps.RollbackCommand,
			RequiresApproval: ps.RequiresApproval,
			Timeout:          timeout,
			Status:           StepStatusPending,
		}
	}

	task := &Task{
		ID:                uuid.NewString(),
		UserID:            userID,
		ServerID:          serverID,
		Title:             plan.Title,
		Description:       plan.Description,
		Status:            TaskStatusPending,
		Steps:             steps,
		CurrentStepIndex:  0,
		EstimatedDuration: plan.EstimatedDuration,
		Risks:             plan.Risks,
		CreatedAt:         time.Now(),
		conn:              conn,
	}

	o.mu.Lock()
	o.tasks[task.ID] = task
	o.locks[task.ID] = &sync.Mutex{}
	o.mu.Unlock()

	o.bus.Publish(Event{Topic: TopicTaskCreated, TaskID: task.ID, Task: task.clone()})
	return task.clone()
}

// GetTask returns a snapshot of a stored task.
func (o *Orchestrator) GetTask(taskID string) (*Task, error) {
	o.mu.Lock()
	t, ok := o.tasks[taskID]
	o.mu.Unlock()
	if !ok {
		return nil, ErrTaskNotFound
	}
	lock := o.taskLock(taskID)
	lock.Lock()
	defer lock.Unlock()
	return t.clone(), nil
}

func (o *Orchestrator) getTask(taskID string) (*Task, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	t, ok := o.tasks[taskID]
	if !ok {
		return nil, ErrTaskNotFound
	}
	return t, nil
}

// ExecuteTask runs steps starting at task.CurrentStepIndex, per spec §4.6's
// executeTask. It returns the task snapshot as of whichever stopping
// condition was hit: a paused approval gate, a failed step, an externally
// observed pause/cancel, or full completion. Resume and ApproveStep both
// re-enter here, matching "resume calls executeTask from currentStepIndex"
// and "[approval] re-enters executeTask".
func (o *Orchestrator) ExecuteTask(ctx context.Context, taskID string) (*Task, error) {
	task, err := o.getTask(taskID)
	if err != nil {
		return nil, err
	}
	lock := o.taskLock(taskID)

	lock.Lock()
	if task.Status == TaskStatusRunning || task.Status == TaskStatusRollingBack {
		lock.Unlock()
		return nil, ErrAlreadyExecuting
	}
	if task.Status.isTerminal() {
		lock.Unlock()
		return nil, ErrTaskTerminal
	}
	task.Status = TaskStatusRunning
	if task.StartedAt == nil {
		now := time.Now()
		task.StartedAt = &now
	}
	snapshot := task.clone()
	lock.Unlock()
	o.bus.Publish(Event{Topic: TopicTaskUpdated, TaskID: taskID, Task: snapshot})

	for i := task.CurrentStepIndex; i < len(task.Steps); i++ {
		lock.Lock()
		if task.Status == TaskStatusPaused || task.Status == TaskStatusCancelled {
			snapshot := task.clone()
			lock.Unlock()
			return snapshot, nil
		}

		step := task.Steps[i]
		if step.RequiresApproval && step.Status == StepStatusPending {
			task.Status = TaskStatusPaused
			snapshot := task.clone()
			stepSnap := *step
			lock.Unlock()
			o.bus.Publish(Event{Topic: TopicTaskNeedsApproval, TaskID: taskID, Task: snapshot, Step: &stepSnap})
			return snapshot, nil
		}

		started := time.Now()
		step.Status = StepStatusRunning
		step.StartedAt = &started
		stepSnap := *step
		lock.Unlock()
		o.bus.Publish(Event{Topic: TopicStepStarted, TaskID: taskID, Step: &stepSnap})

		_, span := o.tracer.Start(ctx, "orchestrator.step",
			attribute.String("task.id", taskID), attribute.String("step.name", step.Name))
		result, execErr := o.runner.Run(task.conn, step.Command, time.Duration(step.Timeout)*time.Second)
		o.tracer.RecordError(span, execErr)
		span.End()

		lock.Lock()
		completed := time.Now()
		step.CompletedAt = &completed

		if execErr != nil || result.ExitCode != 0 {
			step.Status = StepStatusFailed
			step.Error = stepFailureMessage(execErr, result)
			task.Status = TaskStatusFailed
			task.Error = fmt.Sprintf("step %q failed: %s", step.Name, step.Error)
			task.CompletedAt = &completed
			stepSnap := *step
			taskSnap := task.clone()
			lock.Unlock()
			o.bus.Publish(Event{Topic: TopicStepFailed, TaskID: taskID, Step: &stepSnap})
			o.bus.Publish(Event{Topic: TopicTaskFailed, TaskID: taskID, Task: taskSnap})
			return taskSnap, nil
		}

		step.Status = StepStatusCompleted
		step.Output = result.OutputWithStderrMarker()
		task.CurrentStepIndex = i + 1
		stepSnap := *step
		lock.Unlock()
		o.bus.Publish(Event{Topic: TopicStepCompleted, TaskID: taskID, Step: &stepSnap})
	}

	lock.Lock()
	task.Status = TaskStatusCompleted
	completed := time.Now()
	task.CompletedAt = &completed
	snapshot = task.clone()
	lock.Unlock()
	o.bus.Publish(Event{Topic: TopicTaskCompleted, TaskID: taskID, Task: snapshot})
	return snapshot, nil
}

func stepFailureMessage(execErr error, result *sshexec.Result) string {
	if execErr != nil {
		return execErr.Error()
	}
	return fmt.Sprintf("exit code %d: %s", result.ExitCode, result.Stderr)
}

// ApproveStep clears the approval gate on stepID and re-enters ExecuteTask,
// the sole path spec §4.6 allows past a paused approval.
func (o *Orchestrator) ApproveStep(ctx context.Context, taskID, stepID string) (*Task, error) {
	task, err := o.getTask(taskID)
	if err != nil {
		return nil, err
	}
	lock := o.taskLock(taskID)

	lock.Lock()
	var found *Step
	for _, s := range task.Steps {
		if s.ID == stepID {
			found = s
			break
		}
	}
	if found == nil {
		lock.Unlock()
		return nil, ErrStepNotFound
	}
	found.RequiresApproval = false
	stepSnap := *found
	lock.Unlock()
	o.bus.Publish(Event{Topic: TopicStepApproved, TaskID: taskID, Step: &stepSnap})

	return o.ExecuteTask(ctx, taskID)
}

// RollbackTask walks completed steps in reverse, running each rollback
// command when present. A failed rollback does not abort the sweep, per
// spec §4.6.
func (o *Orchestrator) RollbackTask(ctx context.Context, taskID string) (*Task, error) {
	task, err := o.getTask(taskID)
	if err != nil {
		return nil, err
	}
	lock := o.taskLock(taskID)

	lock.Lock()
	if task.Status == TaskStatusRunning || task.Status == TaskStatusRollingBack {
		lock.Unlock()
		return nil, ErrAlreadyExecuting
	}
	task.Status = TaskStatusRollingBack
	lock.Unlock()
	o.bus.Publish(Event{Topic: TopicTaskUpdated, TaskID: taskID, Task: task.clone()})

	for i := len(task.Steps) - 1; i >= 0; i-- {
		lock.Lock()
		step := task.Steps[i]
		if step.Status != StepStatusCompleted {
			lock.Unlock()
			continue
		}
		stepSnap := *step
		lock.Unlock()
		o.bus.Publish(Event{Topic: TopicStepRollingBack, TaskID: taskID, Step: &stepSnap})

		if step.RollbackCommand == "" {
			lock.Lock()
			step.Status = StepStatusRolledBack
			stepSnap := *step
			lock.Unlock()
			o.bus.Publish(Event{Topic: TopicStepRolledBack, TaskID: taskID, Step: &stepSnap})
			continue
		}

		_, span := o.tracer.Start(ctx, "orchestrator.rollback_step",
			attribute.String("task.id", taskID), attribute.String("step.name", step.Name))
		result, execErr := o.runner.Run(task.conn, step.RollbackCommand, time.Duration(step.Timeout)*time.Second)
		o.tracer.RecordError(span, execErr)
		span.End()

		lock.Lock()
		if execErr != nil || result.ExitCode != 0 {
			step.Status = StepStatusRollbackFailed
			step.Error = stepFailureMessage(execErr, result)
			stepSnap := *step
			lock.Unlock()
			o.bus.Publish(Event{Topic: TopicStepRollbackFailed, TaskID: taskID, Step: &stepSnap})
			continue
		}
		step.Status = StepStatusRolledBack
		stepSnap := *step
		lock.Unlock()
		o.bus.Publish(Event{Topic: TopicStepRolledBack, TaskID: taskID, Step: &stepSnap})
	}

	lock.Lock()
	task.Status = TaskStatusRolledBack
	completed := time.Now()
	task.CompletedAt = &completed
	snapshot := task.clone()
	lock.Unlock()
	o.bus.Publish(Event{Topic: TopicTaskRolledBack, TaskID: taskID, Task: snapshot})
	return snapshot, nil
}

// Pause transitions a running task to paused; ExecuteTask's loop observes
// this before starting its next step.
func (o *Orchestrator) Pause(taskID string) (*Task, error) {
	task, err := o.getTask(taskID)
	if err != nil {
		return nil, err
	}
	lock := o.taskLock(taskID)
	lock.Lock()
	if task.Status != TaskStatusRunning {
		lock.Unlock()
		return nil, ErrTaskNotRunning
	}
	task.Status = TaskStatusPaused
	snapshot := task.clone()
	lock.Unlock()
	o.bus.Publish(Event{Topic: TopicTaskPaused, TaskID: taskID, Task: snapshot})
	return snapshot, nil
}

// Resume re-enters ExecuteTask from task.CurrentStepIndex.
func (o *Orchestrator) Resume(ctx context.Context, taskID string) (*Task, error) {
	return o.ExecuteTask(ctx, taskID)
}

// Cancel marks task cancelled and skips every step still pending.
func (o *Orchestrator) Cancel(taskID string) (*Task, error) {
	task, err := o.getTask(taskID)
	if err != nil {
		return nil, err
	}
	lock := o.taskLock(taskID)
	lock.Lock()
	if task.Status.isTerminal() {
		lock.Unlock()
		return nil, ErrTaskTerminal
	}
	task.Status = TaskStatusCancelled
	completed := time.Now()
	task.CompletedAt = &completed
	for _, s := range task.Steps {
		if s.Status == StepStatusPending {
			s.Status = StepStatusSkipped
		}
	}
	snapshot := task.clone()
	lock.Unlock()
	o.bus.Publish(Event{Topic: TopicTaskCancelled, TaskID: taskID, Task: snapshot})
	return snapshot, nil
}
