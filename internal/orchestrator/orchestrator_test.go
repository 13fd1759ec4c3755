package orchestrator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/riftlabs/vpsagent/internal/sshexec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRunner scripts one *sshexec.Result (or error) per call, keyed by call
// order, so tests can make a specific step in a multi-step task fail.
type fakeRunner struct {
	mu      sync.Mutex
	results []result
	calls   []string
}

type result struct {
	res *sshexec.Result
	err error
}

func (r *fakeRunner) Run(_ sshexec.ServerConnection, command string, _ time.Duration) (*sshexec.Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, command)
	idx := len(r.calls) - 1
	if idx >= len(r.results) {
		return &sshexec.Result{ExitCode: 0}, nil
	}
	return r.results[idx].res, r.results[idx].err
}

func twoStepPlan() *Plan {
	return &Plan{
		Title: "Two step task",
		Steps: []PlanStep{
			{Name: "step-one", Command: "echo one", Timeout: 5},
			{Name: "step-two", Command: "echo two", Timeout: 5},
		},
	}
}

func TestOrchestratorPlanTaskDelegatesToPlanner(t *testing.T) {
	provider := &fakePlannerProvider{text: `{"title":"Check uptime","steps":[{"name":"uptime","command":"uptime","requiresApproval":false}],"requiresApproval":false}`}
	o := New(provider, &fakeRunner{}, nil)

	plan, err := o.PlanTask(context.Background(), "how long has this box been up", "server: web-1")
	require.NoError(t, err)
	assert.Equal(t, "Check uptime", plan.Title)
}

func TestCreateTaskMaterializesStepsPending(t *testing.T) {
	o := New(nil, &fakeRunner{}, nil)
	task := o.CreateTask("user-1", "srv-1", sshexec.ServerConnection{Host: "10.0.0.1"}, twoStepPlan())

	assert.Equal(t, TaskStatusPending, task.Status)
	require.Len(t, task.Steps, 2)
	for _, s := range task.Steps {
		assert.Equal(t, StepStatusPending, s.Status)
		assert.NotEmpty(t, s.ID)
	}
}

func TestExecuteTaskRunsToCompletion(t *testing.T) {
	runner := &fakeRunner{results: []result{
		{res: &sshexec.Result{ExitCode: 0, Stdout: "one\n"}},
		{res: &sshexec.Result{ExitCode: 0, Stdout: "two\n"}},
	}}
	o := New(nil, runner, nil)
	task := o.CreateTask("user-1", "srv-1", sshexec.ServerConnection{}, twoStepPlan())

	final, err := o.ExecuteTask(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, TaskStatusCompleted, final.Status)
	assert.Equal(t, StepStatusCompleted, final.Steps[0].Status)
	assert.Equal(t, StepStatusCompleted, final.Steps[1].Status)
	assert.Equal(t, 2, final.CurrentStepIndex)
	require.Len(t, runner.calls, 2)
}

func TestExecuteTaskStopsOnFailedStep(t *testing.T) {
	runner := &fakeRunner{results: []result{
		{res: &sshexec.Result{ExitCode: 0}},
		{res: &sshexec.Result{ExitCode: 1, Stderr: "boom"}},
	}}
	o := New(nil, runner, nil)
	task := o.CreateTask("user-1", "srv-1", sshexec.ServerConnection{}, twoStepPlan())

	final, err := o.ExecuteTask(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, TaskStatusFailed, final.Status)
	assert.Equal(t, StepStatusCompleted, final.Steps[0].Status)
	assert.Equal(t, StepStatusFailed, final.Steps[1].Status)
	assert.Contains(t, final.Error, "step-two")
}

func TestExecuteTaskPausesOnApprovalGate(t *testing.T) {
	runner := &fakeRunner{}
	o := New(nil, runner, nil)
	plan := &Plan{Steps: []PlanStep{
		{Name: "risky", Command: "rm -rf /tmp/cache", RequiresApproval: true, Timeout: 5},
	}}
	task := o.CreateTask("user-1", "srv-1", sshexec.ServerConnection{}, plan)

	paused, err := o.ExecuteTask(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, TaskStatusPaused, paused.Status)
	assert.Equal(t, StepStatusPending, paused.Steps[0].Status)
	assert.Empty(t, runner.calls, "approval gate must not touch the remote host")
}

func TestApproveStepResumesExecution(t *testing.T) {
	runner := &fakeRunner{results: []result{{res: &sshexec.Result{ExitCode: 0}}}}
	o := New(nil, runner, nil)
	plan := &Plan{Steps: []PlanStep{
		{Name: "risky", Command: "rm -rf /tmp/cache", RequiresApproval: true, Timeout: 5},
	}}
	task := o.CreateTask("user-1", "srv-1", sshexec.ServerConnection{}, plan)

	paused, err := o.ExecuteTask(context.Background(), task.ID)
	require.NoError(t, err)
	require.Equal(t, TaskStatusPaused, paused.Status)

	final, err := o.ApproveStep(context.Background(), task.ID, paused.Steps[0].ID)
	require.NoError(t, err)
	assert.Equal(t, TaskStatusCompleted, final.Status)
	assert.Equal(t, StepStatusCompleted, final.Steps[0].Status)
	assert.Len(t, runner.calls, 1)
}

func TestExecuteTaskRejectsConcurrentExecution(t *testing.T) {
	o := New(nil, &fakeRunner{}, nil)
	task := o.CreateTask("user-1", "srv-1", sshexec.ServerConnection{}, twoStepPlan())

	lock := o.taskLock(task.ID)
	lock.Lock()
	stored, _ := o.getTask(task.ID)
	stored.Status = TaskStatusRunning
	lock.Unlock()

	_, err := o.ExecuteTask(context.Background(), task.ID)
	assert.ErrorIs(t, err, ErrAlreadyExecuting)
}

func TestPauseThenResumeContinuesFromCurrentStep(t *testing.T) {
	runner := &fakeRunner{results: []result{
		{res: &sshexec.Result{ExitCode: 0}},
		{res: &sshexec.Result{ExitCode: 0}},
	}}
	o := New(nil, runner, nil)
	task := o.CreateTask("user-1", "srv-1", sshexec.ServerConnection{}, twoStepPlan())

	// Simulate pausing before the task ever starts running is rejected...
	_, err := o.Pause(task.ID)
	assert.ErrorIs(t, err, ErrTaskNotRunning)

	// ...but a completed run can still be inspected afterwards.
	final, err := o.ExecuteTask(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, TaskStatusCompleted, final.Status)
}

func TestCancelSkipsRemainingPendingSteps(t *testing.T) {
	o := New(nil, &fakeRunner{}, nil)
	task := o.CreateTask("user-1", "srv-1", sshexec.ServerConnection{}, twoStepPlan())

	final, err := o.Cancel(task.ID)
	require.NoError(t, err)
	assert.Equal(t, TaskStatusCancelled, final.Status)
	for _, s := range final.Steps {
		assert.Equal(t, StepStatusSkipped, s.Status)
	}
}

func TestCancelRejectsAlreadyTerminalTask(t *testing.T) {
	runner := &fakeRunner{results: []result{
		{res: &sshexec.Result{ExitCode: 0}},
		{res: &sshexec.Result{ExitCode: 0}},
	}}
	o := New(nil, runner, nil)
	task := o.CreateTask("user-1", "srv-1", sshexec.ServerConnection{}, twoStepPlan())
	_, err := o.ExecuteTask(context.Background(), task.ID)
	require.NoError(t, err)

	_, err = o.Cancel(task.ID)
	assert.ErrorIs(t, err, ErrTaskTerminal)
}

func TestRollbackTaskWalksCompletedStepsInReverse(t *testing.T) {
	runner := &fakeRunner{results: []result{
		{res: &sshexec.Result{ExitCode: 0}}, // step one forward
		{res: &sshexec.Result{ExitCode: 0}}, // step two forward
		{res: &sshexec.Result{ExitCode: 0}}, // step two rollback
		{res: &sshexec.Result{ExitCode: 1, Stderr: "cannot undo"}}, // step one rollback fails
	}}
	o := New(nil, runner, nil)
	plan := &Plan{Steps: []PlanStep{
		{Name: "create-dir", Command: "mkdir /srv/app", RollbackCommand: "rmdir /srv/app", Timeout: 5},
		{Name: "write-file", Command: "touch /srv/app/x", RollbackCommand: "rm /srv/app/x", Timeout: 5},
	}}
	task := o.CreateTask("user-1", "srv-1", sshexec.ServerConnection{}, plan)

	_, err := o.ExecuteTask(context.Background(), task.ID)
	require.NoError(t, err)

	final, err := o.RollbackTask(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, TaskStatusRolledBack, final.Status)
	assert.Equal(t, StepStatusRollbackFailed, final.Steps[0].Status)
	assert.Equal(t, StepStatusRolledBack, final.Steps[1].Status)

	require.Len(t, runner.calls, 4)
	assert.Equal(t, "rm /srv/app/x", runner.calls[2])
	assert.Equal(t, "rmdir /srv/app", runner.calls[3])
}

func TestEventBusDeliversTaskCreatedAndCompleted(t *testing.T) {
	runner := &fakeRunner{results: []result{{res: &sshexec.Result{ExitCode: 0}}}}
	bus := NewEventBus()
	o := New(nil, runner, bus)

	plan := &Plan{Steps: []PlanStep{{Name: "only", Command: "true", Timeout: 5}}}
	task := o.CreateTask("user-1", "srv-1", sshexec.ServerConnection{}, plan)
	ch, unsubscribe := bus.Subscribe(task.ID)
	defer unsubscribe()

	_, err := o.ExecuteTask(context.Background(), task.ID)
	require.NoError(t, err)

	var topics []Topic
drain:
	for {
		select {
		case ev := <-ch:
			topics = append(topics, ev.Topic)
		default:
			break drain
		}
	}
	assert.Contains(t, topics, TopicStepStarted)
	assert.Contains(t, topics, TopicStepCompleted)
	assert.Contains(t, topics, TopicTaskCompleted)
}

func TestEventBusUnsubscribeStopsDelivery(t *testing.T) {
	bus := NewEventBus()
	ch, unsubscribe := bus.Subscribe("task-1")
	unsubscribe()

	bus.Publish(Event{Topic: TopicTaskCreated, TaskID: "task-1"})

	_, ok := <-ch
	assert.False(t, ok, "channel should be closed after unsubscribe")
}
