package gatewayhttp

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/riftlabs/vpsagent/internal/auth"
	"github.com/riftlabs/vpsagent/internal/orchestrator"
	"github.com/riftlabs/vpsagent/internal/streamsink"
)

// planRequest is POST /api/agent/tasks/plan's body.
type planRequest struct {
	Request  string `json:"request"`
	ServerID string `json:"serverId,omitempty"`
}

func (s *Server) handleTasksPlan(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST only")
		return
	}
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing session")
		return
	}

	var body planRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	serverInfo := ""
	if body.ServerID != "" {
		if server, err := s.deps.Resolver.Server(r.Context(), user.ID, body.ServerID); err == nil {
			serverInfo = server.Name + " (" + server.Host + ")"
		}
	}

	plan, err := s.deps.Orchestrator.PlanTask(r.Context(), body.Request, serverInfo)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"plan": plan})
}

// createTaskRequest is POST /api/agent/tasks's body.
type createTaskRequest struct {
	ServerID string            `json:"serverId"`
	Plan     *orchestrator.Plan `json:"plan"`
}

func (s *Server) handleTasksCreate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST only")
		return
	}
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing session")
		return
	}

	var body createTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Plan == nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	conn, err := s.deps.Resolver.Resolve(r.Context(), user.ID, body.ServerID)
	if err != nil {
		writeError(w, http.StatusNotFound, "server not found")
		return
	}

	task := s.deps.Orchestrator.CreateTask(user.ID, body.ServerID, conn, body.Plan)
	writeJSON(w, http.StatusCreated, map[string]any{"task": task})
}

// handleTaskSubroute dispatches every /api/agent/tasks/:id/... path: the
// single-segment actions (pause/resume/cancel) return {task} JSON directly;
// execute and rollback stream SSE task events instead, per spec §6's table.
func (s *Server) handleTaskSubroute(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST only")
		return
	}
	if _, ok := auth.UserFromContext(r.Context()); !ok {
		writeError(w, http.StatusUnauthorized, "missing session")
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/api/agent/tasks/")
	segments := strings.Split(strings.Trim(rest, "/"), "/")
	if len(segments) == 0 || segments[0] == "" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	taskID := segments[0]

	switch {
	case len(segments) == 2 && segments[1] == "execute":
		s.streamTaskAction(w, r, taskID, func() (*orchestrator.Task, error) {
			return s.deps.Orchestrator.ExecuteTask(r.Context(), taskID)
		})
	case len(segments) == 2 && segments[1] == "rollback":
		s.streamTaskAction(w, r, taskID, func() (*orchestrator.Task, error) {
			return s.deps.Orchestrator.RollbackTask(r.Context(), taskID)
		})
	case len(segments) == 4 && segments[1] == "steps" && segments[3] == "approve":
		stepID := segments[2]
		task, err := s.deps.Orchestrator.ApproveStep(r.Context(), taskID, stepID)
		s.writeTaskResult(w, task, err)
	case len(segments) == 2 && segments[1] == "pause":
		task, err := s.deps.Orchestrator.Pause(taskID)
		s.writeTaskResult(w, task, err)
	case len(segments) == 2 && segments[1] == "resume":
		s.streamTaskAction(w, r, taskID, func() (*orchestrator.Task, error) {
			return s.deps.Orchestrator.Resume(r.Context(), taskID)
		})
	case len(segments) == 2 && segments[1] == "cancel":
		task, err := s.deps.Orchestrator.Cancel(taskID)
		s.writeTaskResult(w, task, err)
	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

func (s *Server) writeTaskResult(w http.ResponseWriter, task *orchestrator.Task, err error) {
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"task": task})
}

// streamTaskAction subscribes to the orchestrator's event bus for taskID
// before kicking off action in a goroutine, then relays every published
// event as one SSE frame until action returns — the bus-subscribe-before-
// execute ordering is what guarantees no event published during execution
// is missed, since Publish only ever fans out to already-registered
// subscribers.
func (s *Server) streamTaskAction(w http.ResponseWriter, r *http.Request, taskID string, action func() (*orchestrator.Task, error)) {
	events, unsubscribe := s.deps.Orchestrator.Bus().Subscribe(taskID)
	defer unsubscribe()

	sink := streamsink.New(w)
	defer sink.End()

	type outcome struct {
		task *orchestrator.Task
		err  error
	}
	done := make(chan outcome, 1)
	go func() {
		task, err := action()
		done <- outcome{task, err}
	}()

	for {
		select {
		case ev := <-events:
			_ = sink.Emit(ev)
		case res := <-done:
			drainEvents(events, sink)
			if res.err != nil {
				_ = sink.Emit(map[string]any{"error": res.err.Error(), "done": true})
				return
			}
			_ = sink.Emit(map[string]any{"done": true, "task": res.task})
			return
		case <-r.Context().Done():
			return
		}
	}
}

// drainEvents flushes whatever is already buffered on events without
// blocking, so a burst of events published right before action returns
// isn't lost to the race between the done and events cases above.
func drainEvents(events <-chan orchestrator.Event, sink *streamsink.Sink) {
	for {
		select {
		case ev := <-events:
			_ = sink.Emit(ev)
		default:
			return
		}
	}
}
