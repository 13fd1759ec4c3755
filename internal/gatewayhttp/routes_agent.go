package gatewayhttp

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/riftlabs/vpsagent/internal/agent"
	"github.com/riftlabs/vpsagent/internal/auth"
	"github.com/riftlabs/vpsagent/internal/streamsink"
	"github.com/riftlabs/vpsagent/internal/tools"
	"github.com/riftlabs/vpsagent/internal/tools/system"
	"github.com/riftlabs/vpsagent/pkg/models"
)

// chatRequest is POST /api/agent/chat's body, spec §6's opening row.
type chatRequest struct {
	Content        string              `json:"content"`
	ConversationID string              `json:"conversationId,omitempty"`
	ServerID       string              `json:"serverId"`
	Model          string              `json:"model,omitempty"`
	EnableThinking bool                `json:"enableThinking,omitempty"`
	EnableResearch bool                `json:"enableResearch,omitempty"`
	Attachments    []models.Attachment `json:"attachments,omitempty"`
}

// handleChat resolves the server connection, builds a tools.Session, and
// streams the Agent Loop's run over SSE. Per spec §5's suspension points,
// the whole request lifetime is one logical task — there is no background
// continuation once the handler returns.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST only")
		return
	}
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing session")
		return
	}

	var body chatRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(body.ServerID) == "" {
		writeError(w, http.StatusBadRequest, "serverId required")
		return
	}

	conn, err := s.deps.Resolver.Resolve(r.Context(), user.ID, body.ServerID)
	if err != nil {
		writeError(w, http.StatusNotFound, "server not found")
		return
	}

	sess := &tools.Session{
		ServerID:    body.ServerID,
		Conn:        conn,
		UserID:      user.ID,
		Store:       s.deps.Store,
		BackupVault: s.deps.BackupVault,
		APIKeyVault: s.deps.APIKeyVault,
	}
	req := &agent.Request{
		UserID:         user.ID,
		Content:        body.Content,
		ConversationID: body.ConversationID,
		ServerID:       body.ServerID,
		Model:          body.Model,
		EnableThinking: body.EnableThinking,
		EnableResearch: body.EnableResearch,
		Attachments:    body.Attachments,
	}

	sink := streamsink.New(w)
	defer sink.End()

	loop := agent.NewLoop(s.deps.Provider, s.deps.Catalog, s.deps.Dispatcher, s.deps.Store, s.researchPort(), s.githubPort())
	loop.SetTracer(s.deps.Tracer)
	if err := loop.Run(r.Context(), sess, req, sink); err != nil {
		_ = sink.Emit(map[string]any{"error": err.Error()})
	}
}

// researchPort adapts the possibly-nil *research.Gateway to
// agent.ResearchGateway: a nil Gateway means EnableResearch is ignored,
// per the Loop's own contract, so the gateway must pass a nil interface
// value, not a non-nil interface wrapping a nil pointer.
func (s *Server) researchPort() agent.ResearchGateway {
	if s.deps.Research == nil {
		return nil
	}
	return s.deps.Research
}

func (s *Server) githubPort() agent.GitHubContextProvider {
	return s.deps.Store
}

// approveRequest is POST /api/agent/approve's body. Per DESIGN.md's
// replay-safety resolution, this carries an opaque approvalId rather than
// the raw pending command string spec.md's literal signature names.
type approveRequest struct {
	ServerID   string `json:"serverId"`
	ApprovalID string `json:"approvalId"`
	Approved   bool   `json:"approved"`
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST only")
		return
	}
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing session")
		return
	}

	var body approveRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	conn, err := s.deps.Resolver.Resolve(r.Context(), user.ID, body.ServerID)
	if err != nil {
		writeError(w, http.StatusNotFound, "server not found")
		return
	}
	sess := &tools.Session{ServerID: body.ServerID, Conn: conn, UserID: user.ID, Store: s.deps.Store, BackupVault: s.deps.BackupVault, APIKeyVault: s.deps.APIKeyVault}

	result, err := s.deps.Dispatcher.Approve(r.Context(), sess, body.ApprovalID, body.Approved)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":  result.Success,
		"output":   result.Output,
		"stderr":   result.Error,
		"exitCode": result.Metadata["exit_code"],
	})
}

// handleTools answers GET /api/agent/tools: the catalog's
// {name, description} pairs plus category names, so the client can render
// a tool picker without hard-coding the catalog.
func (s *Server) handleTools(w http.ResponseWriter, r *http.Request) {
	type toolSummary struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	summaries := make([]toolSummary, 0, len(s.deps.Catalog))
	categories := map[string]bool{}
	for name, t := range s.deps.Catalog {
		summaries = append(summaries, toolSummary{Name: name, Description: t.Description()})
		if idx := strings.IndexByte(name, '_'); idx > 0 {
			categories[name[:idx]] = true
		}
	}
	categoryList := make([]string, 0, len(categories))
	for c := range categories {
		categoryList = append(categoryList, c)
	}
	writeJSON(w, http.StatusOK, map[string]any{"tools": summaries, "categories": categoryList})
}

// handleMonitor answers GET /api/agent/monitor/:serverId, backed directly
// by system.Metrics (SPEC_FULL §11).
func (s *Server) handleMonitor(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing session")
		return
	}
	serverID := strings.TrimPrefix(r.URL.Path, "/api/agent/monitor/")
	if serverID == "" {
		writeError(w, http.StatusBadRequest, "serverId required")
		return
	}

	conn, err := s.deps.Resolver.Resolve(r.Context(), user.ID, serverID)
	if err != nil {
		writeError(w, http.StatusNotFound, "server not found")
		return
	}
	sess := &tools.Session{ServerID: serverID, Conn: conn, UserID: user.ID, Store: s.deps.Store}

	snapshot, err := system.Metrics(r.Context(), sess)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}
