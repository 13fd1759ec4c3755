package agent

import (
	"context"
	"log/slog"

	"github.com/riftlabs/vpsagent/internal/tools"
	"github.com/riftlabs/vpsagent/pkg/models"
)

// outputCap bounds what a tool result carries back to the LLM; the UI-facing
// preview is bounded separately by models.ToolResult.OutputPreview.
const outputCap = 50_000

// Dispatcher routes a named tool call to its handler, enforces the approval
// gate, and records history for anything that reaches the remote host. It
// is the sole caller of every internal/tools family's Execute method.
type Dispatcher struct {
	catalog   Catalog
	approvals *ApprovalStore
	history   HistoryRecorder
}

// NewDispatcher builds a Dispatcher over a catalog, an approval store, and
// the Store-backed history recorder. history may be nil in tests that don't
// care about the CommandHistory side ledger.
func NewDispatcher(catalog Catalog, approvals *ApprovalStore, history HistoryRecorder) *Dispatcher {
	return &Dispatcher{catalog: catalog, approvals: approvals, history: history}
}

// Dispatch implements spec §4.4's six-step contract: resolve, validate,
// gate on approval, execute, record history, bound output.
func (d *Dispatcher) Dispatch(ctx context.Context, toolName string, input []byte, sess *tools.Session) (*models.ToolResult, error) {
	tool, ok := d.catalog[toolName]
	if !ok {
		return nil, ErrToolUnknown
	}
	if err := tools.ValidateParams(tool.Schema(), input); err != nil {
		return nil, ErrToolBadInput
	}

	if tool.RequiresApproval(input) {
		return d.gate(ctx, tool, input, sess)
	}
	return d.run(ctx, tool, input, sess)
}

// gate short-circuits execution for a call the danger classifier or a
// handler's intrinsic rules flagged, surfacing a PendingApproval the client
// must resolve via Approve before anything touches the remote host.
func (d *Dispatcher) gate(ctx context.Context, tool tools.Tool, input []byte, sess *tools.Session) (*models.ToolResult, error) {
	message := "this action requires approval before it will run on " + sess.ServerID
	command := ""
	if previewer, ok := tool.(tools.CommandPreviewer); ok {
		preview, err := previewer.PreviewCommand(ctx, sess, input)
		if err != nil {
			return tools.ErrorResult(err.Error()), nil
		}
		command = preview
	}

	pa := d.approvals.Create(sess.ServerID, tool.Name(), command, message, input)
	return &models.ToolResult{
		Success:          false,
		RequiresApproval: true,
		PendingCommand:   command,
		ApprovalID:       pa.ID,
		Error:            message,
	}, nil
}

// Approve resolves a pending approval by id. Approved calls replay the
// handler's Execute exactly as originally constructed; rejected calls never
// touch the remote host.
func (d *Dispatcher) Approve(ctx context.Context, sess *tools.Session, approvalID string, approved bool) (*models.ToolResult, error) {
	pa, ok := d.approvals.Take(approvalID)
	if !ok {
		return nil, ErrApprovalNotFound
	}
	if !approved {
		return &models.ToolResult{Success: true, Output: "Command rejected"}, nil
	}

	tool, ok := d.catalog[pa.ToolName]
	if !ok {
		return nil, ErrToolUnknown
	}
	return d.run(ctx, tool, pa.Input, sess)
}

// run executes a cleared tool call and records history for the command
// string the handler actually ran, when it exposes one via CommandPreviewer.
// Handlers without a single command string (GitHub's HTTPS calls) simply
// produce no history row — there is no remote host command to log.
func (d *Dispatcher) run(ctx context.Context, tool tools.Tool, input []byte, sess *tools.Session) (*models.ToolResult, error) {
	result, err := tool.Execute(ctx, sess, input)
	if err != nil {
		return nil, err
	}

	result.Output = truncate(result.Output, outputCap)

	if previewer, ok := tool.(tools.CommandPreviewer); ok {
		command, previewErr := previewer.PreviewCommand(ctx, sess, input)
		if previewErr == nil && command != "" {
			exitCode, _ := result.Metadata["exit_code"].(int)
			if err := recordHistory(ctx, d.history, sess.UserID, sess.ServerID, command, result.Output, exitCode); err != nil {
				slog.Warn("record command history", "tool", tool.Name(), "error", err)
			}
		}
	}

	return result, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
