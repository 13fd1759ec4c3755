package agent

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/riftlabs/vpsagent/pkg/models"
)

// HistoryRecorder is the narrow slice of the Store port (C9) the dispatcher
// needs: append-only persistence for every command that actually reaches
// the remote host. Declared here rather than imported from internal/store
// so this package has no dependency on C9's concrete implementation.
type HistoryRecorder interface {
	AppendCommandHistory(ctx context.Context, entry *models.CommandHistory) error
}

// recordHistory builds and persists a CommandHistory row. Failures to
// persist are logged by the caller but never turn a successful command
// execution into a failed ToolResult — history is a side ledger, not part
// of the tool's contract with the LLM.
func recordHistory(ctx context.Context, recorder HistoryRecorder, userID, serverID, command, output string, exitCode int) error {
	if recorder == nil {
		return nil
	}
	entry := &models.CommandHistory{
		ID:          uuid.NewString(),
		UserID:      userID,
		VPSServerID: serverID,
		Command:     command,
		Output:      output,
		ExitCode:    exitCode,
		ExecutedAt:  time.Now(),
	}
	return recorder.AppendCommandHistory(ctx, entry)
}
