// Package tools defines the shared Tool contract, danger classification,
// and JSON-schema validation used by every executor family
// (filesystem, system, docker, webtls, backup, github). Concrete tools
// live in subpackages to avoid this package depending on any of them;
// internal/agent wires the two together when building the catalog.
package tools

import (
	"context"
	"encoding/json"

	"github.com/riftlabs/vpsagent/internal/sshexec"
	"github.com/riftlabs/vpsagent/pkg/models"
)

// Session is the per-call context every tool executes under: which server
// it targets, how to reach it over SSH, and a handle back to the Store for
// tools (GitHub) that need a user-scoped credential instead of SSH access.
type Session struct {
	ServerID    string
	Conn        sshexec.ServerConnection
	UserID      string
	Store       CredentialStore
	BackupVault CredentialDecryptor
	APIKeyVault CredentialDecryptor
}

// CredentialStore is the narrow slice of the Store port (C9) that tool
// families need: a per-user GitHub token, the BackupConfig rows for a
// server, and the ability to persist a newly defined one.
type CredentialStore interface {
	GitHubToken(ctx context.Context, userID string) (string, error)
	BackupConfigs(ctx context.Context, serverID string) ([]*models.BackupConfig, error)
	CreateBackupConfig(ctx context.Context, config *models.BackupConfig) error
}

// CredentialDecryptor is the narrow vault port the backup and github
// families use to turn a Store-persisted ciphertext (BackupConfig's
// EncryptedPassword, GitHubIntegration's EncryptedToken) into plaintext.
// It is its own interface, not folded into CredentialStore, because it's a
// cryptographic operation against a vault, not a Store read — Session
// carries one instance per vault (BackupVault, APIKeyVault) since each
// decrypts against a differently-keyed secret.
type CredentialDecryptor interface {
	DecryptString(serialized string) (string, error)
}

// Tool is the contract every executor family member implements, mirrored
// on the teacher's exec.ExecTool shape (Name/Description/Schema/Execute).
type Tool interface {
	Name() string
	Description() string
	Schema() json.RawMessage
	RequiresApproval(params json.RawMessage) bool
	Execute(ctx context.Context, sess *Session, params json.RawMessage) (*models.ToolResult, error)
}

// CommandPreviewer is implemented by tools whose execution reduces to a
// single remote command string. The Dispatcher calls PreviewCommand instead
// of Execute when RequiresApproval is true, so it can surface
// ToolResult.PendingCommand without touching the remote host; on later
// approval the same string is replayed verbatim through the SSH Executor.
type CommandPreviewer interface {
	PreviewCommand(ctx context.Context, sess *Session, params json.RawMessage) (string, error)
}

// ErrorResult builds a failed ToolResult from a message, the shape every
// family returns instead of a Go error so the agent loop can keep going.
func ErrorResult(message string) *models.ToolResult {
	return &models.ToolResult{Success: false, Error: message}
}

// TextResult builds a successful ToolResult from plain text.
func TextResult(output string) *models.ToolResult {
	return &models.ToolResult{Success: true, Output: output}
}

// JSONResult marshals v and builds a successful ToolResult from it,
// falling back to an error result if v cannot be marshaled.
func JSONResult(v interface{}) *models.ToolResult {
	payload, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return ErrorResult("encode result: " + err.Error())
	}
	return TextResult(string(payload))
}
