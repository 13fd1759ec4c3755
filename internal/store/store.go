// Package store implements the Store Port (C9): the single persistence
// boundary every other component reaches through. Nothing outside this
// package talks to a database directly.
//
// The Store interface is declared here, once, as the concrete counterpart
// to the narrow ports internal/tools, internal/agent, and internal/orchestrator
// each declare independently (tools.CredentialStore, agent.ConversationStore,
// agent.HistoryRecorder) — *Memory and *Postgres satisfy all three
// structurally, the same implicit-interface convention used throughout this
// module.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/riftlabs/vpsagent/pkg/models"
)

// ErrStoreUnavailable is returned when the backing store cannot be reached
// at all (connection failure, context deadline) — distinct from ErrNotFound,
// which means the store was reachable but the row does not exist.
var (
	ErrStoreUnavailable = errors.New("store: unavailable")
	ErrNotFound         = errors.New("store: not found")
)

// Store is the full persistence surface spec §4.9 names. Individual
// components depend on narrower interfaces (tools.CredentialStore,
// agent.ConversationStore, agent.HistoryRecorder) rather than this one, so
// this type exists mainly as the thing that gets constructed in C13's
// bootstrap and handed out to each of them.
type Store interface {
	// Users
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUser(ctx context.Context, id string) (*models.User, error)
	CreateUser(ctx context.Context, user *models.User) error

	// OTP
	CreateOTP(ctx context.Context, otp *models.OTP) error
	ConsumeOTP(ctx context.Context, email, code string) (*models.OTP, error)

	// Servers
	CreateServer(ctx context.Context, server *models.Server) error
	GetServer(ctx context.Context, serverID string) (*models.Server, error)
	ListServers(ctx context.Context, userID string) ([]*models.Server, error)
	UpdateServer(ctx context.Context, server *models.Server) error
	DeleteServer(ctx context.Context, serverID string) error

	// Conversations
	GetOrCreateConversation(ctx context.Context, userID, serverID, conversationID string) (*models.Conversation, error)
	GetConversation(ctx context.Context, conversationID string) (*models.Conversation, error)
	ListConversations(ctx context.Context, userID string) ([]*models.Conversation, error)
	UpdateConversation(ctx context.Context, conversation *models.Conversation) error

	// Messages
	ListMessages(ctx context.Context, conversationID string) ([]models.Message, error)
	AppendMessage(ctx context.Context, msg *models.Message) error

	// Conversation summaries
	ListConversationSummaries(ctx context.Context, conversationID string) ([]models.ConversationSummary, error)
	AppendConversationSummary(ctx context.Context, summary *models.ConversationSummary) error

	// Command history
	AppendCommandHistory(ctx context.Context, entry *models.CommandHistory) error
	RecentCommands(ctx context.Context, serverID string, limit int) ([]models.CommandHistory, error)

	// GitHub integration
	GetGitHubIntegration(ctx context.Context, userID string) (*models.GitHubIntegration, error)
	UpsertGitHubIntegration(ctx context.Context, integration *models.GitHubIntegration) error
	DeleteGitHubIntegration(ctx context.Context, userID string) error
	GitHubToken(ctx context.Context, userID string) (string, error)
	GitHubContext(ctx context.Context, userID string) (repoURL, branch string, ok bool)

	// Backup configs. BackupConfigs is named to match tools.CredentialStore
	// verbatim; it is the same "list backup configs" operation spec §4.9 names.
	BackupConfigs(ctx context.Context, serverID string) ([]*models.BackupConfig, error)
	GetBackupConfig(ctx context.Context, id string) (*models.BackupConfig, error)
	CreateBackupConfig(ctx context.Context, config *models.BackupConfig) error
	ListScheduledBackupConfigs(ctx context.Context) ([]*models.BackupConfig, error)

	// Usage
	AppendApiUsage(ctx context.Context, usage *models.ApiUsage) error
}

// otpTTL is how long a freshly issued OTP remains valid. No teacher or
// example-pack precedent exists for magic-link/OTP auth; this value and the
// ConsumeOTP semantics below are a fresh design, flagged in DESIGN.md.
const otpTTL = 10 * time.Minute
