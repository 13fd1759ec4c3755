package agent

import (
	"context"

	"github.com/riftlabs/vpsagent/internal/tools"
	"github.com/riftlabs/vpsagent/pkg/models"
)

// ConversationStore is the narrow slice of the Store port (C9) the loop
// needs: conversation/message persistence, summary bookkeeping, the usage
// ledger, and the bits of server/history state the system prompt quotes.
// Declared here rather than imported from internal/store, same as
// HistoryRecorder in C4 — the eventual Store type satisfies this
// structurally.
type ConversationStore interface {
	GetOrCreateConversation(ctx context.Context, userID, serverID, conversationID string) (*models.Conversation, error)
	ListMessages(ctx context.Context, conversationID string) ([]models.Message, error)
	AppendMessage(ctx context.Context, msg *models.Message) error

	ListConversationSummaries(ctx context.Context, conversationID string) ([]models.ConversationSummary, error)
	AppendConversationSummary(ctx context.Context, summary *models.ConversationSummary) error

	AppendApiUsage(ctx context.Context, usage *models.ApiUsage) error

	GetServer(ctx context.Context, serverID string) (*models.Server, error)
	RecentCommands(ctx context.Context, serverID string, limit int) ([]models.CommandHistory, error)
}

// GitHubContextProvider supplies the repo/branch line the system prompt
// quotes when a server has a linked GitHub integration. Optional: a nil
// provider just means the prompt omits that section.
type GitHubContextProvider interface {
	GitHubContext(ctx context.Context, userID string) (repoURL, branch string, ok bool)
}

// ResearchGateway is the narrow port onto the Research Gateway (C8) the
// loop calls when a request sets enableResearch. Per spec §4.8 it never
// errors out to the caller — a missing key or failed call surfaces as an
// empty answer with no citations.
type ResearchGateway interface {
	Research(ctx context.Context, query string) (answer string, citations []string)
}

// Emitter is the narrow port onto the Stream Sink (C10) the loop streams
// events through. Each call is one JSON frame.
type Emitter interface {
	Emit(event any) error
}

// ToolDispatcher is the one-method slice of *Dispatcher the loop calls
// through. Declared as an interface (rather than the loop holding a
// concrete *Dispatcher) so tests can drive Run without a real Catalog/SSH
// Executor behind it; *Dispatcher satisfies this structurally.
type ToolDispatcher interface {
	Dispatch(ctx context.Context, toolName string, input []byte, sess *tools.Session) (*models.ToolResult, error)
}
