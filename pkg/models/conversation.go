package models

import "time"

// ConversationMode selects the conversational behavior for a Conversation.
type ConversationMode string

const (
	ModeChat      ConversationMode = "chat"
	ModeAgent     ConversationMode = "agent"
	ModeTesting   ConversationMode = "testing"
	ModeDebug     ConversationMode = "debug"
	ModeArchitect ConversationMode = "architect"
	ModePlan      ConversationMode = "plan"
	ModeSupport   ConversationMode = "support"
)

// Conversation is a thread of Messages, optionally scoped to a Server.
type Conversation struct {
	ID           string           `json:"id"`
	UserID       string           `json:"user_id"`
	VPSServerID  string           `json:"vps_server_id,omitempty"`
	Title        string           `json:"title"`
	Mode         ConversationMode `json:"mode"`
	ParentID     string           `json:"parent_conversation_id,omitempty"`
	ContextSummary string         `json:"context_summary,omitempty"`
	ArchiveURL   string           `json:"archive_url,omitempty"`
	ArchivedAt   *time.Time       `json:"archived_at,omitempty"`
	IsActive     bool             `json:"is_active"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

// Archive marks the conversation inactive and records the archive location.
func (c *Conversation) Archive(archiveURL string) {
	now := time.Now()
	c.IsActive = false
	c.ArchiveURL = archiveURL
	c.ArchivedAt = &now
	c.UpdatedAt = now
}

// Fork creates a child conversation carrying over the context summary, per
// the fork-chain lifecycle in the data model.
func (c *Conversation) Fork(newID string, now time.Time) *Conversation {
	return &Conversation{
		ID:             newID,
		UserID:         c.UserID,
		VPSServerID:    c.VPSServerID,
		Title:          c.Title,
		Mode:           c.Mode,
		ParentID:       c.ID,
		ContextSummary: c.ContextSummary,
		IsActive:       true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// Role indicates the message author type.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// MessageMetadata carries the small set of auxiliary fields the UI needs.
type MessageMetadata struct {
	Mode             string   `json:"mode,omitempty"`
	ToolsUsed        []string `json:"tools_used,omitempty"`
	ThinkingPresent  bool     `json:"thinking_present,omitempty"`
	PendingApproval  bool     `json:"pending_approval,omitempty"`
	Iterations       int      `json:"iterations,omitempty"`
}

// Attachment is a file or media reference attached to a Message.
type Attachment struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	URL      string `json:"url"`
	Filename string `json:"filename,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
	Size     int64  `json:"size,omitempty"`
}

// Message is one entry in a Conversation's totally-ordered history.
type Message struct {
	ID             string           `json:"id"`
	ConversationID string           `json:"conversation_id"`
	Role           Role             `json:"role"`
	Content        string           `json:"content"`
	Attachments    []Attachment     `json:"attachments,omitempty"`
	Metadata       *MessageMetadata `json:"metadata,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
}

// ConversationSummary is an append-only compression record produced when
// live history exceeds the agent loop's threshold.
type ConversationSummary struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Summary        string    `json:"summary"`
	MessageRange   string    `json:"message_range"`
	TokenCount     int       `json:"token_count"`
	CreatedAt      time.Time `json:"created_at"`
}

// CommandHistory is an append-only ledger of commands executed against a
// server, used to seed future LLM context.
type CommandHistory struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	VPSServerID string    `json:"vps_server_id"`
	Command     string    `json:"command"`
	Output      string    `json:"output"`
	ExitCode    int       `json:"exit_code"`
	ExecutedAt  time.Time `json:"executed_at"`
}
