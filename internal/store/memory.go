package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/riftlabs/vpsagent/pkg/models"
)

// Memory is the default Store implementation: everything lives in process
// memory behind a single mutex, cloned on every read and write so callers
// can never mutate shared state through a returned pointer. Grounded on the
// teacher's jobs.MemoryStore (internal/jobs/store.go) map-plus-keys-slice
// shape, repeated here per collection.
type Memory struct {
	mu sync.RWMutex

	usersByID    map[string]*models.User
	usersByEmail map[string]string // email -> id

	otps map[string]*models.OTP // id -> otp

	servers map[string]*models.Server

	conversations map[string]*models.Conversation
	messages      map[string][]models.Message             // conversationID -> messages
	summaries     map[string][]models.ConversationSummary // conversationID -> summaries

	history map[string][]models.CommandHistory // serverID -> history, newest last

	githubByUser map[string]*models.GitHubIntegration

	backupConfigs map[string][]*models.BackupConfig // serverID -> configs

	usage []models.ApiUsage
}

// NewMemory constructs an empty in-memory Store.
func NewMemory() *Memory {
	return &Memory{
		usersByID:     make(map[string]*models.User),
		usersByEmail:  make(map[string]string),
		otps:          make(map[string]*models.OTP),
		servers:       make(map[string]*models.Server),
		conversations: make(map[string]*models.Conversation),
		messages:      make(map[string][]models.Message),
		summaries:     make(map[string][]models.ConversationSummary),
		history:       make(map[string][]models.CommandHistory),
		githubByUser:  make(map[string]*models.GitHubIntegration),
		backupConfigs: make(map[string][]*models.BackupConfig),
	}
}

// --- Users ---

func (m *Memory) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.usersByEmail[strings.ToLower(email)]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneUser(m.usersByID[id]), nil
}

func (m *Memory) GetUser(ctx context.Context, id string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.usersByID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneUser(u), nil
}

func (m *Memory) CreateUser(ctx context.Context, user *models.User) error {
	if user == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	now := time.Now()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now
	m.usersByID[user.ID] = cloneUser(user)
	m.usersByEmail[strings.ToLower(user.Email)] = user.ID
	return nil
}

// --- OTP ---

// CreateOTP stores otp, defaulting ExpiresAt to otpTTL from now when unset.
func (m *Memory) CreateOTP(ctx context.Context, otp *models.OTP) error {
	if otp == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if otp.ID == "" {
		otp.ID = uuid.NewString()
	}
	if otp.CreatedAt.IsZero() {
		otp.CreatedAt = time.Now()
	}
	if otp.ExpiresAt.IsZero() {
		otp.ExpiresAt = otp.CreatedAt.Add(otpTTL)
	}
	clone := *otp
	m.otps[clone.ID] = &clone
	return nil
}

// ConsumeOTP looks up the most recent unconsumed, unexpired OTP for email
// matching code, marks it consumed, and returns it. A second call with the
// same code fails — the whole point of a one-time code.
func (m *Memory) ConsumeOTP(ctx context.Context, email, code string) (*models.OTP, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	var match *models.OTP
	for _, otp := range m.otps {
		if !strings.EqualFold(otp.Email, email) || otp.Code != code {
			continue
		}
		if otp.ConsumedAt != nil || now.After(otp.ExpiresAt) {
			continue
		}
		if match == nil || otp.CreatedAt.After(match.CreatedAt) {
			match = otp
		}
	}
	if match == nil {
		return nil, ErrNotFound
	}
	match.ConsumedAt = &now
	clone := *match
	return &clone, nil
}

// --- Servers ---

func (m *Memory) CreateServer(ctx context.Context, server *models.Server) error {
	if server == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if server.ID == "" {
		server.ID = uuid.NewString()
	}
	m.servers[server.ID] = cloneServer(server)
	return nil
}

func (m *Memory) GetServer(ctx context.Context, serverID string) (*models.Server, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.servers[serverID]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneServer(s), nil
}

func (m *Memory) ListServers(ctx context.Context, userID string) ([]*models.Server, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*models.Server
	for _, s := range m.servers {
		if s.UserID == userID {
			out = append(out, cloneServer(s))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) UpdateServer(ctx context.Context, server *models.Server) error {
	if server == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.servers[server.ID]; !ok {
		return ErrNotFound
	}
	m.servers[server.ID] = cloneServer(server)
	return nil
}

func (m *Memory) DeleteServer(ctx context.Context, serverID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.servers[serverID]; !ok {
		return ErrNotFound
	}
	delete(m.servers, serverID)
	return nil
}

// --- Conversations ---

func (m *Memory) GetOrCreateConversation(ctx context.Context, userID, serverID, conversationID string) (*models.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if conversationID != "" {
		if c, ok := m.conversations[conversationID]; ok {
			return cloneConversation(c), nil
		}
	}

	now := time.Now()
	c := &models.Conversation{
		ID:          uuid.NewString(),
		UserID:      userID,
		VPSServerID: serverID,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if conversationID != "" {
		c.ID = conversationID
	}
	m.conversations[c.ID] = cloneConversation(c)
	return cloneConversation(c), nil
}

func (m *Memory) GetConversation(ctx context.Context, conversationID string) (*models.Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.conversations[conversationID]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneConversation(c), nil
}

func (m *Memory) ListConversations(ctx context.Context, userID string) ([]*models.Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*models.Conversation
	for _, c := range m.conversations {
		if c.UserID == userID {
			out = append(out, cloneConversation(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) UpdateConversation(ctx context.Context, conversation *models.Conversation) error {
	if conversation == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.conversations[conversation.ID]; !ok {
		return ErrNotFound
	}
	conversation.UpdatedAt = time.Now()
	m.conversations[conversation.ID] = cloneConversation(conversation)
	return nil
}

// --- Messages ---

func (m *Memory) ListMessages(ctx context.Context, conversationID string) ([]models.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	msgs := m.messages[conversationID]
	out := make([]models.Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

func (m *Memory) AppendMessage(ctx context.Context, msg *models.Message) error {
	if msg == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	m.messages[msg.ConversationID] = append(m.messages[msg.ConversationID], *msg)
	return nil
}

// --- Conversation summaries ---

func (m *Memory) ListConversationSummaries(ctx context.Context, conversationID string) ([]models.ConversationSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := m.summaries[conversationID]
	out := make([]models.ConversationSummary, len(s))
	copy(out, s)
	return out, nil
}

func (m *Memory) AppendConversationSummary(ctx context.Context, summary *models.ConversationSummary) error {
	if summary == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if summary.ID == "" {
		summary.ID = uuid.NewString()
	}
	if summary.CreatedAt.IsZero() {
		summary.CreatedAt = time.Now()
	}
	m.summaries[summary.ConversationID] = append(m.summaries[summary.ConversationID], *summary)
	return nil
}

// --- Command history ---

const maxHistoryPerServer = 500

func (m *Memory) AppendCommandHistory(ctx context.Context, entry *models.CommandHistory) error {
	if entry == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.ExecutedAt.IsZero() {
		entry.ExecutedAt = time.Now()
	}
	list := append(m.history[entry.VPSServerID], *entry)
	if len(list) > maxHistoryPerServer {
		list = list[len(list)-maxHistoryPerServer:]
	}
	m.history[entry.VPSServerID] = list
	return nil
}

func (m *Memory) RecentCommands(ctx context.Context, serverID string, limit int) ([]models.CommandHistory, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	list := m.history[serverID]
	if limit <= 0 || limit > len(list) {
		limit = len(list)
	}
	start := len(list) - limit
	out := make([]models.CommandHistory, limit)
	copy(out, list[start:])
	return out, nil
}

// --- GitHub integration ---

func (m *Memory) GetGitHubIntegration(ctx context.Context, userID string) (*models.GitHubIntegration, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.githubByUser[userID]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *g
	return &clone, nil
}

func (m *Memory) UpsertGitHubIntegration(ctx context.Context, integration *models.GitHubIntegration) error {
	if integration == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	if integration.ID == "" {
		integration.ID = uuid.NewString()
		integration.CreatedAt = now
	}
	integration.UpdatedAt = now
	clone := *integration
	m.githubByUser[integration.UserID] = &clone
	return nil
}

func (m *Memory) DeleteGitHubIntegration(ctx context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.githubByUser[userID]; !ok {
		return ErrNotFound
	}
	delete(m.githubByUser, userID)
	return nil
}

// GitHubToken satisfies tools.CredentialStore. The teacher's credential
// layer decrypts at the vault boundary; here the integration's token is
// treated the same way — EncryptedToken is handed back verbatim and
// decryption is the caller's job via the Vault (C1), same split as
// Server.EncryptedCredential.
func (m *Memory) GitHubToken(ctx context.Context, userID string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.githubByUser[userID]
	if !ok {
		return "", nil
	}
	return g.EncryptedToken, nil
}

// GitHubContext satisfies agent.GitHubContextProvider.
func (m *Memory) GitHubContext(ctx context.Context, userID string) (repoURL, branch string, ok bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, found := m.githubByUser[userID]
	if !found || g.RepoURL == "" {
		return "", "", false
	}
	return g.RepoURL, g.Branch, true
}

// --- Backup configs ---

func (m *Memory) BackupConfigs(ctx context.Context, serverID string) ([]*models.BackupConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	list := m.backupConfigs[serverID]
	out := make([]*models.BackupConfig, len(list))
	for i, c := range list {
		clone := *c
		out[i] = &clone
	}
	return out, nil
}

func (m *Memory) ListScheduledBackupConfigs(ctx context.Context) ([]*models.BackupConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*models.BackupConfig
	for _, list := range m.backupConfigs {
		for _, c := range list {
			if c.Schedule != "" {
				clone := *c
				out = append(out, &clone)
			}
		}
	}
	return out, nil
}

func (m *Memory) GetBackupConfig(ctx context.Context, id string) (*models.BackupConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, list := range m.backupConfigs {
		for _, c := range list {
			if c.ID == id {
				clone := *c
				return &clone, nil
			}
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) CreateBackupConfig(ctx context.Context, config *models.BackupConfig) error {
	if config == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if config.ID == "" {
		config.ID = uuid.NewString()
	}
	clone := *config
	m.backupConfigs[config.VPSServerID] = append(m.backupConfigs[config.VPSServerID], &clone)
	return nil
}

// --- Usage ---

func (m *Memory) AppendApiUsage(ctx context.Context, usage *models.ApiUsage) error {
	if usage == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if usage.ID == "" {
		usage.ID = uuid.NewString()
	}
	if usage.CreatedAt.IsZero() {
		usage.CreatedAt = time.Now()
	}
	m.usage = append(m.usage, *usage)
	return nil
}

// RecordResearchUsage implements research.UsageRecorder by appending an
// ApiUsage row under the research model id, the same ledger AppendApiUsage
// writes to for chat turns. Errors are swallowed (logged nowhere, since
// there is nowhere to report them from this signature) rather than
// propagated, matching the Research Gateway's own "never errors to the
// caller" contract.
func (m *Memory) RecordResearchUsage(ctx context.Context, userID, model string, inputTokens, outputTokens int) {
	_ = m.AppendApiUsage(ctx, &models.ApiUsage{
		UserID:       userID,
		Model:        model,
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		TotalTokens:  inputTokens + outputTokens,
	})
}

func cloneUser(u *models.User) *models.User {
	if u == nil {
		return nil
	}
	clone := *u
	return &clone
}

func cloneServer(s *models.Server) *models.Server {
	if s == nil {
		return nil
	}
	clone := *s
	if s.LastConnectedAt != nil {
		t := *s.LastConnectedAt
		clone.LastConnectedAt = &t
	}
	return &clone
}

func cloneConversation(c *models.Conversation) *models.Conversation {
	if c == nil {
		return nil
	}
	clone := *c
	if c.ArchivedAt != nil {
		t := *c.ArchivedAt
		clone.ArchivedAt = &t
	}
	return &clone
}
