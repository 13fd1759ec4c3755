package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riftlabs/vpsagent/pkg/models"
)

func TestMemoryCreateAndGetUser(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	user := &models.User{Email: "Ops@Example.com", Name: "Ops"}
	require.NoError(t, m.CreateUser(ctx, user))
	assert.NotEmpty(t, user.ID)

	byID, err := m.GetUser(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ops@Example.com", byID.Email)

	byEmail, err := m.GetUserByEmail(ctx, "ops@example.com")
	require.NoError(t, err)
	assert.Equal(t, user.ID, byEmail.ID)
}

func TestMemoryGetUserNotFound(t *testing.T) {
	m := NewMemory()
	_, err := m.GetUser(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryOTPConsumeOnce(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	otp := &models.OTP{Email: "a@b.com", Code: "123456"}
	require.NoError(t, m.CreateOTP(ctx, otp))
	assert.False(t, otp.ExpiresAt.IsZero())

	consumed, err := m.ConsumeOTP(ctx, "a@b.com", "123456")
	require.NoError(t, err)
	assert.NotNil(t, consumed.ConsumedAt)

	_, err = m.ConsumeOTP(ctx, "a@b.com", "123456")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryOTPRejectsExpired(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	otp := &models.OTP{Email: "a@b.com", Code: "999999", ExpiresAt: time.Now().Add(-time.Minute)}
	require.NoError(t, m.CreateOTP(ctx, otp))

	_, err := m.ConsumeOTP(ctx, "a@b.com", "999999")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryOTPRejectsWrongCode(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	require.NoError(t, m.CreateOTP(ctx, &models.OTP{Email: "a@b.com", Code: "111111"}))

	_, err := m.ConsumeOTP(ctx, "a@b.com", "222222")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryServerCRUD(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	server := &models.Server{UserID: "u1", Name: "web-1", Host: "1.2.3.4"}
	require.NoError(t, m.CreateServer(ctx, server))
	require.NotEmpty(t, server.ID)

	got, err := m.GetServer(ctx, server.ID)
	require.NoError(t, err)
	assert.Equal(t, "web-1", got.Name)

	list, err := m.ListServers(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, list, 1)

	got.Name = "web-1-renamed"
	require.NoError(t, m.UpdateServer(ctx, got))
	reGot, err := m.GetServer(ctx, server.ID)
	require.NoError(t, err)
	assert.Equal(t, "web-1-renamed", reGot.Name)

	require.NoError(t, m.DeleteServer(ctx, server.ID))
	_, err = m.GetServer(ctx, server.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryServerCloneIsDefensive(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	server := &models.Server{UserID: "u1", Name: "original"}
	require.NoError(t, m.CreateServer(ctx, server))

	got, err := m.GetServer(ctx, server.ID)
	require.NoError(t, err)
	got.Name = "mutated"

	reGot, err := m.GetServer(ctx, server.ID)
	require.NoError(t, err)
	assert.Equal(t, "original", reGot.Name)
}

func TestMemoryGetOrCreateConversationCreatesThenReuses(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	c, err := m.GetOrCreateConversation(ctx, "u1", "s1", "")
	require.NoError(t, err)
	require.NotEmpty(t, c.ID)

	again, err := m.GetOrCreateConversation(ctx, "u1", "s1", c.ID)
	require.NoError(t, err)
	assert.Equal(t, c.ID, again.ID)
}

func TestMemoryMessagesAppendAndList(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	c, err := m.GetOrCreateConversation(ctx, "u1", "s1", "")
	require.NoError(t, err)

	require.NoError(t, m.AppendMessage(ctx, &models.Message{ConversationID: c.ID, Role: models.RoleUser, Content: "hi"}))
	require.NoError(t, m.AppendMessage(ctx, &models.Message{ConversationID: c.ID, Role: models.RoleAssistant, Content: "hello"}))

	msgs, err := m.ListMessages(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "hi", msgs[0].Content)
}

func TestMemoryConversationSummaries(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	require.NoError(t, m.AppendConversationSummary(ctx, &models.ConversationSummary{ConversationID: "c1", Summary: "did stuff"}))

	summaries, err := m.ListConversationSummaries(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, "did stuff", summaries[0].Summary)
}

func TestMemoryCommandHistoryOrderAndCap(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	for i := 0; i < maxHistoryPerServer+5; i++ {
		require.NoError(t, m.AppendCommandHistory(ctx, &models.CommandHistory{VPSServerID: "s1", Command: "ls"}))
	}

	recent, err := m.RecentCommands(ctx, "s1", 10)
	require.NoError(t, err)
	assert.Len(t, recent, 10)

	all, err := m.RecentCommands(ctx, "s1", 0)
	require.NoError(t, err)
	assert.Len(t, all, maxHistoryPerServer)
}

func TestMemoryGitHubIntegrationRoundTrip(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.UpsertGitHubIntegration(ctx, &models.GitHubIntegration{
		UserID: "u1", RepoURL: "https://github.com/acme/app", Branch: "main", EncryptedToken: "enc:tok",
	}))

	token, err := m.GitHubToken(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "enc:tok", token)

	repoURL, branch, ok := m.GitHubContext(ctx, "u1")
	assert.True(t, ok)
	assert.Equal(t, "https://github.com/acme/app", repoURL)
	assert.Equal(t, "main", branch)

	require.NoError(t, m.DeleteGitHubIntegration(ctx, "u1"))
	_, _, ok = m.GitHubContext(ctx, "u1")
	assert.False(t, ok)
}

func TestMemoryGitHubContextFalseWhenUnset(t *testing.T) {
	m := NewMemory()
	_, _, ok := m.GitHubContext(context.Background(), "nobody")
	assert.False(t, ok)
}

func TestMemoryBackupConfigsListAndGet(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	cfg := &models.BackupConfig{Name: "nightly", VPSServerID: "s1", RepositoryType: models.RepoS3}
	require.NoError(t, m.CreateBackupConfig(ctx, cfg))
	require.NotEmpty(t, cfg.ID)

	list, err := m.BackupConfigs(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, list, 1)

	got, err := m.GetBackupConfig(ctx, cfg.ID)
	require.NoError(t, err)
	assert.Equal(t, "nightly", got.Name)
}

func TestMemoryAppendApiUsage(t *testing.T) {
	m := NewMemory()
	err := m.AppendApiUsage(context.Background(), &models.ApiUsage{UserID: "u1", Model: "claude-opus-4", InputTokens: 10, OutputTokens: 20})
	require.NoError(t, err)
	require.Len(t, m.usage, 1)
	assert.Equal(t, 10, m.usage[0].InputTokens)
}

func TestMemoryRecordResearchUsageAppendsRow(t *testing.T) {
	m := NewMemory()
	m.RecordResearchUsage(context.Background(), "u1", "sonar", 5, 7)
	require.Len(t, m.usage, 1)
	assert.Equal(t, "sonar", m.usage[0].Model)
	assert.Equal(t, 12, m.usage[0].TotalTokens)
}
