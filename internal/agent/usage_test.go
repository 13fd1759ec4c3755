package agent

import (
	"context"
	"testing"

	"github.com/riftlabs/vpsagent/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEstimatedCostSonnetPricing(t *testing.T) {
	cost := estimatedCost("claude-sonnet-4-20250514", 1_000_000, 1_000_000)
	assert.Equal(t, "18.000000", cost)
}

func TestEstimatedCostOpusPricing(t *testing.T) {
	cost := estimatedCost("claude-opus-4-20250514", 1_000_000, 0)
	assert.Equal(t, "15.000000", cost)
}

func TestEstimatedCostPerplexityFlatRate(t *testing.T) {
	cost := estimatedCost("sonar-small-online", 500_000, 500_000)
	assert.Equal(t, "0.200000", cost)
}

func TestEstimatedCostUnknownModelFallsBackToSonnet(t *testing.T) {
	cost := estimatedCost("some-future-model", 1_000_000, 0)
	assert.Equal(t, "3.000000", cost)
}

type fakeUsageStore struct {
	appended []*models.ApiUsage
}

func (f *fakeUsageStore) GetOrCreateConversation(context.Context, string, string, string) (*models.Conversation, error) {
	return nil, nil
}
func (f *fakeUsageStore) ListMessages(context.Context, string) ([]models.Message, error) { return nil, nil }
func (f *fakeUsageStore) AppendMessage(context.Context, *models.Message) error           { return nil }
func (f *fakeUsageStore) ListConversationSummaries(context.Context, string) ([]models.ConversationSummary, error) {
	return nil, nil
}
func (f *fakeUsageStore) AppendConversationSummary(context.Context, *models.ConversationSummary) error {
	return nil
}
func (f *fakeUsageStore) AppendApiUsage(_ context.Context, usage *models.ApiUsage) error {
	f.appended = append(f.appended, usage)
	return nil
}
func (f *fakeUsageStore) GetServer(context.Context, string) (*models.Server, error) { return nil, nil }
func (f *fakeUsageStore) RecentCommands(context.Context, string, int) ([]models.CommandHistory, error) {
	return nil, nil
}

func TestRecordUsagePersistsLedgerRow(t *testing.T) {
	store := &fakeUsageStore{}
	err := recordUsage(context.Background(), store, "user-1", "conv-1", "claude-sonnet-4-20250514", 1000, 500)
	require.NoError(t, err)
	require.Len(t, store.appended, 1)
	assert.Equal(t, "user-1", store.appended[0].UserID)
	assert.Equal(t, 1500, store.appended[0].TotalTokens)
}

func TestRecordUsageToleratesNilStore(t *testing.T) {
	err := recordUsage(context.Background(), nil, "user-1", "conv-1", "claude-sonnet-4-20250514", 1000, 500)
	assert.NoError(t, err)
}
