package research

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResearchReturnsEmptyOnMissingAPIKey(t *testing.T) {
	g := New(Config{}, nil)

	answer, citations := g.Research(context.Background(), "what is the uptime of a typical VPS")
	assert.Empty(t, answer)
	assert.Nil(t, citations)
}

func TestResearchReturnsEmptyOnBlankQuery(t *testing.T) {
	g := New(Config{APIKey: "pplx-test-key"}, nil)

	answer, citations := g.Research(context.Background(), "   ")
	assert.Empty(t, answer)
	assert.Nil(t, citations)
}

func TestNewDefaultsModel(t *testing.T) {
	g := New(Config{}, nil)
	assert.Equal(t, defaultModel, g.model)
}

func TestNewHonorsConfiguredModel(t *testing.T) {
	g := New(Config{Model: "sonar-pro"}, nil)
	assert.Equal(t, "sonar-pro", g.model)
}

func TestExtractCitationsFindsURLs(t *testing.T) {
	answer := "Nginx reloads config without downtime [1](https://nginx.org/en/docs/) and logs to /var/log/nginx. " +
		"See also https://nginx.org/en/docs/, control/process.html for details."
	got := extractCitations(answer)
	require.Len(t, got, 1)
	assert.Equal(t, "https://nginx.org/en/docs/", got[0])
}

func TestExtractCitationsReturnsNilWithoutURLs(t *testing.T) {
	assert.Nil(t, extractCitations("no links in this answer at all"))
}

func TestExtractCitationsDeduplicates(t *testing.T) {
	answer := "https://example.com/a and again https://example.com/a"
	got := extractCitations(answer)
	assert.Len(t, got, 1)
}
