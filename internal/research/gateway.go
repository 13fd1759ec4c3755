// Package research implements the Research Gateway (C8): an adapter to an
// external web-search completion API (Perplexity's Sonar models), reached
// through the OpenAI-wire-compatible endpoint Perplexity exposes — the same
// trick the teacher's OpenRouterProvider uses to reach a different backend
// through github.com/sashabaranov/go-openai by swapping BaseURL.
package research

import (
	"context"
	"strings"

	"github.com/riftlabs/vpsagent/internal/llm"
)

// perplexityBaseURL is Perplexity's OpenAI-compatible chat completions
// endpoint.
const perplexityBaseURL = "https://api.perplexity.ai"

// defaultModel is Perplexity's online-search model; callers may override
// via Config.Model.
const defaultModel = "sonar"

// Config configures a Gateway.
type Config struct {
	// APIKey is the Perplexity API key. An empty key is tolerated — Research
	// then always returns an empty answer, per spec §4.8's "missing key ...
	// never throws" requirement.
	APIKey string
	Model  string
}

// UsageRecorder is the narrow slice of the Store/usage-ledger surface the
// gateway needs: a research call's token usage, when reported, is persisted
// under the research model id (spec §4.8), the same ApiUsage row shape
// internal/agent.recordUsage writes for chat turns.
type UsageRecorder interface {
	RecordResearchUsage(ctx context.Context, userID, model string, inputTokens, outputTokens int)
}

// Gateway implements agent.ResearchGateway by wrapping an llm.OpenAIProvider
// pointed at Perplexity's base URL. It is intentionally thin: the streaming/
// tool-call machinery OpenAIProvider already has is unused here, since
// Research only ever needs Complete's accumulated text.
type Gateway struct {
	provider *llm.OpenAIProvider
	model    string
	usage    UsageRecorder
}

// New builds a Gateway. usage may be nil to skip usage recording.
func New(cfg Config, usage UsageRecorder) *Gateway {
	model := cfg.Model
	if model == "" {
		model = defaultModel
	}
	provider := llm.NewOpenAIProvider(llm.OpenAIConfig{
		APIKey:       cfg.APIKey,
		BaseURL:      perplexityBaseURL,
		DefaultModel: model,
	})
	return &Gateway{provider: provider, model: model, usage: usage}
}

// Research answers query via the configured search model. Per spec §4.8 it
// never errors to the caller: a missing key, upstream failure, or malformed
// response all degrade to an empty answer with no citations.
func (g *Gateway) Research(ctx context.Context, query string) (answer string, citations []string) {
	if strings.TrimSpace(query) == "" {
		return "", nil
	}

	resp, err := g.provider.Complete(ctx, &llm.Request{
		Model: g.model,
		System: "You are a web research assistant. Answer concisely and factually, " +
			"citing your sources as a list of URLs.",
		Messages:  []llm.Message{{Role: "user", Content: query}},
		MaxTokens: 1024,
	})
	if err != nil {
		return "", nil
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	answer = text.String()
	citations = extractCitations(answer)

	if g.usage != nil && (resp.InputTokens > 0 || resp.OutputTokens > 0) {
		g.usage.RecordResearchUsage(ctx, "", g.model, resp.InputTokens, resp.OutputTokens)
	}

	return answer, citations
}

// extractCitations pulls bare http(s) URLs out of answer. Sonar models
// typically emit citations as a trailing "Sources:" list or inline bracketed
// references; scanning for the URL shape directly is more forgiving than
// depending on either convention holding.
func extractCitations(answer string) []string {
	var out []string
	seen := map[string]bool{}
	for _, word := range strings.Fields(answer) {
		word = strings.Trim(word, "[](),.;:\"'")
		if strings.HasPrefix(word, "http://") || strings.HasPrefix(word, "https://") {
			if !seen[word] {
				seen[word] = true
				out = append(out, word)
			}
		}
	}
	return out
}
