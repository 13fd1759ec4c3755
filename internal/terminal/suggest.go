package terminal

import (
	"context"
	"strings"

	"github.com/riftlabs/vpsagent/internal/llm"
)

// localCatalog is the ~24-command catalog spec §4.7 names for local
// (non-AI) prefix-match suggestions — the commands a VPS operator types
// most often, mirroring the tool families C3's catalog already covers
// (filesystem, system, docker, web/TLS).
var localCatalog = []string{
	"ls", "ls -la", "cd", "pwd", "cat", "tail -f", "less", "grep -r",
	"find . -name", "ps aux", "top", "htop", "df -h", "du -sh",
	"systemctl status", "systemctl restart", "systemctl reload",
	"journalctl -u", "docker ps", "docker logs -f", "docker compose up -d",
	"docker compose down", "nginx -t", "curl -I", "chmod", "chown",
	"apt update && apt upgrade -y",
}

const (
	localSuggestionLimit = 8
	aiSuggestionLimit    = 5
	aiSuggestionMinLen   = 3
)

// LocalSuggestions returns up to localSuggestionLimit catalog entries whose
// prefix case-insensitively matches partial.
func LocalSuggestions(partial string) []string {
	partial = strings.ToLower(strings.TrimSpace(partial))
	if partial == "" {
		return nil
	}
	var out []string
	for _, cmd := range localCatalog {
		if strings.HasPrefix(strings.ToLower(cmd), partial) {
			out = append(out, cmd)
			if len(out) == localSuggestionLimit {
				break
			}
		}
	}
	return out
}

// AIAssistant is the relay's two AI-backed features — completion
// ("suggest") and free-form help ("ai-help") — behind one narrow port, the
// same "declare the interface where it's consumed" convention as
// internal/orchestrator.CommandRunner, so the relay's tests don't need a
// real llm.Provider.
type AIAssistant interface {
	Suggest(ctx context.Context, partial string) []string
	Answer(ctx context.Context, question string) string
}

// providerAssistant adapts an llm.Provider into an AIAssistant.
type providerAssistant struct {
	provider llm.Provider
	model    string
}

// NewAIAssistant builds an AIAssistant over provider, asking model for
// completions and answers.
func NewAIAssistant(provider llm.Provider, model string) AIAssistant {
	return &providerAssistant{provider: provider, model: model}
}

const suggesterSystemPrompt = `Complete a partially typed Linux shell command for a VPS operator.
Reply with up to 5 full command lines, one per line, no numbering, no explanation.`

const helperSystemPrompt = `You are a terminal assistant helping a VPS operator. Answer the question
in 2-3 short sentences, plain text, no markdown.`

// Answer asks the model a short free-form question about the terminal
// session. Errors degrade to an empty string, never propagated.
func (s *providerAssistant) Answer(ctx context.Context, question string) string {
	resp, err := s.provider.Complete(ctx, &llm.Request{
		Model:     s.model,
		System:    helperSystemPrompt,
		Messages:  []llm.Message{{Role: "user", Content: question}},
		MaxTokens: 512,
	})
	if err != nil {
		return ""
	}
	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	return strings.TrimSpace(text.String())
}

// Suggest asks the model for completions of partial. Per spec §4.7 this
// only fires for partials of length >= aiSuggestionMinLen; shorter partials
// return nil without a call. Any provider error also degrades to nil —
// AI suggestions are a convenience, never a hard dependency of the relay.
func (s *providerAssistant) Suggest(ctx context.Context, partial string) []string {
	if len(strings.TrimSpace(partial)) < aiSuggestionMinLen {
		return nil
	}

	resp, err := s.provider.Complete(ctx, &llm.Request{
		Model:     s.model,
		System:    suggesterSystemPrompt,
		Messages:  []llm.Message{{Role: "user", Content: partial}},
		MaxTokens: 256,
	})
	if err != nil {
		return nil
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	var out []string
	for _, line := range strings.Split(text.String(), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		out = append(out, line)
		if len(out) == aiSuggestionLimit {
			break
		}
	}
	return out
}
