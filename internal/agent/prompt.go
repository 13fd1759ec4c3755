package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/riftlabs/vpsagent/pkg/models"
)

const baseSystemPrompt = `You are an autonomous VPS operations agent. You can inspect and modify the
target server over SSH using the tools available to you. Prefer the least
destructive command that answers the question; ask for approval rather than
guessing when an action could cause data loss or downtime.`

// buildSystemPrompt assembles the system prompt per spec §4.5 step 5: server
// context, GitHub context (if linked), recent command history, and a
// research appendix when the gateway produced one.
func buildSystemPrompt(ctx context.Context, server *models.Server, history []models.CommandHistory, github GitHubContextProvider, userID, researchAnswer string, researchCitations []string) string {
	var b strings.Builder
	b.WriteString(baseSystemPrompt)

	if server != nil {
		name := server.Name
		if name == "" {
			name = server.Host
		}
		fmt.Fprintf(&b, "\n\nServer: %s (%s:%d, user %s)", name, server.Host, server.EffectivePort(), server.Username)
	}

	if github != nil {
		if repoURL, branch, ok := github.GitHubContext(ctx, userID); ok {
			fmt.Fprintf(&b, "\n\nGitHub: %s on branch %s. A per-user token is resolved from the Store for any GitHub tool call; never ask the user to paste one.", repoURL, branch)
		}
	}

	if len(history) > 0 {
		b.WriteString("\n\nRecent commands:")
		n := len(history)
		if n > 10 {
			history = history[n-10:]
		}
		for _, h := range history {
			marker := "ok"
			if h.ExitCode != 0 {
				marker = fmt.Sprintf("exit %d", h.ExitCode)
			}
			fmt.Fprintf(&b, "\n- [%s] %s", marker, h.Command)
		}
	}

	if researchAnswer != "" {
		b.WriteString("\n\nResearch:\n")
		b.WriteString(researchAnswer)
		if len(researchCitations) > 0 {
			b.WriteString("\nSources: ")
			b.WriteString(strings.Join(researchCitations, ", "))
		}
	}

	return b.String()
}
