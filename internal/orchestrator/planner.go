package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/riftlabs/vpsagent/internal/llm"
)

const plannerSystemPrompt = `You are a VPS operations planner. Given an operator's request and the
target server's known facts, respond with ONLY a JSON object (no prose, no
markdown fences) of the shape:

{
  "title": "short imperative title",
  "description": "one paragraph of what this accomplishes",
  "steps": [
    {"name": "string", "description": "string", "command": "shell command",
     "rollbackCommand": "shell command or omitted", "requiresApproval": bool,
     "timeout": seconds}
  ],
  "estimatedDuration": "human string, e.g. '2 minutes'",
  "risks": ["short risk statements"],
  "requiresApproval": bool
}

Mark requiresApproval true on any step that deletes data, restarts a
service, or changes firewall/DNS/TLS configuration. Prefer idempotent
commands. Keep steps minimal.`

// fallbackTimeoutSeconds is applied to a malformed or zero step timeout so
// executeTask never calls sshexec.Exec with a non-positive duration.
const fallbackTimeoutSeconds = 30

// planTask asks provider for a JSON plan for request against serverInfo (a
// free-text description of the server: name, OS, running services — built
// by the caller). Per spec §4.6, planning is forgiving: any failure to
// extract a usable plan degrades to a single apologetic step that requires
// approval, rather than surfacing an error to the caller.
func planTask(ctx context.Context, provider llm.Provider, request, serverInfo string) (*Plan, error) {
	prompt := fmt.Sprintf("Server context:\n%s\n\nOperator request:\n%s", serverInfo, request)

	resp, err := provider.Complete(ctx, &llm.Request{
		System:    plannerSystemPrompt,
		Messages:  []llm.Message{{Role: "user", Content: prompt}},
		MaxTokens: 4096,
	})
	if err != nil {
		return fallbackPlan(request, fmt.Sprintf("planning call failed: %v", err)), nil
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	plan, err := extractPlan(text.String())
	if err != nil {
		return fallbackPlan(request, fmt.Sprintf("could not parse a plan from the model's response: %v", err)), nil
	}
	normalizePlan(plan)
	return plan, nil
}

// extractPlan pulls the first balanced JSON object out of raw (tolerating
// the model wrapping it in prose or a markdown fence) and decodes it.
func extractPlan(raw string) (*Plan, error) {
	start := strings.IndexByte(raw, '{')
	end := strings.LastIndexByte(raw, '}')
	if start == -1 || end == -1 || end < start {
		return nil, fmt.Errorf("no JSON object found in response")
	}

	var plan Plan
	if err := json.Unmarshal([]byte(raw[start:end+1]), &plan); err != nil {
		return nil, fmt.Errorf("decode plan JSON: %w", err)
	}
	if len(plan.Steps) == 0 {
		return nil, fmt.Errorf("plan has no steps")
	}
	return &plan, nil
}

// normalizePlan fills in defaults the model may have omitted.
func normalizePlan(plan *Plan) {
	for i := range plan.Steps {
		if plan.Steps[i].Timeout <= 0 {
			plan.Steps[i].Timeout = fallbackTimeoutSeconds
		}
	}
}

// fallbackPlan is the single-step apology plan spec §4.6 mandates when a
// plan can't be extracted: it always requires approval, and its "command"
// is a harmless echo so an operator approving it by mistake causes no harm.
func fallbackPlan(request, reason string) *Plan {
	msg := fmt.Sprintf("Sorry, I could not build a reliable plan for: %q (%s). Approve to see this message on the server, or cancel and rephrase the request.", request, reason)
	return &Plan{
		Title:             "Unable to plan automatically",
		Description:       reason,
		EstimatedDuration: "unknown",
		RequiresApproval:  true,
		Steps: []PlanStep{
			{
				Name:             "apologize",
				Description:      "Planning failed; this is a placeholder step requiring manual review.",
				Command:          fmt.Sprintf("echo %s", shellQuote(msg)),
				RequiresApproval: true,
				Timeout:          fallbackTimeoutSeconds,
			},
		},
	}
}

// shellQuote wraps s in single quotes for safe inclusion in a POSIX shell
// command, escaping any embedded single quote.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
