package orchestrator

import (
	"context"
	"errors"
	"testing"

	"github.com/riftlabs/vpsagent/internal/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePlannerProvider struct {
	text string
	err  error
}

func (p *fakePlannerProvider) Name() string { return "fake" }

func (p *fakePlannerProvider) Messages(context.Context, *llm.Request) (<-chan *llm.Event, error) {
	return nil, errors.New("not implemented")
}

func (p *fakePlannerProvider) Complete(context.Context, *llm.Request) (*llm.Response, error) {
	if p.err != nil {
		return nil, p.err
	}
	return &llm.Response{Content: []llm.ContentBlock{{Type: "text", Text: p.text}}}, nil
}

func TestPlanTaskParsesWellFormedJSON(t *testing.T) {
	provider := &fakePlannerProvider{text: `Here is the plan:
` + "```json" + `
{
  "title": "Restart nginx",
  "description": "Restart the nginx service to pick up config changes",
  "steps": [
    {"name": "restart", "description": "restart nginx", "command": "systemctl restart nginx", "requiresApproval": true, "timeout": 30}
  ],
  "estimatedDuration": "10 seconds",
  "risks": ["brief downtime"],
  "requiresApproval": true
}
` + "```"}

	plan, err := planTask(context.Background(), provider, "restart nginx", "server: web-1, ubuntu 22.04")
	require.NoError(t, err)
	assert.Equal(t, "Restart nginx", plan.Title)
	require.Len(t, plan.Steps, 1)
	assert.Equal(t, "systemctl restart nginx", plan.Steps[0].Command)
	assert.True(t, plan.Steps[0].RequiresApproval)
	assert.Equal(t, 30, plan.Steps[0].Timeout)
}

func TestPlanTaskFallsBackOnUnparseableResponse(t *testing.T) {
	provider := &fakePlannerProvider{text: "I'm not sure how to do that, sorry."}

	plan, err := planTask(context.Background(), provider, "do something vague", "server: web-1")
	require.NoError(t, err)
	require.Len(t, plan.Steps, 1)
	assert.True(t, plan.RequiresApproval)
	assert.True(t, plan.Steps[0].RequiresApproval)
}

func TestPlanTaskFallsBackOnProviderError(t *testing.T) {
	provider := &fakePlannerProvider{err: errors.New("upstream unavailable")}

	plan, err := planTask(context.Background(), provider, "patch the kernel", "server: web-1")
	require.NoError(t, err)
	require.Len(t, plan.Steps, 1)
	assert.True(t, plan.RequiresApproval)
}

func TestPlanTaskDefaultsMissingTimeout(t *testing.T) {
	provider := &fakePlannerProvider{text: `{
		"title": "Check disk",
		"steps": [{"name": "df", "command": "df -h", "requiresApproval": false}],
		"requiresApproval": false
	}`}

	plan, err := planTask(context.Background(), provider, "check disk space", "server: web-1")
	require.NoError(t, err)
	assert.Equal(t, fallbackTimeoutSeconds, plan.Steps[0].Timeout)
}
