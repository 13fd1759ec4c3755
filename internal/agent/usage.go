package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/riftlabs/vpsagent/pkg/models"
)

// modelPricing is USD per 1M tokens, keyed by a model-id prefix match
// (Sonnet/Opus/Perplexity families share pricing across dated snapshots).
// Values are spec-literal (§4.5 step 10), not derived from the teacher,
// which tracks its own provider pricing table keyed by exact model id.
type modelPricing struct {
	inputPer1M  float64
	outputPer1M float64
}

var pricingTable = []struct {
	prefix  string
	pricing modelPricing
}{
	{"claude-opus", modelPricing{inputPer1M: 15.0, outputPer1M: 75.0}},
	{"claude-sonnet", modelPricing{inputPer1M: 3.0, outputPer1M: 15.0}},
	{"claude-3-5-sonnet", modelPricing{inputPer1M: 3.0, outputPer1M: 15.0}},
	{"sonar", modelPricing{inputPer1M: 0.20, outputPer1M: 0.20}},
	{"perplexity", modelPricing{inputPer1M: 0.20, outputPer1M: 0.20}},
}

func pricingFor(model string) modelPricing {
	m := strings.ToLower(model)
	for _, row := range pricingTable {
		if strings.Contains(m, row.prefix) {
			return row.pricing
		}
	}
	// Unknown model: default to Sonnet pricing rather than zero, so a
	// misconfigured model id still shows up in the usage ledger instead of
	// silently costing nothing.
	return modelPricing{inputPer1M: 3.0, outputPer1M: 15.0}
}

// estimatedCost renders a 6-decimal fixed-point USD string, per spec §4.5
// step 10's "fixed-point decimal string" requirement.
func estimatedCost(model string, inputTokens, outputTokens int) string {
	p := pricingFor(model)
	cost := float64(inputTokens)/1_000_000*p.inputPer1M + float64(outputTokens)/1_000_000*p.outputPer1M
	return fmt.Sprintf("%.6f", cost)
}

// recordUsage persists one ApiUsage ledger row for a completed loop run.
// store may be nil in tests that don't assert on the usage ledger.
func recordUsage(ctx context.Context, store ConversationStore, userID, conversationID, model string, inputTokens, outputTokens int) error {
	if store == nil {
		return nil
	}
	usage := &models.ApiUsage{
		ID:             uuid.NewString(),
		UserID:         userID,
		ConversationID: conversationID,
		Model:          model,
		InputTokens:    inputTokens,
		OutputTokens:   outputTokens,
		TotalTokens:    inputTokens + outputTokens,
		EstimatedCost:  estimatedCost(model, inputTokens, outputTokens),
		CreatedAt:      time.Now(),
	}
	return store.AppendApiUsage(ctx, usage)
}
