// Package agent implements the LLM agents that drive a competitor's trading
// decisions: the Strategist proposes actions from market briefings and the
// RiskGuard converts approved proposals into concrete orders. Both agents
// demand raw JSON output and parse it strictly.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"llmarena/internal/llm"
)

// Result captures the accounting of one agent invocation: what was sent,
// what came back, and how much it cost. The parsed output is returned
// separately by each agent so callers get a typed value.
type Result struct {
	Success          bool
	RawResponse      string
	Prompt           string
	SystemPrompt     string
	PromptTokens     int
	CompletionTokens int
	LatencyMS        int64
	Err              string
}

// CleanJSON strips Markdown code fences that models often wrap around JSON
// output despite instructions not to.
func CleanJSON(content string) string {
	content = strings.TrimSpace(content)

	if strings.HasPrefix(content, "```") {
		if idx := strings.Index(content, "\n"); idx != -1 {
			content = content[idx+1:]
		} else if strings.HasPrefix(content, "```json") {
			content = content[7:]
		} else {
			content = content[3:]
		}
	}
	content = strings.TrimSuffix(strings.TrimSpace(content), "```")

	return strings.TrimSpace(content)
}

// generateAndParse performs one model call and strictly unmarshals the
// cleaned response into out. On any failure the returned Result preserves
// the raw text so the caller can attempt a repair call.
func generateAndParse(ctx context.Context, client llm.Client, req llm.Request, out any) Result {
	result := Result{
		Prompt:       req.Prompt,
		SystemPrompt: req.SystemPrompt,
	}

	resp, err := client.Generate(ctx, req)
	if err != nil {
		result.Err = err.Error()
		return result
	}

	result.RawResponse = resp.Content
	result.PromptTokens = resp.PromptTokens
	result.CompletionTokens = resp.CompletionTokens
	result.LatencyMS = resp.LatencyMS

	if err := json.Unmarshal([]byte(CleanJSON(resp.Content)), out); err != nil {
		result.Err = fmt.Sprintf("JSON parse error: %v", err)
		return result
	}

	result.Success = true
	return result
}
