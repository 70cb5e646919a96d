package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"llmarena/internal/llm"
)

const repairSystemPrompt = `You are a JSON repair assistant. The user will provide malformed JSON that failed to parse.
Your job is to fix the JSON so it is valid and matches the expected schema.

RULES:
1. Output ONLY valid JSON. No explanations, no markdown.
2. Preserve the intent and data from the original as much as possible.
3. If fields are missing, add them with sensible defaults.
4. If there are syntax errors (missing quotes, brackets, commas), fix them.

Expected schema:
%s`

const repairUserPrompt = `Fix this malformed JSON:

%s

Parse error: %s

Output ONLY the corrected JSON object.`

// RepairJSON makes one deterministic model call asking it to reformat a
// malformed response against the schema, then parses the repaired text into
// out. A low temperature keeps the call a reformatting exercise rather than
// a second opinion. The caller logs the Result as a billed call.
func RepairJSON(ctx context.Context, client llm.Client, malformed, parseErr, schema string, out any) Result {
	req := llm.Request{
		Prompt:       fmt.Sprintf(repairUserPrompt, malformed, parseErr),
		SystemPrompt: fmt.Sprintf(repairSystemPrompt, schema),
		JSONMode:     true,
		MaxTokens:    4096,
		Temperature:  0.3,
	}

	result := Result{Prompt: req.Prompt, SystemPrompt: req.SystemPrompt}

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
		result.Err = fmt.Sprintf("repair parse error: %v", err)
		return result
	}

	result.Success = true
	return result
}
