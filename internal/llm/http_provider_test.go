package llm

import (
	"testing"
	"time"

	"github.com/dvloznov/finance-agent/internal/tools"
)

func TestToChatMessagesPreservesToolFields(t *testing.T) {
	messages := []Message{
		{Role: RoleUser, Content: "what was revenue in March?"},
		{Role: RoleTool, Content: `{"total":100}`, ToolCallID: "call-1", ToolName: "get_revenue_by_period"},
	}
	out := toChatMessages(messages)
	if len(out) != 2 {
		t.Fatalf("len(out) = %d, want 2", len(out))
	}
	if out[1].ToolCallID != "call-1" || out[1].Name != "get_revenue_by_period" {
		t.Errorf("tool message fields not preserved: %+v", out[1])
	}
}

func TestToChatToolSpecsTranslatesSchemas(t *testing.T) {
	min := 1.0
	schemas := []tools.Schema{
		{
			Name:        "get_revenue_by_period",
			Description: "totals revenue over a period",
			Parameters: []tools.Parameter{
				{Name: "start_date", Type: tools.TypeString, Required: true},
				{Name: "years", Type: tools.TypeNumber, Minimum: &min},
			},
		},
	}
	out := toChatToolSpecs(schemas)
	if len(out) != 1 {
		t.Fatalf("len(out) = %d, want 1", len(out))
	}
	if out[0].Function.Name != "get_revenue_by_period" {
		t.Errorf("Function.Name = %q", out[0].Function.Name)
	}
	params := out[0].Function.Parameters
	required, ok := params["required"].([]string)
	if !ok || len(required) != 1 || required[0] != "start_date" {
		t.Errorf("required = %v, want [start_date]", params["required"])
	}
	props, ok := params["properties"].(map[string]any)
	if !ok {
		t.Fatalf("properties missing or wrong type: %v", params["properties"])
	}
	yearsSchema, ok := props["years"].(map[string]any)
	if !ok {
		t.Fatalf("properties[years] missing: %v", props)
	}
	if yearsSchema["minimum"] != 1.0 {
		t.Errorf("years.minimum = %v, want 1.0", yearsSchema["minimum"])
	}
}

func TestParamJSONSchemaArrayItems(t *testing.T) {
	p := tools.Parameter{
		Name: "years", Type: tools.TypeArray,
		Items: &tools.Parameter{Type: tools.TypeNumber},
	}
	out := paramJSONSchema(p)
	items, ok := out["items"].(map[string]any)
	if !ok {
		t.Fatalf("items missing: %v", out)
	}
	if items["type"] != string(tools.TypeNumber) {
		t.Errorf("items.type = %v, want number", items["type"])
	}
}

func TestFromChatCompletionResponseTextOnly(t *testing.T) {
	resp := chatCompletionResponse{}
	resp.Choices = []struct {
		Message      chatCompletionMessage `json:"message"`
		FinishReason string                `json:"finish_reason"`
	}{
		{Message: chatCompletionMessage{Content: "the total was 30000.00"}, FinishReason: "stop"},
	}
	out := fromChatCompletionResponse(resp)
	if out.AssistantText != "the total was 30000.00" {
		t.Errorf("AssistantText = %q", out.AssistantText)
	}
	if out.StopReason != StopEndTurn {
		t.Errorf("StopReason = %q, want end_turn", out.StopReason)
	}
	if len(out.ToolCalls) != 0 {
		t.Errorf("expected no tool calls, got %v", out.ToolCalls)
	}
}

func TestFromChatCompletionResponseWithToolCalls(t *testing.T) {
	resp := chatCompletionResponse{}
	resp.Choices = []struct {
		Message      chatCompletionMessage `json:"message"`
		FinishReason string                `json:"finish_reason"`
	}{
		{
			Message: chatCompletionMessage{
				ToolCalls: []chatToolCall{
					{ID: "call-1", Type: "function", Function: chatToolCallFunc{Name: "get_revenue_by_period", Arguments: `{"start_date":"2024-01-01"}`}},
				},
			},
			FinishReason: "tool_calls",
		},
	}
	out := fromChatCompletionResponse(resp)
	if out.StopReason != StopToolCalls {
		t.Errorf("StopReason = %q, want tool_calls", out.StopReason)
	}
	if len(out.ToolCalls) != 1 || out.ToolCalls[0].Name != "get_revenue_by_period" {
		t.Errorf("ToolCalls = %v", out.ToolCalls)
	}
}

func TestFromChatCompletionResponseMaxTokens(t *testing.T) {
	resp := chatCompletionResponse{}
	resp.Choices = []struct {
		Message      chatCompletionMessage `json:"message"`
		FinishReason string                `json:"finish_reason"`
	}{
		{Message: chatCompletionMessage{Content: "truncated..."}, FinishReason: "length"},
	}
	out := fromChatCompletionResponse(resp)
	if out.StopReason != StopMaxTokens {
		t.Errorf("StopReason = %q, want max_tokens", out.StopReason)
	}
}

func TestFromChatCompletionResponseNoChoices(t *testing.T) {
	out := fromChatCompletionResponse(chatCompletionResponse{})
	if out.AssistantText != "" || out.StopReason != StopEndTurn {
		t.Errorf("unexpected output for empty choices: %+v", out)
	}
}

func TestRetryAfterParsesSeconds(t *testing.T) {
	if got := retryAfter("12"); got != 12*time.Second {
		t.Errorf("retryAfter(12) = %v, want 12s", got)
	}
}

func TestRetryAfterDefaultsOnMissingOrInvalidHeader(t *testing.T) {
	if got := retryAfter(""); got != 5*time.Second {
		t.Errorf("retryAfter(\"\") = %v, want 5s default", got)
	}
	if got := retryAfter("not-a-number"); got != 5*time.Second {
		t.Errorf("retryAfter(garbage) = %v, want 5s default", got)
	}
}
