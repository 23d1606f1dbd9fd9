package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/dvloznov/finance-agent/internal/tools"
)

// HTTPProvider is a plain net/http client against an OpenAI-compatible
// chat-completions endpoint. spec.md §4.7 names two such providers
// ("ProviderY", "ProviderZ") beyond Gemini; neither ships a Go SDK
// anywhere in the retrieved pack, so this is the one adapter built
// directly on net/http rather than an ecosystem client.
type HTTPProvider struct {
	name       string
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

// NewHTTPProvider builds a provider for name (used only in error messages
// and logging) hitting baseURL+"/chat/completions".
func NewHTTPProvider(name, baseURL, apiKey, model string) *HTTPProvider {
	return &HTTPProvider{
		name:       name,
		baseURL:    baseURL,
		apiKey:     apiKey,
		model:      model,
		httpClient: &http.Client{Timeout: DefaultTimeout},
	}
}

func (p *HTTPProvider) Name() string { return p.name }

type chatCompletionMessage struct {
	Role       string          `json:"role"`
	Content    string          `json:"content,omitempty"`
	ToolCallID string          `json:"tool_call_id,omitempty"`
	Name       string          `json:"name,omitempty"`
	ToolCalls  []chatToolCall  `json:"tool_calls,omitempty"`
}

type chatToolCall struct {
	ID       string           `json:"id"`
	Type     string           `json:"type"`
	Function chatToolCallFunc `json:"function"`
}

type chatToolCallFunc struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type chatFunctionSpec struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters"`
}

type chatToolSpec struct {
	Type     string           `json:"type"`
	Function chatFunctionSpec `json:"function"`
}

type chatCompletionRequest struct {
	Model    string                  `json:"model"`
	Messages []chatCompletionMessage `json:"messages"`
	Tools    []chatToolSpec          `json:"tools,omitempty"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message      chatCompletionMessage `json:"message"`
		FinishReason string                `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

func (p *HTTPProvider) Chat(ctx context.Context, messages []Message, toolSchemas []tools.Schema) (ChatResponse, error) {
	req := chatCompletionRequest{
		Model:    p.model,
		Messages: toChatMessages(messages),
		Tools:    toChatToolSpecs(toolSchemas),
	}
	body, err := json.Marshal(req)
	if err != nil {
		return ChatResponse{}, fmt.Errorf("llm.HTTPProvider(%s).Chat: encoding request: %w", p.name, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return ChatResponse{}, fmt.Errorf("llm.HTTPProvider(%s).Chat: building request: %w", p.name, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return ChatResponse{}, fmt.Errorf("llm.HTTPProvider(%s).Chat: %w", p.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return ChatResponse{}, &RateLimitError{Provider: p.name, RetryAfter: retryAfter(resp.Header.Get("Retry-After"))}
	}
	if resp.StatusCode >= 400 {
		payload, _ := io.ReadAll(resp.Body)
		return ChatResponse{}, fmt.Errorf("llm.HTTPProvider(%s).Chat: status %d: %s", p.name, resp.StatusCode, string(payload))
	}

	var parsed chatCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return ChatResponse{}, fmt.Errorf("llm.HTTPProvider(%s).Chat: decoding response: %w", p.name, err)
	}
	return fromChatCompletionResponse(parsed), nil
}

func retryAfter(header string) time.Duration {
	if header == "" {
		return 5 * time.Second
	}
	if secs, err := strconv.Atoi(header); err == nil {
		return time.Duration(secs) * time.Second
	}
	return 5 * time.Second
}

func toChatMessages(messages []Message) []chatCompletionMessage {
	out := make([]chatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		out = append(out, chatCompletionMessage{
			Role:       string(m.Role),
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
			Name:       m.ToolName,
		})
	}
	return out
}

func toChatToolSpecs(schemas []tools.Schema) []chatToolSpec {
	out := make([]chatToolSpec, 0, len(schemas))
	for _, s := range schemas {
		out = append(out, chatToolSpec{
			Type: "function",
			Function: chatFunctionSpec{
				Name:        s.Name,
				Description: s.Description,
				Parameters:  toJSONSchema(s.Parameters),
			},
		})
	}
	return out
}

func toJSONSchema(params []tools.Parameter) map[string]any {
	props := make(map[string]any, len(params))
	var required []string
	for _, p := range params {
		props[p.Name] = paramJSONSchema(p)
		if p.Required {
			required = append(required, p.Name)
		}
	}
	return map[string]any{"type": "object", "properties": props, "required": required}
}

func paramJSONSchema(p tools.Parameter) map[string]any {
	out := map[string]any{"type": string(p.Type), "description": p.Description}
	if len(p.Enum) > 0 {
		out["enum"] = p.Enum
	}
	if p.Pattern != "" {
		out["pattern"] = p.Pattern
	}
	if p.Minimum != nil {
		out["minimum"] = *p.Minimum
	}
	if p.Maximum != nil {
		out["maximum"] = *p.Maximum
	}
	if p.Type == tools.TypeArray && p.Items != nil {
		out["items"] = paramJSONSchema(*p.Items)
	}
	return out
}

func fromChatCompletionResponse(resp chatCompletionResponse) ChatResponse {
	out := ChatResponse{
		StopReason: StopEndTurn,
		Usage: Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}
	if len(resp.Choices) == 0 {
		return out
	}
	choice := resp.Choices[0]
	out.AssistantText = choice.Message.Content
	for _, tc := range choice.Message.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, ToolCall{
			ID:            tc.ID,
			Name:          tc.Function.Name,
			ArgumentsJSON: tc.Function.Arguments,
		})
	}
	switch {
	case len(out.ToolCalls) > 0:
		out.StopReason = StopToolCalls
	case choice.FinishReason == "length":
		out.StopReason = StopMaxTokens
	}
	return out
}
