// Package llm implements the LLM Adapter (C7): a thin, provider-agnostic
// chat contract that every provider translates to and from its own
// tool-calling dialect. Grounded on the teacher's
// internal/pipeline/parser.go, which talks to Gemini directly; here that
// single call site is generalized into a Provider interface with Gemini as
// one concrete implementation among several.
package llm

import (
	"context"
	"time"

	"github.com/dvloznov/finance-agent/internal/tools"
)

// Role is who authored a Message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one turn of the conversation handed to a provider.
type Message struct {
	Role       Role
	Content    string
	ToolCallID string // set on RoleTool messages, echoing the ToolCall.ID it answers
	ToolName   string // set on RoleTool messages
}

// ToolCall is a provider's request to invoke one registered tool.
type ToolCall struct {
	ID            string
	Name          string
	ArgumentsJSON string
}

// StopReason explains why a Chat call produced no further tool calls.
type StopReason string

const (
	StopEndTurn   StopReason = "end_turn"
	StopToolCalls StopReason = "tool_calls"
	StopMaxTokens StopReason = "max_tokens"
	StopError     StopReason = "error"
)

// Usage is token accounting, when the provider reports it.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// ChatResponse is the uniform shape spec.md §4.7 specifies:
// { assistant_text?, tool_calls[]?, usage, stop_reason }.
type ChatResponse struct {
	AssistantText string
	ToolCalls     []ToolCall
	Usage         Usage
	StopReason    StopReason
}

// Provider is implemented once per backend (Gemini, and the two
// OpenAI-compatible HTTP providers). Each Provider owns translating
// Message/tools.Schema into its native wire format and translating the
// response back into ChatResponse.
type Provider interface {
	Chat(ctx context.Context, messages []Message, toolSchemas []tools.Schema) (ChatResponse, error)
	Name() string
}

// RateLimitError carries the retry_after hint spec.md §4.7 requires
// surfacing on rate-limit responses.
type RateLimitError struct {
	Provider   string
	RetryAfter time.Duration
	cause      error
}

func (e *RateLimitError) Error() string {
	return e.Provider + ": rate limited, retry after " + e.RetryAfter.String()
}

func (e *RateLimitError) Unwrap() error { return e.cause }
