package agent

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/dvloznov/finance-agent/internal/llm"
	"github.com/dvloznov/finance-agent/internal/tools"
	"github.com/rs/zerolog"
)

// fakeProvider scripts a sequence of ChatResponses, one per call, mirroring
// the teacher's MockDocumentRepository func-field mocking style.
type fakeProvider struct {
	responses []llm.ChatResponse
	errs      []error
	calls     int
}

func (f *fakeProvider) Chat(ctx context.Context, messages []llm.Message, schemas []tools.Schema) (llm.ChatResponse, error) {
	i := f.calls
	f.calls++
	if i < len(f.errs) && f.errs[i] != nil {
		return llm.ChatResponse{}, f.errs[i]
	}
	if i >= len(f.responses) {
		return llm.ChatResponse{AssistantText: "done"}, nil
	}
	return f.responses[i], nil
}

func (f *fakeProvider) Name() string { return "fake" }

func echoToolRegistry(t *testing.T) *tools.Registry {
	r := tools.NewRegistry()
	r.Register(tools.Tool{
		Schema: tools.Schema{Name: "get_revenue_by_period", Parameters: []tools.Parameter{
			{Name: "start_date", Type: tools.TypeString},
			{Name: "end_date", Type: tools.TypeString},
		}},
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			return map[string]any{"total": 30000.00}, nil
		},
	})
	return r
}

func newTestController(provider llm.Provider, registry *tools.Registry) *Controller {
	adapter := llm.NewAdapter(provider, 0)
	memory := NewMemory(0, 0)
	return New(adapter, registry, memory, 1, time.Millisecond, zerolog.Nop())
}

func TestProcessQuerySimpleToolCallThenAnswer(t *testing.T) {
	args, _ := json.Marshal(map[string]any{"start_date": "2024-01-01", "end_date": "2024-03-31"})
	provider := &fakeProvider{
		responses: []llm.ChatResponse{
			{
				ToolCalls: []llm.ToolCall{{ID: "call-1", Name: "get_revenue_by_period", ArgumentsJSON: string(args)}},
				StopReason: llm.StopToolCalls,
			},
			{AssistantText: "Total revenue in Q1 2024 was 30000.00.", StopReason: llm.StopEndTurn},
		},
	}

	c := newTestController(provider, echoToolRegistry(t))
	result, err := c.ProcessQuery(context.Background(), "What was the total revenue in Q1 2024?", "", 5)
	if err != nil {
		t.Fatalf("ProcessQuery() error = %v", err)
	}
	if result.Iterations != 2 {
		t.Errorf("Iterations = %d, want 2", result.Iterations)
	}
	if len(result.ToolCallsMade) != 1 || result.ToolCallsMade[0] != "get_revenue_by_period" {
		t.Errorf("ToolCallsMade = %v, want [get_revenue_by_period]", result.ToolCallsMade)
	}
	if result.Answer != "Total revenue in Q1 2024 was 30000.00." {
		t.Errorf("Answer = %q", result.Answer)
	}
	if result.ConversationID == "" {
		t.Error("expected a non-empty conversation id")
	}
}

func TestProcessQueryNoToolsNeeded(t *testing.T) {
	provider := &fakeProvider{
		responses: []llm.ChatResponse{
			{AssistantText: "Hello!", StopReason: llm.StopEndTurn},
		},
	}
	c := newTestController(provider, tools.NewRegistry())
	result, err := c.ProcessQuery(context.Background(), "hi", "", 5)
	if err != nil {
		t.Fatalf("ProcessQuery() error = %v", err)
	}
	if result.Iterations != 1 {
		t.Errorf("Iterations = %d, want 1", result.Iterations)
	}
	if len(result.ToolCallsMade) != 0 {
		t.Errorf("expected no tool calls, got %v", result.ToolCallsMade)
	}
}

func TestProcessQueryIterationCapForcesSummary(t *testing.T) {
	args, _ := json.Marshal(map[string]any{"start_date": "2024-01-01", "end_date": "2024-01-31"})
	toolCallResp := llm.ChatResponse{
		ToolCalls:  []llm.ToolCall{{ID: "call-x", Name: "get_revenue_by_period", ArgumentsJSON: string(args)}},
		StopReason: llm.StopToolCalls,
	}
	// max_iterations=1: one tool-requesting call, then one forced summary
	// call with no tools, per spec.md §8 scenario 5.
	provider := &fakeProvider{
		responses: []llm.ChatResponse{
			toolCallResp,
			{AssistantText: "Here is a summary of what I found.", StopReason: llm.StopEndTurn},
		},
	}
	c := newTestController(provider, echoToolRegistry(t))
	result, err := c.ProcessQuery(context.Background(), "do three things", "", 1)
	if err != nil {
		t.Fatalf("ProcessQuery() error = %v", err)
	}
	if result.Iterations != 1 {
		t.Errorf("Iterations = %d, want 1", result.Iterations)
	}
	if result.StopReason != "max_iterations" {
		t.Errorf("StopReason = %q, want max_iterations", result.StopReason)
	}
	if provider.calls != 2 {
		t.Errorf("provider.calls = %d, want 2 (one tool call + one forced summary)", provider.calls)
	}
	if result.Answer == "" {
		t.Error("expected a non-empty final answer")
	}
}

func TestProcessQueryMaxIterationsZeroForcesImmediateSummary(t *testing.T) {
	provider := &fakeProvider{
		responses: []llm.ChatResponse{
			{AssistantText: "Immediate summary, no tools used.", StopReason: llm.StopEndTurn},
		},
	}
	c := newTestController(provider, echoToolRegistry(t))
	// max_iterations=0 means exactly one LLM call, no tool catalog, per
	// spec.md §8's boundary behavior.
	result, err := c.ProcessQuery(context.Background(), "anything", "", 0)
	if err != nil {
		t.Fatalf("ProcessQuery() error = %v", err)
	}
	if result.Answer != "Immediate summary, no tools used." {
		t.Errorf("Answer = %q", result.Answer)
	}
	if provider.calls != 1 {
		t.Errorf("provider.calls = %d, want exactly 1", provider.calls)
	}
	if len(result.ToolCallsMade) != 0 {
		t.Errorf("expected no tool calls with max_iterations=0, got %v", result.ToolCallsMade)
	}
}

func TestProcessQueryNegativeMaxIterationsUsesDefault(t *testing.T) {
	provider := &fakeProvider{
		responses: []llm.ChatResponse{
			{AssistantText: "answer without needing tools", StopReason: llm.StopEndTurn},
		},
	}
	c := newTestController(provider, tools.NewRegistry())
	result, err := c.ProcessQuery(context.Background(), "anything", "", -1)
	if err != nil {
		t.Fatalf("ProcessQuery() error = %v", err)
	}
	if result.Iterations != 1 {
		t.Errorf("Iterations = %d, want 1 (the model answered on the first of up to DefaultMaxIterations calls)", result.Iterations)
	}
}

func TestProcessQueryRetriesTransientLLMErrorThenSucceeds(t *testing.T) {
	provider := &fakeProvider{
		errs: []error{&llm.RateLimitError{Provider: "fake", RetryAfter: time.Millisecond}},
		responses: []llm.ChatResponse{
			{},
			{AssistantText: "answer after one retry", StopReason: llm.StopEndTurn},
		},
	}
	adapter := llm.NewAdapter(provider, 0)
	memory := NewMemory(0, 0)
	c := New(adapter, tools.NewRegistry(), memory, 3, time.Millisecond, zerolog.Nop())

	result, err := c.ProcessQuery(context.Background(), "anything", "", 5)
	if err != nil {
		t.Fatalf("ProcessQuery() error = %v", err)
	}
	if result.Answer != "answer after one retry" {
		t.Errorf("Answer = %q, want the second call's response once the first transient failure was retried", result.Answer)
	}
	if provider.calls != 2 {
		t.Errorf("provider.calls = %d, want 2 (one rate-limited attempt, one retry)", provider.calls)
	}
}

func TestProcessQueryExhaustsRetriesOnPersistentTransientError(t *testing.T) {
	provider := &fakeProvider{
		errs: []error{
			&llm.RateLimitError{Provider: "fake", RetryAfter: time.Millisecond},
			&llm.RateLimitError{Provider: "fake", RetryAfter: time.Millisecond},
		},
	}
	adapter := llm.NewAdapter(provider, 0)
	memory := NewMemory(0, 0)
	c := New(adapter, tools.NewRegistry(), memory, 2, time.Millisecond, zerolog.Nop())

	result, err := c.ProcessQuery(context.Background(), "anything", "", 5)
	if err != nil {
		t.Fatalf("ProcessQuery() should not return a Go error, got %v", err)
	}
	if result.StopReason != "llm_error" {
		t.Errorf("StopReason = %q, want llm_error after exhausting retries", result.StopReason)
	}
	if provider.calls != 2 {
		t.Errorf("provider.calls = %d, want 2 (retryMax exhausted)", provider.calls)
	}
}

func TestProcessQueryDoesNotRetryNonTransientLLMError(t *testing.T) {
	provider := &fakeProvider{
		errs: []error{errors.New("boom: unclassified provider failure")},
	}
	adapter := llm.NewAdapter(provider, 0)
	memory := NewMemory(0, 0)
	c := New(adapter, tools.NewRegistry(), memory, 5, time.Millisecond, zerolog.Nop())

	result, err := c.ProcessQuery(context.Background(), "anything", "", 5)
	if err != nil {
		t.Fatalf("ProcessQuery() error = %v", err)
	}
	if provider.calls != 1 {
		t.Errorf("provider.calls = %d, want 1 (KindLLMUnavailable is not retryable)", provider.calls)
	}
	if result.StopReason != "llm_error" {
		t.Errorf("StopReason = %q, want llm_error", result.StopReason)
	}
}

func TestProcessQueryLLMErrorReturnsGracefulFallback(t *testing.T) {
	provider := &fakeProvider{
		errs: []error{errors.New("boom: provider unreachable")},
	}
	c := newTestController(provider, tools.NewRegistry())
	result, err := c.ProcessQuery(context.Background(), "anything", "", 5)
	if err != nil {
		t.Fatalf("ProcessQuery() should not return a Go error, got %v", err)
	}
	if result.StopReason != "llm_error" {
		t.Errorf("StopReason = %q, want llm_error", result.StopReason)
	}
	if result.Answer == "" {
		t.Error("expected a graceful fallback answer")
	}
}

func TestProcessQueryReusesExistingConversation(t *testing.T) {
	provider := &fakeProvider{
		responses: []llm.ChatResponse{
			{AssistantText: "first answer", StopReason: llm.StopEndTurn},
			{AssistantText: "second answer", StopReason: llm.StopEndTurn},
		},
	}
	c := newTestController(provider, tools.NewRegistry())
	first, err := c.ProcessQuery(context.Background(), "question one", "", 5)
	if err != nil {
		t.Fatalf("ProcessQuery() error = %v", err)
	}
	second, err := c.ProcessQuery(context.Background(), "question two", first.ConversationID, 5)
	if err != nil {
		t.Fatalf("ProcessQuery() error = %v", err)
	}
	if second.ConversationID != first.ConversationID {
		t.Errorf("ConversationID = %q, want reused %q", second.ConversationID, first.ConversationID)
	}
	if c.memory.Count() != 1 {
		t.Errorf("memory.Count() = %d, want 1 (same conversation reused)", c.memory.Count())
	}
}
