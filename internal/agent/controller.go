package agent

import (
	"context"
	"encoding/json"
	"time"

	"github.com/dvloznov/finance-agent/internal/apperr"
	"github.com/dvloznov/finance-agent/internal/llm"
	"github.com/dvloznov/finance-agent/internal/tools"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DefaultMaxIterations is used when a caller passes a negative
// maxIterations to ProcessQuery to mean "no preference, use the default"
// (spec.md §4.8's process_query(..., max_iterations=5)). Zero is a
// distinct, meaningful value — see the maxIterations==0 branch below.
const DefaultMaxIterations = 5

// defaultLLMRetryMax/defaultLLMBackoffBase are used when New is given a
// non-positive retryMax/backoffBase, mirroring internal/ingest.New's
// defaulting for its own retry knobs.
const (
	defaultLLMRetryMax    = 3
	defaultLLMBackoffBase = 200 * time.Millisecond
)

// systemPrompt is static: it names the domain and lets the model discover
// tool shapes from the tool catalog handed to each Chat call rather than
// repeating them in prose.
const systemPrompt = `You are a financial analyst assistant with access to tools over ingested revenue, expense, and account data spanning multiple source dialects. Answer directly using the tools available; call a tool whenever the answer requires numbers you don't already have from earlier in this conversation.`

// Controller is the Agent Controller (C8): a single-turn process_query
// loop over an LLM Adapter and a Tool Registry, with process-local
// conversation memory. Constructed and dependency-injected at wiring time
// (cmd/api), never a package-level singleton.
type Controller struct {
	adapter     *llm.Adapter
	registry    *tools.Registry
	memory      *Memory
	retryMax    int
	backoffBase time.Duration
	log         zerolog.Logger
}

// New builds a Controller. memory may be shared with a background TTL
// sweeper in the same process (cmd/api runs one). retryMax/backoffBase govern how many times and how
// long chatWithRetry retries a KindLLMTransient failure before giving up;
// a non-positive value falls back to the defaults above.
func New(adapter *llm.Adapter, registry *tools.Registry, memory *Memory, retryMax int, backoffBase time.Duration, log zerolog.Logger) *Controller {
	if retryMax <= 0 {
		retryMax = defaultLLMRetryMax
	}
	if backoffBase <= 0 {
		backoffBase = defaultLLMBackoffBase
	}
	return &Controller{adapter: adapter, registry: registry, memory: memory, retryMax: retryMax, backoffBase: backoffBase, log: log}
}

// Result is process_query's return shape from spec.md §4.8.
type Result struct {
	Answer         string
	ConversationID string
	ToolCallsMade  []string
	Iterations     int
	StopReason     string
}

// ProcessQuery runs the execution loop: assemble context, call the LLM
// Adapter, execute any requested tools, repeat until the model stops
// asking for tools or max_iterations is hit.
func (c *Controller) ProcessQuery(ctx context.Context, query, conversationID string, maxIterations int) (Result, error) {
	if maxIterations < 0 {
		maxIterations = DefaultMaxIterations
	}

	conv, conversationID := c.memory.GetOrCreate(conversationID, func() string { return uuid.NewString() })
	conv.Lock()
	defer conv.Unlock()

	c.memory.Append(conv, llm.Message{Role: llm.RoleUser, Content: query})

	if maxIterations == 0 {
		// spec.md §8: max_iterations=0 forces immediate summarization with
		// no tool use — a single LLM call, tools omitted entirely.
		return c.forceSummary(ctx, conv, conversationID, 0, []string{})
	}

	schemas := c.registry.Schemas()
	toolCallsMade := []string{}

	for iteration := 1; iteration <= maxIterations; iteration++ {
		messages := c.assembleMessages(conv)
		resp, err := c.chatWithRetry(ctx, messages, schemas)
		if err != nil {
			// KindLLMTransient failures are retried in chatWithRetry up to
			// retryMax times with backoff, per spec.md §7; what reaches
			// here is either a non-retryable KindLLMUnavailable or a
			// transient failure that survived every retry, so the turn
			// ends gracefully either way.
			return c.errorResult(conversationID, iteration, "llm_error"), nil
		}

		if len(resp.ToolCalls) == 0 {
			c.memory.Append(conv, llm.Message{Role: llm.RoleAssistant, Content: resp.AssistantText})
			return Result{
				Answer:         resp.AssistantText,
				ConversationID: conversationID,
				ToolCallsMade:  toolCallsMade,
				Iterations:     iteration,
				StopReason:     string(llm.StopEndTurn),
			}, nil
		}

		c.memory.Append(conv, llm.Message{Role: llm.RoleAssistant, Content: resp.AssistantText})

		for _, tc := range resp.ToolCalls {
			toolCallsMade = append(toolCallsMade, tc.Name)
			result, callErr := c.callTool(ctx, tc)
			c.memory.Append(conv, llm.Message{
				Role:       llm.RoleTool,
				Content:    result,
				ToolCallID: tc.ID,
				ToolName:   tc.Name,
			})
			if callErr != nil {
				c.log.Warn().Err(callErr).Str("tool", tc.Name).Msg("tool call failed")
			}
		}

		if iteration == maxIterations {
			return c.forceSummary(ctx, conv, conversationID, iteration, toolCallsMade)
		}
	}

	// unreachable: the loop above always returns by maxIterations.
	return c.errorResult(conversationID, maxIterations, "llm_error"), nil
}

// chatWithRetry retries an adapter.Chat call with exponential backoff
// (base, factor 2) up to retryMax times, but only when the failure is
// classified as a transient LLM error (apperr.Retryable) — a non-retryable
// KindLLMUnavailable returns immediately. After retryMax attempts a still-
// transient failure is returned as-is; the caller treats it the same as
// any other error. Mirrors internal/ingest.withRetry's shape.
func (c *Controller) chatWithRetry(ctx context.Context, messages []llm.Message, toolSchemas []tools.Schema) (llm.ChatResponse, error) {
	var resp llm.ChatResponse
	var err error
	for attempt := 0; attempt < c.retryMax; attempt++ {
		resp, err = c.adapter.Chat(ctx, messages, toolSchemas)
		if err == nil {
			return resp, nil
		}
		if !apperr.Retryable(err) {
			return resp, err
		}
		c.log.Warn().Err(err).Int("attempt", attempt+1).Msg("retrying transient LLM error")
		delay := c.backoffBase << uint(attempt)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return resp, ctx.Err()
		}
	}
	return resp, err
}

func (c *Controller) assembleMessages(conv *Conversation) []llm.Message {
	messages := make([]llm.Message, 0, len(conv.Messages)+1)
	messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: systemPrompt})
	messages = append(messages, conv.Messages...)
	return messages
}

func (c *Controller) callTool(ctx context.Context, tc llm.ToolCall) (string, error) {
	var args map[string]any
	if err := json.Unmarshal([]byte(tc.ArgumentsJSON), &args); err != nil {
		payload, _ := json.Marshal(map[string]any{"error": "invalid arguments_json: " + err.Error()})
		return string(payload), err
	}
	result, err := c.registry.Call(ctx, tc.Name, args)
	if err != nil {
		payload, _ := json.Marshal(map[string]any{"error": err.Error(), "kind": string(apperr.KindOf(err))})
		return string(payload), err
	}
	payload, err := json.Marshal(result)
	if err != nil {
		payload, _ = json.Marshal(map[string]any{"error": "failed to encode tool result: " + err.Error()})
		return string(payload), err
	}
	return string(payload), nil
}

// forceSummary is the "force-terminate and ask the LLM for a final summary
// without tools in one last call" step spec.md §4.8 requires on exhaustion.
func (c *Controller) forceSummary(ctx context.Context, conv *Conversation, conversationID string, iteration int, toolCallsMade []string) (Result, error) {
	messages := c.assembleMessages(conv)
	messages = append(messages, llm.Message{
		Role:    llm.RoleUser,
		Content: "Summarize your findings so far as a final answer. Do not request any more tools.",
	})
	resp, err := c.chatWithRetry(ctx, messages, nil)
	if err != nil {
		return c.errorResult(conversationID, iteration, "llm_error"), nil
	}
	c.memory.Append(conv, llm.Message{Role: llm.RoleAssistant, Content: resp.AssistantText})
	return Result{
		Answer:         resp.AssistantText,
		ConversationID: conversationID,
		ToolCallsMade:  toolCallsMade,
		Iterations:     iteration,
		StopReason:     "max_iterations",
	}, nil
}

func (c *Controller) errorResult(conversationID string, iterations int, stopReason string) Result {
	return Result{
		Answer:         "I ran into a problem talking to the language model and couldn't finish this query. Please try again.",
		ConversationID: conversationID,
		ToolCallsMade:  []string{},
		Iterations:     iterations,
		StopReason:     stopReason,
	}
}
