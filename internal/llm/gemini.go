package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dvloznov/finance-agent/internal/tools"
	"google.golang.org/genai"
)

// GeminiProvider talks to Gemini via google.golang.org/genai, the same SDK
// the teacher's internal/pipeline/parser.go uses for document parsing —
// here generalized from a single fixed prompt into full chat + tool-calling.
type GeminiProvider struct {
	client *genai.Client
	model  string
}

// NewGeminiProvider builds a provider bound to model (e.g. "gemini-2.5-flash").
func NewGeminiProvider(ctx context.Context, model string) (*GeminiProvider, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
	})
	if err != nil {
		return nil, fmt.Errorf("llm.NewGeminiProvider: create genai client: %w", err)
	}
	if model == "" {
		model = "gemini-2.5-flash"
	}
	return &GeminiProvider{client: client, model: model}, nil
}

func (p *GeminiProvider) Name() string { return "gemini" }

func (p *GeminiProvider) Chat(ctx context.Context, messages []Message, toolSchemas []tools.Schema) (ChatResponse, error) {
	contents, systemInstruction := toGeminiContents(messages)

	config := &genai.GenerateContentConfig{}
	if systemInstruction != "" {
		config.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: systemInstruction}}}
	}
	if len(toolSchemas) > 0 {
		config.Tools = []*genai.Tool{{FunctionDeclarations: toGeminiFunctionDeclarations(toolSchemas)}}
	}

	resp, err := p.client.Models.GenerateContent(ctx, p.model, contents, config)
	if err != nil {
		return ChatResponse{}, fmt.Errorf("llm.GeminiProvider.Chat: %w", err)
	}
	return fromGeminiResponse(resp), nil
}

func toGeminiContents(messages []Message) (contents []*genai.Content, systemInstruction string) {
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			if systemInstruction != "" {
				systemInstruction += "\n"
			}
			systemInstruction += m.Content
		case RoleTool:
			var response map[string]any
			if err := json.Unmarshal([]byte(m.Content), &response); err != nil {
				response = map[string]any{"result": m.Content}
			}
			contents = append(contents, &genai.Content{
				Role: "function",
				Parts: []*genai.Part{{
					FunctionResponse: &genai.FunctionResponse{Name: m.ToolName, Response: response},
				}},
			})
		case RoleAssistant:
			contents = append(contents, &genai.Content{Role: "model", Parts: []*genai.Part{{Text: m.Content}}})
		default:
			contents = append(contents, &genai.Content{Role: "user", Parts: []*genai.Part{{Text: m.Content}}})
		}
	}
	return contents, systemInstruction
}

func toGeminiFunctionDeclarations(schemas []tools.Schema) []*genai.FunctionDeclaration {
	out := make([]*genai.FunctionDeclaration, 0, len(schemas))
	for _, s := range schemas {
		out = append(out, &genai.FunctionDeclaration{
			Name:        s.Name,
			Description: s.Description,
			Parameters:  toGeminiSchema(s.Parameters),
		})
	}
	return out
}

func toGeminiSchema(params []tools.Parameter) *genai.Schema {
	props := make(map[string]*genai.Schema, len(params))
	var required []string
	for _, p := range params {
		props[p.Name] = toGeminiParamSchema(p)
		if p.Required {
			required = append(required, p.Name)
		}
	}
	return &genai.Schema{Type: genai.TypeObject, Properties: props, Required: required}
}

func toGeminiParamSchema(p tools.Parameter) *genai.Schema {
	s := &genai.Schema{Description: p.Description}
	switch p.Type {
	case tools.TypeNumber:
		s.Type = genai.TypeNumber
	case tools.TypeArray:
		s.Type = genai.TypeArray
		if p.Items != nil {
			s.Items = toGeminiParamSchema(*p.Items)
		}
	default:
		s.Type = genai.TypeString
	}
	s.Enum = p.Enum
	return s
}

func fromGeminiResponse(resp *genai.GenerateContentResponse) ChatResponse {
	out := ChatResponse{StopReason: StopEndTurn}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return out
	}
	for _, part := range resp.Candidates[0].Content.Parts {
		if part.Text != "" {
			out.AssistantText += part.Text
		}
		if part.FunctionCall != nil {
			// Gemini has no per-call id the way OpenAI-style APIs do; the
			// function name doubles as the id since the agent loop only
			// needs it to pair a tool result back to its request within
			// one turn.
			args, _ := json.Marshal(part.FunctionCall.Args)
			out.ToolCalls = append(out.ToolCalls, ToolCall{
				ID:            part.FunctionCall.Name,
				Name:          part.FunctionCall.Name,
				ArgumentsJSON: string(args),
			})
		}
	}
	if len(out.ToolCalls) > 0 {
		out.StopReason = StopToolCalls
	}
	if resp.UsageMetadata != nil {
		out.Usage = Usage{
			PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
			CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
			TotalTokens:      int(resp.UsageMetadata.TotalTokenCount),
		}
	}
	return out
}
