package tools

import (
	"context"
	"testing"

	"github.com/dvloznov/finance-agent/internal/apperr"
)

func echoTool() Tool {
	return Tool{
		Schema: Schema{
			Name: "echo",
			Parameters: []Parameter{
				{Name: "msg", Type: TypeString, Required: true},
			},
		},
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			return args["msg"], nil
		},
	}
}

func TestRegistryRegisterAndGet(t *testing.T) {
	r := NewRegistry()
	r.Register(echoTool())

	tool, ok := r.Get("echo")
	if !ok {
		t.Fatalf("expected echo tool to be registered")
	}
	if tool.Schema.Name != "echo" {
		t.Errorf("got schema name %q, want echo", tool.Schema.Name)
	}

	if _, ok := r.Get("missing"); ok {
		t.Errorf("expected missing tool lookup to fail")
	}
}

func TestRegistryRegisterOverwrites(t *testing.T) {
	r := NewRegistry()
	r.Register(echoTool())
	calls := 0
	r.Register(Tool{
		Schema: Schema{Name: "echo"},
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			calls++
			return "replaced", nil
		},
	})
	got, err := r.Call(context.Background(), "echo", map[string]any{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "replaced" || calls != 1 {
		t.Errorf("expected replaced handler to run once, got %v calls=%d", got, calls)
	}
}

func TestRegistrySchemas(t *testing.T) {
	r := NewRegistry()
	r.Register(echoTool())
	schemas := r.Schemas()
	if len(schemas) != 1 || schemas[0].Name != "echo" {
		t.Errorf("got %v", schemas)
	}
}

func TestRegistryCallValidatesArgs(t *testing.T) {
	r := NewRegistry()
	r.Register(echoTool())

	if _, err := r.Call(context.Background(), "echo", map[string]any{}); !apperr.Is(err, apperr.KindValidation) {
		t.Errorf("expected ValidationError for missing required arg, got %v", err)
	}

	got, err := r.Call(context.Background(), "echo", map[string]any{"msg": "hi"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "hi" {
		t.Errorf("got %v, want hi", got)
	}
}

func TestRegistryCallUnknownTool(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Call(context.Background(), "nope", nil); !apperr.Is(err, apperr.KindValidation) {
		t.Errorf("expected ValidationError for unknown tool, got %v", err)
	}
}
