package tool

import (
	"context"
	"testing"
)

func echoTool(name string) *Tool {
	return &Tool{
		Name:        name,
		Description: "echoes its arguments",
		Parameters: []Parameter{
			{Name: "text", Type: "string", Description: "text to echo", Required: true},
			{Name: "repeat", Type: "integer", Description: "times to repeat", Default: 1},
		},
		Handler: func(_ context.Context, args map[string]any) (*Result, error) {
			return &Result{Output: args, Confidence: 1.0}, nil
		},
	}
}

func TestExecuteAppliesDefaults(t *testing.T) {
	res, err := echoTool("echo").Execute(context.Background(), map[string]any{"text": "hi"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	args := res.Output.(map[string]any)
	if args["repeat"] != 1 {
		t.Errorf("repeat = %v, want default 1", args["repeat"])
	}
	if args["text"] != "hi" {
		t.Errorf("text = %v", args["text"])
	}
}

func TestExecuteMissingRequired(t *testing.T) {
	if _, err := echoTool("echo").Execute(context.Background(), map[string]any{}); err == nil {
		t.Fatal("missing required parameter should fail")
	}
}

func TestExecuteWithoutHandler(t *testing.T) {
	bad := &Tool{Name: "bad"}
	if _, err := bad.Execute(context.Background(), nil); err == nil {
		t.Fatal("tool without handler should fail")
	}
}

func TestResultText(t *testing.T) {
	r := &Result{Output: map[string]any{"key": "value"}}
	if got := r.Text(); got != `{"key":"value"}` {
		t.Errorf("Text = %q", got)
	}
	var nilResult *Result
	if got := nilResult.Text(); got != "{}" {
		t.Errorf("nil result Text = %q, want {}", got)
	}
}

func TestToJSONSchema(t *testing.T) {
	schema := echoTool("echo").ToJSONSchema()
	if schema["type"] != "function" {
		t.Errorf("type = %v, want function", schema["type"])
	}
	fn := schema["function"].(map[string]any)
	if fn["name"] != "echo" {
		t.Errorf("name = %v", fn["name"])
	}
	params := fn["parameters"].(map[string]any)
	required := params["required"].([]string)
	if len(required) != 1 || required[0] != "text" {
		t.Errorf("required = %v, want [text]", required)
	}
	props := params["properties"].(map[string]any)
	if _, ok := props["repeat"]; !ok {
		t.Error("properties missing repeat")
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	for _, name := range []string{"b", "a"} {
		if err := r.Register(echoTool(name)); err != nil {
			t.Fatalf("Register %s: %v", name, err)
		}
	}

	if err := r.Register(echoTool("a")); err == nil {
		t.Error("duplicate registration should fail")
	}
	if err := r.Register(nil); err == nil {
		t.Error("nil tool should be rejected")
	}

	names := r.Names()
	if len(names) != 2 || names[0] != "a" || names[1] != "b" {
		t.Errorf("Names = %v, want [a b]", names)
	}

	if _, ok := r.Get("a"); !ok {
		t.Error("Get(a) should succeed")
	}
	if _, ok := r.Get("missing"); ok {
		t.Error("Get(missing) should fail")
	}

	schemas := r.ToJSONSchemas()
	if len(schemas) != 2 {
		t.Fatalf("len(schemas) = %d, want 2", len(schemas))
	}
	first := schemas[0]["function"].(map[string]any)
	if first["name"] != "a" {
		t.Errorf("schemas should be ordered by name, first = %v", first["name"])
	}
}
