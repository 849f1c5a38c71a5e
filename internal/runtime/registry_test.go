package runtime

import (
	"context"
	"testing"
)

type stubTool struct {
	decl ToolDeclaration
	run  func(ctx context.Context, args map[string]any) (ToolResult, error)
}

func (t *stubTool) Declaration() ToolDeclaration        { return t.decl }
func (t *stubTool) Locate(args map[string]any) []string { return nil }
func (t *stubTool) Execute(ctx context.Context, args map[string]any, progress func(string)) (ToolResult, error) {
	if t.run == nil {
		return ToolResult{Content: "ok"}, nil
	}
	return t.run(ctx, args)
}

func newStubTool(name string, params ...ParamSpec) *stubTool {
	return &stubTool{decl: ToolDeclaration{Name: name, Description: name, Parameters: params}}
}

func TestRegistryReplaceKeepsSingleEntry(t *testing.T) {
	reg := NewRegistry()
	first := newStubTool("dup")
	first.decl.Description = "first"
	second := newStubTool("dup")
	second.decl.Description = "second"

	if err := reg.Register(first); err != nil {
		t.Fatalf("register first: %v", err)
	}
	if err := reg.Register(second); err != nil {
		t.Fatalf("register second: %v", err)
	}

	all := reg.All()
	if len(all) != 1 {
		t.Fatalf("expected exactly one entry after re-registration, got %d", len(all))
	}
	if all[0].Declaration().Description != "second" {
		t.Fatalf("expected latest registration to win, got %q", all[0].Declaration().Description)
	}
}

func TestRegistryPreservesInsertionOrder(t *testing.T) {
	reg := NewRegistry()
	for _, name := range []string{"c", "a", "b"} {
		if err := reg.Register(newStubTool(name)); err != nil {
			t.Fatalf("register %s: %v", name, err)
		}
	}
	// Replacing a keeps its original position.
	if err := reg.Register(newStubTool("a")); err != nil {
		t.Fatalf("re-register a: %v", err)
	}

	decls := reg.Declarations()
	got := make([]string, 0, len(decls))
	for _, d := range decls {
		got = append(got, d.Name)
	}
	want := []string{"c", "a", "b"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("declaration order = %v, want %v", got, want)
		}
	}
}

func TestValidateArgumentsMissingRequired(t *testing.T) {
	decl := ToolDeclaration{
		Name:       "x",
		Parameters: []ParamSpec{{Name: "path", Type: "string", Required: true}},
	}
	_, terr := ValidateArguments(decl, map[string]any{})
	if terr == nil || terr.Kind != ToolErrInvalidParameters {
		t.Fatalf("expected invalid_parameters, got %v", terr)
	}
}

func TestValidateArgumentsRejectsUnknownParam(t *testing.T) {
	decl := ToolDeclaration{
		Name:       "x",
		Parameters: []ParamSpec{{Name: "path", Type: "string", Required: true}},
	}
	_, terr := ValidateArguments(decl, map[string]any{"path": "a", "bogus": 1})
	if terr == nil || terr.Kind != ToolErrInvalidParameters {
		t.Fatalf("expected invalid_parameters for unknown key, got %v", terr)
	}
}

func TestValidateArgumentsCoercesIntegerFloats(t *testing.T) {
	decl := ToolDeclaration{
		Name:       "x",
		Parameters: []ParamSpec{{Name: "count", Type: "integer"}},
	}
	args, terr := ValidateArguments(decl, map[string]any{"count": float64(7)})
	if terr != nil {
		t.Fatalf("unexpected error: %v", terr)
	}
	if v, ok := intArg(args, "count"); !ok || v != 7 {
		t.Fatalf("count = %v ok=%v, want 7", v, ok)
	}

	_, terr = ValidateArguments(decl, map[string]any{"count": 7.5})
	if terr == nil || terr.Kind != ToolErrInvalidParameters {
		t.Fatalf("expected invalid_parameters for fractional integer, got %v", terr)
	}
}

func TestDecodeArgumentsEmptyIsEmptyMap(t *testing.T) {
	args, terr := DecodeArguments("")
	if terr != nil {
		t.Fatalf("unexpected error: %v", terr)
	}
	if args == nil || len(args) != 0 {
		t.Fatalf("expected empty map, got %v", args)
	}

	if _, terr := DecodeArguments("{not json"); terr == nil {
		t.Fatalf("expected error for malformed arguments")
	}
}
