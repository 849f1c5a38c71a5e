package runtime

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeWorkspaceFile(t *testing.T, dir, rel, content string) string {
	t.Helper()
	full := filepath.Join(dir, rel)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return full
}

func toolErrKind(t *testing.T, err error) ToolErrorKind {
	t.Helper()
	if err == nil {
		t.Fatalf("expected a tool error")
	}
	return AsToolError(err).Kind
}

func TestFileReadLineRange(t *testing.T) {
	ws := t.TempDir()
	writeWorkspaceFile(t, ws, "notes.txt", "one\ntwo\nthree\nfour\n")
	tool := NewFileReadTool(ws, ToolOptions{})

	res, err := tool.Execute(context.Background(), map[string]any{
		"path": "notes.txt", "start_line": 2, "end_line": 3,
	}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Content != "two\nthree" {
		t.Fatalf("content = %q, want %q", res.Content, "two\nthree")
	}
}

func TestFileReadMissingFile(t *testing.T) {
	tool := NewFileReadTool(t.TempDir(), ToolOptions{})
	_, err := tool.Execute(context.Background(), map[string]any{"path": "nope.txt"}, nil)
	if kind := toolErrKind(t, err); kind != ToolErrResourceNotFound {
		t.Fatalf("kind = %s, want resource_not_found", kind)
	}
}

func TestFileReadRejectsEscapingPaths(t *testing.T) {
	tool := NewFileReadTool(t.TempDir(), ToolOptions{})
	for _, p := range []string{"../secret", "/etc/passwd", "a/../../b"} {
		_, err := tool.Execute(context.Background(), map[string]any{"path": p}, nil)
		if kind := toolErrKind(t, err); kind != ToolErrInvalidParameters {
			t.Fatalf("path %q: kind = %s, want invalid_parameters", p, kind)
		}
	}
}

func TestFileWriteCreateAndOverwriteGuard(t *testing.T) {
	ws := t.TempDir()
	tool := NewFileWriteTool(ws, ToolOptions{})

	res, err := tool.Execute(context.Background(), map[string]any{
		"path": "out/new.txt", "content": "hello",
	}, nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !strings.HasPrefix(res.Content, "created ") {
		t.Fatalf("content = %q", res.Content)
	}
	if b, _ := os.ReadFile(filepath.Join(ws, "out/new.txt")); string(b) != "hello" {
		t.Fatalf("file content = %q", b)
	}

	// Existing file without overwrite=true is refused.
	_, err = tool.Execute(context.Background(), map[string]any{
		"path": "out/new.txt", "content": "changed",
	}, nil)
	if kind := toolErrKind(t, err); kind != ToolErrInvalidParameters {
		t.Fatalf("kind = %s, want invalid_parameters", kind)
	}

	res, err = tool.Execute(context.Background(), map[string]any{
		"path": "out/new.txt", "content": "changed", "overwrite": true,
	}, nil)
	if err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	if !strings.HasPrefix(res.Content, "overwrote ") {
		t.Fatalf("content = %q", res.Content)
	}
}

func TestFileWriteSha1Guard(t *testing.T) {
	ws := t.TempDir()
	writeWorkspaceFile(t, ws, "guarded.txt", "original")
	tool := NewFileWriteTool(ws, ToolOptions{})

	_, err := tool.Execute(context.Background(), map[string]any{
		"path": "guarded.txt", "content": "update", "overwrite": true,
		"expected_sha1": sha1Hex([]byte("something else")),
	}, nil)
	if kind := toolErrKind(t, err); kind != ToolErrConcurrentConflict {
		t.Fatalf("kind = %s, want conflicting_concurrent_write", kind)
	}

	// Matching guard lets the write through.
	if _, err = tool.Execute(context.Background(), map[string]any{
		"path": "guarded.txt", "content": "update", "overwrite": true,
		"expected_sha1": sha1Hex([]byte("original")),
	}, nil); err != nil {
		t.Fatalf("guarded write: %v", err)
	}
}

func TestFileWriteIdenticalContentIsNoChange(t *testing.T) {
	ws := t.TempDir()
	writeWorkspaceFile(t, ws, "same.txt", "stable")
	tool := NewFileWriteTool(ws, ToolOptions{})

	_, err := tool.Execute(context.Background(), map[string]any{
		"path": "same.txt", "content": "stable", "overwrite": true,
	}, nil)
	if kind := toolErrKind(t, err); kind != ToolErrNoChangeProduced {
		t.Fatalf("kind = %s, want no_change_produced", kind)
	}
}

func TestCodeOutlineGoFile(t *testing.T) {
	ws := t.TempDir()
	src := `package demo

import "fmt"

type Greeter struct{}

func (g *Greeter) Hello(name string) {
	fmt.Println(name)
}

func main() {}
`
	writeWorkspaceFile(t, ws, "demo.go", src)
	tool := NewCodeOutlineTool(ws, ToolOptions{})

	res, err := tool.Execute(context.Background(), map[string]any{"path": "demo.go"}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []string{"import \"fmt\"", "type Greeter struct", "func (g *Greeter) Hello", "func main()"} {
		if !strings.Contains(res.Content, want) {
			t.Fatalf("outline missing %q:\n%s", want, res.Content)
		}
	}
	if strings.Contains(res.Content, "fmt.Println") {
		t.Fatalf("outline should skip function bodies:\n%s", res.Content)
	}
}

func TestCodeOutlineUnsupportedExtension(t *testing.T) {
	ws := t.TempDir()
	writeWorkspaceFile(t, ws, "data.csv", "a,b\n")
	tool := NewCodeOutlineTool(ws, ToolOptions{})
	_, err := tool.Execute(context.Background(), map[string]any{"path": "data.csv"}, nil)
	if kind := toolErrKind(t, err); kind != ToolErrInvalidParameters {
		t.Fatalf("kind = %s, want invalid_parameters", kind)
	}
}

func TestLintFindings(t *testing.T) {
	ws := t.TempDir()
	src := "short line\n" +
		"trailing  \n" +
		"has a fixme marker\n" +
		strings.Repeat("x", 40) + "\n"
	writeWorkspaceFile(t, ws, "messy.txt", src)
	tool := NewLintTool(ws, ToolOptions{})

	res, err := tool.Execute(context.Background(), map[string]any{
		"path": "messy.txt", "max_line_length": 30,
	}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []string{"trailing whitespace", "leftover marker", "line exceeds 30 characters"} {
		if !strings.Contains(res.Content, want) {
			t.Fatalf("findings missing %q:\n%s", want, res.Content)
		}
	}
}

func TestLintCleanFile(t *testing.T) {
	ws := t.TempDir()
	writeWorkspaceFile(t, ws, "clean.txt", "all good\nnothing to report\n")
	tool := NewLintTool(ws, ToolOptions{})
	res, err := tool.Execute(context.Background(), map[string]any{"path": "clean.txt"}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(res.Content, "no findings") {
		t.Fatalf("content = %q", res.Content)
	}
}

func TestShellExecCapturesExitCode(t *testing.T) {
	tool := NewShellTool(t.TempDir(), ToolOptions{})
	res, err := tool.Execute(context.Background(), map[string]any{
		"command": "echo hi; exit 3",
	}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(res.Content, "exit_code: 3") || !strings.Contains(res.Content, "hi") {
		t.Fatalf("content = %q", res.Content)
	}
}
