package runtime

import (
	"bufio"
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// ToolOptions carries per-tool configuration from the workspace config.
type ToolOptions struct {
	MaxBytes  int
	TimeoutMS int
}

// FileReadTool reads a workspace-relative file, optionally a line range.
type FileReadTool struct {
	workspace string
	opts      ToolOptions
}

func NewFileReadTool(workspace string, opts ToolOptions) *FileReadTool {
	return &FileReadTool{workspace: workspace, opts: opts}
}

func (t *FileReadTool) Declaration() ToolDeclaration {
	return ToolDeclaration{
		Name:        "file_read",
		DisplayName: "Read file",
		Description: "Reads a text file from the workspace, optionally a 1-based line range.",
		ReadOnly:    true,
		Parameters: []ParamSpec{
			{Name: "path", Type: "string", Description: "Path inside the workspace (relative path only)", Required: true},
			{Name: "start_line", Type: "integer", Description: "1-based start line (inclusive)"},
			{Name: "end_line", Type: "integer", Description: "1-based end line (inclusive)"},
		},
	}
}

func (t *FileReadTool) Locate(args map[string]any) []string {
	if p := strings.TrimSpace(stringArg(args, "path")); p != "" {
		return []string{"file:" + filepath.Clean(p)}
	}
	return nil
}

type fileReadParams struct {
	path      string
	startLine int
	endLine   int
}

func (t *FileReadTool) parseParams(args map[string]any) (fileReadParams, *ToolError) {
	p := fileReadParams{path: strings.TrimSpace(stringArg(args, "path"))}
	if p.path == "" {
		return p, toolErrorf(ToolErrInvalidParameters, "path must not be empty")
	}
	if v, ok := intArg(args, "start_line"); ok {
		if v < 1 {
			return p, toolErrorf(ToolErrInvalidParameters, "start_line must be >= 1")
		}
		p.startLine = v
	}
	if v, ok := intArg(args, "end_line"); ok {
		if p.startLine > 0 && v < p.startLine {
			return p, toolErrorf(ToolErrInvalidParameters, "end_line must be >= start_line")
		}
		p.endLine = v
	}
	return p, nil
}

func (t *FileReadTool) Execute(ctx context.Context, args map[string]any, progress func(string)) (ToolResult, error) {
	if err := ctx.Err(); err != nil {
		return ToolResult{}, err
	}
	p, terr := t.parseParams(args)
	if terr != nil {
		return ToolResult{}, terr
	}
	clean, full, err := resolveWorkspacePath(t.workspace, p.path)
	if err != nil {
		return ToolResult{}, toolErrorf(ToolErrInvalidParameters, "%v", err)
	}
	f, err := os.Open(full)
	if err != nil {
		if os.IsNotExist(err) {
			return ToolResult{}, toolErrorf(ToolErrResourceNotFound, "file %s does not exist", clean)
		}
		return ToolResult{}, toolErrorf(ToolErrExecution, "open %s: %v", clean, err)
	}
	defer f.Close()

	maxBytes := t.opts.MaxBytes
	if maxBytes <= 0 {
		maxBytes = 64 * 1024
	}

	if p.startLine == 0 && p.endLine == 0 {
		b, err := io.ReadAll(io.LimitReader(f, int64(maxBytes)))
		if err != nil {
			return ToolResult{}, toolErrorf(ToolErrExecution, "read %s: %v", clean, err)
		}
		return ToolResult{
			Content: string(b),
			Display: fmt.Sprintf("read %s (%d bytes)", clean, len(b)),
		}, nil
	}

	start := p.startLine
	if start == 0 {
		start = 1
	}
	end := p.endLine
	if end == 0 {
		end = start + 199
	}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 2*1024*1024)
	var (
		lineNo int
		lines  []string
		used   int
	)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return ToolResult{}, err
		}
		lineNo++
		if lineNo < start {
			continue
		}
		if lineNo > end {
			break
		}
		txt := scanner.Text()
		if used+len(txt)+1 > maxBytes {
			break
		}
		lines = append(lines, txt)
		used += len(txt) + 1
	}
	if err := scanner.Err(); err != nil {
		return ToolResult{}, toolErrorf(ToolErrExecution, "scan %s: %v", clean, err)
	}
	text := strings.Join(lines, "\n")
	return ToolResult{
		Content: text,
		Display: fmt.Sprintf("read %s lines %d-%d (%d lines)", clean, start, end, len(lines)),
	}, nil
}

// FileWriteTool writes a workspace-relative file atomically. An optional
// expected_sha1 guard detects stale writes; identical content is reported as
// no change produced.
type FileWriteTool struct {
	workspace string
	opts      ToolOptions
}

func NewFileWriteTool(workspace string, opts ToolOptions) *FileWriteTool {
	return &FileWriteTool{workspace: workspace, opts: opts}
}

func (t *FileWriteTool) Declaration() ToolDeclaration {
	return ToolDeclaration{
		Name:        "file_write",
		DisplayName: "Write file",
		Description: "Writes full text content to a workspace file atomically. Set overwrite=true to replace an existing file; pass expected_sha1 to guard against concurrent edits.",
		Parameters: []ParamSpec{
			{Name: "path", Type: "string", Description: "Path inside the workspace (relative path only)", Required: true},
			{Name: "content", Type: "string", Description: "Full text content to write", Required: true},
			{Name: "overwrite", Type: "boolean", Description: "Replace an existing file (default false)"},
			{Name: "expected_sha1", Type: "string", Description: "Fail if the current file sha1 differs"},
		},
	}
}

func (t *FileWriteTool) Locate(args map[string]any) []string {
	if p := strings.TrimSpace(stringArg(args, "path")); p != "" {
		return []string{"file:" + filepath.Clean(p)}
	}
	return nil
}

func (t *FileWriteTool) Execute(ctx context.Context, args map[string]any, progress func(string)) (ToolResult, error) {
	// Checked before any externally visible side effect.
	if err := ctx.Err(); err != nil {
		return ToolResult{}, err
	}
	pathVal := strings.TrimSpace(stringArg(args, "path"))
	if pathVal == "" {
		return ToolResult{}, toolErrorf(ToolErrInvalidParameters, "path must not be empty")
	}
	content, hasContent := args["content"].(string)
	if !hasContent {
		return ToolResult{}, toolErrorf(ToolErrInvalidParameters, "content must be a string")
	}
	maxBytes := t.opts.MaxBytes
	if maxBytes <= 0 {
		maxBytes = 256 * 1024
	}
	if len(content) > maxBytes {
		return ToolResult{}, toolErrorf(ToolErrInvalidParameters, "content exceeds %d bytes", maxBytes)
	}
	overwrite, _ := boolArg(args, "overwrite")

	clean, full, err := resolveWorkspacePath(t.workspace, pathVal)
	if err != nil {
		return ToolResult{}, toolErrorf(ToolErrInvalidParameters, "%v", err)
	}

	var exists bool
	if st, err := os.Stat(full); err == nil {
		if st.IsDir() {
			return ToolResult{}, toolErrorf(ToolErrInvalidParameters, "target path %s is a directory", clean)
		}
		exists = true
	} else if !os.IsNotExist(err) {
		return ToolResult{}, toolErrorf(ToolErrExecution, "stat %s: %v", clean, err)
	}

	if exists {
		if !overwrite {
			return ToolResult{}, toolErrorf(ToolErrInvalidParameters, "file %s exists; set overwrite=true to replace it", clean)
		}
		prev, err := os.ReadFile(full)
		if err != nil {
			return ToolResult{}, toolErrorf(ToolErrExecution, "read existing %s: %v", clean, err)
		}
		if expected := strings.TrimSpace(stringArg(args, "expected_sha1")); expected != "" {
			if got := sha1Hex(prev); !strings.EqualFold(expected, got) {
				return ToolResult{}, toolErrorf(ToolErrConcurrentConflict,
					"file %s changed since it was read (expected sha1 %s, found %s)", clean, expected, got)
			}
		}
		if bytes.Equal(prev, []byte(content)) {
			return ToolResult{}, toolErrorf(ToolErrNoChangeProduced, "file %s already has the requested content", clean)
		}
	}

	// Last safe point before committing the write.
	if err := ctx.Err(); err != nil {
		return ToolResult{}, err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return ToolResult{}, toolErrorf(ToolErrExecution, "create parent dirs for %s: %v", clean, err)
	}
	if err := writeFileAtomic(full, []byte(content), 0o644); err != nil {
		return ToolResult{}, toolErrorf(ToolErrExecution, "write %s: %v", clean, err)
	}

	verb := "created"
	if exists {
		verb = "overwrote"
	}
	sum := sha1Hex([]byte(content))
	return ToolResult{
		Content: fmt.Sprintf("%s %s (%d bytes, sha1 %s)", verb, clean, len(content), sum),
		Display: fmt.Sprintf("%s %s (%d bytes)", verb, clean, len(content)),
	}, nil
}

// ShellTool runs one shell command rooted at the workspace with a bounded
// execution window and captured combined output.
type ShellTool struct {
	workspace string
	opts      ToolOptions
}

func NewShellTool(workspace string, opts ToolOptions) *ShellTool {
	return &ShellTool{workspace: workspace, opts: opts}
}

func (t *ShellTool) Declaration() ToolDeclaration {
	return ToolDeclaration{
		Name:        "shell_exec",
		DisplayName: "Run shell command",
		Description: "Runs a shell command in the workspace and returns its combined output and exit code.",
		Parameters: []ParamSpec{
			{Name: "command", Type: "string", Description: "Shell command line to run", Required: true},
			{Name: "timeout_ms", Type: "integer", Description: "Optional execution time limit in milliseconds"},
		},
	}
}

func (t *ShellTool) Locate(args map[string]any) []string {
	// Shell commands may touch anything in the workspace; serialize them.
	return []string{"shell:workspace"}
}

func (t *ShellTool) Execute(ctx context.Context, args map[string]any, progress func(string)) (ToolResult, error) {
	if err := ctx.Err(); err != nil {
		return ToolResult{}, err
	}
	command := strings.TrimSpace(stringArg(args, "command"))
	if command == "" {
		return ToolResult{}, toolErrorf(ToolErrInvalidParameters, "command must not be empty")
	}

	timeout := time.Duration(t.opts.TimeoutMS) * time.Millisecond
	if v, ok := intArg(args, "timeout_ms"); ok && v > 0 {
		timeout = time.Duration(v) * time.Millisecond
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if progress != nil {
		progress("$ " + command)
	}
	cmd := exec.CommandContext(runCtx, "sh", "-c", command)
	cmd.Dir = t.workspace
	out, err := cmd.CombinedOutput()

	maxBytes := t.opts.MaxBytes
	if maxBytes <= 0 {
		maxBytes = 64 * 1024
	}
	truncated := false
	if len(out) > maxBytes {
		out = out[:maxBytes]
		truncated = true
	}

	exitCode := 0
	if err != nil {
		var exitErr *exec.ExitError
		switch {
		case runCtx.Err() == context.DeadlineExceeded:
			return ToolResult{}, toolErrorf(ToolErrExecution, "command timed out after %s", timeout)
		case ctx.Err() != nil:
			return ToolResult{}, ctx.Err()
		case errors.As(err, &exitErr):
			exitCode = exitErr.ExitCode()
		default:
			return ToolResult{}, toolErrorf(ToolErrExecution, "run command: %v", err)
		}
	}

	content := fmt.Sprintf("exit_code: %d\n", exitCode)
	if truncated {
		content += "output (truncated):\n"
	} else {
		content += "output:\n"
	}
	content += string(out)
	return ToolResult{
		Content: content,
		Display: fmt.Sprintf("ran %q (exit %d, %d bytes output)", clipText(command, 60), exitCode, len(out)),
	}, nil
}

func resolveWorkspacePath(workspace, pathVal string) (clean string, full string, err error) {
	clean = filepath.Clean(pathVal)
	if filepath.IsAbs(clean) {
		return "", "", fmt.Errorf("absolute paths are not allowed")
	}
	workspaceClean := filepath.Clean(workspace)
	full = filepath.Clean(filepath.Join(workspaceClean, clean))
	if full != workspaceClean && !strings.HasPrefix(full, workspaceClean+string(os.PathSeparator)) {
		return "", "", fmt.Errorf("path escapes workspace")
	}
	return clean, full, nil
}

func sha1Hex(b []byte) string {
	sum := sha1.Sum(b)
	return hex.EncodeToString(sum[:])
}

func writeFileAtomic(path string, b []byte, mode os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".smithy-write-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpPath) }
	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Chmod(mode); err != nil {
		_ = tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		cleanup()
		return err
	}
	return nil
}
