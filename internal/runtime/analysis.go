package runtime

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// CodeOutlineTool extracts the structural skeleton of a source file:
// imports plus top-level declarations, matched per language by line shape.
type CodeOutlineTool struct {
	workspace string
	opts      ToolOptions
}

func NewCodeOutlineTool(workspace string, opts ToolOptions) *CodeOutlineTool {
	return &CodeOutlineTool{workspace: workspace, opts: opts}
}

func (t *CodeOutlineTool) Declaration() ToolDeclaration {
	return ToolDeclaration{
		Name:        "code_outline",
		DisplayName: "Outline code structure",
		Description: "Lists imports, functions, types and classes declared in a source file, with line numbers.",
		ReadOnly:    true,
		Parameters: []ParamSpec{
			{Name: "path", Type: "string", Description: "Source file inside the workspace (relative path only)", Required: true},
		},
	}
}

func (t *CodeOutlineTool) Locate(args map[string]any) []string {
	if p := strings.TrimSpace(stringArg(args, "path")); p != "" {
		return []string{"file:" + filepath.Clean(p)}
	}
	return nil
}

var outlinePatterns = map[string][]*regexp.Regexp{
	".go": {
		regexp.MustCompile(`^import\b`),
		regexp.MustCompile(`^func\s+(\(\s*\w+\s+\*?\w+\s*\)\s*)?\w+`),
		regexp.MustCompile(`^type\s+\w+`),
		regexp.MustCompile(`^(var|const)\s+\w+`),
	},
	".py": {
		regexp.MustCompile(`^(import|from)\s+\w`),
		regexp.MustCompile(`^(async\s+)?def\s+\w+`),
		regexp.MustCompile(`^class\s+\w+`),
	},
	".js": {
		regexp.MustCompile(`^import\s`),
		regexp.MustCompile(`^(export\s+)?(async\s+)?function\s*\*?\s*\w+`),
		regexp.MustCompile(`^(export\s+)?class\s+\w+`),
		regexp.MustCompile(`^(export\s+)?const\s+\w+\s*=\s*(async\s*)?\(`),
	},
}

func outlinePatternsFor(ext string) []*regexp.Regexp {
	switch ext {
	case ".ts", ".tsx", ".jsx", ".mjs":
		return outlinePatterns[".js"]
	}
	if pats, ok := outlinePatterns[ext]; ok {
		return pats
	}
	return nil
}

func (t *CodeOutlineTool) Execute(ctx context.Context, args map[string]any, progress func(string)) (ToolResult, error) {
	if err := ctx.Err(); err != nil {
		return ToolResult{}, err
	}
	pathVal := strings.TrimSpace(stringArg(args, "path"))
	if pathVal == "" {
		return ToolResult{}, toolErrorf(ToolErrInvalidParameters, "path must not be empty")
	}
	clean, full, err := resolveWorkspacePath(t.workspace, pathVal)
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

	patterns := outlinePatternsFor(strings.ToLower(filepath.Ext(clean)))
	if patterns == nil {
		return ToolResult{}, toolErrorf(ToolErrInvalidParameters, "unsupported source language for %s", clean)
	}

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 2*1024*1024)
	var (
		lineNo int
		decls  []string
	)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return ToolResult{}, err
		}
		lineNo++
		line := scanner.Text()
		for _, pat := range patterns {
			if pat.MatchString(line) {
				decls = append(decls, fmt.Sprintf("%5d  %s", lineNo, clipText(strings.TrimRight(line, " \t{"), 110)))
				break
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return ToolResult{}, toolErrorf(ToolErrExecution, "scan %s: %v", clean, err)
	}

	content := fmt.Sprintf("outline of %s (%d lines, %d declarations)\n%s",
		clean, lineNo, len(decls), strings.Join(decls, "\n"))
	return ToolResult{
		Content: content,
		Display: fmt.Sprintf("outlined %s (%d declarations)", clean, len(decls)),
	}, nil
}

// LintTool applies quick per-line heuristic checks to one source file.
type LintTool struct {
	workspace string
	opts      ToolOptions
}

func NewLintTool(workspace string, opts ToolOptions) *LintTool {
	return &LintTool{workspace: workspace, opts: opts}
}

func (t *LintTool) Declaration() ToolDeclaration {
	return ToolDeclaration{
		Name:        "lint",
		DisplayName: "Lint file",
		Description: "Runs heuristic lint checks on a source file: long lines, trailing whitespace, mixed indentation, leftover debug markers.",
		ReadOnly:    true,
		Parameters: []ParamSpec{
			{Name: "path", Type: "string", Description: "Source file inside the workspace (relative path only)", Required: true},
			{Name: "max_line_length", Type: "integer", Description: "Line length limit (default 120)"},
		},
	}
}

func (t *LintTool) Locate(args map[string]any) []string {
	if p := strings.TrimSpace(stringArg(args, "path")); p != "" {
		return []string{"file:" + filepath.Clean(p)}
	}
	return nil
}

func (t *LintTool) Execute(ctx context.Context, args map[string]any, progress func(string)) (ToolResult, error) {
	if err := ctx.Err(); err != nil {
		return ToolResult{}, err
	}
	pathVal := strings.TrimSpace(stringArg(args, "path"))
	if pathVal == "" {
		return ToolResult{}, toolErrorf(ToolErrInvalidParameters, "path must not be empty")
	}
	maxLine := 120
	if v, ok := intArg(args, "max_line_length"); ok && v > 0 {
		maxLine = v
	}
	clean, full, err := resolveWorkspacePath(t.workspace, pathVal)
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

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 2*1024*1024)
	var (
		lineNo       int
		findings     []string
		sawTabIndent bool
		sawSpcIndent bool
	)
	report := func(line int, msg string) {
		findings = append(findings, fmt.Sprintf("%s:%d: %s", clean, line, msg))
	}
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return ToolResult{}, err
		}
		lineNo++
		line := scanner.Text()
		if len(line) > maxLine {
			report(lineNo, fmt.Sprintf("line exceeds %d characters (%d)", maxLine, len(line)))
		}
		if trimmed := strings.TrimRight(line, " \t"); trimmed != line {
			report(lineNo, "trailing whitespace")
		}
		switch {
		case strings.HasPrefix(line, "\t"):
			sawTabIndent = true
		case strings.HasPrefix(line, "    "):
			sawSpcIndent = true
		}
		lower := strings.ToLower(line)
		for _, marker := range []string{"fixme", "xxx", "do not commit"} {
			if strings.Contains(lower, marker) {
				report(lineNo, fmt.Sprintf("leftover marker %q", marker))
				break
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return ToolResult{}, toolErrorf(ToolErrExecution, "scan %s: %v", clean, err)
	}
	if sawTabIndent && sawSpcIndent {
		report(0, "mixed tab and space indentation")
	}

	var content string
	if len(findings) == 0 {
		content = fmt.Sprintf("%s: no findings (%d lines checked)", clean, lineNo)
	} else {
		content = fmt.Sprintf("%d finding(s):\n%s", len(findings), strings.Join(findings, "\n"))
	}
	return ToolResult{
		Content: content,
		Display: fmt.Sprintf("linted %s (%d findings)", clean, len(findings)),
	}, nil
}
