package scaffold

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var scriptNamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

type ScriptTemplateOptions struct {
	Name        string
	Description string
	Force       bool
}

// CreateScriptFile writes a starter script under scripts/<name>.yaml.
func CreateScriptFile(workspace string, opts ScriptTemplateOptions) (string, error) {
	name := strings.TrimSpace(opts.Name)
	if name == "" {
		return "", fmt.Errorf("script name is required")
	}
	if !scriptNamePattern.MatchString(name) {
		return "", fmt.Errorf("invalid script name %q (use letters, numbers, _ or -)", name)
	}

	scriptsDir := filepath.Join(workspace, "scripts")
	if err := os.MkdirAll(scriptsDir, 0o755); err != nil {
		return "", fmt.Errorf("create %s: %w", scriptsDir, err)
	}
	outPath := filepath.Join(scriptsDir, name+".yaml")
	if !opts.Force {
		if _, err := os.Stat(outPath); err == nil {
			return "", fmt.Errorf("%s already exists (use --force to overwrite)", outPath)
		}
	}

	if err := os.WriteFile(outPath, []byte(renderScriptTemplate(name)), 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", outPath, err)
	}
	return outPath, nil
}

func renderScriptTemplate(name string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "name: %s\n", name)
	b.WriteString("parameters:\n")
	b.WriteString("  request: \"\"\n")
	b.WriteString("turns:\n")
	b.WriteString("  - messages:\n")
	b.WriteString("      - role: system\n")
	b.WriteString("        content: |\n")
	fmt.Fprintf(&b, "          You are running the %s script. State assumptions clearly.\n", name)
	b.WriteString("      - role: user\n")
	b.WriteString("        content: \"{{request}}\"\n")
	b.WriteString("  # - messages:\n")
	b.WriteString("  #     - role: user\n")
	b.WriteString("  #       content: \"Refine the previous answer: {{last_output}}\"\n")
	b.WriteString("  #   instructions:\n")
	b.WriteString("  #     - summarize\n")
	return b.String()
}
