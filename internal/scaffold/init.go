package scaffold

import (
	"fmt"
	"os"
	"path/filepath"
)

const RootConfigTemplate = `version: 1
default_provider: local_mock
providers:
  - name: local_mock
    type: mock
    model: mock-small
    timeout_ms: 3000
  # - name: deepseek
  #   type: deepseek
  #   model: deepseek-chat
  #   timeout_ms: 30000
  #   max_attempts: 3
  #   credentials:
  #     - id: primary
  #       label: primary key
  #       secret_env: DEEPSEEK_API_KEY
model_budgets:
  - model: mock-small
    context_tokens: 4096
retain_tail: 8
tools:
  max_bytes: 262144
  timeout_ms: 15000
memory:
  type: memory
  # type: redis
  # address: 127.0.0.1:6379
`

const AskScriptTemplate = `name: ask
parameters:
  request: ""
turns:
  - messages:
      - role: system
        content: |
          You are a coding assistant working inside the user's project.
          Use the available tools to inspect and modify files; never invent file contents.
      - role: user
        content: "{{request}}"
`

const ReviewScriptTemplate = `name: review
parameters:
  path: ""
turns:
  - messages:
      - role: system
        content: |
          You review code for correctness and clarity. Read the file before judging it.
      - role: user
        content: "Review {{path}}. Start from its outline, then read the parts that matter."
    instructions:
      - require_tool_call
  - messages:
      - role: user
        content: "Condense the review into an ordered action list."
    instructions:
      - summarize
`

// InitWorkspace lays out a fresh smithy workspace: the root config, a
// scripts directory with two starters, and a sessions directory.
func InitWorkspace(workspace string) error {
	dirs := []string{
		filepath.Join(workspace, "scripts"),
		filepath.Join(workspace, "sessions"),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	if err := writeIfMissing(filepath.Join(workspace, "smithy.yaml"), RootConfigTemplate); err != nil {
		return err
	}
	if err := writeIfMissing(filepath.Join(workspace, "scripts", "ask.yaml"), AskScriptTemplate); err != nil {
		return err
	}
	return writeIfMissing(filepath.Join(workspace, "scripts", "review.yaml"), ReviewScriptTemplate)
}

func writeIfMissing(path, content string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
