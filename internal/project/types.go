package project

import (
	"fmt"
	"os"
	"strings"
)

// RootConfig is the workspace configuration read from smithy.yaml.
type RootConfig struct {
	Version         int                 `yaml:"version"`
	DefaultProvider string              `yaml:"default_provider"`
	Providers       []ProviderConfig    `yaml:"providers"`
	Tools           ToolConfig          `yaml:"tools"`
	ModelBudgets    []ModelBudgetConfig `yaml:"model_budgets"`
	RetainTail      int                 `yaml:"retain_tail"`
	Memory          MemoryConfig        `yaml:"memory"`
}

type ProviderConfig struct {
	Name        string             `yaml:"name"`
	Type        string             `yaml:"type"`
	BaseURL     string             `yaml:"base_url"`
	Model       string             `yaml:"model"`
	Headers     map[string]string  `yaml:"headers"`
	TimeoutMS   int                `yaml:"timeout_ms"`
	MaxAttempts int                `yaml:"max_attempts"`
	Credentials []CredentialConfig `yaml:"credentials"`
}

// CredentialConfig is one pool entry. The secret may be given inline or via
// secret_env; active defaults to true when omitted.
type CredentialConfig struct {
	ID        string `yaml:"id"`
	Label     string `yaml:"label"`
	Secret    string `yaml:"secret"`
	SecretEnv string `yaml:"secret_env"`
	Active    *bool  `yaml:"active"`
}

// IsActive applies the default-true rule.
func (c CredentialConfig) IsActive() bool {
	return c.Active == nil || *c.Active
}

// ResolveSecret prefers the inline value, then the environment variable.
func (c CredentialConfig) ResolveSecret() string {
	if s := strings.TrimSpace(c.Secret); s != "" {
		return s
	}
	if c.SecretEnv != "" {
		return strings.TrimSpace(os.Getenv(c.SecretEnv))
	}
	return ""
}

type ToolConfig struct {
	Disabled  []string `yaml:"disabled"`
	MaxBytes  int      `yaml:"max_bytes"`
	TimeoutMS int      `yaml:"timeout_ms"`
}

type ModelBudgetConfig struct {
	Model         string `yaml:"model"`
	ContextTokens int    `yaml:"context_tokens"`
}

type MemoryConfig struct {
	Type      string `yaml:"type"` // "memory" (default) or "redis"
	Address   string `yaml:"address"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

// Project is the loaded workspace: the root config plus where it came from.
type Project struct {
	Root      RootConfig
	Workspace string
}

// Provider resolves a provider by name, falling back to the default.
func (p *Project) Provider(name string) (ProviderConfig, bool) {
	if name == "" {
		name = p.Root.DefaultProvider
	}
	for _, pc := range p.Root.Providers {
		if pc.Name == name {
			return pc, true
		}
	}
	return ProviderConfig{}, false
}

type IssueLevel string

const (
	IssueError   IssueLevel = "error"
	IssueWarning IssueLevel = "warning"
)

type Issue struct {
	Level   IssueLevel
	Path    string
	Field   string
	Message string
}

func (i Issue) String() string {
	if i.Field == "" {
		return fmt.Sprintf("[%s] %s: %s", i.Level, i.Path, i.Message)
	}
	return fmt.Sprintf("[%s] %s (%s): %s", i.Level, i.Path, i.Field, i.Message)
}

type ValidationError struct {
	Issues []Issue
}

func (e *ValidationError) Error() string {
	if e == nil || len(e.Issues) == 0 {
		return "validation failed"
	}
	return fmt.Sprintf("validation failed with %d issue(s)", len(e.Issues))
}

func (e *ValidationError) HasErrors() bool {
	if e == nil {
		return false
	}
	for _, it := range e.Issues {
		if it.Level == IssueError {
			return true
		}
	}
	return false
}
