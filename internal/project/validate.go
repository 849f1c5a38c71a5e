package project

import (
	"fmt"
	"strings"
)

var validProviderTypes = map[string]struct{}{
	"mock":     {},
	"http":     {},
	"openai":   {},
	"deepseek": {},
	"ollama":   {},
}

var validMemoryTypes = map[string]struct{}{
	"":       {},
	"memory": {},
	"redis":  {},
}

var knownToolNames = map[string]struct{}{
	"file_read":    {},
	"file_write":   {},
	"shell_exec":   {},
	"code_outline": {},
	"lint":         {},
}

// Validate checks the loaded workspace configuration. Warnings never block
// execution; any error-level issue does.
func Validate(p *Project) *ValidationError {
	issues := []Issue{}
	if p == nil {
		issues = append(issues, Issue{Level: IssueError, Path: RootConfigFile, Message: "project is nil"})
		return &ValidationError{Issues: issues}
	}

	if p.Root.Version <= 0 {
		issues = append(issues, Issue{Level: IssueError, Path: RootConfigFile, Field: "version", Message: "must be >= 1"})
	}
	if len(p.Root.Providers) == 0 {
		issues = append(issues, Issue{Level: IssueError, Path: RootConfigFile, Field: "providers", Message: "at least one provider is required"})
	}

	providerByName := map[string]ProviderConfig{}
	for i, pc := range p.Root.Providers {
		path := fmt.Sprintf("%s.providers[%d]", RootConfigFile, i)
		if strings.TrimSpace(pc.Name) == "" {
			issues = append(issues, Issue{Level: IssueError, Path: path, Field: "name", Message: "is required"})
			continue
		}
		if _, exists := providerByName[pc.Name]; exists {
			issues = append(issues, Issue{Level: IssueError, Path: path, Field: "name", Message: "duplicate provider name"})
		}
		providerByName[pc.Name] = pc
		if _, ok := validProviderTypes[pc.Type]; !ok && pc.Type != "" {
			issues = append(issues, Issue{Level: IssueError, Path: path, Field: "type", Message: "unsupported provider type"})
		}
		if pc.TimeoutMS < 0 {
			issues = append(issues, Issue{Level: IssueError, Path: path, Field: "timeout_ms", Message: "must be >= 0"})
		}
		if pc.MaxAttempts < 0 {
			issues = append(issues, Issue{Level: IssueError, Path: path, Field: "max_attempts", Message: "must be >= 0"})
		}
		if pc.Type == "http" && strings.TrimSpace(pc.BaseURL) == "" {
			issues = append(issues, Issue{Level: IssueError, Path: path, Field: "base_url", Message: "is required for http provider"})
		}
		issues = append(issues, validateCredentials(path, pc)...)
	}

	if p.Root.DefaultProvider != "" {
		if _, ok := providerByName[p.Root.DefaultProvider]; !ok {
			issues = append(issues, Issue{Level: IssueError, Path: RootConfigFile, Field: "default_provider", Message: "references unknown provider"})
		}
	}

	for i, name := range p.Root.Tools.Disabled {
		if _, ok := knownToolNames[name]; !ok {
			issues = append(issues, Issue{
				Level: IssueWarning, Path: RootConfigFile,
				Field:   fmt.Sprintf("tools.disabled[%d]", i),
				Message: fmt.Sprintf("unknown tool name %q", name),
			})
		}
	}
	if p.Root.Tools.MaxBytes < 0 {
		issues = append(issues, Issue{Level: IssueError, Path: RootConfigFile, Field: "tools.max_bytes", Message: "must be >= 0"})
	}
	if p.Root.Tools.TimeoutMS < 0 {
		issues = append(issues, Issue{Level: IssueError, Path: RootConfigFile, Field: "tools.timeout_ms", Message: "must be >= 0"})
	}

	seenBudgets := map[string]struct{}{}
	for i, mb := range p.Root.ModelBudgets {
		path := fmt.Sprintf("%s.model_budgets[%d]", RootConfigFile, i)
		if strings.TrimSpace(mb.Model) == "" {
			issues = append(issues, Issue{Level: IssueError, Path: path, Field: "model", Message: "is required"})
			continue
		}
		if _, ok := seenBudgets[mb.Model]; ok {
			issues = append(issues, Issue{Level: IssueError, Path: path, Field: "model", Message: "duplicate model budget"})
		}
		seenBudgets[mb.Model] = struct{}{}
		if mb.ContextTokens <= 0 {
			issues = append(issues, Issue{Level: IssueError, Path: path, Field: "context_tokens", Message: "must be > 0"})
		}
	}
	if p.Root.RetainTail < 0 {
		issues = append(issues, Issue{Level: IssueError, Path: RootConfigFile, Field: "retain_tail", Message: "must be >= 0"})
	}

	if _, ok := validMemoryTypes[p.Root.Memory.Type]; !ok {
		issues = append(issues, Issue{Level: IssueError, Path: RootConfigFile, Field: "memory.type", Message: "must be memory or redis"})
	}
	if p.Root.Memory.Type == "redis" && strings.TrimSpace(p.Root.Memory.Address) == "" {
		issues = append(issues, Issue{Level: IssueError, Path: RootConfigFile, Field: "memory.address", Message: "is required for redis memory"})
	}

	if len(issues) == 0 {
		return nil
	}
	return &ValidationError{Issues: issues}
}

func validateCredentials(providerPath string, pc ProviderConfig) []Issue {
	var issues []Issue
	if pc.Type == "mock" || pc.Type == "" {
		return nil
	}
	if len(pc.Credentials) == 0 {
		issues = append(issues, Issue{Level: IssueWarning, Path: providerPath, Field: "credentials", Message: "no credentials configured; backend calls will fail"})
		return issues
	}
	seen := map[string]struct{}{}
	activeCount := 0
	for i, cc := range pc.Credentials {
		path := fmt.Sprintf("%s.credentials[%d]", providerPath, i)
		if strings.TrimSpace(cc.ID) == "" {
			issues = append(issues, Issue{Level: IssueError, Path: path, Field: "id", Message: "is required"})
			continue
		}
		if _, ok := seen[cc.ID]; ok {
			issues = append(issues, Issue{Level: IssueError, Path: path, Field: "id", Message: "duplicate credential id"})
		}
		seen[cc.ID] = struct{}{}
		if cc.Secret == "" && cc.SecretEnv == "" {
			issues = append(issues, Issue{Level: IssueError, Path: path, Field: "secret", Message: "either secret or secret_env is required"})
		}
		if cc.Secret != "" && cc.SecretEnv != "" {
			issues = append(issues, Issue{Level: IssueWarning, Path: path, Field: "secret", Message: "both secret and secret_env set; inline secret wins"})
		}
		if cc.IsActive() {
			activeCount++
		}
	}
	if activeCount == 0 {
		issues = append(issues, Issue{Level: IssueWarning, Path: providerPath, Field: "credentials", Message: "no active credentials; backend calls will fail"})
	}
	return issues
}
