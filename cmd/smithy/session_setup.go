package main

import (
	"fmt"
	"os"
	"strings"

	"smithy/internal/memory"
	"smithy/internal/project"
	"smithy/internal/runtime"
)

// sessionSetup bundles everything one assisted session needs. Close releases
// the memory store connection.
type sessionSetup struct {
	Engine   *runtime.Engine
	Provider project.ProviderConfig
	Context  runtime.ProjectContext
	store    memory.Store
}

func (s *sessionSetup) Close() {
	if s != nil && s.store != nil {
		_ = s.store.Close()
	}
}

func (s *sessionSetup) Store() memory.Store { return s.store }

func newSession(workspace string, p *project.Project, providerName string) (*sessionSetup, error) {
	pc, ok := p.Provider(providerName)
	if !ok {
		name := providerName
		if name == "" {
			name = p.Root.DefaultProvider
		}
		return nil, fmt.Errorf("unknown provider %q (check smithy.yaml)", name)
	}

	backend, err := runtime.NewBackend(pc)
	if err != nil {
		return nil, err
	}
	pool := buildCredentialPool(pc)
	registry, err := buildRegistry(workspace, p.Root.Tools)
	if err != nil {
		return nil, err
	}
	windows := buildContextWindows(p.Root)
	store, err := buildMemoryStore(p.Root.Memory)
	if err != nil {
		return nil, err
	}

	eng, err := runtime.NewEngine(backend, pool, registry, windows, runtime.EngineOptions{
		Model:       pc.Model,
		MaxAttempts: pc.MaxAttempts,
		Snippets:    store,
	})
	if err != nil {
		store.Close()
		return nil, err
	}
	return &sessionSetup{
		Engine:   eng,
		Provider: pc,
		Context:  runtime.ProjectContext{HasExistingFiles: workspaceHasFiles(workspace)},
		store:    store,
	}, nil
}

func buildCredentialPool(pc project.ProviderConfig) *runtime.CredentialPool {
	creds := make([]runtime.Credential, 0, len(pc.Credentials))
	for _, cc := range pc.Credentials {
		creds = append(creds, runtime.Credential{
			ID:     cc.ID,
			Secret: cc.ResolveSecret(),
			Label:  cc.Label,
			Active: cc.IsActive(),
		})
	}
	// The mock backend ignores credentials, but the rotation layer still
	// needs one active entry to attempt the call with.
	if len(creds) == 0 && (pc.Type == "" || pc.Type == "mock") {
		creds = append(creds, runtime.Credential{ID: "local", Label: "local mock", Active: true})
	}
	return runtime.NewCredentialPool(pc.Name, creds)
}

func buildRegistry(workspace string, tc project.ToolConfig) (*runtime.Registry, error) {
	disabled := map[string]bool{}
	for _, name := range tc.Disabled {
		disabled[name] = true
	}
	opts := runtime.ToolOptions{MaxBytes: tc.MaxBytes, TimeoutMS: tc.TimeoutMS}

	reg := runtime.NewRegistry()
	tools := []runtime.Tool{
		runtime.NewFileReadTool(workspace, opts),
		runtime.NewFileWriteTool(workspace, opts),
		runtime.NewShellTool(workspace, opts),
		runtime.NewCodeOutlineTool(workspace, opts),
		runtime.NewLintTool(workspace, opts),
	}
	for _, t := range tools {
		if disabled[t.Declaration().Name] {
			continue
		}
		if err := reg.Register(t); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

func buildContextWindows(root project.RootConfig) *runtime.ContextWindowManager {
	budgets := make(map[string]int, len(root.ModelBudgets))
	for _, mb := range root.ModelBudgets {
		budgets[mb.Model] = mb.ContextTokens
	}
	return runtime.NewContextWindowManager(budgets, 0, root.RetainTail)
}

func buildMemoryStore(mc project.MemoryConfig) (memory.Store, error) {
	if mc.Type == "redis" {
		return memory.NewRedisStore(memory.RedisConfig{
			Address:   mc.Address,
			Password:  mc.Password,
			DB:        mc.DB,
			KeyPrefix: mc.KeyPrefix,
		})
	}
	return memory.NewInMemoryStore(), nil
}

// workspaceHasFiles reports whether the workspace already contains project
// files, ignoring dotfiles and smithy's own layout.
func workspaceHasFiles(workspace string) bool {
	ents, err := os.ReadDir(workspace)
	if err != nil {
		return false
	}
	for _, ent := range ents {
		name := ent.Name()
		if strings.HasPrefix(name, ".") || name == "smithy.yaml" || name == "scripts" || name == "sessions" {
			continue
		}
		return true
	}
	return false
}
