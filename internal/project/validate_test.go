package project

import "testing"

func validProject() *Project {
	return &Project{
		Root: RootConfig{
			Version:         1,
			DefaultProvider: "local_mock",
			Providers: []ProviderConfig{
				{Name: "local_mock", Type: "mock", Model: "mock-small"},
			},
		},
	}
}

func findIssue(t *testing.T, verr *ValidationError, field string) Issue {
	t.Helper()
	if verr == nil {
		t.Fatalf("expected validation issues for field %q", field)
	}
	for _, it := range verr.Issues {
		if it.Field == field {
			return it
		}
	}
	t.Fatalf("no issue for field %q in %v", field, verr.Issues)
	return Issue{}
}

func TestValidateAcceptsMinimalConfig(t *testing.T) {
	if verr := Validate(validProject()); verr != nil {
		t.Fatalf("expected clean validation, got %v", verr)
	}
}

func TestValidateRequiresProviders(t *testing.T) {
	p := validProject()
	p.Root.Providers = nil
	p.Root.DefaultProvider = ""
	verr := Validate(p)
	if it := findIssue(t, verr, "providers"); it.Level != IssueError {
		t.Fatalf("issue = %+v, want error level", it)
	}
	if !verr.HasErrors() {
		t.Fatalf("HasErrors should report true")
	}
}

func TestValidateRejectsUnknownProviderType(t *testing.T) {
	p := validProject()
	p.Root.Providers[0].Type = "carrier-pigeon"
	findIssue(t, Validate(p), "type")
}

func TestValidateHTTPProviderNeedsBaseURL(t *testing.T) {
	p := validProject()
	p.Root.Providers = append(p.Root.Providers, ProviderConfig{
		Name: "api", Type: "http",
		Credentials: []CredentialConfig{{ID: "k0", Secret: "s"}},
	})
	findIssue(t, Validate(p), "base_url")
}

func TestValidateUnknownDefaultProvider(t *testing.T) {
	p := validProject()
	p.Root.DefaultProvider = "nope"
	findIssue(t, Validate(p), "default_provider")
}

func TestValidateCredentialIssues(t *testing.T) {
	p := validProject()
	p.Root.Providers = append(p.Root.Providers, ProviderConfig{
		Name: "api", Type: "deepseek",
		Credentials: []CredentialConfig{
			{ID: "k0", Secret: "s"},
			{ID: "k0", Secret: "s2"},
			{ID: "k1"},
		},
	})
	verr := Validate(p)
	if it := findIssue(t, verr, "id"); it.Message != "duplicate credential id" {
		t.Fatalf("issue = %+v", it)
	}
	findIssue(t, verr, "secret")
}

func TestValidateNoCredentialsIsOnlyAWarning(t *testing.T) {
	p := validProject()
	p.Root.Providers = append(p.Root.Providers, ProviderConfig{Name: "api", Type: "deepseek"})
	verr := Validate(p)
	if it := findIssue(t, verr, "credentials"); it.Level != IssueWarning {
		t.Fatalf("issue = %+v, want warning level", it)
	}
	if verr.HasErrors() {
		t.Fatalf("warnings alone must not count as errors: %v", verr)
	}
}

func TestValidateUnknownDisabledToolWarns(t *testing.T) {
	p := validProject()
	p.Root.Tools.Disabled = []string{"file_read", "teleport"}
	verr := Validate(p)
	if it := findIssue(t, verr, "tools.disabled[1]"); it.Level != IssueWarning {
		t.Fatalf("issue = %+v, want warning level", it)
	}
}

func TestValidateModelBudgets(t *testing.T) {
	p := validProject()
	p.Root.ModelBudgets = []ModelBudgetConfig{
		{Model: "m", ContextTokens: 4096},
		{Model: "m", ContextTokens: 8192},
		{Model: "n", ContextTokens: 0},
	}
	verr := Validate(p)
	if it := findIssue(t, verr, "model"); it.Message != "duplicate model budget" {
		t.Fatalf("issue = %+v", it)
	}
	findIssue(t, verr, "context_tokens")
}

func TestValidateRedisMemoryNeedsAddress(t *testing.T) {
	p := validProject()
	p.Root.Memory = MemoryConfig{Type: "redis"}
	findIssue(t, Validate(p), "memory.address")

	p.Root.Memory = MemoryConfig{Type: "vapor"}
	findIssue(t, Validate(p), "memory.type")
}

func TestCredentialConfigResolveSecret(t *testing.T) {
	cc := CredentialConfig{ID: "k", Secret: "inline"}
	if got := cc.ResolveSecret(); got != "inline" {
		t.Fatalf("secret = %q", got)
	}

	t.Setenv("SMITHY_TEST_SECRET", "from-env")
	cc = CredentialConfig{ID: "k", SecretEnv: "SMITHY_TEST_SECRET"}
	if got := cc.ResolveSecret(); got != "from-env" {
		t.Fatalf("secret = %q", got)
	}

	active := false
	cc.Active = &active
	if cc.IsActive() {
		t.Fatalf("explicit active=false must win")
	}
	cc.Active = nil
	if !cc.IsActive() {
		t.Fatalf("nil active defaults to true")
	}
}
