package script

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRenderSubstitutesPlaceholders(t *testing.T) {
	got, err := Render("Review {{ path }} for {{reason}}", map[string]string{
		"path":   "main.go",
		"reason": "races",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "Review main.go for races" {
		t.Fatalf("rendered = %q", got)
	}
}

func TestRenderFailsOnUnresolvedPlaceholder(t *testing.T) {
	_, err := Render("hi {{who}}", nil)
	if err == nil || !strings.Contains(err.Error(), "who") {
		t.Fatalf("expected unresolved-placeholder error naming who, got %v", err)
	}
}

func TestPlaceholdersFirstAppearanceOrderDeduped(t *testing.T) {
	got := Placeholders("{{b}} and {{a}} then {{b}} again")
	want := []string{"b", "a"}
	if len(got) != len(want) {
		t.Fatalf("placeholders = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("placeholders = %v, want %v", got, want)
		}
	}
}

func TestValidateRejectsUnknownRole(t *testing.T) {
	sc := &Script{
		Name:  "bad",
		Turns: []Turn{{Messages: []Message{{Role: "narrator", Content: "hi"}}}},
	}
	if err := Validate(sc); err == nil || !strings.Contains(err.Error(), "narrator") {
		t.Fatalf("expected unknown-role error, got %v", err)
	}
}

func TestValidateAIPlaceholderRules(t *testing.T) {
	// ai_placeholder in the first turn has no output to echo.
	sc := &Script{
		Name:  "p",
		Turns: []Turn{{Messages: []Message{{Role: RoleAssistant, AIPlaceholder: true}}}},
	}
	if err := Validate(sc); err == nil {
		t.Fatalf("expected first-turn ai_placeholder rejection")
	}

	// Static content on an ai_placeholder message is contradictory.
	sc = &Script{
		Name: "p",
		Turns: []Turn{
			{Messages: []Message{{Role: RoleUser, Content: "hi"}}},
			{Messages: []Message{{Role: RoleAssistant, AIPlaceholder: true, Content: "canned"}}},
		},
	}
	if err := Validate(sc); err == nil {
		t.Fatalf("expected static-content rejection")
	}

	// The valid shape: placeholder in a later turn, no content.
	sc.Turns[1].Messages[0].Content = ""
	if err := Validate(sc); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidatePlaceholderResolution(t *testing.T) {
	sc := &Script{
		Name:       "v",
		Parameters: map[string]string{"request": ""},
		Turns: []Turn{
			{Messages: []Message{{Role: RoleUser, Content: "{{request}}"}}},
			{Messages: []Message{{Role: RoleUser, Content: "was this right? {{last_output}} {{turn_1_output}}"}}},
		},
	}
	if err := Validate(sc); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	sc.Turns[0].Messages[0].Content = "{{undeclared}}"
	if err := Validate(sc); err == nil || !strings.Contains(err.Error(), "undeclared") {
		t.Fatalf("expected undeclared-parameter error, got %v", err)
	}
}

func TestLoadDefaultsNameFromFilename(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "triage.yaml")
	body := "turns:\n  - messages:\n      - role: user\n        content: look at the failing test\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	sc, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if sc.Name != "triage" {
		t.Fatalf("name = %q, want triage", sc.Name)
	}
	if sc.Source != path {
		t.Fatalf("source = %q", sc.Source)
	}
}

func TestLoadDirSkipsHiddenAndNonYAML(t *testing.T) {
	dir := t.TempDir()
	body := "turns:\n  - messages:\n      - role: user\n        content: hello\n"
	for _, name := range []string{"b.yaml", "a.yml", ".hidden.yaml", "_draft.yaml", "readme.md"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	scripts, err := LoadDir(dir)
	if err != nil {
		t.Fatalf("LoadDir: %v", err)
	}
	if len(scripts) != 2 {
		t.Fatalf("loaded %d scripts, want 2", len(scripts))
	}
	if scripts[0].Name != "a" || scripts[1].Name != "b" {
		t.Fatalf("order = %q, %q; want a then b", scripts[0].Name, scripts[1].Name)
	}
}

func TestLoadDirMissingDirectoryIsEmpty(t *testing.T) {
	scripts, err := LoadDir(filepath.Join(t.TempDir(), "nope"))
	if err != nil {
		t.Fatalf("LoadDir: %v", err)
	}
	if len(scripts) != 0 {
		t.Fatalf("expected no scripts, got %d", len(scripts))
	}
}
