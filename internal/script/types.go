package script

import (
	"fmt"
	"regexp"
	"strings"
)

// Role values accepted in script messages.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one templated message inside a turn. Content may contain
// {{name}} placeholders. A message flagged ai_placeholder carries no static
// content; its text comes from the backend's most recent output.
type Message struct {
	Role          string `yaml:"role"`
	Content       string `yaml:"content"`
	AIPlaceholder bool   `yaml:"ai_placeholder"`
}

// Turn is the unit of one request/response exchange with the backend.
type Turn struct {
	Messages     []Message `yaml:"messages"`
	Instructions []string  `yaml:"instructions"`
}

// Script is an ordered sequence of turns with declared parameter defaults.
// Scripts are immutable once loaded.
type Script struct {
	Name       string            `yaml:"name"`
	Parameters map[string]string `yaml:"parameters"`
	Turns      []Turn            `yaml:"turns"`
	Source     string            `yaml:"-"`
}

func (s *Script) GetName() string { return s.Name }

var placeholderPattern = regexp.MustCompile(`\{\{\s*([A-Za-z_][A-Za-z0-9_.-]*)\s*\}\}`)

// Render substitutes {{name}} placeholders in content from vars. Every
// referenced placeholder must resolve; unresolved names are an error.
func Render(content string, vars map[string]string) (string, error) {
	var missing []string
	out := placeholderPattern.ReplaceAllStringFunc(content, func(tok string) string {
		name := strings.TrimSpace(tok[2 : len(tok)-2])
		v, ok := vars[name]
		if !ok {
			missing = append(missing, name)
			return tok
		}
		return v
	})
	if len(missing) > 0 {
		return "", fmt.Errorf("unresolved placeholder(s): %s", strings.Join(missing, ", "))
	}
	return out, nil
}

// Placeholders lists the distinct placeholder names referenced by content,
// in first-appearance order.
func Placeholders(content string) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, m := range placeholderPattern.FindAllStringSubmatch(content, -1) {
		name := m[1]
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}

// ValidRole reports whether role is one of the accepted message roles.
func ValidRole(role string) bool {
	switch role {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	}
	return false
}
