package script

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load reads and validates a single script file.
func Load(path string) (*Script, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var sc Script
	if err := yaml.Unmarshal(b, &sc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	sc.Source = path
	if sc.Name == "" {
		sc.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	if err := Validate(&sc); err != nil {
		return nil, fmt.Errorf("script %s: %w", path, err)
	}
	return &sc, nil
}

// LoadDir loads every .yaml/.yml script under dir, sorted by file name.
// A missing directory yields an empty list.
func LoadDir(dir string) ([]*Script, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read dir %s: %w", dir, err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	scripts := make([]*Script, 0, len(entries))
	for _, ent := range entries {
		if ent.IsDir() {
			continue
		}
		name := ent.Name()
		if strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_") {
			continue
		}
		ext := strings.ToLower(filepath.Ext(name))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		sc, err := Load(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		scripts = append(scripts, sc)
	}
	return scripts, nil
}

// Validate checks structural invariants: known roles, ai_placeholder
// messages without static content, and placeholders resolvable from the
// declared parameters or from prior-turn outputs.
func Validate(sc *Script) error {
	if sc == nil {
		return fmt.Errorf("script is nil")
	}
	known := map[string]struct{}{}
	for name := range sc.Parameters {
		known[name] = struct{}{}
	}
	// Values produced by earlier turns become available to later ones.
	known["last_output"] = struct{}{}

	for ti, turn := range sc.Turns {
		if len(turn.Messages) == 0 {
			return fmt.Errorf("turn %d has no messages", ti+1)
		}
		for mi, msg := range turn.Messages {
			if !ValidRole(msg.Role) {
				return fmt.Errorf("turn %d message %d: unknown role %q", ti+1, mi+1, msg.Role)
			}
			if msg.AIPlaceholder {
				if strings.TrimSpace(msg.Content) != "" {
					return fmt.Errorf("turn %d message %d: ai_placeholder message must not carry static content", ti+1, mi+1)
				}
				if ti == 0 {
					return fmt.Errorf("turn 1 message %d: ai_placeholder needs a prior backend output", mi+1)
				}
				continue
			}
			for _, name := range Placeholders(msg.Content) {
				if _, ok := known[name]; ok {
					continue
				}
				if strings.HasPrefix(name, "turn_") && strings.HasSuffix(name, "_output") {
					continue
				}
				return fmt.Errorf("turn %d message %d: placeholder %q is not a declared parameter", ti+1, mi+1, name)
			}
		}
	}
	return nil
}
