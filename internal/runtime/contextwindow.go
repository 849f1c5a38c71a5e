package runtime

import (
	"strings"
	"unicode/utf8"
)

const (
	defaultContextBudgetTokens = 4096
	defaultRetainTailEntries   = 8
	summaryLineMaxChars        = 160
)

// ContextWindowManager bounds the conversation history sent with each
// backend call. Token estimation is a fast character-count approximation,
// not tokenizer-exact; pruning keeps a verbatim tail and folds the evicted
// prefix into one synthetic summary entry.
type ContextWindowManager struct {
	budgets       map[string]int // model name -> max context tokens
	defaultBudget int
	retainTail    int
}

func NewContextWindowManager(budgets map[string]int, defaultBudget, retainTail int) *ContextWindowManager {
	if defaultBudget <= 0 {
		defaultBudget = defaultContextBudgetTokens
	}
	if retainTail <= 0 {
		retainTail = defaultRetainTailEntries
	}
	m := &ContextWindowManager{
		budgets:       make(map[string]int, len(budgets)),
		defaultBudget: defaultBudget,
		retainTail:    retainTail,
	}
	for model, budget := range budgets {
		if budget > 0 {
			m.budgets[model] = budget
		}
	}
	return m
}

// BudgetFor returns the configured token budget for a model, falling back
// to the manager default.
func (m *ContextWindowManager) BudgetFor(model string) int {
	if b, ok := m.budgets[model]; ok {
		return b
	}
	return m.defaultBudget
}

// EstimateTokens approximates the token cost of entries: roughly four
// characters per token, at least one token per non-empty entry. Empty input
// yields zero.
func (m *ContextWindowManager) EstimateTokens(entries []ConversationEntry) int {
	total := 0
	for _, e := range entries {
		text := strings.TrimSpace(e.Text())
		if text == "" {
			continue
		}
		tok := (len(text) + len(e.Role) + 3) / 4
		if tok < 1 {
			tok = 1
		}
		total += tok
	}
	return total
}

// PruneHistory returns entries unchanged when they fit the model's budget.
// Otherwise it retains the most recent entries verbatim, sized to leave
// headroom under budget, and replaces the evicted prefix with one synthetic
// summary entry. Pruning an already-pruned history never shrinks it below
// the retained tail size.
func (m *ContextWindowManager) PruneHistory(entries []ConversationEntry, model string) []ConversationEntry {
	budget := m.BudgetFor(model)
	if m.EstimateTokens(entries) <= budget {
		return entries
	}

	// Size the tail backwards against a headroom target, but never below
	// the configured minimum tail.
	headroom := budget - budget/4
	tailStart := len(entries)
	used := 0
	for i := len(entries) - 1; i >= 0; i-- {
		tok := m.EstimateTokens(entries[i : i+1])
		if used+tok > headroom && len(entries)-i > 1 {
			break
		}
		used += tok
		tailStart = i
	}
	if minStart := len(entries) - m.retainTail; tailStart > minStart && minStart >= 0 {
		tailStart = minStart
	}
	if tailStart <= 0 {
		return entries
	}

	summary := m.Summarize(entries[:tailStart])
	pruned := make([]ConversationEntry, 0, len(entries)-tailStart+1)
	if summary != "" {
		entry := textEntry(RoleSystem, "[conversation summary] "+summary)
		entry.Synthetic = true
		pruned = append(pruned, entry)
	}
	pruned = append(pruned, entries[tailStart:]...)
	return pruned
}

// Summarize compresses entries into a deterministic lossy digest: one
// role-tagged clipped first line per entry. Empty input yields "".
func (m *ContextWindowManager) Summarize(entries []ConversationEntry) string {
	if len(entries) == 0 {
		return ""
	}
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		text := firstLine(e.Text())
		if text == "" {
			continue
		}
		lines = append(lines, e.Role+": "+clipText(text, summaryLineMaxChars))
	}
	return strings.Join(lines, "\n")
}

func firstLine(s string) string {
	s = strings.TrimSpace(strings.ReplaceAll(s, "\r\n", "\n"))
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

func clipText(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	cut := max
	ellipsis := ""
	if max > 3 {
		cut = max - 3
		ellipsis = "..."
	}
	// Back off to a rune boundary so the clip never splits a multi-byte rune.
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + ellipsis
}
