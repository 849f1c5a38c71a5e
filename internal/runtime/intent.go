package runtime

import (
	"regexp"
	"strings"
)

// IntentLabel is a heuristic classification of the user request shape,
// used upstream of the engine to bias prompting and tool selection.
type IntentLabel string

const (
	IntentCreate   IntentLabel = "CREATE"
	IntentDebug    IntentLabel = "DEBUG"
	IntentQuestion IntentLabel = "QUESTION"
	IntentRefactor IntentLabel = "REFACTOR"
	IntentExplain  IntentLabel = "EXPLAIN"
)

// ProjectContext carries the workspace signals the classifier consults.
type ProjectContext struct {
	HasExistingFiles bool
}

const stackTraceDebugBonus = 3

var (
	debugKeywords = []string{
		"fix", "bug", "error", "crash", "fail", "broken", "panic",
		"exception", "not working", "doesn't work", "stack trace", "traceback",
	}
	createKeywords = []string{
		"create", "build", "write", "make a", "new ", "generate",
		"implement", "add a", "scaffold", "set up",
	}
	refactorKeywords = []string{
		"refactor", "clean up", "rename", "restructure", "simplify", "extract",
	}
	explainKeywords = []string{
		"explain", "describe", "walk me through", "what does", "how does",
	}
	questionStarters = []string{
		"what", "how", "why", "when", "where", "which", "who",
		"can ", "could ", "should ", "is ", "are ", "does ", "do ",
	}

	stackTracePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?m)^\s*panic:`),
		regexp.MustCompile(`(?m)^goroutine \d+`),
		regexp.MustCompile(`\.go:\d+`),
		regexp.MustCompile(`Traceback \(most recent call last\)`),
		regexp.MustCompile(`(?m)^\s*File "`),
		regexp.MustCompile(`Exception in thread`),
		regexp.MustCompile(`\s+at [\w$.]+\([\w$.]*\.java:\d+\)`),
	}
)

// ClassifyIntent is a pure function over the normalized message: independent
// keyword scores per label plus boolean signals. The result set preserves
// first-detected order, is deduplicated, and is never empty: when nothing
// scores, the default is DEBUG for a populated workspace and CREATE for an
// empty one.
func ClassifyIntent(message string, pctx ProjectContext) []IntentLabel {
	normalized := strings.ToLower(strings.TrimSpace(message))

	debugScore := keywordScore(normalized, debugKeywords)
	createScore := keywordScore(normalized, createKeywords)
	refactorScore := keywordScore(normalized, refactorKeywords)
	explainScore := keywordScore(normalized, explainKeywords)

	hasStackTrace := containsStackTrace(message)
	if hasStackTrace {
		// A pasted trace dominates: boost DEBUG and suppress QUESTION even
		// when question signals are present.
		debugScore += stackTraceDebugBonus
	}
	questionSignal := !hasStackTrace && looksLikeQuestion(normalized)

	var labels []IntentLabel
	add := func(l IntentLabel) {
		for _, have := range labels {
			if have == l {
				return
			}
		}
		labels = append(labels, l)
	}

	if debugScore > 0 {
		add(IntentDebug)
	}
	if createScore > 0 && (!pctx.HasExistingFiles || createScore > debugScore) {
		add(IntentCreate)
	}
	if refactorScore > 0 {
		add(IntentRefactor)
	}
	if explainScore > 0 {
		add(IntentExplain)
	}
	if questionSignal {
		add(IntentQuestion)
	}

	if len(labels) == 0 {
		if pctx.HasExistingFiles {
			add(IntentDebug)
		} else {
			add(IntentCreate)
		}
	}
	return labels
}

func keywordScore(normalized string, keywords []string) int {
	score := 0
	for _, kw := range keywords {
		if strings.Contains(normalized, kw) {
			score++
		}
	}
	return score
}

func looksLikeQuestion(normalized string) bool {
	if strings.HasSuffix(normalized, "?") {
		return true
	}
	for _, starter := range questionStarters {
		if strings.HasPrefix(normalized, starter) {
			return true
		}
	}
	return false
}

func containsStackTrace(message string) bool {
	for _, pat := range stackTracePatterns {
		if pat.MatchString(message) {
			return true
		}
	}
	return false
}
