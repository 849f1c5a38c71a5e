package runtime

import (
	"context"
	"time"
)

// Conversation roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Part is one piece of a conversation entry: plain text, a tool call the
// backend requested, or the result of executing one.
type Part struct {
	Text       string
	ToolCall   *ToolCallPart
	ToolResult *ToolResultPart
}

type ToolCallPart struct {
	CallID    string
	Name      string
	Arguments string
}

type ToolResultPart struct {
	CallID  string
	Name    string
	Content string
	IsError bool
}

// ConversationEntry is one element of the live context. The ordered entry
// list is append-only; insertion order is causal and never reordered.
type ConversationEntry struct {
	Role      string
	Parts     []Part
	Synthetic bool // summary entry produced by pruning, not by a participant
	CreatedAt time.Time
}

// Text concatenates the entry's textual content, including tool payloads,
// for token estimation and summarization.
func (e ConversationEntry) Text() string {
	var out string
	for _, p := range e.Parts {
		switch {
		case p.ToolCall != nil:
			out += p.ToolCall.Name + " " + p.ToolCall.Arguments
		case p.ToolResult != nil:
			out += p.ToolResult.Content
		default:
			out += p.Text
		}
	}
	return out
}

func textEntry(role, text string) ConversationEntry {
	return ConversationEntry{
		Role:      role,
		Parts:     []Part{{Text: text}},
		CreatedAt: time.Now(),
	}
}

// ToolCallRequest is a tool invocation the backend asked for. Arguments stay
// raw JSON until the engine validates them against the tool's schema.
type ToolCallRequest struct {
	ID           string
	Name         string
	RawArguments string
}

// BackendRequest is one non-streaming exchange with the model backend:
// the pruned conversation plus the declared tool set.
type BackendRequest struct {
	Model   string
	Entries []ConversationEntry
	Tools   []ToolDeclaration
}

type BackendResponse struct {
	Text         string
	ToolCalls    []ToolCallRequest
	Model        string
	FinishReason string
}

// Backend is the generic request/response contract with a model provider.
// The credential is supplied per call by the rotation manager.
type Backend interface {
	Name() string
	Generate(ctx context.Context, cred Credential, req BackendRequest) (BackendResponse, error)
}

// ToolResult is what a successful tool invocation returns: content for the
// model and a separate human-facing display string.
type ToolResult struct {
	Content string
	Display string
}

// Tool is the invocation protocol every local capability implements.
// Execute receives arguments already validated against the declaration; it
// must honor ctx cancellation at entry and at iteration boundaries, and must
// not leave a partial external side effect when cancelled before any write.
// progress may be nil; when set it receives incremental output lines.
type Tool interface {
	Declaration() ToolDeclaration
	Locate(args map[string]any) []string
	Execute(ctx context.Context, args map[string]any, progress func(string)) (ToolResult, error)
}
