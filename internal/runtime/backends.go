package runtime

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"smithy/internal/project"
)

// MockBackend answers deterministically without network access. It echoes a
// digest of the request so chat transcripts stay inspectable.
type MockBackend struct {
	name  string
	model string
}

func NewMockBackend(name, model string) *MockBackend {
	return &MockBackend{name: name, model: model}
}

func (b *MockBackend) Name() string { return b.name }

func (b *MockBackend) Generate(_ context.Context, _ Credential, req BackendRequest) (BackendResponse, error) {
	model := coalesce(req.Model, b.model, "mock-small")
	parts := []string{fmt.Sprintf("model=%s", model), fmt.Sprintf("entries=%d", len(req.Entries))}
	if last := lastEntryText(req.Entries, RoleUser); last != "" {
		parts = append(parts, fmt.Sprintf("input=%q", clipText(last, 90)))
	}
	if len(req.Tools) > 0 {
		parts = append(parts, fmt.Sprintf("tools=%d", len(req.Tools)))
	}
	return BackendResponse{
		Text:         "[mock-backend] " + strings.Join(parts, " | "),
		Model:        model,
		FinishReason: "stop",
	}, nil
}

func lastEntryText(entries []ConversationEntry, role string) string {
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].Role == role {
			return entries[i].Text()
		}
	}
	return ""
}

// HTTPBackend speaks the chat-completions wire format shared by the hosted
// providers. The rotating credential supplies the bearer token per call.
type HTTPBackend struct {
	cfg    project.ProviderConfig
	client *http.Client
}

func (b *HTTPBackend) Name() string { return b.cfg.Name }

func (b *HTTPBackend) Generate(ctx context.Context, cred Credential, req BackendRequest) (BackendResponse, error) {
	model := coalesce(req.Model, b.cfg.Model)
	if model == "" {
		return BackendResponse{}, fmt.Errorf("backend %s: no model configured", b.cfg.Name)
	}

	payload := map[string]any{
		"model":    model,
		"messages": chatMessagesFromEntries(req.Entries),
		"stream":   false,
	}
	if len(req.Tools) > 0 {
		payload["tools"] = chatToolDefinitions(req.Tools)
		payload["tool_choice"] = "auto"
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return BackendResponse{}, fmt.Errorf("marshal backend payload: %w", err)
	}

	hreq, err := http.NewRequestWithContext(ctx, http.MethodPost, chatCompletionsURL(b.cfg.BaseURL), bytes.NewReader(body))
	if err != nil {
		return BackendResponse{}, fmt.Errorf("create backend request: %w", err)
	}
	hreq.Header.Set("Content-Type", "application/json")
	hreq.Header.Set("Accept", "application/json")
	if cred.Secret != "" {
		hreq.Header.Set("Authorization", "Bearer "+cred.Secret)
	}
	for k, v := range b.cfg.Headers {
		hreq.Header.Set(k, v)
	}

	resp, err := b.client.Do(hreq)
	if err != nil {
		return BackendResponse{}, fmt.Errorf("backend http call: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	if err != nil {
		return BackendResponse{}, fmt.Errorf("read backend response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return BackendResponse{}, fmt.Errorf("backend %s status %d: %s", b.cfg.Name, resp.StatusCode, clipText(string(respBody), 500))
	}

	var out chatCompletionResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return BackendResponse{}, fmt.Errorf("parse backend response: %w", err)
	}
	if len(out.Choices) == 0 {
		return BackendResponse{}, fmt.Errorf("backend %s: response had no choices", b.cfg.Name)
	}

	choice := out.Choices[0]
	calls := make([]ToolCallRequest, 0, len(choice.Message.ToolCalls))
	for _, tc := range choice.Message.ToolCalls {
		calls = append(calls, ToolCallRequest{
			ID:           tc.ID,
			Name:         tc.Function.Name,
			RawArguments: tc.Function.Arguments,
		})
	}
	return BackendResponse{
		Text:         chatMessageContentString(choice.Message.Content),
		ToolCalls:    calls,
		Model:        coalesce(out.Model, model),
		FinishReason: choice.FinishReason,
	}, nil
}

// chatMessagesFromEntries flattens conversation entries into chat-completions
// messages. Assistant tool calls and tool results keep their call IDs so the
// provider can pair them.
func chatMessagesFromEntries(entries []ConversationEntry) []map[string]any {
	messages := make([]map[string]any, 0, len(entries))
	for _, e := range entries {
		role := e.Role
		if e.Synthetic {
			role = RoleSystem
		}
		var (
			text      strings.Builder
			toolCalls []map[string]any
		)
		for _, p := range e.Parts {
			switch {
			case p.ToolCall != nil:
				toolCalls = append(toolCalls, map[string]any{
					"id":   p.ToolCall.CallID,
					"type": "function",
					"function": map[string]any{
						"name":      p.ToolCall.Name,
						"arguments": p.ToolCall.Arguments,
					},
				})
			case p.ToolResult != nil:
				messages = append(messages, map[string]any{
					"role":         RoleTool,
					"tool_call_id": p.ToolResult.CallID,
					"content":      p.ToolResult.Content,
				})
			default:
				text.WriteString(p.Text)
			}
		}
		if len(toolCalls) > 0 {
			msg := map[string]any{"role": role, "tool_calls": toolCalls}
			if text.Len() > 0 {
				msg["content"] = text.String()
			} else {
				msg["content"] = nil
			}
			messages = append(messages, msg)
			continue
		}
		if text.Len() > 0 {
			messages = append(messages, map[string]any{"role": role, "content": text.String()})
		}
	}
	return messages
}

func chatToolDefinitions(decls []ToolDeclaration) []map[string]any {
	out := make([]map[string]any, 0, len(decls))
	for _, d := range decls {
		out = append(out, map[string]any{
			"type":     "function",
			"function": d.Schema(),
		})
	}
	return out
}

func chatCompletionsURL(baseURL string) string {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return "https://api.openai.com/v1/chat/completions"
	}
	if strings.HasSuffix(baseURL, "/chat/completions") {
		return baseURL
	}
	return baseURL + "/chat/completions"
}

type chatCompletionResponse struct {
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
}

type chatChoice struct {
	FinishReason string          `json:"finish_reason"`
	Message      chatWireMessage `json:"message"`
}

type chatWireMessage struct {
	Role      string             `json:"role"`
	Content   any                `json:"content"`
	ToolCalls []chatWireToolCall `json:"tool_calls,omitempty"`
}

type chatWireToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

// Content arrives as either a string or a structured block list depending on
// the provider; normalize both to text.
func chatMessageContentString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

// NewBackend builds the backend for a provider config. Unknown types with a
// base URL fall back to the generic chat-completions client.
func NewBackend(pc project.ProviderConfig) (Backend, error) {
	timeout := time.Duration(pc.TimeoutMS) * time.Millisecond
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	switch pc.Type {
	case "", "mock":
		return NewMockBackend(coalesce(pc.Name, "mock"), pc.Model), nil
	case "http", "openai", "deepseek", "ollama":
		return &HTTPBackend{cfg: pc, client: &http.Client{Timeout: timeout}}, nil
	default:
		if strings.TrimSpace(pc.BaseURL) != "" {
			return &HTTPBackend{cfg: pc, client: &http.Client{Timeout: timeout}}, nil
		}
		return nil, fmt.Errorf("provider %q has unsupported type %q", pc.Name, pc.Type)
	}
}

func coalesce(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
