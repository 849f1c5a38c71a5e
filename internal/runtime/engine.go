package runtime

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"smithy/internal/script"
)

// State is the engine's position in the turn state machine.
type State string

const (
	StateIdle             State = "idle"
	StateRenderingTurn    State = "rendering-turn"
	StateAwaitingBackend  State = "awaiting-backend"
	StateParsingResponse  State = "parsing-response"
	StateDispatchingTools State = "dispatching-tools"
	StateCompleted        State = "completed"
	StateFailed           State = "failed"
)

const defaultMaxToolRounds = 8

// Turn instructions recognized by the engine.
const (
	InstructionSummarize       = "summarize"
	InstructionRequireToolCall = "require_tool_call"
)

// SnippetSource is the read side of the offline learning store. The engine
// only recalls; persisting new snippets is the caller's concern.
type SnippetSource interface {
	Recent(ctx context.Context, intent string, limit int) ([]string, error)
}

// EngineOptions tune one engine instance. Zero values pick safe defaults.
type EngineOptions struct {
	Model         string
	MaxAttempts   int // cap on credential rotation attempts per backend call; 0 means one full pool pass
	MaxToolRounds int // cap on tool-call sub-exchanges within one turn
	Snippets      SnippetSource
}

// Engine drives a script through the turn state machine: render, call the
// backend through credential rotation, dispatch requested tools, fold the
// results back into context, repeat. One engine serves one session; the
// conversation entry list it owns is never mutated by anyone else.
type Engine struct {
	backend  Backend
	pool     *CredentialPool
	registry *Registry
	windows  *ContextWindowManager
	opts     EngineOptions
}

func NewEngine(backend Backend, pool *CredentialPool, registry *Registry, windows *ContextWindowManager, opts EngineOptions) (*Engine, error) {
	if backend == nil {
		return nil, fmt.Errorf("backend is nil")
	}
	if pool == nil {
		return nil, fmt.Errorf("credential pool is nil")
	}
	if registry == nil {
		registry = NewRegistry()
	}
	if windows == nil {
		windows = NewContextWindowManager(nil, 0, 0)
	}
	if opts.MaxToolRounds <= 0 {
		opts.MaxToolRounds = defaultMaxToolRounds
	}
	return &Engine{
		backend:  backend,
		pool:     pool,
		registry: registry,
		windows:  windows,
		opts:     opts,
	}, nil
}

// Result is the outcome of one script execution.
type Result struct {
	Output       string // final turn's output text
	Entries      []ConversationEntry
	Intents      []IntentLabel
	State        State
	BackendCalls int
	ToolCalls    int
	StartedAt    time.Time
	FinishedAt   time.Time
}

// ExecuteScript runs the script to completion, discarding progress events.
func (e *Engine) ExecuteScript(ctx context.Context, sc *script.Script, params map[string]string, pctx ProjectContext) (Result, error) {
	events, wait := e.Start(ctx, sc, params, pctx)
	for range events {
	}
	return wait()
}

// Start launches script execution in its own goroutine and returns the
// bounded event stream plus a wait function delivering the final result.
// The stream always ends with exactly one terminal event, done or error.
func (e *Engine) Start(ctx context.Context, sc *script.Script, params map[string]string, pctx ProjectContext) (<-chan Event, func() (Result, error)) {
	sink := newEventSink()
	done := make(chan struct{})
	var (
		res    Result
		runErr error
	)
	go func() {
		defer close(done)
		turns := 0
		if sc != nil {
			turns = len(sc.Turns)
		}
		res, runErr = e.run(ctx, sc, params, pctx, sink)
		if runErr != nil {
			res.State = StateFailed
			sink.emitError(turns, runErr)
			return
		}
		res.State = StateCompleted
		sink.emitDone(turns)
	}()
	return sink.Events(), func() (Result, error) {
		<-done
		return res, runErr
	}
}

func (e *Engine) run(ctx context.Context, sc *script.Script, params map[string]string, pctx ProjectContext, sink *eventSink) (Result, error) {
	res := Result{State: StateIdle, StartedAt: time.Now()}
	defer func() { res.FinishedAt = time.Now() }()

	if sc == nil || len(sc.Turns) == 0 {
		return res, nil
	}

	vars := make(map[string]string, len(sc.Parameters)+len(params))
	for k, v := range sc.Parameters {
		vars[k] = v
	}
	for k, v := range params {
		vars[k] = v
	}

	var entries []ConversationEntry
	if bias := e.classifyAndBias(ctx, sc, vars, pctx, &res); bias != "" {
		entries = append(entries, textEntry(RoleSystem, bias))
	}

	// Read results are cached for the lifetime of this execution only.
	broker := newInvocationBroker()

	var lastAssistantText string
	for turnIdx, turn := range sc.Turns {
		turnNo := turnIdx + 1
		if err := ctx.Err(); err != nil {
			return res, err
		}

		res.State = StateRenderingTurn
		// turnEntries mirrors this turn's additions; pruning may rewrite the
		// shared history mid-turn, so the summarize instruction must not index
		// into it.
		var turnEntries []ConversationEntry
		appendTurnEntry := func(entry ConversationEntry) {
			entries = append(entries, entry)
			turnEntries = append(turnEntries, entry)
		}
		for _, msg := range turn.Messages {
			if msg.AIPlaceholder {
				appendTurnEntry(textEntry(msg.Role, lastAssistantText))
				continue
			}
			rendered, err := script.Render(msg.Content, vars)
			if err != nil {
				return res, fmt.Errorf("turn %d: render message: %w", turnNo, err)
			}
			appendTurnEntry(textEntry(msg.Role, rendered))
		}

		turnToolCalls := 0
		decls := e.registry.Declarations()
		for round := 0; ; round++ {
			if round >= e.opts.MaxToolRounds {
				res.Entries = entries
				return res, fmt.Errorf("turn %d: exceeded %d tool rounds", turnNo, e.opts.MaxToolRounds)
			}
			entries = e.windows.PruneHistory(entries, e.opts.Model)

			res.State = StateAwaitingBackend
			var resp BackendResponse
			callErr := e.pool.CallWithRetry(ctx, e.opts.MaxAttempts, func(ctx context.Context, cred Credential) error {
				r, err := e.backend.Generate(ctx, cred, BackendRequest{
					Model:   e.opts.Model,
					Entries: entries,
					Tools:   decls,
				})
				if err != nil {
					return err
				}
				resp = r
				return nil
			})
			if callErr != nil {
				res.Entries = entries
				return res, callErr
			}
			res.BackendCalls++

			res.State = StateParsingResponse
			var parts []Part
			if resp.Text != "" {
				parts = append(parts, Part{Text: resp.Text})
				sink.emit(Event{Kind: EventTextChunk, Turn: turnNo, Text: resp.Text})
			}
			calls := resp.ToolCalls
			for i := range calls {
				if calls[i].ID == "" {
					calls[i].ID = uuid.NewString()
				}
				parts = append(parts, Part{ToolCall: &ToolCallPart{
					CallID:    calls[i].ID,
					Name:      calls[i].Name,
					Arguments: calls[i].RawArguments,
				}})
			}
			appendTurnEntry(ConversationEntry{Role: RoleAssistant, Parts: parts, CreatedAt: time.Now()})

			if len(calls) == 0 {
				lastAssistantText = resp.Text
				break
			}

			res.State = StateDispatchingTools
			for _, call := range calls {
				sink.emit(Event{Kind: EventToolCallStarted, Turn: turnNo, ToolName: call.Name, CallID: call.ID})
			}
			results := e.dispatchToolCalls(ctx, broker, calls, sink, turnNo)
			if err := ctx.Err(); err != nil {
				res.Entries = entries
				return res, err
			}
			// Results carry their originating call ID; entries are appended in
			// request order to keep transcripts reproducible.
			for i := range results {
				appendTurnEntry(ConversationEntry{
					Role:      RoleTool,
					Parts:     []Part{{ToolResult: &results[i]}},
					CreatedAt: time.Now(),
				})
				sink.emit(Event{
					Kind:     EventToolResult,
					Turn:     turnNo,
					ToolName: results[i].Name,
					CallID:   results[i].CallID,
					IsError:  results[i].IsError,
					Text:     clipText(results[i].Content, 200),
				})
			}
			res.ToolCalls += len(calls)
			turnToolCalls += len(calls)
		}

		turnOutput := lastAssistantText
		for _, instr := range turn.Instructions {
			switch strings.TrimSpace(instr) {
			case InstructionSummarize:
				turnOutput = e.windows.Summarize(turnEntries)
			case InstructionRequireToolCall:
				if turnToolCalls == 0 {
					res.Entries = entries
					return res, fmt.Errorf("turn %d: required a tool call but the backend made none", turnNo)
				}
			}
		}
		vars["last_output"] = turnOutput
		vars[fmt.Sprintf("turn_%d_output", turnNo)] = turnOutput
		res.Output = turnOutput
	}

	res.Entries = entries
	return res, nil
}

// classifyAndBias classifies the script's opening user message and builds the
// system entry that steers the backend: detected intents plus any prior
// snippets recalled for the primary one.
func (e *Engine) classifyAndBias(ctx context.Context, sc *script.Script, vars map[string]string, pctx ProjectContext, res *Result) string {
	request := firstUserMessage(sc, vars)
	if request == "" {
		return ""
	}
	res.Intents = ClassifyIntent(request, pctx)

	labels := make([]string, 0, len(res.Intents))
	for _, l := range res.Intents {
		labels = append(labels, strings.ToLower(string(l)))
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Detected request intent: %s.", strings.Join(labels, ", "))
	switch res.Intents[0] {
	case IntentDebug:
		b.WriteString(" Prefer inspecting existing files and running checks before proposing edits.")
	case IntentCreate:
		b.WriteString(" Prefer creating new files over modifying existing ones.")
	case IntentRefactor:
		b.WriteString(" Preserve existing behavior; change structure only.")
	}
	if e.opts.Snippets != nil {
		snippets, err := e.opts.Snippets.Recent(ctx, string(res.Intents[0]), 3)
		if err == nil && len(snippets) > 0 {
			b.WriteString("\nRelevant notes from earlier sessions:")
			for _, s := range snippets {
				b.WriteString("\n- " + clipText(s, 200))
			}
		}
	}
	return b.String()
}

func firstUserMessage(sc *script.Script, vars map[string]string) string {
	for _, turn := range sc.Turns {
		for _, msg := range turn.Messages {
			if msg.Role != script.RoleUser || msg.AIPlaceholder {
				continue
			}
			rendered, err := script.Render(msg.Content, vars)
			if err != nil {
				return msg.Content
			}
			return rendered
		}
	}
	return ""
}

// dispatchToolCalls runs every call from one backend response concurrently
// and returns the results indexed by request order.
func (e *Engine) dispatchToolCalls(ctx context.Context, broker *invocationBroker, calls []ToolCallRequest, sink *eventSink, turnNo int) []ToolResultPart {
	results := make([]ToolResultPart, len(calls))
	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func(i int, call ToolCallRequest) {
			defer wg.Done()
			results[i] = e.invokeTool(ctx, broker, call, sink, turnNo)
		}(i, call)
	}
	wg.Wait()
	return results
}

// invokeTool validates and executes one tool call. Failures never abort the
// session; they come back as error-flagged results the model can react to.
func (e *Engine) invokeTool(ctx context.Context, broker *invocationBroker, call ToolCallRequest, sink *eventSink, turnNo int) ToolResultPart {
	fail := func(te *ToolError) ToolResultPart {
		return ToolResultPart{
			CallID:  call.ID,
			Name:    call.Name,
			Content: fmt.Sprintf("tool %s failed (%s): %s", call.Name, te.Kind, te.Message),
			IsError: true,
		}
	}

	tool, ok := e.registry.Get(call.Name)
	if !ok {
		return fail(toolErrorf(ToolErrResourceNotFound, "no tool registered under %q", call.Name))
	}
	decl := tool.Declaration()
	args, terr := DecodeArguments(call.RawArguments)
	if terr != nil {
		return fail(terr)
	}
	args, terr = ValidateArguments(decl, args)
	if terr != nil {
		return fail(terr)
	}

	progress := func(line string) {
		sink.emit(Event{Kind: EventToolProgress, Turn: turnNo, ToolName: call.Name, CallID: call.ID, Text: line})
	}
	exec := func(ctx context.Context) (ToolResult, error) {
		return tool.Execute(ctx, args, progress)
	}
	keys := tool.Locate(args)
	var (
		result ToolResult
		err    error
	)
	if decl.ReadOnly {
		result, err, _ = broker.Do(ctx, invocationKey(call.Name, call.RawArguments), keys, exec)
	} else {
		result, err = broker.WithResourceLocks(ctx, keys, exec)
		invalidateAfterWrite(broker, keys)
	}
	if err != nil {
		return fail(AsToolError(err))
	}
	return ToolResultPart{
		CallID:  call.ID,
		Name:    call.Name,
		Content: result.Content,
	}
}

func invocationKey(name, rawArgs string) string {
	return name + "\x00" + rawArgs
}

// invalidateAfterWrite drops read results the write may have outdated. Only
// file-scoped resource keys name a precise footprint; anything else, or a
// write with no keys at all, clears the whole cache.
func invalidateAfterWrite(broker *invocationBroker, keys []string) {
	if len(keys) == 0 {
		broker.InvalidateAll()
		return
	}
	for _, k := range keys {
		if !strings.HasPrefix(k, "file:") {
			broker.InvalidateAll()
			return
		}
	}
	broker.Invalidate(keys)
}
