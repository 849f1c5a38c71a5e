package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"smithy/internal/memory"
	"smithy/internal/runtime"
	"smithy/internal/script"
)

const (
	chatHistoryTurns      = 8
	chatHistoryMaxChars   = 420
	chatDisplayReplyLimit = 1200
)

func cmdChat(args []string) error {
	fs := flag.NewFlagSet("chat", flag.ContinueOnError)
	workspace := fs.String("workspace", ".", "workspace path")
	providerName := fs.String("provider", "", "provider name (default from smithy.yaml)")
	sessionID := fs.String("session", "", "session id (resume if exists, create if missing)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	p, abs, verr, err := loadAndValidate(*workspace)
	if err != nil {
		return err
	}
	printValidation(verr)
	if verr != nil && verr.HasErrors() {
		return verr
	}

	sess, err := newSession(abs, p, *providerName)
	if err != nil {
		return err
	}
	defer sess.Close()

	meta, entries, created, err := openOrCreateChatSession(abs, strings.TrimSpace(*sessionID), sess.Provider.Name)
	if err != nil {
		return err
	}
	if created {
		fmt.Printf("Chat session created: %s\n", meta.ID)
	} else {
		fmt.Printf("Chat session resumed: %s\n", meta.ID)
	}
	fmt.Printf("Workspace: %s\n", abs)
	fmt.Printf("Provider: %s (model %s)\n", sess.Provider.Name, sess.Provider.Model)
	fmt.Printf("History entries loaded: %d\n", len(entries))
	fmt.Println("Commands: /help, /history, /exit")

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 2*1024*1024)
	for {
		fmt.Print("you> ")
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return err
			}
			fmt.Println("")
			return nil
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			done, err := handleChatSlashCommand(line, entries)
			if err != nil {
				fmt.Printf("error: %v\n", err)
			}
			if done {
				return nil
			}
			continue
		}

		sc := chatTurnScript(meta, entries, line)
		events, wait := sess.Engine.Start(context.Background(), sc, nil, sess.Context)
		for ev := range events {
			printEvent(ev, false)
		}
		res, runErr := wait()
		if runErr != nil {
			fmt.Printf("error: %v\n", runErr)
			continue
		}

		reply := strings.TrimSpace(res.Output)
		if reply == "" {
			fmt.Println("assistant> (no output)")
			continue
		}
		fmt.Printf("assistant> %s\n", formatChatReplyForTerminal(reply))
		rememberChatReply(sess.Store(), meta.ID, res)

		meta.Turns++
		now := time.Now()
		meta.UpdatedAt = now
		toAppend := []chatSessionEntry{
			{Turn: meta.Turns, Role: "user", Text: line, CreatedAt: now},
			{Turn: meta.Turns, Role: "assistant", Text: reply, CreatedAt: now},
		}
		if err := appendChatSessionEntries(abs, meta.ID, toAppend); err != nil {
			fmt.Printf("warning: failed to append session history: %v\n", err)
		} else {
			entries = append(entries, toAppend...)
		}
		if err := saveChatSessionMeta(abs, meta); err != nil {
			fmt.Printf("warning: failed to save session metadata: %v\n", err)
		}
	}
}

// chatTurnScript wraps one REPL line as a single-turn script, carrying recent
// session history in the system message.
func chatTurnScript(meta *chatSessionMeta, entries []chatSessionEntry, userMessage string) *script.Script {
	system := []string{
		"You are a coding assistant working inside the user's project.",
		"Use the available tools to inspect and modify files; never invent file contents.",
	}
	if selected := selectChatHistoryEntries(entries, chatHistoryTurns); len(selected) > 0 {
		system = append(system, "", "Recent conversation:")
		for _, e := range selected {
			system = append(system, "- "+e.Role+": "+clipLine(e.Text, chatHistoryMaxChars))
		}
	}
	return &script.Script{
		Name: "chat-turn",
		Turns: []script.Turn{{
			Messages: []script.Message{
				{Role: script.RoleSystem, Content: strings.Join(system, "\n")},
				{Role: script.RoleUser, Content: userMessage},
			},
		}},
		Source: "chat:" + meta.ID,
	}
}

func selectChatHistoryEntries(entries []chatSessionEntry, maxTurns int) []chatSessionEntry {
	if len(entries) == 0 || maxTurns <= 0 {
		return nil
	}
	start := 0
	userTurnsSeen := 0
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].Role == "user" {
			userTurnsSeen++
			if userTurnsSeen > maxTurns {
				start = i + 1
				break
			}
		}
	}
	out := make([]chatSessionEntry, len(entries[start:]))
	copy(out, entries[start:])
	return out
}

func handleChatSlashCommand(line string, entries []chatSessionEntry) (done bool, err error) {
	switch cmd := strings.TrimSpace(line); cmd {
	case "/exit", "/quit":
		fmt.Println("bye")
		return true, nil
	case "/help":
		fmt.Println("Slash commands:")
		fmt.Println("  /help    show this help")
		fmt.Println("  /history show recent session entries")
		fmt.Println("  /exit    end chat session")
		return false, nil
	case "/history":
		if len(entries) == 0 {
			fmt.Println("(no history)")
			return false, nil
		}
		start := 0
		if len(entries) > 12 {
			start = len(entries) - 12
		}
		for _, e := range entries[start:] {
			fmt.Printf("- turn=%d %s: %s\n", e.Turn, e.Role, clipLine(e.Text, 180))
		}
		return false, nil
	default:
		return false, fmt.Errorf("unknown slash command %q", cmd)
	}
}

func rememberChatReply(store memory.Store, sessionID string, res runtime.Result) {
	if store == nil || len(res.Intents) == 0 || strings.TrimSpace(res.Output) == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = store.Put(ctx, memory.Snippet{
		Key:       sessionID + "-" + uuid.NewString(),
		Intent:    string(res.Intents[0]),
		Text:      res.Output,
		CreatedAt: time.Now(),
	})
}

func formatChatReplyForTerminal(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "(empty)"
	}
	if len(s) <= chatDisplayReplyLimit {
		return s
	}
	clipped := strings.TrimRight(s[:chatDisplayReplyLimit], " \n\t")
	extra := len(s) - len(clipped)
	return clipped + fmt.Sprintf("\n... [clipped %d chars, full text saved in session history]", extra)
}

func clipLine(s string, max int) string {
	s = strings.TrimSpace(strings.ReplaceAll(strings.ReplaceAll(s, "\r\n", "\n"), "\r", "\n"))
	s = strings.Join(strings.Fields(s), " ")
	if max <= 0 || len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}

func cmdSession(args []string) error {
	if len(args) == 0 {
		return errors.New("session requires a subcommand: list or show")
	}
	switch args[0] {
	case "list":
		return cmdSessionList(args[1:])
	case "show":
		return cmdSessionShow(args[1:])
	default:
		return fmt.Errorf("unknown session subcommand %q", args[0])
	}
}

func cmdSessionList(args []string) error {
	fs := flag.NewFlagSet("session list", flag.ContinueOnError)
	workspace := fs.String("workspace", ".", "workspace path")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if len(fs.Args()) != 0 {
		return errors.New("session list does not accept positional arguments")
	}
	abs, err := filepath.Abs(*workspace)
	if err != nil {
		return err
	}
	metas, err := listChatSessionMetas(abs)
	if err != nil {
		return err
	}
	if len(metas) == 0 {
		fmt.Printf("No chat sessions found in %s\n", filepath.Join(abs, "sessions"))
		return nil
	}
	for _, m := range metas {
		fmt.Printf("- %s turns=%d updated_at=%s provider=%q\n", m.ID, m.Turns, m.UpdatedAt.Format(time.RFC3339), m.Provider)
	}
	return nil
}

func cmdSessionShow(args []string) error {
	fs := flag.NewFlagSet("session show", flag.ContinueOnError)
	workspace := fs.String("workspace", ".", "workspace path")
	tail := fs.Int("tail", 20, "number of recent entries to print")
	rest, err := parseFlagsLoose(fs, args)
	if err != nil {
		return err
	}
	if len(rest) != 1 {
		return errors.New("session show requires <id>")
	}
	abs, err := filepath.Abs(*workspace)
	if err != nil {
		return err
	}
	meta, err := loadChatSessionMeta(abs, rest[0])
	if err != nil {
		return err
	}
	entries, err := loadChatSessionEntries(abs, meta.ID)
	if err != nil {
		return err
	}
	fmt.Printf("session: %s\n", meta.ID)
	fmt.Printf("provider: %s\n", meta.Provider)
	fmt.Printf("created_at: %s\n", meta.CreatedAt.Format(time.RFC3339))
	fmt.Printf("updated_at: %s\n", meta.UpdatedAt.Format(time.RFC3339))
	fmt.Printf("turns: %d\n", meta.Turns)
	if *tail > 0 && len(entries) > *tail {
		entries = entries[len(entries)-*tail:]
	}
	if len(entries) == 0 {
		fmt.Println("(no entries)")
		return nil
	}
	fmt.Println("entries:")
	for _, e := range entries {
		fmt.Printf("- [%s] turn=%d %s\n", e.CreatedAt.Format(time.RFC3339), e.Turn, e.Role)
		fmt.Printf("  %s\n", indentForSessionShow(strings.TrimSpace(e.Text)))
	}
	return nil
}

func indentForSessionShow(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	lines := strings.Split(s, "\n")
	for i := range lines {
		lines[i] = "  " + lines[i]
	}
	return strings.Join(lines, "\n")
}
