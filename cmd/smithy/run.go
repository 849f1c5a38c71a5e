package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"smithy/internal/memory"
	"smithy/internal/runtime"
	"smithy/internal/script"
)

type paramFlags map[string]string

func (p paramFlags) String() string { return "" }

func (p paramFlags) Set(v string) error {
	name, value, ok := strings.Cut(v, "=")
	if !ok || strings.TrimSpace(name) == "" {
		return fmt.Errorf("param must be k=v, got %q", v)
	}
	p[strings.TrimSpace(name)] = value
	return nil
}

func cmdRun(args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	workspace := fs.String("workspace", ".", "workspace path")
	providerName := fs.String("provider", "", "provider name (default from smithy.yaml)")
	showEvents := fs.Bool("events", false, "print every engine event as it happens")
	params := paramFlags{}
	fs.Var(params, "param", "script parameter as k=v (repeatable)")
	rest, err := parseFlagsLoose(fs, args)
	if err != nil {
		return err
	}
	if len(rest) == 0 {
		return errors.New("run requires <script> [request]")
	}
	scriptName := rest[0]
	if len(rest) > 1 {
		if _, ok := params["request"]; !ok {
			params["request"] = strings.Join(rest[1:], " ")
		}
	}

	p, abs, verr, err := loadAndValidate(*workspace)
	if err != nil {
		return err
	}
	printValidation(verr)
	if verr != nil && verr.HasErrors() {
		return verr
	}

	sc, err := findScript(abs, scriptName)
	if err != nil {
		return err
	}
	sess, err := newSession(abs, p, *providerName)
	if err != nil {
		return err
	}
	defer sess.Close()

	started := time.Now()
	events, wait := sess.Engine.Start(context.Background(), sc, params, sess.Context)
	for ev := range events {
		printEvent(ev, *showEvents)
	}
	res, runErr := wait()
	if runErr != nil {
		return runErr
	}

	if strings.TrimSpace(res.Output) != "" && !*showEvents {
		fmt.Println(res.Output)
	}
	fmt.Printf("done: script=%s intents=%v backend_calls=%d tool_calls=%d elapsed=%s\n",
		sc.Name, res.Intents, res.BackendCalls, res.ToolCalls, time.Since(started).Round(time.Millisecond))

	rememberRunOutput(sess.Store(), sc.Name, res)
	return nil
}

func findScript(workspace, name string) (*script.Script, error) {
	scripts, err := script.LoadDir(filepath.Join(workspace, "scripts"))
	if err != nil {
		return nil, err
	}
	for _, sc := range scripts {
		if sc.Name == name {
			if err := script.Validate(sc); err != nil {
				return nil, fmt.Errorf("script %s: %w", name, err)
			}
			return sc, nil
		}
	}
	return nil, fmt.Errorf("script %q not found in %s", name, filepath.Join(workspace, "scripts"))
}

func printEvent(ev runtime.Event, verbose bool) {
	switch ev.Kind {
	case runtime.EventTextChunk:
		if verbose {
			fmt.Printf("[turn %d] %s\n", ev.Turn, ev.Text)
		}
	case runtime.EventToolCallStarted:
		fmt.Printf("[turn %d] tool %s started\n", ev.Turn, ev.ToolName)
	case runtime.EventToolProgress:
		if verbose {
			fmt.Printf("[turn %d] tool %s: %s\n", ev.Turn, ev.ToolName, ev.Text)
		}
	case runtime.EventToolResult:
		status := "ok"
		if ev.IsError {
			status = "failed"
		}
		fmt.Printf("[turn %d] tool %s %s\n", ev.Turn, ev.ToolName, status)
		if verbose && ev.Text != "" {
			fmt.Printf("  %s\n", ev.Text)
		}
	case runtime.EventError:
		fmt.Printf("[turn %d] error: %v\n", ev.Turn, ev.Err)
	case runtime.EventDone:
		if verbose {
			fmt.Printf("[turn %d] done\n", ev.Turn)
		}
	}
}

// rememberRunOutput stores the final output in the learning store so later
// sessions with the same intent can recall it. Failures only warn.
func rememberRunOutput(store memory.Store, scriptName string, res runtime.Result) {
	if store == nil || strings.TrimSpace(res.Output) == "" || len(res.Intents) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := store.Put(ctx, memory.Snippet{
		Key:       scriptName + "-" + uuid.NewString(),
		Intent:    string(res.Intents[0]),
		Text:      res.Output,
		CreatedAt: time.Now(),
	})
	if err != nil {
		fmt.Printf("warning: failed to store session snippet: %v\n", err)
	}
}
