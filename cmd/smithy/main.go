package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"smithy/internal/project"
	"smithy/internal/scaffold"
	"smithy/internal/script"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) == 0 {
		printUsage()
		return nil
	}

	switch args[0] {
	case "help", "-h", "--help":
		printUsage()
		return nil
	case "init":
		return cmdInit(args[1:])
	case "validate":
		return cmdValidate(args[1:])
	case "script":
		return cmdScript(args[1:])
	case "run":
		return cmdRun(args[1:])
	case "chat":
		return cmdChat(args[1:])
	case "session":
		return cmdSession(args[1:])
	case "credential":
		return cmdCredential(args[1:])
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func printUsage() {
	fmt.Println("smithy - on-device coding assistant")
	fmt.Println("")
	fmt.Println("Usage:")
	fmt.Println("  smithy init [--workspace DIR]")
	fmt.Println("  smithy validate [--workspace DIR]")
	fmt.Println("  smithy script list [--workspace DIR]")
	fmt.Println("  smithy script create [--workspace DIR] [--force] <name>")
	fmt.Println(`  smithy run [--workspace DIR] [--provider NAME] [--param k=v]... [--events] <script> [request]`)
	fmt.Println(`  smithy chat [--workspace DIR] [--provider NAME] [--session ID]`)
	fmt.Println("  smithy session list [--workspace DIR]")
	fmt.Println("  smithy session show [--workspace DIR] [--tail N] <id>")
	fmt.Println("  smithy credential list [--workspace DIR] [--provider NAME]")
	fmt.Println("  smithy credential add [--workspace DIR] --provider NAME --id ID [--label L] [--secret S | --secret-env VAR]")
	fmt.Println("  smithy credential remove [--workspace DIR] --provider NAME <id>")
	fmt.Println("  smithy credential set-active [--workspace DIR] --provider NAME [--off] <id>")
}

func cmdInit(args []string) error {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	workspace := fs.String("workspace", ".", "workspace path")
	if err := fs.Parse(args); err != nil {
		return err
	}
	abs, _ := filepath.Abs(*workspace)
	if err := scaffold.InitWorkspace(abs); err != nil {
		return err
	}
	fmt.Printf("Initialized smithy workspace at %s\n", abs)
	fmt.Println("Next steps:")
	fmt.Println(`  1. smithy run ask "describe this project"   (mock provider, no key needed)`)
	fmt.Println("  2. uncomment a real provider in smithy.yaml and set its key")
	fmt.Println("  3. smithy chat")
	return nil
}

func cmdValidate(args []string) error {
	fs := flag.NewFlagSet("validate", flag.ContinueOnError)
	workspace := fs.String("workspace", ".", "workspace path")
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
	scripts, err := script.LoadDir(filepath.Join(abs, "scripts"))
	if err != nil {
		return err
	}
	for _, sc := range scripts {
		if err := script.Validate(sc); err != nil {
			return fmt.Errorf("script %s: %w", sc.Name, err)
		}
	}
	fmt.Printf("Validation OK (%d provider(s), %d script(s)) in %s\n", len(p.Root.Providers), len(scripts), abs)
	return nil
}

func cmdScript(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("script requires a subcommand: list or create")
	}
	switch args[0] {
	case "list":
		return cmdScriptList(args[1:])
	case "create":
		return cmdScriptCreate(args[1:])
	default:
		return fmt.Errorf("unknown script subcommand %q", args[0])
	}
}

func cmdScriptList(args []string) error {
	fs := flag.NewFlagSet("script list", flag.ContinueOnError)
	workspace := fs.String("workspace", ".", "workspace path")
	if err := fs.Parse(args); err != nil {
		return err
	}
	abs, err := filepath.Abs(*workspace)
	if err != nil {
		return err
	}
	scripts, err := script.LoadDir(filepath.Join(abs, "scripts"))
	if err != nil {
		return err
	}
	if len(scripts) == 0 {
		fmt.Printf("No scripts found in %s\n", filepath.Join(abs, "scripts"))
		return nil
	}
	for _, sc := range scripts {
		params := make([]string, 0, len(sc.Parameters))
		for name := range sc.Parameters {
			params = append(params, name)
		}
		fmt.Printf("- %s turns=%d params=%d\n", sc.Name, len(sc.Turns), len(params))
	}
	return nil
}

func cmdScriptCreate(args []string) error {
	fs := flag.NewFlagSet("script create", flag.ContinueOnError)
	workspace := fs.String("workspace", ".", "workspace path")
	force := fs.Bool("force", false, "overwrite an existing script")
	rest, err := parseFlagsLoose(fs, args)
	if err != nil {
		return err
	}
	if len(rest) != 1 {
		return fmt.Errorf("script create requires <name>")
	}
	abs, err := filepath.Abs(*workspace)
	if err != nil {
		return err
	}
	path, err := scaffold.CreateScriptFile(abs, scaffold.ScriptTemplateOptions{Name: rest[0], Force: *force})
	if err != nil {
		return err
	}
	fmt.Printf("Created %s\n", path)
	return nil
}

func loadAndValidate(workspace string) (*project.Project, string, *project.ValidationError, error) {
	abs, err := filepath.Abs(workspace)
	if err != nil {
		return nil, "", nil, err
	}
	p, err := project.Load(abs)
	if err != nil {
		return nil, "", nil, err
	}
	return p, abs, project.Validate(p), nil
}

func printValidation(verr *project.ValidationError) {
	if verr == nil {
		return
	}
	for _, issue := range verr.Issues {
		fmt.Println(issue.String())
	}
}
