package main

import (
	"errors"
	"flag"
	"fmt"
	"path/filepath"
	"strings"

	"smithy/internal/project"
	"smithy/internal/runtime"
)

func cmdCredential(args []string) error {
	if len(args) == 0 {
		return errors.New("credential requires a subcommand: list, add, remove or set-active")
	}
	switch args[0] {
	case "list":
		return cmdCredentialList(args[1:])
	case "add":
		return cmdCredentialAdd(args[1:])
	case "remove":
		return cmdCredentialRemove(args[1:])
	case "set-active":
		return cmdCredentialSetActive(args[1:])
	default:
		return fmt.Errorf("unknown credential subcommand %q", args[0])
	}
}

func cmdCredentialList(args []string) error {
	fs := flag.NewFlagSet("credential list", flag.ContinueOnError)
	workspace := fs.String("workspace", ".", "workspace path")
	providerName := fs.String("provider", "", "only show this provider")
	if err := fs.Parse(args); err != nil {
		return err
	}
	p, _, _, err := loadAndValidate(*workspace)
	if err != nil {
		return err
	}
	shown := 0
	for _, pc := range p.Root.Providers {
		if *providerName != "" && pc.Name != *providerName {
			continue
		}
		shown++
		fmt.Printf("%s (%s):\n", pc.Name, pc.Type)
		if len(pc.Credentials) == 0 {
			fmt.Println("  (no credentials)")
			continue
		}
		for _, cc := range pc.Credentials {
			cred := runtime.Credential{ID: cc.ID, Secret: cc.ResolveSecret(), Label: cc.Label}
			state := "active"
			if !cc.IsActive() {
				state = "inactive"
			}
			source := "inline"
			if cc.Secret == "" && cc.SecretEnv != "" {
				source = "env:" + cc.SecretEnv
			}
			fmt.Printf("  - %s [%s] secret=%s %s\n", cred.RedactedLabel(), state, source, cc.ID)
		}
	}
	if shown == 0 && *providerName != "" {
		return fmt.Errorf("unknown provider %q", *providerName)
	}
	return nil
}

func cmdCredentialAdd(args []string) error {
	fs := flag.NewFlagSet("credential add", flag.ContinueOnError)
	workspace := fs.String("workspace", ".", "workspace path")
	providerName := fs.String("provider", "", "provider name")
	id := fs.String("id", "", "credential id")
	label := fs.String("label", "", "display label")
	secret := fs.String("secret", "", "inline secret value")
	secretEnv := fs.String("secret-env", "", "environment variable holding the secret")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*providerName) == "" || strings.TrimSpace(*id) == "" {
		return errors.New("credential add requires --provider and --id")
	}
	if *secret == "" && *secretEnv == "" {
		return errors.New("credential add requires --secret or --secret-env")
	}

	p, abs, _, err := loadAndValidate(*workspace)
	if err != nil {
		return err
	}
	idx := providerIndex(p.Root, *providerName)
	if idx < 0 {
		return fmt.Errorf("unknown provider %q", *providerName)
	}

	cc := project.CredentialConfig{ID: *id, Label: *label, Secret: *secret, SecretEnv: *secretEnv}
	replaced := false
	for i := range p.Root.Providers[idx].Credentials {
		if p.Root.Providers[idx].Credentials[i].ID == *id {
			p.Root.Providers[idx].Credentials[i] = cc
			replaced = true
			break
		}
	}
	if !replaced {
		p.Root.Providers[idx].Credentials = append(p.Root.Providers[idx].Credentials, cc)
	}
	if err := project.SaveRootConfig(abs, p.Root); err != nil {
		return err
	}
	verb := "Added"
	if replaced {
		verb = "Replaced"
	}
	fmt.Printf("%s credential %s on provider %s (%s)\n", verb, *id, *providerName, filepath.Join(abs, project.RootConfigFile))
	return nil
}

func cmdCredentialRemove(args []string) error {
	fs := flag.NewFlagSet("credential remove", flag.ContinueOnError)
	workspace := fs.String("workspace", ".", "workspace path")
	providerName := fs.String("provider", "", "provider name")
	rest, err := parseFlagsLoose(fs, args)
	if err != nil {
		return err
	}
	if strings.TrimSpace(*providerName) == "" || len(rest) != 1 {
		return errors.New("credential remove requires --provider and <id>")
	}

	p, abs, _, err := loadAndValidate(*workspace)
	if err != nil {
		return err
	}
	idx := providerIndex(p.Root, *providerName)
	if idx < 0 {
		return fmt.Errorf("unknown provider %q", *providerName)
	}
	creds := p.Root.Providers[idx].Credentials
	for i := range creds {
		if creds[i].ID == rest[0] {
			p.Root.Providers[idx].Credentials = append(creds[:i], creds[i+1:]...)
			if err := project.SaveRootConfig(abs, p.Root); err != nil {
				return err
			}
			fmt.Printf("Removed credential %s from provider %s\n", rest[0], *providerName)
			return nil
		}
	}
	return fmt.Errorf("provider %s has no credential %q", *providerName, rest[0])
}

func cmdCredentialSetActive(args []string) error {
	fs := flag.NewFlagSet("credential set-active", flag.ContinueOnError)
	workspace := fs.String("workspace", ".", "workspace path")
	providerName := fs.String("provider", "", "provider name")
	off := fs.Bool("off", false, "deactivate instead of activate")
	rest, err := parseFlagsLoose(fs, args)
	if err != nil {
		return err
	}
	if strings.TrimSpace(*providerName) == "" || len(rest) != 1 {
		return errors.New("credential set-active requires --provider and <id>")
	}

	p, abs, _, err := loadAndValidate(*workspace)
	if err != nil {
		return err
	}
	idx := providerIndex(p.Root, *providerName)
	if idx < 0 {
		return fmt.Errorf("unknown provider %q", *providerName)
	}
	active := !*off
	for i := range p.Root.Providers[idx].Credentials {
		if p.Root.Providers[idx].Credentials[i].ID == rest[0] {
			p.Root.Providers[idx].Credentials[i].Active = &active
			if err := project.SaveRootConfig(abs, p.Root); err != nil {
				return err
			}
			state := "active"
			if *off {
				state = "inactive"
			}
			fmt.Printf("Credential %s on provider %s is now %s\n", rest[0], *providerName, state)
			return nil
		}
	}
	return fmt.Errorf("provider %s has no credential %q", *providerName, rest[0])
}

func providerIndex(root project.RootConfig, name string) int {
	for i, pc := range root.Providers {
		if pc.Name == name {
			return i
		}
	}
	return -1
}
