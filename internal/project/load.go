package project

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const RootConfigFile = "smithy.yaml"

// Load reads smithy.yaml from the workspace root. Script files live under
// scripts/ and are loaded separately by the script package.
func Load(workspace string) (*Project, error) {
	rootPath := filepath.Join(workspace, RootConfigFile)
	b, err := os.ReadFile(rootPath)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rootPath, err)
	}

	var root RootConfig
	if err := yaml.Unmarshal(b, &root); err != nil {
		return nil, fmt.Errorf("parse %s: %w", rootPath, err)
	}
	if root.Version == 0 {
		root.Version = 1
	}

	return &Project{Root: root, Workspace: workspace}, nil
}
