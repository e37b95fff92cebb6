package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/raro-systems/raro/pkg/config"
)

// ValidateCmd checks a workflow manifest or kernel config file for
// well-formedness without starting anything, printing the
// defaults-applied expansion on success. Exactly one of Manifest or
// Server must be given.
type ValidateCmd struct {
	Manifest string `help:"Path to a workflow manifest YAML file to validate." type:"path"`
	Server   string `help:"Path to a kernel server config YAML file to validate." type:"path"`
}

func (c *ValidateCmd) Run() error {
	switch {
	case c.Manifest != "" && c.Server != "":
		return fmt.Errorf("validate: pass either --manifest or --server, not both")
	case c.Manifest != "":
		return c.validateManifest()
	case c.Server != "":
		return c.validateServer()
	default:
		return fmt.Errorf("validate: one of --manifest or --server is required")
	}
}

func (c *ValidateCmd) validateManifest() error {
	m, err := config.LoadManifestFile(c.Manifest)
	if err != nil {
		return fmt.Errorf("validate: %w", err)
	}
	fmt.Printf("# %s is valid: %d agent(s)\n", c.Manifest, len(m.Agents))
	fmt.Printf("# (defaults applied)\n\n")
	return encodeYAML(m)
}

func (c *ValidateCmd) validateServer() error {
	loader, err := config.NewLoader(config.LoaderOptions{Type: config.BackendFile, Path: c.Server})
	if err != nil {
		return fmt.Errorf("validate: %w", err)
	}
	cfg, err := loader.Load()
	if err != nil {
		return fmt.Errorf("validate: %w", err)
	}
	fmt.Printf("# %s is valid\n", c.Server)
	fmt.Printf("# (defaults applied)\n\n")
	return encodeYAML(cfg)
}

func encodeYAML(v interface{}) error {
	enc := yaml.NewEncoder(os.Stdout)
	enc.SetIndent(2)
	defer enc.Close()
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("validate: encode result: %w", err)
	}
	return nil
}
