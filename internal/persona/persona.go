// Package persona loads the character definition used to steer generation.
// The persona file is a small YAML document: a display name and a free-form
// context directive.
package persona

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Persona is the agent's character: its display name and the directive
// prepended to every prompt.
type Persona struct {
	Name      string `yaml:"name"`
	Directive string `yaml:"context"`
}

// Load reads a persona YAML file.
func Load(path string) (*Persona, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read persona file: %w", err)
	}
	var p Persona
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse persona file: %w", err)
	}
	if p.Name == "" {
		return nil, fmt.Errorf("persona file %s has no name", path)
	}
	return &p, nil
}

// InsertName replaces every {NAME} placeholder with the persona name.
func (p *Persona) InsertName(text string) string {
	return strings.ReplaceAll(text, "{NAME}", p.Name)
}

// DirectiveTokens returns the approximate token cost of the directive,
// counted as whitespace-delimited words.
func (p *Persona) DirectiveTokens() int {
	return len(strings.Fields(p.Directive))
}
