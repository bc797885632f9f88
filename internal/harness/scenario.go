package harness

import (
	"bytes"
	"fmt"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// Scenario is an ordered list of commands and the replies they should
// produce.
type Scenario struct {
	// Name uniquely identifies this scenario. It names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario checks.
	Description string `yaml:"description"`

	// Database is added to the parameters of every step that does not name
	// one. Optional.
	Database string `yaml:"database,omitempty"`

	Steps []Step `yaml:"steps"`
}

// Step is one command.
type Step struct {
	// Command is the command name, e.g. "load columns".
	Command string `yaml:"command"`

	// Parameters are sent as the command's parameters.
	Parameters map[string]any `yaml:"parameters"`

	// Expect describes the reply. If nil, any reply is accepted.
	Expect *Expect `yaml:"expect,omitempty"`
}

// Expect describes an expected reply.
type Expect struct {
	// Type is the reply type, e.g. "table columns" or "error".
	Type string `yaml:"type"`

	// Content is matched against the reply content. Subset match: keys
	// absent here are not compared.
	Content map[string]any `yaml:"content,omitempty"`

	// Rows is the expected number of rows of a "table columns" reply.
	Rows *int `yaml:"rows,omitempty"`
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(fs afero.Fs, path string) (*Scenario, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses a scenario document.
func ParseScenario(data []byte) (*Scenario, error) {
	// Parse YAML with strict field validation (catches typos like "step:" vs "steps:")
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		if step.Command == "" {
			return fmt.Errorf("steps[%d]: command is required", i)
		}
		if step.Parameters == nil {
			return fmt.Errorf("steps[%d]: parameters is required (use empty map if no parameters)", i)
		}
		if step.Expect == nil {
			continue
		}
		if step.Expect.Type == "" {
			return fmt.Errorf("steps[%d].expect: type is required", i)
		}
		if step.Expect.Rows != nil && *step.Expect.Rows < 0 {
			return fmt.Errorf("steps[%d].expect: rows must be non-negative", i)
		}
	}

	return nil
}
