package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultStepTimeout bounds until and wait steps without a timeout.
const DefaultStepTimeout = 2 * time.Second

// Scenario drives one reactor through a list of steps and checks the
// resulting commits and final state.
type Scenario struct {
	// Name uniquely identifies this scenario. It names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Reactor is the registry name of the reactor to build.
	Reactor string `yaml:"reactor"`

	// Initial overrides fields of the reactor's default initial state.
	Initial map[string]any `yaml:"initial,omitempty"`

	// Steps run in order.
	Steps []Step `yaml:"steps"`

	// Assertions validate the commits and the final state.
	// Supported types: final_state, commit_count, commit_order, commit_contains
	Assertions []Assertion `yaml:"assertions"`
}

// Step is exactly one of an action, a direct mutation or a wait.
type Step struct {
	// Action is the action name, with its arguments in Args.
	Action string         `yaml:"action,omitempty"`
	Args   map[string]any `yaml:"args,omitempty"`

	// Until makes an action step block until the state matches.
	Until map[string]any `yaml:"until,omitempty"`

	// Mutate injects a mutation, bypassing the reactor's Mutate.
	Mutate map[string]any `yaml:"mutate,omitempty"`

	// Wait blocks until the state matches.
	Wait map[string]any `yaml:"wait,omitempty"`

	// Timeout bounds Until and Wait. Default DefaultStepTimeout.
	Timeout string `yaml:"timeout,omitempty"`
}

// timeout returns the parsed step timeout. Validated by LoadScenario.
func (s Step) timeout() time.Duration {
	if s.Timeout == "" {
		return DefaultStepTimeout
	}
	d, err := time.ParseDuration(s.Timeout)
	if err != nil {
		return DefaultStepTimeout
	}
	return d
}

// describe returns a short label for error messages.
func (s Step) describe() string {
	switch {
	case s.Action != "":
		return "action " + s.Action
	case s.Mutate != nil:
		return "mutate"
	default:
		return "wait"
	}
}

// Assertion validates the trace or final state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "final_state": the final state matches Expect
	// - "commit_count": exactly Count commits
	// - "commit_order": Kinds appear in relative order
	// - "commit_contains": a commit of Kind (any kind if empty) matches State
	Type string `yaml:"type"`

	// Expect is the expected final state (subset match).
	Expect map[string]any `yaml:"expect,omitempty"`

	// Count is the expected number of commits, initial included.
	Count int `yaml:"count,omitempty"`

	// Kinds is the expected relative order of commit kinds.
	Kinds []string `yaml:"kinds,omitempty"`

	// Kind filters commit_contains.
	Kind string `yaml:"kind,omitempty"`

	// State is the commit state to look for (subset match).
	State map[string]any `yaml:"state,omitempty"`
}

// Assertion type constants.
const (
	AssertFinalState     = "final_state"
	AssertCommitCount    = "commit_count"
	AssertCommitOrder    = "commit_order"
	AssertCommitContains = "commit_contains"
)

var commitKinds = map[string]bool{"initial": true, "sync": true, "async": true}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict field validation catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// FindScenarios returns the .yaml and .yml files under dir, sorted. A
// non-empty filter is a glob matched against the file name without
// extension.
func FindScenarios(dir, filter string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		ext := filepath.Ext(path)
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}

		if filter != "" {
			name := strings.TrimSuffix(filepath.Base(path), ext)
			matched, err := filepath.Match(filter, name)
			if err != nil {
				return fmt.Errorf("invalid filter pattern: %w", err)
			}
			if !matched {
				return nil
			}
		}

		files = append(files, path)
		return nil
	})
	sort.Strings(files)
	return files, err
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Reactor == "" {
		return fmt.Errorf("reactor is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		if err := validateStep(i, step); err != nil {
			return err
		}
	}
	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(index int, s Step) error {
	set := 0
	if s.Action != "" {
		set++
	}
	if s.Mutate != nil {
		set++
	}
	if s.Wait != nil {
		set++
	}
	if set != 1 {
		return fmt.Errorf("steps[%d]: exactly one of action, mutate, wait is required", index)
	}

	if s.Action == "" && (s.Args != nil || s.Until != nil) {
		return fmt.Errorf("steps[%d]: args and until need an action", index)
	}
	if s.Timeout != "" {
		d, err := time.ParseDuration(s.Timeout)
		if err != nil {
			return fmt.Errorf("steps[%d]: timeout: %w", index, err)
		}
		if d <= 0 {
			return fmt.Errorf("steps[%d]: timeout must be positive", index)
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertFinalState:
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
	case AssertCommitCount:
		if a.Count < 1 {
			return fmt.Errorf("assertions[%d]: count must be at least 1 for commit_count", index)
		}
	case AssertCommitOrder:
		if len(a.Kinds) == 0 {
			return fmt.Errorf("assertions[%d]: kinds list is required for commit_order", index)
		}
		for _, k := range a.Kinds {
			if !commitKinds[k] {
				return fmt.Errorf("assertions[%d]: unknown commit kind %q", index, k)
			}
		}
	case AssertCommitContains:
		if a.Kind != "" && !commitKinds[a.Kind] {
			return fmt.Errorf("assertions[%d]: unknown commit kind %q", index, a.Kind)
		}
		if len(a.State) == 0 {
			return fmt.Errorf("assertions[%d]: state is required for commit_contains", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
