package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/hyperdash/internal/cursor"
)

// Scenario scripts what the API serves over successive poll cycles.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Kind and ID select the tracked resource.
	Kind string `yaml:"kind"`
	ID   string `yaml:"id"`

	// Backfill controls the history table on first observation.
	// Defaults to true.
	Backfill *bool `yaml:"backfill,omitempty"`

	// Commands maps each offered command relation to the status its
	// target returns. Without commands the resource has no commands link.
	Commands map[string]string `yaml:"commands,omitempty"`

	// Cycles run in order.
	Cycles []Cycle `yaml:"cycles"`

	// Assertions validate the recording and final cursor.
	Assertions []Assertion `yaml:"assertions"`
}

// Cycle is the API state for one step plus what the step should report.
type Cycle struct {
	// Status is the resource status served.
	Status string `yaml:"status"`

	// Events is the complete feed served, in feed order.
	Events []EventSpec `yaml:"events"`

	// Fail makes one endpoint answer 503 for this cycle.
	Fail string `yaml:"fail,omitempty"`

	// Invoke runs the named command instead of a poll cycle.
	Invoke string `yaml:"invoke,omitempty"`

	// Expect is checked against the cycle report. Nil skips the check.
	Expect *CycleExpect `yaml:"expect,omitempty"`
}

// EventSpec is one feed item.
type EventSpec struct {
	Type      string `yaml:"type"`
	CreatedAt int64  `yaml:"created_at"`
}

// CycleExpect lists the report fields to check. Empty fields are skipped.
type CycleExpect struct {
	Outcome  string `yaml:"outcome,omitempty"`
	Replayed *int   `yaml:"replayed,omitempty"`
	Status   string `yaml:"status,omitempty"`
	Phase    string `yaml:"phase,omitempty"`

	// Error is a substring of the cycle's error message.
	Error string `yaml:"error,omitempty"`
}

// Assertion validates the recording or the final tracked state.
type Assertion struct {
	// Type is one of view_contains, view_order, view_count, final_status, cursor.
	Type string `yaml:"type"`

	// Line is the expected view line (view_contains).
	Line string `yaml:"line,omitempty"`

	// Lines must appear in this relative order (view_order).
	Lines []string `yaml:"lines,omitempty"`

	// Op is the view operation counted (view_count).
	Op string `yaml:"op,omitempty"`

	// Count is the expected number of calls (view_count) or the final
	// cursor value (cursor).
	Count int `yaml:"count,omitempty"`

	// Status is the expected tracked status (final_status).
	Status string `yaml:"status,omitempty"`
}

// Assertion type constants.
const (
	AssertViewContains = "view_contains"
	AssertViewOrder    = "view_order"
	AssertViewCount    = "view_count"
	AssertFinalStatus  = "final_status"
	AssertCursor       = "cursor"
)

// Endpoints a cycle may fail.
const (
	FailSnapshot = "snapshot"
	FailEvents   = "events"
	FailCommands = "commands"
)

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

// ParseScenario parses and validates a scenario document.
func ParseScenario(data []byte) (*Scenario, error) {
	// Parse YAML with strict field validation (catches typos like "assertion:" vs "assertions:")
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

func (s *Scenario) backfill() bool {
	return s.Backfill == nil || *s.Backfill
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if _, err := cursor.ParseKind(s.Kind); err != nil {
		return err
	}
	if s.ID == "" {
		return fmt.Errorf("id is required")
	}
	if len(s.Cycles) == 0 {
		return fmt.Errorf("cycles list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, c := range s.Cycles {
		if c.Status == "" {
			return fmt.Errorf("cycles[%d]: status is required", i)
		}
		switch c.Fail {
		case "", FailSnapshot, FailEvents, FailCommands:
		default:
			return fmt.Errorf("cycles[%d]: unknown fail target %q", i, c.Fail)
		}
		for j, ev := range c.Events {
			if ev.Type == "" {
				return fmt.Errorf("cycles[%d].events[%d]: type is required", i, j)
			}
		}
		if c.Invoke != "" {
			if _, ok := s.Commands[c.Invoke]; !ok && c.Expect == nil {
				return fmt.Errorf("cycles[%d]: invoke %q is not a declared command and no expect is given", i, c.Invoke)
			}
		}
	}

	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i]); err != nil {
			return err
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
	case AssertViewContains:
		if a.Line == "" {
			return fmt.Errorf("assertions[%d]: line is required for view_contains", index)
		}
	case AssertViewOrder:
		if len(a.Lines) == 0 {
			return fmt.Errorf("assertions[%d]: lines list is required for view_order", index)
		}
	case AssertViewCount:
		if a.Op == "" {
			return fmt.Errorf("assertions[%d]: op is required for view_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for view_count", index)
		}
	case AssertFinalStatus:
		if a.Status == "" {
			return fmt.Errorf("assertions[%d]: status is required for final_status", index)
		}
	case AssertCursor:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for cursor", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
