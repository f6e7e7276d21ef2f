package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario defines a conformance test scenario.
// Scenarios script a sequence of store operations over fixture events and
// assert on the resulting trace and final contents.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// KeepHistory opens the store with replaceable history retained.
	KeepHistory bool `yaml:"keep_history,omitempty"`

	// PreserveEphemeral opens the store with ephemeral events stored.
	PreserveEphemeral bool `yaml:"preserve_ephemeral,omitempty"`

	// Events declares the fixture events. Each is signed with the key
	// derived from its author alias.
	Events []EventFixture `yaml:"events"`

	// Steps are executed in order against one fresh store.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final trace and store contents.
	// Supported types: trace_contains, trace_order, trace_count, final_state
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// EventFixture declares one event under a short reference.
//
// Tag values and content may use ${key:alias} for an alias's public key and
// ${ref:name} for the id of an earlier fixture.
type EventFixture struct {
	Ref       string     `yaml:"ref"`
	Author    string     `yaml:"author"`
	Kind      int        `yaml:"kind"`
	CreatedAt int64      `yaml:"created_at"`
	Content   string     `yaml:"content"`
	Tags      [][]string `yaml:"tags,omitempty"`
}

// Step is one store operation. Exactly one operation field must be set.
type Step struct {
	// Add stores the referenced fixture.
	Add string `yaml:"add,omitempty"`

	// Remove deletes the referenced fixtures.
	Remove []string `yaml:"remove,omitempty"`

	// Query runs a filter (object or array of objects, as JSON).
	// ${key:alias} and ${ref:name} are expanded before parsing.
	Query string `yaml:"query,omitempty"`

	// Count runs a filter like Query but returns only the count.
	Count string `yaml:"count,omitempty"`

	// Replaceable resolves the winner of a replaceable or addressable slot.
	Replaceable *ReplaceableStep `yaml:"replaceable,omitempty"`

	// Decrypt caches plaintext for a stored fixture.
	Decrypt *DecryptStep `yaml:"decrypt,omitempty"`

	// SearchDecrypted searches the cached plaintext.
	SearchDecrypted *DecryptedSearchStep `yaml:"search_decrypted,omitempty"`

	// Expect validates the step's outcome. If nil, nothing is checked.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// ReplaceableStep names a replaceable or addressable slot.
type ReplaceableStep struct {
	Kind       int    `yaml:"kind"`
	Author     string `yaml:"author"`
	Identifier string `yaml:"identifier,omitempty"`
}

// DecryptStep supplies plaintext for a fixture.
type DecryptStep struct {
	Ref  string `yaml:"ref"`
	Text string `yaml:"text"`
}

// DecryptedSearchStep searches cached plaintext.
type DecryptedSearchStep struct {
	Text string `yaml:"text"`

	// Conversation holds two author aliases; results are restricted to
	// messages exchanged between them.
	Conversation []string `yaml:"conversation,omitempty"`

	// Order is "rank" or "created_at" (default).
	Order string `yaml:"order,omitempty"`
	Limit int    `yaml:"limit,omitempty"`
}

// ExpectClause specifies expected step outcomes. Only the fields that are
// set are validated.
type ExpectClause struct {
	// Inserted is the boolean outcome of add and decrypt.
	Inserted *bool `yaml:"inserted,omitempty"`

	// Removed is the number of events a remove deleted.
	Removed *int `yaml:"removed,omitempty"`

	// Refs are the fixtures returned by query, replaceable and
	// search_decrypted, in result order.
	Refs *[]string `yaml:"refs,omitempty"`

	// Count is the result of a count step.
	Count *int `yaml:"count,omitempty"`
}

// Assertion validates the trace or final state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "trace_contains": a line appears in the trace
	// - "trace_order": lines appear in the given order
	// - "trace_count": a line appears exactly N times
	// - "final_state": the referenced fixtures are (or are not) stored
	Type string `yaml:"type"`

	// Line is the trace line (trace_contains, trace_count).
	Line string `yaml:"line,omitempty"`

	// Lines is the expected order (trace_order).
	Lines []string `yaml:"lines,omitempty"`

	// Count is the expected number of occurrences (trace_count).
	Count int `yaml:"count,omitempty"`

	// Stored lists fixtures that must be stored (final_state).
	Stored []string `yaml:"stored,omitempty"`

	// Absent lists fixtures that must not be stored (final_state).
	Absent []string `yaml:"absent,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertFinalState    = "final_state"
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

// ParseScenario parses scenario YAML with strict field validation.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // catches typos like "assertion:" vs "assertions:"
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// validateScenario checks that required fields are present and that every
// reference resolves to a declared fixture.
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

	refs := make(map[string]bool, len(s.Events))
	for i, evt := range s.Events {
		if evt.Ref == "" {
			return fmt.Errorf("events[%d]: ref is required", i)
		}
		if refs[evt.Ref] {
			return fmt.Errorf("events[%d]: duplicate ref %q", i, evt.Ref)
		}
		if evt.Author == "" {
			return fmt.Errorf("events[%d]: author is required", i)
		}
		refs[evt.Ref] = true
	}

	for i, step := range s.Steps {
		if err := validateStep(i, &step, refs); err != nil {
			return err
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion, refs); err != nil {
			return err
		}
	}

	return nil
}

func validateStep(index int, step *Step, refs map[string]bool) error {
	ops := 0
	if step.Add != "" {
		ops++
		if !refs[step.Add] {
			return fmt.Errorf("steps[%d]: unknown ref %q", index, step.Add)
		}
	}
	if len(step.Remove) > 0 {
		ops++
		for _, ref := range step.Remove {
			if !refs[ref] {
				return fmt.Errorf("steps[%d]: unknown ref %q", index, ref)
			}
		}
	}
	if step.Query != "" {
		ops++
	}
	if step.Count != "" {
		ops++
	}
	if r := step.Replaceable; r != nil {
		ops++
		if r.Author == "" {
			return fmt.Errorf("steps[%d].replaceable: author is required", index)
		}
	}
	if d := step.Decrypt; d != nil {
		ops++
		if !refs[d.Ref] {
			return fmt.Errorf("steps[%d].decrypt: unknown ref %q", index, d.Ref)
		}
	}
	if sd := step.SearchDecrypted; sd != nil {
		ops++
		if sd.Text == "" {
			return fmt.Errorf("steps[%d].search_decrypted: text is required", index)
		}
		if sd.Conversation != nil && len(sd.Conversation) != 2 {
			return fmt.Errorf("steps[%d].search_decrypted: conversation needs exactly two authors", index)
		}
	}

	if ops != 1 {
		return fmt.Errorf("steps[%d]: exactly one operation is required, got %d", index, ops)
	}

	if step.Expect != nil && step.Expect.Refs != nil {
		for _, ref := range *step.Expect.Refs {
			if !refs[ref] {
				return fmt.Errorf("steps[%d].expect: unknown ref %q", index, ref)
			}
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion, refs map[string]bool) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertTraceContains:
		if a.Line == "" {
			return fmt.Errorf("assertions[%d]: line is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Lines) == 0 {
			return fmt.Errorf("assertions[%d]: lines list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Line == "" {
			return fmt.Errorf("assertions[%d]: line is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertFinalState:
		if len(a.Stored) == 0 && len(a.Absent) == 0 {
			return fmt.Errorf("assertions[%d]: stored or absent is required for final_state", index)
		}
		for _, ref := range append(append([]string{}, a.Stored...), a.Absent...) {
			if !refs[ref] {
				return fmt.Errorf("assertions[%d]: unknown ref %q", index, ref)
			}
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
