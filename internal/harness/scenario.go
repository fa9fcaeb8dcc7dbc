package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario defines one conformance test over the synchronization engine.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Fixtures establish the initial state before the steps run.
	Fixtures Fixtures `yaml:"fixtures"`

	// Steps is the scripted flow. Each step holds exactly one directive.
	Steps []Step `yaml:"steps"`
}

// Fixtures is the initial state of a scenario.
type Fixtures struct {
	Task     TaskFixture     `yaml:"task,omitempty"`
	Settings SettingsFixture `yaml:"settings"`
	Levels   []LevelFixture  `yaml:"levels,omitempty"`
	Summary  SummaryFixture  `yaml:"summary,omitempty"`
}

// TaskFixture seeds the correction task. CorrectionEnd is a unix
// timestamp in server seconds; zero means no deadline.
type TaskFixture struct {
	CorrectionEnd int64 `yaml:"correction_end,omitempty"`
}

// SettingsFixture seeds the correction settings.
type SettingsFixture struct {
	MaxPoints float64 `yaml:"max_points"`
}

// LevelFixture is one entry of the grade level table.
type LevelFixture struct {
	Key       string  `yaml:"key"`
	MinPoints float64 `yaml:"min_points"`
}

// SummaryFixture seeds the summary document as if loaded from the
// backend, acknowledged and clean.
type SummaryFixture struct {
	Text         string  `yaml:"text,omitempty"`
	Points       float64 `yaml:"points,omitempty"`
	GradeKey     string  `yaml:"grade_key,omitempty"`
	IsAuthorized bool    `yaml:"is_authorized,omitempty"`
}

// Step is one scripted action. Exactly one field may be set.
type Step struct {
	// Edit updates the live bindings.
	Edit *EditStep `yaml:"edit,omitempty"`

	// Advance moves the scenario clock forward by this many milliseconds.
	Advance int64 `yaml:"advance,omitempty"`

	// Check runs one dirty-check pass.
	Check *CheckStep `yaml:"check,omitempty"`

	// Send runs one send attempt against the scripted backend.
	Send *SendStep `yaml:"send,omitempty"`

	// Authorize finalizes the correction.
	Authorize *AuthorizeStep `yaml:"authorize,omitempty"`
}

// EditStep updates the content and/or points bindings. An absent field
// leaves the binding untouched.
type EditStep struct {
	Text   *string  `yaml:"text,omitempty"`
	Points *float64 `yaml:"points,omitempty"`
}

// CheckStep runs a dirty-check pass.
type CheckStep struct {
	Force bool `yaml:"force,omitempty"`
}

// SendStep runs a send attempt. Backend selects the scripted response.
type SendStep struct {
	// Backend is "ok" (default) or "fail".
	Backend string `yaml:"backend,omitempty"`
	Force   bool   `yaml:"force,omitempty"`
}

// AuthorizeStep finalizes the correction.
type AuthorizeStep struct{}

// Backend response names for SendStep.
const (
	BackendOK   = "ok"
	BackendFail = "fail"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed, contains
// unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

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

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Fixtures.Settings.MaxPoints <= 0 {
		return fmt.Errorf("fixtures.settings.max_points must be positive")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	seen := map[string]bool{}
	for _, level := range s.Fixtures.Levels {
		if level.Key == "" {
			return fmt.Errorf("fixtures.levels: key is required")
		}
		if seen[level.Key] {
			return fmt.Errorf("fixtures.levels: duplicate key %q", level.Key)
		}
		seen[level.Key] = true
	}

	for i, step := range s.Steps {
		if err := validateStep(i, &step); err != nil {
			return err
		}
	}
	return nil
}

// validateStep checks that a step holds exactly one directive.
func validateStep(index int, step *Step) error {
	directives := 0
	if step.Edit != nil {
		directives++
		if step.Edit.Text == nil && step.Edit.Points == nil {
			return fmt.Errorf("steps[%d].edit: text or points is required", index)
		}
	}
	if step.Advance != 0 {
		directives++
		if step.Advance < 0 {
			return fmt.Errorf("steps[%d].advance: must be positive", index)
		}
	}
	if step.Check != nil {
		directives++
	}
	if step.Send != nil {
		directives++
		switch step.Send.Backend {
		case "", BackendOK, BackendFail:
		default:
			return fmt.Errorf("steps[%d].send: unknown backend %q", index, step.Send.Backend)
		}
	}
	if step.Authorize != nil {
		directives++
	}

	if directives == 0 {
		return fmt.Errorf("steps[%d]: a directive is required", index)
	}
	if directives > 1 {
		return fmt.Errorf("steps[%d]: only one directive per step", index)
	}
	return nil
}
