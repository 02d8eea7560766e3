package flow

import (
	"fmt"
	"strconv"
	"strings"
)

// StepType selects the validation applied to a step's answer.
type StepType string

const (
	// StepTypeNumber accepts a numeric answer, optionally range-bounded.
	StepTypeNumber StepType = "number"
	// StepTypeBoolean accepts yes/no-like text.
	StepTypeBoolean StepType = "boolean"
	// StepTypeChoice accepts one of an enumerated set, by 1-based index or
	// by exact value.
	StepTypeChoice StepType = "choice"
	// StepTypeText accepts free text, with a required/empty check.
	StepTypeText StepType = "text"
)

// Step describes one data-collection step of a flow.
type Step struct {
	Name     string
	Prompt   string
	Type     StepType
	Required bool
	// Min/Max bound numeric answers when set.
	Min *float64
	Max *float64
	// Choices enumerates the accepted values for StepTypeChoice.
	Choices []string
}

// Descriptor is an ordered list of steps driving one interaction. It is
// configuration: immutable during a flow run, never persisted per
// conversation.
type Descriptor struct {
	Name  string
	Steps []Step
}

// Validate checks descriptor configuration sanity.
func (d Descriptor) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("flow descriptor needs a name")
	}
	if len(d.Steps) == 0 {
		return fmt.Errorf("flow %q has no steps", d.Name)
	}
	seen := make(map[string]struct{}, len(d.Steps))
	for i, step := range d.Steps {
		if step.Name == "" {
			return fmt.Errorf("flow %q step %d has no name", d.Name, i)
		}
		if _, dup := seen[step.Name]; dup {
			return fmt.Errorf("flow %q has duplicate step %q", d.Name, step.Name)
		}
		seen[step.Name] = struct{}{}
		if step.Type == StepTypeChoice && len(step.Choices) == 0 {
			return fmt.Errorf("flow %q choice step %q has no choices", d.Name, step.Name)
		}
	}
	return nil
}

// PromptFor renders the user-facing prompt for a step, including the
// numbered option list for choice steps.
func (d Descriptor) PromptFor(index int) string {
	step := d.Steps[index]
	if step.Type != StepTypeChoice {
		return step.Prompt
	}

	var b strings.Builder
	b.WriteString(step.Prompt)
	for i, choice := range step.Choices {
		b.WriteString(fmt.Sprintf("\n%d. %s", i+1, choice))
	}
	return b.String()
}

// ValidationError is a user-facing rejection of a step answer. The flow is
// not aborted; the same step is re-prompted.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

func invalid(format string, args ...any) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

var yesAnswers = map[string]bool{"yes": true, "y": true, "ja": true, "true": true, "1": true}
var noAnswers = map[string]bool{"no": true, "n": true, "nein": true, "false": true, "0": true}

// ParseAnswer validates a raw answer against the step's type and returns the
// parsed value to store under the step's name.
func (s Step) ParseAnswer(raw string) (any, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		if s.Required {
			return nil, invalid("An answer is required here.")
		}
		return "", nil
	}

	switch s.Type {
	case StepTypeNumber:
		value, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return nil, invalid("Please answer with a number.")
		}
		if s.Min != nil && value < *s.Min {
			return nil, invalid("Please pick a number of at least %v.", *s.Min)
		}
		if s.Max != nil && value > *s.Max {
			return nil, invalid("Please pick a number of at most %v.", *s.Max)
		}
		return value, nil

	case StepTypeBoolean:
		lowered := strings.ToLower(trimmed)
		if yesAnswers[lowered] {
			return true, nil
		}
		if noAnswers[lowered] {
			return false, nil
		}
		return nil, invalid("Please answer with yes or no.")

	case StepTypeChoice:
		if index, err := strconv.Atoi(trimmed); err == nil {
			if index < 1 || index > len(s.Choices) {
				return nil, invalid("Please pick an option between 1 and %d.", len(s.Choices))
			}
			return s.Choices[index-1], nil
		}
		for _, choice := range s.Choices {
			if strings.EqualFold(choice, trimmed) {
				return choice, nil
			}
		}
		return nil, invalid("Please pick one of the listed options, by number or name.")

	case StepTypeText:
		fallthrough
	default:
		return trimmed, nil
	}
}
