package flow_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flockhq/flock-server/internal/domain/flow"
)

func TestDescriptorValidate(t *testing.T) {
	valid := signupDescriptor()
	require.NoError(t, valid.Validate())

	noName := signupDescriptor()
	noName.Name = ""
	assert.Error(t, noName.Validate())

	dupSteps := signupDescriptor()
	dupSteps.Steps[1].Name = dupSteps.Steps[0].Name
	assert.Error(t, dupSteps.Validate())

	emptyChoice := flow.Descriptor{
		Name:  "broken",
		Steps: []flow.Step{{Name: "pick", Type: flow.StepTypeChoice}},
	}
	assert.Error(t, emptyChoice.Validate())
}

func TestParseAnswerNumber(t *testing.T) {
	min, max := 1.0, 10.0
	step := flow.Step{Name: "guests", Type: flow.StepTypeNumber, Required: true, Min: &min, Max: &max}

	value, err := step.ParseAnswer(" 4 ")
	require.NoError(t, err)
	assert.Equal(t, 4.0, value)

	_, err = step.ParseAnswer("four")
	assert.Error(t, err)
	_, err = step.ParseAnswer("0")
	assert.Error(t, err)
	_, err = step.ParseAnswer("11")
	assert.Error(t, err)
	_, err = step.ParseAnswer("")
	assert.Error(t, err)
}

func TestParseAnswerBoolean(t *testing.T) {
	step := flow.Step{Name: "share", Type: flow.StepTypeBoolean, Required: true}

	for _, raw := range []string{"yes", "Y", "ja", "1"} {
		value, err := step.ParseAnswer(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, true, value, raw)
	}
	for _, raw := range []string{"no", "N", "nein", "0"} {
		value, err := step.ParseAnswer(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, false, value, raw)
	}

	_, err := step.ParseAnswer("maybe")
	assert.Error(t, err)
}

func TestParseAnswerChoice(t *testing.T) {
	step := flow.Step{
		Name: "event", Type: flow.StepTypeChoice, Required: true,
		Choices: []string{"Sunday service", "Youth night"},
	}

	value, err := step.ParseAnswer("2")
	require.NoError(t, err)
	assert.Equal(t, "Youth night", value)

	value, err = step.ParseAnswer("sunday SERVICE")
	require.NoError(t, err)
	assert.Equal(t, "Sunday service", value)

	_, err = step.ParseAnswer("3")
	assert.Error(t, err)
	_, err = step.ParseAnswer("Bible camp")
	assert.Error(t, err)
}

func TestParseAnswerText(t *testing.T) {
	required := flow.Step{Name: "request", Type: flow.StepTypeText, Required: true}

	value, err := required.ParseAnswer("  pray for my family  ")
	require.NoError(t, err)
	assert.Equal(t, "pray for my family", value)

	_, err = required.ParseAnswer("   ")
	assert.Error(t, err)

	optional := flow.Step{Name: "note", Type: flow.StepTypeText}
	value, err = optional.ParseAnswer("")
	require.NoError(t, err)
	assert.Equal(t, "", value)
}
