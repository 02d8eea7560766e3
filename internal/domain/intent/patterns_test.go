package intent_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flockhq/flock-server/internal/domain/intent"
)

func TestPatternMatchIsCaseInsensitive(t *testing.T) {
	patterns := intent.NewPatternSet()
	patterns.MustAdd(`\bpray(er)?\b`, intent.Classification{Intent: "prayer_request"})

	for _, text := range []string{"please PRAY for us", "Prayer needed", "pray"} {
		result := patterns.Match(text)
		require.NotNil(t, result, text)
		assert.Equal(t, "prayer_request", result.Intent, text)
	}
	assert.Nil(t, patterns.Match("praying mantis facts"))
}

func TestPatternFirstMatchWins(t *testing.T) {
	patterns := intent.NewPatternSet()
	patterns.MustAdd(`service`, intent.Classification{Intent: "service_times"})
	patterns.MustAdd(`service dog`, intent.Classification{Intent: "other"})

	result := patterns.Match("my service dog")
	require.NotNil(t, result)
	assert.Equal(t, "service_times", result.Intent)
}

func TestPatternMatchCarriesFullConfidence(t *testing.T) {
	patterns := intent.NewPatternSet()
	patterns.MustAdd(`hello`, intent.Classification{Intent: "greeting", Confidence: 0.1})

	result := patterns.Match("hello")
	require.NotNil(t, result)
	assert.Equal(t, 1.0, result.Confidence)
}

func TestPatternMatchReturnsACopy(t *testing.T) {
	patterns := intent.NewPatternSet()
	patterns.MustAdd(`hello`, intent.Classification{Intent: "greeting"})

	first := patterns.Match("hello")
	first.Intent = "mutated"
	second := patterns.Match("hello")
	assert.Equal(t, "greeting", second.Intent)
}

func TestAddRejectsInvalidExpressions(t *testing.T) {
	patterns := intent.NewPatternSet()
	err := patterns.Add(`(`, intent.Classification{Intent: "broken"})
	assert.Error(t, err)
	assert.Equal(t, 0, patterns.Len())
}
