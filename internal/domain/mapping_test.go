package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validMapping() EventMapping {
	return EventMapping{
		ID:         "map-1",
		QuestionA:  "k-1",
		QuestionB:  "p-1",
		Confidence: 0.9,
		Method:     MatchMethodKeyword,
		Outcomes: []OutcomePair{
			{OutcomeA: "Yes", OutcomeB: "Yes"},
			{OutcomeA: "No", OutcomeB: "No"},
		},
		Active: true,
	}
}

func TestMappingValidate(t *testing.T) {
	require.NoError(t, validMapping().Validate())
}

func TestMappingValidate_MissingQuestion(t *testing.T) {
	m := validMapping()
	m.QuestionB = ""
	assert.ErrorIs(t, m.Validate(), ErrInvalidMapping)
}

func TestMappingValidate_ConfidenceOutOfRange(t *testing.T) {
	m := validMapping()
	m.Confidence = 1.2
	assert.ErrorIs(t, m.Validate(), ErrInvalidMapping)

	m.Confidence = -0.1
	assert.ErrorIs(t, m.Validate(), ErrInvalidMapping)
}

func TestMappingValidate_EmptyOutcomes(t *testing.T) {
	m := validMapping()
	m.Outcomes = nil
	assert.ErrorIs(t, m.Validate(), ErrInvalidMapping)
}

func TestMappingValidate_DuplicateOutcomeLabels(t *testing.T) {
	m := validMapping()
	// Same venue-A label twice, differing only in case.
	m.Outcomes = []OutcomePair{
		{OutcomeA: "Yes", OutcomeB: "Yes"},
		{OutcomeA: "YES", OutcomeB: "No"},
	}
	assert.ErrorIs(t, m.Validate(), ErrInvalidMapping)
}

func TestMappingValidate_BlankLabel(t *testing.T) {
	m := validMapping()
	m.Outcomes = []OutcomePair{{OutcomeA: "Yes", OutcomeB: "  "}}
	assert.ErrorIs(t, m.Validate(), ErrInvalidMapping)
}

func TestValidateAgainst(t *testing.T) {
	m := validMapping()
	require.NoError(t, m.ValidateAgainst([]string{"Yes", "No"}, []string{"Yes", "No"}))

	// Case differences between correspondence and question outcomes are fine.
	require.NoError(t, m.ValidateAgainst([]string{"YES", "NO"}, []string{"yes", "no"}))
}

func TestValidateAgainst_CountMismatch(t *testing.T) {
	m := validMapping()
	err := m.ValidateAgainst([]string{"Yes", "No", "Maybe"}, []string{"Yes", "No"})
	assert.ErrorIs(t, err, ErrInvalidMapping)
}

func TestValidateAgainst_UncoveredOutcome(t *testing.T) {
	m := validMapping()
	err := m.ValidateAgainst([]string{"Yes", "Maybe"}, []string{"Yes", "No"})
	assert.ErrorIs(t, err, ErrInvalidMapping)
}

func TestOutcomeFor(t *testing.T) {
	m := validMapping()
	m.Outcomes = []OutcomePair{
		{OutcomeA: "Yes", OutcomeB: "Up"},
		{OutcomeA: "No", OutcomeB: "Down"},
	}

	b, ok := m.OutcomeFor("yes")
	require.True(t, ok)
	assert.Equal(t, "Up", b)

	_, ok = m.OutcomeFor("Maybe")
	assert.False(t, ok)
}
