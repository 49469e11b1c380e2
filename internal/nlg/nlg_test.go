package nlg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"botsim/internal/errors"
	"botsim/internal/nlu"
	"botsim/internal/schema"
)

func testTemplates() TemplateSet {
	return TemplateSet{DiaActs: map[string][]Template{
		"inform": {
			{
				InformSlots:  []string{"intent"},
				RequestSlots: []string{},
				NL:           map[string]string{"usr": "$intent$"},
			},
			{
				InformSlots:  []string{"Email"},
				RequestSlots: []string{},
				NL:           map[string]string{"usr": "my email is $Email$"},
			},
			{
				InformSlots:  []string{"Email", "Order_Number"},
				RequestSlots: []string{},
				NL:           map[string]string{"usr": "email $Email$, order $Order_Number$"},
			},
		},
		"thanks": {
			{
				InformSlots:  []string{},
				RequestSlots: []string{},
				NL:           map[string]string{"usr": "thanks, goodbye"},
			},
		},
	}}
}

func TestRenderFillsPlaceholders(t *testing.T) {
	r := NewRenderer(testTemplates())
	plain, annotated, err := r.Render(Frame{
		Action:      "inform",
		InformSlots: map[string]string{"Email": "a@b.com"},
	}, schema.SpeakerUser)
	require.NoError(t, err)
	assert.Equal(t, "my email is a@b.com", plain)
	assert.Equal(t, `my email is @Email:"a@b.com"`, annotated)
}

func TestRenderRequiresExactSlotSet(t *testing.T) {
	r := NewRenderer(testTemplates())

	// Two informed slots must select the two-slot template, not the
	// one-slot one.
	plain, _, err := r.Render(Frame{
		Action:      "inform",
		InformSlots: map[string]string{"Email": "a@b.com", "Order_Number": "99"},
	}, schema.SpeakerUser)
	require.NoError(t, err)
	assert.Equal(t, "email a@b.com, order 99", plain)

	// A slot set no template declares fails loudly as a ConfigError.
	_, _, err = r.Render(Frame{
		Action:      "inform",
		InformSlots: map[string]string{"Phone": "555"},
	}, schema.SpeakerUser)
	require.Error(t, err)
	assert.True(t, errors.IsConfig(err))
}

func TestRenderUnknownActionFails(t *testing.T) {
	r := NewRenderer(testTemplates())
	_, _, err := r.Render(Frame{Action: "no_such_action"}, schema.SpeakerUser)
	require.Error(t, err)
	assert.True(t, errors.IsConfig(err))
}

func TestRenderEmptyFrame(t *testing.T) {
	r := NewRenderer(testTemplates())
	plain, annotated, err := r.Render(Frame{Action: "thanks"}, schema.SpeakerUser)
	require.NoError(t, err)
	assert.Equal(t, "thanks, goodbye", plain)
	assert.Equal(t, plain, annotated)
}

func TestRenderedUtteranceRoundTripsThroughMatcher(t *testing.T) {
	r := NewRenderer(testTemplates())

	// The act map registers the raw template text as its exemplar, the way
	// reviewed artifacts do.
	matcher := nlu.NewMatcher(schema.DialogActMap{
		"check_order": schema.ActMap{
			"inform_Email":        {"my email is $Email$"},
			"request_Email@Email": {"What is the email on the order?"},
		},
	}, nil)

	plain, _, err := r.Render(Frame{
		Action:      "inform",
		InformSlots: map[string]string{"Email": "a@b.com"},
	}, schema.SpeakerUser)
	require.NoError(t, err)

	// Substituting a value must not push the utterance away from its own
	// template: the matcher still recovers the originating act.
	match := matcher.Match(plain, "check_order")
	assert.Equal(t, "inform_Email", match.Act)
	assert.Greater(t, match.Score, 50)
}

func TestStarterTemplatesCoverOntology(t *testing.T) {
	ontology := schema.Ontology{
		"check_order": {
			"Email@Email":  {"a@b.com"},
			"Order_Number": {"12345"},
		},
		"cancel_order": {
			"Email@Email": {"a@b.com"},
		},
	}
	set := StarterTemplates(ontology)
	r := NewRenderer(set)

	for _, slot := range []string{"Email", "Order_Number"} {
		plain, _, err := r.Render(Frame{
			Action:      "inform",
			InformSlots: map[string]string{slot: "v"},
		}, schema.SpeakerUser)
		require.NoError(t, err, "slot %s", slot)
		assert.Contains(t, plain, "v")
	}

	plain, _, err := r.Render(Frame{
		Action:      "inform",
		InformSlots: map[string]string{schema.IntentSlot: "where is my stuff"},
	}, schema.SpeakerUser)
	require.NoError(t, err)
	assert.Equal(t, "where is my stuff", plain)

	for _, action := range []string{"thanks", "affirm", "deny"} {
		_, _, err := r.Render(Frame{Action: action}, schema.SpeakerUser)
		assert.NoError(t, err, "action %s", action)
	}
}
