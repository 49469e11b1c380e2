package parser

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"botsim/internal/logging"
	"botsim/internal/schema"
)

func testBundle() Bundle {
	return Bundle{
		Name: "support-bot",
		Dialogs: []RawDialog{
			{
				Name: "Welcome",
				Steps: []Step{
					{Kind: StepMessage, Text: "Hi, I'm the support bot."},
					{Kind: StepMessage, Text: "What can I help you with today?"},
				},
			},
			{
				Name: "Confused",
				Steps: []Step{
					{Kind: StepMessage, Text: "Sorry, I didn't understand that."},
				},
			},
			{
				Name: "check_order",
				Steps: []Step{
					{Kind: StepMessage, Text: "Sure, I can check order {!Order_Number} for you."},
					{
						Kind:          StepCollect,
						Slot:          "Email",
						Entity:        "Email",
						Prompt:        "What is the email address on the order?",
						RetryMessages: []string{"That doesn't look like an email, {name}. Try again."},
					},
					{Kind: StepMessage, Text: "Your order is on the way. Anything else?"},
					{Kind: StepNavigation, Targets: []NavTarget{{To: "End_Chat"}}},
				},
			},
			{
				Name: "End_Chat",
				Steps: []Step{
					{Kind: StepMessage, Text: "Thanks for visiting, goodbye!"},
				},
			},
		},
		Intents: []IntentSet{
			{Dialog: "check_order", Utterances: []string{"where is my order", "track my package"}},
		},
		Entities: []schema.Entity{
			{Name: "Email", Kind: schema.EntitySystem, System: "email"},
		},
	}
}

func TestLocalActsMessageRuns(t *testing.T) {
	dialog := RawDialog{
		Name: "d",
		Steps: []Step{
			{Kind: StepMessage, Text: "first part."},
			{Kind: StepMessage, Text: "second part."},
			{Kind: StepCollect, Slot: "Email", Entity: "Email", Prompt: "your email?"},
			{Kind: StepMessage, Text: "all done, bye."},
		},
	}
	acts := localActs(dialog)

	// The opening message run is merged into one recognition exemplar.
	assert.Equal(t, []string{"first part. second part."}, acts[schema.ActIntentSuccess])
	assert.Equal(t, []string{"your email?"}, acts["request_Email@Email"])
	// The final plain-message run doubles as the closing exemplar.
	assert.Equal(t, []string{"all done, bye."}, acts[schema.ActDialogSuccess])
	assert.Equal(t, []string{"all done, bye."}, acts[schema.ActSmallTalk])
}

func TestLocalActsCollectOpening(t *testing.T) {
	// A dialog that opens with a question uses that question as its
	// recognition acknowledgement.
	dialog := RawDialog{
		Name: "d",
		Steps: []Step{
			{Kind: StepCollect, Slot: "Date", Prompt: "For what date?", RetryMessages: []string{"Which date was that?"}},
		},
	}
	acts := localActs(dialog)
	assert.Equal(t, []string{"For what date?"}, acts[schema.ActIntentSuccess])
	assert.Equal(t, []string{"For what date?"}, acts["request_Date"])
	assert.Equal(t, []string{"Which date was that?"}, acts["NER_error_Date"])
}

func TestStripVariables(t *testing.T) {
	// {!var} echo references survive as $var$ markers; plain {var}
	// placeholders vanish.
	assert.Equal(t, "Sure, I can check order $Order_Number$ for you.", stripVariables("Sure, I can check order {!Order_Number} for you."))
	assert.Equal(t, "Hi , welcome back", stripVariables("Hi {first_name}, welcome back"))
}

func TestSuccessInforms(t *testing.T) {
	dialog := testBundle().Dialogs[2]
	assert.Equal(t, []string{"Order_Number"}, successInforms(dialog))
}

func TestParseAggregation(t *testing.T) {
	res, err := Parse(testBundle(), Options{}, nil)
	require.NoError(t, err)

	acts, ok := res.ActMap["check_order"]
	require.True(t, ok, "intent dialog must have an aggregated act map")

	// Probe prompt comes from the welcome dialog's closing message.
	assert.Contains(t, acts[schema.ActRequestIntent][0], "What can I help you with")
	// The fallback acknowledgement is the failure exemplar.
	require.NotEmpty(t, acts[schema.ActIntentFailure])
	assert.Contains(t, acts[schema.ActIntentFailure][0], "didn't understand")
	// The terminal dialog's last words extend the success exemplars.
	assert.Contains(t, acts[schema.ActDialogSuccess], "Thanks for visiting, goodbye!")
	// Slot request and retry prompts survive aggregation.
	assert.NotEmpty(t, acts["request_Email@Email"])
	assert.NotEmpty(t, acts["NER_error_Email"])
	// Echo references stay in the exemplar as $var$ markers.
	assert.Contains(t, acts[schema.ActIntentSuccess][0], "$Order_Number$")

	// Non-intent dialogs never get aggregated entries.
	assert.NotContains(t, res.ActMap, "Welcome")
	assert.NotContains(t, res.ActMap, "Confused")

	assert.Equal(t, []string{"where is my order", "track my package"}, res.Utterances["check_order"])
	assert.Equal(t, []string{"Order_Number"}, res.SuccessInforms["check_order"])
}

func TestParseOntologyCompleteness(t *testing.T) {
	res, err := Parse(testBundle(), Options{}, nil)
	require.NoError(t, err)

	require.NoError(t, res.Ontology.Validate(res.ActMap))
	values := res.Ontology["check_order"]["Email@Email"]
	require.NotEmpty(t, values)
	for _, v := range values {
		assert.Contains(t, v, "@", "email samples should look like addresses: %q", v)
	}
}

func TestParseUnknownEntityExcludesDialog(t *testing.T) {
	bundle := testBundle()
	bundle.Entities = nil

	res, err := Parse(bundle, Options{}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"check_order"}, res.Excluded)
	assert.NotContains(t, res.ActMap, "check_order")
	assert.NotContains(t, res.Ontology, "check_order")
}

func TestParseIsIdempotent(t *testing.T) {
	first, err := Parse(testBundle(), Options{}, nil)
	require.NoError(t, err)
	second, err := Parse(testBundle(), Options{}, nil)
	require.NoError(t, err)

	assert.Equal(t, first.ActMap, second.ActMap)
	assert.Equal(t, first.Ontology, second.Ontology)
	assert.Equal(t, first.SuccessInforms, second.SuccessInforms)
}

func TestParseRejectsBrokenBundles(t *testing.T) {
	empty := Bundle{Name: "empty"}
	_, err := Parse(empty, Options{}, nil)
	assert.Error(t, err)

	dup := testBundle()
	dup.Dialogs = append(dup.Dialogs, RawDialog{Name: "Welcome"})
	_, err = Parse(dup, Options{}, nil)
	assert.Error(t, err)

	badIntent := testBundle()
	badIntent.Intents = append(badIntent.Intents, IntentSet{Dialog: "ghost"})
	_, err = Parse(badIntent, Options{}, nil)
	assert.Error(t, err)
}

func TestSampleValuesValueList(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	entity := schema.Entity{
		Name:   "Color",
		Kind:   schema.EntityValueList,
		Values: []string{"red", "green", "blue"},
	}
	values := sampleValues("Color", entity, rng, logging.Nop())
	assert.ElementsMatch(t, []string{"red", "green", "blue"}, values)
}

func TestSampleValuesRegex(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	entity := schema.Entity{
		Name:    "Order_Number",
		Kind:    schema.EntityRegex,
		Pattern: `ORD-[0-9]{4}`,
	}
	values := sampleValues("Order_Number", entity, rng, logging.Nop())
	require.NotEmpty(t, values)
	assert.LessOrEqual(t, len(values), maxRegexSamples)
	for _, v := range values {
		assert.Regexp(t, `^ORD-[0-9]{4}$`, v)
	}
}

func TestEnumerateRegexAlternation(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	samples, err := enumerateRegex(`(small|medium|large)`, 5, rng)
	require.NoError(t, err)
	for _, s := range samples {
		assert.Contains(t, []string{"small", "medium", "large"}, s)
	}
}

func TestEnumerateRegexUnboundedRepeatTerminates(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	samples, err := enumerateRegex(`a+b*`, 5, rng)
	require.NoError(t, err)
	require.NotEmpty(t, samples)
	for _, s := range samples {
		assert.Regexp(t, `^a+b*$`, s)
	}
}
