package nlu

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"botsim/internal/schema"
)

func testActMap() schema.DialogActMap {
	return schema.DialogActMap{
		"check_order": schema.ActMap{
			schema.ActIntentSuccess: {"Sure, I can help you check your order status."},
			"request_Email@Email":   {"What is the email address on the order?"},
			"NER_error_Email":       {"That doesn't look like a valid email, try again."},
			schema.ActDialogSuccess: {"Your order $Status$ is on the way. Anything else?"},
		},
		"cancel_order": schema.ActMap{
			schema.ActIntentSuccess: {"Sure, I can help you cancel your order."},
		},
	}
}

func TestNormalizeStripsPlaceholdersAndBrackets(t *testing.T) {
	assert.Equal(t, "your order $ is on the way", normalize("Your order $Status$ is on the way"))
	assert.Equal(t, "hello  there", normalize("Hello [first_name] there"))
	assert.Equal(t, "plain text", normalize("  Plain TEXT  "))
}

func TestScoreBounds(t *testing.T) {
	m := NewMatcher(testActMap(), nil)
	assert.Equal(t, 100, m.Score("hello there", "Hello THERE"))
	assert.Equal(t, 0, m.Score("", ""))
	low := m.Score("completely unrelated words", "zzzz qqqq xxxx")
	assert.GreaterOrEqual(t, low, 0)
	assert.LessOrEqual(t, low, 100)
}

func TestMatchPicksClosestAct(t *testing.T) {
	m := NewMatcher(testActMap(), nil)

	match := m.Match("What is the email address on the order?", "check_order")
	assert.Equal(t, "request_Email@Email", match.Act)
	assert.Equal(t, 100, match.Score)
	assert.Contains(t, match.Ties, "request_Email@Email")

	match = m.Match("Sure, I can help you check your order status!", "check_order")
	assert.Equal(t, schema.ActIntentSuccess, match.Act)
	assert.Greater(t, match.Score, 80)
}

func TestMatchPlaceholderInsensitive(t *testing.T) {
	m := NewMatcher(testActMap(), nil)
	// The live bot fills $Status$ with a concrete value; the match must
	// still land on the templated exemplar.
	match := m.Match("Your order 12345 is on the way. Anything else?", "check_order")
	assert.Equal(t, schema.ActDialogSuccess, match.Act)
}

func TestMatchUnknownDialogReturnsZero(t *testing.T) {
	m := NewMatcher(testActMap(), nil)
	match := m.Match("anything", "no_such_dialog")
	assert.Empty(t, match.Act)
	assert.Zero(t, match.Score)
	assert.Empty(t, match.Ties)
}

func TestMatchTies(t *testing.T) {
	actMap := schema.DialogActMap{
		"d": schema.ActMap{
			"request_A@E": {"please give me the value"},
			"request_B@E": {"please give me the value"},
		},
	}
	m := NewMatcher(actMap, nil)
	match := m.Match("please give me the value", "d")
	require.Len(t, match.Ties, 2)
	assert.Equal(t, []string{"request_A@E", "request_B@E"}, match.Ties)
}

func TestMatchIsCached(t *testing.T) {
	m := NewMatcher(testActMap(), nil)
	first := m.Match("What is the email address on the order?", "check_order")
	second := m.Match("What is the email address on the order?", "check_order")
	assert.Equal(t, first, second)
}

func TestBestScoreCrossDialog(t *testing.T) {
	m := NewMatcher(testActMap(), nil)
	message := "Sure, I can help you cancel your order."
	assert.Greater(t, m.BestScore(message, "cancel_order"), m.BestScore(message, "check_order"))
}
