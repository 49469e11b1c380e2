package driver

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"botsim/internal/errors"
	"botsim/internal/nlg"
	"botsim/internal/nlu"
	"botsim/internal/schema"
	"botsim/internal/simulator"
	"botsim/internal/transport"
)

// scriptClient plays back a fixed sequence of bot message batches.
type scriptClient struct {
	batches  [][]string
	sent     []string
	botFirst bool
	openErr  error
	closed   bool
}

func (c *scriptClient) Open(ctx context.Context) error { return c.openErr }

func (c *scriptClient) Receive(ctx context.Context) ([]string, error) {
	if len(c.batches) == 0 {
		return nil, nil
	}
	batch := c.batches[0]
	c.batches = c.batches[1:]
	return batch, nil
}

func (c *scriptClient) Send(ctx context.Context, text string) error {
	c.sent = append(c.sent, text)
	return nil
}

func (c *scriptClient) Close(ctx context.Context) error {
	c.closed = true
	return nil
}

func (c *scriptClient) BotSpeaksFirst() bool { return c.botFirst }

// scriptDialer hands out one scripted client per session.
type scriptDialer struct {
	clients []*scriptClient
	next    int
}

func (d *scriptDialer) Dial() transport.BotClient {
	c := d.clients[d.next]
	d.next++
	return c
}

func testActMap() schema.DialogActMap {
	return schema.DialogActMap{
		"check_order": schema.ActMap{
			schema.ActRequestIntent: {"What can I help you with today?"},
			schema.ActIntentSuccess: {"Sure, I can help you check your order."},
			"request_Email@Email":   {"What is the email on the order?"},
			schema.ActDialogSuccess: {"Your order is on the way. Anything else?"},
			schema.ActIntentFailure: {"Sorry, I didn't understand that."},
		},
	}
}

func testTemplates() nlg.TemplateSet {
	return nlg.TemplateSet{DiaActs: map[string][]nlg.Template{
		"inform": {
			{InformSlots: []string{schema.IntentSlot}, RequestSlots: []string{}, NL: map[string]string{"usr": "$intent$"}},
			{InformSlots: []string{"Email"}, RequestSlots: []string{}, NL: map[string]string{"usr": "my email is $Email$"}},
		},
		"thanks": {{InformSlots: []string{}, RequestSlots: []string{}, NL: map[string]string{"usr": "thanks, goodbye"}}},
	}}
}

func testGoal(name string) schema.Goal {
	return schema.Goal{
		Name:         "check_order",
		RequestSlots: map[string]string{"check_order": schema.UnknownSlot},
		InformSlots: map[string]schema.SlotValue{
			schema.IntentSlot: {"where is my order"},
			"Email@Email":     {"a@b.com"},
		},
	}
}

func newTestDriver(dialer transport.Dialer) *Driver {
	return New(DefaultConfig(), simulator.DefaultConfig(),
		nlu.NewMatcher(testActMap(), nil), nlg.NewRenderer(testTemplates()), dialer, nil, nil)
}

func successScript() *scriptClient {
	return &scriptClient{botFirst: true, batches: [][]string{
		{"What can I help you with today?"},
		{"Sure, I can help you check your order.", "What is the email on the order?"},
		{"Your order is on the way. Anything else?"},
	}}
}

func intentFailureScript() *scriptClient {
	return &scriptClient{botFirst: true, batches: [][]string{
		{"What can I help you with today?"},
		{"Sorry, I didn't understand that."},
	}}
}

func TestSimulateIntentAccounting(t *testing.T) {
	success := successScript()
	failure := intentFailureScript()
	d := newTestDriver(&scriptDialer{clients: []*scriptClient{success, failure}})

	goalSet := schema.GoalSet{Goals: map[string]schema.Goal{
		"check_order_0": testGoal("check_order_0"),
		"check_order_1": testGoal("check_order_1"),
	}}

	dir := t.TempDir()
	logPath := filepath.Join(dir, "logs.json")
	errPath := filepath.Join(dir, "errors.json")
	res, err := d.SimulateIntent(context.Background(), "check_order", "dev", goalSet, logPath, errPath)
	require.NoError(t, err)

	assert.Equal(t, 2, res.Summary.TotalEpisodes)
	assert.Equal(t, 1, res.Summary.Success)
	assert.Equal(t, 1, res.Summary.IntentErrors)
	assert.Equal(t, 0.5, res.Summary.SuccessRate)
	assert.Zero(t, res.Discarded)

	// Accounting invariant: every counted episode lands in exactly one
	// outcome bucket.
	s := res.Summary
	assert.Equal(t, s.TotalEpisodes, s.Success+s.IntentErrors+s.NERErrors+s.OtherErrors)

	// The user side of the conversation went over the wire.
	assert.Equal(t, []string{"where is my order", "my email is a@b.com"}, success.sent)
	assert.True(t, success.closed)

	log := res.Logs.Episodes[0]
	require.NotEmpty(t, log.ChatLog)
	assert.Equal(t, "0 bot: What can I help you with today?", log.ChatLog[0])
	assert.Equal(t, "1 usr: where is my order", log.ChatLog[1])
	assert.Equal(t, "========== Episode 0 SUCCESS Num_of_turns: 3 ==========", log.ChatLog[len(log.ChatLog)-1])

	record, ok := res.Errors["1"]
	require.True(t, ok)
	assert.Equal(t, "Intent", record.ErrorType)
	assert.Equal(t, "1;where is my order;out_of_domain", record.ErrorInfo)

	// Artifacts were flushed at the batch boundary.
	var persisted schema.SessionLogFile
	require.NoError(t, schema.LoadJSON(logPath, &persisted))
	assert.Equal(t, res.Summary, persisted.Summary)
	assert.Len(t, persisted.Episodes, 2)

	var persistedErrors schema.ErrorRecordFile
	require.NoError(t, schema.LoadJSON(errPath, &persistedErrors))
	assert.Equal(t, res.Errors, persistedErrors)
}

func TestSimulateIntentUserFirstPlatform(t *testing.T) {
	client := &scriptClient{botFirst: false, batches: [][]string{
		{"Sure, I can help you check your order.", "What is the email on the order?"},
		{"Your order is on the way. Anything else?"},
	}}
	d := New(DefaultConfig(), simulator.Config{MaxRounds: 15, IntentCheckTurn: 1},
		nlu.NewMatcher(testActMap(), nil), nlg.NewRenderer(testTemplates()),
		&scriptDialer{clients: []*scriptClient{client}}, nil, nil)

	goalSet := schema.GoalSet{Goals: map[string]schema.Goal{"check_order_0": testGoal("check_order_0")}}
	res, err := d.SimulateIntent(context.Background(), "check_order", "dev", goalSet, "", "")
	require.NoError(t, err)

	assert.Equal(t, 1, res.Summary.Success)
	// The probe is sent before the first receive.
	require.NotEmpty(t, client.sent)
	assert.Equal(t, "where is my order", client.sent[0])
	assert.Equal(t, "0 usr: where is my order", res.Logs.Episodes[0].ChatLog[0])
}

func TestSimulateIntentConsecutiveOpenFailuresAbort(t *testing.T) {
	openErr := fmt.Errorf("connection refused")
	clients := []*scriptClient{
		{botFirst: true, openErr: openErr},
		{botFirst: true, openErr: openErr},
		{botFirst: true, openErr: openErr},
	}
	d := newTestDriver(&scriptDialer{clients: clients})

	goalSet := schema.GoalSet{Goals: map[string]schema.Goal{
		"check_order_0": testGoal("check_order_0"),
		"check_order_1": testGoal("check_order_1"),
		"check_order_2": testGoal("check_order_2"),
	}}
	res, err := d.SimulateIntent(context.Background(), "check_order", "dev", goalSet, "", "")
	require.Error(t, err)
	assert.True(t, errors.IsTransport(err))
	assert.Equal(t, 3, res.Discarded)
	assert.Zero(t, res.Summary.TotalEpisodes)
}

func TestSimulateIntentOpenFailureResets(t *testing.T) {
	clients := []*scriptClient{
		{botFirst: true, openErr: fmt.Errorf("connection refused")},
		successScript(),
	}
	d := newTestDriver(&scriptDialer{clients: clients})

	goalSet := schema.GoalSet{Goals: map[string]schema.Goal{
		"check_order_0": testGoal("check_order_0"),
		"check_order_1": testGoal("check_order_1"),
	}}
	res, err := d.SimulateIntent(context.Background(), "check_order", "dev", goalSet, "", "")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Discarded)
	assert.Equal(t, 1, res.Summary.Success)
}

func TestSimulateIntentDiscardsSilentSessions(t *testing.T) {
	// The platform claims to speak first but never produces a message.
	client := &scriptClient{botFirst: true}
	d := newTestDriver(&scriptDialer{clients: []*scriptClient{client}})

	goalSet := schema.GoalSet{Goals: map[string]schema.Goal{"check_order_0": testGoal("check_order_0")}}
	res, err := d.SimulateIntent(context.Background(), "check_order", "dev", goalSet, "", "")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Discarded)
	assert.Zero(t, res.Summary.TotalEpisodes)
}

func TestSimulateIntentConfigErrorStopsRun(t *testing.T) {
	actMap := schema.DialogActMap{
		"check_order": schema.ActMap{
			schema.ActRequestIntent: {"What can I help you with today?"},
			"request_A@E":           {"please give me the value"},
			"request_B@E":           {"please give me the value"},
		},
	}
	client := &scriptClient{botFirst: true, batches: [][]string{
		{"What can I help you with today?"},
		{"please give me the value"},
	}}
	d := New(DefaultConfig(), simulator.DefaultConfig(),
		nlu.NewMatcher(actMap, nil), nlg.NewRenderer(testTemplates()),
		&scriptDialer{clients: []*scriptClient{client}}, nil, nil)

	goalSet := schema.GoalSet{Goals: map[string]schema.Goal{"check_order_0": testGoal("check_order_0")}}
	_, err := d.SimulateIntent(context.Background(), "check_order", "dev", goalSet, "", "")
	require.Error(t, err)
	assert.True(t, errors.IsConfig(err))
}

func TestSimulateIntentHonorsContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d := newTestDriver(&scriptDialer{clients: []*scriptClient{successScript()}})

	goalSet := schema.GoalSet{Goals: map[string]schema.Goal{"check_order_0": testGoal("check_order_0")}}
	_, err := d.SimulateIntent(ctx, "check_order", "dev", goalSet, "", "")
	assert.ErrorIs(t, err, context.Canceled)
}
