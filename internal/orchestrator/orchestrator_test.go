package orchestrator

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"botsim/internal/config"
	"botsim/internal/errors"
	"botsim/internal/nlg"
	"botsim/internal/schema"
)

func testRun(t *testing.T) *config.Run {
	t.Helper()
	run := &config.Run{
		BotName:    "support-bot",
		SessionDir: t.TempDir(),
		Intents:    []string{"check_order"},
	}
	run.API.Platform = config.PlatformChatSession
	run.Orchestrator.Parallelism = 2
	run.Simulator.RunTime.MaxRoundNum = 15
	run.Simulator.RunTime.IntentCheckTurnIndex = 2
	return run
}

func writeReviewedArtifacts(t *testing.T, run *config.Run) {
	t.Helper()
	actMap := schema.DialogActMap{
		"check_order": schema.ActMap{
			schema.ActIntentSuccess: {"Sure, I can help you check your order."},
			schema.ActIntentFailure: {"Sorry, I didn't understand that."},
		},
	}
	require.NoError(t, schema.SaveJSON(run.DialogActMapPath(true), actMap))

	templates := nlg.TemplateSet{DiaActs: map[string][]nlg.Template{
		"inform": {{InformSlots: []string{schema.IntentSlot}, RequestSlots: []string{}, NL: map[string]string{"usr": "$intent$"}}},
		"thanks": {{InformSlots: []string{}, RequestSlots: []string{}, NL: map[string]string{"usr": "thanks, goodbye"}}},
	}}
	require.NoError(t, schema.SaveJSON(run.TemplatePath(), templates))
}

func TestNewRequiresReviewedArtifacts(t *testing.T) {
	run := testRun(t)

	_, err := New(run, nil)
	require.Error(t, err)
	assert.True(t, errors.IsMissingArtifact(err))

	require.NoError(t, schema.SaveJSON(run.DialogActMapPath(true), schema.DialogActMap{}))
	_, err = New(run, nil)
	require.Error(t, err)
	assert.True(t, errors.IsMissingArtifact(err), "template file still missing")

	writeReviewedArtifacts(t, run)
	o, err := New(run, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, o.RunID())
	require.NoError(t, o.Close())
}

func TestSimulateSkipsJobsWithExistingLogs(t *testing.T) {
	run := testRun(t)
	writeReviewedArtifacts(t, run)
	for _, mode := range []string{"dev", "eval"} {
		require.NoError(t, schema.SaveJSON(run.SessionLogsPath("check_order", mode),
			schema.SessionLogFile{Episodes: map[int]schema.EpisodeLog{}}))
	}

	o, err := New(run, nil)
	require.NoError(t, err)
	defer o.Close()

	res, err := o.Simulate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"check_order/dev", "check_order/eval"}, res.Skipped)
	assert.Empty(t, res.Completed)
	assert.Empty(t, res.Failures)
}

func TestSimulateMissingGoalsFailsJobNotRun(t *testing.T) {
	run := testRun(t)
	writeReviewedArtifacts(t, run)

	o, err := New(run, nil)
	require.NoError(t, err)
	defer o.Close()

	res, err := o.Simulate(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Failures, 2)
	for _, failure := range res.Failures {
		assert.True(t, errors.IsMissingArtifact(failure.Err), failure.Error())
	}
	assert.Empty(t, res.Completed)
}

func TestRemediateProducesReports(t *testing.T) {
	run := testRun(t)
	writeReviewedArtifacts(t, run)

	logs := schema.SessionLogFile{
		Episodes: map[int]schema.EpisodeLog{
			0: {ChatLog: []string{
				"0 usr: where is my order",
				"1 bot: Sure, I can help you check your order.",
				schema.FormatSummaryLine(0, schema.SessionOutcome{Kind: schema.OutcomeSuccess, NumTurns: 2}),
			}},
		},
		Summary: schema.RunSummary{TotalEpisodes: 1, Success: 1, SuccessRate: 1, AverageTurns: 2},
	}
	require.NoError(t, schema.SaveJSON(run.SessionLogsPath("check_order", "dev"), logs))

	o, err := New(run, nil)
	require.NoError(t, err)
	defer o.Close()

	aggregated, err := o.Remediate(context.Background())
	require.NoError(t, err)

	mode := aggregated.Modes["dev"]
	require.NotNil(t, mode)
	assert.Equal(t, 1, mode.Overall.TotalEpisodes)
	assert.Equal(t, 1, mode.Overall.Success)
	require.Contains(t, mode.Intents, "check_order")
	assert.Equal(t, map[string]int{"check_order": 1}, mode.Intents["check_order"].Predictions)

	// Per-job and aggregated artifacts are persisted.
	for _, path := range []string{
		run.IntentPredictionsPath("check_order", "dev"),
		run.IntentRemediationPath("check_order", "dev"),
		run.AggregatedReportPath(),
	} {
		_, err := os.Stat(path)
		assert.NoError(t, err, path)
	}

	// The eval mode was never simulated; it contributes nothing.
	assert.NotContains(t, aggregated.Modes, "eval")
}
