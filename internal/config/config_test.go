package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"botsim/internal/errors"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "botsim.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
bot_name: support-bot
intents: [check_order]
`)
	run, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "support-bot", run.BotName)
	assert.Equal(t, ".", run.SessionDir)
	assert.Equal(t, []string{"check_order"}, run.Intents)
	assert.Equal(t, 5, run.Generator.ParaphraserConfig.NumVariantA)
	assert.Equal(t, -1, run.Generator.ParaphraserConfig.NumUtterances)
	assert.Equal(t, 0.5, run.Generator.ParaphraserConfig.DevRatio)
	assert.Equal(t, 15, run.Simulator.RunTime.MaxRoundNum)
	assert.Equal(t, 2, run.Simulator.RunTime.IntentCheckTurnIndex)
	assert.Equal(t, PlatformChatSession, run.API.Platform)
	assert.Equal(t, 4, run.Orchestrator.Parallelism)
	assert.Equal(t, int64(1), run.Remediator.Seed)
}

func TestLoadOverrides(t *testing.T) {
	path := writeConfig(t, `
bot_name: support-bot
session_dir: /tmp/run1
api:
  platform: detect_intent
simulator:
  run_time:
    max_round_num: 30
    intent_check_turn_index: 3
generator:
  paraphraser_config:
    num_variant_A_paraphrases: 3
    num_variant_B_paraphrases: 7
    num_utterances: 10
    num_simulations: 50
`)
	run, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/run1", run.SessionDir)
	assert.Equal(t, PlatformDetectIntent, run.API.Platform)
	assert.Equal(t, 30, run.Simulator.RunTime.MaxRoundNum)
	assert.Equal(t, 3, run.Simulator.RunTime.IntentCheckTurnIndex)
	assert.Equal(t, "3_7", run.ParaSetting())
}

func TestLoadRejectsBadConfig(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.True(t, errors.IsConfig(err))

	path := writeConfig(t, "bot_name: \"\"\n")
	_, err = Load(path)
	require.Error(t, err)
	assert.True(t, errors.IsConfig(err))

	path = writeConfig(t, `
bot_name: bot
api:
  platform: carrier_pigeon
`)
	_, err = Load(path)
	require.Error(t, err)
	assert.True(t, errors.IsConfig(err))

	path = writeConfig(t, `
bot_name: bot
generator:
  paraphraser_config:
    dev_ratio: 1.5
`)
	_, err = Load(path)
	require.Error(t, err)
	assert.True(t, errors.IsConfig(err))
}

func TestValidateRepairsParallelism(t *testing.T) {
	run := Run{BotName: "bot", SessionDir: ".", API: API{Platform: PlatformChatSession}}
	run.Generator.ParaphraserConfig.DevRatio = 0.5
	require.NoError(t, run.Validate())
	assert.Equal(t, 4, run.Orchestrator.Parallelism)
}

func TestArtifactPathExpansion(t *testing.T) {
	run := Run{SessionDir: "/data/run"}
	run.Generator.ParaphraserConfig = ParaphraserConfig{
		NumVariantA:    5,
		NumVariantB:    5,
		NumUtterances:  -1,
		NumSimulations: 20,
	}

	assert.Equal(t, "/data/run/conf/dialog_act_map.revised.json", run.DialogActMapPath(true))
	assert.Equal(t, "/data/run/conf/ontology.json", run.OntologyPath(false))
	assert.Equal(t, "/data/run/goals_dir/check_order.json", run.UtterancesPath("check_order"))
	assert.Equal(t, "/data/run/goals_dir/check_order_5_5.paraphrases.json", run.ParaphrasesPath("check_order"))
	assert.Equal(t,
		"/data/run/goals_dir/check_order_5_5.dev.paraphrases.goal.json",
		run.GoalsPath("check_order", "dev"))
	assert.Equal(t,
		"/data/run/simulation/check_order/logs_eval_5_5_all_20_sessions.json",
		run.SessionLogsPath("check_order", "eval"))
	assert.Equal(t,
		"/data/run/simulation/check_order/errors_eval_5_5_all_20_sessions.json",
		run.SessionErrorsPath("check_order", "eval"))
	assert.Equal(t, "/data/run/remediation/cm_dev_report.json", run.CMReportPath("dev"))
	assert.Equal(t, "/data/run/remediation/aggregated_report.json", run.AggregatedReportPath())
	assert.Equal(t, "/data/run/conf/graph.json", run.GraphPath())
	assert.Equal(t, "/data/run/conf/success_informs.json", run.SuccessInformsPath())
	assert.Equal(t,
		"/data/run/goals_dir/check_order_cancel_order_5_5.dev.paraphrases.compound.goal.json",
		run.CompoundGoalsPath("check_order", "cancel_order", "dev"))
}

func TestArtifactPathOperatorOverride(t *testing.T) {
	run := Run{SessionDir: "/data/run"}
	run.Generator.FilePaths = map[string]string{"ontology": "custom/onto.json"}
	run.Remediator.FilePaths = map[string]string{"cm_report": "reports/cm_<mode>.json"}

	assert.Equal(t, "/data/run/custom/onto.json", run.OntologyPath(false))
	assert.Equal(t, "/data/run/reports/cm_eval.json", run.CMReportPath("eval"))
}

func TestCountToken(t *testing.T) {
	assert.Equal(t, "all", countToken(-1))
	assert.Equal(t, "0", countToken(0))
	assert.Equal(t, "25", countToken(25))
}

func TestWriteStarterRefusesExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "botsim.yaml")
	require.NoError(t, WriteStarter(path))

	// The starter must itself be loadable after filling in the bot name.
	run, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "my-bot", run.BotName)

	err = WriteStarter(path)
	require.Error(t, err)
	assert.True(t, errors.IsConfig(err))
}

func TestSessionSubdirs(t *testing.T) {
	assert.Equal(t, []string{"conf", "goals_dir", "simulation", "remediation"}, SessionSubdirs())
}
