// Package config loads and validates the run configuration for one
// simulation instance, and resolves the persisted artifact paths.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"

	"botsim/internal/errors"
	"botsim/internal/transport"
)

// ParaphraserConfig selects which paraphrase pool feeds goal synthesis.
type ParaphraserConfig struct {
	NumVariantA int `mapstructure:"num_variant_A_paraphrases" yaml:"num_variant_A_paraphrases"`
	NumVariantB int `mapstructure:"num_variant_B_paraphrases" yaml:"num_variant_B_paraphrases"`
	// NumUtterances limits how many seed utterances are used; -1 means
	// all.
	NumUtterances int `mapstructure:"num_utterances" yaml:"num_utterances"`
	// NumSimulations limits how many goals are simulated; -1 means all.
	NumSimulations int     `mapstructure:"num_simulations" yaml:"num_simulations"`
	DevRatio       float64 `mapstructure:"dev_ratio" yaml:"dev_ratio"`
	// Endpoint is the paraphrase collaborator service. Empty means the
	// seeds probe the bot unparaphrased.
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`
	Token    string `mapstructure:"token" yaml:"token"`
}

// RunTime holds the simulator knobs.
type RunTime struct {
	MaxRoundNum          int `mapstructure:"max_round_num" yaml:"max_round_num"`
	IntentCheckTurnIndex int `mapstructure:"intent_check_turn_index" yaml:"intent_check_turn_index"`
}

// Generator groups goal-generation settings.
type Generator struct {
	ParaphraserConfig ParaphraserConfig `mapstructure:"paraphraser_config" yaml:"paraphraser_config"`
	FilePaths         map[string]string `mapstructure:"file_paths" yaml:"file_paths"`
}

// Simulator groups simulation settings.
type Simulator struct {
	RunTime RunTime `mapstructure:"run_time" yaml:"run_time"`
}

// Remediator groups analysis settings.
type Remediator struct {
	FilePaths       map[string]string `mapstructure:"file_paths" yaml:"file_paths"`
	ClusterFraction float64           `mapstructure:"cluster_fraction" yaml:"cluster_fraction"`
	AnnealingSteps  int               `mapstructure:"annealing_steps" yaml:"annealing_steps"`
	Seed            int64             `mapstructure:"seed" yaml:"seed"`
}

// API is the platform credential bag. Platform selects which client the
// driver dials.
type API struct {
	Platform     string                        `mapstructure:"platform" yaml:"platform"`
	ChatSession  transport.ChatSessionConfig   `mapstructure:"chat_session" yaml:"chat_session"`
	DetectIntent transport.DetectIntentConfig  `mapstructure:"detect_intent" yaml:"detect_intent"`
}

// Orchestrator groups fan-out settings.
type Orchestrator struct {
	Parallelism int `mapstructure:"parallelism" yaml:"parallelism"`
}

// Run is the full configuration of one simulation instance.
type Run struct {
	BotName    string   `mapstructure:"bot_name" yaml:"bot_name"`
	SessionDir string   `mapstructure:"session_dir" yaml:"session_dir"`
	Intents    []string `mapstructure:"intents" yaml:"intents"`
	Database   string   `mapstructure:"database" yaml:"database"`

	Generator    Generator    `mapstructure:"generator" yaml:"generator"`
	Simulator    Simulator    `mapstructure:"simulator" yaml:"simulator"`
	Remediator   Remediator   `mapstructure:"remediator" yaml:"remediator"`
	API          API          `mapstructure:"api" yaml:"api"`
	Orchestrator Orchestrator `mapstructure:"orchestrator" yaml:"orchestrator"`
}

// PlatformChatSession and PlatformDetectIntent are the supported API
// styles.
const (
	PlatformChatSession  = "chat_session"
	PlatformDetectIntent = "detect_intent"
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("session_dir", ".")
	v.SetDefault("generator.paraphraser_config.num_variant_A_paraphrases", 5)
	v.SetDefault("generator.paraphraser_config.num_variant_B_paraphrases", 5)
	v.SetDefault("generator.paraphraser_config.num_utterances", -1)
	v.SetDefault("generator.paraphraser_config.num_simulations", -1)
	v.SetDefault("generator.paraphraser_config.dev_ratio", 0.5)
	v.SetDefault("simulator.run_time.max_round_num", 15)
	v.SetDefault("simulator.run_time.intent_check_turn_index", 2)
	v.SetDefault("remediator.cluster_fraction", 0.5)
	v.SetDefault("remediator.annealing_steps", 200000)
	v.SetDefault("remediator.seed", 1)
	v.SetDefault("api.platform", PlatformChatSession)
	v.SetDefault("orchestrator.parallelism", 4)
}

// Load reads the config file, applies defaults and BOTSIM_* environment
// overrides, and validates the result.
func Load(path string) (*Run, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(path)
	v.SetEnvPrefix("BOTSIM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, errors.NewConfigError("read config", path, err)
	}
	var run Run
	if err := v.Unmarshal(&run); err != nil {
		return nil, errors.NewConfigError("decode config", path, err)
	}
	if err := run.Validate(); err != nil {
		return nil, err
	}
	return &run, nil
}

// Validate checks the fields every command depends on.
func (r *Run) Validate() error {
	if r.BotName == "" {
		return errors.NewConfigError("validate config", "bot_name", fmt.Errorf("must not be empty"))
	}
	if r.SessionDir == "" {
		return errors.NewConfigError("validate config", "session_dir", fmt.Errorf("must not be empty"))
	}
	switch r.API.Platform {
	case PlatformChatSession, PlatformDetectIntent:
	default:
		return errors.NewConfigError("validate config", "api.platform",
			fmt.Errorf("unknown platform %q", r.API.Platform))
	}
	ratio := r.Generator.ParaphraserConfig.DevRatio
	if ratio < 0 || ratio > 1 {
		return errors.NewConfigError("validate config", "generator.paraphraser_config.dev_ratio",
			fmt.Errorf("must be within [0, 1], got %v", ratio))
	}
	if r.Orchestrator.Parallelism <= 0 {
		r.Orchestrator.Parallelism = 4
	}
	return nil
}

// starterConfig is what `prepare` writes for the operator to fill in.
const starterConfig = `# Simulation instance configuration.
bot_name: my-bot
session_dir: .
intents: []
# Optional sqlite file for batch summary rows.
database: ""

generator:
  paraphraser_config:
    num_variant_A_paraphrases: 5
    num_variant_B_paraphrases: 5
    num_utterances: -1      # -1 means all seed utterances
    num_simulations: -1     # -1 means all goals
    dev_ratio: 0.5
    endpoint: ""            # paraphrase collaborator; empty uses seeds as-is
    token: ""

simulator:
  run_time:
    max_round_num: 15
    intent_check_turn_index: 2

remediator:
  cluster_fraction: 0.5
  annealing_steps: 200000
  seed: 1

api:
  platform: chat_session    # chat_session | detect_intent
  chat_session:
    endpoint: ""
    api_version: "50"
    org_id: ""
    deployment_id: ""
    button_id: ""
    visitor_name: BotSIM
  detect_intent:
    endpoint: ""
    agent: ""
    token: ""

orchestrator:
  parallelism: 4
`

// WriteStarter writes the commented starter configuration; it refuses to
// overwrite an existing file.
func WriteStarter(path string) error {
	if _, err := os.Stat(path); err == nil {
		return errors.NewConfigError("write starter config", path, fmt.Errorf("file already exists"))
	}
	return os.WriteFile(path, []byte(starterConfig), 0o644)
}
