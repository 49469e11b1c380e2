package main

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"botsim/internal/config"
	"botsim/internal/errors"
	"botsim/internal/goals"
	"botsim/internal/graph"
	"botsim/internal/logging"
	"botsim/internal/nlg"
	"botsim/internal/paraphrase"
	"botsim/internal/parser"
	"botsim/internal/schema"
)

func newPrepareCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "prepare",
		Short: "Initialize the session directory and a starter configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			sessionDir := flags.sessionDir
			if sessionDir == "" {
				sessionDir = "."
			}
			for _, sub := range config.SessionSubdirs() {
				if err := os.MkdirAll(filepath.Join(sessionDir, sub), 0o755); err != nil {
					return err
				}
			}
			if err := config.WriteStarter(flags.configPath); err != nil {
				return err
			}
			fmt.Printf("%s session directory %s, configuration %s\n",
				green("prepared"), sessionDir, flags.configPath)
			fmt.Println("Fill in bot_name, intents, and api credentials before parsing.")
			return nil
		},
	}
}

func newParseCmd(flags *rootFlags) *cobra.Command {
	var bundlePath string
	cmd := &cobra.Command{
		Use:   "parse",
		Short: "Parse a bot definition into act maps, ontology, and templates",
		RunE: func(cmd *cobra.Command, args []string) error {
			run, err := flags.load()
			if err != nil {
				return err
			}
			logger := flags.logger()

			bundle, err := parser.LoadBundle(bundlePath)
			if err != nil {
				return errors.NewConfigError("load bundle", bundlePath, err)
			}
			res, err := parser.Parse(bundle, parser.Options{}, logger)
			if err != nil {
				return errors.NewConfigError("parse bundle", bundlePath, err)
			}

			if err := schema.SaveJSON(run.DialogActMapPath(false), res.ActMap); err != nil {
				return err
			}
			if err := schema.SaveJSON(run.OntologyPath(false), res.Ontology); err != nil {
				return err
			}
			if err := schema.SaveJSON(run.TemplatePath(), nlg.StarterTemplates(res.Ontology)); err != nil {
				return err
			}
			if err := schema.SaveJSON(run.EntitiesPath(), res.Entities); err != nil {
				return err
			}
			if err := schema.SaveJSON(run.GraphPath(), res.Graph.Export()); err != nil {
				return err
			}
			if err := schema.SaveJSON(run.SuccessInformsPath(), res.SuccessInforms); err != nil {
				return err
			}
			for intent, utterances := range res.Utterances {
				if err := schema.SaveJSON(run.UtterancesPath(intent), utterances); err != nil {
					return err
				}
			}

			fmt.Printf("%s %d dialogs into %s\n", green("parsed"), len(bundle.Dialogs), run.DialogActMapPath(false))
			if len(res.Excluded) > 0 {
				fmt.Printf("%s dialogs excluded from simulation: %v\n", yellow("warning:"), res.Excluded)
			}
			fmt.Printf("Review the generated artifacts, then save them as %s and %s.\n",
				run.DialogActMapPath(true), run.OntologyPath(true))
			return nil
		},
	}
	cmd.Flags().StringVar(&bundlePath, "bundle", "", "bot definition bundle (json)")
	_ = cmd.MarkFlagRequired("bundle")
	return cmd
}

func newParaphraseCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "paraphrase",
		Short: "Collect paraphrase candidates for every intent's seed utterances",
		RunE: func(cmd *cobra.Command, args []string) error {
			run, err := flags.load()
			if err != nil {
				return err
			}
			logger := flags.logger()
			pc := run.Generator.ParaphraserConfig
			client := paraphrase.New(paraphrase.Config{
				Endpoint:    pc.Endpoint,
				Token:       pc.Token,
				NumVariantA: pc.NumVariantA,
				NumVariantB: pc.NumVariantB,
			}, logger)

			for _, intent := range run.Intents {
				var seeds []string
				if err := schema.LoadJSON(run.UtterancesPath(intent), &seeds); err != nil {
					return errors.NewConfigError("load utterances", run.UtterancesPath(intent), err)
				}
				if pc.NumUtterances >= 0 && pc.NumUtterances < len(seeds) {
					seeds = seeds[:pc.NumUtterances]
				}
				candidates, err := client.Paraphrase(cmd.Context(), seeds)
				if err != nil {
					return err
				}
				if err := schema.SaveJSON(run.ParaphrasesPath(intent), candidates); err != nil {
					return err
				}
				fmt.Printf("%s %s: %d seeds\n", green("paraphrased"), intent, len(seeds))
			}
			return nil
		},
	}
}

func newGoalsCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "goals",
		Short: "Synthesize dev and eval simulation goals from paraphrases and the ontology",
		RunE: func(cmd *cobra.Command, args []string) error {
			run, err := flags.load()
			if err != nil {
				return err
			}

			ontologyPath := run.OntologyPath(true)
			if _, err := os.Stat(ontologyPath); err != nil {
				return &errors.MissingArtifactError{Path: ontologyPath}
			}
			var ontology schema.Ontology
			if err := schema.LoadJSON(ontologyPath, &ontology); err != nil {
				return errors.NewConfigError("load ontology", ontologyPath, err)
			}

			pc := run.Generator.ParaphraserConfig
			rng := rand.New(rand.NewSource(run.Remediator.Seed))
			pools := map[string]map[goals.Mode][]string{}
			for _, intent := range run.Intents {
				var candidates goals.Paraphrases
				if err := schema.LoadJSON(run.ParaphrasesPath(intent), &candidates); err != nil {
					return errors.NewConfigError("load paraphrases", run.ParaphrasesPath(intent), err)
				}
				dev, eval := goals.Split(candidates, pc.DevRatio, rng)
				pools[intent] = map[goals.Mode][]string{goals.ModeDev: dev, goals.ModeEval: eval}

				for _, mode := range goals.Modes() {
					set := goals.Create(intent, ontology, pools[intent][mode], rng)
					set = capGoals(set, pc.NumSimulations)
					if err := schema.SaveJSON(run.GoalsPath(intent, string(mode)), set); err != nil {
						return err
					}
					fmt.Printf("%s %s (%s): %d goals\n", green("synthesized"), intent, mode, len(set.Goals))
				}
			}
			return compoundGoals(run, ontology, pools, rng, flags.logger())
		},
	}
}

// compoundGoals synthesizes multi-intent goals for every ordered intent
// pair the conversation graph connects. The graph artifact is written by
// parse; without it there is nothing to connect and synthesis is skipped.
func compoundGoals(run *config.Run, ontology schema.Ontology,
	pools map[string]map[goals.Mode][]string, rng *rand.Rand, logger logging.Logger) error {
	if len(run.Intents) < 2 {
		return nil
	}
	var export graph.Export
	if err := schema.LoadJSON(run.GraphPath(), &export); err != nil {
		logger.Warn("conversation graph %s not loadable, skipping compound goals: %v", run.GraphPath(), err)
		return nil
	}
	g := graph.FromExport(export)

	pc := run.Generator.ParaphraserConfig
	for _, first := range run.Intents {
		for _, second := range run.Intents {
			if first == second || !g.SimplePathExists(first, second) {
				continue
			}
			var secondSeeds []string
			if err := schema.LoadJSON(run.UtterancesPath(second), &secondSeeds); err != nil {
				return errors.NewConfigError("load utterances", run.UtterancesPath(second), err)
			}
			for _, mode := range goals.Modes() {
				set := goals.CreateCompound(first, second, ontology,
					pools[first][mode], secondSeeds, g, rng, logger)
				set = capGoals(set, pc.NumSimulations)
				if len(set.Goals) == 0 {
					continue
				}
				if err := schema.SaveJSON(run.CompoundGoalsPath(first, second, string(mode)), set); err != nil {
					return err
				}
				fmt.Printf("%s %s>%s (%s): %d compound goals\n",
					green("synthesized"), first, second, mode, len(set.Goals))
			}
		}
	}
	return nil
}

// capGoals keeps the first n goals in episode order; n < 0 keeps all.
func capGoals(set schema.GoalSet, n int) schema.GoalSet {
	if n < 0 || n >= len(set.Goals) {
		return set
	}
	capped := schema.GoalSet{Goals: map[string]schema.Goal{}}
	for _, name := range set.Ordered()[:n] {
		capped.Goals[name] = set.Goals[name]
	}
	return capped
}
